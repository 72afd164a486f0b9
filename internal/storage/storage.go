package storage

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Source 描述一个数据源，例如 hackernews / reddit / github / lobsters
type Source struct {
	ID      uint   `gorm:"primaryKey" json:"id"`
	Code    string `gorm:"size:64;uniqueIndex" json:"code"`
	Name    string `gorm:"size:128" json:"name"`
	BaseURL string `gorm:"size:256" json:"baseUrl"`
	Status  string `gorm:"size:32;index" json:"status"` // active / disabled

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Item 归一化后的持久化条目。(source, external_id) 全局唯一；
// identity_key 另建普通索引用于跨源识别同一链接（不同源的同链接保留为独立行）。
// (published_at, identity_key) 复合索引支撑游标分页与时间窗查询。
type Item struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Source      string `gorm:"size:64;not null;uniqueIndex:uq_items_source_external,priority:1;index" json:"source"`
	ExternalID  string `gorm:"size:255;not null;uniqueIndex:uq_items_source_external,priority:2" json:"externalId"`
	IdentityKey string `gorm:"size:40;not null;index;index:idx_items_published_identity,priority:2" json:"identityKey"`
	Title       string `gorm:"size:512;not null" json:"title"`
	URL         string `gorm:"size:1024" json:"url"`
	Author      string `gorm:"size:255" json:"author"`
	Score       int    `gorm:"index" json:"score"`

	PublishedAt time.Time         `gorm:"index:idx_items_published_identity,priority:1" json:"publishedAt"`
	IngestedAt  time.Time         `json:"ingestedAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
	RawMetadata datatypes.JSONMap `gorm:"type:jsonb" json:"rawMetadata"`
}

// 运行状态机：running → succeeded / failed / partial，封存后不再变更
const (
	RunRunning   = "running"
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunPartial   = "partial"
)

// IngestionRun 单个源单轮采集的执行记录，封存后只读（append-only 历史）
type IngestionRun struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Source      string     `gorm:"size:64;index:idx_runs_source_started,priority:1" json:"source"`
	StartedAt   time.Time  `gorm:"index:idx_runs_source_started,priority:2" json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	Status      string     `gorm:"size:20;index" json:"status"`

	ItemsSeen    int `json:"itemsSeen"`
	ItemsNew     int `json:"itemsNew"`
	ItemsUpdated int `json:"itemsUpdated"`
	ItemsFailed  int `json:"itemsFailed"`

	ErrorSummary string            `gorm:"size:1000" json:"errorSummary"`
	Notes        datatypes.JSONMap `gorm:"type:jsonb" json:"notes"`

	CreatedAt time.Time `json:"createdAt"`
}

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client
}

func NewStore(dsn, redisAddr string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(&Source{}, &Item{}, &IngestionRun{}); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("warn: redis ping failed: %v", err)
	}

	return &Store{DB: db, Redis: rdb}, nil
}

// EnsureSource 确保某个数据源存在
func (s *Store) EnsureSource(code, name, baseURL string) (*Source, error) {
	src := &Source{}
	if err := s.DB.Where("code = ?", code).First(src).Error; err == nil {
		return src, nil
	}

	src = &Source{
		Code:    code,
		Name:    name,
		BaseURL: baseURL,
		Status:  "active",
	}
	if err := s.DB.Create(src).Error; err != nil {
		return nil, err
	}
	return src, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}

// toValidUTF8 将字符串规范为合法 UTF-8，避免 PostgreSQL invalid byte sequence 错误
func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "�")
}

// truncateRunes 按 rune 数截断，确保不超过数据库字段长度
func truncateRunes(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	rs := []rune(s)
	if len(rs) <= limit {
		return s
	}
	return string(rs[:limit])
}

// ---------- Redis 读缓存 ----------
// 只做短 TTL 缓存，不做通配删除，完全依赖自然过期

func (s *Store) cacheGet(ctx context.Context, key string, out any) bool {
	if s.Redis == nil {
		return false
	}
	bs, err := s.Redis.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(bs, out) == nil
}

func (s *Store) cacheSet(ctx context.Context, key string, v any, ttl time.Duration) {
	if s.Redis == nil {
		return
	}
	if bs, err := json.Marshal(v); err == nil {
		_ = s.Redis.Set(ctx, key, bs, ttl).Err()
	}
}

// CacheGetItems / CacheSetItems 供上层（如排行）复用同一套读缓存

func (s *Store) CacheGetItems(ctx context.Context, key string, out *[]Item) bool {
	return s.cacheGet(ctx, key, out)
}

func (s *Store) CacheSetItems(ctx context.Context, key string, items []Item, ttl time.Duration) {
	s.cacheSet(ctx, key, items, ttl)
}
