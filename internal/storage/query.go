package storage

import (
	"context"
	"fmt"
	"time"
)

const listCacheTTL = 5 * time.Minute

// ItemQuery 读层的条目查询参数
type ItemQuery struct {
	Source string // 数据源 code，可为空
	Search string // 标题子串搜索，可为空
	Limit  int
	Offset int
}

// ListItems 按 offset/limit 分页返回条目，按 (published_at, identity_key) 倒序。
// 首页（无搜索、无偏移）走 Redis 缓存，减轻每次打开页面时的 DB 压力
func (s *Store) ListItems(ctx context.Context, q ItemQuery) ([]Item, int64, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}

	type cachedPage struct {
		Items []Item `json:"items"`
		Total int64  `json:"total"`
	}

	cacheable := q.Search == "" && q.Offset == 0
	cacheKey := fmt.Sprintf("items:list:%s:%d", q.Source, q.Limit)
	if cacheable {
		var cached cachedPage
		if s.cacheGet(ctx, cacheKey, &cached) {
			return cached.Items, cached.Total, nil
		}
	}

	db := s.DB.WithContext(ctx).Model(&Item{})
	if q.Source != "" {
		db = db.Where("source = ?", q.Source)
	}
	if q.Search != "" {
		db = db.Where("title ILIKE ?", "%"+q.Search+"%")
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var list []Item
	err := db.
		Order("published_at DESC").
		Order("identity_key DESC").
		Limit(q.Limit).
		Offset(q.Offset).
		Find(&list).Error
	if err != nil {
		return nil, 0, err
	}

	if cacheable && len(list) > 0 {
		s.cacheSet(ctx, cacheKey, cachedPage{Items: list, Total: total}, listCacheTTL)
	}
	return list, total, nil
}

// ListItemsCursor 游标分页：cursor 为空表示第一页。
// 返回本页条目和下一页游标；没有更多数据时 next 为空串
func (s *Store) ListItemsCursor(ctx context.Context, q ItemQuery, cursor string) ([]Item, string, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}

	db := s.DB.WithContext(ctx).Model(&Item{})
	if q.Source != "" {
		db = db.Where("source = ?", q.Source)
	}
	if q.Search != "" {
		db = db.Where("title ILIKE ?", "%"+q.Search+"%")
	}

	if cursor != "" {
		p, k, err := DecodeCursor(cursor)
		if err != nil {
			return nil, "", err
		}
		db = db.Where(
			"published_at < ? OR (published_at = ? AND identity_key < ?)",
			p, p, k,
		)
	}

	// 多取一行判断是否还有下一页
	var list []Item
	err := db.
		Order("published_at DESC").
		Order("identity_key DESC").
		Limit(q.Limit + 1).
		Find(&list).Error
	if err != nil {
		return nil, "", err
	}

	next := ""
	if len(list) > q.Limit {
		list = list[:q.Limit]
		last := list[len(list)-1]
		next = EncodeCursor(last.PublishedAt, last.IdentityKey)
	}
	return list, next, nil
}

// ListWindow 返回 [since, now] 时间窗内的条目，供排行计算使用。
// 窗口外的数据绝不回填：稀疏源在窗口内没有数据就是没有
func (s *Store) ListWindow(ctx context.Context, source string, since time.Time, limit int) ([]Item, error) {
	if limit <= 0 || limit > 2000 {
		limit = 500
	}
	db := s.DB.WithContext(ctx).Model(&Item{}).Where("published_at >= ?", since)
	if source != "" {
		db = db.Where("source = ?", source)
	}

	var list []Item
	err := db.
		Order("published_at DESC").
		Order("identity_key DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}
