package ranker

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/jspenaq/dataseed/internal/storage"
)

// Gravity 热度衰减指数。越大则旧内容掉得越快
const Gravity = 1.8

const trendingCacheTTL = 1 * time.Minute

// Options 排行参数
type Options struct {
	UseDecay bool
	Limit    int
}

// DecayScore 时间衰减热度：score / (age_hours + 2)^gravity。
// now 由调用方传入并对整批复用，保证同一批条目不会因为逐条取时钟而产生偏差
func DecayScore(score int, publishedAt, now time.Time) float64 {
	ageHours := now.Sub(publishedAt).Hours()
	if ageHours < 0 {
		ageHours = 0
	}
	return float64(score) / math.Pow(ageHours+2, Gravity)
}

// Rank 对一批条目做确定性排序：
//   - decay 模式按衰减热度降序
//   - plain 模式按 score 降序
//
// 两种模式的并列都按 published_at 更近优先、再按 identity_key 收尾，
// 构成全序；同样的输入和同样的 now 必然得到同样的输出
func Rank(items []storage.Item, now time.Time, opts Options) []storage.Item {
	ranked := make([]storage.Item, len(items))
	copy(ranked, items)

	if opts.UseDecay {
		scores := make(map[string]float64, len(ranked))
		for _, it := range ranked {
			scores[it.Source+"/"+it.ExternalID] = DecayScore(it.Score, it.PublishedAt, now)
		}
		sort.Slice(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			sa, sb := scores[a.Source+"/"+a.ExternalID], scores[b.Source+"/"+b.ExternalID]
			if sa != sb {
				return sa > sb
			}
			return lessByKey(a, b)
		})
	} else {
		sort.Slice(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if a.Score != b.Score {
				return a.Score > b.Score
			}
			return lessByKey(a, b)
		})
	}

	if opts.Limit > 0 && len(ranked) > opts.Limit {
		ranked = ranked[:opts.Limit]
	}
	return ranked
}

// lessByKey 收尾的并列判定。identity_key 会被跨源的同一链接共享，
// 所以最后还要落到 (source, external_id) 这个天然键上才是全序
func lessByKey(a, b storage.Item) bool {
	if !a.PublishedAt.Equal(b.PublishedAt) {
		return a.PublishedAt.After(b.PublishedAt)
	}
	if a.IdentityKey != b.IdentityKey {
		return a.IdentityKey < b.IdentityKey
	}
	if a.Source != b.Source {
		return a.Source < b.Source
	}
	return a.ExternalID < b.ExternalID
}

// Store 排行所需的存储层能力；*storage.Store 完整实现该接口
type Store interface {
	ListWindow(ctx context.Context, source string, since time.Time, limit int) ([]storage.Item, error)
	CacheGetItems(ctx context.Context, key string, out *[]storage.Item) bool
	CacheSetItems(ctx context.Context, key string, items []storage.Item, ttl time.Duration)
}

// Ranker 基于存储层的趋势排行入口
type Ranker struct {
	Store Store
}

func New(store Store) *Ranker {
	return &Ranker{Store: store}
}

// Trending 返回时间窗内的排行结果，Redis 短暂缓存
func (r *Ranker) Trending(ctx context.Context, window string, dur time.Duration, source string, limit int, useDecay bool) ([]storage.Item, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	cacheKey := fmt.Sprintf("items:trending:%s:%s:%d:%t", window, source, limit, useDecay)
	var cached []storage.Item
	if r.Store.CacheGetItems(ctx, cacheKey, &cached) {
		return cached, nil
	}

	now := time.Now().UTC()
	items, err := r.Store.ListWindow(ctx, source, now.Add(-dur), 2000)
	if err != nil {
		return nil, err
	}

	ranked := Rank(items, now, Options{UseDecay: useDecay, Limit: limit})

	if len(ranked) > 0 {
		r.Store.CacheSetItems(ctx, cacheKey, ranked, trendingCacheTTL)
	}
	return ranked, nil
}
