package storage

import (
	"context"
	"errors"

	"github.com/jspenaq/dataseed/internal/normalizer"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertOutcome 去重引擎对单条候选记录的决策结果
type UpsertOutcome int

const (
	Inserted UpsertOutcome = iota
	Updated
	Unchanged
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	case Unchanged:
		return "unchanged"
	default:
		return "unknown"
	}
}

// ErrConflict 并发写同一 (source, external_id) 时的冲突信号；
// ApplyItem 内部会重读重试一次，重试后仍冲突才向上抛
var ErrConflict = errors.New("storage: concurrent write conflict")

// diffItem 比较可变字段（score / title / url），返回需要更新的列。
// 空 map 表示完全一致，调用方不应产生任何写入（幂等的关键）。
func diffItem(existing *Item, c normalizer.CanonicalItem) map[string]any {
	changes := map[string]any{}
	if existing.Score != c.Score {
		changes["score"] = c.Score
	}
	if title := truncateRunes(toValidUTF8(c.Title), 512); existing.Title != title {
		changes["title"] = title
	}
	if existing.URL != c.URL {
		changes["url"] = c.URL
	}
	return changes
}

func itemFromCanonical(c normalizer.CanonicalItem) Item {
	return Item{
		Source:      c.Source,
		ExternalID:  c.ExternalID,
		IdentityKey: c.IdentityKey,
		Title:       truncateRunes(toValidUTF8(c.Title), 512),
		URL:         c.URL,
		Author:      truncateRunes(toValidUTF8(c.Author), 255),
		Score:       c.Score,
		PublishedAt: c.PublishedAt,
		RawMetadata: datatypes.JSONMap(c.RawMetadata),
	}
}

// ApplyItem 对单条候选记录执行插入 / 更新 / 不变的决策并落库。
// 以 (source, external_id) 为自然键；同批重试或并发采集下保持幂等：
// 内容未变时不产生写入，updated_at 也不会被顶高。
// 并发插入抢先导致的冲突重读一次再做一次决策，仍失败则返回 ErrConflict。
func (s *Store) ApplyItem(ctx context.Context, c normalizer.CanonicalItem) (UpsertOutcome, error) {
	outcome, err := s.applyOnce(ctx, c)
	if errors.Is(err, ErrConflict) {
		outcome, err = s.applyOnce(ctx, c)
	}
	return outcome, err
}

func (s *Store) applyOnce(ctx context.Context, c normalizer.CanonicalItem) (UpsertOutcome, error) {
	var existing Item
	err := s.DB.WithContext(ctx).
		Where("source = ? AND external_id = ?", c.Source, c.ExternalID).
		First(&existing).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := itemFromCanonical(c)
		row.IngestedAt = nowUTC()
		// ON CONFLICT DO NOTHING：并发插入同键时数据库保证至多一个生效写者
		res := s.DB.WithContext(ctx).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "source"}, {Name: "external_id"}},
				DoNothing: true,
			}).
			Create(&row)
		if res.Error != nil {
			return Unchanged, res.Error
		}
		if res.RowsAffected == 0 {
			// 另一个写者抢先插入了同键行
			return Unchanged, ErrConflict
		}
		return Inserted, nil
	}
	if err != nil {
		return Unchanged, err
	}

	changes := diffItem(&existing, c)
	if len(changes) == 0 {
		return Unchanged, nil
	}

	res := s.DB.WithContext(ctx).
		Model(&Item{}).
		Where("source = ? AND external_id = ?", c.Source, c.ExternalID).
		Updates(changes)
	if res.Error != nil {
		return Unchanged, res.Error
	}
	return Updated, nil
}
