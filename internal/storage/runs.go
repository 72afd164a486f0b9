package storage

import (
	"context"
	"fmt"
	"time"
)

// CreateRun 在编排开始时创建一条 running 状态的运行记录
func (s *Store) CreateRun(ctx context.Context, source string) (*IngestionRun, error) {
	run := &IngestionRun{
		Source:    source,
		StartedAt: nowUTC(),
		Status:    RunRunning,
	}
	if err := s.DB.WithContext(ctx).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// SealRun 封存运行记录：写入最终状态、计数与结束时间。
// 封存之后记录不再被修改（历史只追加）
func (s *Store) SealRun(ctx context.Context, run *IngestionRun) error {
	completed := nowUTC()
	run.CompletedAt = &completed
	run.ErrorSummary = truncateRunes(run.ErrorSummary, 1000)

	return s.DB.WithContext(ctx).
		Model(&IngestionRun{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":        run.Status,
			"completed_at":  run.CompletedAt,
			"items_seen":    run.ItemsSeen,
			"items_new":     run.ItemsNew,
			"items_updated": run.ItemsUpdated,
			"items_failed":  run.ItemsFailed,
			"error_summary": run.ErrorSummary,
			"notes":         run.Notes,
		}).Error
}

// ListRuns 按源返回运行历史，最新的在前
func (s *Store) ListRuns(ctx context.Context, source string, limit int) ([]IngestionRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	db := s.DB.WithContext(ctx).Model(&IngestionRun{})
	if source != "" {
		db = db.Where("source = ?", source)
	}

	var runs []IngestionRun
	err := db.Order("started_at DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

// runningStaleCutoff 超过这个时长仍是 running 的记录视为进程崩溃遗留，
// 不再阻挡新一轮采集
const runningStaleCutoff = 15 * time.Minute

// HasRunningRun 判断某个源是否仍有未封存的运行。
// 进程内的重叠由调度器的内存锁挡掉，这里挡的是多进程场景
// （API 服务与 cmd/ingest 同时跑同一个源）
func (s *Store) HasRunningRun(ctx context.Context, source string) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).
		Model(&IngestionRun{}).
		Where("source = ? AND status = ? AND started_at >= ?",
			source, RunRunning, nowUTC().Add(-runningStaleCutoff)).
		Count(&count).Error
	return count > 0, err
}

// RunStats 某个时间窗内的运行聚合统计
type RunStats struct {
	Window        string  `json:"window"`
	TotalRuns     int64   `json:"totalRuns"`
	SucceededRuns int64   `json:"succeededRuns"`
	FailedRuns    int64   `json:"failedRuns"`
	PartialRuns   int64   `json:"partialRuns"`
	ItemsSeen     int64   `json:"itemsSeen"`
	ItemsNew      int64   `json:"itemsNew"`
	ItemsUpdated  int64   `json:"itemsUpdated"`
	ItemsFailed   int64   `json:"itemsFailed"`
	SuccessRate   float64 `json:"successRate"`
}

const statsCacheTTL = 1 * time.Minute

// GetRunStats 聚合 [now-window, now] 内的运行计数与成功率，结果短暂缓存
func (s *Store) GetRunStats(ctx context.Context, source, window string, dur time.Duration) (*RunStats, error) {
	cacheKey := fmt.Sprintf("runs:stats:%s:%s", source, window)
	var cached RunStats
	if s.cacheGet(ctx, cacheKey, &cached) {
		return &cached, nil
	}

	cutoff := nowUTC().Add(-dur)

	db := s.DB.WithContext(ctx).Model(&IngestionRun{}).Where("started_at >= ?", cutoff)
	if source != "" {
		db = db.Where("source = ?", source)
	}

	var row struct {
		TotalRuns     int64
		SucceededRuns int64
		FailedRuns    int64
		PartialRuns   int64
		ItemsSeen     int64
		ItemsNew      int64
		ItemsUpdated  int64
		ItemsFailed   int64
	}
	err := db.Select(
		"COUNT(*) AS total_runs, " +
			"COUNT(*) FILTER (WHERE status = 'succeeded') AS succeeded_runs, " +
			"COUNT(*) FILTER (WHERE status = 'failed') AS failed_runs, " +
			"COUNT(*) FILTER (WHERE status = 'partial') AS partial_runs, " +
			"COALESCE(SUM(items_seen), 0) AS items_seen, " +
			"COALESCE(SUM(items_new), 0) AS items_new, " +
			"COALESCE(SUM(items_updated), 0) AS items_updated, " +
			"COALESCE(SUM(items_failed), 0) AS items_failed").
		Scan(&row).Error
	if err != nil {
		return nil, err
	}

	stats := &RunStats{
		Window:        window,
		TotalRuns:     row.TotalRuns,
		SucceededRuns: row.SucceededRuns,
		FailedRuns:    row.FailedRuns,
		PartialRuns:   row.PartialRuns,
		ItemsSeen:     row.ItemsSeen,
		ItemsNew:      row.ItemsNew,
		ItemsUpdated:  row.ItemsUpdated,
		ItemsFailed:   row.ItemsFailed,
	}
	if stats.TotalRuns > 0 {
		stats.SuccessRate = float64(stats.SucceededRuns) / float64(stats.TotalRuns) * 100
	}

	s.cacheSet(ctx, cacheKey, stats, statsCacheTTL)
	return stats, nil
}
