package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jspenaq/dataseed/internal/extractor"
	"github.com/jspenaq/dataseed/internal/normalizer"
	"github.com/jspenaq/dataseed/internal/ratelimit"
	"github.com/jspenaq/dataseed/internal/storage"
	"gorm.io/datatypes"
)

const (
	defaultMaxPages    = 10
	defaultPageRetries = 3
	defaultRetryDelay  = 1 * time.Second
	maxErrorNotes      = 10
)

// Store 编排器需要的持久化能力；*storage.Store 完整实现该接口
type Store interface {
	CreateRun(ctx context.Context, source string) (*storage.IngestionRun, error)
	SealRun(ctx context.Context, run *storage.IngestionRun) error
	ApplyItem(ctx context.Context, item normalizer.CanonicalItem) (storage.UpsertOutcome, error)
	HasRunningRun(ctx context.Context, source string) (bool, error)
}

// ErrRunInProgress 同一个源已有未封存的运行（可能来自另一个进程）
var ErrRunInProgress = errors.New("ingest: run already in progress for source")

// Runner 驱动单个源的一轮采集：翻页抓取 → 清洗 → 去重入库 → 封存运行记录。
// 每个源独享一个 Runner 与退避控制器，不同源的运行互不影响、可并行。
type Runner struct {
	Extractor extractor.Extractor
	Backoff   *ratelimit.Controller
	Store     Store

	// MaxPages / PageRetries 为 0 时取默认值
	MaxPages    int
	PageRetries int
	// RetryDelay 瞬时失败的重试基础间隔
	RetryDelay time.Duration
}

func NewRunner(ex extractor.Extractor, store Store) *Runner {
	return &Runner{
		Extractor: ex,
		Backoff:   ratelimit.NewController(ratelimit.DefaultBaseDelay, ratelimit.DefaultMaxDelay),
		Store:     store,
	}
}

// pageOutcome 单页抓取尝试的结果标签；重试决策全部走这个显式分支，
// 不依赖层层包裹的错误展开
type pageOutcome int

const (
	pageOK pageOutcome = iota
	pageRateLimited
	pageTransient
	pagePermanent
	pageCancelled
)

func classify(ctx context.Context, err error) pageOutcome {
	switch {
	case err == nil:
		return pageOK
	case ctx.Err() != nil:
		return pageCancelled
	case extractor.IsRateLimited(err):
		return pageRateLimited
	case extractor.IsPermanent(err):
		return pagePermanent
	default:
		return pageTransient
	}
}

// Run 执行一轮采集并返回封存后的运行记录。
// 状态机：running → succeeded（正常翻完或页数预算用尽且无失败页）
// / partial（重试耗尽或被取消，已入库数据保留）/ failed（永久失败）
func (r *Runner) Run(ctx context.Context) (*storage.IngestionRun, error) {
	source := r.Extractor.Name()
	maxPages := r.MaxPages
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}

	if busy, berr := r.Store.HasRunningRun(ctx, source); berr != nil {
		return nil, fmt.Errorf("check running run for %s: %w", source, berr)
	} else if busy {
		return nil, ErrRunInProgress
	}

	run, err := r.Store.CreateRun(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("create run for %s: %w", source, err)
	}
	log.Printf("run %s started (id=%d)", source, run.ID)

	status := storage.RunSucceeded
	var notes []string
	pages := 0
	cursor := ""

	for page := 0; page < maxPages; page++ {
		// 取消只在页与页之间生效，单页处理不被打断
		if ctx.Err() != nil {
			status = storage.RunPartial
			notes = append(notes, "cancelled between pages")
			break
		}

		records, next, ferr := r.fetchPageWithRetry(ctx, cursor)
		if ferr != nil {
			switch classify(ctx, ferr) {
			case pagePermanent:
				status = storage.RunFailed
			default:
				// 重试耗尽或取消：已入库的页保留
				status = storage.RunPartial
			}
			notes = append(notes, fmt.Sprintf("page %d: %v", page+1, ferr))
			break
		}

		pages++
		for _, rec := range records {
			run.ItemsSeen++

			item, nerr := normalizer.Normalize(rec)
			if nerr != nil {
				// 单条清洗失败只计数，绝不中断同批其它记录
				run.ItemsFailed++
				if len(notes) < maxErrorNotes {
					notes = append(notes, nerr.Error())
				}
				continue
			}

			outcome, aerr := r.Store.ApplyItem(ctx, item)
			if aerr != nil {
				run.ItemsFailed++
				if len(notes) < maxErrorNotes {
					notes = append(notes, fmt.Sprintf("apply %s/%s: %v", item.Source, item.ExternalID, aerr))
				}
				continue
			}
			switch outcome {
			case storage.Inserted:
				run.ItemsNew++
			case storage.Updated:
				run.ItemsUpdated++
			}
		}

		if next == "" {
			break // 翻完了
		}
		cursor = next
	}

	run.Status = status
	run.ErrorSummary = strings.Join(notes, "; ")
	run.Notes = datatypes.JSONMap{"pages": pages}

	if serr := r.Store.SealRun(ctx, run); serr != nil {
		return run, fmt.Errorf("seal run %d: %w", run.ID, serr)
	}

	log.Printf("run %s sealed: status=%s seen=%d new=%d updated=%d failed=%d pages=%d",
		source, run.Status, run.ItemsSeen, run.ItemsNew, run.ItemsUpdated, run.ItemsFailed, pages)
	return run, nil
}

// fetchPageWithRetry 带预算的单页抓取：
// 每次尝试前先等掉 blocked_until；限流上报给退避控制器，
// 瞬时失败按本地间隔重试；永久失败与取消立即返回
func (r *Runner) fetchPageWithRetry(ctx context.Context, cursor string) ([]extractor.RawRecord, string, error) {
	retries := r.PageRetries
	if retries <= 0 {
		retries = defaultPageRetries
	}
	retryDelay := r.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	var lastErr error
	for attempt := 0; attempt < retries; attempt++ {
		if err := r.Backoff.Wait(ctx); err != nil {
			return nil, "", err
		}

		records, next, err := r.Extractor.FetchPage(ctx, cursor)
		switch classify(ctx, err) {
		case pageOK:
			r.Backoff.RecordSuccess()
			return records, next, nil
		case pageCancelled:
			return nil, "", ctx.Err()
		case pagePermanent:
			return nil, "", err
		case pageRateLimited:
			delay := r.Backoff.RecordThrottle()
			log.Printf("fetch %s page throttled, backoff %s", r.Extractor.Name(), delay)
		case pageTransient:
			log.Printf("fetch %s page error (attempt %d/%d): %v", r.Extractor.Name(), attempt+1, retries, err)
			if attempt < retries-1 {
				if werr := sleepCtx(ctx, retryDelay); werr != nil {
					return nil, "", werr
				}
			}
		}
		lastErr = err
	}
	return nil, "", fmt.Errorf("retry budget exhausted: %w", lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
