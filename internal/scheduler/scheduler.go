package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jspenaq/dataseed/internal/ingest"
	"github.com/jspenaq/dataseed/internal/storage"
	"github.com/robfig/cron/v3"
)

// 单轮采集的时间预算，超时后运行封存为 partial
const runTimeout = 10 * time.Minute

// Job 一个数据源的采集任务：按各源的更新频率配置独立的 cron 周期
type Job struct {
	Runner   *ingest.Runner
	CronSpec string
}

var ErrAlreadyRunning = fmt.Errorf("scheduler: source run already in progress")

type Scheduler struct {
	cron    *cron.Cron
	runners map[string]*ingest.Runner

	mu      sync.Mutex
	running map[string]bool
}

func New(jobs []Job) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron:    c,
		runners: make(map[string]*ingest.Runner, len(jobs)),
		running: make(map[string]bool, len(jobs)),
	}

	for _, job := range jobs {
		runner := job.Runner
		name := runner.Extractor.Name()
		s.runners[name] = runner

		_, err := c.AddFunc(job.CronSpec, func() {
			if _, err := s.RunSource(name); err != nil {
				log.Printf("scheduled run %s: %v", name, err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("add cron for %s: %w", name, err)
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	// 延迟执行首轮采集，避免与服务启动期的请求争抢资源
	const startupDelay = 15 * time.Second
	time.AfterFunc(startupDelay, func() {
		s.RunAll()
	})
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Sources 返回所有已注册的数据源 code
func (s *Scheduler) Sources() []string {
	names := make([]string, 0, len(s.runners))
	for name := range s.runners {
		names = append(names, name)
	}
	return names
}

// RunSource 对外的单源立即执行入口（调度触发与手动触发共用）。
// 同一个源上一轮还没结束时直接跳过，不允许重叠运行
func (s *Scheduler) RunSource(name string) (*storage.IngestionRun, error) {
	runner, ok := s.runners[name]
	if !ok {
		return nil, fmt.Errorf("scheduler: unknown source %q", name)
	}

	s.mu.Lock()
	if s.running[name] {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.running[name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running[name] = false
		s.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	return runner.Run(ctx)
}

// RunAll 并发触发所有源各跑一轮；各源互不影响，一个源失败不波及其它源
func (s *Scheduler) RunAll() {
	log.Println("start ingestion cycle (all sources)...")

	var wg sync.WaitGroup
	for name := range s.runners {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.RunSource(name); err != nil {
				log.Printf("run %s error: %v", name, err)
			}
		}()
	}
	wg.Wait()

	log.Println("ingestion cycle done (all sources)")
}
