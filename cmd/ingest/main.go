package main

import (
	"flag"
	"log"

	"github.com/jspenaq/dataseed/internal/config"
	"github.com/jspenaq/dataseed/internal/extractor"
	"github.com/jspenaq/dataseed/internal/ingest"
	"github.com/jspenaq/dataseed/internal/scheduler"
	"github.com/jspenaq/dataseed/internal/storage"
)

// 一个仅执行一轮采集的命令行入口：适合手动触发或外部调度器接管周期
func main() {
	source := flag.String("source", "", "only ingest this source (empty = all)")
	flag.Parse()

	cfg := config.Load()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	// 确保各个数据源存在（与 cmd/api 保持一致）
	if _, err := store.EnsureSource("hackernews", "Hacker News", "https://hacker-news.firebaseio.com/v0"); err != nil {
		log.Fatalf("ensure source hackernews failed: %v", err)
	}
	if _, err := store.EnsureSource("reddit", "Reddit r/"+cfg.RedditSubreddit, "https://www.reddit.com"); err != nil {
		log.Fatalf("ensure source reddit failed: %v", err)
	}
	if _, err := store.EnsureSource("github", "GitHub Search", "https://api.github.com"); err != nil {
		log.Fatalf("ensure source github failed: %v", err)
	}
	if _, err := store.EnsureSource("lobsters", "Lobsters", "https://lobste.rs"); err != nil {
		log.Fatalf("ensure source lobsters failed: %v", err)
	}

	jobs := []scheduler.Job{
		{Runner: newRunner(extractor.NewHackerNewsExtractor(), store, cfg), CronSpec: cfg.CronSpec},
		{Runner: newRunner(extractor.NewRedditExtractor(cfg.RedditSubreddit), store, cfg), CronSpec: cfg.CronSpec},
		{Runner: newRunner(extractor.NewGitHubExtractor(cfg.GitHubToken), store, cfg), CronSpec: cfg.CronSpec},
		{Runner: newRunner(extractor.NewLobstersExtractor(), store, cfg), CronSpec: cfg.CronSpec},
	}

	sched, err := scheduler.New(jobs)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}

	if *source != "" {
		run, err := sched.RunSource(*source)
		if err != nil {
			log.Fatalf("run %s failed: %v", *source, err)
		}
		log.Printf("run %s finished: status=%s seen=%d new=%d updated=%d failed=%d",
			*source, run.Status, run.ItemsSeen, run.ItemsNew, run.ItemsUpdated, run.ItemsFailed)
		return
	}

	// 所有源各跑一轮后退出
	log.Printf("ingesting sources: %v", sched.Sources())
	sched.RunAll()
}

func newRunner(ex extractor.Extractor, store *storage.Store, cfg *config.Config) *ingest.Runner {
	runner := ingest.NewRunner(ex, store)
	runner.MaxPages = cfg.MaxPages
	return runner
}
