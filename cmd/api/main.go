package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/jspenaq/dataseed/internal/api"
	"github.com/jspenaq/dataseed/internal/config"
	"github.com/jspenaq/dataseed/internal/extractor"
	"github.com/jspenaq/dataseed/internal/ingest"
	"github.com/jspenaq/dataseed/internal/ranker"
	"github.com/jspenaq/dataseed/internal/scheduler"
	"github.com/jspenaq/dataseed/internal/storage"
)

func main() {
	cfg := config.Load()

	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr)
	if err != nil {
		log.Fatalf("init store failed: %v", err)
	}

	// 确保各个数据源存在
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

	// 按数据源更新频率配置独立的采集周期
	jobs := []scheduler.Job{
		{Runner: newRunner(extractor.NewHackerNewsExtractor(), store, cfg), CronSpec: "*/15 * * * *"},
		{Runner: newRunner(extractor.NewRedditExtractor(cfg.RedditSubreddit), store, cfg), CronSpec: "*/30 * * * *"},
		// GitHub search API 未认证时配额极低，降低到每小时一次
		{Runner: newRunner(extractor.NewGitHubExtractor(cfg.GitHubToken), store, cfg), CronSpec: "0 * * * *"},
		{Runner: newRunner(extractor.NewLobstersExtractor(), store, cfg), CronSpec: "*/30 * * * *"},
	}

	sched, err := scheduler.New(jobs)
	if err != nil {
		log.Fatalf("init scheduler failed: %v", err)
	}
	sched.Start()

	// API
	r := gin.Default()
	apiServer := api.NewServer(store, ranker.New(store), sched)
	apiServer.RegisterRoutes(r)

	addr := ":" + cfg.AppPort
	log.Printf("starting api server at %s ...", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}

func newRunner(ex extractor.Extractor, store *storage.Store, cfg *config.Config) *ingest.Runner {
	runner := ingest.NewRunner(ex, store)
	runner.MaxPages = cfg.MaxPages
	return runner
}
