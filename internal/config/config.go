package config

import (
	"log"
	"os"
	"strconv"
)

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	CronSpec string

	GitHubToken     string
	RedditSubreddit string

	// MaxPages 单轮采集的翻页预算
	MaxPages int
}

func Load() *Config {
	cfg := &Config{
		AppPort:         getEnv("APP_PORT", "9000"),
		PostgresDSN:     getEnv("POSTGRES_DSN", "host=localhost user=dataseed password=dataseed dbname=dataseed port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		CronSpec:        getEnv("CRON_SPEC", "*/15 * * * *"),
		GitHubToken:     getEnv("GITHUB_TOKEN", ""),
		RedditSubreddit: getEnv("REDDIT_SUBREDDIT", "programming"),
		MaxPages:        getEnvInt("INGEST_MAX_PAGES", 10),
	}

	log.Printf("config loaded: port=%s cron=%s", cfg.AppPort, cfg.CronSpec)
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}
