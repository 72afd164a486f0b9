package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	if cfg.AppPort != "9000" {
		t.Fatalf("AppPort = %q, want 9000", cfg.AppPort)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Fatalf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.RedditSubreddit != "programming" {
		t.Fatalf("RedditSubreddit = %q", cfg.RedditSubreddit)
	}
	if cfg.MaxPages != 10 {
		t.Fatalf("MaxPages = %d, want 10", cfg.MaxPages)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("APP_PORT", "8080")
	t.Setenv("REDDIT_SUBREDDIT", "golang")
	t.Setenv("INGEST_MAX_PAGES", "3")

	cfg := Load()
	if cfg.AppPort != "8080" {
		t.Fatalf("AppPort = %q, want 8080", cfg.AppPort)
	}
	if cfg.RedditSubreddit != "golang" {
		t.Fatalf("RedditSubreddit = %q, want golang", cfg.RedditSubreddit)
	}
	if cfg.MaxPages != 3 {
		t.Fatalf("MaxPages = %d, want 3", cfg.MaxPages)
	}
}

func TestGetEnvIntRejectsGarbage(t *testing.T) {
	t.Setenv("INGEST_MAX_PAGES", "not-a-number")
	if got := getEnvInt("INGEST_MAX_PAGES", 10); got != 10 {
		t.Fatalf("getEnvInt garbage = %d, want default 10", got)
	}

	t.Setenv("INGEST_MAX_PAGES", "-5")
	if got := getEnvInt("INGEST_MAX_PAGES", 10); got != 10 {
		t.Fatalf("getEnvInt negative = %d, want default 10", got)
	}
}
