package extractor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const lobstersPage = `<!DOCTYPE html>
<html><body><ol class="stories">
  <li class="story" data-shortid="abc123">
    <div class="voters"><div class="score">42</div></div>
    <span class="link"><a class="u-url" href="https://example.com/post">Great Post</a></span>
    <div class="byline">
      <a class="u-author">alice</a>
      <span title="2024-01-03 10:00:00 -0600">3 hours ago</span>
      <a class="tag">go</a><a class="tag">web</a>
      <span class="comments_label"><a href="/s/abc123">12 comments</a></span>
    </div>
  </li>
  <li class="story" data-shortid="def456">
    <div class="voters"><div class="score">7</div></div>
    <span class="link"><a class="u-url" href="/s/def456/local_story">Local Story</a></span>
    <div class="byline"><a class="u-author">bob</a></div>
  </li>
  <li class="story" data-shortid="">
    <span class="link"><a class="u-url" href="https://example.com/x">Missing ID</a></span>
  </li>
</ol></body></html>`

func TestLobstersParsesStories(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(lobstersPage))
	}))
	defer srv.Close()

	ex := &LobstersExtractor{URL: srv.URL}
	records, next, err := ex.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}

	// 缺 shortid 的条目被丢弃
	if len(records) != 2 {
		t.Fatalf("len(records) = %d, want 2", len(records))
	}
	// 固定 top-N 列表没有下一页
	if next != "" {
		t.Fatalf("next = %q, want empty", next)
	}

	first := records[0]
	if first.ExternalID != "abc123" || first.Title != "Great Post" || first.Score != 42 || first.Author != "alice" {
		t.Fatalf("first record = %+v", first)
	}
	if first.URL != "https://example.com/post" {
		t.Fatalf("first URL = %q", first.URL)
	}
	// byline 里的发布时间转成 UTC
	if !first.PublishedAt.Equal(time.Date(2024, 1, 3, 16, 0, 0, 0, time.UTC)) {
		t.Fatalf("PublishedAt = %v", first.PublishedAt)
	}
	if got := first.Raw["comments"]; got != 12 {
		t.Fatalf("comments = %v, want 12", got)
	}
	tags, ok := first.Raw["tags"].([]string)
	if !ok || len(tags) != 2 || tags[0] != "go" {
		t.Fatalf("tags = %v", first.Raw["tags"])
	}
}

func TestLobstersRelativeLinkMadeAbsolute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(lobstersPage))
	}))
	defer srv.Close()

	ex := &LobstersExtractor{URL: srv.URL}
	records, _, err := ex.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}

	second := records[1]
	if second.URL != "https://lobste.rs/s/def456/local_story" {
		t.Fatalf("relative link not absolutized: %q", second.URL)
	}
	// byline 没有时间标签时退回抓取时刻，不能是零值
	if second.PublishedAt.IsZero() {
		t.Fatalf("PublishedAt should fall back to fetch time")
	}
}

func TestLobstersHTTPErrorsClassified(t *testing.T) {
	status := http.StatusServiceUnavailable
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	defer srv.Close()

	ex := &LobstersExtractor{URL: srv.URL}
	if _, _, err := ex.FetchPage(context.Background(), ""); !IsTransient(err) {
		t.Fatalf("503 should be transient, got %v", err)
	}

	status = http.StatusTooManyRequests
	if _, _, err := ex.FetchPage(context.Background(), ""); !IsRateLimited(err) {
		t.Fatalf("429 should be rate limited, got %v", err)
	}
}

func TestLobstersCancelledContextSkipsVisit(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte(lobstersPage))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := &LobstersExtractor{URL: srv.URL}
	_, _, err := ex.FetchPage(ctx, "")
	if err != context.Canceled {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if hits != 0 {
		t.Fatalf("cancelled fetch should not hit the server, hits = %d", hits)
	}
}

func TestParseVotes(t *testing.T) {
	cases := map[string]int{
		"12 comments": 12,
		"42":          42,
		"no digits":   0,
		"":            0,
	}
	for in, want := range cases {
		if got := parseVotes(in); got != want {
			t.Fatalf("parseVotes(%q) = %d, want %d", in, got, want)
		}
	}
}
