package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func ghFixedNow() time.Time {
	return time.Date(2024, 1, 3, 12, 0, 0, 0, time.UTC)
}

func ghRepoJSON(id int64) string {
	return fmt.Sprintf(`{
		"id": %d, "full_name": "owner/repo%d",
		"html_url": "https://github.com/owner/repo%d",
		"description": "a repo", "stargazers_count": 100, "forks_count": 7,
		"language": "Go",
		"created_at": "2023-06-01T00:00:00Z", "pushed_at": "2024-01-03T11:00:00Z",
		"owner": {"login": "owner"}
	}`, id, id, id)
}

func TestGitHubFetchPageBuildsQueryAndParses(t *testing.T) {
	var gotQuery, gotPage, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("q")
		gotPage = r.URL.Query().Get("page")
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprintf(w, `{"total_count": 1, "items": [%s]}`, ghRepoJSON(42))
	}))
	defer srv.Close()

	ex := &GitHubExtractor{BaseURL: srv.URL, Token: "tok123", Now: ghFixedNow}
	records, next, err := ex.FetchPage(context.Background(), "")
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}

	// 查询窗口由注入时钟决定：now-24h
	if !strings.Contains(gotQuery, "pushed:>2024-01-02T12:00:00Z") {
		t.Fatalf("q = %q", gotQuery)
	}
	if gotPage != "1" {
		t.Fatalf("page = %q, want 1", gotPage)
	}
	if gotAuth != "Bearer tok123" {
		t.Fatalf("Authorization = %q", gotAuth)
	}

	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	rec := records[0]
	if rec.ExternalID != "42" || rec.Title != "owner/repo42" || rec.Score != 100 || rec.Author != "owner" {
		t.Fatalf("record = %+v", rec)
	}
	if !rec.PublishedAt.Equal(time.Date(2024, 1, 3, 11, 0, 0, 0, time.UTC)) {
		t.Fatalf("PublishedAt = %v", rec.PublishedAt)
	}
	// 不满一整页就没有下一页
	if next != "" {
		t.Fatalf("next = %q, want empty", next)
	}
}

func TestGitHubFullPageAdvancesCursor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items := make([]json.RawMessage, ghPageSize)
		for i := range items {
			items[i] = json.RawMessage(ghRepoJSON(int64(i + 1)))
		}
		json.NewEncoder(w).Encode(map[string]any{"total_count": 1000, "items": items})
	}))
	defer srv.Close()

	ex := &GitHubExtractor{BaseURL: srv.URL, Now: ghFixedNow}
	_, next, err := ex.FetchPage(context.Background(), "2")
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
	if next != "3" {
		t.Fatalf("next = %q, want 3", next)
	}

	// 页码达到上限后即便整页也收口
	_, next, err = ex.FetchPage(context.Background(), "5")
	if err != nil {
		t.Fatalf("FetchPage error: %v", err)
	}
	if next != "" {
		t.Fatalf("next at page cap = %q, want empty", next)
	}
}

func TestGitHubForbiddenTreatedAsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	ex := &GitHubExtractor{BaseURL: srv.URL, Now: ghFixedNow}
	_, _, err := ex.FetchPage(context.Background(), "")
	// GitHub 二级限流走 403，必须按限流退避而不是直接判死
	if !IsRateLimited(err) {
		t.Fatalf("403 should be rate limited, got %v", err)
	}
}

func TestGitHubUnauthorizedIsPermanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	ex := &GitHubExtractor{BaseURL: srv.URL, Now: ghFixedNow}
	_, _, err := ex.FetchPage(context.Background(), "")
	if !IsPermanent(err) {
		t.Fatalf("401 should be permanent, got %v", err)
	}
}

func TestGitHubBadCursorIsPermanent(t *testing.T) {
	ex := &GitHubExtractor{BaseURL: "http://127.0.0.1:0", Now: ghFixedNow}
	_, _, err := ex.FetchPage(context.Background(), "zero")
	if !IsPermanent(err) {
		t.Fatalf("bad cursor should be permanent, got %v", err)
	}
	_, _, err = ex.FetchPage(context.Background(), "0")
	if !IsPermanent(err) {
		t.Fatalf("cursor 0 should be permanent, got %v", err)
	}
}
