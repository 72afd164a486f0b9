package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const (
	ghDefaultBaseURL = "https://api.github.com"
	ghPageSize       = 100
	ghMaxPages       = 5
	ghClientTimeout  = 15 * time.Second
	ghLookback       = 24 * time.Hour
)

// GitHubExtractor 通过 search API 抓取最近活跃的仓库，按更新时间倒序。
// GitHub 用页码分页，cursor 即十进制页码（从 1 开始）。
// GitHub 对未认证请求限流极严，403 与 429 一样按限流信号处理。
type GitHubExtractor struct {
	BaseURL string
	Token   string
	// Now 可注入以便测试固定查询窗口，默认 time.Now
	Now func() time.Time

	client *http.Client
	once   sync.Once
}

func NewGitHubExtractor(token string) *GitHubExtractor {
	return &GitHubExtractor{Token: token}
}

func (g *GitHubExtractor) Name() string { return "github" }

func (g *GitHubExtractor) init() {
	g.once.Do(func() {
		if g.BaseURL == "" {
			g.BaseURL = ghDefaultBaseURL
		}
		if g.Now == nil {
			g.Now = time.Now
		}
		g.client = &http.Client{Timeout: ghClientTimeout}
	})
}

type ghSearchResult struct {
	TotalCount int      `json:"total_count"`
	Items      []ghRepo `json:"items"`
}

type ghRepo struct {
	ID          int64  `json:"id"`
	FullName    string `json:"full_name"`
	HTMLURL     string `json:"html_url"`
	Description string `json:"description"`
	Stars       int    `json:"stargazers_count"`
	Forks       int    `json:"forks_count"`
	Language    string `json:"language"`
	CreatedAt   string `json:"created_at"`
	PushedAt    string `json:"pushed_at"`
	Owner       struct {
		Login string `json:"login"`
	} `json:"owner"`
}

func (g *GitHubExtractor) FetchPage(ctx context.Context, cursor string) ([]RawRecord, string, error) {
	g.init()

	page := 1
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 1 {
			return nil, "", &PermanentError{Err: fmt.Errorf("bad cursor %q", cursor)}
		}
		page = n
	}

	since := g.Now().UTC().Add(-ghLookback).Format("2006-01-02T15:04:05Z")
	q := url.Values{
		"q":        {"pushed:>" + since + " stars:>10"},
		"sort":     {"updated"},
		"order":    {"desc"},
		"per_page": {strconv.Itoa(ghPageSize)},
		"page":     {strconv.Itoa(page)},
	}
	u := g.BaseURL + "/search/repositories?" + q.Encode()

	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if g.Token != "" {
		headers["Authorization"] = "Bearer " + g.Token
	}

	body, err := getJSON(ctx, g.client, u, headers)
	if err != nil {
		// GitHub 的二级限流返回 403，转成限流信号而不是永久失败
		var pe *PermanentError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusForbidden {
			return nil, "", &RateLimitedError{StatusCode: pe.StatusCode}
		}
		return nil, "", err
	}

	var result ghSearchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, "", &TransientError{Err: fmt.Errorf("unmarshal search result: %w", err)}
	}

	records := make([]RawRecord, 0, len(result.Items))
	for _, repo := range result.Items {
		published, perr := time.Parse(time.RFC3339, repo.PushedAt)
		if perr != nil {
			published, perr = time.Parse(time.RFC3339, repo.CreatedAt)
			if perr != nil {
				published = time.Time{} // 交给 normalizer 判失败
			}
		}
		records = append(records, RawRecord{
			Source:      "github",
			ExternalID:  strconv.FormatInt(repo.ID, 10),
			Title:       repo.FullName,
			URL:         repo.HTMLURL,
			Author:      repo.Owner.Login,
			Score:       repo.Stars,
			PublishedAt: published.UTC(),
			Raw: map[string]any{
				"description": repo.Description,
				"language":    repo.Language,
				"forks":       repo.Forks,
				"pushed_at":   repo.PushedAt,
			},
		})
	}

	next := ""
	if len(result.Items) == ghPageSize && page < ghMaxPages {
		next = strconv.Itoa(page + 1)
	}
	return records, next, nil
}
