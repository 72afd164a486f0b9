package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	redditDefaultBaseURL = "https://www.reddit.com"
	redditPageSize       = 100
	redditClientTimeout  = 15 * time.Second
)

// RedditExtractor 抓取某个 subreddit 的 top 列表。
// Reddit 的分页是游标式：响应里带 after token，原样作为下一页 cursor。
type RedditExtractor struct {
	BaseURL   string
	Subreddit string

	client *http.Client
	once   sync.Once
}

func NewRedditExtractor(subreddit string) *RedditExtractor {
	return &RedditExtractor{Subreddit: subreddit}
}

func (r *RedditExtractor) Name() string { return "reddit" }

func (r *RedditExtractor) init() {
	r.once.Do(func() {
		if r.BaseURL == "" {
			r.BaseURL = redditDefaultBaseURL
		}
		if r.Subreddit == "" {
			r.Subreddit = "programming"
		}
		r.client = &http.Client{Timeout: redditClientTimeout}
	})
}

type redditListing struct {
	Data struct {
		After    string `json:"after"`
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Permalink   string  `json:"permalink"`
	Author      string  `json:"author"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
	IsSelf      bool    `json:"is_self"`
	Subreddit   string  `json:"subreddit"`
}

func (r *RedditExtractor) FetchPage(ctx context.Context, cursor string) ([]RawRecord, string, error) {
	r.init()

	q := url.Values{
		"limit": {fmt.Sprintf("%d", redditPageSize)},
		"t":     {"day"},
	}
	if cursor != "" {
		q.Set("after", cursor)
	}
	u := fmt.Sprintf("%s/r/%s/top.json?%s", r.BaseURL, r.Subreddit, q.Encode())

	body, err := getJSON(ctx, r.client, u, nil)
	if err != nil {
		return nil, "", err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return nil, "", &TransientError{Err: fmt.Errorf("unmarshal listing: %w", err)}
	}

	records := make([]RawRecord, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		p := child.Data
		postURL := p.URL
		if p.IsSelf && p.Permalink != "" {
			// 自贴（text post）优先用讨论页 permalink
			postURL = "https://reddit.com" + p.Permalink
		}
		records = append(records, RawRecord{
			Source:      "reddit",
			ExternalID:  p.ID,
			Title:       p.Title,
			URL:         postURL,
			Author:      p.Author,
			Score:       p.Score,
			PublishedAt: time.Unix(int64(p.CreatedUTC), 0).UTC(),
			Raw: map[string]any{
				"subreddit": p.Subreddit,
				"comments":  p.NumComments,
				"is_self":   p.IsSelf,
				"permalink": p.Permalink,
			},
		})
	}

	return records, listing.Data.After, nil
}
