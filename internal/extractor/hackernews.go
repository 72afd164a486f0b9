package extractor

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"
)

const (
	hnDefaultBaseURL  = "https://hacker-news.firebaseio.com/v0"
	hnPageSize        = 30
	hnMaxItems        = 120
	hnConcurrency     = 5
	hnClientTimeout   = 10 * time.Second
	hnItemTimeout     = 5 * time.Second
	hnDiscussionURLFm = "https://news.ycombinator.com/item?id=%d"
)

// HackerNewsExtractor 通过官方 Firebase API 抓取 Hacker News 热门故事。
// topstories 返回的是完整 id 列表，这里用十进制偏移量做 cursor 翻页；
// 每页重新拉取 id 列表，保证同一 cursor 重试时不依赖任何本地状态。
type HackerNewsExtractor struct {
	BaseURL string

	client     *http.Client
	itemClient *http.Client
	once       sync.Once
}

func NewHackerNewsExtractor() *HackerNewsExtractor {
	return &HackerNewsExtractor{}
}

func (h *HackerNewsExtractor) Name() string { return "hackernews" }

func (h *HackerNewsExtractor) init() {
	h.once.Do(func() {
		if h.BaseURL == "" {
			h.BaseURL = hnDefaultBaseURL
		}
		h.client = &http.Client{Timeout: hnClientTimeout}
		h.itemClient = &http.Client{Timeout: hnItemTimeout}
	})
}

type hnItem struct {
	ID          int    `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Score       int    `json:"score"`
	Descendants int    `json:"descendants"`
	By          string `json:"by"`
	Time        int64  `json:"time"`
	Type        string `json:"type"`
	Deleted     bool   `json:"deleted"`
	Dead        bool   `json:"dead"`
}

func (h *HackerNewsExtractor) FetchPage(ctx context.Context, cursor string) ([]RawRecord, string, error) {
	h.init()

	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, "", &PermanentError{Err: fmt.Errorf("bad cursor %q", cursor)}
		}
		offset = n
	}

	body, err := getJSON(ctx, h.client, h.BaseURL+"/topstories.json", nil)
	if err != nil {
		return nil, "", err
	}

	var ids []int
	if err := json.Unmarshal(body, &ids); err != nil {
		return nil, "", &TransientError{Err: fmt.Errorf("unmarshal top stories: %w", err)}
	}
	if len(ids) > hnMaxItems {
		ids = ids[:hnMaxItems]
	}
	if offset >= len(ids) {
		return nil, "", nil // 已翻完
	}

	end := offset + hnPageSize
	if end > len(ids) {
		end = len(ids)
	}
	page := ids[offset:end]

	type indexed struct {
		idx  int
		item hnItem
	}

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		sem    = make(chan struct{}, hnConcurrency)
		items  = make([]indexed, 0, len(page))
		failed = make(map[int]string)
	)

	for i, id := range page {
		wg.Add(1)
		sem <- struct{}{}
		go func(idx, id int) {
			defer wg.Done()
			defer func() { <-sem }()

			it, err := h.fetchItem(ctx, id)
			if err != nil {
				log.Printf("hackernews: fetch item %d: %v", id, err)
				mu.Lock()
				failed[id] = err.Error()
				mu.Unlock()
				return
			}
			if it.Deleted || it.Dead || it.Type != "story" {
				return
			}

			mu.Lock()
			items = append(items, indexed{idx: idx, item: it})
			mu.Unlock()
		}(i, id)
	}
	wg.Wait()

	// 整页详情全军覆没是系统性故障（网络 / 上游抖动），按瞬时错误交给重试
	if len(page) > 0 && len(failed) == len(page) {
		return nil, "", &TransientError{Err: fmt.Errorf("all %d item fetches failed", len(page))}
	}
	if len(failed) > 0 {
		log.Printf("hackernews: %d/%d item fetches failed on this page", len(failed), len(page))
	}

	// 并发拉详情后按榜单原始顺序还原，保证同一页内条目顺序稳定
	sort.Slice(items, func(a, b int) bool { return items[a].idx < items[b].idx })

	records := make([]RawRecord, 0, len(items))
	for _, ix := range items {
		it := ix.item
		itemURL := it.URL
		if itemURL == "" {
			// 纯文本帖（Ask HN 等）使用讨论页地址
			itemURL = fmt.Sprintf(hnDiscussionURLFm, it.ID)
		}
		records = append(records, RawRecord{
			Source:      "hackernews",
			ExternalID:  strconv.Itoa(it.ID),
			Title:       it.Title,
			URL:         itemURL,
			Author:      it.By,
			Score:       it.Score,
			PublishedAt: time.Unix(it.Time, 0).UTC(),
			Raw: map[string]any{
				"hn_id":    it.ID,
				"comments": it.Descendants,
				"rank":     offset + ix.idx + 1,
				"type":     it.Type,
			},
		})
	}

	// 零星的详情失败以空记录带出去：归一化必然判失败，
	// 损失会计入运行记录的 items_failed，而不是悄悄消失
	for _, id := range page {
		if msg, ok := failed[id]; ok {
			records = append(records, RawRecord{
				Source:     "hackernews",
				ExternalID: strconv.Itoa(id),
				Raw:        map[string]any{"fetch_error": msg},
			})
		}
	}

	next := ""
	if end < len(ids) {
		next = strconv.Itoa(end)
	}
	return records, next, nil
}

func (h *HackerNewsExtractor) fetchItem(ctx context.Context, id int) (hnItem, error) {
	body, err := getJSON(ctx, h.itemClient, fmt.Sprintf("%s/item/%d.json", h.BaseURL, id), nil)
	if err != nil {
		return hnItem{}, err
	}
	var it hnItem
	if err := json.Unmarshal(body, &it); err != nil {
		return hnItem{}, fmt.Errorf("unmarshal item %d: %w", id, err)
	}
	return it, nil
}
