package extractor

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const (
	lobstersURL      = "https://lobste.rs/hottest"
	lobstersMaxItems = 50
	lobstersTimeout  = 10 * time.Second
)

// LobstersExtractor 抓取 lobste.rs 首页热榜。
// 固定 top-N 列表，没有分页，next cursor 恒为空。
// 页面结构可能调整，此处基于当前的 DOM 结构做尽力而为的解析。
type LobstersExtractor struct {
	URL string
}

func NewLobstersExtractor() *LobstersExtractor {
	return &LobstersExtractor{}
}

func (l *LobstersExtractor) Name() string { return "lobsters" }

func (l *LobstersExtractor) FetchPage(ctx context.Context, cursor string) ([]RawRecord, string, error) {
	target := l.URL
	if target == "" {
		target = lobstersURL
	}

	// colly 的 Visit 是同步的，取消只在发起请求前生效；
	// 请求本身由 SetRequestTimeout 兜底
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}

	c := colly.NewCollector(
		colly.UserAgent("DataSeed/1.0 (https://github.com/jspenaq/dataseed)"),
	)
	c.SetRequestTimeout(lobstersTimeout)

	records := make([]RawRecord, 0, lobstersMaxItems)
	now := time.Now().UTC()
	var fetchStatus int

	c.OnError(func(r *colly.Response, _ error) {
		fetchStatus = r.StatusCode
	})

	c.OnHTML("li.story", func(e *colly.HTMLElement) {
		if len(records) >= lobstersMaxItems {
			return
		}

		shortID := strings.TrimSpace(e.Attr("data-shortid"))
		titleSel := e.DOM.Find(".link a.u-url").First()
		title := strings.TrimSpace(titleSel.Text())
		href, _ := titleSel.Attr("href")
		href = strings.TrimSpace(href)
		if title == "" || shortID == "" {
			return
		}
		if strings.HasPrefix(href, "/") {
			href = "https://lobste.rs" + href
		}

		score := parseVotes(strings.TrimSpace(e.DOM.Find(".voters .score").First().Text()))
		author := strings.TrimSpace(e.DOM.Find("a.u-author").First().Text())
		published := parseLobstersTime(e.DOM, now)

		tags := make([]string, 0, 4)
		e.DOM.Find("a.tag").Each(func(_ int, s *goquery.Selection) {
			if t := strings.TrimSpace(s.Text()); t != "" {
				tags = append(tags, t)
			}
		})

		records = append(records, RawRecord{
			Source:      "lobsters",
			ExternalID:  shortID,
			Title:       title,
			URL:         href,
			Author:      author,
			Score:       score,
			PublishedAt: published,
			Raw: map[string]any{
				"tags":     tags,
				"comments": parseVotes(strings.TrimSpace(e.DOM.Find(".comments_label a").First().Text())),
				"rank":     len(records) + 1,
			},
		})
	})

	if err := c.Visit(target); err != nil {
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		if fetchStatus != 0 {
			return nil, "", classifyStatus(fetchStatus)
		}
		return nil, "", &TransientError{Err: err}
	}

	return records, "", nil
}

// parseLobstersTime 从条目 byline 的 <span title="..."> 取发布时间，取不到则退回 now
func parseLobstersTime(s *goquery.Selection, now time.Time) time.Time {
	title, ok := s.Find("span[title]").First().Attr("title")
	if !ok {
		return now
	}
	for _, layout := range []string{"2006-01-02 15:04:05 -0700", time.RFC3339} {
		if t, err := time.Parse(layout, strings.TrimSpace(title)); err == nil {
			return t.UTC()
		}
	}
	return now
}

// parseVotes 取字符串开头的数字部分（"12 comments" → 12）
func parseVotes(s string) int {
	end := 0
	for ; end < len(s); end++ {
		if s[end] < '0' || s[end] > '9' {
			break
		}
	}
	if end == 0 {
		return 0
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}
