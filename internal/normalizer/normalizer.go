package normalizer

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jspenaq/dataseed/internal/extractor"
)

// CanonicalItem 是写入存储层前的统一结构
type CanonicalItem struct {
	Source      string
	ExternalID  string
	IdentityKey string
	Title       string
	URL         string
	Author      string
	Score       int
	PublishedAt time.Time
	RawMetadata map[string]any
}

// NormalizationError 单条记录清洗失败；只跳过该条，绝不影响同批其它记录
type NormalizationError struct {
	Source     string
	ExternalID string
	Reason     string
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s/%s: %s", e.Source, e.ExternalID, e.Reason)
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// cleanText 去首尾空白并把连续空白折叠成单个空格
func cleanText(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// Normalize 把任意源的原始记录清洗成统一结构。
// 必填字段（external_id / title / published_at）缺失或不可解析时返回 NormalizationError。
func Normalize(rec extractor.RawRecord) (CanonicalItem, error) {
	fail := func(reason string) (CanonicalItem, error) {
		return CanonicalItem{}, &NormalizationError{
			Source:     rec.Source,
			ExternalID: rec.ExternalID,
			Reason:     reason,
		}
	}

	if rec.Source == "" {
		return fail("missing source")
	}
	if strings.TrimSpace(rec.ExternalID) == "" {
		return fail("missing external_id")
	}

	title := cleanText(rec.Title)
	if title == "" {
		return fail("missing title")
	}
	if rec.PublishedAt.IsZero() {
		return fail("missing published_at")
	}

	itemURL := normalizeURL(rec.URL)

	score := rec.Score
	if score < 0 {
		// 负分按 0 处理，所有源的 score 都解释为"越大越热"
		score = 0
	}

	return CanonicalItem{
		Source:      rec.Source,
		ExternalID:  strings.TrimSpace(rec.ExternalID),
		IdentityKey: IdentityKey(rec.Source, strings.TrimSpace(rec.ExternalID), itemURL),
		Title:       title,
		URL:         itemURL,
		Author:      cleanText(rec.Author),
		Score:       score,
		PublishedAt: rec.PublishedAt.UTC(),
		RawMetadata: rec.Raw,
	}, nil
}

// IdentityKey 跨源去重键：有可解析 URL 时取规范化 URL 的 sha1，
// 纯文本帖等无 URL 的情况退回 sha1("source:external_id")
func IdentityKey(source, externalID, rawURL string) string {
	if canonical := canonicalURL(rawURL); canonical != "" {
		return sha1Hex(canonical)
	}
	return sha1Hex(source + ":" + externalID)
}

// normalizeURL 校验并补全 URL；无效则返回空串（字段显式缺失，不存哨兵值）
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.String()
}

// canonicalURL 生成用于 identity_key 的规范形式：
// 小写 scheme/host、去默认端口、去 fragment、去跟踪参数、去末尾斜杠
func canonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	} else if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}
	u.Fragment = ""

	q := u.Query()
	for key := range q {
		if strings.HasPrefix(strings.ToLower(key), "utm_") {
			q.Del(key)
		}
	}
	u.RawQuery = q.Encode()

	u.Path = strings.TrimSuffix(u.Path, "/")
	return u.String()
}

func sha1Hex(s string) string {
	h := sha1.New()
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
