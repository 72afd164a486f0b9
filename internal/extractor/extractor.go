package extractor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// RawRecord 各数据源抓取后的原始记录，未经清洗，不直接入库
type RawRecord struct {
	Source      string
	ExternalID  string
	Title       string
	URL         string
	Author      string
	Score       int
	PublishedAt time.Time
	Raw         map[string]any
}

// Extractor 抽象每一个数据源的分页抓取能力。
// FetchPage 必须是可重试的：失败的调用不改变任何外部状态，同一 cursor 可以原样重试。
// cursor 为空字符串表示第一页；返回的 next 为空表示已经翻到最后一页。
type Extractor interface {
	Name() string
	FetchPage(ctx context.Context, cursor string) (records []RawRecord, next string, err error)
}

// ---------- 错误分类 ----------
// 抓取错误分为三类，编排器据此决定重试 / 退避 / 终止：
//   TransientError  网络错误或 5xx，可按退避重试
//   RateLimitedError  429 或源特有的限流信号，交给退避控制器
//   PermanentError  鉴权失败等其它 4xx，立刻终止该源本轮采集

type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient fetch error: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

type RateLimitedError struct {
	StatusCode int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited (status %d)", e.StatusCode)
}

type PermanentError struct {
	StatusCode int
	Err        error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("permanent fetch error (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("permanent fetch error (status %d)", e.StatusCode)
}
func (e *PermanentError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func IsRateLimited(err error) bool {
	var re *RateLimitedError
	return errors.As(err, &re)
}

func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// classifyStatus 把 HTTP 状态码映射到错误分类；2xx 返回 nil
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests:
		return &RateLimitedError{StatusCode: code}
	case code >= 500:
		return &TransientError{Err: fmt.Errorf("status %d", code)}
	default:
		return &PermanentError{StatusCode: code}
	}
}

const maxResponseBytes = 2 << 20 // 2MB，防止超大响应拖垮进程

// getJSON 带超时与体积限制的 GET，返回响应体。网络错误归为 TransientError
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &PermanentError{Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "DataSeed/1.0 (https://github.com/jspenaq/dataseed)")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientError{Err: err}
	}
	defer resp.Body.Close()

	if cerr := classifyStatus(resp.StatusCode); cerr != nil {
		return nil, cerr
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &TransientError{Err: err}
	}
	return body, nil
}
