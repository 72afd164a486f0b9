package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// 游标编码 (published_at, identity_key)：排序键随行走，
// 并发插入不会让翻页跳行或重复（offset 分页做不到这一点）
type cursorPayload struct {
	P time.Time `json:"p"`
	K string    `json:"k"`
}

// EncodeCursor 把最后一行的排序键编码成不透明游标
func EncodeCursor(publishedAt time.Time, identityKey string) string {
	payload := cursorPayload{P: publishedAt.UTC(), K: identityKey}
	bs, _ := json.Marshal(payload)
	return base64.StdEncoding.EncodeToString(bs)
}

// DecodeCursor 解析游标；格式非法时返回错误
func DecodeCursor(cursor string) (time.Time, string, error) {
	bs, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor encoding: %w", err)
	}
	var payload cursorPayload
	if err := json.Unmarshal(bs, &payload); err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor payload: %w", err)
	}
	if payload.P.IsZero() || payload.K == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor: missing fields")
	}
	return payload.P, payload.K, nil
}
