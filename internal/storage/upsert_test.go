package storage

import (
	"strings"
	"testing"
	"time"

	"github.com/jspenaq/dataseed/internal/normalizer"
)

func canonicalFixture() normalizer.CanonicalItem {
	return normalizer.CanonicalItem{
		Source:      "hackernews",
		ExternalID:  "100",
		IdentityKey: "deadbeef",
		Title:       "Interesting Post",
		URL:         "https://example.com/post",
		Author:      "alice",
		Score:       42,
		PublishedAt: time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
	}
}

func existingFixture() Item {
	return Item{
		Source:      "hackernews",
		ExternalID:  "100",
		IdentityKey: "deadbeef",
		Title:       "Interesting Post",
		URL:         "https://example.com/post",
		Author:      "alice",
		Score:       42,
		PublishedAt: time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC),
	}
}

func TestDiffItemUnchangedReturnsEmpty(t *testing.T) {
	existing := existingFixture()

	changes := diffItem(&existing, canonicalFixture())
	// 空 map 意味着零写入：重复采集不会顶高 updated_at
	if len(changes) != 0 {
		t.Fatalf("identical rows should produce no changes, got %v", changes)
	}
}

func TestDiffItemDetectsScoreChange(t *testing.T) {
	existing := existingFixture()
	c := canonicalFixture()
	c.Score = 99

	changes := diffItem(&existing, c)
	if len(changes) != 1 {
		t.Fatalf("changes = %v, want only score", changes)
	}
	if got, ok := changes["score"]; !ok || got != 99 {
		t.Fatalf("changes[score] = %v, want 99", got)
	}
}

func TestDiffItemDetectsTitleAndURLChange(t *testing.T) {
	existing := existingFixture()
	c := canonicalFixture()
	c.Title = "Interesting Post (updated)"
	c.URL = "https://example.com/post-v2"

	changes := diffItem(&existing, c)
	if changes["title"] != "Interesting Post (updated)" {
		t.Fatalf("changes[title] = %v", changes["title"])
	}
	if changes["url"] != "https://example.com/post-v2" {
		t.Fatalf("changes[url] = %v", changes["url"])
	}
	if _, ok := changes["score"]; ok {
		t.Fatalf("score should not change: %v", changes)
	}
}

func TestDiffItemComparesTruncatedTitle(t *testing.T) {
	long := strings.Repeat("标", 600)
	existing := existingFixture()
	existing.Title = truncateRunes(long, 512)

	c := canonicalFixture()
	c.Title = long

	// 入库前会截断到 512 rune，比较必须用同一口径，否则每轮都误判为变更
	if changes := diffItem(&existing, c); len(changes) != 0 {
		t.Fatalf("truncation-equal titles should be unchanged, got %v", changes)
	}
}

func TestItemFromCanonicalSanitizesText(t *testing.T) {
	c := canonicalFixture()
	c.Title = "bad \xff bytes"
	c.Author = strings.Repeat("a", 300)

	row := itemFromCanonical(c)
	if !strings.Contains(row.Title, "�") {
		t.Fatalf("invalid UTF-8 should be replaced, got %q", row.Title)
	}
	if got := len([]rune(row.Author)); got != 255 {
		t.Fatalf("author length = %d, want 255", got)
	}
	if row.Source != c.Source || row.ExternalID != c.ExternalID || row.IdentityKey != c.IdentityKey {
		t.Fatalf("natural key fields must carry through unmodified")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("héllo", 3); got != "hél" {
		t.Fatalf("truncateRunes = %q, want %q", got, "hél")
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Fatalf("truncateRunes should keep short strings, got %q", got)
	}
	if got := truncateRunes("x", 0); got != "" {
		t.Fatalf("limit 0 should yield empty string, got %q", got)
	}
}

func TestUpsertOutcomeString(t *testing.T) {
	cases := map[UpsertOutcome]string{
		Inserted:          "inserted",
		Updated:           "updated",
		Unchanged:         "unchanged",
		UpsertOutcome(99): "unknown",
	}
	for o, want := range cases {
		if got := o.String(); got != want {
			t.Fatalf("%d.String() = %q, want %q", o, got, want)
		}
	}
}
