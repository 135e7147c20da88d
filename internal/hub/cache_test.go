package hub

import (
	"path/filepath"
	"testing"
	"time"
)

func testCache(t *testing.T, maxAge time.Duration) *Cache {
	t.Helper()
	c, err := OpenCacheAt(filepath.Join(t.TempDir(), "cache.db"), maxAge)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCachePutGet(t *testing.T) {
	c := testCache(t, 24*time.Hour)
	want := Skill{
		Slug:        "slack-workflows",
		Name:        "Slack Workflows",
		Description: "Automate Slack",
		Version:     "1.4.0",
		Verified:    true,
		Installs:    3200,
		Rating:      4.7,
		Tags:        []string{"slack", "automation"},
		PublishedAt: time.Unix(1700000000, 0).UTC(),
	}
	if err := c.Put(want); err != nil {
		t.Fatal(err)
	}
	got, fresh, err := c.Get("slack-workflows")
	if err != nil {
		t.Fatal(err)
	}
	if !fresh {
		t.Fatal("record written just now must be fresh")
	}
	if got.Name != want.Name || got.Version != want.Version || !got.Verified ||
		got.Installs != want.Installs || got.Rating != want.Rating {
		t.Fatalf("round trip lost fields: %#v", got)
	}
	if len(got.Tags) != 2 || !got.PublishedAt.Equal(want.PublishedAt) {
		t.Fatalf("tags/publishedAt lost: %#v", got)
	}
}

func TestCacheMiss(t *testing.T) {
	c := testCache(t, 24*time.Hour)
	got, fresh, err := c.Get("absent")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil || fresh {
		t.Fatalf("miss must return nil, got %#v fresh=%v", got, fresh)
	}
}

func TestCacheStaleRecordsNotFresh(t *testing.T) {
	c := testCache(t, time.Hour)
	if err := c.putAt(time.Now().Add(-2*time.Hour), Skill{Slug: "old-skill", Name: "Old"}); err != nil {
		t.Fatal(err)
	}
	got, fresh, err := c.Get("old-skill")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("stale records must still be readable")
	}
	if fresh {
		t.Fatal("record past the freshness window must not be fresh")
	}
}

func TestCacheSearchSkipsStale(t *testing.T) {
	c := testCache(t, time.Hour)
	if err := c.Put(Skill{Slug: "slack-workflows", Description: "Automate Slack", Installs: 100}); err != nil {
		t.Fatal(err)
	}
	if err := c.putAt(time.Now().Add(-2*time.Hour), Skill{Slug: "slack-old", Description: "slack legacy"}); err != nil {
		t.Fatal(err)
	}
	skills, err := c.Search("slack", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(skills) != 1 || skills[0].Slug != "slack-workflows" {
		t.Fatalf("stale record leaked into search: %#v", skills)
	}
}

func TestCacheSearchOrdersByInstalls(t *testing.T) {
	c := testCache(t, 24*time.Hour)
	err := c.Put(
		Skill{Slug: "minor", Description: "kafka helper", Installs: 10},
		Skill{Slug: "major", Description: "kafka bridge", Installs: 9000},
	)
	if err != nil {
		t.Fatal(err)
	}
	skills, err := c.Search("kafka", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(skills) != 2 || skills[0].Slug != "major" {
		t.Fatalf("expected install-count ordering, got %#v", skills)
	}
}

func TestCacheUpsert(t *testing.T) {
	c := testCache(t, 24*time.Hour)
	if err := c.Put(Skill{Slug: "s", Version: "1.0.0"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Put(Skill{Slug: "s", Version: "2.0.0"}); err != nil {
		t.Fatal(err)
	}
	got, _, err := c.Get("s")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != "2.0.0" {
		t.Fatalf("upsert did not replace: %#v", got)
	}
	count, _, err := c.Stats()
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestCachePrune(t *testing.T) {
	c := testCache(t, time.Hour)
	if err := c.Put(Skill{Slug: "fresh"}); err != nil {
		t.Fatal(err)
	}
	if err := c.putAt(time.Now().Add(-3*time.Hour), Skill{Slug: "stale"}); err != nil {
		t.Fatal(err)
	}
	removed, err := c.Prune()
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("pruned %d records, want 1", removed)
	}
	if got, _, _ := c.Get("stale"); got != nil {
		t.Fatal("stale record survived prune")
	}
}
