package application

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// analyticsCache keeps recently computed snapshots so dashboards polling the
// same query do not rescan every table. Entries expire after a short TTL.
type analyticsCache struct {
	lru *expirable.LRU[string, AnalyticsSnapshot]
}

func newAnalyticsCache(ttl time.Duration, maxEntries int) *analyticsCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	return &analyticsCache{lru: expirable.NewLRU[string, AnalyticsSnapshot](maxEntries, nil, ttl)}
}

func (c *analyticsCache) Get(key string) (AnalyticsSnapshot, bool) {
	if c == nil {
		return AnalyticsSnapshot{}, false
	}
	return c.lru.Get(key)
}

func (c *analyticsCache) Store(key string, snapshot AnalyticsSnapshot) {
	if c == nil {
		return
	}
	c.lru.Add(key, snapshot)
}

func (c *analyticsCache) Invalidate() {
	if c == nil {
		return
	}
	c.lru.Purge()
}

func (c *analyticsCache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

func buildAnalyticsCacheKey(query AnalyticsQuery) string {
	parts := []string{string(query.Scope), query.SubjectID, formatBound(query.From), formatBound(query.To)}
	return strings.Join(parts, "|")
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
