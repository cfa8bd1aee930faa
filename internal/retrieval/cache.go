package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 30 * time.Second

// Cache is a short-lived response cache for repeated identical queries.
// Keys include the principal, so one caller's cached results are never
// served to another. Failures are logged and treated as misses.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, req SearchRequest) (*SearchResponse, bool) {
	data, err := c.client.Get(ctx, cacheKey(req)).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("search cache read failed", "error", err)
		}
		return nil, false
	}
	var resp SearchResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		slog.Warn("search cache entry corrupt, discarding", "error", err)
		return nil, false
	}
	return &resp, true
}

func (c *Cache) Set(ctx context.Context, req SearchRequest, resp *SearchResponse) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, cacheKey(req), data, c.ttl).Err(); err != nil {
		slog.Warn("search cache write failed", "error", err)
	}
}

func cacheKey(req SearchRequest) string {
	groups := append([]string(nil), req.Principal.Groups...)
	sort.Strings(groups)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%d|", req.Principal.ID, strings.Join(groups, ","), req.Query, req.Limit)
	if f, err := json.Marshal(req.Filters); err == nil {
		b.Write(f)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return "beacon:search:" + hex.EncodeToString(sum[:])
}
