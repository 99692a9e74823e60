// Package guard prevents reprocessing of seen posts and throttles posting
// cadence. The seen set lives in redis when available so restarts do not
// recomment old posts; a local set covers redis outages.
package guard

import (
	"context"
	"log/slog"
	"math/rand"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// trackingParams are query keys that vary between sightings of the same post.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"igshid":       true,
	"mibextid":     true,
	"ref":          true,
	"refid":        true,
	"__cft__[0]":   true,
	"__tn__":       true,
}

type Limits struct {
	MaxPostsPerDay    int
	MinInterPostDelay time.Duration
	MaxInterPostDelay time.Duration
}

type Guard struct {
	rdb     *redis.Client
	seenKey string
	limits  Limits
	rng     *rand.Rand

	mu    sync.Mutex
	local map[string]bool
}

func New(rdb *redis.Client, seenKey string, limits Limits) *Guard {
	return &Guard{
		rdb:     rdb,
		seenKey: seenKey,
		limits:  limits,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		local:   make(map[string]bool),
	}
}

// NormalizeURL reduces a post URL to its identity form: lowercased host, no
// fragment, tracking query parameters removed, remaining query sorted.
func NormalizeURL(raw string) string {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" {
		return strings.TrimSuffix(strings.TrimSpace(raw), "/")
	}
	parsed.Host = strings.ToLower(parsed.Host)
	parsed.Fragment = ""

	q := parsed.Query()
	for key := range q {
		if trackingParams[key] || strings.HasPrefix(key, "utm_") || strings.HasPrefix(key, "__") {
			q.Del(key)
		}
	}
	keys := make([]string, 0, len(q))
	for k := range q {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var rebuilt url.Values = make(url.Values, len(q))
	for _, k := range keys {
		rebuilt[k] = q[k]
	}
	parsed.RawQuery = rebuilt.Encode()
	parsed.Path = strings.TrimSuffix(parsed.Path, "/")
	return parsed.String()
}

// Seen reports whether the normalized URL was already processed.
func (g *Guard) Seen(ctx context.Context, normalizedURL string) bool {
	if g.rdb != nil {
		seen, err := g.rdb.SIsMember(ctx, g.seenKey, normalizedURL).Result()
		if err == nil {
			return seen
		}
		slog.Warn("Seen-set lookup failed, using local set", "error", err)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.local[normalizedURL]
}

// MarkSeen records the URL in redis and the local set.
func (g *Guard) MarkSeen(ctx context.Context, normalizedURL string) {
	if g.rdb != nil {
		if err := g.rdb.SAdd(ctx, g.seenKey, normalizedURL).Err(); err != nil {
			slog.Warn("Seen-set insert failed", "url", normalizedURL, "error", err)
		}
	}
	g.mu.Lock()
	g.local[normalizedURL] = true
	g.mu.Unlock()
}

// AllowPost applies the daily cap and the minimum inter-post delay. The
// returned reason is empty when posting is allowed.
func (g *Guard) AllowPost(now time.Time, postedToday int, lastPostAt time.Time) (bool, string) {
	if g.limits.MaxPostsPerDay > 0 && postedToday >= g.limits.MaxPostsPerDay {
		return false, "daily post cap reached"
	}
	if !lastPostAt.IsZero() && now.Sub(lastPostAt) < g.limits.MinInterPostDelay {
		return false, "minimum inter-post delay not elapsed"
	}
	return true, ""
}

// NextDelay picks a randomized pause within the configured inter-post window.
func (g *Guard) NextDelay() time.Duration {
	min, max := g.limits.MinInterPostDelay, g.limits.MaxInterPostDelay
	if max <= min {
		return min
	}
	return min + time.Duration(g.rng.Int63n(int64(max-min)))
}
