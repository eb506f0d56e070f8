// Package frontier implements the Redis-backed crawl queue: a FIFO list of
// pending URLs plus seen/pending sets and a per-run scope predicate.
package frontier

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/use-agent/autodriver/models"
	"github.com/use-agent/autodriver/scope"
)

// Keys is the RedisKeys mapping derived from autoid, per spec §3.
type Keys struct {
	AutoID string
}

func (k Keys) Info() string   { return "a:" + k.AutoID + ":info" }
func (k Keys) Queue() string  { return "a:" + k.AutoID + ":q" }
func (k Keys) Pending() string { return "a:" + k.AutoID + ":qp" }
func (k Keys) Seen() string   { return "a:" + k.AutoID + ":seen" }
func (k Keys) Scope() string  { return "a:" + k.AutoID + ":scope" }
func (k Keys) Done() string   { return "a:" + k.AutoID + ":br:done" }

// Frontier is owned by exactly one Tab. Redis supplies ordering across
// Frontier instances sharing the same autoid.
type Frontier struct {
	rdb   *redis.Client
	keys  Keys
	scope *scope.Scope

	crawlDepth int
	// pendingURL is the URL this client last handed out via NextURL, cleared
	// lazily on the *next* call. This "one step behind" bookkeeping window
	// is intentional (see spec §9, source oddity (b)).
	pendingURL string
	curDepth   int
}

// New constructs a Frontier for the given autoid.
func New(rdb *redis.Client, autoID string) *Frontier {
	keys := Keys{AutoID: autoID}
	return &Frontier{
		rdb:   rdb,
		keys:  keys,
		scope: scope.New(rdb, autoID),
	}
}

// Init reads crawl_depth from the info hash (default 0) and initializes scope.
func (f *Frontier) Init(ctx context.Context) error {
	depthStr, err := f.rdb.HGet(ctx, f.keys.Info(), "crawl_depth").Result()
	if err != nil && err != redis.Nil {
		return err
	}
	f.crawlDepth = 0
	if depthStr != "" {
		if d, err := strconv.Atoi(depthStr); err == nil {
			f.crawlDepth = d
		}
	}
	return f.scope.Init(ctx)
}

// CrawlDepth returns the max depth read at Init. Operators mutate it only
// between runs; this Frontier never re-reads it.
func (f *Frontier) CrawlDepth() int { return f.crawlDepth }

// Exhausted reports whether the queue length is zero.
func (f *Frontier) Exhausted(ctx context.Context) (bool, error) {
	n, err := f.QLen(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}

// NextURL atomically (from this client's perspective) clears the previous
// pending URL, pops the head of the queue, records it as pending, and
// returns it. Returns "" when the queue is empty.
func (f *Frontier) NextURL(ctx context.Context) (string, error) {
	if f.pendingURL != "" {
		if err := f.rdb.SRem(ctx, f.keys.Pending(), f.pendingURL).Err(); err != nil {
			slog.Warn("frontier: failed to clear previous pending url", "url", f.pendingURL, "error", err)
		}
		f.pendingURL = ""
	}

	raw, err := f.rdb.LPop(ctx, f.keys.Queue()).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", err
	}

	var entry models.FrontierEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		slog.Warn("frontier: skipping malformed queue entry", "raw", raw, "error", err)
		return "", nil
	}

	if err := f.rdb.SAdd(ctx, f.keys.Pending(), entry.URL).Err(); err != nil {
		return "", err
	}
	f.pendingURL = entry.URL
	f.curDepth = entry.Depth
	return entry.URL, nil
}

// CurrentDepth returns the depth of the URL most recently returned by NextURL.
func (f *Frontier) CurrentDepth() int { return f.curDepth }

// Add enqueues url at depth if it is in-scope and not already seen.
func (f *Frontier) Add(ctx context.Context, url string, depth int) error {
	if !f.scope.In(url) {
		return nil
	}
	added, err := f.rdb.SAdd(ctx, f.keys.Seen(), url).Result()
	if err != nil {
		return err
	}
	if added == 0 {
		// already seen
		return nil
	}
	entry := models.FrontierEntry{URL: url, Depth: depth}
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return f.rdb.RPush(ctx, f.keys.Queue(), raw).Err()
}

// AddAll enqueues urls at currentDepth+1, unless that exceeds crawl_depth,
// in which case it is a no-op.
func (f *Frontier) AddAll(ctx context.Context, urls []string) error {
	nextDepth := f.curDepth + 1
	if nextDepth > f.crawlDepth {
		return nil
	}
	for _, u := range urls {
		if err := f.Add(ctx, u, nextDepth); err != nil {
			slog.Warn("frontier: add failed during add_all", "url", u, "error", err)
		}
	}
	return nil
}

// WaitForPopulatedQ polls Exhausted every interval until it is false.
func (f *Frontier) WaitForPopulatedQ(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		exhausted, err := f.Exhausted(ctx)
		if err != nil {
			return err
		}
		if !exhausted {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// QLen returns the current queue length.
func (f *Frontier) QLen(ctx context.Context) (int64, error) {
	return f.rdb.LLen(ctx, f.keys.Queue()).Result()
}

// IsSeen reports whether url is a member of the seen set.
func (f *Frontier) IsSeen(ctx context.Context, url string) (bool, error) {
	return f.rdb.SIsMember(ctx, f.keys.Seen(), url).Result()
}
