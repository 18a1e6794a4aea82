// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package query is the fetch and cache orchestrator behind every dashboard
// read.
//
// Each read is identified by a Key. The Client keeps one entry per key with
// the last fetched data, serves it while it is younger than the read's
// stale time, and fetches again once it is stale or has been invalidated.
// Concurrent readers of one key share a single in-flight fetch. Entries with
// open observers can poll on an interval; entries nobody observes are
// dropped after the GC time.
//
// Usage:
//
//	client := query.New(query.Config{StaleTime: 5 * time.Minute, Retry: 1})
//	defer client.Close()
//
//	key, _ := query.BuildKey("leads", rng.Params())
//	res, err := client.Fetch(ctx, key, fetchLeads, query.Options{})
package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/metrics"
)

// ErrClientClosed is returned by Fetch and Refetch after Close.
var ErrClientClosed = errors.New("query client is closed")

// Fetcher produces the data for one key. It must honor ctx cancellation.
type Fetcher func(ctx context.Context) (any, error)

// Config holds client-wide defaults. Zero durations and sizes take the
// documented default.
type Config struct {
	// StaleTime applies to reads that do not set their own. Default 5m.
	StaleTime time.Duration

	// GCTime is how long an unobserved entry is kept. Default 10m.
	GCTime time.Duration

	// Retry is the number of automatic retries after a failed fetch. Zero
	// disables retries; negative means the default of 1.
	Retry int

	// RetryDelay is the initial backoff between retries. Default 1s.
	RetryDelay time.Duration

	// MaxInactive caps the number of unobserved entries retained. Default 512.
	MaxInactive int
}

// Options tunes one read. Zero values inherit the client defaults.
type Options struct {
	// StaleTime is the age after which cached data is refetched.
	StaleTime time.Duration

	// PollInterval refetches on this interval while an observer is open.
	// Zero disables polling.
	PollInterval time.Duration

	// Disabled suppresses automatic fetching. Cached data is still served
	// and Refetch still works.
	Disabled bool

	// Retry overrides the retry count. Nil inherits the client default.
	Retry *int
}

// Retries returns a pointer for Options.Retry.
func Retries(n int) *int { return &n }

// ClientOption configures New.
type ClientOption func(*Client)

// WithClock replaces time.Now for staleness decisions.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) { c.clock = now }
}

// Client owns every cache entry. Create one per process.
type Client struct {
	cfg   Config
	clock func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	group    singleflight.Group
	inactive *expirable.LRU[Key, uint64]

	mu        sync.Mutex
	entries   map[Key]*entry
	closed    bool
	flightSeq uint64

	stats counters
}

type counters struct {
	hits          atomic.Uint64
	misses        atomic.Uint64
	fetches       atomic.Uint64
	errors        atomic.Uint64
	dedupJoins    atomic.Uint64
	discarded     atomic.Uint64
	invalidations atomic.Uint64
	removals      atomic.Uint64
}

// New creates a client. Call Close at shutdown to stop pollers and cancel
// in-flight fetches.
func New(cfg Config, opts ...ClientOption) *Client {
	if cfg.StaleTime <= 0 {
		cfg.StaleTime = 5 * time.Minute
	}
	if cfg.GCTime <= 0 {
		cfg.GCTime = 10 * time.Minute
	}
	if cfg.Retry < 0 {
		cfg.Retry = 1
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.MaxInactive <= 0 {
		cfg.MaxInactive = 512
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:     cfg,
		clock:   time.Now,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[Key]*entry),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.inactive = expirable.NewLRU[Key, uint64](cfg.MaxInactive, c.onInactiveEvicted, cfg.GCTime)
	return c
}

// Close stops all pollers and cancels in-flight fetches. Observers stay
// readable but no longer fetch.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	for _, e := range c.entries {
		e.stopPoll()
	}
	c.mu.Unlock()

	c.cancel()
	logging.Debug().Msg("Query client closed")
}

// Fetch reads key once. Fresh cached data is returned immediately;
// otherwise Fetch starts or joins a fetch and waits for it. The returned
// Result reflects the entry after the fetch settled.
func (c *Client) Fetch(ctx context.Context, key Key, fetcher Fetcher, opts Options) (Result, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrClientClosed
	}
	e := c.entryLocked(key)
	staleTime := c.staleTime(opts)
	now := c.clock()

	if opts.Disabled || !e.isStale(now, staleTime) {
		if !opts.Disabled {
			c.recordHit(key)
		}
		res := e.snapshot(now, staleTime)
		c.mu.Unlock()
		return res, res.Err
	}

	c.recordMiss(key)
	ch := c.startLocked(ctx, e, fetcher, opts, false)
	c.mu.Unlock()

	select {
	case r := <-ch:
		return c.settled(key, staleTime, r.Err)
	case <-ctx.Done():
		return c.Peek(key, opts), ctx.Err()
	}
}

// Peek returns the cached state of key without fetching.
func (c *Client) Peek(key Key, opts Options) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{Status: StatusPending}
	}
	return e.snapshot(c.clock(), c.staleTime(opts))
}

// Observe opens an observer on key. If the cached data is missing or stale
// and the read is enabled, a fetch starts in the background. Close the
// observer when it is no longer needed.
func (c *Client) Observe(key Key, fetcher Fetcher, opts Options) *Observer {
	o := &Observer{client: c, key: key, fetcher: fetcher, opts: opts}

	c.mu.Lock()
	if c.closed {
		o.closed = true
		c.mu.Unlock()
		return o
	}
	e := c.entryLocked(key)
	wasInactive := len(e.observers) == 0
	e.observers = append(e.observers, o)
	if wasInactive {
		// Bump the epoch first so the eviction callback from Remove is a no-op.
		e.inactiveEpoch++
		c.inactive.Remove(key)
	}
	c.restartPollLocked(e)

	if !opts.Disabled {
		if e.isStale(c.clock(), c.staleTime(opts)) {
			c.recordMiss(key)
			c.startLocked(c.ctx, e, fetcher, opts, false)
		} else {
			c.recordHit(key)
		}
	}
	c.mu.Unlock()

	metrics.QueryObservers.Inc()
	return o
}

// Invalidate marks every entry of the named operations stale and refetches
// those that have open observers. With no operations, every entry is
// invalidated. It returns the number of entries marked.
func (c *Client) Invalidate(operations ...string) int {
	match := make(map[string]bool, len(operations))
	for _, op := range operations {
		match[op] = true
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0
	}
	var keys []Key
	for key := range c.entries {
		if len(match) == 0 || match[key.Operation] {
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	for _, key := range keys {
		c.InvalidateKey(key)
	}
	return len(keys)
}

// InvalidateKey marks one entry stale, refetching it if observed. It
// reports whether the entry existed.
func (c *Client) InvalidateKey(key Key) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || c.closed {
		c.mu.Unlock()
		return false
	}
	e.invalidated = true
	e.invalidatedGen = e.gen
	e.invalidatedAt = c.clock()

	if o := e.leadObserver(); o != nil {
		c.startLocked(c.ctx, e, o.fetcher, o.opts, true)
	}
	c.mu.Unlock()

	c.stats.invalidations.Add(1)
	metrics.QueryInvalidations.WithLabelValues(key.Operation).Inc()
	logging.Debug().Str("key", key.String()).Msg("Cache entry invalidated")
	c.notify(key)
	return true
}

// Remove drops an unobserved entry. Entries with open observers are kept
// and Remove reports false.
func (c *Client) Remove(key Key) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok || len(e.observers) > 0 {
		c.mu.Unlock()
		return false
	}
	c.deleteLocked(key, e)
	c.mu.Unlock()
	return true
}

// entryLocked returns the entry for key, creating an unobserved one.
func (c *Client) entryLocked(key Key) *entry {
	if e, ok := c.entries[key]; ok {
		return e
	}
	e := &entry{key: key, status: StatusPending}
	c.entries[key] = e
	metrics.QueryEntries.Set(float64(len(c.entries)))

	// Unobserved until an observer attaches.
	c.inactive.Add(key, e.inactiveEpoch)
	return e
}

func (c *Client) deleteLocked(key Key, e *entry) {
	e.stopPoll()
	delete(c.entries, key)
	c.inactive.Remove(key)
	c.stats.removals.Add(1)
	metrics.QueryEntries.Set(float64(len(c.entries)))
}

// onInactiveEvicted runs under the LRU's lock, which may be taken while
// c.mu is held, so the collection itself happens on another goroutine.
func (c *Client) onInactiveEvicted(key Key, epoch uint64) {
	go c.collect(key, epoch)
}

func (c *Client) collect(key Key, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || len(e.observers) > 0 || e.inactiveEpoch != epoch {
		return
	}
	if e.fetching > 0 {
		// Give the in-flight fetch another GC period to land.
		c.inactive.Add(key, epoch)
		return
	}
	c.deleteLocked(key, e)
	metrics.QueryEvictions.Inc()
	logging.Debug().Str("key", key.String()).Msg("Inactive cache entry removed")
}

func (c *Client) staleTime(opts Options) time.Duration {
	if opts.StaleTime > 0 {
		return opts.StaleTime
	}
	return c.cfg.StaleTime
}

func (c *Client) retries(opts Options) int {
	if opts.Retry != nil && *opts.Retry >= 0 {
		return *opts.Retry
	}
	return c.cfg.Retry
}

// settled returns the entry snapshot after a fetch completes.
func (c *Client) settled(key Key, staleTime time.Duration, fetchErr error) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return Result{Status: StatusPending, Err: fetchErr}, fetchErr
	}
	return e.snapshot(c.clock(), staleTime), fetchErr
}

// notify delivers the current state to every subscriber of every observer
// of key. Callbacks run outside the client lock.
func (c *Client) notify(key Key) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return
	}
	now := c.clock()
	type delivery struct {
		res Result
		fns []func(Result)
	}
	var out []delivery
	for _, o := range e.observers {
		fns := o.callbacks()
		if len(fns) == 0 {
			continue
		}
		out = append(out, delivery{res: e.snapshot(now, c.staleTime(o.opts)), fns: fns})
	}
	c.mu.Unlock()

	for _, d := range out {
		for _, fn := range d.fns {
			fn(d.res)
		}
	}
}

func (c *Client) recordHit(key Key) {
	c.stats.hits.Add(1)
	metrics.QueryCacheHits.WithLabelValues(key.Operation).Inc()
}

func (c *Client) recordMiss(key Key) {
	c.stats.misses.Add(1)
	metrics.QueryCacheMisses.WithLabelValues(key.Operation).Inc()
}
