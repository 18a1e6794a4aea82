// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package query

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// countingFetcher returns value and counts calls.
func countingFetcher(calls *atomic.Int32, value any) Fetcher {
	return func(context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func newTestClient(t *testing.T, cfg Config, opts ...ClientOption) *Client {
	t.Helper()
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	c := New(cfg, opts...)
	t.Cleanup(c.Close)
	return c
}

func TestFetchStaleWhileValid(t *testing.T) {
	clock := newTestClock()
	c := newTestClient(t, Config{StaleTime: 5 * time.Minute}, WithClock(clock.Now))
	key := MustBuildKey("communication-metrics", map[string]any{"from": "a"})

	var calls atomic.Int32
	fetcher := countingFetcher(&calls, "metrics")
	ctx := context.Background()

	res, err := c.Fetch(ctx, key, fetcher, Options{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Data != "metrics" || res.Status != StatusSuccess {
		t.Errorf("Result = %+v", res)
	}

	clock.Advance(4 * time.Minute)
	res, _ = c.Fetch(ctx, key, fetcher, Options{})
	if calls.Load() != 1 {
		t.Errorf("at 4m: calls = %d, want 1", calls.Load())
	}
	if res.IsStale {
		t.Error("at 4m: result reported stale")
	}

	clock.Advance(2 * time.Minute)
	if _, err := c.Fetch(ctx, key, fetcher, Options{}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("at 6m: calls = %d, want 2", calls.Load())
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 2 || stats.Fetches != 2 {
		t.Errorf("Stats = %+v", stats)
	}
}

func TestFetchPerReadStaleTime(t *testing.T) {
	clock := newTestClock()
	c := newTestClient(t, Config{StaleTime: time.Hour}, WithClock(clock.Now))
	key := MustBuildKey("leads", nil)

	var calls atomic.Int32
	fetcher := countingFetcher(&calls, 1)
	_, _ = c.Fetch(context.Background(), key, fetcher, Options{StaleTime: time.Minute})
	clock.Advance(90 * time.Second)
	_, _ = c.Fetch(context.Background(), key, fetcher, Options{StaleTime: time.Minute})

	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestConcurrentReadersShareOneFetch(t *testing.T) {
	c := newTestClient(t, Config{})
	key := MustBuildKey("lead-stats", map[string]any{"from": "a"})

	var calls atomic.Int32
	release := make(chan struct{})
	fetcher := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return "stats", nil
	}

	const readers = 8
	var wg sync.WaitGroup
	results := make([]Result, readers)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.Fetch(context.Background(), key, fetcher, Options{})
		}(i)
	}

	waitFor(t, "fetch to start", func() bool { return calls.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	for i, r := range results {
		if r.Data != "stats" {
			t.Errorf("reader %d got %v", i, r.Data)
		}
	}
}

func TestObserversShareOneFetch(t *testing.T) {
	c := newTestClient(t, Config{})
	key := MustBuildKey("leads", nil)

	var calls atomic.Int32
	release := make(chan struct{})
	fetcher := func(context.Context) (any, error) {
		calls.Add(1)
		<-release
		return []string{"lead-1"}, nil
	}

	var observers []*Observer
	for i := 0; i < 3; i++ {
		o := c.Observe(key, fetcher, Options{})
		defer o.Close()
		observers = append(observers, o)
	}
	close(release)

	for _, o := range observers {
		o := o
		waitFor(t, "observer success", func() bool { return o.Result().Status == StatusSuccess })
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
	if got := c.Stats().Observers; got != 3 {
		t.Errorf("Stats().Observers = %d, want 3", got)
	}
}

func TestOutOfOrderCompletionDiscarded(t *testing.T) {
	c := newTestClient(t, Config{})
	key := MustBuildKey("call-analyses", nil)

	var calls atomic.Int32
	releaseFirst := make(chan struct{})
	fetcher := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			<-releaseFirst
			return "first", nil
		}
		return "second", nil
	}

	o := c.Observe(key, fetcher, Options{})
	defer o.Close()
	waitFor(t, "first fetch", func() bool { return calls.Load() == 1 })

	res, err := o.Refetch(context.Background())
	if err != nil {
		t.Fatalf("Refetch: %v", err)
	}
	if res.Data != "second" {
		t.Errorf("Refetch data = %v, want second", res.Data)
	}

	close(releaseFirst)
	waitFor(t, "discard", func() bool { return c.Stats().Discarded == 1 })

	if got := o.Result().Data; got != "second" {
		t.Errorf("final data = %v, want second", got)
	}
}

func TestInvalidateMarksStaleAndRefetches(t *testing.T) {
	c := newTestClient(t, Config{StaleTime: time.Hour})
	ctx := context.Background()

	var leadCalls, statsCalls, otherCalls atomic.Int32
	leads := MustBuildKey("leads", map[string]any{"from": "a"})
	leads2 := MustBuildKey("leads", map[string]any{"from": "b"})
	stats := MustBuildKey("lead-stats", nil)
	other := MustBuildKey("ai-usage", nil)

	_, _ = c.Fetch(ctx, leads, countingFetcher(&leadCalls, 1), Options{})
	_, _ = c.Fetch(ctx, leads2, countingFetcher(&leadCalls, 2), Options{})
	_, _ = c.Fetch(ctx, other, countingFetcher(&otherCalls, 3), Options{})

	o := c.Observe(stats, countingFetcher(&statsCalls, 4), Options{})
	defer o.Close()
	waitFor(t, "stats fetched", func() bool { return o.Result().Status == StatusSuccess })

	n := c.Invalidate("leads", "lead-stats")
	if n != 3 {
		t.Errorf("Invalidate = %d, want 3", n)
	}

	// Observed entry refetches by itself.
	waitFor(t, "observed refetch", func() bool { return statsCalls.Load() == 2 })

	// Unobserved entries are only marked.
	if r := c.Peek(leads, Options{}); !r.IsStale {
		t.Error("leads entry should be stale")
	}
	if leadCalls.Load() != 2 {
		t.Errorf("leadCalls = %d, want 2 before next read", leadCalls.Load())
	}
	if r := c.Peek(other, Options{}); r.IsStale {
		t.Error("unrelated entry should stay fresh")
	}

	_, _ = c.Fetch(ctx, leads, countingFetcher(&leadCalls, 1), Options{})
	if leadCalls.Load() != 3 {
		t.Errorf("leadCalls = %d, want 3 after read", leadCalls.Load())
	}
	if r := c.Peek(leads, Options{}); r.IsStale {
		t.Error("refetched entry should be fresh")
	}
	if otherCalls.Load() != 1 {
		t.Errorf("otherCalls = %d, want 1", otherCalls.Load())
	}
}

func TestInvalidateDuringFetchKeepsEntryStale(t *testing.T) {
	c := newTestClient(t, Config{StaleTime: time.Hour})
	key := MustBuildKey("integrations", nil)

	release := make(chan struct{})
	started := make(chan struct{})
	fetcher := func(context.Context) (any, error) {
		close(started)
		<-release
		return "pre-mutation", nil
	}

	done := make(chan struct{})
	go func() {
		_, _ = c.Fetch(context.Background(), key, fetcher, Options{})
		close(done)
	}()
	<-started
	c.Invalidate("integrations")
	close(release)
	<-done

	if r := c.Peek(key, Options{}); !r.IsStale {
		t.Error("result fetched before invalidation should not count as fresh")
	}
}

func TestReadAfterInvalidateStartsNewFetch(t *testing.T) {
	c := newTestClient(t, Config{StaleTime: time.Hour})
	key := MustBuildKey("integrations", nil)

	var version, calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := func(context.Context) (any, error) {
		v := version.Load()
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return v, nil
	}

	firstDone := make(chan struct{})
	go func() {
		_, _ = c.Fetch(context.Background(), key, fetcher, Options{})
		close(firstDone)
	}()
	<-started
	version.Store(1)
	c.Invalidate("integrations")

	res, err := c.Fetch(context.Background(), key, fetcher, Options{})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if res.Data != int32(1) {
		t.Errorf("read after invalidate = %v, want 1", res.Data)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("fetcher calls = %d, want 2", got)
	}
	if got := c.Stats().DedupJoins; got != 0 {
		t.Errorf("DedupJoins = %d, want 0", got)
	}

	close(release)
	<-firstDone
	waitFor(t, "discard", func() bool { return c.Stats().Discarded == 1 })

	if got := c.Peek(key, Options{}).Data; got != int32(1) {
		t.Errorf("data after older fetch finished = %v, want 1", got)
	}
}

func TestReadDuringFetchJoinsIt(t *testing.T) {
	c := newTestClient(t, Config{})
	key := MustBuildKey("integrations", nil)

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fetcher := func(context.Context) (any, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-release
		}
		return "rows", nil
	}

	firstDone := make(chan struct{})
	go func() {
		_, _ = c.Fetch(context.Background(), key, fetcher, Options{})
		close(firstDone)
	}()
	<-started

	if got := c.Stats().Fetches; got != 1 {
		t.Errorf("Fetches while in flight = %d, want 1", got)
	}

	secondDone := make(chan Result, 1)
	go func() {
		r, _ := c.Fetch(context.Background(), key, fetcher, Options{})
		secondDone <- r
	}()
	waitFor(t, "join", func() bool { return c.Stats().DedupJoins == 1 })
	close(release)
	<-firstDone

	if r := <-secondDone; r.Data != "rows" {
		t.Errorf("joined read = %v, want rows", r.Data)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("fetcher calls = %d, want 1", got)
	}
	if got := c.Stats().Discarded; got != 0 {
		t.Errorf("Discarded = %d, want 0", got)
	}
}

func TestInvalidateAll(t *testing.T) {
	c := newTestClient(t, Config{})
	var calls atomic.Int32
	for _, op := range []string{"a", "b", "c"} {
		_, _ = c.Fetch(context.Background(), MustBuildKey(op, nil), countingFetcher(&calls, op), Options{})
	}
	if n := c.Invalidate(); n != 3 {
		t.Errorf("Invalidate() = %d, want 3", n)
	}
	if c.InvalidateKey(MustBuildKey("missing", nil)) {
		t.Error("InvalidateKey on missing key reported true")
	}
}

type statusError struct {
	status int
}

func (e *statusError) Error() string   { return "status error" }
func (e *statusError) Permanent() bool { return e.status >= 400 && e.status < 500 }

func TestRetryBound(t *testing.T) {
	boom := errors.New("backend unavailable")

	tests := []struct {
		name      string
		cfgRetry  int
		optRetry  *int
		err       error
		wantCalls int32
	}{
		{name: "default one retry", cfgRetry: 1, err: boom, wantCalls: 2},
		{name: "configured three retries", cfgRetry: 3, err: boom, wantCalls: 4},
		{name: "per-read zero retries", cfgRetry: 3, optRetry: Retries(0), err: boom, wantCalls: 1},
		{name: "permanent error not retried", cfgRetry: 3, err: &statusError{status: 404}, wantCalls: 1},
		{name: "transient status retried", cfgRetry: 1, err: &statusError{status: 503}, wantCalls: 2},
		{name: "configuration error not retried", cfgRetry: 3, err: ErrConfiguration, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, Config{Retry: tt.cfgRetry})
			var calls atomic.Int32
			fetcher := func(context.Context) (any, error) {
				calls.Add(1)
				return nil, tt.err
			}

			res, err := c.Fetch(context.Background(), MustBuildKey("leads", nil), fetcher, Options{Retry: tt.optRetry})
			if !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
			if res.Status != StatusError {
				t.Errorf("Status = %v, want error", res.Status)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

func TestErrorKeepsPreviousData(t *testing.T) {
	c := newTestClient(t, Config{Retry: 0})
	key := MustBuildKey("ai-billing-summary", nil)
	ctx := context.Background()

	var fail atomic.Bool
	fetcher := func(context.Context) (any, error) {
		if fail.Load() {
			return nil, errors.New("timeout")
		}
		return "summary-v1", nil
	}

	if _, err := c.Fetch(ctx, key, fetcher, Options{}); err != nil {
		t.Fatal(err)
	}
	fail.Store(true)
	c.Invalidate("ai-billing-summary")

	res, err := c.Fetch(ctx, key, fetcher, Options{})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Status != StatusError || res.Data != "summary-v1" || res.Err == nil {
		t.Errorf("Result = %+v", res)
	}
	if c.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", c.Stats().Errors)
	}
}

func TestFetcherPanicBecomesError(t *testing.T) {
	c := newTestClient(t, Config{Retry: 0})
	_, err := c.Fetch(context.Background(), MustBuildKey("leads", nil), func(context.Context) (any, error) {
		panic("bad row")
	}, Options{})
	if err == nil {
		t.Fatal("expected error from panicking fetcher")
	}
}

func TestDisabledReadDoesNotFetch(t *testing.T) {
	c := newTestClient(t, Config{})
	key := MustBuildKey("integrations", nil)
	var calls atomic.Int32

	o := c.Observe(key, countingFetcher(&calls, "x"), Options{Disabled: true})
	defer o.Close()
	res, err := c.Fetch(context.Background(), key, countingFetcher(&calls, "x"), Options{Disabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusPending || calls.Load() != 0 {
		t.Errorf("disabled read fetched: status=%v calls=%d", res.Status, calls.Load())
	}

	if _, err := o.Refetch(context.Background()); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("Refetch calls = %d, want 1", calls.Load())
	}
}

func TestPollingWhileObserved(t *testing.T) {
	c := newTestClient(t, Config{StaleTime: time.Hour})
	key := MustBuildKey("leads", nil)
	var calls atomic.Int32

	o := c.Observe(key, countingFetcher(&calls, "x"), Options{PollInterval: 10 * time.Millisecond})
	waitFor(t, "polled fetches", func() bool { return calls.Load() >= 3 })

	o.Close()
	after := calls.Load()
	time.Sleep(60 * time.Millisecond)
	if got := calls.Load(); got > after+1 {
		t.Errorf("polling continued after close: %d -> %d", after, got)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	c := newTestClient(t, Config{})
	key := MustBuildKey("leads", nil)

	release := make(chan struct{})
	o := c.Observe(key, func(context.Context) (any, error) {
		<-release
		return "done", nil
	}, Options{})
	defer o.Close()

	var mu sync.Mutex
	var seen []Status
	sub := o.Subscribe(func(r Result) {
		mu.Lock()
		seen = append(seen, r.Status)
		mu.Unlock()
	})
	defer sub.Unsubscribe()

	close(release)
	waitFor(t, "success notification", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0 && seen[len(seen)-1] == StatusSuccess
	})
}

func TestInactiveEntriesCollected(t *testing.T) {
	c := newTestClient(t, Config{GCTime: 30 * time.Millisecond})
	var calls atomic.Int32

	unobserved := MustBuildKey("ai-usage", nil)
	_, _ = c.Fetch(context.Background(), unobserved, countingFetcher(&calls, 1), Options{})

	observed := MustBuildKey("leads", nil)
	o := c.Observe(observed, countingFetcher(&calls, 2), Options{})

	waitFor(t, "unobserved entry removal", func() bool { return c.Stats().Entries == 1 })
	time.Sleep(80 * time.Millisecond)
	if c.Stats().Entries != 1 {
		t.Fatal("observed entry was collected")
	}

	o.Close()
	waitFor(t, "closed entry removal", func() bool { return c.Stats().Entries == 0 })
	if c.Stats().Removals != 2 {
		t.Errorf("Removals = %d, want 2", c.Stats().Removals)
	}
}

func TestRemove(t *testing.T) {
	c := newTestClient(t, Config{})
	var calls atomic.Int32
	key := MustBuildKey("leads", nil)

	o := c.Observe(key, countingFetcher(&calls, 1), Options{})
	if c.Remove(key) {
		t.Error("Remove succeeded on observed entry")
	}
	o.Close()
	if !c.Remove(key) {
		t.Error("Remove failed on unobserved entry")
	}
	if c.Remove(key) {
		t.Error("Remove succeeded twice")
	}
}

func TestEntriesSnapshot(t *testing.T) {
	c := newTestClient(t, Config{})
	var calls atomic.Int32
	key := MustBuildKey("leads", map[string]any{"from": "a"})
	_, _ = c.Fetch(context.Background(), key, countingFetcher(&calls, 1), Options{})

	entries := c.Entries()
	if len(entries) != 1 {
		t.Fatalf("Entries() len = %d", len(entries))
	}
	if entries[0].Operation != "leads" || entries[0].Status != StatusSuccess || entries[0].Key != key.String() {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestClosedClient(t *testing.T) {
	c := New(Config{})
	c.Close()
	c.Close()

	if _, err := c.Fetch(context.Background(), MustBuildKey("x", nil), nil, Options{}); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Fetch after close: %v", err)
	}
	o := c.Observe(MustBuildKey("x", nil), nil, Options{})
	if _, err := o.Refetch(context.Background()); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Refetch after close: %v", err)
	}
	o.Close()
}

func TestFetchContextCancel(t *testing.T) {
	c := newTestClient(t, Config{})
	release := make(chan struct{})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Fetch(ctx, MustBuildKey("leads", nil), func(context.Context) (any, error) {
		<-release
		return nil, nil
	}, Options{})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
