// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/metrics"
)

// maxRetryInterval caps the exponential backoff between retries.
const maxRetryInterval = 30 * time.Second

// permanent is implemented by transport errors that must not be retried,
// such as HTTP 4xx responses.
type permanent interface {
	Permanent() bool
}

// errFlightGone is returned to a reader that tried to join a flight which
// was no longer registered. flightActive makes this unreachable.
var errFlightGone = errors.New("query: joined fetch no longer in flight")

// startLocked starts a fetch for e or joins the one in flight. A flight is
// only joined when it started after the entry's last invalidation, so a
// read after a write never receives rows fetched before it. With force a
// new generation always starts. Caller holds c.mu.
//
// The generation is taken here, under c.mu, so generations follow start
// order. The fetch runs on the client context so one reader giving up does
// not cancel it for the others; ctx only contributes its correlation ID.
func (c *Client) startLocked(ctx context.Context, e *entry, fetcher Fetcher, opts Options, force bool) <-chan singleflight.Result {
	if !force && e.flightActive && e.flightGen > e.invalidatedGen {
		c.stats.dedupJoins.Add(1)
		metrics.QueryDedupJoins.WithLabelValues(e.key.Operation).Inc()
		return c.group.DoChan(e.flightKey, func() (any, error) { return nil, errFlightGone })
	}

	fctx := c.ctx
	if id := logging.CorrelationIDFromContext(ctx); id != "" {
		fctx = logging.ContextWithCorrelationID(fctx, id)
	}
	retries := c.retries(opts)

	e.gen++
	gen := e.gen
	e.fetching++
	c.flightSeq++
	e.flightGen = gen
	e.flightKey = e.key.flightKey(c.flightSeq)
	e.flightActive = true
	c.stats.fetches.Add(1)

	return c.group.DoChan(e.flightKey, func() (any, error) {
		return c.run(fctx, e, gen, fetcher, retries)
	})
}

func (c *Client) run(ctx context.Context, e *entry, gen uint64, fetcher Fetcher, retries int) (any, error) {
	c.notify(e.key)

	started := time.Now()
	data, err := c.fetchWithRetry(ctx, e.key, fetcher, retries)
	metrics.RecordFetch(e.key.Operation, time.Since(started), err)

	c.complete(e, gen, data, err)
	return data, err
}

func (c *Client) fetchWithRetry(ctx context.Context, key Key, fetcher Fetcher, retries int) (any, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryDelay
	bo.MaxInterval = maxRetryInterval

	operation := func() (any, error) {
		data, err := callFetcher(ctx, fetcher)
		if err != nil && !retryable(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		return data, err
	}

	data, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(retries)+1),
		backoff.WithNotify(func(err error, wait time.Duration) {
			metrics.QueryRetries.WithLabelValues(key.Operation).Inc()
			logging.Ctx(ctx).Debug().Err(err).
				Str("key", key.String()).
				Dur("wait", wait).
				Msg("Fetch failed, retrying")
		}),
	)

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Err
	}
	return data, err
}

// callFetcher converts a panicking fetcher into an error so the shared
// fetch goroutine cannot take the process down.
func callFetcher(ctx context.Context, fetcher Fetcher) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fetcher panicked: %v", r)
		}
	}()
	return fetcher(ctx)
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrConfiguration) {
		return false
	}
	var p permanent
	if errors.As(err, &p) && p.Permanent() {
		return false
	}
	return true
}

// complete applies a finished fetch unless a newer generation has already
// been applied or the entry was removed meanwhile.
func (c *Client) complete(e *entry, gen uint64, data any, err error) {
	c.mu.Lock()
	e.fetching--
	if gen == e.flightGen {
		e.flightActive = false
	}
	cur, ok := c.entries[e.key]
	current := ok && cur == e
	if !current || gen < e.appliedGen {
		c.mu.Unlock()
		c.stats.discarded.Add(1)
		metrics.RecordDiscardedFetch(e.key.Operation)
		logging.Debug().
			Str("key", e.key.String()).
			Uint64("generation", gen).
			Bool("removed", !current).
			Msg("Discarded out-of-date fetch result")
		if current {
			c.notify(e.key)
		}
		return
	}

	e.appliedGen = gen
	if err != nil {
		e.err = err
		e.status = StatusError
	} else {
		e.data = data
		e.err = nil
		e.status = StatusSuccess
		e.fetchedAt = c.clock()
		if gen > e.invalidatedGen {
			e.invalidated = false
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.stats.errors.Add(1)
		logging.Warn().Err(err).Str("key", e.key.String()).Msg("Fetch failed")
	}
	c.notify(e.key)
}

// restartPollLocked aligns the entry's poller with the shortest poll
// interval among its enabled observers. Caller holds c.mu.
func (c *Client) restartPollLocked(e *entry) {
	var interval time.Duration
	for _, o := range e.observers {
		p := o.opts.PollInterval
		if o.opts.Disabled || p <= 0 {
			continue
		}
		if interval == 0 || p < interval {
			interval = p
		}
	}

	if interval == e.pollInterval && (interval == 0 || e.pollCancel != nil) {
		return
	}
	e.stopPoll()
	if interval == 0 || c.closed {
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	e.pollInterval = interval
	e.pollCancel = cancel
	go c.poll(ctx, e, interval)
}

func (c *Client) poll(ctx context.Context, e *entry, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if cur, ok := c.entries[e.key]; !ok || cur != e || c.closed {
			c.mu.Unlock()
			return
		}
		if o := e.leadObserver(); o != nil {
			c.startLocked(ctx, e, o.fetcher, o.opts, false)
		}
		c.mu.Unlock()
	}
}
