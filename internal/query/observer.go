// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package query

import (
	"context"
	"errors"
	"sync"

	"github.com/tomtom215/dashline/internal/metrics"
)

// ErrObserverClosed is returned by Refetch on a closed observer.
var ErrObserverClosed = errors.New("query observer is closed")

// Observer is one open interest in a key. While at least one observer of a
// key is open the entry is retained, polled when configured and refetched
// on invalidation.
type Observer struct {
	client  *Client
	key     Key
	fetcher Fetcher
	opts    Options

	// closed is guarded by client.mu.
	closed bool

	subMu   sync.Mutex
	subs    []observerSub
	nextSub uint64
}

type observerSub struct {
	id uint64
	fn func(Result)
}

// Subscription is returned by Observer.Subscribe.
type Subscription struct {
	o  *Observer
	id uint64
}

// Unsubscribe stops further callbacks. Safe to call more than once.
func (s Subscription) Unsubscribe() {
	if s.o == nil {
		return
	}
	s.o.subMu.Lock()
	defer s.o.subMu.Unlock()
	for i, sub := range s.o.subs {
		if sub.id == s.id {
			s.o.subs = append(s.o.subs[:i:i], s.o.subs[i+1:]...)
			return
		}
	}
}

// Key returns the observed key.
func (o *Observer) Key() Key { return o.key }

// Result returns the current snapshot.
func (o *Observer) Result() Result {
	return o.client.Peek(o.key, o.opts)
}

// Subscribe registers fn to run whenever the entry changes: a fetch
// starting, a fetch settling or an invalidation. Callbacks may run on any
// goroutine and must not block.
func (o *Observer) Subscribe(fn func(Result)) Subscription {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	o.nextSub++
	o.subs = append(o.subs, observerSub{id: o.nextSub, fn: fn})
	return Subscription{o: o, id: o.nextSub}
}

func (o *Observer) callbacks() []func(Result) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	fns := make([]func(Result), len(o.subs))
	for i, s := range o.subs {
		fns[i] = s.fn
	}
	return fns
}

// Refetch fetches regardless of staleness and waits for the result. A
// fetch already in flight is superseded: its result is discarded if it
// lands after this one.
func (o *Observer) Refetch(ctx context.Context) (Result, error) {
	c := o.client
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Result{}, ErrClientClosed
	}
	if o.closed {
		c.mu.Unlock()
		return Result{}, ErrObserverClosed
	}
	e := c.entryLocked(o.key)
	ch := c.startLocked(ctx, e, o.fetcher, o.opts, true)
	c.mu.Unlock()

	select {
	case r := <-ch:
		return c.settled(o.key, c.staleTime(o.opts), r.Err)
	case <-ctx.Done():
		return o.Result(), ctx.Err()
	}
}

// Close releases the observer. When the last observer of a key closes, its
// poller stops and the entry becomes eligible for removal after the GC
// time.
func (o *Observer) Close() {
	c := o.client
	c.mu.Lock()
	if o.closed {
		c.mu.Unlock()
		return
	}
	o.closed = true

	if e, ok := c.entries[o.key]; ok {
		for i, other := range e.observers {
			if other == o {
				e.observers = append(e.observers[:i:i], e.observers[i+1:]...)
				break
			}
		}
		c.restartPollLocked(e)
		if len(e.observers) == 0 {
			e.stopPoll()
			e.inactiveEpoch++
			c.inactive.Add(o.key, e.inactiveEpoch)
		}
	}
	c.mu.Unlock()

	metrics.QueryObservers.Dec()
}
