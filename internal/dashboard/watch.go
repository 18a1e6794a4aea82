// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package dashboard

import (
	"sync"

	"github.com/tomtom215/dashline/internal/filter"
	"github.com/tomtom215/dashline/internal/logging"
	"github.com/tomtom215/dashline/internal/query"
)

// Watch keeps one operation observed under the current date range. When
// the range changes the watch opens an observer on the new key and closes
// the old one, so polling follows the filter.
type Watch struct {
	svc    *Service
	op     Operation
	params map[string]string

	filterSub filter.Subscription

	mu     sync.Mutex
	obs    *query.Observer
	closed bool
	subs   []func(query.Result)
}

// Watch starts watching the named operation. Close the watch when done.
func (s *Service) Watch(name string, params map[string]string) (*Watch, error) {
	op, err := s.Operation(name)
	if err != nil {
		return nil, err
	}
	if err := checkParams(op, params); err != nil {
		return nil, err
	}

	cp := make(map[string]string, len(params))
	for k, v := range params {
		cp[k] = v
	}
	if _, err := buildKey(op, s.filter.Range(), cp); err != nil {
		return nil, err
	}
	w := &Watch{svc: s, op: op, params: cp}

	// Subscribe before pointing so a change in between is not missed.
	w.filterSub = s.filter.Subscribe(w.repoint)
	w.repoint(filter.Range{})
	return w, nil
}

// Operation returns the watched operation.
func (w *Watch) Operation() Operation { return w.op }

// Key returns the key currently observed.
func (w *Watch) Key() query.Key {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.obs == nil {
		return query.Key{}
	}
	return w.obs.Key()
}

// Result returns the current snapshot of the observed key.
func (w *Watch) Result() query.Result {
	w.mu.Lock()
	o := w.obs
	w.mu.Unlock()
	if o == nil {
		return query.Result{}
	}
	return o.Result()
}

// Subscribe registers fn for every change of the observed entry, including
// the switch to a new key after a range change. fn must not block.
func (w *Watch) Subscribe(fn func(query.Result)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.subs = append(w.subs, fn)
}

// Close stops the watch and releases its observer.
func (w *Watch) Close() {
	w.filterSub.Unsubscribe()

	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	o := w.obs
	w.obs = nil
	w.mu.Unlock()

	if o != nil {
		o.Close()
	}
}

// repoint moves the watch to the current range. The range is read under
// w.mu so the last caller to get the lock always sees the newest value.
func (w *Watch) repoint(filter.Range) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	rng := w.svc.filter.Range()
	key, err := buildKey(w.op, rng, w.params)
	if err != nil {
		w.mu.Unlock()
		logging.Error().Err(err).Str("operation", w.op.Name).Msg("Failed to build watch key")
		return
	}
	if w.obs != nil && w.obs.Key() == key {
		w.mu.Unlock()
		return
	}
	o := w.svc.client.Observe(key, w.svc.fetcher(w.op, rng, w.params), w.op.Options())
	o.Subscribe(func(res query.Result) { w.dispatch(o, res) })
	old := w.obs
	w.obs = o
	fns := append([]func(query.Result)(nil), w.subs...)
	w.mu.Unlock()

	if old != nil {
		old.Close()
		logging.Debug().
			Str("operation", w.op.Name).
			Str("key", key.String()).
			Msg("Watch moved to new date range")
	}
	res := o.Result()
	for _, fn := range fns {
		fn(res)
	}
}

func (w *Watch) dispatch(o *query.Observer, res query.Result) {
	w.mu.Lock()
	if w.closed || w.obs != o {
		w.mu.Unlock()
		return
	}
	fns := append([]func(query.Result)(nil), w.subs...)
	w.mu.Unlock()

	for _, fn := range fns {
		fn(res)
	}
}
