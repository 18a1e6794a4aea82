// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package filter

import "time"

// Range is an inclusive date range. From <= To is expected but not enforced.
type Range struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Params renders the range as cache key parameters. Timestamps are UTC
// RFC 3339 so equal instants in different zones produce equal keys.
func (r Range) Params() map[string]any {
	return map[string]any{
		"from": r.From.UTC().Format(time.RFC3339Nano),
		"to":   r.To.UTC().Format(time.RFC3339Nano),
	}
}

// Inverted reports whether From is after To.
func (r Range) Inverted() bool {
	return r.From.After(r.To)
}

// Days returns the whole days covered, rounded down. Inverted ranges
// return a negative value.
func (r Range) Days() int {
	return int(r.To.Sub(r.From) / (24 * time.Hour))
}
