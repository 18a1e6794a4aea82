// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package backend

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestQueryEncode(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	q := Query{
		Table:  "call_analyses",
		Select: []string{"id", "score"},
		Order:  []Order{{Column: "created_at", Desc: true}, {Column: "id"}},
		Limit:  50,
	}.Where("created_at", OpGte, from).
		Where("status", OpIn, []string{"new", "qualified"}).
		Where("archived", OpIs, nil)

	raw, err := q.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	v, err := url.ParseQuery(raw)
	if err != nil {
		t.Fatal(err)
	}

	checks := map[string]string{
		"select":     "id,score",
		"created_at": "gte.2026-01-01T00:00:00Z",
		"status":     "in.(new,qualified)",
		"archived":   "is.null",
		"order":      "created_at.desc,id.asc",
		"limit":      "50",
	}
	for k, want := range checks {
		if got := v.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}

func TestQueryEncodeDefaultsAndErrors(t *testing.T) {
	raw, err := Query{Table: "leads"}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	v, _ := url.ParseQuery(raw)
	if v.Get("select") != "*" || v.Has("limit") || v.Has("order") {
		t.Errorf("defaults = %v", v)
	}

	tests := []struct {
		name string
		q    Query
	}{
		{name: "no table", q: Query{}},
		{name: "negative limit", q: Query{Table: "t", Limit: -1}},
		{name: "filter without op", q: Query{Table: "t", Filters: []Filter{{Column: "a"}}}},
		{name: "in without slice", q: Query{Table: "t"}.Where("a", OpIn, "x")},
		{name: "unsupported value", q: Query{Table: "t"}.Where("a", OpEq, struct{}{})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.q.Encode(); !errors.Is(err, ErrInvalidQuery) {
				t.Errorf("err = %v, want ErrInvalidQuery", err)
			}
		})
	}
}

func TestWhereDoesNotAlias(t *testing.T) {
	base := Query{Table: "leads", Filters: make([]Filter, 0, 4)}
	a := base.Where("a", OpEq, "1")
	b := base.Where("b", OpEq, "2")
	if a.Filters[0].Column != "a" || b.Filters[0].Column != "b" {
		t.Errorf("filters aliased: %v %v", a.Filters, b.Filters)
	}
}

func TestHTTPErrorPermanent(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{400, true},
		{401, true},
		{404, true},
		{408, false},
		{429, false},
		{500, false},
		{503, false},
	}
	for _, tt := range tests {
		err := &HTTPError{Status: tt.status}
		if got := err.Permanent(); got != tt.want {
			t.Errorf("Permanent(%d) = %v, want %v", tt.status, got, tt.want)
		}
		if got := IsPermanent(err); got != tt.want {
			t.Errorf("IsPermanent(%d) = %v, want %v", tt.status, got, tt.want)
		}
	}
	if IsPermanent(errors.New("network")) {
		t.Error("plain error reported permanent")
	}
}
