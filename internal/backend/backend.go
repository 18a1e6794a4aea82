// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

// Package backend talks to the managed backend-as-a-service that owns all
// dashboard data: a PostgREST-style row API under /rest/v1 and serverless
// functions under /functions/v1.
//
// The query cache treats the backend as opaque. Errors implementing
// Permanent() (4xx responses other than 408 and 429) are not retried.
package backend

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Backend is the remote data source.
type Backend interface {
	// Query reads rows from a table.
	Query(ctx context.Context, q Query) ([]Row, error)

	// Invoke calls a serverless function with a JSON body and returns its
	// raw JSON response.
	Invoke(ctx context.Context, function string, body any) (json.RawMessage, error)
}

// Row is one decoded table row.
type Row map[string]any

// Op is a PostgREST comparison operator.
type Op string

const (
	OpEq    Op = "eq"
	OpNeq   Op = "neq"
	OpGt    Op = "gt"
	OpGte   Op = "gte"
	OpLt    Op = "lt"
	OpLte   Op = "lte"
	OpLike  Op = "like"
	OpILike Op = "ilike"
	OpIn    Op = "in"
	OpIs    Op = "is"
)

// Filter restricts rows by one column.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Order sorts by one column.
type Order struct {
	Column string
	Desc   bool
}

// Query describes a table read.
type Query struct {
	Table   string
	Select  []string
	Filters []Filter
	Order   []Order
	Limit   int
}

// ErrInvalidQuery is returned for queries that cannot be rendered.
var ErrInvalidQuery = errors.New("invalid backend query")

// Where appends a filter and returns q for chaining.
func (q Query) Where(column string, op Op, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Column: column, Op: op, Value: value})
	return q
}

// Encode renders q as a PostgREST query string, for example
// select=*&created_at=gte.2026-01-01T00:00:00Z&order=created_at.desc&limit=50
func (q Query) Encode() (string, error) {
	if q.Table == "" {
		return "", fmt.Errorf("%w: table is required", ErrInvalidQuery)
	}

	v := url.Values{}
	if len(q.Select) > 0 {
		v.Set("select", strings.Join(q.Select, ","))
	} else {
		v.Set("select", "*")
	}

	for _, f := range q.Filters {
		if f.Column == "" || f.Op == "" {
			return "", fmt.Errorf("%w: filter needs column and operator", ErrInvalidQuery)
		}
		val, err := formatValue(f.Op, f.Value)
		if err != nil {
			return "", fmt.Errorf("%w: column %s: %s", ErrInvalidQuery, f.Column, err.Error())
		}
		v.Add(f.Column, string(f.Op)+"."+val)
	}

	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order))
		for _, o := range q.Order {
			dir := "asc"
			if o.Desc {
				dir = "desc"
			}
			parts = append(parts, o.Column+"."+dir)
		}
		v.Set("order", strings.Join(parts, ","))
	}

	if q.Limit < 0 {
		return "", fmt.Errorf("%w: negative limit", ErrInvalidQuery)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v.Encode(), nil
}

func formatValue(op Op, value any) (string, error) {
	if op == OpIn {
		var items []string
		switch t := value.(type) {
		case []string:
			items = t
		case []any:
			for _, item := range t {
				s, err := formatScalar(item)
				if err != nil {
					return "", err
				}
				items = append(items, s)
			}
		default:
			return "", fmt.Errorf("in operator needs a slice, got %T", value)
		}
		return "(" + strings.Join(items, ",") + ")", nil
	}
	return formatScalar(value)
}

func formatScalar(value any) (string, error) {
	switch t := value.(type) {
	case nil:
		return "null", nil
	case string:
		return t, nil
	case bool:
		return strconv.FormatBool(t), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339), nil
	case fmt.Stringer:
		return t.String(), nil
	}
	return "", fmt.Errorf("unsupported value type %T", value)
}
