// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package dashboard

import (
	"sort"
	"time"

	"github.com/tomtom215/dashline/internal/backend"
	"github.com/tomtom215/dashline/internal/config"
	"github.com/tomtom215/dashline/internal/query"
)

// Read operation names.
const (
	OpCommunicationMetrics = "communication-metrics"
	OpCallAnalyses         = "call-analyses"
	OpLeads                = "leads"
	OpLeadStats            = "lead-stats"
	OpAIUsage              = "ai-usage"
	OpAIBillingSummary     = "ai-billing-summary"
	OpIntegrations         = "integrations"
)

// Operation describes one dashboard read. Exactly one of Table and Function
// is set.
type Operation struct {
	Name string

	// Table is read through the row API, filtered to the date range on
	// DateColumn and ordered newest first.
	Table      string
	DateColumn string
	Select     []string
	Limit      int

	// Function is invoked with the date range and request params as its body.
	Function string

	// Params lists the request parameters accepted as equality filters
	// (tables) or body fields (functions).
	Params []string

	StaleTime    time.Duration
	PollInterval time.Duration
	Retry        *int
}

// Options returns the query options for this operation.
func (o Operation) Options() query.Options {
	return query.Options{
		StaleTime:    o.StaleTime,
		PollInterval: o.PollInterval,
		Retry:        o.Retry,
	}
}

// Live reports whether the operation polls.
func (o Operation) Live() bool { return o.PollInterval > 0 }

func (o Operation) accepts(param string) bool {
	for _, p := range o.Params {
		if p == param {
			return true
		}
	}
	return false
}

func (o Operation) tableQuery() backend.Query {
	q := backend.Query{Table: o.Table, Select: o.Select, Limit: o.Limit}
	if o.DateColumn != "" {
		q.Order = []backend.Order{{Column: o.DateColumn, Desc: true}}
	}
	return q
}

// DefaultOperations returns the built-in catalog.
func DefaultOperations() []Operation {
	return []Operation{
		{
			Name:         OpCommunicationMetrics,
			Table:        "communication_metrics",
			DateColumn:   "created_at",
			Params:       []string{"channel", "agent_id"},
			StaleTime:    5 * time.Minute,
			PollInterval: 5 * time.Minute,
		},
		{
			Name:       OpCallAnalyses,
			Table:      "call_analyses",
			DateColumn: "created_at",
			Params:     []string{"call_id", "agent_id", "sentiment"},
			Limit:      200,
			StaleTime:  2 * time.Minute,
		},
		{
			Name:         OpLeads,
			Table:        "leads",
			DateColumn:   "created_at",
			Params:       []string{"status", "source"},
			Limit:        500,
			StaleTime:    time.Minute,
			PollInterval: time.Minute,
		},
		{
			Name:      OpLeadStats,
			Function:  "lead-stats",
			Params:    []string{"source"},
			StaleTime: 5 * time.Minute,
		},
		{
			Name:       OpAIUsage,
			Table:      "ai_usage_logs",
			DateColumn: "created_at",
			Params:     []string{"model", "feature"},
			Limit:      1000,
			StaleTime:  10 * time.Minute,
		},
		{
			Name:      OpAIBillingSummary,
			Function:  "ai-billing-summary",
			StaleTime: 60 * time.Minute,
		},
		{
			Name:       OpIntegrations,
			Table:      "integrations",
			DateColumn: "updated_at",
			Select:     []string{"id", "name", "provider", "status", "updated_at"},
			Params:     []string{"provider"},
			StaleTime:  30 * time.Minute,
		},
	}
}

// Catalog is the set of operations a Service serves.
type Catalog map[string]Operation

// NewCatalog builds a catalog from ops with per-operation overrides applied.
// Zero override fields keep the built-in value; a zero Retry pointer keeps
// it too.
func NewCatalog(ops []Operation, overrides map[string]config.OperationPolicy) Catalog {
	c := make(Catalog, len(ops))
	for _, op := range ops {
		if p, ok := overrides[op.Name]; ok {
			if p.StaleTime > 0 {
				op.StaleTime = p.StaleTime
			}
			if p.PollInterval > 0 {
				op.PollInterval = p.PollInterval
			}
			if p.Retry != nil {
				n := *p.Retry
				op.Retry = &n
			}
		}
		c[op.Name] = op
	}
	return c
}

// Names returns the operation names sorted.
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
