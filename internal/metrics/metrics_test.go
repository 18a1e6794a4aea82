// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordFetch(t *testing.T) {
	tests := []struct {
		name      string
		operation string
		err       error
		result    string
	}{
		{name: "success", operation: "test-fetch-ok", result: "success"},
		{name: "error", operation: "test-fetch-err", err: errors.New("boom"), result: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(QueryFetches.WithLabelValues(tt.operation, tt.result))
			RecordFetch(tt.operation, 10*time.Millisecond, tt.err)
			after := testutil.ToFloat64(QueryFetches.WithLabelValues(tt.operation, tt.result))
			if after != before+1 {
				t.Errorf("QueryFetches{%s,%s} = %v, want %v", tt.operation, tt.result, after, before+1)
			}
		})
	}
}

func TestRecordDiscardedFetch(t *testing.T) {
	before := testutil.ToFloat64(QueryFetches.WithLabelValues("test-discard", "discarded"))
	RecordDiscardedFetch("test-discard")
	if got := testutil.ToFloat64(QueryFetches.WithLabelValues("test-discard", "discarded")); got != before+1 {
		t.Errorf("discarded = %v, want %v", got, before+1)
	}
}

func TestRecordMutation(t *testing.T) {
	RecordMutation("test-mutation", nil)
	RecordMutation("test-mutation", errors.New("denied"))
	RecordMutation("test-mutation", errors.New("denied"))

	if got := testutil.ToFloat64(Mutations.WithLabelValues("test-mutation", "success")); got != 1 {
		t.Errorf("success = %v, want 1", got)
	}
	if got := testutil.ToFloat64(Mutations.WithLabelValues("test-mutation", "error")); got != 2 {
		t.Errorf("error = %v, want 2", got)
	}
}

func TestRecordBackendRequest(t *testing.T) {
	RecordBackendRequest("query", "test_table", "200", 5*time.Millisecond)
	if got := testutil.ToFloat64(BackendRequests.WithLabelValues("query", "test_table", "200")); got != 1 {
		t.Errorf("BackendRequests = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(BackendRequestDuration); n == 0 {
		t.Error("expected backend duration histogram to have series")
	}
}

func TestRecordAPIRequest(t *testing.T) {
	RecordAPIRequest("GET", "/test", "200", time.Millisecond)
	if got := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/test", "200")); got != 1 {
		t.Errorf("APIRequestsTotal = %v, want 1", got)
	}
}
