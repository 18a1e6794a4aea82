// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package validation

import (
	"strings"
	"testing"
)

type sampleRequest struct {
	Name   string `json:"name" validate:"required,identifier"`
	Status string `json:"status" validate:"omitempty,lead_status"`
	Days   int    `json:"days" validate:"omitempty,preset"`
	Tokens int    `json:"tokens" validate:"gte=0,lte=1000"`
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		req       sampleRequest
		wantField string
		wantTag   string
	}{
		{name: "valid", req: sampleRequest{Name: "hubspot", Status: "won", Days: 30}},
		{name: "missing name", req: sampleRequest{}, wantField: "name", wantTag: "required"},
		{name: "bad identifier", req: sampleRequest{Name: "Hub Spot"}, wantField: "name", wantTag: "identifier"},
		{name: "bad status", req: sampleRequest{Name: "x", Status: "archived"}, wantField: "status", wantTag: "lead_status"},
		{name: "bad preset", req: sampleRequest{Name: "x", Days: 14}, wantField: "days", wantTag: "preset"},
		{name: "range", req: sampleRequest{Name: "x", Tokens: 1001}, wantField: "tokens", wantTag: "lte"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verr := ValidateStruct(&tt.req)
			if tt.wantField == "" {
				if verr != nil {
					t.Fatalf("unexpected error: %v", verr)
				}
				return
			}
			if verr == nil {
				t.Fatal("expected validation error")
			}
			if len(verr.Fields) != 1 {
				t.Fatalf("Fields = %+v, want one", verr.Fields)
			}
			f := verr.Fields[0]
			if f.Field != tt.wantField || f.Tag != tt.wantTag {
				t.Errorf("got %s/%s, want %s/%s", f.Field, f.Tag, tt.wantField, tt.wantTag)
			}
			if verr.Code() != ErrorCode {
				t.Errorf("Code() = %q", verr.Code())
			}
		})
	}
}

func TestErrorMessages(t *testing.T) {
	verr := ValidateStruct(&sampleRequest{Status: "archived"})
	if verr == nil {
		t.Fatal("expected error")
	}
	msg := verr.Error()
	for _, want := range []string{"name is required", "status must be one of: new"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if _, ok := verr.Details()["fields"]; !ok {
		t.Error("Details() missing fields")
	}
}
