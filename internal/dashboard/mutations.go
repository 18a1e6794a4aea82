// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package dashboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/tomtom215/dashline/internal/backend"
	"github.com/tomtom215/dashline/internal/config"
	"github.com/tomtom215/dashline/internal/events"
	"github.com/tomtom215/dashline/internal/mutation"
	"github.com/tomtom215/dashline/internal/query"
	"github.com/tomtom215/dashline/internal/validation"
)

// Mutation names.
const (
	MutUpdateLeadStatus           = "update-lead-status"
	MutRequestCallAnalysis        = "request-call-analysis"
	MutSaveIntegrationCredentials = "save-integration-credentials"
	MutRecordAIUsage              = "record-ai-usage"
)

// ErrVaultUnavailable is returned when credentials are saved without a
// configured credential secret.
var ErrVaultUnavailable = errors.New("credential vault is not configured")

// LeadStatusUpdate moves a lead to a new pipeline status.
type LeadStatusUpdate struct {
	LeadID string `json:"lead_id" validate:"required,max=64"`
	Status string `json:"status" validate:"required,lead_status"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

// CallAnalysisRequest asks for a recorded call to be analyzed.
type CallAnalysisRequest struct {
	CallID string `json:"call_id" validate:"required,max=64"`
	Force  bool   `json:"force,omitempty"`
}

// IntegrationCredentials stores an API credential for a third-party
// integration. Credential is encrypted before it leaves the process.
type IntegrationCredentials struct {
	Integration string `json:"integration" validate:"required,identifier"`
	Credential  string `json:"credential" validate:"required,max=4096"`
}

// AIUsageRecord is one billed AI call.
type AIUsageRecord struct {
	Model        string  `json:"model" validate:"required,max=100"`
	Feature      string  `json:"feature" validate:"required,identifier"`
	InputTokens  int     `json:"input_tokens" validate:"gte=0"`
	OutputTokens int     `json:"output_tokens" validate:"gte=0"`
	CostUSD      float64 `json:"cost_usd" validate:"gte=0"`
}

// Mutations are the dashboard writes and their invalidation edges.
type Mutations struct {
	UpdateLeadStatus           *mutation.Mutation[LeadStatusUpdate, json.RawMessage]
	RequestCallAnalysis        *mutation.Mutation[CallAnalysisRequest, json.RawMessage]
	SaveIntegrationCredentials *mutation.Mutation[IntegrationCredentials, json.RawMessage]
	RecordAIUsage              *mutation.Mutation[AIUsageRecord, json.RawMessage]
}

func newMutations(client *query.Client, b backend.Backend, vault *config.CredentialVault, pub events.Publisher) *Mutations {
	return &Mutations{
		UpdateLeadStatus: mutation.New(client,
			invoke[LeadStatusUpdate](b, "update-lead-status", nil),
			mutation.Options{
				Name:        MutUpdateLeadStatus,
				Invalidates: []string{OpLeads, OpLeadStats},
				Publisher:   pub,
			}),
		RequestCallAnalysis: mutation.New(client,
			invoke[CallAnalysisRequest](b, "analyze-call", nil),
			mutation.Options{
				Name:        MutRequestCallAnalysis,
				Invalidates: []string{OpCallAnalyses, OpCommunicationMetrics},
				Publisher:   pub,
			}),
		SaveIntegrationCredentials: mutation.New(client,
			invoke(b, "save-integration-credentials", sealCredentials(vault)),
			mutation.Options{
				Name:        MutSaveIntegrationCredentials,
				Invalidates: []string{OpIntegrations},
				Publisher:   pub,
			}),
		RecordAIUsage: mutation.New(client,
			invoke[AIUsageRecord](b, "record-ai-usage", nil),
			mutation.Options{
				Name:        MutRecordAIUsage,
				Invalidates: []string{OpAIUsage, OpAIBillingSummary},
				Publisher:   pub,
			}),
	}
}

// invoke validates the input, optionally transforms it into the request
// body and calls a backend function.
func invoke[V any](b backend.Backend, function string, body func(V) (any, error)) func(context.Context, V) (json.RawMessage, error) {
	return func(ctx context.Context, v V) (json.RawMessage, error) {
		if verr := validation.ValidateStruct(&v); verr != nil {
			return nil, verr
		}
		var payload any = v
		if body != nil {
			var err error
			if payload, err = body(v); err != nil {
				return nil, err
			}
		}
		return b.Invoke(ctx, function, payload)
	}
}

type sealedCredentials struct {
	Integration string `json:"integration"`
	Ciphertext  string `json:"ciphertext"`
	Hint        string `json:"hint"`
}

func sealCredentials(vault *config.CredentialVault) func(IntegrationCredentials) (any, error) {
	return func(in IntegrationCredentials) (any, error) {
		if vault == nil {
			return nil, ErrVaultUnavailable
		}
		ct, err := vault.Encrypt(in.Integration, in.Credential)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt %s credentials: %w", in.Integration, err)
		}
		return sealedCredentials{
			Integration: in.Integration,
			Ciphertext:  ct,
			Hint:        config.MaskCredential(in.Credential),
		}, nil
	}
}
