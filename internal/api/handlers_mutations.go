// Dashline - Operations Dashboard Data Layer
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/dashline

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/dashline/internal/dashboard"
)

// LeadStatusRequest is the body of POST /leads/{id}/status.
type LeadStatusRequest struct {
	Status string `json:"status"`
	Note   string `json:"note,omitempty"`
}

// AnalyzeCallRequest is the optional body of POST /calls/{id}/analyze.
type AnalyzeCallRequest struct {
	Force bool `json:"force,omitempty"`
}

// MutationResponse reports a completed write.
type MutationResponse struct {
	Mutation    string   `json:"mutation"`
	Invalidated []string `json:"invalidated"`
	Result      any      `json:"result,omitempty"`
}

// UpdateLeadStatus moves a lead to a new status.
func (h *Handler) UpdateLeadStatus(w http.ResponseWriter, r *http.Request) {
	var req LeadStatusRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondDecodeErr(w, r, err)
		return
	}
	m := h.dashboard.Mutations().UpdateLeadStatus
	res, err := m.Mutate(r.Context(), dashboard.LeadStatusUpdate{
		LeadID: chi.URLParam(r, "id"),
		Status: req.Status,
		Note:   req.Note,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, MutationResponse{Mutation: m.Name(), Invalidated: m.Invalidates(), Result: res})
}

// AnalyzeCall requests analysis of a recorded call.
func (h *Handler) AnalyzeCall(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeCallRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondDecodeErr(w, r, err)
		return
	}
	m := h.dashboard.Mutations().RequestCallAnalysis
	res, err := m.Mutate(r.Context(), dashboard.CallAnalysisRequest{
		CallID: chi.URLParam(r, "id"),
		Force:  req.Force,
	})
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, r, http.StatusAccepted, MutationResponse{Mutation: m.Name(), Invalidated: m.Invalidates(), Result: res})
}

// SaveIntegrationCredentials encrypts and stores an integration
// credential. The credential is never echoed back.
func (h *Handler) SaveIntegrationCredentials(w http.ResponseWriter, r *http.Request) {
	var req dashboard.IntegrationCredentials
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondDecodeErr(w, r, err)
		return
	}
	m := h.dashboard.Mutations().SaveIntegrationCredentials
	if _, err := m.Mutate(r.Context(), req); err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, r, http.StatusOK, MutationResponse{Mutation: m.Name(), Invalidated: m.Invalidates()})
}

// RecordAIUsage records one billed AI call.
func (h *Handler) RecordAIUsage(w http.ResponseWriter, r *http.Request) {
	var req dashboard.AIUsageRecord
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondDecodeErr(w, r, err)
		return
	}
	m := h.dashboard.Mutations().RecordAIUsage
	res, err := m.Mutate(r.Context(), req)
	if err != nil {
		respondErr(w, r, err)
		return
	}
	respondData(w, r, http.StatusCreated, MutationResponse{Mutation: m.Name(), Invalidated: m.Invalidates(), Result: res})
}
