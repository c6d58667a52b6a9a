package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/helixbridge/genconsent/internal/governance"
	"github.com/helixbridge/genconsent/internal/middleware"
	"github.com/helixbridge/genconsent/internal/roles"
)

// ProposeRequest represents the request body for creating an admission proposal.
type ProposeRequest struct {
	Applicant   string `json:"applicant"`
	Role        string `json:"role"`
	Name        string `json:"name,omitempty"`
	Contact     string `json:"contact,omitempty"`
	Institution string `json:"institution,omitempty"`
}

// VoteRequest represents the request body for casting a vote.
type VoteRequest struct {
	Voter   string `json:"voter"`
	Approve bool   `json:"approve"`
}

// GovernanceHandlers holds dependencies for governance HTTP handlers.
type GovernanceHandlers struct {
	engine       *governance.Engine
	votingPeriod time.Duration
}

// NewGovernanceHandlers creates a new GovernanceHandlers instance.
func NewGovernanceHandlers(engine *governance.Engine, votingPeriod time.Duration) *GovernanceHandlers {
	return &GovernanceHandlers{engine: engine, votingPeriod: votingPeriod}
}

// Propose handles POST /governance/proposals - submits an admission proposal.
func (h *GovernanceHandlers) Propose(w http.ResponseWriter, r *http.Request) {
	var req ProposeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	role, err := roles.Parse(req.Role)
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "role must be patient, lab or researcher")
		return
	}

	profile := governance.Profile{
		Name:        strings.TrimSpace(req.Name),
		Contact:     strings.TrimSpace(req.Contact),
		Institution: strings.TrimSpace(req.Institution),
	}
	proposal, err := h.engine.Propose(r.Context(), strings.TrimSpace(req.Applicant), role, profile, h.votingPeriod)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, proposal)
}

// Vote handles POST /governance/proposals/{id}/votes - casts a vote.
func (h *GovernanceHandlers) Vote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	proposal, err := h.engine.CastVote(r.Context(), r.PathValue("id"), strings.TrimSpace(req.Voter), req.Approve)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, proposal)
}

// Get handles GET /governance/proposals/{id}.
func (h *GovernanceHandlers) Get(w http.ResponseWriter, r *http.Request) {
	proposal, err := h.engine.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, proposal)
}

// List handles GET /governance/proposals.
func (h *GovernanceHandlers) List(w http.ResponseWriter, r *http.Request) {
	proposals, err := h.engine.List(r.Context())
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	if proposals == nil {
		proposals = []*governance.Proposal{}
	}
	WriteJSON(w, http.StatusOK, proposals)
}
