package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/helixbridge/genconsent/internal/access"
	"github.com/helixbridge/genconsent/internal/middleware"
)

// SubmitAccessRequest represents the request body for submitting an access request.
type SubmitAccessRequest struct {
	Patient               string `json:"patient"`
	ResearcherKey         string `json:"researcher_key"`
	ResearcherName        string `json:"researcher_name,omitempty"`
	ResearcherInstitution string `json:"researcher_institution,omitempty"`
	DatasetID             string `json:"dataset_id"`
	Purpose               string `json:"purpose"`
	DurationDays          int    `json:"duration_days"`
}

// DecideAccessRequest represents the request body for deciding an access request.
type DecideAccessRequest struct {
	Approve bool `json:"approve"`
}

// AccessHandlers holds dependencies for access request HTTP handlers.
type AccessHandlers struct {
	workflow *access.Workflow
}

// NewAccessHandlers creates a new AccessHandlers instance.
func NewAccessHandlers(workflow *access.Workflow) *AccessHandlers {
	return &AccessHandlers{workflow: workflow}
}

// Submit handles POST /access-requests.
func (h *AccessHandlers) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	researcher := access.ResearcherProfile{
		Key:         strings.TrimSpace(req.ResearcherKey),
		Name:        strings.TrimSpace(req.ResearcherName),
		Institution: strings.TrimSpace(req.ResearcherInstitution),
	}
	request, err := h.workflow.Submit(r.Context(),
		strings.TrimSpace(req.Patient), researcher,
		strings.TrimSpace(req.DatasetID), strings.TrimSpace(req.Purpose), req.DurationDays)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, request)
}

// Decide handles POST /access-requests/{id}/decision.
func (h *AccessHandlers) Decide(w http.ResponseWriter, r *http.Request) {
	var req DecideAccessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	request, err := h.workflow.Decide(r.Context(), r.PathValue("id"), req.Approve)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, request)
}

// Get handles GET /access-requests/{id}.
func (h *AccessHandlers) Get(w http.ResponseWriter, r *http.Request) {
	request, err := h.workflow.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, request)
}

// List handles GET /access-requests?patient=... - lists a patient's requests.
func (h *AccessHandlers) List(w http.ResponseWriter, r *http.Request) {
	patient := strings.TrimSpace(r.URL.Query().Get("patient"))
	if patient == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "patient query parameter is required")
		return
	}
	requests, err := h.workflow.ListByPatient(r.Context(), patient)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	if requests == nil {
		requests = []*access.Request{}
	}
	WriteJSON(w, http.StatusOK, requests)
}
