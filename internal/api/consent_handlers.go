package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/helixbridge/genconsent/internal/consent"
	"github.com/helixbridge/genconsent/internal/middleware"
)

// GrantConsentRequest represents the request body for granting a consent.
type GrantConsentRequest struct {
	Patient      string `json:"patient"`
	Researcher   string `json:"researcher"`
	DatasetID    string `json:"dataset_id"`
	DurationDays int    `json:"duration_days"`
}

// ConsentHandlers holds dependencies for consent HTTP handlers.
type ConsentHandlers struct {
	manager *consent.Manager
}

// NewConsentHandlers creates a new ConsentHandlers instance.
func NewConsentHandlers(manager *consent.Manager) *ConsentHandlers {
	return &ConsentHandlers{manager: manager}
}

// Grant handles POST /consents - issues a consent grant.
func (h *ConsentHandlers) Grant(w http.ResponseWriter, r *http.Request) {
	var req GrantConsentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	grant, err := h.manager.Grant(r.Context(),
		strings.TrimSpace(req.Patient),
		strings.TrimSpace(req.Researcher),
		strings.TrimSpace(req.DatasetID),
		req.DurationDays)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, grant)
}

// Revoke handles POST /consents/{id}/revoke.
func (h *ConsentHandlers) Revoke(w http.ResponseWriter, r *http.Request) {
	grant, err := h.manager.Revoke(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, grant)
}

// Get handles GET /consents/{id}.
func (h *ConsentHandlers) Get(w http.ResponseWriter, r *http.Request) {
	grant, err := h.manager.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, grant)
}

// ActiveResponse reports the read-time activity evaluation of a consent.
type ActiveResponse struct {
	ConsentID string `json:"consent_id"`
	Active    bool   `json:"active"`
}

// Active handles GET /consents/{id}/active - evaluates the consent now.
func (h *ConsentHandlers) Active(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	active, err := h.manager.IsActive(r.Context(), id)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, ActiveResponse{ConsentID: id, Active: active})
}

// ConsentSummary is a grant with its display status derived at read time.
type ConsentSummary struct {
	*consent.Grant
	Status string `json:"status"` // active, expired, scheduled or revoked
}

// List handles GET /consents?patient=... - lists a patient's grants.
func (h *ConsentHandlers) List(w http.ResponseWriter, r *http.Request) {
	patient := strings.TrimSpace(r.URL.Query().Get("patient"))
	if patient == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "patient query parameter is required")
		return
	}
	grants, err := h.manager.ListByPatient(r.Context(), patient)
	if err != nil {
		WriteFault(w, r, err)
		return
	}

	now := time.Now().UTC()
	summaries := make([]ConsentSummary, 0, len(grants))
	for _, g := range grants {
		summaries = append(summaries, ConsentSummary{Grant: g, Status: g.Label(now)})
	}
	WriteJSON(w, http.StatusOK, summaries)
}
