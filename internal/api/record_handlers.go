package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/helixbridge/genconsent/internal/middleware"
	"github.com/helixbridge/genconsent/internal/record"
)

// RegisterRecordRequest represents the request body for registering a dataset record.
type RegisterRecordRequest struct {
	Patient     string `json:"patient"`
	Lab         string `json:"lab"`
	ContentHash string `json:"content_hash"`
	FileKind    string `json:"file_kind"`
}

// VerifyResponse reports an integrity verification outcome.
type VerifyResponse struct {
	RecordID string `json:"record_id"`
	Verified bool   `json:"verified"`
}

// RecordHandlers holds dependencies for dataset record HTTP handlers.
type RecordHandlers struct {
	service *record.Service
}

// NewRecordHandlers creates a new RecordHandlers instance.
func NewRecordHandlers(service *record.Service) *RecordHandlers {
	return &RecordHandlers{service: service}
}

// Register handles POST /records.
func (h *RecordHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "Invalid JSON in request body")
		return
	}

	rec, err := h.service.Register(r.Context(),
		strings.TrimSpace(req.Patient),
		strings.TrimSpace(req.Lab),
		strings.TrimSpace(req.ContentHash),
		strings.TrimSpace(req.FileKind))
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusCreated, rec)
}

// Verify handles POST /records/{id}/verify.
func (h *RecordHandlers) Verify(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	verified, err := h.service.VerifyIntegrity(r.Context(), id)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, VerifyResponse{RecordID: id, Verified: verified})
}

// Get handles GET /records/{id}.
func (h *RecordHandlers) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rec)
}

// List handles GET /records?patient=... - lists a patient's records.
func (h *RecordHandlers) List(w http.ResponseWriter, r *http.Request) {
	patient := strings.TrimSpace(r.URL.Query().Get("patient"))
	if patient == "" {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "patient query parameter is required")
		return
	}
	records, err := h.service.ListByPatient(r.Context(), patient)
	if err != nil {
		WriteFault(w, r, err)
		return
	}
	if records == nil {
		records = []*record.Record{}
	}
	WriteJSON(w, http.StatusOK, records)
}
