package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/helixbridge/genconsent/internal/audit"
	"github.com/helixbridge/genconsent/internal/middleware"
	"github.com/helixbridge/genconsent/internal/roles"
)

// DefaultAuditLimit caps unfiltered audit listings.
const DefaultAuditLimit = 100

// AuditHandlers holds dependencies for audit trail HTTP handlers.
type AuditHandlers struct {
	repo audit.Repository
}

// NewAuditHandlers creates a new AuditHandlers instance.
func NewAuditHandlers(repo audit.Repository) *AuditHandlers {
	return &AuditHandlers{repo: repo}
}

// List handles GET /audit/events with optional filters:
// ?actor=key, ?role=lab, ?subject=term, ?limit=n. Filters are mutually
// exclusive; actor wins over role wins over subject.
func (h *AuditHandlers) List(w http.ResponseWriter, r *http.Request) {
	limit := DefaultAuditLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var (
		events []*audit.Event
		err    error
	)
	switch {
	case r.URL.Query().Get("actor") != "":
		events, err = h.repo.ListByActor(r.Context(), strings.TrimSpace(r.URL.Query().Get("actor")), limit)
	case r.URL.Query().Get("role") != "":
		var role roles.Role
		role, err = roles.Parse(r.URL.Query().Get("role"))
		if err != nil {
			ctx := middleware.SetErrorCode(r.Context(), ErrCodeValidation)
			WriteError(w, ctx, http.StatusBadRequest, ErrCodeValidation, "role must be patient, lab or researcher")
			return
		}
		events, err = h.repo.ListByRole(r.Context(), role, limit)
	case r.URL.Query().Get("subject") != "":
		events, err = h.repo.SearchSubject(r.Context(), strings.TrimSpace(r.URL.Query().Get("subject")), limit)
	default:
		events, err = h.repo.List(r.Context(), limit)
	}
	if err != nil {
		ctx := middleware.SetErrorCode(r.Context(), ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "failed to list audit events")
		return
	}
	if events == nil {
		events = []*audit.Event{}
	}
	WriteJSON(w, http.StatusOK, events)
}
