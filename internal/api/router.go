package api

import (
	"net/http"

	"github.com/helixbridge/genconsent/internal/middleware"
	"github.com/helixbridge/genconsent/internal/roles"
)

// RouterConfig carries the handler groups mounted by NewRouter.
type RouterConfig struct {
	Governance *GovernanceHandlers
	Consents   *ConsentHandlers
	Access     *AccessHandlers
	Records    *RecordHandlers
	Audit      *AuditHandlers
	Health     *HealthHandlers

	// Authenticate wraps every non-health route when set.
	Authenticate func(http.Handler) http.Handler
}

// NewRouter builds the API route table. Health and readiness stay outside
// authentication; everything else requires a valid principal, with
// capability gates on the mutating routes.
func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", cfg.Health.Health)
	mux.HandleFunc("GET /ready", cfg.Health.Ready)

	authed := http.NewServeMux()

	// Governance. Proposals are open to any authenticated caller; voting is
	// capability-gated (every role carries it, but the gate keeps the rule
	// in one place).
	authed.HandleFunc("POST /governance/proposals", cfg.Governance.Propose)
	authed.HandleFunc("GET /governance/proposals", cfg.Governance.List)
	authed.HandleFunc("GET /governance/proposals/{id}", cfg.Governance.Get)
	authed.Handle("POST /governance/proposals/{id}/votes",
		requireCap(roles.CapVote, http.HandlerFunc(cfg.Governance.Vote)))

	// Consents.
	authed.Handle("POST /consents",
		requireCap(roles.CapDecideConsent, http.HandlerFunc(cfg.Consents.Grant)))
	authed.Handle("POST /consents/{id}/revoke",
		requireCap(roles.CapDecideConsent, http.HandlerFunc(cfg.Consents.Revoke)))
	authed.HandleFunc("GET /consents", cfg.Consents.List)
	authed.HandleFunc("GET /consents/{id}", cfg.Consents.Get)
	authed.HandleFunc("GET /consents/{id}/active", cfg.Consents.Active)

	// Access requests.
	authed.Handle("POST /access-requests",
		requireCap(roles.CapRequestAccess, http.HandlerFunc(cfg.Access.Submit)))
	authed.Handle("POST /access-requests/{id}/decision",
		requireCap(roles.CapDecideConsent, http.HandlerFunc(cfg.Access.Decide)))
	authed.HandleFunc("GET /access-requests", cfg.Access.List)
	authed.HandleFunc("GET /access-requests/{id}", cfg.Access.Get)

	// Dataset records.
	authed.Handle("POST /records",
		requireCap(roles.CapUploadRecord, http.HandlerFunc(cfg.Records.Register)))
	authed.HandleFunc("POST /records/{id}/verify", cfg.Records.Verify)
	authed.HandleFunc("GET /records", cfg.Records.List)
	authed.HandleFunc("GET /records/{id}", cfg.Records.Get)

	// Audit trail.
	authed.HandleFunc("GET /audit/events", cfg.Audit.List)

	var protected http.Handler = authed
	if cfg.Authenticate != nil {
		protected = cfg.Authenticate(authed)
	}
	mux.Handle("/", protected)

	return mux
}

func requireCap(cap roles.Capability, next http.Handler) http.Handler {
	return middleware.RequireCapability(cap)(next)
}
