package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/helixbridge/genconsent/internal/access"
	"github.com/helixbridge/genconsent/internal/audit"
	"github.com/helixbridge/genconsent/internal/auth"
	"github.com/helixbridge/genconsent/internal/consent"
	"github.com/helixbridge/genconsent/internal/governance"
	"github.com/helixbridge/genconsent/internal/ledger"
	"github.com/helixbridge/genconsent/internal/member"
	"github.com/helixbridge/genconsent/internal/middleware"
	"github.com/helixbridge/genconsent/internal/record"
	"github.com/helixbridge/genconsent/internal/roles"
	"github.com/helixbridge/genconsent/internal/sequence"
)

// stubLocator stands in for the content store.
type stubLocator struct{}

func (stubLocator) Resolve(_ context.Context, contentHash, fileKind string) (string, error) {
	return fmt.Sprintf("s3://genomes/records/%s.%s", contentHash, fileKind), nil
}

// stubChecker is a canned health checker.
type stubChecker struct{ err error }

func (s stubChecker) HealthCheck(context.Context) error { return s.err }

type apiFixture struct {
	router        http.Handler
	fake          *ledger.Fake
	members       *member.InMemoryRepository
	ledgerChecker *stubChecker
}

// newAPIFixture wires the full route table over in-memory stores, with a
// lab and a patient admitted. Authentication is left off; the capability
// and token paths have their own tests.
func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	fake := ledger.NewFake()
	members := member.NewInMemoryRepository()
	events := audit.NewInMemoryRepository()
	trail := audit.NewTrail(events, sequence.NewInMemoryCounter())
	counter := sequence.NewInMemoryCounter()
	metrics := ledger.NewMetrics()

	for _, m := range []struct {
		addr string
		role roles.Role
	}{{"0xlab1", roles.Lab}, {"0xpat1", roles.Patient}} {
		if err := members.Create(context.Background(), &member.Member{Address: m.addr, Role: m.role}); err != nil {
			t.Fatalf("seed member: %v", err)
		}
		fake.MemberCounts[m.role]++
	}

	engine := governance.NewEngine(governance.NewInMemoryRepository(), members, fake, trail, metrics, nil)
	consents := consent.NewManager(consent.NewInMemoryRepository(), fake, trail, counter, metrics, nil)
	workflow := access.NewWorkflow(access.NewInMemoryRepository(), consents, trail, counter, nil)
	records := record.NewService(record.NewInMemoryRepository(), members, stubLocator{}, fake, trail, counter, metrics, nil)

	ledgerChecker := &stubChecker{}
	router := NewRouter(RouterConfig{
		Governance: NewGovernanceHandlers(engine, 72*time.Hour),
		Consents:   NewConsentHandlers(consents),
		Access:     NewAccessHandlers(workflow),
		Records:    NewRecordHandlers(records),
		Audit:      NewAuditHandlers(events),
		Health: NewHealthHandlers(HealthHandlersConfig{
			DBChecker:     stubChecker{},
			LedgerChecker: ledgerChecker,
		}),
	})
	return &apiFixture{router: router, fake: fake, members: members, ledgerChecker: ledgerChecker}
}

func (f *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeErrorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return resp.Error.Code
}

func TestProposeEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/governance/proposals", ProposeRequest{
		Applicant: "0xlab2", Role: "lab", Name: "Second Lab",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var proposal governance.Proposal
	if err := json.Unmarshal(rec.Body.Bytes(), &proposal); err != nil {
		t.Fatalf("decode proposal: %v", err)
	}
	if proposal.Status != governance.StatusPending {
		t.Errorf("status = %v, want pending with an existing lab", proposal.Status)
	}

	got := f.do(t, http.MethodGet, "/governance/proposals/"+proposal.ID, nil)
	if got.Code != http.StatusOK {
		t.Errorf("get proposal status = %d", got.Code)
	}
}

func TestProposeEndpointValidation(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/governance/proposals", ProposeRequest{Applicant: "0xlab2", Role: "admin"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeValidation {
		t.Errorf("code = %q, want %q", code, ErrCodeValidation)
	}

	req := httptest.NewRequest(http.MethodPost, "/governance/proposals", bytes.NewBufferString("{not json"))
	malformed := httptest.NewRecorder()
	f.router.ServeHTTP(malformed, req)
	if malformed.Code != http.StatusBadRequest {
		t.Errorf("malformed body status = %d, want 400", malformed.Code)
	}
	if code := decodeErrorCode(t, malformed); code != ErrCodeBadRequest {
		t.Errorf("code = %q, want %q", code, ErrCodeBadRequest)
	}
}

func TestProposeEndpointLedgerUnavailable(t *testing.T) {
	f := newAPIFixture(t)
	f.fake.SetReachable(false)

	rec := f.do(t, http.MethodPost, "/governance/proposals", ProposeRequest{Applicant: "0xlab2", Role: "lab"})
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
	if code := decodeErrorCode(t, rec); code != ErrCodeLedgerUnavailable {
		t.Errorf("code = %q, want %q", code, ErrCodeLedgerUnavailable)
	}
}

func TestVoteEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/governance/proposals", ProposeRequest{Applicant: "0xlab2", Role: "lab"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("propose status = %d", rec.Code)
	}
	var proposal governance.Proposal
	if err := json.Unmarshal(rec.Body.Bytes(), &proposal); err != nil {
		t.Fatalf("decode proposal: %v", err)
	}

	vote := f.do(t, http.MethodPost, "/governance/proposals/"+proposal.ID+"/votes", VoteRequest{Voter: "0xlab1", Approve: true})
	if vote.Code != http.StatusOK {
		t.Fatalf("vote status = %d, body = %s", vote.Code, vote.Body.String())
	}
	var after governance.Proposal
	if err := json.Unmarshal(vote.Body.Bytes(), &after); err != nil {
		t.Fatalf("decode proposal: %v", err)
	}
	if after.Status != governance.StatusApproved {
		t.Errorf("status = %v, want approved by the single existing lab", after.Status)
	}

	again := f.do(t, http.MethodPost, "/governance/proposals/"+proposal.ID+"/votes", VoteRequest{Voter: "0xlab1", Approve: true})
	if again.Code != http.StatusConflict {
		t.Errorf("vote on decided proposal status = %d, want 409", again.Code)
	}
	if code := decodeErrorCode(t, again); code != ErrCodePrecondition {
		t.Errorf("code = %q, want %q", code, ErrCodePrecondition)
	}
}

func TestConsentLifecycleEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/consents", GrantConsentRequest{
		Patient: "0xpat1", Researcher: "0xres1", DatasetID: "GR-001", DurationDays: 30,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("grant status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var grant consent.Grant
	if err := json.Unmarshal(rec.Body.Bytes(), &grant); err != nil {
		t.Fatalf("decode grant: %v", err)
	}

	active := f.do(t, http.MethodGet, "/consents/"+grant.ID+"/active", nil)
	if active.Code != http.StatusOK {
		t.Fatalf("active status = %d", active.Code)
	}
	var activeResp ActiveResponse
	if err := json.Unmarshal(active.Body.Bytes(), &activeResp); err != nil {
		t.Fatalf("decode active: %v", err)
	}
	if !activeResp.Active {
		t.Error("fresh grant should be active")
	}

	revoke := f.do(t, http.MethodPost, "/consents/"+grant.ID+"/revoke", nil)
	if revoke.Code != http.StatusOK {
		t.Fatalf("revoke status = %d, body = %s", revoke.Code, revoke.Body.String())
	}

	again := f.do(t, http.MethodPost, "/consents/"+grant.ID+"/revoke", nil)
	if again.Code != http.StatusConflict {
		t.Errorf("second revoke status = %d, want 409", again.Code)
	}

	missing := f.do(t, http.MethodGet, "/consents/CN-9999", nil)
	if missing.Code != http.StatusNotFound {
		t.Errorf("missing consent status = %d, want 404", missing.Code)
	}
	if code := decodeErrorCode(t, missing); code != ErrCodeNotFound {
		t.Errorf("code = %q, want %q", code, ErrCodeNotFound)
	}

	list := f.do(t, http.MethodGet, "/consents?patient=0xpat1", nil)
	if list.Code != http.StatusOK {
		t.Errorf("list status = %d", list.Code)
	}
	var summaries []ConsentSummary
	if err := json.Unmarshal(list.Body.Bytes(), &summaries); err != nil {
		t.Fatalf("decode summaries: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Status != "revoked" {
		t.Errorf("summaries = %+v, want one revoked grant", summaries)
	}
	noParam := f.do(t, http.MethodGet, "/consents", nil)
	if noParam.Code != http.StatusBadRequest {
		t.Errorf("list without patient status = %d, want 400", noParam.Code)
	}
}

func TestAccessRequestEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/access-requests", SubmitAccessRequest{
		Patient: "0xpat1", ResearcherKey: "0xres1", DatasetID: "GR-001",
		Purpose: "cohort study", DurationDays: 14,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("submit status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var request access.Request
	if err := json.Unmarshal(rec.Body.Bytes(), &request); err != nil {
		t.Fatalf("decode request: %v", err)
	}

	decide := f.do(t, http.MethodPost, "/access-requests/"+request.ID+"/decision", DecideAccessRequest{Approve: true})
	if decide.Code != http.StatusOK {
		t.Fatalf("decide status = %d, body = %s", decide.Code, decide.Body.String())
	}
	var decided access.Request
	if err := json.Unmarshal(decide.Body.Bytes(), &decided); err != nil {
		t.Fatalf("decode decided: %v", err)
	}
	if decided.Status != access.StatusApproved || decided.ConsentID == "" {
		t.Errorf("decided = %+v, want approved with linked consent", decided)
	}

	again := f.do(t, http.MethodPost, "/access-requests/"+request.ID+"/decision", DecideAccessRequest{Approve: false})
	if again.Code != http.StatusConflict {
		t.Errorf("second decision status = %d, want 409", again.Code)
	}
}

func TestRecordEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/records", RegisterRecordRequest{
		Patient: "0xpat1", Lab: "0xlab1", ContentHash: "sha256:abc123", FileKind: "vcf",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var registered record.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &registered); err != nil {
		t.Fatalf("decode record: %v", err)
	}

	f.fake.RecordHashes[registered.ID] = "sha256:abc123"
	verify := f.do(t, http.MethodPost, "/records/"+registered.ID+"/verify", nil)
	if verify.Code != http.StatusOK {
		t.Fatalf("verify status = %d, body = %s", verify.Code, verify.Body.String())
	}
	var verified VerifyResponse
	if err := json.Unmarshal(verify.Body.Bytes(), &verified); err != nil {
		t.Fatalf("decode verify: %v", err)
	}
	if !verified.Verified {
		t.Error("matching hash should verify")
	}

	rogue := f.do(t, http.MethodPost, "/records", RegisterRecordRequest{
		Patient: "0xpat1", Lab: "0xrogue", ContentHash: "sha256:def", FileKind: "bam",
	})
	if rogue.Code != http.StatusConflict {
		t.Errorf("unapproved lab status = %d, want 409", rogue.Code)
	}
	if code := decodeErrorCode(t, rogue); code != ErrCodePrecondition {
		t.Errorf("code = %q, want %q", code, ErrCodePrecondition)
	}
}

func TestAuditEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	if rec := f.do(t, http.MethodPost, "/consents", GrantConsentRequest{
		Patient: "0xpat1", Researcher: "0xres1", DatasetID: "GR-001", DurationDays: 30,
	}); rec.Code != http.StatusCreated {
		t.Fatalf("grant status = %d", rec.Code)
	}

	list := f.do(t, http.MethodGet, "/audit/events", nil)
	if list.Code != http.StatusOK {
		t.Fatalf("list status = %d", list.Code)
	}
	var events []*audit.Event
	if err := json.Unmarshal(list.Body.Bytes(), &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.ActionConsentGranted {
		t.Errorf("events = %+v, want one consent_granted", events)
	}

	byActor := f.do(t, http.MethodGet, "/audit/events?actor=0xpat1", nil)
	if byActor.Code != http.StatusOK {
		t.Errorf("actor filter status = %d", byActor.Code)
	}
	badRole := f.do(t, http.MethodGet, "/audit/events?role=admin", nil)
	if badRole.Code != http.StatusBadRequest {
		t.Errorf("bad role filter status = %d, want 400", badRole.Code)
	}
	badLimit := f.do(t, http.MethodGet, "/audit/events?limit=-3", nil)
	if badLimit.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", badLimit.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)

	health := f.do(t, http.MethodGet, "/health", nil)
	if health.Code != http.StatusOK {
		t.Errorf("health status = %d", health.Code)
	}

	ready := f.do(t, http.MethodGet, "/ready", nil)
	if ready.Code != http.StatusOK {
		t.Fatalf("ready status = %d", ready.Code)
	}
	var resp HealthResponse
	if err := json.Unmarshal(ready.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if resp.Status != "ready" {
		t.Errorf("status = %q, want ready", resp.Status)
	}

	// An unreachable ledger degrades but keeps serving.
	f.ledgerChecker.err = errors.New("ledger down")
	degraded := f.do(t, http.MethodGet, "/ready", nil)
	if degraded.Code != http.StatusOK {
		t.Errorf("degraded ready status = %d, want 200", degraded.Code)
	}
	if err := json.Unmarshal(degraded.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode degraded: %v", err)
	}
	if resp.Status != "degraded" {
		t.Errorf("status = %q, want degraded", resp.Status)
	}
}

func TestRouterAuthentication(t *testing.T) {
	f := newAPIFixture(t)
	jwtService := auth.NewJWTService("test-secret")

	// Rebuild the router with authentication on. The fixture router is
	// open; this one is what main wires.
	authRouter := NewRouter(RouterConfig{
		Governance: NewGovernanceHandlers(governance.NewEngine(governance.NewInMemoryRepository(), f.members, f.fake, audit.NewTrail(audit.NewInMemoryRepository(), sequence.NewInMemoryCounter()), ledger.NewMetrics(), nil), time.Hour),
		Consents:   NewConsentHandlers(consent.NewManager(consent.NewInMemoryRepository(), f.fake, audit.NewTrail(audit.NewInMemoryRepository(), sequence.NewInMemoryCounter()), sequence.NewInMemoryCounter(), ledger.NewMetrics(), nil)),
		Access:     NewAccessHandlers(access.NewWorkflow(access.NewInMemoryRepository(), consent.NewManager(consent.NewInMemoryRepository(), f.fake, audit.NewTrail(audit.NewInMemoryRepository(), sequence.NewInMemoryCounter()), sequence.NewInMemoryCounter(), ledger.NewMetrics(), nil), audit.NewTrail(audit.NewInMemoryRepository(), sequence.NewInMemoryCounter()), sequence.NewInMemoryCounter(), nil)),
		Records:    NewRecordHandlers(record.NewService(record.NewInMemoryRepository(), f.members, stubLocator{}, f.fake, audit.NewTrail(audit.NewInMemoryRepository(), sequence.NewInMemoryCounter()), sequence.NewInMemoryCounter(), ledger.NewMetrics(), nil)),
		Audit:        NewAuditHandlers(audit.NewInMemoryRepository()),
		Health:       NewHealthHandlers(HealthHandlersConfig{}),
		Authenticate: middleware.Authenticate(jwtService),
	})

	// No token: 401 on protected routes, health stays open.
	rec := httptest.NewRecorder()
	authRouter.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/consents?patient=0xpat1", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", rec.Code)
	}
	open := httptest.NewRecorder()
	authRouter.ServeHTTP(open, httptest.NewRequest(http.MethodGet, "/health", nil))
	if open.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200 without a token", open.Code)
	}

	// A researcher cannot grant consents.
	token, err := jwtService.GenerateToken("0xres1", roles.Researcher)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	body, _ := json.Marshal(GrantConsentRequest{Patient: "0xpat1", Researcher: "0xres1", DatasetID: "GR-001", DurationDays: 7})
	req := httptest.NewRequest(http.MethodPost, "/consents", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	forbidden := httptest.NewRecorder()
	authRouter.ServeHTTP(forbidden, req)
	if forbidden.Code != http.StatusForbidden {
		t.Errorf("researcher grant status = %d, want 403", forbidden.Code)
	}

	// A patient can.
	patientToken, err := jwtService.GenerateToken("0xpat1", roles.Patient)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	req = httptest.NewRequest(http.MethodPost, "/consents", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+patientToken)
	allowed := httptest.NewRecorder()
	authRouter.ServeHTTP(allowed, req)
	if allowed.Code != http.StatusCreated {
		t.Errorf("patient grant status = %d, want 201; body = %s", allowed.Code, allowed.Body.String())
	}
}
