package access

import (
	"context"
	"testing"

	"github.com/helixbridge/genconsent/internal/audit"
	"github.com/helixbridge/genconsent/internal/consent"
	"github.com/helixbridge/genconsent/internal/fault"
	"github.com/helixbridge/genconsent/internal/ledger"
	"github.com/helixbridge/genconsent/internal/sequence"
)

type workflowFixture struct {
	workflow *Workflow
	fake     *ledger.Fake
	grants   *consent.InMemoryRepository
	events   *audit.InMemoryRepository
}

func newWorkflowFixture(t *testing.T) *workflowFixture {
	t.Helper()
	fake := ledger.NewFake()
	grants := consent.NewInMemoryRepository()
	events := audit.NewInMemoryRepository()
	trail := audit.NewTrail(events, sequence.NewInMemoryCounter())
	counter := sequence.NewInMemoryCounter()
	consents := consent.NewManager(grants, fake, trail, counter, ledger.NewMetrics(), nil)
	workflow := NewWorkflow(NewInMemoryRepository(), consents, trail, counter, nil)
	return &workflowFixture{workflow: workflow, fake: fake, grants: grants, events: events}
}

func newResearcher() ResearcherProfile {
	return ResearcherProfile{Key: "0xres1", Name: "Dr. Chen", Institution: "Genome Center"}
}

func TestSubmit(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Submit(ctx, "0xpat1", newResearcher(), "GR-001", "rare disease cohort", 30)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.ID != "AR-0001" {
		t.Errorf("id = %q, want AR-0001", req.ID)
	}
	if req.Status != StatusPending {
		t.Errorf("status = %v, want pending", req.Status)
	}
	if !ledger.IsOfflineToken(req.SubmitToken) {
		t.Errorf("submit token %q should be offline-style; submission never hits the ledger", req.SubmitToken)
	}
	if f.fake.SubmittedCount() != 0 {
		t.Errorf("ledger received %d writes on submission", f.fake.SubmittedCount())
	}

	events, err := f.events.ListByActor(ctx, "0xres1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].Action != audit.ActionAccessRequested {
		t.Errorf("events = %+v, want one access_requested", events)
	}
}

func TestSubmitValidation(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	tests := []struct {
		name         string
		patient      string
		researcher   ResearcherProfile
		datasetID    string
		purpose      string
		durationDays int
	}{
		{"empty patient", "", newResearcher(), "GR-001", "study", 30},
		{"empty researcher key", "0xpat1", ResearcherProfile{Name: "Dr. Chen"}, "GR-001", "study", 30},
		{"empty dataset", "0xpat1", newResearcher(), "", "study", 30},
		{"empty purpose", "0xpat1", newResearcher(), "GR-001", "", 30},
		{"zero duration", "0xpat1", newResearcher(), "GR-001", "study", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.workflow.Submit(ctx, tt.patient, tt.researcher, tt.datasetID, tt.purpose, tt.durationDays)
			if fault.KindOf(err) != fault.KindValidation {
				t.Errorf("kind = %v, want validation", fault.KindOf(err))
			}
		})
	}
}

func TestDecideApproveCreatesConsent(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Submit(ctx, "0xpat1", newResearcher(), "GR-001", "study", 14)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	decided, err := f.workflow.Decide(ctx, req.ID, true)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != StatusApproved {
		t.Errorf("status = %v, want approved", decided.Status)
	}
	if decided.ConsentID == "" {
		t.Fatal("approval should link the created consent")
	}
	if decided.DecidedAt == nil {
		t.Error("decision timestamp missing")
	}

	grant, err := f.grants.GetByID(ctx, decided.ConsentID)
	if err != nil {
		t.Fatalf("linked consent not found: %v", err)
	}
	if grant.Patient != "0xpat1" || grant.Researcher != "0xres1" || grant.DatasetID != "GR-001" {
		t.Errorf("grant = %+v", grant)
	}
	if want := grant.Start.AddDate(0, 0, 14); !grant.End.Equal(want) {
		t.Errorf("grant end = %v, want requested duration %v", grant.End, want)
	}
	if decided.ResolutionToken != grant.GrantToken {
		t.Errorf("resolution token %q should be the grant token %q", decided.ResolutionToken, grant.GrantToken)
	}
}

func TestDecideReject(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Submit(ctx, "0xpat1", newResearcher(), "GR-001", "study", 14)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	decided, err := f.workflow.Decide(ctx, req.ID, false)
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != StatusRejected {
		t.Errorf("status = %v, want rejected", decided.Status)
	}
	if decided.ConsentID != "" {
		t.Error("rejection must not create a consent")
	}
	if !ledger.IsOfflineToken(decided.ResolutionToken) {
		t.Errorf("rejection token %q should be synthesized", decided.ResolutionToken)
	}
	if f.fake.SubmittedCount() != 0 {
		t.Errorf("ledger received %d writes for a rejection", f.fake.SubmittedCount())
	}
}

func TestDecideIsOneShot(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Submit(ctx, "0xpat1", newResearcher(), "GR-001", "study", 14)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.workflow.Decide(ctx, req.ID, true); err != nil {
		t.Fatalf("first decision: %v", err)
	}

	if _, err := f.workflow.Decide(ctx, req.ID, false); fault.KindOf(err) != fault.KindPrecondition {
		t.Errorf("second decision: kind = %v, want precondition", fault.KindOf(err))
	}
	if _, err := f.workflow.Decide(ctx, req.ID, true); fault.KindOf(err) != fault.KindPrecondition {
		t.Errorf("repeated approval: kind = %v, want precondition", fault.KindOf(err))
	}
}

func TestDecideNotFound(t *testing.T) {
	f := newWorkflowFixture(t)

	if _, err := f.workflow.Decide(context.Background(), "AR-9999", true); fault.KindOf(err) != fault.KindNotFound {
		t.Errorf("kind = %v, want not_found", fault.KindOf(err))
	}
}

func TestDecideApproveDuringOutage(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	req, err := f.workflow.Submit(ctx, "0xpat1", newResearcher(), "GR-001", "study", 14)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The underlying grant degrades; the decision itself still lands.
	f.fake.SetReachable(false)
	decided, err := f.workflow.Decide(ctx, req.ID, true)
	if err != nil {
		t.Fatalf("Decide during outage: %v", err)
	}
	if decided.Status != StatusApproved {
		t.Errorf("status = %v, want approved", decided.Status)
	}
	if !ledger.IsOfflineToken(decided.ResolutionToken) {
		t.Errorf("token %q should be offline", decided.ResolutionToken)
	}
}

func TestListByPatient(t *testing.T) {
	f := newWorkflowFixture(t)
	ctx := context.Background()

	if _, err := f.workflow.Submit(ctx, "0xpat1", newResearcher(), "GR-001", "study a", 30); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := f.workflow.Submit(ctx, "0xpat2", newResearcher(), "GR-002", "study b", 30); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	requests, err := f.workflow.ListByPatient(ctx, "0xpat1")
	if err != nil {
		t.Fatalf("ListByPatient: %v", err)
	}
	if len(requests) != 1 || requests[0].Patient != "0xpat1" {
		t.Errorf("requests = %+v, want the single patient request", requests)
	}
}
