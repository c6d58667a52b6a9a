package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/helixbridge/genconsent/internal/roles"
	"github.com/helixbridge/genconsent/internal/sequence"
)

func newTrail() (*Trail, *InMemoryRepository) {
	repo := NewInMemoryRepository()
	return NewTrail(repo, sequence.NewInMemoryCounter()), repo
}

func TestAppendAssignsSequentialIDs(t *testing.T) {
	trail, _ := newTrail()
	ctx := context.Background()

	first, err := trail.Append(ctx, Entry{
		Action:         ActionConsentGranted,
		ActorKey:       "0xpat1",
		ActorRole:      roles.Patient,
		TargetID:       "CN-0001",
		ReferenceToken: "txn-000001",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if first.ID != "AE-000001" {
		t.Errorf("first id = %q, want AE-000001", first.ID)
	}
	if first.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}

	second, err := trail.Append(ctx, Entry{
		Action:         ActionConsentRevoked,
		ActorKey:       "0xpat1",
		ActorRole:      roles.Patient,
		TargetID:       "CN-0001",
		ReferenceToken: "txn-000002",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if second.ID != "AE-000002" {
		t.Errorf("second id = %q, want AE-000002", second.ID)
	}
}

func TestAppendRejectsIncompleteEntries(t *testing.T) {
	trail, repo := newTrail()
	ctx := context.Background()

	_, err := trail.Append(ctx, Entry{ReferenceToken: "txn-000001"})
	if !errors.Is(err, ErrEmptyAction) {
		t.Errorf("missing action: err = %v, want ErrEmptyAction", err)
	}

	_, err = trail.Append(ctx, Entry{Action: ActionVoteCast})
	if !errors.Is(err, ErrEmptyReferenceToken) {
		t.Errorf("missing token: err = %v, want ErrEmptyReferenceToken", err)
	}

	events, err := repo.List(ctx, 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("rejected entries left %d events", len(events))
	}
}

func TestRepositoryFilters(t *testing.T) {
	trail, repo := newTrail()
	ctx := context.Background()

	entries := []Entry{
		{Action: ActionProposalCreated, ActorKey: "0xlab1", ActorRole: roles.Lab, TargetID: "prop-0001", ReferenceToken: "txn-000001"},
		{Action: ActionConsentGranted, ActorKey: "0xpat1", ActorRole: roles.Patient, TargetID: "CN-0001", ReferenceToken: "txn-000002"},
		{Action: ActionConsentRevoked, ActorKey: "0xpat1", ActorRole: roles.Patient, TargetID: "CN-0001", ReferenceToken: "txn-000003"},
	}
	for _, e := range entries {
		if _, err := trail.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	byActor, err := repo.ListByActor(ctx, "0xpat1", 10)
	if err != nil {
		t.Fatalf("ListByActor: %v", err)
	}
	if len(byActor) != 2 {
		t.Errorf("patient events = %d, want 2", len(byActor))
	}

	byRole, err := repo.ListByRole(ctx, roles.Lab, 10)
	if err != nil {
		t.Fatalf("ListByRole: %v", err)
	}
	if len(byRole) != 1 || byRole[0].TargetID != "prop-0001" {
		t.Errorf("lab events = %+v", byRole)
	}

	bySubject, err := repo.SearchSubject(ctx, "CN-0001", 10)
	if err != nil {
		t.Fatalf("SearchSubject: %v", err)
	}
	if len(bySubject) != 2 {
		t.Errorf("subject events = %d, want 2", len(bySubject))
	}

	limited, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited events = %d, want 2", len(limited))
	}
}
