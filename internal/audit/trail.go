package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/helixbridge/genconsent/internal/sequence"
)

// ErrEmptyReferenceToken is returned when an entry arrives without a
// settlement proof. Every state transition carries either a ledger
// transaction token or an offline placeholder; an empty token would leave
// the event unverifiable.
var ErrEmptyReferenceToken = errors.New("reference token must not be empty")

// ErrEmptyAction is returned when an entry has no action kind.
var ErrEmptyAction = errors.New("action must not be empty")

// Trail appends immutable events with sequential identifiers.
type Trail struct {
	repo    Repository
	counter sequence.Counter
	now     func() time.Time // for testability
}

// NewTrail creates an audit trail over the given repository and counter.
func NewTrail(repo Repository, counter sequence.Counter) *Trail {
	return &Trail{
		repo:    repo,
		counter: counter,
		now:     time.Now,
	}
}

// Append records one event and returns it with its assigned identifier.
func (t *Trail) Append(ctx context.Context, entry Entry) (*Event, error) {
	if entry.Action == "" {
		return nil, ErrEmptyAction
	}
	if entry.ReferenceToken == "" {
		return nil, ErrEmptyReferenceToken
	}

	n, err := t.counter.Next(ctx, sequence.KindAuditEvent)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve audit event id: %w", err)
	}

	event := &Event{
		ID:             sequence.Format(sequence.KindAuditEvent, n),
		Timestamp:      t.now().UTC(),
		Action:         entry.Action,
		ActorKey:       entry.ActorKey,
		ActorRole:      entry.ActorRole,
		TargetID:       entry.TargetID,
		ReferenceToken: entry.ReferenceToken,
		Detail:         entry.Detail,
	}
	if err := t.repo.Insert(ctx, event); err != nil {
		return nil, err
	}
	return event, nil
}
