package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixbridge/genconsent/internal/audit"
	"github.com/helixbridge/genconsent/internal/consent"
	"github.com/helixbridge/genconsent/internal/fault"
	"github.com/helixbridge/genconsent/internal/ledger"
	"github.com/helixbridge/genconsent/internal/roles"
	"github.com/helixbridge/genconsent/internal/sequence"
)

// Workflow mediates a researcher's request for a dataset through the
// patient's one-time decision. Submission is a pure mirror-store write;
// only approval reaches the ledger, indirectly through the consent
// manager's grant.
type Workflow struct {
	requests Repository
	consents *consent.Manager
	trail    *audit.Trail
	counter  sequence.Counter
	logger   *slog.Logger
	now      func() time.Time // for testability
}

// NewWorkflow creates an access request workflow.
func NewWorkflow(requests Repository, consents *consent.Manager, trail *audit.Trail, counter sequence.Counter, logger *slog.Logger) *Workflow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Workflow{
		requests: requests,
		consents: consents,
		trail:    trail,
		counter:  counter,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit creates a Pending request with a locally-minted sequential
// identifier and an offline-style reference token.
func (w *Workflow) Submit(ctx context.Context, patient string, researcher ResearcherProfile, datasetID, purpose string, durationDays int) (*Request, error) {
	if patient == "" || researcher.Key == "" || datasetID == "" {
		return nil, fault.New(fault.KindValidation, "patient, researcher key and dataset id are required")
	}
	if purpose == "" {
		return nil, fault.New(fault.KindValidation, "purpose is required")
	}
	if durationDays <= 0 {
		return nil, fault.New(fault.KindValidation, "duration must be a positive number of days")
	}

	n, err := w.counter.Next(ctx, sequence.KindAccessRequest)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to reserve request id", err)
	}

	request := &Request{
		ID:           sequence.Format(sequence.KindAccessRequest, n),
		Patient:      patient,
		Researcher:   researcher,
		DatasetID:    datasetID,
		Purpose:      purpose,
		DurationDays: durationDays,
		Status:       StatusPending,
		SubmitToken:  ledger.NewOfflineToken(),
		CreatedAt:    w.now().UTC(),
	}
	if err := w.requests.Create(ctx, request); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to store access request", err)
	}

	if _, err := w.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionAccessRequested,
		ActorKey:       researcher.Key,
		ActorRole:      roles.Researcher,
		TargetID:       request.ID,
		ReferenceToken: request.SubmitToken,
		Detail:         fmt.Sprintf("requested %s from %s for %d days: %s", datasetID, patient, durationDays, purpose),
	}); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}
	return request, nil
}

// Decide records the patient's one-time decision. Approval creates exactly
// one consent grant with the requested duration and carries that grant's
// reference token as the resolution token; rejection records a synthesized
// token. A second decision fails as a precondition violation.
func (w *Workflow) Decide(ctx context.Context, requestID string, approve bool) (*Request, error) {
	if requestID == "" {
		return nil, fault.New(fault.KindValidation, "request id is required")
	}

	request, err := w.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, fault.Newf(fault.KindNotFound, "access request %s not found", requestID)
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to load access request", err)
	}
	if request.Status != StatusPending {
		return nil, fault.Newf(fault.KindPrecondition, "access request already %s", request.Status)
	}

	var (
		status          Status
		resolutionToken string
		consentID       string
	)
	if approve {
		grant, err := w.consents.Grant(ctx, request.Patient, request.Researcher.Key, request.DatasetID, request.DurationDays)
		if err != nil {
			return nil, err
		}
		status = StatusApproved
		resolutionToken = grant.GrantToken
		consentID = grant.ID
	} else {
		status = StatusRejected
		resolutionToken = ledger.NewOfflineToken()
	}

	decidedAt := w.now().UTC()
	decided, err := w.requests.Decide(ctx, requestID, status, resolutionToken, consentID, decidedAt)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to record decision", err)
	}
	if !decided {
		// A concurrent decision won the swap. The consent grant created
		// above, if any, stands on its own audit trail; the request keeps
		// the winner's resolution.
		w.logger.Warn("access request decided concurrently",
			slog.String("request_id", requestID))
		return nil, fault.New(fault.KindPrecondition, "access request already decided")
	}

	request.Status = status
	request.ResolutionToken = resolutionToken
	request.ConsentID = consentID
	request.DecidedAt = &decidedAt

	if _, err := w.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionAccessDecided,
		ActorKey:       request.Patient,
		ActorRole:      roles.Patient,
		TargetID:       request.ID,
		ReferenceToken: resolutionToken,
		Detail:         fmt.Sprintf("decision %s for %s on %s", status, request.Researcher.Key, request.DatasetID),
	}); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}
	return request, nil
}

// Get returns one request.
func (w *Workflow) Get(ctx context.Context, requestID string) (*Request, error) {
	request, err := w.requests.GetByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, ErrRequestNotFound) {
			return nil, fault.Newf(fault.KindNotFound, "access request %s not found", requestID)
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to load access request", err)
	}
	return request, nil
}

// ListByPatient returns a patient's requests, newest-first.
func (w *Workflow) ListByPatient(ctx context.Context, patient string) ([]*Request, error) {
	requests, err := w.requests.ListByPatient(ctx, patient)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to list access requests", err)
	}
	return requests, nil
}
