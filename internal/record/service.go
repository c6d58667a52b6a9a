package record

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixbridge/genconsent/internal/audit"
	"github.com/helixbridge/genconsent/internal/fault"
	"github.com/helixbridge/genconsent/internal/ledger"
	"github.com/helixbridge/genconsent/internal/member"
	"github.com/helixbridge/genconsent/internal/roles"
	"github.com/helixbridge/genconsent/internal/sequence"
)

// Locator resolves a registered content hash to an opaque content-store
// locator. The store holds the file bytes; the registry only records where
// they are.
type Locator interface {
	Resolve(ctx context.Context, contentHash, fileKind string) (string, error)
}

// Service registers dataset records and verifies their anchored hashes.
type Service struct {
	records Repository
	members member.Repository
	store   Locator
	ledger  ledger.Client
	trail   *audit.Trail
	counter sequence.Counter
	metrics *ledger.Metrics
	logger  *slog.Logger
	now     func() time.Time // for testability
}

// NewService creates a dataset record registry service.
func NewService(records Repository, members member.Repository, store Locator, lc ledger.Client, trail *audit.Trail, counter sequence.Counter, metrics *ledger.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		records: records,
		members: members,
		store:   store,
		ledger:  lc,
		trail:   trail,
		counter: counter,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Register creates a dataset record for a patient, submitted by an approved
// lab. The content hash is anchored on the ledger when reachable; otherwise
// the record carries an offline reference token and the anchor is deferred.
func (s *Service) Register(ctx context.Context, patient, lab, contentHash, fileKind string) (*Record, error) {
	if patient == "" || lab == "" || contentHash == "" {
		return nil, fault.New(fault.KindValidation, "patient, lab and content hash are required")
	}
	if !ValidKind(fileKind) {
		return nil, fault.Newf(fault.KindValidation, "unsupported file kind %q", fileKind)
	}

	if _, err := s.members.GetByAddressAndRole(ctx, lab, roles.Lab); err != nil {
		if errors.Is(err, member.ErrMemberNotFound) {
			return nil, fault.Newf(fault.KindPrecondition, "%s is not an approved lab", lab)
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to check lab membership", err)
	}

	locator, err := s.store.Resolve(ctx, contentHash, fileKind)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to resolve content locator", err)
	}

	token, err := s.submitRegister(ctx, patient, lab, contentHash, fileKind)
	if err != nil {
		return nil, err
	}

	n, err := s.counter.Next(ctx, sequence.KindRecord)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to reserve record id", err)
	}

	rec := &Record{
		ID:             sequence.Format(sequence.KindRecord, n),
		Patient:        patient,
		Lab:            lab,
		ContentHash:    contentHash,
		Locator:        locator,
		FileKind:       fileKind,
		ReferenceToken: token,
		CreatedAt:      s.now().UTC(),
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to store dataset record", err)
	}

	if _, err := s.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionRecordRegistered,
		ActorKey:       lab,
		ActorRole:      roles.Lab,
		TargetID:       rec.ID,
		ReferenceToken: token,
		Detail:         fmt.Sprintf("registered %s file for %s", fileKind, patient),
	}); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}
	return rec, nil
}

// submitRegister performs the ledger anchor write, falling back to degraded
// mode when the ledger is unreachable.
func (s *Service) submitRegister(ctx context.Context, patient, lab, contentHash, fileKind string) (string, error) {
	if !s.ledger.IsReachable(ctx) {
		s.metrics.ObserveDegradedWrite("register_record")
		s.logger.Warn("registering record offline; ledger unreachable",
			slog.String("patient", patient),
			slog.String("lab", lab))
		return ledger.NewOfflineToken(), nil
	}

	receipt, err := s.ledger.SubmitTransaction(ctx, ledger.RegisterRecord{
		Patient:     patient,
		Lab:         lab,
		ContentHash: contentHash,
		FileKind:    fileKind,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrUnreachable) {
			s.metrics.ObserveDegradedWrite("register_record")
			return ledger.NewOfflineToken(), nil
		}
		var rejected *ledger.RejectedError
		if errors.As(err, &rejected) {
			return "", fault.Wrap(fault.KindLedgerRejected, "record registration rejected by ledger", err)
		}
		return "", fault.Wrap(fault.KindInternal, "record registration failed", err)
	}
	return receipt.Token, nil
}

// VerifyIntegrity compares the mirror's content hash against the hash
// anchored on the ledger and, on a match, marks the record verified. This is
// a strict read against the authoritative chain: there is no degraded
// fallback for verification.
func (s *Service) VerifyIntegrity(ctx context.Context, recordID string) (bool, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return false, fault.Newf(fault.KindNotFound, "record %s not found", recordID)
		}
		return false, fault.Wrap(fault.KindInternal, "failed to load dataset record", err)
	}

	result, err := s.ledger.ReadView(ctx, ledger.RecordView{DatasetID: rec.ID})
	if err != nil {
		if errors.Is(err, ledger.ErrUnreachable) {
			return false, fault.Wrap(fault.KindLedgerUnavailable, "cannot verify integrity while ledger is unreachable", err)
		}
		return false, fault.Wrap(fault.KindInternal, "record view failed", err)
	}
	state, ok := result.(ledger.RecordState)
	if !ok {
		return false, fault.Newf(fault.KindInternal, "unexpected ledger result %T for record view", result)
	}

	match := state.ContentHash == rec.ContentHash
	if match {
		if err := s.records.MarkVerified(ctx, recordID); err != nil {
			return false, fault.Wrap(fault.KindInternal, "failed to mark record verified", err)
		}
	} else {
		s.logger.Warn("record hash mismatch against ledger",
			slog.String("record_id", recordID))
	}

	detail := "hash matches ledger anchor"
	if !match {
		detail = "hash does not match ledger anchor"
	}
	if _, err := s.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionRecordVerified,
		ActorKey:       rec.Lab,
		ActorRole:      roles.Lab,
		TargetID:       rec.ID,
		ReferenceToken: ledger.NewOfflineToken(),
		Detail:         detail,
	}); err != nil {
		return false, fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}
	return match, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, recordID string) (*Record, error) {
	rec, err := s.records.GetByID(ctx, recordID)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, fault.Newf(fault.KindNotFound, "record %s not found", recordID)
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to load dataset record", err)
	}
	return rec, nil
}

// ListByPatient returns a patient's records, newest-first.
func (s *Service) ListByPatient(ctx context.Context, patient string) ([]*Record, error) {
	records, err := s.records.ListByPatient(ctx, patient)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to list dataset records", err)
	}
	return records, nil
}
