package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/helixbridge/genconsent/internal/audit"
	"github.com/helixbridge/genconsent/internal/fault"
	"github.com/helixbridge/genconsent/internal/ledger"
	"github.com/helixbridge/genconsent/internal/roles"
	"github.com/helixbridge/genconsent/internal/sequence"
)

// Manager issues, revokes, and evaluates consent grants.
type Manager struct {
	grants  Repository
	ledger  ledger.Client
	trail   *audit.Trail
	counter sequence.Counter
	metrics *ledger.Metrics
	logger  *slog.Logger
	now     func() time.Time // for testability
}

// NewManager creates a consent lifecycle manager.
func NewManager(grants Repository, lc ledger.Client, trail *audit.Trail, counter sequence.Counter, metrics *ledger.Metrics, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		grants:  grants,
		ledger:  lc,
		trail:   trail,
		counter: counter,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Grant issues a consent covering [now, now+durationDays). The grant is
// recorded on the ledger when reachable; otherwise it is recorded in the
// mirror only, flagged with an offline reference token and no chain index.
func (m *Manager) Grant(ctx context.Context, patient, researcher, datasetID string, durationDays int) (*Grant, error) {
	if patient == "" || researcher == "" || datasetID == "" {
		return nil, fault.New(fault.KindValidation, "patient, researcher and dataset id are required")
	}
	if durationDays <= 0 {
		return nil, fault.New(fault.KindValidation, "duration must be a positive number of days")
	}

	now := m.now().UTC()
	start := now
	end := now.Add(time.Duration(durationDays) * 24 * time.Hour)

	token, chainIndex, err := m.submitGrant(ctx, patient, researcher, datasetID, start, end)
	if err != nil {
		return nil, err
	}

	n, err := m.counter.Next(ctx, sequence.KindConsent)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to reserve consent id", err)
	}

	grant := &Grant{
		ID:         sequence.Format(sequence.KindConsent, n),
		Patient:    patient,
		Researcher: researcher,
		DatasetID:  datasetID,
		Start:      start,
		End:        end,
		ChainIndex: chainIndex,
		GrantToken: token,
		CreatedAt:  now,
	}
	if err := m.grants.Create(ctx, grant); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to store consent grant", err)
	}

	if _, err := m.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionConsentGranted,
		ActorKey:       patient,
		ActorRole:      roles.Patient,
		TargetID:       grant.ID,
		ReferenceToken: token,
		Detail:         fmt.Sprintf("granted %s access to %s for %d days", researcher, datasetID, durationDays),
	}); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}
	return grant, nil
}

// submitGrant performs the ledger write, falling back to degraded mode.
func (m *Manager) submitGrant(ctx context.Context, patient, researcher, datasetID string, start, end time.Time) (string, int64, error) {
	if !m.ledger.IsReachable(ctx) {
		m.metrics.ObserveDegradedWrite("grant_consent")
		m.logger.Warn("recording consent grant offline; ledger unreachable",
			slog.String("patient", patient),
			slog.String("dataset_id", datasetID))
		return ledger.NewOfflineToken(), NoChainIndex, nil
	}

	receipt, err := m.ledger.SubmitTransaction(ctx, ledger.GrantConsent{
		Patient:    patient,
		Researcher: researcher,
		DatasetID:  datasetID,
		Start:      start,
		End:        end,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrUnreachable) {
			m.metrics.ObserveDegradedWrite("grant_consent")
			return ledger.NewOfflineToken(), NoChainIndex, nil
		}
		var rejected *ledger.RejectedError
		if errors.As(err, &rejected) {
			return "", 0, fault.Wrap(fault.KindLedgerRejected, "consent grant rejected by ledger", err)
		}
		return "", 0, fault.Wrap(fault.KindInternal, "consent grant submission failed", err)
	}
	result, ok := receipt.Result.(ledger.GrantResult)
	if !ok {
		return "", 0, fault.Newf(fault.KindInternal, "unexpected ledger result %T for grant", receipt.Result)
	}
	return receipt.Token, result.Index, nil
}

// Revoke revokes a grant. Revocation is one-way: revoking an
// already-revoked grant is rejected, not silently accepted. The mirror flag
// is set regardless of ledger outcome; the recorded token tells which.
func (m *Manager) Revoke(ctx context.Context, consentID string) (*Grant, error) {
	if consentID == "" {
		return nil, fault.New(fault.KindValidation, "consent id is required")
	}

	grant, err := m.grants.GetByID(ctx, consentID)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return nil, fault.Newf(fault.KindNotFound, "consent %s not found", consentID)
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to load consent grant", err)
	}
	if grant.Revoked {
		return nil, fault.New(fault.KindPrecondition, "consent already revoked")
	}

	token := m.submitRevoke(ctx, grant)

	revoked, err := m.grants.MarkRevoked(ctx, consentID, token)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to mark consent revoked", err)
	}
	if !revoked {
		return nil, fault.New(fault.KindPrecondition, "consent already revoked")
	}
	grant.Revoked = true
	grant.RevokeToken = token

	if _, err := m.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionConsentRevoked,
		ActorKey:       grant.Patient,
		ActorRole:      roles.Patient,
		TargetID:       grant.ID,
		ReferenceToken: token,
		Detail:         fmt.Sprintf("revoked %s access to %s", grant.Researcher, grant.DatasetID),
	}); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}
	return grant, nil
}

// submitRevoke attempts the ledger revocation when the grant has an
// on-chain index. The mirror write proceeds regardless of the outcome, so
// this never fails the operation; it only determines the recorded token.
func (m *Manager) submitRevoke(ctx context.Context, grant *Grant) string {
	if grant.ChainIndex == NoChainIndex {
		m.metrics.ObserveDegradedWrite("revoke_consent")
		return ledger.NewOfflineToken()
	}
	if !m.ledger.IsReachable(ctx) {
		m.metrics.ObserveDegradedWrite("revoke_consent")
		return ledger.NewOfflineToken()
	}
	receipt, err := m.ledger.SubmitTransaction(ctx, ledger.RevokeConsent{Index: grant.ChainIndex})
	if err != nil {
		m.metrics.ObserveDegradedWrite("revoke_consent")
		m.logger.Warn("ledger revoke failed; recording revocation offline",
			slog.String("consent_id", grant.ID),
			slog.String("error", err.Error()))
		return ledger.NewOfflineToken()
	}
	return receipt.Token
}

// IsActive reports whether the consent permits access right now:
// not revoked and the current time inside the validity window. Expiry is
// evaluated here, at read time, never stored.
func (m *Manager) IsActive(ctx context.Context, consentID string) (bool, error) {
	grant, err := m.grants.GetByID(ctx, consentID)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return false, fault.Newf(fault.KindNotFound, "consent %s not found", consentID)
		}
		return false, fault.Wrap(fault.KindInternal, "failed to load consent grant", err)
	}
	return grant.ActiveAt(m.now().UTC()), nil
}

// Get returns one grant.
func (m *Manager) Get(ctx context.Context, consentID string) (*Grant, error) {
	grant, err := m.grants.GetByID(ctx, consentID)
	if err != nil {
		if errors.Is(err, ErrGrantNotFound) {
			return nil, fault.Newf(fault.KindNotFound, "consent %s not found", consentID)
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to load consent grant", err)
	}
	return grant, nil
}

// ListByPatient returns a patient's grants, newest-first.
func (m *Manager) ListByPatient(ctx context.Context, patient string) ([]*Grant, error) {
	grants, err := m.grants.ListByPatient(ctx, patient)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to list consent grants", err)
	}
	return grants, nil
}

// RevokeFromFact folds in a revocation settled elsewhere, identified by
// chain index. Called by the ledger fact stream handler.
func (m *Manager) RevokeFromFact(ctx context.Context, chainIndex int64, token string) error {
	return m.grants.MarkRevokedByChainIndex(ctx, chainIndex, token)
}
