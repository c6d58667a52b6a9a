package governance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/helixbridge/genconsent/internal/audit"
	"github.com/helixbridge/genconsent/internal/fault"
	"github.com/helixbridge/genconsent/internal/ledger"
	"github.com/helixbridge/genconsent/internal/member"
	"github.com/helixbridge/genconsent/internal/roles"
)

// Engine runs the membership admission workflow: proposal creation on the
// ledger, vote casting, majority resolution, and member materialization.
type Engine struct {
	proposals Repository
	members   member.Repository
	ledger    ledger.Client
	trail     *audit.Trail
	metrics   *ledger.Metrics
	logger    *slog.Logger
	now       func() time.Time // for testability

	// locks serializes vote resolution per proposal so two concurrent
	// winning votes cannot each materialize a member.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewEngine creates a governance engine.
func NewEngine(proposals Repository, members member.Repository, lc ledger.Client, trail *audit.Trail, metrics *ledger.Metrics, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		proposals: proposals,
		members:   members,
		ledger:    lc,
		trail:     trail,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// proposalLock returns the mutex for one proposal, creating it on first use.
func (e *Engine) proposalLock(id string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	mu, ok := e.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		e.locks[id] = mu
	}
	return mu
}

// Propose submits an admission request for (applicant, role). The ledger
// assigns the proposal identifier, so this operation has no degraded mode:
// an unreachable ledger fails the whole call.
//
// When the ledger reports zero existing members of the role, it
// auto-approves (bootstrap) and the member is materialized immediately.
func (e *Engine) Propose(ctx context.Context, applicant string, role roles.Role, profile Profile, votingPeriod time.Duration) (*Proposal, error) {
	if applicant == "" {
		return nil, fault.New(fault.KindValidation, "applicant key is required")
	}
	if !roles.Valid(role) {
		return nil, fault.Newf(fault.KindValidation, "unknown role %q", role)
	}
	if votingPeriod <= 0 {
		return nil, fault.New(fault.KindValidation, "voting period must be positive")
	}

	if _, err := e.members.GetByAddressAndRole(ctx, applicant, role); err == nil {
		return nil, fault.Newf(fault.KindPrecondition, "applicant already holds an approved %s membership", role)
	} else if !errors.Is(err, member.ErrMemberNotFound) {
		return nil, fault.Wrap(fault.KindInternal, "failed to check existing membership", err)
	}

	if _, err := e.proposals.FindPending(ctx, applicant, role); err == nil {
		return nil, fault.New(fault.KindPrecondition, "an unresolved proposal already exists for applicant and role")
	} else if !errors.Is(err, ErrProposalNotFound) {
		return nil, fault.Wrap(fault.KindInternal, "failed to check pending proposals", err)
	}

	// Proposal creation requires the ledger-assigned identifier; votes must
	// reference a real on-chain proposal, so there is no offline placeholder.
	if !e.ledger.IsReachable(ctx) {
		return nil, fault.New(fault.KindLedgerUnavailable, "ledger unavailable; registration cannot be queued")
	}

	receipt, err := e.ledger.SubmitTransaction(ctx, ledger.ProposeRegistration{
		Applicant:    applicant,
		Role:         role,
		VotingPeriod: votingPeriod,
	})
	if err != nil {
		return nil, classifyLedgerError(err, "proposal submission")
	}
	result, ok := receipt.Result.(ledger.ProposeResult)
	if !ok {
		return nil, fault.Newf(fault.KindInternal, "unexpected ledger result %T for proposal", receipt.Result)
	}

	now := e.now().UTC()
	proposal := &Proposal{
		ID:        result.ProposalID,
		Applicant: applicant,
		Role:      role,
		Profile:   profile,
		CreatedAt: now,
		Deadline:  now.Add(votingPeriod),
		Status:    StatusPending,
	}
	if result.AutoApproved {
		proposal.Status = StatusApproved
	}

	if err := e.proposals.Create(ctx, proposal); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to store proposal", err)
	}

	if _, err := e.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionProposalCreated,
		ActorKey:       applicant,
		ActorRole:      role,
		TargetID:       proposal.ID,
		ReferenceToken: receipt.Token,
		Detail:         fmt.Sprintf("admission proposal for role %s", role),
	}); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}

	if result.AutoApproved {
		if err := e.materialize(ctx, proposal, receipt.Token); err != nil {
			return nil, err
		}
		e.logger.Info("bootstrap proposal auto-approved",
			slog.String("proposal_id", proposal.ID),
			slog.String("role", string(role)))
	}
	return proposal, nil
}

// CastVote records one member's vote and re-evaluates resolution. Votes on
// an existing proposal fall back to offline reference tokens when the
// ledger is unreachable.
func (e *Engine) CastVote(ctx context.Context, proposalID, voter string, approve bool) (*Proposal, error) {
	if proposalID == "" || voter == "" {
		return nil, fault.New(fault.KindValidation, "proposal id and voter key are required")
	}

	// Serialize the whole vote-and-resolve step per proposal.
	mu := e.proposalLock(proposalID)
	mu.Lock()
	defer mu.Unlock()

	proposal, err := e.proposals.GetByID(ctx, proposalID)
	if err != nil {
		if errors.Is(err, ErrProposalNotFound) {
			return nil, fault.Newf(fault.KindNotFound, "proposal %s not found", proposalID)
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to load proposal", err)
	}
	if proposal.Status.Terminal() {
		return nil, fault.New(fault.KindPrecondition, "proposal already decided")
	}
	if _, err := e.members.GetByAddressAndRole(ctx, voter, proposal.Role); err != nil {
		if errors.Is(err, member.ErrMemberNotFound) {
			return nil, fault.Newf(fault.KindPrecondition, "voter is not an approved %s member; not authorized to vote", proposal.Role)
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to check voter membership", err)
	}
	if proposal.HasVoted(voter) {
		return nil, fault.New(fault.KindPrecondition, "voter already voted on this proposal")
	}

	token, err := e.submitVote(ctx, proposalID, voter, approve)
	if err != nil {
		return nil, err
	}

	vote := Vote{Voter: voter, Approve: approve, CastAt: e.now().UTC()}
	if err := e.proposals.AppendVote(ctx, proposalID, vote); err != nil {
		if errors.Is(err, ErrAlreadyVoted) {
			return nil, fault.New(fault.KindPrecondition, "voter already voted on this proposal")
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to store vote", err)
	}
	proposal.Votes = append(proposal.Votes, vote)

	if _, err := e.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionVoteCast,
		ActorKey:       voter,
		ActorRole:      proposal.Role,
		TargetID:       proposalID,
		ReferenceToken: token,
		Detail:         fmt.Sprintf("vote approve=%t", approve),
	}); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}

	return e.checkResolution(ctx, proposal, token)
}

// submitVote sends the vote to the ledger, degrading to an offline token
// when the ledger is unreachable.
func (e *Engine) submitVote(ctx context.Context, proposalID, voter string, approve bool) (string, error) {
	if !e.ledger.IsReachable(ctx) {
		e.metrics.ObserveDegradedWrite("cast_vote")
		return ledger.NewOfflineToken(), nil
	}
	receipt, err := e.ledger.SubmitTransaction(ctx, ledger.CastVote{
		ProposalID: proposalID,
		Voter:      voter,
		Approve:    approve,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrUnreachable) {
			// Probe said reachable but the call timed out; degrade.
			e.metrics.ObserveDegradedWrite("cast_vote")
			return ledger.NewOfflineToken(), nil
		}
		return "", classifyLedgerError(err, "vote submission")
	}
	return receipt.Token, nil
}

// checkResolution applies the majority rules and, on resolution, performs
// the compare-and-swap transition and materializes the member exactly once.
// A lost swap is re-checked once and then reported as a conflict.
func (e *Engine) checkResolution(ctx context.Context, proposal *Proposal, token string) (*Proposal, error) {
	membership, err := e.members.CountByRole(ctx, proposal.Role)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to count role membership", err)
	}

	outcome := resolve(proposal.Approvals(), proposal.Rejections(), membership)
	if outcome == StatusPending {
		return proposal, nil
	}

	swapped, err := e.proposals.TransitionStatus(ctx, proposal.ID, StatusPending, outcome)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to transition proposal status", err)
	}
	if !swapped {
		// Lost the race: somebody (a concurrent vote or the ledger fact
		// stream) resolved first. Re-read once; a still-pending proposal
		// here means the swap keeps failing and is a real conflict.
		current, err := e.proposals.GetByID(ctx, proposal.ID)
		if err != nil {
			return nil, fault.Wrap(fault.KindInternal, "failed to re-read proposal after lost swap", err)
		}
		if !current.Status.Terminal() {
			return nil, fault.New(fault.KindConflict, "lost proposal resolution race")
		}
		return current, nil
	}
	proposal.Status = outcome

	if _, err := e.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionProposalResolved,
		ActorKey:       proposal.Applicant,
		ActorRole:      proposal.Role,
		TargetID:       proposal.ID,
		ReferenceToken: token,
		Detail: fmt.Sprintf("resolved %s with %d approvals, %d rejections of %d members",
			outcome, proposal.Approvals(), proposal.Rejections(), membership),
	}); err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}

	if outcome == StatusApproved {
		if err := e.materialize(ctx, proposal, token); err != nil {
			return nil, err
		}
	}
	return proposal, nil
}

// materialize creates the Member record for an approved proposal. This is
// the only path by which a lab or researcher becomes usable elsewhere.
func (e *Engine) materialize(ctx context.Context, proposal *Proposal, token string) error {
	m := &member.Member{
		Address:     proposal.Applicant,
		Role:        proposal.Role,
		Name:        proposal.Profile.Name,
		Contact:     proposal.Profile.Contact,
		Institution: proposal.Profile.Institution,
		ApprovedAt:  e.now().UTC(),
	}
	if err := e.members.Create(ctx, m); err != nil {
		if errors.Is(err, member.ErrMemberExists) {
			// Already materialized, e.g. by the fact stream folding in a
			// resolution settled elsewhere. Not an error.
			e.logger.Warn("member already materialized",
				slog.String("address", proposal.Applicant),
				slog.String("role", string(proposal.Role)))
			return nil
		}
		return fault.Wrap(fault.KindInternal, "failed to materialize member", err)
	}

	if _, err := e.trail.Append(ctx, audit.Entry{
		Action:         audit.ActionMemberAdmitted,
		ActorKey:       proposal.Applicant,
		ActorRole:      proposal.Role,
		TargetID:       proposal.ID,
		ReferenceToken: token,
		Detail:         fmt.Sprintf("admitted as %s", proposal.Role),
	}); err != nil {
		return fault.Wrap(fault.KindInternal, "failed to append audit event", err)
	}
	return nil
}

// Get returns one proposal.
func (e *Engine) Get(ctx context.Context, id string) (*Proposal, error) {
	p, err := e.proposals.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrProposalNotFound) {
			return nil, fault.Newf(fault.KindNotFound, "proposal %s not found", id)
		}
		return nil, fault.Wrap(fault.KindInternal, "failed to load proposal", err)
	}
	return p, nil
}

// List returns all proposals, newest-first.
func (e *Engine) List(ctx context.Context) ([]*Proposal, error) {
	ps, err := e.proposals.List(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.KindInternal, "failed to list proposals", err)
	}
	return ps, nil
}

// ResolveFromFact folds a proposal resolution settled elsewhere into the
// mirror. Called by the ledger fact stream handler.
func (e *Engine) ResolveFromFact(ctx context.Context, proposalID string, status Status, token string) error {
	mu := e.proposalLock(proposalID)
	mu.Lock()
	defer mu.Unlock()

	proposal, err := e.proposals.GetByID(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.Status.Terminal() {
		return nil
	}
	swapped, err := e.proposals.TransitionStatus(ctx, proposalID, StatusPending, status)
	if err != nil || !swapped {
		return err
	}
	proposal.Status = status
	if status == StatusApproved {
		return e.materialize(ctx, proposal, token)
	}
	return nil
}

// classifyLedgerError maps ledger client errors to fault kinds.
func classifyLedgerError(err error, operation string) error {
	var rejected *ledger.RejectedError
	if errors.As(err, &rejected) {
		return fault.Wrap(fault.KindLedgerRejected, operation+" rejected by ledger", err)
	}
	if errors.Is(err, ledger.ErrUnreachable) {
		return fault.Wrap(fault.KindLedgerUnavailable, "ledger unavailable during "+operation, err)
	}
	return fault.Wrap(fault.KindInternal, operation+" failed", err)
}
