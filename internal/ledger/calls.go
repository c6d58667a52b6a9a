// Package ledger provides the narrow adapter to the external authoritative
// ledger: typed call descriptors, an HTTP RPC client, a cached liveness
// probe, reference token helpers, and a CBOR-over-websocket subscription to
// ledger-emitted facts.
//
// Every ledger response is decoded into a tagged result type at this
// boundary; nothing upstream inspects untyped shapes.
package ledger

import (
	"time"

	"github.com/helixbridge/genconsent/internal/roles"
)

// WriteCall is a sealed descriptor for a ledger transaction. The set of
// implementations covers the registry and governance write capabilities the
// core consumes.
type WriteCall interface {
	method() string
}

// ViewCall is a sealed descriptor for a ledger read view.
type ViewCall interface {
	view() string
}

// ProposeRegistration creates an admission proposal on the ledger. The
// ledger assigns the proposal identifier and auto-approves when the
// requested role has zero existing members.
type ProposeRegistration struct {
	Applicant    string        `json:"applicant"`
	Role         roles.Role    `json:"role"`
	VotingPeriod time.Duration `json:"voting_period_ns"`
}

func (ProposeRegistration) method() string { return "governance.propose" }

// CastVote records a vote on an existing proposal.
type CastVote struct {
	ProposalID string `json:"proposal_id"`
	Voter      string `json:"voter"`
	Approve    bool   `json:"approve"`
}

func (CastVote) method() string { return "governance.vote" }

// GrantConsent records a time-bound data-sharing grant.
type GrantConsent struct {
	Patient    string    `json:"patient"`
	Researcher string    `json:"researcher"`
	DatasetID  string    `json:"dataset_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
}

func (GrantConsent) method() string { return "registry.grant_consent" }

// RevokeConsent revokes a grant by its on-chain index.
type RevokeConsent struct {
	Index int64 `json:"index"`
}

func (RevokeConsent) method() string { return "registry.revoke_consent" }

// RegisterRecord anchors a dataset content hash on the ledger.
type RegisterRecord struct {
	Patient     string `json:"patient"`
	Lab         string `json:"lab"`
	ContentHash string `json:"content_hash"`
	FileKind    string `json:"file_kind"`
}

func (RegisterRecord) method() string { return "registry.register_record" }

// LogAccess records a data access on the ledger.
type LogAccess struct {
	Actor     string `json:"actor"`
	DatasetID string `json:"dataset_id"`
	Action    string `json:"action"`
}

func (LogAccess) method() string { return "registry.log_access" }

// MemberCount reads the number of approved members of a role.
type MemberCount struct {
	Role roles.Role `json:"role"`
}

func (MemberCount) view() string { return "governance.member_count" }

// ProposalView reads the ledger-side state of a proposal.
type ProposalView struct {
	ProposalID string `json:"proposal_id"`
}

func (ProposalView) view() string { return "governance.proposal" }

// ConsentView reads the ledger-side state of a consent by index.
type ConsentView struct {
	Index int64 `json:"index"`
}

func (ConsentView) view() string { return "registry.consent" }

// RecordView reads the anchored hash for a dataset.
type RecordView struct {
	DatasetID string `json:"dataset_id"`
}

func (RecordView) view() string { return "registry.record" }

// Receipt is the settlement proof of a submitted transaction: the
// transaction token plus the decoded, call-specific result.
type Receipt struct {
	Token  string
	Result WriteResult
}

// WriteResult is a sealed tagged result for a write call.
type WriteResult interface {
	writeResult()
}

// ProposeResult is the decoded result of a ProposeRegistration call.
type ProposeResult struct {
	ProposalID   string `json:"proposal_id"`
	AutoApproved bool   `json:"auto_approved"`
}

func (ProposeResult) writeResult() {}

// VoteResult is the decoded result of a CastVote call.
type VoteResult struct {
	Accepted bool `json:"accepted"`
}

func (VoteResult) writeResult() {}

// GrantResult is the decoded result of a GrantConsent call. Index is the
// on-chain position of the grant, used for later revocation.
type GrantResult struct {
	Index int64 `json:"index"`
}

func (GrantResult) writeResult() {}

// Ack is the decoded result of write calls that return no payload
// (RevokeConsent, RegisterRecord, LogAccess).
type Ack struct{}

func (Ack) writeResult() {}

// ViewResult is a sealed tagged result for a read view.
type ViewResult interface {
	viewResult()
}

// MemberCountResult carries the approved-member count of a role.
type MemberCountResult struct {
	Count int `json:"count"`
}

func (MemberCountResult) viewResult() {}

// ProposalState is the ledger-side view of a proposal.
type ProposalState struct {
	ProposalID string `json:"proposal_id"`
	Status     string `json:"status"`
	Approvals  int    `json:"approvals"`
	Rejections int    `json:"rejections"`
}

func (ProposalState) viewResult() {}

// ConsentState is the ledger-side view of a consent grant.
type ConsentState struct {
	Index   int64     `json:"index"`
	Revoked bool      `json:"revoked"`
	End     time.Time `json:"end"`
}

func (ConsentState) viewResult() {}

// RecordState is the ledger-side view of an anchored dataset record.
type RecordState struct {
	DatasetID   string `json:"dataset_id"`
	ContentHash string `json:"content_hash"`
}

func (RecordState) viewResult() {}
