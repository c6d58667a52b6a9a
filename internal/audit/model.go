// Package audit provides the append-only audit trail. One event is
// recorded per state transition across governance, consent, access and
// record operations, whether or not the triggering write reached the
// ledger. Events are never updated or deleted; when a ledger write was
// skipped, the offline-prefixed reference token on the event is the
// system's tamper-evidence surrogate.
package audit

import (
	"time"

	"github.com/helixbridge/genconsent/internal/roles"
)

// Action kinds recorded on the trail.
const (
	ActionProposalCreated  = "proposal_created"
	ActionVoteCast         = "vote_cast"
	ActionProposalResolved = "proposal_resolved"
	ActionMemberAdmitted   = "member_admitted"
	ActionConsentGranted   = "consent_granted"
	ActionConsentRevoked   = "consent_revoked"
	ActionAccessRequested  = "access_requested"
	ActionAccessDecided    = "access_decided"
	ActionRecordRegistered = "record_registered"
	ActionRecordVerified   = "record_verified"
)

// Event is a single immutable audit fact.
type Event struct {
	ID             string     `json:"id"` // sequential, human-readable (AE-000001)
	Timestamp      time.Time  `json:"timestamp"`
	Action         string     `json:"action"`
	ActorKey       string     `json:"actor_key"`
	ActorRole      roles.Role `json:"actor_role"`
	TargetID       string     `json:"target_id"`
	ReferenceToken string     `json:"reference_token"` // ledger txn token or offline placeholder
	Detail         string     `json:"detail"`
}

// Entry is the input for appending an event. ID and Timestamp are assigned
// by the trail.
type Entry struct {
	Action         string
	ActorKey       string
	ActorRole      roles.Role
	TargetID       string
	ReferenceToken string
	Detail         string
}
