// Package governance provides majority-vote admission of new organizational
// members: registration proposals, vote casting, and the resolution rules
// that materialize approved members into the mirror store.
package governance

import (
	"time"

	"github.com/helixbridge/genconsent/internal/roles"
)

// Status is the lifecycle state of a registration proposal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether the status is a terminal state.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Vote is one cast vote, appended in order and never removed.
type Vote struct {
	Voter   string    `json:"voter"`
	Approve bool      `json:"approve"`
	CastAt  time.Time `json:"cast_at"`
}

// Profile is the denormalized applicant profile carried on the proposal and
// copied onto the Member record on approval.
type Profile struct {
	Name        string `json:"name"`
	Contact     string `json:"contact"`
	Institution string `json:"institution"`
}

// Proposal is an admission request. The identifier is assigned by the
// ledger; proposals are kept forever for audit, resolved or not.
//
// A proposal whose deadline passes unresolved stays Pending and continues
// to accept votes. The deadline is stored and reported, never enforced.
type Proposal struct {
	ID        string     `json:"id"`
	Applicant string     `json:"applicant"`
	Role      roles.Role `json:"role"`
	Profile   Profile    `json:"profile"`
	CreatedAt time.Time  `json:"created_at"`
	Deadline  time.Time  `json:"deadline"`
	Status    Status     `json:"status"`
	Votes     []Vote     `json:"votes"`
}

// Approvals counts approve votes.
func (p *Proposal) Approvals() int {
	count := 0
	for _, v := range p.Votes {
		if v.Approve {
			count++
		}
	}
	return count
}

// Rejections counts reject votes.
func (p *Proposal) Rejections() int {
	return len(p.Votes) - p.Approvals()
}

// HasVoted reports whether the voter already cast a vote.
func (p *Proposal) HasVoted(voter string) bool {
	for _, v := range p.Votes {
		if v.Voter == voter {
			return true
		}
	}
	return false
}

// resolve applies the majority rules against the current membership count
// of the proposal's role and returns the resulting status.
//
// Approval requires approve votes to strictly exceed half of current role
// membership. Rejection triggers as soon as reject votes make a majority
// mathematically unreachable for the remaining undecided members. The
// denominator is re-read on every vote, so the threshold shifts if
// membership changes mid-vote.
func resolve(approvals, rejections, membership int) Status {
	if approvals*2 > membership {
		return StatusApproved
	}
	if rejections*2 >= membership {
		return StatusRejected
	}
	return StatusPending
}
