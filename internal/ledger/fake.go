package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/helixbridge/genconsent/internal/roles"
)

// Fake is an in-memory Client for tests. It models the small slice of
// ledger behavior the core depends on: proposal identifiers, bootstrap
// auto-approval, grant indices, and a switchable reachability flag.
type Fake struct {
	mu sync.Mutex

	// Reachable controls IsReachable and whether submissions succeed.
	Reachable bool

	// RejectReason, when non-empty, makes every submission fail with
	// *RejectedError.
	RejectReason string

	// MemberCounts seeds the per-role approved-member counts the fake
	// reports and uses for bootstrap auto-approval.
	MemberCounts map[roles.Role]int

	// RecordHashes seeds the anchored hash the fake reports per dataset.
	RecordHashes map[string]string

	nextProposal int64
	nextIndex    int64
	nextToken    int64

	// Submitted records every accepted write call in order.
	Submitted []WriteCall
}

// NewFake creates a reachable fake ledger with no members.
func NewFake() *Fake {
	return &Fake{
		Reachable:    true,
		MemberCounts: make(map[roles.Role]int),
		RecordHashes: make(map[string]string),
	}
}

// SubmitTransaction implements Client.
func (f *Fake) SubmitTransaction(_ context.Context, call WriteCall) (*Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.Reachable {
		return nil, ErrUnreachable
	}
	if f.RejectReason != "" {
		return nil, &RejectedError{Reason: f.RejectReason}
	}

	f.Submitted = append(f.Submitted, call)
	f.nextToken++
	token := fmt.Sprintf("txn-%06d", f.nextToken)

	switch c := call.(type) {
	case ProposeRegistration:
		f.nextProposal++
		result := ProposeResult{
			ProposalID:   fmt.Sprintf("prop-%04d", f.nextProposal),
			AutoApproved: f.MemberCounts[c.Role] == 0,
		}
		if result.AutoApproved {
			f.MemberCounts[c.Role]++
		}
		return &Receipt{Token: token, Result: result}, nil
	case CastVote:
		return &Receipt{Token: token, Result: VoteResult{Accepted: true}}, nil
	case GrantConsent:
		f.nextIndex++
		return &Receipt{Token: token, Result: GrantResult{Index: f.nextIndex}}, nil
	default:
		return &Receipt{Token: token, Result: Ack{}}, nil
	}
}

// ReadView implements Client.
func (f *Fake) ReadView(_ context.Context, call ViewCall) (ViewResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.Reachable {
		return nil, ErrUnreachable
	}

	switch c := call.(type) {
	case MemberCount:
		return MemberCountResult{Count: f.MemberCounts[c.Role]}, nil
	case ProposalView:
		return ProposalState{ProposalID: c.ProposalID, Status: "pending"}, nil
	case ConsentView:
		return ConsentState{Index: c.Index}, nil
	case RecordView:
		return RecordState{DatasetID: c.DatasetID, ContentHash: f.RecordHashes[c.DatasetID]}, nil
	default:
		return nil, fmt.Errorf("unsupported view call %T", call)
	}
}

// IsReachable implements Client.
func (f *Fake) IsReachable(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reachable
}

// SetReachable flips the reachability flag.
func (f *Fake) SetReachable(reachable bool) {
	f.mu.Lock()
	f.Reachable = reachable
	f.mu.Unlock()
}

// SubmittedCount returns how many write calls the fake accepted.
func (f *Fake) SubmittedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Submitted)
}
