package governance

import (
	"testing"
	"time"
)

func TestResolveMajority(t *testing.T) {
	tests := []struct {
		name       string
		approvals  int
		rejections int
		membership int
		want       Status
	}{
		// Three members: two approvals are a strict majority.
		{"three members two approvals", 2, 0, 3, StatusApproved},
		{"three members one approval", 1, 0, 3, StatusPending},
		{"three members one each", 1, 1, 3, StatusPending},
		// Rejection needs only half, so two of three reject.
		{"three members two rejections", 0, 2, 3, StatusRejected},
		// Four members: two approvals are not a strict majority.
		{"four members two approvals", 2, 0, 4, StatusPending},
		{"four members three approvals", 3, 0, 4, StatusApproved},
		// Half the membership rejecting is enough.
		{"four members two rejections", 0, 2, 4, StatusRejected},
		{"one member one approval", 1, 0, 1, StatusApproved},
		{"no votes", 0, 0, 3, StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolve(tt.approvals, tt.rejections, tt.membership); got != tt.want {
				t.Errorf("resolve(%d, %d, %d) = %v, want %v",
					tt.approvals, tt.rejections, tt.membership, got, tt.want)
			}
		})
	}
}

func TestStatusTerminal(t *testing.T) {
	if StatusPending.Terminal() {
		t.Error("pending should not be terminal")
	}
	if !StatusApproved.Terminal() || !StatusRejected.Terminal() {
		t.Error("approved and rejected should be terminal")
	}
}

func TestProposalVoteCounts(t *testing.T) {
	now := time.Now()
	p := &Proposal{
		Votes: []Vote{
			{Voter: "0xaaa", Approve: true, CastAt: now},
			{Voter: "0xbbb", Approve: false, CastAt: now},
			{Voter: "0xccc", Approve: true, CastAt: now},
		},
	}
	if got := p.Approvals(); got != 2 {
		t.Errorf("Approvals() = %d, want 2", got)
	}
	if got := p.Rejections(); got != 1 {
		t.Errorf("Rejections() = %d, want 1", got)
	}
	if !p.HasVoted("0xbbb") {
		t.Error("HasVoted(0xbbb) = false")
	}
	if p.HasVoted("0xddd") {
		t.Error("HasVoted(0xddd) = true")
	}
}
