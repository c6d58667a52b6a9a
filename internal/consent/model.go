// Package consent provides the consent grant lifecycle: issuance,
// revocation, and derived-at-read expiry. Grants are written to the ledger
// when it is reachable and to the mirror always.
package consent

import (
	"time"
)

// NoChainIndex marks a grant recorded in degraded mode, with no on-chain
// position to revoke against.
const NoChainIndex int64 = -1

// Grant is a time-bound, revocable permission for one researcher to access
// one patient's dataset. Grants are never deleted; revocation is one-way.
//
// "Expired" is not a stored state. Whether a grant is active is always
// derived at read time from the revocation flag and the validity window,
// so there is no background job to flip statuses and no stale-state bug.
type Grant struct {
	ID             string    `json:"id"` // sequential, human-readable (CN-0001)
	Patient        string    `json:"patient"`
	Researcher     string    `json:"researcher"`
	DatasetID      string    `json:"dataset_id"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"` // exclusive
	Revoked        bool      `json:"revoked"`
	ChainIndex     int64     `json:"chain_index"`     // NoChainIndex when recorded offline
	GrantToken     string    `json:"grant_token"`     // reference token of the grant write
	RevokeToken    string    `json:"revoke_token,omitempty"` // reference token of the revocation, if any
	CreatedAt      time.Time `json:"created_at"`
}

// ActiveAt reports whether the grant permits access at the given instant:
// not revoked and the instant falls inside [Start, End).
func (g *Grant) ActiveAt(t time.Time) bool {
	return !g.Revoked && !t.Before(g.Start) && t.Before(g.End)
}

// Label returns the display status derived at read time.
func (g *Grant) Label(now time.Time) string {
	switch {
	case g.Revoked:
		return "revoked"
	case !now.Before(g.End):
		return "expired"
	case now.Before(g.Start):
		return "scheduled"
	default:
		return "active"
	}
}
