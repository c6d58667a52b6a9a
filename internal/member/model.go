// Package member provides the mirror-store model and repositories for
// approved, role-scoped identities. Members are created when an admission
// proposal resolves to Approved (or bootstrap auto-approves) and are never
// deleted.
package member

import (
	"time"

	"github.com/helixbridge/genconsent/internal/roles"
)

// Member is an approved, role-scoped identity. The same address may hold
// multiple roles, but (address, role) is unique.
type Member struct {
	AccountID   string     `json:"account_id"` // internal account identifier
	Address     string     `json:"address"`    // stable address-like key
	Role        roles.Role `json:"role"`
	Name        string     `json:"name"`
	Contact     string     `json:"contact"`
	Institution string     `json:"institution"`
	ApprovedAt  time.Time  `json:"approved_at"`
}
