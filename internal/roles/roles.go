// Package roles defines the closed role enumeration and the capability
// table that gates what each role may do in the system.
package roles

import (
	"errors"
	"strings"
)

// Role is a closed enumeration of organizational roles.
type Role string

const (
	Patient    Role = "patient"
	Lab        Role = "lab"
	Researcher Role = "researcher"
)

// ErrUnknownRole is returned when parsing a string that is not a role.
var ErrUnknownRole = errors.New("unknown role")

// Capability names an action a role may perform.
type Capability string

const (
	CapVote           Capability = "vote"            // vote on admission proposals for the same role
	CapUploadRecord   Capability = "upload_record"   // register dataset records
	CapRequestAccess  Capability = "request_access"  // submit access requests
	CapDecideConsent  Capability = "decide_consent"  // grant, revoke, approve or reject
)

// capabilities is the role -> capability table. Membership admission is
// voted on by existing members of the requested role, so every role
// carries CapVote.
var capabilities = map[Role][]Capability{
	Patient:    {CapVote, CapDecideConsent},
	Lab:        {CapVote, CapUploadRecord},
	Researcher: {CapVote, CapRequestAccess},
}

// Parse converts a string to a Role. Matching is case-insensitive.
func Parse(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case Patient:
		return Patient, nil
	case Lab:
		return Lab, nil
	case Researcher:
		return Researcher, nil
	}
	return "", ErrUnknownRole
}

// Valid reports whether r is one of the closed enumeration values.
func Valid(r Role) bool {
	_, ok := capabilities[r]
	return ok
}

// Can reports whether the role holds the given capability.
func Can(r Role, c Capability) bool {
	for _, have := range capabilities[r] {
		if have == c {
			return true
		}
	}
	return false
}

// All returns the closed set of roles in a stable order.
func All() []Role {
	return []Role{Patient, Lab, Researcher}
}
