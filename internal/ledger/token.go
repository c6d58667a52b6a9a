package ledger

import (
	"strings"

	"github.com/google/uuid"
)

// OfflineTokenPrefix marks locally-minted placeholder reference tokens.
// The prefix is the caller-visible signal that a state change was recorded
// in the mirror without a settled ledger transaction behind it.
const OfflineTokenPrefix = "offline-"

// NewOfflineToken mints a placeholder reference token for a degraded-mode
// write. Tokens are unique but carry no settlement proof.
func NewOfflineToken() string {
	return OfflineTokenPrefix + uuid.New().String()
}

// IsOfflineToken reports whether the token is a local placeholder rather
// than a ledger transaction token.
func IsOfflineToken(token string) bool {
	return strings.HasPrefix(token, OfflineTokenPrefix)
}
