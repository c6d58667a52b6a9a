package health

import (
	"context"
	"errors"

	"github.com/helixbridge/genconsent/internal/ledger"
)

// ErrLedgerUnreachable is returned when the ledger probe fails. The service
// keeps running in degraded mode; health reports carry the distinction.
var ErrLedgerUnreachable = errors.New("ledger unreachable")

// LedgerChecker reports the ledger's reachability through the cached probe.
type LedgerChecker struct {
	client ledger.Client
}

// NewLedgerChecker creates a new ledger health checker.
func NewLedgerChecker(client ledger.Client) *LedgerChecker {
	return &LedgerChecker{
		client: client,
	}
}

// HealthCheck probes the ledger. An unreachable ledger is reported as an
// error but does not take the service down.
func (l *LedgerChecker) HealthCheck(ctx context.Context) error {
	if !l.client.IsReachable(ctx) {
		return ErrLedgerUnreachable
	}
	return nil
}
