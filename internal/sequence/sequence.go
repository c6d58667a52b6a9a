// Package sequence provides atomic increment-and-reserve counters for the
// human-readable identifiers minted by the mirror store (dataset records,
// consents, access requests, audit events). Reserving is a single atomic
// step; callers never count rows and then format, which races under
// concurrent requests.
package sequence

import (
	"context"
	"fmt"
	"sync"

	"database/sql"
)

// Counter reserves monotonically increasing values per named entity kind.
type Counter interface {
	// Next atomically reserves and returns the next value for the kind.
	// The first reserved value is 1.
	Next(ctx context.Context, kind string) (int64, error)
}

// Well-known counter kinds with their display formats.
const (
	KindRecord        = "record"         // GR-%03d
	KindConsent       = "consent"        // CN-%04d
	KindAccessRequest = "access_request" // AR-%04d
	KindAuditEvent    = "audit_event"    // AE-%06d
)

// Format renders a reserved value as the human-readable identifier for its
// kind. Unknown kinds fall back to a generic prefix.
func Format(kind string, n int64) string {
	switch kind {
	case KindRecord:
		return fmt.Sprintf("GR-%03d", n)
	case KindConsent:
		return fmt.Sprintf("CN-%04d", n)
	case KindAccessRequest:
		return fmt.Sprintf("AR-%04d", n)
	case KindAuditEvent:
		return fmt.Sprintf("AE-%06d", n)
	default:
		return fmt.Sprintf("ID-%d", n)
	}
}

// InMemoryCounter implements Counter with a mutex-guarded map.
// Used for testing and development.
type InMemoryCounter struct {
	mu   sync.Mutex
	next map[string]int64
}

// NewInMemoryCounter creates a new in-memory counter.
func NewInMemoryCounter() *InMemoryCounter {
	return &InMemoryCounter{next: make(map[string]int64)}
}

// Next atomically reserves and returns the next value for the kind.
func (c *InMemoryCounter) Next(_ context.Context, kind string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next[kind]++
	return c.next[kind], nil
}

// PostgresCounter implements Counter on a dedicated sequences table using
// an upsert that increments and returns in one statement.
type PostgresCounter struct {
	db *sql.DB
}

// NewPostgresCounter creates a new Postgres-backed counter.
func NewPostgresCounter(db *sql.DB) *PostgresCounter {
	return &PostgresCounter{db: db}
}

// Next atomically reserves and returns the next value for the kind.
func (c *PostgresCounter) Next(ctx context.Context, kind string) (int64, error) {
	const query = `
		INSERT INTO id_sequences (kind, current_value)
		VALUES ($1, 1)
		ON CONFLICT (kind)
		DO UPDATE SET current_value = id_sequences.current_value + 1
		RETURNING current_value`

	var value int64
	if err := c.db.QueryRowContext(ctx, query, kind).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to reserve sequence value for %s: %w", kind, err)
	}
	return value, nil
}
