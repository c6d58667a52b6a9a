package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/helixbridge/genconsent/internal/roles"
)

// Repository defines the append-only interface for audit events. There is
// deliberately no update or delete operation.
type Repository interface {
	// Insert appends an event.
	Insert(ctx context.Context, e *Event) error

	// List returns events newest-first, up to limit (0 = no limit).
	List(ctx context.Context, limit int) ([]*Event, error)

	// ListByActor returns events for one actor key, newest-first.
	ListByActor(ctx context.Context, actorKey string, limit int) ([]*Event, error)

	// ListByRole returns events for one actor role, newest-first.
	ListByRole(ctx context.Context, role roles.Role, limit int) ([]*Event, error)

	// SearchSubject returns events whose actor key, target identifier, or
	// detail text contains the term, newest-first. This fan-out match is
	// the documented way to build a subject-scoped view: the subject's key
	// may appear in any of the three fields depending on event type.
	SearchSubject(ctx context.Context, term string, limit int) ([]*Event, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu     sync.RWMutex
	events []*Event // insertion order
}

// NewInMemoryRepository creates a new in-memory audit repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// Insert appends an event.
func (r *InMemoryRepository) Insert(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	eventCopy := *e
	r.events = append(r.events, &eventCopy)
	return nil
}

func (r *InMemoryRepository) collect(limit int, match func(*Event) bool) []*Event {
	var results []*Event
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if match(e) {
			eventCopy := *e
			results = append(results, &eventCopy)
			if limit > 0 && len(results) >= limit {
				break
			}
		}
	}
	return results
}

// List returns events newest-first.
func (r *InMemoryRepository) List(_ context.Context, limit int) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(limit, func(*Event) bool { return true }), nil
}

// ListByActor returns events for one actor key, newest-first.
func (r *InMemoryRepository) ListByActor(_ context.Context, actorKey string, limit int) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(limit, func(e *Event) bool { return e.ActorKey == actorKey }), nil
}

// ListByRole returns events for one actor role, newest-first.
func (r *InMemoryRepository) ListByRole(_ context.Context, role roles.Role, limit int) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(limit, func(e *Event) bool { return e.ActorRole == role }), nil
}

// SearchSubject returns events matching the subject term in actor, target,
// or detail, newest-first.
func (r *InMemoryRepository) SearchSubject(_ context.Context, term string, limit int) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(limit, func(e *Event) bool {
		return e.ActorKey == term || e.TargetID == term || strings.Contains(e.Detail, term)
	}), nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed audit repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert appends an event.
func (r *PostgresRepository) Insert(ctx context.Context, e *Event) error {
	const query = `
		INSERT INTO audit_events (id, ts, action, actor_key, actor_role, target_id, reference_token, detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := r.db.ExecContext(ctx, query,
		e.ID, e.Timestamp, e.Action, e.ActorKey, string(e.ActorRole), e.TargetID, e.ReferenceToken, e.Detail)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, ts, action, actor_key, actor_role, target_id, reference_token, detail FROM audit_events`

func (r *PostgresRepository) query(ctx context.Context, where string, limit int, args ...any) ([]*Event, error) {
	q := selectColumns
	if where != "" {
		q += " WHERE " + where
	}
	q += " ORDER BY ts DESC, id DESC"
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Event
	for rows.Next() {
		e := &Event{}
		var roleStr string
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Action, &e.ActorKey, &roleStr, &e.TargetID, &e.ReferenceToken, &e.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		e.ActorRole = roles.Role(roleStr)
		results = append(results, e)
	}
	return results, rows.Err()
}

// List returns events newest-first.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*Event, error) {
	return r.query(ctx, "", limit)
}

// ListByActor returns events for one actor key, newest-first.
func (r *PostgresRepository) ListByActor(ctx context.Context, actorKey string, limit int) ([]*Event, error) {
	return r.query(ctx, "actor_key = $1", limit, actorKey)
}

// ListByRole returns events for one actor role, newest-first.
func (r *PostgresRepository) ListByRole(ctx context.Context, role roles.Role, limit int) ([]*Event, error) {
	return r.query(ctx, "actor_role = $1", limit, string(role))
}

// SearchSubject returns events matching the subject term in actor, target,
// or detail, newest-first. The three-way OR is intentional; the two key
// columns are indexed, the detail match is a substring scan.
func (r *PostgresRepository) SearchSubject(ctx context.Context, term string, limit int) ([]*Event, error) {
	return r.query(ctx,
		"(actor_key = $1 OR target_id = $1 OR detail LIKE '%' || $1 || '%')",
		limit, term)
}
