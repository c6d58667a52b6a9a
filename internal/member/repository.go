package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/helixbridge/genconsent/internal/roles"
)

// Common errors for member operations.
var (
	ErrMemberNotFound = errors.New("member not found")
	ErrMemberExists   = errors.New("member already exists for address and role")
)

// Repository defines the interface for member mirror rows.
type Repository interface {
	// Create inserts a member. Returns ErrMemberExists when a member with
	// the same (address, role) already exists.
	Create(ctx context.Context, m *Member) error

	// GetByAddressAndRole retrieves a member by its unique (address, role).
	GetByAddressAndRole(ctx context.Context, address string, role roles.Role) (*Member, error)

	// CountByRole returns the number of approved members of a role.
	CountByRole(ctx context.Context, role roles.Role) (int, error)

	// ListByRole returns all members of a role.
	ListByRole(ctx context.Context, role roles.Role) ([]*Member, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	members map[string]*Member // "address:role" -> Member
	order   []string
}

// NewInMemoryRepository creates a new in-memory member repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{members: make(map[string]*Member)}
}

func key(address string, role roles.Role) string {
	return address + ":" + string(role)
}

// Create inserts a member, enforcing (address, role) uniqueness.
func (r *InMemoryRepository) Create(_ context.Context, m *Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key(m.Address, m.Role)
	if _, exists := r.members[k]; exists {
		return ErrMemberExists
	}
	if m.AccountID == "" {
		m.AccountID = uuid.New().String()
	}
	if m.ApprovedAt.IsZero() {
		m.ApprovedAt = time.Now().UTC()
	}
	memberCopy := *m
	r.members[k] = &memberCopy
	r.order = append(r.order, k)
	return nil
}

// GetByAddressAndRole retrieves a member by its unique (address, role).
func (r *InMemoryRepository) GetByAddressAndRole(_ context.Context, address string, role roles.Role) (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.members[key(address, role)]
	if !ok {
		return nil, ErrMemberNotFound
	}
	memberCopy := *m
	return &memberCopy, nil
}

// CountByRole returns the number of approved members of a role.
func (r *InMemoryRepository) CountByRole(_ context.Context, role roles.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, m := range r.members {
		if m.Role == role {
			count++
		}
	}
	return count, nil
}

// ListByRole returns all members of a role in insertion order.
func (r *InMemoryRepository) ListByRole(_ context.Context, role roles.Role) ([]*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Member
	for _, k := range r.order {
		if m := r.members[k]; m.Role == role {
			memberCopy := *m
			results = append(results, &memberCopy)
		}
	}
	return results, nil
}

// PostgresRepository implements Repository using PostgreSQL. The
// (address, role) uniqueness is backed by a unique index so concurrent
// materializations cannot slip past the application-layer check.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed member repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a member.
func (r *PostgresRepository) Create(ctx context.Context, m *Member) error {
	if m.AccountID == "" {
		m.AccountID = uuid.New().String()
	}
	if m.ApprovedAt.IsZero() {
		m.ApprovedAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO members (account_id, address, role, name, contact, institution, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.db.ExecContext(ctx, query,
		m.AccountID, m.Address, string(m.Role), m.Name, m.Contact, m.Institution, m.ApprovedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrMemberExists
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}

// GetByAddressAndRole retrieves a member by its unique (address, role).
func (r *PostgresRepository) GetByAddressAndRole(ctx context.Context, address string, role roles.Role) (*Member, error) {
	const query = `
		SELECT account_id, address, role, name, contact, institution, approved_at
		FROM members WHERE address = $1 AND role = $2`

	m := &Member{}
	var roleStr string
	err := r.db.QueryRowContext(ctx, query, address, string(role)).Scan(
		&m.AccountID, &m.Address, &roleStr, &m.Name, &m.Contact, &m.Institution, &m.ApprovedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMemberNotFound
		}
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	m.Role = roles.Role(roleStr)
	return m, nil
}

// CountByRole returns the number of approved members of a role.
func (r *PostgresRepository) CountByRole(ctx context.Context, role roles.Role) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM members WHERE role = $1`, string(role)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count members: %w", err)
	}
	return count, nil
}

// ListByRole returns all members of a role ordered by approval time.
func (r *PostgresRepository) ListByRole(ctx context.Context, role roles.Role) ([]*Member, error) {
	const query = `
		SELECT account_id, address, role, name, contact, institution, approved_at
		FROM members WHERE role = $1 ORDER BY approved_at`

	rows, err := r.db.QueryContext(ctx, query, string(role))
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Member
	for rows.Next() {
		m := &Member{}
		var roleStr string
		if err := rows.Scan(&m.AccountID, &m.Address, &roleStr, &m.Name, &m.Contact, &m.Institution, &m.ApprovedAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.Role = roles.Role(roleStr)
		results = append(results, m)
	}
	return results, rows.Err()
}
