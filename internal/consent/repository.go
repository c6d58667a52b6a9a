package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Common errors for consent operations.
var (
	ErrGrantNotFound = errors.New("consent grant not found")
	ErrGrantExists   = errors.New("consent grant already exists")
)

// Repository defines the interface for consent grant mirror rows.
type Repository interface {
	// Create inserts a grant.
	Create(ctx context.Context, g *Grant) error

	// GetByID retrieves a grant.
	GetByID(ctx context.Context, id string) (*Grant, error)

	// MarkRevoked atomically sets the revoked flag and revocation token on
	// a not-yet-revoked grant. Returns false when the grant was already
	// revoked.
	MarkRevoked(ctx context.Context, id, revokeToken string) (bool, error)

	// MarkRevokedByChainIndex revokes by on-chain index; used when folding
	// in revocations settled elsewhere. Missing indices are ignored.
	MarkRevokedByChainIndex(ctx context.Context, chainIndex int64, revokeToken string) error

	// ListByPatient returns a patient's grants, newest-first.
	ListByPatient(ctx context.Context, patient string) ([]*Grant, error)

	// ListByResearcher returns a researcher's grants, newest-first.
	ListByResearcher(ctx context.Context, researcher string) ([]*Grant, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu     sync.RWMutex
	grants map[string]*Grant
	order  []string
}

// NewInMemoryRepository creates a new in-memory consent repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{grants: make(map[string]*Grant)}
}

// Create inserts a grant.
func (r *InMemoryRepository) Create(_ context.Context, g *Grant) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.grants[g.ID]; exists {
		return ErrGrantExists
	}
	grantCopy := *g
	r.grants[g.ID] = &grantCopy
	r.order = append(r.order, g.ID)
	return nil
}

// GetByID retrieves a grant.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.grants[id]
	if !ok {
		return nil, ErrGrantNotFound
	}
	grantCopy := *g
	return &grantCopy, nil
}

// MarkRevoked atomically sets the revoked flag on a not-yet-revoked grant.
func (r *InMemoryRepository) MarkRevoked(_ context.Context, id, revokeToken string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.grants[id]
	if !ok {
		return false, ErrGrantNotFound
	}
	if g.Revoked {
		return false, nil
	}
	g.Revoked = true
	g.RevokeToken = revokeToken
	return true, nil
}

// MarkRevokedByChainIndex revokes by on-chain index.
func (r *InMemoryRepository) MarkRevokedByChainIndex(_ context.Context, chainIndex int64, revokeToken string) error {
	if chainIndex == NoChainIndex {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, g := range r.grants {
		if g.ChainIndex == chainIndex && !g.Revoked {
			g.Revoked = true
			g.RevokeToken = revokeToken
		}
	}
	return nil
}

func (r *InMemoryRepository) list(match func(*Grant) bool) []*Grant {
	var results []*Grant
	for i := len(r.order) - 1; i >= 0; i-- {
		g := r.grants[r.order[i]]
		if match(g) {
			grantCopy := *g
			results = append(results, &grantCopy)
		}
	}
	return results
}

// ListByPatient returns a patient's grants, newest-first.
func (r *InMemoryRepository) ListByPatient(_ context.Context, patient string) ([]*Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(func(g *Grant) bool { return g.Patient == patient }), nil
}

// ListByResearcher returns a researcher's grants, newest-first.
func (r *InMemoryRepository) ListByResearcher(_ context.Context, researcher string) ([]*Grant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(func(g *Grant) bool { return g.Researcher == researcher }), nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed consent repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a grant.
func (r *PostgresRepository) Create(ctx context.Context, g *Grant) error {
	const query = `
		INSERT INTO consent_grants
			(id, patient, researcher, dataset_id, start_at, end_at, revoked, chain_index, grant_token, revoke_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query,
		g.ID, g.Patient, g.Researcher, g.DatasetID, g.Start, g.End,
		g.Revoked, g.ChainIndex, g.GrantToken, g.RevokeToken, g.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert consent grant: %w", err)
	}
	return nil
}

const grantColumns = `id, patient, researcher, dataset_id, start_at, end_at, revoked, chain_index, grant_token, revoke_token, created_at`

func scanGrant(row interface{ Scan(...any) error }) (*Grant, error) {
	g := &Grant{}
	var revokeToken sql.NullString
	err := row.Scan(&g.ID, &g.Patient, &g.Researcher, &g.DatasetID, &g.Start, &g.End,
		&g.Revoked, &g.ChainIndex, &g.GrantToken, &revokeToken, &g.CreatedAt)
	if err != nil {
		return nil, err
	}
	g.RevokeToken = revokeToken.String
	return g, nil
}

// GetByID retrieves a grant.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Grant, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+grantColumns+` FROM consent_grants WHERE id = $1`, id)
	g, err := scanGrant(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get consent grant: %w", err)
	}
	return g, nil
}

// MarkRevoked atomically sets the revoked flag on a not-yet-revoked grant.
func (r *PostgresRepository) MarkRevoked(ctx context.Context, id, revokeToken string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE consent_grants SET revoked = TRUE, revoke_token = $1 WHERE id = $2 AND revoked = FALSE`,
		revokeToken, id)
	if err != nil {
		return false, fmt.Errorf("failed to revoke consent grant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM consent_grants WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check grant existence: %w", err)
		}
		if !exists {
			return false, ErrGrantNotFound
		}
		return false, nil
	}
	return true, nil
}

// MarkRevokedByChainIndex revokes by on-chain index.
func (r *PostgresRepository) MarkRevokedByChainIndex(ctx context.Context, chainIndex int64, revokeToken string) error {
	if chainIndex == NoChainIndex {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE consent_grants SET revoked = TRUE, revoke_token = $1 WHERE chain_index = $2 AND revoked = FALSE`,
		revokeToken, chainIndex)
	if err != nil {
		return fmt.Errorf("failed to revoke consent grant by chain index: %w", err)
	}
	return nil
}

func (r *PostgresRepository) listWhere(ctx context.Context, column, value string) ([]*Grant, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+grantColumns+` FROM consent_grants WHERE `+column+` = $1 ORDER BY created_at DESC, id DESC`,
		value)
	if err != nil {
		return nil, fmt.Errorf("failed to list consent grants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consent grant: %w", err)
		}
		results = append(results, g)
	}
	return results, rows.Err()
}

// ListByPatient returns a patient's grants, newest-first.
func (r *PostgresRepository) ListByPatient(ctx context.Context, patient string) ([]*Grant, error) {
	return r.listWhere(ctx, "patient", patient)
}

// ListByResearcher returns a researcher's grants, newest-first.
func (r *PostgresRepository) ListByResearcher(ctx context.Context, researcher string) ([]*Grant, error) {
	return r.listWhere(ctx, "researcher", researcher)
}
