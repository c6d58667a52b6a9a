package governance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/lib/pq"

	"github.com/helixbridge/genconsent/internal/roles"
)

// Common errors for proposal operations.
var (
	ErrProposalNotFound = errors.New("proposal not found")
	ErrProposalExists   = errors.New("proposal already exists")
	ErrAlreadyVoted     = errors.New("voter already voted on proposal")
)

// Repository defines the interface for proposal mirror rows.
type Repository interface {
	// Create inserts a proposal.
	Create(ctx context.Context, p *Proposal) error

	// GetByID retrieves a proposal with its votes.
	GetByID(ctx context.Context, id string) (*Proposal, error)

	// FindPending returns the unresolved proposal for (applicant, role),
	// or ErrProposalNotFound when none exists.
	FindPending(ctx context.Context, applicant string, role roles.Role) (*Proposal, error)

	// AppendVote appends a vote. Returns ErrAlreadyVoted when the voter
	// already voted on this proposal.
	AppendVote(ctx context.Context, proposalID string, vote Vote) error

	// TransitionStatus atomically moves the proposal from one status to
	// another. Returns false when the proposal was not in the expected
	// status — the compare-and-swap that serializes resolution.
	TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error)

	// List returns all proposals, newest-first.
	List(ctx context.Context) ([]*Proposal, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu        sync.RWMutex
	proposals map[string]*Proposal
	order     []string
}

// NewInMemoryRepository creates a new in-memory proposal repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{proposals: make(map[string]*Proposal)}
}

// Create inserts a proposal.
func (r *InMemoryRepository) Create(_ context.Context, p *Proposal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.proposals[p.ID]; exists {
		return ErrProposalExists
	}
	proposalCopy := clone(p)
	r.proposals[p.ID] = proposalCopy
	r.order = append(r.order, p.ID)
	return nil
}

// GetByID retrieves a proposal with its votes.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.proposals[id]
	if !ok {
		return nil, ErrProposalNotFound
	}
	return clone(p), nil
}

// FindPending returns the unresolved proposal for (applicant, role).
func (r *InMemoryRepository) FindPending(_ context.Context, applicant string, role roles.Role) (*Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, id := range r.order {
		p := r.proposals[id]
		if p.Applicant == applicant && p.Role == role && p.Status == StatusPending {
			return clone(p), nil
		}
	}
	return nil, ErrProposalNotFound
}

// AppendVote appends a vote, enforcing one vote per voter.
func (r *InMemoryRepository) AppendVote(_ context.Context, proposalID string, vote Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[proposalID]
	if !ok {
		return ErrProposalNotFound
	}
	if p.HasVoted(vote.Voter) {
		return ErrAlreadyVoted
	}
	p.Votes = append(p.Votes, vote)
	return nil
}

// TransitionStatus atomically moves the proposal between statuses.
func (r *InMemoryRepository) TransitionStatus(_ context.Context, id string, from, to Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.proposals[id]
	if !ok {
		return false, ErrProposalNotFound
	}
	if p.Status != from {
		return false, nil
	}
	p.Status = to
	return true, nil
}

// List returns all proposals, newest-first.
func (r *InMemoryRepository) List(_ context.Context) ([]*Proposal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	results := make([]*Proposal, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		results = append(results, clone(r.proposals[r.order[i]]))
	}
	return results, nil
}

func clone(p *Proposal) *Proposal {
	proposalCopy := *p
	proposalCopy.Votes = append([]Vote(nil), p.Votes...)
	return &proposalCopy
}

// PostgresRepository implements Repository using PostgreSQL. Votes live in
// their own table with a unique (proposal_id, voter) index; the status
// compare-and-swap is a conditional UPDATE.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed proposal repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a proposal.
func (r *PostgresRepository) Create(ctx context.Context, p *Proposal) error {
	const query = `
		INSERT INTO proposals (id, applicant, role, name, contact, institution, created_at, deadline, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		p.ID, p.Applicant, string(p.Role), p.Profile.Name, p.Profile.Contact,
		p.Profile.Institution, p.CreatedAt, p.Deadline, string(p.Status))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrProposalExists
		}
		return fmt.Errorf("failed to insert proposal: %w", err)
	}
	return nil
}

const proposalColumns = `id, applicant, role, name, contact, institution, created_at, deadline, status`

func (r *PostgresRepository) scanProposal(row interface{ Scan(...any) error }) (*Proposal, error) {
	p := &Proposal{}
	var roleStr, statusStr string
	err := row.Scan(&p.ID, &p.Applicant, &roleStr, &p.Profile.Name, &p.Profile.Contact,
		&p.Profile.Institution, &p.CreatedAt, &p.Deadline, &statusStr)
	if err != nil {
		return nil, err
	}
	p.Role = roles.Role(roleStr)
	p.Status = Status(statusStr)
	return p, nil
}

func (r *PostgresRepository) loadVotes(ctx context.Context, p *Proposal) error {
	rows, err := r.db.QueryContext(ctx,
		`SELECT voter, approve, cast_at FROM proposal_votes WHERE proposal_id = $1 ORDER BY cast_at, voter`,
		p.ID)
	if err != nil {
		return fmt.Errorf("failed to load votes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var v Vote
		if err := rows.Scan(&v.Voter, &v.Approve, &v.CastAt); err != nil {
			return fmt.Errorf("failed to scan vote: %w", err)
		}
		p.Votes = append(p.Votes, v)
	}
	return rows.Err()
}

// GetByID retrieves a proposal with its votes.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Proposal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals WHERE id = $1`, id)
	p, err := r.scanProposal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to get proposal: %w", err)
	}
	if err := r.loadVotes(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// FindPending returns the unresolved proposal for (applicant, role).
func (r *PostgresRepository) FindPending(ctx context.Context, applicant string, role roles.Role) (*Proposal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals
		 WHERE applicant = $1 AND role = $2 AND status = $3
		 ORDER BY created_at LIMIT 1`,
		applicant, string(role), string(StatusPending))
	p, err := r.scanProposal(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProposalNotFound
		}
		return nil, fmt.Errorf("failed to find pending proposal: %w", err)
	}
	if err := r.loadVotes(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// AppendVote appends a vote, enforcing one vote per voter via the unique
// (proposal_id, voter) index.
func (r *PostgresRepository) AppendVote(ctx context.Context, proposalID string, vote Vote) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO proposal_votes (proposal_id, voter, approve, cast_at) VALUES ($1, $2, $3, $4)`,
		proposalID, vote.Voter, vote.Approve, vote.CastAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return ErrAlreadyVoted
			case "foreign_key_violation":
				return ErrProposalNotFound
			}
		}
		return fmt.Errorf("failed to insert vote: %w", err)
	}
	return nil
}

// TransitionStatus atomically moves the proposal between statuses.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, id string, from, to Status) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE proposals SET status = $1 WHERE id = $2 AND status = $3`,
		string(to), id, string(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition proposal status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		// Distinguish a lost CAS from a missing proposal.
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM proposals WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check proposal existence: %w", err)
		}
		if !exists {
			return false, ErrProposalNotFound
		}
		return false, nil
	}
	return true, nil
}

// List returns all proposals, newest-first, with votes.
func (r *PostgresRepository) List(ctx context.Context) ([]*Proposal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+proposalColumns+` FROM proposals ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list proposals: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Proposal
	for rows.Next() {
		p, err := r.scanProposal(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan proposal: %w", err)
		}
		results = append(results, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, p := range results {
		if err := r.loadVotes(ctx, p); err != nil {
			return nil, err
		}
	}
	return results, nil
}
