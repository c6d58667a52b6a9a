package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Common errors for access request operations.
var (
	ErrRequestNotFound = errors.New("access request not found")
	ErrRequestExists   = errors.New("access request already exists")
)

// Repository defines the interface for access request mirror rows.
type Repository interface {
	// Create inserts a request.
	Create(ctx context.Context, req *Request) error

	// GetByID retrieves a request.
	GetByID(ctx context.Context, id string) (*Request, error)

	// Decide atomically transitions a Pending request to the given
	// terminal status, recording the resolution token, linked consent and
	// decision time. Returns false when the request was not Pending — the
	// compare-and-swap that makes the decision single-shot.
	Decide(ctx context.Context, id string, status Status, resolutionToken, consentID string, decidedAt time.Time) (bool, error)

	// ListByPatient returns a patient's requests, newest-first.
	ListByPatient(ctx context.Context, patient string) ([]*Request, error)

	// ListByResearcher returns a researcher's requests, newest-first.
	ListByResearcher(ctx context.Context, researcherKey string) ([]*Request, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu       sync.RWMutex
	requests map[string]*Request
	order    []string
}

// NewInMemoryRepository creates a new in-memory access request repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{requests: make(map[string]*Request)}
}

// Create inserts a request.
func (r *InMemoryRepository) Create(_ context.Context, req *Request) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.requests[req.ID]; exists {
		return ErrRequestExists
	}
	requestCopy := *req
	r.requests[req.ID] = &requestCopy
	r.order = append(r.order, req.ID)
	return nil
}

// GetByID retrieves a request.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	req, ok := r.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	requestCopy := *req
	return &requestCopy, nil
}

// Decide atomically transitions a Pending request to a terminal status.
func (r *InMemoryRepository) Decide(_ context.Context, id string, status Status, resolutionToken, consentID string, decidedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.requests[id]
	if !ok {
		return false, ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return false, nil
	}
	req.Status = status
	req.ResolutionToken = resolutionToken
	req.ConsentID = consentID
	req.DecidedAt = &decidedAt
	return true, nil
}

func (r *InMemoryRepository) list(match func(*Request) bool) []*Request {
	var results []*Request
	for i := len(r.order) - 1; i >= 0; i-- {
		req := r.requests[r.order[i]]
		if match(req) {
			requestCopy := *req
			results = append(results, &requestCopy)
		}
	}
	return results
}

// ListByPatient returns a patient's requests, newest-first.
func (r *InMemoryRepository) ListByPatient(_ context.Context, patient string) ([]*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(func(req *Request) bool { return req.Patient == patient }), nil
}

// ListByResearcher returns a researcher's requests, newest-first.
func (r *InMemoryRepository) ListByResearcher(_ context.Context, researcherKey string) ([]*Request, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.list(func(req *Request) bool { return req.Researcher.Key == researcherKey }), nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed access request repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a request.
func (r *PostgresRepository) Create(ctx context.Context, req *Request) error {
	const query = `
		INSERT INTO access_requests
			(id, patient, researcher_key, researcher_name, researcher_institution,
			 dataset_id, purpose, duration_days, status, submit_token, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := r.db.ExecContext(ctx, query,
		req.ID, req.Patient, req.Researcher.Key, req.Researcher.Name, req.Researcher.Institution,
		req.DatasetID, req.Purpose, req.DurationDays, string(req.Status), req.SubmitToken, req.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert access request: %w", err)
	}
	return nil
}

const requestColumns = `id, patient, researcher_key, researcher_name, researcher_institution,
	dataset_id, purpose, duration_days, status, submit_token, resolution_token, consent_id, created_at, decided_at`

func scanRequest(row interface{ Scan(...any) error }) (*Request, error) {
	req := &Request{}
	var statusStr string
	var resolutionToken, consentID sql.NullString
	var decidedAt sql.NullTime
	err := row.Scan(&req.ID, &req.Patient, &req.Researcher.Key, &req.Researcher.Name,
		&req.Researcher.Institution, &req.DatasetID, &req.Purpose, &req.DurationDays,
		&statusStr, &req.SubmitToken, &resolutionToken, &consentID, &req.CreatedAt, &decidedAt)
	if err != nil {
		return nil, err
	}
	req.Status = Status(statusStr)
	req.ResolutionToken = resolutionToken.String
	req.ConsentID = consentID.String
	if decidedAt.Valid {
		t := decidedAt.Time
		req.DecidedAt = &t
	}
	return req, nil
}

// GetByID retrieves a request.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Request, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+requestColumns+` FROM access_requests WHERE id = $1`, id)
	req, err := scanRequest(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("failed to get access request: %w", err)
	}
	return req, nil
}

// Decide atomically transitions a Pending request to a terminal status.
func (r *PostgresRepository) Decide(ctx context.Context, id string, status Status, resolutionToken, consentID string, decidedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE access_requests
		 SET status = $1, resolution_token = $2, consent_id = NULLIF($3, ''), decided_at = $4
		 WHERE id = $5 AND status = $6`,
		string(status), resolutionToken, consentID, decidedAt, id, string(StatusPending))
	if err != nil {
		return false, fmt.Errorf("failed to decide access request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := r.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM access_requests WHERE id = $1)`, id).Scan(&exists); err != nil {
			return false, fmt.Errorf("failed to check request existence: %w", err)
		}
		if !exists {
			return false, ErrRequestNotFound
		}
		return false, nil
	}
	return true, nil
}

func (r *PostgresRepository) listWhere(ctx context.Context, column, value string) ([]*Request, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+requestColumns+` FROM access_requests WHERE `+column+` = $1 ORDER BY created_at DESC, id DESC`,
		value)
	if err != nil {
		return nil, fmt.Errorf("failed to list access requests: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan access request: %w", err)
		}
		results = append(results, req)
	}
	return results, rows.Err()
}

// ListByPatient returns a patient's requests, newest-first.
func (r *PostgresRepository) ListByPatient(ctx context.Context, patient string) ([]*Request, error) {
	return r.listWhere(ctx, "patient", patient)
}

// ListByResearcher returns a researcher's requests, newest-first.
func (r *PostgresRepository) ListByResearcher(ctx context.Context, researcherKey string) ([]*Request, error) {
	return r.listWhere(ctx, "researcher_key", researcherKey)
}
