package record

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// Common errors for record operations.
var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordExists   = errors.New("record already exists")
)

// Repository defines the interface for dataset record mirror rows.
type Repository interface {
	// Create inserts a record.
	Create(ctx context.Context, rec *Record) error

	// GetByID retrieves a record.
	GetByID(ctx context.Context, id string) (*Record, error)

	// MarkVerified sets the integrity-verified annotation.
	MarkVerified(ctx context.Context, id string) error

	// ListByPatient returns a patient's records, newest-first.
	ListByPatient(ctx context.Context, patient string) ([]*Record, error)
}

// InMemoryRepository is an in-memory implementation of Repository.
// Thread-safe via RWMutex.
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[string]*Record
	order   []string
}

// NewInMemoryRepository creates a new in-memory record repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[string]*Record)}
}

// Create inserts a record.
func (r *InMemoryRepository) Create(_ context.Context, rec *Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[rec.ID]; exists {
		return ErrRecordExists
	}
	recordCopy := *rec
	r.records[rec.ID] = &recordCopy
	r.order = append(r.order, rec.ID)
	return nil
}

// GetByID retrieves a record.
func (r *InMemoryRepository) GetByID(_ context.Context, id string) (*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	recordCopy := *rec
	return &recordCopy, nil
}

// MarkVerified sets the integrity-verified annotation.
func (r *InMemoryRepository) MarkVerified(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.Verified = true
	return nil
}

// ListByPatient returns a patient's records, newest-first.
func (r *InMemoryRepository) ListByPatient(_ context.Context, patient string) ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*Record
	for i := len(r.order) - 1; i >= 0; i-- {
		rec := r.records[r.order[i]]
		if rec.Patient == patient {
			recordCopy := *rec
			results = append(results, &recordCopy)
		}
	}
	return results, nil
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository creates a new Postgres-backed record repository.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const recordColumns = `id, patient, lab, content_hash, locator, file_kind, reference_token, verified, created_at`

// Create inserts a record.
func (r *PostgresRepository) Create(ctx context.Context, rec *Record) error {
	const query = `
		INSERT INTO dataset_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.Patient, rec.Lab, rec.ContentHash, rec.Locator,
		rec.FileKind, rec.ReferenceToken, rec.Verified, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert dataset record: %w", err)
	}
	return nil
}

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	rec := &Record{}
	err := row.Scan(&rec.ID, &rec.Patient, &rec.Lab, &rec.ContentHash, &rec.Locator,
		&rec.FileKind, &rec.ReferenceToken, &rec.Verified, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// GetByID retrieves a record.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM dataset_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get dataset record: %w", err)
	}
	return rec, nil
}

// MarkVerified sets the integrity-verified annotation.
func (r *PostgresRepository) MarkVerified(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE dataset_records SET verified = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark record verified: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// ListByPatient returns a patient's records, newest-first.
func (r *PostgresRepository) ListByPatient(ctx context.Context, patient string) ([]*Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM dataset_records WHERE patient = $1 ORDER BY created_at DESC, id DESC`,
		patient)
	if err != nil {
		return nil, fmt.Errorf("failed to list dataset records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dataset record: %w", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
