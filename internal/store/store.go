package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"storefront-client/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Store persists the mutation journal: an audit row per optimistic
// mutation, from PENDING through APPLIED or ROLLED_BACK. It also tracks
// processed event ids so the invalidation worker consumes each event once.
type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// RecordMutation inserts a PENDING journal row for a mutation
func (s *Store) RecordMutation(ctx context.Context, rec *models.MutationRecord) error {
	query := `
		INSERT INTO mutation_journal (token, kind, target_id, status, detail)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at`

	return s.db.GetContext(ctx, &rec.CreatedAt, query,
		rec.Token, rec.Kind, rec.TargetID, rec.Status, rec.Detail)
}

// ResolveMutation marks a journal row APPLIED or ROLLED_BACK
func (s *Store) ResolveMutation(ctx context.Context, token, status, detail string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE mutation_journal SET status = $1, detail = $2, resolved_at = NOW() WHERE token = $3",
		status, detail, token)
	return err
}

// GetMutationByToken retrieves a journal row by its correlation token
func (s *Store) GetMutationByToken(ctx context.Context, token string) (*models.MutationRecord, error) {
	var rec models.MutationRecord
	err := s.db.GetContext(ctx, &rec, "SELECT * FROM mutation_journal WHERE token = $1", token)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("mutation not found: %s", token)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRecentMutations retrieves the most recent journal rows
func (s *Store) GetRecentMutations(ctx context.Context, limit int) ([]models.MutationRecord, error) {
	var recs []models.MutationRecord
	err := s.db.SelectContext(ctx, &recs,
		"SELECT * FROM mutation_journal ORDER BY created_at DESC LIMIT $1", limit)
	return recs, err
}

// CountStaleMutations counts rows stuck in PENDING longer than the cutoff,
// a signal that resolutions are being lost.
func (s *Store) CountStaleMutations(ctx context.Context, olderThan time.Duration) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM mutation_journal WHERE status = $1 AND created_at < NOW() - $2::interval",
		models.MutationStatusPending, fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	return count, err
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
