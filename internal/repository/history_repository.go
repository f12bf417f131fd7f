package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/open-alumni/portal-api/internal/models"
)

// HistoryRepository appends and reads the shared status history of priced
// requests. Rows are append-only; corrections happen through new transitions.
type HistoryRepository struct {
	db *sqlx.DB
}

// NewHistoryRepository constructs the repository.
func NewHistoryRepository(db *sqlx.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append records one status transition.
func (r *HistoryRepository) Append(ctx context.Context, entry *models.StatusHistoryEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO request_status_history (id, request_kind, request_id, from_status, to_status, actor, note, created_at)
        VALUES (:id, :request_kind, :request_id, :from_status, :to_status, :actor, :note, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("append status history: %w", err)
	}
	return nil
}

// ListForRequest returns the full transition trail of one request, oldest
// first.
func (r *HistoryRepository) ListForRequest(ctx context.Context, kind, requestID string) ([]models.StatusHistoryEntry, error) {
	const query = `SELECT id, request_kind, request_id, from_status, to_status, actor, note, created_at
        FROM request_status_history WHERE request_kind = $1 AND request_id = $2 ORDER BY created_at ASC`
	var entries []models.StatusHistoryEntry
	if err := r.db.SelectContext(ctx, &entries, query, kind, requestID); err != nil {
		return nil, fmt.Errorf("list status history: %w", err)
	}
	return entries, nil
}
