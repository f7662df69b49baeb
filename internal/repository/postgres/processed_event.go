package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/repository"
)

type processedEventRepository struct {
	db *sqlx.DB
}

func NewProcessedEventRepository(db *sqlx.DB) repository.ProcessedEventRepository {
	return &processedEventRepository{db: db}
}

func (r *processedEventRepository) Exists(ctx context.Context, eventID uuid.UUID) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, eventID); err != nil {
		return false, fmt.Errorf("failed to check processed event: %w", err)
	}
	return exists, nil
}

func (r *processedEventRepository) Create(ctx context.Context, event *model.ProcessedEvent) error {
	if event.ProcessedAt.IsZero() {
		event.ProcessedAt = time.Now()
	}
	// ON CONFLICT DO NOTHING keeps concurrent redeliveries race-free.
	query := `
		INSERT INTO processed_events (event_id, event_type, processed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query, event.EventID, event.EventType, event.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to record processed event: %w", err)
	}
	return nil
}
