package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/repository"
)

type orderRepository struct {
	db *sqlx.DB
}

func NewOrderRepository(db *sqlx.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

// orderRow mirrors the lab_orders table; tests and diagnosis codes are
// embedded as JSONB.
type orderRow struct {
	ID                  uuid.UUID       `db:"id"`
	PatientID           string          `db:"patient_id"`
	FacilityID          string          `db:"facility_id"`
	OrderingPhysicianID string          `db:"ordering_physician_id"`
	Priority            string          `db:"priority"`
	Tests               json.RawMessage `db:"tests"`
	DiagnosisCodes      json.RawMessage `db:"diagnosis_codes"`
	Status              string          `db:"status"`
	OrderTimestamp      time.Time       `db:"order_timestamp"`
	CreatedAt           time.Time       `db:"created_at"`
	UpdatedAt           time.Time       `db:"updated_at"`
}

func (row *orderRow) toModel() (*model.LabOrder, error) {
	order := &model.LabOrder{
		ID:                  row.ID,
		PatientID:           row.PatientID,
		FacilityID:          row.FacilityID,
		OrderingPhysicianID: row.OrderingPhysicianID,
		Priority:            model.Priority(row.Priority),
		Status:              model.OrderStatus(row.Status),
		OrderTimestamp:      row.OrderTimestamp,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
	if len(row.Tests) > 0 {
		if err := json.Unmarshal(row.Tests, &order.Tests); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tests: %w", err)
		}
	}
	if len(row.DiagnosisCodes) > 0 {
		if err := json.Unmarshal(row.DiagnosisCodes, &order.DiagnosisCodes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal diagnosis codes: %w", err)
		}
	}
	return order, nil
}

func (r *orderRepository) Create(ctx context.Context, order *model.LabOrder) error {
	tests, err := json.Marshal(order.Tests)
	if err != nil {
		return fmt.Errorf("failed to marshal tests: %w", err)
	}
	codes, err := json.Marshal(order.DiagnosisCodes)
	if err != nil {
		return fmt.Errorf("failed to marshal diagnosis codes: %w", err)
	}

	query := `
		INSERT INTO lab_orders (
			id, patient_id, facility_id, ordering_physician_id, priority,
			tests, diagnosis_codes, status, order_timestamp, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = r.db.ExecContext(ctx, query,
		order.ID,
		order.PatientID,
		order.FacilityID,
		order.OrderingPhysicianID,
		order.Priority,
		tests,
		codes,
		order.Status,
		order.OrderTimestamp,
		order.CreatedAt,
		order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("lab order %s already exists: %w", order.ID, repository.ErrDuplicateKey)
		}
		return fmt.Errorf("failed to create lab order: %w", err)
	}
	return nil
}

func (r *orderRepository) Get(ctx context.Context, id uuid.UUID) (*model.LabOrder, error) {
	query := `SELECT * FROM lab_orders WHERE id = $1`
	var row orderRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lab order: %w", err)
	}
	return row.toModel()
}

// GetForUpdateTx loads the order under a row lock held until the
// transaction ends. Concurrent submissions for the same order queue here.
func (r *orderRepository) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.LabOrder, error) {
	query := `SELECT * FROM lab_orders WHERE id = $1 FOR UPDATE`
	var row orderRow
	err := tx.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock lab order: %w", err)
	}
	return row.toModel()
}

func (r *orderRepository) UpdateStatus(ctx context.Context, order *model.LabOrder) error {
	query := `UPDATE lab_orders SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := r.db.ExecContext(ctx, query, order.Status, order.UpdatedAt, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update lab order status: %w", err)
	}
	return nil
}

func (r *orderRepository) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, order *model.LabOrder) error {
	query := `UPDATE lab_orders SET status = $1, updated_at = $2 WHERE id = $3`
	_, err := tx.ExecContext(ctx, query, order.Status, order.UpdatedAt, order.ID)
	if err != nil {
		return fmt.Errorf("failed to update lab order status: %w", err)
	}
	return nil
}
