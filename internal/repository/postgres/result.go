package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/repository"
)

type resultRepository struct {
	db *sqlx.DB
}

func NewResultRepository(db *sqlx.DB) repository.ResultRepository {
	return &resultRepository{db: db}
}

func (r *resultRepository) CreateTx(ctx context.Context, tx *sqlx.Tx, result *model.LabResult) error {
	query := `
		INSERT INTO lab_results (
			id, order_id, test_code, test_name, loinc_code, result_value,
			result_unit, reference_range, abnormal_flag, performed_by,
			performed_at, verified_by, verified_at, status, notes,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`
	_, err := tx.ExecContext(ctx, query,
		result.ID,
		result.OrderID,
		result.TestCode,
		result.TestName,
		result.LoincCode,
		result.ResultValue,
		result.ResultUnit,
		result.ReferenceRange,
		result.AbnormalFlag,
		result.PerformedBy,
		result.PerformedAt,
		result.VerifiedBy,
		result.VerifiedAt,
		result.Status,
		result.Notes,
		result.CreatedAt,
		result.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create lab result: %w", err)
	}
	return nil
}

func (r *resultRepository) Get(ctx context.Context, id uuid.UUID) (*model.LabResult, error) {
	query := `SELECT * FROM lab_results WHERE id = $1`
	var result model.LabResult
	err := r.db.GetContext(ctx, &result, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lab result: %w", err)
	}
	return &result, nil
}

func (r *resultRepository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.LabResult, error) {
	query := `SELECT * FROM lab_results WHERE order_id = $1 ORDER BY created_at ASC`
	var results []*model.LabResult
	if err := r.db.SelectContext(ctx, &results, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to list results for order: %w", err)
	}
	return results, nil
}

func (r *resultRepository) ListByOrderTx(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) ([]*model.LabResult, error) {
	query := `SELECT * FROM lab_results WHERE order_id = $1 ORDER BY created_at ASC`
	var results []*model.LabResult
	if err := tx.SelectContext(ctx, &results, query, orderID); err != nil {
		return nil, fmt.Errorf("failed to list results for order: %w", err)
	}
	return results, nil
}

// CountByOrderTx counts distinct test codes: repeated submissions for one
// test never inflate completion progress.
func (r *resultRepository) CountByOrderTx(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) (int, error) {
	query := `SELECT COUNT(DISTINCT test_code) FROM lab_results WHERE order_id = $1`
	var count int
	if err := tx.GetContext(ctx, &count, query, orderID); err != nil {
		return 0, fmt.Errorf("failed to count results for order: %w", err)
	}
	return count, nil
}

func (r *resultRepository) ExistsByOrderAndTestCodeTx(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, testCode string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM lab_results WHERE order_id = $1 AND test_code = $2)`
	var exists bool
	if err := tx.GetContext(ctx, &exists, query, orderID, testCode); err != nil {
		return false, fmt.Errorf("failed to check for existing result: %w", err)
	}
	return exists, nil
}

func (r *resultRepository) ListCritical(ctx context.Context) ([]*model.LabResult, error) {
	query := `
		SELECT * FROM lab_results
		WHERE abnormal_flag IN ($1, $2)
		ORDER BY performed_at DESC
	`
	var results []*model.LabResult
	err := r.db.SelectContext(ctx, &results, query, model.FlagCriticallyLow, model.FlagCriticallyHigh)
	if err != nil {
		return nil, fmt.Errorf("failed to list critical results: %w", err)
	}
	return results, nil
}

func (r *resultRepository) Update(ctx context.Context, result *model.LabResult) error {
	query := `
		UPDATE lab_results
		SET verified_by = $1, verified_at = $2, status = $3, updated_at = $4
		WHERE id = $5
	`
	_, err := r.db.ExecContext(ctx, query,
		result.VerifiedBy,
		result.VerifiedAt,
		result.Status,
		result.UpdatedAt,
		result.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update lab result: %w", err)
	}
	return nil
}
