package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/meditrack/meditrack-api/internal/model"
)

// ErrDuplicateKey reports an insert that collided with an existing row.
// Callers use it to make event-driven creates converge on redelivery.
var ErrDuplicateKey = errors.New("duplicate key")

// All repository interfaces in one file
type (
	// OrderRepository persists lab orders. The ForUpdate variants take the
	// row lock that serializes concurrent result submissions per order.
	OrderRepository interface {
		Create(ctx context.Context, order *model.LabOrder) error
		Get(ctx context.Context, id uuid.UUID) (*model.LabOrder, error)
		GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.LabOrder, error)
		UpdateStatus(ctx context.Context, order *model.LabOrder) error
		UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, order *model.LabOrder) error
	}

	ResultRepository interface {
		CreateTx(ctx context.Context, tx *sqlx.Tx, result *model.LabResult) error
		Get(ctx context.Context, id uuid.UUID) (*model.LabResult, error)
		ListByOrder(ctx context.Context, orderID uuid.UUID) ([]*model.LabResult, error)
		ListByOrderTx(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) ([]*model.LabResult, error)
		CountByOrderTx(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID) (int, error)
		ExistsByOrderAndTestCodeTx(ctx context.Context, tx *sqlx.Tx, orderID uuid.UUID, testCode string) (bool, error)
		ListCritical(ctx context.Context) ([]*model.LabResult, error)
		Update(ctx context.Context, result *model.LabResult) error
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		Update(ctx context.Context, patient *model.Patient) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
	}

	MedicalRecordRepository interface {
		Create(ctx context.Context, record *model.MedicalRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		CreateTx(ctx context.Context, tx *sqlx.Tx, event *model.OutboxEvent) error
		GetPendingTx(ctx context.Context, tx *sqlx.Tx, limit int) ([]*model.OutboxEvent, error)
		UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}

	// ProcessedEventRepository is the idempotency ledger for inbound events.
	ProcessedEventRepository interface {
		Exists(ctx context.Context, eventID uuid.UUID) (bool, error)
		Create(ctx context.Context, event *model.ProcessedEvent) error
	}
)
