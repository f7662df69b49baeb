package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type OrderStatus string

const (
	OrderStatusReceived   OrderStatus = "RECEIVED"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

type Priority string

const (
	PriorityRoutine Priority = "ROUTINE"
	PriorityUrgent  Priority = "URGENT"
	PriorityStat    Priority = "STAT"
)

// ParsePriority maps a wire-level priority string to the domain enum.
// Matching is case-insensitive; unrecognized values report ok=false so the
// caller can fall back to ROUTINE and log.
func ParsePriority(s string) (Priority, bool) {
	switch Priority(strings.ToUpper(strings.TrimSpace(s))) {
	case PriorityRoutine:
		return PriorityRoutine, true
	case PriorityUrgent:
		return PriorityUrgent, true
	case PriorityStat:
		return PriorityStat, true
	}
	return PriorityRoutine, false
}

type TestInfo struct {
	TestCode      string `json:"test_code" db:"test_code"`
	TestName      string `json:"test_name" db:"test_name"`
	SpecimenType  string `json:"specimen_type" db:"specimen_type"`
	ClinicalNotes string `json:"clinical_notes" db:"clinical_notes"`
}

type DiagnosisCode struct {
	Code        string `json:"code" db:"code"`
	Description string `json:"description" db:"description"`
}

// LabOrder is the order aggregate. Instances are created through NewLabOrder
// so that identity, initial status and timestamps are never observable in a
// half-initialized state. Status is mutated only via AdvanceStatus and Cancel.
type LabOrder struct {
	ID                  uuid.UUID       `json:"id" db:"id"`
	PatientID           string          `json:"patient_id" db:"patient_id"`
	FacilityID          string          `json:"facility_id" db:"facility_id"`
	OrderingPhysicianID string          `json:"ordering_physician_id" db:"ordering_physician_id"`
	Priority            Priority        `json:"priority" db:"priority"`
	Tests               []TestInfo      `json:"tests"`
	DiagnosisCodes      []DiagnosisCode `json:"diagnosis_codes"`
	Status              OrderStatus     `json:"status" db:"status"`
	OrderTimestamp      time.Time       `json:"order_timestamp" db:"order_timestamp"`
	CreatedAt           time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at" db:"updated_at"`
}

func NewLabOrder(patientID, facilityID, physicianID string, priority Priority, orderTS time.Time, tests []TestInfo, diagnosisCodes []DiagnosisCode) *LabOrder {
	now := time.Now().UTC()
	if orderTS.IsZero() {
		orderTS = now
	}
	return &LabOrder{
		ID:                  uuid.New(),
		PatientID:           patientID,
		FacilityID:          facilityID,
		OrderingPhysicianID: physicianID,
		Priority:            priority,
		Tests:               tests,
		DiagnosisCodes:      diagnosisCodes,
		Status:              OrderStatusReceived,
		OrderTimestamp:      orderTS,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// AcceptsResults reports whether results may still be submitted against the
// order. Cancellation is the only state that closes the order to submissions.
func (o *LabOrder) AcceptsResults() bool {
	return o.Status != OrderStatusCancelled
}

// NextStatus computes the status the order should hold given the number of
// distinct results recorded against it. It is side-effect free; changed is
// false when the order already holds the computed status.
func (o *LabOrder) NextStatus(resultCount int) (next OrderStatus, changed bool) {
	if o.Status == OrderStatusCancelled {
		return o.Status, false
	}
	totalTests := len(o.Tests)
	if totalTests > 0 && resultCount >= totalTests {
		return OrderStatusCompleted, o.Status != OrderStatusCompleted
	}
	if o.Status == OrderStatusReceived && resultCount > 0 {
		return OrderStatusInProgress, true
	}
	return o.Status, false
}

// AdvanceStatus applies NextStatus to the aggregate. The updated-at stamp
// moves only on an executed transition, so recomputation on an order that
// already holds its target status is idempotent.
func (o *LabOrder) AdvanceStatus(resultCount int) bool {
	next, changed := o.NextStatus(resultCount)
	if !changed {
		return false
	}
	o.Status = next
	o.UpdatedAt = time.Now().UTC()
	return true
}

// Cancel marks the order terminal. Cancelling a completed order is rejected;
// cancelling an already cancelled order is a no-op.
func (o *LabOrder) Cancel() (bool, error) {
	switch o.Status {
	case OrderStatusCancelled:
		return false, nil
	case OrderStatusCompleted:
		return false, ErrOrderCompleted
	}
	o.Status = OrderStatusCancelled
	o.UpdatedAt = time.Now().UTC()
	return true, nil
}

type TestInfoRequest struct {
	TestCode      string `json:"test_code" binding:"required"`
	TestName      string `json:"test_name"`
	SpecimenType  string `json:"specimen_type"`
	ClinicalNotes string `json:"clinical_notes"`
}

type DiagnosisCodeRequest struct {
	Code        string `json:"code" binding:"required"`
	Description string `json:"description"`
}

type CreateLabOrderRequest struct {
	PatientID           string                 `json:"patient_id" binding:"required"`
	FacilityID          string                 `json:"facility_id"`
	OrderingPhysicianID string                 `json:"ordering_physician_id" binding:"required"`
	Priority            string                 `json:"priority"`
	OrderTimestamp      *time.Time             `json:"order_timestamp"`
	Tests               []TestInfoRequest      `json:"tests" binding:"required,min=1,dive"`
	DiagnosisCodes      []DiagnosisCodeRequest `json:"diagnosis_codes" binding:"dive"`
}
