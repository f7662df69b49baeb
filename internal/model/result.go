package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// AbnormalFlag carries the HL7-style interpretation of a result value.
type AbnormalFlag string

const (
	FlagNormal         AbnormalFlag = "NORMAL"
	FlagLow            AbnormalFlag = "LOW"
	FlagHigh           AbnormalFlag = "HIGH"
	FlagCriticallyLow  AbnormalFlag = "CRITICALLY_LOW"
	FlagCriticallyHigh AbnormalFlag = "CRITICALLY_HIGH"
	FlagAbnormal       AbnormalFlag = "ABNORMAL"
)

func ParseAbnormalFlag(s string) (AbnormalFlag, bool) {
	f := AbnormalFlag(strings.ToUpper(strings.TrimSpace(s)))
	switch f {
	case FlagNormal, FlagLow, FlagHigh, FlagCriticallyLow, FlagCriticallyHigh, FlagAbnormal:
		return f, true
	}
	return "", false
}

type ResultStatus string

const (
	ResultStatusPreliminary ResultStatus = "PRELIMINARY"
	ResultStatusFinal       ResultStatus = "FINAL"
	ResultStatusCorrected   ResultStatus = "CORRECTED"
	ResultStatusAmended     ResultStatus = "AMENDED"
)

// LabResult is one test's outcome within an order.
type LabResult struct {
	ID             uuid.UUID    `json:"id" db:"id"`
	OrderID        uuid.UUID    `json:"order_id" db:"order_id"`
	TestCode       string       `json:"test_code" db:"test_code"`
	TestName       string       `json:"test_name" db:"test_name"`
	LoincCode      string       `json:"loinc_code,omitempty" db:"loinc_code"`
	ResultValue    string       `json:"result_value" db:"result_value"`
	ResultUnit     string       `json:"result_unit" db:"result_unit"`
	ReferenceRange string       `json:"reference_range" db:"reference_range"`
	AbnormalFlag   AbnormalFlag `json:"abnormal_flag" db:"abnormal_flag"`
	PerformedBy    string       `json:"performed_by" db:"performed_by"`
	PerformedAt    time.Time    `json:"performed_at" db:"performed_at"`
	VerifiedBy     *string      `json:"verified_by,omitempty" db:"verified_by"`
	VerifiedAt     *time.Time   `json:"verified_at,omitempty" db:"verified_at"`
	Status         ResultStatus `json:"status" db:"status"`
	Notes          string       `json:"notes,omitempty" db:"notes"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" db:"updated_at"`
}

// ResultSpec carries the caller-supplied fields of a result submission.
type ResultSpec struct {
	TestCode       string
	TestName       string
	LoincCode      string
	ResultValue    string
	ResultUnit     string
	ReferenceRange string
	AbnormalFlag   AbnormalFlag
	PerformedBy    string
	PerformedAt    *time.Time
	Notes          string
}

// NewLabResult builds a fully initialized result: identity, PRELIMINARY
// status and timestamps are stamped here so no partially built result is
// ever handed out. A missing performed-at defaults to now.
func NewLabResult(orderID uuid.UUID, spec ResultSpec) *LabResult {
	now := time.Now().UTC()
	performedAt := now
	if spec.PerformedAt != nil {
		performedAt = *spec.PerformedAt
	}
	return &LabResult{
		ID:             uuid.New(),
		OrderID:        orderID,
		TestCode:       spec.TestCode,
		TestName:       spec.TestName,
		LoincCode:      spec.LoincCode,
		ResultValue:    spec.ResultValue,
		ResultUnit:     spec.ResultUnit,
		ReferenceRange: spec.ReferenceRange,
		AbnormalFlag:   spec.AbnormalFlag,
		PerformedBy:    spec.PerformedBy,
		PerformedAt:    performedAt,
		Status:         ResultStatusPreliminary,
		Notes:          spec.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Critical reports whether the result demands expedited notification.
func (r *LabResult) Critical() bool {
	return r.AbnormalFlag == FlagCriticallyLow || r.AbnormalFlag == FlagCriticallyHigh
}

// Verify finalizes a preliminary result, stamping the verifier and time.
func (r *LabResult) Verify(verifier string) error {
	if r.Status != ResultStatusPreliminary {
		return ErrResultVerified
	}
	now := time.Now().UTC()
	r.VerifiedBy = &verifier
	r.VerifiedAt = &now
	r.Status = ResultStatusFinal
	r.UpdatedAt = now
	return nil
}

type SubmitResultRequest struct {
	OrderID        string     `json:"order_id" binding:"required,uuid"`
	TestCode       string     `json:"test_code" binding:"required"`
	TestName       string     `json:"test_name"`
	LoincCode      string     `json:"loinc_code"`
	ResultValue    string     `json:"result_value" binding:"required"`
	ResultUnit     string     `json:"result_unit"`
	ReferenceRange string     `json:"reference_range"`
	AbnormalFlag   string     `json:"abnormal_flag" binding:"required,abnormal_flag"`
	PerformedBy    string     `json:"performed_by" binding:"required"`
	PerformedAt    *time.Time `json:"performed_at"`
	Notes          string     `json:"notes"`
}

type VerifyResultRequest struct {
	VerifiedBy string `json:"verified_by" binding:"required"`
}
