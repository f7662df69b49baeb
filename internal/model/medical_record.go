package model

import (
	"time"

	"github.com/google/uuid"
)

type MedicalRecord struct {
	Base
	PatientID  uuid.UUID `db:"patient_id" json:"patient_id"`
	RecordType string    `db:"record_type" json:"record_type"`
	Diagnosis  string    `db:"diagnosis" json:"diagnosis"`
	Treatment  string    `db:"treatment" json:"treatment"`
	RecordDate time.Time `db:"record_date" json:"record_date"`
	CreatedBy  string    `db:"created_by" json:"created_by"`
}

// PatientTimeline is a patient's medical records ordered oldest first.
type PatientTimeline struct {
	PatientID string           `json:"patient_id"`
	Timeline  []*MedicalRecord `json:"timeline"`
}

type CreateMedicalRecordRequest struct {
	RecordType string     `json:"record_type" binding:"required"`
	Diagnosis  string     `json:"diagnosis" binding:"required"`
	Treatment  string     `json:"treatment"`
	RecordDate *time.Time `json:"record_date"`
	CreatedBy  string     `json:"created_by"`
}
