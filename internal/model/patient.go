package model

import (
	"time"
)

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

type Patient struct {
	Base
	MRN         string    `db:"mrn" json:"mrn"`
	FirstName   string    `db:"first_name" json:"first_name"`
	LastName    string    `db:"last_name" json:"last_name"`
	DateOfBirth time.Time `db:"date_of_birth" json:"date_of_birth"`
	Gender      string    `db:"gender" json:"gender"`
	Email       string    `db:"email" json:"email"`
	Phone       string    `db:"phone" json:"phone"`
	Address     string    `db:"address" json:"address"`
	Status      string    `db:"status" json:"status"`
}

type CreatePatientRequest struct {
	MRN         string    `json:"mrn" binding:"required"`
	FirstName   string    `json:"first_name" binding:"required"`
	LastName    string    `json:"last_name" binding:"required"`
	DateOfBirth time.Time `json:"date_of_birth" binding:"required"`
	Gender      string    `json:"gender"`
	Email       string    `json:"email" binding:"required,email"`
	Phone       string    `json:"phone"`
	Address     string    `json:"address"`
}

type UpdatePatientRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Phone     *string `json:"phone"`
	Address   *string `json:"address"`
	Status    *string `json:"status"`
}

type PatientFilters struct {
	SearchTerm string `form:"search"`
	Status     string `form:"status"`
	Pagination
}

// OrderLabTestRequest is the payload for ordering a lab test against a
// patient. It results in a lab.test.ordered.v1 event, not a local order.
type OrderLabTestRequest struct {
	TestCode string `json:"test_code" binding:"required"`
	Priority string `json:"priority"`
	DoctorID string `json:"doctor_id" binding:"required"`
	Notes    string `json:"notes"`
}
