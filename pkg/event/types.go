package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack-api/internal/model"
)

// Event types carried on the bus. Versioned so consumers can evolve
// independently of producers.
const (
	TypeLabTestOrdered   = "lab.test.ordered.v1"
	TypeLabOrderCreated  = "lab.order.created.v1"
	TypeResultsAvailable = "lab.results.available.v1"
	TypeCriticalResult   = "lab.critical.result.v1"
)

const (
	SourceLabService     = "lab-service"
	SourcePatientService = "patient-service"
)

// Envelope is the common header on every published event.
type Envelope struct {
	EventID   uuid.UUID `json:"eventId"`
	EventType string    `json:"eventType"`
	Timestamp int64     `json:"timestamp"`
	Source    string    `json:"source"`
}

func NewEnvelope(eventType, source string) Envelope {
	return Envelope{
		EventID:   uuid.New(),
		EventType: eventType,
		Timestamp: time.Now().UnixMilli(),
		Source:    source,
	}
}

// LabTestOrdered is published by the patient service when a physician orders
// a test, and consumed by the lab service to create a local order.
type LabTestOrdered struct {
	Envelope
	Order           OrderedTest      `json:"order"`
	PatientSnapshot *PatientSnapshot `json:"patientSnapshot,omitempty"`
}

type OrderedTest struct {
	OrderID   uuid.UUID `json:"orderId"`
	PatientID string    `json:"patientId"`
	DoctorID  string    `json:"doctorId"`
	TestCode  string    `json:"testCode"`
	Priority  string    `json:"priority"`
	Notes     string    `json:"notes,omitempty"`
}

type PatientSnapshot struct {
	MRN         string `json:"mrn"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	DateOfBirth string `json:"dateOfBirth"`
}

// LabOrderCreated is published once per order created in the lab service.
type LabOrderCreated struct {
	OrderID   uuid.UUID `json:"orderId"`
	PatientID string    `json:"patientId"`
	EventType string    `json:"eventType"`
}

// LabResults carries both results-available and critical-result payloads;
// the two differ only in event type and in how many results the list holds.
type LabResults struct {
	Envelope
	Order              OrderInfo    `json:"order"`
	Results            []ResultInfo `json:"results"`
	HasCriticalResults bool         `json:"hasCriticalResults"`
}

type OrderInfo struct {
	OrderID             uuid.UUID `json:"orderId"`
	PatientID           string    `json:"patientId"`
	OrderingPhysicianID string    `json:"orderingPhysicianId"`
	FacilityID          string    `json:"facilityId"`
	OrderTimestamp      time.Time `json:"orderTimestamp"`
}

type ResultInfo struct {
	ResultID       uuid.UUID          `json:"resultId"`
	TestCode       string             `json:"testCode"`
	TestName       string             `json:"testName"`
	LoincCode      string             `json:"loincCode,omitempty"`
	ResultValue    string             `json:"resultValue"`
	ResultUnit     string             `json:"resultUnit"`
	ReferenceRange string             `json:"referenceRange"`
	AbnormalFlag   model.AbnormalFlag `json:"abnormalFlag"`
	Status         model.ResultStatus `json:"status"`
	PerformedAt    time.Time          `json:"performedAt"`
	VerifiedAt     *time.Time         `json:"verifiedAt,omitempty"`
	Critical       bool               `json:"critical"`
}

func NewOrderInfo(order *model.LabOrder) OrderInfo {
	return OrderInfo{
		OrderID:             order.ID,
		PatientID:           order.PatientID,
		OrderingPhysicianID: order.OrderingPhysicianID,
		FacilityID:          order.FacilityID,
		OrderTimestamp:      order.OrderTimestamp,
	}
}

func NewResultInfo(r *model.LabResult) ResultInfo {
	return ResultInfo{
		ResultID:       r.ID,
		TestCode:       r.TestCode,
		TestName:       r.TestName,
		LoincCode:      r.LoincCode,
		ResultValue:    r.ResultValue,
		ResultUnit:     r.ResultUnit,
		ReferenceRange: r.ReferenceRange,
		AbnormalFlag:   r.AbnormalFlag,
		Status:         r.Status,
		PerformedAt:    r.PerformedAt,
		VerifiedAt:     r.VerifiedAt,
		Critical:       r.Critical(),
	}
}

func NewResultInfoList(results []*model.LabResult) []ResultInfo {
	infos := make([]ResultInfo, 0, len(results))
	for _, r := range results {
		infos = append(infos, NewResultInfo(r))
	}
	return infos
}
