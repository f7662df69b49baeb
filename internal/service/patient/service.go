package patient

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/repository"
	"github.com/meditrack/meditrack-api/internal/service/event"
	"github.com/meditrack/meditrack-api/pkg/errors"
	pkgevent "github.com/meditrack/meditrack-api/pkg/event"
)

type PatientService interface {
	CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error)
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	UpdatePatient(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error)
	DeletePatient(ctx context.Context, id uuid.UUID) error
	ListPatients(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error)
	AddMedicalRecord(ctx context.Context, patientID uuid.UUID, req *model.CreateMedicalRecordRequest) (*model.MedicalRecord, error)
	GetMedicalRecord(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error)
	ListMedicalRecords(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error)
	GetPatientTimeline(ctx context.Context, patientID uuid.UUID) (*model.PatientTimeline, error)
	OrderLabTest(ctx context.Context, patientID uuid.UUID, req *model.OrderLabTestRequest) (uuid.UUID, error)
}

type Service struct {
	repo               repository.PatientRepository
	records            repository.MedicalRecordRepository
	events             event.Publisher
	orderRequestsTopic string
}

func NewService(repo repository.PatientRepository, records repository.MedicalRecordRepository, events event.Publisher, orderRequestsTopic string) *Service {
	return &Service{
		repo:               repo,
		records:            records,
		events:             events,
		orderRequestsTopic: orderRequestsTopic,
	}
}

func (s *Service) CreatePatient(ctx context.Context, req *model.CreatePatientRequest) (*model.Patient, error) {
	now := time.Now().UTC()
	patient := &model.Patient{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		MRN:         req.MRN,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Gender:      req.Gender,
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
		Status:      string(model.PatientStatusActive),
	}

	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}
	return patient, nil
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	patient, err := s.repo.Get(ctx, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("patient", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return patient, nil
}

func (s *Service) UpdatePatient(ctx context.Context, id uuid.UUID, req *model.UpdatePatientRequest) (*model.Patient, error) {
	patient, err := s.GetPatient(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		patient.FirstName = *req.FirstName
	}
	if req.LastName != nil {
		patient.LastName = *req.LastName
	}
	if req.Email != nil {
		patient.Email = *req.Email
	}
	if req.Phone != nil {
		patient.Phone = *req.Phone
	}
	if req.Address != nil {
		patient.Address = *req.Address
	}
	if req.Status != nil {
		patient.Status = *req.Status
	}
	patient.UpdatedAt = time.Now().UTC()

	if err := s.repo.Update(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to update patient: %w", err)
	}
	return patient, nil
}

func (s *Service) DeletePatient(ctx context.Context, id uuid.UUID) error {
	if _, err := s.GetPatient(ctx, id); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete patient: %w", err)
	}
	return nil
}

func (s *Service) ListPatients(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	patients, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}
	return patients, nil
}

func (s *Service) AddMedicalRecord(ctx context.Context, patientID uuid.UUID, req *model.CreateMedicalRecordRequest) (*model.MedicalRecord, error) {
	if _, err := s.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	recordDate := now
	if req.RecordDate != nil {
		recordDate = *req.RecordDate
	}

	record := &model.MedicalRecord{
		Base: model.Base{
			ID:        uuid.New(),
			CreatedAt: now,
			UpdatedAt: now,
		},
		PatientID:  patientID,
		RecordType: req.RecordType,
		Diagnosis:  req.Diagnosis,
		Treatment:  req.Treatment,
		RecordDate: recordDate,
		CreatedBy:  req.CreatedBy,
	}

	if err := s.records.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create medical record: %w", err)
	}
	return record, nil
}

func (s *Service) GetMedicalRecord(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	record, err := s.records.Get(ctx, id)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NotFound("medical record", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get medical record: %w", err)
	}
	return record, nil
}

func (s *Service) ListMedicalRecords(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error) {
	if _, err := s.GetPatient(ctx, patientID); err != nil {
		return nil, err
	}
	records, err := s.records.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list medical records: %w", err)
	}
	return records, nil
}

// GetPatientTimeline assembles the patient's medical history in
// chronological order.
func (s *Service) GetPatientTimeline(ctx context.Context, patientID uuid.UUID) (*model.PatientTimeline, error) {
	records, err := s.ListMedicalRecords(ctx, patientID)
	if err != nil {
		return nil, err
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].RecordDate.Before(records[j].RecordDate)
	})

	return &model.PatientTimeline{
		PatientID: patientID.String(),
		Timeline:  records,
	}, nil
}

// OrderLabTest snapshots the patient and publishes a lab.test.ordered.v1
// event keyed by the generated order id. The lab service owns the order
// from there; no local order state is kept.
func (s *Service) OrderLabTest(ctx context.Context, patientID uuid.UUID, req *model.OrderLabTestRequest) (uuid.UUID, error) {
	patient, err := s.GetPatient(ctx, patientID)
	if err != nil {
		return uuid.Nil, err
	}

	orderID := uuid.New()
	evt := pkgevent.LabTestOrdered{
		Envelope: pkgevent.NewEnvelope(pkgevent.TypeLabTestOrdered, pkgevent.SourcePatientService),
		Order: pkgevent.OrderedTest{
			OrderID:   orderID,
			PatientID: patient.ID.String(),
			DoctorID:  req.DoctorID,
			TestCode:  req.TestCode,
			Priority:  req.Priority,
			Notes:     req.Notes,
		},
		PatientSnapshot: &pkgevent.PatientSnapshot{
			MRN:         patient.MRN,
			FirstName:   patient.FirstName,
			LastName:    patient.LastName,
			DateOfBirth: patient.DateOfBirth.Format("2006-01-02"),
		},
	}

	if err := s.events.Emit(ctx, s.orderRequestsTopic, orderID.String(), pkgevent.TypeLabTestOrdered, evt); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue lab test ordered event: %w", err)
	}
	return orderID, nil
}
