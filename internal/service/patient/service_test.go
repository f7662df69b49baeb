package patient

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/pkg/errors"
	pkgevent "github.com/meditrack/meditrack-api/pkg/event"
)

type fakePatientRepo struct {
	patients map[uuid.UUID]*model.Patient
}

func newFakePatientRepo() *fakePatientRepo {
	return &fakePatientRepo{patients: make(map[uuid.UUID]*model.Patient)}
}

func (r *fakePatientRepo) Create(ctx context.Context, p *model.Patient) error {
	r.patients[p.ID] = p
	return nil
}

func (r *fakePatientRepo) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	p, ok := r.patients[id]
	if !ok {
		return nil, fmt.Errorf("patient %s: %w", id, sql.ErrNoRows)
	}
	return p, nil
}

func (r *fakePatientRepo) Update(ctx context.Context, p *model.Patient) error {
	r.patients[p.ID] = p
	return nil
}

func (r *fakePatientRepo) Delete(ctx context.Context, id uuid.UUID) error {
	delete(r.patients, id)
	return nil
}

func (r *fakePatientRepo) List(ctx context.Context, filters *model.PatientFilters) ([]*model.Patient, error) {
	var out []*model.Patient
	for _, p := range r.patients {
		if filters.Status != "" && p.Status != filters.Status {
			continue
		}
		if filters.SearchTerm != "" && !strings.Contains(strings.ToLower(p.LastName), strings.ToLower(filters.SearchTerm)) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

type fakeRecordRepo struct {
	records map[uuid.UUID]*model.MedicalRecord
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[uuid.UUID]*model.MedicalRecord)}
}

func (r *fakeRecordRepo) Create(ctx context.Context, rec *model.MedicalRecord) error {
	r.records[rec.ID] = rec
	return nil
}

func (r *fakeRecordRepo) Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, fmt.Errorf("medical record %s: %w", id, sql.ErrNoRows)
	}
	return rec, nil
}

func (r *fakeRecordRepo) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error) {
	var out []*model.MedicalRecord
	for _, rec := range r.records {
		if rec.PatientID == patientID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type emitted struct {
	topic     string
	key       string
	eventType string
	payload   interface{}
}

type fakeEvents struct {
	events []emitted
	fail   error
}

func (f *fakeEvents) Emit(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, emitted{topic, key, eventType, payload})
	return nil
}

func (f *fakeEvents) EmitTx(ctx context.Context, tx *sqlx.Tx, topic, key, eventType string, payload interface{}) error {
	return f.Emit(ctx, topic, key, eventType, payload)
}

func createPatientReq() *model.CreatePatientRequest {
	return &model.CreatePatientRequest{
		MRN:         "MRN-001",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		DateOfBirth: time.Date(1990, 12, 10, 0, 0, 0, 0, time.UTC),
		Email:       "ada@example.org",
	}
}

func TestCreatePatient(t *testing.T) {
	repo := newFakePatientRepo()
	svc := NewService(repo, newFakeRecordRepo(), &fakeEvents{}, "order-requests")

	p, err := svc.CreatePatient(context.Background(), createPatientReq())
	require.NoError(t, err)

	assert.Equal(t, "MRN-001", p.MRN)
	assert.Equal(t, string(model.PatientStatusActive), p.Status)
	assert.Contains(t, repo.patients, p.ID)
}

func TestGetPatientNotFound(t *testing.T) {
	svc := NewService(newFakePatientRepo(), newFakeRecordRepo(), &fakeEvents{}, "order-requests")

	_, err := svc.GetPatient(context.Background(), uuid.New())

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)
}

func TestUpdatePatientPartial(t *testing.T) {
	repo := newFakePatientRepo()
	svc := NewService(repo, newFakeRecordRepo(), &fakeEvents{}, "order-requests")
	p, err := svc.CreatePatient(context.Background(), createPatientReq())
	require.NoError(t, err)

	phone := "+1-555-0100"
	updated, err := svc.UpdatePatient(context.Background(), p.ID, &model.UpdatePatientRequest{Phone: &phone})
	require.NoError(t, err)

	assert.Equal(t, phone, updated.Phone)
	assert.Equal(t, "Ada", updated.FirstName, "unset fields are left alone")
}

func TestAddAndListMedicalRecords(t *testing.T) {
	repo := newFakePatientRepo()
	records := newFakeRecordRepo()
	svc := NewService(repo, records, &fakeEvents{}, "order-requests")
	p, err := svc.CreatePatient(context.Background(), createPatientReq())
	require.NoError(t, err)

	rec, err := svc.AddMedicalRecord(context.Background(), p.ID, &model.CreateMedicalRecordRequest{
		RecordType: "CONSULT",
		Diagnosis:  "hypertension",
	})
	require.NoError(t, err)
	assert.Equal(t, p.ID, rec.PatientID)
	assert.False(t, rec.RecordDate.IsZero())

	listed, err := svc.ListMedicalRecords(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestGetPatientTimeline(t *testing.T) {
	repo := newFakePatientRepo()
	records := newFakeRecordRepo()
	svc := NewService(repo, records, &fakeEvents{}, "order-requests")
	p, err := svc.CreatePatient(context.Background(), createPatientReq())
	require.NoError(t, err)

	// Inserted out of order on purpose.
	dates := []time.Time{
		time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC),
	}
	for i, d := range dates {
		date := d
		_, err := svc.AddMedicalRecord(context.Background(), p.ID, &model.CreateMedicalRecordRequest{
			RecordType: "CONSULT",
			Diagnosis:  fmt.Sprintf("visit %d", i),
			RecordDate: &date,
		})
		require.NoError(t, err)
	}

	timeline, err := svc.GetPatientTimeline(context.Background(), p.ID)
	require.NoError(t, err)

	assert.Equal(t, p.ID.String(), timeline.PatientID)
	require.Len(t, timeline.Timeline, 3)
	for i := 1; i < len(timeline.Timeline); i++ {
		assert.False(t, timeline.Timeline[i].RecordDate.Before(timeline.Timeline[i-1].RecordDate),
			"timeline must be oldest first")
	}
}

func TestGetPatientTimelineUnknownPatient(t *testing.T) {
	svc := NewService(newFakePatientRepo(), newFakeRecordRepo(), &fakeEvents{}, "order-requests")

	_, err := svc.GetPatientTimeline(context.Background(), uuid.New())

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)
}

func TestAddMedicalRecordUnknownPatient(t *testing.T) {
	svc := NewService(newFakePatientRepo(), newFakeRecordRepo(), &fakeEvents{}, "order-requests")

	_, err := svc.AddMedicalRecord(context.Background(), uuid.New(), &model.CreateMedicalRecordRequest{
		RecordType: "CONSULT",
		Diagnosis:  "hypertension",
	})

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)
}

func TestOrderLabTest(t *testing.T) {
	repo := newFakePatientRepo()
	events := &fakeEvents{}
	svc := NewService(repo, newFakeRecordRepo(), events, "order-requests")
	p, err := svc.CreatePatient(context.Background(), createPatientReq())
	require.NoError(t, err)

	orderID, err := svc.OrderLabTest(context.Background(), p.ID, &model.OrderLabTestRequest{
		TestCode: "CBC",
		Priority: "stat",
		DoctorID: "dr-1",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, orderID)

	require.Len(t, events.events, 1)
	e := events.events[0]
	assert.Equal(t, "order-requests", e.topic)
	assert.Equal(t, orderID.String(), e.key, "order request events are keyed by order id")
	assert.Equal(t, pkgevent.TypeLabTestOrdered, e.eventType)

	evt := e.payload.(pkgevent.LabTestOrdered)
	assert.Equal(t, orderID, evt.Order.OrderID)
	assert.Equal(t, p.ID.String(), evt.Order.PatientID)
	require.NotNil(t, evt.PatientSnapshot)
	assert.Equal(t, "MRN-001", evt.PatientSnapshot.MRN)
	assert.Equal(t, "1990-12-10", evt.PatientSnapshot.DateOfBirth)
}

func TestOrderLabTestEmitFailure(t *testing.T) {
	repo := newFakePatientRepo()
	events := &fakeEvents{fail: fmt.Errorf("outbox down")}
	svc := NewService(repo, newFakeRecordRepo(), events, "order-requests")
	p, err := svc.CreatePatient(context.Background(), createPatientReq())
	require.NoError(t, err)

	_, err = svc.OrderLabTest(context.Background(), p.ID, &model.OrderLabTestRequest{
		TestCode: "CBC",
		DoctorID: "dr-1",
	})

	// Unlike result events, the order request IS the outcome here, so a
	// failed enqueue fails the call.
	assert.Error(t, err)
}
