package order

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/repository"
	"github.com/meditrack/meditrack-api/pkg/errors"
	pkgevent "github.com/meditrack/meditrack-api/pkg/event"
)

type fakeOrderRepo struct {
	orders map[uuid.UUID]*model.LabOrder
}

func newFakeOrderRepo() *fakeOrderRepo {
	return &fakeOrderRepo{orders: make(map[uuid.UUID]*model.LabOrder)}
}

func (r *fakeOrderRepo) Create(ctx context.Context, order *model.LabOrder) error {
	if _, ok := r.orders[order.ID]; ok {
		return fmt.Errorf("insert lab_orders: %w", repository.ErrDuplicateKey)
	}
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) Get(ctx context.Context, id uuid.UUID) (*model.LabOrder, error) {
	o, ok := r.orders[id]
	if !ok {
		return nil, model.ErrOrderNotFound
	}
	return o, nil
}

func (r *fakeOrderRepo) GetForUpdateTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*model.LabOrder, error) {
	return r.Get(ctx, id)
}

func (r *fakeOrderRepo) UpdateStatus(ctx context.Context, order *model.LabOrder) error {
	r.orders[order.ID] = order
	return nil
}

func (r *fakeOrderRepo) UpdateStatusTx(ctx context.Context, tx *sqlx.Tx, order *model.LabOrder) error {
	return r.UpdateStatus(ctx, order)
}

type emitted struct {
	topic     string
	key       string
	eventType string
}

type fakeEvents struct {
	events []emitted
	fail   error
}

func (f *fakeEvents) Emit(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	if f.fail != nil {
		return f.fail
	}
	f.events = append(f.events, emitted{topic, key, eventType})
	return nil
}

func (f *fakeEvents) EmitTx(ctx context.Context, tx *sqlx.Tx, topic, key, eventType string, payload interface{}) error {
	return f.Emit(ctx, topic, key, eventType, payload)
}

func createReq(priority string) *model.CreateLabOrderRequest {
	return &model.CreateLabOrderRequest{
		PatientID:           "patient-1",
		OrderingPhysicianID: "dr-1",
		Priority:            priority,
		Tests:               []model.TestInfoRequest{{TestCode: "CBC"}, {TestCode: "BMP"}},
	}
}

func TestCreateOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	events := &fakeEvents{}
	svc := NewService(repo, events, "order-created")

	order, err := svc.CreateOrder(context.Background(), createReq("STAT"))
	require.NoError(t, err)

	assert.Equal(t, model.OrderStatusReceived, order.Status)
	assert.Equal(t, model.PriorityStat, order.Priority)
	assert.Len(t, order.Tests, 2)

	require.Len(t, events.events, 1)
	assert.Equal(t, pkgevent.TypeLabOrderCreated, events.events[0].eventType)
	assert.Equal(t, "order-created", events.events[0].topic)
	assert.Equal(t, order.ID.String(), events.events[0].key, "order events are keyed by order id")
}

func TestCreateOrderUnknownPriority(t *testing.T) {
	svc := NewService(newFakeOrderRepo(), &fakeEvents{}, "order-created")

	order, err := svc.CreateOrder(context.Background(), createReq("urgentish"))
	require.NoError(t, err)

	assert.Equal(t, model.PriorityRoutine, order.Priority)
}

func TestCreateOrderEmitFailureDoesNotFail(t *testing.T) {
	repo := newFakeOrderRepo()
	events := &fakeEvents{fail: stderrors.New("outbox down")}
	svc := NewService(repo, events, "order-created")

	order, err := svc.CreateOrder(context.Background(), createReq(""))
	require.NoError(t, err)

	_, stored := repo.orders[order.ID]
	assert.True(t, stored, "publication failure must not roll back the order")
}

func TestCreateOrderFromEvent(t *testing.T) {
	repo := newFakeOrderRepo()
	events := &fakeEvents{}
	svc := NewService(repo, events, "order-created")

	wantID := uuid.New()
	evt := &pkgevent.LabTestOrdered{
		Envelope: pkgevent.NewEnvelope(pkgevent.TypeLabTestOrdered, pkgevent.SourcePatientService),
		Order: pkgevent.OrderedTest{
			OrderID:   wantID,
			PatientID: "patient-9",
			DoctorID:  "dr-9",
			TestCode:  "TSH",
			Priority:  "stat",
			Notes:     "fasting",
		},
	}

	order, err := svc.CreateOrderFromEvent(context.Background(), evt)
	require.NoError(t, err)

	assert.Equal(t, wantID, order.ID, "the order keeps the id minted by the originating service")
	assert.Equal(t, "patient-9", order.PatientID)
	assert.Equal(t, model.PriorityStat, order.Priority)
	assert.Equal(t, pkgevent.SourcePatientService, order.FacilityID)
	require.Len(t, order.Tests, 1)
	assert.Equal(t, "TSH", order.Tests[0].TestCode)
	assert.Equal(t, "fasting", order.Tests[0].ClinicalNotes)
	assert.Len(t, events.events, 1)
}

func TestCreateOrderFromEventRedeliveryConverges(t *testing.T) {
	repo := newFakeOrderRepo()
	events := &fakeEvents{}
	svc := NewService(repo, events, "order-created")

	wantID := uuid.New()
	evt := &pkgevent.LabTestOrdered{
		Envelope: pkgevent.NewEnvelope(pkgevent.TypeLabTestOrdered, pkgevent.SourcePatientService),
		Order: pkgevent.OrderedTest{
			OrderID:   wantID,
			PatientID: "patient-9",
			DoctorID:  "dr-9",
			TestCode:  "TSH",
		},
	}

	first, err := svc.CreateOrderFromEvent(context.Background(), evt)
	require.NoError(t, err)

	// A second delivery of the same event hits the duplicate key but must
	// still succeed with the order that already landed.
	second, err := svc.CreateOrderFromEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, events.events, 1, "only the first create announces the order")
}

func TestCreateOrderFromEventUnknownPriority(t *testing.T) {
	svc := NewService(newFakeOrderRepo(), &fakeEvents{}, "order-created")

	evt := &pkgevent.LabTestOrdered{
		Order: pkgevent.OrderedTest{PatientID: "patient-9", TestCode: "TSH", Priority: "urgentish"},
	}

	order, err := svc.CreateOrderFromEvent(context.Background(), evt)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityRoutine, order.Priority)
}

func TestGetOrderNotFound(t *testing.T) {
	svc := NewService(newFakeOrderRepo(), &fakeEvents{}, "order-created")

	_, err := svc.GetOrder(context.Background(), uuid.New())

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrNotFound, appErr.Code)
}

func TestCancelOrder(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, &fakeEvents{}, "order-created")

	order, err := svc.CreateOrder(context.Background(), createReq(""))
	require.NoError(t, err)

	cancelled, err := svc.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)

	// Second cancel is an accepted no-op.
	again, err := svc.CancelOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, again.Status)
}

func TestCancelCompletedOrderConflict(t *testing.T) {
	repo := newFakeOrderRepo()
	svc := NewService(repo, &fakeEvents{}, "order-created")

	order, err := svc.CreateOrder(context.Background(), createReq(""))
	require.NoError(t, err)
	order.AdvanceStatus(len(order.Tests))
	require.Equal(t, model.OrderStatusCompleted, order.Status)

	_, err = svc.CancelOrder(context.Background(), order.ID)

	appErr, ok := errors.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrConflict, appErr.Code)
}
