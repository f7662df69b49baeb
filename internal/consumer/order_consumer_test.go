package consumer

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/pkg/event"
	"github.com/meditrack/meditrack-api/pkg/messaging"
)

type fakeOrderService struct {
	created []*event.LabTestOrdered
	fail    error
}

func (f *fakeOrderService) CreateOrder(ctx context.Context, req *model.CreateLabOrderRequest) (*model.LabOrder, error) {
	panic("not used")
}

// CreateOrderFromEvent mirrors the real service: a redelivered event for an
// order that already landed returns the existing order instead of failing.
func (f *fakeOrderService) CreateOrderFromEvent(ctx context.Context, evt *event.LabTestOrdered) (*model.LabOrder, error) {
	if f.fail != nil {
		return nil, f.fail
	}
	f.created = append(f.created, evt)
	order := model.NewLabOrder(evt.Order.PatientID, evt.Source, evt.Order.DoctorID, model.PriorityRoutine, time.Time{}, []model.TestInfo{{TestCode: evt.Order.TestCode}}, nil)
	order.ID = evt.Order.OrderID
	return order, nil
}

func (f *fakeOrderService) GetOrder(ctx context.Context, id uuid.UUID) (*model.LabOrder, error) {
	panic("not used")
}

func (f *fakeOrderService) CancelOrder(ctx context.Context, id uuid.UUID) (*model.LabOrder, error) {
	panic("not used")
}

type fakeProcessedRepo struct {
	seen       map[uuid.UUID]bool
	failOn     error
	failCreate error
	created    int
}

func newFakeProcessedRepo() *fakeProcessedRepo {
	return &fakeProcessedRepo{seen: make(map[uuid.UUID]bool)}
}

func (r *fakeProcessedRepo) Exists(ctx context.Context, eventID uuid.UUID) (bool, error) {
	if r.failOn != nil {
		return false, r.failOn
	}
	return r.seen[eventID], nil
}

func (r *fakeProcessedRepo) Create(ctx context.Context, evt *model.ProcessedEvent) error {
	if r.failCreate != nil {
		err := r.failCreate
		r.failCreate = nil
		return err
	}
	r.seen[evt.EventID] = true
	r.created++
	return nil
}

func newTestConsumer(orders *fakeOrderService, processed *fakeProcessedRepo) *OrderConsumer {
	logger := zerolog.Nop()
	return NewOrderConsumer(orders, processed, nil, &logger, "order-requests")
}

func orderedMessage(t *testing.T) (messaging.Message, event.LabTestOrdered) {
	t.Helper()
	evt := event.LabTestOrdered{
		Envelope: event.NewEnvelope(event.TypeLabTestOrdered, event.SourcePatientService),
		Order: event.OrderedTest{
			OrderID:   uuid.New(),
			PatientID: "patient-1",
			DoctorID:  "dr-1",
			TestCode:  "CBC",
			Priority:  "routine",
		},
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)
	return messaging.Message{Topic: "order-requests", Key: []byte(evt.Order.OrderID.String()), Value: payload}, evt
}

func TestHandleCreatesOrder(t *testing.T) {
	orders := &fakeOrderService{}
	processed := newFakeProcessedRepo()
	c := newTestConsumer(orders, processed)
	msg, evt := orderedMessage(t)

	err := c.Handle(context.Background(), msg)

	require.NoError(t, err)
	require.Len(t, orders.created, 1)
	assert.Equal(t, evt.Order.OrderID, orders.created[0].Order.OrderID)
	assert.Equal(t, 1, processed.created, "processed events are recorded for dedup")
}

func TestHandleDuplicateDelivery(t *testing.T) {
	orders := &fakeOrderService{}
	processed := newFakeProcessedRepo()
	c := newTestConsumer(orders, processed)
	msg, _ := orderedMessage(t)

	require.NoError(t, c.Handle(context.Background(), msg))
	require.NoError(t, c.Handle(context.Background(), msg))

	assert.Len(t, orders.created, 1, "redelivery must not create a second order")
}

func TestHandleDuplicateKnownOnlyToLedger(t *testing.T) {
	// Another replica processed the event: the in-memory front is cold but
	// the table knows it.
	orders := &fakeOrderService{}
	processed := newFakeProcessedRepo()
	c := newTestConsumer(orders, processed)
	msg, evt := orderedMessage(t)
	processed.seen[evt.EventID] = true

	require.NoError(t, c.Handle(context.Background(), msg))

	assert.Empty(t, orders.created)
}

func TestHandleMalformedPayload(t *testing.T) {
	c := newTestConsumer(&fakeOrderService{}, newFakeProcessedRepo())

	err := c.Handle(context.Background(), messaging.Message{Topic: "order-requests", Value: []byte("{not json")})

	assert.Error(t, err, "malformed payloads stay uncommitted for redelivery")
}

func TestHandleMissingIdentifiers(t *testing.T) {
	c := newTestConsumer(&fakeOrderService{}, newFakeProcessedRepo())
	evt := event.LabTestOrdered{
		Envelope: event.NewEnvelope(event.TypeLabTestOrdered, event.SourcePatientService),
	}
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	err = c.Handle(context.Background(), messaging.Message{Topic: "order-requests", Value: payload})

	assert.Error(t, err)
}

func TestHandleUnknownEventType(t *testing.T) {
	orders := &fakeOrderService{}
	c := newTestConsumer(orders, newFakeProcessedRepo())
	evt := event.NewEnvelope("lab.specimen.collected.v1", event.SourcePatientService)
	payload, err := json.Marshal(evt)
	require.NoError(t, err)

	err = c.Handle(context.Background(), messaging.Message{Topic: "order-requests", Value: payload})

	assert.NoError(t, err, "unrecognized types are acknowledged as no-ops")
	assert.Empty(t, orders.created)
}

func TestHandleLedgerFailureThenRedelivery(t *testing.T) {
	orders := &fakeOrderService{}
	processed := newFakeProcessedRepo()
	processed.failCreate = stderrors.New("deadlock detected")
	c := newTestConsumer(orders, processed)
	msg, _ := orderedMessage(t)

	// The ledger write fails after the order is created; the message is
	// still acknowledged, detail goes to the log.
	require.NoError(t, c.Handle(context.Background(), msg))
	assert.Equal(t, 0, processed.created)

	// A rebalance redelivers the event. The order create converges on the
	// existing row and the ledger catches up.
	require.NoError(t, c.Handle(context.Background(), msg))
	assert.Equal(t, 1, processed.created)
	assert.Len(t, orders.created, 2)
}

func TestHandleServiceFailure(t *testing.T) {
	orders := &fakeOrderService{fail: stderrors.New("db down")}
	processed := newFakeProcessedRepo()
	c := newTestConsumer(orders, processed)
	msg, _ := orderedMessage(t)

	err := c.Handle(context.Background(), msg)

	assert.Error(t, err)
	assert.Equal(t, 0, processed.created, "failed events are not marked processed")
}
