package order

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/repository"
	"github.com/meditrack/meditrack-api/internal/service/event"
	pkgevent "github.com/meditrack/meditrack-api/pkg/event"
	"github.com/meditrack/meditrack-api/pkg/errors"
)

type OrderService interface {
	CreateOrder(ctx context.Context, req *model.CreateLabOrderRequest) (*model.LabOrder, error)
	CreateOrderFromEvent(ctx context.Context, evt *pkgevent.LabTestOrdered) (*model.LabOrder, error)
	GetOrder(ctx context.Context, id uuid.UUID) (*model.LabOrder, error)
	CancelOrder(ctx context.Context, id uuid.UUID) (*model.LabOrder, error)
}

type Service struct {
	repo              repository.OrderRepository
	events            event.Publisher
	orderCreatedTopic string
}

func NewService(repo repository.OrderRepository, events event.Publisher, orderCreatedTopic string) *Service {
	return &Service{
		repo:              repo,
		events:            events,
		orderCreatedTopic: orderCreatedTopic,
	}
}

func (s *Service) CreateOrder(ctx context.Context, req *model.CreateLabOrderRequest) (*model.LabOrder, error) {
	priority := parsePriority(req.Priority)

	tests := make([]model.TestInfo, 0, len(req.Tests))
	for _, t := range req.Tests {
		tests = append(tests, model.TestInfo{
			TestCode:      t.TestCode,
			TestName:      t.TestName,
			SpecimenType:  t.SpecimenType,
			ClinicalNotes: t.ClinicalNotes,
		})
	}
	codes := make([]model.DiagnosisCode, 0, len(req.DiagnosisCodes))
	for _, c := range req.DiagnosisCodes {
		codes = append(codes, model.DiagnosisCode{Code: c.Code, Description: c.Description})
	}

	var orderTS = timeOrZero(req.OrderTimestamp)
	order := model.NewLabOrder(req.PatientID, req.FacilityID, req.OrderingPhysicianID, priority, orderTS, tests, codes)

	if err := s.repo.Create(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to create lab order: %w", err)
	}

	s.emitOrderCreated(ctx, order)
	return order, nil
}

// CreateOrderFromEvent materializes a local order from an inbound
// lab.test.ordered.v1 event. The event carries one test code; the facility
// defaults to the event source. The order keeps the id the originating
// service minted, so callers that were handed that id on submission can
// look the order up here.
func (s *Service) CreateOrderFromEvent(ctx context.Context, evt *pkgevent.LabTestOrdered) (*model.LabOrder, error) {
	priority := parsePriority(evt.Order.Priority)

	tests := []model.TestInfo{{
		TestCode:      evt.Order.TestCode,
		ClinicalNotes: evt.Order.Notes,
	}}

	order := model.NewLabOrder(evt.Order.PatientID, evt.Source, evt.Order.DoctorID, priority, timeOrZero(nil), tests, nil)
	if evt.Order.OrderID != uuid.Nil {
		order.ID = evt.Order.OrderID
	}

	if err := s.repo.Create(ctx, order); err != nil {
		// Redelivery of an event whose order already landed: return the
		// existing row so the consumer can acknowledge and move on.
		if stderrors.Is(err, repository.ErrDuplicateKey) {
			existing, getErr := s.repo.Get(ctx, order.ID)
			if getErr != nil {
				return nil, fmt.Errorf("failed to load existing lab order %s: %w", order.ID, getErr)
			}
			log.Info().
				Str("order_id", order.ID.String()).
				Msg("lab order already materialized, redelivery converged")
			return existing, nil
		}
		return nil, fmt.Errorf("failed to create lab order from event: %w", err)
	}

	log.Info().
		Str("order_id", order.ID.String()).
		Str("patient_id", order.PatientID).
		Str("test_code", evt.Order.TestCode).
		Str("priority", string(priority)).
		Msg("created lab order from event")

	s.emitOrderCreated(ctx, order)
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, id uuid.UUID) (*model.LabOrder, error) {
	order, err := s.repo.Get(ctx, id)
	if err == model.ErrOrderNotFound {
		return nil, errors.NotFound("lab order", err)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lab order: %w", err)
	}
	return order, nil
}

func (s *Service) CancelOrder(ctx context.Context, id uuid.UUID) (*model.LabOrder, error) {
	order, err := s.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}

	changed, err := order.Cancel()
	if err != nil {
		return nil, errors.Conflict("cannot cancel a completed order", err)
	}
	if !changed {
		return order, nil
	}

	if err := s.repo.UpdateStatus(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to cancel lab order: %w", err)
	}
	return order, nil
}

// emitOrderCreated is fire-and-forget: a failed enqueue is logged but never
// fails the order creation that triggered it.
func (s *Service) emitOrderCreated(ctx context.Context, order *model.LabOrder) {
	payload := pkgevent.LabOrderCreated{
		OrderID:   order.ID,
		PatientID: order.PatientID,
		EventType: pkgevent.TypeLabOrderCreated,
	}
	if err := s.events.Emit(ctx, s.orderCreatedTopic, order.ID.String(), pkgevent.TypeLabOrderCreated, payload); err != nil {
		log.Error().Err(err).Str("order_id", order.ID.String()).Msg("failed to enqueue order created event")
	}
}

func timeOrZero(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Time{}
}

func parsePriority(raw string) model.Priority {
	if raw == "" {
		return model.PriorityRoutine
	}
	priority, ok := model.ParsePriority(raw)
	if !ok {
		log.Warn().Str("priority", raw).Msg("unknown priority, defaulting to ROUTINE")
	}
	return priority
}
