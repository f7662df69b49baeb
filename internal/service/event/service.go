package event

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/repository"
	"github.com/meditrack/meditrack-api/pkg/metrics"
)

// Publisher enqueues events for asynchronous delivery. Implementations must
// guarantee that EmitTx shares fate with the surrounding transaction.
type Publisher interface {
	Emit(ctx context.Context, topic, key, eventType string, payload interface{}) error
	EmitTx(ctx context.Context, tx *sqlx.Tx, topic, key, eventType string, payload interface{}) error
}

// Service writes events to the transactional outbox; the worker drains it
// to Kafka. Publication failures therefore never reach, let alone roll
// back, the workflow that emitted the event.
type Service struct {
	outbox  repository.OutboxRepository
	metrics *metrics.Metrics
}

func NewService(outbox repository.OutboxRepository, m *metrics.Metrics) *Service {
	return &Service{outbox: outbox, metrics: m}
}

func (s *Service) Emit(ctx context.Context, topic, key, eventType string, payload interface{}) error {
	evt, err := s.build(topic, key, eventType, payload)
	if err != nil {
		return err
	}
	if err := s.outbox.Create(ctx, evt); err != nil {
		return err
	}
	s.count(eventType)
	return nil
}

func (s *Service) EmitTx(ctx context.Context, tx *sqlx.Tx, topic, key, eventType string, payload interface{}) error {
	evt, err := s.build(topic, key, eventType, payload)
	if err != nil {
		return err
	}
	if err := s.outbox.CreateTx(ctx, tx, evt); err != nil {
		return err
	}
	s.count(eventType)
	return nil
}

func (s *Service) build(topic, key, eventType string, payload interface{}) (*model.OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	return &model.OutboxEvent{
		EventType: eventType,
		Topic:     topic,
		Key:       key,
		Payload:   data,
	}, nil
}

func (s *Service) count(eventType string) {
	if s.metrics != nil {
		s.metrics.EventsPublished.WithLabelValues(eventType).Inc()
	}
}
