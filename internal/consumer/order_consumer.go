package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/meditrack/meditrack-api/internal/model"
	"github.com/meditrack/meditrack-api/internal/repository"
	"github.com/meditrack/meditrack-api/internal/service/order"
	"github.com/meditrack/meditrack-api/pkg/event"
	"github.com/meditrack/meditrack-api/pkg/messaging"
	"github.com/meditrack/meditrack-api/pkg/metrics"
)

// OrderConsumer turns inbound lab.test.ordered.v1 events into local lab
// orders. Delivery is at-least-once, so every event passes an idempotency
// check (in-memory front, then the processed_events table) before the order
// is created.
type OrderConsumer struct {
	orders    order.OrderService
	processed repository.ProcessedEventRepository
	seen      *gocache.Cache
	metrics   *metrics.Metrics
	logger    *zerolog.Logger
	topic     string
}

func NewOrderConsumer(orders order.OrderService, processed repository.ProcessedEventRepository, m *metrics.Metrics, logger *zerolog.Logger, topic string) *OrderConsumer {
	return &OrderConsumer{
		orders:    orders,
		processed: processed,
		seen:      gocache.New(30*time.Minute, 10*time.Minute),
		metrics:   m,
		logger:    logger,
		topic:     topic,
	}
}

// Run blocks consuming the order-requests topic until ctx is cancelled.
func (c *OrderConsumer) Run(ctx context.Context, consumer messaging.Consumer, groupID string) error {
	return consumer.Consume(ctx, c.topic, groupID, c.Handle)
}

// Handle processes one record. A nil return commits the message; an error
// leaves it uncommitted for redelivery. Unrecognized event types are
// acknowledged as no-ops, malformed payloads are not.
func (c *OrderConsumer) Handle(ctx context.Context, msg messaging.Message) error {
	var env event.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		c.countMessage("malformed")
		return fmt.Errorf("malformed event payload: %w", err)
	}

	if env.EventType != event.TypeLabTestOrdered {
		c.logger.Debug().
			Str("event_type", env.EventType).
			Str("topic", msg.Topic).
			Msg("skipping unrecognized event type")
		c.countMessage("skipped")
		return nil
	}

	var evt event.LabTestOrdered
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		c.countMessage("malformed")
		return fmt.Errorf("malformed %s payload: %w", env.EventType, err)
	}
	if evt.Order.OrderID == uuid.Nil || evt.Order.PatientID == "" {
		c.countMessage("malformed")
		return fmt.Errorf("event %s missing order or patient identifier", env.EventID)
	}

	duplicate, err := c.alreadyProcessed(ctx, &env)
	if err != nil {
		return err
	}
	if duplicate {
		c.logger.Info().
			Str("event_id", env.EventID.String()).
			Str("order_id", evt.Order.OrderID.String()).
			Msg("duplicate delivery, already processed")
		c.countMessage("duplicate")
		return nil
	}

	created, err := c.orders.CreateOrderFromEvent(ctx, &evt)
	if err != nil {
		c.countMessage("failed")
		return fmt.Errorf("failed to create order from event %s: %w", env.EventID, err)
	}

	if err := c.markProcessed(ctx, &env); err != nil {
		// Order exists but the ledger write failed. A redelivery converges
		// anyway: the order create treats the duplicate key as an existing
		// order and the event is acknowledged then.
		c.logger.Error().Err(err).
			Str("event_id", env.EventID.String()).
			Msg("failed to record processed event")
	}

	c.logger.Info().
		Str("event_id", env.EventID.String()).
		Str("order_id", created.ID.String()).
		Str("patient_id", created.PatientID).
		Str("priority", string(created.Priority)).
		Msg("lab order created from event")
	c.countMessage("processed")
	return nil
}

func (c *OrderConsumer) alreadyProcessed(ctx context.Context, env *event.Envelope) (bool, error) {
	key := env.EventID.String()
	if _, found := c.seen.Get(key); found {
		return true, nil
	}
	exists, err := c.processed.Exists(ctx, env.EventID)
	if err != nil {
		return false, fmt.Errorf("failed to check processed events: %w", err)
	}
	if exists {
		c.seen.SetDefault(key, struct{}{})
	}
	return exists, nil
}

func (c *OrderConsumer) markProcessed(ctx context.Context, env *event.Envelope) error {
	record := &model.ProcessedEvent{
		EventID:     env.EventID,
		EventType:   env.EventType,
		ProcessedAt: time.Now().UTC(),
	}
	if err := c.processed.Create(ctx, record); err != nil {
		return err
	}
	c.seen.SetDefault(env.EventID.String(), struct{}{})
	return nil
}

func (c *OrderConsumer) countMessage(outcome string) {
	if c.metrics != nil {
		c.metrics.ConsumerMessages.WithLabelValues(c.topic, outcome).Inc()
	}
}
