package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/meditrack/meditrack-api/pkg/circuitbreaker"
	"github.com/meditrack/meditrack-api/pkg/messaging"
)

type Config struct {
	Brokers        []string
	PublishTimeout time.Duration
	MinBytes       int
	MaxBytes       int
	Concurrency    int
	RetryAttempts  int
	RetryBackoff   time.Duration
}

// Broker implements messaging.Broker and messaging.Consumer on Kafka.
// One writer is kept per topic; the hash balancer routes equal keys to the
// same partition so per-key ordering holds.
type Broker struct {
	cfg    Config
	cb     *circuitbreaker.CircuitBreaker
	logger *zerolog.Logger

	mu      sync.Mutex
	writers map[string]*kafka.Writer
	readers []*kafka.Reader
	closed  bool
}

func NewBroker(cfg Config, logger *zerolog.Logger) (*Broker, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 10 * time.Second
	}
	if cfg.MinBytes <= 0 {
		cfg.MinBytes = 10e3
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 10e6
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 3
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	cb := circuitbreaker.NewCircuitBreaker(circuitbreaker.Settings{
		Name:        "kafka-broker",
		MaxFailures: 5,
		Timeout:     30 * time.Second,
	})

	return &Broker{
		cfg:     cfg,
		cb:      cb,
		logger:  logger,
		writers: make(map[string]*kafka.Writer),
	}, nil
}

func (b *Broker) writer(topic string) *kafka.Writer {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w, ok := b.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(b.cfg.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: b.cfg.PublishTimeout,
	}
	b.writers[topic] = w
	return w
}

// Publish writes one keyed message. The publish timeout bounds the call; an
// exceeded deadline surfaces as a publication failure to the caller.
func (b *Broker) Publish(ctx context.Context, topic, key string, payload []byte) error {
	w := b.writer(topic)

	return b.cb.Execute(func() error {
		ctx, cancel := context.WithTimeout(ctx, b.cfg.PublishTimeout)
		defer cancel()

		err := w.WriteMessages(ctx, kafka.Message{
			Key:   []byte(key),
			Value: payload,
		})
		if err != nil {
			return fmt.Errorf("kafka: publish to %s: %w", topic, err)
		}
		return nil
	})
}

// Consume runs cfg.Concurrency readers in one consumer group and blocks
// until ctx is cancelled. Messages are committed only after the handler
// returns nil. The loop never advances past a failed message: group
// commits are a single per-partition high-watermark, so committing a later
// offset would also acknowledge every failed one before it.
func (b *Broker) Consume(ctx context.Context, topic, groupID string, handler messaging.Handler) error {
	var wg sync.WaitGroup

	for i := 0; i < b.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				r := kafka.NewReader(kafka.ReaderConfig{
					Brokers:  b.cfg.Brokers,
					Topic:    topic,
					GroupID:  groupID,
					MinBytes: b.cfg.MinBytes,
					MaxBytes: b.cfg.MaxBytes,
				})
				b.trackReader(r)

				b.consumeLoop(ctx, r, handler)

				b.untrackReader(r)
				if err := r.Close(); err != nil {
					b.logger.Error().Err(err).Str("topic", topic).Msg("reader close failed")
				}
			}
		}()
	}

	wg.Wait()
	return ctx.Err()
}

// consumeLoop fetches and handles messages until ctx is cancelled or a
// message exhausts its retries. In the latter case the loop returns so the
// caller reopens the reader, which resumes from the last committed offset
// and redelivers the failed message.
func (b *Broker) consumeLoop(ctx context.Context, r *kafka.Reader, handler messaging.Handler) {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
				return
			}
			b.logger.Error().Err(err).Str("topic", r.Config().Topic).Msg("fetch failed")
			continue
		}

		if err := b.handleWithRetry(ctx, handler, messaging.Message{
			Topic: msg.Topic,
			Key:   msg.Key,
			Value: msg.Value,
		}); err != nil {
			b.logger.Error().Err(err).
				Str("topic", msg.Topic).
				Str("key", string(msg.Key)).
				Int64("offset", msg.Offset).
				Msg("message handling failed, reopening reader at last committed offset")
			return
		}

		if err := r.CommitMessages(ctx, msg); err != nil {
			b.logger.Error().Err(err).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Msg("commit failed")
		}
	}
}

// handleWithRetry runs the handler in place with doubling backoff until it
// succeeds or cfg.RetryAttempts retries are spent.
func (b *Broker) handleWithRetry(ctx context.Context, handler messaging.Handler, msg messaging.Message) error {
	backoff := b.cfg.RetryBackoff

	var err error
	for attempt := 0; attempt <= b.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		if err = handler(ctx, msg); err == nil {
			return nil
		}
		b.logger.Warn().Err(err).
			Str("topic", msg.Topic).
			Str("key", string(msg.Key)).
			Int("attempt", attempt+1).
			Msg("handler failed")
	}
	return err
}

func (b *Broker) trackReader(r *kafka.Reader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.readers = append(b.readers, r)
}

func (b *Broker) untrackReader(r *kafka.Reader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, tracked := range b.readers {
		if tracked == r {
			b.readers = append(b.readers[:i], b.readers[i+1:]...)
			return
		}
	}
}

func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var firstErr error
	for _, w := range b.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, r := range b.readers {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
