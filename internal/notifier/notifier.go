package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	gomail "gopkg.in/gomail.v2"

	"github.com/meditrack/meditrack-api/internal/config"
	"github.com/meditrack/meditrack-api/pkg/event"
	"github.com/meditrack/meditrack-api/pkg/messaging"
)

// Sender delivers one assembled message.
type Sender interface {
	Send(m *gomail.Message) error
}

type smtpSender struct {
	dialer *gomail.Dialer
}

func (s *smtpSender) Send(m *gomail.Message) error {
	return s.dialer.DialAndSend(m)
}

// CriticalResultNotifier watches the lab events topic and emails the
// on-call address whenever a critical result is published. Everything else
// on the topic is acknowledged and ignored.
type CriticalResultNotifier struct {
	sender Sender
	logger *zerolog.Logger
	topic  string
	from   string
	to     string
}

func New(cfg config.NotifierConfig, logger *zerolog.Logger, topic string) *CriticalResultNotifier {
	dialer := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.Username, cfg.Password)
	return &CriticalResultNotifier{
		sender: &smtpSender{dialer: dialer},
		logger: logger,
		topic:  topic,
		from:   cfg.From,
		to:     cfg.To,
	}
}

// NewWithSender is used by tests to substitute the SMTP transport.
func NewWithSender(sender Sender, logger *zerolog.Logger, topic, from, to string) *CriticalResultNotifier {
	return &CriticalResultNotifier{
		sender: sender,
		logger: logger,
		topic:  topic,
		from:   from,
		to:     to,
	}
}

// Run blocks consuming the lab events topic until ctx is cancelled.
func (n *CriticalResultNotifier) Run(ctx context.Context, consumer messaging.Consumer, groupID string) error {
	return consumer.Consume(ctx, n.topic, groupID, n.Handle)
}

func (n *CriticalResultNotifier) Handle(ctx context.Context, msg messaging.Message) error {
	var env event.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		return fmt.Errorf("malformed event payload: %w", err)
	}
	if env.EventType != event.TypeCriticalResult {
		return nil
	}

	var evt event.LabResults
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return fmt.Errorf("malformed %s payload: %w", env.EventType, err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", n.to)
	m.SetHeader("Subject", subject(&evt))
	m.SetBody("text/plain", body(&evt))

	if err := n.sender.Send(m); err != nil {
		// Notification is best-effort: log and acknowledge rather than
		// redeliver the event forever against a dead SMTP server.
		n.logger.Error().Err(err).
			Str("event_id", env.EventID.String()).
			Str("order_id", evt.Order.OrderID.String()).
			Msg("failed to send critical result notification")
		return nil
	}

	n.logger.Info().
		Str("event_id", env.EventID.String()).
		Str("order_id", evt.Order.OrderID.String()).
		Str("patient_id", evt.Order.PatientID).
		Msg("critical result notification sent")
	return nil
}

func subject(evt *event.LabResults) string {
	return fmt.Sprintf("CRITICAL lab result for patient %s", evt.Order.PatientID)
}

func body(evt *event.LabResults) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Critical lab result reported.\n\n")
	fmt.Fprintf(&b, "Order:     %s\n", evt.Order.OrderID)
	fmt.Fprintf(&b, "Patient:   %s\n", evt.Order.PatientID)
	fmt.Fprintf(&b, "Physician: %s\n", evt.Order.OrderingPhysicianID)
	for _, r := range evt.Results {
		fmt.Fprintf(&b, "\nTest:      %s (%s)\n", r.TestName, r.TestCode)
		fmt.Fprintf(&b, "Value:     %s %s (reference %s)\n", r.ResultValue, r.ResultUnit, r.ReferenceRange)
		fmt.Fprintf(&b, "Flag:      %s\n", r.AbnormalFlag)
		fmt.Fprintf(&b, "Performed: %s\n", r.PerformedAt.Format("2006-01-02 15:04:05 MST"))
	}
	return b.String()
}
