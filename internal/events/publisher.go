package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"clinicbook/internal/domain"
)

const DefaultTopic = "clinicbook.appointments"

type Config struct {
	Brokers string
	Topic   string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Publisher struct {
	writer messageWriter
	log    *slog.Logger
}

func NewPublisher(cfg Config, log *slog.Logger) (*Publisher, error) {
	brokers := SplitBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	topic := strings.TrimSpace(cfg.Topic)
	if topic == "" {
		topic = DefaultTopic
	}
	if log == nil {
		log = slog.Default()
	}

	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		MaxAttempts:            3,
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, log), nil
}

func newPublisher(w messageWriter, log *slog.Logger) *Publisher {
	return &Publisher{
		writer: w,
		log:    log.With(slog.String("component", "events.kafka")),
	}
}

func (p *Publisher) Publish(ctx context.Context, evt domain.AppointmentEvent) error {
	msg, err := Encode(evt)
	if err != nil {
		return err
	}
	msg.Headers = injectTraceHeaders(ctx, msg.Headers)

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return err
	}
	p.log.DebugContext(ctx, "event published",
		slog.String("event_id", evt.ID),
		slog.String("event_type", string(evt.Type)),
	)
	return nil
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

type appointmentPayload struct {
	AppointmentID   int64     `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	DoctorName      string    `json:"doctor_name"`
	AppointmentDate string    `json:"appointment_date"`
	TimeSlot        string    `json:"time_slot"`
	CreatedAt       time.Time `json:"created_at"`
}

type eventPayload struct {
	EventID     string             `json:"event_id"`
	EventType   string             `json:"event_type"`
	OccurredAt  time.Time          `json:"occurred_at"`
	Appointment appointmentPayload `json:"appointment"`
}

// Encode builds the Kafka message for evt. Messages are keyed by patient id.
func Encode(evt domain.AppointmentEvent) (kafka.Message, error) {
	a := evt.Appointment
	value, err := json.Marshal(eventPayload{
		EventID:    evt.ID,
		EventType:  string(evt.Type),
		OccurredAt: evt.OccurredAt.UTC(),
		Appointment: appointmentPayload{
			AppointmentID:   a.ID,
			PatientID:       a.PatientID,
			PatientName:     a.PatientName,
			DoctorName:      a.DoctorName,
			AppointmentDate: a.AppointmentDate,
			TimeSlot:        string(a.TimeSlot),
			CreatedAt:       a.CreatedAt.UTC(),
		},
	})
	if err != nil {
		return kafka.Message{}, err
	}

	return kafka.Message{
		Key:   []byte(a.PatientID),
		Value: value,
		Time:  evt.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(evt.ID)},
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}, nil
}

func HeaderValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &headerCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type headerCarrier struct {
	headers []kafka.Header
}

func (c *headerCarrier) Get(key string) string {
	return HeaderValue(c.headers, key)
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *headerCarrier) Set(key, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*headerCarrier)(nil)
