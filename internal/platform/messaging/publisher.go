package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// Config selects and tunes the event bus.
type Config struct {
	Brokers      []string
	Topic        string
	ClientID     string
	WriteTimeout time.Duration
}

// Publisher delivers domain events to reporting consumers.
type Publisher interface {
	Publish(ctx context.Context, key string, payload any) error
	Close() error
}

// NewPublisher builds a kafka-backed publisher, or a noop one when no brokers
// are configured.
func NewPublisher(cfg Config, logger *slog.Logger) (Publisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	if len(brokers) == 0 {
		logger.Info("messaging disabled; using noop publisher")
		return NoopPublisher{}, nil
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("messaging: topic required")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Second
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: cfg.WriteTimeout,
		Logger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Debug(fmt.Sprintf(msg, args...), slog.String("component", "kafka"))
		}),
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...any) {
			logger.Warn(fmt.Sprintf(msg, args...), slog.String("component", "kafka"))
		}),
	}
	return newKafkaPublisher(writer, cfg.ClientID), nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON encoded events keyed by entity so every event of
// one order lands on the same partition.
type KafkaPublisher struct {
	writer messageWriter
	source string
	now    func() time.Time
}

func newKafkaPublisher(w messageWriter, source string) *KafkaPublisher {
	if source == "" {
		source = "first-exchange-hub"
	}
	return &KafkaPublisher{writer: w, source: source, now: time.Now}
}

// Publish implements Publisher.
func (p *KafkaPublisher) Publish(ctx context.Context, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("messaging: encode %T: %w", payload, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: body,
		Time:  p.now(),
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "source", Value: []byte(p.source)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("messaging: write %s: %w", key, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher drops every event.
type NoopPublisher struct{}

// Publish implements Publisher.
func (NoopPublisher) Publish(context.Context, string, any) error { return nil }

// Close implements Publisher.
func (NoopPublisher) Close() error { return nil }
