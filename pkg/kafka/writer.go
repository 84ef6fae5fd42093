package kafka

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer publishes outbox messages to Kafka. The topic is set per message so
// one writer serves every event stream.
type Writer struct {
	writer  messageWriter
	brokers []string
	timeout time.Duration
	now     func() time.Time
}

var _ outbox.Sink = (*Writer)(nil)

func NewWriter(cfg config.KafkaConfig) (*Writer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	timeout := cfg.WriteTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: timeout,
		Transport:    &kafka.Transport{ClientID: cfg.ClientID},
	}
	return newWriter(w, brokers, timeout), nil
}

func newWriter(w messageWriter, brokers []string, timeout time.Duration) *Writer {
	return &Writer{writer: w, brokers: brokers, timeout: timeout, now: time.Now}
}

// Publish writes one message keyed by Key so events for the same aggregate
// land on the same partition.
func (w *Writer) Publish(ctx context.Context, topic string, msg outbox.Message) error {
	if strings.TrimSpace(topic) == "" {
		return errors.New("kafka topic is required")
	}
	headers := make([]kafka.Header, 0, len(msg.Attributes))
	for k, v := range msg.Attributes {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	return w.writer.WriteMessages(ctx, kafka.Message{
		Topic:   topic,
		Key:     []byte(msg.Key),
		Value:   msg.Data,
		Headers: headers,
		Time:    w.now().UTC(),
	})
}

// Ping dials the first reachable broker.
func (w *Writer) Ping(ctx context.Context) error {
	var lastErr error
	for _, broker := range w.brokers {
		dialCtx, cancel := context.WithTimeout(ctx, w.timeout)
		conn, err := kafka.DialContext(dialCtx, "tcp", broker)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		return conn.Close()
	}
	if lastErr == nil {
		lastErr = errors.New("no brokers configured")
	}
	return fmt.Errorf("kafka ping failed: %w", lastErr)
}

func (w *Writer) Close() error {
	return w.writer.Close()
}
