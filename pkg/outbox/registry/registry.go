package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox/payloads"
)

// route names the stream an event type is published on.
type route int

const (
	pricingStream route = iota
	promotionsStream
)

// catalog lists every publishable event. Aggregates come from enums.
var catalog = []struct {
	eventType enums.OutboxEventType
	stream    route
	payload   func() any
}{
	{enums.EventPriceTableChanged, pricingStream, func() any { return &payloads.PriceTableChangedEvent{} }},
	{enums.EventPromotionChanged, promotionsStream, func() any { return &payloads.PromotionChangedEvent{} }},
	{enums.EventPromotionRedeemed, promotionsStream, func() any { return &payloads.PromotionRedeemedEvent{} }},
	{enums.EventPromotionReleased, promotionsStream, func() any { return &payloads.PromotionReleasedEvent{} }},
	{enums.EventFlashSaleSoldOut, promotionsStream, func() any { return &payloads.FlashSaleSoldOutEvent{} }},
}

// EventDescriptor is the publishing contract of one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	NewPayload    func() any
}

// ResolvedEvent is a decoded outbox row ready to publish.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

// Message builds the broker message for row. The stored payload is sent as
// is; ordering and routing data travel in Key and Attributes.
func (r *ResolvedEvent) Message(row models.OutboxEvent) outbox.Message {
	attrs := map[string]string{
		"event_id":       r.Envelope.ID.String(),
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"schema_version": fmt.Sprint(r.Envelope.Version),
	}
	if !r.Envelope.OccurredAt.IsZero() {
		attrs["occurred_at"] = r.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano)
	}
	if r.Envelope.Producer != "" {
		attrs["producer"] = r.Envelope.Producer
	}
	return outbox.Message{Key: row.AggregateID.String(), Data: row.Payload, Attributes: attrs}
}

// NonRetryableError marks a row that can never be published as stored.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// EventRegistry resolves outbox rows against the catalog.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry binds the catalog to the configured topic names. Every
// stream in use must have a topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	topics := map[route]string{
		pricingStream:    strings.TrimSpace(cfg.PricingTopic),
		promotionsStream: strings.TrimSpace(cfg.PromotionsTopic),
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for _, item := range catalog {
		topic := topics[item.stream]
		if topic == "" {
			return nil, fmt.Errorf("no topic configured for %s", item.eventType)
		}
		reg.entries[item.eventType] = EventDescriptor{
			EventType:     item.eventType,
			AggregateType: item.eventType.Aggregate(),
			Topic:         topic,
			NewPayload:    item.payload,
		}
	}
	return reg, nil
}

// Topics returns the distinct destinations, sorted.
func (r *EventRegistry) Topics() []string {
	seen := make(map[string]bool, 2)
	var out []string
	for _, desc := range r.entries {
		if !seen[desc.Topic] {
			seen[desc.Topic] = true
			out = append(out, desc.Topic)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve validates row and decodes its typed payload. Every failure is a
// NonRetryableError: a row that fails here will fail the same way forever.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	if !ok {
		return nil, nonRetryable("unsupported event type %s", row.EventType)
	}
	if desc.AggregateType != row.AggregateType {
		return nil, nonRetryable("aggregate mismatch: expected %s got %s", desc.AggregateType, row.AggregateType)
	}
	if row.AggregateID == uuid.Nil {
		return nil, nonRetryable("missing aggregate_id")
	}

	env, err := outbox.DecodeEnvelope(row.Payload)
	if errors.Is(err, outbox.ErrEmptyData) {
		return nil, nonRetryable("payload missing for %s", row.EventType)
	}
	if err != nil {
		return nil, NonRetryableError{Err: err}
	}
	if env.Type != "" && env.Type != row.EventType {
		return nil, nonRetryable("envelope type %s does not match row type %s", env.Type, row.EventType)
	}

	payload := desc.NewPayload()
	if err := json.Unmarshal(env.Data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", row.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: env, Payload: payload}, nil
}
