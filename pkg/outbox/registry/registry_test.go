package registry

import (
	"encoding/json"
	"errors"
		"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/petcare-pricing/pkg/config"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox"
	"github.com/angelmondragon/petcare-pricing/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	promotionID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.PromotionRedeemedEvent{
		RedemptionID:   uuid.New(),
		PromotionID:    promotionID,
		CustomerID:     uuid.New(),
		OrderRef:       "order-1",
		DiscountAmount: decimal.RequireFromString("10.00"),
		Quantity:       2,
	})

	event := models.OutboxEvent{
		EventType:     enums.EventPromotionRedeemed,
		AggregateType: enums.AggregatePromotion,
		AggregateID:   promotionID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "promotions-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.PromotionRedeemedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.PromotionID != promotionID || payload.OrderRef != "order-1" {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if !payload.DiscountAmount.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("unexpected discount %s", payload.DiscountAmount)
	}
	if resolved.Envelope.ID == uuid.Nil {
		t.Fatalf("envelope missing event id")
	}

	msg := resolved.Message(event)
	if msg.Key != promotionID.String() || string(msg.Data) != string(event.Payload) {
		t.Fatalf("message should be keyed by aggregate and carry the stored payload: %+v", msg)
	}
	if msg.Attributes["event_id"] != resolved.Envelope.ID.String() || msg.Attributes["schema_version"] != "1" {
		t.Fatalf("unexpected attributes %v", msg.Attributes)
	}
}

func TestEventRegistryPriceEventsUsePricingTopic(t *testing.T) {
	reg := newTestEventRegistry(t)

	tableID := uuid.New()
	event := models.OutboxEvent{
		EventType:     enums.EventPriceTableChanged,
		AggregateType: enums.AggregatePriceTable,
		AggregateID:   tableID,
		Payload: mustEnvelope(t, mustMarshal(t, payloads.PriceTableChangedEvent{
			PriceTableID: tableID,
			ProductID:    uuid.New(),
			Change:       enums.PriceTableUpdated,
			RegularPrice: decimal.NewFromInt(50),
		})),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "pricing-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
}

func TestEventRegistryTopics(t *testing.T) {
	reg := newTestEventRegistry(t)
	topics := reg.Topics()
	if len(topics) != 2 || topics[0] != "pricing-topic" || topics[1] != "promotions-topic" {
		t.Fatalf("unexpected topics %v", topics)
	}
}

func TestEventRegistryResolveUnknownEvent(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.OutboxEventType("stock_adjusted"),
		AggregateType: enums.AggregatePromotion,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"reason":"none"}`)),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveAggregateMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventPromotionRedeemed,
		AggregateType: enums.AggregatePriceTable,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte(`{"promotion_id":"00000000-0000-0000-0000-000000000000"}`)),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveMissingAggregateID(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventFlashSaleSoldOut,
		AggregateType: enums.AggregatePromotion,
		AggregateID:   uuid.Nil,
		Payload:       mustEnvelope(t, []byte(`{}`)),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveNullPayload(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventPromotionChanged,
		AggregateType: enums.AggregatePromotion,
		AggregateID:   uuid.New(),
		Payload:       mustEnvelope(t, []byte("null")),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestEventRegistryResolveEnvelopeTypeMismatch(t *testing.T) {
	reg := newTestEventRegistry(t)

	env := outbox.Envelope{
		Version: 1,
		ID:      uuid.New(),
		Type:    enums.EventPromotionReleased,
		Data:    json.RawMessage(`{}`),
	}
	event := models.OutboxEvent{
		EventType:     enums.EventPromotionRedeemed,
		AggregateType: enums.AggregatePromotion,
		AggregateID:   uuid.New(),
		Payload:       mustMarshal(t, env),
	}

	_, err := reg.Resolve(event)
	var nonRetry NonRetryableError
	if !errors.As(err, &nonRetry) {
		t.Fatalf("expected non-retryable error, got %v", err)
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{PricingTopic: "pricing"}); err == nil {
		t.Fatal("expected missing promotions topic to fail")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		PricingTopic:    "pricing-topic",
		PromotionsTopic: "promotions-topic",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.Envelope{
		Version:    1,
		ID:         uuid.New(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
