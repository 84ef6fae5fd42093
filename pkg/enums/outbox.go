package enums

import "sort"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregatePriceTable OutboxAggregateType = "price_table"
	AggregatePromotion  OutboxAggregateType = "promotion"
)

func (a OutboxAggregateType) IsValid() bool {
	return a == AggregatePriceTable || a == AggregatePromotion
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventPriceTableChanged OutboxEventType = "price_table_changed"
	EventPromotionChanged  OutboxEventType = "promotion_changed"
	EventPromotionRedeemed OutboxEventType = "promotion_redeemed"
	EventPromotionReleased OutboxEventType = "promotion_released"
	EventFlashSaleSoldOut  OutboxEventType = "flash_sale_sold_out"
)

// eventAggregates is the single source for which aggregate owns an event type.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventPriceTableChanged: AggregatePriceTable,
	EventPromotionChanged:  AggregatePromotion,
	EventPromotionRedeemed: AggregatePromotion,
	EventPromotionReleased: AggregatePromotion,
	EventFlashSaleSoldOut:  AggregatePromotion,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type e is emitted for, or "" when e is unknown.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// OutboxEventTypes lists the known event types in lexical order.
func OutboxEventTypes() []OutboxEventType {
	out := make([]OutboxEventType, 0, len(eventAggregates))
	for e := range eventAggregates {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PriceTableChange names what happened to a price table in a change event.
type PriceTableChange string

const (
	PriceTableCreated     PriceTableChange = "created"
	PriceTableUpdated     PriceTableChange = "updated"
	PriceTableDeactivated PriceTableChange = "deactivated"
)
