package models

// All lists every persisted model, in dependency order, for SQLite-backed
// tests that build their schema with AutoMigrate.
func All() []any {
	return []any{
		&PriceTable{},
		&PriceHistory{},
		&Promotion{},
		&PromotionProduct{},
		&PromotionCustomer{},
		&PromotionCustomerUsage{},
		&PromotionRedemption{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
