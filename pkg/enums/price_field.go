package enums

// PriceField names the monetary column a price history row audits.
type PriceField string

const (
	PriceFieldRegular PriceField = "regular_price"
	PriceFieldCost    PriceField = "cost_price"
)

func (p PriceField) String() string {
	return string(p)
}

func (p PriceField) IsValid() bool {
	return p == PriceFieldRegular || p == PriceFieldCost
}
