package enums

// RejectionReason explains why a promotion the caller may have expected is
// absent from an evaluation result.
type RejectionReason string

const (
	RejectionCodeNotFound         RejectionReason = "code_not_found"
	RejectionNotEligible          RejectionReason = "not_eligible"
	RejectionThresholdNotMet      RejectionReason = "threshold_not_met"
	RejectionUsageLimitReached    RejectionReason = "usage_limit_reached"
	RejectionCustomerLimitReached RejectionReason = "customer_limit_reached"
	RejectionFlashSaleExhausted   RejectionReason = "flash_sale_exhausted"
	RejectionExclusiveOutranked   RejectionReason = "exclusive_outranked"
)

func (r RejectionReason) String() string {
	return string(r)
}
