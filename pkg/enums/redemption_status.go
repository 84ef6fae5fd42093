package enums

// RedemptionStatus tracks whether a committed promotion use still counts.
type RedemptionStatus string

const (
	RedemptionStatusRedeemed RedemptionStatus = "redeemed"
	RedemptionStatusReleased RedemptionStatus = "released"
)

func (r RedemptionStatus) String() string {
	return string(r)
}

func (r RedemptionStatus) IsValid() bool {
	return r == RedemptionStatusRedeemed || r == RedemptionStatusReleased
}
