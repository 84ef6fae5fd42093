package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/petcare-pricing/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID        uuid.UUID
	Role          enums.ActorRole
	CustomerGroup *string
	JTI           string
}

// AccessTokenClaims represents the typed JWT presented by storefront and
// back-office callers. CustomerGroup is only meaningful for customers.
type AccessTokenClaims struct {
	UserID        uuid.UUID       `json:"user_id"`
	Role          enums.ActorRole `json:"role"`
	CustomerGroup *string         `json:"customer_group,omitempty"`
	jwt.RegisteredClaims
}
