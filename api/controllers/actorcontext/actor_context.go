package actorcontext

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/petcare-pricing/api/middleware"
	"github.com/angelmondragon/petcare-pricing/pkg/enums"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

// Actor is the authenticated caller of a request.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// ResolveActor reads the token identity seeded by the auth middleware.
func ResolveActor(r *http.Request) (Actor, error) {
	ctx := r.Context()
	rawUser := middleware.UserIDFromContext(ctx)
	if rawUser == "" {
		return Actor{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "user context missing")
	}
	userID, err := uuid.Parse(rawUser)
	if err != nil {
		return Actor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id")
	}
	role, err := enums.ParseActorRole(middleware.RoleFromContext(ctx))
	if err != nil {
		return Actor{}, pkgerrors.Wrap(pkgerrors.CodeForbidden, err, "invalid actor role")
	}
	return Actor{UserID: userID, Role: role}, nil
}

// Customer is the shopper an order is priced for.
type Customer struct {
	ID    uuid.UUID
	Group types.Scope
}

// ResolveCustomer picks the shopper identity. Customers are always priced as
// themselves from their token; the checkout service names the shopper in the
// request body.
func ResolveCustomer(r *http.Request, bodyCustomerID, bodyGroup *string) (Customer, error) {
	actor, err := ResolveActor(r)
	if err != nil {
		return Customer{}, err
	}

	switch actor.Role {
	case enums.ActorRoleCustomer:
		return Customer{
			ID:    actor.UserID,
			Group: types.ScopeOf(middleware.CustomerGroupFromContext(r.Context())),
		}, nil
	case enums.ActorRoleCheckout:
		if bodyCustomerID == nil || strings.TrimSpace(*bodyCustomerID) == "" {
			return Customer{}, pkgerrors.New(pkgerrors.CodeValidation, "customer_id is required").
				WithDetails(map[string]string{"customer_id": "is required"})
		}
		id, err := uuid.Parse(strings.TrimSpace(*bodyCustomerID))
		if err != nil {
			return Customer{}, pkgerrors.New(pkgerrors.CodeValidation, "customer_id is invalid").
				WithDetails(map[string]string{"customer_id": "must be a valid uuid"})
		}
		return Customer{ID: id, Group: types.ScopeFromPtr(bodyGroup)}, nil
	default:
		return Customer{}, pkgerrors.New(pkgerrors.CodeForbidden, "storefront role required")
	}
}
