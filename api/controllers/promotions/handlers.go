package promotions

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/petcare-pricing/api/controllers/actorcontext"
	"github.com/angelmondragon/petcare-pricing/api/responses"
	"github.com/angelmondragon/petcare-pricing/api/validators"
	internalpromotions "github.com/angelmondragon/petcare-pricing/internal/promotions"
	"github.com/angelmondragon/petcare-pricing/pkg/db/models"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
	"github.com/angelmondragon/petcare-pricing/pkg/pagination"
	"github.com/angelmondragon/petcare-pricing/pkg/types"
)

// Catalog is the administrative promotion surface.
type Catalog interface {
	Create(ctx context.Context, input internalpromotions.CreateInput) (*models.Promotion, error)
	Update(ctx context.Context, id uuid.UUID, input internalpromotions.UpdateInput) (*models.Promotion, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Promotion, error)
	List(ctx context.Context, filter internalpromotions.ListFilter) ([]models.Promotion, string, error)
	Deactivate(ctx context.Context, id uuid.UUID, actor internalpromotions.Actor) error
}

func unavailable() error {
	return pkgerrors.New(pkgerrors.CodeInternal, "promotion catalog unavailable")
}

// Create adds a promotion.
func Create(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		created, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, promotionResponseFromModel(created))
	}
}

// List pages through promotions.
func List(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		activeOnly, err := validators.ParseQueryBool(r, "active_only", false)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, next, err := svc.List(r.Context(), internalpromotions.ListFilter{
			ActiveOnly: activeOnly,
			Page:       pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]promotionResponse, 0, len(rows))
		for i := range rows {
			items = append(items, promotionResponseFromModel(&rows[i]))
		}
		responses.WriteSuccess(w, types.CursorPage[promotionResponse]{Items: items, NextCursor: next})
	}
}

// Get returns one promotion with its targeting.
func Get(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		id, err := validators.ParseURLUUID(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		promo, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, promotionResponseFromModel(promo))
	}
}

// Update applies a partial change to a promotion.
func Update(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseURLUUID(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput(actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithPromotionID(ctx, id.String())
		}
		updated, err := svc.Update(ctx, id, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, promotionResponseFromModel(updated))
	}
}

// Deactivate switches a promotion off. Redemptions keep referencing it.
func Deactivate(svc Catalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable())
			return
		}
		actor, err := actorcontext.ResolveActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		id, err := validators.ParseURLUUID(r, "promotionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Deactivate(r.Context(), id, internalpromotions.Actor{UserID: &actor.UserID, Role: actor.Role}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}
