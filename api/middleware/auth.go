package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/petcare-pricing/api/responses"
	pkgAuth "github.com/angelmondragon/petcare-pricing/pkg/auth"
	"github.com/angelmondragon/petcare-pricing/pkg/config"
	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
	"github.com/angelmondragon/petcare-pricing/pkg/logger"
)

const bearerPrefix = "bearer "

// Auth requires a valid access token and stores the caller as a Principal.
// The scheme is optional: a bare token is accepted as well.
func Auth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			p := principalFromClaims(claims)
			ctx := context.WithValue(r.Context(), ctxPrincipal, p)
			if logg != nil {
				ctx = logg.WithActorRole(logg.WithUserID(ctx, p.UserID), p.Role)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) string {
	v := strings.TrimSpace(header)
	if strings.EqualFold(v, strings.TrimSpace(bearerPrefix)) {
		return ""
	}
	if len(v) >= len(bearerPrefix) && strings.EqualFold(v[:len(bearerPrefix)], bearerPrefix) {
		v = v[len(bearerPrefix):]
	}
	return strings.TrimSpace(v)
}
