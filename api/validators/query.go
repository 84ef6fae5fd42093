package validators

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
)

func badParam(kind, key, msg string, extra map[string]any) error {
	details := map[string]any{"field": key}
	for k, v := range extra {
		details[k] = v
	}
	return pkgerrors.New(pkgerrors.CodeValidation, kind+" parameter "+msg).WithDetails(details)
}

// fromQuery parses an optional query value. ok is false when the key is
// absent or blank.
func fromQuery[T any](r *http.Request, key string, parse func(string) (T, error), want string) (value T, ok bool, err error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return value, false, nil
	}
	value, err = parse(raw)
	if err != nil {
		return value, false, badParam("query", key, "must be "+want, nil)
	}
	return value, true, nil
}

// ParseQueryInt reads an optional integer bounded to [min, max].
func ParseQueryInt(r *http.Request, key string, defaultVal, min, max int) (int, error) {
	v, ok, err := fromQuery(r, key, strconv.Atoi, "numeric")
	switch {
	case err != nil:
		return 0, err
	case !ok:
		return defaultVal, nil
	case v < min || v > max:
		return 0, badParam("query", key, "out of range", map[string]any{"min": min, "max": max})
	}
	return v, nil
}

func ParseQueryBool(r *http.Request, key string, defaultVal bool) (bool, error) {
	v, ok, err := fromQuery(r, key, strconv.ParseBool, "a boolean")
	if err != nil || !ok {
		return defaultVal, err
	}
	return v, nil
}

// ParseQueryTime reads an optional RFC 3339 instant as UTC. Absent yields
// the zero time.
func ParseQueryTime(r *http.Request, key string) (time.Time, error) {
	v, _, err := fromQuery(r, key, func(s string) (time.Time, error) {
		return time.Parse(time.RFC3339, s)
	}, "an RFC 3339 timestamp")
	if err != nil {
		return time.Time{}, err
	}
	if v.IsZero() {
		return v, nil
	}
	return v.UTC(), nil
}

func ParseQueryUUID(r *http.Request, key string) (*uuid.UUID, error) {
	v, ok, err := fromQuery(r, key, uuid.Parse, "a uuid")
	if err != nil || !ok {
		return nil, err
	}
	return &v, nil
}

// ParseURLUUID reads a required uuid path parameter.
func ParseURLUUID(r *http.Request, key string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, key))
	if raw == "" {
		return uuid.Nil, badParam("path", key, "required", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, badParam("path", key, "must be a uuid", nil)
	}
	return id, nil
}
