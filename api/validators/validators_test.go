package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/petcare-pricing/pkg/errors"
)

type lineBody struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type orderBody struct {
	OrderRef string     `json:"order_ref" validate:"required,max=64"`
	Items    []lineBody `json:"items" validate:"required,min=1,dive"`
}

func TestDecodeJSONBodyReportsNestedFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_ref":"A","items":[{"product_id":"nope","quantity":0}]}`))

	var body orderBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	require.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a valid uuid", details["items[0].product_id"])
	assert.Equal(t, "must be greater than 0", details["items[0].quantity"])
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_ref":"A","coupon":"X"}`))
	var body orderBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=10&as_of=2026-03-01T10:00:00Z&product_id=bad&active=yes", nil)

	limit, err := ParseQueryInt(req, "limit", 25, 1, 100)
	require.NoError(t, err)
	assert.Equal(t, 10, limit)

	asOf, err := ParseQueryTime(req, "as_of")
	require.NoError(t, err)
	assert.Equal(t, 2026, asOf.Year())

	_, err = ParseQueryUUID(req, "product_id")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = ParseQueryBool(req, "active", false)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	missing, err := ParseQueryTime(req, "other")
	require.NoError(t, err)
	assert.True(t, missing.IsZero())
}

func TestParseURLUUID(t *testing.T) {
	id := uuid.New()
	rc := chi.NewRouteContext()
	rc.URLParams.Add("promotionId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))

	got, err := ParseURLUUID(req, "promotionId")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseURLUUID(req, "priceTableId")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCleanText(t *testing.T) {
	assert.Equal(t, "abc", CleanText("  abcdef ", 3))
	assert.Equal(t, "x", CleanText(" x ", 0))
	assert.Equal(t, "Spring sale", CleanText("  Spring \t\n sale ", 0))
	assert.Equal(t, "ñandú", CleanText("ñandú feliz", 5))
	assert.Equal(t, "ab", CleanText("ab cd", 3))
	assert.Nil(t, CleanTextPtr(nil, 10))
	raw := " kibble "
	assert.Equal(t, "kibble", *CleanTextPtr(&raw, 10))
}

func TestDecodeJSONBodyRejectsTrailingAndEmptyBodies(t *testing.T) {
	var body orderBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_ref":"A","items":[{"product_id":"`+uuid.NewString()+`","quantity":1}]} {}`))
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	err = DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.Equal(t, "request body required", pkgerrors.As(err).Message())
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	big := `{"order_ref":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(big))
	var body orderBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.Equal(t, "request body too large", pkgerrors.As(err).Message())
}
