package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
)

type donationBody struct {
	Amount        string `json:"amount" validate:"required,positive_decimal"`
	SourceAddress string `json:"source_address" validate:"omitempty,xrpl_address"`
}

func TestDecodeJSONBodyCustomTags(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"-1","source_address":"not-an-address"}`))
	var body donationBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "must be a positive decimal", details["amount"])
	assert.Equal(t, "must be a classic XRPL address", details["source_address"])

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"12.5","source_address":"rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"}`))
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "12.5", body.Amount)
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1","extra":true}`))
	var body donationBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseUUIDParam(t *testing.T) {
	withParam := func(value string) *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rc := chi.NewRouteContext()
		rc.URLParams.Add("donationId", value)
		return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rc))
	}

	id, err := ParseUUIDParam(withParam("6f1c1b0e-8a4e-4d7f-9a52-3c0f5f1e2b11"), "donationId")
	require.NoError(t, err)
	assert.Equal(t, "6f1c1b0e-8a4e-4d7f-9a52-3c0f5f1e2b11", id.String())

	_, err = ParseUUIDParam(withParam("nope"), "donationId")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))

	_, err = ParseUUIDParam(withParam(""), "donationId")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParsePagination(t *testing.T) {
	params, err := ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=10&cursor=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, 10, params.Limit)
	assert.Equal(t, "abc", params.Cursor)

	params, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, 25, params.Limit)

	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=1000", nil))
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestParseQueryHelpers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?npo_id=6f1c1b0e-8a4e-4d7f-9a52-3c0f5f1e2b11&verified=true", nil)
	id, err := ParseQueryUUID(req, "npo_id")
	require.NoError(t, err)
	require.NotNil(t, id)

	missing, err := ParseQueryUUID(req, "campaign_id")
	require.NoError(t, err)
	assert.Nil(t, missing)

	verified, err := ParseQueryBool(req, "verified")
	require.NoError(t, err)
	assert.True(t, verified)

	_, err = ParseQueryBool(httptest.NewRequest(http.MethodGet, "/?verified=maybe", nil), "verified")
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestSanitizeString(t *testing.T) {
	assert.Equal(t, "hello", SanitizeString("  hello  ", 0))
	assert.Equal(t, "hel", SanitizeString("hello", 3))
	assert.Equal(t, "Café", SanitizeString("Café Ñandú", 4))
}

func TestParseQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?limit=7", nil)
	got, err := ParseQueryInt(req, "limit", 20, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 7, got)

	got, err = ParseQueryInt(httptest.NewRequest(http.MethodGet, "/", nil), "limit", 20, 1, 200)
	require.NoError(t, err)
	assert.Equal(t, 20, got)

	for _, raw := range []string{"abc", "0", "201"} {
		_, err := ParseQueryInt(httptest.NewRequest(http.MethodGet, "/?limit="+raw, nil), "limit", 20, 1, 200)
		assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation), raw)
	}
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"amount":"1"}{"amount":"2"}`))
	var body donationBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	payload := `{"amount":"1","source_address":"` + strings.Repeat("r", maxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
	var body donationBody
	err := DecodeJSONBody(req, &body)
	require.Error(t, err)
	assert.True(t, pkgerrors.HasCode(err, pkgerrors.CodeValidation))
}
