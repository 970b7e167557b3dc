package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapsSentinels(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("%w: product 4", ErrNotFound):      http.StatusNotFound,
		fmt.Errorf("%w: username taken", ErrDuplicate): http.StatusConflict,
		fmt.Errorf("%w: amount", ErrValidation):        http.StatusBadRequest,
		ErrUnauthorized:                                http.StatusUnauthorized,
		ErrForbidden:                                   http.StatusForbidden,
		fmt.Errorf("%w: gotenberg", ErrUpstream):       http.StatusBadGateway,
		fmt.Errorf("boom"):                             http.StatusInternalServerError,
	}
	for err, status := range cases {
		rr := httptest.NewRecorder()
		RespondError(rr, err)
		require.Equal(t, status, rr.Code, err.Error())

		var body ProblemDetail
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
		require.Equal(t, status, body.Status)
		require.Equal(t, err.Error(), body.Detail)
	}
}

func TestValidateWrapsFieldErrors(t *testing.T) {
	type form struct {
		Name string `validate:"required"`
		Qty  int    `validate:"gt=0"`
	}
	err := Validate(validator.New(), form{})
	require.ErrorIs(t, err, ErrValidation)
	require.Contains(t, err.Error(), "Name (required)")
	require.Contains(t, err.Error(), "Qty (gt)")

	require.NoError(t, Validate(validator.New(), form{Name: "ok", Qty: 1}))
}

func TestQueryDateEndOfDay(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?to=2024-03-01", nil)
	got, err := QueryDate(req, "to", true)
	require.NoError(t, err)
	require.Equal(t, 23, got.Hour())
	require.Equal(t, 1, got.Day())

	req = httptest.NewRequest(http.MethodGet, "/?to=nope", nil)
	_, err = QueryDate(req, "to", false)
	require.ErrorIs(t, err, ErrValidation)
}

func TestFitsMoney(t *testing.T) {
	for raw, want := range map[string]bool{
		"12":     true,
		"12.5":   true,
		"12.500": true,
		"0.005":  false,
		"-1.999": false,
	} {
		require.Equal(t, want, FitsMoney(decimal.RequireFromString(raw)), raw)
	}
}
