package httpx

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atelier-garage/garage/internal/shared"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var p ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := map[int]error{
		http.StatusNotFound:            shared.NotFound("invoice", 1),
		http.StatusUnprocessableEntity: shared.Policy("only draft invoices may be modified", nil),
		http.StatusConflict:            shared.Conflict("quote already invoiced", map[string]any{"existing_invoice_id": 4}),
		http.StatusBadRequest:          shared.Validation("bad", nil),
		http.StatusServiceUnavailable:  shared.Transient("insert", errors.New("down")),
		http.StatusInternalServerError: errors.New("boom"),
	}
	for status, err := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, nil, err)
		assert.Equal(t, status, rec.Code, err.Error())
		assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}

func TestRespondErrorCarriesDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	RespondError(rec, nil, shared.Conflict("quote already invoiced", map[string]any{"existing_invoice_id": 4}))
	p := decodeProblem(t, rec)
	assert.Equal(t, shared.KindConflict, p.Kind)
	assert.EqualValues(t, 4, p.Extra["existing_invoice_id"])
	assert.Equal(t, "quote already invoiced", p.Detail)
}

func TestRespondErrorValidatorFields(t *testing.T) {
	type payload struct {
		Reason string `json:"reason" validate:"required"`
	}
	v := validator.New()
	err := v.Struct(payload{})
	require.Error(t, err)

	rec := httptest.NewRecorder()
	RespondError(rec, nil, err)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	p := decodeProblem(t, rec)
	fields, ok := p.Extra["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "required", fields["Reason"])
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	var target struct {
		Name string `json:"name"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"x","extra":1}`))
	err := DecodeJSON(httptest.NewRecorder(), req, &target)
	assert.ErrorIs(t, err, shared.ErrValidation)
}
