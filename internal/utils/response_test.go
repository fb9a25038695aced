package utils

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"ms-raffle/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteDomainError(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, models.NewBusinessRuleError(models.ReasonSoldOut, "only 0 tickets available"))

	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "SOLD_OUT", resp.Reason)
	assert.Equal(t, "business_rule", resp.Message)
}

func TestWriteDomainError_Wrapped(t *testing.T) {
	rec := httptest.NewRecorder()
	inner := models.NewValidationError(models.ReasonInvalidQuantity, "quantity must be greater than zero")
	WriteDomainError(rec, errors.Join(errors.New("reserve"), inner))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWriteDomainError_Unknown(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteDomainError(rec, errors.New("connection refused"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestWriteSuccess(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteSuccess(rec, http.StatusCreated, "created", map[string]int{"n": 1})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
}
