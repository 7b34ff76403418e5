package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testRequest struct {
	Recipient string `validate:"required,min=2"`
	Amount    int64  `validate:"required,gt=0"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		err := vh.ValidateStruct(&testRequest{Recipient: "bob@example.com", Amount: 10})
		assert.NoError(t, err)
	})

	t.Run("invalid struct", func(t *testing.T) {
		err := vh.ValidateStruct(&testRequest{Recipient: "b", Amount: -1})
		require.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		require.True(t, ok)
		assert.Len(t, validationErrors, 2)
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("without validation errors", func(t *testing.T) {
		w := httptest.NewRecorder()

		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, "Something went wrong", response.Error)
		assert.Nil(t, response.Details)
	})

	t.Run("with validation errors", func(t *testing.T) {
		validationErr := NewValidationHelper().ValidateStruct(&testRequest{Recipient: "b"})

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, response.Details, "Recipient")
		assert.Contains(t, response.Details, "Amount")
	})
}

func TestSendDomainError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{domainerr.New(domainerr.CodeNotFound, "order o1 not found"), http.StatusNotFound},
		{domainerr.New(domainerr.CodeRecipientNotFound, "no account"), http.StatusNotFound},
		{domainerr.New(domainerr.CodeUnauthorized, "nope"), http.StatusForbidden},
		{domainerr.New(domainerr.CodeInvalidAmount, "bad"), http.StatusBadRequest},
		{domainerr.New(domainerr.CodeSelfTransfer, "self"), http.StatusBadRequest},
		{domainerr.New(domainerr.CodeInsufficientFunds, "poor"), http.StatusPaymentRequired},
		{domainerr.New(domainerr.CodeOutOfStock, "gone"), http.StatusConflict},
		{domainerr.New(domainerr.CodeNotPending, "done"), http.StatusConflict},
		{domainerr.New(domainerr.CodeAlreadyExists, "dup"), http.StatusConflict},
		{domainerr.New(domainerr.CodeEscrowMissing, "hold missing"), http.StatusInternalServerError},
		{errors.New("driver exploded"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		SendDomainError(w, tt.err)
		assert.Equal(t, tt.status, w.Code, "%v", tt.err)

		var response ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, string(domainerr.CodeOf(tt.err)), response.Code)
		if tt.status == http.StatusInternalServerError {
			assert.Equal(t, "Internal server error", response.Error)
		}
	}
}
