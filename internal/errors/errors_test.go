package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError(t *testing.T) {
	t.Run("Error returns formatted string", func(t *testing.T) {
		err := New(ErrCodeNotFound, "Companion not found")
		assert.Equal(t, "NOT_FOUND: Companion not found", err.Error())
	})

	t.Run("Error with cause includes cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Wrap(ErrCodeDatabase, "Database error", cause)
		assert.Contains(t, err.Error(), "DATABASE_ERROR")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("WithCause adds cause to error", func(t *testing.T) {
		cause := errors.New("original error")
		err := New(ErrCodeInternal, "Something went wrong").WithCause(cause)
		assert.Equal(t, cause, err.Unwrap())
	})

	t.Run("WithDetails adds details to error", func(t *testing.T) {
		details := map[string]string{"field": "text"}
		err := New(ErrCodeValidation, "Validation failed").WithDetails(details)
		assert.Equal(t, details, err.Details)
	})
}

func TestErrorConstructors(t *testing.T) {
	tests := []struct {
		name         string
		constructor  func() *AppError
		expectedCode ErrorCode
	}{
		{"Unauthorized", func() *AppError { return Unauthorized("test") }, ErrCodeUnauthorized},
		{"LoginRequired", func() *AppError { return LoginRequired() }, ErrCodeLoginRequired},
		{"InvalidToken", func() *AppError { return InvalidToken("test") }, ErrCodeInvalidToken},
		{"NotFound", func() *AppError { return NotFound("Companion") }, ErrCodeNotFound},
		{"Conflict", func() *AppError { return Conflict("test") }, ErrCodeConflict},
		{"ValidationError", func() *AppError { return ValidationError("test") }, ErrCodeValidation},
		{"MessageTooLong", func() *AppError { return MessageTooLong(2000) }, ErrCodeMessageTooLong},
		{"MissingRequired", func() *AppError { return MissingRequired("text") }, ErrCodeMissingRequired},
		{"RateLimitExceeded", func() *AppError { return RateLimitExceeded() }, ErrCodeRateLimitExceeded},
		{"Unavailable", func() *AppError { return Unavailable("voice input") }, ErrCodeUnavailable},
		{"Internal", func() *AppError { return Internal("test") }, ErrCodeInternal},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.constructor()
			assert.Equal(t, tc.expectedCode, err.Code)
			assert.NotEmpty(t, err.Message)
		})
	}
}

func TestIsValidation(t *testing.T) {
	assert.True(t, ValidationError("empty").IsValidation())
	assert.True(t, MessageTooLong(10).IsValidation())
	assert.True(t, RateLimitExceeded().IsValidation())
	assert.False(t, LoginRequired().IsValidation())
	assert.False(t, External("gateway", errors.New("timeout")).IsValidation())
}

func TestExternal(t *testing.T) {
	cause := errors.New("timeout")
	err := External("AI gateway", cause)
	assert.Equal(t, ErrCodeExternal, err.Code)
	assert.Contains(t, err.Message, "AI gateway")
	assert.Equal(t, cause, err.Unwrap())
}

func TestAsAppError(t *testing.T) {
	t.Run("extracts wrapped AppError", func(t *testing.T) {
		original := NotFound("Companion")
		wrapped := fmt.Errorf("open conversation: %w", original)
		extracted, ok := AsAppError(wrapped)
		assert.True(t, ok)
		assert.Equal(t, original, extracted)
		assert.True(t, HasCode(wrapped, ErrCodeNotFound))
	})

	t.Run("returns false for non-AppError", func(t *testing.T) {
		extracted, ok := AsAppError(errors.New("standard error"))
		assert.False(t, ok)
		assert.Nil(t, extracted)
		assert.Equal(t, ErrCodeInternal, GetCode(errors.New("standard error")))
	})
}
