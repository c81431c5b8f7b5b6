package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppErrorMessage(t *testing.T) {
	err := Validation("account number is required")
	assert.Equal(t, "validation: account number is required", err.Error())

	wrapped := External("payagent", stderrors.New("connection refused"))
	assert.Contains(t, wrapped.Error(), "external service payagent failed")
	assert.Contains(t, wrapped.Error(), "connection refused")
}

func TestTypeHelpersFollowWrapping(t *testing.T) {
	base := Unauthorized("session expired")
	wrapped := fmt.Errorf("approve t1: %w", base)

	assert.True(t, IsUnauthorized(wrapped))
	assert.False(t, IsValidation(wrapped))
	assert.Equal(t, ErrorTypeUnauthorized, TypeOf(wrapped))
	assert.Equal(t, ErrorType(""), TypeOf(stderrors.New("plain")))
	assert.False(t, IsUnauthorized(nil))
}

func TestStatusCode(t *testing.T) {
	err := External("payagent", stderrors.New("API error: 503")).WithContext("status_code", 503)
	assert.Equal(t, 503, StatusCode(fmt.Errorf("refresh: %w", err)))
	assert.Equal(t, 0, StatusCode(Validation("x")))
}
