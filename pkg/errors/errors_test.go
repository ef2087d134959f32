package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsByCode(t *testing.T) {
	err := ErrNotFound.WithMessage("transaction tx_1 not found")

	assert.True(t, Is(err, ErrNotFound))
	assert.True(t, IsNotFound(err))
	assert.False(t, Is(err, ErrInvalidArgument))
	assert.Equal(t, "transaction tx_1 not found", FromError(err).Message)
}

func TestError_WrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("connection reset")
	err := Wrap(ErrStorageFailure, cause)

	assert.ErrorIs(t, err, cause)
	assert.True(t, Is(err, ErrStorageFailure))
	assert.NotEmpty(t, err.Stack)
	assert.True(t, err.IsInternal())
	assert.Equal(t, "storage failure", err.Message)
}

func TestError_WithDetailsCopies(t *testing.T) {
	err := ErrInvalidArgument.WithMessage("amount must be greater than 0").WithDetail("field", "amount")

	assert.Equal(t, map[string]string{"field": "amount"}, err.Details)
	assert.Nil(t, ErrInvalidArgument.Details)

	merged := err.WithDetails(map[string]string{"value": "-5"})
	assert.Len(t, merged.Details, 2)
	assert.Len(t, err.Details, 1)
}

func TestFromError_UnknownBecomesInternal(t *testing.T) {
	err := FromError(fmt.Errorf("boom"))

	assert.Equal(t, "INTERNAL_ERROR", err.Code)
	assert.True(t, err.IsInternal())
	assert.Equal(t, ErrInternal.Message, err.Message)
	assert.Equal(t, http.StatusInternalServerError, err.HTTPStatus)
	assert.Nil(t, FromError(nil))
}

func TestFromError_ServiceUnavailable(t *testing.T) {
	err := FromError(fmt.Errorf("readiness: %w", ErrServiceUnavailable.WithMessage("model bundle not loaded")))

	assert.Equal(t, http.StatusServiceUnavailable, err.HTTPStatus)
	assert.Equal(t, "model bundle not loaded", err.Message)
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(ErrConflict.WithMessage("assessment version changed")))
	assert.False(t, IsConflict(ErrNotFound))
	assert.True(t, IsInvalidArgument(ErrInvalidArgument))
}
