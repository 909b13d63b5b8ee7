package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorCode_HTTPStatus(t *testing.T) {
	tests := []struct {
		code     ErrorCode
		expected int
	}{
		{ErrCodeInvalidConfig, http.StatusBadRequest},
		{ErrCodeInvalidEnvironment, http.StatusBadRequest},
		{ErrCodeInvalidArgument, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeRateLimitExceeded, http.StatusTooManyRequests},
		{ErrCodeServiceUnavailable, http.StatusServiceUnavailable},
		{ErrCodeEmbeddingFailed, http.StatusInternalServerError},
		{ErrCodeGenerationFailed, http.StatusInternalServerError},
		{ErrCodeTimeout, http.StatusInternalServerError},
		{ErrCodeStoreFailed, http.StatusInternalServerError},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.code.HTTPStatus(), string(tt.code))
	}
}

func TestAIError(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := Wrap(cause, ErrCodeStoreFailed, "failed to load user").WithContext("username", "ada")

	assert.Equal(t, "[STORE_FAILED] failed to load user: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "ada", err.Context["username"])

	assert.Equal(t, "[NOT_FOUND] User bob not found", NotFound("User bob not found").Error())
	assert.Equal(t, "Invalid environment: staging", InvalidEnvironment("staging").Message)
}

func TestIsCode(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", Timeout("generation timed out", nil))

	assert.True(t, IsCode(wrapped, ErrCodeTimeout))
	assert.False(t, IsCode(wrapped, ErrCodeGenerationFailed))
	assert.False(t, IsCode(stderrors.New("plain"), ErrCodeTimeout))

	assert.Equal(t, ErrCodeTimeout, GetCodeFromError(wrapped, ErrCodeInternal))
	assert.Equal(t, ErrCodeInternal, GetCodeFromError(stderrors.New("plain"), ErrCodeInternal))
}

func TestGenericMessage(t *testing.T) {
	assert.Equal(t, "Internal Server Error", ErrCodeGenerationFailed.GenericMessage())
	assert.Equal(t, "Not found", ErrCodeNotFound.GenericMessage())
	assert.Equal(t, "Unauthorized", ErrCodeUnauthorized.GenericMessage())
}
