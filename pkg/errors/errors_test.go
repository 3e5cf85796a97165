package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_WrapAndUnwrap(t *testing.T) {
	cause := stderrors.New("signature mismatch")
	err := TokenInvalid(cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, IsCode(err, ErrCodeTokenInvalid))
	assert.Equal(t, http.StatusUnauthorized, err.HTTPStatusCode())

	wrapped := fmt.Errorf("verify: %w", err)
	assert.Equal(t, ErrCodeTokenInvalid, GetCode(wrapped))

	bare := TokenInvalid(nil)
	if assert.NotNil(t, bare) {
		assert.Equal(t, "[TOKEN_INVALID] invalid or expired token", bare.Error())
	}
}

func TestGetCode_PlainError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("boom")))
	assert.Nil(t, GetDetails(stderrors.New("boom")))
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationFailed, http.StatusBadRequest},
		{ErrCodeAccountBlocked, http.StatusForbidden},
		{ErrCodeDeviceLimitExceeded, http.StatusForbidden},
		{ErrCodeDeviceConflict, http.StatusConflict},
		{ErrCodeRemovalThrottled, http.StatusTooManyRequests},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		{ErrCodeTokenInvalid, http.StatusUnauthorized},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeTimeout, http.StatusServiceUnavailable},
		{ErrorCode("SOMETHING_ELSE"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestInternalWrap_Timeout(t *testing.T) {
	err := InternalWrap(context.DeadlineExceeded, "load devices")
	assert.True(t, IsCode(err, ErrCodeTimeout))

	err = InternalWrap(stderrors.New("connection reset"), "load devices")
	assert.True(t, IsCode(err, ErrCodeInternal))
}

func TestConstructors_Details(t *testing.T) {
	err := DeviceLimitExceeded(3, 2)
	assert.Equal(t, 3, err.Details["active_count"])
	assert.Equal(t, 2, err.Details["limit"])

	throttled := RemovalThrottled(42)
	assert.Equal(t, int64(42), throttled.Details["retry_after_seconds"])
}
