package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ClassificationFollowsCode(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		retryable bool
	}{
		{CodeNetwork, true},
		{CodeTimeout, true},
		{CodeRateLimit, true},
		{CodeUnavailable, true},
		{CodeCorruptObject, true},
		{CodeNotFound, false},
		{CodeCanceled, false},
		{CodeInvalidInput, false},
		{CodeExecutionFailed, false},
		{ErrorCode("SOMETHING_NEW"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			err := New(tt.code, "boom")
			assert.Equal(t, tt.code, err.Code())
			assert.Equal(t, tt.retryable, IsRetryable(err))
		})
	}
}

func TestError_Format(t *testing.T) {
	err := New(CodeNotFound, "object not found")
	assert.Equal(t, "[NOT_FOUND] object not found", err.Error())

	wrapped := Wrap(stderrors.New("connection reset"), CodeNetwork, "download failed")
	assert.Equal(t, "[NETWORK_ERROR] download failed: connection reset", wrapped.Error())
}

func TestWrap_PreservesInnerClassification(t *testing.T) {
	inner := New(CodeUnavailable, "cache server unavailable")
	outer := Wrap(inner, CodeInternal, "fetch failed")

	assert.Equal(t, CodeInternal, outer.Code())
	assert.True(t, IsRetryable(outer))
	assert.True(t, Is(outer, inner))
}

func TestWrap_Nil(t *testing.T) {
	assert.Nil(t, Wrap(nil, CodeInternal, "nothing"))
	assert.Nil(t, Wrapf(nil, CodeInternal, "nothing %d", 1))
	assert.Nil(t, WithContext(nil, "k", "v"))
	assert.Nil(t, WithClassification(nil, ClassificationRetryable))
}

func TestWithContext(t *testing.T) {
	err := New(CodeNotFound, "missing")
	withID := WithContext(err, "object_id", "deadbeef")

	assert.Equal(t, CodeNotFound, withID.Code())
	assert.Equal(t, map[string]interface{}{"object_id": "deadbeef"}, withID.Context())
	assert.Nil(t, err.Context(), "original must not be mutated")

	plain := WithContext(stderrors.New("plain"), "k", 1)
	assert.Equal(t, CodeUnknown, plain.Code())
}

func TestWithClassification(t *testing.T) {
	err := WithClassification(New(CodeNotFound, "missing"), ClassificationRetryable)
	assert.Equal(t, CodeNotFound, err.Code())
	assert.True(t, IsRetryable(err))
}

func TestGetCode_NonPlatform(t *testing.T) {
	assert.Equal(t, CodeUnknown, GetCode(nil))
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("x")))
	assert.Equal(t, CodeTimeout, GetCode(fmt.Errorf("ctx: %w", New(CodeTimeout, "slow"))))
}

func TestIsNotFound_SearchesChain(t *testing.T) {
	inner := New(CodeNotFound, "404")
	outer := Wrap(inner, CodeInternal, "download failed")

	assert.True(t, IsNotFound(inner))
	assert.True(t, IsNotFound(outer))
	assert.False(t, IsNotFound(New(CodeNetwork, "reset")))
	assert.False(t, IsNotFound(nil))
}

func TestFromContext(t *testing.T) {
	assert.Nil(t, FromContext(nil))

	canceled := FromContext(context.Canceled)
	assert.Equal(t, CodeCanceled, canceled.Code())
	assert.True(t, IsCanceled(canceled))
	assert.False(t, IsRetryable(canceled))

	deadline := FromContext(context.DeadlineExceeded)
	assert.Equal(t, CodeTimeout, deadline.Code())
	assert.True(t, stderrors.Is(deadline, context.DeadlineExceeded))
}

func TestToJSON(t *testing.T) {
	assert.Nil(t, ToJSON(nil))

	resp := ToJSON(WithContext(New(CodeInvalidInput, "bad task"), "task", "defrag"))
	require.NotNil(t, resp)
	assert.Equal(t, "INVALID_INPUT", resp.Code)
	assert.Equal(t, "bad task", resp.Message)
	assert.Equal(t, "PERMANENT", resp.Classification)
	assert.Equal(t, "defrag", resp.Context["task"])

	plain := ToJSON(stderrors.New("plain"))
	assert.Equal(t, "UNKNOWN", plain.Code)
	assert.Equal(t, "plain", plain.Message)
}
