package aom

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thesyncim/aom/internal/native"
	"github.com/thesyncim/aom/internal/native/nativetest"
)

func TestKindForStatus(t *testing.T) {
	tests := []struct {
		status native.Status
		kind   Kind
	}{
		{native.StatusOK, KindUnknown},
		{native.StatusError, KindNativeFailure},
		{native.StatusMemError, KindAllocationFailure},
		{native.StatusABIMismatch, KindNativeFailure},
		{native.StatusIncapable, KindUnsupportedOperation},
		{native.StatusUnsupBitstream, KindNativeFailure},
		{native.StatusUnsupFeature, KindUnsupportedOperation},
		{native.StatusCorruptFrame, KindNativeFailure},
		{native.StatusInvalidParam, KindNativeFailure},
		{native.StatusListEnd, KindNeedMoreData},
		{native.Status(42), KindNativeFailure},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			assert.Equal(t, tt.kind, kindForStatus(tt.status))
		})
	}
}

func TestError_Format(t *testing.T) {
	err := &Error{
		Op:      "Decoder.Decode",
		Kind:    KindNativeFailure,
		Code:    7,
		Message: "Corrupt frame detected",
		Detail:  "Failed to decode tile data",
	}
	assert.Equal(t, "aom.Decoder.Decode: native failure (code 7): Corrupt frame detected (Failed to decode tile data)", err.Error())

	closed := closedError("Encoder.Encode")
	assert.Equal(t, "aom.Encoder.Encode: invalid argument: handle closed", closed.Error())

	assert.Equal(t, "aom: need more data", (&Error{Kind: KindNeedMoreData}).Error())
}

func TestError_Is(t *testing.T) {
	err := fmt.Errorf("pipeline: %w", &Error{Op: "x", Kind: KindAllocationFailure, Code: 2})
	assert.ErrorIs(t, err, ErrAllocationFailure)
	assert.NotErrorIs(t, err, ErrNativeFailure)
	assert.Equal(t, KindAllocationFailure, KindOf(err))

	code, ok := NativeCode(err)
	assert.True(t, ok)
	assert.Equal(t, 2, code)

	// A specific error only matches itself.
	specific := &Error{Op: "x", Kind: KindAllocationFailure}
	assert.False(t, errors.Is(&Error{Op: "y", Kind: KindAllocationFailure}, specific))

	assert.ErrorIs(t, closedError("op"), ErrClosed)
	assert.ErrorIs(t, unavailableError("op", ErrLibraryUnavailable), ErrLibraryUnavailable)
	assert.ErrorIs(t, unavailableError("op", ErrLibraryUnavailable), ErrUnsupportedOperation)
}

func TestKindOf_Foreign(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("other")))
	assert.Equal(t, KindUnknown, KindOf(nil))
	_, ok := NativeCode(errors.New("other"))
	assert.False(t, ok)
	_, ok = NativeCode(invalidArg("op", "bad"))
	assert.False(t, ok)
	assert.False(t, IsNeedMoreData(nil))
}

func TestKind_Failure(t *testing.T) {
	assert.False(t, KindNeedMoreData.Failure())
	assert.False(t, KindUnknown.Failure())
	for _, k := range []Kind{KindInvalidArgument, KindAllocationFailure, KindUnsupportedOperation, KindNativeFailure} {
		assert.True(t, k.Failure(), k.String())
	}
}

func TestStatusError(t *testing.T) {
	fake := nativetest.New()
	assert.NoError(t, statusError(fake, 0, "op", native.StatusOK, ""))

	err := statusError(fake, 0, "op", native.StatusInvalidParam, "g_w out of range")
	var e *Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, "Invalid parameter", e.Message)
	assert.Equal(t, "g_w out of range", e.Detail)
	assert.Equal(t, 8, e.Code)
}
