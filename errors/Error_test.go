package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewError(t *testing.T) {
	t.Run("plain message", func(t *testing.T) {
		err := New(ERR_BLOCK_INVALID, "bad header")
		require.NotNil(t, err)
		assert.Equal(t, ERR_BLOCK_INVALID, err.Code())
		assert.Equal(t, "bad header", err.Message())
		assert.Nil(t, err.WrappedErr())
	})

	t.Run("formatted message", func(t *testing.T) {
		err := New(ERR_BLOCK_INVALID, "bad height %d", 42)
		assert.Equal(t, "bad height 42", err.Message())
	})

	t.Run("trailing error is wrapped", func(t *testing.T) {
		inner := fmt.Errorf("disk on fire")
		err := New(ERR_STORAGE, "write failed at height %d", 7, inner)
		assert.Equal(t, "write failed at height 7", err.Message())
		assert.Equal(t, inner, err.WrappedErr())
		assert.Equal(t, inner, Unwrap(err))
	})
}

func TestErrorIs(t *testing.T) {
	t.Run("matches on code", func(t *testing.T) {
		err := NewProofInvalidError("tx 0 proof rejected")
		assert.True(t, Is(err, ErrProofInvalid))
		assert.False(t, Is(err, ErrBlockInvalid))
	})

	t.Run("matches through wrapping", func(t *testing.T) {
		inner := NewInvalidRemovalError("index already set")
		outer := New(ERR_BLOCK_INVALID, "tx 3 rejected", inner)
		assert.True(t, Is(outer, ErrBlockInvalid))
		assert.True(t, Is(outer, ErrInvalidRemoval))
	})

	t.Run("nil receiver", func(t *testing.T) {
		var err *Error
		assert.False(t, err.Is(ErrUnknown))
		assert.Equal(t, "<nil>", err.Error())
		assert.Equal(t, ERR_UNKNOWN, err.Code())
	})
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ERR_REORG_TOO_DEEP, CodeOf(NewReorgTooDeepError("depth 101 > 100")))
	assert.Equal(t, ERR_UNKNOWN, CodeOf(fmt.Errorf("opaque")))

	wrapped := fmt.Errorf("outer: %w", NewCorruptStateError("replay diverged"))
	assert.Equal(t, ERR_CORRUPT_STATE, CodeOf(wrapped))
}

func TestErrorString(t *testing.T) {
	err := New(ERR_ROOT_MISMATCH, "computed root differs")
	assert.Contains(t, err.Error(), "ERR_ROOT_MISMATCH")
	assert.Contains(t, err.Error(), "computed root differs")
}
