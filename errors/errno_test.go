package errors_test

import (
	stderrors "errors"
	"testing"

	simplefserrors "github.com/halvorsen/simplefs/errors"
	"github.com/stretchr/testify/assert"
)

func TestWithMessage(t *testing.T) {
	err := simplefserrors.ErrNameTooLong.WithMessage("got %d bytes", 300)
	assert.Equal(t, "file name too long: got 300 bytes", err.Error())
	assert.ErrorIs(t, err, simplefserrors.ErrNameTooLong)
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("short write")
	err := simplefserrors.ErrIOFailed.Wrap(cause)

	assert.Equal(t, "input/output error: short write", err.Error())
	assert.ErrorIs(t, err, simplefserrors.ErrIOFailed)
	assert.ErrorIs(t, err, cause)
}

func TestSentinelsComparable(t *testing.T) {
	assert.True(t, stderrors.Is(simplefserrors.ErrExists, simplefserrors.ErrExists))
	assert.False(t, stderrors.Is(simplefserrors.ErrExists, simplefserrors.ErrNotFound))
}
