package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := ConfigInvalid("FIRECARBON_THIN must be positive")
	wrapped := Wrap(base, "failed to load configuration")

	assert.Equal(t, CodeConfigInvalid, GetCode(wrapped))
	assert.Equal(t, "failed to load configuration: FIRECARBON_THIN must be positive", wrapped.Error())
	assert.True(t, stderrors.Is(wrapped, base))
}

func TestWrapPlainError(t *testing.T) {
	cause := stderrors.New("disk full")
	wrapped := Wrapf(cause, "writing %s", "posterior")

	assert.Equal(t, CodeInternalError, GetCode(wrapped))
	assert.ErrorIs(t, wrapped, cause)
	assert.Nil(t, Wrap(nil, "ignored"))
	assert.Equal(t, "UNKNOWN", GetCode(cause))
}

func TestIOError(t *testing.T) {
	err := IOError("cannot open workbook", stderrors.New("permission denied"))
	assert.Equal(t, CodeIOError, GetCode(err))
	assert.Contains(t, err.Error(), "permission denied")
}
