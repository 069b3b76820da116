package chaterr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStoreUnavailable_KeepsCause(t *testing.T) {
	err := StoreUnavailable("append message", context.DeadlineExceeded)

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, Retryable(err))
	assert.Contains(t, err.Error(), "append message")
}

func TestKind(t *testing.T) {
	assert.Equal(t, "", Kind(nil))
	assert.Equal(t, "validation", Kind(Validation("text is empty")))
	assert.Equal(t, "unauthorized", Kind(fmt.Errorf("send: %w", ErrUnauthorized)))
	assert.Equal(t, "not_found", Kind(NotFound("conversation")))
	assert.Equal(t, "store_unavailable", Kind(StoreUnavailable("op", errors.New("boom"))))
	assert.Equal(t, "internal", Kind(errors.New("other")))
}

func TestValidation_Message(t *testing.T) {
	err := Validation("user id %q is invalid", "")
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, `validation failed: user id "" is invalid`, err.Error())
	assert.False(t, Retryable(err))
}
