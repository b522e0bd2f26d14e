package tradeerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsKind(t *testing.T) {
	err := New(ErrRejected, "placeOrder", "insufficient funds")
	wrapped := fmt.Errorf("batch: %w", err)

	assert.True(t, errors.Is(wrapped, ErrRejected))
	assert.False(t, errors.Is(wrapped, ErrAuth))
	assert.Equal(t, ErrRejected, KindOf(wrapped))
}

func TestErrorUnwrapsCause(t *testing.T) {
	err := Wrap(ErrNetwork, "getQuotes", context.DeadlineExceeded)

	assert.True(t, errors.Is(err, ErrNetwork))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, Retryable(err))
}

func TestErrorMessage(t *testing.T) {
	err := New(ErrAuth, "createSession", "invalid checksum")
	_ = WithBroker(err, "zerodha")

	assert.Equal(t, "zerodha: createSession: auth error: invalid checksum", err.Error())
}

func TestKindOfPlainError(t *testing.T) {
	assert.Nil(t, KindOf(errors.New("boom")))
	assert.False(t, Retryable(New(ErrValidation, "", "bad")))
}
