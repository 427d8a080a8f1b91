package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindDuplicateAccount, KindOf(New(KindDuplicateAccount, "User already registered")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, KindInternal, KindOf(nil))

	// Kind survives further wrapping with %w.
	wrapped := fmt.Errorf("context: %w", New(KindExpiredToken, "Token is expired"))
	assert.Equal(t, KindExpiredToken, KindOf(wrapped))
	assert.True(t, Is(wrapped, KindExpiredToken))
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "Token is expired", MessageOf(New(KindExpiredToken, "Token is expired")))
	assert.Equal(t, "Internal Error", MessageOf(errors.New("database exploded at 10.0.0.3")))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindInternal, "Internal Error", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "internal")
	assert.Contains(t, err.Error(), "boom")
}
