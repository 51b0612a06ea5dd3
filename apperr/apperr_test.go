package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errPartyFull = Conflict("party is full")

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("invite: %w", errPartyFull)
	assert.Equal(t, KindConflict, KindOf(err))
	assert.True(t, errors.Is(err, errPartyFull))
	assert.Equal(t, "party is full", Message(err))
}

func TestSentinelDoesNotMatchOtherMessage(t *testing.T) {
	assert.False(t, errors.Is(Conflict("guild is full"), errPartyFull))
	assert.False(t, errors.Is(Validation("party is full"), errPartyFull))
}

func TestPlainErrorIsInternal(t *testing.T) {
	err := errors.New("sql: connection refused")
	assert.Equal(t, KindInternal, KindOf(err))
	assert.False(t, IsRetryable(err))
	assert.Equal(t, "internal error", Message(err))
}

func TestUnavailableIsRetryable(t *testing.T) {
	cause := errors.New("database is locked")
	err := Unavailable("trade is busy, retry", cause)
	assert.True(t, IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "trade is busy, retry", Message(err))
}

func TestInternalHidesCause(t *testing.T) {
	err := Internal("load character", errors.New("boom"))
	assert.Equal(t, "internal error", Message(err))
	assert.Equal(t, "load character: boom", err.Error())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "not_found", KindNotFound.String())
	assert.Equal(t, "internal", Kind(99).String())
}
