package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesKind(t *testing.T) {
	err := fmt.Errorf("login: %w", Errorf(KindInvalidCredentials, "fallback", "password mismatch"))

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	assert.Equal(t, KindInvalidCredentials, KindOf(err))
	assert.Contains(t, err.Error(), "fallback: invalid_credentials: password mismatch")
}

func TestWrap_KeepsExistingKind(t *testing.T) {
	inner := Errorf(KindRoleNotFound, "resolve", "bad role")
	assert.Equal(t, KindRoleNotFound, KindOf(Wrap(KindNetwork, "outer", inner)))
	assert.Equal(t, KindNetwork, KindOf(Wrap(KindNetwork, "outer", errors.New("dial tcp"))))
	assert.NoError(t, Wrap(KindNetwork, "outer", nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, KindNetwork, KindOf(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
	assert.ErrorIs(t, ErrLoginSuperseded, ErrUnknown)
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM "))
	assert.Equal(t, "bob@xn--mnchen-3ya.de", NormalizeEmail("bob@münchen.de"))
	assert.Equal(t, "not-an-email", NormalizeEmail("Not-An-Email"))
	assert.Equal(t, "alice", LocalPart("alice@example.com"))
}
