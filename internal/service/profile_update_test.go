package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	apperrors "github.com/target/opsdesk-go/internal/errors"
)

func strPtr(s string) *string { return &s }

func TestProfileUpdateCoordinator_ClientOnlyRecord(t *testing.T) {
	h := newAuthHarness(t)
	h.store.Put(client, "c-1", map[string]any{"email": "cl@acme.com", "role": "client", "clientName": "Old"})
	_, err := h.sessions.Login(context.Background(), "cl@acme.com", "")
	require.NoError(t, err)

	coord := NewProfileUpdateCoordinator(ProfileUpdateCoordinatorOptions{Sessions: h.sessions})
	id, err := coord.UpdateProfile(context.Background(), ProfileUpdate{Name: strPtr(" New Name "), Phone: strPtr("555-0101")})
	require.NoError(t, err)
	assert.Equal(t, "New Name", id.DisplayName)
	assert.Equal(t, "555-0101", id.Phone)

	doc, ok := h.store.Doc(client, "c-1")
	require.True(t, ok)
	for _, k := range domainauth.DisplayNameWriteKeys {
		assert.Equal(t, "New Name", doc[k], k)
	}
	assert.Equal(t, "555-0101", doc["phone"])
	assert.Equal(t, "555-0101", doc["phoneNumber"])

	_, inMember := h.store.Doc(member, "c-1")
	assert.False(t, inMember)

	// Record sessions never touch the provider.
	assert.Empty(t, h.provider.NameUpdates())
	assert.Equal(t, "New Name", h.sessions.Current().DisplayName)
}

func TestProfileUpdateCoordinator_ProviderSession(t *testing.T) {
	h := newAuthHarness(t)
	h.provider.Accounts["ann@acme.com"] = "pw"
	h.provider.UIDs["ann@acme.com"] = "rec-ann"
	h.store.Put(member, "rec-ann", map[string]any{"email": "ann@acme.com", "role": "admin"})
	_, err := h.sessions.Login(context.Background(), "ann@acme.com", "pw")
	require.NoError(t, err)

	coord := NewProfileUpdateCoordinator(ProfileUpdateCoordinatorOptions{Sessions: h.sessions})
	id, err := coord.UpdateProfile(context.Background(), ProfileUpdate{Email: strPtr("Ann.New@Acme.com"), Name: strPtr("Ann")})
	require.NoError(t, err)
	assert.Equal(t, "ann.new@acme.com", id.Email)
	assert.Equal(t, []string{"ann.new@acme.com"}, h.provider.EmailUpdates())
	assert.Equal(t, []string{"Ann"}, h.provider.NameUpdates())

	doc, _ := h.store.Doc(member, "rec-ann")
	assert.Equal(t, "ann.new@acme.com", doc["email"])
}

func TestProfileUpdateCoordinator_FirstErrorWinsButAllStepsRun(t *testing.T) {
	h := newAuthHarness(t)
	h.provider.Accounts["ann@acme.com"] = "pw"
	h.provider.UIDs["ann@acme.com"] = "rec-ann"
	h.store.Put(client, "rec-ann", map[string]any{"email": "ann@acme.com", "role": "client"})
	_, err := h.sessions.Login(context.Background(), "ann@acme.com", "pw")
	require.NoError(t, err)

	emailErr := errors.New("email change rejected")
	h.provider.UpdateEmailFunc = func(context.Context, string) error { return emailErr }
	h.provider.UpdateDisplayNameFunc = func(context.Context, string) error { return errors.New("second failure") }
	h.store.Err[member] = networkErr("merge")

	coord := NewProfileUpdateCoordinator(ProfileUpdateCoordinatorOptions{Sessions: h.sessions})
	_, err = coord.UpdateProfile(context.Background(), ProfileUpdate{Email: strPtr("x@acme.com"), Name: strPtr("X")})
	require.Error(t, err)
	assert.ErrorIs(t, err, emailErr)

	// Later steps still ran.
	assert.Len(t, h.provider.NameUpdates(), 1)
	doc, _ := h.store.Doc(client, "rec-ann")
	assert.Equal(t, "X", doc["name"])

	// Session fields are not refreshed on failure.
	assert.Equal(t, "ann@acme.com", h.sessions.Current().Email)
}

func TestProfileUpdateCoordinator_Validation(t *testing.T) {
	h := newAuthHarness(t)
	coord := NewProfileUpdateCoordinator(ProfileUpdateCoordinatorOptions{Sessions: h.sessions})

	_, err := coord.UpdateProfile(context.Background(), ProfileUpdate{Email: strPtr("not an email")})
	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))
	assert.Equal(t, "email", apperrors.GetField(err))

	_, err = coord.UpdateProfile(context.Background(), ProfileUpdate{Name: strPtr("   ")})
	assert.Equal(t, "name", apperrors.GetField(err))

	_, err = coord.UpdateProfile(context.Background(), ProfileUpdate{Name: strPtr("ok")})
	assert.ErrorIs(t, err, domainauth.ErrNotAuthenticated)
}

func TestProfileUpdateCoordinator_SyntheticIdentityIsNoop(t *testing.T) {
	h := newAuthHarness(t)
	_, err := h.sessions.Login(context.Background(), "alice@x.com", "pw")
	require.NoError(t, err)

	coord := NewProfileUpdateCoordinator(ProfileUpdateCoordinatorOptions{Sessions: h.sessions})
	id, err := coord.UpdateProfile(context.Background(), ProfileUpdate{Name: strPtr("Alice")})
	require.NoError(t, err)
	assert.Equal(t, "Alice", id.DisplayName)
}
