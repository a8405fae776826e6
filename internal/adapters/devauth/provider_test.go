package devauth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
)

func TestProvider_SignInAndSignOut(t *testing.T) {
	prov, err := NewProvider(Config{Accounts: map[string]string{"Dev@Example.com": "pw"}})
	require.NoError(t, err)

	sess, err := prov.SignIn(context.Background(), "dev@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, UserID("dev@example.com"), sess.UserID)
	assert.Equal(t, "dev@example.com", sess.Email)

	md, err := prov.Metadata(context.Background())
	require.NoError(t, err)
	assert.False(t, md.LastSignInAt.IsZero())

	require.NoError(t, prov.SignOut(context.Background()))
	_, err = prov.Metadata(context.Background())
	assert.ErrorIs(t, err, domainauth.ErrNoProviderSession)
}

func TestProvider_SignInErrors(t *testing.T) {
	prov, err := NewProvider(Config{Accounts: map[string]string{"dev@example.com": "pw"}})
	require.NoError(t, err)

	_, err = prov.SignIn(context.Background(), "nobody@example.com", "pw")
	assert.ErrorIs(t, err, domainauth.ErrUserNotFound)

	_, err = prov.SignIn(context.Background(), "dev@example.com", "wrong")
	assert.ErrorIs(t, err, domainauth.ErrInvalidCredentials)
}

func TestProvider_SignUp(t *testing.T) {
	prov, err := NewProvider(Config{AllowSignUp: true})
	require.NoError(t, err)

	sess, err := prov.SignUp(context.Background(), "new@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, UserID("new@example.com"), sess.UserID)

	_, err = prov.SignUp(context.Background(), "new@example.com", "pw")
	assert.Error(t, err)

	require.NoError(t, prov.UpdateEmail(context.Background(), "renamed@example.com"))
	require.NoError(t, prov.UpdateDisplayName(context.Background(), "Renamed"))
	sess, err = prov.SignIn(context.Background(), "renamed@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", sess.DisplayName)
	assert.Equal(t, UserID("new@example.com"), sess.UserID, "user id survives an email change")
}

func TestNewProvider_Validation(t *testing.T) {
	_, err := NewProvider(Config{})
	require.Error(t, err)

	_, err = NewProvider(Config{Accounts: map[string]string{"dev@example.com": ""}})
	require.Error(t, err)
}

func TestParseAccounts(t *testing.T) {
	got, err := ParseAccounts(" a@x.com:pw1 , b@x.com:p:w2,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a@x.com": "pw1", "b@x.com": "p:w2"}, got)

	_, err = ParseAccounts("missing-colon")
	assert.Error(t, err)
}
