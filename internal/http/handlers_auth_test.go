package httpx

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
)

func TestAuthHandlers_LoginActivatesSession(t *testing.T) {
	b := newBridge(t, nil)

	rec := PerformJSONRequest(t, b.handler, http.MethodPost, "/auth/login",
		map[string]string{"email": "manager@acme.com", "password": "secret"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp sessionResponse
	DecodeBody(t, rec, &resp)
	assert.True(t, resp.Active)
	assert.Equal(t, domainauth.StateActive, resp.State)
	require.NotNil(t, resp.Identity)
	assert.Equal(t, domainauth.RoleManager, resp.Identity.Role)
	assert.Equal(t, "Morgan", resp.Identity.DisplayName)
	assert.Equal(t, domainauth.SourceProvider, resp.Identity.Source)
}

func TestAuthHandlers_LoginFailureIsGeneric(t *testing.T) {
	tests := []struct {
		name string
		body map[string]string
		seed func(b *bridge)
	}{
		{
			name: "wrong password everywhere",
			body: map[string]string{"email": "staff@acme.com", "password": "nope"},
			seed: func(b *bridge) {
				b.store.Put(domainauth.CollectionMember, "staff-1", map[string]any{
					"email": "staff@acme.com", "role": "member", "password": "right",
				})
			},
		},
		{
			name: "unrecognized role",
			body: map[string]string{"email": "odd@acme.com", "password": "pw"},
			seed: func(b *bridge) {
				b.store.Put(domainauth.CollectionClient, "odd-1", map[string]any{
					"email": "odd@acme.com", "role": "wizard",
				})
			},
		},
		{
			name: "missing password",
			body: map[string]string{"email": "manager@acme.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newBridge(t, nil)
			if tt.seed != nil {
				tt.seed(b)
			}

			rec := PerformJSONRequest(t, b.handler, http.MethodPost, "/auth/login", tt.body)
			require.Equal(t, http.StatusUnauthorized, rec.Code)

			var body map[string]string
			DecodeBody(t, rec, &body)
			assert.Equal(t, map[string]string{"error": "login_failed", "message": "login failed"}, body)
			assert.False(t, b.sessions.IsActive())
		})
	}
}

func TestAuthHandlers_LoginRejectsUnknownFields(t *testing.T) {
	b := newBridge(t, nil)

	rec := PerformJSONRequest(t, b.handler, http.MethodPost, "/auth/login",
		map[string]string{"email": "manager@acme.com", "password": "secret", "otp": "123"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_json")
}

func TestAuthHandlers_SessionAndLogout(t *testing.T) {
	b := newBridge(t, nil)

	rec := PerformJSONRequest(t, b.handler, http.MethodGet, "/auth/session", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionResponse
	DecodeBody(t, rec, &resp)
	assert.False(t, resp.Active)
	assert.Nil(t, resp.Identity)
	assert.Equal(t, domainauth.StateIdle, resp.State)

	b.login(t)

	rec = PerformJSONRequest(t, b.handler, http.MethodPost, "/auth/logout", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, b.sessions.IsActive())
	assert.False(t, b.provider.SignedIn())
	assert.Zero(t, b.store.ActiveSubscriptions())
}

func TestAuthHandlers_Register(t *testing.T) {
	b := newBridge(t, nil)

	rec := PerformJSONRequest(t, b.handler, http.MethodPost, "/auth/register", map[string]string{
		"email":        "New.Client@Acme.com",
		"password":     "pw",
		"display_name": "Nia",
		"collection":   string(domainauth.CollectionClient),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp sessionResponse
	DecodeBody(t, rec, &resp)
	require.NotNil(t, resp.Identity)
	assert.Equal(t, domainauth.RoleClient, resp.Identity.Role)
	assert.Equal(t, "new.client@acme.com", resp.Identity.Email)

	doc, ok := b.store.Doc(domainauth.CollectionClient, "uid-new.client@acme.com")
	require.True(t, ok)
	assert.Equal(t, "Nia", doc["clientName"])
}

func TestAuthHandlers_RegisterValidation(t *testing.T) {
	b := newBridge(t, nil)

	rec := PerformJSONRequest(t, b.handler, http.MethodPost, "/auth/register", map[string]string{
		"email":      "someone@acme.com",
		"password":   "pw",
		"collection": "staff-records",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	DecodeBody(t, rec, &body)
	assert.Equal(t, "validation", body["error"])
	assert.Equal(t, "collection", body["field"])
}

func TestAuthHandlers_RequireSession(t *testing.T) {
	b := newBridge(t, nil)

	rec := PerformJSONRequest(t, b.handler, http.MethodGet, "/auth/metadata", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = PerformJSONRequest(t, b.handler, http.MethodPatch, "/auth/profile", map[string]string{"name": "X"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthHandlers_Metadata(t *testing.T) {
	b := newBridge(t, nil)
	b.login(t)

	rec := PerformJSONRequest(t, b.handler, http.MethodGet, "/auth/metadata", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var md domainauth.Metadata
	DecodeBody(t, rec, &md)
	assert.False(t, md.CreatedAt.IsZero())
}

func TestAuthHandlers_MetadataSyntheticSession(t *testing.T) {
	b := newBridge(t, nil)

	rec := PerformJSONRequest(t, b.handler, http.MethodPost, "/auth/login",
		map[string]string{"email": "walkin@acme.com", "password": "anything"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = PerformJSONRequest(t, b.handler, http.MethodGet, "/auth/metadata", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "no_provider_session")
}

func TestAuthHandlers_UpdateProfile(t *testing.T) {
	b := newBridge(t, nil)
	b.login(t)

	rec := PerformJSONRequest(t, b.handler, http.MethodPatch, "/auth/profile", map[string]string{"name": "Morgan Lee"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp sessionResponse
	DecodeBody(t, rec, &resp)
	require.NotNil(t, resp.Identity)
	assert.Equal(t, "Morgan Lee", resp.Identity.DisplayName)
	assert.Equal(t, []string{"Morgan Lee"}, b.provider.NameUpdates())

	doc, ok := b.store.Doc(domainauth.CollectionMember, "uid-manager@acme.com")
	require.True(t, ok)
	assert.Equal(t, "Morgan Lee", doc["name"])
}

func TestAuthHandlers_UpdateProfileValidation(t *testing.T) {
	b := newBridge(t, nil)
	b.login(t)

	rec := PerformJSONRequest(t, b.handler, http.MethodPatch, "/auth/profile", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = PerformJSONRequest(t, b.handler, http.MethodPatch, "/auth/profile", map[string]string{"email": "not-an-email"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]string
	DecodeBody(t, rec, &body)
	assert.Equal(t, "email", body["field"])
}
