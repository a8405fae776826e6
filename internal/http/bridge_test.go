package httpx

import (
	"net/http"
	"testing"

	"github.com/target/opsdesk-go/internal/adapters/authroles"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	mocks "github.com/target/opsdesk-go/internal/mocks/auth"
	"github.com/target/opsdesk-go/internal/service"
)

type bridge struct {
	provider *mocks.MockCredentialProvider
	store    *mocks.MemoryProfileStore
	sessions *service.SessionManager
	handler  http.Handler
}

func newBridge(t *testing.T, limiter *ClientRateLimiter) *bridge {
	t.Helper()

	b := &bridge{
		provider: mocks.NewMockCredentialProvider(map[string]string{"manager@acme.com": "secret"}),
		store:    mocks.NewMemoryProfileStore(),
	}
	resolver := service.NewRoleResolver(service.RoleResolverOptions{Store: b.store, Roles: authroles.StaticRoleMapper{}})
	fallback := service.NewFallbackAuthenticator(service.FallbackAuthenticatorOptions{
		Resolver: resolver,
		Guesser:  authroles.EmailHeuristic{},
		Config:   service.FallbackConfig{AllowSynthetic: true, NewID: func() string { return "synthetic-1" }},
	})
	b.sessions = service.NewSessionManager(service.SessionManagerOptions{
		Deps: service.SessionDeps{Provider: b.provider, Resolver: resolver, Fallback: fallback},
	})
	profiles := service.NewProfileUpdateCoordinator(service.ProfileUpdateCoordinatorOptions{Sessions: b.sessions})

	b.store.Put(domainauth.CollectionMember, "uid-manager@acme.com", map[string]any{
		"email": "manager@acme.com",
		"role":  "manager",
		"name":  "Morgan",
	})
	b.handler = NewRouter(RouterServices{Sessions: b.sessions, Profiles: profiles, LoginLimiter: limiter})
	return b
}

func (b *bridge) login(t *testing.T) {
	t.Helper()
	rec := PerformJSONRequest(t, b.handler, http.MethodPost, "/auth/login",
		map[string]string{"email": "manager@acme.com", "password": "secret"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}
