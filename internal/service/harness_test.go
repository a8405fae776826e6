package service

import (
	"testing"

	"github.com/target/opsdesk-go/internal/adapters/authroles"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	mocks "github.com/target/opsdesk-go/internal/mocks/auth"
)

const (
	member = domainauth.CollectionMember
	client = domainauth.CollectionClient
)

type authHarness struct {
	provider  *mocks.MockCredentialProvider
	store     *mocks.MemoryProfileStore
	snapshots *mocks.MemorySnapshotStore
	resolver  *RoleResolver
	fallback  *FallbackAuthenticator
	sessions  *SessionManager
}

type harnessConfig struct {
	noFallback bool
	fallback   FallbackConfig
	session    SessionConfig
}

type harnessOption func(*harnessConfig)

func withoutFallback() harnessOption {
	return func(c *harnessConfig) { c.noFallback = true }
}

func withoutSynthetic() harnessOption {
	return func(c *harnessConfig) { c.fallback.AllowSynthetic = false }
}

func keepSessionOnDelete() harnessOption {
	return func(c *harnessConfig) { c.session.KeepSessionOnDelete = true }
}

func newAuthHarness(t *testing.T, opts ...harnessOption) *authHarness {
	t.Helper()

	cfg := harnessConfig{
		fallback: FallbackConfig{AllowSynthetic: true, NewID: func() string { return "synthetic-1" }},
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	h := &authHarness{
		provider:  mocks.NewMockCredentialProvider(nil),
		store:     mocks.NewMemoryProfileStore(),
		snapshots: mocks.NewMemorySnapshotStore(),
	}
	h.resolver = NewRoleResolver(RoleResolverOptions{Store: h.store, Roles: authroles.StaticRoleMapper{}})
	h.fallback = NewFallbackAuthenticator(FallbackAuthenticatorOptions{
		Resolver: h.resolver,
		Guesser:  authroles.EmailHeuristic{},
		Config:   cfg.fallback,
	})

	deps := SessionDeps{Provider: h.provider, Resolver: h.resolver, Snapshots: h.snapshots}
	if !cfg.noFallback {
		deps.Fallback = h.fallback
	}
	h.sessions = NewSessionManager(SessionManagerOptions{Deps: deps, Config: cfg.session})
	return h
}

func networkErr(op string) error {
	return domainauth.Errorf(domainauth.KindNetwork, op, "connection reset")
}
