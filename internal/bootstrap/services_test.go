package bootstrap

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/opsdesk-go/config"
	"github.com/target/opsdesk-go/internal/adapters/devauth"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	httpx "github.com/target/opsdesk-go/internal/http"
	mocks "github.com/target/opsdesk-go/internal/mocks/auth"
)

func devConfig() *config.AppConfig {
	return &config.AppConfig{
		Auth: config.AuthConfig{
			Mode:                  config.AuthModeMock,
			DevAuth:               config.DevAuthConfig{Accounts: "manager@acme.com:secret"},
			FallbackEnabled:       true,
			SyntheticEnabled:      true,
			LogoutOnProfileDelete: true,
		},
		Session: config.SessionConfig{SnapshotEnabled: true},
	}
}

func TestBuildServices_RequiresStorage(t *testing.T) {
	_, err := BuildServices(ServicesConfig{Config: devConfig(), Logger: discardLogger()})
	require.Error(t, err)

	_, err = BuildServices(ServicesConfig{Logger: discardLogger()})
	require.Error(t, err)
}

func TestBuildServices_LoginThroughBridge(t *testing.T) {
	store := mocks.NewMemoryProfileStore()
	store.Put(domainauth.CollectionMember, devauth.UserID("manager@acme.com"), map[string]any{
		"email": "manager@acme.com",
		"role":  "manager",
	})

	svcs, err := BuildServices(ServicesConfig{
		Config: devConfig(),
		Infra:  Infra{Store: store},
		Logger: discardLogger(),
	})
	require.NoError(t, err)
	assert.Nil(t, svcs.Metrics)
	assert.Empty(t, svcs.HealthChecks)

	handler := buildHTTPHandler(discardLogger(), httpx.RouterServices{
		Sessions: svcs.Sessions,
		Profiles: svcs.Profiles,
		Logger:   discardLogger(),
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/login",
		strings.NewReader(`{"email":"manager@acme.com","password":"secret"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domainauth.RoleManager, svcs.Sessions.Current().Role)
	assert.Equal(t, 1, store.ActiveSubscriptions())

	require.NoError(t, svcs.Sessions.Logout(context.Background()))
}

func TestRestoreSessionWithoutSnapshotsStaysIdle(t *testing.T) {
	svcs, err := BuildServices(ServicesConfig{
		Config: devConfig(),
		Infra:  Infra{Store: mocks.NewMemoryProfileStore()},
		Logger: discardLogger(),
	})
	require.NoError(t, err)

	RestoreSession(context.Background(), svcs.Sessions, discardLogger())

	assert.False(t, svcs.Sessions.IsActive())
}
