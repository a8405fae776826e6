package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	portmocks "github.com/target/opsdesk-go/internal/mocks"
	fakes "github.com/target/opsdesk-go/internal/mocks/auth"
	"github.com/target/opsdesk-go/internal/ports"
	"go.uber.org/mock/gomock"
)

func newMockedSessions(t *testing.T) (*SessionManager, *portmocks.MockCredentialProvider, *portmocks.MockRoleMapper, *fakes.MemoryProfileStore) {
	t.Helper()

	ctrl := gomock.NewController(t)
	provider := portmocks.NewMockCredentialProvider(ctrl)
	roles := portmocks.NewMockRoleMapper(ctrl)
	store := fakes.NewMemoryProfileStore()

	resolver := NewRoleResolver(RoleResolverOptions{Store: store, Roles: roles})
	sessions := NewSessionManager(SessionManagerOptions{
		Deps: SessionDeps{Provider: provider, Resolver: resolver},
	})
	return sessions, provider, roles, store
}

func TestSessionManager_Calls_ProviderRejectionSkipsResolution(t *testing.T) {
	sessions, provider, _, _ := newMockedSessions(t)

	provider.EXPECT().
		SignIn(gomock.Any(), "ann@acme.com", "wrong").
		Return(ports.ProviderSession{}, domainauth.ErrInvalidCredentials).
		Times(1)

	id, err := sessions.Login(context.Background(), "Ann@Acme.com", "wrong")
	require.Error(t, err)
	assert.True(t, id.IsZero())
	assert.Equal(t, domainauth.StateIdle, sessions.State())
}

func TestSessionManager_Calls_UnmappableRoleSignsOutOnce(t *testing.T) {
	sessions, provider, roles, store := newMockedSessions(t)
	store.Put(member, "uid-ann", map[string]any{"email": "ann@acme.com", "role": "Owner"})

	gomock.InOrder(
		provider.EXPECT().
			SignIn(gomock.Any(), "ann@acme.com", "pw").
			Return(ports.ProviderSession{UserID: "uid-ann", Email: "ann@acme.com"}, nil),
		roles.EXPECT().
			Map("Owner").
			Return(domainauth.Role(""), domainauth.ErrRoleNotFound),
		provider.EXPECT().
			SignOut(gomock.Any()).
			Return(nil),
	)

	_, err := sessions.Login(context.Background(), "ann@acme.com", "pw")
	require.Error(t, err)
	assert.ErrorIs(t, err, domainauth.ErrRoleNotFound)
	assert.True(t, sessions.Current().IsZero())
	assert.Zero(t, store.ActiveSubscriptions())
}

func TestSessionManager_Calls_ProviderLoginMapsStoredRole(t *testing.T) {
	sessions, provider, roles, store := newMockedSessions(t)
	store.Put(client, "uid-cara", map[string]any{"email": "cara@acme.com", "role": "client", "clientName": "Cara"})

	provider.EXPECT().
		SignIn(gomock.Any(), "cara@acme.com", "pw").
		Return(ports.ProviderSession{UserID: "uid-cara", Email: "cara@acme.com"}, nil)
	roles.EXPECT().Map("client").Return(domainauth.RoleClient, nil)

	id, err := sessions.Login(context.Background(), "cara@acme.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, domainauth.RoleClient, id.Role)
	assert.Equal(t, "Cara", id.DisplayName)
	assert.Equal(t, domainauth.CollectionClient, id.Collection)

	provider.EXPECT().SignOut(gomock.Any()).Return(errors.New("provider unreachable"))
	err = sessions.Logout(context.Background())
	require.Error(t, err)
	assert.True(t, sessions.Current().IsZero())
	assert.Zero(t, store.ActiveSubscriptions())
}

type gaugeSink struct {
	mu     sync.Mutex
	counts []string
	gauges []float64
}

func (s *gaugeSink) Count(name string, _ int64, tags map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, name+":"+tags["path"]+":"+tags["result"])
}

func (s *gaugeSink) Gauge(_ string, value float64, _ map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gauges = append(s.gauges, value)
}

func (s *gaugeSink) Timing(string, time.Duration, map[string]string) {}

func TestSessionManager_EmitsLoginAndSessionMetrics(t *testing.T) {
	sessions, provider, roles, store := newMockedSessions(t)
	sink := &gaugeSink{}
	sessions.metrics = sink
	store.Put(member, "uid-ann", map[string]any{"email": "ann@acme.com", "role": "admin"})

	provider.EXPECT().
		SignIn(gomock.Any(), "ann@acme.com", "pw").
		Return(ports.ProviderSession{UserID: "uid-ann", Email: "ann@acme.com"}, nil)
	roles.EXPECT().Map("admin").Return(domainauth.RoleAdmin, nil)
	provider.EXPECT().SignOut(gomock.Any()).Return(nil)

	_, err := sessions.Login(context.Background(), "ann@acme.com", "pw")
	require.NoError(t, err)
	require.NoError(t, sessions.Logout(context.Background()))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"auth.login:provider:success"}, sink.counts)
	assert.Equal(t, []float64{1, 0}, sink.gauges)
}

func TestSessionManager_Calls_RegisterSignsOutWhenRoleUnresolvable(t *testing.T) {
	sessions, provider, roles, store := newMockedSessions(t)

	gomock.InOrder(
		provider.EXPECT().
			SignUp(gomock.Any(), "new@acme.com", "pw").
			Return(ports.ProviderSession{UserID: "uid-new", Email: "new@acme.com"}, nil),
		roles.EXPECT().
			Map("member").
			Return(domainauth.Role(""), domainauth.ErrRoleNotFound),
		provider.EXPECT().
			SignOut(gomock.Any()).
			Return(nil),
	)

	_, err := sessions.Register(context.Background(), RegisterInput{
		Email: "new@acme.com", Password: "pw", Collection: member, Role: domainauth.RoleEmployee,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, domainauth.ErrRoleNotFound)
	assert.True(t, sessions.Current().IsZero())
	assert.Equal(t, domainauth.StateIdle, sessions.State())

	_, ok := store.Doc(member, "uid-new")
	assert.True(t, ok)
}
