package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.CredentialProvider   = (*MockCredentialProvider)(nil)
	_ ports.SessionSnapshotStore = (*MemorySnapshotStore)(nil)
)

// MockCredentialProvider simulates the identity service. Accounts maps email to
// password; the Func fields override the default behavior when set.
type MockCredentialProvider struct {
	SignInFunc            func(ctx context.Context, email, password string) (ports.ProviderSession, error)
	SignUpFunc            func(ctx context.Context, email, password string) (ports.ProviderSession, error)
	SignOutFunc           func(ctx context.Context) error
	UpdateEmailFunc       func(ctx context.Context, email string) error
	UpdateDisplayNameFunc func(ctx context.Context, name string) error

	mu          sync.Mutex
	Accounts    map[string]string
	UIDs        map[string]string
	current     *ports.ProviderSession
	signOuts    int
	emails      []string
	names       []string
	createdAt   time.Time
	lastSignIns time.Time
}

// NewMockCredentialProvider returns a provider knowing the given email/password pairs.
// User ids are "uid-<email>" unless overridden in UIDs.
func NewMockCredentialProvider(accounts map[string]string) *MockCredentialProvider {
	if accounts == nil {
		accounts = map[string]string{}
	}
	return &MockCredentialProvider{
		Accounts:  accounts,
		UIDs:      map[string]string{},
		createdAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (m *MockCredentialProvider) uid(email string) string {
	if id, ok := m.UIDs[email]; ok {
		return id
	}
	return "uid-" + email
}

func (m *MockCredentialProvider) SignIn(ctx context.Context, email, password string) (ports.ProviderSession, error) {
	if m.SignInFunc != nil {
		sess, err := m.SignInFunc(ctx, email, password)
		if err == nil {
			m.setCurrent(sess)
		}
		return sess, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	want, ok := m.Accounts[email]
	if !ok {
		return ports.ProviderSession{}, domainauth.Errorf(domainauth.KindUserNotFound, "sign in", "no account for %s", email)
	}
	if want != password {
		return ports.ProviderSession{}, domainauth.Errorf(domainauth.KindInvalidCredentials, "sign in", "wrong password")
	}
	sess := ports.ProviderSession{UserID: m.uid(email), Email: email}
	m.current = &sess
	m.lastSignIns = time.Now()
	return sess, nil
}

func (m *MockCredentialProvider) SignUp(ctx context.Context, email, password string) (ports.ProviderSession, error) {
	if m.SignUpFunc != nil {
		sess, err := m.SignUpFunc(ctx, email, password)
		if err == nil {
			m.setCurrent(sess)
		}
		return sess, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.Accounts[email]; exists {
		return ports.ProviderSession{}, domainauth.Errorf(domainauth.KindUnknown, "sign up", "email %s already registered", email)
	}
	m.Accounts[email] = password
	sess := ports.ProviderSession{UserID: m.uid(email), Email: email}
	m.current = &sess
	return sess, nil
}

func (m *MockCredentialProvider) SignOut(ctx context.Context) error {
	m.mu.Lock()
	m.signOuts++
	m.current = nil
	m.mu.Unlock()
	if m.SignOutFunc != nil {
		return m.SignOutFunc(ctx)
	}
	return nil
}

func (m *MockCredentialProvider) UpdateEmail(ctx context.Context, email string) error {
	m.mu.Lock()
	m.emails = append(m.emails, email)
	m.mu.Unlock()
	if m.UpdateEmailFunc != nil {
		return m.UpdateEmailFunc(ctx, email)
	}
	return nil
}

func (m *MockCredentialProvider) UpdateDisplayName(ctx context.Context, name string) error {
	m.mu.Lock()
	m.names = append(m.names, name)
	m.mu.Unlock()
	if m.UpdateDisplayNameFunc != nil {
		return m.UpdateDisplayNameFunc(ctx, name)
	}
	return nil
}

func (m *MockCredentialProvider) Metadata(_ context.Context) (domainauth.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return domainauth.Metadata{}, domainauth.ErrNoProviderSession
	}
	return domainauth.Metadata{CreatedAt: m.createdAt, LastSignInAt: m.lastSignIns}, nil
}

func (m *MockCredentialProvider) setCurrent(sess ports.ProviderSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = &sess
}

// SignedIn reports whether the provider currently holds a session.
func (m *MockCredentialProvider) SignedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current != nil
}

// SignOutCalls returns how many times SignOut ran.
func (m *MockCredentialProvider) SignOutCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.signOuts
}

// EmailUpdates returns every email passed to UpdateEmail.
func (m *MockCredentialProvider) EmailUpdates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.emails...)
}

// NameUpdates returns every name passed to UpdateDisplayName.
func (m *MockCredentialProvider) NameUpdates() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.names...)
}

// MemorySnapshotStore keeps one identity in memory.
type MemorySnapshotStore struct {
	mu       sync.Mutex
	identity *domainauth.Identity
	SaveErr  error
}

// NewMemorySnapshotStore creates an empty snapshot store.
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{}
}

func (m *MemorySnapshotStore) Save(_ context.Context, id domainauth.Identity) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	if id.ID == "" {
		return errors.New("identity id cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = &id
	return nil
}

func (m *MemorySnapshotStore) Load(_ context.Context) (domainauth.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return domainauth.Identity{}, ports.ErrRecordNotFound
	}
	return *m.identity, nil
}

func (m *MemorySnapshotStore) Delete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identity = nil
	return nil
}

// Saved returns the stored identity, if any.
func (m *MemorySnapshotStore) Saved() (domainauth.Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return domainauth.Identity{}, false
	}
	return *m.identity, true
}

func normalize(email string) string {
	return domainauth.NormalizeEmail(strings.TrimSpace(email))
}
