package devauth

// Package devauth provides a simple, config-driven CredentialProvider for local development.

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
)

var _ ports.CredentialProvider = (*Provider)(nil)

// devNamespace seeds deterministic user ids so records seeded against a dev
// account keep matching across restarts.
var devNamespace = uuid.MustParse("5b0f7f3e-8f55-4d0c-9a5e-0d2f3f3b8a11")

// Config controls the dev auth provider behavior.
type Config struct {
	// Accounts maps email to password.
	Accounts map[string]string
	// AllowSignUp lets SignUp create new in-memory accounts.
	AllowSignUp bool
}

type account struct {
	id          string
	email       string
	password    string
	displayName string
	createdAt   time.Time
	lastSignIn  time.Time
}

// Provider implements ports.CredentialProvider with a fixed in-memory account list.
type Provider struct {
	mu          sync.Mutex
	accounts    map[string]*account
	allowSignUp bool
	current     *account
	now         func() time.Time
}

// NewProvider constructs a dev auth provider from Config.
func NewProvider(cfg Config) (*Provider, error) {
	if len(cfg.Accounts) == 0 && !cfg.AllowSignUp {
		return nil, errors.New("dev auth: at least one account is required when sign up is disabled")
	}
	p := &Provider{accounts: map[string]*account{}, allowSignUp: cfg.AllowSignUp, now: time.Now}
	for email, password := range cfg.Accounts {
		addr := domainauth.NormalizeEmail(email)
		if addr == "" || password == "" {
			return nil, fmt.Errorf("dev auth: account %q needs an email and password", email)
		}
		p.accounts[addr] = p.newAccount(addr, password)
	}
	return p, nil
}

// ParseAccounts parses "email:password" pairs separated by commas.
func ParseAccounts(raw string) (map[string]string, error) {
	out := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		email, password, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(email) == "" || password == "" {
			return nil, fmt.Errorf("dev auth: invalid account entry %q (want email:password)", pair)
		}
		out[strings.TrimSpace(email)] = password
	}
	return out, nil
}

// UserID returns the deterministic dev user id for an email.
func UserID(email string) string {
	return uuid.NewSHA1(devNamespace, []byte(domainauth.NormalizeEmail(email))).String()
}

func (p *Provider) newAccount(email, password string) *account {
	return &account{id: UserID(email), email: email, password: password, createdAt: p.now().UTC()}
}

func (p *Provider) SignIn(_ context.Context, email, password string) (ports.ProviderSession, error) {
	addr := domainauth.NormalizeEmail(email)
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, ok := p.accounts[addr]
	if !ok {
		return ports.ProviderSession{}, domainauth.Errorf(domainauth.KindUserNotFound, "dev sign in", "no dev account for %s", addr)
	}
	if subtle.ConstantTimeCompare([]byte(acct.password), []byte(password)) != 1 {
		return ports.ProviderSession{}, domainauth.Errorf(domainauth.KindInvalidCredentials, "dev sign in", "wrong password")
	}
	acct.lastSignIn = p.now().UTC()
	p.current = acct
	return acct.session(), nil
}

func (p *Provider) SignUp(_ context.Context, email, password string) (ports.ProviderSession, error) {
	addr := domainauth.NormalizeEmail(email)
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.allowSignUp {
		return ports.ProviderSession{}, domainauth.Errorf(domainauth.KindUnknown, "dev sign up", "sign up is disabled")
	}
	if _, exists := p.accounts[addr]; exists {
		return ports.ProviderSession{}, domainauth.Errorf(domainauth.KindUnknown, "dev sign up", "email %s already registered", addr)
	}
	acct := p.newAccount(addr, password)
	acct.lastSignIn = acct.createdAt
	p.accounts[addr] = acct
	p.current = acct
	return acct.session(), nil
}

func (p *Provider) SignOut(_ context.Context) error {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	return nil
}

func (p *Provider) UpdateEmail(_ context.Context, email string) error {
	addr := domainauth.NormalizeEmail(email)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return domainauth.ErrNoProviderSession
	}
	if other, exists := p.accounts[addr]; exists && other != p.current {
		return domainauth.Errorf(domainauth.KindUnknown, "dev update email", "email %s already registered", addr)
	}
	delete(p.accounts, p.current.email)
	p.current.email = addr
	p.accounts[addr] = p.current
	return nil
}

func (p *Provider) UpdateDisplayName(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return domainauth.ErrNoProviderSession
	}
	p.current.displayName = name
	return nil
}

func (p *Provider) Metadata(_ context.Context) (domainauth.Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return domainauth.Metadata{}, domainauth.ErrNoProviderSession
	}
	return domainauth.Metadata{CreatedAt: p.current.createdAt, LastSignInAt: p.current.lastSignIn}, nil
}

func (a *account) session() ports.ProviderSession {
	return ports.ProviderSession{UserID: a.id, Email: a.email, DisplayName: a.displayName}
}
