package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode selects the credential provider.
type AuthMode string

const (
	// AuthModeIdentity uses the hosted identity service.
	AuthModeIdentity AuthMode = "identity"
	// AuthModeMock uses in-memory dev accounts (for development only).
	AuthModeMock AuthMode = "mock"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "identity", "mock":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: identity, mock)", v)
	}
}

// IdentityConfig configures the hosted identity service.
type IdentityConfig struct {
	BaseURL  string `env:"BASE_URL"  envDefault:"https://identitytoolkit.googleapis.com/v1"`
	TokenURL string `env:"TOKEN_URL" envDefault:"https://securetoken.googleapis.com/v1/token"`
	APIKey   string `env:"API_KEY"`
	// ProjectID is the expected ID token audience; the issuer defaults to IssuerPrefix + ProjectID.
	ProjectID    string        `env:"PROJECT_ID"`
	IssuerPrefix string        `env:"ISSUER_PREFIX" envDefault:"https://securetoken.google.com/"`
	JWKSURL      string        `env:"JWKS_URL"`
	Timeout      time.Duration `env:"TIMEOUT"       envDefault:"15s"`
}

// Issuer returns the expected ID token issuer.
func (c IdentityConfig) Issuer() string {
	return c.IssuerPrefix + c.ProjectID
}

// DevAuthConfig lists the accounts available when AUTH_MODE=mock.
type DevAuthConfig struct {
	// Accounts is a comma separated list of email:password pairs.
	Accounts    string `env:"ACCOUNTS"     envDefault:"admin@opsdesk.dev:admin,manager@opsdesk.dev:manager"`
	AllowSignUp bool   `env:"ALLOW_SIGNUP" envDefault:"true"`
}

// LoginLimitConfig throttles login and register attempts per client IP.
type LoginLimitConfig struct {
	PerMinute float64 `env:"PER_MINUTE" envDefault:"10"`
	Burst     int     `env:"BURST"      envDefault:"5"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which credential provider to use.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"identity"`

	Identity IdentityConfig `envPrefix:"IDENTITY_"`
	DevAuth  DevAuthConfig  `envPrefix:"DEV_AUTH_"`

	// FallbackEnabled turns on direct record login when the provider login fails.
	FallbackEnabled bool `env:"AUTH_FALLBACK_ENABLED" envDefault:"true"`
	// SyntheticEnabled accepts an email-derived identity when no record exists anywhere.
	SyntheticEnabled bool `env:"AUTH_SYNTHETIC_ENABLED" envDefault:"true"`
	// LogoutOnProfileDelete ends the session when its profile record is deleted.
	LogoutOnProfileDelete bool `env:"AUTH_LOGOUT_ON_PROFILE_DELETE" envDefault:"true"`
	// DisabledRoles rejects records carrying these roles, as if the role were unrecognized.
	DisabledRoles []string `env:"AUTH_DISABLED_ROLES" envSeparator:","`

	LoginLimit LoginLimitConfig `envPrefix:"AUTH_LOGIN_LIMIT_"`
}

// Sanitize applies guardrails to auth configuration values.
func (c *AuthConfig) Sanitize() {
	c.Identity.BaseURL = strings.TrimSpace(c.Identity.BaseURL)
	c.Identity.APIKey = strings.TrimSpace(c.Identity.APIKey)
	if c.Identity.Timeout <= 0 {
		c.Identity.Timeout = 15 * time.Second
	}
	if !c.FallbackEnabled {
		c.SyntheticEnabled = false
	}
	if c.LoginLimit.PerMinute <= 0 {
		c.LoginLimit.PerMinute = 10
	}
	if c.LoginLimit.Burst < 1 {
		c.LoginLimit.Burst = 1
	}
	roles := c.DisabledRoles[:0]
	for _, r := range c.DisabledRoles {
		if r = strings.ToLower(strings.TrimSpace(r)); r != "" {
			roles = append(roles, r)
		}
	}
	c.DisabledRoles = roles
}
