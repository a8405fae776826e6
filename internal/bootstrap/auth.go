package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/target/opsdesk-go/config"
	"github.com/target/opsdesk-go/internal/adapters/authroles"
	"github.com/target/opsdesk-go/internal/adapters/devauth"
	"github.com/target/opsdesk-go/internal/adapters/identity"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
	"github.com/target/opsdesk-go/internal/service"
)

// AuthConfig contains configuration for the auth services.
type AuthConfig struct {
	Auth   config.AuthConfig
	Store  ports.ProfileStore
	Logger *slog.Logger
}

// AuthServices groups the role resolution and fallback collaborators of the session.
type AuthServices struct {
	Provider ports.CredentialProvider
	Resolver *service.RoleResolver
	Fallback *service.FallbackAuthenticator // nil when AUTH_FALLBACK_ENABLED=false
}

// BuildAuthServices creates the credential provider for the configured auth
// mode and the role resolution services backed by the profile store.
func BuildAuthServices(cfg AuthConfig) (AuthServices, error) {
	if cfg.Store == nil {
		return AuthServices{}, errors.New("profile store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := BuildCredentialProvider(cfg.Auth, logger)
	if err != nil {
		return AuthServices{}, err
	}

	roles, err := buildRoleMapper(cfg.Auth.DisabledRoles)
	if err != nil {
		return AuthServices{}, err
	}

	out := AuthServices{
		Provider: provider,
		Resolver: service.NewRoleResolver(service.RoleResolverOptions{Store: cfg.Store, Roles: roles, Logger: logger}),
	}
	if cfg.Auth.FallbackEnabled {
		out.Fallback = service.NewFallbackAuthenticator(service.FallbackAuthenticatorOptions{
			Resolver: out.Resolver,
			Guesser:  authroles.EmailHeuristic{},
			Config: service.FallbackConfig{
				AllowSynthetic: cfg.Auth.SyntheticEnabled,
				NewID:          uuid.NewString,
			},
			Logger: logger,
		})
	} else {
		logger.Info("fallback login disabled")
	}
	return out, nil
}

// BuildCredentialProvider selects the credential provider for the auth mode.
//
//nolint:ireturn // the provider implementation depends on AUTH_MODE.
func BuildCredentialProvider(cfg config.AuthConfig, logger *slog.Logger) (ports.CredentialProvider, error) {
	switch cfg.Mode {
	case config.AuthModeMock:
		return buildDevAuthProvider(cfg, logger)
	case config.AuthModeIdentity, "":
		return buildIdentityProvider(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported auth mode %q", cfg.Mode)
	}
}

func buildDevAuthProvider(cfg config.AuthConfig, logger *slog.Logger) (*devauth.Provider, error) {
	accounts, err := devauth.ParseAccounts(cfg.DevAuth.Accounts)
	if err != nil {
		return nil, fmt.Errorf("parse dev auth accounts: %w", err)
	}
	prov, err := devauth.NewProvider(devauth.Config{Accounts: accounts, AllowSignUp: cfg.DevAuth.AllowSignUp})
	if err != nil {
		return nil, fmt.Errorf("create dev auth provider: %w", err)
	}
	logger.Warn("dev auth provider enabled; do not use in production", "accounts", len(accounts))
	return prov, nil
}

func buildIdentityProvider(cfg config.AuthConfig, logger *slog.Logger) (*identity.Provider, error) {
	idCfg := cfg.Identity
	if idCfg.APIKey == "" {
		return nil, errors.New("AUTH_MODE=identity requires IDENTITY_API_KEY")
	}
	jwksURL := idCfg.JWKSURL
	if jwksURL == "" || idCfg.ProjectID == "" {
		jwksURL = ""
		logger.Warn("identity ID token verification disabled",
			"jwks_url_empty", idCfg.JWKSURL == "",
			"project_id_empty", idCfg.ProjectID == "",
		)
	}

	prov, err := identity.NewProvider(identity.Config{
		BaseURL:    idCfg.BaseURL,
		TokenURL:   idCfg.TokenURL,
		APIKey:     idCfg.APIKey,
		Issuer:     idCfg.Issuer(),
		Audience:   idCfg.ProjectID,
		JWKSURL:    jwksURL,
		HTTPClient: &http.Client{Timeout: idCfg.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("create identity provider: %w", err)
	}
	return prov, nil
}

func buildRoleMapper(disabled []string) (authroles.StaticRoleMapper, error) {
	mapper := authroles.StaticRoleMapper{}
	for _, raw := range disabled {
		role := domainauth.Role(raw)
		if !role.Valid() {
			return mapper, fmt.Errorf("AUTH_DISABLED_ROLES: unknown role %q", raw)
		}
		mapper.Disabled = append(mapper.Disabled, role)
	}
	return mapper, nil
}
