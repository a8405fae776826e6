package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
	"golang.org/x/crypto/bcrypt"
)

// FallbackConfig tunes the secondary login path.
type FallbackConfig struct {
	// AllowSynthetic enables last-resort acceptance when no record exists anywhere.
	AllowSynthetic bool
	// NewID generates synthetic session ids. Defaults to random UUIDs.
	NewID func() string
}

// FallbackAuthenticatorOptions groups dependencies for FallbackAuthenticator.
type FallbackAuthenticatorOptions struct {
	Resolver *RoleResolver          // Required: shares the store and role normalization
	Guesser  ports.EmailRoleGuesser // Required when synthetic identities are allowed
	Config   FallbackConfig
	Logger   *slog.Logger // Optional
}

// FallbackAuthenticator logs a user in directly against stored profile records
// when the credential provider cannot.
//
// Stored fallback passwords are compared verbatim (or with bcrypt when the stored
// value is a bcrypt hash). Records without a stored password are accepted
// without any password check.
type FallbackAuthenticator struct {
	resolver *RoleResolver
	guesser  ports.EmailRoleGuesser
	cfg      FallbackConfig
	logger   *slog.Logger
}

// NewFallbackAuthenticator constructs a FallbackAuthenticator.
func NewFallbackAuthenticator(opts FallbackAuthenticatorOptions) *FallbackAuthenticator {
	if opts.Resolver == nil {
		panic("RoleResolver is required")
	}
	if opts.Config.AllowSynthetic && opts.Guesser == nil {
		panic("EmailRoleGuesser is required when synthetic identities are allowed")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := opts.Config
	if cfg.NewID == nil {
		cfg.NewID = func() string { return uuid.NewString() }
	}
	return &FallbackAuthenticator{
		resolver: opts.Resolver,
		guesser:  opts.Guesser,
		cfg:      cfg,
		logger:   logger.With("component", "fallback_auth"),
	}
}

// Attempt looks the email up in both collections concurrently and validates the
// stored fallback password of every match. The member collection wins when both
// produce an accepted candidate.
//
// When both lookups report not-found and synthetic identities are allowed, an
// identity is fabricated from the email with a role guessed from its local part.
func (f *FallbackAuthenticator) Attempt(ctx context.Context, email, password string) (domainauth.Identity, domainauth.Role, error) {
	addr := domainauth.NormalizeEmail(email)
	if addr == "" {
		return domainauth.Identity{}, "", domainauth.Errorf(domainauth.KindUserNotFound, "fallback login", "email is required")
	}

	store := f.resolver.store
	outcomes := lookupAll(ctx, domainauth.Collections(), func(ctx context.Context, c domainauth.Collection) (domainauth.ProfileRecord, error) {
		return store.FindByEmail(ctx, c, addr)
	})

	var (
		mismatch, roleErr, storeErr error
		notFound                    int
	)
	for _, out := range outcomes {
		switch {
		case out.found():
			role, err := f.accept(out.Record, password)
			if err != nil {
				if errors.Is(err, domainauth.ErrInvalidCredentials) {
					mismatch = errors.Join(mismatch, err)
				} else {
					roleErr = errors.Join(roleErr, err)
				}
				f.logger.InfoContext(ctx, "fallback candidate rejected",
					"collection", out.Collection, "record_id", out.Record.ID, "error_kind", domainauth.KindOf(err))
				continue
			}
			id := IdentityFromRecord(out.Record, role, addr)
			f.logger.InfoContext(ctx, "fallback candidate accepted",
				"collection", out.Collection, "record_id", out.Record.ID, "role", role, "completion_order", out.Order)
			return id, role, nil
		case out.notFound():
			notFound++
		default:
			storeErr = errors.Join(storeErr, fmt.Errorf("%s: %w", out.Collection, out.Err))
		}
	}

	switch {
	case mismatch != nil:
		return domainauth.Identity{}, "", &domainauth.Error{Kind: domainauth.KindInvalidCredentials, Op: "fallback login", Err: mismatch}
	case roleErr != nil:
		return domainauth.Identity{}, "", &domainauth.Error{Kind: domainauth.KindRoleNotFound, Op: "fallback login", Err: roleErr}
	case storeErr != nil:
		return domainauth.Identity{}, "", &domainauth.Error{Kind: domainauth.KindNetwork, Op: "fallback login", Err: storeErr}
	case notFound == len(outcomes) && f.cfg.AllowSynthetic:
		id := f.synthesize(addr)
		f.logger.WarnContext(ctx, "no profile record found, accepting synthetic identity", "role", id.Role)
		return id, id.Role, nil
	default:
		return domainauth.Identity{}, "", domainauth.Errorf(domainauth.KindUserNotFound, "fallback login", "no profile record for email")
	}
}

// accept validates the stored fallback password and normalizes the role.
func (f *FallbackAuthenticator) accept(rec domainauth.ProfileRecord, password string) (domainauth.Role, error) {
	if stored := rec.FallbackPassword(); stored != "" && !passwordMatches(stored, password) {
		return "", domainauth.Errorf(domainauth.KindInvalidCredentials, "fallback login", "%s: password mismatch", rec.Collection)
	}
	return f.resolver.Normalize(rec)
}

func (f *FallbackAuthenticator) synthesize(email string) domainauth.Identity {
	return domainauth.Identity{
		ID:          f.cfg.NewID(),
		Email:       email,
		DisplayName: email,
		Role:        f.guesser.Guess(email),
		Source:      domainauth.SourceSynthetic,
	}
}

// passwordMatches compares a stored fallback password with the supplied one.
// Bcrypt hashes are verified with bcrypt; anything else must match byte for byte.
func passwordMatches(stored, supplied string) bool {
	if isBcryptHash(stored) {
		return bcrypt.CompareHashAndPassword([]byte(stored), []byte(supplied)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
