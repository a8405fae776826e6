package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	"github.com/target/opsdesk-go/internal/ports"
)

// RoleResolverOptions groups dependencies for RoleResolver.
type RoleResolverOptions struct {
	Store  ports.ProfileStore // Required
	Roles  ports.RoleMapper   // Required
	Logger *slog.Logger       // Optional
}

// RoleResolver finds the profile record for an identity id in both collections
// and normalizes its role. It has no side effects.
type RoleResolver struct {
	store  ports.ProfileStore
	roles  ports.RoleMapper
	logger *slog.Logger
}

// NewRoleResolver constructs a RoleResolver.
func NewRoleResolver(opts RoleResolverOptions) *RoleResolver {
	if opts.Store == nil {
		panic("ProfileStore is required")
	}
	if opts.Roles == nil {
		panic("RoleMapper is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RoleResolver{store: opts.Store, roles: opts.Roles, logger: logger.With("component", "role_resolver")}
}

// Resolve point-reads recordID in both collections concurrently and waits for
// both. When both hold a record with a valid role the member collection wins.
//
// Errors: RoleNotFound when a record exists but no role normalizes,
// NetworkError when a lookup failed and nothing was found, UserNotFound otherwise.
func (r *RoleResolver) Resolve(ctx context.Context, recordID, email string) (domainauth.Identity, error) {
	if recordID == "" {
		return domainauth.Identity{}, domainauth.Errorf(domainauth.KindUserNotFound, "resolve role", "record id is required")
	}

	outcomes := lookupAll(ctx, domainauth.Collections(), func(ctx context.Context, c domainauth.Collection) (domainauth.ProfileRecord, error) {
		return r.store.Get(ctx, c, recordID)
	})

	var roleErr, storeErr error
	for _, out := range outcomes {
		switch {
		case out.found():
			role, err := r.Normalize(out.Record)
			if err != nil {
				r.logger.WarnContext(ctx, "profile record has unrecognized role",
					"collection", out.Collection, "record_id", recordID, "raw_role", out.Record.RawRole())
				roleErr = errors.Join(roleErr, err)
				continue
			}
			r.logger.DebugContext(ctx, "role resolved",
				"collection", out.Collection, "record_id", recordID, "role", role, "completion_order", out.Order)
			return IdentityFromRecord(out.Record, role, email), nil
		case out.notFound():
		default:
			storeErr = errors.Join(storeErr, fmt.Errorf("%s: %w", out.Collection, out.Err))
		}
	}

	switch {
	case roleErr != nil:
		return domainauth.Identity{}, &domainauth.Error{Kind: domainauth.KindRoleNotFound, Op: "resolve role", Err: roleErr}
	case storeErr != nil:
		return domainauth.Identity{}, &domainauth.Error{Kind: domainauth.KindNetwork, Op: "resolve role", Err: storeErr}
	default:
		return domainauth.Identity{}, domainauth.Errorf(domainauth.KindUserNotFound, "resolve role", "no profile record for %s", recordID)
	}
}

// Normalize maps a record's stored role through the configured RoleMapper.
func (r *RoleResolver) Normalize(rec domainauth.ProfileRecord) (domainauth.Role, error) {
	if raw := rec.RawRole(); raw != "" {
		return r.roles.Map(raw)
	}
	return "", domainauth.Errorf(domainauth.KindRoleNotFound, "normalize role", "record %s has no role field", rec.ID)
}

// IdentityFromRecord builds an identity from a stored record. The identity id
// defaults to the record id; callers holding a provider id overwrite it.
func IdentityFromRecord(rec domainauth.ProfileRecord, role domainauth.Role, email string) domainauth.Identity {
	addr := rec.Email()
	if addr == "" {
		addr = email
	}
	name := rec.DisplayName()
	if name == "" {
		name = addr
	}
	return domainauth.Identity{
		ID:              rec.ID,
		Email:           domainauth.NormalizeEmail(addr),
		DisplayName:     name,
		Role:            role,
		ProfileImageRef: rec.AvatarRef(),
		Phone:           rec.Phone(),
		Collection:      rec.Collection,
		RecordID:        rec.ID,
		Source:          domainauth.SourceRecord,
	}
}
