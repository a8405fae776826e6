package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters and internal/data; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
)

// ErrRecordNotFound is returned by ProfileStore reads when no document matches.
var ErrRecordNotFound = errors.New("profile record not found")

// ProviderSession is the result of a successful provider sign-in or sign-up.
type ProviderSession struct {
	UserID      string
	Email       string
	DisplayName string
}

// CredentialProvider is the managed identity service. Implementations return
// *domainauth.Error values so callers can classify failures.
type CredentialProvider interface {
	SignIn(ctx context.Context, email, password string) (ProviderSession, error)
	SignUp(ctx context.Context, email, password string) (ProviderSession, error)
	SignOut(ctx context.Context) error
	UpdateEmail(ctx context.Context, email string) error
	UpdateDisplayName(ctx context.Context, name string) error
	Metadata(ctx context.Context) (domainauth.Metadata, error)
}

// ProfileStore is the document database holding member and client records.
type ProfileStore interface {
	// Get is a point read by document id.
	Get(ctx context.Context, c domainauth.Collection, id string) (domainauth.ProfileRecord, error)
	// FindByEmail returns the first document whose email field equals the normalized email.
	FindByEmail(ctx context.Context, c domainauth.Collection, email string) (domainauth.ProfileRecord, error)
	// Merge writes fields into an existing document. It reports false without error
	// when the document does not exist.
	Merge(ctx context.Context, c domainauth.Collection, id string, fields map[string]any) (bool, error)
	// Create writes a new document, merging into it if the id already exists.
	Create(ctx context.Context, c domainauth.Collection, id string, fields map[string]any) error
	// Subscribe delivers a snapshot on every change to one document until the
	// subscription is closed.
	Subscribe(ctx context.Context, c domainauth.Collection, id string, fn func(domainauth.Snapshot)) (Subscription, error)
}

// Subscription is a live document feed.
type Subscription interface {
	// Close stops delivery. A callback already in flight may still complete.
	Close() error
}

// SessionSnapshotStore persists the active identity so a restarted client can restore it.
type SessionSnapshotStore interface {
	Save(ctx context.Context, id domainauth.Identity) error
	Load(ctx context.Context) (domainauth.Identity, error)
	Delete(ctx context.Context) error
}

// RoleMapper turns a stored role string into an application role.
type RoleMapper interface {
	Map(raw string) (domainauth.Role, error)
}

// EmailRoleGuesser derives a role from an email address when no record exists.
type EmailRoleGuesser interface {
	Guess(email string) domainauth.Role
}
