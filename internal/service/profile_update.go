package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	domainauth "github.com/target/opsdesk-go/internal/domain/auth"
	apperrors "github.com/target/opsdesk-go/internal/errors"
)

// ProfileUpdate holds the optional fields of a profile edit. Nil fields are left untouched.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Empty reports whether the update carries no fields.
func (u ProfileUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil
}

// ProfileUpdateCoordinatorOptions groups dependencies for ProfileUpdateCoordinator.
type ProfileUpdateCoordinatorOptions struct {
	Sessions *SessionManager // Required
	Logger   *slog.Logger    // Optional
}

// ProfileUpdateCoordinator propagates profile edits to the credential provider
// and to every profile collection holding the current identity.
type ProfileUpdateCoordinator struct {
	sessions *SessionManager
	logger   *slog.Logger
}

// NewProfileUpdateCoordinator constructs a ProfileUpdateCoordinator.
func NewProfileUpdateCoordinator(opts ProfileUpdateCoordinatorOptions) *ProfileUpdateCoordinator {
	if opts.Sessions == nil {
		panic("SessionManager is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileUpdateCoordinator{sessions: opts.Sessions, logger: logger.With("component", "profile_update")}
}

// UpdateProfile applies the edit best-effort: every sub-operation is attempted
// and the first error encountered is returned. Writes against a collection
// without a document for the identity are no-ops. On success the session's
// display fields are refreshed immediately.
func (c *ProfileUpdateCoordinator) UpdateProfile(ctx context.Context, upd ProfileUpdate) (domainauth.Identity, error) {
	upd, err := cleanProfileUpdate(upd)
	if err != nil {
		return domainauth.Identity{}, err
	}
	id := c.sessions.Current()
	if id.IsZero() {
		return domainauth.Identity{}, domainauth.ErrNotAuthenticated
	}
	if upd.Empty() {
		return id, nil
	}

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}

	if id.Source == domainauth.SourceProvider {
		if upd.Email != nil {
			keep(c.wrap(ctx, "update provider email", c.sessions.provider.UpdateEmail(ctx, domainauth.NormalizeEmail(*upd.Email))))
		}
		if upd.Name != nil {
			keep(c.wrap(ctx, "update provider display name", c.sessions.provider.UpdateDisplayName(ctx, strings.TrimSpace(*upd.Name))))
		}
	}

	docID := id.RecordID
	if docID == "" {
		docID = id.ID
	}
	fields := profileFields(upd)
	written := 0
	for _, col := range domainauth.Collections() {
		ok, err := c.sessions.store.Merge(ctx, col, docID, fields)
		if err != nil {
			keep(c.wrap(ctx, fmt.Sprintf("merge %s", col), err))
			continue
		}
		if ok {
			written++
		}
	}
	if written == 0 && first == nil {
		c.logger.InfoContext(ctx, "no profile document to update", "record_id", docID)
	}

	if first != nil {
		return domainauth.Identity{}, first
	}
	return c.sessions.applyProfileEdit(ctx, id.ID, upd), nil
}

func (c *ProfileUpdateCoordinator) wrap(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	c.logger.WarnContext(ctx, "profile update step failed", "op", op, "error", err)
	return fmt.Errorf("%s: %w", op, err)
}

// profileFields duplicates each edited value under every legacy synonym.
func profileFields(upd ProfileUpdate) map[string]any {
	fields := make(map[string]any)
	set := func(keys []string, v string) {
		for _, k := range keys {
			fields[k] = v
		}
	}
	if upd.Name != nil {
		set(domainauth.DisplayNameWriteKeys, strings.TrimSpace(*upd.Name))
	}
	if upd.Email != nil {
		set(domainauth.EmailWriteKeys, domainauth.NormalizeEmail(*upd.Email))
	}
	if upd.Phone != nil {
		set(domainauth.PhoneWriteKeys, strings.TrimSpace(*upd.Phone))
	}
	return fields
}

// cleanProfileUpdate validates upd and returns it trimmed. An email given in
// display-name form ("Ann <ann@acme.com>") is reduced to its canonical address.
func cleanProfileUpdate(upd ProfileUpdate) (ProfileUpdate, error) {
	var out ProfileUpdate
	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return ProfileUpdate{}, apperrors.ValidationField("name", "name cannot be empty")
		}
		if len(name) > 255 {
			return ProfileUpdate{}, apperrors.ValidationField("name", "name cannot exceed 255 characters")
		}
		out.Name = &name
	}
	if upd.Email != nil {
		addr, err := mail.ParseAddress(strings.TrimSpace(*upd.Email))
		if err != nil {
			return ProfileUpdate{}, apperrors.ValidationField("email", "email is not a valid address")
		}
		email := domainauth.NormalizeEmail(addr.Address)
		out.Email = &email
	}
	if upd.Phone != nil {
		phone := strings.TrimSpace(*upd.Phone)
		if len(phone) > 32 {
			return ProfileUpdate{}, apperrors.ValidationField("phone", "phone cannot exceed 32 characters")
		}
		out.Phone = &phone
	}
	return out, nil
}
