package auth

import "time"

// Collection names one of the two profile record collections.
type Collection string

const (
	CollectionMember Collection = "member-records"
	CollectionClient Collection = "client-records"
)

// Collections returns both collections in tie-break priority order: member before client.
func Collections() []Collection {
	return []Collection{CollectionMember, CollectionClient}
}

// Valid reports whether c is a known collection.
func (c Collection) Valid() bool {
	return c == CollectionMember || c == CollectionClient
}

// Source records how the current identity was established.
type Source string

const (
	SourceProvider  Source = "provider"
	SourceRecord    Source = "record"
	SourceSynthetic Source = "synthetic"
)

// Identity is the authenticated principal held by the session.
// ID and Email stay fixed for the lifetime of one session; live profile updates
// only touch Role, DisplayName, ProfileImageRef and Phone.
type Identity struct {
	ID              string     `json:"id"`
	Email           string     `json:"email"`
	DisplayName     string     `json:"display_name"`
	Role            Role       `json:"role"`
	ProfileImageRef string     `json:"profile_image_ref,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Collection      Collection `json:"collection,omitempty"`
	RecordID        string     `json:"record_id,omitempty"`
	Source          Source     `json:"source"`
}

// IsZero reports whether no identity is set.
func (i Identity) IsZero() bool { return i.ID == "" }

// HasRecord reports whether the identity is backed by a stored profile document.
func (i Identity) HasRecord() bool { return i.RecordID != "" && i.Collection.Valid() }

// ProfileRecord is a raw profile document as stored in one collection.
type ProfileRecord struct {
	ID         string
	Collection Collection
	Data       map[string]any
}

// Email returns the stored email or "" when absent.
func (r ProfileRecord) Email() string { return EmailField.Value(r.Data) }

// RawRole returns the stored role string or "" when no role synonym is present.
func (r ProfileRecord) RawRole() string { return RoleField.Value(r.Data) }

// Role normalizes the stored role string.
func (r ProfileRecord) Role() (Role, error) { return ParseRole(r.RawRole()) }

// DisplayName falls back to the email when no name synonym is present.
func (r ProfileRecord) DisplayName() string {
	if v := DisplayNameField.Value(r.Data); v != "" {
		return v
	}
	return r.Email()
}

// AvatarRef returns the first present avatar synonym.
func (r ProfileRecord) AvatarRef() string { return AvatarField.Value(r.Data) }

// FallbackPassword returns the stored secondary-login password, if any.
func (r ProfileRecord) FallbackPassword() string { return FallbackPasswordField.Value(r.Data) }

// Phone returns the first present phone synonym.
func (r ProfileRecord) Phone() string { return PhoneField.Value(r.Data) }

// Snapshot is one delivery from a live profile subscription.
type Snapshot struct {
	Record  ProfileRecord
	Deleted bool
}

// SessionState is the login state machine position.
type SessionState string

const (
	StateIdle                   SessionState = "idle"
	StateAuthenticating         SessionState = "authenticating"
	StateRoleResolving          SessionState = "role_resolving"
	StateFallbackAuthenticating SessionState = "fallback_authenticating"
	StateActive                 SessionState = "active"
)

// Metadata is read-only session information reported by the credential provider.
type Metadata struct {
	CreatedAt    time.Time `json:"created_at"`
	LastSignInAt time.Time `json:"last_sign_in_at"`
}
