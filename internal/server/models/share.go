package models

import "time"

// AccessLevel classifies how a share link is meant to be distributed.
// It is advisory metadata; the enforced-secret case is AccessLevelPrivate
// combined with a set password.
type AccessLevel string

const (
	AccessLevelPublic   AccessLevel = "public"
	AccessLevelUnlisted AccessLevel = "unlisted"
	AccessLevelPrivate  AccessLevel = "private"
)

// SharePermissions are the independent capability flags of a share link.
type SharePermissions struct {
	CanView  bool
	CanEdit  bool
	CanShare bool
}

// ShareLink is a capability token bound to exactly one node. The token is
// the external-facing identifier; the internal node id is never exposed
// through it.
type ShareLink struct {
	ID string
	// NodeID references the shared node.
	NodeID string
	// Token is the unguessable external identifier of the link.
	Token       string
	Permissions SharePermissions
	AccessLevel AccessLevel
	// ExpiresAt, when set, is the instant past which the link is dead.
	// Expired links are not auto-purged, only treated as invalid.
	ExpiresAt *time.Time
	// PasswordHash is the bcrypt hash of the optional link password,
	// nil when the link is not password-protected.
	PasswordHash []byte
	// CreatedBy is the identity of the link creator. Equals the node's
	// owner at creation time.
	CreatedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasPassword reports whether access requires a password.
func (s *ShareLink) HasPassword() bool { return len(s.PasswordHash) > 0 }

// Expired reports whether the link is past its expiry at the given instant.
func (s *ShareLink) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && s.ExpiresAt.Before(now)
}
