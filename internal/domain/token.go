package domain

import (
	"time"
)

// RefreshToken is the stored side of a long-lived refresh credential. Only
// the SHA-256 hash of the opaque secret is ever persisted; the plaintext
// exists only in the client's cookie.
type RefreshToken struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	TokenHash    string    `json:"-"`
	ExpiresAt    time.Time `json:"expires_at"`
	Revoked      bool      `json:"revoked"`
	ReplacedByID string    `json:"replaced_by_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t *RefreshToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
