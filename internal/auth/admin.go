// ABOUTME: Administrative capability gating the migration endpoints
// ABOUTME: Compares the presented key in constant time; independent of client tokens

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
)

// AdminGate holds the administrative key. It is a separate capability from
// Gate so migration access never depends on client token configuration.
type AdminGate struct {
	digest  [sha256.Size]byte
	enabled bool
}

// NewAdminGate creates an AdminGate. An empty key disables admin access.
func NewAdminGate(key string) *AdminGate {
	if key == "" {
		return &AdminGate{}
	}
	return &AdminGate{digest: sha256.Sum256([]byte(key)), enabled: true}
}

// Enabled reports whether an admin key is configured
func (a *AdminGate) Enabled() bool {
	return a.enabled
}

// Verify returns ErrUnauthorized unless presented equals the admin key.
// Both sides are hashed first so the comparison does not leak the key length.
func (a *AdminGate) Verify(presented string) error {
	if !a.enabled || presented == "" {
		return ErrUnauthorized
	}
	got := sha256.Sum256([]byte(presented))
	if subtle.ConstantTimeCompare(got[:], a.digest[:]) != 1 {
		return ErrUnauthorized
	}
	return nil
}
