package domain

import (
	"time"

	"github.com/google/uuid"
)

// SigningKey is one asymmetric key pair used to sign and verify credentials.
// Exactly one key is active at any instant; a retired key remains valid for
// verification until its grace window ends, so credentials signed just before
// a rotation stay verifiable.
type SigningKey struct {
	ID uuid.UUID
	// Kid is the key identifier stamped into credential headers so
	// verification can locate the signing key across rotations.
	Kid string
	// Algorithm is always "RS256".
	Algorithm string
	// PublicKeyPEM is the PEM-encoded public key, stored in clear.
	PublicKeyPEM string
	// PrivateKeyEncrypted is the PEM-encoded private key encrypted with the
	// configured KMS keeper before persistence.
	PrivateKeyEncrypted []byte
	CreatedAt           time.Time
	// RetiredAt is set when the key stops signing new credentials (nil = active).
	RetiredAt *time.Time
	// ExpiresAt is when the key may no longer verify anything and the row can
	// be pruned.
	ExpiresAt time.Time
}

// IsActive reports whether the key currently signs new credentials.
func (k *SigningKey) IsActive() bool {
	return k.RetiredAt == nil
}

// CanVerify reports whether the key may still verify credentials at the given
// instant. Expiry comparison is strict: now >= ExpiresAt means expired.
func (k *SigningKey) CanVerify(now time.Time) bool {
	return now.Before(k.ExpiresAt)
}

// RevokedToken marks a credential's token ID as dead before its natural
// expiry. Rows are retained until the credential's original expiry, after
// which they are safe to prune.
type RevokedToken struct {
	TokenID   string
	ExpiresAt time.Time
	RevokedAt time.Time
}
