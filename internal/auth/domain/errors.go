package domain

import (
	"github.com/mesaops/perimeter/internal/errors"
)

// Authentication and key lifecycle errors.
var (
	// ErrInvalidCredentials is the generic failure for any login problem.
	// Callers never learn which of email/password was wrong.
	ErrInvalidCredentials = errors.Wrap(errors.ErrUnauthorized, "invalid credentials")

	// ErrInvalidToken is the generic failure for a missing, malformed,
	// expired, or revoked credential.
	ErrInvalidToken = errors.Wrap(errors.ErrUnauthorized, "invalid token")

	// ErrWrongTokenKind indicates a refresh credential was presented where an
	// access credential is required, or vice versa.
	ErrWrongTokenKind = errors.Wrap(errors.ErrUnauthorized, "wrong token kind")

	// ErrInsufficientPermissions indicates a valid identity whose role is
	// outside a guard's allow-list.
	ErrInsufficientPermissions = errors.Wrap(errors.ErrForbidden, "insufficient permissions")

	// ErrKeyNotFound indicates no signing key matches a credential's key
	// identifier. Verification fails closed.
	ErrKeyNotFound = errors.Wrap(errors.ErrNotFound, "signing key not found")

	// ErrNoActiveKey indicates the key store holds no active signing key.
	ErrNoActiveKey = errors.Wrap(errors.ErrNotFound, "no active signing key")

	// ErrAccountLocked indicates too many consecutive failed login attempts.
	ErrAccountLocked = errors.Wrap(errors.ErrLocked, "account temporarily locked")
)
