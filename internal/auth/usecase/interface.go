// Package usecase defines business logic interfaces for credential issuance,
// verification, and the login/logout flows in front of the user directory.
package usecase

import (
	"context"
	"time"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
)

// SigningKeyRepository defines persistence operations for signing keys.
// Implementations must support transaction-aware operations via context propagation.
type SigningKeyRepository interface {
	// Create stores a new signing key in the repository.
	Create(ctx context.Context, key *authDomain.SigningKey) error

	// GetByKid retrieves a signing key by its key identifier.
	// Returns ErrKeyNotFound if not found.
	GetByKid(ctx context.Context, kid string) (*authDomain.SigningKey, error)

	// GetActive retrieves the key currently used to sign new credentials.
	// Returns ErrNoActiveKey when the store holds none.
	GetActive(ctx context.Context) (*authDomain.SigningKey, error)

	// Retire stops a key from signing and stamps the end of its
	// verification grace window.
	Retire(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error

	// DeleteExpired removes keys whose verification window has ended.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// RevokedTokenRepository defines the shared revocation set. All server
// instances consult the same store, so a revocation on one instance is
// visible to every other.
type RevokedTokenRepository interface {
	// Create adds a token ID to the revocation set. Adding an
	// already-revoked token ID must succeed without error.
	Create(ctx context.Context, token *authDomain.RevokedToken) error

	// Exists reports whether a token ID has been revoked.
	Exists(ctx context.Context, tokenID string) (bool, error)

	// DeleteExpired removes revocation rows for credentials that have
	// expired on their own.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// DirectoryClient is the port to the external user-directory service that owns
// user records and password verification.
type DirectoryClient interface {
	// Authenticate verifies a login attempt. Returns ErrInvalidCredentials
	// for any authentication failure, ErrUpstream when the directory is
	// unreachable.
	Authenticate(ctx context.Context, input *authDomain.LoginInput) (*authDomain.Identity, error)

	// Register creates a new user record. Returns ErrConflict when the
	// email is already taken, ErrUpstream when the directory is unreachable.
	Register(ctx context.Context, input *authDomain.RegisterInput) (*authDomain.Identity, error)
}

// TokenUseCase owns the full credential lifecycle: signing key management and
// the issue/verify/refresh/revoke operations.
type TokenUseCase interface {
	// Initialize loads the active signing key, creating one when the store
	// is empty. Must be called before any other operation.
	Initialize(ctx context.Context) error

	// IssuePair mints one access and one refresh credential for the identity.
	// Each credential carries its own unique token ID.
	IssuePair(ctx context.Context, identity *authDomain.Identity) (*authDomain.CredentialPair, error)

	// Verify validates a credential's signature, expiry, kind, and revocation
	// status. Any failure returns ErrInvalidToken or ErrWrongTokenKind;
	// verification fails closed on store errors.
	Verify(ctx context.Context, token string, kind authDomain.TokenKind) (*authDomain.Claims, error)

	// Refresh exchanges a valid refresh credential for a brand-new pair.
	// The presented refresh credential is revoked before the new pair is
	// minted, so each refresh credential works exactly once.
	Refresh(ctx context.Context, refreshToken string) (*authDomain.CredentialPair, error)

	// Revoke adds a credential's token ID to the revocation set. Revoking an
	// already-revoked or already-expired credential is a no-op.
	Revoke(ctx context.Context, token string) error

	// RotateSigningKey retires the active key and activates a fresh one.
	// The retired key keeps verifying until its grace window ends.
	RotateSigningKey(ctx context.Context) error

	// PruneExpired removes expired revocation rows and retired keys past
	// their grace window. Returns the total rows removed.
	PruneExpired(ctx context.Context) (int64, error)

	// StartRotation rotates the signing key on the configured interval and
	// prunes expired rows after each rotation. Blocks until ctx is done.
	StartRotation(ctx context.Context)
}

// AuthUseCase orchestrates login, registration, and guard verification
// against the directory and the token lifecycle.
type AuthUseCase interface {
	// Login authenticates against the user directory and mints a credential
	// pair. Returns ErrInvalidCredentials on any authentication failure and
	// ErrAccountLocked after too many consecutive failures for one email.
	Login(ctx context.Context, input *authDomain.LoginInput) (*authDomain.AuthOutput, error)

	// Register creates a directory user and logs it straight in.
	Register(ctx context.Context, input *authDomain.RegisterInput) (*authDomain.AuthOutput, error)

	// VerifyAuth validates an access credential and shapes its claims into
	// a per-request SecurityContext.
	VerifyAuth(ctx context.Context, accessToken, ipAddress, userAgent string) (*authDomain.SecurityContext, error)

	// Logout revokes both credentials of a session. Best-effort: an invalid
	// credential is skipped, not an error.
	Logout(ctx context.Context, accessToken, refreshToken string) error
}
