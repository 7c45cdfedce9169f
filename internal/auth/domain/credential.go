package domain

import (
	"time"
)

// Claims is the signed payload carried by every credential.
type Claims struct {
	// SubjectID identifies the user in the directory service.
	SubjectID string
	// Email is the user's login email, lower-cased.
	Email string
	// OrganizationID identifies the restaurant or supplier the user belongs to.
	OrganizationID string
	// Role is the platform role asserted for the subject.
	Role string
	// OrganizationType is "supplier", "restaurant", or "platform".
	OrganizationType string
	// Kind is the credential kind ("access" or "refresh").
	Kind TokenKind
	// TokenID is the unique identifier (jti) used for revocation.
	TokenID string
	// IssuedAt and ExpiresAt are Unix-second timestamps.
	IssuedAt  int64
	ExpiresAt int64
}

// Identity is the subject information minted into a credential pair. It is
// what the user directory returns on a successful login or registration.
type Identity struct {
	UserID           string
	Email            string
	OrganizationID   string
	Role             string
	OrganizationType string
}

// CredentialPair is one access plus one refresh credential issued together.
// It is returned to the caller exactly once and never persisted.
type CredentialPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// SecurityContext is the per-request verified identity bundle attached after
// successful guard evaluation. Its lifetime is exactly one request.
type SecurityContext struct {
	UserID           string
	Email            string
	OrganizationID   string
	Role             string
	OrganizationType string
	// SessionID is the access credential's token ID.
	SessionID string
	IPAddress string
	UserAgent string
}

// ContextFromClaims reshapes verified access-credential claims into a
// SecurityContext for the downstream handler.
func ContextFromClaims(claims *Claims, ipAddress, userAgent string) *SecurityContext {
	return &SecurityContext{
		UserID:           claims.SubjectID,
		Email:            claims.Email,
		OrganizationID:   claims.OrganizationID,
		Role:             claims.Role,
		OrganizationType: claims.OrganizationType,
		SessionID:        claims.TokenID,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
	}
}
