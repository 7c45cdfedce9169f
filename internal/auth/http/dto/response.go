package dto

import (
	"time"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
)

// UserResponse represents the authenticated identity in API responses.
type UserResponse struct {
	ID               string `json:"id"`
	Email            string `json:"email"`
	OrganizationID   string `json:"organization_id"`
	Role             string `json:"role"`
	OrganizationType string `json:"organization_type"`
}

// SessionResponse is returned by login, register, and refresh. The
// credentials also travel as HTTP-only cookies; the body copy exists for
// non-browser clients. CSRFToken mirrors the readable CSRF cookie.
type SessionResponse struct {
	User             UserResponse `json:"user"`
	AccessToken      string       `json:"access_token"`
	RefreshToken     string       `json:"refresh_token"`
	AccessExpiresAt  time.Time    `json:"access_expires_at"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
	CSRFToken        string       `json:"csrf_token,omitempty"`
}

// MapIdentityToUserResponse converts a directory identity to an API response.
func MapIdentityToUserResponse(identity *authDomain.Identity) UserResponse {
	return UserResponse{
		ID:               identity.UserID,
		Email:            identity.Email,
		OrganizationID:   identity.OrganizationID,
		Role:             identity.Role,
		OrganizationType: identity.OrganizationType,
	}
}

// MapAuthOutputToSessionResponse converts a login/register result to an API response.
func MapAuthOutputToSessionResponse(output *authDomain.AuthOutput) SessionResponse {
	return SessionResponse{
		User:             MapIdentityToUserResponse(output.Identity),
		AccessToken:      output.Credentials.AccessToken,
		RefreshToken:     output.Credentials.RefreshToken,
		AccessExpiresAt:  output.Credentials.AccessExpiresAt,
		RefreshExpiresAt: output.Credentials.RefreshExpiresAt,
		CSRFToken:        output.CSRFToken,
	}
}

// MapSecurityContextToUserResponse converts a per-request security context to
// an API response for GET /v1/auth/me.
func MapSecurityContextToUserResponse(secCtx *authDomain.SecurityContext) UserResponse {
	return UserResponse{
		ID:               secCtx.UserID,
		Email:            secCtx.Email,
		OrganizationID:   secCtx.OrganizationID,
		Role:             secCtx.Role,
		OrganizationType: secCtx.OrganizationType,
	}
}
