// Package directory implements the HTTP client for the external user
// directory that owns user records and password verification.
package directory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	apperrors "github.com/mesaops/perimeter/internal/errors"
)

// Client talks to the user directory over HTTP. Login failures are reported
// as ErrInvalidCredentials without distinguishing the cause; transport and
// 5xx failures surface as ErrUpstream.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a directory client. The timeout bounds every call.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// identityPayload is the directory's JSON identity shape.
type identityPayload struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	OrganizationID   string `json:"organization_id"`
	Role             string `json:"role"`
	OrganizationType string `json:"organization_type"`
}

func (p *identityPayload) toDomain() *authDomain.Identity {
	return &authDomain.Identity{
		UserID:           p.UserID,
		Email:            p.Email,
		OrganizationID:   p.OrganizationID,
		Role:             p.Role,
		OrganizationType: p.OrganizationType,
	}
}

// Authenticate verifies a login attempt against POST /auth/login.
func (c *Client) Authenticate(ctx context.Context, input *authDomain.LoginInput) (*authDomain.Identity, error) {
	body := map[string]string{
		"email":    input.Email,
		"password": input.Password,
	}
	return c.post(ctx, "/auth/login", body, input.IPAddress, input.UserAgent)
}

// Register creates a user record via POST /auth/register.
func (c *Client) Register(ctx context.Context, input *authDomain.RegisterInput) (*authDomain.Identity, error) {
	body := map[string]string{
		"email":             input.Email,
		"password":          input.Password,
		"name":              input.Name,
		"organization_id":   input.OrganizationID,
		"role":              input.Role,
		"organization_type": input.OrganizationType,
	}
	return c.post(ctx, "/auth/register", body, input.IPAddress, input.UserAgent)
}

func (c *Client) post(ctx context.Context, path string, body map[string]string, ipAddress, userAgent string) (*authDomain.Identity, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode directory request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to build directory request")
	}
	req.Header.Set("Content-Type", "application/json")
	// Forward the caller's origin so the directory can apply its own
	// throttling and audit trail.
	if ipAddress != "" {
		req.Header.Set("X-Forwarded-For", ipAddress)
	}
	if userAgent != "" {
		req.Header.Set("User-Agent", userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUpstream, fmt.Sprintf("directory unreachable: %v", err))
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		var identity identityPayload
		if err := json.NewDecoder(resp.Body).Decode(&identity); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrUpstream, "directory returned malformed identity")
		}
		if identity.UserID == "" {
			return nil, apperrors.Wrap(apperrors.ErrUpstream, "directory returned empty identity")
		}
		return identity.toDomain(), nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusNotFound:
		// Any authentication failure collapses into the generic error.
		return nil, authDomain.ErrInvalidCredentials
	case resp.StatusCode == http.StatusConflict:
		return nil, apperrors.Wrap(apperrors.ErrConflict, "email already registered")
	default:
		return nil, apperrors.Wrap(apperrors.ErrUpstream, fmt.Sprintf("directory returned status %d", resp.StatusCode))
	}
}
