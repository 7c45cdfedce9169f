package usecase

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	"github.com/mesaops/perimeter/internal/config"
	"github.com/mesaops/perimeter/internal/seclog"
)

// authUseCase implements AuthUseCase against the external user directory.
// It never sees password hashes: the directory owns user records and
// password verification, this side owns credentials and session security.
type authUseCase struct {
	config    *config.Config
	directory DirectoryClient
	tokens    TokenUseCase
	secLogger *seclog.Logger
	lockouts  *lockoutTracker
	now       func() time.Time
}

// NewAuthUseCase creates a new auth use case.
func NewAuthUseCase(
	cfg *config.Config,
	directory DirectoryClient,
	tokens TokenUseCase,
	secLogger *seclog.Logger,
) AuthUseCase {
	now := func() time.Time { return time.Now().UTC() }
	return &authUseCase{
		config:    cfg,
		directory: directory,
		tokens:    tokens,
		secLogger: secLogger,
		lockouts:  newLockoutTracker(cfg.LockoutMaxAttempts, cfg.LockoutDuration, now),
		now:       now,
	}
}

// Login authenticates against the user directory and mints a credential pair.
//
// Security notes:
//   - The email is normalized (trimmed, lower-cased) before any comparison,
//     so lockout counting cannot be dodged with case variations.
//   - Every authentication failure surfaces as ErrInvalidCredentials; the
//     caller never learns whether the email exists.
//   - After too many consecutive failures for one email the attempt is
//     rejected locally without reaching the directory.
func (a *authUseCase) Login(ctx context.Context, input *authDomain.LoginInput) (*authDomain.AuthOutput, error) {
	email := normalizeEmail(input.Email)

	if a.lockouts.Locked(email) {
		a.secLogger.Authentication(ctx, "login_locked_out", map[string]any{
			"email":      email,
			"ip_address": input.IPAddress,
		})
		return nil, authDomain.ErrAccountLocked
	}

	identity, err := a.directory.Authenticate(ctx, &authDomain.LoginInput{
		Email:     email,
		Password:  input.Password,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		if errors.Is(err, authDomain.ErrInvalidCredentials) {
			attempts := a.lockouts.Fail(email)
			a.secLogger.Authentication(ctx, "login_failed", map[string]any{
				"email":      email,
				"ip_address": input.IPAddress,
				"attempts":   attempts,
			})
			return nil, authDomain.ErrInvalidCredentials
		}
		a.secLogger.Authentication(ctx, "login_upstream_failed", map[string]any{
			"email":      email,
			"ip_address": input.IPAddress,
			"error":      err.Error(),
		})
		return nil, err
	}

	a.lockouts.Reset(email)

	output, err := a.issueSession(ctx, identity)
	if err != nil {
		a.secLogger.Authentication(ctx, "session_issue_failed", map[string]any{
			"user_id":    identity.UserID,
			"ip_address": input.IPAddress,
		})
		return nil, err
	}

	a.secLogger.Authentication(ctx, "login_success", map[string]any{
		"user_id":         identity.UserID,
		"organization_id": identity.OrganizationID,
		"role":            identity.Role,
		"ip_address":      input.IPAddress,
	})
	return output, nil
}

// Register creates a directory user and logs it straight in.
func (a *authUseCase) Register(ctx context.Context, input *authDomain.RegisterInput) (*authDomain.AuthOutput, error) {
	registration := *input
	registration.Email = normalizeEmail(input.Email)

	identity, err := a.directory.Register(ctx, &registration)
	if err != nil {
		a.secLogger.Authentication(ctx, "registration_failed", map[string]any{
			"email":      registration.Email,
			"ip_address": input.IPAddress,
		})
		return nil, err
	}

	output, err := a.issueSession(ctx, identity)
	if err != nil {
		a.secLogger.Authentication(ctx, "session_issue_failed", map[string]any{
			"user_id":    identity.UserID,
			"ip_address": input.IPAddress,
		})
		return nil, err
	}

	a.secLogger.Authentication(ctx, "registration_success", map[string]any{
		"user_id":         identity.UserID,
		"organization_id": identity.OrganizationID,
		"role":            identity.Role,
		"ip_address":      input.IPAddress,
	})
	return output, nil
}

// issueSession mints a credential pair plus the CSRF token for the
// double-submit cookie.
func (a *authUseCase) issueSession(ctx context.Context, identity *authDomain.Identity) (*authDomain.AuthOutput, error) {
	credentials, err := a.tokens.IssuePair(ctx, identity)
	if err != nil {
		return nil, err
	}

	csrfToken, err := generateCSRFToken()
	if err != nil {
		return nil, err
	}

	return &authDomain.AuthOutput{
		Identity:    identity,
		Credentials: credentials,
		CSRFToken:   csrfToken,
	}, nil
}

// VerifyAuth validates an access credential and shapes its claims into a
// per-request SecurityContext.
func (a *authUseCase) VerifyAuth(ctx context.Context, accessToken, ipAddress, userAgent string) (*authDomain.SecurityContext, error) {
	claims, err := a.tokens.Verify(ctx, accessToken, authDomain.AccessToken)
	if err != nil {
		return nil, err
	}
	return authDomain.ContextFromClaims(claims, ipAddress, userAgent), nil
}

// Logout revokes both credentials of a session. Best-effort: a missing or
// invalid credential is skipped rather than failing the logout.
func (a *authUseCase) Logout(ctx context.Context, accessToken, refreshToken string) error {
	var revoked int
	for _, token := range []string{accessToken, refreshToken} {
		if token == "" {
			continue
		}
		if err := a.tokens.Revoke(ctx, token); err == nil {
			revoked++
		}
	}

	a.secLogger.Authentication(ctx, "logout", map[string]any{
		"credentials_revoked": revoked,
	})
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// generateCSRFToken returns 32 bytes of entropy, URL-safe base64 encoded.
func generateCSRFToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// lockoutTracker counts consecutive authentication failures per email and
// blocks further attempts for the lockout duration once the limit is hit.
// State is per-instance; the directory service applies its own server-side
// throttling on top.
type lockoutTracker struct {
	mu          sync.Mutex
	maxAttempts int
	duration    time.Duration
	now         func() time.Time
	entries     map[string]*lockoutEntry
}

type lockoutEntry struct {
	attempts    int
	lastFailure time.Time
}

func newLockoutTracker(maxAttempts int, duration time.Duration, now func() time.Time) *lockoutTracker {
	return &lockoutTracker{
		maxAttempts: maxAttempts,
		duration:    duration,
		now:         now,
		entries:     map[string]*lockoutEntry{},
	}
}

// Fail records a failed attempt and returns the consecutive failure count.
func (l *lockoutTracker) Fail(email string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[email]
	if !ok || l.now().Sub(entry.lastFailure) > l.duration {
		entry = &lockoutEntry{}
		l.entries[email] = entry
	}
	entry.attempts++
	entry.lastFailure = l.now()
	return entry.attempts
}

// Locked reports whether the email has exhausted its attempts inside the
// lockout window.
func (l *lockoutTracker) Locked(email string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[email]
	if !ok {
		return false
	}
	if l.now().Sub(entry.lastFailure) > l.duration {
		delete(l.entries, email)
		return false
	}
	return entry.attempts >= l.maxAttempts
}

// Reset clears the failure count after a successful login.
func (l *lockoutTracker) Reset(email string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, email)
}
