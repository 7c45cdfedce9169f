package usecase

import (
	"context"
	"time"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	"github.com/mesaops/perimeter/internal/metrics"
)

// tokenUseCaseWithMetrics decorates TokenUseCase with metrics instrumentation.
type tokenUseCaseWithMetrics struct {
	next    TokenUseCase
	metrics metrics.BusinessMetrics
}

// NewTokenUseCaseWithMetrics wraps a TokenUseCase with metrics recording.
func NewTokenUseCaseWithMetrics(useCase TokenUseCase, m metrics.BusinessMetrics) TokenUseCase {
	return &tokenUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (t *tokenUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	t.metrics.RecordOperation(ctx, "token", operation, status)
	t.metrics.RecordDuration(ctx, "token", operation, time.Since(start), status)
}

func (t *tokenUseCaseWithMetrics) Initialize(ctx context.Context) error {
	return t.next.Initialize(ctx)
}

// IssuePair records metrics for credential issuance.
func (t *tokenUseCaseWithMetrics) IssuePair(ctx context.Context, identity *authDomain.Identity) (*authDomain.CredentialPair, error) {
	start := time.Now()
	pair, err := t.next.IssuePair(ctx, identity)
	t.record(ctx, "issue_pair", start, err)
	return pair, err
}

// Verify records metrics for credential verification.
func (t *tokenUseCaseWithMetrics) Verify(ctx context.Context, token string, kind authDomain.TokenKind) (*authDomain.Claims, error) {
	start := time.Now()
	claims, err := t.next.Verify(ctx, token, kind)
	t.record(ctx, "verify", start, err)
	return claims, err
}

// Refresh records metrics for credential refresh operations.
func (t *tokenUseCaseWithMetrics) Refresh(ctx context.Context, refreshToken string) (*authDomain.CredentialPair, error) {
	start := time.Now()
	pair, err := t.next.Refresh(ctx, refreshToken)
	t.record(ctx, "refresh", start, err)
	return pair, err
}

// Revoke records metrics for credential revocation.
func (t *tokenUseCaseWithMetrics) Revoke(ctx context.Context, token string) error {
	start := time.Now()
	err := t.next.Revoke(ctx, token)
	t.record(ctx, "revoke", start, err)
	return err
}

// RotateSigningKey records metrics for signing key rotation.
func (t *tokenUseCaseWithMetrics) RotateSigningKey(ctx context.Context) error {
	start := time.Now()
	err := t.next.RotateSigningKey(ctx)
	t.record(ctx, "rotate_signing_key", start, err)
	return err
}

// PruneExpired records metrics for pruning runs.
func (t *tokenUseCaseWithMetrics) PruneExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	pruned, err := t.next.PruneExpired(ctx)
	t.record(ctx, "prune_expired", start, err)
	return pruned, err
}

func (t *tokenUseCaseWithMetrics) StartRotation(ctx context.Context) {
	t.next.StartRotation(ctx)
}

// authUseCaseWithMetrics decorates AuthUseCase with metrics instrumentation.
type authUseCaseWithMetrics struct {
	next    AuthUseCase
	metrics metrics.BusinessMetrics
}

// NewAuthUseCaseWithMetrics wraps an AuthUseCase with metrics recording.
func NewAuthUseCaseWithMetrics(useCase AuthUseCase, m metrics.BusinessMetrics) AuthUseCase {
	return &authUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

func (a *authUseCaseWithMetrics) record(ctx context.Context, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordOperation(ctx, "auth", operation, status)
	a.metrics.RecordDuration(ctx, "auth", operation, time.Since(start), status)
}

// Login records metrics for login attempts.
func (a *authUseCaseWithMetrics) Login(ctx context.Context, input *authDomain.LoginInput) (*authDomain.AuthOutput, error) {
	start := time.Now()
	output, err := a.next.Login(ctx, input)
	a.record(ctx, "login", start, err)
	return output, err
}

// Register records metrics for registrations.
func (a *authUseCaseWithMetrics) Register(ctx context.Context, input *authDomain.RegisterInput) (*authDomain.AuthOutput, error) {
	start := time.Now()
	output, err := a.next.Register(ctx, input)
	a.record(ctx, "register", start, err)
	return output, err
}

// VerifyAuth records metrics for guard verification.
func (a *authUseCaseWithMetrics) VerifyAuth(ctx context.Context, accessToken, ipAddress, userAgent string) (*authDomain.SecurityContext, error) {
	start := time.Now()
	secCtx, err := a.next.VerifyAuth(ctx, accessToken, ipAddress, userAgent)
	a.record(ctx, "verify_auth", start, err)
	return secCtx, err
}

// Logout records metrics for logouts.
func (a *authUseCaseWithMetrics) Logout(ctx context.Context, accessToken, refreshToken string) error {
	start := time.Now()
	err := a.next.Logout(ctx, accessToken, refreshToken)
	a.record(ctx, "logout", start, err)
	return err
}
