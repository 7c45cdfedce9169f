package usecase

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	"github.com/mesaops/perimeter/internal/config"
	apperrors "github.com/mesaops/perimeter/internal/errors"
	"github.com/mesaops/perimeter/internal/seclog"
)

// stubDirectory fakes the external user directory.
type stubDirectory struct {
	users           map[string]string // email -> password
	identity        *authDomain.Identity
	authenticateErr error
	registerErr     error
	lastRegister    *authDomain.RegisterInput
}

func newStubDirectory(email, password string) *stubDirectory {
	return &stubDirectory{
		users: map[string]string{email: password},
		identity: &authDomain.Identity{
			UserID:           "user-1",
			Email:            email,
			OrganizationID:   "org-1",
			Role:             authDomain.RoleSupplierAdmin,
			OrganizationType: authDomain.OrganizationTypeSupplier,
		},
	}
}

func (s *stubDirectory) Authenticate(_ context.Context, input *authDomain.LoginInput) (*authDomain.Identity, error) {
	if s.authenticateErr != nil {
		return nil, s.authenticateErr
	}
	password, ok := s.users[input.Email]
	if !ok || password != input.Password {
		return nil, authDomain.ErrInvalidCredentials
	}
	return s.identity, nil
}

func (s *stubDirectory) Register(_ context.Context, input *authDomain.RegisterInput) (*authDomain.Identity, error) {
	s.lastRegister = input
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &authDomain.Identity{
		UserID:           "user-2",
		Email:            input.Email,
		OrganizationID:   input.OrganizationID,
		Role:             input.Role,
		OrganizationType: input.OrganizationType,
	}, nil
}

func testAuthConfig() *config.Config {
	cfg := testTokenConfig()
	cfg.LockoutMaxAttempts = 3
	cfg.LockoutDuration = 15 * time.Minute
	return cfg
}

func newTestAuthUseCase(t *testing.T, directory DirectoryClient) (AuthUseCase, *tokenUseCase) {
	t.Helper()

	cfg := testAuthConfig()
	tokens := NewTokenUseCase(
		cfg,
		newMemoryKeyStore(),
		newMemoryRevocationStore(),
		testKeyPairService(t),
		passthroughTxManager{},
		testSecLogger(),
	).(*tokenUseCase)
	require.NoError(t, tokens.Initialize(context.Background()))

	return NewAuthUseCase(cfg, directory, tokens, testSecLogger()), tokens
}

func TestAuthUseCase_Login(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	uc, tokens := newTestAuthUseCase(t, directory)
	ctx := context.Background()

	output, err := uc.Login(ctx, &authDomain.LoginInput{
		Email:     "chef@bistro.example",
		Password:  "s3cret-Pass!",
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	require.NotNil(t, output.Credentials)
	assert.NotEmpty(t, output.CSRFToken)
	assert.Equal(t, "user-1", output.Identity.UserID)

	claims, err := tokens.Verify(ctx, output.Credentials.AccessToken, authDomain.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, authDomain.RoleSupplierAdmin, claims.Role)
}

func TestAuthUseCase_Login_NormalizesEmail(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	uc, _ := newTestAuthUseCase(t, directory)

	output, err := uc.Login(context.Background(), &authDomain.LoginInput{
		Email:    "  Chef@Bistro.Example  ",
		Password: "s3cret-Pass!",
	})
	require.NoError(t, err)
	assert.Equal(t, "chef@bistro.example", output.Identity.Email)
}

func TestAuthUseCase_Login_InvalidCredentials(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	uc, _ := newTestAuthUseCase(t, directory)
	ctx := context.Background()

	tests := []struct {
		name  string
		email string
	}{
		{"wrong password", "chef@bistro.example"},
		{"unknown email", "nobody@bistro.example"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Both failure modes return the same generic error.
			_, err := uc.Login(ctx, &authDomain.LoginInput{Email: tt.email, Password: "wrong"})
			assert.ErrorIs(t, err, authDomain.ErrInvalidCredentials)
		})
	}
}

func TestAuthUseCase_Login_LockoutAfterRepeatedFailures(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	uc, _ := newTestAuthUseCase(t, directory)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := uc.Login(ctx, &authDomain.LoginInput{Email: "chef@bistro.example", Password: "wrong"})
		assert.ErrorIs(t, err, authDomain.ErrInvalidCredentials)
	}

	// The lockout also rejects the correct password, and case variations
	// of the email hit the same counter.
	_, err := uc.Login(ctx, &authDomain.LoginInput{Email: "chef@bistro.example", Password: "s3cret-Pass!"})
	assert.ErrorIs(t, err, authDomain.ErrAccountLocked)
	_, err = uc.Login(ctx, &authDomain.LoginInput{Email: "CHEF@bistro.example", Password: "s3cret-Pass!"})
	assert.ErrorIs(t, err, authDomain.ErrAccountLocked)
}

func TestAuthUseCase_Login_SuccessResetsFailureCount(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	uc, _ := newTestAuthUseCase(t, directory)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := uc.Login(ctx, &authDomain.LoginInput{Email: "chef@bistro.example", Password: "wrong"})
		require.ErrorIs(t, err, authDomain.ErrInvalidCredentials)
	}

	_, err := uc.Login(ctx, &authDomain.LoginInput{Email: "chef@bistro.example", Password: "s3cret-Pass!"})
	require.NoError(t, err)

	// The counter restarted: two more failures do not lock the account.
	for i := 0; i < 2; i++ {
		_, err := uc.Login(ctx, &authDomain.LoginInput{Email: "chef@bistro.example", Password: "wrong"})
		assert.ErrorIs(t, err, authDomain.ErrInvalidCredentials)
	}
}

func TestAuthUseCase_Register(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	uc, tokens := newTestAuthUseCase(t, directory)
	ctx := context.Background()

	output, err := uc.Register(ctx, &authDomain.RegisterInput{
		Email:            "  Buyer@Fresh.Example ",
		Password:         "An0ther-Pass!",
		Name:             "Buyer One",
		OrganizationID:   "org-9",
		Role:             authDomain.RoleRestaurantStaff,
		OrganizationType: authDomain.OrganizationTypeRestaurant,
	})
	require.NoError(t, err)
	assert.Equal(t, "buyer@fresh.example", directory.lastRegister.Email)

	claims, err := tokens.Verify(ctx, output.Credentials.AccessToken, authDomain.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-2", claims.SubjectID)
	assert.Equal(t, authDomain.RoleRestaurantStaff, claims.Role)
}

func TestAuthUseCase_VerifyAuth(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	uc, _ := newTestAuthUseCase(t, directory)
	ctx := context.Background()

	output, err := uc.Login(ctx, &authDomain.LoginInput{Email: "chef@bistro.example", Password: "s3cret-Pass!"})
	require.NoError(t, err)

	secCtx, err := uc.VerifyAuth(ctx, output.Credentials.AccessToken, "203.0.113.7", "test-agent")
	require.NoError(t, err)
	assert.Equal(t, "user-1", secCtx.UserID)
	assert.Equal(t, "org-1", secCtx.OrganizationID)
	assert.Equal(t, "203.0.113.7", secCtx.IPAddress)
	assert.Equal(t, "test-agent", secCtx.UserAgent)
	assert.NotEmpty(t, secCtx.SessionID)

	// A refresh credential is not an access credential.
	_, err = uc.VerifyAuth(ctx, output.Credentials.RefreshToken, "", "")
	assert.ErrorIs(t, err, authDomain.ErrWrongTokenKind)
}

func TestAuthUseCase_Logout(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	uc, tokens := newTestAuthUseCase(t, directory)
	ctx := context.Background()

	output, err := uc.Login(ctx, &authDomain.LoginInput{Email: "chef@bistro.example", Password: "s3cret-Pass!"})
	require.NoError(t, err)

	require.NoError(t, uc.Logout(ctx, output.Credentials.AccessToken, output.Credentials.RefreshToken))

	_, err = tokens.Verify(ctx, output.Credentials.AccessToken, authDomain.AccessToken)
	assert.ErrorIs(t, err, authDomain.ErrInvalidToken)
	_, err = tokens.Verify(ctx, output.Credentials.RefreshToken, authDomain.RefreshToken)
	assert.ErrorIs(t, err, authDomain.ErrInvalidToken)

	// Logout tolerates garbage and missing credentials.
	assert.NoError(t, uc.Logout(ctx, "garbage", ""))
}

func TestGenerateCSRFToken_Distinct(t *testing.T) {
	first, err := generateCSRFToken()
	require.NoError(t, err)
	second, err := generateCSRFToken()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.GreaterOrEqual(t, len(first), 43)
}

// newCapturingAuthUseCase routes security events into a buffer so tests can
// assert on what the use case emits.
func newCapturingAuthUseCase(t *testing.T, directory DirectoryClient) (AuthUseCase, *bytes.Buffer) {
	t.Helper()

	cfg := testAuthConfig()
	tokens := NewTokenUseCase(
		cfg,
		newMemoryKeyStore(),
		newMemoryRevocationStore(),
		testKeyPairService(t),
		passthroughTxManager{},
		testSecLogger(),
	).(*tokenUseCase)
	require.NoError(t, tokens.Initialize(context.Background()))

	var buf bytes.Buffer
	secLogger := seclog.New(slog.New(slog.NewJSONHandler(&buf, nil)))
	return NewAuthUseCase(cfg, directory, tokens, secLogger), &buf
}

func TestAuthUseCase_Login_UpstreamFailureIsLogged(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	directory.authenticateErr = errors.New("directory unreachable")
	uc, logBuf := newCapturingAuthUseCase(t, directory)

	_, err := uc.Login(context.Background(), &authDomain.LoginInput{
		Email:     "chef@bistro.example",
		Password:  "s3cret-Pass!",
		IPAddress: "203.0.113.7",
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, authDomain.ErrInvalidCredentials)
	assert.Contains(t, logBuf.String(), `"event":"login_upstream_failed"`)
	assert.Contains(t, logBuf.String(), `"level":"WARN"`)
}

func TestAuthUseCase_Register_FailureIsLogged(t *testing.T) {
	directory := newStubDirectory("chef@bistro.example", "s3cret-Pass!")
	directory.registerErr = apperrors.ErrConflict
	uc, logBuf := newCapturingAuthUseCase(t, directory)

	_, err := uc.Register(context.Background(), &authDomain.RegisterInput{
		Email:            "Chef@Bistro.Example",
		Password:         "Str0ng!Passw0rd",
		Name:             "Chef",
		OrganizationID:   "org-1",
		Role:             authDomain.RoleSupplierAdmin,
		OrganizationType: authDomain.OrganizationTypeSupplier,
		IPAddress:        "203.0.113.7",
	})
	require.ErrorIs(t, err, apperrors.ErrConflict)
	assert.Contains(t, logBuf.String(), `"event":"registration_failed"`)
	assert.Contains(t, logBuf.String(), `"email":"chef@bistro.example"`)
}
