// Package usecase implements business logic orchestration for the credential
// lifecycle and the login flows.
package usecase

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	authService "github.com/mesaops/perimeter/internal/auth/service"
	"github.com/mesaops/perimeter/internal/config"
	"github.com/mesaops/perimeter/internal/database"
	"github.com/mesaops/perimeter/internal/seclog"
)

// credentialClaims is the JWT shape of authDomain.Claims.
type credentialClaims struct {
	Email            string `json:"email,omitempty"`
	OrganizationID   string `json:"org_id,omitempty"`
	Role             string `json:"role,omitempty"`
	OrganizationType string `json:"org_type,omitempty"`
	Kind             string `json:"kind"`
	jwt.RegisteredClaims
}

// tokenUseCase implements TokenUseCase. Signing keys live encrypted in the
// repository; the keyring caches the unwrapped signer and public keys so the
// verify path normally never touches the database for key material.
type tokenUseCase struct {
	config      *config.Config
	keyRepo     SigningKeyRepository
	revokedRepo RevokedTokenRepository
	keyPairs    *authService.KeyPairService
	txManager   database.TxManager
	secLogger   *seclog.Logger
	keyring     *keyring
	now         func() time.Time
}

// NewTokenUseCase creates a new token use case.
func NewTokenUseCase(
	cfg *config.Config,
	keyRepo SigningKeyRepository,
	revokedRepo RevokedTokenRepository,
	keyPairs *authService.KeyPairService,
	txManager database.TxManager,
	secLogger *seclog.Logger,
) TokenUseCase {
	return &tokenUseCase{
		config:      cfg,
		keyRepo:     keyRepo,
		revokedRepo: revokedRepo,
		keyPairs:    keyPairs,
		txManager:   txManager,
		secLogger:   secLogger,
		keyring:     newKeyring(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// verifyWindow is how long a key must stay verifiable if it were retired the
// moment it was created: a full rotation interval of signing plus the grace
// window for credentials signed right before rotation.
func (t *tokenUseCase) verifyWindow() time.Duration {
	return t.config.KeyRotationInterval + t.config.KeyGracePeriod
}

// Initialize loads the active signing key into the keyring, creating the very
// first key when the store is empty.
func (t *tokenUseCase) Initialize(ctx context.Context) error {
	key, err := t.keyRepo.GetActive(ctx)
	if errors.Is(err, authDomain.ErrNoActiveKey) {
		key, err = t.createKey(ctx)
	}
	if err != nil {
		return err
	}

	privateKey, err := t.keyPairs.UnwrapPrivateKey(ctx, key)
	if err != nil {
		return err
	}

	t.keyring.SetSigner(key.Kid, privateKey, key.ExpiresAt)
	return nil
}

// createKey generates and persists a fresh active signing key.
func (t *tokenUseCase) createKey(ctx context.Context) (*authDomain.SigningKey, error) {
	key, err := t.keyPairs.Generate(ctx, t.now(), t.verifyWindow())
	if err != nil {
		return nil, err
	}
	if err := t.keyRepo.Create(ctx, key); err != nil {
		return nil, err
	}

	t.secLogger.DataAccess(ctx, "signing_key_created", map[string]any{
		"kid":        key.Kid,
		"algorithm":  key.Algorithm,
		"expires_at": key.ExpiresAt.Format(time.RFC3339),
	})
	return key, nil
}

// IssuePair mints one access and one refresh credential for the identity.
func (t *tokenUseCase) IssuePair(ctx context.Context, identity *authDomain.Identity) (*authDomain.CredentialPair, error) {
	kid, privateKey, ok := t.keyring.Signer()
	if !ok {
		if err := t.Initialize(ctx); err != nil {
			return nil, err
		}
		kid, privateKey, _ = t.keyring.Signer()
	}

	now := t.now()
	accessExpiresAt := now.Add(t.config.AccessTokenTTL)
	refreshExpiresAt := now.Add(t.config.RefreshTokenTTL)

	accessToken, err := t.sign(kid, privateKey, identity, authDomain.AccessToken, now, accessExpiresAt)
	if err != nil {
		return nil, err
	}
	refreshToken, err := t.sign(kid, privateKey, identity, authDomain.RefreshToken, now, refreshExpiresAt)
	if err != nil {
		return nil, err
	}

	return &authDomain.CredentialPair{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExpiresAt,
		RefreshExpiresAt: refreshExpiresAt,
	}, nil
}

// sign builds and signs a single credential. Each credential gets its own
// token ID so access and refresh halves revoke independently.
func (t *tokenUseCase) sign(
	kid string,
	privateKey *rsa.PrivateKey,
	identity *authDomain.Identity,
	kind authDomain.TokenKind,
	issuedAt, expiresAt time.Time,
) (string, error) {
	claims := credentialClaims{
		Email:            identity.Email,
		OrganizationID:   identity.OrganizationID,
		Role:             identity.Role,
		OrganizationType: identity.OrganizationType,
		Kind:             string(kind),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.config.TokenIssuer,
			Subject:   identity.UserID,
			ID:        uuid.Must(uuid.NewV7()).String(),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = kid

	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", authDomain.ErrInvalidToken
	}
	return signed, nil
}

// Verify validates signature, expiry, kind, and revocation status. Expiry is
// strict: a credential is invalid from the instant its expiry is reached.
func (t *tokenUseCase) Verify(ctx context.Context, token string, kind authDomain.TokenKind) (*authDomain.Claims, error) {
	claims, err := t.parse(ctx, token)
	if err != nil {
		return nil, err
	}

	now := t.now()
	if now.Unix() >= claims.ExpiresAt {
		return nil, authDomain.ErrInvalidToken
	}
	if claims.Kind != kind {
		return nil, authDomain.ErrWrongTokenKind
	}

	// Shared revocation set: fail closed on store errors.
	revoked, err := t.revokedRepo.Exists(ctx, claims.TokenID)
	if err != nil {
		return nil, authDomain.ErrInvalidToken
	}
	if revoked {
		return nil, authDomain.ErrInvalidToken
	}

	return claims, nil
}

// parse checks the signature and shape of a credential without applying the
// expiry, kind, or revocation rules. Revoke uses it directly so an expired
// credential can still be revoked as a no-op.
func (t *tokenUseCase) parse(ctx context.Context, token string) (*authDomain.Claims, error) {
	var claims credentialClaims

	// Expiry is applied by the callers with strict semantics, so claims
	// validation is deferred here.
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{authDomain.SigningAlgorithm}),
		jwt.WithoutClaimsValidation(),
	)

	_, err := parser.ParseWithClaims(token, &claims, func(parsed *jwt.Token) (any, error) {
		kid, _ := parsed.Header["kid"].(string)
		if kid == "" {
			return nil, authDomain.ErrInvalidToken
		}
		return t.verificationKey(ctx, kid)
	})
	if err != nil {
		return nil, authDomain.ErrInvalidToken
	}

	if claims.ID == "" || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return nil, authDomain.ErrInvalidToken
	}
	if claims.Issuer != t.config.TokenIssuer {
		return nil, authDomain.ErrInvalidToken
	}

	return &authDomain.Claims{
		SubjectID:        claims.Subject,
		Email:            claims.Email,
		OrganizationID:   claims.OrganizationID,
		Role:             claims.Role,
		OrganizationType: claims.OrganizationType,
		Kind:             authDomain.TokenKind(claims.Kind),
		TokenID:          claims.ID,
		IssuedAt:         claims.IssuedAt.Unix(),
		ExpiresAt:        claims.ExpiresAt.Unix(),
	}, nil
}

// verificationKey resolves a kid to a public key: keyring first, then the
// store. A key outside its verification window resolves to ErrKeyNotFound
// even when the row still exists.
func (t *tokenUseCase) verificationKey(ctx context.Context, kid string) (any, error) {
	now := t.now()
	if publicKey, ok := t.keyring.Verifier(kid, now); ok {
		return publicKey, nil
	}

	key, err := t.keyRepo.GetByKid(ctx, kid)
	if err != nil {
		return nil, err
	}
	if !key.CanVerify(now) {
		return nil, authDomain.ErrKeyNotFound
	}

	publicKey, err := authService.ParsePublicKey(key.PublicKeyPEM)
	if err != nil {
		return nil, err
	}

	t.keyring.AddVerifier(kid, publicKey, key.ExpiresAt)
	return publicKey, nil
}

// Refresh exchanges a refresh credential for a new pair. The presented
// credential is revoked before the new pair is minted, so a replayed refresh
// credential fails even if the minting step below were to fail.
func (t *tokenUseCase) Refresh(ctx context.Context, refreshToken string) (*authDomain.CredentialPair, error) {
	claims, err := t.Verify(ctx, refreshToken, authDomain.RefreshToken)
	if err != nil {
		return nil, err
	}

	if err := t.revokedRepo.Create(ctx, &authDomain.RevokedToken{
		TokenID:   claims.TokenID,
		ExpiresAt: time.Unix(claims.ExpiresAt, 0).UTC(),
		RevokedAt: t.now(),
	}); err != nil {
		return nil, err
	}

	t.secLogger.Authentication(ctx, "token_refreshed", map[string]any{
		"user_id":         claims.SubjectID,
		"organization_id": claims.OrganizationID,
	})

	return t.IssuePair(ctx, &authDomain.Identity{
		UserID:           claims.SubjectID,
		Email:            claims.Email,
		OrganizationID:   claims.OrganizationID,
		Role:             claims.Role,
		OrganizationType: claims.OrganizationType,
	})
}

// Revoke adds a credential's token ID to the revocation set. An expired
// credential needs no revocation row; one that is already revoked inserts
// nothing. Both cases succeed.
func (t *tokenUseCase) Revoke(ctx context.Context, token string) error {
	claims, err := t.parse(ctx, token)
	if err != nil {
		return err
	}

	expiresAt := time.Unix(claims.ExpiresAt, 0).UTC()
	if !t.now().Before(expiresAt) {
		return nil
	}

	if err := t.revokedRepo.Create(ctx, &authDomain.RevokedToken{
		TokenID:   claims.TokenID,
		ExpiresAt: expiresAt,
		RevokedAt: t.now(),
	}); err != nil {
		return err
	}

	t.secLogger.Authentication(ctx, "token_revoked", map[string]any{
		"user_id": claims.SubjectID,
		"kind":    string(claims.Kind),
	})
	return nil
}

// RotateSigningKey retires the active key and activates a fresh one inside a
// single transaction. Credentials signed by the retired key keep verifying
// until the grace window ends.
func (t *tokenUseCase) RotateSigningKey(ctx context.Context) error {
	var newKey *authDomain.SigningKey
	var oldKey *authDomain.SigningKey

	err := t.txManager.WithTx(ctx, func(ctx context.Context) error {
		var err error
		oldKey, err = t.keyRepo.GetActive(ctx)
		if err != nil && !errors.Is(err, authDomain.ErrNoActiveKey) {
			return err
		}

		now := t.now()
		newKey, err = t.keyPairs.Generate(ctx, now, t.verifyWindow())
		if err != nil {
			return err
		}
		if err := t.keyRepo.Create(ctx, newKey); err != nil {
			return err
		}

		if oldKey != nil {
			graceEnd := now.Add(t.config.KeyGracePeriod)
			if err := t.keyRepo.Retire(ctx, oldKey.Kid, now, graceEnd); err != nil {
				return err
			}
			oldKey.ExpiresAt = graceEnd
		}
		return nil
	})
	if err != nil {
		return err
	}

	privateKey, err := t.keyPairs.UnwrapPrivateKey(ctx, newKey)
	if err != nil {
		return err
	}

	t.keyring.SetSigner(newKey.Kid, privateKey, newKey.ExpiresAt)
	if oldKey != nil {
		if publicKey, err := authService.ParsePublicKey(oldKey.PublicKeyPEM); err == nil {
			t.keyring.AddVerifier(oldKey.Kid, publicKey, oldKey.ExpiresAt)
		}
	}
	t.keyring.Prune(t.now())

	metadata := map[string]any{"new_kid": newKey.Kid}
	if oldKey != nil {
		metadata["retired_kid"] = oldKey.Kid
		metadata["grace_until"] = oldKey.ExpiresAt.Format(time.RFC3339)
	}
	t.secLogger.DataAccess(ctx, "signing_key_rotated", metadata)

	return nil
}

// PruneExpired removes dead revocation rows and retired keys past their
// grace window.
func (t *tokenUseCase) PruneExpired(ctx context.Context) (int64, error) {
	now := t.now()

	revoked, err := t.revokedRepo.DeleteExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	keys, err := t.keyRepo.DeleteExpired(ctx, now)
	if err != nil {
		return revoked, err
	}

	t.keyring.Prune(now)
	return revoked + keys, nil
}

// StartRotation rotates the signing key on the configured interval, pruning
// expired rows after each rotation. Blocks until ctx is done.
func (t *tokenUseCase) StartRotation(ctx context.Context) {
	ticker := time.NewTicker(t.config.KeyRotationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.RotateSigningKey(ctx); err != nil {
				t.secLogger.Emit(ctx, seclog.LevelError, "signing_key_rotation_failed", map[string]any{
					"error": err.Error(),
				}, "")
				continue
			}
			if _, err := t.PruneExpired(ctx); err != nil {
				t.secLogger.Emit(ctx, seclog.LevelWarn, "revocation_prune_failed", map[string]any{
					"error": err.Error(),
				}, "")
			}
		}
	}
}
