package app

import (
	"context"
	"fmt"

	"github.com/mesaops/perimeter/internal/auth/directory"
	authHTTP "github.com/mesaops/perimeter/internal/auth/http"
	authRepository "github.com/mesaops/perimeter/internal/auth/repository"
	authService "github.com/mesaops/perimeter/internal/auth/service"
	authUseCase "github.com/mesaops/perimeter/internal/auth/usecase"
	"github.com/mesaops/perimeter/internal/validation"
)

// SigningKeyRepository returns the signing key repository based on database driver.
func (c *Container) SigningKeyRepository() (authUseCase.SigningKeyRepository, error) {
	var err error
	c.signingKeyRepoInit.Do(func() {
		c.signingKeyRepo, err = c.initSigningKeyRepository()
		if err != nil {
			c.initErrors["signingKeyRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["signingKeyRepo"]; exists {
		return nil, storedErr
	}
	return c.signingKeyRepo, nil
}

// RevokedTokenRepository returns the revoked token repository based on database driver.
func (c *Container) RevokedTokenRepository() (authUseCase.RevokedTokenRepository, error) {
	var err error
	c.revokedTokenRepoInit.Do(func() {
		c.revokedTokenRepo, err = c.initRevokedTokenRepository()
		if err != nil {
			c.initErrors["revokedTokenRepo"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["revokedTokenRepo"]; exists {
		return nil, storedErr
	}
	return c.revokedTokenRepo, nil
}

// KMSKeeper returns the keeper used to encrypt signing key material at rest.
func (c *Container) KMSKeeper() (authService.KMSKeeper, error) {
	var err error
	c.kmsKeeperInit.Do(func() {
		c.kmsKeeper, err = c.initKMSKeeper()
		if err != nil {
			c.initErrors["kmsKeeper"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["kmsKeeper"]; exists {
		return nil, storedErr
	}
	return c.kmsKeeper, nil
}

// KeyPairService returns the RSA key pair service.
func (c *Container) KeyPairService() (*authService.KeyPairService, error) {
	var err error
	c.keyPairServiceInit.Do(func() {
		c.keyPairService, err = c.initKeyPairService()
		if err != nil {
			c.initErrors["keyPairService"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["keyPairService"]; exists {
		return nil, storedErr
	}
	return c.keyPairService, nil
}

// DirectoryClient returns the client for the external user directory.
func (c *Container) DirectoryClient() (authUseCase.DirectoryClient, error) {
	var err error
	c.directoryClientInit.Do(func() {
		c.directoryClient, err = c.initDirectoryClient()
		if err != nil {
			c.initErrors["directoryClient"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["directoryClient"]; exists {
		return nil, storedErr
	}
	return c.directoryClient, nil
}

// TokenUseCase returns the token use case.
func (c *Container) TokenUseCase() (authUseCase.TokenUseCase, error) {
	var err error
	c.tokenUseCaseInit.Do(func() {
		c.tokenUseCase, err = c.initTokenUseCase()
		if err != nil {
			c.initErrors["tokenUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["tokenUseCase"]; exists {
		return nil, storedErr
	}
	return c.tokenUseCase, nil
}

// AuthUseCase returns the auth use case.
func (c *Container) AuthUseCase() (authUseCase.AuthUseCase, error) {
	var err error
	c.authUseCaseInit.Do(func() {
		c.authUseCase, err = c.initAuthUseCase()
		if err != nil {
			c.initErrors["authUseCase"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["authUseCase"]; exists {
		return nil, storedErr
	}
	return c.authUseCase, nil
}

// Gateway returns the request validation gateway.
func (c *Container) Gateway() *validation.Gateway {
	c.gatewayInit.Do(func() {
		c.gateway = validation.NewGateway(c.SecLogger(), c.config.MaxBodySize)
	})
	return c.gateway
}

// RateLimiter returns the per-client rate limiter for auth endpoints.
func (c *Container) RateLimiter() *validation.RateLimiter {
	c.rateLimiterInit.Do(func() {
		c.rateLimiter = validation.NewRateLimiter(
			c.config.RateLimitRequestsPerSec,
			c.config.RateLimitBurst,
		)
	})
	return c.rateLimiter
}

// GuardMiddleware returns the middleware bundle protecting guarded routes.
func (c *Container) GuardMiddleware() (*authHTTP.GuardMiddleware, error) {
	var err error
	c.guardInit.Do(func() {
		c.guard, err = c.initGuardMiddleware()
		if err != nil {
			c.initErrors["guard"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["guard"]; exists {
		return nil, storedErr
	}
	return c.guard, nil
}

// AuthHandler returns the HTTP handler for authentication operations.
func (c *Container) AuthHandler() (*authHTTP.AuthHandler, error) {
	var err error
	c.authHandlerInit.Do(func() {
		c.authHandler, err = c.initAuthHandler()
		if err != nil {
			c.initErrors["authHandler"] = err
		}
	})
	if err != nil {
		return nil, err
	}
	if storedErr, exists := c.initErrors["authHandler"]; exists {
		return nil, storedErr
	}
	return c.authHandler, nil
}

// initSigningKeyRepository creates the signing key repository based on the database driver.
func (c *Container) initSigningKeyRepository() (authUseCase.SigningKeyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for signing key repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return authRepository.NewPostgreSQLSigningKeyRepository(db), nil
	case "mysql":
		return authRepository.NewMySQLSigningKeyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initRevokedTokenRepository creates the revoked token repository based on the database driver.
func (c *Container) initRevokedTokenRepository() (authUseCase.RevokedTokenRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for revoked token repository: %w", err)
	}

	switch c.config.DBDriver {
	case "postgres":
		return authRepository.NewPostgreSQLRevokedTokenRepository(db), nil
	case "mysql":
		return authRepository.NewMySQLRevokedTokenRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initKMSKeeper opens the configured KMS keeper.
func (c *Container) initKMSKeeper() (authService.KMSKeeper, error) {
	if c.config.KMSKeyURI == "" {
		return nil, fmt.Errorf("KMS_KEY_URI is required to protect signing keys at rest")
	}

	keeper, err := authService.NewKMSService().OpenKeeper(context.Background(), c.config.KMSKeyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to open KMS keeper: %w", err)
	}

	return keeper, nil
}

// initKeyPairService creates the key pair service with the KMS keeper.
func (c *Container) initKeyPairService() (*authService.KeyPairService, error) {
	keeper, err := c.KMSKeeper()
	if err != nil {
		return nil, fmt.Errorf("failed to get kms keeper for key pair service: %w", err)
	}
	return authService.NewKeyPairService(keeper), nil
}

// initDirectoryClient creates the user directory client.
func (c *Container) initDirectoryClient() (authUseCase.DirectoryClient, error) {
	if c.config.DirectoryBaseURL == "" {
		return nil, fmt.Errorf("DIRECTORY_BASE_URL is required for authentication")
	}
	return directory.NewClient(c.config.DirectoryBaseURL, c.config.DirectoryTimeout), nil
}

// initTokenUseCase creates the token use case with all its dependencies.
func (c *Container) initTokenUseCase() (authUseCase.TokenUseCase, error) {
	signingKeyRepo, err := c.SigningKeyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get signing key repository for token use case: %w", err)
	}

	revokedTokenRepo, err := c.RevokedTokenRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get revoked token repository for token use case: %w", err)
	}

	keyPairService, err := c.KeyPairService()
	if err != nil {
		return nil, fmt.Errorf("failed to get key pair service for token use case: %w", err)
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for token use case: %w", err)
	}

	baseUseCase := authUseCase.NewTokenUseCase(
		c.config,
		signingKeyRepo,
		revokedTokenRepo,
		keyPairService,
		txManager,
		c.SecLogger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for token use case: %w", err)
		}
		return authUseCase.NewTokenUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initAuthUseCase creates the auth use case with all its dependencies.
func (c *Container) initAuthUseCase() (authUseCase.AuthUseCase, error) {
	directoryClient, err := c.DirectoryClient()
	if err != nil {
		return nil, fmt.Errorf("failed to get directory client for auth use case: %w", err)
	}

	tokenUseCase, err := c.TokenUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get token use case for auth use case: %w", err)
	}

	baseUseCase := authUseCase.NewAuthUseCase(
		c.config,
		directoryClient,
		tokenUseCase,
		c.SecLogger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for auth use case: %w", err)
		}
		return authUseCase.NewAuthUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initGuardMiddleware creates the guard middleware with all its dependencies.
func (c *Container) initGuardMiddleware() (*authHTTP.GuardMiddleware, error) {
	auth, err := c.AuthUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth use case for guard middleware: %w", err)
	}

	return authHTTP.NewGuardMiddleware(
		auth,
		c.Gateway(),
		c.RateLimiter(),
		c.SecLogger(),
		c.Logger(),
	), nil
}

// initAuthHandler creates the auth HTTP handler with all its dependencies.
func (c *Container) initAuthHandler() (*authHTTP.AuthHandler, error) {
	auth, err := c.AuthUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get auth use case for auth handler: %w", err)
	}

	tokens, err := c.TokenUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get token use case for auth handler: %w", err)
	}

	return authHTTP.NewAuthHandler(
		c.config,
		auth,
		tokens,
		c.Gateway(),
		c.SecLogger(),
		c.Logger(),
	), nil
}
