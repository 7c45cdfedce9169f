package http

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	authUseCase "github.com/mesaops/perimeter/internal/auth/usecase"
	"github.com/mesaops/perimeter/internal/httputil"
	"github.com/mesaops/perimeter/internal/seclog"
	"github.com/mesaops/perimeter/internal/validation"
)

// securityContextKey is the gin context key holding the per-request
// SecurityContext after a successful guard pass.
const securityContextKey = "perimeter.security_context"

// SecurityContextFromGin returns the verified identity attached by RequireAuth.
func SecurityContextFromGin(c *gin.Context) (*authDomain.SecurityContext, bool) {
	value, exists := c.Get(securityContextKey)
	if !exists {
		return nil, false
	}
	secCtx, ok := value.(*authDomain.SecurityContext)
	return secCtx, ok
}

// GuardMiddleware builds the request guards: authentication, role checks,
// rate limiting, and CSRF enforcement.
type GuardMiddleware struct {
	authUseCase authUseCase.AuthUseCase
	gateway     *validation.Gateway
	rateLimiter *validation.RateLimiter
	secLogger   *seclog.Logger
	logger      *slog.Logger
}

// NewGuardMiddleware creates the guard middleware bundle.
func NewGuardMiddleware(
	auth authUseCase.AuthUseCase,
	gateway *validation.Gateway,
	rateLimiter *validation.RateLimiter,
	secLogger *seclog.Logger,
	logger *slog.Logger,
) *GuardMiddleware {
	return &GuardMiddleware{
		authUseCase: auth,
		gateway:     gateway,
		rateLimiter: rateLimiter,
		secLogger:   secLogger,
		logger:      logger,
	}
}

// RequireAuth verifies the access credential and, when allowedRoles is
// non-empty, matches the verified role against it. The credential is read
// from the Authorization header first, then from the access cookie. A valid
// identity is attached to the request as a SecurityContext.
func (g *GuardMiddleware) RequireAuth(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			token, _ = c.Cookie(AccessCookieName)
		}
		if token == "" {
			g.secLogger.Authentication(c.Request.Context(), "missing_credentials", map[string]any{
				"path":       c.FullPath(),
				"ip_address": c.ClientIP(),
			})
			httputil.HandleErrorGin(c, authDomain.ErrInvalidToken, g.logger)
			c.Abort()
			return
		}

		secCtx, err := g.authUseCase.VerifyAuth(c.Request.Context(), token, c.ClientIP(), c.Request.UserAgent())
		if err != nil {
			g.secLogger.Authentication(c.Request.Context(), "token_verification_failed", map[string]any{
				"path":       c.FullPath(),
				"ip_address": c.ClientIP(),
			})
			httputil.HandleErrorGin(c, authDomain.ErrInvalidToken, g.logger)
			c.Abort()
			return
		}

		if len(allowedRoles) > 0 && !roleAllowed(secCtx.Role, allowedRoles) {
			g.secLogger.Authorization(c.Request.Context(), "insufficient_permissions", map[string]any{
				"path":    c.FullPath(),
				"user_id": secCtx.UserID,
				"role":    secCtx.Role,
			})
			httputil.HandleErrorGin(c, authDomain.ErrInsufficientPermissions, g.logger)
			c.Abort()
			return
		}

		c.Set(securityContextKey, secCtx)
		c.Next()
	}
}

// RateLimit throttles by client IP. Intended for the unauthenticated
// endpoints where credential stuffing concentrates.
func (g *GuardMiddleware) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := c.ClientIP()
		if g.rateLimiter.Allow(identifier) {
			c.Next()
			return
		}

		retryAfter := g.rateLimiter.RetryAfter(identifier)
		g.secLogger.APIThreat(c.Request.Context(), "rate_limit_exceeded", map[string]any{
			"path":       c.FullPath(),
			"ip_address": identifier,
		})

		c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
		c.JSON(http.StatusTooManyRequests, httputil.ErrorResponse{
			Error:   "rate_limited",
			Message: "Too many requests, slow down",
		})
		c.Abort()
	}
}

// RequireCSRF enforces the double-submit check on state-changing requests:
// the X-CSRF-Token header must match the CSRF cookie placed at login.
// Safe methods pass through.
func (g *GuardMiddleware) RequireCSRF() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		expected, err := c.Cookie(CSRFCookieName)
		if err != nil || expected == "" {
			g.secLogger.APIThreat(c.Request.Context(), "csrf_validation_failed", map[string]any{
				"path":       c.FullPath(),
				"ip_address": c.ClientIP(),
				"reason":     "missing_cookie",
			})
			httputil.HandleErrorGin(c, authDomain.ErrInsufficientPermissions, g.logger)
			c.Abort()
			return
		}

		if err := g.gateway.ValidateCSRFToken(c, expected); err != nil {
			httputil.HandleErrorGin(c, err, g.logger)
			c.Abort()
			return
		}
		c.Next()
	}
}

// extractBearerToken pulls the credential out of "Authorization: Bearer ...".
func extractBearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func roleAllowed(role string, allowed []string) bool {
	for _, candidate := range allowed {
		if role == candidate {
			return true
		}
	}
	return false
}
