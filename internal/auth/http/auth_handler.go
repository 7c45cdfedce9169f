// Package http provides the HTTP handlers and guard middleware for the
// authentication endpoints.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	"github.com/mesaops/perimeter/internal/auth/http/dto"
	authUseCase "github.com/mesaops/perimeter/internal/auth/usecase"
	"github.com/mesaops/perimeter/internal/config"
	"github.com/mesaops/perimeter/internal/httputil"
	"github.com/mesaops/perimeter/internal/seclog"
	"github.com/mesaops/perimeter/internal/validation"
)

// Session cookie names. The credential cookies are HTTP-only; the CSRF cookie
// is readable so the client can reflect it in the X-CSRF-Token header.
const (
	AccessCookieName  = "perimeter_access"
	RefreshCookieName = "perimeter_refresh"
	CSRFCookieName    = "perimeter_csrf"
)

// AuthHandler handles the login, register, refresh, logout, and me endpoints.
// All request bodies pass through the validation gateway before any business
// logic runs.
type AuthHandler struct {
	config      *config.Config
	authUseCase authUseCase.AuthUseCase
	tokens      authUseCase.TokenUseCase
	gateway     *validation.Gateway
	secLogger   *seclog.Logger
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler with required dependencies.
func NewAuthHandler(
	cfg *config.Config,
	auth authUseCase.AuthUseCase,
	tokens authUseCase.TokenUseCase,
	gateway *validation.Gateway,
	secLogger *seclog.Logger,
	logger *slog.Logger,
) *AuthHandler {
	return &AuthHandler{
		config:      cfg,
		authUseCase: auth,
		tokens:      tokens,
		gateway:     gateway,
		secLogger:   secLogger,
		logger:      logger,
	}
}

// LoginHandler authenticates a user and places the session cookies.
// POST /v1/auth/login
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	var req dto.LoginRequest
	if err := h.gateway.ValidateBody(c, &req, validation.BodyOptions{MaxSize: h.config.MaxBodySize}); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	output, err := h.authUseCase.Login(c.Request.Context(), &authDomain.LoginInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.setSessionCookies(c, output)
	c.JSON(http.StatusOK, dto.MapAuthOutputToSessionResponse(output))
}

// RegisterHandler creates a user in the directory and logs it straight in.
// POST /v1/auth/register
func (h *AuthHandler) RegisterHandler(c *gin.Context) {
	var req dto.RegisterRequest
	if err := h.gateway.ValidateBody(c, &req, validation.BodyOptions{MaxSize: h.config.MaxBodySize}); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	output, err := h.authUseCase.Register(c.Request.Context(), &authDomain.RegisterInput{
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
		OrganizationID:   req.OrganizationID,
		Role:             req.Role,
		OrganizationType: req.OrganizationType,
		IPAddress:        c.ClientIP(),
		UserAgent:        c.Request.UserAgent(),
	})
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.setSessionCookies(c, output)
	c.JSON(http.StatusCreated, dto.MapAuthOutputToSessionResponse(output))
}

// RefreshHandler exchanges a refresh credential for a new pair. The credential
// is read from the refresh cookie first, then from the request body.
// POST /v1/auth/refresh
func (h *AuthHandler) RefreshHandler(c *gin.Context) {
	refreshToken, _ := c.Cookie(RefreshCookieName)
	if refreshToken == "" {
		var req dto.RefreshRequest
		if err := h.gateway.ValidateBody(c, &req, validation.BodyOptions{
			MaxSize:    h.config.MaxBodySize,
			AllowEmpty: true,
		}); err != nil {
			httputil.HandleErrorGin(c, err, h.logger)
			return
		}
		refreshToken = req.RefreshToken
	}
	if refreshToken == "" {
		h.secLogger.Authentication(c.Request.Context(), "missing_credentials", map[string]any{
			"path":       c.FullPath(),
			"ip_address": c.ClientIP(),
		})
		httputil.HandleErrorGin(c, authDomain.ErrInvalidToken, h.logger)
		return
	}

	pair, err := h.tokens.Refresh(c.Request.Context(), refreshToken)
	if err != nil {
		h.clearSessionCookies(c)
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	claims, err := h.tokens.Verify(c.Request.Context(), pair.AccessToken, authDomain.AccessToken)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	output := &authDomain.AuthOutput{
		Identity: &authDomain.Identity{
			UserID:           claims.SubjectID,
			Email:            claims.Email,
			OrganizationID:   claims.OrganizationID,
			Role:             claims.Role,
			OrganizationType: claims.OrganizationType,
		},
		Credentials: pair,
	}
	h.setSessionCookies(c, output)
	c.JSON(http.StatusOK, dto.MapAuthOutputToSessionResponse(output))
}

// LogoutHandler revokes the session credentials and clears the cookies.
// Always succeeds: a broken session still ends up logged out client-side.
// POST /v1/auth/logout
func (h *AuthHandler) LogoutHandler(c *gin.Context) {
	accessToken := extractBearerToken(c)
	if accessToken == "" {
		accessToken, _ = c.Cookie(AccessCookieName)
	}
	refreshToken, _ := c.Cookie(RefreshCookieName)

	_ = h.authUseCase.Logout(c.Request.Context(), accessToken, refreshToken)

	h.clearSessionCookies(c)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// MeHandler returns the verified identity of the current session.
// GET /v1/auth/me - requires authentication.
func (h *AuthHandler) MeHandler(c *gin.Context) {
	secCtx, ok := SecurityContextFromGin(c)
	if !ok {
		httputil.HandleErrorGin(c, authDomain.ErrInvalidToken, h.logger)
		return
	}
	c.JSON(http.StatusOK, dto.MapSecurityContextToUserResponse(secCtx))
}

// setSessionCookies places the credential cookies (HTTP-only, SameSite
// strict) and the readable CSRF cookie. Secure is set outside development.
func (h *AuthHandler) setSessionCookies(c *gin.Context, output *authDomain.AuthOutput) {
	secure := !h.config.IsDevelopment()
	c.SetSameSite(http.SameSiteStrictMode)

	accessMaxAge := int(h.config.AccessTokenTTL.Seconds())
	refreshMaxAge := int(h.config.RefreshTokenTTL.Seconds())

	c.SetCookie(AccessCookieName, output.Credentials.AccessToken, accessMaxAge, "/", "", secure, true)
	c.SetCookie(RefreshCookieName, output.Credentials.RefreshToken, refreshMaxAge, "/v1/auth", "", secure, true)
	if output.CSRFToken != "" {
		c.SetCookie(CSRFCookieName, output.CSRFToken, refreshMaxAge, "/", "", secure, false)
	}
}

// clearSessionCookies expires all session cookies.
func (h *AuthHandler) clearSessionCookies(c *gin.Context) {
	secure := !h.config.IsDevelopment()
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(AccessCookieName, "", -1, "/", "", secure, true)
	c.SetCookie(RefreshCookieName, "", -1, "/v1/auth", "", secure, true)
	c.SetCookie(CSRFCookieName, "", -1, "/", "", secure, false)
}
