package http

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	"github.com/mesaops/perimeter/internal/seclog"
	"github.com/mesaops/perimeter/internal/validation"
)

func newTestGuard(auth *stubAuth, rateLimiter *validation.RateLimiter) *GuardMiddleware {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	secLogger := seclog.New(logger)
	gateway := validation.NewGateway(secLogger, 1<<20)
	return NewGuardMiddleware(auth, gateway, rateLimiter, secLogger, logger)
}

// newCapturingGuard wires the security logger into a buffer so tests can
// assert on the emitted events.
func newCapturingGuard(auth *stubAuth, rateLimiter *validation.RateLimiter) (*GuardMiddleware, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	secLogger := seclog.New(logger)
	gateway := validation.NewGateway(secLogger, 1<<20)
	return NewGuardMiddleware(auth, gateway, rateLimiter, secLogger, logger), &buf
}

func supplierContext() *authDomain.SecurityContext {
	return &authDomain.SecurityContext{
		UserID:           "user-1",
		Email:            "owner@fresh.example",
		OrganizationID:   "org-1",
		Role:             authDomain.RoleSupplierAdmin,
		OrganizationType: authDomain.OrganizationTypeSupplier,
		SessionID:        "jti-1",
	}
}

func guardedRouter(guard *GuardMiddleware, allowedRoles ...string) *gin.Engine {
	router := gin.New()
	router.GET("/v1/catalog", guard.RequireAuth(allowedRoles...), func(c *gin.Context) {
		secCtx, ok := SecurityContextFromGin(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "missing security context"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": secCtx.UserID, "ip": secCtx.IPAddress})
	})
	return router
}

func TestRequireAuth_BearerHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(&stubAuth{verifyCtx: supplierContext()}, nil)
	router := guardedRouter(guard)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
	req.Header.Set("Authorization", "Bearer some.access.jwt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

func TestRequireAuth_AccessCookie(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(&stubAuth{verifyCtx: supplierContext()}, nil)
	router := guardedRouter(guard)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
	req.AddCookie(&http.Cookie{Name: AccessCookieName, Value: "some.access.jwt"})
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireAuth_MissingCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(&stubAuth{verifyCtx: supplierContext()}, nil)
	router := guardedRouter(guard)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_MalformedAuthorizationHeader(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(&stubAuth{verifyCtx: supplierContext()}, nil)
	router := guardedRouter(guard)

	tests := []string{"some.access.jwt", "Basic dXNlcjpwYXNz", "Bearer"}
	for _, header := range tests {
		req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, "header %q", header)
	}
}

func TestRequireAuth_InvalidCredential(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(&stubAuth{verifyErr: authDomain.ErrInvalidToken}, nil)
	router := guardedRouter(guard)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
	req.Header.Set("Authorization", "Bearer expired.jwt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAuth_RoleAllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		role         string
		allowedRoles []string
		expectedCode int
	}{
		{
			name:         "role in allow-list",
			role:         authDomain.RoleSupplierAdmin,
			allowedRoles: []string{authDomain.RoleSupplierAdmin, authDomain.RolePlatformAdmin},
			expectedCode: http.StatusOK,
		},
		{
			name:         "role outside allow-list",
			role:         authDomain.RoleRestaurantStaff,
			allowedRoles: []string{authDomain.RoleSupplierAdmin},
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "empty allow-list admits any authenticated role",
			role:         authDomain.RoleRestaurantStaff,
			allowedRoles: nil,
			expectedCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			secCtx := supplierContext()
			secCtx.Role = tt.role
			guard := newTestGuard(&stubAuth{verifyCtx: secCtx}, nil)
			router := guardedRouter(guard, tt.allowedRoles...)

			req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
			req.Header.Set("Authorization", "Bearer some.access.jwt")
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedCode, w.Code)
		})
	}
}

func TestRateLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(&stubAuth{}, validation.NewRateLimiter(1, 2))

	router := gin.New()
	router.POST("/v1/auth/login", guard.RateLimit(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Burst of 2 passes, the third request in the same instant is throttled.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/auth/login", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate_limited")
}

func TestRequireCSRF(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard := newTestGuard(&stubAuth{}, nil)

	router := gin.New()
	router.POST("/v1/orders", guard.RequireCSRF(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/v1/orders", guard.RequireCSRF(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	t.Run("matching header and cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "csrf-value"})
		req.Header.Set("X-CSRF-Token", "csrf-value")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "csrf-value"})
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("mismatched header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
		req.AddCookie(&http.Cookie{Name: CSRFCookieName, Value: "csrf-value"})
		req.Header.Set("X-CSRF-Token", "other-value")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("missing cookie", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
		req.Header.Set("X-CSRF-Token", "csrf-value")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("safe method passes without token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRequireAuth_RoleDenialEmitsInsufficientPermissions(t *testing.T) {
	gin.SetMode(gin.TestMode)

	secCtx := supplierContext()
	secCtx.Role = authDomain.RoleRestaurantStaff
	guard, logBuf := newCapturingGuard(&stubAuth{verifyCtx: secCtx}, nil)
	router := guardedRouter(guard, authDomain.RoleSupplierAdmin)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog", nil)
	req.Header.Set("Authorization", "Bearer some.access.jwt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, logBuf.String(), `"event":"insufficient_permissions"`)
	assert.Contains(t, logBuf.String(), `"level":"WARN"`)
}

func TestRequireCSRF_MissingCookieEmitsEvent(t *testing.T) {
	gin.SetMode(gin.TestMode)

	guard, logBuf := newCapturingGuard(&stubAuth{}, nil)

	router := gin.New()
	router.POST("/v1/orders", guard.RequireCSRF(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.Header.Set("X-CSRF-Token", "csrf-value")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, logBuf.String(), `"event":"csrf_validation_failed"`)
	assert.Contains(t, logBuf.String(), `"reason":"missing_cookie"`)
}
