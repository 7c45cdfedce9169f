package validation

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/mesaops/perimeter/internal/errors"
	"github.com/mesaops/perimeter/internal/seclog"
)

// threatSampleLength bounds the offending-content sample attached to threat events.
const threatSampleLength = 200

// Validatable is implemented by request DTOs that carry their own schema.
type Validatable interface {
	Validate() error
}

// BodyOptions tunes ValidateBody for a single call site.
type BodyOptions struct {
	// MaxSize overrides the gateway-wide body size ceiling when positive.
	MaxSize int64
	// AllowEmpty accepts an empty body, leaving dst at its zero value.
	AllowEmpty bool
}

// Gateway converts inbound request bytes into validated, sanitized structures.
// Every rejection path emits exactly one security event before returning.
type Gateway struct {
	logger      *seclog.Logger
	maxBodySize int64
}

// NewGateway creates a validation gateway with the given body size ceiling.
func NewGateway(logger *seclog.Logger, maxBodySize int64) *Gateway {
	return &Gateway{
		logger:      logger,
		maxBodySize: maxBodySize,
	}
}

// ValidateBody reads the request body and runs the full validation pipeline:
// size ceiling → JSON parse → threat scan → deep sanitization → schema
// validation via dst.Validate(). The threat scan runs on the raw payload so the
// sanitizer cannot launder markup out of an attack before the heuristics see it.
// On success dst holds the sanitized, validated structure.
//
// Rejections return ErrInvalidInput (malformed/oversized/schema failures,
// reported with detail) or ErrThreatDetected (generic message, offending
// content never echoed back).
func (g *Gateway) ValidateBody(c *gin.Context, dst Validatable, opts BodyOptions) error {
	maxSize := g.maxBodySize
	if opts.MaxSize > 0 {
		maxSize = opts.MaxSize
	}

	// Enforce the size ceiling before any parsing happens.
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxSize))
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			g.logger.APIThreat(c, "oversized_request_body", map[string]any{
				"path":       c.Request.URL.Path,
				"limit":      maxSize,
				"ip_address": c.ClientIP(),
			})
			return apperrors.Wrap(apperrors.ErrInvalidInput, "request body too large")
		}
		g.logger.APIThreat(c, "unreadable_request_body", map[string]any{
			"path":       c.Request.URL.Path,
			"ip_address": c.ClientIP(),
		})
		return apperrors.Wrap(apperrors.ErrInvalidInput, "unable to read request body")
	}

	if len(body) == 0 {
		if opts.AllowEmpty {
			return nil
		}
		g.logger.APIThreat(c, "empty_request_body", map[string]any{
			"path":       c.Request.URL.Path,
			"ip_address": c.ClientIP(),
		})
		return apperrors.Wrap(apperrors.ErrInvalidInput, "request body is required")
	}

	if err := g.scanForThreats(c, string(body)); err != nil {
		return err
	}

	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		g.logger.APIThreat(c, "malformed_request_body", map[string]any{
			"path":       c.Request.URL.Path,
			"ip_address": c.ClientIP(),
		})
		return apperrors.Wrap(apperrors.ErrInvalidInput, "request body is not valid JSON")
	}

	sanitized := SanitizeMap(decoded)

	// Re-serialize the sanitized structure into the typed DTO.
	sanitizedBytes, err := json.Marshal(sanitized)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInvalidInput, "request body is not valid JSON")
	}
	if err := json.Unmarshal(sanitizedBytes, dst); err != nil {
		g.logger.APIThreat(c, "malformed_request_body", map[string]any{
			"path":       c.Request.URL.Path,
			"ip_address": c.ClientIP(),
		})
		return apperrors.Wrap(apperrors.ErrInvalidInput, "request body does not match the expected schema")
	}

	// Schema failures are field-level validation errors, not security alerts.
	if err := dst.Validate(); err != nil {
		return WrapValidationError(err)
	}

	return nil
}

// ValidateQueryParams runs the sanitize → threat-scan → schema pipeline over
// the query-string key/value map. Repeated keys keep their first value. The
// sanitized map is returned so handlers never touch the raw query again.
func (g *Gateway) ValidateQueryParams(
	c *gin.Context,
	schema func(params map[string]string) error,
) (map[string]string, error) {
	params := make(map[string]string)
	for key, values := range c.Request.URL.Query() {
		if len(values) == 0 {
			continue
		}
		raw := key + "=" + values[0]
		if err := g.scanForThreats(c, raw); err != nil {
			return nil, err
		}
		params[Sanitize(key)] = Sanitize(values[0])
	}

	if schema != nil {
		if err := schema(params); err != nil {
			return nil, WrapValidationError(err)
		}
	}
	return params, nil
}

// ValidateCSRFToken compares the request's CSRF header against the expected
// token in constant time. Both X-CSRF-Token and X-XSRF-Token are accepted.
func (g *Gateway) ValidateCSRFToken(c *gin.Context, expected string) error {
	supplied := c.GetHeader("X-CSRF-Token")
	if supplied == "" {
		supplied = c.GetHeader("X-XSRF-Token")
	}

	if supplied == "" || expected == "" ||
		subtle.ConstantTimeCompare([]byte(supplied), []byte(expected)) != 1 {
		g.logger.APIThreat(c, "csrf_validation_failed", map[string]any{
			"path":       c.Request.URL.Path,
			"ip_address": c.ClientIP(),
		})
		return apperrors.Wrap(apperrors.ErrForbidden, "invalid csrf token")
	}
	return nil
}

// scanForThreats runs the injection heuristics over raw content and logs a
// single threat event on a match. The generic error never carries the
// offending content.
func (g *Gateway) scanForThreats(c *gin.Context, raw string) error {
	if DetectSQLInjection(raw) {
		g.logger.APIThreat(c, "sql_injection_attempt", map[string]any{
			"path":       c.Request.URL.Path,
			"ip_address": c.ClientIP(),
			"sample":     truncateSample(raw, threatSampleLength),
		})
		return apperrors.Wrap(apperrors.ErrThreatDetected, "invalid request format")
	}
	if DetectXSS(raw) {
		g.logger.APIThreat(c, "xss_attempt", map[string]any{
			"path":       c.Request.URL.Path,
			"ip_address": c.ClientIP(),
			"sample":     truncateSample(raw, threatSampleLength),
		})
		return apperrors.Wrap(apperrors.ErrThreatDetected, "invalid request format")
	}
	return nil
}
