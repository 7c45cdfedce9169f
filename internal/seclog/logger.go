// Package seclog provides the structured, redacting security event logger used by
// every component of the perimeter. Events are emitted as JSON records through a
// shared slog.Logger, with sensitive metadata fields redacted before they reach
// any sink and an optional HMAC signature for tamper evidence.
package seclog

import (
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"time"

	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Level identifies the severity of a security event.
type Level string

const (
	LevelDebug    Level = "debug"
	LevelInfo     Level = "info"
	LevelWarn     Level = "warn"
	LevelError    Level = "error"
	LevelCritical Level = "critical"
)

// Event categories set by the convenience helpers.
const (
	CategoryAuthentication = "authentication"
	CategoryAuthorization  = "authorization"
	CategoryDataAccess     = "data_access"
	CategoryAPIThreat      = "api_threat"
	CategoryBusiness       = "business"
	CategoryPerformance    = "performance"
)

// Event is the immutable record handed to sinks and alert hooks.
type Event struct {
	Level         Level
	Name          string
	Category      string
	Timestamp     time.Time
	CorrelationID string
	Metadata      map[string]any
}

// AlertFunc receives critical events for out-of-band alerting. It must not block;
// the logger invokes it on a separate goroutine.
type AlertFunc func(Event)

// Logger emits redacted, structured security events.
type Logger struct {
	logger   *slog.Logger
	redactor *redactor
	signer   *eventSigner
	alert    AlertFunc
	now      func() time.Time
}

// Option configures the Logger.
type Option func(*Logger)

// WithSensitiveFields extends the redaction vocabulary with additional field names.
func WithSensitiveFields(fields ...string) Option {
	return func(l *Logger) {
		l.redactor.add(fields...)
	}
}

// WithEventSigning enables HMAC signing of emitted events. The signing key is
// derived from secret with HKDF-SHA256.
func WithEventSigning(secret string) Option {
	return func(l *Logger) {
		if secret != "" {
			l.signer = newEventSigner([]byte(secret))
		}
	}
}

// WithAlertFunc registers an out-of-band alert hook invoked for critical events.
func WithAlertFunc(fn AlertFunc) Option {
	return func(l *Logger) {
		l.alert = fn
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(l *Logger) {
		if fn != nil {
			l.now = fn
		}
	}
}

// New creates a security event logger writing through the provided slog.Logger.
func New(logger *slog.Logger, opts ...Option) *Logger {
	l := &Logger{
		logger:   logger,
		redactor: newRedactor(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Emit records a security event. Metadata values whose keys match the sensitive
// vocabulary are redacted before the record reaches any sink. When correlationID
// is empty, the request ID from ctx is used if present, otherwise a fresh UUID
// is generated.
func (l *Logger) Emit(
	ctx context.Context,
	level Level,
	event string,
	metadata map[string]any,
	correlationID string,
) Event {
	return l.emit(ctx, level, event, "", metadata, correlationID)
}

// Authentication emits an event in the authentication category.
func (l *Logger) Authentication(ctx context.Context, event string, metadata map[string]any) Event {
	return l.emit(ctx, defaultLevel(event), event, CategoryAuthentication, metadata, "")
}

// Authorization emits an event in the authorization category.
func (l *Logger) Authorization(ctx context.Context, event string, metadata map[string]any) Event {
	return l.emit(ctx, defaultLevel(event), event, CategoryAuthorization, metadata, "")
}

// DataAccess emits an event in the data access category.
func (l *Logger) DataAccess(ctx context.Context, event string, metadata map[string]any) Event {
	return l.emit(ctx, defaultLevel(event), event, CategoryDataAccess, metadata, "")
}

// APIThreat emits an event in the API threat category. Threat events are never
// below warn.
func (l *Logger) APIThreat(ctx context.Context, event string, metadata map[string]any) Event {
	level := defaultLevel(event)
	if level == LevelInfo {
		level = LevelWarn
	}
	return l.emit(ctx, level, event, CategoryAPIThreat, metadata, "")
}

// Business emits an event in the business category.
func (l *Logger) Business(ctx context.Context, event string, metadata map[string]any) Event {
	return l.emit(ctx, defaultLevel(event), event, CategoryBusiness, metadata, "")
}

// Performance emits an event in the performance category.
func (l *Logger) Performance(ctx context.Context, event string, metadata map[string]any) Event {
	return l.emit(ctx, defaultLevel(event), event, CategoryPerformance, metadata, "")
}

func (l *Logger) emit(
	ctx context.Context,
	level Level,
	event string,
	category string,
	metadata map[string]any,
	correlationID string,
) Event {
	if correlationID == "" {
		correlationID = correlationIDFromContext(ctx)
	}
	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	record := Event{
		Level:         level,
		Name:          event,
		Category:      category,
		Timestamp:     l.now().UTC(),
		CorrelationID: correlationID,
		Metadata:      l.redactor.redactMap(metadata),
	}

	attrs := make([]slog.Attr, 0, len(record.Metadata)+4)
	attrs = append(attrs,
		slog.String("event", record.Name),
		slog.String("timestamp", record.Timestamp.Format(time.RFC3339Nano)),
		slog.String("correlation_id", record.CorrelationID),
	)
	if record.Category != "" {
		attrs = append(attrs, slog.String("category", record.Category))
	}
	if l.signer != nil {
		signature := l.signer.Sign(record)
		attrs = append(attrs, slog.String("signature", hex.EncodeToString(signature)))
	}
	for key, value := range record.Metadata {
		attrs = append(attrs, slog.Any(key, value))
	}

	l.logger.LogAttrs(ctx, slogLevel(level), "security event", attrs...)

	if level == LevelCritical && l.alert != nil {
		go l.alert(record)
	}

	return record
}

// defaultLevel raises events whose names indicate a failure or denial to at
// least warn; everything else defaults to info.
func defaultLevel(event string) Level {
	lowered := strings.ToLower(event)
	if strings.Contains(lowered, "failed") ||
		strings.Contains(lowered, "denied") ||
		strings.Contains(lowered, "insufficient") {
		return LevelWarn
	}
	return LevelInfo
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError, LevelCritical:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// correlationIDFromContext extracts the request ID set by the requestid
// middleware when the context originates from a gin request.
func correlationIDFromContext(ctx context.Context) string {
	if ginCtx, ok := ctx.(*gin.Context); ok {
		return requestid.Get(ginCtx)
	}
	if v, ok := ctx.Value(correlationIDKey{}).(string); ok {
		return v
	}
	return ""
}

type correlationIDKey struct{}

// WithCorrelationID stores a correlation ID in the context for later emits.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey{}, id)
}
