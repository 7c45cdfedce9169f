package seclog

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLogger returns a Logger writing JSON records into buf.
func newTestLogger(buf *bytes.Buffer, opts ...Option) *Logger {
	handler := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return New(slog.New(handler), opts...)
}

// decodeRecord parses the single JSON record written to buf.
func decodeRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	return record
}

func TestLogger_Emit(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_RedactsSensitiveFields", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(&buf)

		logger.Emit(ctx, LevelInfo, "login_success", map[string]any{
			"email":    "user@example.com",
			"password": "hunter2",
			"nested": map[string]any{
				"refresh_token": "abcdefghij0123456789",
				"ip_address":    "10.0.0.1",
			},
		}, "")

		record := decodeRecord(t, &buf)
		assert.Equal(t, "login_success", record["event"])
		assert.Equal(t, "user@example.com", record["email"])
		assert.Equal(t, redactedPlaceholder, record["password"])

		nested, ok := record["nested"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "10.0.0.1", nested["ip_address"])
		assert.Equal(t, "abcd..."+redactedPlaceholder, nested["refresh_token"])
	})

	t.Run("Success_GeneratesCorrelationID", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(&buf)

		event := logger.Emit(ctx, LevelInfo, "token_issued", nil, "")
		assert.NotEmpty(t, event.CorrelationID)

		record := decodeRecord(t, &buf)
		assert.Equal(t, event.CorrelationID, record["correlation_id"])
	})

	t.Run("Success_ReusesSuppliedCorrelationID", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(&buf)

		event := logger.Emit(ctx, LevelInfo, "token_issued", nil, "corr-123")
		assert.Equal(t, "corr-123", event.CorrelationID)
	})

	t.Run("Success_ReadsCorrelationIDFromContext", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(&buf)

		ctxWithID := WithCorrelationID(ctx, "ctx-456")
		event := logger.Emit(ctxWithID, LevelInfo, "token_issued", nil, "")
		assert.Equal(t, "ctx-456", event.CorrelationID)
	})

	t.Run("Success_DoesNotMutateInputMetadata", func(t *testing.T) {
		var buf bytes.Buffer
		logger := newTestLogger(&buf)

		metadata := map[string]any{"password": "hunter2"}
		logger.Emit(ctx, LevelWarn, "login_failed", metadata, "")
		assert.Equal(t, "hunter2", metadata["password"])
	})
}

func TestLogger_CategoryHelpers(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		emit     func(l *Logger) Event
		category string
		level    Level
	}{
		{
			name:     "authentication success defaults to info",
			emit:     func(l *Logger) Event { return l.Authentication(ctx, "login_success", nil) },
			category: CategoryAuthentication,
			level:    LevelInfo,
		},
		{
			name:     "failed event raised to warn",
			emit:     func(l *Logger) Event { return l.Authentication(ctx, "login_failed", nil) },
			category: CategoryAuthentication,
			level:    LevelWarn,
		},
		{
			name:     "denied event raised to warn",
			emit:     func(l *Logger) Event { return l.Authorization(ctx, "access_denied", nil) },
			category: CategoryAuthorization,
			level:    LevelWarn,
		},
		{
			name:     "api threat never below warn",
			emit:     func(l *Logger) Event { return l.APIThreat(ctx, "sql_injection_attempt", nil) },
			category: CategoryAPIThreat,
			level:    LevelWarn,
		},
		{
			name:     "business event stays info",
			emit:     func(l *Logger) Event { return l.Business(ctx, "order_exported", nil) },
			category: CategoryBusiness,
			level:    LevelInfo,
		},
		{
			name:     "performance event stays info",
			emit:     func(l *Logger) Event { return l.Performance(ctx, "slow_query", nil) },
			category: CategoryPerformance,
			level:    LevelInfo,
		},
		{
			name:     "data access event stays info",
			emit:     func(l *Logger) Event { return l.DataAccess(ctx, "record_read", nil) },
			category: CategoryDataAccess,
			level:    LevelInfo,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := newTestLogger(&buf)

			event := tt.emit(logger)
			assert.Equal(t, tt.category, event.Category)
			assert.Equal(t, tt.level, event.Level)

			record := decodeRecord(t, &buf)
			assert.Equal(t, tt.category, record["category"])
		})
	}
}

func TestLogger_CriticalAlert(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	var mu sync.Mutex
	var alerted []Event
	done := make(chan struct{})

	logger := newTestLogger(&buf, WithAlertFunc(func(e Event) {
		mu.Lock()
		alerted = append(alerted, e)
		mu.Unlock()
		close(done)
	}))

	logger.Emit(ctx, LevelCritical, "revocation_store_unreachable", nil, "")

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("alert hook was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, alerted, 1)
	assert.Equal(t, "revocation_store_unreachable", alerted[0].Name)
}

func TestLogger_EventSigning(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	logger := newTestLogger(&buf, WithEventSigning("test-signing-secret"))

	event := logger.Emit(ctx, LevelInfo, "token_revoked", map[string]any{"jti": "abc"}, "corr-1")

	record := decodeRecord(t, &buf)
	signatureHex, ok := record["signature"].(string)
	require.True(t, ok)

	signature, err := hex.DecodeString(signatureHex)
	require.NoError(t, err)

	signer := newEventSigner([]byte("test-signing-secret"))
	assert.True(t, signer.Verify(event, signature))

	// A tampered event must not verify.
	tampered := event
	tampered.Name = "token_issued"
	assert.False(t, signer.Verify(tampered, signature))
}

func TestRedactor_IsSensitive(t *testing.T) {
	r := newRedactor()

	sensitive := []string{
		"password", "Password", "user_password", "token", "refresh_token",
		"secret", "api_key", "Authorization", "cookie", "session_id",
		"csrf", "x_csrf_token", "national_id", "cpf", "card_number", "cvv",
	}
	for _, key := range sensitive {
		assert.True(t, r.isSensitive(key), "expected %q to be sensitive", key)
	}

	safe := []string{"email", "ip_address", "user_agent", "role", "organization_id"}
	for _, key := range safe {
		assert.False(t, r.isSensitive(key), "expected %q to be safe", key)
	}
}

func TestRedactor_RedactMap(t *testing.T) {
	r := newRedactor()

	metadata := map[string]any{
		"email":    "buyer@example.com",
		"password": "Str0ng!Passw0rd",
		"token":    "ab",
		"attempts": 3,
		"request": map[string]any{
			"api_key": "sk-1234567890abcdef",
			"path":    "/v1/auth/login",
		},
		"headers": []any{
			map[string]any{"cookie": "session=xyz"},
			"accept: application/json",
		},
	}

	redacted := r.redactMap(metadata)

	assert.Equal(t, "buyer@example.com", redacted["email"])
	// Long sensitive strings keep a short prefix; short ones are fully hidden.
	assert.Equal(t, "Str0"+"..."+redactedPlaceholder, redacted["password"])
	assert.Equal(t, redactedPlaceholder, redacted["token"])
	assert.Equal(t, 3, redacted["attempts"])

	nested, ok := redacted["request"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "sk-1"+"..."+redactedPlaceholder, nested["api_key"])
	assert.Equal(t, "/v1/auth/login", nested["path"])

	headers, ok := redacted["headers"].([]any)
	require.True(t, ok)
	inner, ok := headers[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, redactedPlaceholder, inner["cookie"])
	assert.Equal(t, "accept: application/json", headers[1])

	// The input map must not be mutated.
	assert.Equal(t, "Str0ng!Passw0rd", metadata["password"])

	assert.Nil(t, r.redactMap(nil))
}

func TestRedactor_AddCustomFields(t *testing.T) {
	r := newRedactor()
	r.add(" Invite_Code ", "")

	assert.True(t, r.isSensitive("invite_code"))
	assert.False(t, r.isSensitive(""))
}

func TestEventSigner_CanonicalizationIsDeterministic(t *testing.T) {
	signer := newEventSigner([]byte("secret"))

	event := Event{
		Level:         LevelWarn,
		Name:          "threat_detected",
		Category:      CategoryAPIThreat,
		CorrelationID: "corr-9",
		Timestamp:     time.Unix(1700000000, 0),
		Metadata:      map[string]any{"b": 2, "a": 1, "c": "three"},
	}

	first := signer.Sign(event)
	second := signer.Sign(event)
	assert.Equal(t, first, second)

	// Changing metadata changes the signature.
	event.Metadata["a"] = 99
	assert.False(t, signer.Verify(event, first))
}

func TestLogger_InsufficientEventsEscalateToWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := newTestLogger(&buf)

	logger.Authorization(context.Background(), "insufficient_permissions", map[string]any{
		"role": "restaurant_staff",
	})

	record := decodeRecord(t, &buf)
	assert.Equal(t, "WARN", record["level"])
	assert.Equal(t, "insufficient_permissions", record["event"])
}
