package directory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	apperrors "github.com/mesaops/perimeter/internal/errors"
)

func identityJSON() map[string]string {
	return map[string]string{
		"user_id":           "user-1",
		"email":             "chef@bistro.example",
		"organization_id":   "org-1",
		"role":              authDomain.RoleRestaurantAdmin,
		"organization_type": authDomain.OrganizationTypeRestaurant,
	}
}

func TestClient_Authenticate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/login", r.URL.Path)
		assert.Equal(t, "203.0.113.7", r.Header.Get("X-Forwarded-For"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "chef@bistro.example", body["email"])
		assert.Equal(t, "s3cret-Pass!", body["password"])

		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(identityJSON()))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	identity, err := client.Authenticate(context.Background(), &authDomain.LoginInput{
		Email:     "chef@bistro.example",
		Password:  "s3cret-Pass!",
		IPAddress: "203.0.113.7",
		UserAgent: "test-agent",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", identity.UserID)
	assert.Equal(t, authDomain.RoleRestaurantAdmin, identity.Role)
}

func TestClient_Authenticate_Failures(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"unauthorized", http.StatusUnauthorized, authDomain.ErrInvalidCredentials},
		{"forbidden", http.StatusForbidden, authDomain.ErrInvalidCredentials},
		{"unknown user", http.StatusNotFound, authDomain.ErrInvalidCredentials},
		{"directory error", http.StatusInternalServerError, apperrors.ErrUpstream},
		{"bad gateway", http.StatusBadGateway, apperrors.ErrUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			client := NewClient(server.URL, time.Second)
			_, err := client.Authenticate(context.Background(), &authDomain.LoginInput{
				Email:    "chef@bistro.example",
				Password: "wrong",
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestClient_Authenticate_Unreachable(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", 100*time.Millisecond)
	_, err := client.Authenticate(context.Background(), &authDomain.LoginInput{
		Email:    "chef@bistro.example",
		Password: "s3cret-Pass!",
	})
	assert.ErrorIs(t, err, apperrors.ErrUpstream)
}

func TestClient_Authenticate_MalformedIdentity(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "not-json"},
		{"empty identity", "{}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient(server.URL, time.Second)
			_, err := client.Authenticate(context.Background(), &authDomain.LoginInput{
				Email:    "chef@bistro.example",
				Password: "s3cret-Pass!",
			})
			assert.ErrorIs(t, err, apperrors.ErrUpstream)
		})
	}
}

func TestClient_Register(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/register", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "buyer@fresh.example", body["email"])
		assert.Equal(t, "org-9", body["organization_id"])

		w.WriteHeader(http.StatusCreated)
		identity := identityJSON()
		identity["user_id"] = "user-2"
		identity["email"] = "buyer@fresh.example"
		require.NoError(t, json.NewEncoder(w).Encode(identity))
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	identity, err := client.Register(context.Background(), &authDomain.RegisterInput{
		Email:          "buyer@fresh.example",
		Password:       "An0ther-Pass!",
		Name:           "Buyer One",
		OrganizationID: "org-9",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-2", identity.UserID)
}

func TestClient_Register_EmailTaken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer server.Close()

	client := NewClient(server.URL, time.Second)
	_, err := client.Register(context.Background(), &authDomain.RegisterInput{
		Email:    "taken@fresh.example",
		Password: "An0ther-Pass!",
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}
