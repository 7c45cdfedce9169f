package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
)

func testRevokedToken() *authDomain.RevokedToken {
	now := time.Now().UTC().Truncate(time.Second)
	return &authDomain.RevokedToken{
		TokenID:   uuid.Must(uuid.NewV7()).String(),
		ExpiresAt: now.Add(time.Hour),
		RevokedAt: now,
	}
}

func TestPostgreSQLRevokedTokenRepository_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	token := testRevokedToken()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO revoked_tokens`)).
		WithArgs(token.TokenID, token.ExpiresAt, token.RevokedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	repo := NewPostgreSQLRevokedTokenRepository(db)
	err = repo.Create(context.Background(), token)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLRevokedTokenRepository_Create_AlreadyRevoked(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	token := testRevokedToken()

	// ON CONFLICT DO NOTHING reports zero rows affected, still no error.
	mock.ExpectExec(regexp.QuoteMeta(`ON CONFLICT (token_id) DO NOTHING`)).
		WithArgs(token.TokenID, token.ExpiresAt, token.RevokedAt).
		WillReturnResult(sqlmock.NewResult(0, 0))

	repo := NewPostgreSQLRevokedTokenRepository(db)
	err = repo.Create(context.Background(), token)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgreSQLRevokedTokenRepository_Exists(t *testing.T) {
	tests := []struct {
		name   string
		exists bool
	}{
		{"revoked token found", true},
		{"token not revoked", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			mock.ExpectQuery(regexp.QuoteMeta(`SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token_id = $1)`)).
				WithArgs("token-id").
				WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(tt.exists))

			repo := NewPostgreSQLRevokedTokenRepository(db)
			got, err := repo.Exists(context.Background(), "token-id")
			require.NoError(t, err)
			assert.Equal(t, tt.exists, got)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgreSQLRevokedTokenRepository_DeleteExpired(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()

	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM revoked_tokens WHERE expires_at <= $1`)).
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 7))

	repo := NewPostgreSQLRevokedTokenRepository(db)
	deleted, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(7), deleted)
	require.NoError(t, mock.ExpectationsWereMet())
}
