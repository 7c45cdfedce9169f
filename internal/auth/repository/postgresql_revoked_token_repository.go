package repository

import (
	"context"
	"database/sql"
	"time"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	"github.com/mesaops/perimeter/internal/database"
	apperrors "github.com/mesaops/perimeter/internal/errors"
)

// PostgreSQLRevokedTokenRepository implements the revocation set for PostgreSQL.
// Rows live until the revoked credential's natural expiry; ON CONFLICT makes
// repeated revocation of the same token ID a no-op.
type PostgreSQLRevokedTokenRepository struct {
	db *sql.DB
}

// Create adds a token ID to the revocation set. Revoking an already-revoked
// token succeeds without error. Uses transaction support via database.GetTx().
func (p *PostgreSQLRevokedTokenRepository) Create(ctx context.Context, token *authDomain.RevokedToken) error {
	querier := database.GetTx(ctx, p.db)

	query := `INSERT INTO revoked_tokens (token_id, expires_at, revoked_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (token_id) DO NOTHING`

	_, err := querier.ExecContext(ctx, query, token.TokenID, token.ExpiresAt, token.RevokedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to create revoked token")
	}
	return nil
}

// Exists reports whether a token ID is in the revocation set. Uses transaction
// support via database.GetTx(). Returns an error if the database query fails.
func (p *PostgreSQLRevokedTokenRepository) Exists(ctx context.Context, tokenID string) (bool, error) {
	querier := database.GetTx(ctx, p.db)

	query := `SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE token_id = $1)`

	var exists bool
	if err := querier.QueryRowContext(ctx, query, tokenID).Scan(&exists); err != nil {
		return false, apperrors.Wrap(err, "failed to check revoked token")
	}
	return exists, nil
}

// DeleteExpired removes revocation rows whose credentials have expired on
// their own; the verification path already rejects them as expired. Returns
// the number of rows removed.
func (p *PostgreSQLRevokedTokenRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	querier := database.GetTx(ctx, p.db)

	query := `DELETE FROM revoked_tokens WHERE expires_at <= $1`

	result, err := querier.ExecContext(ctx, query, now)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired revoked tokens")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count deleted revoked tokens")
	}
	return deleted, nil
}

// NewPostgreSQLRevokedTokenRepository creates a new PostgreSQL revoked token repository.
func NewPostgreSQLRevokedTokenRepository(db *sql.DB) *PostgreSQLRevokedTokenRepository {
	return &PostgreSQLRevokedTokenRepository{db: db}
}
