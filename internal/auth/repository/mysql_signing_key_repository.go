package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	authDomain "github.com/mesaops/perimeter/internal/auth/domain"
	"github.com/mesaops/perimeter/internal/database"
	apperrors "github.com/mesaops/perimeter/internal/errors"
)

// MySQLSigningKeyRepository implements SigningKey persistence for MySQL.
// Uses BINARY(16) for UUID storage with transaction support via database.GetTx().
type MySQLSigningKeyRepository struct {
	db *sql.DB
}

// Create inserts a new SigningKey into the MySQL database using BINARY(16) for
// UUIDs. Uses transaction support via database.GetTx(). Returns an error if
// UUID marshaling or database insertion fails.
func (m *MySQLSigningKeyRepository) Create(ctx context.Context, key *authDomain.SigningKey) error {
	querier := database.GetTx(ctx, m.db)

	id, err := key.ID.MarshalBinary()
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal signing key id")
	}

	query := `INSERT INTO signing_keys (id, kid, algorithm, public_key_pem, private_key_encrypted, created_at, retired_at, expires_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = querier.ExecContext(
		ctx,
		query,
		id,
		key.Kid,
		key.Algorithm,
		key.PublicKeyPEM,
		key.PrivateKeyEncrypted,
		key.CreatedAt,
		key.RetiredAt,
		key.ExpiresAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create signing key")
	}
	return nil
}

// GetByKid retrieves a SigningKey by its key identifier. Returns ErrKeyNotFound
// if no key carries the kid, or an error if the database query fails.
func (m *MySQLSigningKeyRepository) GetByKid(ctx context.Context, kid string) (*authDomain.SigningKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, kid, algorithm, public_key_pem, private_key_encrypted, created_at, retired_at, expires_at
			  FROM signing_keys WHERE kid = ?`

	var key authDomain.SigningKey
	var idBytes []byte

	err := querier.QueryRowContext(ctx, query, kid).Scan(
		&idBytes,
		&key.Kid,
		&key.Algorithm,
		&key.PublicKeyPEM,
		&key.PrivateKeyEncrypted,
		&key.CreatedAt,
		&key.RetiredAt,
		&key.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authDomain.ErrKeyNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get signing key")
	}

	if err := key.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal signing key id")
	}

	return &key, nil
}

// GetActive retrieves the signing key currently used for new credentials
// (the newest key with no retired_at). Returns ErrNoActiveKey when the store
// holds none, or an error if the database query fails.
func (m *MySQLSigningKeyRepository) GetActive(ctx context.Context) (*authDomain.SigningKey, error) {
	querier := database.GetTx(ctx, m.db)

	query := `SELECT id, kid, algorithm, public_key_pem, private_key_encrypted, created_at, retired_at, expires_at
			  FROM signing_keys WHERE retired_at IS NULL ORDER BY created_at DESC LIMIT 1`

	var key authDomain.SigningKey
	var idBytes []byte

	err := querier.QueryRowContext(ctx, query).Scan(
		&idBytes,
		&key.Kid,
		&key.Algorithm,
		&key.PublicKeyPEM,
		&key.PrivateKeyEncrypted,
		&key.CreatedAt,
		&key.RetiredAt,
		&key.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, authDomain.ErrNoActiveKey
		}
		return nil, apperrors.Wrap(err, "failed to get active signing key")
	}

	if err := key.ID.UnmarshalBinary(idBytes); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal signing key id")
	}

	return &key, nil
}

// Retire marks a signing key as no longer usable for signing and stamps the
// end of its verification grace window. Uses transaction support via
// database.GetTx(). Returns an error if the database update fails.
func (m *MySQLSigningKeyRepository) Retire(ctx context.Context, kid string, retiredAt, expiresAt time.Time) error {
	querier := database.GetTx(ctx, m.db)

	query := `UPDATE signing_keys SET retired_at = ?, expires_at = ? WHERE kid = ? AND retired_at IS NULL`

	_, err := querier.ExecContext(ctx, query, retiredAt, expiresAt, kid)
	if err != nil {
		return apperrors.Wrap(err, "failed to retire signing key")
	}
	return nil
}

// DeleteExpired removes signing keys whose verification window has ended.
// Returns the number of keys removed, or an error if the delete fails.
func (m *MySQLSigningKeyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	querier := database.GetTx(ctx, m.db)

	query := `DELETE FROM signing_keys WHERE retired_at IS NOT NULL AND expires_at <= ?`

	result, err := querier.ExecContext(ctx, query, now)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to delete expired signing keys")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count deleted signing keys")
	}
	return deleted, nil
}

// NewMySQLSigningKeyRepository creates a new MySQL SigningKey repository.
func NewMySQLSigningKeyRepository(db *sql.DB) *MySQLSigningKeyRepository {
	return &MySQLSigningKeyRepository{db: db}
}
