package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aurelia-jewels/checkout-api/internal/domain/identity"
)

const (
	getSessionSQL = `SELECT token_hash, user_id, user_name, email, expires_at
		FROM sessions WHERE token_hash = $1 AND expires_at > now()`

	putSessionSQL = `INSERT INTO sessions (token_hash, user_id, user_name, email, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (token_hash) DO UPDATE SET expires_at = EXCLUDED.expires_at`
)

var _ identity.Repository = (*SessionRepository)(nil)

// SessionRepository looks up identity-provider sessions projected into the
// local store.
type SessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository returns a SessionRepository that uses the given pool.
func NewSessionRepository(pool *pgxpool.Pool) *SessionRepository {
	return &SessionRepository{pool: pool}
}

// FindByTokenHash returns the unexpired session for the given token hash, or
// identity.ErrUnauthenticated when none exists.
func (r *SessionRepository) FindByTokenHash(ctx context.Context, hash string) (*identity.Session, error) {
	var s identity.Session
	err := r.pool.QueryRow(ctx, getSessionSQL, hash).Scan(
		&s.TokenHash, &s.User.ID, &s.User.Name, &s.User.Email, &s.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, identity.ErrUnauthenticated
		}
		return nil, errors.Wrap(err, "find session")
	}
	return &s, nil
}

// Put stores a session projection. Used by the seed tool.
func (r *SessionRepository) Put(ctx context.Context, s identity.Session) error {
	_, err := r.pool.Exec(ctx, putSessionSQL,
		s.TokenHash, s.User.ID, s.User.Name, s.User.Email, s.ExpiresAt,
	)
	if err != nil {
		return errors.Wrap(err, "store session")
	}
	return nil
}
