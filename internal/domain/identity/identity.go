// Package identity is the narrow projection of the external identity
// provider used by checkout. The provider owns sign-in and session issuance;
// this service only resolves an opaque session token to a user.
package identity

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// ErrUnauthenticated is returned when a session token is unknown or expired.
var ErrUnauthenticated = errors.New("unauthenticated")

// User is the authenticated customer identity attached to checkout requests.
type User struct {
	ID    string
	Name  string
	Email string
}

// Session is a provider-issued session projected into the local store.
type Session struct {
	TokenHash string
	User      User
	ExpiresAt time.Time
}

// Repository provides lookup of sessions by token hash.
type Repository interface {
	// FindByTokenHash returns the session for the given HMAC token hash, or
	// ErrUnauthenticated when no such session exists.
	FindByTokenHash(ctx context.Context, hash string) (*Session, error)
}
