package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/aurelia-jewels/checkout-api/internal/domain/identity"
)

// userKey is the context key for the authenticated user.
type userKey struct{}

// UserFrom extracts the authenticated user from the context. The second
// return is false for requests that did not pass the auth middleware.
func UserFrom(ctx context.Context) (identity.User, bool) {
	u, ok := ctx.Value(userKey{}).(identity.User)
	return u, ok
}

// Authenticator resolves bearer session tokens to users. Tokens are hashed
// with HMAC-SHA256 under a server-side pepper before the store lookup, so the
// sessions table never holds raw tokens.
type Authenticator struct {
	sessions identity.Repository
	pepper   []byte
}

// NewAuthenticator creates an Authenticator with the given session repository
// and HMAC pepper.
func NewAuthenticator(sessions identity.Repository, pepper []byte) *Authenticator {
	return &Authenticator{sessions: sessions, pepper: pepper}
}

// Middleware authenticates the request via the Authorization header and
// stores the resolved user in the request context. Unknown or expired tokens
// get 401; guests never reach the wrapped handler.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		session, err := a.sessions.FindByTokenHash(r.Context(), a.hash(token))
		if err != nil {
			if !errors.Is(err, identity.ErrUnauthenticated) {
				zctx.From(r.Context()).Error("session lookup", zap.Error(err))
			}
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), userKey{}, session.User)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *Authenticator) hash(token string) string {
	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) <= len(prefix) || !strings.EqualFold(auth[:len(prefix)], prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}
