// Package auth validates bearer credentials and attaches the caller identity
// to requests. Issuing credentials to real users happens elsewhere; Issue is
// only meant for tooling and tests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("missing auth token")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Identity is the authenticated owner of a request.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Gate turns a bearer token into an Identity or rejects it.
type Gate interface {
	Authenticate(token string) (Identity, error)
}

type claims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// JWTGate accepts HS256 tokens signed with a shared secret.
type JWTGate struct {
	secret []byte
	now    func() time.Time
}

func NewJWTGate(secret string) *JWTGate {
	return &JWTGate{secret: []byte(secret), now: time.Now}
}

func (g *JWTGate) Authenticate(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrMissingToken
	}
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return g.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(g.now))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.ID == "" {
		return Identity{}, fmt.Errorf("%w: no id claim", ErrInvalidToken)
	}
	return Identity{ID: c.ID, Username: c.Username}, nil
}

// Issue signs a token for id that expires after ttl.
func (g *JWTGate) Issue(id Identity, ttl time.Duration) (string, error) {
	now := g.now()
	c := claims{
		ID:       id.ID,
		Username: id.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(g.secret)
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity attached by Middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// Middleware rejects requests without a valid bearer token before they reach
// next, answering 401 with a JSON message.
func Middleware(g Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := g.Authenticate(BearerToken(r))
			if err != nil {
				msg := ErrInvalidToken.Error()
				if errors.Is(err, ErrMissingToken) {
					msg = ErrMissingToken.Error()
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"message": msg})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}
