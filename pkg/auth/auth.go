package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleUser    = "user"
	RoleAdmin   = "admin"
	RolePayment = "payment"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid identity token")
)

// Identity is the caller a request acts for.
type Identity struct {
	RequesterID string
	Role        string
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// IsPaymentProvider reports whether the call came through a verified
// payment webhook.
func (i Identity) IsPaymentProvider() bool {
	return i.Role == RolePayment
}

// Resolver maps an identity token to a requester.
type Resolver interface {
	Resolve(token string) (Identity, error)
}

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTResolver validates HS256 tokens whose subject is the requester id.
type JWTResolver struct {
	secret []byte
}

func NewJWTResolver(secret string) *JWTResolver {
	return &JWTResolver{secret: []byte(secret)}
}

func (r *JWTResolver) Resolve(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	var c claims
	parsed, err := jwt.ParseWithClaims(token, &c, func(t *jwt.Token) (any, error) {
		return r.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return Identity{}, fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}

	role := c.Role
	if role == "" {
		role = RoleUser
	}
	return Identity{RequesterID: c.Subject, Role: role}, nil
}

// Issue signs a token for id valid for ttl.
func (r *JWTResolver) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	c := claims{
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.RequesterID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(r.secret)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

type contextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}
