// Package identity carries the authenticated caller identity into the core.
// It does not perform authentication itself — that belongs to the
// out-of-scope admin/user API surface — it only validates a token already
// issued by that surface and exposes the claims as a typed value, plus an
// authorization guard for the handful of privileged operations the core
// exposes (ManualRetry, ForceDigest, ResetBudget).
package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"notifyengine/pkg/rbac"
)

// Identity is the authenticated caller, resolved from a JWT already
// validated by ParseToken.
type Identity struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the identity holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == rbac.RoleAdmin
}

// Authorize returns an error unless the identity holds permission.
func (i Identity) Authorize(permission string) error {
	return rbac.CheckPermission(i.Role, permission)
}

type ctxKey struct{}

// WithContext attaches an identity to ctx.
func WithContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the identity attached by WithContext, if any.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

// IssueToken signs a JWT asserting userID and role, valid for ttl.
func IssueToken(userID int64, role, secret string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"exp":     time.Now().Add(ttl).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates tokenStr against secret and extracts the identity.
func ParseToken(tokenStr, secret string) (Identity, error) {
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("identity: parse token: %w", err)
	}

	if !token.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, jwt.ErrTokenMalformed
	}

	userIDFloat, ok := claims["user_id"].(float64)
	if !ok {
		return Identity{}, fmt.Errorf("identity: missing user_id claim")
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = "user"
	}

	return Identity{UserID: int64(userIDFloat), Role: role}, nil
}
