package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"notifyengine/pkg/rbac"
)

func TestIssueTokenAndParseTokenRoundTrip(t *testing.T) {
	token, err := IssueToken(42, rbac.RoleAdmin, "secret", time.Hour)
	require.NoError(t, err)

	id, err := ParseToken(token, "secret")
	require.NoError(t, err)
	require.Equal(t, int64(42), id.UserID)
	require.Equal(t, rbac.RoleAdmin, id.Role)
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := IssueToken(1, rbac.RoleUser, "secret", time.Hour)
	require.NoError(t, err)

	_, err = ParseToken(token, "wrong-secret")
	require.Error(t, err)
}

func TestParseTokenRejectsExpiredToken(t *testing.T) {
	token, err := IssueToken(1, rbac.RoleUser, "secret", -time.Minute)
	require.NoError(t, err)

	_, err = ParseToken(token, "secret")
	require.Error(t, err)
}

func TestIdentityIsAdmin(t *testing.T) {
	admin := Identity{UserID: 1, Role: rbac.RoleAdmin}
	user := Identity{UserID: 2, Role: rbac.RoleUser}
	require.True(t, admin.IsAdmin())
	require.False(t, user.IsAdmin())
}

func TestIdentityAuthorize(t *testing.T) {
	admin := Identity{UserID: 1, Role: rbac.RoleAdmin}
	require.NoError(t, admin.Authorize(rbac.PermissionManualRetry))

	user := Identity{UserID: 2, Role: rbac.RoleUser}
	require.Error(t, user.Authorize(rbac.PermissionManualRetry))
}

func TestWithContextAndFromContext(t *testing.T) {
	id := Identity{UserID: 7, Role: rbac.RoleUser}
	ctx := WithContext(context.Background(), id)

	got, ok := FromContext(ctx)
	require.True(t, ok)
	require.Equal(t, id, got)
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	require.False(t, ok)
}
