package rbac

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHasPermissionAdminCanReplayAudit(t *testing.T) {
	require.True(t, HasPermission(RoleAdmin, PermissionReplayAudit))
}

func TestHasPermissionUserCannotReplayAudit(t *testing.T) {
	require.False(t, HasPermission(RoleUser, PermissionReplayAudit))
}

func TestHasPermissionUnknownRole(t *testing.T) {
	require.False(t, HasPermission("not-a-role", PermissionReadHistory))
}

func TestCheckPermissionReturnsErrorOnDenial(t *testing.T) {
	err := CheckPermission(RoleUser, PermissionManualRetry)
	require.Error(t, err)
	require.IsType(t, &PermissionDeniedError{}, err)
}

func TestCheckPermissionNilOnGrant(t *testing.T) {
	require.NoError(t, CheckPermission(RoleAdmin, PermissionReadHistory))
}

func TestValidateUserIDInPayloadMismatch(t *testing.T) {
	err := ValidateUserIDInPayload(1, 2)
	require.Error(t, err)
	require.IsType(t, &UserIDMismatchError{}, err)
}

func TestValidateUserIDInPayloadMatch(t *testing.T) {
	require.NoError(t, ValidateUserIDInPayload(7, 7))
}
