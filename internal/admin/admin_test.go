package admin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"notifyengine/internal/identity"
	"notifyengine/internal/model"
	"notifyengine/pkg/rbac"
)

// An unauthorized caller must be rejected before any downstream dependency
// is touched, so a nil-dependency Admin is still safe to exercise here.
func unauthorized() identity.Identity {
	return identity.Identity{UserID: 1, Role: rbac.RoleUser}
}

func TestManualRetryRejectsUnauthorizedCaller(t *testing.T) {
	a := New(nil, nil, nil, nil)
	_, err := a.ManualRetry(context.Background(), unauthorized(), 1)
	require.Error(t, err)
}

func TestResetBudgetRejectsUnauthorizedCaller(t *testing.T) {
	a := New(nil, nil, nil, nil)
	err := a.ResetBudget(context.Background(), unauthorized(), 1, model.ChannelSMS)
	require.Error(t, err)
}

func TestReplayAuditEventRejectsUnauthorizedCaller(t *testing.T) {
	a := New(nil, nil, nil, nil)
	err := a.ReplayAuditEvent(context.Background(), unauthorized(), 1)
	require.Error(t, err)
}

func TestForceDigestRejectsNonAdminActingOnOtherUser(t *testing.T) {
	a := New(nil, nil, nil, nil)
	caller := identity.Identity{UserID: 1, Role: rbac.RoleUser}
	// PermissionForceDigest is admin-only in the current role map, so this
	// must already fail the permission check before reaching the
	// self-service user-id comparison.
	_, err := a.ForceDigest(context.Background(), caller, 2, model.DigestDaily)
	require.Error(t, err)
}
