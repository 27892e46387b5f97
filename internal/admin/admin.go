// Package admin is the rbac-gated programmatic admin surface: ManualRetry,
// ForceDigest, ResetBudget, and ReplayAuditEvent. Each operation requires an
// authenticated identity (see internal/identity) carrying the matching
// permission; the HTTP/RPC transport that authenticates the caller is out of
// scope, but the authorization check itself lives here rather than trusting
// the caller.
package admin

import (
	"context"
	"fmt"

	"notifyengine/internal/digestengine"
	"notifyengine/internal/identity"
	"notifyengine/internal/model"
	"notifyengine/internal/ratebudget"
	"notifyengine/internal/retryengine"
	"notifyengine/pkg/outbox"
	"notifyengine/pkg/rbac"
)

type Admin struct {
	retry  *retryengine.Engine
	digest *digestengine.Engine
	budget *ratebudget.Store
	outbox *outbox.Repository
}

func New(retry *retryengine.Engine, digest *digestengine.Engine, budget *ratebudget.Store, outboxRepo *outbox.Repository) *Admin {
	return &Admin{retry: retry, digest: digest, budget: budget, outbox: outboxRepo}
}

// ManualRetry forces one delivery record through the retry path immediately.
func (a *Admin) ManualRetry(ctx context.Context, id identity.Identity, deliveryRecordID int64) (bool, error) {
	if err := id.Authorize(rbac.PermissionManualRetry); err != nil {
		return false, err
	}
	return a.retry.ManualRetry(ctx, deliveryRecordID)
}

// ForceDigest fires one user's digest for frequency immediately. Non-admin
// callers may only force their own digest.
func (a *Admin) ForceDigest(ctx context.Context, id identity.Identity, userID int64, frequency model.DigestFrequency) (bool, error) {
	if err := id.Authorize(rbac.PermissionForceDigest); err != nil {
		return false, err
	}
	if !id.IsAdmin() {
		if err := rbac.ValidateUserIDInPayload(id.UserID, userID); err != nil {
			return false, err
		}
	}
	return a.digest.ForceDigest(ctx, userID, frequency)
}

// ResetBudget clears a user's rate budget counters for channel, or for
// every channel when channel is empty.
func (a *Admin) ResetBudget(ctx context.Context, id identity.Identity, userID int64, channel model.Channel) error {
	if err := id.Authorize(rbac.PermissionResetBudget); err != nil {
		return err
	}

	if channel != "" {
		return a.budget.Reset(ctx, userID, channel)
	}

	for _, c := range []model.Channel{model.ChannelSocket, model.ChannelSMS, model.ChannelEmail, model.ChannelPush} {
		if err := a.budget.Reset(ctx, userID, c); err != nil {
			return fmt.Errorf("admin: reset budget for channel %s: %w", c, err)
		}
	}
	return nil
}

// ReplayAuditEvent resets a failed outbox event back to pending so the
// dispatcher's own polling loop picks it up and republishes it, rather than
// duplicating the dispatcher's publish/compress logic here.
func (a *Admin) ReplayAuditEvent(ctx context.Context, id identity.Identity, eventID int64) error {
	if err := id.Authorize(rbac.PermissionReplayAudit); err != nil {
		return err
	}
	return a.outbox.ReplayEvent(ctx, eventID)
}
