package adapter

import (
	"context"

	"elearn-entitlements/internal/domain/model"
)

// SideEffectDispatcher is the boundary the grantor hands post-grant work to.
// Both calls are fire-and-forget: failures are logged by the dispatcher and
// never propagated back to fail a grant.
type SideEffectDispatcher interface {
	Notify(ctx context.Context, recipientID string, kind model.NotificationKind, payload map[string]interface{})
	Emit(ctx context.Context, recipientID, event string, payload map[string]interface{})
}
