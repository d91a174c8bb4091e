package repository

import (
	"context"

	"elearn-entitlements/internal/domain/model"
)

type NotificationLogRepository interface {
	Save(ctx context.Context, tx Tx, n *model.Notification) error
	ListByRecipient(ctx context.Context, tx Tx, recipientID string, limit int) ([]*model.Notification, error)
}
