// File: internal/infra/db/postgres/postgres_notification_log_repo.go
package postgres

import (
	"context"

	"github.com/jackc/pgx/v4/pgxpool"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/repository"
)

var _ repository.NotificationLogRepository = (*notificationLogRepo)(nil)

type notificationLogRepo struct{ pool *pgxpool.Pool }

func NewNotificationLogRepo(pool *pgxpool.Pool) repository.NotificationLogRepository {
	return &notificationLogRepo{pool: pool}
}

func (r *notificationLogRepo) Save(ctx context.Context, tx repository.Tx, n *model.Notification) error {
	const q = `
INSERT INTO notifications (id, recipient_id, kind, payload, created_at)
VALUES ($1, $2, $3, $4, $5);`

	_, err := execSQL(ctx, r.pool, tx, q, n.ID, n.RecipientID, n.Kind, n.Payload, n.CreatedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *notificationLogRepo) ListByRecipient(ctx context.Context, tx repository.Tx, recipientID string, limit int) ([]*model.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	const q = `SELECT id, recipient_id, kind, payload, created_at
  FROM notifications WHERE recipient_id=$1 ORDER BY created_at DESC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, recipientID, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Notification
	for rows.Next() {
		n := &model.Notification{}
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Kind, &n.Payload, &n.CreatedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, n)
	}
	return out, nil
}
