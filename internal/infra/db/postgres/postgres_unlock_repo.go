// File: internal/infra/db/postgres/postgres_unlock_repo.go
package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/repository"
)

var _ repository.UnlockRepository = (*unlockRepo)(nil)

type unlockRepo struct{ pool *pgxpool.Pool }

func NewUnlockRepo(pool *pgxpool.Pool) *unlockRepo {
	return &unlockRepo{pool: pool}
}

// Append relies on the primary key (subject_user_id, product_id): a duplicate
// grant attempt affects zero rows and reports first=false.
func (r *unlockRepo) Append(ctx context.Context, tx repository.Tx, u *model.Unlock) (bool, error) {
	const q = `
INSERT INTO user_unlocks (subject_user_id, product_id, entry_id, unlocked_at)
VALUES ($1,$2,$3,$4)
ON CONFLICT (subject_user_id, product_id) DO NOTHING;`

	cmd, err := execSQL(ctx, r.pool, tx, q, u.SubjectUserID, u.ProductID, u.EntryID, u.UnlockedAt)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *unlockRepo) ListBySubject(ctx context.Context, tx repository.Tx, subjectUserID string) ([]*model.Unlock, error) {
	const q = `SELECT subject_user_id, product_id, entry_id, unlocked_at
  FROM user_unlocks WHERE subject_user_id=$1 ORDER BY unlocked_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q, subjectUserID)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Unlock
	for rows.Next() {
		u := &model.Unlock{}
		if err := rows.Scan(&u.SubjectUserID, &u.ProductID, &u.EntryID, &u.UnlockedAt); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		out = append(out, u)
	}
	return out, nil
}

func (r *unlockRepo) Exists(ctx context.Context, tx repository.Tx, subjectUserID, productID string) (bool, error) {
	const q = `SELECT EXISTS(SELECT 1 FROM user_unlocks WHERE subject_user_id=$1 AND product_id=$2);`
	row, err := pickRow(ctx, r.pool, tx, q, subjectUserID, productID)
	if err != nil {
		return false, err
	}
	var exists bool
	if err := row.Scan(&exists); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, domain.ErrReadDatabaseRow
	}
	return exists, nil
}
