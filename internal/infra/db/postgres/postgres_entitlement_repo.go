// File: internal/infra/db/postgres/postgres_entitlement_repo.go
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"elearn-entitlements/internal/domain"
	"elearn-entitlements/internal/domain/model"
	"elearn-entitlements/internal/domain/ports/repository"
)

var _ repository.EntitlementRepository = (*entitlementRepo)(nil)

type entitlementRepo struct{ pool *pgxpool.Pool }

func NewEntitlementRepo(pool *pgxpool.Pool) *entitlementRepo {
	return &entitlementRepo{pool: pool}
}

const entitlementCols = `id, subject_user_id, product_id, product_kind, state, provider,
 local_order_id, local_payment_id, local_signature,
 remote_transaction_id, remote_original_transaction_id,
 amount, currency, paid_at, created_at, updated_at`

func scanEntitlement(row pgx.Row) (*model.EntitlementRequest, error) {
	e := &model.EntitlementRequest{}
	var (
		localOrderID, localPaymentID, localSignature *string
		remoteTxID, remoteOrigTxID                   *string
	)
	err := row.Scan(
		&e.ID, &e.SubjectUserID, &e.Product.ProductID, &e.Product.Kind, &e.State, &e.Provider,
		&localOrderID, &localPaymentID, &localSignature,
		&remoteTxID, &remoteOrigTxID,
		&e.Amount, &e.Currency, &e.PaidAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	if localOrderID != nil {
		e.LocalOrderID = *localOrderID
	}
	if localPaymentID != nil {
		e.LocalPaymentID = *localPaymentID
	}
	if localSignature != nil {
		e.LocalSignature = *localSignature
	}
	if remoteTxID != nil {
		e.RemoteTransactionID = *remoteTxID
	}
	if remoteOrigTxID != nil {
		e.RemoteOriginalTransactionID = *remoteOrigTxID
	}
	return e, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *entitlementRepo) Save(ctx context.Context, tx repository.Tx, e *model.EntitlementRequest) error {
	const q = `
INSERT INTO entitlement_requests (
  id, subject_user_id, product_id, product_kind, state, provider,
  local_order_id, local_payment_id, local_signature,
  remote_transaction_id, remote_original_transaction_id,
  amount, currency, paid_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
ON CONFLICT (id) DO UPDATE SET
  state=$5, provider=$6, local_order_id=$7, local_payment_id=$8, local_signature=$9,
  remote_transaction_id=$10, remote_original_transaction_id=$11,
  paid_at=$14, updated_at=$16;`

	_, err := execSQL(ctx, r.pool, tx, q,
		e.ID, e.SubjectUserID, e.Product.ProductID, e.Product.Kind, e.State, e.Provider,
		nullable(e.LocalOrderID), nullable(e.LocalPaymentID), nullable(e.LocalSignature),
		nullable(e.RemoteTransactionID), nullable(e.RemoteOriginalTransactionID),
		e.Amount, e.Currency, e.PaidAt, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return err
		}
		return domain.ErrOperationFailed
	}
	return nil
}

func (r *entitlementRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.EntitlementRequest, error) {
	q := `SELECT ` + entitlementCols + ` FROM entitlement_requests WHERE id=$1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, id)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(row)
}

func (r *entitlementRepo) FindBySubjectAndProduct(ctx context.Context, tx repository.Tx, subjectUserID, productID string) (*model.EntitlementRequest, error) {
	q := `SELECT ` + entitlementCols + ` FROM entitlement_requests
 WHERE subject_user_id=$1 AND product_id=$2
 ORDER BY state != 'pending' DESC, created_at DESC LIMIT 1`
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	row, err := pickRow(ctx, r.pool, tx, q, subjectUserID, productID)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(row)
}

func (r *entitlementRepo) FindByRemoteTransactionID(ctx context.Context, tx repository.Tx, remoteTxID string) (*model.EntitlementRequest, error) {
	q := `SELECT ` + entitlementCols + ` FROM entitlement_requests WHERE remote_transaction_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, remoteTxID)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(row)
}

func (r *entitlementRepo) FindByLocalOrderID(ctx context.Context, tx repository.Tx, orderID string) (*model.EntitlementRequest, error) {
	q := `SELECT ` + entitlementCols + ` FROM entitlement_requests WHERE local_order_id=$1 LIMIT 1;`
	row, err := pickRow(ctx, r.pool, tx, q, orderID)
	if err != nil {
		return nil, err
	}
	return scanEntitlement(row)
}

// MarkPaidIfPending flips pending -> paid and records the proof in the same
// statement. Amount and currency are deliberately untouched: verification
// never mutates price.
func (r *entitlementRepo) MarkPaidIfPending(ctx context.Context, tx repository.Tx, id string, proof *model.VerifiedTransaction, paidAt time.Time) (bool, error) {
	const q = `
UPDATE entitlement_requests
   SET state = 'paid',
       local_payment_id = COALESCE($2, local_payment_id),
       local_signature = COALESCE($3, local_signature),
       remote_transaction_id = COALESCE($4, remote_transaction_id),
       remote_original_transaction_id = COALESCE($5, remote_original_transaction_id),
       paid_at = $6,
       updated_at = NOW()
 WHERE id = $1
   AND state = 'pending';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id,
		nullable(proof.LocalPaymentID), nullable(proof.LocalSignature),
		nullable(proof.RemoteTransactionID), nullable(proof.RemoteOriginalTransactionID),
		paidAt,
	)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		// Unique violation on remote_transaction_id: a concurrent grant with
		// the same transaction id committed first. The caller resolves this
		// against the winning row instead of failing the request.
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return false, domain.ErrTransactionConsumed
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *entitlementRepo) MarkFulfilledIfPaid(ctx context.Context, tx repository.Tx, id string) (bool, error) {
	const q = `
UPDATE entitlement_requests
   SET state = 'fulfilled', updated_at = NOW()
 WHERE id = $1
   AND state = 'paid';`

	cmd, err := execSQL(ctx, r.pool, tx, q, id)
	if err != nil {
		if err == domain.ErrInvalidArgument || err == domain.ErrInvalidExecContext {
			return false, err
		}
		return false, domain.ErrOperationFailed
	}
	return cmd.RowsAffected() >= 1, nil
}

func (r *entitlementRepo) ListPendingLocalOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.EntitlementRequest, error) {
	if limit <= 0 {
		limit = 100
	}
	const q = `SELECT ` + entitlementCols + ` FROM entitlement_requests
 WHERE state='pending' AND provider='local_order' AND created_at < $1
 ORDER BY created_at ASC LIMIT $2;`
	rows, err := queryRows(ctx, r.pool, tx, q, olderThan, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.EntitlementRequest
	for rows.Next() {
		e, err := scanEntitlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}
