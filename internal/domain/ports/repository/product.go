package repository

import (
	"context"

	"elearn-entitlements/internal/domain/model"
)

type ProductRepository interface {
	Save(ctx context.Context, tx Tx, p *model.Product) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Product, error)
	// IncrementEnrollment bumps the denormalized counter. Called only by the
	// grantor, inside the same transaction as the state flip.
	IncrementEnrollment(ctx context.Context, tx Tx, id string) error
}
