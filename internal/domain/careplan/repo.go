package careplan

import (
	"context"

	"github.com/google/uuid"
)

// Repository persists generated care plan documents.
type Repository interface {
	// Upsert writes the plan for its order, replacing any earlier document.
	Upsert(ctx context.Context, plan *CarePlan) error
	// GetByOrderID returns the plan for an order, or (nil, nil) when the
	// order has no generated document.
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*CarePlan, error)
	// Delete removes an order's document. A missing row is not an error.
	Delete(ctx context.Context, orderID uuid.UUID) error
}
