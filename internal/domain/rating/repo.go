package rating

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Apply folds obs into its entity's aggregate and records it, as one
	// atomic step per entity. Unknown entities yield apperr.ErrNotFound.
	Apply(ctx context.Context, obs *Observation) (*Aggregate, error)
	Get(ctx context.Context, kind Kind, id uuid.UUID) (*Aggregate, error)
	Observations(ctx context.Context, kind Kind, id uuid.UUID, limit, offset int) ([]*Observation, int, error)
}

// EntityLookup returns nil if the entity exists and an apperr.ErrNotFound
// error otherwise.
type EntityLookup func(ctx context.Context, kind Kind, id uuid.UUID) error
