package stay

import (
	"context"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
)

type OptionRepository interface {
	Create(ctx context.Context, o *FacilityOption) error
	GetByID(ctx context.Context, id uuid.UUID) (*FacilityOption, error)
}

// TransitionFunc sees the locked stay and returns the audit entry to apply.
type TransitionFunc func(current *Stay) (*lifecycle.Transition, error)

type StayRepository interface {
	Create(ctx context.Context, s *Stay) error
	GetByID(ctx context.Context, id uuid.UUID) (*Stay, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Stay, int, error)
	Transition(ctx context.Context, id uuid.UUID, fn TransitionFunc) (*Stay, error)
	Transitions(ctx context.Context, id uuid.UUID) ([]*lifecycle.Transition, error)
}

// FacilityLookup returns nil when the facility exists.
type FacilityLookup func(ctx context.Context, id uuid.UUID) error
