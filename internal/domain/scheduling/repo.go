package scheduling

import (
	"context"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
)

// FacilityRepository and ProviderRepository serve reference data written by
// administrators. GetByID returns an apperr.ErrNotFound error on a miss.
type FacilityRepository interface {
	Create(ctx context.Context, f *Facility) error
	GetByID(ctx context.Context, id uuid.UUID) (*Facility, error)
}

type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
}

// TransitionFunc inspects the current booking, with the record locked, and
// returns the audit entry to apply or an error to abort.
type TransitionFunc func(current *Booking) (*lifecycle.Transition, error)

type BookingRepository interface {
	// ListOccupying returns the intervals held by pending or confirmed
	// bookings for the provider on date.
	ListOccupying(ctx context.Context, providerID uuid.UUID, date calendar.Date) ([]Interval, error)

	// CreateIfFree checks b against the occupying bookings of its provider
	// and date and inserts it, as one atomic step with respect to concurrent
	// callers. A booking carrying an idempotency key that matches an earlier
	// identical request returns that booking with replayed set.
	CreateIfFree(ctx context.Context, b *Booking) (stored *Booking, replayed bool, err error)

	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	List(ctx context.Context, f BookingFilter, limit, offset int) ([]*Booking, int, error)

	// Transition applies fn's result to the booking and records it in the
	// audit log in one unit.
	Transition(ctx context.Context, id uuid.UUID, fn TransitionFunc) (*Booking, error)
	Transitions(ctx context.Context, id uuid.UUID) ([]*lifecycle.Transition, error)
}

// OccupancyCache holds advisory copies of ListOccupying results, versioned
// per provider and day. Invalidate moves the day to a new version, so a Set
// made under the version read before an invalidation is never served.
type OccupancyCache interface {
	Version(ctx context.Context, providerID uuid.UUID, date calendar.Date) (int64, error)
	Get(ctx context.Context, providerID uuid.UUID, date calendar.Date, version int64) ([]Interval, bool, error)
	Set(ctx context.Context, providerID uuid.UUID, date calendar.Date, version int64, intervals []Interval) error
	Invalidate(ctx context.Context, providerID uuid.UUID, date calendar.Date) error
}
