package stay

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/telemetry"
)

type Service struct {
	options    OptionRepository
	stays      StayRepository
	facilities FacilityLookup
	now        func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithFacilityLookup checks facilities before options are created. Without
// it the repository's own constraints apply.
func WithFacilityLookup(fn FacilityLookup) Option {
	return func(s *Service) { s.facilities = fn }
}

func NewService(options OptionRepository, stays StayRepository, opts ...Option) *Service {
	s := &Service{options: options, stays: stays, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -- Facility options --

func (s *Service) CreateOption(ctx context.Context, o *FacilityOption) error {
	if err := o.Validate(); err != nil {
		return err
	}
	if s.facilities != nil {
		if err := s.facilities(ctx, o.FacilityID); err != nil {
			return err
		}
	}
	o.CreatedAt = s.now().UTC()
	return s.options.Create(ctx, o)
}

func (s *Service) GetOption(ctx context.Context, id uuid.UUID) (*FacilityOption, error) {
	return s.options.GetByID(ctx, id)
}

func (s *Service) activeOption(ctx context.Context, id uuid.UUID) (*FacilityOption, error) {
	o, err := s.options.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !o.Active {
		return nil, apperr.NotFound("facility option %s not found", id)
	}
	return o, nil
}

// -- Stays --

// Quote prices a stay on an active option without committing anything.
func (s *Service) Quote(ctx context.Context, optionID uuid.UUID, checkIn, checkOut time.Time) (Quote, error) {
	o, err := s.activeOption(ctx, optionID)
	if err != nil {
		return Quote{}, err
	}
	return ComputeStayCost(checkIn, checkOut, o.NightlyRate)
}

// CreateStay prices and commits a pending stay. The option's nightly rate is
// copied onto the stay and the total is never recomputed.
func (s *Service) CreateStay(ctx context.Context, req CreateRequest) (_ *Stay, err error) {
	ctx, span := telemetry.StartSpan(ctx, "stay.CreateStay",
		attribute.String("facility_option.id", req.FacilityOptionID.String()),
	)
	defer telemetry.End(span, &err)

	if req.GuestCount < 1 {
		return nil, apperr.Validation("guest_count must be at least 1")
	}
	o, err := s.activeOption(ctx, req.FacilityOptionID)
	if err != nil {
		return nil, err
	}
	if req.GuestCount > o.MaxGuests {
		return nil, apperr.Validation("guest_count %d exceeds the option maximum of %d", req.GuestCount, o.MaxGuests)
	}
	q, err := ComputeStayCost(req.CheckIn, req.CheckOut, o.NightlyRate)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	st := &Stay{
		ID:                  uuid.New(),
		FacilityOptionID:    o.ID,
		RequesterID:         req.RequesterID,
		CheckIn:             req.CheckIn.UTC(),
		CheckOut:            req.CheckOut.UTC(),
		GuestCount:          req.GuestCount,
		NightlyRateSnapshot: q.NightlyRate,
		Nights:              q.Nights,
		TotalCost:           q.TotalCost,
		Status:              lifecycle.Pending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := s.stays.Create(ctx, st); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("stay.id", st.ID.String()), attribute.Int("stay.nights", st.Nights))
	zerolog.Ctx(ctx).Info().
		Str("stay_id", st.ID.String()).
		Str("facility_option_id", o.ID.String()).
		Int("nights", st.Nights).
		Int64("total_cost", int64(st.TotalCost)).
		Msg("stay created")
	return st, nil
}

// GetStay hides stays the actor may not see.
func (s *Service) GetStay(ctx context.Context, actor lifecycle.Actor, id uuid.UUID) (*Stay, error) {
	st, err := s.stays.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.CanView(actor, st.RequesterID) {
		return nil, apperr.NotFound("stay %s not found", id)
	}
	return st, nil
}

func (s *Service) ListStays(ctx context.Context, actor lifecycle.Actor, f Filter, limit, offset int) ([]*Stay, int, error) {
	if !actor.Staff {
		if actor.Anonymous() {
			return nil, 0, apperr.Unauthenticated("authentication required")
		}
		f.RequesterID = actor.ID
	}
	return s.stays.List(ctx, f, limit, offset)
}

func (s *Service) TransitionStay(ctx context.Context, actor lifecycle.Actor, id uuid.UUID, to lifecycle.Status, reason string) (_ *Stay, err error) {
	ctx, span := telemetry.StartSpan(ctx, "stay.TransitionStay",
		attribute.String("stay.id", id.String()),
		attribute.String("status.to", string(to)),
	)
	defer telemetry.End(span, &err)

	st, err := s.stays.Transition(ctx, id, func(cur *Stay) (*lifecycle.Transition, error) {
		if !lifecycle.CanView(actor, cur.RequesterID) && !actor.Anonymous() {
			return nil, apperr.NotFound("stay %s not found", id)
		}
		if err := lifecycle.Authorize(actor, cur.RequesterID, to); err != nil {
			return nil, err
		}
		return lifecycle.NewTransition(lifecycle.SubjectStay, cur.ID, cur.Status, to, actor.ID, reason, s.now())
	})
	if err != nil {
		return nil, err
	}
	zerolog.Ctx(ctx).Info().
		Str("stay_id", st.ID.String()).
		Str("to", string(st.Status)).
		Str("actor", actor.ID).
		Msg("stay status changed")
	return st, nil
}

func (s *Service) StayTransitions(ctx context.Context, actor lifecycle.Actor, id uuid.UUID) ([]*lifecycle.Transition, error) {
	if _, err := s.GetStay(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.stays.Transitions(ctx, id)
}
