package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/telemetry"
)

// MaxDurationMinutes bounds a single booking to one day.
const MaxDurationMinutes = calendar.MinutesPerDay

type Service struct {
	facilities FacilityRepository
	providers  ProviderRepository
	bookings   BookingRepository
	cache      OccupancyCache
	now        func() time.Time
	logger     zerolog.Logger
}

type Option func(*Service)

// WithCache enables the advisory occupancy cache for availability reads.
func WithCache(c OccupancyCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(f FacilityRepository, p ProviderRepository, b BookingRepository, opts ...Option) *Service {
	s := &Service{
		facilities: f,
		providers:  p,
		bookings:   b,
		now:        time.Now,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return telemetry.Logger(ctx)
	}
	return &s.logger
}

// -- Facility --

func (s *Service) CreateFacility(ctx context.Context, f *Facility) error {
	if f.Name == "" {
		return apperr.Validation("name is required")
	}
	f.CreatedAt = s.now().UTC()
	return s.facilities.Create(ctx, f)
}

func (s *Service) GetFacility(ctx context.Context, id uuid.UUID) (*Facility, error) {
	return s.facilities.GetByID(ctx, id)
}

// -- Provider --

func (s *Service) CreateProvider(ctx context.Context, p *Provider) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, err := s.facilities.GetByID(ctx, p.FacilityID); err != nil {
		return err
	}
	now := s.now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	return s.providers.Create(ctx, p)
}

func (s *Service) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return s.providers.GetByID(ctx, id)
}

// activeProvider treats an inactive provider as unknown.
func (s *Service) activeProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	p, err := s.providers.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, apperr.NotFound("provider %s not found", id)
	}
	return p, nil
}

// -- Availability --

// ResolveAvailability returns the provider's full slot grid for date. A slot
// is free when a booking of duration minutes starting there fits inside the
// working window and overlaps no pending or confirmed booking. A duration of
// zero means one grid step.
func (s *Service) ResolveAvailability(ctx context.Context, providerID uuid.UUID, date calendar.Date, duration int) (_ *Availability, err error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduling.ResolveAvailability",
		attribute.String("provider.id", providerID.String()),
		attribute.String("date", date.String()),
	)
	defer telemetry.End(span, &err)

	if date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	if duration < 0 || duration > MaxDurationMinutes {
		return nil, apperr.Validation("duration must be between 0 and %d minutes", MaxDurationMinutes)
	}

	p, err := s.activeProvider(ctx, providerID)
	if err != nil {
		return nil, err
	}
	if duration == 0 {
		duration = p.GranularityMinutes
	}

	grid, err := calendar.GenerateSlots(p.Window.StartHour, p.Window.EndHour, p.GranularityMinutes)
	if err != nil {
		return nil, err
	}
	occupied, err := s.occupied(ctx, providerID, date)
	if err != nil {
		return nil, err
	}

	slots := make([]Slot, len(grid))
	for i, t := range grid {
		slots[i] = Slot{Time: t, Free: p.Window.Fits(t, duration) && !overlapsAny(occupied, t, duration)}
	}
	return &Availability{
		ProviderID:         providerID,
		Date:               date,
		GranularityMinutes: p.GranularityMinutes,
		DurationMinutes:    duration,
		Slots:              slots,
	}, nil
}

func overlapsAny(occupied []Interval, start calendar.TimeOfDay, minutes int) bool {
	for _, iv := range occupied {
		if iv.Overlaps(start, minutes) {
			return true
		}
	}
	return false
}

// occupied reads through the cache when one is configured. The version is
// read before the repository so that a booking committed during the read
// leaves the written entry unreachable. Cache failures fall back to the
// repository.
func (s *Service) occupied(ctx context.Context, providerID uuid.UUID, date calendar.Date) ([]Interval, error) {
	if s.cache == nil {
		return s.bookings.ListOccupying(ctx, providerID, date)
	}

	version, err := s.cache.Version(ctx, providerID, date)
	if err != nil {
		s.log(ctx).Warn().Err(err).Str("provider_id", providerID.String()).Msg("availability cache read failed")
		return s.bookings.ListOccupying(ctx, providerID, date)
	}
	ivs, ok, err := s.cache.Get(ctx, providerID, date, version)
	if err != nil {
		s.log(ctx).Warn().Err(err).Str("provider_id", providerID.String()).Msg("availability cache read failed")
	} else if ok {
		return ivs, nil
	}

	ivs, err = s.bookings.ListOccupying(ctx, providerID, date)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, providerID, date, version, ivs); err != nil {
		s.log(ctx).Warn().Err(err).Str("provider_id", providerID.String()).Msg("availability cache write failed")
	}
	return ivs, nil
}

func (s *Service) invalidate(ctx context.Context, providerID uuid.UUID, date calendar.Date) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, providerID, date); err != nil {
		s.log(ctx).Warn().Err(err).Str("provider_id", providerID.String()).Msg("availability cache invalidate failed")
	}
}

// -- Booking --

// AttemptBooking validates req against the provider and commits a pending
// booking if the interval is free. The repository performs the overlap
// check and the insert atomically; a losing concurrent attempt gets
// apperr.ErrConflict. replayed is true when an idempotency key matched an
// earlier identical request.
func (s *Service) AttemptBooking(ctx context.Context, req AttemptRequest) (_ *Booking, replayed bool, err error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduling.AttemptBooking",
		attribute.String("provider.id", req.ProviderID.String()),
		attribute.String("date", req.Date.String()),
		attribute.String("slot", req.SlotTime.String()),
	)
	defer telemetry.End(span, &err)

	if req.Date.IsZero() {
		return nil, false, apperr.Validation("date is required")
	}
	if !req.SlotTime.Valid() {
		return nil, false, apperr.Validation("slot_time %d is outside the day", int(req.SlotTime))
	}
	if req.DurationMinutes <= 0 || req.DurationMinutes > MaxDurationMinutes {
		return nil, false, apperr.Validation("duration must be between 1 and %d minutes", MaxDurationMinutes)
	}

	p, err := s.activeProvider(ctx, req.ProviderID)
	if err != nil {
		return nil, false, err
	}
	if !p.Window.Aligned(req.SlotTime, p.GranularityMinutes) {
		return nil, false, apperr.InvalidWindow("slot %s is not on the %d minute grid from %s",
			req.SlotTime, p.GranularityMinutes, p.Window.Start())
	}
	if !p.Window.Fits(req.SlotTime, req.DurationMinutes) {
		return nil, false, apperr.InvalidWindow("slot %s for %d minutes falls outside %s-%s",
			req.SlotTime, req.DurationMinutes, p.Window.Start(), p.Window.End())
	}

	now := s.now().UTC()
	b := &Booking{
		ID:              uuid.New(),
		ProviderID:      p.ID,
		RequesterID:     req.RequesterID,
		Date:            req.Date,
		SlotTime:        req.SlotTime,
		DurationMinutes: req.DurationMinutes,
		Status:          lifecycle.Pending,
		FeeSnapshot:     p.Fee,
		Remote:          req.Remote,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	stored, replayed, err := s.bookings.CreateIfFree(ctx, b)
	if err != nil {
		return nil, false, err
	}
	if !replayed {
		s.invalidate(ctx, stored.ProviderID, stored.Date)
		s.log(ctx).Info().
			Str("booking_id", stored.ID.String()).
			Str("provider_id", stored.ProviderID.String()).
			Str("date", stored.Date.String()).
			Str("slot", stored.SlotTime.String()).
			Int("duration", stored.DurationMinutes).
			Msg("booking created")
	}
	span.SetAttributes(attribute.String("booking.id", stored.ID.String()), attribute.Bool("booking.replayed", replayed))
	return stored, replayed, nil
}

// GetBooking returns the booking if actor is staff or its requester.
// Anyone else sees not found.
func (s *Service) GetBooking(ctx context.Context, actor lifecycle.Actor, id uuid.UUID) (*Booking, error) {
	b, err := s.bookings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !lifecycle.CanView(actor, b.RequesterID) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	return b, nil
}

// ListBookings restricts non-staff callers to their own bookings.
func (s *Service) ListBookings(ctx context.Context, actor lifecycle.Actor, f BookingFilter, limit, offset int) ([]*Booking, int, error) {
	if !actor.Staff {
		if actor.Anonymous() {
			return nil, 0, apperr.Unauthenticated("authentication required")
		}
		f.RequesterID = actor.ID
	}
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, 0, apperr.InvalidRange("to %s is before from %s", f.To, f.From)
	}
	return s.bookings.List(ctx, f, limit, offset)
}

// TransitionBooking moves a booking to status to. Leaving the occupying set
// frees the slot for later attempts.
func (s *Service) TransitionBooking(ctx context.Context, actor lifecycle.Actor, id uuid.UUID, to lifecycle.Status, reason string) (_ *Booking, err error) {
	ctx, span := telemetry.StartSpan(ctx, "scheduling.TransitionBooking",
		attribute.String("booking.id", id.String()),
		attribute.String("status.to", string(to)),
	)
	defer telemetry.End(span, &err)

	var from lifecycle.Status
	b, err := s.bookings.Transition(ctx, id, func(cur *Booking) (*lifecycle.Transition, error) {
		if !lifecycle.CanView(actor, cur.RequesterID) && !actor.Anonymous() {
			return nil, apperr.NotFound("booking %s not found", id)
		}
		if err := lifecycle.Authorize(actor, cur.RequesterID, to); err != nil {
			return nil, err
		}
		from = cur.Status
		return lifecycle.NewTransition(lifecycle.SubjectBooking, cur.ID, cur.Status, to, actor.ID, reason, s.now())
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, b.ProviderID, b.Date)
	s.log(ctx).Info().
		Str("booking_id", b.ID.String()).
		Str("from", string(from)).
		Str("to", string(b.Status)).
		Str("actor", actor.ID).
		Msg("booking status changed")
	return b, nil
}

// BookingTransitions returns the audit trail, visible to staff and the requester.
func (s *Service) BookingTransitions(ctx context.Context, actor lifecycle.Actor, id uuid.UUID) ([]*lifecycle.Transition, error) {
	if _, err := s.GetBooking(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.bookings.Transitions(ctx, id)
}
