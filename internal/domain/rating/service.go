package rating

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/telemetry"
)

type Service struct {
	repo   Repository
	bounds Bounds
	now    func() time.Time
	logger zerolog.Logger
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithBounds(b Bounds) Option {
	return func(s *Service) { s.bounds = b }
}

// WithLogger sets the logger used when the request context carries none.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(repo Repository, opts ...Option) *Service {
	s := &Service{repo: repo, bounds: DefaultBounds, now: time.Now, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Bounds() Bounds { return s.bounds }

func (s *Service) log(ctx context.Context) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return telemetry.Logger(ctx)
	}
	return &s.logger
}

// ApplyRating validates score and folds it into the entity's running mean,
// returning the updated aggregate.
func (s *Service) ApplyRating(ctx context.Context, kind Kind, id uuid.UUID, score float64, raterID string) (_ *Aggregate, err error) {
	ctx, span := telemetry.StartSpan(ctx, "rating.ApplyRating",
		attribute.String("entity.kind", string(kind)),
		attribute.String("entity.id", id.String()),
	)
	defer telemetry.End(span, &err)

	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, apperr.Validation("entity_id is required")
	}
	if err := s.bounds.Check(score); err != nil {
		return nil, err
	}

	obs := &Observation{
		ID:       uuid.New(),
		Kind:     kind,
		EntityID: id,
		RaterID:  raterID,
		Score:    score,
		At:       s.now().UTC(),
	}
	agg, err := s.repo.Apply(ctx, obs)
	if err != nil {
		return nil, err
	}

	s.log(ctx).Info().
		Str("entity_kind", string(kind)).
		Str("entity_id", id.String()).
		Int64("count", agg.Count).
		Float64("mean", agg.Mean).
		Msg("rating applied")
	return agg, nil
}

func (s *Service) GetAggregate(ctx context.Context, kind Kind, id uuid.UUID) (*Aggregate, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, kind, id)
}

func (s *Service) ListObservations(ctx context.Context, kind Kind, id uuid.UUID, limit, offset int) ([]*Observation, int, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, 0, err
	}
	return s.repo.Observations(ctx, kind, id, limit, offset)
}
