package rating

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// knownEntities is an EntityLookup over a fixed set.
type knownEntities map[Kind]map[uuid.UUID]bool

func (k knownEntities) lookup(_ context.Context, kind Kind, id uuid.UUID) error {
	if !k[kind][id] {
		return apperr.NotFound("%s %s not found", kind, id)
	}
	return nil
}

func newTestService(t *testing.T) (*Service, uuid.UUID, uuid.UUID) {
	t.Helper()
	facility, provider := uuid.New(), uuid.New()
	known := knownEntities{
		KindFacility: {facility: true},
		KindProvider: {provider: true},
	}
	svc := NewService(NewMemoryRepo(known.lookup), WithClock(func() time.Time { return testNow }))
	return svc, facility, provider
}

func TestAggregate_Next(t *testing.T) {
	var a Aggregate
	for _, s := range []float64{4, 5, 3} {
		a.Count, a.Mean = a.Next(s)
	}
	if a.Count != 3 || a.Mean != 4 {
		t.Errorf("expected (3, 4), got (%d, %g)", a.Count, a.Mean)
	}
}

func TestBounds_Check(t *testing.T) {
	tests := []struct {
		score float64
		ok    bool
	}{
		{1, true}, {5, true}, {3.5, true},
		{0.99, false}, {5.01, false}, {-1, false},
		{math.NaN(), false}, {math.Inf(1), false}, {math.Inf(-1), false},
	}
	for _, tt := range tests {
		err := DefaultBounds.Check(tt.score)
		if tt.ok && err != nil {
			t.Errorf("Check(%g): unexpected error %v", tt.score, err)
		}
		if !tt.ok && !errors.Is(err, apperr.ErrInvalidScore) {
			t.Errorf("Check(%g): expected invalid score, got %v", tt.score, err)
		}
	}
}

func TestService_ApplyRating_SequentialMean(t *testing.T) {
	svc, _, provider := newTestService(t)
	ctx := context.Background()
	scores := []float64{5, 4, 4, 2, 1, 3}

	var agg *Aggregate
	var err error
	sum := 0.0
	for _, s := range scores {
		sum += s
		if agg, err = svc.ApplyRating(ctx, KindProvider, provider, s, "u1"); err != nil {
			t.Fatalf("apply %g: %v", s, err)
		}
	}
	if agg.Count != int64(len(scores)) {
		t.Errorf("expected count %d, got %d", len(scores), agg.Count)
	}
	if want := sum / float64(len(scores)); math.Abs(agg.Mean-want) > 1e-9 {
		t.Errorf("expected mean %g, got %g", want, agg.Mean)
	}
	if agg.UpdatedAt == nil || !agg.UpdatedAt.Equal(testNow) {
		t.Errorf("unexpected updated_at %v", agg.UpdatedAt)
	}
}

func TestService_ApplyRating_ConcurrentConverges(t *testing.T) {
	svc, facility, _ := newTestService(t)
	ctx := context.Background()

	const n = 200
	sum := 0.0
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		score := float64(i%5 + 1)
		sum += score
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyRating(ctx, KindFacility, facility, score, ""); err != nil {
				t.Errorf("apply: %v", err)
			}
		}()
	}
	wg.Wait()

	agg, err := svc.GetAggregate(ctx, KindFacility, facility)
	if err != nil {
		t.Fatal(err)
	}
	if agg.Count != n {
		t.Fatalf("lost updates: expected count %d, got %d", n, agg.Count)
	}
	if want := sum / n; math.Abs(agg.Mean-want) > 1e-9 {
		t.Errorf("expected mean %g, got %g", want, agg.Mean)
	}

	_, total, err := svc.ListObservations(ctx, KindFacility, facility, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != n {
		t.Errorf("expected %d logged observations, got %d", n, total)
	}
}

func TestService_ApplyRating_Errors(t *testing.T) {
	svc, facility, provider := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		kind  Kind
		id    uuid.UUID
		score float64
		want  error
	}{
		{"score too high", KindProvider, provider, 6, apperr.ErrInvalidScore},
		{"score too low", KindProvider, provider, 0, apperr.ErrInvalidScore},
		{"nan", KindProvider, provider, math.NaN(), apperr.ErrInvalidScore},
		{"unknown kind", Kind("hotel"), provider, 3, apperr.ErrValidation},
		{"nil id", KindProvider, uuid.Nil, 3, apperr.ErrValidation},
		{"unknown entity", KindProvider, uuid.New(), 3, apperr.ErrNotFound},
		{"kind mismatch", KindProvider, facility, 3, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.ApplyRating(ctx, tt.kind, tt.id, tt.score, ""); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}

	agg, err := svc.GetAggregate(ctx, KindProvider, provider)
	if err != nil {
		t.Fatal(err)
	}
	if agg.Count != 0 || agg.Mean != 0 {
		t.Errorf("rejected scores must not change the aggregate, got (%d, %g)", agg.Count, agg.Mean)
	}
}

func TestService_CustomBounds(t *testing.T) {
	facility := uuid.New()
	known := knownEntities{KindFacility: {facility: true}}
	svc := NewService(NewMemoryRepo(known.lookup), WithBounds(Bounds{Min: 0, Max: 10}))

	if _, err := svc.ApplyRating(context.Background(), KindFacility, facility, 9.5, ""); err != nil {
		t.Errorf("9.5 should be accepted in [0, 10]: %v", err)
	}
	if svc.Bounds().Max != 10 {
		t.Errorf("unexpected bounds %+v", svc.Bounds())
	}
}

func TestService_GetAggregate_UnknownEntity(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.GetAggregate(context.Background(), KindFacility, uuid.New()); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_ApplyRating_LogsCommit(t *testing.T) {
	facility := uuid.New()
	known := knownEntities{KindFacility: {facility: true}}
	var buf bytes.Buffer
	svc := NewService(NewMemoryRepo(known.lookup), WithLogger(zerolog.New(&buf)))

	if _, err := svc.ApplyRating(context.Background(), KindFacility, facility, 4, ""); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"level":"info"`) || !strings.Contains(out, `"message":"rating applied"`) {
		t.Errorf("expected info log for the committed rating, got %q", out)
	}
	if !strings.Contains(out, `"entity_id":"`+facility.String()+`"`) {
		t.Errorf("expected entity id in log, got %q", out)
	}

	buf.Reset()
	if _, err := svc.ApplyRating(context.Background(), KindFacility, facility, 99, ""); err == nil {
		t.Fatal("expected out-of-range score to fail")
	}
	if buf.Len() != 0 {
		t.Errorf("rejected rating should not log a commit, got %q", buf.String())
	}
}
