package stay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

var testNow = time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *FacilityOption) {
	t.Helper()
	facility := uuid.New()
	store := NewMemoryStore()
	svc := NewService(store.Options(), store.Stays(),
		WithClock(func() time.Time { return testNow }),
		WithFacilityLookup(func(_ context.Context, id uuid.UUID) error {
			if id != facility {
				return apperr.NotFound("facility %s not found", id)
			}
			return nil
		}),
	)
	o := &FacilityOption{FacilityID: facility, Name: "Family room", NightlyRate: 100, MaxGuests: 3, Active: true}
	if err := svc.CreateOption(context.Background(), o); err != nil {
		t.Fatalf("create option: %v", err)
	}
	return svc, o
}

func day(d int) time.Time { return time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC) }

func TestService_CreateOption_UnknownFacility(t *testing.T) {
	svc, _ := newTestService(t)
	o := &FacilityOption{FacilityID: uuid.New(), Name: "x", NightlyRate: 1, MaxGuests: 1}
	if err := svc.CreateOption(context.Background(), o); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestService_Quote(t *testing.T) {
	svc, o := newTestService(t)
	q, err := svc.Quote(context.Background(), o.ID, day(1), day(4))
	if err != nil {
		t.Fatal(err)
	}
	if q.Nights != 3 || q.TotalCost != 300 {
		t.Errorf("expected 3 nights for 300, got %+v", q)
	}
	if _, err := svc.Quote(context.Background(), uuid.New(), day(1), day(4)); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown option: expected not found, got %v", err)
	}
}

func TestService_CreateStay(t *testing.T) {
	svc, o := newTestService(t)
	ctx := context.Background()
	who := "u1"

	st, err := svc.CreateStay(ctx, CreateRequest{
		FacilityOptionID: o.ID, CheckIn: day(1), CheckOut: day(4), GuestCount: 2, RequesterID: &who,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Status != lifecycle.Pending || st.Nights != 3 || st.TotalCost != 300 || st.NightlyRateSnapshot != 100 {
		t.Errorf("unexpected stay %+v", st)
	}
	if !st.CreatedAt.Equal(testNow) {
		t.Errorf("unexpected created_at %s", st.CreatedAt)
	}

	got, err := svc.GetStay(ctx, lifecycle.Actor{ID: "u1"}, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TotalCost != st.TotalCost {
		t.Errorf("stored total %s differs from %s", got.TotalCost, st.TotalCost)
	}
	if _, err := svc.GetStay(ctx, lifecycle.Actor{ID: "u2"}, st.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("stranger: expected not found, got %v", err)
	}
}

func TestService_CreateStay_Errors(t *testing.T) {
	svc, o := newTestService(t)
	ctx := context.Background()

	inactive := &FacilityOption{FacilityID: o.FacilityID, Name: "Closed wing", NightlyRate: 10, MaxGuests: 1}
	if err := svc.CreateOption(ctx, inactive); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"same instant", CreateRequest{FacilityOptionID: o.ID, CheckIn: day(1), CheckOut: day(1), GuestCount: 1}, apperr.ErrInvalidRange},
		{"inverted", CreateRequest{FacilityOptionID: o.ID, CheckIn: day(5), CheckOut: day(1), GuestCount: 1}, apperr.ErrInvalidRange},
		{"no guests", CreateRequest{FacilityOptionID: o.ID, CheckIn: day(1), CheckOut: day(2)}, apperr.ErrValidation},
		{"too many guests", CreateRequest{FacilityOptionID: o.ID, CheckIn: day(1), CheckOut: day(2), GuestCount: 4}, apperr.ErrValidation},
		{"unknown option", CreateRequest{FacilityOptionID: uuid.New(), CheckIn: day(1), CheckOut: day(2), GuestCount: 1}, apperr.ErrNotFound},
		{"inactive option", CreateRequest{FacilityOptionID: inactive.ID, CheckIn: day(1), CheckOut: day(2), GuestCount: 1}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateStay(ctx, tt.req); !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_TransitionStay(t *testing.T) {
	svc, o := newTestService(t)
	ctx := context.Background()
	who := "u1"
	st, err := svc.CreateStay(ctx, CreateRequest{FacilityOptionID: o.ID, CheckIn: day(1), CheckOut: day(2), GuestCount: 1, RequesterID: &who})
	if err != nil {
		t.Fatal(err)
	}
	staff := lifecycle.Actor{ID: "desk", Staff: true}

	if _, err := svc.TransitionStay(ctx, lifecycle.Actor{ID: "u1"}, st.ID, lifecycle.Confirmed, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("owner confirm: expected forbidden, got %v", err)
	}
	if _, err := svc.TransitionStay(ctx, staff, st.ID, lifecycle.Confirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	got, err := svc.TransitionStay(ctx, lifecycle.Actor{ID: "u1"}, st.ID, lifecycle.Cancelled, "plans changed")
	if err != nil {
		t.Fatalf("owner cancel: %v", err)
	}
	if got.TotalCost != st.TotalCost {
		t.Error("transition must not touch the total")
	}
	if _, err := svc.TransitionStay(ctx, staff, st.ID, lifecycle.Confirmed, ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("cancelled -> confirmed: expected invalid transition, got %v", err)
	}
	if _, err := svc.TransitionStay(ctx, staff, uuid.New(), lifecycle.Cancelled, ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing stay: expected not found, got %v", err)
	}

	trail, err := svc.StayTransitions(ctx, staff, st.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(trail) != 2 || trail[1].Subject != lifecycle.SubjectStay || trail[1].Reason != "plans changed" {
		t.Errorf("unexpected trail %+v", trail)
	}
}

func TestService_AnonymousStay(t *testing.T) {
	svc, o := newTestService(t)
	ctx := context.Background()
	st, err := svc.CreateStay(ctx, CreateRequest{FacilityOptionID: o.ID, CheckIn: day(1), CheckOut: day(3), GuestCount: 1})
	if err != nil {
		t.Fatal(err)
	}
	if st.RequesterID != nil {
		t.Error("anonymous stay should have no requester")
	}
	if _, err := svc.TransitionStay(ctx, lifecycle.Actor{}, st.ID, lifecycle.Cancelled, ""); !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("anonymous cancel: expected unauthenticated, got %v", err)
	}
	if _, err := svc.TransitionStay(ctx, lifecycle.Actor{ID: "desk", Staff: true}, st.ID, lifecycle.Cancelled, ""); err != nil {
		t.Errorf("staff cancel: %v", err)
	}
}

func TestService_ListStays(t *testing.T) {
	svc, o := newTestService(t)
	ctx := context.Background()
	u1, u2 := "u1", "u2"
	for _, who := range []*string{&u1, &u1, &u2} {
		if _, err := svc.CreateStay(ctx, CreateRequest{FacilityOptionID: o.ID, CheckIn: day(1), CheckOut: day(2), GuestCount: 1, RequesterID: who}); err != nil {
			t.Fatal(err)
		}
	}
	_, total, err := svc.ListStays(ctx, lifecycle.Actor{ID: "u1"}, Filter{RequesterID: "u2"}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 {
		t.Errorf("user filter must be forced to self, got %d", total)
	}
	_, total, _ = svc.ListStays(ctx, lifecycle.Actor{ID: "desk", Staff: true}, Filter{FacilityOptionID: o.ID}, 10, 0)
	if total != 3 {
		t.Errorf("staff should see all 3, got %d", total)
	}
}
