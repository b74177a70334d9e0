package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/stay"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

func TestStayLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, "stay")
	p := createTestProvider(t, ctx, s)

	o := &stay.FacilityOption{FacilityID: p.FacilityID, Name: "Private room", NightlyRate: 100, MaxGuests: 2, Active: true}
	if err := s.stays.CreateOption(ctx, o); err != nil {
		t.Fatalf("CreateOption: %v", err)
	}

	checkIn := time.Date(2026, 11, 2, 14, 0, 0, 0, time.UTC)
	st, err := s.stays.CreateStay(ctx, stay.CreateRequest{
		FacilityOptionID: o.ID,
		CheckIn:          checkIn,
		CheckOut:         checkIn.Add(72 * time.Hour),
		GuestCount:       2,
		RequesterID:      ptrStr("patient-1"),
	})
	if err != nil {
		t.Fatalf("CreateStay: %v", err)
	}
	if st.Nights != 3 || st.TotalCost != 300 {
		t.Errorf("expected 3 nights for 300, got %d nights for %d", st.Nights, st.TotalCost)
	}

	owner := lifecycle.Actor{ID: "patient-1"}
	staff := lifecycle.Actor{ID: "ops", Staff: true}

	if _, err := s.stays.TransitionStay(ctx, owner, st.ID, lifecycle.Confirmed, ""); !errors.Is(err, apperr.ErrForbidden) {
		t.Errorf("owner should not confirm, got %v", err)
	}
	if _, err := s.stays.TransitionStay(ctx, staff, st.ID, lifecycle.Confirmed, ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := s.stays.TransitionStay(ctx, staff, st.ID, lifecycle.Pending, ""); !errors.Is(err, apperr.ErrInvalidTransition) {
		t.Errorf("confirmed to pending should be rejected, got %v", err)
	}
	got, err := s.stays.GetStay(ctx, owner, st.ID)
	if err != nil {
		t.Fatalf("GetStay: %v", err)
	}
	if got.Status != lifecycle.Confirmed {
		t.Errorf("expected confirmed, got %s", got.Status)
	}

	history, err := s.stays.StayTransitions(ctx, staff, st.ID)
	if err != nil {
		t.Fatalf("StayTransitions: %v", err)
	}
	if len(history) != 1 || history[0].Actor != "ops" {
		t.Errorf("unexpected history %+v", history)
	}
}
