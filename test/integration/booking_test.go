package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/scheduling"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

var bookingDate = calendar.Date{Year: 2026, Month: 11, Day: 2}

func TestBookingRace(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, "race")
	p := createTestProvider(t, ctx, s)

	const attempts = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		won       int
		conflicts int
		other     []error
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Half the callers ask for an overlapping hour-long slot.
			req := scheduling.AttemptRequest{
				ProviderID:      p.ID,
				Date:            bookingDate,
				SlotTime:        calendar.At(10, 0),
				DurationMinutes: 30,
			}
			if i%2 == 1 {
				req.SlotTime = calendar.At(9, 30)
				req.DurationMinutes = 60
			}
			_, _, err := s.scheduling.AttemptBooking(ctx, req)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won++
			case errors.Is(err, apperr.ErrConflict):
				conflicts++
			default:
				other = append(other, err)
			}
		}(i)
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if won != 1 || conflicts != attempts-1 {
		t.Fatalf("expected exactly one winner, got %d winners and %d conflicts", won, conflicts)
	}

	list, total, err := s.scheduling.ListBookings(ctx, lifecycle.Actor{ID: "ops", Staff: true},
		scheduling.BookingFilter{ProviderID: p.ID}, 50, 0)
	if err != nil {
		t.Fatalf("ListBookings: %v", err)
	}
	if total != 1 || len(list) != 1 {
		t.Errorf("expected one stored booking, got %d", total)
	}
}

func TestBookingAdjacentSlotsAndCancellation(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, "adjacent")
	p := createTestProvider(t, ctx, s)
	staff := lifecycle.Actor{ID: "ops", Staff: true}

	first, _, err := s.scheduling.AttemptBooking(ctx, scheduling.AttemptRequest{
		ProviderID: p.ID, Date: bookingDate, SlotTime: calendar.At(10, 0), DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}
	if _, _, err := s.scheduling.AttemptBooking(ctx, scheduling.AttemptRequest{
		ProviderID: p.ID, Date: bookingDate, SlotTime: calendar.At(10, 30), DurationMinutes: 30,
	}); err != nil {
		t.Fatalf("adjacent booking should succeed: %v", err)
	}

	if _, err := s.scheduling.TransitionBooking(ctx, staff, first.ID, lifecycle.Cancelled, "patient request"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	again, _, err := s.scheduling.AttemptBooking(ctx, scheduling.AttemptRequest{
		ProviderID: p.ID, Date: bookingDate, SlotTime: calendar.At(10, 0), DurationMinutes: 30,
	})
	if err != nil {
		t.Fatalf("cancelled slot should be free again: %v", err)
	}
	if again.FeeSnapshot != p.Fee {
		t.Errorf("expected fee snapshot %d, got %d", p.Fee, again.FeeSnapshot)
	}

	history, err := s.scheduling.BookingTransitions(ctx, staff, first.ID)
	if err != nil {
		t.Fatalf("BookingTransitions: %v", err)
	}
	if len(history) != 1 || history[0].From != lifecycle.Pending || history[0].To != lifecycle.Cancelled {
		t.Errorf("unexpected transition history %+v", history)
	}
}

func TestBookingIdempotency(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, "idem")
	p := createTestProvider(t, ctx, s)

	req := scheduling.AttemptRequest{
		ProviderID:      p.ID,
		Date:            bookingDate,
		SlotTime:        calendar.At(11, 0),
		DurationMinutes: 30,
		RequesterID:     ptrStr("patient-1"),
		IdempotencyKey:  uuid.NewString(),
	}
	first, replayed, err := s.scheduling.AttemptBooking(ctx, req)
	if err != nil || replayed {
		t.Fatalf("first attempt: replayed=%v err=%v", replayed, err)
	}
	second, replayed, err := s.scheduling.AttemptBooking(ctx, req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !replayed || second.ID != first.ID {
		t.Errorf("expected replay of %s, got %s (replayed=%v)", first.ID, second.ID, replayed)
	}

	req.SlotTime = calendar.At(12, 0)
	if _, _, err := s.scheduling.AttemptBooking(ctx, req); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("reusing a key for a different slot should conflict, got %v", err)
	}
}

func TestAvailabilityReflectsBookings(t *testing.T) {
	ctx := context.Background()
	s := newStack(t, "avail")
	p := createTestProvider(t, ctx, s)

	if _, _, err := s.scheduling.AttemptBooking(ctx, scheduling.AttemptRequest{
		ProviderID: p.ID, Date: bookingDate, SlotTime: calendar.At(9, 0), DurationMinutes: 60,
	}); err != nil {
		t.Fatal(err)
	}

	avail, err := s.scheduling.ResolveAvailability(ctx, p.ID, bookingDate, 30)
	if err != nil {
		t.Fatalf("ResolveAvailability: %v", err)
	}
	free := 0
	for _, slot := range avail.Slots {
		if slot.Free {
			free++
		}
	}
	if len(avail.Slots) != 16 || free != 14 {
		t.Errorf("expected 14 of 16 slots free, got %d of %d", free, len(avail.Slots))
	}
}
