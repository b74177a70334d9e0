// Package calendar turns working-hour windows into fixed-width appointment
// slots on a local grid. All functions are pure.
package calendar

import (
	"time"

	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

// Window is a provider's daily working hours, [StartHour, EndHour).
type Window struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

func (w Window) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return apperr.InvalidWindow("window hours must be within [0,24), got %d-%d", w.StartHour, w.EndHour)
	}
	if w.EndHour <= w.StartHour {
		return apperr.InvalidWindow("window end %d must be after start %d", w.EndHour, w.StartHour)
	}
	return nil
}

func (w Window) Start() TimeOfDay { return At(w.StartHour, 0) }
func (w Window) End() TimeOfDay   { return At(w.EndHour, 0) }

// Fits reports whether [start, start+minutes) lies inside the window.
func (w Window) Fits(start TimeOfDay, minutes int) bool {
	return start >= w.Start() && start.Add(minutes) <= w.End()
}

// GenerateSlots returns every grid point in [startHour, endHour) stepped by
// granularity minutes, in ascending order.
func GenerateSlots(startHour, endHour, granularity int) ([]TimeOfDay, error) {
	w := Window{StartHour: startHour, EndHour: endHour}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if granularity <= 0 {
		return nil, apperr.InvalidWindow("slot granularity must be positive, got %d", granularity)
	}

	end := w.End()
	slots := make([]TimeOfDay, 0, int(end-w.Start())/granularity+1)
	for t := w.Start(); t < end; t = t.Add(granularity) {
		slots = append(slots, t)
	}
	return slots, nil
}

// Aligned reports whether t sits on the grid that starts at the window start.
func (w Window) Aligned(t TimeOfDay, granularity int) bool {
	return granularity > 0 && t >= w.Start() && int(t-w.Start())%granularity == 0
}

// Overlaps reports whether the half-open intervals [a, a+aMin) and
// [b, b+bMin) intersect.
func Overlaps(a TimeOfDay, aMin int, b TimeOfDay, bMin int) bool {
	return a < b.Add(bMin) && b < a.Add(aMin)
}

const day = 24 * time.Hour

// CeilDays rounds d up to whole 24-hour days. Non-positive durations are 0.
func CeilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(d / day)
	if d%day != 0 {
		n++
	}
	return n
}
