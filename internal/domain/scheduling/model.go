package scheduling

import (
	"time"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/money"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

// Facility is a hospital or clinic. Managed by administrators; read-only here.
type Facility struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider is a bookable practitioner with a fixed daily working window.
type Provider struct {
	ID                 uuid.UUID       `json:"id"`
	FacilityID         uuid.UUID       `json:"facility_id"`
	Name               string          `json:"name"`
	Fee                money.Money     `json:"fee"`
	Window             calendar.Window `json:"window"`
	GranularityMinutes int             `json:"granularity_minutes"`
	Active             bool            `json:"active"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (p *Provider) Validate() error {
	if p.FacilityID == uuid.Nil {
		return apperr.Validation("facility_id is required")
	}
	if p.Name == "" {
		return apperr.Validation("name is required")
	}
	if p.Fee.Negative() {
		return apperr.Validation("fee must not be negative")
	}
	if err := p.Window.Validate(); err != nil {
		return err
	}
	if p.GranularityMinutes <= 0 {
		return apperr.InvalidWindow("slot granularity must be positive, got %d", p.GranularityMinutes)
	}
	return nil
}

// Booking is one appointment held against a provider's grid.
type Booking struct {
	ID              uuid.UUID          `json:"id"`
	ProviderID      uuid.UUID          `json:"provider_id"`
	RequesterID     *string            `json:"requester_id"`
	Date            calendar.Date      `json:"date"`
	SlotTime        calendar.TimeOfDay `json:"slot_time"`
	DurationMinutes int                `json:"duration_minutes"`
	Status          lifecycle.Status   `json:"status"`
	FeeSnapshot     money.Money        `json:"fee_snapshot"`
	Remote          bool               `json:"remote"`
	IdempotencyKey  string             `json:"idempotency_key,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (b *Booking) Interval() Interval {
	return Interval{Start: b.SlotTime, Minutes: b.DurationMinutes}
}

// sameRequest reports whether o asks for exactly what b holds. Used to tell an
// idempotent retry from a reused key.
func (b *Booking) sameRequest(o *Booking) bool {
	return b.ProviderID == o.ProviderID &&
		b.Date == o.Date &&
		b.SlotTime == o.SlotTime &&
		b.DurationMinutes == o.DurationMinutes &&
		b.Remote == o.Remote &&
		equalRequester(b.RequesterID, o.RequesterID)
}

func equalRequester(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Interval is a half-open occupied span [Start, Start+Minutes) on one day.
type Interval struct {
	Start   calendar.TimeOfDay `json:"start"`
	Minutes int                `json:"minutes"`
}

func (iv Interval) Overlaps(start calendar.TimeOfDay, minutes int) bool {
	return calendar.Overlaps(iv.Start, iv.Minutes, start, minutes)
}

// Slot is one grid point and whether a booking of the requested length could
// start there.
type Slot struct {
	Time calendar.TimeOfDay `json:"time"`
	Free bool               `json:"free"`
}

type Availability struct {
	ProviderID         uuid.UUID     `json:"provider_id"`
	Date               calendar.Date `json:"date"`
	GranularityMinutes int           `json:"granularity_minutes"`
	DurationMinutes    int           `json:"duration_minutes"`
	Slots              []Slot        `json:"slots"`
}

// AttemptRequest is a validated booking attempt.
type AttemptRequest struct {
	ProviderID      uuid.UUID
	Date            calendar.Date
	SlotTime        calendar.TimeOfDay
	DurationMinutes int
	// RequesterID is nil for anonymous bookings.
	RequesterID    *string
	Remote         bool
	IdempotencyKey string
}

// BookingFilter narrows ListBookings. Zero fields do not filter.
type BookingFilter struct {
	ProviderID  uuid.UUID
	RequesterID string
	Status      lifecycle.Status
	From        calendar.Date
	To          calendar.Date
}
