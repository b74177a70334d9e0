// Package stay prices and books accommodation on facility options. A stay's
// nightly rate and total are fixed when it is created.
package stay

import (
	"time"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/money"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

// FacilityOption is a bookable room type offered by a facility.
type FacilityOption struct {
	ID          uuid.UUID   `json:"id"`
	FacilityID  uuid.UUID   `json:"facility_id"`
	Name        string      `json:"name"`
	NightlyRate money.Money `json:"nightly_rate"`
	MaxGuests   int         `json:"max_guests"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (o *FacilityOption) Validate() error {
	if o.FacilityID == uuid.Nil {
		return apperr.Validation("facility_id is required")
	}
	if o.Name == "" {
		return apperr.Validation("name is required")
	}
	if o.NightlyRate.Negative() {
		return apperr.Validation("nightly_rate must not be negative")
	}
	if o.MaxGuests < 1 {
		return apperr.Validation("max_guests must be at least 1")
	}
	return nil
}

type Quote struct {
	Nights      int         `json:"nights"`
	NightlyRate money.Money `json:"nightly_rate"`
	TotalCost   money.Money `json:"total_cost"`
}

// ComputeStayCost charges every started 24 hours as a night, with a minimum
// of one. checkOut must be strictly after checkIn.
func ComputeStayCost(checkIn, checkOut time.Time, nightlyRate money.Money) (Quote, error) {
	if !checkOut.After(checkIn) {
		return Quote{}, apperr.InvalidRange("check_out %s must be after check_in %s",
			checkOut.Format(time.RFC3339), checkIn.Format(time.RFC3339))
	}
	if nightlyRate.Negative() {
		return Quote{}, apperr.Validation("nightly rate must not be negative")
	}
	nights := max(1, calendar.CeilDays(checkOut.Sub(checkIn)))
	total, err := nightlyRate.Times(nights)
	if err != nil {
		return Quote{}, apperr.Wrap(apperr.ErrInvalidRange, err, "stay total out of range")
	}
	return Quote{Nights: nights, NightlyRate: nightlyRate, TotalCost: total}, nil
}

type Stay struct {
	ID                  uuid.UUID        `json:"id"`
	FacilityOptionID    uuid.UUID        `json:"facility_option_id"`
	RequesterID         *string          `json:"requester_id"`
	CheckIn             time.Time        `json:"check_in"`
	CheckOut            time.Time        `json:"check_out"`
	GuestCount          int              `json:"guest_count"`
	NightlyRateSnapshot money.Money      `json:"nightly_rate_snapshot"`
	Nights              int              `json:"nights"`
	TotalCost           money.Money      `json:"total_cost"`
	Status              lifecycle.Status `json:"status"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// CreateRequest is a validated stay request.
type CreateRequest struct {
	FacilityOptionID uuid.UUID
	CheckIn          time.Time
	CheckOut         time.Time
	GuestCount       int
	RequesterID      *string
}

// Filter narrows ListStays. Zero fields do not filter.
type Filter struct {
	FacilityOptionID uuid.UUID
	RequesterID      string
	Status           lifecycle.Status
}
