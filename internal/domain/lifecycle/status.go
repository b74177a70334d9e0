// Package lifecycle is the status machine shared by bookings and stays.
//
//	pending -> confirmed -> completed
//	pending | confirmed -> cancelled
//
// completed and cancelled are terminal. Only pending and confirmed occupy
// their slot or date range.
package lifecycle

import (
	"time"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

type Status string

const (
	Pending   Status = "pending"
	Confirmed Status = "confirmed"
	Completed Status = "completed"
	Cancelled Status = "cancelled"
)

var transitions = map[Status][]Status{
	Pending:   {Confirmed, Cancelled},
	Confirmed: {Completed, Cancelled},
	Completed: {},
	Cancelled: {},
}

// OccupyingStatuses lists the statuses that hold a slot, in storage order.
var OccupyingStatuses = []Status{Pending, Confirmed}

func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Status) CanTransitionTo(to Status) bool {
	for _, t := range transitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

func (s Status) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

func (s Status) IsOccupying() bool {
	return s == Pending || s == Confirmed
}

func (s Status) String() string { return string(s) }

// Parse accepts one of the four status names.
func Parse(s string) (Status, error) {
	st := Status(s)
	if !st.Valid() {
		return "", apperr.Validation("unknown status %q", s)
	}
	return st, nil
}

// Check returns ErrInvalidTransition unless from -> to is a legal move.
func Check(from, to Status) error {
	if !to.Valid() {
		return apperr.Validation("unknown status %q", to)
	}
	if !from.CanTransitionTo(to) {
		return apperr.InvalidTransition("cannot move from %s to %s", from, to)
	}
	return nil
}

// Subject names the kind of record a Transition belongs to.
type Subject string

const (
	SubjectBooking Subject = "booking"
	SubjectStay    Subject = "stay"
)

// Transition is the audit entry written alongside every status change.
type Transition struct {
	ID        uuid.UUID `json:"id"`
	Subject   Subject   `json:"subject"`
	SubjectID uuid.UUID `json:"subject_id"`
	From      Status    `json:"from"`
	To        Status    `json:"to"`
	Actor     string    `json:"actor,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

// NewTransition validates from -> to and returns the audit entry for it.
func NewTransition(subject Subject, id uuid.UUID, from, to Status, actor, reason string, at time.Time) (*Transition, error) {
	if err := Check(from, to); err != nil {
		return nil, err
	}
	return &Transition{
		ID:        uuid.New(),
		Subject:   subject,
		SubjectID: id,
		From:      from,
		To:        to,
		Actor:     actor,
		Reason:    reason,
		At:        at.UTC(),
	}, nil
}
