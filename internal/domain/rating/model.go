// Package rating keeps a running (count, mean) aggregate per rated facility
// or provider. Every accepted score updates the aggregate in one atomic step
// and is also appended to an observation log for moderation.
package rating

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

type Kind string

const (
	KindFacility Kind = "facility"
	KindProvider Kind = "provider"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindFacility, KindProvider:
		return k, nil
	default:
		return "", apperr.Validation("unknown entity kind %q", s)
	}
}

// Aggregate is the running mean of Count scores. An entity that was never
// rated has Count 0 and Mean 0.
type Aggregate struct {
	EntityID  uuid.UUID  `json:"entity_id"`
	Kind      Kind       `json:"entity_kind"`
	Count     int64      `json:"count"`
	Mean      float64    `json:"mean"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Next returns the aggregate after one more score.
func (a Aggregate) Next(score float64) (count int64, mean float64) {
	count = a.Count + 1
	mean = (a.Mean*float64(a.Count) + score) / float64(count)
	return count, mean
}

// Observation is one accepted score.
type Observation struct {
	ID       uuid.UUID `json:"id"`
	Kind     Kind      `json:"entity_kind"`
	EntityID uuid.UUID `json:"entity_id"`
	RaterID  string    `json:"rater_id,omitempty"`
	Score    float64   `json:"score"`
	At       time.Time `json:"at"`
}

// Bounds is the closed range of accepted scores.
type Bounds struct {
	Min float64
	Max float64
}

var DefaultBounds = Bounds{Min: 1, Max: 5}

func (b Bounds) Check(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return apperr.InvalidScore("score must be a finite number")
	}
	if score < b.Min || score > b.Max {
		return apperr.InvalidScore("score %g outside [%g, %g]", score, b.Min, b.Max)
	}
	return nil
}
