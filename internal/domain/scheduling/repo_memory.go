package scheduling

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

// MemoryStore keeps facilities, providers and bookings in process. A single
// mutex covers the check-and-insert so concurrent attempts serialize.
type MemoryStore struct {
	mu          sync.RWMutex
	facilities  map[uuid.UUID]*Facility
	providers   map[uuid.UUID]*Provider
	bookings    map[uuid.UUID]*Booking
	byKey       map[string]uuid.UUID
	transitions map[uuid.UUID][]*lifecycle.Transition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		facilities:  make(map[uuid.UUID]*Facility),
		providers:   make(map[uuid.UUID]*Provider),
		bookings:    make(map[uuid.UUID]*Booking),
		byKey:       make(map[string]uuid.UUID),
		transitions: make(map[uuid.UUID][]*lifecycle.Transition),
	}
}

// Facilities, Providers and Bookings expose the store through the
// repository interfaces.
func (m *MemoryStore) Facilities() FacilityRepository { return memFacilities{m} }
func (m *MemoryStore) Providers() ProviderRepository  { return memProviders{m} }
func (m *MemoryStore) Bookings() BookingRepository    { return memBookings{m} }

type memFacilities struct{ m *MemoryStore }

func (r memFacilities) Create(_ context.Context, f *Facility) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	cp := *f
	r.m.facilities[f.ID] = &cp
	return nil
}

func (r memFacilities) GetByID(_ context.Context, id uuid.UUID) (*Facility, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	f, ok := r.m.facilities[id]
	if !ok {
		return nil, apperr.NotFound("facility %s not found", id)
	}
	cp := *f
	return &cp, nil
}

type memProviders struct{ m *MemoryStore }

func (r memProviders) Create(_ context.Context, p *Provider) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.facilities[p.FacilityID]; !ok {
		return apperr.NotFound("facility %s not found", p.FacilityID)
	}
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	cp := *p
	r.m.providers[p.ID] = &cp
	return nil
}

func (r memProviders) GetByID(_ context.Context, id uuid.UUID) (*Provider, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	p, ok := r.m.providers[id]
	if !ok {
		return nil, apperr.NotFound("provider %s not found", id)
	}
	cp := *p
	return &cp, nil
}

type memBookings struct{ m *MemoryStore }

// occupying must be called with the lock held.
func (m *MemoryStore) occupying(providerID uuid.UUID, date calendar.Date) []Interval {
	var out []Interval
	for _, b := range m.bookings {
		if b.ProviderID == providerID && b.Date == date && b.Status.IsOccupying() {
			out = append(out, b.Interval())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

func (r memBookings) ListOccupying(_ context.Context, providerID uuid.UUID, date calendar.Date) ([]Interval, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	return r.m.occupying(providerID, date), nil
}

func (r memBookings) CreateIfFree(_ context.Context, b *Booking) (*Booking, bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	if b.IdempotencyKey != "" {
		if id, ok := r.m.byKey[b.IdempotencyKey]; ok {
			prev := r.m.bookings[id]
			if !prev.sameRequest(b) {
				return nil, false, apperr.Conflict("idempotency key already used for a different booking")
			}
			cp := *prev
			return &cp, true, nil
		}
	}

	for _, iv := range r.m.occupying(b.ProviderID, b.Date) {
		if iv.Overlaps(b.SlotTime, b.DurationMinutes) {
			return nil, false, apperr.Conflict("slot %s on %s overlaps an existing booking", b.SlotTime, b.Date)
		}
	}

	cp := *b
	r.m.bookings[b.ID] = &cp
	if b.IdempotencyKey != "" {
		r.m.byKey[b.IdempotencyKey] = b.ID
	}
	out := cp
	return &out, false, nil
}

func (r memBookings) GetByID(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	b, ok := r.m.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	cp := *b
	return &cp, nil
}

func (f BookingFilter) matches(b *Booking) bool {
	if f.ProviderID != uuid.Nil && b.ProviderID != f.ProviderID {
		return false
	}
	if f.RequesterID != "" && (b.RequesterID == nil || *b.RequesterID != f.RequesterID) {
		return false
	}
	if f.Status != "" && b.Status != f.Status {
		return false
	}
	if !f.From.IsZero() && b.Date.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && b.Date.After(f.To) {
		return false
	}
	return true
}

func (r memBookings) List(_ context.Context, f BookingFilter, limit, offset int) ([]*Booking, int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var all []*Booking
	for _, b := range r.m.bookings {
		if f.matches(b) {
			cp := *b
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Date != all[j].Date {
			return all[i].Date.Before(all[j].Date)
		}
		if all[i].SlotTime != all[j].SlotTime {
			return all[i].SlotTime < all[j].SlotTime
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (r memBookings) Transition(_ context.Context, id uuid.UUID, fn TransitionFunc) (*Booking, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	b, ok := r.m.bookings[id]
	if !ok {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	cur := *b
	tr, err := fn(&cur)
	if err != nil {
		return nil, err
	}
	b.Status = tr.To
	b.UpdatedAt = tr.At
	r.m.transitions[id] = append(r.m.transitions[id], tr)
	out := *b
	return &out, nil
}

func (r memBookings) Transitions(_ context.Context, id uuid.UUID) ([]*lifecycle.Transition, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if _, ok := r.m.bookings[id]; !ok {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	out := make([]*lifecycle.Transition, len(r.m.transitions[id]))
	copy(out, r.m.transitions[id])
	return out, nil
}
