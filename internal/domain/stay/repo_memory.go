package stay

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
)

type MemoryStore struct {
	mu          sync.RWMutex
	options     map[uuid.UUID]*FacilityOption
	stays       map[uuid.UUID]*Stay
	transitions map[uuid.UUID][]*lifecycle.Transition
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		options:     make(map[uuid.UUID]*FacilityOption),
		stays:       make(map[uuid.UUID]*Stay),
		transitions: make(map[uuid.UUID][]*lifecycle.Transition),
	}
}

func (m *MemoryStore) Options() OptionRepository { return memOptions{m} }
func (m *MemoryStore) Stays() StayRepository     { return memStays{m} }

type memOptions struct{ m *MemoryStore }

func (r memOptions) Create(_ context.Context, o *FacilityOption) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	cp := *o
	r.m.options[o.ID] = &cp
	return nil
}

func (r memOptions) GetByID(_ context.Context, id uuid.UUID) (*FacilityOption, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	o, ok := r.m.options[id]
	if !ok {
		return nil, apperr.NotFound("facility option %s not found", id)
	}
	cp := *o
	return &cp, nil
}

type memStays struct{ m *MemoryStore }

func (r memStays) Create(_ context.Context, s *Stay) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if _, ok := r.m.options[s.FacilityOptionID]; !ok {
		return apperr.NotFound("facility option %s not found", s.FacilityOptionID)
	}
	cp := *s
	r.m.stays[s.ID] = &cp
	return nil
}

func (r memStays) GetByID(_ context.Context, id uuid.UUID) (*Stay, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	s, ok := r.m.stays[id]
	if !ok {
		return nil, apperr.NotFound("stay %s not found", id)
	}
	cp := *s
	return &cp, nil
}

func (f Filter) matches(s *Stay) bool {
	if f.FacilityOptionID != uuid.Nil && s.FacilityOptionID != f.FacilityOptionID {
		return false
	}
	if f.RequesterID != "" && (s.RequesterID == nil || *s.RequesterID != f.RequesterID) {
		return false
	}
	return f.Status == "" || s.Status == f.Status
}

func (r memStays) List(_ context.Context, f Filter, limit, offset int) ([]*Stay, int, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()

	var all []*Stay
	for _, s := range r.m.stays {
		if f.matches(s) {
			cp := *s
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CheckIn.Equal(all[j].CheckIn) {
			return all[i].CheckIn.Before(all[j].CheckIn)
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	return all[offset:min(offset+limit, total)], total, nil
}

func (r memStays) Transition(_ context.Context, id uuid.UUID, fn TransitionFunc) (*Stay, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()

	s, ok := r.m.stays[id]
	if !ok {
		return nil, apperr.NotFound("stay %s not found", id)
	}
	cur := *s
	tr, err := fn(&cur)
	if err != nil {
		return nil, err
	}
	s.Status = tr.To
	s.UpdatedAt = tr.At
	r.m.transitions[id] = append(r.m.transitions[id], tr)
	out := *s
	return &out, nil
}

func (r memStays) Transitions(_ context.Context, id uuid.UUID) ([]*lifecycle.Transition, error) {
	r.m.mu.RLock()
	defer r.m.mu.RUnlock()
	if _, ok := r.m.stays[id]; !ok {
		return nil, apperr.NotFound("stay %s not found", id)
	}
	out := make([]*lifecycle.Transition, len(r.m.transitions[id]))
	copy(out, r.m.transitions[id])
	return out, nil
}
