package rating

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type entityKey struct {
	kind Kind
	id   uuid.UUID
}

// MemoryRepo serializes every update on one mutex.
type MemoryRepo struct {
	lookup EntityLookup

	mu           sync.Mutex
	aggregates   map[entityKey]*Aggregate
	observations map[entityKey][]*Observation
}

func NewMemoryRepo(lookup EntityLookup) *MemoryRepo {
	return &MemoryRepo{
		lookup:       lookup,
		aggregates:   make(map[entityKey]*Aggregate),
		observations: make(map[entityKey][]*Observation),
	}
}

func (r *MemoryRepo) Apply(ctx context.Context, obs *Observation) (*Aggregate, error) {
	if err := r.lookup(ctx, obs.Kind, obs.EntityID); err != nil {
		return nil, err
	}

	key := entityKey{obs.Kind, obs.EntityID}
	r.mu.Lock()
	defer r.mu.Unlock()

	agg, ok := r.aggregates[key]
	if !ok {
		agg = &Aggregate{EntityID: obs.EntityID, Kind: obs.Kind}
		r.aggregates[key] = agg
	}
	agg.Count, agg.Mean = agg.Next(obs.Score)
	at := obs.At
	agg.UpdatedAt = &at

	cp := *obs
	r.observations[key] = append(r.observations[key], &cp)
	out := *agg
	return &out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, kind Kind, id uuid.UUID) (*Aggregate, error) {
	if err := r.lookup(ctx, kind, id); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if agg, ok := r.aggregates[entityKey{kind, id}]; ok {
		out := *agg
		return &out, nil
	}
	return &Aggregate{EntityID: id, Kind: kind}, nil
}

func (r *MemoryRepo) Observations(ctx context.Context, kind Kind, id uuid.UUID, limit, offset int) ([]*Observation, int, error) {
	if err := r.lookup(ctx, kind, id); err != nil {
		return nil, 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	all := r.observations[entityKey{kind, id}]
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := min(offset+limit, total)
	out := make([]*Observation, 0, end-offset)
	for _, o := range all[offset:end] {
		cp := *o
		out = append(out, &cp)
	}
	return out, total, nil
}
