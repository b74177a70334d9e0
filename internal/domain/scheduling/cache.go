package scheduling

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/cache"
)

// RedisOccupancy caches occupied intervals per provider and day under
// "<prefix>:avail:<provider>:<date>:<version>". The current version lives
// at "<prefix>:avail:<provider>:<date>:ver".
type RedisOccupancy struct {
	store *cache.Store
}

func NewRedisOccupancy(store *cache.Store) *RedisOccupancy {
	return &RedisOccupancy{store: store}
}

func (r *RedisOccupancy) versionKey(providerID uuid.UUID, date calendar.Date) string {
	return r.store.Key("avail", providerID.String(), date.String(), "ver")
}

func (r *RedisOccupancy) key(providerID uuid.UUID, date calendar.Date, version int64) string {
	return r.store.Key("avail", providerID.String(), date.String(), strconv.FormatInt(version, 10))
}

func (r *RedisOccupancy) Version(ctx context.Context, providerID uuid.UUID, date calendar.Date) (int64, error) {
	return r.store.Counter(ctx, r.versionKey(providerID, date))
}

func (r *RedisOccupancy) Get(ctx context.Context, providerID uuid.UUID, date calendar.Date, version int64) ([]Interval, bool, error) {
	var out []Interval
	ok, err := r.store.GetJSON(ctx, r.key(providerID, date, version), &out)
	if err != nil || !ok {
		return nil, false, err
	}
	return out, true, nil
}

func (r *RedisOccupancy) Set(ctx context.Context, providerID uuid.UUID, date calendar.Date, version int64, intervals []Interval) error {
	if intervals == nil {
		intervals = []Interval{}
	}
	return r.store.SetJSON(ctx, r.key(providerID, date, version), intervals)
}

// Invalidate bumps the day's version. Entries under older versions are left
// to expire.
func (r *RedisOccupancy) Invalidate(ctx context.Context, providerID uuid.UUID, date calendar.Date) error {
	_, err := r.store.Bump(ctx, r.versionKey(providerID, date))
	return err
}
