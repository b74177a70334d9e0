package rating

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/db"
)

// entityTables maps a kind to the table that must hold the rated row.
var entityTables = map[Kind]string{
	KindFacility: "facility",
	KindProvider: "provider",
}

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func entityTable(kind Kind) (string, error) {
	table, ok := entityTables[kind]
	if !ok {
		return "", apperr.Validation("unknown entity kind %q", kind)
	}
	return table, nil
}

// Apply computes the new mean inside the upsert from the stored row, so
// concurrent submissions serialize on the aggregate's row lock and none is
// lost. The existence check is part of the same statement.
func (r *repoPG) Apply(ctx context.Context, obs *Observation) (*Aggregate, error) {
	table, err := entityTable(obs.Kind)
	if err != nil {
		return nil, err
	}
	upsert := fmt.Sprintf(`
		INSERT INTO rating_aggregate (entity_kind, entity_id, observation_count, running_mean, updated_at)
		SELECT $1::text, $2::uuid, 1, $3::float8, $4
		WHERE EXISTS (SELECT 1 FROM %s WHERE id = $2)
		ON CONFLICT (entity_kind, entity_id) DO UPDATE SET
			observation_count = rating_aggregate.observation_count + 1,
			running_mean = (rating_aggregate.running_mean * rating_aggregate.observation_count + EXCLUDED.running_mean)
				/ (rating_aggregate.observation_count + 1),
			updated_at = EXCLUDED.updated_at
		RETURNING observation_count, running_mean, updated_at`, table)

	agg := &Aggregate{EntityID: obs.EntityID, Kind: obs.Kind}
	err = db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		var at time.Time
		err := tx.QueryRow(ctx, upsert, string(obs.Kind), obs.EntityID, obs.Score, obs.At).
			Scan(&agg.Count, &agg.Mean, &at)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("%s %s not found", obs.Kind, obs.EntityID)
		}
		if err != nil {
			return fmt.Errorf("apply rating: %w", err)
		}
		agg.UpdatedAt = &at

		_, err = tx.Exec(ctx, `
			INSERT INTO rating_observation (id, entity_kind, entity_id, rater_id, score, at)
			VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
			obs.ID, string(obs.Kind), obs.EntityID, obs.RaterID, obs.Score, obs.At)
		if err != nil {
			return fmt.Errorf("record rating observation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agg, nil
}

func (r *repoPG) exists(ctx context.Context, q db.Querier, kind Kind, id uuid.UUID) error {
	table, err := entityTable(kind)
	if err != nil {
		return err
	}
	var ok bool
	if err := q.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id = $1)`, table), id).Scan(&ok); err != nil {
		return fmt.Errorf("check %s: %w", kind, err)
	}
	if !ok {
		return apperr.NotFound("%s %s not found", kind, id)
	}
	return nil
}

func (r *repoPG) Get(ctx context.Context, kind Kind, id uuid.UUID) (*Aggregate, error) {
	q := db.Conn(ctx, r.pool)
	agg := &Aggregate{EntityID: id, Kind: kind}
	var at time.Time
	err := q.QueryRow(ctx, `
		SELECT observation_count, running_mean, updated_at FROM rating_aggregate
		WHERE entity_kind = $1 AND entity_id = $2`, string(kind), id,
	).Scan(&agg.Count, &agg.Mean, &at)
	switch {
	case err == nil:
		agg.UpdatedAt = &at
		return agg, nil
	case errors.Is(err, pgx.ErrNoRows):
		if err := r.exists(ctx, q, kind, id); err != nil {
			return nil, err
		}
		return agg, nil
	default:
		return nil, fmt.Errorf("get rating aggregate: %w", err)
	}
}

func (r *repoPG) Observations(ctx context.Context, kind Kind, id uuid.UUID, limit, offset int) ([]*Observation, int, error) {
	q := db.Conn(ctx, r.pool)
	if err := r.exists(ctx, q, kind, id); err != nil {
		return nil, 0, err
	}

	var total int
	if err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM rating_observation WHERE entity_kind = $1 AND entity_id = $2`, string(kind), id,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count rating observations: %w", err)
	}

	rows, err := q.Query(ctx, `
		SELECT id, entity_kind, entity_id, COALESCE(rater_id, ''), score, at
		FROM rating_observation
		WHERE entity_kind = $1 AND entity_id = $2
		ORDER BY at, id
		LIMIT $3 OFFSET $4`, string(kind), id, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list rating observations: %w", err)
	}
	defer rows.Close()

	var out []*Observation
	for rows.Next() {
		var o Observation
		var k string
		if err := rows.Scan(&o.ID, &k, &o.EntityID, &o.RaterID, &o.Score, &o.At); err != nil {
			return nil, 0, fmt.Errorf("scan rating observation: %w", err)
		}
		o.Kind = Kind(k)
		out = append(out, &o)
	}
	return out, total, rows.Err()
}
