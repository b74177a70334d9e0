package stay

import (
	"context"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/money"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/db"
)

var dialect = goqu.Dialect("postgres")

// =========== Option Repository ===========

type optionRepoPG struct{ pool *pgxpool.Pool }

func NewOptionRepoPG(pool *pgxpool.Pool) OptionRepository { return &optionRepoPG{pool: pool} }

func (r *optionRepoPG) Create(ctx context.Context, o *FacilityOption) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO facility_option (id, facility_id, name, nightly_rate, max_guests, active)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`,
		o.ID, o.FacilityID, o.Name, int64(o.NightlyRate), o.MaxGuests, o.Active,
	).Scan(&o.CreatedAt)
	if db.IsConstraintError(err, db.CodeForeignKeyViolation, "") {
		return apperr.NotFound("facility %s not found", o.FacilityID)
	}
	if err != nil {
		return fmt.Errorf("insert facility option: %w", err)
	}
	return nil
}

func (r *optionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*FacilityOption, error) {
	var o FacilityOption
	var rate int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, facility_id, name, nightly_rate, max_guests, active, created_at
		FROM facility_option WHERE id = $1`, id,
	).Scan(&o.ID, &o.FacilityID, &o.Name, &rate, &o.MaxGuests, &o.Active, &o.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("facility option %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get facility option: %w", err)
	}
	o.NightlyRate = money.Money(rate)
	return &o, nil
}

// =========== Stay Repository ===========

type stayRepoPG struct{ pool *pgxpool.Pool }

func NewStayRepoPG(pool *pgxpool.Pool) StayRepository { return &stayRepoPG{pool: pool} }

const stayCols = `id, facility_option_id, requester_id, check_in, check_out, guest_count,
	nightly_rate_snapshot, nights, total_cost, status, created_at, updated_at`

var stayColumns = []any{
	"id", "facility_option_id", "requester_id", "check_in", "check_out", "guest_count",
	"nightly_rate_snapshot", "nights", "total_cost", "status", "created_at", "updated_at",
}

func scanStay(row pgx.Row) (*Stay, error) {
	var s Stay
	var rate, total int64
	var status string
	err := row.Scan(&s.ID, &s.FacilityOptionID, &s.RequesterID, &s.CheckIn, &s.CheckOut, &s.GuestCount,
		&rate, &s.Nights, &total, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.NightlyRateSnapshot = money.Money(rate)
	s.TotalCost = money.Money(total)
	s.Status = lifecycle.Status(status)
	return &s, nil
}

func (r *stayRepoPG) Create(ctx context.Context, s *Stay) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `
		INSERT INTO stay (id, facility_option_id, requester_id, check_in, check_out, guest_count,
			nightly_rate_snapshot, nights, total_cost, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		s.ID, s.FacilityOptionID, s.RequesterID, s.CheckIn, s.CheckOut, s.GuestCount,
		int64(s.NightlyRateSnapshot), s.Nights, int64(s.TotalCost), string(s.Status), s.CreatedAt, s.UpdatedAt)
	if db.IsConstraintError(err, db.CodeForeignKeyViolation, "") {
		return apperr.NotFound("facility option %s not found", s.FacilityOptionID)
	}
	if err != nil {
		return fmt.Errorf("insert stay: %w", err)
	}
	return nil
}

func (r *stayRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Stay, error) {
	s, err := scanStay(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+stayCols+` FROM stay WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("stay %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get stay: %w", err)
	}
	return s, nil
}

func (f Filter) expressions() []exp.Expression {
	var where []exp.Expression
	if f.FacilityOptionID != uuid.Nil {
		where = append(where, goqu.C("facility_option_id").Eq(f.FacilityOptionID.String()))
	}
	if f.RequesterID != "" {
		where = append(where, goqu.C("requester_id").Eq(f.RequesterID))
	}
	if f.Status != "" {
		where = append(where, goqu.C("status").Eq(string(f.Status)))
	}
	return where
}

func (r *stayRepoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Stay, int, error) {
	ds := dialect.From("stay").Where(f.expressions()...).Prepared(true)
	countSQL, countArgs, err := ds.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}
	pageSQL, pageArgs, err := ds.Select(stayColumns...).
		Order(goqu.C("check_in").Asc(), goqu.C("created_at").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset)).
		ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build list query: %w", err)
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count stays: %w", err)
	}
	rows, err := q.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list stays: %w", err)
	}
	defer rows.Close()

	var items []*Stay
	for rows.Next() {
		s, err := scanStay(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan stay: %w", err)
		}
		items = append(items, s)
	}
	return items, total, rows.Err()
}

func (r *stayRepoPG) Transition(ctx context.Context, id uuid.UUID, fn TransitionFunc) (*Stay, error) {
	var out *Stay
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		cur, err := scanStay(tx.QueryRow(ctx, `SELECT `+stayCols+` FROM stay WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("stay %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("lock stay: %w", err)
		}

		tr, err := fn(cur)
		if err != nil {
			return err
		}

		out, err = scanStay(tx.QueryRow(ctx, `
			UPDATE stay SET status = $2, updated_at = $3 WHERE id = $1
			RETURNING `+stayCols, id, string(tr.To), tr.At))
		if err != nil {
			return fmt.Errorf("update stay status: %w", err)
		}
		return lifecycle.SaveTransition(ctx, tx, tr)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *stayRepoPG) Transitions(ctx context.Context, id uuid.UUID) ([]*lifecycle.Transition, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return lifecycle.LoadTransitions(ctx, db.Conn(ctx, r.pool), lifecycle.SubjectStay, id)
}
