package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/money"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/db"
)

const (
	overlapConstraint     = "booking_no_overlap"
	idempotencyConstraint = "booking_idempotency_key"
	lockNamespace         = "booking"
)

var dialect = goqu.Dialect("postgres")

// =========== Facility Repository ===========

type facilityRepoPG struct{ pool *pgxpool.Pool }

func NewFacilityRepoPG(pool *pgxpool.Pool) FacilityRepository { return &facilityRepoPG{pool: pool} }

func (r *facilityRepoPG) Create(ctx context.Context, f *Facility) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO facility (id, name, active) VALUES ($1, $2, $3)
			RETURNING created_at`, f.ID, f.Name, f.Active).Scan(&f.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert facility: %w", err)
		}
		return nil
	})
}

func (r *facilityRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Facility, error) {
	var f Facility
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`SELECT id, name, active, created_at FROM facility WHERE id = $1`, id,
	).Scan(&f.ID, &f.Name, &f.Active, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("facility %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get facility: %w", err)
	}
	return &f, nil
}

// =========== Provider Repository ===========

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository { return &providerRepoPG{pool: pool} }

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO provider (id, facility_id, name, fee, window_start_hour, window_end_hour, granularity_minutes, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`,
		p.ID, p.FacilityID, p.Name, int64(p.Fee), p.Window.StartHour, p.Window.EndHour, p.GranularityMinutes, p.Active,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsConstraintError(err, db.CodeForeignKeyViolation, "") {
		return apperr.NotFound("facility %s not found", p.FacilityID)
	}
	if err != nil {
		return fmt.Errorf("insert provider: %w", err)
	}
	return nil
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	var p Provider
	var fee int64
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT id, facility_id, name, fee, window_start_hour, window_end_hour, granularity_minutes, active, created_at, updated_at
		FROM provider WHERE id = $1`, id,
	).Scan(&p.ID, &p.FacilityID, &p.Name, &fee, &p.Window.StartHour, &p.Window.EndHour,
		&p.GranularityMinutes, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("provider %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get provider: %w", err)
	}
	p.Fee = money.Money(fee)
	return &p, nil
}

// =========== Booking Repository ===========

type bookingRepoPG struct{ pool *pgxpool.Pool }

func NewBookingRepoPG(pool *pgxpool.Pool) BookingRepository { return &bookingRepoPG{pool: pool} }

const bookingCols = `id, provider_id, requester_id, booking_date, slot_minute, duration_minutes,
	status, fee_snapshot, remote, idempotency_key, created_at, updated_at`

var bookingColumns = []any{
	"id", "provider_id", "requester_id", "booking_date", "slot_minute", "duration_minutes",
	"status", "fee_snapshot", "remote", "idempotency_key", "created_at", "updated_at",
}

func occupyingStatuses() []string {
	out := make([]string, len(lifecycle.OccupyingStatuses))
	for i, s := range lifecycle.OccupyingStatuses {
		out[i] = string(s)
	}
	return out
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var day time.Time
	var slot int
	var status string
	var fee int64
	var key *string
	err := row.Scan(&b.ID, &b.ProviderID, &b.RequesterID, &day, &slot, &b.DurationMinutes,
		&status, &fee, &b.Remote, &key, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Date = calendar.DateOf(day)
	b.SlotTime = calendar.TimeOfDay(slot)
	b.Status = lifecycle.Status(status)
	b.FeeSnapshot = money.Money(fee)
	if key != nil {
		b.IdempotencyKey = *key
	}
	return &b, nil
}

func (r *bookingRepoPG) ListOccupying(ctx context.Context, providerID uuid.UUID, date calendar.Date) ([]Interval, error) {
	return listOccupying(ctx, db.Conn(ctx, r.pool), providerID, date)
}

func listOccupying(ctx context.Context, q db.Querier, providerID uuid.UUID, date calendar.Date) ([]Interval, error) {
	rows, err := q.Query(ctx, `
		SELECT slot_minute, duration_minutes FROM booking
		WHERE provider_id = $1 AND booking_date = $2 AND status = ANY($3)
		ORDER BY slot_minute`, providerID, date.Time(), occupyingStatuses())
	if err != nil {
		return nil, fmt.Errorf("query occupying bookings: %w", err)
	}
	defer rows.Close()

	var out []Interval
	for rows.Next() {
		var start, minutes int
		if err := rows.Scan(&start, &minutes); err != nil {
			return nil, fmt.Errorf("scan occupying booking: %w", err)
		}
		out = append(out, Interval{Start: calendar.TimeOfDay(start), Minutes: minutes})
	}
	return out, rows.Err()
}

// CreateIfFree serializes attempts for one provider and day on a transaction
// advisory lock, then checks and inserts. The booking_no_overlap exclusion
// constraint backs the check for writers that bypass this path.
func (r *bookingRepoPG) CreateIfFree(ctx context.Context, b *Booking) (*Booking, bool, error) {
	var stored *Booking
	var replayed bool

	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		if err := db.AdvisoryXactLock(ctx, tx, lockNamespace, b.ProviderID.String()+"/"+b.Date.String()); err != nil {
			return err
		}

		if b.IdempotencyKey != "" {
			prev, err := scanBooking(tx.QueryRow(ctx,
				`SELECT `+bookingCols+` FROM booking WHERE idempotency_key = $1`, b.IdempotencyKey))
			switch {
			case err == nil:
				if !prev.sameRequest(b) {
					return apperr.Conflict("idempotency key already used for a different booking")
				}
				stored, replayed = prev, true
				return nil
			case !errors.Is(err, pgx.ErrNoRows):
				return fmt.Errorf("lookup idempotency key: %w", err)
			}
		}

		occupied, err := listOccupying(ctx, tx, b.ProviderID, b.Date)
		if err != nil {
			return err
		}
		for _, iv := range occupied {
			if iv.Overlaps(b.SlotTime, b.DurationMinutes) {
				return apperr.Conflict("slot %s on %s overlaps an existing booking", b.SlotTime, b.Date)
			}
		}

		var key *string
		if b.IdempotencyKey != "" {
			key = &b.IdempotencyKey
		}
		row := tx.QueryRow(ctx, `
			INSERT INTO booking (id, provider_id, requester_id, booking_date, slot_minute, duration_minutes,
				status, fee_snapshot, remote, idempotency_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
			RETURNING `+bookingCols,
			b.ID, b.ProviderID, b.RequesterID, b.Date.Time(), int(b.SlotTime), b.DurationMinutes,
			string(b.Status), int64(b.FeeSnapshot), b.Remote, key, b.CreatedAt)
		stored, err = scanBooking(row)
		if err != nil {
			return fmt.Errorf("insert booking: %w", err)
		}
		return nil
	})

	switch {
	case db.IsConstraintError(err, db.CodeExclusionViolation, overlapConstraint):
		return nil, false, apperr.Wrap(apperr.ErrConflict, err, "slot overlaps an existing booking")
	case db.IsConstraintError(err, db.CodeUniqueViolation, idempotencyConstraint):
		return nil, false, apperr.Wrap(apperr.ErrConflict, err, "idempotency key already used")
	case err != nil:
		return nil, false, err
	}
	return stored, replayed, nil
}

func (r *bookingRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := scanBooking(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+bookingCols+` FROM booking WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("booking %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (f BookingFilter) expressions() []exp.Expression {
	var where []exp.Expression
	if f.ProviderID != uuid.Nil {
		where = append(where, goqu.C("provider_id").Eq(f.ProviderID.String()))
	}
	if f.RequesterID != "" {
		where = append(where, goqu.C("requester_id").Eq(f.RequesterID))
	}
	if f.Status != "" {
		where = append(where, goqu.C("status").Eq(string(f.Status)))
	}
	if !f.From.IsZero() {
		where = append(where, goqu.C("booking_date").Gte(f.From.Time()))
	}
	if !f.To.IsZero() {
		where = append(where, goqu.C("booking_date").Lte(f.To.Time()))
	}
	return where
}

// listQueries builds the count and page queries for f.
func listQueries(f BookingFilter, limit, offset int) (countSQL string, countArgs []any, pageSQL string, pageArgs []any, err error) {
	ds := dialect.From("booking").Where(f.expressions()...).Prepared(true)

	countSQL, countArgs, err = ds.Select(goqu.COUNT("*")).ToSQL()
	if err != nil {
		return "", nil, "", nil, fmt.Errorf("build count query: %w", err)
	}
	pageSQL, pageArgs, err = ds.Select(bookingColumns...).
		Order(goqu.C("booking_date").Asc(), goqu.C("slot_minute").Asc(), goqu.C("created_at").Asc()).
		Limit(uint(limit)).
		Offset(uint(offset)).
		ToSQL()
	if err != nil {
		return "", nil, "", nil, fmt.Errorf("build list query: %w", err)
	}
	return countSQL, countArgs, pageSQL, pageArgs, nil
}

func (r *bookingRepoPG) List(ctx context.Context, f BookingFilter, limit, offset int) ([]*Booking, int, error) {
	countSQL, countArgs, pageSQL, pageArgs, err := listQueries(f, limit, offset)
	if err != nil {
		return nil, 0, err
	}

	q := db.Conn(ctx, r.pool)
	var total int
	if err := q.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bookings: %w", err)
	}

	rows, err := q.Query(ctx, pageSQL, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list bookings: %w", err)
	}
	defer rows.Close()

	var items []*Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan booking: %w", err)
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

func (r *bookingRepoPG) Transition(ctx context.Context, id uuid.UUID, fn TransitionFunc) (*Booking, error) {
	var out *Booking
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		cur, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingCols+` FROM booking WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound("booking %s not found", id)
		}
		if err != nil {
			return fmt.Errorf("lock booking: %w", err)
		}

		tr, err := fn(cur)
		if err != nil {
			return err
		}

		out, err = scanBooking(tx.QueryRow(ctx, `
			UPDATE booking SET status = $2, updated_at = $3 WHERE id = $1
			RETURNING `+bookingCols, id, string(tr.To), tr.At))
		if err != nil {
			return fmt.Errorf("update booking status: %w", err)
		}
		return lifecycle.SaveTransition(ctx, tx, tr)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *bookingRepoPG) Transitions(ctx context.Context, id uuid.UUID) ([]*lifecycle.Transition, error) {
	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return lifecycle.LoadTransitions(ctx, db.Conn(ctx, r.pool), lifecycle.SubjectBooking, id)
}
