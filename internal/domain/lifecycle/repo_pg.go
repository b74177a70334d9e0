package lifecycle

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nickenf/afayaconekt-sub000/internal/platform/db"
)

// SaveTransition appends tr to status_transition using q, which should be
// the transaction that applied the status change.
func SaveTransition(ctx context.Context, q db.Querier, tr *Transition) error {
	_, err := q.Exec(ctx, `
		INSERT INTO status_transition (id, subject, subject_id, from_status, to_status, actor, reason, at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)`,
		tr.ID, string(tr.Subject), tr.SubjectID, string(tr.From), string(tr.To), tr.Actor, tr.Reason, tr.At)
	if err != nil {
		return fmt.Errorf("insert %s transition: %w", tr.Subject, err)
	}
	return nil
}

// LoadTransitions returns the audit trail of one record, oldest first.
func LoadTransitions(ctx context.Context, q db.Querier, subject Subject, id uuid.UUID) ([]*Transition, error) {
	rows, err := q.Query(ctx, `
		SELECT id, subject, subject_id, from_status, to_status, COALESCE(actor, ''), COALESCE(reason, ''), at
		FROM status_transition
		WHERE subject = $1 AND subject_id = $2
		ORDER BY at, id`, string(subject), id)
	if err != nil {
		return nil, fmt.Errorf("query %s transitions: %w", subject, err)
	}
	defer rows.Close()

	var out []*Transition
	for rows.Next() {
		var tr Transition
		var subj, from, to string
		if err := rows.Scan(&tr.ID, &subj, &tr.SubjectID, &from, &to, &tr.Actor, &tr.Reason, &tr.At); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		tr.Subject, tr.From, tr.To = Subject(subj), Status(from), Status(to)
		out = append(out, &tr)
	}
	return out, rows.Err()
}
