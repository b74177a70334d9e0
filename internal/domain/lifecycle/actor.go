package lifecycle

import (
	"context"

	"github.com/nickenf/afayaconekt-sub000/internal/platform/apperr"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/auth"
)

// Actor is whoever requests a status change.
type Actor struct {
	ID    string
	Staff bool
}

func (a Actor) Anonymous() bool { return a.ID == "" }

// ActorFromContext maps the authenticated identity on ctx to an Actor.
// Without one the actor is anonymous.
func ActorFromContext(ctx context.Context) Actor {
	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return Actor{}
	}
	return Actor{ID: id.Subject, Staff: id.IsStaff()}
}

// Authorize decides whether actor may move a record owned by owner (nil for
// anonymous records) to status to. Staff may apply any legal move; owners may
// only cancel their own records.
func Authorize(actor Actor, owner *string, to Status) error {
	if actor.Staff {
		return nil
	}
	if actor.Anonymous() {
		return apperr.Unauthenticated("authentication required to change status")
	}
	if to != Cancelled {
		return apperr.Forbidden("only staff may set status %s", to)
	}
	if owner == nil || *owner != actor.ID {
		return apperr.Forbidden("only the requester or staff may cancel")
	}
	return nil
}

// CanView reports whether actor may read a record owned by owner.
func CanView(actor Actor, owner *string) bool {
	return actor.Staff || (owner != nil && !actor.Anonymous() && *owner == actor.ID)
}
