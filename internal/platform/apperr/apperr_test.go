package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestError_IsKind(t *testing.T) {
	err := Conflict("slot %s taken", "09:00")
	if !errors.Is(err, ErrConflict) {
		t.Error("expected errors.Is to match ErrConflict")
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("did not expect ErrNotFound")
	}

	wrapped := fmt.Errorf("attempt booking: %w", err)
	if !errors.Is(wrapped, ErrConflict) {
		t.Error("expected kind to survive wrapping")
	}
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("pg: exclusion violation")
	err := Wrap(ErrConflict, cause, "interval overlaps")
	if !errors.Is(err, cause) {
		t.Error("expected cause reachable through Unwrap")
	}
	if !errors.Is(err, ErrConflict) {
		t.Error("expected kind match")
	}
	if err.Error() != "conflict: interval overlaps: pg: exclusion violation" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("provider"), http.StatusNotFound},
		{Conflict("taken"), http.StatusConflict},
		{InvalidTransition("completed -> pending"), http.StatusConflict},
		{InvalidRange("checkout before checkin"), http.StatusBadRequest},
		{InvalidWindow("end before start"), http.StatusBadRequest},
		{InvalidScore("6"), http.StatusBadRequest},
		{Validation("missing date"), http.StatusBadRequest},
		{Unauthenticated("token"), http.StatusUnauthorized},
		{Forbidden("role"), http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := StatusCode(tt.err); got != tt.want {
			t.Errorf("StatusCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestHTTPError_HidesInternalDetail(t *testing.T) {
	he := HTTPError(errors.New("connection reset by peer"))
	if he.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", he.Code)
	}
	if he.Message != "internal error" {
		t.Errorf("expected generic message, got %v", he.Message)
	}
	if he.Internal == nil {
		t.Error("expected cause preserved as Internal")
	}
}

func TestHTTPError_UsesClientMessage(t *testing.T) {
	he := HTTPError(fmt.Errorf("wrapped: %w", NotFound("provider %s not found", "p1")))
	if he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", he.Code)
	}
	if he.Message != "provider p1 not found" {
		t.Errorf("unexpected message: %v", he.Message)
	}
}
