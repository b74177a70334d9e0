package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/nickenf/afayaconekt-sub000/internal/domain/calendar"
	"github.com/nickenf/afayaconekt-sub000/internal/domain/lifecycle"
	"github.com/nickenf/afayaconekt-sub000/internal/platform/auth"
)

func newTestHandler(t *testing.T, allowAnonymous bool) (*Handler, *fixture, *echo.Echo) {
	fx := newFixture(t)
	return NewHandler(fx.svc, allowAnonymous), fx, echo.New()
}

func newContext(e *echo.Echo, method, target, body string, id *auth.Identity) (echo.Context, *httptest.ResponseRecorder) {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if id != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *id))
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError, got %v", err)
	}
	return he.Code
}

func bookingBody(providerID uuid.UUID, slot string) string {
	return `{"provider_id":"` + providerID.String() + `","date":"2024-06-01","slot_time":"` + slot + `","duration_minutes":30}`
}

func TestHandler_GetAvailability(t *testing.T) {
	h, fx, e := newTestHandler(t, false)
	c, rec := newContext(e, http.MethodGet, "/?date=2024-06-01", "", nil)
	c.SetParamNames("id")
	c.SetParamValues(fx.provider.ID.String())

	if err := h.GetAvailability(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got struct {
		Slots []struct {
			Time string `json:"time"`
			Free bool   `json:"free"`
		} `json:"slots"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got.Slots) != 16 || got.Slots[0].Time != "09:00" || !got.Slots[0].Free {
		t.Errorf("unexpected slots %+v", got.Slots)
	}
}

func TestHandler_GetAvailability_Errors(t *testing.T) {
	h, fx, e := newTestHandler(t, false)
	tests := []struct {
		name   string
		id     string
		target string
		want   int
	}{
		{"bad id", "nope", "/?date=2024-06-01", http.StatusBadRequest},
		{"bad date", fx.provider.ID.String(), "/?date=June", http.StatusBadRequest},
		{"bad duration", fx.provider.ID.String(), "/?date=2024-06-01&duration=x", http.StatusBadRequest},
		{"unknown provider", uuid.New().String(), "/?date=2024-06-01", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newContext(e, http.MethodGet, tt.target, "", nil)
			c.SetParamNames("id")
			c.SetParamValues(tt.id)
			if code := httpCode(t, h.GetAvailability(c)); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestHandler_AttemptBooking(t *testing.T) {
	h, fx, e := newTestHandler(t, false)
	user := &auth.Identity{Subject: "u1"}

	c, rec := newContext(e, http.MethodPost, "/", bookingBody(fx.provider.ID, "10:00"), user)
	if err := h.AttemptBooking(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var b Booking
	if err := json.Unmarshal(rec.Body.Bytes(), &b); err != nil {
		t.Fatal(err)
	}
	if b.RequesterID == nil || *b.RequesterID != "u1" || b.FeeSnapshot != fx.provider.Fee {
		t.Errorf("unexpected booking %+v", b)
	}
	if b.SlotTime != calendar.At(10, 0) {
		t.Errorf("expected slot 10:00, got %s", b.SlotTime)
	}

	c, _ = newContext(e, http.MethodPost, "/", bookingBody(fx.provider.ID, "10:00"), &auth.Identity{Subject: "u2"})
	if code := httpCode(t, h.AttemptBooking(c)); code != http.StatusConflict {
		t.Errorf("expected 409, got %d", code)
	}
}

func TestHandler_AttemptBooking_Errors(t *testing.T) {
	h, fx, e := newTestHandler(t, false)
	user := &auth.Identity{Subject: "u1"}
	tests := []struct {
		name string
		body string
		id   *auth.Identity
		want int
	}{
		{"anonymous", bookingBody(fx.provider.ID, "10:00"), nil, http.StatusUnauthorized},
		{"bad provider id", `{"provider_id":"x","date":"2024-06-01","slot_time":"10:00","duration_minutes":30}`, user, http.StatusBadRequest},
		{"bad slot", bookingBody(fx.provider.ID, "25:00"), user, http.StatusBadRequest},
		{"misaligned", bookingBody(fx.provider.ID, "10:10"), user, http.StatusBadRequest},
		{"unknown provider", bookingBody(uuid.New(), "10:00"), user, http.StatusNotFound},
		{"malformed json", `{"provider_id":`, user, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newContext(e, http.MethodPost, "/", tt.body, tt.id)
			if code := httpCode(t, h.AttemptBooking(c)); code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}
}

func TestHandler_AttemptBooking_AnonymousAllowed(t *testing.T) {
	h, fx, e := newTestHandler(t, true)
	c, rec := newContext(e, http.MethodPost, "/", bookingBody(fx.provider.ID, "09:00"), nil)
	if err := h.AttemptBooking(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
}

func TestHandler_AttemptBooking_IdempotencyHeader(t *testing.T) {
	h, fx, e := newTestHandler(t, false)
	user := &auth.Identity{Subject: "u1"}

	codes := make([]int, 2)
	for i := range codes {
		c, rec := newContext(e, http.MethodPost, "/", bookingBody(fx.provider.ID, "11:00"), user)
		c.Request().Header.Set(IdempotencyKeyHeader, "abc")
		if err := h.AttemptBooking(c); err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		codes[i] = rec.Code
	}
	if codes[0] != http.StatusCreated || codes[1] != http.StatusOK {
		t.Errorf("expected 201 then 200, got %v", codes)
	}
}

func TestHandler_GetBooking(t *testing.T) {
	h, fx, e := newTestHandler(t, false)
	b, err := fx.attempt(mustDate(t, "2024-06-01"), calendar.At(9, 0), 30, "u1")
	if err != nil {
		t.Fatal(err)
	}

	c, rec := newContext(e, http.MethodGet, "/", "", &auth.Identity{Subject: "u1"})
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if err := h.GetBooking(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	c, _ = newContext(e, http.MethodGet, "/", "", &auth.Identity{Subject: "u2"})
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if code := httpCode(t, h.GetBooking(c)); code != http.StatusNotFound {
		t.Errorf("stranger: expected 404, got %d", code)
	}
}

func TestHandler_TransitionBooking(t *testing.T) {
	h, fx, e := newTestHandler(t, false)
	b, err := fx.attempt(mustDate(t, "2024-06-01"), calendar.At(9, 0), 30, "u1")
	if err != nil {
		t.Fatal(err)
	}
	staff := &auth.Identity{Subject: "desk", Roles: []string{auth.RoleStaff}}

	tests := []struct {
		name string
		body string
		id   *auth.Identity
		want int
	}{
		{"owner confirms", `{"status":"confirmed"}`, &auth.Identity{Subject: "u1"}, http.StatusForbidden},
		{"unknown status", `{"status":"archived"}`, staff, http.StatusBadRequest},
		{"staff confirms", `{"status":"confirmed"}`, staff, http.StatusOK},
		{"staff confirms twice", `{"status":"confirmed"}`, staff, http.StatusConflict},
		{"owner cancels", `{"status":"cancelled","reason":"travel"}`, &auth.Identity{Subject: "u1"}, http.StatusOK},
		{"pending after cancel", `{"status":"pending"}`, staff, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(e, http.MethodPost, "/", tt.body, tt.id)
			c.SetParamNames("id")
			c.SetParamValues(b.ID.String())
			err := h.TransitionBooking(c)
			code := rec.Code
			if err != nil {
				code = httpCode(t, err)
			}
			if code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, code)
			}
		})
	}

	c, rec := newContext(e, http.MethodGet, "/", "", staff)
	c.SetParamNames("id")
	c.SetParamValues(b.ID.String())
	if err := h.ListTransitions(c); err != nil {
		t.Fatal(err)
	}
	var trail []lifecycle.Transition
	if err := json.Unmarshal(rec.Body.Bytes(), &trail); err != nil {
		t.Fatal(err)
	}
	if len(trail) != 2 || trail[1].Reason != "travel" {
		t.Errorf("unexpected trail %+v", trail)
	}
}

func TestHandler_ListBookings(t *testing.T) {
	h, fx, e := newTestHandler(t, false)
	for _, at := range []calendar.TimeOfDay{calendar.At(9, 0), calendar.At(9, 30), calendar.At(10, 0)} {
		if _, err := fx.attempt(mustDate(t, "2024-06-01"), at, 30, "u1"); err != nil {
			t.Fatal(err)
		}
	}

	c, rec := newContext(e, http.MethodGet, "/?limit=2&status=pending", "", &auth.Identity{Subject: "u1"})
	if err := h.ListBookings(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data    []Booking `json:"data"`
		Total   int       `json:"total"`
		HasMore bool      `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatal(err)
	}
	if page.Total != 3 || len(page.Data) != 2 || !page.HasMore {
		t.Errorf("unexpected page total=%d len=%d more=%v", page.Total, len(page.Data), page.HasMore)
	}

	for _, q := range []string{"/?limit=0", "/?status=archived", "/?from=yesterday", "/?provider_id=x"} {
		c, _ := newContext(e, http.MethodGet, q, "", &auth.Identity{Subject: "u1"})
		if code := httpCode(t, h.ListBookings(c)); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", q, code)
		}
	}
}

func TestHandler_CreateProvider(t *testing.T) {
	h, fx, e := newTestHandler(t, false)
	body := `{"facility_id":"` + fx.provider.FacilityID.String() + `","name":"Dr. Ade","fee":7500,"start_hour":8,"end_hour":12,"granularity_minutes":20}`
	c, rec := newContext(e, http.MethodPost, "/", body, &auth.Identity{Subject: "root", Roles: []string{auth.RoleAdmin}})
	if err := h.CreateProvider(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var p Provider
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if !p.Active || p.Window.EndHour != 12 || p.GranularityMinutes != 20 {
		t.Errorf("unexpected provider %+v", p)
	}

	bad := `{"facility_id":"` + fx.provider.FacilityID.String() + `","name":"x","start_hour":12,"end_hour":8,"granularity_minutes":20}`
	c, _ = newContext(e, http.MethodPost, "/", bad, nil)
	if code := httpCode(t, h.CreateProvider(c)); code != http.StatusBadRequest {
		t.Errorf("inverted window: expected 400, got %d", code)
	}
}
