package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func newContext(target string) echo.Context {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	return e.NewContext(req, httptest.NewRecorder())
}

func TestFromContext_Defaults(t *testing.T) {
	p, err := FromContext(newContext("/"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != DefaultLimit {
		t.Errorf("expected default limit %d, got %d", DefaultLimit, p.Limit)
	}
	if p.Offset != 0 {
		t.Errorf("expected default offset 0, got %d", p.Offset)
	}
}

func TestFromContext_CustomValues(t *testing.T) {
	p, err := FromContext(newContext("/?limit=50&offset=10"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != 50 || p.Offset != 10 {
		t.Errorf("expected 50/10, got %d/%d", p.Limit, p.Offset)
	}
}

func TestFromContext_MaxLimit(t *testing.T) {
	p, err := FromContext(newContext("/?limit=5000"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Limit != MaxLimit {
		t.Errorf("expected limit clamped to %d, got %d", MaxLimit, p.Limit)
	}
}

func TestFromContext_Invalid(t *testing.T) {
	for _, target := range []string{"/?limit=abc", "/?limit=0", "/?limit=-3", "/?offset=-1", "/?offset=x"} {
		if _, err := FromContext(newContext(target)); err == nil {
			t.Errorf("%s: expected error", target)
		}
	}
}

func TestNewPage(t *testing.T) {
	page := NewPage([]string{"a", "b"}, 5, Params{Limit: 2, Offset: 0})
	if !page.HasMore {
		t.Error("expected HasMore with 5 total and first page of 2")
	}
	if page.Total != 5 || page.Limit != 2 {
		t.Errorf("unexpected page: %+v", page)
	}

	last := NewPage([]string{"e"}, 5, Params{Limit: 2, Offset: 4})
	if last.HasMore {
		t.Error("expected no more rows on last page")
	}
}

func TestNewPage_NilDataBecomesEmpty(t *testing.T) {
	page := NewPage[int](nil, 0, Params{Limit: DefaultLimit})
	if page.Data == nil || len(page.Data) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", page.Data)
	}
}
