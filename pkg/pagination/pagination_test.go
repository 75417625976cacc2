package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func paramsFor(t *testing.T, query string) Params {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/conditions?"+query, nil)
	c := e.NewContext(req, httptest.NewRecorder())
	return FromContext(c)
}

func TestFromContext_Defaults(t *testing.T) {
	p := paramsFor(t, "")
	if p.PageSize != DefaultPageSize {
		t.Errorf("expected default page size %d, got %d", DefaultPageSize, p.PageSize)
	}
	if p.PageToken != "" || p.SortField != "" {
		t.Errorf("expected empty token and sort, got %+v", p)
	}
}

func TestFromContext_ClampsPageSize(t *testing.T) {
	cases := []struct {
		query string
		want  int
	}{
		{"pageSize=10", 10},
		{"pageSize=100", 100},
		{"pageSize=500", MaxPageSize},
		{"pageSize=0", DefaultPageSize},
		{"pageSize=-5", DefaultPageSize},
		{"pageSize=abc", DefaultPageSize},
	}
	for _, tc := range cases {
		if got := paramsFor(t, tc.query).PageSize; got != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.query, tc.want, got)
		}
	}
}

func TestFromContext_PageToken(t *testing.T) {
	p := paramsFor(t, "pageToken=opaque-token-xyz")
	if p.PageToken != "opaque-token-xyz" {
		t.Errorf("expected token preserved, got %q", p.PageToken)
	}
}

func TestFromContext_Sort(t *testing.T) {
	p := paramsFor(t, "sort=onsetDate")
	if p.SortField != "onsetDate" || p.SortDirection != "asc" {
		t.Errorf("expected onsetDate asc, got %+v", p)
	}

	p = paramsFor(t, "sort=onsetDate:desc")
	if p.SortField != "onsetDate" || p.SortDirection != "desc" {
		t.Errorf("expected onsetDate desc, got %+v", p)
	}

	p = paramsFor(t, "sort=:desc")
	if p.SortField != "" || p.SortDirection != "" {
		t.Errorf("expected empty sort for blank field, got %+v", p)
	}
}
