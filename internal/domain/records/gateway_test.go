package records

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/foundry"
)

// mockTransport counts calls and replays a canned response or error.
type mockTransport struct {
	name  string
	body  map[string]interface{}
	err   error
	calls int
	last  foundry.SearchRequest
}

func (m *mockTransport) Name() string { return m.name }

func (m *mockTransport) Search(_ context.Context, _ string, req foundry.SearchRequest) (map[string]interface{}, error) {
	m.calls++
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return m.body, nil
}

func searchBody(token string, records ...map[string]interface{}) map[string]interface{} {
	data := make([]interface{}, 0, len(records))
	for _, r := range records {
		data = append(data, r)
	}
	body := map[string]interface{}{"data": data}
	if token != "" {
		body["nextPageToken"] = token
	}
	return body
}

func TestFetch_PrimarySuccess(t *testing.T) {
	primary := &mockTransport{name: "primary", body: searchBody("tok-2",
		map[string]interface{}{"conditionId": "c-1", "patientId": "auth0|p1"},
	)}
	secondary := &mockTransport{name: "secondary"}
	g := NewGateway(primary, secondary, time.Minute, nil, zerolog.Nop())

	rs, err := g.Fetch(context.Background(), Query{ObjectType: TypeCondition, PatientID: "auth0|p1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rs.Records) != 1 || rs.Records[0]["conditionId"] != "c-1" {
		t.Errorf("unexpected records: %+v", rs.Records)
	}
	if rs.NextPageToken != "tok-2" {
		t.Errorf("expected page token propagated, got %q", rs.NextPageToken)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary must not be called on primary success, got %d calls", secondary.calls)
	}
}

func TestFetch_CacheRoundTrip(t *testing.T) {
	primary := &mockTransport{name: "primary", body: searchBody("")}
	g := NewGateway(primary, &mockTransport{name: "secondary"}, time.Minute, nil, zerolog.Nop())
	q := Query{ObjectType: TypeObservation, PatientID: "auth0|p1", Category: "vital-signs"}

	first, err := g.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := g.Fetch(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("expected a single upstream call for identical queries, got %d", primary.calls)
	}
	if first != second {
		t.Error("expected cached result set on second fetch")
	}
}

func TestFetch_CacheExpiry(t *testing.T) {
	primary := &mockTransport{name: "primary", body: searchBody("")}
	g := NewGateway(primary, &mockTransport{name: "secondary"}, 10*time.Millisecond, nil, zerolog.Nop())
	q := Query{ObjectType: TypeCondition, PatientID: "auth0|p1"}

	if _, err := g.Fetch(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, err := g.Fetch(context.Background(), q); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.calls != 2 {
		t.Errorf("expected upstream re-invoked after TTL expiry, got %d calls", primary.calls)
	}
}

func TestFetch_DistinctShapesDistinctEntries(t *testing.T) {
	primary := &mockTransport{name: "primary", body: searchBody("")}
	g := NewGateway(primary, &mockTransport{name: "secondary"}, time.Minute, nil, zerolog.Nop())

	base := Query{ObjectType: TypeCondition, PatientID: "auth0|p1"}
	paged := base
	paged.PageToken = "tok-2"

	g.Fetch(context.Background(), base)
	g.Fetch(context.Background(), paged)
	if primary.calls != 2 {
		t.Errorf("expected distinct shapes to miss independently, got %d calls", primary.calls)
	}
}

func TestFetch_FallbackOnRetryableError(t *testing.T) {
	primary := &mockTransport{name: "primary", err: &foundry.TransportError{
		Transport: "primary", Err: errors.New("connection refused"),
	}}
	secondary := &mockTransport{name: "secondary", body: searchBody("",
		map[string]interface{}{"conditionId": "c-1"},
	)}
	g := NewGateway(primary, secondary, time.Minute, nil, zerolog.Nop())

	rs, err := g.Fetch(context.Background(), Query{ObjectType: TypeCondition, PatientID: "auth0|p1"})
	if err != nil {
		t.Fatalf("expected fallback to succeed, got %v", err)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("expected exactly one call each, got primary=%d secondary=%d", primary.calls, secondary.calls)
	}
	if len(rs.Records) != 1 {
		t.Errorf("expected secondary records, got %+v", rs.Records)
	}
}

func TestFetch_ThrottledSkipsFallback(t *testing.T) {
	primary := &mockTransport{name: "primary", err: foundry.ErrThrottled}
	secondary := &mockTransport{name: "secondary", body: searchBody("")}
	g := NewGateway(primary, secondary, time.Minute, nil, zerolog.Nop())

	_, err := g.Fetch(context.Background(), Query{ObjectType: TypeCondition, PatientID: "auth0|p1"})
	if !errors.Is(err, foundry.ErrThrottled) {
		t.Fatalf("expected throttled error surfaced, got %v", err)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary must not be invoked on throttling, got %d calls", secondary.calls)
	}
}

func TestFetch_InvalidRequestSkipsFallback(t *testing.T) {
	primary := &mockTransport{name: "primary", err: &foundry.InvalidRequestError{Message: "bad filter"}}
	secondary := &mockTransport{name: "secondary", body: searchBody("")}
	g := NewGateway(primary, secondary, time.Minute, nil, zerolog.Nop())

	_, err := g.Fetch(context.Background(), Query{ObjectType: TypeCondition, PatientID: "auth0|p1"})
	var invalid *foundry.InvalidRequestError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected invalid-request error surfaced, got %v", err)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary must not be invoked on an invalid request, got %d calls", secondary.calls)
	}
}

func TestFetch_BothTransportsFail(t *testing.T) {
	primaryErr := &foundry.TransportError{Transport: "primary", Err: errors.New("refused")}
	secondaryErr := &foundry.TransportError{Transport: "secondary", Err: errors.New("timeout")}
	primary := &mockTransport{name: "primary", err: primaryErr}
	secondary := &mockTransport{name: "secondary", err: secondaryErr}
	g := NewGateway(primary, secondary, time.Minute, nil, zerolog.Nop())

	q := Query{ObjectType: TypeCondition, PatientID: "auth0|p1"}
	_, err := g.Fetch(context.Background(), q)
	var te *foundry.TransportError
	if !errors.As(err, &te) || te.Transport != "secondary" {
		t.Fatalf("expected the secondary's error surfaced, got %v", err)
	}

	// The failed query must not populate the cache.
	primary.err = nil
	primary.body = searchBody("")
	if _, err := g.Fetch(context.Background(), q); err != nil {
		t.Fatalf("expected recovery after upstream heals, got %v", err)
	}
	if primary.calls != 2 {
		t.Errorf("expected a fresh upstream call after failure, got %d", primary.calls)
	}
}

func TestFetch_EmptyResultsContainer(t *testing.T) {
	primary := &mockTransport{name: "primary", body: map[string]interface{}{"results": []interface{}{}}}
	g := NewGateway(primary, &mockTransport{name: "secondary"}, time.Minute, nil, zerolog.Nop())

	rs, err := g.Fetch(context.Background(), Query{ObjectType: TypeCondition, PatientID: "auth0|p1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rs.Records == nil {
		t.Fatal("expected empty slice, not nil")
	}
	if len(rs.Records) != 0 {
		t.Errorf("expected no records, got %+v", rs.Records)
	}
}

func TestFetch_SortNeverForwarded(t *testing.T) {
	primary := &mockTransport{name: "primary", body: searchBody("")}
	g := NewGateway(primary, &mockTransport{name: "secondary"}, time.Minute, nil, zerolog.Nop())

	_, err := g.Fetch(context.Background(), Query{
		ObjectType:    TypeCondition,
		PatientID:     "auth0|p1",
		SortField:     "recordedDate",
		SortDirection: "desc",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if primary.last.Where == nil {
		t.Fatal("expected a filter on the upstream request")
	}
	if primary.last.PageSize != 25 {
		t.Errorf("expected default page size forwarded, got %d", primary.last.PageSize)
	}
	// SearchRequest carries no sort fields at all, so the assertion is on
	// the cache key instead: sorted and unsorted queries cache separately.
	unsorted := Query{ObjectType: TypeCondition, PatientID: "auth0|p1"}
	sorted := unsorted
	sorted.SortField = "recordedDate"
	if unsorted.Shape() == sorted.Shape() {
		t.Error("expected sort parameters to participate in the cache key")
	}
}

func TestQueryShape_Deterministic(t *testing.T) {
	a := Query{ObjectType: TypeObservation, PatientID: "auth0|p1", PageSize: 50, Category: "vital-signs"}
	b := Query{ObjectType: TypeObservation, PatientID: "auth0|p1", PageSize: 50, Category: "vital-signs"}
	if a.Shape() != b.Shape() {
		t.Error("identical queries must share a cache key")
	}
	c := a
	c.Category = "laboratory"
	if a.Shape() == c.Shape() {
		t.Error("category must participate in the cache key")
	}
}

func TestQueryShape_PageSizeClamped(t *testing.T) {
	oversized := Query{ObjectType: TypeCondition, PatientID: "p", PageSize: 500}
	clamped := Query{ObjectType: TypeCondition, PatientID: "p", PageSize: 100}
	if oversized.Shape() != clamped.Shape() {
		t.Error("oversized page sizes must clamp before keying the cache")
	}
	zero := Query{ObjectType: TypeCondition, PatientID: "p"}
	def := Query{ObjectType: TypeCondition, PatientID: "p", PageSize: 25}
	if zero.Shape() != def.Shape() {
		t.Error("zero page size must key as the default")
	}
}
