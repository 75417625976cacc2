package records

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/foundry"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/platform/cache"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/internal/platform/metrics"
	"github.com/gsiegel14/atlas-backend-proxy-sub000/pkg/pagination"
)

// Query describes one clinical-data read. Sort parameters are carried for
// the cache key but never forwarded upstream (see pagination.Params).
type Query struct {
	ObjectType    ObjectType
	PatientID     string
	PageSize      int
	PageToken     string
	SortField     string
	SortDirection string
	Category      string
}

// queryShape is the canonical cache-key serialization of a Query. Struct
// field order pins the byte layout, so two logically identical queries
// always produce the same key.
type queryShape struct {
	PatientID     string `json:"resolvedPatientId"`
	PageSize      int    `json:"pageSize"`
	PageToken     string `json:"pageToken"`
	SortField     string `json:"sortField"`
	SortDirection string `json:"sortDirection"`
	Category      string `json:"category,omitempty"`
}

// Shape returns the canonical cache key for the query.
func (q Query) Shape() string {
	b, _ := json.Marshal(queryShape{
		PatientID:     q.PatientID,
		PageSize:      q.normalizedPageSize(),
		PageToken:     q.PageToken,
		SortField:     q.SortField,
		SortDirection: q.SortDirection,
		Category:      q.Category,
	})
	return string(b)
}

func (q Query) normalizedPageSize() int {
	size := q.PageSize
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	if size > pagination.MaxPageSize {
		size = pagination.MaxPageSize
	}
	return size
}

// Gateway executes clinical-data reads against the ontology platform:
// cache check, filter build, primary transport, classified fallback to the
// secondary transport, normalization, cache populate.
type Gateway struct {
	primary   foundry.Transport
	secondary foundry.Transport
	caches    map[ObjectType]*cache.Store[*ResultSet]
	metrics   metrics.Recorder
	logger    zerolog.Logger
	now       func() time.Time
}

// NewGateway builds a Gateway with one TTL cache per object type.
func NewGateway(primary, secondary foundry.Transport, ttl time.Duration, rec metrics.Recorder, logger zerolog.Logger) *Gateway {
	caches := make(map[ObjectType]*cache.Store[*ResultSet], len(ObjectTypes))
	for _, t := range ObjectTypes {
		caches[t] = cache.New[*ResultSet](ttl)
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Gateway{
		primary:   primary,
		secondary: secondary,
		caches:    caches,
		metrics:   rec,
		logger:    logger,
		now:       time.Now,
	}
}

// StartCacheCleanup launches periodic eviction for every per-type cache.
func (g *Gateway) StartCacheCleanup(ctx context.Context, interval time.Duration) {
	for _, store := range g.caches {
		store.StartCleanup(ctx, interval)
	}
}

// Fetch runs one read. Errors carry the foundry taxonomy so the handler
// layer can map them onto HTTP statuses; the cache is never populated on
// any error path.
func (g *Gateway) Fetch(ctx context.Context, q Query) (*ResultSet, error) {
	objectType := string(q.ObjectType)
	store := g.caches[q.ObjectType]
	key := q.Shape()

	if store != nil {
		if rs, ok := store.Get(key); ok {
			g.metrics.RecordCacheHit(objectType)
			return rs, nil
		}
		g.metrics.RecordCacheMiss(objectType)
	}

	start := g.now()
	req := foundry.SearchRequest{
		Where:     foundry.PatientCategoryFilter(q.PatientID, q.Category),
		PageSize:  q.normalizedPageSize(),
		PageToken: q.PageToken,
	}

	body, err := g.primary.Search(ctx, objectType, req)
	if err != nil {
		g.metrics.RecordUpstream(g.primary.Name(), "error")
		if !foundry.IsRetryable(err) {
			return nil, err
		}

		// The primary's error is logged but superseded by whatever the
		// secondary produces.
		g.logger.Warn().
			Err(err).
			Str("object_type", objectType).
			Msg("primary transport failed, falling back to secondary")
		g.metrics.RecordFallback(objectType)

		body, err = g.secondary.Search(ctx, objectType, req)
		if err != nil {
			g.metrics.RecordUpstream(g.secondary.Name(), "error")
			return nil, err
		}
		g.metrics.RecordUpstream(g.secondary.Name(), "success")
	} else {
		g.metrics.RecordUpstream(g.primary.Name(), "success")
	}
	g.metrics.RecordFetchLatency(objectType, g.now().Sub(start))

	result := &ResultSet{
		Records:       make([]NormalizedRecord, 0),
		NextPageToken: NextPageToken(body),
		FetchedAt:     g.now().UTC(),
	}
	for _, raw := range ExtractRecords(body) {
		result.Records = append(result.Records, Normalize(q.ObjectType, raw))
	}

	if store != nil {
		store.Set(key, result)
	}
	return result, nil
}
