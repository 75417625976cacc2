package foundry

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// RESTClient is the secondary transport: a raw HTTP client for the same
// ontology search endpoint, used when the primary transport fails in a way
// that fallback can help. It authenticates with its own client-credentials
// token, acquired independently of the primary's.
type RESTClient struct {
	host       string
	ontologyID string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewRESTClient builds the secondary transport.
func NewRESTClient(host, ontologyID string, tokens TokenSource, httpClient *http.Client, limiter *rate.Limiter, logger zerolog.Logger) *RESTClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RESTClient{
		host:       strings.TrimRight(host, "/"),
		ontologyID: ontologyID,
		tokens:     tokens,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

func (c *RESTClient) Name() string { return "secondary" }

// Search re-issues a query over raw HTTP. The token is fetched first so an
// authentication problem surfaces as this transport's own failure rather
// than a cryptic 401 from the platform.
func (c *RESTClient) Search(ctx context.Context, objectType string, req SearchRequest) (map[string]interface{}, error) {
	if c.ontologyID == "" {
		return nil, ErrMissingOntology
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &TransportError{Transport: c.Name(), Err: fmt.Errorf("acquiring token: %w", err)}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Transport: c.Name(), Err: err}
		}
	}

	url := fmt.Sprintf("%s/api/v2/ontologies/%s/objects/%s/search", c.host, c.ontologyID, objectType)
	body, err := searchJSON(req)
	if err != nil {
		return nil, &TransportError{Transport: c.Name(), Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &TransportError{Transport: c.Name(), Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Transport: c.Name(), Err: err}
	}
	defer resp.Body.Close()

	result, err := classifySearchResponse(c.Name(), resp)
	if err != nil {
		c.logger.Warn().
			Err(err).
			Str("object_type", objectType).
			Int("status", resp.StatusCode).
			Msg("secondary transport search failed")
		return nil, err
	}
	return result, nil
}
