// Package foundry implements the two transports the proxy uses to reach the
// ontology platform: a typed primary client and a raw REST fallback, plus
// the filter predicate tree and OAuth token plumbing they share.
package foundry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// SearchRequest describes one page of an ontology object search.
type SearchRequest struct {
	Where     *Filter
	PageSize  int
	PageToken string
	Select    []string
}

// searchBody is the wire form of a search request.
type searchBody struct {
	Where     *Filter  `json:"where"`
	PageSize  int      `json:"pageSize"`
	PageToken string   `json:"pageToken,omitempty"`
	Select    []string `json:"select,omitempty"`
}

// Transport executes an ontology object search and returns the decoded
// response body. The platform is inconsistent about which container key
// carries records, so the body is returned untyped for the normalizer.
type Transport interface {
	Name() string
	Search(ctx context.Context, objectType string, req SearchRequest) (map[string]interface{}, error)
}

// OntologyClient is the primary transport: the typed client for the
// platform's v2 ontology object API.
type OntologyClient struct {
	host       string
	ontologyID string
	tokens     TokenSource
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewOntologyClient builds the primary transport. limiter may be shared
// with the secondary transport so the pair never exceeds the platform
// budget together; pass nil to disable outbound limiting.
func NewOntologyClient(host, ontologyID string, tokens TokenSource, httpClient *http.Client, limiter *rate.Limiter, logger zerolog.Logger) *OntologyClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &OntologyClient{
		host:       strings.TrimRight(host, "/"),
		ontologyID: ontologyID,
		tokens:     tokens,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}
}

func (c *OntologyClient) Name() string { return "primary" }

// Search executes one page of an object search.
func (c *OntologyClient) Search(ctx context.Context, objectType string, req SearchRequest) (map[string]interface{}, error) {
	if c.ontologyID == "" {
		return nil, ErrMissingOntology
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransportError{Transport: c.Name(), Err: err}
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, &TransportError{Transport: c.Name(), Err: fmt.Errorf("acquiring token: %w", err)}
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
			Msg("primary transport search failed")
		return nil, err
	}
	return result, nil
}

// searchJSON serializes a SearchRequest into the wire body.
func searchJSON(req SearchRequest) ([]byte, error) {
	return json.Marshal(searchBody{
		Where:     req.Where,
		PageSize:  req.PageSize,
		PageToken: req.PageToken,
		Select:    req.Select,
	})
}

// platformError is the platform's error body shape.
type platformError struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
	ErrorName string `json:"errorName"`
}

// classifySearchResponse maps a search HTTP response onto the transport
// error taxonomy: 2xx decodes to the untyped body, 429 is throttling,
// 400/422 is a validation rejection, everything else is a generic
// transport failure eligible for fallback.
func classifySearchResponse(transport string, resp *http.Response) (map[string]interface{}, error) {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Transport: transport, Err: fmt.Errorf("reading response: %w", err)}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var body map[string]interface{}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, &TransportError{Transport: transport, Err: fmt.Errorf("decoding response: %w", err)}
		}
		return body, nil

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrThrottled

	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		var pe platformError
		_ = json.Unmarshal(raw, &pe)
		msg := pe.Message
		if msg == "" {
			msg = fmt.Sprintf("platform rejected request with status %d", resp.StatusCode)
		}
		return nil, &InvalidRequestError{Message: msg}

	default:
		return nil, &TransportError{
			Transport: transport,
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
}
