package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/model"
)

// ErrProjectionRequired rejects queries without a field projection.
// Full-document fetches against the log store are forbidden.
var ErrProjectionRequired = errors.New("gateway: field projection is required")

// ErrKind classifies gateway failures.
type ErrKind string

const (
	// KindExhaustedRetries means the backend kept failing transiently and
	// the retry budget ran out. The caller's cursor is preserved for
	// resumption.
	KindExhaustedRetries ErrKind = "exhausted-retries"
	// KindBadRequest means the backend rejected the query outright.
	KindBadRequest ErrKind = "bad-request"
)

// Error is surfaced to the run controller. The source worker that hit it
// pauses; other sources continue.
type Error struct {
	Kind   ErrKind
	Cursor string // caller's cursor at the time of failure, for resumption
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("query gateway: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Page is one bounded slice of a source stream.
type Page struct {
	Records []*model.RawRecord
	// Cursor resumes the stream after this page. Valid even when Done, so
	// callers can checkpoint their final position.
	Cursor string
	Done   bool
}

// Gateway fetches raw records in strictly increasing cursor order.
type Gateway struct {
	client        *Client
	maxPageSize   int
	retryAttempts int
	retryBackoff  time.Duration
	fetchTimeout  time.Duration
}

// New creates a gateway over an established log store connection.
func New(client *Client, cfg config.GatewayConfig) *Gateway {
	return &Gateway{
		client:        client,
		maxPageSize:   cfg.MaxPageSize,
		retryAttempts: cfg.RetryAttempts,
		retryBackoff:  cfg.RetryBackoff,
		fetchTimeout:  cfg.FetchTimeout,
	}
}

// MaxPageSize returns the configured page-size ceiling.
func (g *Gateway) MaxPageSize() int { return g.maxPageSize }

// Fetch returns the next page of raw records for one source stream.
// cursor is "" for the first page; pass Page.Cursor to continue. Transient
// backend errors are retried with bounded exponential backoff before an
// exhausted-retries Error is returned.
func (g *Gateway) Fetch(ctx context.Context, source model.SourceType, tr TimeRange, projection []string, cursor string) (*Page, error) {
	if len(projection) == 0 {
		return nil, ErrProjectionRequired
	}

	body, err := g.buildQuery(source, tr, projection, cursor)
	if err != nil {
		return nil, &Error{Kind: KindBadRequest, Cursor: cursor, Err: err}
	}

	result, err := g.searchWithRetry(ctx, source, body, cursor)
	if err != nil {
		return nil, err
	}

	page := &Page{Cursor: cursor}
	var lastSort []interface{}
	for i, hit := range result.Hits.Hits {
		page.Records = append(page.Records, &model.RawRecord{
			Source: source,
			Index:  hit.Index,
			DocID:  hit.ID,
			Offset: i,
			Fields: hit.Source,
		})
		lastSort = hit.Sort
	}
	metrics.RecordsFetched.WithLabelValues(string(source)).Add(float64(len(page.Records)))

	if len(lastSort) > 0 {
		next, err := encodeCursor(source, tr, lastSort)
		if err != nil {
			return nil, &Error{Kind: KindBadRequest, Cursor: cursor, Err: err}
		}
		page.Cursor = next
	}
	page.Done = len(result.Hits.Hits) < g.maxPageSize
	return page, nil
}

// buildQuery constructs the OpenSearch DSL for one page. The sort is
// (@timestamp asc, _id asc) so cursors are strictly monotonic and restarts
// are at-most-once per cursor.
func (g *Gateway) buildQuery(source model.SourceType, tr TimeRange, projection []string, cursor string) (map[string]interface{}, error) {
	query := map[string]interface{}{
		"size":    g.maxPageSize,
		"_source": projection,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": []interface{}{
					map[string]interface{}{
						"range": map[string]interface{}{
							"@timestamp": map[string]interface{}{
								"gte": tr.From.UTC().Format(time.RFC3339Nano),
								"lte": tr.To.UTC().Format(time.RFC3339Nano),
							},
						},
					},
				},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"@timestamp": map[string]interface{}{"order": "asc"}},
			map[string]interface{}{"_id": map[string]interface{}{"order": "asc"}},
		},
	}

	if cursor != "" {
		searchAfter, err := decodeCursor(cursor, source, tr)
		if err != nil {
			return nil, err
		}
		query["search_after"] = searchAfter
	}
	return query, nil
}

// searchResult mirrors the slice of the search response the gateway needs.
type searchResult struct {
	Hits struct {
		Hits []struct {
			Index  string                 `json:"_index"`
			ID     string                 `json:"_id"`
			Source map[string]interface{} `json:"_source"`
			Sort   []interface{}          `json:"sort"`
		} `json:"hits"`
	} `json:"hits"`
}

// searchWithRetry executes the query, retrying transient failures
// (network errors, 429, 5xx) with exponential backoff.
func (g *Gateway) searchWithRetry(ctx context.Context, source model.SourceType, body map[string]interface{}, cursor string) (*searchResult, error) {
	var lastErr error

	for attempt := 0; attempt < g.retryAttempts; attempt++ {
		if attempt > 0 {
			metrics.GatewayRetries.WithLabelValues(string(source)).Inc()
			backoff := g.retryBackoff * (1 << (attempt - 1))
			select {
			case <-ctx.Done():
				return nil, &Error{Kind: KindExhaustedRetries, Cursor: cursor, Err: ctx.Err()}
			case <-time.After(backoff):
			}
		}

		result, transient, err := g.searchOnce(ctx, source, body)
		if err == nil {
			return result, nil
		}
		if !transient {
			return nil, &Error{Kind: KindBadRequest, Cursor: cursor, Err: err}
		}
		lastErr = err
	}

	return nil, &Error{Kind: KindExhaustedRetries, Cursor: cursor, Err: lastErr}
}

// searchOnce performs a single search request. The second return value
// reports whether the failure is transient and worth retrying.
func (g *Gateway) searchOnce(ctx context.Context, source model.SourceType, body map[string]interface{}) (*searchResult, bool, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, false, fmt.Errorf("encode query: %w", err)
	}

	fetchCtx := ctx
	if g.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, g.fetchTimeout)
		defer cancel()
	}

	os := g.client.Client()
	res, err := os.Search(
		os.Search.WithContext(fetchCtx),
		os.Search.WithIndex(source.IndexPattern()),
		os.Search.WithBody(&buf),
	)
	if err != nil {
		// Timeouts and connection resets land here.
		return nil, true, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		transient := res.StatusCode == 429 || res.StatusCode >= 500
		return nil, transient, fmt.Errorf("search error: %s", res.Status())
	}

	var result searchResult
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("decode response: %w", err)
	}
	return &result, false, nil
}
