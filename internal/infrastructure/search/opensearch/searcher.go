package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opensearch-project/opensearch-go/v2/opensearchapi"

	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// SearcherConfig bounds page sizes.
type SearcherConfig struct {
	MaxPageSize   int
	SearchTimeout time.Duration
}

// Searcher answers Deep Search data queries against indices named after the
// collection index key. It satisfies the same RunDataQuery contract as the
// remote Deep Search client.
type Searcher struct {
	client *Client
	config SearcherConfig
	logger logging.Logger
}

// NewSearcher caps pages at 1000 hits unless cfg says otherwise.
func NewSearcher(c *Client, cfg SearcherConfig, logger logging.Logger) *Searcher {
	if cfg.MaxPageSize == 0 {
		cfg.MaxPageSize = 1000
	}
	if cfg.SearchTimeout == 0 {
		cfg.SearchTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Searcher{client: c, config: cfg, logger: logger.Named("opensearch.searcher")}
}

// RunDataQuery counts when q.Limit is 0, otherwise returns one page of hits
// together with the requested aggregations.
func (s *Searcher) RunDataQuery(ctx context.Context, src client.CollectionSource, q client.DataQuery) (*client.DataQueryResult, error) {
	if src.IndexKey == "" {
		return nil, errors.New(errors.ErrCodeValidation, "index key is required")
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.SearchTimeout)
	defer cancel()

	if q.Limit <= 0 {
		n, err := s.Count(ctx, src.IndexKey, q.Query)
		if err != nil {
			return nil, err
		}
		return &client.DataQueryResult{DataCount: n}, nil
	}
	return s.Search(ctx, src.IndexKey, q)
}

// Count returns the number of documents matching the query string.
func (s *Searcher) Count(ctx context.Context, index, query string) (int64, error) {
	body, err := json.Marshal(map[string]interface{}{"query": queryString(query)})
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal count query")
	}

	resp, err := opensearchapi.CountRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client.GetClient())
	if err != nil {
		return 0, s.transportError(ctx, err, "count")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return 0, s.handleErrorResponse(resp)
	}

	var countResp struct {
		Count int64 `json:"count"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&countResp); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode count response")
	}
	return countResp.Count, nil
}

// Search runs one page of q against index.
func (s *Searcher) Search(ctx context.Context, index string, q client.DataQuery) (*client.DataQueryResult, error) {
	dsl := s.buildQueryDSL(q)
	body, err := json.Marshal(dsl)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal query DSL")
	}

	start := time.Now()
	resp, err := opensearchapi.SearchRequest{
		Index: []string{index},
		Body:  bytes.NewReader(body),
	}.Do(ctx, s.client.GetClient())
	if err != nil {
		return nil, s.transportError(ctx, err, "search")
	}
	defer resp.Body.Close()

	if resp.IsError() {
		return nil, s.handleErrorResponse(resp)
	}

	result, err := parseSearchResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("search executed",
		logging.String("index", index),
		logging.Int("offset", q.Offset),
		logging.Int("hits", len(result.DataOutputs)),
		logging.Int64("total", result.DataCount),
		logging.Duration("took", time.Since(start)))

	return result, nil
}

func queryString(q string) map[string]interface{} {
	return map[string]interface{}{
		"query_string": map[string]interface{}{"query": q},
	}
}

func (s *Searcher) buildQueryDSL(q client.DataQuery) map[string]interface{} {
	size := q.Limit
	if size > s.config.MaxPageSize {
		size = s.config.MaxPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	dsl := map[string]interface{}{
		"query":            queryString(q.Query),
		"from":             offset,
		"size":             size,
		"track_total_hits": true,
	}
	if len(q.Source) > 0 {
		dsl["_source"] = q.Source
	}
	if q.Highlight != nil {
		fields := make(map[string]interface{}, len(q.Highlight.Fields))
		for f := range q.Highlight.Fields {
			fields[f] = map[string]interface{}{}
		}
		hl := map[string]interface{}{
			"fields":        fields,
			"fragment_size": q.Highlight.FragmentSize,
		}
		if len(q.Highlight.PreTags) > 0 {
			hl["pre_tags"] = q.Highlight.PreTags
		}
		if len(q.Highlight.PostTags) > 0 {
			hl["post_tags"] = q.Highlight.PostTags
		}
		dsl["highlight"] = hl
	}
	if len(q.Aggregations) > 0 {
		dsl["aggs"] = q.Aggregations
	}
	return dsl
}

func parseSearchResponse(body io.Reader) (*client.DataQueryResult, error) {
	var resp struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []client.DataHit `json:"hits"`
		} `json:"hits"`
		Aggregations map[string]json.RawMessage `json:"aggregations"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode search response")
	}

	result := &client.DataQueryResult{
		DataCount:   resp.Hits.Total.Value,
		DataOutputs: resp.Hits.Hits,
	}
	if len(resp.Aggregations) > 0 {
		result.DataAggs = make(map[string]client.Aggregation, len(resp.Aggregations))
		for name, raw := range resp.Aggregations {
			result.DataAggs[name] = parseAggregation(raw)
		}
	}
	return result, nil
}

// parseAggregation keeps bucket aggregations only. Buckets without a
// key_as_string use the printed key.
func parseAggregation(raw json.RawMessage) client.Aggregation {
	var agg struct {
		Buckets []struct {
			Key         interface{} `json:"key"`
			KeyAsString string      `json:"key_as_string"`
			DocCount    int64       `json:"doc_count"`
		} `json:"buckets"`
	}
	if err := json.Unmarshal(raw, &agg); err != nil {
		return client.Aggregation{}
	}

	out := client.Aggregation{Buckets: make([]client.Bucket, 0, len(agg.Buckets))}
	for _, b := range agg.Buckets {
		key := b.KeyAsString
		if key == "" && b.Key != nil {
			key = fmt.Sprint(b.Key)
		}
		out.Buckets = append(out.Buckets, client.Bucket{KeyAsString: key, DocCount: b.DocCount})
	}
	return out
}

func (s *Searcher) transportError(ctx context.Context, err error, op string) error {
	if ctx.Err() == context.DeadlineExceeded {
		return errors.Newf(errors.ErrCodeTimeout, "%s request timed out", op)
	}
	return errors.Wrap(err, errors.ErrCodeDSQueryFailed, op+" request failed")
}

func (s *Searcher) handleErrorResponse(resp *opensearchapi.Response) error {
	bodyBytes, _ := io.ReadAll(resp.Body)
	var errResp struct {
		Error struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	}
	if resp.StatusCode == 404 {
		return errors.New(errors.ErrCodeDSCollectionNotFound, "index not found")
	}
	if err := json.Unmarshal(bodyBytes, &errResp); err == nil && errResp.Error.Reason != "" {
		return errors.Newf(errors.ErrCodeDSQueryFailed, "opensearch error: %s - %s", errResp.Error.Type, errResp.Error.Reason)
	}
	return errors.Newf(errors.ErrCodeDSQueryFailed, "opensearch error status: %d", resp.StatusCode)
}
