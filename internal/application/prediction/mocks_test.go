package prediction

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
)

type MockRXNAPI struct {
	mock.Mock
}

func (m *MockRXNAPI) PredictReactionBatch(ctx context.Context, reactions []string, model string) (*client.TaskResponse, error) {
	args := m.Called(ctx, reactions, model)
	if r := args.Get(0); r != nil {
		return r.(*client.TaskResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRXNAPI) PredictReactionBatchTopN(ctx context.Context, reactions [][]string, topn int, model string) (*client.TaskResponse, error) {
	args := m.Called(ctx, reactions, topn, model)
	if r := args.Get(0); r != nil {
		return r.(*client.TaskResponse), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRXNAPI) GetReactionBatchResults(ctx context.Context, taskID string, topn bool) (*client.BatchResults, error) {
	args := m.Called(ctx, taskID, topn)
	if r := args.Get(0); r != nil {
		return r.(*client.BatchResults), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRXNAPI) PredictRetrosynthesis(ctx context.Context, req client.RetroRequest) (*client.RetroSubmission, error) {
	args := m.Called(ctx, req)
	if r := args.Get(0); r != nil {
		return r.(*client.RetroSubmission), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRXNAPI) GetRetrosynthesisResults(ctx context.Context, predictionID string) (*client.RetroResults, error) {
	args := m.Called(ctx, predictionID)
	if r := args.Get(0); r != nil {
		return r.(*client.RetroResults), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRXNAPI) ListModels(ctx context.Context) (map[string][]client.ModelVersion, error) {
	args := m.Called(ctx)
	if r := args.Get(0); r != nil {
		return r.(map[string][]client.ModelVersion), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockRXNAPI) ParagraphToActions(ctx context.Context, paragraph string) ([]string, error) {
	args := m.Called(ctx, paragraph)
	if r := args.Get(0); r != nil {
		return r.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

type cacheKey struct{ name, key string }

// memCache is an in-memory reaction.ResultCache that counts calls.
type memCache struct {
	mu        sync.Mutex
	records   map[cacheKey]reaction.Payload
	stores    int
	retrieves int
}

func newMemCache() *memCache {
	return &memCache{records: map[cacheKey]reaction.Payload{}}
}

func (c *memCache) Store(_ context.Context, name, key string, p reaction.Payload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stores++
	c.records[cacheKey{name, key}] = p
	return true
}

func (c *memCache) Retrieve(_ context.Context, name, key string) (reaction.Payload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retrieves++
	p, ok := c.records[cacheKey{name, key}]
	return p, ok
}

func (c *memCache) ClearAll(context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.records)
	c.records = map[cacheKey]reaction.Payload{}
	return n, nil
}

func (c *memCache) keys(name string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for k := range c.records {
		if k.name == name {
			out = append(out, k.key)
		}
	}
	return out
}

type statusRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (r *statusRecorder) Status(msg string) {
	r.mu.Lock()
	r.msgs = append(r.msgs, msg)
	r.mu.Unlock()
}

type eventRecorder struct {
	mu     sync.Mutex
	events []reaction.BatchEvent
	err    error
}

func (r *eventRecorder) PublishBatchEvent(_ context.Context, ev reaction.BatchEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

type metricsRecorder struct {
	mu       sync.Mutex
	attempts map[string][]bool
	hits     int
	misses   int
	batches  []string
}

func newMetricsRecorder() *metricsRecorder {
	return &metricsRecorder{attempts: map[string][]bool{}}
}

func (m *metricsRecorder) ObserveAttempt(stage string, ok bool) {
	m.mu.Lock()
	m.attempts[stage] = append(m.attempts[stage], ok)
	m.mu.Unlock()
}

func (m *metricsRecorder) ObserveCacheLookup(hit bool) {
	m.mu.Lock()
	if hit {
		m.hits++
	} else {
		m.misses++
	}
	m.mu.Unlock()
}

func (m *metricsRecorder) ObserveBatch(outcome string, _, _, _ int) {
	m.mu.Lock()
	m.batches = append(m.batches, outcome)
	m.mu.Unlock()
}
