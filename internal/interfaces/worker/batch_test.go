package worker

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/OpenAD-Plugins/internal/bootstrap"
	"github.com/turtacn/OpenAD-Plugins/internal/config"
	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/testutil"
	"github.com/turtacn/OpenAD-Plugins/pkg/client"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

type mockRXNAPI struct {
	mock.Mock
}

func (m *mockRXNAPI) PredictReactionBatch(ctx context.Context, reactions []string, model string) (*client.TaskResponse, error) {
	args := m.Called(ctx, reactions, model)
	return args.Get(0).(*client.TaskResponse), args.Error(1)
}

func (m *mockRXNAPI) PredictReactionBatchTopN(ctx context.Context, reactions [][]string, topn int, model string) (*client.TaskResponse, error) {
	args := m.Called(ctx, reactions, topn, model)
	return args.Get(0).(*client.TaskResponse), args.Error(1)
}

func (m *mockRXNAPI) GetReactionBatchResults(ctx context.Context, taskID string, topn bool) (*client.BatchResults, error) {
	args := m.Called(ctx, taskID, topn)
	return args.Get(0).(*client.BatchResults), args.Error(1)
}

func (m *mockRXNAPI) PredictRetrosynthesis(ctx context.Context, req client.RetroRequest) (*client.RetroSubmission, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(*client.RetroSubmission), args.Error(1)
}

func (m *mockRXNAPI) GetRetrosynthesisResults(ctx context.Context, predictionID string) (*client.RetroResults, error) {
	args := m.Called(ctx, predictionID)
	return args.Get(0).(*client.RetroResults), args.Error(1)
}

func (m *mockRXNAPI) ListModels(ctx context.Context) (map[string][]client.ModelVersion, error) {
	args := m.Called(ctx)
	return args.Get(0).(map[string][]client.ModelVersion), args.Error(1)
}

func (m *mockRXNAPI) ParagraphToActions(ctx context.Context, paragraph string) ([]string, error) {
	args := m.Called(ctx, paragraph)
	return args.Get(0).([]string), args.Error(1)
}

type stubProvider struct {
	svc   *bootstrap.PredictionServices
	err   error
	calls int
}

func (p *stubProvider) Prediction(context.Context) (*bootstrap.PredictionServices, error) {
	p.calls++
	return p.svc, p.err
}

type memClaims struct {
	mu       sync.Mutex
	held     map[string]bool
	released []string
}

func newMemClaims() *memClaims { return &memClaims{held: map[string]bool{}} }

func (c *memClaims) TryClaim(_ context.Context, id string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.held[id] {
		return false, nil
	}
	c.held[id] = true
	return true, nil
}

func (c *memClaims) Release(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.held, id)
	c.released = append(c.released, id)
	return nil
}

type recordingArchive struct {
	keys []string
	data [][]byte
}

func (a *recordingArchive) Upload(_ context.Context, ws, name string, data []byte) (string, error) {
	key := ws + "/" + name
	a.keys = append(a.keys, key)
	a.data = append(a.data, data)
	return key, nil
}

const bromination = "BrBr.C1=CC=CC=C1"

type fixture struct {
	api      *mockRXNAPI
	provider *stubProvider
	claims   *memClaims
	archive  *recordingArchive
	dir      string
	worker   *BatchWorker
}

func newFixture(t *testing.T) *fixture {
	cfg := &config.Config{Workspace: config.WorkspaceConfig{Name: "lab", HomeDir: t.TempDir()}}
	config.ApplyDefaults(cfg)
	infra, err := bootstrap.NewInfrastructure(context.Background(), cfg, nil, bootstrap.Options{})
	require.NoError(t, err)

	f := &fixture{api: &mockRXNAPI{}, claims: newMemClaims(), archive: &recordingArchive{}, dir: cfg.Workspace.RootDir}
	f.provider = &stubProvider{svc: infra.NewPredictionServices(bootstrap.PredictionDeps{
		Workspace:    "lab",
		WorkspaceDir: f.dir,
		API:          f.api,
		Sleeper:      &testutil.FakeSleeper{},
	}, nil)}
	f.worker = NewBatchWorker(Config{
		Workspace:    "lab",
		WorkspaceDir: f.dir,
		Provider:     f.provider,
		Claims:       f.claims,
		Archive:      f.archive,
		Logger:       testutil.NewRecordingLogger(),
	})
	return f
}

func (f *fixture) expectBromination() {
	f.api.On("PredictReactionBatch", mock.Anything, []string{bromination}, config.DefaultReactionModel).
		Return(&client.TaskResponse{TaskID: "task-1"}, nil).Once()
	f.api.On("GetReactionBatchResults", mock.Anything, "task-1", false).
		Return(&client.BatchResults{Predictions: []map[string]interface{}{
			{"smiles": "BrBr.c1ccccc1>>Brc1ccccc1", "confidence": 0.94},
		}}, nil).Once()
}

func request() reaction.BatchRequest {
	return reaction.BatchRequest{
		BatchID:   "b-1",
		Workspace: "LAB",
		Inputs:    []string{bromination},
		Params:    reaction.ReactionParams{Model: config.DefaultReactionModel},
		SaveAs:    "results/bromination",
	}
}

func TestBatchWorker_RunsAndSaves(t *testing.T) {
	f := newFixture(t)
	f.expectBromination()

	require.NoError(t, f.worker.Handle(context.Background(), request()))
	f.api.AssertExpectations(t)

	data, err := os.ReadFile(filepath.Join(f.dir, "results", "bromination.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "input,status,prediction,confidence\n")
	assert.Contains(t, string(data), "Brc1ccccc1")

	assert.Equal(t, []string{"lab/bromination.csv"}, f.archive.keys)
	assert.Equal(t, data, f.archive.data[0])
	assert.Equal(t, []string{"b-1"}, f.claims.released)
}

func TestBatchWorker_SkipsClaimedBatch(t *testing.T) {
	f := newFixture(t)
	ok, err := f.claims.TryClaim(context.Background(), "b-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.worker.Handle(context.Background(), request()))
	assert.Zero(t, f.provider.calls)
	f.api.AssertNotCalled(t, "PredictReactionBatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestBatchWorker_RejectsForeignOrEmptyBatches(t *testing.T) {
	f := newFixture(t)

	req := request()
	req.Workspace = "other"
	assert.True(t, errors.IsValidation(f.worker.Handle(context.Background(), req)))

	req = request()
	req.Inputs = nil
	assert.True(t, errors.IsValidation(f.worker.Handle(context.Background(), req)))
	assert.Zero(t, f.provider.calls)
	assert.Empty(t, f.claims.released)
}

func TestBatchWorker_ProviderFailureReleasesClaim(t *testing.T) {
	f := newFixture(t)
	f.provider.err = errors.New(errors.ErrCodeRXNNotLoggedIn, "no RXN credentials")

	err := f.worker.Handle(context.Background(), request())
	assert.True(t, errors.IsCode(err, errors.ErrCodeRXNNotLoggedIn))
	assert.Equal(t, []string{"b-1"}, f.claims.released)
}
