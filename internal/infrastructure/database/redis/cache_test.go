package redis

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/testutil"
	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

type ResultCacheSuite struct {
	suite.Suite
	mr     *miniredis.Miniredis
	client *Client
	cache  *ResultCache
	log    *testutil.RecordingLogger
	ctx    context.Context
}

func (s *ResultCacheSuite) SetupTest() {
	s.mr = miniredis.RunT(s.T())
	s.log = testutil.NewRecordingLogger()
	s.client = NewClientFromUniversal(goredis.NewClient(&goredis.Options{Addr: s.mr.Addr()}), s.log)
	s.cache = NewResultCache(s.client, "openad:", "DEFAULT", s.log)
	s.ctx = context.Background()
}

func (s *ResultCacheSuite) TearDownTest() {
	s.client.Close()
}

func TestResultCacheSuite(t *testing.T) {
	suite.Run(t, new(ResultCacheSuite))
}

func (s *ResultCacheSuite) TestStoreAndRetrieve() {
	payload := reaction.Payload{"smiles": "BrBr.c1ccccc1>>Brc1ccccc1", "confidence": 0.97}

	s.True(s.cache.Store(s.ctx, "predict-reaction-2020-08-10", "BrBr.c1ccccc1", payload))
	s.True(s.mr.Exists("openad:DEFAULT:rxn-predict-reaction-2020-08-10--BrBr.c1ccccc1"))

	got, ok := s.cache.Retrieve(s.ctx, "predict-reaction-2020-08-10", "BrBr.c1ccccc1")
	s.Require().True(ok)
	s.Equal("BrBr.c1ccccc1>>Brc1ccccc1", got.Smiles())
	c, ok := got.Confidence()
	s.True(ok)
	s.InDelta(0.97, c, 1e-9)
}

func (s *ResultCacheSuite) TestRetrieve_Missing() {
	got, ok := s.cache.Retrieve(s.ctx, "predict-reaction-2020-08-10", "CC.O")
	s.False(ok)
	s.Nil(got)
}

func (s *ResultCacheSuite) TestRetrieve_CorruptRecord() {
	s.Require().NoError(s.mr.Set("openad:DEFAULT:rxn-predict-reaction-2020-08-10--CC.O", "not json"))
	_, ok := s.cache.Retrieve(s.ctx, "predict-reaction-2020-08-10", "CC.O")
	s.False(ok)
}

func (s *ResultCacheSuite) TestRetrieve_NullPayload() {
	s.Require().NoError(s.mr.Set("openad:DEFAULT:rxn-predict-reaction-2020-08-10--CC.O", `{"payload":null}`))
	_, ok := s.cache.Retrieve(s.ctx, "predict-reaction-2020-08-10", "CC.O")
	s.False(ok)
}

func (s *ResultCacheSuite) TestStore_ServerErrorIsReported() {
	s.mr.SetError("READONLY")
	ok := s.cache.Store(s.ctx, "predict-reaction-2020-08-10", "CC.O", reaction.Payload{"smiles": "x"})
	s.False(ok)
	s.True(s.log.Has("error", "failed to save result as cache"))
	s.mr.SetError("")
}

func (s *ResultCacheSuite) TestWorkspacesAreIsolated() {
	other := NewResultCache(s.client, "openad:", "OTHER", nil)
	s.True(s.cache.Store(s.ctx, "n", "k", reaction.Payload{"smiles": "a"}))
	_, ok := other.Retrieve(s.ctx, "n", "k")
	s.False(ok)
}

func (s *ResultCacheSuite) TestClearAll() {
	for i := 0; i < 450; i++ {
		s.Require().True(s.cache.Store(s.ctx, "predict-reaction-2020-08-10", fmt.Sprintf("C%d.O", i), reaction.Payload{"smiles": "x"}))
	}
	other := NewResultCache(s.client, "openad:", "OTHER", nil)
	s.Require().True(other.Store(s.ctx, "n", "k", reaction.Payload{"smiles": "a"}))

	n, err := s.cache.ClearAll(s.ctx)
	s.Require().NoError(err)
	s.Equal(450, n)

	_, ok := other.Retrieve(s.ctx, "n", "k")
	s.True(ok)

	n, err = s.cache.ClearAll(s.ctx)
	s.Require().NoError(err)
	s.Zero(n)
}

func (s *ResultCacheSuite) TestClearAll_WorkspaceNameIsLiteral() {
	for _, ws := range []string{"PROJ_*", "PROJ_?", "PROJ_[AB]"} {
		wild := NewResultCache(s.client, "openad:", ws, nil)
		victim := NewResultCache(s.client, "openad:", "PROJ_B", nil)
		s.Require().True(wild.Store(s.ctx, "n", "own", reaction.Payload{"smiles": "a"}))
		s.Require().True(victim.Store(s.ctx, "n", "k", reaction.Payload{"smiles": "b"}))

		n, err := wild.ClearAll(s.ctx)
		s.Require().NoError(err)
		s.Equal(1, n, ws)

		_, ok := victim.Retrieve(s.ctx, "n", "k")
		s.True(ok, ws)
		_, ok = wild.Retrieve(s.ctx, "n", "own")
		s.False(ok, ws)
	}
}

func TestEscapePattern(t *testing.T) {
	assert.Equal(t, "openad:DEFAULT:", escapePattern("openad:DEFAULT:"))
	assert.Equal(t, `a\*b\?c\[d\]e\\`, escapePattern(`a*b?c[d]e\`))
}

func (s *ResultCacheSuite) TestClosedClient() {
	s.Require().NoError(s.client.Close())
	s.False(s.cache.Store(s.ctx, "n", "k", reaction.Payload{"smiles": "a"}))
	_, ok := s.cache.Retrieve(s.ctx, "n", "k")
	s.False(ok)
	_, err := s.cache.ClearAll(s.ctx)
	s.ErrorIs(err, ErrClientClosed)
	s.ErrorIs(s.client.Ping(s.ctx), ErrClientClosed)
	s.NoError(s.client.Close())
}

func TestBatchClaims(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	client := NewClientFromUniversal(rdb, nil)
	defer client.Close()
	ctx := context.Background()

	first := NewBatchClaims(client, "openad:")
	second := NewBatchClaims(client, "openad:")

	ok, err := first.TryClaim(ctx, "batch-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryClaim(ctx, "batch-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, second.Release(ctx, "batch-1"), ErrClaimNotHeld)
	require.NoError(t, first.Release(ctx, "batch-1"))

	ok, err = second.TryClaim(ctx, "batch-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = first.TryClaim(ctx, "batch-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewClient_ConnectionFailure(t *testing.T) {
	_, err := NewClient(configFor("127.0.0.1:1"), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeCacheError))
	assert.Contains(t, err.Error(), "redis connection failed")
}

func TestNewClient_Connects(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := NewClient(configFor(mr.Addr()), nil)
	require.NoError(t, err)
	defer c.Close()
	assert.NoError(t, c.Ping(context.Background()))
	assert.NotNil(t, c.Underlying())
}
