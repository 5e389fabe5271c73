package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Test Helpers
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) *Client {
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, "test-api-key", opts...)
	require.NoError(t, err)
	return client
}

type testLogger struct {
	lastMsg string
	count   int32
}

func (l *testLogger) Debugf(format string, args ...interface{}) { l.log(format, args...) }
func (l *testLogger) Infof(format string, args ...interface{})  { l.log(format, args...) }
func (l *testLogger) Errorf(format string, args ...interface{}) { l.log(format, args...) }

func (l *testLogger) log(format string, args ...interface{}) {
	atomic.AddInt32(&l.count, 1)
	l.lastMsg = fmt.Sprintf(format, args...)
}

// ---------------------------------------------------------------------------
// Constructor
// ---------------------------------------------------------------------------

func TestNewClient_Success(t *testing.T) {
	c, err := NewClient("https://rxn.example.com/", "key")
	require.NoError(t, err)
	assert.Equal(t, "https://rxn.example.com", c.BaseURL())
	assert.Zero(t, c.retryMax)
	assert.Contains(t, c.userAgent, "openad-go-sdk/")
}

func TestNewClient_InvalidConfig(t *testing.T) {
	cases := []struct{ host, key string }{
		{"", "key"},
		{"https://rxn.example.com", ""},
		{"ftp://rxn.example.com", "key"},
		{"no-scheme", "key"},
	}
	for _, tc := range cases {
		_, err := NewClient(tc.host, tc.key)
		assert.ErrorIs(t, err, ErrInvalidConfig, "%s/%s", tc.host, tc.key)
	}
}

func TestNewClient_WithOptions(t *testing.T) {
	custom := &http.Client{Timeout: 10 * time.Second}
	logger := &testLogger{}
	c, err := NewClient("http://api.example.com", "key",
		WithHTTPClient(custom),
		WithLogger(logger),
		WithRetryMax(2),
		WithRetryWait(time.Millisecond, 2*time.Millisecond),
		WithUserAgent("openad-cli/1"),
		WithTimeout(3*time.Second),
	)
	require.NoError(t, err)
	assert.Same(t, custom, c.httpClient)
	assert.Equal(t, logger, c.logger)
	assert.Equal(t, 2, c.retryMax)
	assert.Equal(t, time.Millisecond, c.retryWaitMin)
	assert.Equal(t, 2*time.Millisecond, c.retryWaitMax)
	assert.Equal(t, "openad-cli/1", c.userAgent)
	assert.Equal(t, 3*time.Second, custom.Timeout)
}

func TestOptions_IgnoreInvalidValues(t *testing.T) {
	c, err := NewClient("http://api.example.com", "key",
		WithHTTPClient(nil),
		WithLogger(nil),
		WithRetryMax(-1),
		WithRetryWait(0, time.Second),
		WithUserAgent(""),
	)
	require.NoError(t, err)
	assert.NotNil(t, c.httpClient)
	assert.NotNil(t, c.logger)
	assert.Zero(t, c.retryMax)
	assert.Equal(t, 500*time.Millisecond, c.retryWaitMin)
	assert.Contains(t, c.userAgent, "openad-go-sdk/")
}

func TestWithInsecureSkipVerify(t *testing.T) {
	c, err := NewClient("https://api.example.com", "key", WithInsecureSkipVerify(false))
	require.NoError(t, err)
	tr, ok := c.httpClient.Transport.(*http.Transport)
	require.True(t, ok)
	assert.True(t, tr.TLSClientConfig.InsecureSkipVerify)

	c, err = NewClient("https://api.example.com", "key", WithInsecureSkipVerify(true))
	require.NoError(t, err)
	assert.Nil(t, c.httpClient.Transport)
}

// ---------------------------------------------------------------------------
// do
// ---------------------------------------------------------------------------

func TestClient_Do_Headers(t *testing.T) {
	for _, tc := range []struct {
		scheme AuthScheme
		want   string
	}{
		{AuthRawKey, "test-api-key"},
		{AuthBearer, "Bearer test-api-key"},
	} {
		handler := func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, tc.want, r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
			w.WriteHeader(http.StatusOK)
		}
		c := newTestClient(t, handler, withAuth(tc.scheme))
		require.NoError(t, c.get(context.Background(), "ping", nil))
	}
}

func TestClient_Do_EmptyBodyLeavesResultZero(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	var out TaskResponse
	require.NoError(t, c.post(context.Background(), "/x", map[string]string{"a": "b"}, &out))
	assert.Empty(t, out.TaskID)
}

func TestClient_Do_4xxNotRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"code":"NOT_FOUND","message":"missing"}`))
	}, WithRetryMax(3), WithRetryWait(time.Millisecond, time.Millisecond))

	err := c.get(context.Background(), "/x", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsNotFound())
	assert.Equal(t, "missing", apiErr.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_Do_5xxRetried(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream"))
			return
		}
		w.Write([]byte(`{"task_id":"t-1"}`))
	}, WithRetryMax(3), WithRetryWait(time.Millisecond, time.Millisecond))

	var out TaskResponse
	require.NoError(t, c.get(context.Background(), "/x", &out))
	assert.Equal(t, "t-1", out.TaskID)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_Do_5xxExhausted(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"detail":"maintenance"}`))
	})
	err := c.get(context.Background(), "/x", nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsServerError())
	assert.Equal(t, "maintenance", apiErr.Message)
}

func TestClient_Do_UnauthorizedAndForbidden(t *testing.T) {
	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		status := status
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		})
		err := c.get(context.Background(), "/x", nil)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.True(t, apiErr.IsUnauthorized())
	}
}

func TestClient_Do_MalformedJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	})
	var out TaskResponse
	err := c.get(context.Background(), "/x", &out)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal response")
}

func TestClient_Do_ContextCancelledDuringBackoff(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, WithRetryMax(5), WithRetryWait(time.Second, time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.get(ctx, "/x", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCalculateBackoff_Capped(t *testing.T) {
	c := &Client{retryWaitMin: 100 * time.Millisecond, retryWaitMax: 300 * time.Millisecond}
	for attempt := 1; attempt < 6; attempt++ {
		d := c.calculateBackoff(attempt)
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.LessOrEqual(t, d, 375*time.Millisecond)
	}
}
