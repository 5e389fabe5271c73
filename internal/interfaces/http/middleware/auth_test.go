package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAPIKeyAuth_NoKeys(t *testing.T) {
	assert.Nil(t, NewAPIKeyAuth(nil))
	assert.Nil(t, NewAPIKeyAuth([]string{"", "  "}))
	assert.NotNil(t, NewAPIKeyAuth([]string{"k1"}))
}

func TestAPIKeyAuth_Handler(t *testing.T) {
	auth := NewAPIKeyAuth([]string{"k1", " k2 "})
	require.NotNil(t, auth)

	h := auth.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"api key header", "X-API-Key", "k1", http.StatusNoContent},
		{"trimmed key", "X-API-Key", "k2", http.StatusNoContent},
		{"bearer", "Authorization", "Bearer k2", http.StatusNoContent},
		{"bearer lower case", "Authorization", "bearer k1", http.StatusNoContent},
		{"basic scheme", "Authorization", "Basic k1", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/rxn/models", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusUnauthorized {
				assert.JSONEq(t, `{"code":"COMMON_003","message":"missing or invalid API key"}`, rec.Body.String())
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestAPIKeyAuth_SetKeys(t *testing.T) {
	auth := NewAPIKeyAuth([]string{"old"})
	require.NotNil(t, auth)

	assert.False(t, auth.SetKeys([]string{" "}))
	assert.True(t, auth.valid("old"))

	assert.True(t, auth.SetKeys([]string{"new"}))
	assert.False(t, auth.valid("old"))
	assert.True(t, auth.valid("new"))
}
