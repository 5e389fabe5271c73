package middleware

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// APIKeyAuth accepts requests carrying one of a fixed set of keys, either
// as "X-API-Key" or as a bearer token.
type APIKeyAuth struct {
	mu   sync.RWMutex
	keys [][]byte
}

func normalizeKeys(keys []string) [][]byte {
	var out [][]byte
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, []byte(k))
		}
	}
	return out
}

// NewAPIKeyAuth returns nil when keys is empty, which leaves the API open.
func NewAPIKeyAuth(keys []string) *APIKeyAuth {
	normalized := normalizeKeys(keys)
	if len(normalized) == 0 {
		return nil
	}
	return &APIKeyAuth{keys: normalized}
}

// SetKeys replaces the accepted keys. An empty set is refused so that a
// bad reload cannot open the API.
func (a *APIKeyAuth) SetKeys(keys []string) bool {
	normalized := normalizeKeys(keys)
	if len(normalized) == 0 {
		return false
	}
	a.mu.Lock()
	a.keys = normalized
	a.mu.Unlock()
	return true
}

func extractKey(r *http.Request) string {
	if k := r.Header.Get("X-API-Key"); k != "" {
		return k
	}
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func (a *APIKeyAuth) valid(key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ok := false
	for _, k := range a.keys {
		if subtle.ConstantTimeCompare(k, []byte(key)) == 1 {
			ok = true
		}
	}
	return ok
}

// Handler rejects requests without a valid key with 401.
func (a *APIKeyAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractKey(r)
		if key == "" || !a.valid(key) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("WWW-Authenticate", `Bearer realm="openad"`)
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"code":    string(errors.ErrCodeUnauthorized),
				"message": "missing or invalid API key",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
