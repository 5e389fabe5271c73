package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/turtacn/OpenAD-Plugins/internal/domain/reaction"
	"github.com/turtacn/OpenAD-Plugins/internal/infrastructure/monitoring/logging"
)

const scanBatch = 200

// ResultCache implements reaction.ResultCache on Redis. Keys are
// <prefix><workspace>:rxn-<logical_name>--<key> and never expire.
type ResultCache struct {
	client    *Client
	namespace string
	logger    logging.Logger
	group     singleflight.Group
}

// NewResultCache scopes records to workspace under prefix.
func NewResultCache(client *Client, prefix, workspace string, log logging.Logger) *ResultCache {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &ResultCache{
		client:    client,
		namespace: prefix + workspace + ":",
		logger:    log.Named("redis_cache"),
	}
}

func (c *ResultCache) fullKey(logicalName, key string) string {
	return c.namespace + "rxn-" + logicalName + "--" + key
}

type record struct {
	Payload reaction.Payload `json:"payload"`
}

// Store saves payload under logicalName and key. Failures are logged and
// reported as false; a failed store never fails the prediction.
func (c *ResultCache) Store(ctx context.Context, logicalName, key string, payload reaction.Payload) bool {
	if c.client.isClosed() {
		c.logger.Warn("result not cached, client closed")
		return false
	}
	data, err := json.Marshal(record{Payload: payload})
	if err != nil {
		c.logger.Error("failed to encode cache record", logging.Err(err))
		return false
	}
	k := c.fullKey(logicalName, key)
	if err := c.client.rdb.Set(ctx, k, data, 0).Err(); err != nil {
		c.logger.Error("failed to save result as cache", logging.String("key", k), logging.Err(err))
		return false
	}
	return true
}

// Retrieve collapses concurrent lookups of the same key into one round trip.
func (c *ResultCache) Retrieve(ctx context.Context, logicalName, key string) (reaction.Payload, bool) {
	if c.client.isClosed() {
		return nil, false
	}
	k := c.fullKey(logicalName, key)
	v, err, _ := c.group.Do(k, func() (interface{}, error) {
		return c.client.rdb.Get(ctx, k).Bytes()
	})
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Debug("cache read failed", logging.String("key", k), logging.Err(err))
		}
		return nil, false
	}
	var rec record
	if err := json.Unmarshal(v.([]byte), &rec); err != nil || rec.Payload == nil {
		c.logger.Debug("cache record unreadable", logging.String("key", k))
		return nil, false
	}
	return rec.Payload, true
}

// ClearAll removes every record of the workspace. Matching keys are
// collected with SCAN before any is deleted; deleting between pages makes
// the cursor skip keys.
func (c *ResultCache) ClearAll(ctx context.Context) (int, error) {
	if c.client.isClosed() {
		return 0, ErrClientClosed
	}
	var (
		cursor uint64
		keys   []string
	)
	seen := make(map[string]struct{})
	match := escapePattern(c.namespace) + "rxn-*"
	for {
		page, next, err := c.client.rdb.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return 0, err
		}
		for _, k := range page {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	removed := 0
	for start := 0; start < len(keys); start += scanBatch {
		end := start + scanBatch
		if end > len(keys) {
			end = len(keys)
		}
		n, err := c.client.rdb.Del(ctx, keys[start:end]...).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
	}
	c.logger.Info("cache cleared", logging.Int("removed", removed))
	return removed, nil
}

// escapePattern quotes the glob metacharacters of a MATCH pattern so a
// workspace name is matched literally.
func escapePattern(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '\\', '*', '?', '[', ']':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

var _ reaction.ResultCache = (*ResultCache)(nil)
