package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

// ErrClaimNotHeld means the claim expired or was taken by another owner.
var ErrClaimNotHeld = errors.New(errors.ErrCodeCacheError, "batch claim not held by this owner")

var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// BatchClaims lets exactly one worker process a queued batch id at a time.
type BatchClaims struct {
	client *Client
	prefix string
	owner  string
}

// NewBatchClaims stores claims under prefix with a random owner id, so two
// BatchClaims never share ownership.
func NewBatchClaims(client *Client, prefix string) *BatchClaims {
	return &BatchClaims{client: client, prefix: prefix + "claim:", owner: uuid.NewString()}
}

func (b *BatchClaims) key(batchID string) string {
	return b.prefix + batchID
}

// TryClaim returns false when another owner holds the batch.
func (b *BatchClaims) TryClaim(ctx context.Context, batchID string, ttl time.Duration) (bool, error) {
	if b.client.isClosed() {
		return false, ErrClientClosed
	}
	ok, err := b.client.rdb.SetNX(ctx, b.key(batchID), b.owner, ttl).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeCacheError, "failed to claim batch")
	}
	return ok, nil
}

// Release drops a claim held by this owner.
func (b *BatchClaims) Release(ctx context.Context, batchID string) error {
	res, err := releaseScript.Run(ctx, b.client.rdb, []string{b.key(batchID)}, b.owner).Int64()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeCacheError, "failed to release batch claim")
	}
	if res == 0 {
		return ErrClaimNotHeld
	}
	return nil
}
