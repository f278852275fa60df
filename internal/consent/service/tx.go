package service

import (
	"context"
	"sync"
	"time"

	dErrors "medblock/pkg/domain-errors"
)

// numConsentShards spreads record-scoped transactions over independent locks.
const numConsentShards = 128

const defaultConsentTxTimeout = 5 * time.Second

type txRecordKey struct{}

// WithTxRecord scopes the next RunInTx on a sharded tx to recordID's shard.
func WithTxRecord(ctx context.Context, recordID string) context.Context {
	return context.WithValue(ctx, txRecordKey{}, recordID)
}

// ShardedTx serializes transactions per record using a fixed pool of
// mutexes. It is the transaction runner for in-memory stores.
type ShardedTx struct {
	shards  [numConsentShards]sync.Mutex
	store   Store
	timeout time.Duration
}

func NewShardedTx(store Store) *ShardedTx {
	return &ShardedTx{store: store, timeout: defaultConsentTxTimeout}
}

func (t *ShardedTx) RunInTx(ctx context.Context, fn func(ctx context.Context, store Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	shard := t.selectShard(ctx)
	t.shards[shard].Lock()
	defer t.shards[shard].Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	return fn(ctx, t.store)
}

func (t *ShardedTx) selectShard(ctx context.Context) int {
	if recordID, ok := ctx.Value(txRecordKey{}).(string); ok && recordID != "" {
		return int(fnv32(recordID) % numConsentShards)
	}
	return 0
}

// fnv32 is FNV-1a.
func fnv32(s string) uint32 {
	const (
		fnvOffset = 2166136261
		fnvPrime  = 16777619
	)
	h := uint32(fnvOffset)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= fnvPrime
	}
	return h
}
