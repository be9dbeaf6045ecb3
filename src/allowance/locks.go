package allowance

import (
	"context"
	"strconv"
	"sync"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

// DispatchLock records the last block at which the scheduler dispatched a
// state-changing submission. Redundant scheduler instances share it; the
// grace-period check against it is the first of two dedup layers (the
// replay gate is the second).
type DispatchLock interface {
	LastDispatched(ctx context.Context) (uint64, bool, error)
	MarkDispatched(ctx context.Context, block uint64) error
}

const dispatchLockKey = "mpower_dispatch_block"

type RedisDispatchLock struct {
	client *redis.Client
	key    string
}

func NewRedisDispatchLock(client *redis.Client) *RedisDispatchLock {
	return &RedisDispatchLock{
		client: client,
		key:    dispatchLockKey,
	}
}

func (rl *RedisDispatchLock) LastDispatched(ctx context.Context) (uint64, bool, error) {
	val, err := rl.client.Get(ctx, rl.key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "failed reading dispatch lock from redis")
	}
	block, err := strconv.ParseUint(val, 10, 64)
	if err != nil {
		return 0, false, errors.Wrapf(err, "dispatch lock holds non-numeric value %q", val)
	}
	return block, true, nil
}

func (rl *RedisDispatchLock) MarkDispatched(ctx context.Context, block uint64) error {
	err := rl.client.Set(ctx, rl.key, strconv.FormatUint(block, 10), 0).Err()
	return errors.Wrap(err, "failed writing dispatch lock to redis")
}

// MemoryDispatchLock backs tests and mock mode.
type MemoryDispatchLock struct {
	mu    sync.Mutex
	block uint64
	set   bool
}

func NewMemoryDispatchLock() *MemoryDispatchLock {
	return &MemoryDispatchLock{}
}

func (ml *MemoryDispatchLock) LastDispatched(ctx context.Context) (uint64, bool, error) {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	return ml.block, ml.set, nil
}

func (ml *MemoryDispatchLock) MarkDispatched(ctx context.Context, block uint64) error {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	ml.block = block
	ml.set = true
	return nil
}
