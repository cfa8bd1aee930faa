package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RunLocker enforces at most one concurrent index attempt per CCP.
type RunLocker interface {
	Acquire(ctx context.Context, ccpID string) (token string, ok bool, err error)
	Extend(ctx context.Context, ccpID, token string) error
	Release(ctx context.Context, ccpID, token string) error
}

// RedisRunLock is a SETNX lock with a TTL and ownership-checked release, so
// a crashed worker's lock expires instead of wedging the CCP, and a slow
// worker cannot release a lock it lost.
type RedisRunLock struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisRunLock(client *redis.Client, ttl time.Duration) *RedisRunLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisRunLock{client: client, ttl: ttl}
}

func lockKey(ccpID string) string { return "beacon:lock:ccp:" + ccpID }

func (l *RedisRunLock) Acquire(ctx context.Context, ccpID string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(ccpID), token, l.ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire run lock: %w", err)
	}
	return token, ok, nil
}

func (l *RedisRunLock) Extend(ctx context.Context, ccpID, token string) error {
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		end
		return 0`
	err := l.client.Eval(ctx, script, []string{lockKey(ccpID)}, token, l.ttl.Milliseconds()).Err()
	if err != nil {
		return fmt.Errorf("extend run lock: %w", err)
	}
	return nil
}

func (l *RedisRunLock) Release(ctx context.Context, ccpID, token string) error {
	const script = `
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0`
	err := l.client.Eval(ctx, script, []string{lockKey(ccpID)}, token).Err()
	if err != nil {
		return fmt.Errorf("release run lock: %w", err)
	}
	return nil
}
