package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	runLockKey        = "notifier:dispatch:runlock"
	defaultLockExpiry = 30 * time.Minute
)

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock is a Redis advisory lock serializing dispatch runs across
// processes that share the history store. The dedup check-then-record
// sequence is not linearizable across concurrent runs, so only one run
// may be active at a time. The expiry guards against a crashed holder
// wedging dispatching forever.
type RunLock struct {
	client *goredis.Client
	token  string
	expiry time.Duration
}

func NewRunLock(client *goredis.Client, token string) (*RunLock, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if token == "" {
		return nil, fmt.Errorf("lock token is required")
	}

	return &RunLock{
		client: client,
		token:  token,
		expiry: defaultLockExpiry,
	}, nil
}

// Acquire takes the lock if free. It does not block or retry; an occupied
// lock means another run is in progress and the caller reports that.
func (l *RunLock) Acquire(ctx context.Context) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("run lock is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	ok, err := l.client.SetNX(ctx, runLockKey, l.token, l.expiry).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire run lock: %w", err)
	}
	return ok, nil
}

// Release frees the lock only if this instance still holds it, so an
// expired lock taken over by another process is never stolen back.
func (l *RunLock) Release(ctx context.Context) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("run lock is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := releaseScript.Run(ctx, l.client, []string{runLockKey}, l.token).Err(); err != nil {
		return fmt.Errorf("failed to release run lock: %w", err)
	}
	return nil
}
