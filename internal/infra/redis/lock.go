package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"ai-playground/internal/domain"
)

// keyLock is a single-holder lease on a Redis key. The holder writes a random
// token with SET NX PX; only the same token can release it, and an abandoned
// lease expires on its own.
type keyLock struct {
	cli   *redis.Client
	lease time.Duration
	wait  time.Duration // how long acquire keeps retrying
}

func newKeyLock(cli *redis.Client, lease, wait time.Duration) *keyLock {
	return &keyLock{cli: cli, lease: lease, wait: wait}
}

// acquire blocks until the lease is taken, ctx ends, or the wait budget runs
// out (domain.ErrSessionBusy). Retries back off from 10ms up to 200ms.
func (l *keyLock) acquire(ctx context.Context, k string) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	pause := 10 * time.Millisecond
	for {
		ok, err := l.cli.SetNX(ctx, k, token, l.lease).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return func() { l.release(k, token) }, nil
		}
		if time.Now().Add(pause).After(deadline) {
			return nil, domain.ErrSessionBusy
		}
		t := time.NewTimer(pause)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
		if pause *= 2; pause > 200*time.Millisecond {
			pause = 200 * time.Millisecond
		}
	}
}

var releaseIfOwner = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// release runs on its own short context so a cancelled request still frees
// the lease.
func (l *keyLock) release(k, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = releaseIfOwner.Run(ctx, l.cli, []string{k}, token).Err()
}
