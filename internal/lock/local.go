package lock

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker for single-node deployments. Expired
// holders lose the lock the same way a Redis key would time out.
type Local struct {
	mu    sync.Mutex
	held  map[string]localHold
	next  uint64
	nowFn func() time.Time
}

type localHold struct {
	token   uint64
	expires time.Time
}

type localLock struct {
	owner *Local
	key   string
	token uint64
}

func NewLocal() *Local {
	return &Local{held: map[string]localHold{}, nowFn: time.Now}
}

func (l *Local) TryLock(_ context.Context, key string, ttl time.Duration) (Lock, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	if h, ok := l.held[key]; ok && now.Before(h.expires) {
		return nil, false, nil
	}

	l.next++
	l.held[key] = localHold{token: l.next, expires: now.Add(ttl)}
	return &localLock{owner: l, key: key, token: l.next}, true, nil
}

func (k *localLock) Unlock(context.Context) error {
	k.owner.mu.Lock()
	defer k.owner.mu.Unlock()
	if h, ok := k.owner.held[k.key]; ok && h.token == k.token {
		delete(k.owner.held, k.key)
	}
	return nil
}
