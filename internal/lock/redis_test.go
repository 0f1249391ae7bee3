package lock

import (
	"context"
	"os"
	"testing"
	"time"
)

func redisLocker(t *testing.T) (*Redis, string) {
	t.Helper()
	addr := os.Getenv("VOICENOTES_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VOICENOTES_TEST_REDIS_ADDR not set")
	}
	client := NewRedisClient(addr, "", 0)
	t.Cleanup(func() { _ = client.Close() })
	key := "voicenotes-test:" + t.Name()
	t.Cleanup(func() { _ = client.Del(context.Background(), key).Err() })
	return NewRedis(client), key
}

func TestRedisExclusive(t *testing.T) {
	ctx := context.Background()
	l, key := redisLocker(t)

	first, ok, err := l.TryLock(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expected first lock, got ok=%v err=%v", ok, err)
	}
	if _, ok, err := l.TryLock(ctx, key, time.Minute); err != nil || ok {
		t.Fatalf("second lock should fail while held, got ok=%v err=%v", ok, err)
	}
	if err := first.Unlock(ctx); err != nil {
		t.Fatal(err)
	}
	second, ok, err := l.TryLock(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("lock should be free after unlock, got ok=%v err=%v", ok, err)
	}
	_ = second.Unlock(ctx)
}

func TestRedisUnlockKeepsOtherHolder(t *testing.T) {
	ctx := context.Background()
	l, key := redisLocker(t)

	stale, ok, err := l.TryLock(ctx, key, 50*time.Millisecond)
	if err != nil || !ok {
		t.Fatalf("expected lock, got ok=%v err=%v", ok, err)
	}
	time.Sleep(150 * time.Millisecond)

	current, ok, err := l.TryLock(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("expired lock should be free, got ok=%v err=%v", ok, err)
	}
	if err := stale.Unlock(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := l.TryLock(ctx, key, time.Minute); ok {
		t.Fatal("stale holder released the current lock")
	}
	_ = current.Unlock(ctx)
}
