package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis keeps the generation names in a set and each generation's entries
// in its own hash, field = Key.String().
type Redis struct {
	client *redis.Client
	prefix string
}

type redisEntry struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt int64       `json:"stored_at"`
}

func NewRedis(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "voicenotes"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) namesKey() string {
	return r.prefix + ":generations"
}

func (r *Redis) generationKey(name string) string {
	return r.prefix + ":generation:" + name
}

func (r *Redis) Open(ctx context.Context, name string) (Generation, error) {
	if err := r.client.SAdd(ctx, r.namesKey(), name).Err(); err != nil {
		return nil, fmt.Errorf("open generation %q: %w", name, err)
	}
	return &redisGeneration{client: r.client, name: name, key: r.generationKey(name)}, nil
}

func (r *Redis) Has(ctx context.Context, name string) (bool, error) {
	return r.client.SIsMember(ctx, r.namesKey(), name).Result()
}

func (r *Redis) Names(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.namesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list generations: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *Redis) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.generationKey(name))
		removed = pipe.SRem(ctx, r.namesKey(), name)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete generation %q: %w", name, err)
	}
	return removed.Val() > 0, nil
}

type redisGeneration struct {
	client *redis.Client
	name   string
	key    string
}

func (g *redisGeneration) Name() string { return g.name }

func (g *redisGeneration) Match(ctx context.Context, key Key) (Entry, error) {
	raw, err := g.client.HGet(ctx, g.key, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("cache match: %w", err)
	}
	var stored redisEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Entry{}, fmt.Errorf("decode cached entry: %w", err)
	}
	return Entry{
		Status:   stored.Status,
		Header:   stored.Header,
		Body:     stored.Body,
		StoredAt: time.Unix(0, stored.StoredAt).UTC(),
	}, nil
}

func (g *redisGeneration) Put(ctx context.Context, key Key, entry Entry) error {
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}
	raw, err := json.Marshal(redisEntry{
		Status:   entry.Status,
		Header:   entry.Header,
		Body:     entry.Body,
		StoredAt: storedAt.UnixNano(),
	})
	if err != nil {
		return fmt.Errorf("encode entry: %w", err)
	}
	if err := g.client.HSet(ctx, g.key, key.String(), raw).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

func (g *redisGeneration) Keys(ctx context.Context) ([]Key, error) {
	fields, err := g.client.HKeys(ctx, g.key).Result()
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	keys := make([]Key, 0, len(fields))
	for _, f := range fields {
		if k, ok := ParseKey(f); ok {
			keys = append(keys, k)
		}
	}
	sortKeys(keys)
	return keys, nil
}
