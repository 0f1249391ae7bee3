package cache

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/redis/go-redis/v9"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	out := map[string]Storage{"memory": NewMemory()}

	db, err := NewSQLite(filepath.Join(t.TempDir(), "cache_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	out["sqlite"] = db

	if addr := os.Getenv("VOICENOTES_TEST_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })
		prefix := "voicenotes-test:" + t.Name()
		r := NewRedis(client, prefix)
		t.Cleanup(func() {
			ctx := context.Background()
			names, _ := r.Names(ctx)
			for _, n := range names {
				_, _ = r.Delete(ctx, n)
			}
		})
		out["redis"] = r
	}
	return out
}

func TestStoragePutMatch(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			gen, err := s.Open(ctx, "v1")
			if err != nil {
				t.Fatal(err)
			}
			key := NewKey("get", "http://app.test/style.css")
			if key.Method != http.MethodGet {
				t.Fatalf("expected upper-cased method, got %q", key.Method)
			}

			if _, err := gen.Match(ctx, key); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			entry := Entry{
				Status: http.StatusOK,
				Header: http.Header{"Content-Type": {"text/css"}},
				Body:   []byte("body{}"),
			}
			if err := gen.Put(ctx, key, entry); err != nil {
				t.Fatal(err)
			}

			got, err := gen.Match(ctx, key)
			if err != nil {
				t.Fatal(err)
			}
			if got.Status != http.StatusOK || string(got.Body) != "body{}" {
				t.Errorf("unexpected entry: %+v", got)
			}
			if got.Header.Get("Content-Type") != "text/css" {
				t.Errorf("expected content type to round-trip, got %q", got.Header.Get("Content-Type"))
			}
			if got.StoredAt.IsZero() {
				t.Error("expected StoredAt to be set")
			}

			entry.Body = []byte("body{color:red}")
			if err := gen.Put(ctx, key, entry); err != nil {
				t.Fatal(err)
			}
			got, _ = gen.Match(ctx, key)
			if string(got.Body) != "body{color:red}" {
				t.Errorf("expected overwrite, got %q", got.Body)
			}

			keys, err := gen.Keys(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(keys) != 1 || keys[0] != key {
				t.Errorf("unexpected keys: %v", keys)
			}
		})
	}
}

func TestStorageDeleteGeneration(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			old, _ := s.Open(ctx, "v1")
			_ = old.Put(ctx, NewKey("GET", "http://app.test/"), Entry{Status: 200, Body: []byte("old")})
			if _, err := s.Open(ctx, "v2"); err != nil {
				t.Fatal(err)
			}

			names, err := s.Names(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if len(names) != 2 || names[0] != "v1" || names[1] != "v2" {
				t.Fatalf("unexpected names: %v", names)
			}

			deleted, err := s.Delete(ctx, "v1")
			if err != nil {
				t.Fatal(err)
			}
			if !deleted {
				t.Error("expected v1 to be reported as deleted")
			}
			if ok, _ := s.Has(ctx, "v1"); ok {
				t.Error("v1 should be gone")
			}
			deleted, _ = s.Delete(ctx, "v1")
			if deleted {
				t.Error("second delete should report false")
			}

			reopened, _ := s.Open(ctx, "v1")
			keys, _ := reopened.Keys(ctx)
			if len(keys) != 0 {
				t.Errorf("recreated generation should be empty, got %v", keys)
			}
		})
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			a, _ := s.Open(ctx, "v1")
			_ = a.Put(ctx, NewKey("GET", "http://app.test/a"), Entry{Status: 200})
			b, _ := s.Open(ctx, "v1")
			keys, _ := b.Keys(ctx)
			if len(keys) != 1 {
				t.Errorf("reopen should see existing entries, got %v", keys)
			}
			names, _ := s.Names(ctx)
			if len(names) != 1 {
				t.Errorf("expected a single generation, got %v", names)
			}
		})
	}
}

func TestParseKey(t *testing.T) {
	k, ok := ParseKey("GET http://app.test/a b")
	if !ok || k.Method != "GET" || k.URL != "http://app.test/a b" {
		t.Errorf("unexpected parse: %+v %v", k, ok)
	}
	if _, ok := ParseKey("GET"); ok {
		t.Error("expected failure without url")
	}
}

func TestEntryClone(t *testing.T) {
	e := Entry{Status: 200, Header: http.Header{"X": {"1"}}, Body: []byte("a")}
	c := e.Clone()
	c.Body[0] = 'b'
	c.Header.Set("X", "2")
	if string(e.Body) != "a" || e.Header.Get("X") != "1" {
		t.Error("clone shares memory with original")
	}
	if !e.OK() || (Entry{Status: 404}).OK() {
		t.Error("OK() range is wrong")
	}
}

func TestHeaderMetaFallsBackToRepresentationHeaders(t *testing.T) {
	h := http.Header{"Content-Type": {"text/html"}}
	for i := 0; i < 200; i++ {
		h.Add("X-Padding", "0123456789")
	}
	raw := encodeHeaderMeta(h)
	if raw == "" {
		t.Fatal("expected reduced header metadata")
	}
	got := decodeHeaderMeta(map[string]string{headerMetaKey: raw})
	if got.Get("Content-Type") != "text/html" {
		t.Errorf("content type lost: %v", got)
	}
	if got.Get("X-Padding") != "" {
		t.Error("padding headers should be dropped")
	}
}
