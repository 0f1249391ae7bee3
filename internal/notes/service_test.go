package notes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func newTestService(t *testing.T, kv KV) *Service {
	t.Helper()
	s := NewService(kv)
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.nowFn = func() time.Time {
		now = now.Add(time.Second)
		return now
	}
	n := 0
	s.newID = func() string {
		n++
		return fmt.Sprintf("note-%d", n)
	}
	return s
}

func kvs(t *testing.T) map[string]KV {
	t.Helper()
	db, err := NewSQLiteKV(filepath.Join(t.TempDir(), "notes_test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	out := map[string]KV{"memory": NewMemoryKV(), "sqlite": db}

	if addr := os.Getenv("VOICENOTES_TEST_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		t.Cleanup(func() { _ = client.Close() })
		r := NewRedisKV(client, "voicenotes-test:"+t.Name()+":")
		t.Cleanup(func() { _ = r.Delete(context.Background(), storageKey) })
		out["redis"] = r
	}
	return out
}

func TestCreateListNewestFirst(t *testing.T) {
	ctx := context.Background()
	for name, kv := range kvs(t) {
		t.Run(name, func(t *testing.T) {
			s := newTestService(t, kv)
			if _, err := s.Create(ctx, "Groceries", "milk, eggs"); err != nil {
				t.Fatal(err)
			}
			second, err := s.Create(ctx, "  ", " call the plumber ")
			if err != nil {
				t.Fatal(err)
			}
			if second.Title != DefaultTitle || second.Content != "call the plumber" {
				t.Errorf("unexpected note %+v", second)
			}

			list, err := s.List(ctx, "")
			if err != nil {
				t.Fatal(err)
			}
			if len(list) != 2 || list[0].ID != second.ID {
				t.Fatalf("expected newest first, got %+v", list)
			}
		})
	}
}

func TestCreateRejectsEmptyContent(t *testing.T) {
	s := newTestService(t, NewMemoryKV())
	if _, err := s.Create(context.Background(), "title", "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestUpdateDeleteGet(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryKV())
	n, _ := s.Create(ctx, "Draft", "first version")

	updated, err := s.Update(ctx, n.ID, "Final", "second version")
	if err != nil {
		t.Fatal(err)
	}
	if updated.Title != "Final" || !updated.UpdatedAt.After(n.UpdatedAt) || !updated.CreatedAt.Equal(n.CreatedAt) {
		t.Errorf("unexpected update result %+v", updated)
	}
	got, err := s.Get(ctx, n.ID)
	if err != nil || got.Content != "second version" {
		t.Fatalf("expected persisted update, got %+v %v", got, err)
	}

	if _, err := s.Update(ctx, "nope", "x", "y"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, n.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected deleted note to be gone, got %v", err)
	}
	if err := s.Delete(ctx, n.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestListSearch(t *testing.T) {
	ctx := context.Background()
	s := newTestService(t, NewMemoryKV())
	_, _ = s.Create(ctx, "Shopping", "Milk and bread")
	_, _ = s.Create(ctx, "Meeting", "Discuss the BUDGET")
	_, _ = s.Create(ctx, "Ideas", "app for dictation")

	cases := map[string]int{"milk": 1, "budget": 1, "MEET": 1, "i": 3, "zzz": 0}
	for q, want := range cases {
		got, err := s.List(ctx, q)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != want {
			t.Errorf("List(%q) returned %d notes, want %d", q, len(got), want)
		}
	}
}

func TestLoadCorruptBlob(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	_ = kv.Put(ctx, storageKey, []byte("{not json"))
	s := newTestService(t, kv)
	if _, err := s.List(ctx, ""); err == nil {
		t.Fatal("expected decode error")
	}
}
