package cache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

var ErrNotFound = errors.New("cache entry not found")

// Key identifies a cached request.
type Key struct {
	Method string
	URL    string
}

func NewKey(method, url string) Key {
	if method == "" {
		method = http.MethodGet
	}
	return Key{Method: strings.ToUpper(method), URL: url}
}

func (k Key) String() string {
	return k.Method + " " + k.URL
}

// ParseKey is the inverse of Key.String.
func ParseKey(s string) (Key, bool) {
	method, url, ok := strings.Cut(s, " ")
	if !ok || method == "" || url == "" {
		return Key{}, false
	}
	return Key{Method: method, URL: url}, true
}

// Entry is a stored response snapshot. Entries are never mutated in place;
// storing under an existing key replaces the previous snapshot.
type Entry struct {
	Status   int
	Header   http.Header
	Body     []byte
	StoredAt time.Time
}

func (e Entry) OK() bool {
	return e.Status >= 200 && e.Status <= 299
}

func (e Entry) Clone() Entry {
	out := Entry{Status: e.Status, StoredAt: e.StoredAt}
	if e.Header != nil {
		out.Header = e.Header.Clone()
	}
	if e.Body != nil {
		out.Body = append([]byte(nil), e.Body...)
	}
	return out
}

// Generation is one named cache. Each Put and Match is atomic on its own;
// nothing orders concurrent writers to the same key.
type Generation interface {
	Name() string
	Match(ctx context.Context, key Key) (Entry, error)
	Put(ctx context.Context, key Key, entry Entry) error
	Keys(ctx context.Context) ([]Key, error)
}

// Storage holds every generation known to the worker.
type Storage interface {
	// Open returns the named generation, creating it if absent.
	Open(ctx context.Context, name string) (Generation, error)
	Has(ctx context.Context, name string) (bool, error)
	Names(ctx context.Context) ([]string, error)
	// Delete removes the generation and all of its entries. It reports
	// whether the generation existed.
	Delete(ctx context.Context, name string) (bool, error)
}
