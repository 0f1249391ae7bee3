package worker

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/52poke/voicenotes/internal/cache"
	"github.com/52poke/voicenotes/internal/metrics"
)

type Source string

const (
	SourceCache    Source = "cache"
	SourceNetwork  Source = "network"
	SourceFallback Source = "fallback"
	SourceOffline  Source = "offline"
)

const offlineBody = "Offline - no connection"

type Request struct {
	Method string
	URL    string
	Header http.Header
}

func (r Request) key() cache.Key {
	return cache.NewKey(r.Method, r.URL)
}

type Response struct {
	cache.Entry
	Source Source
}

// Strategy answers an intercepted request.
type Strategy func(ctx context.Context, req Request) (Response, error)

func IsNetworkScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	return scheme == "http" || scheme == "https"
}

// ServiceUnavailable is returned when neither the cache nor the network can
// answer and the fallback document is not cached either.
func ServiceUnavailable() cache.Entry {
	return cache.Entry{
		Status: http.StatusServiceUnavailable,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte(offlineBody),
	}
}

func (w *Worker) current(ctx context.Context) (cache.Generation, error) {
	return w.storage.Open(ctx, w.opts.Version)
}

// CacheFirst serves cached snapshots without any freshness check. Misses go
// to the network and successful responses are stored before returning. It
// never fails: when the network is unreachable it answers with the cached
// fallback document, and failing that with a synthetic 503.
func (w *Worker) CacheFirst(ctx context.Context, req Request) (Response, error) {
	key := req.key()
	gen, err := w.current(ctx)
	if err != nil {
		log.Printf("worker: open %s: %v", w.opts.Version, err)
		return w.record("cache-first", w.offline(ctx, nil)), nil
	}

	entry, err := gen.Match(ctx, key)
	if err == nil {
		return w.record("cache-first", Response{Entry: entry, Source: SourceCache}), nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		log.Printf("worker: cache match %s: %v", key, err)
		return w.record("cache-first", w.offline(ctx, gen)), nil
	}

	entry, err = w.fetcher.Fetch(ctx, req.Method, req.URL, req.Header)
	if err != nil {
		log.Printf("worker: fetch %s failed: %v", req.URL, err)
		return w.record("cache-first", w.offline(ctx, gen)), nil
	}
	if storable(req.Header, entry) {
		w.store(ctx, gen, key, entry.Clone())
	}
	return w.record("cache-first", Response{Entry: entry, Source: SourceNetwork}), nil
}

// NetworkFirst prefers fresh responses and only reads the cache when the
// network fails. A miss on both surfaces the network error.
func (w *Worker) NetworkFirst(ctx context.Context, req Request) (Response, error) {
	key := req.key()
	gen, err := w.current(ctx)
	if err != nil {
		return Response{}, err
	}

	entry, fetchErr := w.fetcher.Fetch(ctx, req.Method, req.URL, req.Header)
	if fetchErr == nil {
		if storable(req.Header, entry) {
			w.store(ctx, gen, key, entry.Clone())
		}
		return w.record("network-first", Response{Entry: entry, Source: SourceNetwork}), nil
	}

	cached, err := gen.Match(ctx, key)
	if err == nil {
		return w.record("network-first", Response{Entry: cached, Source: SourceCache}), nil
	}
	return Response{}, fetchErr
}

// StaleWhileRevalidate answers from the cache when it can and refreshes the
// entry in the background either way.
func (w *Worker) StaleWhileRevalidate(ctx context.Context, req Request) (Response, error) {
	key := req.key()
	gen, err := w.current(ctx)
	if err != nil {
		return Response{}, err
	}
	cached, matchErr := gen.Match(ctx, key)

	type result struct {
		entry cache.Entry
		err   error
	}
	done := make(chan result, 1)
	bg := context.WithoutCancel(ctx)
	w.background.Add(1)
	go func() {
		defer w.background.Done()
		entry, err := w.fetcher.Fetch(bg, req.Method, req.URL, req.Header)
		if err != nil {
			log.Printf("worker: revalidate %s failed: %v", req.URL, err)
		} else if storable(req.Header, entry) {
			w.store(bg, gen, key, entry.Clone())
		}
		done <- result{entry: entry, err: err}
	}()

	if matchErr == nil {
		return w.record("stale-while-revalidate", Response{Entry: cached, Source: SourceCache}), nil
	}

	select {
	case <-ctx.Done():
		return Response{}, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return Response{}, r.err
		}
		return w.record("stale-while-revalidate", Response{Entry: r.entry, Source: SourceNetwork}), nil
	}
}

// storable reports whether entry may be kept as the full snapshot for its
// URL. Partial content never is, nor anything fetched for a Range request.
func storable(reqHeader http.Header, entry cache.Entry) bool {
	if !entry.OK() || entry.Status == http.StatusPartialContent {
		return false
	}
	return reqHeader.Get("Range") == ""
}

func (w *Worker) store(ctx context.Context, gen cache.Generation, key cache.Key, entry cache.Entry) {
	if err := gen.Put(ctx, key, entry); err != nil {
		metrics.CacheWriteErrorsTotal.Inc()
		log.Printf("worker: cache put %s: %v", key, err)
	}
}

func (w *Worker) offline(ctx context.Context, gen cache.Generation) Response {
	if w.fallback != "" && gen != nil {
		entry, err := gen.Match(ctx, cache.NewKey(http.MethodGet, w.fallback))
		if err == nil {
			return Response{Entry: entry, Source: SourceFallback}
		}
	}
	return Response{Entry: ServiceUnavailable(), Source: SourceOffline}
}

func (w *Worker) record(strategy string, resp Response) Response {
	metrics.RetrievalsTotal.WithLabelValues(strategy, string(resp.Source)).Inc()
	return resp
}
