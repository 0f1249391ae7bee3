// Package worker owns the offline cache: the install/activate lifecycle of
// versioned cache generations and the strategies that answer intercepted
// requests from them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/52poke/voicenotes/internal/cache"
	"github.com/52poke/voicenotes/internal/lock"
	"github.com/52poke/voicenotes/internal/metrics"
)

type State int

const (
	StateParsed State = iota
	StateInstalling
	StateInstalled
	StateActivating
	StateActivated
	StateRedundant
)

var stateNames = [...]string{"parsed", "installing", "installed", "activating", "activated", "redundant"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNotInstalled = errors.New("worker is not installed")
	ErrLockWait     = errors.New("timed out waiting for lifecycle lock")
)

const (
	lifecycleLockKey = "lock:lifecycle"
	lockPollInterval = 50 * time.Millisecond
)

// Fetcher goes to the network. Transport failures are errors; HTTP error
// statuses come back as entries.
type Fetcher interface {
	Fetch(ctx context.Context, method, rawURL string, headers http.Header) (cache.Entry, error)
}

type Options struct {
	// Version names the current generation. Changing it is the only way to
	// invalidate cached entries.
	Version string
	// Scope is the absolute base URL manifest entries and Fallback resolve against.
	Scope    string
	Manifest []string
	Fallback string

	LockTTL     time.Duration
	MaxLockWait time.Duration
}

type Worker struct {
	opts     Options
	manifest []string
	fallback string

	storage cache.Storage
	fetcher Fetcher
	locker  lock.Locker

	mu          sync.RWMutex
	state       State
	skipWaiting bool

	controlling atomic.Bool
	background  sync.WaitGroup
}

// New validates opts and resolves the manifest. locker may be nil when a
// single process owns the storage.
func New(opts Options, storage cache.Storage, fetcher Fetcher, locker lock.Locker) (*Worker, error) {
	if opts.Version == "" {
		return nil, errors.New("cache version is required")
	}
	scope, err := url.Parse(opts.Scope)
	if err != nil {
		return nil, fmt.Errorf("parse scope: %w", err)
	}
	if !IsNetworkScheme(scope.Scheme) || scope.Host == "" {
		return nil, fmt.Errorf("scope %q must be an absolute http(s) URL", opts.Scope)
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 45 * time.Second
	}

	w := &Worker{
		opts:    opts,
		storage: storage,
		fetcher: fetcher,
		locker:  locker,
	}

	seen := map[string]struct{}{}
	for _, ref := range opts.Manifest {
		u, err := resolve(scope, ref)
		if err != nil {
			return nil, fmt.Errorf("manifest entry %q: %w", ref, err)
		}
		if _, dup := seen[u]; dup {
			return nil, fmt.Errorf("manifest entry %q resolves to duplicate %s", ref, u)
		}
		seen[u] = struct{}{}
		w.manifest = append(w.manifest, u)
	}
	if opts.Fallback != "" {
		w.fallback, err = resolve(scope, opts.Fallback)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", opts.Fallback, err)
		}
	}
	w.setState(StateParsed)
	return w, nil
}

// resolve maps a manifest or fallback entry under scope exactly as an
// intercepted request for the same path would be mapped.
func resolve(scope *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return MapTarget(scope, u).String(), nil
}

func (w *Worker) Version() string { return w.opts.Version }

// Manifest returns the resolved static asset URLs in install order.
func (w *Worker) Manifest() []string {
	return append([]string(nil), w.manifest...)
}

func (w *Worker) FallbackURL() string { return w.fallback }

func (w *Worker) State() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// SkipWaiting reports whether the last install allows immediate activation.
func (w *Worker) SkipWaiting() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.skipWaiting
}

// Controlling reports whether clients have been claimed, i.e. whether
// requests should be routed through the worker.
func (w *Worker) Controlling() bool {
	return w.controlling.Load()
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	for i, name := range stateNames {
		v := 0.0
		if State(i) == s {
			v = 1
		}
		metrics.WorkerState.WithLabelValues(name).Set(v)
	}
}

// Start installs and, when the install grants it, activates immediately.
func (w *Worker) Start(ctx context.Context) error {
	if err := w.Install(ctx); err != nil {
		return err
	}
	if !w.SkipWaiting() {
		return nil
	}
	return w.Activate(ctx)
}

// Install populates the current generation with every manifest entry. It is
// all or nothing: entries are written only after every fetch succeeded.
func (w *Worker) Install(ctx context.Context) (err error) {
	w.mu.Lock()
	w.skipWaiting = false
	w.mu.Unlock()
	w.setState(StateInstalling)
	log.Printf("worker: installing %s (%d assets)", w.opts.Version, len(w.manifest))

	defer func() {
		if err != nil {
			log.Printf("worker: install %s failed: %v", w.opts.Version, err)
			metrics.LifecycleTotal.WithLabelValues("install", "failure").Inc()
			w.setState(StateRedundant)
			return
		}
		metrics.LifecycleTotal.WithLabelValues("install", "success").Inc()
	}()

	release, err := w.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	existed, err := w.storage.Has(ctx, w.opts.Version)
	if err != nil {
		return err
	}
	gen, err := w.storage.Open(ctx, w.opts.Version)
	if err != nil {
		return err
	}

	entries, err := w.prefetch(ctx)
	if err == nil {
		err = w.populate(ctx, gen, entries)
	}
	if err != nil {
		if !existed {
			w.discard(ctx)
		}
		return err
	}

	w.mu.Lock()
	w.skipWaiting = true
	w.mu.Unlock()
	w.setState(StateInstalled)
	log.Printf("worker: installed %s", w.opts.Version)
	return nil
}

func (w *Worker) prefetch(ctx context.Context) ([]cache.Entry, error) {
	entries := make([]cache.Entry, len(w.manifest))
	g, gctx := errgroup.WithContext(ctx)
	for i, u := range w.manifest {
		g.Go(func() error {
			entry, err := w.fetcher.Fetch(gctx, http.MethodGet, u, nil)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", u, err)
			}
			if !storable(nil, entry) {
				return fmt.Errorf("fetch %s: unexpected status %d", u, entry.Status)
			}
			entries[i] = entry
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (w *Worker) populate(ctx context.Context, gen cache.Generation, entries []cache.Entry) error {
	for i, u := range w.manifest {
		if err := gen.Put(ctx, cache.NewKey(http.MethodGet, u), entries[i]); err != nil {
			return fmt.Errorf("store %s: %w", u, err)
		}
	}
	return nil
}

// discard drops a generation this install created but could not fill.
func (w *Worker) discard(ctx context.Context) {
	if _, err := w.storage.Delete(context.WithoutCancel(ctx), w.opts.Version); err != nil {
		log.Printf("worker: discard partial generation %s: %v", w.opts.Version, err)
		return
	}
	log.Printf("worker: discarded partial generation %s", w.opts.Version)
}

// Activate deletes every generation other than the current one and then
// claims clients.
func (w *Worker) Activate(ctx context.Context) (err error) {
	w.mu.Lock()
	if w.state != StateInstalled {
		w.mu.Unlock()
		return ErrNotInstalled
	}
	w.mu.Unlock()
	w.setState(StateActivating)
	log.Printf("worker: activating %s", w.opts.Version)

	defer func() {
		if err != nil {
			log.Printf("worker: activate %s failed: %v", w.opts.Version, err)
			metrics.LifecycleTotal.WithLabelValues("activate", "failure").Inc()
			w.setState(StateInstalled)
			return
		}
		metrics.LifecycleTotal.WithLabelValues("activate", "success").Inc()
	}()

	release, err := w.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	names, err := w.storage.Names(ctx)
	if err != nil {
		return err
	}
	for _, name := range names {
		if name == w.opts.Version {
			continue
		}
		log.Printf("worker: deleting old generation %s", name)
		if _, err := w.storage.Delete(ctx, name); err != nil {
			return fmt.Errorf("delete generation %s: %w", name, err)
		}
		metrics.GenerationsPurgedTotal.Inc()
	}

	w.controlling.Store(true)
	w.setState(StateActivated)
	log.Printf("worker: activated %s, clients claimed", w.opts.Version)
	return nil
}

func (w *Worker) acquire(ctx context.Context) (func(), error) {
	if w.locker == nil {
		return func() {}, nil
	}
	deadline := time.Now().Add(w.opts.MaxLockWait)
	for {
		l, ok, err := w.locker.TryLock(ctx, lifecycleLockKey, w.opts.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("lifecycle lock: %w", err)
		}
		if ok {
			return func() { _ = l.Unlock(context.WithoutCancel(ctx)) }, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLockWait
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockPollInterval):
		}
	}
}

// Wait blocks until background revalidations have finished.
func (w *Worker) Wait() {
	w.background.Wait()
}
