// Package kvsync implements the synchronization facade between a
// synchronous per-context cache and the shared remote row table.
//
// Get serves from the local cache, falling back to the remote table and
// finally to a caller-supplied default. Set writes the local cache
// synchronously and hands the remote upsert to a coalescing outbox, so a
// caller never waits on the network and a failed remote write is retried
// instead of lost. Change events from other contexts arrive over the
// remote change feed and update the cache before listeners run.
package kvsync

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/campuskv/campuskv/cache"
	"github.com/campuskv/campuskv/client"
)

// RemoteStore is the remote table surface the facade needs. *client.Client
// satisfies it.
type RemoteStore interface {
	Get(ctx context.Context, key string) (client.Row, error)
	Set(ctx context.Context, key string, value json.RawMessage) error
	Subscribe(ctx context.Context, key string) <-chan client.Event
	Origin() string
}

// Options configures a Facade
type Options struct {
	// CacheQuota is the local cache byte quota; <= 0 disables it
	CacheQuota int64
	// RemoteTimeout bounds a remote read during Get
	RemoteTimeout time.Duration
	// FlushInterval is the outbox retry interval
	FlushInterval time.Duration
	// Logger receives degraded-path messages; nil uses the default logger
	Logger *log.Logger
}

type listener struct {
	id int
	fn func(value json.RawMessage)
}

type subscription struct {
	cancel    context.CancelFunc
	listeners []listener
}

// Facade mediates between the local cache and the remote row table
type Facade struct {
	cache  *cache.Cache
	remote RemoteStore
	outbox *Outbox
	origin string
	logger *log.Logger

	remoteTimeout time.Duration

	mu     sync.Mutex
	subs   map[string]*subscription
	nextID int

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a facade over the given remote store
func New(remote RemoteStore, opts Options) *Facade {
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 3 * time.Second
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}

	origin := remote.Origin()
	if origin == "" {
		origin = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Facade{
		cache:         cache.New(opts.CacheQuota),
		remote:        remote,
		origin:        origin,
		logger:        opts.Logger,
		remoteTimeout: opts.RemoteTimeout,
		subs:          make(map[string]*subscription),
		ctx:           ctx,
		cancel:        cancel,
	}
	f.outbox = NewOutbox(remote, opts.FlushInterval, opts.Logger)
	return f
}

// Origin returns the identifier this facade attaches to its writes
func (f *Facade) Origin() string {
	return f.origin
}

// Cache exposes the underlying local cache
func (f *Facade) Cache() *cache.Cache {
	return f.cache
}

// Outbox exposes the pending-write queue
func (f *Facade) Outbox() *Outbox {
	return f.outbox
}

// Close releases the facade: active subscriptions are canceled and the
// outbox makes a final flush attempt.
func (f *Facade) Close() {
	f.cancel()
	f.mu.Lock()
	for _, sub := range f.subs {
		sub.cancel()
	}
	f.subs = make(map[string]*subscription)
	f.mu.Unlock()
	f.outbox.Close()
}

// Get returns the value for key from the local cache, falling back to the
// remote table and finally to fallback. The cache is seeded on a cache
// miss so later reads stay local. Malformed stored values fail closed to
// fallback.
func Get[T any](f *Facade, key string, fallback T) T {
	if data, ok := f.cache.Get(key); ok {
		var value T
		if err := json.Unmarshal(data, &value); err != nil {
			f.logger.Printf("kvsync: malformed cached value for %q: %v", key, err)
			return fallback
		}
		return value
	}

	ctx, cancel := context.WithTimeout(f.ctx, f.remoteTimeout)
	defer cancel()

	row, err := f.remote.Get(ctx, key)
	if err != nil {
		if err == client.ErrNotFound {
			// Seed the cache so the next read stays local.
			f.seed(key, fallback)
			return fallback
		}
		f.logger.Printf("kvsync: remote read for %q failed: %v", key, err)
		return fallback
	}

	var value T
	if err := json.Unmarshal(row.Value, &value); err != nil {
		f.logger.Printf("kvsync: malformed remote value for %q: %v", key, err)
		return fallback
	}
	if err := f.cache.Set(key, row.Value); err != nil {
		f.logger.Printf("kvsync: failed to seed cache for %q: %v", key, err)
	}
	return value
}

// Set writes value under key. The local write is synchronous; the remote
// upsert happens through the outbox. Returns true when the local write
// succeeded, regardless of remote outcome. Sensitive keys are stored
// locally only.
func Set[T any](f *Facade, key string, value T) bool {
	data, err := json.Marshal(value)
	if err != nil {
		f.logger.Printf("kvsync: failed to marshal value for %q: %v", key, err)
		return false
	}

	if err := f.cache.Set(key, data); err != nil {
		f.logger.Printf("kvsync: local write for %q failed: %v", key, err)
		return false
	}

	if IsSensitive(key) {
		return true
	}

	f.outbox.Enqueue(key, data)
	return true
}

func (f *Facade) seed(key string, fallback any) {
	data, err := json.Marshal(fallback)
	if err != nil {
		return
	}
	if err := f.cache.Set(key, data); err != nil {
		f.logger.Printf("kvsync: failed to seed cache for %q: %v", key, err)
	}
}

// Watch registers fn to run after an inbound remote change for key has
// updated the local cache. The facade's own writes are not echoed back.
// The returned cancel func releases the registration; the remote
// subscription is released with the last listener. Sensitive keys are
// never watched.
func (f *Facade) Watch(key string, fn func(value json.RawMessage)) (cancel func()) {
	if IsSensitive(key) {
		return func() {}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	id := f.nextID

	sub, ok := f.subs[key]
	if !ok {
		ctx, stop := context.WithCancel(f.ctx)
		sub = &subscription{cancel: stop}
		f.subs[key] = sub
		go f.pump(ctx, key, f.remote.Subscribe(ctx, key))
	}
	sub.listeners = append(sub.listeners, listener{id: id, fn: fn})

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		sub, ok := f.subs[key]
		if !ok {
			return
		}
		for i, l := range sub.listeners {
			if l.id == id {
				sub.listeners = append(sub.listeners[:i], sub.listeners[i+1:]...)
				break
			}
		}
		if len(sub.listeners) == 0 {
			sub.cancel()
			delete(f.subs, key)
		}
	}
}

// pump applies inbound change events to the cache and notifies listeners
func (f *Facade) pump(ctx context.Context, key string, events <-chan client.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Origin != "" && event.Origin == f.origin {
				continue
			}
			if event.Deleted {
				f.cache.Delete(key)
			} else if err := f.cache.Set(key, event.Value); err != nil {
				f.logger.Printf("kvsync: failed to apply change for %q: %v", key, err)
				continue
			}

			f.mu.Lock()
			sub, ok := f.subs[key]
			var fns []func(json.RawMessage)
			if ok {
				fns = make([]func(json.RawMessage), 0, len(sub.listeners))
				for _, l := range sub.listeners {
					fns = append(fns, l.fn)
				}
			}
			f.mu.Unlock()

			for _, fn := range fns {
				fn(event.Value)
			}
		}
	}
}
