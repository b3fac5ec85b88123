package kvsync

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/campuskv/campuskv/client"
)

// fakeRemote implements RemoteStore for testing
type fakeRemote struct {
	mu          sync.Mutex
	rows        map[string]client.Row
	feeds       map[string]chan client.Event
	origin      string
	failSets    int
	failGets    int
	getCalls    int
	setAttempts int
}

func newFakeRemote(origin string) *fakeRemote {
	return &fakeRemote{
		rows:   make(map[string]client.Row),
		feeds:  make(map[string]chan client.Event),
		origin: origin,
	}
}

func (f *fakeRemote) Get(ctx context.Context, key string) (client.Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if f.failGets > 0 {
		f.failGets--
		return client.Row{}, errors.New("remote unavailable")
	}
	row, ok := f.rows[key]
	if !ok {
		return client.Row{}, client.ErrNotFound
	}
	return row, nil
}

func (f *fakeRemote) Set(ctx context.Context, key string, value json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setAttempts++
	if f.failSets > 0 {
		f.failSets--
		return errors.New("remote unavailable")
	}
	f.rows[key] = client.Row{Key: key, Value: value, Origin: f.origin, UpdatedAt: time.Now()}
	return nil
}

func (f *fakeRemote) Subscribe(ctx context.Context, key string) <-chan client.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	feed, ok := f.feeds[key]
	if !ok {
		feed = make(chan client.Event, 16)
		f.feeds[key] = feed
	}
	return feed
}

func (f *fakeRemote) Origin() string {
	return f.origin
}

func (f *fakeRemote) emit(key string, event client.Event) {
	f.mu.Lock()
	feed := f.feeds[key]
	f.mu.Unlock()
	feed <- event
}

func (f *fakeRemote) stored(key string) (json.RawMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[key]
	return row.Value, ok
}

func (f *fakeRemote) reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeRemote) writes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setAttempts
}

func newTestFacade(t *testing.T, remote RemoteStore) *Facade {
	t.Helper()
	f := New(remote, Options{
		RemoteTimeout: time.Second,
		FlushInterval: 10 * time.Millisecond,
	})
	t.Cleanup(f.Close)
	return f
}

func TestGetServesFromCacheAfterRemoteSeed(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	remote.rows["teachers"] = client.Row{Key: "teachers", Value: json.RawMessage(`["a","b"]`)}
	f := newTestFacade(t, remote)

	got := Get(f, "teachers", []string(nil))
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 1, remote.reads())

	// Second read stays local.
	got = Get(f, "teachers", []string(nil))
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 1, remote.reads())
}

func TestGetSeedsFallbackWhenMissing(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	got := Get(f, "branding", "default-school")
	assert.Equal(t, "default-school", got)
	assert.Equal(t, 1, remote.reads())

	// The fallback was cached; later reads do not go remote again.
	got = Get(f, "branding", "other")
	assert.Equal(t, "default-school", got)
	assert.Equal(t, 1, remote.reads())
}

func TestGetFallsBackOnRemoteFailure(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	remote.failGets = 1
	f := newTestFacade(t, remote)

	got := Get(f, "fees", 0)
	assert.Equal(t, 0, got)

	// A failed read must not poison the cache; the next read retries.
	remote.mu.Lock()
	remote.rows["fees"] = client.Row{Key: "fees", Value: json.RawMessage(`7`)}
	remote.mu.Unlock()

	got = Get(f, "fees", 0)
	assert.Equal(t, 7, got)
	assert.Equal(t, 2, remote.reads())
}

func TestGetMalformedCachedValueFailsClosed(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	require.NoError(t, f.Cache().Set("teachers", []byte(`{broken`)))

	got := Get(f, "teachers", []string{"fallback"})
	assert.Equal(t, []string{"fallback"}, got)
}

func TestSetWritesLocalThenRemote(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	ok := Set(f, "announcements", []string{"welcome"})
	require.True(t, ok)

	// Local write is visible immediately.
	data, found := f.Cache().Get("announcements")
	require.True(t, found)
	assert.JSONEq(t, `["welcome"]`, string(data))

	// The outbox delivers the remote write without the caller waiting.
	require.Eventually(t, func() bool {
		value, ok := remote.stored("announcements")
		return ok && string(value) == `["welcome"]`
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return f.Outbox().Pending() == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSetRepeatedValueConverges(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	for i := 0; i < 3; i++ {
		require.True(t, Set(f, "exam-routines", []string{"monday"}))
	}

	require.Eventually(t, func() bool {
		return f.Outbox().Pending() == 0
	}, 2*time.Second, 10*time.Millisecond)

	value, ok := remote.stored("exam-routines")
	require.True(t, ok)
	assert.JSONEq(t, `["monday"]`, string(value))

	// And the read stays local after the writes.
	reads := remote.reads()
	got := Get(f, "exam-routines", []string(nil))
	assert.Equal(t, []string{"monday"}, got)
	assert.Equal(t, reads, remote.reads())
}

func TestSetSensitiveKeyStaysLocal(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	ok := Set(f, "auth/session", map[string]string{"token": "secret"})
	require.True(t, ok)

	_, found := f.Cache().Get("auth/session")
	assert.True(t, found)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 0, remote.writes(), "sensitive key must never reach the remote table")
	assert.Equal(t, 0, f.Outbox().Pending())
}

func TestWatchAppliesRemoteChange(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	changes := make(chan json.RawMessage, 1)
	cancel := f.Watch("fees", func(value json.RawMessage) {
		changes <- value
	})
	defer cancel()

	remote.emit("fees", client.Event{
		Key:    "fees",
		Value:  json.RawMessage(`[{"id":"f1"}]`),
		Origin: "ctx-other",
	})

	select {
	case value := <-changes:
		assert.JSONEq(t, `[{"id":"f1"}]`, string(value))
	case <-time.After(2 * time.Second):
		t.Fatal("listener never ran")
	}

	// Cache reflects the change before the listener ran.
	data, found := f.Cache().Get("fees")
	require.True(t, found)
	assert.JSONEq(t, `[{"id":"f1"}]`, string(data))
}

func TestWatchSkipsOwnOrigin(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	changes := make(chan json.RawMessage, 1)
	cancel := f.Watch("gallery", func(value json.RawMessage) {
		changes <- value
	})
	defer cancel()

	remote.emit("gallery", client.Event{
		Key:    "gallery",
		Value:  json.RawMessage(`["echo"]`),
		Origin: f.Origin(),
	})

	select {
	case <-changes:
		t.Fatal("listener ran for the context's own write")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestWatchDeleteEvictsCache(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	require.NoError(t, f.Cache().Set("books", []byte(`["old"]`)))

	changes := make(chan json.RawMessage, 1)
	cancel := f.Watch("books", func(value json.RawMessage) {
		changes <- value
	})
	defer cancel()

	remote.emit("books", client.Event{Key: "books", Deleted: true, Origin: "ctx-other"})

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("listener never ran")
	}

	_, found := f.Cache().Get("books")
	assert.False(t, found, "deleted key still cached")
}

func TestWatchCancelReleasesSubscription(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	cancelA := f.Watch("students", func(json.RawMessage) {})
	cancelB := f.Watch("students", func(json.RawMessage) {})

	cancelA()
	f.mu.Lock()
	_, stillThere := f.subs["students"]
	f.mu.Unlock()
	assert.True(t, stillThere, "subscription dropped while a listener remains")

	cancelB()
	f.mu.Lock()
	_, stillThere = f.subs["students"]
	f.mu.Unlock()
	assert.False(t, stillThere, "subscription not released with the last listener")

	// Double cancel is safe.
	cancelB()
}

func TestWatchSensitiveKeyIsNoOp(t *testing.T) {
	remote := newFakeRemote("ctx-local")
	f := newTestFacade(t, remote)

	cancel := f.Watch("auth/admin-credentials", func(json.RawMessage) {
		t.Error("listener registered for sensitive key")
	})
	cancel()

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Empty(t, f.subs)
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, IsSensitive("auth/admin-credentials"))
	assert.True(t, IsSensitive("auth/staff-credentials"))
	assert.True(t, IsSensitive("auth/session"))
	assert.False(t, IsSensitive("teachers"))
	assert.False(t, IsSensitive("auth/other"))
}
