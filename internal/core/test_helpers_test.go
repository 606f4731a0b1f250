package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vovakirdan/lanchat-server/internal/blob"
	"github.com/vovakirdan/lanchat-server/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, kind EventKind) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Kind == kind {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event kind %v not received", kind)
	return nil
}

// noEvent fails if an event of kind shows up within a short window.
func noEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.After(150 * time.Millisecond)
	for {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v: %+v", kind, ev)
			}
		case <-deadline:
			return
		}
	}
}

func newTestStore(t testing.TB) *sqlite.SQLiteStore {
	t.Helper()

	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestBlobs(t testing.TB) blob.Store {
	t.Helper()

	b, err := blob.NewDisk(t.TempDir(), "uploads")
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}
	return b
}

type testEnv struct {
	store    *sqlite.SQLiteStore
	presence *Presence
	router   *Router
	hub      *Hub
}

func newTestEnv(t testing.TB, opts ...RouterOption) *testEnv {
	t.Helper()

	st := newTestStore(t)
	presence := NewPresence()
	router := NewRouter(st, newTestBlobs(t), presence, nil, opts...)
	hub := NewHub(router, presence, st, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testEnv{store: st, presence: presence, router: router, hub: hub}
}

// login registers a client and waits for its own online status event.
func (e *testEnv) login(t testing.TB, id, username string) *Client {
	t.Helper()

	c := NewClient(id)
	e.hub.RegisterClient(c)
	c.Commands <- &Command{Kind: CommandAuthenticate, Username: username}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-c.Events:
			if ev.Kind == EventUserStatus && ev.Status.Username == username && ev.Status.Online {
				return c
			}
		case <-time.After(10 * time.Millisecond):
		}
	}
	t.Fatalf("%s did not come online", username)
	return nil
}

// fakeConn records pushes and kicks for presence and router tests.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []*Event
	full   bool
	kicked string
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ConnID() string { return f.id }

func (f *fakeConn) Push(ev *Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.full || f.kicked != "" {
		return false
	}
	f.events = append(f.events, ev)
	return true
}

func (f *fakeConn) Kick(code, _ string) {
	f.mu.Lock()
	f.kicked = code
	f.mu.Unlock()
}

func (f *fakeConn) received() []*Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Event(nil), f.events...)
}

func (f *fakeConn) setFull(full bool) {
	f.mu.Lock()
	f.full = full
	f.mu.Unlock()
}
