package core

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parleychat/parley-server/internal/store"
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

// mustNoEvent asserts that no event of the given kind arrives within
// the window. Other kinds are discarded.
func mustNoEvent(t *testing.T, ch <-chan *Event, kind EventKind) {
	t.Helper()

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Kind == kind {
				t.Fatalf("unexpected event kind %v received: %+v", kind, ev)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

// stubDirectory is an in-memory store.Directory for hub tests.
type stubDirectory struct {
	mu    sync.Mutex
	rooms map[string][]string // name -> allow-list
	err   error               // forced lookup failure
}

func newStubDirectory(rooms map[string][]string) *stubDirectory {
	if rooms == nil {
		rooms = make(map[string][]string)
	}
	return &stubDirectory{rooms: rooms}
}

func (d *stubDirectory) FindRoom(_ context.Context, name string) (*store.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	allowed, ok := d.rooms[name]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &store.Room{Name: name, AllowedUsers: allowed}, nil
}

func (d *stubDirectory) FindUser(_ context.Context, _ string) (bool, error) {
	return true, nil
}

func (d *stubDirectory) ListRoomNames(_ context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.rooms))
	for name := range d.rooms {
		names = append(names, name)
	}
	return names, nil
}

func (d *stubDirectory) CreateRoom(_ context.Context, name string, _ int64) (*store.Room, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[name] = nil
	return &store.Room{Name: name}, nil
}

func (d *stubDirectory) AllowUser(_ context.Context, roomName, username string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rooms[roomName] = append(d.rooms[roomName], username)
	return nil
}

func (d *stubDirectory) DisallowUser(_ context.Context, _, _ string) error {
	return nil
}

// memLog is an in-memory store.MessageLog for hub tests.
type memLog struct {
	mu       sync.Mutex
	messages []store.StoredMessage
	nextID   int64
	err      error // forced append/query failure
}

func newMemLog() *memLog {
	return &memLog{}
}

func (l *memLog) Append(_ context.Context, env store.Envelope) (*store.StoredMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.nextID++
	m := store.StoredMessage{
		ID:        l.nextID,
		From:      env.From,
		To:        env.To,
		Room:      env.Room,
		Text:      env.Text,
		CreatedAt: env.Timestamp,
	}
	l.messages = append(l.messages, m)
	return &m, nil
}

func (l *memLog) RoomHistory(_ context.Context, roomName string, limit int) ([]store.StoredMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	out := make([]store.StoredMessage, 0)
	for _, m := range l.messages {
		if m.Room == roomName {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (l *memLog) DMHistory(_ context.Context, userA, userB string, limit int) ([]store.StoredMessage, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	out := make([]store.StoredMessage, 0)
	for _, m := range l.messages {
		if (m.From == userA && m.To == userB) || (m.From == userB && m.To == userA) {
			out = append(out, m)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

var errStubFailure = errors.New("stub failure")

// startHub runs a hub over the given collaborators for the test duration.
func startHub(t *testing.T, dir store.Directory, msgs store.MessageLog) *Hub {
	t.Helper()

	hub := NewHub(dir, msgs, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}
