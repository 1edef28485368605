// Package state holds the process-wide session state store. The session
// controller is the only writer; everything else reads snapshots or
// subscribes to change events.
package state

import (
	"sync"

	"livecast/internal/domain"
)

// Snapshot is a consistent copy of the session state at one point in time.
type Snapshot struct {
	IsLive          bool
	CurrentViewers  int
	StreamDuration  int
	RoomID          string
	RoomSID         string
	Token           string
	URL             string
	ConnectionState domain.ConnectionState
}

type Event struct {
	Field string
	State Snapshot
}

type Store struct {
	mu        sync.Mutex
	snap      Snapshot
	listeners []chan Event
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Subscribe returns a buffered channel of change events and a cancel func
// that removes the listener. Slow listeners drop events rather than block
// the writer.
func (s *Store) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 16)
	s.mu.Lock()
	s.listeners = append(s.listeners, ch)
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l == ch {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				close(ch)
				return
			}
		}
	}
	return ch, cancel
}

// notify must be called with s.mu held.
func (s *Store) notify(field string) {
	ev := Event{Field: field, State: s.snap}
	for _, l := range s.listeners {
		select {
		case l <- ev:
		default:
		}
	}
}

// SetCredentials caches the token and signaling URL of a successful
// credential resolution.
func (s *Store) SetCredentials(token, url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Token = token
	s.snap.URL = url
	s.notify("credentials")
}

func (s *Store) SetRoomSID(sid string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.RoomSID = sid
	s.notify("roomSid")
}

func (s *Store) SetRoomID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.RoomID = id
	s.notify("roomId")
}

func (s *Store) SetLive(live bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.IsLive = live
	s.notify("isLive")
}

// UpdateViewers sets the viewer count to an absolute value. Callers must
// pass the authoritative membership size, never an increment.
func (s *Store) UpdateViewers(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.CurrentViewers = count
	s.notify("viewers")
}

func (s *Store) UpdateDuration(seconds int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.StreamDuration = seconds
	s.notify("duration")
}

func (s *Store) SetConnectionState(cs domain.ConnectionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.ConnectionState = cs
	s.notify("connectionState")
}

// Clear resets credentials, room identifiers and the live flag together so
// readers never observe a partially cleared session.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Token = ""
	s.snap.URL = ""
	s.snap.RoomSID = ""
	s.snap.RoomID = ""
	s.snap.IsLive = false
	s.snap.CurrentViewers = 0
	s.snap.StreamDuration = 0
	s.notify("clear")
}
