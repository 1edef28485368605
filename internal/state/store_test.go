package state

import (
	"testing"

	"livecast/internal/domain"
)

func TestStore_ClearResetsSessionFieldsTogether(t *testing.T) {
	s := NewStore()
	s.SetCredentials("tok", "ws://x")
	s.SetRoomSID("abc123")
	s.SetRoomID("4821")
	s.SetLive(true)
	s.UpdateViewers(7)
	s.UpdateDuration(90)

	s.Clear()

	snap := s.Snapshot()
	if snap.Token != "" || snap.URL != "" || snap.RoomSID != "" || snap.RoomID != "" {
		t.Errorf("identifiers not cleared: %+v", snap)
	}
	if snap.IsLive || snap.CurrentViewers != 0 || snap.StreamDuration != 0 {
		t.Errorf("live state not cleared: %+v", snap)
	}
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := NewStore()
	s.UpdateViewers(3)
	snap := s.Snapshot()
	s.UpdateViewers(9)
	if snap.CurrentViewers != 3 {
		t.Errorf("snapshot mutated after later writes: %d", snap.CurrentViewers)
	}
}

func TestStore_SubscribeDeliversAndCancels(t *testing.T) {
	s := NewStore()
	ch, cancel := s.Subscribe()

	s.SetConnectionState(domain.StateConnected)
	ev := <-ch
	if ev.Field != "connectionState" || ev.State.ConnectionState != domain.StateConnected {
		t.Errorf("event = %+v", ev)
	}

	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after cancel")
	}
	// Writes after cancel must not panic.
	s.SetLive(true)
}

func TestStore_SlowListenerDoesNotBlockWriter(t *testing.T) {
	s := NewStore()
	_, cancel := s.Subscribe()
	defer cancel()
	// Fill well past the buffer; writer must not block.
	for i := 0; i < 100; i++ {
		s.UpdateViewers(i)
	}
	if got := s.Snapshot().CurrentViewers; got != 99 {
		t.Errorf("viewers = %d", got)
	}
}
