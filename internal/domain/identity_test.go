package domain

import (
	"strconv"
	"strings"
	"testing"
)

func TestParticipantIdentity_BroadcasterStable(t *testing.T) {
	for i := 0; i < 10; i++ {
		got := ParticipantIdentity(RoleBroadcaster, "4821")
		if got != "streamer-4821" {
			t.Fatalf("broadcaster identity = %q, want streamer-4821", got)
		}
	}
}

func TestParticipantIdentity_ViewerSuffix(t *testing.T) {
	id := ParticipantIdentity(RoleViewer, "4821")
	if !strings.HasPrefix(id, "viewer-4821-") {
		t.Fatalf("viewer identity %q missing prefix", id)
	}
	suffix := strings.TrimPrefix(id, "viewer-4821-")
	if len(suffix) != 7 {
		t.Fatalf("viewer suffix %q is not 7 digits", suffix)
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		t.Fatalf("viewer suffix %q not numeric: %v", suffix, err)
	}
	if n < 1000000 || n > 9999999 {
		t.Fatalf("viewer suffix %d out of range", n)
	}
}

func TestParticipantIdentity_ViewersRarelyCollide(t *testing.T) {
	// Two fresh generations should not collide; sample many pairs to keep
	// the flake probability far below the 1e-5 bound.
	collisions := 0
	const trials = 2000
	for i := 0; i < trials; i++ {
		a := ParticipantIdentity(RoleViewer, "4821")
		b := ParticipantIdentity(RoleViewer, "4821")
		if a == b {
			collisions++
		}
	}
	if collisions > 1 {
		t.Fatalf("%d/%d consecutive viewer identities collided", collisions, trials)
	}
}

func TestGenerateRoomName(t *testing.T) {
	for i := 0; i < 100; i++ {
		name := GenerateRoomName()
		if len(name) != 4 {
			t.Fatalf("room name %q is not 4 digits", name)
		}
		n, err := strconv.Atoi(name)
		if err != nil || n < 1000 || n > 9999 {
			t.Fatalf("room name %q out of range", name)
		}
	}
}
