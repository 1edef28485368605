// Package domain contains entities without logic, just meta-data.
package domain

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
)

type Role string

const (
	RoleBroadcaster Role = "broadcaster"
	RoleViewer      Role = "viewer"
)

var ErrRoomNameEmpty = errors.New("room name empty")

// ParticipantIdentity derives the wire identity for a role in a room.
// A broadcaster always maps to the same identity for a given room, so a
// reconnect resumes the same server-side participant. Viewers get a fresh
// 7-digit suffix per call so multiple viewer instances do not collide.
func ParticipantIdentity(role Role, roomName string) string {
	if role == RoleBroadcaster {
		return "streamer-" + roomName
	}
	return fmt.Sprintf("viewer-%s-%d", roomName, randomSuffix())
}

// IsBroadcaster reports whether the identity belongs to the room's streamer.
func IsBroadcaster(identity string) bool {
	return strings.HasPrefix(identity, "streamer-")
}

// randomSuffix returns a number in [1000000, 9999999].
func randomSuffix() int {
	return 1000000 + rand.IntN(9000000)
}

// GenerateRoomName returns a random 4-digit room name, matching the
// room-naming scheme the directory server expects.
func GenerateRoomName() string {
	return fmt.Sprintf("%d", 1000+rand.IntN(9000))
}
