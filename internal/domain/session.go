package domain

// Credentials is the triple a session needs to reach the media server.
// Immutable once issued; discarded on disconnect.
type Credentials struct {
	RoomName string
	Identity string
	Token    string
	URL      string
}

// Valid reports whether the credentials are complete enough to attempt a
// connection. It performs no network I/O.
func (c Credentials) Valid() bool {
	return c.Token != "" && c.URL != ""
}

// RoomInfo is a directory snapshot of one active room. It is not kept
// consistent with live session state.
type RoomInfo struct {
	SID             string `json:"sid"`
	Name            string `json:"name"`
	NumParticipants int    `json:"numParticipants"`
}

type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateFailed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
