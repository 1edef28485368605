// Package session owns the room session: connect, publish, monitor,
// reconnect and disconnect, and the projection of session events into the
// shared state store.
package session

import (
	"context"

	"github.com/pion/webrtc/v4"

	"livecast/internal/domain"
)

// Callbacks is the session event surface. Handlers are invoked from the
// transport's dispatch goroutine in delivery order; nil fields are skipped.
// Built once per session and torn down with it.
type Callbacks struct {
	OnConnectionStateChanged   func(domain.ConnectionState)
	OnConnectionQualityChanged func(quality string, identity string)
	OnTrackSubscribed          func(trackID string, identity string)
	OnParticipantConnected     func(identity string)
	OnParticipantDisconnected  func(identity string)
	OnDisconnected             func()
}

// Transport is the capability set the controller needs from the real-time
// media transport. The concrete implementation lives in internal/rtc; tests
// substitute fakes.
type Transport interface {
	Connect(ctx context.Context, url, token string) error
	Disconnect() error
	PublishTrack(track webrtc.TrackLocal, opts TrackPublishOptions) error
	// RemoteParticipantCount returns the authoritative size of the current
	// remote membership set.
	RemoteParticipantCount() int
	RoomSID() string
}

// TransportFactory builds a transport bound to one session's callbacks.
type TransportFactory func(Callbacks) Transport

// TrackPublishOptions carries the encoding policy for one publication.
type TrackPublishOptions struct {
	Kind      string
	Simulcast bool
	Layers    []VideoLayer
	Encoding  EncodingBounds
}
