package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"livecast/internal/domain"
	"livecast/internal/media"
	"livecast/internal/state"
)

// RoomAPI is the slice of the token service the controller drives for the
// broadcaster room workflow.
type RoomAPI interface {
	CreateRoom(ctx context.Context, roomName string) (sid, name string, err error)
	InitializeConnection(ctx context.Context, roomName string, role domain.Role) (domain.Credentials, error)
}

// Marker is the persisted session marker consulted on restart. Never a
// source of truth for session content.
type Marker interface {
	Set(key, value string) error
	Get(key string) (string, bool, error)
	Delete(keys ...string) error
}

// LocalParticipant is the controller's reference to its own server-side
// participant.
type LocalParticipant struct {
	Identity string
}

// Controller is the room session state machine. It is the only writer of
// the state store.
type Controller struct {
	api          RoomAPI
	store        *state.Store
	marker       Marker
	newTransport TransportFactory

	mu         sync.Mutex
	tr         Transport
	st         domain.ConnectionState
	local      *LocalParticipant
	published  []string
	roomID     string
	connecting bool
	// generation invalidates in-flight connects and stale event handlers
	// once a disconnect has run.
	generation   int
	durationStop chan struct{}
}

func NewController(api RoomAPI, store *state.Store, marker Marker, factory TransportFactory) *Controller {
	return &Controller{
		api:          api,
		store:        store,
		marker:       marker,
		newTransport: factory,
		st:           domain.StateDisconnected,
	}
}

func (c *Controller) ConnectionState() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st
}

func (c *Controller) LocalParticipant() *LocalParticipant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.local
}

func (c *Controller) CurrentRoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Connect opens a session with the given credentials and publishes the
// capture stream's tracks. A publish failure is reported but leaves the
// session connected; any earlier failure tears the session back down to
// Disconnected (or Failed for transport errors).
func (c *Controller) Connect(ctx context.Context, creds domain.Credentials, stream *media.CaptureStream) error {
	c.mu.Lock()
	if c.connecting {
		c.mu.Unlock()
		return domain.NewFailure(domain.FailureConnection, "session.Connect", "a connect is already in flight", nil)
	}
	if !creds.Valid() {
		c.mu.Unlock()
		return domain.NewFailure(domain.FailureConfiguration, "session.Connect", "missing token or signaling URL", nil)
	}
	if c.tr != nil {
		// Starting a new session tears down the old one first.
		c.teardownLocked(domain.StateDisconnected)
	}

	c.generation++
	gen := c.generation
	c.connecting = true
	c.setStateLocked(domain.StateConnecting)

	tr := c.newTransport(c.callbacks(gen))
	c.tr = tr
	c.mu.Unlock()

	err := tr.Connect(ctx, creds.URL, creds.Token)

	c.mu.Lock()
	c.connecting = false
	if c.generation != gen {
		// Disconnect ran while the connect was in flight; the session must
		// not resurrect.
		c.mu.Unlock()
		if cerr := tr.Disconnect(); cerr != nil {
			log.Warn().Err(cerr).Str("module", "session").Msg("closing canceled connect")
		}
		return domain.NewFailure(domain.FailureConnection, "session.Connect", "connect canceled by disconnect", nil)
	}
	if err != nil {
		c.teardownLocked(domain.StateFailed)
		c.mu.Unlock()
		return domain.NewFailure(domain.FailureConnection, "session.Connect", "cannot connect to media server", err)
	}

	c.local = &LocalParticipant{Identity: creds.Identity}
	c.setStateLocked(domain.StateConnected)
	c.store.SetCredentials(creds.Token, creds.URL)
	if sid := tr.RoomSID(); sid != "" {
		c.store.SetRoomSID(sid)
	}
	c.store.SetLive(true)
	c.startDurationTickerLocked(gen)
	c.mu.Unlock()

	log.Info().Str("module", "session").Str("identity", creds.Identity).Str("room", creds.RoomName).Msg("connected")
	// Only a broadcaster session is worth restoring after a crash.
	if domain.IsBroadcaster(creds.Identity) {
		c.persistMarker(creds.RoomName)
	}

	return c.PublishLocalTracks(stream)
}

// PublishLocalTracks publishes at most one video and one audio track. Each
// publish is attempted independently; failures are aggregated and reported
// without unwinding the session.
func (c *Controller) PublishLocalTracks(stream *media.CaptureStream) error {
	c.mu.Lock()
	tr := c.tr
	c.mu.Unlock()
	if tr == nil {
		return domain.NewFailure(domain.FailureConnection, "session.PublishLocalTracks", "no active session", nil)
	}
	if stream == nil {
		return nil
	}

	var errs []error
	if video := stream.VideoTrack(); video != nil {
		opts := TrackPublishOptions{
			Kind:      "video",
			Simulcast: true,
			Layers:    DefaultSimulcastLayers,
			Encoding:  DefaultVideoEncoding,
		}
		if err := tr.PublishTrack(video.Local(), opts); err != nil {
			log.Error().Err(err).Str("module", "session").Msg("video publish failed")
			errs = append(errs, err)
		} else {
			c.recordPublished(video.ID())
		}
	}
	if audio := stream.AudioTrack(); audio != nil {
		opts := TrackPublishOptions{
			Kind:     "audio",
			Encoding: DefaultAudioEncoding,
		}
		if err := tr.PublishTrack(audio.Local(), opts); err != nil {
			log.Error().Err(err).Str("module", "session").Msg("audio publish failed")
			errs = append(errs, err)
		} else {
			c.recordPublished(audio.ID())
		}
	}
	if len(errs) > 0 {
		return domain.NewFailure(domain.FailurePublish, "session.PublishLocalTracks", "one or more tracks failed to publish", errors.Join(errs...))
	}
	return nil
}

func (c *Controller) recordPublished(id string) {
	c.mu.Lock()
	c.published = append(c.published, id)
	c.mu.Unlock()
}

// PublishedTracks returns the ids of successfully published tracks.
func (c *Controller) PublishedTracks() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.published))
	copy(out, c.published)
	return out
}

// Disconnect closes the transport best-effort and resets local state
// unconditionally. Safe in every state, including mid-connect.
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.connecting = false
	c.teardownLocked(domain.StateDisconnected)
	return nil
}

// teardownLocked closes the transport (errors logged, never blocking the
// reset) and clears all session-local state.
func (c *Controller) teardownLocked(final domain.ConnectionState) {
	if c.durationStop != nil {
		close(c.durationStop)
		c.durationStop = nil
	}
	if c.tr != nil {
		if err := c.tr.Disconnect(); err != nil {
			log.Warn().Err(err).Str("module", "session").Msg("transport close")
		}
		c.tr = nil
	}
	c.local = nil
	c.published = nil
	c.setStateLocked(final)
	c.store.SetLive(false)
	c.store.UpdateViewers(0)
}

func (c *Controller) setStateLocked(st domain.ConnectionState) {
	if c.st == st {
		return
	}
	log.Info().Str("module", "session").Str("from", c.st.String()).Str("to", st.String()).Msg("state")
	c.st = st
	c.store.SetConnectionState(st)
}

// callbacks builds the per-session event dispatch table. Every handler
// checks the generation so events from a dead session are dropped.
func (c *Controller) callbacks(gen int) Callbacks {
	return Callbacks{
		OnConnectionStateChanged: func(st domain.ConnectionState) {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.generation != gen {
				return
			}
			c.setStateLocked(st)
		},
		OnConnectionQualityChanged: func(quality, identity string) {
			log.Info().Str("module", "session").Str("quality", quality).Str("participant", identity).Msg("connection quality")
		},
		OnTrackSubscribed: func(trackID, identity string) {
			log.Info().Str("module", "session").Str("track", trackID).Str("participant", identity).Msg("track subscribed")
		},
		OnParticipantConnected: func(identity string) {
			c.refreshViewerCount(gen, identity, "joined")
		},
		OnParticipantDisconnected: func(identity string) {
			c.refreshViewerCount(gen, identity, "left")
		},
		OnDisconnected: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.generation != gen {
				return
			}
			// The transport's reconnect budget is exhausted; a fresh
			// Connect is required from here.
			c.teardownLocked(domain.StateFailed)
		},
	}
}

// refreshViewerCount recomputes the count from the transport's membership
// set. Never incremental, so out-of-order joins/leaves cannot drift it.
func (c *Controller) refreshViewerCount(gen int, identity, ev string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen || c.tr == nil {
		return
	}
	count := c.tr.RemoteParticipantCount()
	c.store.UpdateViewers(count)
	log.Info().Str("module", "session").Str("participant", identity).Str("event", ev).Int("viewers", count).Msg("membership")
}

func (c *Controller) startDurationTickerLocked(gen int) {
	stop := make(chan struct{})
	c.durationStop = stop
	started := time.Now()
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case now := <-ticker.C:
				c.mu.Lock()
				live := c.generation == gen
				c.mu.Unlock()
				if !live {
					return
				}
				c.store.UpdateDuration(int(now.Sub(started).Seconds()))
			}
		}
	}()
}

func (c *Controller) persistMarker(roomName string) {
	if c.marker == nil {
		return
	}
	if err := c.marker.Set("roomId", roomName); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("persist roomId")
	}
	if err := c.marker.Set("isLive", "true"); err != nil {
		log.Warn().Err(err).Str("module", "session").Msg("persist isLive")
	}
}
