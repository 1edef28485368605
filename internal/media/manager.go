// Package media acquires and owns the local capture stream. The manager
// holds at most one live stream; acquiring again always releases the
// previous stream's device handles first.
package media

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"livecast/internal/domain"
)

// The device settle wait is bounded: a device that never reports non-zero
// dimensions fails the acquisition instead of hanging the caller forever.
// Vars so tests can tighten them.
var (
	settlePollInterval = 100 * time.Millisecond
	settleTimeout      = 10 * time.Second
)

var ErrDisposed = errors.New("media manager disposed")

// TrackSettings are the per-track capability settings the device reported,
// plus the audio processing flags negotiated for the stream.
type TrackSettings struct {
	Width            int
	Height           int
	FrameRate        float64
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// Track is one live capture track. Stop releases its device handle and is
// idempotent. The track is handed by reference to the session layer for
// publication, but the stop lifecycle stays here.
type Track interface {
	ID() string
	Kind() TrackKind
	Settings() TrackSettings
	// Local exposes the underlying WebRTC track for publication.
	Local() webrtc.TrackLocal
	Stop() error
}

// EncodedFrameReader yields compressed frames from a track's encoder.
type EncodedFrameReader interface {
	Read() (data []byte, release func(), err error)
	Close() error
}

// EncodedSource is implemented by tracks that can feed a second encoder
// consumer (the recording sidecar) in parallel with publication.
type EncodedSource interface {
	NewEncodedReader(mimeType string) (EncodedFrameReader, error)
}

type TrackKind string

const (
	TrackKindVideo TrackKind = "video"
	TrackKindAudio TrackKind = "audio"
)

// Device abstracts the capture backend (pion/mediadevices in production) so
// the manager's lifecycle rules are testable without hardware.
type Device interface {
	Open(ctx context.Context, p Profile) ([]Track, error)
}

// Profile is the constraint set handed to the device. Zero fields are
// filled from the fixed quality policy; caller-specified values win.
type Profile struct {
	IdealWidth     int
	IdealHeight    int
	MinWidth       int
	MinHeight      int
	IdealFrameRate float64
	MinFrameRate   float64

	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// withDefaults layers the fixed quality policy under the caller's profile:
// 1080p30 target with a 720p24 floor, audio processing on.
func (p Profile) withDefaults() Profile {
	if p.IdealWidth == 0 {
		p.IdealWidth = 1920
	}
	if p.IdealHeight == 0 {
		p.IdealHeight = 1080
	}
	if p.MinWidth == 0 {
		p.MinWidth = 1280
	}
	if p.MinHeight == 0 {
		p.MinHeight = 720
	}
	if p.IdealFrameRate == 0 {
		p.IdealFrameRate = 30
	}
	if p.MinFrameRate == 0 {
		p.MinFrameRate = 24
	}
	p.EchoCancellation = true
	p.NoiseSuppression = true
	p.AutoGainControl = true
	return p
}

// CaptureStream wraps at most one video and one audio track.
type CaptureStream struct {
	tracks []Track
}

func NewCaptureStream(tracks ...Track) *CaptureStream {
	return &CaptureStream{tracks: tracks}
}

func (s *CaptureStream) Tracks() []Track { return s.tracks }

func (s *CaptureStream) VideoTrack() Track {
	for _, t := range s.tracks {
		if t.Kind() == TrackKindVideo {
			return t
		}
	}
	return nil
}

func (s *CaptureStream) AudioTrack() Track {
	for _, t := range s.tracks {
		if t.Kind() == TrackKindAudio {
			return t
		}
	}
	return nil
}

// stop stops every track individually.
func (s *CaptureStream) stop() {
	for _, t := range s.tracks {
		if err := t.Stop(); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("track", t.ID()).Msg("track stop")
		}
	}
}

type Manager struct {
	// Guards the single-stream invariant. Acquire is not meant to be called
	// concurrently; the lock makes misuse serialize instead of leaking
	// device handles.
	mu       sync.Mutex
	device   Device
	profile  Profile
	stream   *CaptureStream
	disposed bool
}

func NewManager(device Device, profile Profile) *Manager {
	return &Manager{
		device:  device,
		profile: profile.withDefaults(),
	}
}

// Acquire opens a new capture stream. Any previously held stream is fully
// released first, then the call blocks until the video device reports
// settled non-zero dimensions (bounded by settleTimeout).
func (m *Manager) Acquire(ctx context.Context) (*CaptureStream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.disposed {
		return nil, domain.NewFailure(domain.FailureDevice, "media.Acquire", "manager disposed", ErrDisposed)
	}
	m.releaseLocked()

	tracks, err := m.device.Open(ctx, m.profile)
	if err != nil {
		return nil, domain.NewFailure(domain.FailureDevice, "media.Acquire", "cannot access media devices", err)
	}
	stream := &CaptureStream{tracks: tracks}

	if video := stream.VideoTrack(); video != nil {
		if err := waitSettled(ctx, video); err != nil {
			stream.stop()
			return nil, err
		}
	}

	m.stream = stream
	log.Info().Str("module", "media").Int("tracks", len(tracks)).Msg("capture stream acquired")
	return stream, nil
}

// waitSettled polls the track until it reports non-zero dimensions.
func waitSettled(ctx context.Context, video Track) error {
	deadline := time.NewTimer(settleTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(settlePollInterval)
	defer tick.Stop()

	for {
		s := video.Settings()
		if s.Width > 0 && s.Height > 0 {
			log.Debug().Str("module", "media").Int("width", s.Width).Int("height", s.Height).Msg("device settings settled")
			return nil
		}
		select {
		case <-ctx.Done():
			return domain.NewFailure(domain.FailureDevice, "media.Acquire", "canceled waiting for device settings", ctx.Err())
		case <-deadline.C:
			return domain.NewFailure(domain.FailureDevice, "media.Acquire", "device never reported settled settings", nil)
		case <-tick.C:
		}
	}
}

// Release stops every track of the held stream. Safe to call when nothing
// is held.
func (m *Manager) Release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
}

func (m *Manager) releaseLocked() {
	if m.stream == nil {
		return
	}
	m.stream.stop()
	m.stream = nil
	log.Info().Str("module", "media").Msg("capture stream released")
}

// Reacquire releases the current stream and acquires a fresh one.
func (m *Manager) Reacquire(ctx context.Context) (*CaptureStream, error) {
	return m.Acquire(ctx)
}

// Stream returns the currently held stream, if any.
func (m *Manager) Stream() *CaptureStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Dispose releases the held stream and disables the manager. Owning scopes
// must call it on every exit path.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.releaseLocked()
	m.disposed = true
}
