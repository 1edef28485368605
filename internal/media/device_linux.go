//go:build linux && cgo

package media

import (
	"context"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// NewDevice returns the pion/mediadevices capture backend (V4L2 camera,
// malgo microphone) with VP8+Opus encoders.
func NewDevice() Device {
	return &captureDevice{}
}

type captureDevice struct{}

func (d *captureDevice) Open(_ context.Context, p Profile) ([]Track, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, err
	}
	vpxParams.BitRate = 3_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, err
	}

	codecSelector := mediadevices.NewCodecSelector(
		mediadevices.WithVideoEncoders(&vpxParams),
		mediadevices.WithAudioEncoders(&opusParams),
	)

	constraints := mediadevices.MediaStreamConstraints{Codec: codecSelector}
	constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
		// Raw formats only; MJPEG camera nodes can poison the VP8 encoder.
		c.FrameFormat = prop.FrameFormatOneOf{
			frame.FormatYUYV,
			frame.FormatI420,
			frame.FormatI444,
			frame.FormatRGBA,
		}
		c.Width = prop.IntRanged{Min: p.MinWidth, Ideal: p.IdealWidth}
		c.Height = prop.IntRanged{Min: p.MinHeight, Ideal: p.IdealHeight}
		c.FrameRate = prop.FloatRanged{Min: float32(p.MinFrameRate), Ideal: float32(p.IdealFrameRate)}
	}
	constraints.Audio = func(_ *mediadevices.MediaTrackConstraints) {}

	stream, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, err
	}

	var tracks []Track
	for _, t := range stream.GetTracks() {
		t.OnEnded(func(err error) {
			if err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("capture track ended")
			}
		})
		tracks = append(tracks, newDeviceTrack(t, p))
	}
	return tracks, nil
}

type deviceTrack struct {
	t    mediadevices.Track
	kind TrackKind

	mu       sync.Mutex
	settings TrackSettings
	stopped  bool
}

func newDeviceTrack(t mediadevices.Track, p Profile) *deviceTrack {
	dt := &deviceTrack{
		t:    t,
		kind: TrackKindAudio,
		settings: TrackSettings{
			EchoCancellation: p.EchoCancellation,
			NoiseSuppression: p.NoiseSuppression,
			AutoGainControl:  p.AutoGainControl,
		},
	}
	if t.Kind() == webrtc.RTPCodecTypeVideo {
		dt.kind = TrackKindVideo
		dt.settings.FrameRate = p.IdealFrameRate
	}

	// The video device reports its real dimensions with the first decoded
	// frame; a side reader fills them in as soon as they are known.
	// mediadevices broadcasts raw frames, so this does not starve the
	// encoder pipeline.
	if vt, ok := t.(*mediadevices.VideoTrack); ok {
		reader := vt.NewReader(false)
		go func() {
			img, release, err := reader.Read()
			if err != nil {
				log.Warn().Err(err).Str("module", "media").Msg("settle reader")
				return
			}
			bounds := img.Bounds()
			if release != nil {
				release()
			}
			dt.mu.Lock()
			dt.settings.Width = bounds.Dx()
			dt.settings.Height = bounds.Dy()
			dt.mu.Unlock()
		}()
	}
	return dt
}

func (dt *deviceTrack) ID() string { return dt.t.ID() }

func (dt *deviceTrack) Kind() TrackKind { return dt.kind }

func (dt *deviceTrack) Settings() TrackSettings {
	dt.mu.Lock()
	defer dt.mu.Unlock()
	return dt.settings
}

func (dt *deviceTrack) Local() webrtc.TrackLocal { return dt.t }

func (dt *deviceTrack) Stop() error {
	dt.mu.Lock()
	if dt.stopped {
		dt.mu.Unlock()
		return nil
	}
	dt.stopped = true
	dt.mu.Unlock()
	return dt.t.Close()
}

// NewEncodedReader gives the recording sidecar its own compressed-frame
// reader, running in parallel to the publication encoder.
func (dt *deviceTrack) NewEncodedReader(mimeType string) (EncodedFrameReader, error) {
	r, err := dt.t.NewEncodedReader(mimeType)
	if err != nil {
		return nil, err
	}
	return &encodedReader{r: r}, nil
}

type encodedReader struct{ r mediadevices.EncodedReadCloser }

func (e *encodedReader) Read() ([]byte, func(), error) {
	buf, release, err := e.r.Read()
	if err != nil {
		return nil, nil, err
	}
	data := make([]byte, len(buf.Data))
	copy(data, buf.Data)
	return data, release, nil
}

func (e *encodedReader) Close() error { return e.r.Close() }
