package session

import "time"

// The constants below pair with the server-side adaptive streaming policy;
// they must match it exactly for the quality negotiation to behave.

type Quality int

const (
	QualityLow Quality = iota
	QualityMedium
	QualityHigh
)

// AdaptiveStream bounds automatic quality switching.
type AdaptiveStream struct {
	Enabled     bool
	MinQuality  Quality
	MaxQuality  Quality
	Sensitivity int // 1-10
	// SwitchDelay is the minimum dwell time between automatic quality
	// switches, to avoid oscillation.
	SwitchDelay time.Duration
}

type VideoLayer struct {
	Width  int
	Height int
}

type EncodingBounds struct {
	MinBitrate   int
	MaxBitrate   int
	MaxFramerate int
	Priority     string
}

// ReconnectPolicy is executed by the transport; the controller layers no
// retry loop of its own on top.
type ReconnectPolicy struct {
	MaxRetries        int
	AttemptTimeout    time.Duration
	BackoffInitial    time.Duration
	BackoffMax        time.Duration
	BackoffMultiplier float64
}

var (
	DefaultAdaptiveStream = AdaptiveStream{
		Enabled:     true,
		MinQuality:  QualityLow,
		MaxQuality:  QualityHigh,
		Sensitivity: 5,
		SwitchDelay: 3 * time.Second,
	}

	// Four fixed simulcast rungs, highest first.
	DefaultSimulcastLayers = []VideoLayer{
		{1920, 1080},
		{1280, 720},
		{960, 540},
		{640, 360},
	}

	DefaultVideoEncoding = EncodingBounds{
		MinBitrate:   150_000,
		MaxBitrate:   3_000_000,
		MaxFramerate: 30,
		Priority:     "balanced",
	}

	DefaultAudioEncoding = EncodingBounds{
		MinBitrate: 32_000,
		MaxBitrate: 128_000,
		Priority:   "balanced",
	}

	DefaultReconnect = ReconnectPolicy{
		MaxRetries:        3,
		AttemptTimeout:    10 * time.Second,
		BackoffInitial:    time.Second,
		BackoffMax:        10 * time.Second,
		BackoffMultiplier: 1.5,
	}
)
