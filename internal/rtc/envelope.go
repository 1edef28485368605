package rtc

import (
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"livecast/internal/session"
)

// Wire messages are flat JSON envelopes dispatched on the "type" field.

type envelope struct {
	Type string `json:"type"`
}

// joinMessage carries only the access token. The server derives the room
// and the participant identity from the token's grants.
type joinMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type joinedMessage struct {
	Type         string   `json:"type"`
	RoomSID      string   `json:"sid"`
	Participants []string `json:"participants"`
}

type participantMessage struct {
	Type     string `json:"type"`
	Identity string `json:"identity"`
}

type qualityMessage struct {
	Type     string `json:"type"`
	Quality  string `json:"quality"`
	Identity string `json:"identity"`
}

type subscribedMessage struct {
	Type     string `json:"type"`
	TrackID  string `json:"track"`
	Identity string `json:"identity"`
}

type sdpMessage struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type candidateMessage struct {
	Type          string `json:"type"`
	Candidate     string `json:"candidate"`
	SDPMid        string `json:"sdpMid,omitempty"`
	SDPMLineIndex uint16 `json:"sdpMLineIndex,omitempty"`
}

type publishMessage struct {
	Type      string                 `json:"type"`
	Kind      string                 `json:"kind"`
	Simulcast bool                   `json:"simulcast,omitempty"`
	Layers    []session.VideoLayer   `json:"layers,omitempty"`
	Encoding  session.EncodingBounds `json:"encoding"`
	Adaptive  session.AdaptiveStream `json:"adaptive"`
}

type byeMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func encode(v any) ([]byte, bool) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("encode")
		return nil, false
	}
	return b, true
}
