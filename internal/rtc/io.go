package rtc

import (
	"errors"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	errBackpressure = errors.New("rtc: send buffer full")
	errConnClosed   = errors.New("rtc: connection closed")
)

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) trySend(b []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return errBackpressure
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (c *Client) writePump(conn *wsConn) {
	for data := range conn.send {
		if err := conn.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("writePump set deadline")
			return
		}
		if err := conn.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("writePump write error")
			return
		}
	}
}

func (c *Client) readPump(conn *wsConn) {
	defer conn.close()

	for {
		_, data, err := conn.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			stale := c.conn != conn
			closing := c.closing
			c.mu.Unlock()
			if stale || closing {
				log.Info().Str("module", "rtc").Msg("readPump closing")
				return
			}
			log.Warn().Err(err).Str("module", "rtc").Msg("signaling connection lost")
			go c.reconnect()
			return
		}
		c.handleSignal(conn, data)
	}
}

func (c *Client) handleSignal(conn *wsConn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad json")
		return
	}

	switch env.Type {
	case "participant-joined":
		c.handleParticipantJoined(data)
	case "participant-left":
		c.handleParticipantLeft(data)
	case "quality":
		c.handleQuality(data)
	case "subscribed":
		c.handleSubscribed(data)
	case "answer":
		c.handleAnswer(data)
	case "candidate":
		c.handleCandidate(data)
	case "bye":
		c.handleBye(data)
	case "error":
		c.handleError(data)
	default:
		log.Warn().Str("module", "rtc").Str("type", env.Type).Msg("unknown signal")
	}
}

func (c *Client) handleParticipantJoined(data []byte) {
	var p participantMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad participant payload")
		return
	}
	c.mu.Lock()
	c.members[p.Identity] = struct{}{}
	c.mu.Unlock()
	if c.cbs.OnParticipantConnected != nil {
		c.cbs.OnParticipantConnected(p.Identity)
	}
}

func (c *Client) handleParticipantLeft(data []byte) {
	var p participantMessage
	if err := json.Unmarshal(data, &p); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad participant payload")
		return
	}
	c.mu.Lock()
	delete(c.members, p.Identity)
	c.mu.Unlock()
	if c.cbs.OnParticipantDisconnected != nil {
		c.cbs.OnParticipantDisconnected(p.Identity)
	}
}

func (c *Client) handleQuality(data []byte) {
	var q qualityMessage
	if err := json.Unmarshal(data, &q); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad quality payload")
		return
	}
	if c.cbs.OnConnectionQualityChanged != nil {
		c.cbs.OnConnectionQualityChanged(q.Quality, q.Identity)
	}
}

func (c *Client) handleSubscribed(data []byte) {
	var s subscribedMessage
	if err := json.Unmarshal(data, &s); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad subscribed payload")
		return
	}
	if c.cbs.OnTrackSubscribed != nil {
		c.cbs.OnTrackSubscribed(s.TrackID, s.Identity)
	}
}

func (c *Client) handleAnswer(data []byte) {
	var m sdpMessage
	if err := json.Unmarshal(data, &m); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad answer payload")
		return
	}
	c.mu.Lock()
	ch := c.answerCh
	c.answerCh = nil
	c.mu.Unlock()
	if ch == nil {
		log.Warn().Str("module", "rtc").Msg("unsolicited answer")
		return
	}
	ch <- m.SDP
}

func (c *Client) handleCandidate(data []byte) {
	var m candidateMessage
	if err := json.Unmarshal(data, &m); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad candidate payload")
		return
	}
	c.mu.Lock()
	peer := c.peer
	c.mu.Unlock()
	if peer == nil {
		return
	}
	cand := webrtc.ICECandidateInit{Candidate: m.Candidate}
	if m.SDPMid != "" {
		cand.SDPMid = &m.SDPMid
	}
	cand.SDPMLineIndex = &m.SDPMLineIndex
	if err := peer.addICECandidate(cand); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("add ice candidate")
	}
}

// handleBye is a server-initiated end of session. No reconnect is attempted.
func (c *Client) handleBye(data []byte) {
	var m byeMessage
	_ = json.Unmarshal(data, &m)
	log.Info().Str("module", "rtc").Str("reason", m.Reason).Msg("server closed session")
	c.mu.Lock()
	c.closing = true
	c.mu.Unlock()
	if c.cbs.OnDisconnected != nil {
		c.cbs.OnDisconnected()
	}
}

func (c *Client) handleError(data []byte) {
	var m errorMessage
	_ = json.Unmarshal(data, &m)
	log.Error().Str("module", "rtc").Str("error", m.Error).Msg("server error")
}
