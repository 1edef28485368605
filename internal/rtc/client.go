package rtc

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"livecast/internal/domain"
	"livecast/internal/session"
)

const (
	writeTimeout     = 5 * time.Second
	joinTimeout      = 10 * time.Second
	negotiateTimeout = 10 * time.Second
)

var errClosed = errors.New("rtc: client closed")

type publishedTrack struct {
	local webrtc.TrackLocal
	opts  session.TrackPublishOptions
}

// Client is a broadcaster-side signaling and media connection. It keeps a
// websocket to the signaling endpoint and a single uplink peer connection,
// and reconnects on its own when the session drops mid-stream.
type Client struct {
	cbs      session.Callbacks
	rtcCfg   webrtc.Configuration
	policy   session.ReconnectPolicy
	adaptive session.AdaptiveStream

	mu        sync.Mutex
	conn      *wsConn
	peer      *peerConn
	url       string
	token     string
	roomSID   string
	members   map[string]struct{}
	published []publishedTrack
	answerCh  chan string
	closing   bool
}

// NewClient builds a client wired to the given callbacks. Satisfies
// session.TransportFactory.
func NewClient(cbs session.Callbacks) session.Transport {
	return &Client{
		cbs:      cbs,
		rtcCfg:   defaultWebRTCConfig(),
		policy:   session.DefaultReconnect,
		adaptive: session.DefaultAdaptiveStream,
		members:  map[string]struct{}{},
	}
}

// Connect dials the signaling endpoint and joins the room named by the
// token. Retries with backoff within the reconnect policy's budget before
// giving up.
func (c *Client) Connect(ctx context.Context, url, token string) error {
	c.mu.Lock()
	c.url = url
	c.token = token
	c.closing = false
	c.mu.Unlock()

	var lastErr error
	backoff := c.policy.BackoffInitial
	for attempt := 0; attempt <= c.policy.MaxRetries; attempt++ {
		c.mu.Lock()
		closing := c.closing
		c.mu.Unlock()
		if closing {
			// Disconnect won the race; stop dialing instead of
			// re-establishing a session nobody owns.
			return errClosed
		}
		if attempt > 0 {
			log.Info().Str("module", "rtc").Int("attempt", attempt).Dur("backoff", backoff).Msg("retrying connect")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = nextBackoff(backoff, c.policy)
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.policy.AttemptTimeout)
		err := c.dialAndJoin(attemptCtx)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().Err(err).Str("module", "rtc").Int("attempt", attempt).Msg("connect attempt failed")
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

func nextBackoff(cur time.Duration, p session.ReconnectPolicy) time.Duration {
	next := time.Duration(float64(cur) * p.BackoffMultiplier)
	if next > p.BackoffMax {
		next = p.BackoffMax
	}
	return next
}

// dialAndJoin performs one full connection attempt: websocket dial, join
// handshake, peer connection setup, pump startup.
func (c *Client) dialAndJoin(ctx context.Context) error {
	c.mu.Lock()
	url, token := c.url, c.token
	c.mu.Unlock()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return err
	}

	join, ok := encode(joinMessage{Type: "join", Token: token})
	if !ok {
		_ = ws.Close()
		return errors.New("rtc: encode join")
	}
	if err := ws.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		_ = ws.Close()
		return err
	}
	if err := ws.WriteMessage(websocket.TextMessage, join); err != nil {
		_ = ws.Close()
		return err
	}

	if err := ws.SetReadDeadline(time.Now().Add(joinTimeout)); err != nil {
		_ = ws.Close()
		return err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		_ = ws.Close()
		return err
	}
	var joined joinedMessage
	if err := json.Unmarshal(data, &joined); err != nil || joined.Type != "joined" {
		_ = ws.Close()
		return errors.New("rtc: join rejected")
	}
	_ = ws.SetReadDeadline(time.Time{})

	peer, err := newPeerConn(c.rtcCfg)
	if err != nil {
		_ = ws.Close()
		return err
	}
	peer.onICE = c.sendCandidate
	peer.start()

	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, 32),
	}

	c.mu.Lock()
	c.conn = conn
	c.peer = peer
	c.roomSID = joined.RoomSID
	c.members = map[string]struct{}{}
	for _, id := range joined.Participants {
		c.members[id] = struct{}{}
	}
	c.mu.Unlock()

	go c.writePump(conn)
	go c.readPump(conn)

	log.Info().Str("module", "rtc").Str("sid", joined.RoomSID).Int("participants", len(joined.Participants)).Msg("joined")
	return nil
}

// PublishTrack attaches the track to the peer connection, announces it on
// the signaling channel and renegotiates.
func (c *Client) PublishTrack(track webrtc.TrackLocal, opts session.TrackPublishOptions) error {
	c.mu.Lock()
	conn, peer := c.conn, c.peer
	if conn == nil || peer == nil {
		c.mu.Unlock()
		return errClosed
	}
	answerCh := make(chan string, 1)
	c.answerCh = answerCh
	c.mu.Unlock()

	announce, ok := encode(publishMessage{
		Type:      "publish",
		Kind:      opts.Kind,
		Simulcast: opts.Simulcast,
		Layers:    opts.Layers,
		Encoding:  opts.Encoding,
		Adaptive:  c.adaptive,
	})
	if !ok {
		return errors.New("rtc: encode publish")
	}
	if err := conn.trySend(announce); err != nil {
		return err
	}

	if _, err := peer.addTrack(track); err != nil {
		return err
	}
	if err := c.negotiate(conn, peer, answerCh); err != nil {
		return err
	}

	c.mu.Lock()
	c.published = append(c.published, publishedTrack{local: track, opts: opts})
	c.mu.Unlock()
	log.Info().Str("module", "rtc").Str("kind", opts.Kind).Bool("simulcast", opts.Simulcast).Msg("track published")
	return nil
}

func (c *Client) negotiate(conn *wsConn, peer *peerConn, answerCh chan string) error {
	offer, err := peer.createOffer()
	if err != nil {
		return err
	}
	msg, ok := encode(sdpMessage{Type: "offer", SDP: offer.SDP})
	if !ok {
		return errors.New("rtc: encode offer")
	}
	if err := conn.trySend(msg); err != nil {
		return err
	}
	select {
	case sdp := <-answerCh:
		return peer.applyAnswer(sdp)
	case <-time.After(negotiateTimeout):
		return errors.New("rtc: no answer from server")
	}
}

func (c *Client) sendCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return
	}
	msg := candidateMessage{Type: "candidate", Candidate: ci.Candidate}
	if ci.SDPMid != nil {
		msg.SDPMid = *ci.SDPMid
	}
	if ci.SDPMLineIndex != nil {
		msg.SDPMLineIndex = *ci.SDPMLineIndex
	}
	if b, ok := encode(msg); ok {
		_ = conn.trySend(b)
	}
}

// Disconnect says goodbye best-effort and closes both legs. Idempotent.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	c.closing = true
	conn, peer := c.conn, c.peer
	c.conn = nil
	c.peer = nil
	c.members = map[string]struct{}{}
	c.published = nil
	c.mu.Unlock()

	if conn != nil {
		if b, ok := encode(byeMessage{Type: "bye"}); ok {
			_ = conn.trySend(b)
		}
		conn.close()
	}
	if peer != nil {
		peer.close()
	}
	log.Info().Str("module", "rtc").Msg("disconnected")
	return nil
}

func (c *Client) RemoteParticipantCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.members)
}

func (c *Client) RoomSID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomSID
}

// reconnect runs after an unexpected signaling drop. It re-dials within the
// policy budget, republished tracks included, and reports terminal failure
// through OnDisconnected.
func (c *Client) reconnect() {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	republish := make([]publishedTrack, len(c.published))
	copy(republish, c.published)
	c.published = nil
	if c.peer != nil {
		c.peer.close()
		c.peer = nil
	}
	c.conn = nil
	c.mu.Unlock()

	if c.cbs.OnConnectionStateChanged != nil {
		c.cbs.OnConnectionStateChanged(domain.StateReconnecting)
	}

	backoff := c.policy.BackoffInitial
	for attempt := 1; attempt <= c.policy.MaxRetries; attempt++ {
		log.Info().Str("module", "rtc").Int("attempt", attempt).Dur("backoff", backoff).Msg("reconnecting")
		time.Sleep(backoff)
		backoff = nextBackoff(backoff, c.policy)

		c.mu.Lock()
		closing := c.closing
		c.mu.Unlock()
		if closing {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.policy.AttemptTimeout)
		err := c.dialAndJoin(ctx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("module", "rtc").Int("attempt", attempt).Msg("reconnect attempt failed")
			continue
		}

		for _, pt := range republish {
			if perr := c.PublishTrack(pt.local, pt.opts); perr != nil {
				log.Error().Err(perr).Str("module", "rtc").Str("kind", pt.opts.Kind).Msg("republish failed")
			}
		}
		if c.cbs.OnConnectionStateChanged != nil {
			c.cbs.OnConnectionStateChanged(domain.StateConnected)
		}
		log.Info().Str("module", "rtc").Msg("reconnected")
		return
	}

	log.Error().Str("module", "rtc").Int("retries", c.policy.MaxRetries).Msg("reconnect budget exhausted")
	if c.cbs.OnDisconnected != nil {
		c.cbs.OnDisconnected()
	}
}
