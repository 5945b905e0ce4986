package signal

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"modview/native/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 256 * 1024
)

// ErrNotConnected is returned by Send while the channel is down.
var ErrNotConnected = errors.New("signaling channel not connected")

// Options is the transport's bounded reconnection policy.
type Options struct {
	ReconnectDelay    time.Duration
	ReconnectAttempts int
	PingInterval      time.Duration
}

// DefaultOptions mirrors the relay's client defaults.
func DefaultOptions() Options {
	return Options{
		ReconnectDelay:    time.Second,
		ReconnectAttempts: 5,
		PingInterval:      25 * time.Second,
	}
}

// Client manages the WebSocket connection to the signaling relay.
type Client struct {
	endpoint   string
	credential string
	opts       Options
	dialer     *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	state   domain.ChannelState
	handler domain.Handler
	started bool

	writeMu   sync.Mutex
	closed    chan struct{}
	closeOnce sync.Once
}

// NewClient creates a signaling client. It does not dial until Connect.
func NewClient(endpoint, credential string, opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultOptions().ReconnectDelay
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = DefaultOptions().ReconnectAttempts
	}
	return &Client{
		endpoint:   endpoint,
		credential: credential,
		opts:       opts,
		dialer:     websocket.DefaultDialer,
		state:      domain.ChannelIdle,
		closed:     make(chan struct{}),
	}
}

func (c *Client) Endpoint() string   { return c.endpoint }
func (c *Client) Credential() string { return c.credential }

// State returns the current lifecycle state.
func (c *Client) State() domain.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the channel is currently open.
func (c *Client) Connected() bool {
	return c.State() == domain.ChannelConnected
}

// SetHandler replaces the receiver of inbound events. The previous handler
// stops receiving events as soon as this returns.
func (c *Client) SetHandler(h domain.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// ClearHandler removes h if it is still installed. A handler installed since
// by another owner is left alone.
func (c *Client) ClearHandler(h domain.Handler) {
	c.mu.Lock()
	if c.handler == h {
		c.handler = nil
	}
	c.mu.Unlock()
}

func (c *Client) currentHandler() domain.Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

// Connect starts the dial/read loop. Calling it while connecting or
// connected is a no-op.
func (c *Client) Connect() error {
	select {
	case <-c.closed:
		return fmt.Errorf("connect %s: %w", c.endpoint, ErrNotConnected)
	default:
	}

	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return nil
	}
	c.started = true
	c.state = domain.ChannelConnecting
	c.mu.Unlock()

	go c.run()
	return nil
}

// Disconnect closes the channel and stops reconnecting. A second call is a no-op.
func (c *Client) Disconnect() error {
	c.closeOnce.Do(func() {
		close(c.closed)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.state = domain.ChannelDisconnected
		c.mu.Unlock()

		if conn != nil {
			c.writeMu.Lock()
			_ = conn.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait),
			)
			c.writeMu.Unlock()
			conn.Close()
		}
		log.Info().Str("module", "signal").Str("endpoint", c.endpoint).Msg("disconnected")
	})
	return nil
}

// Send encodes and writes msg.
func (c *Client) Send(msg domain.Message) error {
	data, err := Encode(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	conn := c.conn
	connected := c.state == domain.ChannelConnected
	c.mu.Unlock()
	if conn == nil || !connected {
		return fmt.Errorf("send %s: %w", msg.Event(), ErrNotConnected)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	log.Debug().Str("module", "signal").Str("event", msg.Event()).Msg(">>>")
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msg.Event(), err)
	}
	return nil
}

// run dials, reads until the socket drops, and redials after a fixed delay.
// The attempt counter resets after every successful connect.
func (c *Client) run() {
	attempts := 0
	for {
		conn, err := c.dial()
		if err != nil {
			attempts++
			log.Warn().
				Str("module", "signal").
				Err(err).
				Int("attempt", attempts).
				Int("max_attempts", c.opts.ReconnectAttempts).
				Msg("dial failed")
			if attempts >= c.opts.ReconnectAttempts {
				c.mu.Lock()
				c.started = false
				c.state = domain.ChannelDisconnected
				c.mu.Unlock()
				c.notifyDisconnect("reconnect attempts exhausted")
				return
			}
			if !c.wait(c.opts.ReconnectDelay) {
				return
			}
			continue
		}
		attempts = 0

		c.mu.Lock()
		select {
		case <-c.closed:
			c.mu.Unlock()
			conn.Close()
			return
		default:
		}
		c.conn = conn
		c.state = domain.ChannelConnected
		c.mu.Unlock()

		log.Info().Str("module", "signal").Str("endpoint", c.endpoint).Msg("connected")
		if h := c.currentHandler(); h != nil {
			h.OnConnect()
		}

		stopPing := make(chan struct{})
		go c.pingLoop(conn, stopPing)
		reason := c.readLoop(conn)
		close(stopPing)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()

		select {
		case <-c.closed:
			return
		default:
		}

		c.setState(domain.ChannelDisconnected)
		c.notifyDisconnect(reason)
		if !c.wait(c.opts.ReconnectDelay) {
			return
		}
		c.setState(domain.ChannelConnecting)
	}
}

func (c *Client) dial() (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", c.credential)

	log.Debug().Str("module", "signal").Str("endpoint", c.endpoint).Msg("connecting")
	conn, _, err := c.dialer.Dial(c.endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)
	return conn, nil
}

func (c *Client) wait(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-c.closed:
		return false
	case <-t.C:
		return true
	}
}

func (c *Client) setState(s domain.ChannelState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) notifyDisconnect(reason string) {
	log.Warn().Str("module", "signal").Str("reason", reason).Msg("channel down")
	if h := c.currentHandler(); h != nil {
		h.OnDisconnect(reason)
	}
}

func (c *Client) readLoop(conn *websocket.Conn) string {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err.Error()
		}

		msg, err := Decode(data)
		if err != nil {
			log.Warn().Str("module", "signal").Err(err).Msg("decode error")
			continue
		}
		if msg == nil {
			log.Debug().Str("module", "signal").Bytes("frame", data).Msg("unhandled event")
			continue
		}
		log.Debug().Str("module", "signal").Str("event", msg.Event()).Msg("<<<")
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg domain.Message) {
	h := c.currentHandler()
	if h == nil {
		return
	}
	switch m := msg.(type) {
	case domain.Joined:
		h.OnJoined(m)
	case domain.Offer:
		h.OnOffer(m)
	case domain.ICE:
		h.OnICE(m)
	case domain.Chat:
		h.OnChat(m)
	case domain.Reaction:
		h.OnReaction(m)
	case domain.Presence:
		h.OnPresence(m)
	case domain.SessionEnded:
		h.OnSessionEnded(m)
	default:
		log.Debug().Str("module", "signal").Str("event", msg.Event()).Msg("no-op")
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	if c.opts.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				log.Warn().Str("module", "signal").Err(err).Msg("ping error")
				return
			}
		}
	}
}
