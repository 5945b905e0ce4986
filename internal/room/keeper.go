// Package room keeps the attachment's membership in the session room.
package room

import (
	"sync"
	"time"

	"modview/native/internal/domain"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

// DefaultInterval is the re-assertion period.
const DefaultInterval = 5 * time.Second

// Membership is a snapshot of the keeper's view of the room.
type Membership struct {
	SessionID      string
	Joined         bool
	LastAssertedAt time.Time
}

// Keeper asserts room membership on connect and again on a fixed timer,
// whether or not the relay acknowledged the previous assertion.
type Keeper struct {
	conn      domain.Signaler
	sessionID func() string
	clock     clock.Clock
	interval  time.Duration
	// post runs fn on the owner's event loop.
	post func(fn func())

	mu       sync.Mutex
	joined   bool
	lastSent time.Time
	ticker   *clock.Ticker
	stop     chan struct{}
}

// NewKeeper creates a Keeper. sessionID is read at every assertion so a
// corrected identity is picked up.
func NewKeeper(conn domain.Signaler, sessionID func() string, clk clock.Clock, interval time.Duration, post func(func())) *Keeper {
	if clk == nil {
		clk = clock.New()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Keeper{
		conn:      conn,
		sessionID: sessionID,
		clock:     clk,
		interval:  interval,
		post:      post,
	}
}

// Assert sends join_session if the channel is connected.
func (k *Keeper) Assert() error {
	sid := k.sessionID()
	if sid == "" || !k.conn.Connected() {
		return nil
	}
	if err := k.conn.Send(domain.JoinSession{SessionID: sid}); err != nil {
		return err
	}
	k.mu.Lock()
	k.lastSent = k.clock.Now()
	k.mu.Unlock()
	log.Debug().Str("module", "room").Str("session_id", sid).Msg("asserted membership")
	return nil
}

// Acknowledge records a joined event.
func (k *Keeper) Acknowledge() {
	k.mu.Lock()
	k.joined = true
	k.mu.Unlock()
}

// Reset marks membership as lost, e.g. after the channel dropped.
func (k *Keeper) Reset() {
	k.mu.Lock()
	k.joined = false
	k.mu.Unlock()
}

// Joined reports whether a joined acknowledgment was seen since the last Reset.
func (k *Keeper) Joined() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.joined
}

// Snapshot returns the current membership record.
func (k *Keeper) Snapshot() Membership {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Membership{SessionID: k.sessionID(), Joined: k.joined, LastAssertedAt: k.lastSent}
}

// Start begins periodic re-assertion. Calling Start while running is a no-op.
func (k *Keeper) Start() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ticker != nil {
		return
	}
	k.ticker = k.clock.Ticker(k.interval)
	k.stop = make(chan struct{})
	go k.loop(k.ticker, k.stop)
}

func (k *Keeper) loop(ticker *clock.Ticker, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			k.post(func() {
				select {
				case <-stop:
					return
				default:
				}
				if err := k.Assert(); err != nil {
					log.Warn().Str("module", "room").Err(err).Msg("periodic rejoin failed")
				}
			})
		}
	}
}

// Stop cancels the timer. Safe to call repeatedly.
func (k *Keeper) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ticker == nil {
		return
	}
	k.ticker.Stop()
	close(k.stop)
	k.ticker = nil
}

// Leave sends a best-effort leave_session if the channel is still open.
func (k *Keeper) Leave() {
	sid := k.sessionID()
	if sid == "" || !k.conn.Connected() {
		return
	}
	if err := k.conn.Send(domain.LeaveSession{SessionID: sid}); err != nil {
		log.Debug().Str("module", "room").Err(err).Msg("leave")
	}
}
