// Package viewer attaches a moderator to one live session: it owns the
// signaling channel, room membership, peer connection, room view and
// playback for the life of the attachment, and runs them on one event loop.
package viewer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"modview/native/internal/domain"
	"modview/native/internal/identity"
	"modview/native/internal/playback"
	"modview/native/internal/presence"
	"modview/native/internal/room"
	"modview/native/internal/signal"
	"modview/native/internal/webrtc"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog/log"
)

var (
	// ErrSessionEnded is returned by Run when the room reports the end of the session.
	ErrSessionEnded = errors.New("session ended")
	// ErrClosed is returned by Run after Teardown.
	ErrClosed = errors.New("viewer closed")
)

// Config wires a Viewer.
type Config struct {
	SessionID  string
	Endpoint   string
	Credential string
	Conns      *signal.Manager
	API        domain.SessionAPI
	NewPeer    webrtc.PeerFactory

	Clock          clock.Clock
	RejoinInterval time.Duration
	ReactionTTL    time.Duration

	// OnStatus is called on the event loop whenever the status changes.
	OnStatus func(domain.Status)
}

// Viewer is one attachment. It implements domain.Handler; every inbound event
// is handed to the event loop started by Run.
type Viewer struct {
	cfg Config

	pinner     *identity.Pinner
	conn       domain.Signaler
	keeper     *room.Keeper
	negotiator *webrtc.Negotiator
	relay      *presence.Relay
	player     *playback.Supervisor

	qmu   sync.Mutex
	queue []func()
	wake  chan struct{}

	mu       sync.Mutex
	started  bool
	status   domain.Status
	detail   *domain.SessionDetail
	done     chan struct{}
	loopDone chan struct{}

	closeOnce   sync.Once
	cleanupOnce sync.Once
	ctx         context.Context
	cancel      context.CancelFunc

	// owned by the event loop
	apiJoined     bool
	loading       bool
	reloadPending bool
	ended         error
}

var _ domain.Handler = (*Viewer)(nil)

// New builds the attachment and pins its session identity. Nothing is
// dialed until Run.
func New(cfg Config) (*Viewer, error) {
	if cfg.SessionID == "" {
		return nil, errors.New("viewer: empty session id")
	}
	if cfg.Conns == nil || cfg.API == nil || cfg.NewPeer == nil {
		return nil, errors.New("viewer: missing collaborator")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.OnStatus == nil {
		cfg.OnStatus = func(domain.Status) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &Viewer{
		cfg:      cfg,
		pinner:   identity.New(),
		player:   playback.NewSupervisor(),
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		status:   domain.StatusConnecting,
		ctx:      ctx,
		cancel:   cancel,
	}
	v.pinner.Pin(cfg.SessionID)

	v.conn = cfg.Conns.Acquire(cfg.Endpoint, cfg.Credential)
	v.keeper = room.NewKeeper(v.conn, v.pinner.Current, cfg.Clock, cfg.RejoinInterval, v.post)
	v.negotiator = webrtc.NewNegotiator(webrtc.Config{
		NewPeer:  cfg.NewPeer,
		Identity: v.pinner,
		Send:     v.conn.Send,
		Post:     v.post,
		OnTrack:  v.player.AttachTrack,
		OnStatus: v.setStatus,
	})
	v.relay = presence.NewRelay(presence.Config{
		SessionID:   v.pinner.Current,
		Clock:       cfg.Clock,
		ReactionTTL: cfg.ReactionTTL,
		Reload:      v.reload,
		Post:        v.post,
	})
	return v, nil
}

// SessionID returns the pinned session identity.
func (v *Viewer) SessionID() string { return v.pinner.Current() }

// Relay exposes the chat, reaction and audience view.
func (v *Viewer) Relay() *presence.Relay { return v.relay }

// Player exposes the playback supervisor.
func (v *Viewer) Player() *playback.Supervisor { return v.player }

// Membership returns the room membership record.
func (v *Viewer) Membership() room.Membership { return v.keeper.Snapshot() }

// Status returns the user-visible connection status.
func (v *Viewer) Status() domain.Status {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.status
}

// Detail returns the last loaded session detail, or nil.
func (v *Viewer) Detail() *domain.SessionDetail {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.detail
}

// SetTarget installs the render target; a cached stream is re-attached.
func (v *Viewer) SetTarget(t playback.Target) { v.player.SetTarget(t) }

// Gesture reports a user interaction to playback.
func (v *Viewer) Gesture() { v.player.Gesture() }

// Run connects the signaling channel and processes events until ctx is
// done, Teardown is called or the session ends. It tears the attachment
// down before returning.
func (v *Viewer) Run(ctx context.Context) error {
	v.mu.Lock()
	select {
	case <-v.done:
		v.mu.Unlock()
		return ErrClosed
	default:
	}
	if v.started {
		v.mu.Unlock()
		return errors.New("viewer: already running")
	}
	v.started = true
	v.mu.Unlock()

	defer func() {
		close(v.loopDone)
		v.cleanupOnce.Do(v.cleanup)
	}()

	log.Info().Str("module", "viewer").Str("session_id", v.SessionID()).Msg("attaching")
	v.conn.SetHandler(v)
	if v.conn.Connected() {
		v.post(v.onConnect)
	}
	if err := v.conn.Connect(); err != nil {
		return fmt.Errorf("connect signaling: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-v.done:
			return nil
		case <-v.wake:
			for _, fn := range v.drain() {
				fn()
				if v.ended != nil {
					return v.ended
				}
			}
		}
	}
}

// post schedules fn on the event loop. It never blocks; work posted after
// teardown is dropped.
func (v *Viewer) post(fn func()) {
	select {
	case <-v.done:
		return
	default:
	}
	v.qmu.Lock()
	v.queue = append(v.queue, fn)
	v.qmu.Unlock()
	select {
	case v.wake <- struct{}{}:
	default:
	}
}

func (v *Viewer) drain() []func() {
	v.qmu.Lock()
	defer v.qmu.Unlock()
	fns := v.queue
	v.queue = nil
	return fns
}

// Teardown stops the attachment. It must not be called from the event loop.
// Calling it more than once is a no-op.
func (v *Viewer) Teardown() {
	v.closeOnce.Do(func() { close(v.done) })

	v.mu.Lock()
	started := v.started
	v.mu.Unlock()
	if started {
		<-v.loopDone
	}
	v.cleanupOnce.Do(v.cleanup)
}

// Leave sends a best-effort leave_session, then tears down.
func (v *Viewer) Leave() {
	v.keeper.Leave()
	v.Teardown()
}

func (v *Viewer) cleanup() {
	log.Info().Str("module", "viewer").Str("session_id", v.SessionID()).Msg("detaching")
	v.closeOnce.Do(func() { close(v.done) })
	v.cancel()
	v.keeper.Stop()
	v.conn.ClearHandler(v)
	v.cfg.Conns.Release(v.conn)
	v.negotiator.Close()
	v.relay.Close()
	v.player.Reset()
}

func (v *Viewer) setStatus(s domain.Status) {
	v.mu.Lock()
	changed := v.status != s
	v.status = s
	v.mu.Unlock()
	if changed {
		log.Info().Str("module", "viewer").Str("status", string(s)).Msg("status")
		v.cfg.OnStatus(s)
	}
}

// Handler implementation. Each method hops onto the event loop.

func (v *Viewer) OnConnect() { v.post(v.onConnect) }

func (v *Viewer) OnDisconnect(reason string) {
	v.post(func() { v.onDisconnect(reason) })
}

func (v *Viewer) OnJoined(domain.Joined) { v.post(v.onJoined) }

func (v *Viewer) OnOffer(msg domain.Offer) {
	v.post(func() { v.negotiator.HandleOffer(msg) })
}

func (v *Viewer) OnICE(msg domain.ICE) {
	v.post(func() { v.negotiator.HandleICE(msg) })
}

func (v *Viewer) OnChat(msg domain.Chat) {
	v.post(func() { v.relay.HandleChat(msg) })
}

func (v *Viewer) OnReaction(msg domain.Reaction) {
	v.post(func() { v.relay.HandleReaction(msg) })
}

func (v *Viewer) OnPresence(msg domain.Presence) {
	v.post(func() { v.relay.HandlePresence(msg) })
}

func (v *Viewer) OnSessionEnded(msg domain.SessionEnded) {
	v.post(func() { v.onSessionEnded(msg) })
}

// onConnect prepares the peer connection before asserting membership so an
// offer triggered by the join is never missed.
func (v *Viewer) onConnect() {
	if v.negotiator.State() != webrtc.StateEstablished {
		v.setStatus(domain.StatusConnecting)
	}
	if err := v.negotiator.Ensure(); err != nil {
		log.Error().Str("module", "viewer").Err(err).Msg("prepare peer connection")
	}
	if err := v.keeper.Assert(); err != nil {
		log.Warn().Str("module", "viewer").Err(err).Msg("join session")
	}
	v.keeper.Start()
}

func (v *Viewer) onDisconnect(reason string) {
	v.keeper.Reset()
	v.setStatus(domain.StatusDisconnected)
	log.Warn().Str("module", "viewer").Str("reason", reason).Msg("signaling channel lost")
}

func (v *Viewer) onJoined() {
	v.keeper.Acknowledge()
	if err := v.negotiator.Ensure(); err != nil {
		log.Error().Str("module", "viewer").Err(err).Msg("prepare peer connection")
	}
	if v.apiJoined {
		return
	}
	v.apiJoined = true
	log.Info().Str("module", "viewer").Str("session_id", v.SessionID()).Msg("joined session room, joining as viewer")

	sid := v.SessionID()
	v.loading = true
	go func() {
		if err := v.cfg.API.JoinAsViewer(v.ctx, sid); err != nil {
			log.Error().Str("module", "viewer").Err(err).Msg("join session as admin")
		}
		v.fetchDetail(sid)
	}()
}

// reload requests a fresh session detail. Requests made while one is in
// flight are coalesced into a single follow-up.
func (v *Viewer) reload() {
	if v.loading {
		v.reloadPending = true
		return
	}
	v.loading = true
	sid := v.SessionID()
	go v.fetchDetail(sid)
}

func (v *Viewer) fetchDetail(sid string) {
	detail, err := v.cfg.API.SessionDetail(v.ctx, sid)
	v.post(func() { v.applyDetail(detail, err) })
}

func (v *Viewer) applyDetail(detail *domain.SessionDetail, err error) {
	v.loading = false
	switch {
	case err != nil:
		log.Error().Str("module", "viewer").Err(err).Msg("load session")
	default:
		v.mu.Lock()
		v.detail = detail
		v.mu.Unlock()
		v.negotiator.SetBroadcaster(detail.BroadcasterID)
		v.relay.SetViewers(detail.Viewers)
		log.Debug().Str("module", "viewer").Int("viewers", len(detail.Viewers)).Msg("session loaded")
	}
	if v.reloadPending {
		v.reloadPending = false
		v.reload()
	}
}

func (v *Viewer) onSessionEnded(msg domain.SessionEnded) {
	if !msg.Terminal() {
		log.Debug().Str("module", "viewer").Str("reason", msg.Reason).Msg("non-terminal disconnect event")
		return
	}
	log.Info().Str("module", "viewer").Str("reason", msg.Reason).Msg("session has ended")
	v.setStatus(domain.StatusDisconnected)
	v.ended = ErrSessionEnded
}

// SendChat posts a chat message to the room.
func (v *Viewer) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return v.conn.Send(domain.Chat{SessionID: v.SessionID(), Message: text})
}

// SendReaction posts a reaction to the room.
func (v *Viewer) SendReaction(emoji string) error {
	return v.conn.Send(domain.Reaction{SessionID: v.SessionID(), Emoji: emoji})
}

// Kick removes a viewer, then reloads the session.
func (v *Viewer) Kick(ctx context.Context, userID string) error {
	if err := v.cfg.API.KickViewer(ctx, v.SessionID(), userID, ""); err != nil {
		return err
	}
	v.post(v.reload)
	return nil
}

// End ends the session for everyone.
func (v *Viewer) End(ctx context.Context) error {
	return v.cfg.API.EndSession(ctx, v.SessionID())
}
