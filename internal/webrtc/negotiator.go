package webrtc

import (
	"errors"
	"fmt"

	"modview/native/internal/domain"
	"modview/native/internal/identity"

	"github.com/rs/zerolog/log"
)

// ErrTornDown is returned by Ensure after Close.
var ErrTornDown = errors.New("negotiator torn down")

// PeerFactory builds a fresh, unconfigured peer connection.
type PeerFactory func() (domain.Peer, error)

// State is the negotiator's lifecycle state.
type State int

const (
	StateAbsent State = iota
	StateNegotiating
	StateEstablished
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateNegotiating:
		return "negotiating"
	case StateEstablished:
		return "established"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Config wires a Negotiator to its collaborators.
type Config struct {
	NewPeer  PeerFactory
	Identity *identity.Pinner
	// Send emits an outbound signaling message.
	Send func(domain.Message) error
	// Post schedules fn on the owner's event loop. Peer callbacks arrive on
	// pion goroutines and are funnelled through it.
	Post     func(fn func())
	OnTrack  func(domain.Track)
	OnStatus func(domain.Status)
}

// Negotiator owns the attachment's single peer connection and answers the
// broadcaster's offers. Its methods must be called from one goroutine.
type Negotiator struct {
	cfg Config

	peer            domain.Peer
	queue           *CandidateQueue
	processingOffer bool
	trackAttached   bool
	broadcasterID   string
	state           State
	tornDown        bool
}

// NewNegotiator creates a Negotiator in the absent state.
func NewNegotiator(cfg Config) *Negotiator {
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}
	if cfg.OnTrack == nil {
		cfg.OnTrack = func(domain.Track) {}
	}
	if cfg.OnStatus == nil {
		cfg.OnStatus = func(domain.Status) {}
	}
	return &Negotiator{cfg: cfg, state: StateAbsent}
}

// State returns the current lifecycle state.
func (n *Negotiator) State() State { return n.state }

// Peer returns the live peer connection, or nil.
func (n *Negotiator) Peer() domain.Peer { return n.peer }

// QueuedCandidates returns how many remote candidates wait for a remote description.
func (n *Negotiator) QueuedCandidates() int {
	if n.queue == nil {
		return 0
	}
	return n.queue.Len()
}

// SetBroadcaster records the remote peer that answers and local candidates go to.
func (n *Negotiator) SetBroadcaster(userID string) {
	if userID == "" || userID == n.broadcasterID {
		return
	}
	n.broadcasterID = userID
	log.Debug().Str("module", "webrtc").Str("broadcaster", userID).Msg("remote peer set")
}

// BroadcasterID returns the current remote peer reference.
func (n *Negotiator) BroadcasterID() string { return n.broadcasterID }

func (n *Negotiator) usable() bool {
	if n.peer == nil {
		return false
	}
	if n.peer.SignalingState() == domain.SignalingClosed {
		return false
	}
	switch n.peer.ConnectionState() {
	case domain.ConnectionClosed, domain.ConnectionFailed:
		return false
	}
	return true
}

// Ensure creates a peer connection unless a usable one exists. Listeners are
// registered before it returns so an offer delivered right after cannot be missed.
func (n *Negotiator) Ensure() error {
	if n.tornDown {
		return ErrTornDown
	}
	if n.usable() {
		return nil
	}
	if n.peer != nil {
		log.Info().Str("module", "webrtc").Msg("closing unusable peer connection before recreating")
		closePeer(n.peer)
		n.peer = nil
	}

	p, err := n.cfg.NewPeer()
	if err != nil {
		n.state = StateAbsent
		return fmt.Errorf("create peer: %w", err)
	}

	n.peer = p
	n.queue = NewCandidateQueue(p)
	n.processingOffer = false
	n.trackAttached = false
	n.register(p)

	if err := p.AddTransceivers(); err != nil {
		log.Warn().Str("module", "webrtc").Err(err).Msg("failed to add transceivers")
	}
	n.state = StateNegotiating
	log.Info().Str("module", "webrtc").Msg("created peer connection")
	return nil
}

func (n *Negotiator) register(p domain.Peer) {
	p.SetOnTrack(func(t domain.Track) {
		n.cfg.Post(func() { n.handleTrack(p, t) })
	})
	p.SetOnConnectionStateChange(func(s domain.ConnectionState) {
		n.cfg.Post(func() { n.handleConnectionState(p, s) })
	})
	p.SetOnSignalingStateChange(func(s domain.SignalingState) {
		n.cfg.Post(func() { n.handleSignalingState(p, s) })
	})
	p.SetOnICECandidate(func(c domain.ICECandidatePayload) {
		n.cfg.Post(func() { n.handleLocalCandidate(p, c) })
	})
}

// reconcileSession applies the identity recovery path for inbound messages.
func (n *Negotiator) reconcileSession(sessionID, source string) {
	if sessionID == "" || n.cfg.Identity == nil {
		return
	}
	if sessionID != n.cfg.Identity.Current() {
		n.cfg.Identity.Override(sessionID, source)
	}
}

func (n *Negotiator) sessionID() string {
	if n.cfg.Identity == nil {
		return ""
	}
	return n.cfg.Identity.Current()
}

// HandleOffer processes the broadcaster's offer. Duplicates are dropped.
func (n *Negotiator) HandleOffer(msg domain.Offer) {
	if n.tornDown {
		return
	}
	if msg.Offer == nil {
		log.Debug().Str("module", "webrtc").Msg("offer without description ignored")
		return
	}
	n.reconcileSession(msg.SessionID, domain.EventOffer)

	if !n.usable() {
		log.Warn().Str("module", "webrtc").Msg("no usable peer connection when offer received, recreating")
		if err := n.Ensure(); err != nil {
			log.Error().Str("module", "webrtc").Err(err).Msg("recreate peer connection")
			return
		}
	}
	p := n.peer

	if p.RemoteDescription() != nil {
		log.Debug().Str("module", "webrtc").Msg("already have remote description, ignoring duplicate offer")
		return
	}
	if n.processingOffer {
		log.Debug().Str("module", "webrtc").Msg("offer already being processed, ignoring duplicate")
		return
	}

	n.processingOffer = true
	if n.broadcasterID == "" {
		n.SetBroadcaster(msg.FromUserID)
	}
	if err := n.answer(p, msg); err != nil {
		log.Error().Str("module", "webrtc").Err(err).Str("signaling_state", string(p.SignalingState())).Msg("error handling offer")
		n.processingOffer = false
	}
}

func (n *Negotiator) answer(p domain.Peer, msg domain.Offer) error {
	if err := p.SetRemoteDescription(*msg.Offer); err != nil {
		return err
	}
	log.Debug().Str("module", "webrtc").Str("signaling_state", string(p.SignalingState())).Msg("remote description set")

	answer, err := p.CreateAnswer()
	if err != nil {
		return err
	}
	if err := p.SetLocalDescription(answer); err != nil {
		return err
	}
	if local := p.LocalDescription(); local != nil {
		answer = *local
	}

	to := msg.FromUserID
	if to == "" {
		to = n.broadcasterID
	}
	if to == "" {
		log.Error().Str("module", "webrtc").Msg("no broadcaster id available to send answer")
		return nil
	}

	err = n.cfg.Send(domain.Answer{
		SessionID: n.sessionID(),
		To:        "user:" + to,
		Answer:    answer,
	})
	if err != nil {
		return fmt.Errorf("send answer: %w", err)
	}
	log.Info().Str("module", "webrtc").Str("to", to).Msg("answer emitted")
	return nil
}

// HandleICE queues or applies a remote candidate.
func (n *Negotiator) HandleICE(msg domain.ICE) {
	if n.tornDown || msg.Candidate == nil || msg.Candidate.Candidate == "" {
		return
	}
	n.reconcileSession(msg.SessionID, domain.EventICE)

	if !n.usable() {
		log.Debug().Str("module", "webrtc").Msg("no usable peer connection, ignoring ICE")
		return
	}
	if err := n.queue.Offer(*msg.Candidate); err != nil {
		log.Warn().Str("module", "webrtc").Err(err).Msg("ice add failed")
	}
}

func (n *Negotiator) handleLocalCandidate(p domain.Peer, c domain.ICECandidatePayload) {
	if p != n.peer {
		return
	}
	if n.broadcasterID == "" {
		log.Debug().Str("module", "webrtc").Msg("no remote peer yet, dropping local candidate")
		return
	}
	err := n.cfg.Send(domain.ICE{
		SessionID: n.sessionID(),
		To:        "user:" + n.broadcasterID,
		Candidate: &c,
	})
	if err != nil {
		log.Warn().Str("module", "webrtc").Err(err).Msg("send local candidate")
	}
}

func (n *Negotiator) handleTrack(p domain.Peer, t domain.Track) {
	if p != n.peer {
		return
	}
	n.trackAttached = true
	n.state = StateEstablished
	n.cfg.OnTrack(t)
	n.cfg.OnStatus(domain.StatusConnected)
}

func (n *Negotiator) handleConnectionState(p domain.Peer, s domain.ConnectionState) {
	if p != n.peer {
		return
	}
	log.Info().Str("module", "webrtc").Str("state", string(s)).Msg("peer connection state")

	switch s {
	case domain.ConnectionConnected:
		if n.trackAttached {
			n.state = StateEstablished
			n.cfg.OnStatus(domain.StatusConnected)
		}
	case domain.ConnectionDisconnected:
		log.Warn().Str("module", "webrtc").Msg("peer connection disconnected, waiting for recovery")
	case domain.ConnectionFailed:
		closePeer(p)
		n.peer = nil
		n.state = StateAbsent
		n.cfg.OnStatus(domain.StatusDisconnected)
	case domain.ConnectionClosed:
		if !n.tornDown {
			log.Error().Str("module", "webrtc").Msg("peer connection closed unexpectedly")
			n.state = StateClosed
			n.cfg.OnStatus(domain.StatusDisconnected)
		}
	}
}

func (n *Negotiator) handleSignalingState(p domain.Peer, s domain.SignalingState) {
	if p != n.peer {
		return
	}
	log.Debug().Str("module", "webrtc").Str("signaling_state", string(s)).Msg("signaling state")

	switch s {
	case domain.SignalingStable:
		if p.RemoteDescription() != nil {
			n.queue.Drain()
		}
	case domain.SignalingClosed:
		if !n.tornDown {
			log.Error().Str("module", "webrtc").Msg("signaling state closed during active session")
			n.state = StateClosed
		}
	}
}

// Close tears the peer connection down. Closing twice is a no-op.
func (n *Negotiator) Close() {
	n.tornDown = true
	n.state = StateClosed
	if n.peer == nil {
		return
	}
	closePeer(n.peer)
	n.peer = nil
}

func closePeer(p domain.Peer) {
	if p.SignalingState() == domain.SignalingClosed || p.ConnectionState() == domain.ConnectionClosed {
		return
	}
	if err := p.Close(); err != nil {
		log.Debug().Str("module", "webrtc").Err(err).Msg("close peer connection")
	}
}
