package webrtc

import (
	"fmt"
	"strings"
	"time"

	"modview/native/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DefaultSTUNServers are used when no ICE servers are configured.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// Peer wraps a Pion PeerConnection configured for inbound-only media.
type Peer struct {
	pc *pion.PeerConnection
}

// NewPeer creates a PeerConnection with default codecs and receiver-side
// RTCP feedback (NACK generation and periodic PLI).
func NewPeer(stunServers []string) (*Peer, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	i := &interceptor.Registry{}
	generator, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generator)

	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(3 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("create pli interceptor: %w", err)
	}
	i.Add(pli)

	if err := pion.ConfigureRTCPReports(i); err != nil {
		return nil, fmt.Errorf("configure rtcp reports: %w", err)
	}

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	if len(stunServers) == 0 {
		stunServers = DefaultSTUNServers
	}
	var servers []pion.ICEServer
	for _, s := range stunServers {
		servers = append(servers, pion.ICEServer{URLs: []string{s}})
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Debug().Str("module", "webrtc").Str("ice_state", state.String()).Msg("ICE connection state")
	})

	return &Peer{pc: pc}, nil
}

// NewPeerFactory returns a PeerFactory building pion peers with stunServers.
func NewPeerFactory(stunServers []string) PeerFactory {
	return func() (domain.Peer, error) {
		return NewPeer(stunServers)
	}
}

// AddTransceivers adds recvonly video and audio transceivers.
func (p *Peer) AddTransceivers() error {
	_, err := p.pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("add video transceiver: %w", err)
	}

	_, err = p.pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	})
	if err != nil {
		return fmt.Errorf("add audio transceiver: %w", err)
	}

	return nil
}

// SetOnTrack registers the inbound track handler.
func (p *Peer) SetOnTrack(fn func(domain.Track)) {
	p.pc.OnTrack(func(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
		codec := track.Codec()
		log.Info().
			Str("module", "webrtc").
			Str("kind", track.Kind().String()).
			Str("codec", codec.MimeType).
			Uint8("pt", uint8(codec.PayloadType)).
			Msg("got track")
		fn(remoteTrack{track})
	})
}

// SetOnICECandidate registers the callback for locally discovered candidates.
// Loopback candidates are filtered.
func (p *Peer) SetOnICECandidate(fn func(domain.ICECandidatePayload)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			log.Debug().Str("module", "webrtc").Msg("ICE gathering complete")
			return
		}

		init := c.ToJSON()
		if isLoopback(init.Candidate) {
			log.Debug().Str("module", "webrtc").Msg("filtering loopback ICE candidate")
			return
		}
		fn(domain.ICECandidatePayload{
			Candidate:        init.Candidate,
			SDPMid:           init.SDPMid,
			SDPMLineIndex:    init.SDPMLineIndex,
			UsernameFragment: init.UsernameFragment,
		})
	})
}

func (p *Peer) SetOnConnectionStateChange(fn func(domain.ConnectionState)) {
	p.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		fn(domain.ConnectionState(state.String()))
	})
}

func (p *Peer) SetOnSignalingStateChange(fn func(domain.SignalingState)) {
	p.pc.OnSignalingStateChange(func(state pion.SignalingState) {
		fn(domain.SignalingState(state.String()))
	})
}

func (p *Peer) SignalingState() domain.SignalingState {
	return domain.SignalingState(p.pc.SignalingState().String())
}

func (p *Peer) ConnectionState() domain.ConnectionState {
	return domain.ConnectionState(p.pc.ConnectionState().String())
}

func (p *Peer) RemoteDescription() *domain.SDPPayload {
	return toPayload(p.pc.RemoteDescription())
}

func (p *Peer) LocalDescription() *domain.SDPPayload {
	return toPayload(p.pc.LocalDescription())
}

// SetRemoteDescription applies the broadcaster's offer.
func (p *Peer) SetRemoteDescription(sdp domain.SDPPayload) error {
	desc := pion.SessionDescription{
		Type: pion.NewSDPType(sdp.Type),
		SDP:  sdp.SDP,
	}
	if desc.Type == pion.SDPTypeUnknown {
		return fmt.Errorf("set remote description: unknown sdp type %q", sdp.Type)
	}
	if err := p.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

// CreateAnswer creates an SDP answer without applying it.
func (p *Peer) CreateAnswer() (domain.SDPPayload, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return domain.SDPPayload{}, fmt.Errorf("create answer: %w", err)
	}
	return domain.SDPPayload{Type: answer.Type.String(), SDP: answer.SDP}, nil
}

func (p *Peer) SetLocalDescription(sdp domain.SDPPayload) error {
	desc := pion.SessionDescription{
		Type: pion.NewSDPType(sdp.Type),
		SDP:  sdp.SDP,
	}
	if err := p.pc.SetLocalDescription(desc); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	return nil
}

// AddRemoteICECandidate adds a candidate received from the broadcaster.
func (p *Peer) AddRemoteICECandidate(candidate domain.ICECandidatePayload) error {
	init := pion.ICECandidateInit{
		Candidate:        candidate.Candidate,
		SDPMid:           candidate.SDPMid,
		SDPMLineIndex:    candidate.SDPMLineIndex,
		UsernameFragment: candidate.UsernameFragment,
	}
	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// Close shuts down the PeerConnection.
func (p *Peer) Close() error {
	if p.pc == nil {
		return nil
	}
	return p.pc.Close()
}

func toPayload(desc *pion.SessionDescription) *domain.SDPPayload {
	if desc == nil {
		return nil
	}
	return &domain.SDPPayload{Type: desc.Type.String(), SDP: desc.SDP}
}

func isLoopback(candidate string) bool {
	return strings.Contains(candidate, "127.0.0.1") || strings.Contains(candidate, "::1 ")
}

// remoteTrack adapts a pion TrackRemote to domain.Track.
type remoteTrack struct {
	t *pion.TrackRemote
}

func (r remoteTrack) ID() string       { return r.t.ID() }
func (r remoteTrack) StreamID() string { return r.t.StreamID() }
func (r remoteTrack) Kind() string     { return r.t.Kind().String() }

func (r remoteTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, _, err := r.t.ReadRTP()
	return pkt, err
}
