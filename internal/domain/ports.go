package domain

import (
	"context"

	"github.com/pion/rtp"
)

// SessionAPI is the REST collaborator of the moderator view.
type SessionAPI interface {
	JoinAsViewer(ctx context.Context, sessionID string) error
	SessionDetail(ctx context.Context, sessionID string) (*SessionDetail, error)
	KickViewer(ctx context.Context, sessionID, userID, reason string) error
	EndSession(ctx context.Context, sessionID string) error
}

// Signaler is one duplex signaling connection bound to a credential.
type Signaler interface {
	Endpoint() string
	Credential() string
	Connect() error
	Connected() bool
	State() ChannelState
	// SetHandler replaces the receiver of inbound events.
	SetHandler(h Handler)
	// ClearHandler removes h only if it is still the installed handler.
	ClearHandler(h Handler)
	Send(msg Message) error
	Disconnect() error
}

// Handler receives signaling events, one method per event kind.
type Handler interface {
	OnConnect()
	OnDisconnect(reason string)
	OnJoined(msg Joined)
	OnOffer(msg Offer)
	OnICE(msg ICE)
	OnChat(msg Chat)
	OnReaction(msg Reaction)
	OnPresence(msg Presence)
	OnSessionEnded(msg SessionEnded)
}

// Track is an inbound media track.
type Track interface {
	ID() string
	StreamID() string
	Kind() string
	ReadRTP() (*rtp.Packet, error)
}

// Peer manages one WebRTC peer connection.
type Peer interface {
	AddTransceivers() error
	SetOnTrack(fn func(Track))
	SetOnICECandidate(fn func(ICECandidatePayload))
	SetOnConnectionStateChange(fn func(ConnectionState))
	SetOnSignalingStateChange(fn func(SignalingState))
	SignalingState() SignalingState
	ConnectionState() ConnectionState
	RemoteDescription() *SDPPayload
	LocalDescription() *SDPPayload
	SetRemoteDescription(sdp SDPPayload) error
	CreateAnswer() (SDPPayload, error)
	SetLocalDescription(sdp SDPPayload) error
	AddRemoteICECandidate(candidate ICECandidatePayload) error
	Close() error
}
