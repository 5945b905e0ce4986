package webrtc

import (
	"errors"

	"modview/native/internal/domain"

	"github.com/pion/rtp"
)

// fakePeer records calls and fires callbacks synchronously.
type fakePeer struct {
	sig    domain.SignalingState
	conn   domain.ConnectionState
	remote *domain.SDPPayload
	local  *domain.SDPPayload

	applied      []string
	remoteSets   int
	closes       int
	transceivers int
	setRemoteErr error
	onSetRemote  func()

	onTrack func(domain.Track)
	onICE   func(domain.ICECandidatePayload)
	onConn  func(domain.ConnectionState)
	onSig   func(domain.SignalingState)
}

func newFakePeer() *fakePeer {
	return &fakePeer{sig: domain.SignalingStable, conn: domain.ConnectionNew}
}

func (f *fakePeer) AddTransceivers() error { f.transceivers++; return nil }

func (f *fakePeer) SetOnTrack(fn func(domain.Track))                           { f.onTrack = fn }
func (f *fakePeer) SetOnICECandidate(fn func(domain.ICECandidatePayload))      { f.onICE = fn }
func (f *fakePeer) SetOnConnectionStateChange(fn func(domain.ConnectionState)) { f.onConn = fn }
func (f *fakePeer) SetOnSignalingStateChange(fn func(domain.SignalingState))   { f.onSig = fn }

func (f *fakePeer) SignalingState() domain.SignalingState   { return f.sig }
func (f *fakePeer) ConnectionState() domain.ConnectionState { return f.conn }
func (f *fakePeer) RemoteDescription() *domain.SDPPayload   { return f.remote }
func (f *fakePeer) LocalDescription() *domain.SDPPayload    { return f.local }

func (f *fakePeer) SetRemoteDescription(sdp domain.SDPPayload) error {
	if f.onSetRemote != nil {
		f.onSetRemote()
	}
	f.remoteSets++
	if f.setRemoteErr != nil {
		err := f.setRemoteErr
		f.setRemoteErr = nil
		return err
	}
	f.remote = &sdp
	f.setSignaling(domain.SignalingHaveRemoteOffer)
	return nil
}

func (f *fakePeer) CreateAnswer() (domain.SDPPayload, error) {
	if f.remote == nil {
		return domain.SDPPayload{}, errors.New("no remote description")
	}
	return domain.SDPPayload{Type: "answer", SDP: "v=0 answer"}, nil
}

func (f *fakePeer) SetLocalDescription(sdp domain.SDPPayload) error {
	f.local = &sdp
	f.setSignaling(domain.SignalingStable)
	return nil
}

func (f *fakePeer) AddRemoteICECandidate(c domain.ICECandidatePayload) error {
	f.applied = append(f.applied, c.Candidate)
	return nil
}

func (f *fakePeer) Close() error {
	f.closes++
	f.sig = domain.SignalingClosed
	f.conn = domain.ConnectionClosed
	return nil
}

func (f *fakePeer) setSignaling(s domain.SignalingState) {
	f.sig = s
	if f.onSig != nil {
		f.onSig(s)
	}
}

func (f *fakePeer) setConnection(s domain.ConnectionState) {
	f.conn = s
	if f.onConn != nil {
		f.onConn(s)
	}
}

type fakeTrack struct{ id, kind string }

func (t fakeTrack) ID() string                    { return t.id }
func (t fakeTrack) StreamID() string              { return "stream-" + t.id }
func (t fakeTrack) Kind() string                  { return t.kind }
func (t fakeTrack) ReadRTP() (*rtp.Packet, error) { return nil, errors.New("eof") }

func candidate(s string) domain.ICECandidatePayload {
	return domain.ICECandidatePayload{Candidate: s}
}
