package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"modview/native/internal/domain"

	"github.com/pion/rtp"
)

// journal records cross-collaborator calls in order.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	j.entries = append(j.entries, fmt.Sprintf(format, args...))
	j.mu.Unlock()
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.entries...)
}

func (j *journal) index(entry string) int {
	for i, e := range j.list() {
		if e == entry {
			return i
		}
	}
	return -1
}

// fakeConn is a signaling channel whose Connect fires OnConnect from its
// own goroutine, the way the websocket transport does.
type fakeConn struct {
	j *journal

	mu          sync.Mutex
	handler     domain.Handler
	connected   bool
	disconnects int
	sent        []domain.Message
}

func (f *fakeConn) Endpoint() string   { return "ws://relay/signaling" }
func (f *fakeConn) Credential() string { return "Bearer tok" }

func (f *fakeConn) Connect() error {
	f.mu.Lock()
	f.connected = true
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		go h.OnConnect()
	}
	return nil
}

func (f *fakeConn) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) State() domain.ChannelState {
	if f.Connected() {
		return domain.ChannelConnected
	}
	return domain.ChannelDisconnected
}

func (f *fakeConn) SetHandler(h domain.Handler) {
	f.mu.Lock()
	f.handler = h
	f.mu.Unlock()
}

func (f *fakeConn) ClearHandler(h domain.Handler) {
	f.mu.Lock()
	if f.handler == h {
		f.handler = nil
	}
	f.mu.Unlock()
}

func (f *fakeConn) currentHandler() domain.Handler {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handler
}

func (f *fakeConn) Send(msg domain.Message) error {
	f.mu.Lock()
	if !f.connected {
		f.mu.Unlock()
		return errors.New("not connected")
	}
	f.sent = append(f.sent, msg)
	f.mu.Unlock()
	f.j.add("send:%s", msg.Event())
	return nil
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	f.connected = false
	f.disconnects++
	f.mu.Unlock()
	f.j.add("disconnect")
	return nil
}

func (f *fakeConn) messages() []domain.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Message(nil), f.sent...)
}

func (f *fakeConn) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

type fakeAPI struct {
	j      *journal
	detail *domain.SessionDetail

	mu     sync.Mutex
	kicked []string
}

func (a *fakeAPI) JoinAsViewer(ctx context.Context, sessionID string) error {
	a.j.add("api:join:%s", sessionID)
	return nil
}

func (a *fakeAPI) SessionDetail(ctx context.Context, sessionID string) (*domain.SessionDetail, error) {
	a.j.add("api:detail:%s", sessionID)
	if a.detail == nil {
		return nil, errors.New("not found")
	}
	d := *a.detail
	return &d, nil
}

func (a *fakeAPI) KickViewer(ctx context.Context, sessionID, userID, reason string) error {
	a.mu.Lock()
	a.kicked = append(a.kicked, userID)
	a.mu.Unlock()
	a.j.add("api:kick:%s", userID)
	return nil
}

func (a *fakeAPI) EndSession(ctx context.Context, sessionID string) error {
	a.j.add("api:end:%s", sessionID)
	return nil
}

// fakePeer answers any offer. Callbacks fire synchronously; the viewer posts
// them onto its loop.
type fakePeer struct {
	j *journal

	mu     sync.Mutex
	sig    domain.SignalingState
	conn   domain.ConnectionState
	remote *domain.SDPPayload
	local  *domain.SDPPayload
	closes int

	onTrack func(domain.Track)
	onICE   func(domain.ICECandidatePayload)
	onConn  func(domain.ConnectionState)
	onSig   func(domain.SignalingState)
}

func (p *fakePeer) AddTransceivers() error { return nil }

func (p *fakePeer) SetOnTrack(fn func(domain.Track)) {
	p.mu.Lock()
	p.onTrack = fn
	p.mu.Unlock()
}

func (p *fakePeer) SetOnICECandidate(fn func(domain.ICECandidatePayload)) {
	p.mu.Lock()
	p.onICE = fn
	p.mu.Unlock()
}

func (p *fakePeer) SetOnConnectionStateChange(fn func(domain.ConnectionState)) {
	p.mu.Lock()
	p.onConn = fn
	p.mu.Unlock()
}

func (p *fakePeer) SetOnSignalingStateChange(fn func(domain.SignalingState)) {
	p.mu.Lock()
	p.onSig = fn
	p.mu.Unlock()
}

func (p *fakePeer) fireTrack(t domain.Track) {
	p.mu.Lock()
	fn := p.onTrack
	p.mu.Unlock()
	fn(t)
}

func (p *fakePeer) fireICE(c string) {
	p.mu.Lock()
	fn := p.onICE
	p.mu.Unlock()
	fn(domain.ICECandidatePayload{Candidate: c})
}

func (p *fakePeer) SignalingState() domain.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sig
}

func (p *fakePeer) ConnectionState() domain.ConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn
}

func (p *fakePeer) RemoteDescription() *domain.SDPPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *fakePeer) LocalDescription() *domain.SDPPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *fakePeer) SetRemoteDescription(sdp domain.SDPPayload) error {
	p.mu.Lock()
	p.remote = &sdp
	p.sig = domain.SignalingHaveRemoteOffer
	p.mu.Unlock()
	p.j.add("peer:remote")
	return nil
}

func (p *fakePeer) CreateAnswer() (domain.SDPPayload, error) {
	return domain.SDPPayload{Type: "answer", SDP: "v=0 answer"}, nil
}

func (p *fakePeer) SetLocalDescription(sdp domain.SDPPayload) error {
	p.mu.Lock()
	p.local = &sdp
	p.sig = domain.SignalingStable
	fn := p.onSig
	p.mu.Unlock()
	if fn != nil {
		fn(domain.SignalingStable)
	}
	return nil
}

func (p *fakePeer) AddRemoteICECandidate(c domain.ICECandidatePayload) error {
	p.j.add("peer:ice:%s", c.Candidate)
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	p.closes++
	p.sig = domain.SignalingClosed
	p.conn = domain.ConnectionClosed
	p.mu.Unlock()
	p.j.add("peer:close")
	return nil
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}

type fakeTrack struct{ id, kind string }

func (t fakeTrack) ID() string                    { return t.id }
func (t fakeTrack) StreamID() string              { return "stream" }
func (t fakeTrack) Kind() string                  { return t.kind }
func (t fakeTrack) ReadRTP() (*rtp.Packet, error) { return nil, errors.New("eof") }
