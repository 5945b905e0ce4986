package playback

import (
	"bytes"
	"io"
	"sync"

	"github.com/pion/rtp"
)

type fakeTrack struct {
	id     string
	stream string
	kind   string
	pkts   chan *rtp.Packet
}

func newFakeTrack(id, stream, kind string) *fakeTrack {
	return &fakeTrack{id: id, stream: stream, kind: kind, pkts: make(chan *rtp.Packet, 16)}
}

func (f *fakeTrack) ID() string       { return f.id }
func (f *fakeTrack) StreamID() string { return f.stream }
func (f *fakeTrack) Kind() string     { return f.kind }

func (f *fakeTrack) ReadRTP() (*rtp.Packet, error) {
	pkt, ok := <-f.pkts
	if !ok {
		return nil, io.EOF
	}
	return pkt, nil
}

func (f *fakeTrack) send(seq uint16, payload []byte) {
	f.pkts <- &rtp.Packet{Header: rtp.Header{SequenceNumber: seq}, Payload: payload}
}

// fakeTarget returns errs from Play in order, then nil.
type fakeTarget struct {
	attached []*Stream
	plays    int
	errs     []error
	unlocked bool
	onReady  func(Readiness)
}

func (f *fakeTarget) Attach(s *Stream) error {
	f.attached = append(f.attached, s)
	return nil
}

func (f *fakeTarget) Play() error {
	f.plays++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return err
	}
	return nil
}

func (f *fakeTarget) SetReadyHandler(fn func(Readiness)) { f.onReady = fn }
func (f *fakeTarget) Unlock()                            { f.unlocked = true }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
