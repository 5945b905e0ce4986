package playback

import (
	"errors"
	"io"
	"sync"

	"modview/native/internal/domain"

	"github.com/rs/zerolog/log"
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// WriterTarget renders a stream as an Annex-B H264 elementary stream on w.
// Audio tracks are drained. Output starts at the first keyframe after Play,
// preceded by the latest SPS and PPS.
type WriterTarget struct {
	w io.Writer

	mu        sync.Mutex
	stream    *Stream
	reading   map[string]bool
	hasVideo  bool
	locked    bool
	playing   bool
	waitKey   bool
	sps, pps  []byte
	metadata  bool
	data      bool
	onReady   func(Readiness)
	written   int
	writeErrs int
}

// NewWriterTarget returns a target writing to w. With requireGesture set, Play
// is refused until Unlock is called.
func NewWriterTarget(w io.Writer, requireGesture bool) *WriterTarget {
	return &WriterTarget{
		w:       w,
		reading: make(map[string]bool),
		locked:  requireGesture,
		onReady: func(Readiness) {},
	}
}

// SetReadyHandler registers the readiness callback. It is called without
// internal locks held.
func (t *WriterTarget) SetReadyHandler(fn func(Readiness)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if fn == nil {
		fn = func(Readiness) {}
	}
	t.onReady = fn
}

// Attach starts reading every track of s not already being read.
func (t *WriterTarget) Attach(s *Stream) error {
	if s == nil {
		return ErrNoSource
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stream != nil && t.stream.ID != s.ID {
		t.playing = false
	}
	t.stream = s
	t.hasVideo = false
	for _, tr := range s.Tracks() {
		if tr.Kind() == "video" {
			t.hasVideo = true
		}
		key := tr.Kind() + "/" + tr.ID()
		if t.reading[key] {
			continue
		}
		t.reading[key] = true
		if tr.Kind() == "video" {
			go t.readVideo(tr)
		} else {
			go drain(tr)
		}
	}
	return nil
}

// Play starts writing video. It fails with ErrPlayInterrupted while the
// stream has no video track yet.
func (t *WriterTarget) Play() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch {
	case t.stream == nil:
		return ErrNoSource
	case t.locked:
		return ErrNotAllowed
	case !t.hasVideo:
		return ErrPlayInterrupted
	}
	if !t.playing {
		t.playing = true
		t.waitKey = true
	}
	return nil
}

// Unlock lifts the user gesture requirement.
func (t *WriterTarget) Unlock() {
	t.mu.Lock()
	t.locked = false
	t.mu.Unlock()
}

// Written returns the number of NAL units written.
func (t *WriterTarget) Written() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.written
}

func (t *WriterTarget) readVideo(track domain.Track) {
	log.Info().Str("module", "playback").Str("track", track.ID()).Msg("reading H264 video track")
	depack := NewH264Depacketizer()

	for {
		pkt, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				log.Debug().Str("module", "playback").Msg("video track ended")
			} else {
				log.Warn().Str("module", "playback").Err(err).Msg("video track read error")
			}
			return
		}

		for _, nalu := range depack.Depacketize(pkt.SequenceNumber, pkt.Payload) {
			if len(nalu) == 0 {
				continue
			}
			t.handleNALU(nalu)
		}
	}
}

func (t *WriterTarget) handleNALU(nalu []byte) {
	var fire []Readiness

	t.mu.Lock()
	switch nalu[0] & 0x1f {
	case naluSPS:
		t.sps = append([]byte(nil), nalu...)
	case naluPPS:
		t.pps = append([]byte(nil), nalu...)
	case naluIDR:
		if !t.data {
			t.data = true
			fire = append(fire, ReadinessData)
		}
	}
	if !t.metadata && t.sps != nil && t.pps != nil {
		t.metadata = true
		fire = append([]Readiness{ReadinessMetadata}, fire...)
	}
	t.writeLocked(nalu)
	onReady := t.onReady
	t.mu.Unlock()

	for _, r := range fire {
		onReady(r)
	}
}

func (t *WriterTarget) writeLocked(nalu []byte) {
	if !t.playing {
		return
	}
	if t.waitKey {
		if nalu[0]&0x1f != naluIDR {
			return
		}
		t.waitKey = false
		for _, ps := range [][]byte{t.sps, t.pps} {
			if ps != nil {
				t.emit(ps)
			}
		}
	}
	t.emit(nalu)
}

func (t *WriterTarget) emit(nalu []byte) {
	_, err := t.w.Write(startCode)
	if err == nil {
		_, err = t.w.Write(nalu)
	}
	if err != nil {
		t.writeErrs++
		if t.writeErrs == 1 {
			log.Warn().Str("module", "playback").Err(err).Msg("render target write failed")
		}
		return
	}
	t.written++
}

func drain(track domain.Track) {
	for {
		if _, err := track.ReadRTP(); err != nil {
			return
		}
	}
}
