// Package playback makes sure a received media track actually renders.
package playback

import (
	"errors"
	"sync"

	"modview/native/internal/domain"

	"github.com/rs/zerolog/log"
)

var (
	// ErrPlayInterrupted reports a play attempt cut short by a pending load.
	// It is benign and retried on the next readiness transition.
	ErrPlayInterrupted = errors.New("play interrupted")
	// ErrNoSource is returned by a target asked to play with nothing attached.
	ErrNoSource = errors.New("no source attached")
	// ErrNotAllowed is returned by a target that needs a user gesture first.
	ErrNotAllowed = errors.New("play not allowed before user gesture")
)

// Readiness is a render target readiness transition.
type Readiness string

const (
	ReadinessMetadata Readiness = "metadata"
	ReadinessData     Readiness = "data"
)

// Stream groups the tracks of one remote media stream.
type Stream struct {
	ID     string
	tracks []domain.Track
}

// Tracks returns a copy of the stream's tracks.
func (s *Stream) Tracks() []domain.Track {
	return append([]domain.Track(nil), s.tracks...)
}

func (s *Stream) add(t domain.Track) bool {
	for _, existing := range s.tracks {
		if existing.ID() == t.ID() && existing.Kind() == t.Kind() {
			return false
		}
	}
	s.tracks = append(s.tracks, t)
	return true
}

// Target is a render surface.
type Target interface {
	Attach(s *Stream) error
	Play() error
}

// ReadyNotifier is implemented by targets that report readiness transitions.
type ReadyNotifier interface {
	SetReadyHandler(fn func(Readiness))
}

// GestureTarget is implemented by targets gated on a user gesture.
type GestureTarget interface {
	Unlock()
}

// Supervisor attaches inbound tracks to the current target and keeps
// retrying playback until it starts.
type Supervisor struct {
	mu       sync.Mutex
	target   Target
	stream   *Stream
	attached bool
	playing  bool
	gestured bool
}

// NewSupervisor returns a Supervisor without a target.
func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// SetTarget installs the render target. A nil target marks it unavailable.
// A cached stream is attached to the new target right away.
func (s *Supervisor) SetTarget(t Target) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.target = t
	s.attached = false
	s.playing = false
	if t == nil {
		return
	}
	if n, ok := t.(ReadyNotifier); ok {
		n.SetReadyHandler(s.Ready)
	}
	if s.stream != nil {
		log.Debug().Str("module", "playback").Str("stream", s.stream.ID).Msg("re-attaching cached stream")
		s.attachLocked()
		s.playLocked("attach")
	}
}

// AttachTrack records t in its stream and attaches the stream to the target,
// or caches it until a target is set.
func (s *Supervisor) AttachTrack(t domain.Track) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stream == nil || s.stream.ID != t.StreamID() {
		s.stream = &Stream{ID: t.StreamID()}
		s.attached = false
		s.playing = false
	}
	if !s.stream.add(t) {
		return
	}
	log.Info().Str("module", "playback").Str("kind", t.Kind()).Str("stream", t.StreamID()).Msg("track received")

	if s.target == nil {
		log.Debug().Str("module", "playback").Msg("target not ready, caching stream")
		return
	}
	s.attachLocked()
	s.playLocked("attach")
}

// Ready retries playback on a readiness transition.
func (s *Supervisor) Ready(r Readiness) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playLocked(string(r))
}

// Gesture retries playback on the first user interaction.
func (s *Supervisor) Gesture() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gestured {
		return
	}
	s.gestured = true
	if g, ok := s.target.(GestureTarget); ok {
		g.Unlock()
	}
	s.playLocked("gesture")
}

// Playing reports whether the target accepted a play request.
func (s *Supervisor) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Stream returns the last known stream, or nil.
func (s *Supervisor) Stream() *Stream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream
}

// Reset forgets the cached stream and the target.
func (s *Supervisor) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stream = nil
	s.target = nil
	s.attached = false
	s.playing = false
}

func (s *Supervisor) attachLocked() {
	// The same stream is re-attached when it gains a track.
	if err := s.target.Attach(s.stream); err != nil {
		log.Warn().Str("module", "playback").Err(err).Msg("attach stream")
		return
	}
	s.attached = true
}

func (s *Supervisor) playLocked(trigger string) {
	if s.target == nil || s.stream == nil || s.playing {
		return
	}
	if !s.attached {
		s.attachLocked()
		if !s.attached {
			return
		}
	}

	err := s.target.Play()
	switch {
	case err == nil:
		s.playing = true
		log.Info().Str("module", "playback").Str("trigger", trigger).Msg("playback started")
	case errors.Is(err, ErrPlayInterrupted):
	case errors.Is(err, ErrNotAllowed):
		log.Debug().Str("module", "playback").Str("trigger", trigger).Msg("playback waits for user gesture")
	default:
		log.Debug().Str("module", "playback").Str("trigger", trigger).Err(err).Msg("play attempt failed, will retry")
	}
}
