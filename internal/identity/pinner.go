// Package identity freezes the session identifier for the life of an attachment.
package identity

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Pinner records the first session id it sees and keeps returning it.
type Pinner struct {
	mu     sync.RWMutex
	id     string
	pinned bool
}

// New returns an empty Pinner.
func New() *Pinner {
	return &Pinner{}
}

// Pin records candidate on first use and returns the pinned value thereafter.
// A differing candidate after pinning is logged and ignored. Empty candidates
// are never pinned.
func (p *Pinner) Pin(candidate string) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.pinned {
		if candidate == "" {
			return ""
		}
		p.id = candidate
		p.pinned = true
		log.Debug().Str("module", "identity").Str("session_id", candidate).Msg("pinned session id")
		return p.id
	}
	if candidate != p.id {
		log.Warn().
			Str("module", "identity").
			Str("pinned", p.id).
			Str("candidate", candidate).
			Msg("session id changed after pin (ignored)")
	}
	return p.id
}

// Current returns the pinned id, or "" if nothing was pinned yet.
func (p *Pinner) Current() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.id
}

// Override replaces the pinned id. It is the recovery path used when an
// inbound offer or ICE message declares a different session, and it always
// logs both ids since the same path can mask a wrong-peer bug.
func (p *Pinner) Override(id, source string) (previous string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	previous = p.id
	if id == "" || id == p.id {
		return previous
	}
	p.id = id
	p.pinned = true
	log.Warn().
		Str("module", "identity").
		Str("source", source).
		Str("previous", previous).
		Str("session_id", id).
		Msg("session id overridden by inbound message")
	return previous
}
