package signal

import (
	"sync"

	"modview/native/internal/domain"

	"github.com/rs/zerolog/log"
)

// Factory builds an unconnected signaling channel.
type Factory func(endpoint, credential string) domain.Signaler

// ClientFactory returns a Factory producing websocket Clients with opts.
func ClientFactory(opts Options) Factory {
	return func(endpoint, credential string) domain.Signaler {
		return NewClient(endpoint, credential, opts)
	}
}

// Manager owns at most one signaling channel at a time and counts the
// attachments holding it.
type Manager struct {
	newConn Factory

	mu      sync.Mutex
	conn    domain.Signaler
	holders int
}

// NewManager creates a Manager that builds channels with f.
func NewManager(f Factory) *Manager {
	return &Manager{newConn: f}
}

// Acquire returns the live channel for (endpoint, credential) and registers
// the caller as a holder. An existing channel with the same pair is returned
// unchanged, even mid-connect. A different pair disconnects and replaces it.
// Every Acquire must be matched by one Release.
func (m *Manager) Acquire(endpoint, credential string) domain.Signaler {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		if m.conn.Credential() == credential && m.conn.Endpoint() == endpoint {
			m.holders++
			return m.conn
		}
		log.Info().Str("module", "signal").Msg("credential changed, replacing channel")
		if err := m.conn.Disconnect(); err != nil {
			log.Debug().Str("module", "signal").Err(err).Msg("disconnect old channel")
		}
		m.conn = nil
	}

	m.conn = m.newConn(endpoint, credential)
	m.holders = 1
	return m.conn
}

// Current returns the owned channel, or nil.
func (m *Manager) Current() domain.Signaler {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// Release drops one hold on conn. The channel is disconnected and discarded
// when the last holder releases it. Releasing a channel that has already been
// replaced is a no-op.
func (m *Manager) Release(conn domain.Signaler) {
	m.mu.Lock()
	if conn == nil || conn != m.conn {
		m.mu.Unlock()
		return
	}
	m.holders--
	if m.holders > 0 {
		remaining := m.holders
		m.mu.Unlock()
		log.Debug().Str("module", "signal").Int("holders", remaining).Msg("channel still held")
		return
	}
	m.conn = nil
	m.holders = 0
	m.mu.Unlock()

	if err := conn.Disconnect(); err != nil {
		log.Debug().Str("module", "signal").Err(err).Msg("release")
	}
}
