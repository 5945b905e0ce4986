// Package presence projects room chat, reactions and audience events into a
// local view of the session.
package presence

import (
	"sync"
	"time"

	"modview/native/internal/domain"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// DefaultReactionTTL is how long a reaction stays visible.
	DefaultReactionTTL = 3 * time.Second
	// DuplicateWindow is the timestamp tolerance for chat de-duplication.
	DuplicateWindow = time.Second
)

// ChatMessage is one stored chat line.
type ChatMessage struct {
	UserID     string
	Username   string
	Text       string
	Timestamp  time.Time
	ReceivedAt time.Time
}

// Reaction is a visible, expiring reaction.
type Reaction struct {
	ID     string
	UserID string
	Emoji  string
	At     time.Time
}

// Config wires a Relay.
type Config struct {
	// SessionID returns the pinned session id.
	SessionID   func() string
	Clock       clock.Clock
	ReactionTTL time.Duration
	// Reload requests a full membership reload.
	Reload func()
	// Post schedules fn on the owner's event loop; expiry timers use it.
	Post func(fn func())
}

// Relay holds the chat log, live reactions and audience of one session.
type Relay struct {
	cfg Config

	mu             sync.Mutex
	messages       []ChatMessage
	reactions      []Reaction
	timers         map[string]*clock.Timer
	viewers        []domain.Viewer
	viewerCount    int
	countFromEvent bool
	closed         bool
}

// NewRelay returns an empty Relay.
func NewRelay(cfg Config) *Relay {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.ReactionTTL <= 0 {
		cfg.ReactionTTL = DefaultReactionTTL
	}
	if cfg.Reload == nil {
		cfg.Reload = func() {}
	}
	if cfg.Post == nil {
		cfg.Post = func(fn func()) { fn() }
	}
	return &Relay{cfg: cfg, timers: make(map[string]*clock.Timer)}
}

// HandleChat stores msg unless it belongs to another session or duplicates a
// stored message. It reports whether msg was stored.
func (r *Relay) HandleChat(msg domain.Chat) bool {
	if sid := r.cfg.SessionID(); msg.SessionID != sid {
		log.Debug().Str("module", "presence").Str("session_id", msg.SessionID).Str("current", sid).Msg("chat message for different session, ignoring")
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var ts time.Time
	if msg.Timestamp != nil {
		ts = msg.Timestamp.Time
	}
	for _, m := range r.messages {
		if isDuplicate(m, msg.UserID, msg.Message, ts) {
			log.Debug().Str("module", "presence").Str("user_id", msg.UserID).Msg("duplicate chat message ignored")
			return false
		}
	}
	r.messages = append(r.messages, ChatMessage{
		UserID:     msg.UserID,
		Username:   msg.Username,
		Text:       msg.Message,
		Timestamp:  ts,
		ReceivedAt: r.cfg.Clock.Now(),
	})
	log.Info().Str("module", "presence").Str("username", msg.Username).Str("text", msg.Message).Msg("chat")
	return true
}

// isDuplicate matches sender, text and timestamps within DuplicateWindow.
// Messages without a timestamp never match.
func isDuplicate(m ChatMessage, userID, text string, ts time.Time) bool {
	if m.UserID != userID || m.Text != text {
		return false
	}
	if m.Timestamp.IsZero() || ts.IsZero() {
		return false
	}
	d := m.Timestamp.Sub(ts)
	if d < 0 {
		d = -d
	}
	return d < DuplicateWindow
}

// HandleReaction shows a reaction until the TTL elapses and returns its id.
func (r *Relay) HandleReaction(msg domain.Reaction) string {
	if msg.SessionID != "" && msg.SessionID != r.cfg.SessionID() {
		return ""
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ""
	}

	id := uuid.NewString()
	log.Info().Str("module", "presence").Str("user_id", msg.UserID).Str("emoji", msg.Emoji).Msg("reaction")
	r.reactions = append(r.reactions, Reaction{
		ID:     id,
		UserID: msg.UserID,
		Emoji:  msg.Emoji,
		At:     r.cfg.Clock.Now(),
	})
	r.timers[id] = r.cfg.Clock.AfterFunc(r.cfg.ReactionTTL, func() {
		r.cfg.Post(func() { r.expire(id) })
	})
	return id
}

func (r *Relay) expire(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.timers, id)
	for i, re := range r.reactions {
		if re.ID == id {
			r.reactions = append(r.reactions[:i], r.reactions[i+1:]...)
			return
		}
	}
}

// HandlePresence applies viewer_count and requests a reload for every
// audience event of the current session.
func (r *Relay) HandlePresence(msg domain.Presence) {
	if sid := r.cfg.SessionID(); msg.SessionID != sid {
		log.Debug().Str("module", "presence").Str("event", msg.Kind).Str("session_id", msg.SessionID).Str("current", sid).Msg("presence event for different session, ignoring")
		return
	}
	if msg.Kind == domain.EventViewerCount {
		r.mu.Lock()
		r.viewerCount = msg.Count
		r.countFromEvent = true
		r.mu.Unlock()
	}
	log.Debug().Str("module", "presence").Str("event", msg.Kind).Str("user_id", msg.UserID).Msg("audience changed, reloading")
	r.cfg.Reload()
}

// SetViewers replaces the audience with a freshly loaded list. The count
// follows the list until a viewer_count event supplies one.
func (r *Relay) SetViewers(viewers []domain.Viewer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.viewers = append([]domain.Viewer(nil), viewers...)
	if !r.countFromEvent {
		r.viewerCount = len(viewers)
	}
}

// Messages returns the stored chat log.
func (r *Relay) Messages() []ChatMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChatMessage(nil), r.messages...)
}

// Reactions returns the visible reactions.
func (r *Relay) Reactions() []Reaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Reaction(nil), r.reactions...)
}

// Viewers returns the last loaded audience.
func (r *Relay) Viewers() []domain.Viewer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Viewer(nil), r.viewers...)
}

func (r *Relay) ViewerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.viewerCount
}

// Close stops pending expiry timers and clears reactions.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	for id, t := range r.timers {
		t.Stop()
		delete(r.timers, id)
	}
	r.reactions = nil
}
