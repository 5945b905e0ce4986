package webrtc

import (
	"modview/native/internal/domain"

	"github.com/rs/zerolog/log"
)

// CandidateQueue buffers remote ICE candidates that arrive before the remote
// description. It belongs to exactly one Peer.
type CandidateQueue struct {
	peer    domain.Peer
	pending []domain.ICECandidatePayload
	drained bool
}

// NewCandidateQueue returns an empty queue bound to peer.
func NewCandidateQueue(peer domain.Peer) *CandidateQueue {
	return &CandidateQueue{peer: peer}
}

// Offer applies the candidate immediately once a remote description exists,
// draining anything still queued first. Otherwise it is queued.
func (q *CandidateQueue) Offer(c domain.ICECandidatePayload) error {
	if q.peer.RemoteDescription() == nil {
		q.pending = append(q.pending, c)
		log.Debug().Str("module", "webrtc").Int("queue_len", len(q.pending)).Msg("ice queued (no remote desc)")
		return nil
	}
	q.Drain()
	return q.apply(c)
}

// Drain applies every queued candidate in arrival order, then discards the
// queue. Only the first call after the remote description is set does work.
func (q *CandidateQueue) Drain() {
	if q.drained || q.peer.RemoteDescription() == nil {
		return
	}
	q.drained = true

	pending := q.pending
	q.pending = nil
	for _, c := range pending {
		if err := q.apply(c); err != nil {
			log.Warn().Str("module", "webrtc").Err(err).Msg("add queued ICE candidate")
		}
	}
	if len(pending) > 0 {
		log.Debug().Str("module", "webrtc").Int("count", len(pending)).Msg("drained queued ICE candidates")
	}
}

// Len returns the number of queued candidates.
func (q *CandidateQueue) Len() int {
	return len(q.pending)
}

func (q *CandidateQueue) apply(c domain.ICECandidatePayload) error {
	if q.peer.SignalingState() == domain.SignalingClosed {
		return nil
	}
	return q.peer.AddRemoteICECandidate(c)
}
