package wsroom

import (
	"sync/atomic"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

// meter tracks whether a remote audio track is currently heard.
type meter struct {
	ref     domain.ParticipantRef
	sid     domain.TrackSID
	active  atomic.Bool
	stopped atomic.Bool
}

func newMeter(p domain.ParticipantRef, sid domain.TrackSID) *meter {
	log.Debug().Str("module", "wsroom").Str("participant", p.Label()).Str("track", string(sid)).Msg("audio meter started")
	return &meter{ref: p, sid: sid}
}

func (m *meter) setActive(on bool) {
	if !m.stopped.Load() {
		m.active.Store(on)
	}
}

func (m *meter) stop() {
	if m.stopped.CompareAndSwap(false, true) {
		log.Debug().Str("module", "wsroom").Str("participant", m.ref.Label()).Msg("audio meter stopped")
	}
}

type releaseFunc func()

func (f releaseFunc) Release() { f() }

// Hearing reports whether p's metered audio is in the current speaker set.
func (r *Room) Hearing(p domain.ParticipantRef) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.meters[p.Key()]
	return ok && m.active.Load()
}
