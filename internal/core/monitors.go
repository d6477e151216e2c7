package core

import (
	"sync"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

// Releaser is a per-participant resource such as an audio level analyser.
type Releaser interface {
	Release()
}

type onceReleaser struct {
	once sync.Once
	r    Releaser
}

func (o *onceReleaser) Release() {
	o.once.Do(o.r.Release)
}

// AudioMonitors owns at most one handle per participant and releases each
// exactly once, on removal or on ReleaseAll.
type AudioMonitors struct {
	handles map[domain.ParticipantKey]*onceReleaser
}

func NewAudioMonitors() *AudioMonitors {
	return &AudioMonitors{handles: make(map[domain.ParticipantKey]*onceReleaser)}
}

// Attach stores h for p, releasing any handle it replaces.
func (m *AudioMonitors) Attach(p domain.ParticipantRef, h Releaser) {
	if h == nil {
		return
	}
	key := p.Key()
	if old, ok := m.handles[key]; ok {
		old.Release()
	}
	m.handles[key] = &onceReleaser{r: h}
	log.Debug().Str("module", "core.monitors").Str("participant", p.Label()).Msg("audio monitor attached")
}

func (m *AudioMonitors) Has(p domain.ParticipantRef) bool {
	_, ok := m.handles[p.Key()]
	return ok
}

func (m *AudioMonitors) Release(p domain.ParticipantRef) {
	key := p.Key()
	h, ok := m.handles[key]
	if !ok {
		return
	}
	delete(m.handles, key)
	h.Release()
}

// Rekey moves old's handle to updated. If updated already has one, the
// moved handle is released instead.
func (m *AudioMonitors) Rekey(old, updated domain.ParticipantRef) {
	from, to := old.Key(), updated.Key()
	h, ok := m.handles[from]
	if !ok || from == to {
		return
	}
	delete(m.handles, from)
	if _, taken := m.handles[to]; taken {
		h.Release()
		return
	}
	m.handles[to] = h
}

func (m *AudioMonitors) ReleaseAll() {
	for key, h := range m.handles {
		delete(m.handles, key)
		h.Release()
	}
}

func (m *AudioMonitors) Len() int { return len(m.handles) }
