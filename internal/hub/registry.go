package hub

import (
	"context"
	"sync"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	Room   domain.RoomName
	Ref    domain.ParticipantRef
	Cancel context.CancelFunc
}

// Registry maps live signal sessions to their room.
type Registry struct {
	mu       sync.RWMutex
	sessions map[domain.ParticipantID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[domain.ParticipantID]*sessionEntry)}
}

func (r *Registry) Bind(ref domain.ParticipantRef, room domain.RoomName, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[ref.ID] = &sessionEntry{Room: room, Ref: ref, Cancel: cancel}
	log.Info().Str("module", "hub.registry").Str("sid", string(ref.ID)).Str("room", string(room)).Msg("bound session")
}

func (r *Registry) RoomOf(sid domain.ParticipantID) (domain.RoomName, domain.ParticipantRef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", domain.ParticipantRef{}, false
	}
	return e.Room, e.Ref, true
}

func (r *Registry) Unbind(sid domain.ParticipantID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; !ok {
		return false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "hub.registry").Str("sid", string(sid)).Msg("unbind session")
	return true
}

// Cancel stops the session's pumps; the adapter then leaves the room.
func (r *Registry) Cancel(sid domain.ParticipantID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "hub.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
