package hub

import (
	"sync"

	"github.com/dkeye/roomview/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

type Policy interface {
	OnBackPressure(room RoomService, sid domain.ParticipantID) BackpressureAction
	Forget(sid domain.ParticipantID)
}

// StrikePolicy drops frames for a slow member and kicks it after Limit
// drops.
type StrikePolicy struct {
	Limit int

	mu      sync.Mutex
	strikes map[domain.ParticipantID]int
}

func NewStrikePolicy(limit int) *StrikePolicy {
	return &StrikePolicy{Limit: limit, strikes: make(map[domain.ParticipantID]int)}
}

func (p *StrikePolicy) OnBackPressure(_ RoomService, sid domain.ParticipantID) BackpressureAction {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.strikes[sid]++
	if p.strikes[sid] >= p.Limit {
		delete(p.strikes, sid)
		return KickMember
	}
	return DropFrame
}

func (p *StrikePolicy) Forget(sid domain.ParticipantID) {
	p.mu.Lock()
	delete(p.strikes, sid)
	p.mu.Unlock()
}
