package hub

import (
	"sort"
	"sync"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

type RoomManager struct {
	mu    sync.RWMutex
	rooms map[domain.RoomName]RoomService
}

func NewRoomManager() *RoomManager {
	return &RoomManager{rooms: make(map[domain.RoomName]RoomService)}
}

func (rm *RoomManager) GetOrCreate(name domain.RoomName) RoomService {
	rm.mu.RLock()
	room, ok := rm.rooms[name]
	rm.mu.RUnlock()
	if ok {
		return room
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()
	if room, ok = rm.rooms[name]; !ok {
		room = NewRoomService(name)
		rm.rooms[name] = room
		log.Info().Str("module", "hub.rooms").Str("room", string(name)).Msg("room created")
	}
	return room
}

func (rm *RoomManager) Get(name domain.RoomName) (RoomService, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	room, ok := rm.rooms[name]
	return room, ok
}

func (rm *RoomManager) List() []RoomInfo {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	out := make([]RoomInfo, 0, len(rm.rooms))
	for _, r := range rm.rooms {
		out = append(out, RoomInfo{Name: r.Name(), MemberCount: r.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RemoveIfEmpty drops a room nobody is in any more.
func (rm *RoomManager) RemoveIfEmpty(name domain.RoomName) bool {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	room, ok := rm.rooms[name]
	if !ok || room.MemberCount() > 0 {
		return false
	}
	delete(rm.rooms, name)
	log.Info().Str("module", "hub.rooms").Str("room", string(name)).Msg("room removed")
	return true
}

func (rm *RoomManager) StopRoom(name domain.RoomName) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	delete(rm.rooms, name)
}
