package hub

import (
	"sort"
	"sync"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/dkeye/roomview/internal/proto"
	"github.com/rs/zerolog/log"
)

type member struct {
	ref      domain.ParticipantRef
	conn     SignalConnection
	tracks   map[domain.TrackSID]*proto.Track
	speaking bool
}

// roomImpl is a threadsafe in-memory room.
type roomImpl struct {
	name       domain.RoomName
	mu         sync.RWMutex
	bySID      map[domain.ParticipantID]*member
	byIdentity map[domain.Identity]domain.ParticipantID
}

func NewRoomService(name domain.RoomName) RoomService {
	return &roomImpl{
		name:       name,
		bySID:      make(map[domain.ParticipantID]*member),
		byIdentity: make(map[domain.Identity]domain.ParticipantID),
	}
}

func (r *roomImpl) Name() domain.RoomName { return r.name }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) AddMember(ref domain.ParticipantRef, conn SignalConnection) *domain.ParticipantRef {
	r.mu.Lock()
	defer r.mu.Unlock()
	var stale *domain.ParticipantRef
	if old, ok := r.byIdentity[ref.Identity]; ok && old != ref.ID {
		if m, ok := r.bySID[old]; ok {
			s := m.ref
			stale = &s
		}
		delete(r.bySID, old)
	}
	r.bySID[ref.ID] = &member{ref: ref, conn: conn, tracks: make(map[domain.TrackSID]*proto.Track)}
	r.byIdentity[ref.Identity] = ref.ID
	log.Info().Str("module", "hub.room").Str("room", string(r.name)).Str("sid", string(ref.ID)).Str("identity", string(ref.Identity)).Msg("member added")
	return stale
}

func (r *roomImpl) RemoveMember(sid domain.ParticipantID) (domain.ParticipantRef, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.bySID[sid]
	if !ok {
		return domain.ParticipantRef{}, false
	}
	delete(r.bySID, sid)
	if r.byIdentity[m.ref.Identity] == sid {
		delete(r.byIdentity, m.ref.Identity)
	}
	log.Info().Str("module", "hub.room").Str("room", string(r.name)).Str("sid", string(sid)).Msg("member removed")
	return m.ref, true
}

func (r *roomImpl) Publish(sid domain.ParticipantID, kind domain.TrackKind, track domain.TrackSID) (proto.Track, error) {
	if !kind.Valid() {
		return proto.Track{}, ErrBadTrackKind
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.bySID[sid]
	if !ok {
		return proto.Track{}, ErrUnknownMember
	}
	t := &proto.Track{Participant: m.ref, SID: track, Kind: kind}
	m.tracks[track] = t
	return *t, nil
}

func (r *roomImpl) Unpublish(sid domain.ParticipantID, track domain.TrackSID) (proto.Track, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.bySID[sid]
	if !ok {
		return proto.Track{}, ErrUnknownMember
	}
	t, ok := m.tracks[track]
	if !ok {
		return proto.Track{}, ErrUnknownTrack
	}
	delete(m.tracks, track)
	return *t, nil
}

func (r *roomImpl) SetMuted(sid domain.ParticipantID, track domain.TrackSID, muted bool) (proto.Track, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.bySID[sid]
	if !ok {
		return proto.Track{}, false, ErrUnknownMember
	}
	t, ok := m.tracks[track]
	if !ok {
		return proto.Track{}, false, ErrUnknownTrack
	}
	if t.Muted == muted {
		return *t, false, nil
	}
	t.Muted = muted
	return *t, true, nil
}

func (r *roomImpl) SetSpeaking(sid domain.ParticipantID, on bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.bySID[sid]
	if !ok || m.speaking == on {
		return false
	}
	m.speaking = on
	return true
}

func (r *roomImpl) Speakers() []domain.ParticipantRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParticipantRef, 0)
	for _, m := range r.bySID {
		if m.speaking {
			out = append(out, m.ref)
		}
	}
	sortRefs(out)
	return out
}

func (r *roomImpl) MembersSnapshot() []domain.ParticipantRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ParticipantRef, 0, len(r.bySID))
	for _, m := range r.bySID {
		out = append(out, m.ref)
	}
	sortRefs(out)
	return out
}

func (r *roomImpl) TracksSnapshot(except domain.ParticipantID) []proto.Track {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []proto.Track
	for sid, m := range r.bySID {
		if sid == except {
			continue
		}
		for _, t := range m.tracks {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Participant.Identity != out[j].Participant.Identity {
			return out[i].Participant.Identity < out[j].Participant.Identity
		}
		return out[i].SID < out[j].SID
	})
	return out
}

func (r *roomImpl) Broadcast(from domain.ParticipantID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for sid, m := range r.bySID {
		if sid == from {
			continue
		}
		if err := m.conn.TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, sid)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "hub.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) SendTo(sid domain.ParticipantID, data Frame) error {
	r.mu.RLock()
	m, ok := r.bySID[sid]
	r.mu.RUnlock()
	if !ok {
		return ErrUnknownMember
	}
	return m.conn.TrySend(data)
}

func sortRefs(refs []domain.ParticipantRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Identity != refs[j].Identity {
			return refs[i].Identity < refs[j].Identity
		}
		return refs[i].ID < refs[j].ID
	})
}
