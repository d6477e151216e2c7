package hub

import (
	"context"
	"encoding/json"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/dkeye/roomview/internal/proto"
	"github.com/rs/zerolog/log"
)

// Hub ties rooms, live sessions and the optional cross-instance bus.
type Hub struct {
	Registry *Registry
	Rooms    *RoomManager
	Policy   Policy
	Bus      Bus
}

func New(policy Policy, bus Bus) *Hub {
	return &Hub{
		Registry: NewRegistry(),
		Rooms:    NewRoomManager(),
		Policy:   policy,
		Bus:      bus,
	}
}

// Join adds ref to the room and returns the joined message for it. A stale
// member with the same identity is kicked first.
func (h *Hub) Join(ref domain.ParticipantRef, roomName domain.RoomName, conn SignalConnection, cancel context.CancelFunc) proto.Message {
	if prev, _, ok := h.Registry.RoomOf(ref.ID); ok {
		h.KickBySID(ref.ID)
		log.Info().Str("module", "hub").Str("sid", string(ref.ID)).Str("from_room", string(prev)).Msg("kicked from room")
	}
	room := h.Rooms.GetOrCreate(roomName)
	if stale := room.AddMember(ref, conn); stale != nil {
		h.Registry.Cancel(stale.ID)
		h.Registry.Unbind(stale.ID)
		h.Broadcast(roomName, ref.ID, proto.Message{Type: proto.TypeParticipantLeft, Participant: stale})
		log.Info().Str("module", "hub").Str("identity", string(ref.Identity)).Str("stale_sid", string(stale.ID)).Msg("replaced stale member")
	}
	h.Registry.Bind(ref, roomName, cancel)

	self := ref
	joined := proto.Message{
		Type:         proto.TypeJoined,
		Room:         roomName,
		Self:         &self,
		Participants: room.MembersSnapshot(),
		Tracks:       room.TracksSnapshot(ref.ID),
	}
	h.Broadcast(roomName, ref.ID, proto.Message{Type: proto.TypeParticipantJoined, Participant: &self})
	log.Info().Str("module", "hub").Str("sid", string(ref.ID)).Str("room", string(roomName)).Msg("added to room")
	return joined
}

// Leave removes sid from its room and tells the others.
func (h *Hub) Leave(sid domain.ParticipantID) {
	roomName, _, ok := h.Registry.RoomOf(sid)
	if !ok {
		return
	}
	h.Registry.Unbind(sid)
	if h.Policy != nil {
		h.Policy.Forget(sid)
	}
	room, ok := h.Rooms.Get(roomName)
	if !ok {
		return
	}
	ref, ok := room.RemoveMember(sid)
	if ok {
		h.Broadcast(roomName, sid, proto.Message{Type: proto.TypeParticipantLeft, Participant: &ref})
	}
	h.Rooms.RemoveIfEmpty(roomName)
}

// KickBySID stops the session's pumps and removes it from its room.
func (h *Hub) KickBySID(sid domain.ParticipantID) {
	if !h.Registry.Cancel(sid) {
		return
	}
	h.Leave(sid)
}

func (h *Hub) EvictRoom(name domain.RoomName) {
	room, ok := h.Rooms.Get(name)
	if !ok {
		return
	}
	for _, ref := range room.MembersSnapshot() {
		h.KickBySID(ref.ID)
	}
	h.Rooms.StopRoom(name)
}

func (h *Hub) Publish(sid domain.ParticipantID, kind domain.TrackKind, track domain.TrackSID) error {
	roomName, room, err := h.roomOf(sid)
	if err != nil {
		return err
	}
	t, err := room.Publish(sid, kind, track)
	if err != nil {
		return err
	}
	h.Broadcast(roomName, sid, proto.Message{Type: proto.TypeTrackSubscribed, Track: &t})
	return nil
}

func (h *Hub) Unpublish(sid domain.ParticipantID, track domain.TrackSID) error {
	roomName, room, err := h.roomOf(sid)
	if err != nil {
		return err
	}
	t, err := room.Unpublish(sid, track)
	if err != nil {
		return err
	}
	h.Broadcast(roomName, sid, proto.Message{Type: proto.TypeTrackUnsubscribed, Track: &t})
	return nil
}

func (h *Hub) SetMuted(sid domain.ParticipantID, track domain.TrackSID, muted bool) error {
	roomName, room, err := h.roomOf(sid)
	if err != nil {
		return err
	}
	t, changed, err := room.SetMuted(sid, track, muted)
	if err != nil || !changed {
		return err
	}
	typ := proto.TypeTrackUnmuted
	if muted {
		typ = proto.TypeTrackMuted
	}
	h.Broadcast(roomName, sid, proto.Message{Type: typ, Track: &t})
	return nil
}

// SetSpeaking sends the room's full speaker list to everyone, sender included.
func (h *Hub) SetSpeaking(sid domain.ParticipantID, on bool) error {
	roomName, room, err := h.roomOf(sid)
	if err != nil {
		return err
	}
	if !room.SetSpeaking(sid, on) {
		return nil
	}
	h.Broadcast(roomName, "", proto.Message{Type: proto.TypeActiveSpeakers, Participants: room.Speakers()})
	return nil
}

func (h *Hub) ReportQuality(sid domain.ParticipantID, q domain.ConnectionQuality) error {
	roomName, ref, ok := h.Registry.RoomOf(sid)
	if !ok {
		return ErrUnknownMember
	}
	h.Broadcast(roomName, "", proto.Message{Type: proto.TypeConnQuality, Participant: &ref, Quality: string(q)})
	return nil
}

// Roster lists everyone in sid's room, sid included.
func (h *Hub) Roster(sid domain.ParticipantID) (proto.Message, error) {
	roomName, room, err := h.roomOf(sid)
	if err != nil {
		return proto.Message{}, err
	}
	return proto.Message{Type: proto.TypeRoster, Room: roomName, Participants: room.MembersSnapshot()}, nil
}

// Broadcast delivers msg to the room on this instance and, when a bus is
// configured, to the other instances. An empty from reaches everyone.
func (h *Hub) Broadcast(roomName domain.RoomName, from domain.ParticipantID, msg proto.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "hub").Str("type", msg.Type).Msg("encode broadcast")
		return
	}
	h.deliver(roomName, from, data)
	if h.Bus != nil {
		if err := h.Bus.Publish(context.Background(), roomName, from, data); err != nil {
			log.Warn().Err(err).Str("module", "hub").Str("room", string(roomName)).Msg("bus publish")
		}
	}
}

// RunBus feeds frames from other instances into local rooms until ctx ends.
func (h *Hub) RunBus(ctx context.Context) error {
	if h.Bus == nil {
		return nil
	}
	return h.Bus.Subscribe(ctx, func(roomName domain.RoomName, from domain.ParticipantID, data []byte) {
		h.deliver(roomName, from, data)
	})
}

func (h *Hub) deliver(roomName domain.RoomName, from domain.ParticipantID, data Frame) {
	room, ok := h.Rooms.Get(roomName)
	if !ok {
		return
	}
	res := room.Broadcast(from, data)
	if h.Policy == nil {
		return
	}
	for _, slow := range res.Dropped {
		switch h.Policy.OnBackPressure(room, slow) {
		case KickMember:
			log.Warn().Str("module", "hub").Str("sid", string(slow)).Msg("kicking slow member")
			h.KickBySID(slow)
		case DropFrame, NoAction:
		}
	}
}

func (h *Hub) roomOf(sid domain.ParticipantID) (domain.RoomName, RoomService, error) {
	roomName, _, ok := h.Registry.RoomOf(sid)
	if !ok {
		return "", nil, ErrUnknownMember
	}
	room, ok := h.Rooms.Get(roomName)
	if !ok {
		return "", nil, ErrUnknownMember
	}
	return roomName, room, nil
}
