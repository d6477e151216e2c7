package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/dkeye/roomview/internal/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFull = errors.New("full")

type fakeConn struct {
	mu     sync.Mutex
	frames []proto.Message
	full   bool
	closed bool
}

func (c *fakeConn) TrySend(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	var m proto.Message
	if err := json.Unmarshal(f, &m); err != nil {
		return err
	}
	c.frames = append(c.frames, m)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, m := range c.frames {
		out = append(out, m.Type)
	}
	return out
}

func (c *fakeConn) last() proto.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frames[len(c.frames)-1]
}

type fakeBus struct {
	mu        sync.Mutex
	published []domain.RoomName
}

func (b *fakeBus) Publish(_ context.Context, room domain.RoomName, _ domain.ParticipantID, _ []byte) error {
	b.mu.Lock()
	b.published = append(b.published, room)
	b.mu.Unlock()
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, _ func(domain.RoomName, domain.ParticipantID, []byte)) error {
	<-ctx.Done()
	return nil
}

var (
	alice = domain.ParticipantRef{ID: "PA_a", Identity: "alice"}
	bob   = domain.ParticipantRef{ID: "PA_b", Identity: "bob"}
)

const lobby = domain.RoomName("lobby")

func TestJoinAnnouncesAndReplaysTracks(t *testing.T) {
	h := New(nil, nil)
	ac, bc := &fakeConn{}, &fakeConn{}

	joined := h.Join(alice, lobby, ac, func() {})
	require.Equal(t, proto.TypeJoined, joined.Type)
	assert.Equal(t, alice, *joined.Self)
	assert.Equal(t, []domain.ParticipantRef{alice}, joined.Participants)

	require.NoError(t, h.Publish(alice.ID, domain.TrackScreenShare, "TR_screen"))

	joined = h.Join(bob, lobby, bc, func() {})
	assert.Equal(t, []domain.ParticipantRef{alice, bob}, joined.Participants)
	require.Len(t, joined.Tracks, 1)
	assert.Equal(t, domain.TrackScreenShare, joined.Tracks[0].Kind)
	assert.Equal(t, alice, joined.Tracks[0].Participant)

	assert.Equal(t, []string{proto.TypeParticipantJoined}, ac.types())
	assert.Equal(t, bob, *ac.last().Participant)
	assert.Empty(t, bc.types())
}

func TestLeaveBroadcastsAndDropsEmptyRoom(t *testing.T) {
	h := New(nil, nil)
	ac, bc := &fakeConn{}, &fakeConn{}
	h.Join(alice, lobby, ac, func() {})
	h.Join(bob, lobby, bc, func() {})

	h.Leave(bob.ID)
	assert.Equal(t, proto.TypeParticipantLeft, ac.last().Type)
	assert.Equal(t, bob, *ac.last().Participant)

	h.Leave(bob.ID)
	h.Leave(alice.ID)
	_, ok := h.Rooms.Get(lobby)
	assert.False(t, ok)
	assert.Equal(t, 0, h.Registry.Len())
}

func TestRejoinReplacesStaleIdentity(t *testing.T) {
	h := New(nil, nil)
	ac, bc := &fakeConn{}, &fakeConn{}
	canceled := false
	h.Join(alice, lobby, ac, func() {})
	h.Join(bob, lobby, bc, func() { canceled = true })

	bob2 := domain.ParticipantRef{ID: "PA_b2", Identity: "bob"}
	joined := h.Join(bob2, lobby, &fakeConn{}, func() {})

	assert.True(t, canceled)
	assert.Equal(t, []domain.ParticipantRef{alice, bob2}, joined.Participants)
	assert.Equal(t, []string{
		proto.TypeParticipantJoined,
		proto.TypeParticipantLeft,
		proto.TypeParticipantJoined,
	}, ac.types())

	// the old read pump exiting later is harmless
	h.Leave(bob.ID)
	room, _ := h.Rooms.Get(lobby)
	assert.Equal(t, 2, room.MemberCount())
}

func TestTrackLifecycleBroadcasts(t *testing.T) {
	h := New(nil, nil)
	ac, bc := &fakeConn{}, &fakeConn{}
	h.Join(alice, lobby, ac, func() {})
	h.Join(bob, lobby, bc, func() {})

	require.NoError(t, h.Publish(bob.ID, domain.TrackAudio, "TR_mic"))
	require.NoError(t, h.SetMuted(bob.ID, "TR_mic", true))
	require.NoError(t, h.SetMuted(bob.ID, "TR_mic", true))
	require.NoError(t, h.SetMuted(bob.ID, "TR_mic", false))
	require.NoError(t, h.Unpublish(bob.ID, "TR_mic"))

	assert.Equal(t, []string{
		proto.TypeParticipantJoined,
		proto.TypeTrackSubscribed,
		proto.TypeTrackMuted,
		proto.TypeTrackUnmuted,
		proto.TypeTrackUnsubscribed,
	}, ac.types())
	assert.Empty(t, bc.types())

	assert.ErrorIs(t, h.Unpublish(bob.ID, "TR_mic"), ErrUnknownTrack)
	assert.ErrorIs(t, h.Publish(bob.ID, "hologram", "TR_x"), ErrBadTrackKind)
	assert.ErrorIs(t, h.Publish("PA_ghost", domain.TrackAudio, "TR_x"), ErrUnknownMember)
}

func TestSpeakersAndQualityReachSender(t *testing.T) {
	h := New(nil, nil)
	ac, bc := &fakeConn{}, &fakeConn{}
	h.Join(alice, lobby, ac, func() {})
	h.Join(bob, lobby, bc, func() {})

	require.NoError(t, h.SetSpeaking(bob.ID, true))
	assert.Equal(t, proto.TypeActiveSpeakers, bc.last().Type)
	assert.Equal(t, []domain.ParticipantRef{bob}, ac.last().Participants)

	require.NoError(t, h.ReportQuality(alice.ID, domain.QualityPoor))
	assert.Equal(t, proto.TypeConnQuality, ac.last().Type)
	assert.Equal(t, string(domain.QualityPoor), bc.last().Quality)
	assert.Equal(t, alice, *bc.last().Participant)
}

func TestRosterIncludesCaller(t *testing.T) {
	h := New(nil, nil)
	h.Join(alice, lobby, &fakeConn{}, func() {})
	h.Join(bob, lobby, &fakeConn{}, func() {})

	msg, err := h.Roster(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, proto.TypeRoster, msg.Type)
	assert.Equal(t, []domain.ParticipantRef{alice, bob}, msg.Participants)

	_, err = h.Roster("PA_ghost")
	assert.ErrorIs(t, err, ErrUnknownMember)
}

func TestSlowMemberKickedAfterStrikes(t *testing.T) {
	h := New(NewStrikePolicy(2), nil)
	ac := &fakeConn{}
	bc := &fakeConn{full: true}
	kicked := false
	h.Join(alice, lobby, ac, func() {})
	h.Join(bob, lobby, bc, func() { kicked = true })

	require.NoError(t, h.Publish(alice.ID, domain.TrackAudio, "TR_1"))
	assert.False(t, kicked)
	require.NoError(t, h.Publish(alice.ID, domain.TrackVideo, "TR_2"))
	assert.True(t, kicked)

	_, _, ok := h.Registry.RoomOf(bob.ID)
	assert.False(t, ok)
	assert.Equal(t, proto.TypeParticipantLeft, ac.last().Type)
}

func TestEvictRoom(t *testing.T) {
	h := New(nil, nil)
	n := 0
	h.Join(alice, lobby, &fakeConn{}, func() { n++ })
	h.Join(bob, lobby, &fakeConn{}, func() { n++ })

	h.EvictRoom(lobby)
	assert.Equal(t, 2, n)
	assert.Empty(t, h.Rooms.List())
}

func TestBroadcastGoesToBus(t *testing.T) {
	bus := &fakeBus{}
	h := New(nil, bus)
	h.Join(alice, lobby, &fakeConn{}, func() {})

	bus.mu.Lock()
	defer bus.mu.Unlock()
	assert.Equal(t, []domain.RoomName{lobby}, bus.published)
}

func TestBusPayloadSkipsOwnInstance(t *testing.T) {
	body, err := encodeBusPayload("me", bob.ID, []byte(`{"type":"pong"}`))
	require.NoError(t, err)

	_, _, _, ok := decodeBusPayload("me", channelPrefix+"lobby", string(body))
	assert.False(t, ok)

	room, from, data, ok := decodeBusPayload("other", channelPrefix+"lobby", string(body))
	require.True(t, ok)
	assert.Equal(t, lobby, room)
	assert.Equal(t, bob.ID, from)
	assert.JSONEq(t, `{"type":"pong"}`, string(data))

	_, _, _, ok = decodeBusPayload("other", "elsewhere", string(body))
	assert.False(t, ok)
	_, _, _, ok = decodeBusPayload("other", channelPrefix+"lobby", "{")
	assert.False(t, ok)
}

func TestRemoteFramesDeliveredLocally(t *testing.T) {
	h := New(nil, nil)
	ac := &fakeConn{}
	h.Join(alice, lobby, ac, func() {})

	h.deliver(lobby, "PA_remote", Frame(`{"type":"participant_joined"}`))
	h.deliver("nowhere", "PA_remote", Frame(`{"type":"participant_joined"}`))
	assert.Equal(t, []string{proto.TypeParticipantJoined}, ac.types())
}
