package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = domain.ParticipantRef{ID: "PA_alice", Identity: "alice"}
	bob   = domain.ParticipantRef{ID: "PA_bob", Identity: "bob"}
	carol = domain.ParticipantRef{ID: "PA_carol", Identity: "carol"}
)

type fixture struct {
	tokens   *fakeTokens
	rooms    []*fakeRoom
	renderer *recordingRenderer
	notifier *recordingNotifier
	names    *memNames
	client   *Client
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	f := &fixture{
		tokens:   &fakeTokens{grant: Grant{Token: "tok", URL: "wss://localhost:7880"}},
		renderer: &recordingRenderer{},
		notifier: &recordingNotifier{},
		names:    &memNames{},
	}
	if opts.ReconcileInterval == 0 {
		opts.ReconcileInterval = time.Hour
	}
	if opts.SettleDelay == 0 {
		opts.SettleDelay = time.Millisecond
	}
	f.client = NewClient(f.tokens, func() Room {
		r := newFakeRoom(alice)
		f.rooms = append(f.rooms, r)
		return r
	}, f.renderer, f.notifier, f.names, opts)
	t.Cleanup(func() { _ = f.client.Leave(context.Background()) })
	return f
}

func (f *fixture) room() *fakeRoom { return f.rooms[len(f.rooms)-1] }

func TestJoinScreenShareFocusFlow(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})

	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)
	assert.Same(t, s, f.client.Current())
	assert.Equal(t, "ws://localhost:7880", f.room().url)
	assert.Equal(t, "alice", f.names.LastName())
	assert.Contains(t, f.notifier.toastList(), "Joined room: standup")

	st, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.StateConnected, st)

	media, err := s.Media(ctx)
	require.NoError(t, err)
	assert.True(t, media.Camera)
	assert.True(t, media.Microphone)

	s.OnParticipantJoined(bob)
	require.NoError(t, s.Sync(ctx))
	last := f.renderer.last()
	require.NotNil(t, last.snap.Local)
	assert.Equal(t, domain.Identity("alice"), last.snap.Local.Ref.Identity)
	assert.Equal(t, []domain.Identity{"bob"}, identities(last.snap.Remotes))
	assert.False(t, last.layout.FocusAvailable)

	s.OnTrackSubscribed(bob, domain.TrackScreenShare, "TR_bob_screen")
	require.NoError(t, s.Sync(ctx))
	last = f.renderer.last()
	assert.True(t, last.layout.FocusAvailable)
	assert.Equal(t, core.ModeGrid, last.layout.Mode)

	require.NoError(t, s.ToggleLayout(ctx))
	last = f.renderer.last()
	assert.Equal(t, core.ModeFocus, last.layout.Mode)
	require.NotNil(t, last.layout.Focused)
	assert.Equal(t, bob, *last.layout.Focused)

	s.OnTrackUnsubscribed(bob, domain.TrackScreenShare, "TR_bob_screen")
	require.NoError(t, s.Sync(ctx))
	last = f.renderer.last()
	assert.Equal(t, core.ModeGrid, last.layout.Mode)
	assert.Nil(t, last.layout.Focused)
	assert.False(t, last.layout.FocusAvailable)
	assert.Contains(t, f.notifier.toastList(), "Returned to grid layout")
}

func TestJoinTokenFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.tokens.err = errors.New("401 unauthorized")

	s, err := f.client.Join(context.Background(), "alice", "standup")
	assert.Nil(t, s)
	assert.ErrorIs(t, err, core.ErrConnectionFailure)
	assert.Nil(t, f.client.Current())
	assert.Empty(t, f.rooms, "no collaborator is created without a token")
}

func TestJoinMissingToken(t *testing.T) {
	f := newFixture(t, Options{})
	f.tokens.grant = Grant{URL: "ws://x"}

	_, err := f.client.Join(context.Background(), "alice", "standup")
	assert.ErrorIs(t, err, core.ErrConnectionFailure)
}

func TestJoinConnectFailureStaysIdle(t *testing.T) {
	f := newFixture(t, Options{})
	f.client.newRoom = func() Room {
		r := newFakeRoom(alice)
		r.connectErr = errors.New("dial refused")
		f.rooms = append(f.rooms, r)
		return r
	}

	_, err := f.client.Join(context.Background(), "alice", "standup")
	assert.ErrorIs(t, err, core.ErrConnectionFailure)
	assert.Nil(t, f.client.Current())
	assert.Empty(t, f.names.LastName())

	last := f.notifier.transitions[len(f.notifier.transitions)-1]
	assert.Equal(t, core.StateIdle, last.To)
}

func TestJoinCancelledDuringHandshakeLeavesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f := newFixture(t, Options{})
	f.client.newRoom = func() Room {
		r := newFakeRoom(alice)
		r.onConnect = cancel
		f.rooms = append(f.rooms, r)
		return r
	}

	_, err := f.client.Join(ctx, "alice", "standup")
	assert.ErrorIs(t, err, core.ErrConnectionFailure)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, f.client.Current())
	assert.Equal(t, 1, f.room().disconnectCount())

	last := f.notifier.transitions[len(f.notifier.transitions)-1]
	assert.Equal(t, core.StateIdle, last.To)
	for _, tr := range f.notifier.transitions {
		assert.NotEqual(t, core.StateConnected, tr.To)
	}
}

func TestJoinValidatesInput(t *testing.T) {
	f := newFixture(t, Options{})
	_, err := f.client.Join(context.Background(), " ", "standup")
	assert.ErrorIs(t, err, domain.ErrIdentityEmpty)
	_, err = f.client.Join(context.Background(), "alice", "")
	assert.ErrorIs(t, err, domain.ErrRoomNameEmpty)
	assert.Equal(t, 0, f.tokens.calls)
}

func TestPermissionDeniedDoesNotAbortJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	f.client.newRoom = func() Room {
		r := newFakeRoom(alice)
		r.failDevice(domain.TrackVideo, errors.New("NotAllowedError: Permission denied"))
		f.rooms = append(f.rooms, r)
		return r
	}

	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)
	media, err := s.Media(ctx)
	require.NoError(t, err)
	assert.False(t, media.Camera)
	assert.True(t, media.Microphone)
	assert.Len(t, f.notifier.warningList(), 1)
	assert.Contains(t, f.notifier.toastList(), "Permission denied for camera")
}

func TestToggleFailureKeepsRealState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	f.room().failDevice(domain.TrackAudio, errors.New("device busy"))
	err = s.ToggleMicrophone(ctx)
	assert.ErrorIs(t, err, core.ErrTransientDevice)

	media, _ := s.Media(ctx)
	assert.True(t, media.Microphone, "the mic is still on")
	assert.Contains(t, f.notifier.toastList(), "Failed to toggle microphone")

	f.room().failDevice(domain.TrackAudio, nil)
	require.NoError(t, s.ToggleMicrophone(ctx))
	media, _ = s.Media(ctx)
	assert.False(t, media.Microphone)

	snap, _, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.False(t, snap.Local.Presenting(domain.TrackAudio))
	assert.True(t, snap.Local.Presenting(domain.TrackVideo))
}

func TestScreenShareCancelIsSilent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	f.room().failDevice(domain.TrackScreenShare, errors.New("NotAllowedError: Permission denied"))
	assert.NoError(t, s.ToggleScreenShare(ctx))
	assert.Empty(t, f.notifier.warningList())
}

func TestLocalScreenShareDrivesLayout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	require.NoError(t, s.ToggleScreenShare(ctx))
	require.NoError(t, s.ToggleLayout(ctx))
	_, lay, _ := s.Snapshot(ctx)
	require.NotNil(t, lay.Focused)
	assert.Equal(t, domain.Identity("alice"), lay.Focused.Identity)

	require.NoError(t, s.ToggleScreenShare(ctx))
	_, lay, _ = s.Snapshot(ctx)
	assert.Equal(t, core.ModeGrid, lay.Mode)
}

func TestToggleLayoutWithoutShare(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	assert.ErrorIs(t, s.ToggleLayout(ctx), core.ErrFocusUnavailable)
	assert.Contains(t, f.notifier.toastList(), "No screen share to focus")
	_, lay, _ := s.Snapshot(ctx)
	assert.Equal(t, core.ModeGrid, lay.Mode)
}

func TestFocusOnSpecificShare(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	s.OnTrackSubscribed(bob, domain.TrackScreenShare, "TR_b")
	s.OnTrackSubscribed(carol, domain.TrackScreenShare, "TR_c")
	require.NoError(t, s.FocusOn(ctx, "carol"))
	_, lay, _ := s.Snapshot(ctx)
	assert.Equal(t, carol, *lay.Focused)

	assert.ErrorIs(t, s.FocusOn(ctx, "nobody"), core.ErrFocusUnavailable)
}

func TestRejoinReplacesSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	first, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)
	firstRoom := f.room()

	second, err := f.client.Join(ctx, "alice", "retro")
	require.NoError(t, err)

	assert.Equal(t, 1, firstRoom.disconnectCount())
	assert.Same(t, second, f.client.Current())
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("previous session loop still running")
	}
	_, err = first.State(ctx)
	assert.ErrorIs(t, err, core.ErrSessionClosed)
}

func TestReconciliationHealsMissedJoin(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{ReconcileInterval: 10 * time.Millisecond})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	s.OnParticipantJoined(bob)
	// carol joined in a race and her event never arrived
	f.room().setRemotes([]domain.ParticipantRef{alice, bob, carol})

	assert.Eventually(t, func() bool {
		last := f.renderer.last()
		return len(last.snap.Remotes) == 2 && last.snap.Remotes[1].Ref.Identity == "carol"
	}, 2*time.Second, 5*time.Millisecond)
}

func TestReconnectKeepsState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)
	s.OnParticipantJoined(bob)

	s.OnConnectionStateChanged(EventReconnecting)
	s.OnConnectionStateChanged(EventDisconnected)
	require.NoError(t, s.Sync(ctx))

	st, _ := s.State(ctx)
	assert.Equal(t, core.StateDisconnected, st)
	assert.Equal(t, 0, f.renderer.removeAllCount())

	s.OnConnectionStateChanged(EventConnected)
	snap, _, err := s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.Identity{"bob"}, identities(snap.Remotes))
	st, _ = s.State(ctx)
	assert.Equal(t, core.StateConnected, st)
}

func TestTerminalDisconnectTearsDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)
	s.OnParticipantJoined(bob)
	s.OnTrackSubscribed(bob, domain.TrackAudio, "TR_bob_mic")
	require.NoError(t, s.Sync(ctx))

	s.OnConnectionStateChanged(EventDisconnected)
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("session did not end")
	}

	assert.Nil(t, f.client.Current())
	assert.Equal(t, 1, f.renderer.removeAllCount())
	assert.Equal(t, 1, f.room().monitor("bob").count())
	assert.Contains(t, f.notifier.toastList(), "Disconnected from room")

	s.OnParticipantJoined(carol)
	assert.ErrorIs(t, s.Sync(ctx), core.ErrSessionClosed)
}

func TestLostAfterReconnectTearsDown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	s.OnConnectionStateChanged(EventReconnecting)
	s.OnConnectionStateChanged(EventDisconnected)
	s.OnConnectionStateChanged(EventLost)
	<-s.Done()
	assert.Equal(t, 1, f.renderer.removeAllCount())
}

func TestAudioMonitorReleasedOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	s.OnParticipantJoined(bob)
	s.OnTrackSubscribed(bob, domain.TrackAudio, "TR_bob_mic")
	s.OnParticipantLeft(bob)
	s.OnParticipantLeft(bob)
	require.NoError(t, s.Sync(ctx))
	require.NoError(t, f.client.Leave(ctx))

	assert.Equal(t, 1, f.room().monitor("bob").count())
}

func TestTrackEventAdmitsUnknownParticipant(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	s.OnTrackSubscribed(carol, domain.TrackVideo, "TR_c")
	s.OnTrackMuted(carol, domain.TrackVideo, "TR_c")
	snap, _, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Remotes, 1)
	rec, ok := snap.Remotes[0].Track(domain.TrackVideo)
	require.True(t, ok)
	assert.True(t, rec.Muted)
}

func TestRenderFailureSelfHeals(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{ReconcileInterval: 10 * time.Millisecond})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	f.renderer.setFail(true)
	s.OnParticipantJoined(bob)
	require.NoError(t, s.Sync(ctx))
	f.renderer.setFail(false)

	assert.Eventually(t, func() bool {
		return len(f.renderer.last().snap.Remotes) == 1
	}, 2*time.Second, 5*time.Millisecond)
}

func TestSpeakingForwardedWhileConnected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	require.NoError(t, s.SetSpeaking(ctx, true))
	require.NoError(t, s.SetSpeaking(ctx, false))
	assert.Equal(t, []bool{true, false}, f.room().speaking)

	require.NoError(t, f.client.Leave(ctx))
	assert.Error(t, s.SetSpeaking(ctx, true))
}

func TestSIDUpgradeCarriesTracksAndMonitor(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, Options{})
	s, err := f.client.Join(ctx, "alice", "standup")
	require.NoError(t, err)

	bobByName := domain.ParticipantRef{Identity: "bob"}
	s.OnTrackSubscribed(bobByName, domain.TrackScreenShare, "TR_bob_share")
	s.OnTrackSubscribed(bobByName, domain.TrackAudio, "TR_bob_mic")
	s.OnParticipantJoined(bob)

	snap, lay, err := s.Snapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Remotes, 1)
	assert.Equal(t, bob, snap.Remotes[0].Ref)
	assert.True(t, snap.Remotes[0].Presenting(domain.TrackScreenShare))
	assert.True(t, lay.FocusAvailable)

	require.NoError(t, s.ToggleLayout(ctx))
	_, lay, err = s.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, lay.Focused)
	assert.Equal(t, bob, *lay.Focused)

	s.OnParticipantLeft(bob)
	snap, lay, err = s.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Remotes)
	assert.False(t, lay.FocusAvailable)
	assert.Equal(t, core.ModeGrid, lay.Mode)
	assert.Nil(t, lay.Focused)
	assert.ErrorIs(t, s.ToggleLayout(ctx), core.ErrFocusUnavailable)
	assert.Equal(t, 1, f.room().monitor("bob").count())
}
