package core

import (
	"testing"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLayoutFixture(autoFocus bool) (*TrackPresenceTracker, *LayoutController, *[]LayoutChange) {
	tr := NewTrackPresenceTracker()
	lc := NewLayoutController(tr, autoFocus)
	var changes []LayoutChange
	tr.OnScreenShareChange(func(p domain.ParticipantRef, active bool) {
		if active {
			changes = append(changes, lc.OnScreenShareActivated(p))
		} else {
			changes = append(changes, lc.OnScreenShareDeactivated(p))
		}
	})
	return tr, lc, &changes
}

func TestToggleWithoutSharesIsUnavailable(t *testing.T) {
	_, lc, _ := newLayoutFixture(false)
	st, err := lc.Toggle()
	assert.ErrorIs(t, err, ErrFocusUnavailable)
	assert.Equal(t, ModeGrid, st.Mode)
	assert.Nil(t, st.Focused)
	assert.False(t, st.FocusAvailable)
}

func TestActivationMakesFocusAvailableOnly(t *testing.T) {
	tr, lc, _ := newLayoutFixture(false)
	tr.OnSubscribed(bob, domain.TrackScreenShare, "TR_s")

	st := lc.State()
	assert.Equal(t, ModeGrid, st.Mode)
	assert.Nil(t, st.Focused, "focus is only exposed in focus mode")
	assert.True(t, st.FocusAvailable)
	c, ok := lc.Candidate()
	require.True(t, ok)
	assert.Equal(t, bob, c)
}

func TestFocusAutoExitOnMute(t *testing.T) {
	tr, lc, changes := newLayoutFixture(false)
	tr.OnSubscribed(bob, domain.TrackScreenShare, "TR_s")

	st, err := lc.Toggle()
	require.NoError(t, err)
	assert.Equal(t, ModeFocus, st.Mode)
	require.NotNil(t, st.Focused)
	assert.Equal(t, bob, *st.Focused)

	tr.OnMuted(bob, domain.TrackScreenShare)
	st = lc.State()
	assert.Equal(t, ModeGrid, st.Mode)
	assert.Nil(t, st.Focused)
	assert.Equal(t, LayoutRevertedToGrid, (*changes)[len(*changes)-1])
}

func TestFocusMovesAwayOnlyWhenFocusedShareEnds(t *testing.T) {
	tr, lc, _ := newLayoutFixture(false)
	tr.OnSubscribed(bob, domain.TrackScreenShare, "TR_b")
	tr.OnSubscribed(carol, domain.TrackScreenShare, "TR_c")

	st, err := lc.Toggle()
	require.NoError(t, err)
	assert.Equal(t, bob, *st.Focused, "first activation is the candidate")

	tr.OnUnsubscribed(carol, domain.TrackScreenShare)
	assert.Equal(t, ModeFocus, lc.State().Mode)

	tr.OnUnsubscribed(bob, domain.TrackScreenShare)
	assert.Equal(t, ModeGrid, lc.State().Mode)
}

func TestToggleBackRecordsGridPreference(t *testing.T) {
	tr, lc, _ := newLayoutFixture(true)
	tr.OnSubscribed(bob, domain.TrackScreenShare, "TR_b")
	assert.Equal(t, ModeFocus, lc.State().Mode, "auto focus on a lone share")

	st, err := lc.Toggle()
	require.NoError(t, err)
	assert.Equal(t, ModeGrid, st.Mode)

	assert.Equal(t, LayoutUnchanged, lc.AutoEnterFocusIfExclusive(), "grid preference holds")

	tr.OnUnsubscribed(bob, domain.TrackScreenShare)
	tr.OnSubscribed(bob, domain.TrackScreenShare, "TR_b2")
	assert.Equal(t, ModeFocus, lc.State().Mode, "a new activation clears the preference")
}

func TestFocusOn(t *testing.T) {
	tr, lc, _ := newLayoutFixture(false)
	tr.OnSubscribed(bob, domain.TrackScreenShare, "TR_b")
	tr.OnSubscribed(carol, domain.TrackScreenShare, "TR_c")

	st, err := lc.FocusOn(carol)
	require.NoError(t, err)
	assert.Equal(t, carol, *st.Focused)

	_, err = lc.FocusOn(dave)
	assert.ErrorIs(t, err, ErrFocusUnavailable)
	assert.Equal(t, carol, *lc.State().Focused)
}
