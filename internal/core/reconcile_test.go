package core

import (
	"sync"
	"testing"
	"time"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/stretchr/testify/assert"
)

type nopRenderer struct{ err error }

func (r nopRenderer) Render(RosterSnapshot, LayoutState) error   { return r.err }
func (r nopRenderer) RenderIndicatorsOnly(RosterSnapshot) error { return r.err }
func (r nopRenderer) RemoveAll() error                          { return r.err }

func TestFirstTickAlwaysRebuilds(t *testing.T) {
	var rc Reconciler
	view := NewViewTracker()
	action, _ := rc.Decide(nil, false, view)
	assert.Equal(t, ActionRebuild, action)

	rc.MarkSucceeded()
	action, _ = rc.Decide(nil, false, view)
	assert.Equal(t, ActionRefreshIndicators, action)
}

func TestReconcileSelfHeal(t *testing.T) {
	var rc Reconciler
	rc.MarkSucceeded()
	view := NewViewTracker()
	snap := RosterSnapshot{
		Local:   &ParticipantView{Ref: local, IsLocal: true},
		Remotes: []ParticipantView{{Ref: bob}},
	}
	assert.NoError(t, view.Render(nopRenderer{}, snap, LayoutState{Mode: ModeGrid}))

	action, reason := rc.Decide([]domain.Identity{"bob", "carol"}, true, view)
	assert.Equal(t, ActionRebuild, action)
	assert.Contains(t, reason, "carol")

	action, _ = rc.Decide([]domain.Identity{"bob"}, true, view)
	assert.Equal(t, ActionRefreshIndicators, action)

	action, reason = rc.Decide(nil, true, view)
	assert.Equal(t, ActionRebuild, action)
	assert.Contains(t, reason, "stale")
}

func TestFailedRenderLeavesViewUntouched(t *testing.T) {
	view := NewViewTracker()
	snap := RosterSnapshot{Local: &ParticipantView{Ref: local}, Remotes: []ParticipantView{{Ref: bob}}}
	assert.Error(t, view.Render(nopRenderer{err: assert.AnError}, snap, LayoutState{}))
	assert.False(t, view.LocalRendered())
	assert.False(t, view.Has("bob"))

	var rc Reconciler
	rc.MarkSucceeded()
	action, reason := rc.Decide([]domain.Identity{"bob"}, true, view)
	assert.Equal(t, ActionRebuild, action)
	assert.Equal(t, "local tile missing", reason)
}

func TestReconciliationLoopNoTickAfterStop(t *testing.T) {
	var mu sync.Mutex
	var queued []func()
	ticks := 0
	loop := NewReconciliationLoop(5*time.Millisecond, func(fn func()) {
		mu.Lock()
		queued = append(queued, fn)
		mu.Unlock()
	}, func() { ticks++ })

	loop.Start()
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(queued) > 0
	}, time.Second, time.Millisecond)

	loop.Stop()
	loop.Stop()

	mu.Lock()
	pending := append([]func(){}, queued...)
	mu.Unlock()
	for _, fn := range pending {
		fn()
	}
	assert.Equal(t, 0, ticks, "ticks queued before Stop are dropped")
	assert.True(t, loop.Stopped())
}
