package core

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

type ReconcileAction int

const (
	ActionRefreshIndicators ReconcileAction = iota
	ActionRebuild
)

func (a ReconcileAction) String() string {
	if a == ActionRebuild {
		return "rebuild"
	}
	return "refresh"
}

// Reconciler decides what a tick should do. One per session.
type Reconciler struct {
	succeeded bool
}

func (r *Reconciler) MarkSucceeded() { r.succeeded = true }

func (r *Reconciler) Reset() { r.succeeded = false }

// Decide compares the authoritative remote identities and local presence
// against what was last drawn. Any missing or stale tile means rebuild.
func (r *Reconciler) Decide(authoritative []domain.Identity, hasLocal bool, view *ViewTracker) (ReconcileAction, string) {
	if !r.succeeded {
		return ActionRebuild, "first pass"
	}
	if hasLocal && !view.LocalRendered() {
		return ActionRebuild, "local tile missing"
	}
	want := make(map[domain.Identity]bool, len(authoritative))
	for _, id := range authoritative {
		want[id] = true
		if !view.Has(id) {
			return ActionRebuild, "missing tile " + string(id)
		}
	}
	for _, id := range view.Rendered() {
		if !want[id] {
			return ActionRebuild, "stale tile " + string(id)
		}
	}
	return ActionRefreshIndicators, ""
}

// ReconciliationLoop posts a tick into the session mailbox at a fixed
// interval. After Stop no tick runs, including one already queued.
type ReconciliationLoop struct {
	interval time.Duration
	post     func(func())
	tick     func()

	stopped atomic.Bool
	done    chan struct{}
	once    sync.Once
}

func NewReconciliationLoop(interval time.Duration, post func(func()), tick func()) *ReconciliationLoop {
	return &ReconciliationLoop{
		interval: interval,
		post:     post,
		tick:     tick,
		done:     make(chan struct{}),
	}
}

func (l *ReconciliationLoop) Start() {
	go l.run()
}

func (l *ReconciliationLoop) run() {
	t := time.NewTicker(l.interval)
	defer t.Stop()
	for {
		select {
		case <-l.done:
			log.Debug().Str("module", "core.reconcile").Msg("loop stopped")
			return
		case <-t.C:
			l.post(func() {
				if l.stopped.Load() {
					return
				}
				l.tick()
			})
		}
	}
}

func (l *ReconciliationLoop) Stop() {
	l.stopped.Store(true)
	l.once.Do(func() { close(l.done) })
}

func (l *ReconciliationLoop) Stopped() bool { return l.stopped.Load() }
