package app

import (
	"context"
	"fmt"
	"time"

	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

// Options tune a session. Zero values fall back to the defaults below.
type Options struct {
	ReconcileInterval time.Duration
	SettleDelay       time.Duration
	AutoFocus         bool
}

const (
	DefaultReconcileInterval = 3 * time.Second
	DefaultSettleDelay       = 500 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.ReconcileInterval <= 0 {
		o.ReconcileInterval = DefaultReconcileInterval
	}
	if o.SettleDelay < 0 {
		o.SettleDelay = 0
	}
	return o
}

const (
	msgReturnedToGrid   = "Returned to grid layout"
	msgNoScreenShare    = "No screen share to focus"
	msgPermissionBanner = "Camera or microphone access was denied. Allow access in your system settings to be seen and heard."
	msgDisconnected     = "Disconnected from room"
)

// Session owns every piece of per-join state. All fields below mbox are
// touched only on the mailbox goroutine.
type Session struct {
	room     Room
	roomName domain.RoomName
	identity domain.Identity
	renderer core.Renderer
	notifier core.Notifier
	opts     Options
	onEnded  func(*Session)

	mbox *Mailbox

	conn     *core.ConnectionStateMachine
	roster   *core.RosterStore
	tracks   *core.TrackPresenceTracker
	layout   *core.LayoutController
	view     *core.ViewTracker
	rc       core.Reconciler
	loop     *core.ReconciliationLoop
	monitors *core.AudioMonitors
	media    MediaState

	tornDown bool
	closed   bool
}

func newSession(
	room Room,
	roomName domain.RoomName,
	identity domain.Identity,
	renderer core.Renderer,
	notifier core.Notifier,
	opts Options,
) *Session {
	s := &Session{
		room:     room,
		roomName: roomName,
		identity: identity,
		renderer: renderer,
		notifier: notifier,
		opts:     opts.withDefaults(),
		mbox:     NewMailbox(),
		tracks:   core.NewTrackPresenceTracker(),
		view:     core.NewViewTracker(),
		monitors: core.NewAudioMonitors(),
		media:    newMediaState(),
	}
	s.conn = core.NewConnectionStateMachine(s.teardown)
	s.roster = core.NewRosterStore(
		core.NewProvider("participants", false, room.Participants),
		core.NewProvider("remote_participants", true, room.RemoteParticipants),
		core.NewProvider("raw_state", false, room.RawState),
	)
	s.layout = core.NewLayoutController(s.tracks, s.opts.AutoFocus)

	s.tracks.OnScreenShareChange(func(p domain.ParticipantRef, active bool) {
		if active {
			s.noteLayout(s.layout.OnScreenShareActivated(p))
		} else {
			s.noteLayout(s.layout.OnScreenShareDeactivated(p))
		}
	})
	s.roster.OnRemove(func(p domain.ParticipantRef) {
		s.tracks.RemoveParticipant(p)
		s.monitors.Release(p)
	})
	s.roster.OnRekey(func(old, updated domain.ParticipantRef) {
		s.tracks.Rekey(old, updated)
		s.layout.Rekey(old, updated)
		s.monitors.Rekey(old, updated)
	})
	s.conn.Subscribe(func(tr core.Transition) {
		if s.notifier != nil {
			s.notifier.ConnectionStatus(tr)
		}
	})
	return s
}

func (s *Session) RoomName() domain.RoomName { return s.roomName }

func (s *Session) Identity() domain.Identity { return s.identity }

// Done is closed once the session loop has exited.
func (s *Session) Done() <-chan struct{} { return s.mbox.Done() }

// post queues work that is dropped if the session ended meanwhile.
func (s *Session) post(fn func()) {
	s.mbox.Post(func() {
		if s.closed {
			return
		}
		fn()
	})
}

func (s *Session) do(ctx context.Context, fn func()) error {
	var closed bool
	err := s.mbox.Do(ctx, func() {
		if s.closed {
			closed = true
			return
		}
		fn()
	})
	if err != nil {
		return err
	}
	if closed {
		return core.ErrSessionClosed
	}
	return nil
}

// connect performs the join handshake. On failure the session is left Idle
// and closed.
func (s *Session) connect(ctx context.Context, url, token string) error {
	var beginErr error
	if err := s.do(ctx, func() { beginErr = s.conn.BeginConnect() }); err != nil {
		return err
	}
	if beginErr != nil {
		return beginErr
	}

	local, err := s.room.Connect(ctx, url, token, s)
	if err == nil && ctx.Err() != nil {
		// the caller gave up during the handshake
		if derr := s.room.Disconnect(context.Background()); derr != nil {
			log.Warn().Err(derr).Str("module", "app.session").Msg("disconnect after cancelled join")
		}
		err = ctx.Err()
	}
	if err != nil {
		_ = s.do(context.Background(), func() { s.abort() })
		return fmt.Errorf("%w: %w", core.ErrConnectionFailure, err)
	}
	if local.Identity == "" {
		local.Identity = s.identity
	}

	return s.do(context.Background(), func() {
		s.roster.SetLocal(local)
		s.conn.OnConnected()
		s.rebuild("initial")
		log.Info().Str("module", "app.session").Str("room", string(s.roomName)).Str("local", local.Label()).Int("remotes", s.roster.Len()).Msg("connected")
	})
}

func (s *Session) startReconciliation() error {
	return s.do(context.Background(), func() {
		if s.loop != nil {
			return
		}
		s.loop = core.NewReconciliationLoop(s.opts.ReconcileInterval, func(fn func()) { s.post(fn) }, s.reconcile)
		s.loop.Start()
	})
}

// Leave disconnects the collaborator and tears the session down.
func (s *Session) Leave(ctx context.Context) error {
	err := s.room.Disconnect(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.session").Msg("disconnect")
	}
	if doErr := s.mbox.Do(ctx, s.end); doErr != nil && doErr != core.ErrSessionClosed {
		return doErr
	}
	return nil
}

// Sync waits until every event queued so far has been handled.
func (s *Session) Sync(ctx context.Context) error {
	return s.mbox.Do(ctx, func() {})
}

func (s *Session) State(ctx context.Context) (core.ConnState, error) {
	var st core.ConnState
	err := s.mbox.Do(ctx, func() { st = s.conn.State() })
	return st, err
}

// Snapshot returns fresh copies of the roster view and layout.
func (s *Session) Snapshot(ctx context.Context) (core.RosterSnapshot, core.LayoutState, error) {
	var (
		snap core.RosterSnapshot
		lay  core.LayoutState
	)
	err := s.mbox.Do(ctx, func() {
		snap = s.roster.Snapshot(s.tracks)
		lay = s.layout.State()
	})
	return snap, lay, err
}

func (s *Session) ToggleLayout(ctx context.Context) error {
	var result error
	if err := s.do(ctx, func() {
		if _, err := s.layout.Toggle(); err != nil {
			s.toast(msgNoScreenShare)
			result = err
			return
		}
		s.renderFull()
	}); err != nil {
		return err
	}
	return result
}

// FocusOn shows one participant's screen share full size.
func (s *Session) FocusOn(ctx context.Context, identity domain.Identity) error {
	var result error
	if err := s.do(ctx, func() {
		ref, ok := s.roster.Resolve(domain.ParticipantRef{Identity: identity})
		if !ok {
			result = core.ErrFocusUnavailable
			return
		}
		if _, err := s.layout.FocusOn(ref); err != nil {
			result = err
			return
		}
		s.renderFull()
	}); err != nil {
		return err
	}
	return result
}

// OnConnectionStateChanged and the rest of Events only enqueue.
func (s *Session) OnConnectionStateChanged(ev ConnectionEvent) {
	s.post(func() { s.applyConnection(ev) })
}

func (s *Session) OnParticipantJoined(p domain.ParticipantRef) {
	s.post(func() {
		if s.roster.AddOrUpdate(p, core.AdmittedLive) {
			log.Info().Str("module", "app.session").Str("participant", p.Label()).Msg("participant joined")
			s.renderFull()
		}
	})
}

func (s *Session) OnParticipantLeft(p domain.ParticipantRef) {
	s.post(func() {
		if s.roster.RemoveRef(p) {
			log.Info().Str("module", "app.session").Str("participant", p.Label()).Msg("participant left")
			s.renderFull()
		}
	})
}

func (s *Session) OnTrackSubscribed(p domain.ParticipantRef, kind domain.TrackKind, sid domain.TrackSID) {
	s.post(func() {
		ref := s.admit(p)
		if !s.tracks.OnSubscribed(ref, kind, sid) {
			return
		}
		if kind == domain.TrackAudio && !s.roster.IsLocal(ref) {
			s.attachMonitor(ref, sid)
		}
		s.renderFull()
	})
}

func (s *Session) OnTrackUnsubscribed(p domain.ParticipantRef, kind domain.TrackKind, _ domain.TrackSID) {
	s.post(func() {
		ref := s.resolve(p)
		if !s.tracks.OnUnsubscribed(ref, kind) {
			return
		}
		if kind == domain.TrackAudio {
			s.monitors.Release(ref)
		}
		s.renderFull()
	})
}

func (s *Session) OnTrackMuted(p domain.ParticipantRef, kind domain.TrackKind, _ domain.TrackSID) {
	s.post(func() {
		ref := s.resolve(p)
		if s.tracks.OnMuted(ref, kind) {
			s.renderAfterMute(kind)
		}
	})
}

func (s *Session) OnTrackUnmuted(p domain.ParticipantRef, kind domain.TrackKind, _ domain.TrackSID) {
	s.post(func() {
		ref := s.resolve(p)
		if s.tracks.OnUnmuted(ref, kind) {
			s.renderAfterMute(kind)
		}
	})
}

func (s *Session) OnActiveSpeakersChanged(speakers []domain.ParticipantRef) {
	cp := append([]domain.ParticipantRef(nil), speakers...)
	s.post(func() {
		if s.roster.SetSpeakers(cp) {
			s.renderIndicators()
		}
	})
}

func (s *Session) OnConnectionQualityChanged(p domain.ParticipantRef, q domain.ConnectionQuality) {
	s.post(func() {
		if s.roster.SetQuality(s.resolve(p), q) {
			s.renderIndicators()
		}
	})
}

func (s *Session) applyConnection(ev ConnectionEvent) {
	switch ev {
	case EventConnected:
		wasReconnecting := s.conn.IsReconnecting()
		s.conn.OnConnected()
		if wasReconnecting {
			s.rebuild("reconnected")
		}
	case EventReconnecting:
		if err := s.conn.OnReconnecting(); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Msg("reconnecting ignored")
		}
	case EventDisconnected:
		if s.conn.OnDisconnected() {
			s.toast(msgDisconnected)
			s.end()
		}
	case EventLost:
		s.conn.GiveUp()
		s.toast(msgDisconnected)
		s.end()
	default:
		log.Warn().Str("module", "app.session").Str("event", string(ev)).Msg("unknown connection event")
	}
}

// reconcile is one tick of the self-healing pass.
func (s *Session) reconcile() {
	if s.conn.State() != core.StateConnected {
		return
	}
	snap := s.roster.Snapshot(s.tracks)
	authoritative := snap.Identities()
	seen := make(map[domain.Identity]bool, len(authoritative))
	for _, id := range authoritative {
		seen[id] = true
	}
	found, _ := s.roster.Discover(false)
	for _, ref := range found {
		if id := domain.Identity(ref.Label()); !seen[id] {
			seen[id] = true
			authoritative = append(authoritative, id)
		}
	}

	action, reason := s.rc.Decide(authoritative, snap.Local != nil, s.view)
	switch action {
	case core.ActionRebuild:
		s.rebuild(reason)
	default:
		s.renderIndicators()
	}
}

// rebuild re-runs fallback discovery, repairs the layout and redraws.
func (s *Session) rebuild(reason string) {
	evidence := s.roster.Missing(s.view.Rendered())
	res := s.roster.Rebuild(evidence)
	s.noteLayout(s.layout.AutoEnterFocusIfExclusive())
	s.renderFull()
	if reason != "initial" {
		s.rc.MarkSucceeded()
	}
	log.Debug().Str("module", "app.session").Str("reason", reason).Str("source", res.Source).Int("found", res.Found).Bool("evidence", evidence).Msg("rebuild")
}

func (s *Session) renderFull() {
	if !s.renderable() {
		return
	}
	if err := s.view.Render(s.renderer, s.roster.Snapshot(s.tracks), s.layout.State()); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Msg("render failed")
	}
}

func (s *Session) renderIndicators() {
	if !s.renderable() {
		return
	}
	if err := s.renderer.RenderIndicatorsOnly(s.roster.Snapshot(s.tracks)); err != nil {
		log.Warn().Err(err).Str("module", "app.session").Msg("indicator render failed")
	}
}

// renderAfterMute redraws tiles only while connected; a screen share mute
// changes structure, the others only indicators.
func (s *Session) renderAfterMute(kind domain.TrackKind) {
	if s.conn.State() != core.StateConnected {
		return
	}
	if kind == domain.TrackScreenShare {
		s.renderFull()
		return
	}
	s.renderIndicators()
}

func (s *Session) renderable() bool {
	if s.renderer == nil {
		return false
	}
	st := s.conn.State()
	return st == core.StateConnected || st == core.StateReconnecting
}

func (s *Session) noteLayout(change core.LayoutChange) {
	if change == core.LayoutRevertedToGrid {
		s.toast(msgReturnedToGrid)
	}
}

func (s *Session) toast(msg string) {
	if s.notifier != nil {
		s.notifier.Toast(msg)
	}
}

// admit makes sure a participant seen through a track event is in the roster.
func (s *Session) admit(p domain.ParticipantRef) domain.ParticipantRef {
	if ref, ok := s.roster.Resolve(p); ok {
		return ref
	}
	s.roster.AddOrUpdate(p, core.AdmittedLive)
	return s.resolve(p)
}

func (s *Session) resolve(p domain.ParticipantRef) domain.ParticipantRef {
	if ref, ok := s.roster.Resolve(p); ok {
		return ref
	}
	return p
}

func (s *Session) attachMonitor(ref domain.ParticipantRef, sid domain.TrackSID) {
	analyzer, ok := s.room.(AudioAnalyzer)
	if !ok {
		return
	}
	h, err := analyzer.AnalyzeAudio(ref, sid)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.session").Str("participant", ref.Label()).Msg("audio monitor unavailable")
		return
	}
	s.monitors.Attach(ref, h)
}

// teardown runs once per session, from the state machine or from end.
func (s *Session) teardown() {
	if s.tornDown {
		return
	}
	s.tornDown = true
	if s.loop != nil {
		s.loop.Stop()
	}
	s.tracks.Clear()
	s.monitors.ReleaseAll()
	s.roster.Clear()
	s.layout.Reset()
	s.rc.Reset()
	s.media = newMediaState()
	if s.renderer != nil {
		if err := s.view.RemoveAll(s.renderer); err != nil {
			log.Warn().Err(err).Str("module", "app.session").Msg("remove all failed")
			s.view.Forget()
		}
	}
	log.Info().Str("module", "app.session").Str("room", string(s.roomName)).Msg("session torn down")
}

// end finishes the session from inside the loop.
func (s *Session) end() {
	if s.closed {
		return
	}
	switch s.conn.State() {
	case core.StateConnected, core.StateReconnecting, core.StateConnecting:
		s.conn.GiveUp()
	}
	s.teardown()
	s.conn.Reset()
	s.closed = true
	s.mbox.Close()
	if s.onEnded != nil {
		s.onEnded(s)
	}
}

// abort backs out of a failed connect without a Connected ever happening.
func (s *Session) abort() {
	s.teardown()
	s.conn.Reset()
	s.closed = true
	s.mbox.Close()
}
