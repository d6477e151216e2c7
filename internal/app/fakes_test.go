package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
)

type fakeTokens struct {
	grant Grant
	err   error
	calls int
}

func (f *fakeTokens) Fetch(_ context.Context, room domain.RoomName, identity domain.Identity) (Grant, error) {
	f.calls++
	return f.grant, f.err
}

type countingReleaser struct {
	mu sync.Mutex
	n  int
}

func (c *countingReleaser) Release() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingReleaser) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type fakeRoom struct {
	mu           sync.Mutex
	local        domain.ParticipantRef
	events       Events
	url          string
	connectErr   error
	onConnect    func()
	deviceErr    map[domain.TrackKind]error
	participants any
	remotes      any
	raw          any
	disconnects  int
	speaking     []bool
	monitors     map[domain.Identity]*countingReleaser
}

func newFakeRoom(local domain.ParticipantRef) *fakeRoom {
	return &fakeRoom{
		local:     local,
		deviceErr: make(map[domain.TrackKind]error),
		monitors:  make(map[domain.Identity]*countingReleaser),
	}
}

func (f *fakeRoom) Connect(_ context.Context, url, token string, events Events) (domain.ParticipantRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.url = url
	if f.onConnect != nil {
		f.onConnect()
	}
	if f.connectErr != nil {
		return domain.ParticipantRef{}, f.connectErr
	}
	f.events = events
	return f.local, nil
}

func (f *fakeRoom) SetSpeaking(_ context.Context, on bool) error {
	f.mu.Lock()
	f.speaking = append(f.speaking, on)
	f.mu.Unlock()
	return nil
}

func (f *fakeRoom) Disconnect(context.Context) error {
	f.mu.Lock()
	f.disconnects++
	f.mu.Unlock()
	return nil
}

func (f *fakeRoom) setDevice(kind domain.TrackKind, on bool) (domain.TrackSID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deviceErr[kind]; err != nil {
		return "", err
	}
	if !on {
		return "", nil
	}
	return domain.TrackSID("TR_local_" + string(kind)), nil
}

func (f *fakeRoom) SetMicrophoneEnabled(_ context.Context, on bool) (domain.TrackSID, error) {
	return f.setDevice(domain.TrackAudio, on)
}

func (f *fakeRoom) SetCameraEnabled(_ context.Context, on bool) (domain.TrackSID, error) {
	return f.setDevice(domain.TrackVideo, on)
}

func (f *fakeRoom) SetScreenShareEnabled(_ context.Context, on bool) (domain.TrackSID, error) {
	return f.setDevice(domain.TrackScreenShare, on)
}

func (f *fakeRoom) Participants() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.participants
}

func (f *fakeRoom) RemoteParticipants() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remotes
}

func (f *fakeRoom) RawState() any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.raw
}

func (f *fakeRoom) AnalyzeAudio(p domain.ParticipantRef, _ domain.TrackSID) (core.Releaser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &countingReleaser{}
	f.monitors[p.Identity] = h
	return h, nil
}

func (f *fakeRoom) setRemotes(v any) {
	f.mu.Lock()
	f.remotes = v
	f.mu.Unlock()
}

func (f *fakeRoom) failDevice(kind domain.TrackKind, err error) {
	f.mu.Lock()
	f.deviceErr[kind] = err
	f.mu.Unlock()
}

func (f *fakeRoom) monitor(id domain.Identity) *countingReleaser {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.monitors[id]
}

func (f *fakeRoom) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

type renderCall struct {
	snap   core.RosterSnapshot
	layout core.LayoutState
}

type recordingRenderer struct {
	mu         sync.Mutex
	renders    []renderCall
	indicators int
	removeAll  int
	fail       bool
}

func (r *recordingRenderer) Render(snap core.RosterSnapshot, layout core.LayoutState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("render failed")
	}
	r.renders = append(r.renders, renderCall{snap, layout})
	return nil
}

func (r *recordingRenderer) RenderIndicatorsOnly(core.RosterSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indicators++
	return nil
}

func (r *recordingRenderer) RemoveAll() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeAll++
	return nil
}

func (r *recordingRenderer) last() renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.renders) == 0 {
		return renderCall{}
	}
	return r.renders[len(r.renders)-1]
}

func (r *recordingRenderer) removeAllCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeAll
}

func (r *recordingRenderer) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

type recordingNotifier struct {
	mu          sync.Mutex
	toasts      []string
	warnings    []string
	transitions []core.Transition
}

func (n *recordingNotifier) ConnectionStatus(tr core.Transition) {
	n.mu.Lock()
	n.transitions = append(n.transitions, tr)
	n.mu.Unlock()
}

func (n *recordingNotifier) Toast(msg string) {
	n.mu.Lock()
	n.toasts = append(n.toasts, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) PermissionWarning(msg string) {
	n.mu.Lock()
	n.warnings = append(n.warnings, msg)
	n.mu.Unlock()
}

func (n *recordingNotifier) toastList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.toasts...)
}

func (n *recordingNotifier) warningList() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.warnings...)
}

type memNames struct{ name string }

func (m *memNames) LastName() string { return m.name }

func (m *memNames) SaveName(name string) error {
	m.name = name
	return nil
}

func identities(views []core.ParticipantView) []domain.Identity {
	out := make([]domain.Identity, 0, len(views))
	for _, v := range views {
		out = append(out, v.Ref.Identity)
	}
	return out
}
