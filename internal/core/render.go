package core

import (
	"sort"

	"github.com/dkeye/roomview/internal/domain"
)

// ParticipantView is a read-only copy of one participant for rendering.
type ParticipantView struct {
	Ref      domain.ParticipantRef    `json:"participant"`
	IsLocal  bool                     `json:"is_local"`
	Tracks   []TrackRecord            `json:"tracks"`
	Speaking bool                     `json:"speaking"`
	Quality  domain.ConnectionQuality `json:"quality"`
}

func (v ParticipantView) Track(kind domain.TrackKind) (TrackRecord, bool) {
	for _, t := range v.Tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return TrackRecord{}, false
}

// Presenting reports whether the kind is subscribed, unmuted and referenced.
func (v ParticipantView) Presenting(kind domain.TrackKind) bool {
	t, ok := v.Track(kind)
	return ok && t.Presentable()
}

// RosterSnapshot is built fresh per call and never mutated afterwards.
type RosterSnapshot struct {
	Local   *ParticipantView  `json:"local,omitempty"`
	Remotes []ParticipantView `json:"remotes"`
}

// Identities returns the remote identities in snapshot order.
func (s RosterSnapshot) Identities() []domain.Identity {
	out := make([]domain.Identity, 0, len(s.Remotes))
	for _, r := range s.Remotes {
		out = append(out, domain.Identity(r.Ref.Label()))
	}
	return out
}

// All lists the local participant first, then the remotes.
func (s RosterSnapshot) All() []ParticipantView {
	out := make([]ParticipantView, 0, len(s.Remotes)+1)
	if s.Local != nil {
		out = append(out, *s.Local)
	}
	return append(out, s.Remotes...)
}

// Renderer draws snapshots. Implementations must not keep references into
// core state; they only ever get copies.
type Renderer interface {
	Render(snap RosterSnapshot, layout LayoutState) error
	RenderIndicatorsOnly(snap RosterSnapshot) error
	RemoveAll() error
}

// Notifier carries non-blocking user-visible notices.
type Notifier interface {
	ConnectionStatus(tr Transition)
	Toast(msg string)
	PermissionWarning(msg string)
}

// ViewTracker remembers what the renderer last drew successfully, so drift
// between the roster and the screen can be detected.
type ViewTracker struct {
	remotes map[domain.Identity]bool
	local   bool
}

func NewViewTracker() *ViewTracker {
	return &ViewTracker{remotes: make(map[domain.Identity]bool)}
}

// Render forwards to r and records the drawn set on success only.
func (v *ViewTracker) Render(r Renderer, snap RosterSnapshot, layout LayoutState) error {
	if err := r.Render(snap, layout); err != nil {
		return err
	}
	v.remotes = make(map[domain.Identity]bool, len(snap.Remotes))
	for _, id := range snap.Identities() {
		v.remotes[id] = true
	}
	v.local = snap.Local != nil
	return nil
}

func (v *ViewTracker) RemoveAll(r Renderer) error {
	if err := r.RemoveAll(); err != nil {
		return err
	}
	v.Forget()
	return nil
}

func (v *ViewTracker) Forget() {
	v.remotes = make(map[domain.Identity]bool)
	v.local = false
}

func (v *ViewTracker) LocalRendered() bool { return v.local }

func (v *ViewTracker) Has(id domain.Identity) bool { return v.remotes[id] }

// Rendered lists the remote identities on screen, sorted.
func (v *ViewTracker) Rendered() []domain.Identity {
	out := make([]domain.Identity, 0, len(v.remotes))
	for id := range v.remotes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
