package core

import (
	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

type LayoutMode string

const (
	ModeGrid  LayoutMode = "grid"
	ModeFocus LayoutMode = "focus"
)

// LayoutState is what the renderer sees. Focused is set only in focus mode.
type LayoutState struct {
	Mode           LayoutMode             `json:"mode"`
	Focused        *domain.ParticipantRef `json:"focused,omitempty"`
	FocusAvailable bool                   `json:"focus_available"`
}

// LayoutChange tells the caller what an enforcement pass did.
type LayoutChange int

const (
	LayoutUnchanged LayoutChange = iota
	LayoutEnteredFocus
	LayoutRevertedToGrid
)

// ScreenShares is the view of the track tracker the layout needs.
type ScreenShares interface {
	ActiveScreenShares() []domain.ParticipantRef
	IsScreenPresentable(p domain.ParticipantRef) bool
}

type LayoutController struct {
	shares    ScreenShares
	autoFocus bool

	mode      LayoutMode
	focused   *domain.ParticipantRef
	candidate *domain.ParticipantRef
	// shares the user explicitly left focus on; cleared when the share ends
	gridPref map[domain.ParticipantKey]bool
}

// NewLayoutController starts in grid. With autoFocus a lone share is
// focused without a toggle.
func NewLayoutController(shares ScreenShares, autoFocus bool) *LayoutController {
	return &LayoutController{
		shares:    shares,
		autoFocus: autoFocus,
		mode:      ModeGrid,
		gridPref:  make(map[domain.ParticipantKey]bool),
	}
}

func (l *LayoutController) State() LayoutState {
	st := LayoutState{Mode: l.mode, FocusAvailable: len(l.shares.ActiveScreenShares()) > 0}
	if l.mode == ModeFocus && l.focused != nil {
		f := *l.focused
		st.Focused = &f
	}
	return st
}

// Candidate is the share a toggle into focus would pick first.
func (l *LayoutController) Candidate() (domain.ParticipantRef, bool) {
	if l.candidate == nil {
		return domain.ParticipantRef{}, false
	}
	return *l.candidate, true
}

func (l *LayoutController) OnScreenShareActivated(p domain.ParticipantRef) LayoutChange {
	if (l.candidate == nil || !l.shares.IsScreenPresentable(*l.candidate)) && !l.gridPref[p.Key()] {
		c := p
		l.candidate = &c
	}
	return l.AutoEnterFocusIfExclusive()
}

func (l *LayoutController) OnScreenShareDeactivated(p domain.ParticipantRef) LayoutChange {
	delete(l.gridPref, p.Key())
	if l.candidate != nil && l.candidate.Key() == p.Key() {
		l.candidate = nil
	}
	return l.AutoEnterFocusIfExclusive()
}

// AutoEnterFocusIfExclusive repairs the focus invariant and applies the
// auto-focus policy when enabled.
func (l *LayoutController) AutoEnterFocusIfExclusive() LayoutChange {
	if l.mode == ModeFocus && (l.focused == nil || !l.shares.IsScreenPresentable(*l.focused)) {
		prev := "none"
		if l.focused != nil {
			prev = l.focused.Label()
		}
		l.mode = ModeGrid
		l.focused = nil
		log.Info().Str("module", "core.layout").Str("focused", prev).Msg("focused share gone, back to grid")
		return LayoutRevertedToGrid
	}
	if !l.autoFocus || l.mode != ModeGrid {
		return LayoutUnchanged
	}
	shares := l.shares.ActiveScreenShares()
	if len(shares) != 1 || l.gridPref[shares[0].Key()] {
		return LayoutUnchanged
	}
	l.enterFocus(shares[0])
	return LayoutEnteredFocus
}

// Toggle flips grid and focus. Without any presentable share it fails with
// ErrFocusUnavailable and changes nothing.
func (l *LayoutController) Toggle() (LayoutState, error) {
	shares := l.shares.ActiveScreenShares()
	if len(shares) == 0 {
		return l.State(), ErrFocusUnavailable
	}
	if l.mode == ModeGrid {
		target := shares[0]
		if l.candidate != nil && l.shares.IsScreenPresentable(*l.candidate) {
			target = *l.candidate
		}
		l.enterFocus(target)
		return l.State(), nil
	}
	if l.focused != nil {
		l.gridPref[l.focused.Key()] = true
	}
	l.mode = ModeGrid
	l.focused = nil
	log.Info().Str("module", "core.layout").Msg("grid")
	return l.State(), nil
}

// FocusOn focuses a specific share.
func (l *LayoutController) FocusOn(p domain.ParticipantRef) (LayoutState, error) {
	if !l.shares.IsScreenPresentable(p) {
		return l.State(), ErrFocusUnavailable
	}
	l.enterFocus(p)
	return l.State(), nil
}

// Rekey follows a participant whose ref gained a sid.
func (l *LayoutController) Rekey(old, updated domain.ParticipantRef) {
	from := old.Key()
	if l.focused != nil && l.focused.Key() == from {
		f := updated
		l.focused = &f
	}
	if l.candidate != nil && l.candidate.Key() == from {
		c := updated
		l.candidate = &c
	}
	if l.gridPref[from] {
		delete(l.gridPref, from)
		l.gridPref[updated.Key()] = true
	}
}

func (l *LayoutController) Reset() {
	l.mode = ModeGrid
	l.focused = nil
	l.candidate = nil
	l.gridPref = make(map[domain.ParticipantKey]bool)
}

func (l *LayoutController) enterFocus(p domain.ParticipantRef) {
	f := p
	l.mode = ModeFocus
	l.focused = &f
	l.candidate = &f
	delete(l.gridPref, p.Key())
	log.Info().Str("module", "core.layout").Str("focused", p.Label()).Msg("focus")
}
