package app

import (
	"context"
	"errors"

	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

// MediaState is the local publishing state as last confirmed by the collaborator.
type MediaState struct {
	Microphone  bool `json:"microphone"`
	Camera      bool `json:"camera"`
	ScreenShare bool `json:"screen_share"`

	pending map[domain.TrackKind]bool
}

func newMediaState() MediaState {
	return MediaState{pending: make(map[domain.TrackKind]bool)}
}

func (m MediaState) Enabled(kind domain.TrackKind) bool {
	switch kind {
	case domain.TrackAudio:
		return m.Microphone
	case domain.TrackVideo:
		return m.Camera
	case domain.TrackScreenShare:
		return m.ScreenShare
	}
	return false
}

func (m *MediaState) set(kind domain.TrackKind, on bool) {
	switch kind {
	case domain.TrackAudio:
		m.Microphone = on
	case domain.TrackVideo:
		m.Camera = on
	case domain.TrackScreenShare:
		m.ScreenShare = on
	}
}

func deviceName(kind domain.TrackKind) string {
	switch kind {
	case domain.TrackAudio:
		return "microphone"
	case domain.TrackVideo:
		return "camera"
	}
	return "screen share"
}

// Media returns a copy of the local media flags.
func (s *Session) Media(ctx context.Context) (MediaState, error) {
	var m MediaState
	err := s.mbox.Do(ctx, func() {
		m = MediaState{Microphone: s.media.Microphone, Camera: s.media.Camera, ScreenShare: s.media.ScreenShare}
	})
	return m, err
}

func (s *Session) ToggleMicrophone(ctx context.Context) error {
	return s.toggleMedia(ctx, domain.TrackAudio)
}

func (s *Session) ToggleCamera(ctx context.Context) error {
	return s.toggleMedia(ctx, domain.TrackVideo)
}

func (s *Session) ToggleScreenShare(ctx context.Context) error {
	return s.toggleMedia(ctx, domain.TrackScreenShare)
}

// SetSpeaking tells the room whether the local user is talking. Rooms that
// cannot report it ignore the call.
func (s *Session) SetSpeaking(ctx context.Context, on bool) error {
	sr, ok := s.room.(SpeakingReporter)
	if !ok {
		return nil
	}
	var notConnected bool
	if err := s.do(ctx, func() {
		notConnected = s.conn.State() != core.StateConnected
	}); err != nil {
		return err
	}
	if notConnected {
		return core.ErrNotConnected
	}
	return sr.SetSpeaking(ctx, on)
}

func (s *Session) toggleMedia(ctx context.Context, kind domain.TrackKind) error {
	var (
		want bool
		skip bool
	)
	if err := s.do(ctx, func() {
		if s.media.pending[kind] {
			skip = true
			return
		}
		want = !s.media.Enabled(kind)
	}); err != nil {
		return err
	}
	if skip {
		return nil
	}
	return s.setMedia(ctx, kind, want)
}

// setMedia asks the collaborator for a device change. The call suspends
// outside the loop; the result is applied only if the session is still live.
func (s *Session) setMedia(ctx context.Context, kind domain.TrackKind, on bool) error {
	var notConnected bool
	if err := s.do(ctx, func() {
		if s.conn.State() != core.StateConnected {
			notConnected = true
			return
		}
		s.media.pending[kind] = true
	}); err != nil {
		return err
	}
	if notConnected {
		return core.ErrNotConnected
	}

	var (
		sid    domain.TrackSID
		devErr error
	)
	switch kind {
	case domain.TrackAudio:
		sid, devErr = s.room.SetMicrophoneEnabled(ctx, on)
	case domain.TrackVideo:
		sid, devErr = s.room.SetCameraEnabled(ctx, on)
	case domain.TrackScreenShare:
		sid, devErr = s.room.SetScreenShareEnabled(ctx, on)
	}

	var result error
	err := s.do(context.Background(), func() {
		delete(s.media.pending, kind)
		if devErr != nil {
			result = s.deviceFailure(kind, on, devErr)
			return
		}
		s.applyLocalTrack(kind, on, sid)
		s.renderFull()
	})
	if err != nil {
		if errors.Is(err, core.ErrSessionClosed) {
			log.Info().Str("module", "app.media").Str("device", deviceName(kind)).Msg("session ended while toggling")
		}
		return err
	}
	return result
}

func (s *Session) applyLocalTrack(kind domain.TrackKind, on bool, sid domain.TrackSID) {
	s.media.set(kind, on)
	local, ok := s.roster.Local()
	if !ok {
		return
	}
	switch {
	case on:
		s.tracks.OnSubscribed(local, kind, sid)
		s.tracks.OnUnmuted(local, kind)
	case sid != "":
		// switched off but still published
		s.tracks.OnMuted(local, kind)
	default:
		s.tracks.OnUnsubscribed(local, kind)
	}
	log.Info().Str("module", "app.media").Str("device", deviceName(kind)).Bool("on", on).Msg("local media")
}

// deviceFailure leaves the flags as they were, which is what the device
// actually is, and tells the user.
func (s *Session) deviceFailure(kind domain.TrackKind, on bool, err error) error {
	classified := core.ClassifyDeviceError(err)
	if kind == domain.TrackScreenShare && errors.Is(classified, core.ErrPermissionDenied) {
		// picking "cancel" in the share dialog
		log.Info().Str("module", "app.media").Msg("screen share cancelled")
		return nil
	}
	log.Warn().Err(err).Str("module", "app.media").Str("device", deviceName(kind)).Bool("on", on).Msg("device toggle failed")
	if errors.Is(classified, core.ErrPermissionDenied) {
		if s.notifier != nil {
			s.notifier.PermissionWarning(msgPermissionBanner)
		}
		s.toast("Permission denied for " + deviceName(kind))
		return classified
	}
	s.toast("Failed to toggle " + deviceName(kind))
	return classified
}
