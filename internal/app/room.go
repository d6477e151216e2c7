package app

import (
	"context"

	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
)

// ConnectionEvent is what the collaborator reports about its link.
type ConnectionEvent string

const (
	EventConnected    ConnectionEvent = "connected"
	EventReconnecting ConnectionEvent = "reconnecting"
	EventDisconnected ConnectionEvent = "disconnected"
	// EventLost ends a reconnect attempt that did not recover.
	EventLost ConnectionEvent = "lost"
)

// Events is the inbound callback surface. Implementations must not block.
type Events interface {
	OnConnectionStateChanged(ev ConnectionEvent)
	OnParticipantJoined(p domain.ParticipantRef)
	OnParticipantLeft(p domain.ParticipantRef)
	OnTrackSubscribed(p domain.ParticipantRef, kind domain.TrackKind, sid domain.TrackSID)
	OnTrackUnsubscribed(p domain.ParticipantRef, kind domain.TrackKind, sid domain.TrackSID)
	OnTrackMuted(p domain.ParticipantRef, kind domain.TrackKind, sid domain.TrackSID)
	OnTrackUnmuted(p domain.ParticipantRef, kind domain.TrackKind, sid domain.TrackSID)
	OnActiveSpeakersChanged(speakers []domain.ParticipantRef)
	OnConnectionQualityChanged(p domain.ParticipantRef, q domain.ConnectionQuality)
}

// Room is the real-time collaborator for one session.
type Room interface {
	// Connect returns the local participant once the server accepted us.
	Connect(ctx context.Context, url, token string, events Events) (domain.ParticipantRef, error)
	Disconnect(ctx context.Context) error

	SetMicrophoneEnabled(ctx context.Context, on bool) (domain.TrackSID, error)
	SetCameraEnabled(ctx context.Context, on bool) (domain.TrackSID, error)
	SetScreenShareEnabled(ctx context.Context, on bool) (domain.TrackSID, error)

	// Fallback roster accessors. Any of them may return nil, a slice or a map.
	Participants() any
	RemoteParticipants() any
	RawState() any
}

// AudioAnalyzer is optionally implemented by a Room able to meter remote audio.
type AudioAnalyzer interface {
	AnalyzeAudio(p domain.ParticipantRef, sid domain.TrackSID) (core.Releaser, error)
}

// SpeakingReporter is optionally implemented by a Room that can announce
// local voice activity.
type SpeakingReporter interface {
	SetSpeaking(ctx context.Context, on bool) error
}

// Grant is the token endpoint answer.
type Grant struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

type TokenSource interface {
	Fetch(ctx context.Context, room domain.RoomName, identity domain.Identity) (Grant, error)
}

// NameStore keeps the last used display name between runs.
type NameStore interface {
	LastName() string
	SaveName(name string) error
}
