// Package proto is the JSON envelope spoken over /api/ws/signal.
package proto

import "github.com/dkeye/roomview/internal/domain"

// server -> client
const (
	TypeJoined            = "joined"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeTrackSubscribed   = "track_subscribed"
	TypeTrackUnsubscribed = "track_unsubscribed"
	TypeTrackMuted        = "track_muted"
	TypeTrackUnmuted      = "track_unmuted"
	TypeActiveSpeakers    = "active_speakers"
	TypeConnQuality       = "connection_quality"
	TypeRoster            = "roster"
	TypePong              = "pong"
	TypeError             = "error"
)

// client -> server
const (
	TypePublish   = "publish"
	TypeUnpublish = "unpublish"
	TypeMute      = "mute"
	TypeUnmute    = "unmute"
	TypeSpeaking  = "speaking"
	TypeQuality   = "quality"
	TypeList      = "list"
	TypePing      = "ping"
	TypeLeave     = "leave"
)

type Track struct {
	Participant domain.ParticipantRef `json:"participant"`
	SID         domain.TrackSID       `json:"sid"`
	Kind        domain.TrackKind      `json:"kind"`
	Muted       bool                  `json:"muted,omitempty"`
}

// Message is the single envelope for both directions; only the fields the
// type needs are set.
type Message struct {
	Type         string                  `json:"type"`
	Room         domain.RoomName         `json:"room,omitempty"`
	Self         *domain.ParticipantRef  `json:"self,omitempty"`
	Participant  *domain.ParticipantRef  `json:"participant,omitempty"`
	Participants []domain.ParticipantRef `json:"participants,omitempty"`
	Track        *Track                  `json:"track,omitempty"`
	Tracks       []Track                 `json:"tracks,omitempty"`
	Kind         domain.TrackKind        `json:"kind,omitempty"`
	SID          domain.TrackSID         `json:"sid,omitempty"`
	Active       bool                    `json:"active,omitempty"`
	Quality      string                  `json:"quality,omitempty"`
	Error        string                  `json:"error,omitempty"`
}

func ErrorMessage(msg string) Message {
	return Message{Type: TypeError, Error: msg}
}
