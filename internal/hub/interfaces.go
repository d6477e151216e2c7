// Package hub keeps server side room state for the signal endpoint.
package hub

import (
	"errors"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/dkeye/roomview/internal/proto"
)

// Frame is one encoded signal message.
type Frame []byte

var (
	ErrUnknownMember = errors.New("unknown member")
	ErrUnknownTrack  = errors.New("unknown track")
	ErrBadTrackKind  = errors.New("bad track kind")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// PublishResult reports delivery stats/backpressure to the hub.
type PublishResult struct {
	SendTo  int
	Dropped []domain.ParticipantID
}

type RoomInfo struct {
	Name        domain.RoomName `json:"name"`
	MemberCount int             `json:"client_count"`
}

// RoomService owns one room's membership and published tracks.
// It never closes transport resources.
type RoomService interface {
	Name() domain.RoomName
	MemberCount() int
	MembersSnapshot() []domain.ParticipantRef
	TracksSnapshot(except domain.ParticipantID) []proto.Track
	Speakers() []domain.ParticipantRef

	// AddMember returns the member it replaced when the identity rejoined.
	AddMember(ref domain.ParticipantRef, conn SignalConnection) (stale *domain.ParticipantRef)
	RemoveMember(sid domain.ParticipantID) (domain.ParticipantRef, bool)

	Publish(sid domain.ParticipantID, kind domain.TrackKind, track domain.TrackSID) (proto.Track, error)
	Unpublish(sid domain.ParticipantID, track domain.TrackSID) (proto.Track, error)
	SetMuted(sid domain.ParticipantID, track domain.TrackSID, muted bool) (proto.Track, bool, error)
	SetSpeaking(sid domain.ParticipantID, on bool) bool

	Broadcast(from domain.ParticipantID, data Frame) PublishResult
	SendTo(sid domain.ParticipantID, data Frame) error
}
