// Package rtc owns the local media tracks a client publishes.
package rtc

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownTrack = errors.New("unknown local track")
	ErrClosed       = errors.New("publisher closed")
)

// ErrDeviceDenied carries the browser style error name so callers can
// classify it as a permission refusal.
type ErrDeviceDenied struct {
	Kind domain.TrackKind
}

func (e ErrDeviceDenied) Error() string {
	return fmt.Sprintf("NotAllowedError: permission denied for %s", e.Kind)
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}
}

// LocalTrack is one published capture source.
type LocalTrack struct {
	SID    domain.TrackSID
	Kind   domain.TrackKind
	track  *webrtc.TrackLocalStaticSample
	sender *webrtc.RTPSender
}

func (t *LocalTrack) MimeType() string { return t.track.Codec().MimeType }

func codecFor(kind domain.TrackKind) webrtc.RTPCodecCapability {
	if kind == domain.TrackAudio {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

func NewTrackSID() domain.TrackSID {
	return domain.TrackSID("TR_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}

// Publisher attaches local tracks to a peer connection. Kinds listed as
// denied fail the way a refused device prompt does.
type Publisher struct {
	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	denied map[domain.TrackKind]bool
	tracks map[domain.TrackSID]*LocalTrack
	closed bool
}

func NewPublisher(cfg webrtc.Configuration, denied []domain.TrackKind) (*Publisher, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "rtc").Str("peer_connection_state", s.String()).Msg("Peer state")
	})
	p := &Publisher{
		pc:     pc,
		denied: make(map[domain.TrackKind]bool),
		tracks: make(map[domain.TrackSID]*LocalTrack),
	}
	for _, k := range denied {
		p.denied[k] = true
	}
	return p, nil
}

func (p *Publisher) Publish(kind domain.TrackKind) (*LocalTrack, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("bad track kind %q", kind)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}
	if p.denied[kind] {
		return nil, ErrDeviceDenied{Kind: kind}
	}
	sid := NewTrackSID()
	track, err := webrtc.NewTrackLocalStaticSample(codecFor(kind), string(sid), "roomview-"+string(kind))
	if err != nil {
		return nil, err
	}
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	lt := &LocalTrack{SID: sid, Kind: kind, track: track, sender: sender}
	p.tracks[sid] = lt
	log.Info().Str("module", "rtc").Str("kind", string(kind)).Str("track", string(sid)).Str("codec", lt.MimeType()).Msg("local track added")
	return lt, nil
}

func (p *Publisher) Unpublish(sid domain.TrackSID) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	lt, ok := p.tracks[sid]
	if !ok {
		return ErrUnknownTrack
	}
	delete(p.tracks, sid)
	if p.closed {
		return nil
	}
	if err := p.pc.RemoveTrack(lt.sender); err != nil {
		return err
	}
	log.Info().Str("module", "rtc").Str("track", string(sid)).Msg("local track removed")
	return nil
}

// Tracks returns the live local tracks.
func (p *Publisher) Tracks() []*LocalTrack {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*LocalTrack, 0, len(p.tracks))
	for _, t := range p.tracks {
		out = append(out, t)
	}
	return out
}

func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	if err := p.pc.Close(); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("close error")
	}
}
