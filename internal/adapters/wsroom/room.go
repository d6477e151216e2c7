// Package wsroom is the client side of /api/ws/signal, shaped as an app.Room.
package wsroom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dkeye/roomview/internal/adapters/rtc"
	"github.com/dkeye/roomview/internal/app"
	"github.com/dkeye/roomview/internal/core"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/dkeye/roomview/internal/proto"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrRejected     = errors.New("signal server rejected join")
)

const (
	joinTimeout  = 10 * time.Second
	writeTimeout = 5 * time.Second
	sendBuffer   = 64
)

type Options struct {
	ReconnectAttempts int
	Backoff           time.Duration
	PingEvery         time.Duration
	ListEvery         time.Duration
	DeniedDevices     []domain.TrackKind
	Dialer            *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.ReconnectAttempts < 0 {
		o.ReconnectAttempts = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.PingEvery <= 0 {
		o.PingEvery = 5 * time.Second
	}
	if o.ListEvery <= 0 {
		o.ListEvery = 2 * time.Second
	}
	if o.Dialer == nil {
		o.Dialer = websocket.DefaultDialer
	}
	return o
}

type localTrack struct {
	sid   domain.TrackSID
	muted bool
}

// Room keeps one signal link alive and mirrors the server's member list.
type Room struct {
	opts Options

	mu       sync.Mutex
	link     *link
	events   app.Events
	endpoint string
	pub      *rtc.Publisher
	local    domain.ParticipantRef
	members  map[domain.ParticipantID]domain.ParticipantRef
	tracks   map[domain.TrackKind]*localTrack
	meters   map[domain.ParticipantKey]*meter
	quality  domain.ConnectionQuality
	leaving  bool
	closing  chan struct{}
}

func New(opts Options) *Room {
	return &Room{
		opts:    opts.withDefaults(),
		members: make(map[domain.ParticipantID]domain.ParticipantRef),
		tracks:  make(map[domain.TrackKind]*localTrack),
		meters:  make(map[domain.ParticipantKey]*meter),
		closing: make(chan struct{}),
	}
}

func signalURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("bad server url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Room) Connect(ctx context.Context, serverURL, token string, events app.Events) (domain.ParticipantRef, error) {
	endpoint, err := signalURL(serverURL, token)
	if err != nil {
		return domain.ParticipantRef{}, err
	}
	pub, err := rtc.NewPublisher(rtc.DefaultWebRTCConfig(), r.opts.DeniedDevices)
	if err != nil {
		return domain.ParticipantRef{}, err
	}
	l, joined, err := r.dial(ctx, endpoint)
	if err != nil {
		pub.Close()
		return domain.ParticipantRef{}, err
	}

	r.mu.Lock()
	r.events = events
	r.endpoint = endpoint
	r.pub = pub
	r.applyJoinedLocked(joined)
	r.link = l
	local := r.local
	r.mu.Unlock()

	log.Info().Str("module", "wsroom").Str("sid", string(local.ID)).Str("room", string(joined.Room)).Int("members", len(joined.Participants)).Msg("connected")
	r.start(l, joined.Tracks)
	return local, nil
}

// dial opens the socket and waits for the joined message.
func (r *Room) dial(ctx context.Context, endpoint string) (*link, proto.Message, error) {
	conn, resp, err := r.opts.Dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, proto.Message{}, fmt.Errorf("%w: %s", ErrRejected, resp.Status)
		}
		return nil, proto.Message{}, err
	}
	_ = conn.SetReadDeadline(time.Now().Add(joinTimeout))
	var first proto.Message
	if err := conn.ReadJSON(&first); err != nil {
		_ = conn.Close()
		return nil, proto.Message{}, err
	}
	_ = conn.SetReadDeadline(time.Time{})
	if first.Type != proto.TypeJoined || first.Self == nil {
		_ = conn.Close()
		if first.Type == proto.TypeError {
			return nil, proto.Message{}, fmt.Errorf("%w: %s", ErrRejected, first.Error)
		}
		return nil, proto.Message{}, fmt.Errorf("%w: unexpected %q", ErrRejected, first.Type)
	}
	return newLink(conn), first, nil
}

func (r *Room) applyJoinedLocked(joined proto.Message) {
	r.local = *joined.Self
	r.members = make(map[domain.ParticipantID]domain.ParticipantRef, len(joined.Participants))
	for _, p := range joined.Participants {
		r.members[p.ID] = p
	}
	r.members[r.local.ID] = r.local
}

// start runs the pumps and replays tracks that were already published.
func (r *Room) start(l *link, existing []proto.Track) {
	go r.writeLoop(l)
	go func() {
		for _, t := range existing {
			r.dispatchTrack(proto.TypeTrackSubscribed, t)
			if t.Muted {
				r.dispatchTrack(proto.TypeTrackMuted, t)
			}
		}
		r.readLoop(l)
	}()
}

func (r *Room) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	if r.leaving {
		r.mu.Unlock()
		return nil
	}
	r.leaving = true
	close(r.closing)
	l := r.link
	r.link = nil
	pub := r.pub
	for key, m := range r.meters {
		delete(r.meters, key)
		m.stop()
	}
	r.mu.Unlock()

	if pub != nil {
		pub.Close()
	}
	if l == nil {
		return nil
	}
	l.leave()
	select {
	case <-l.writerDone:
	case <-ctx.Done():
	case <-time.After(writeTimeout):
	}
	l.shutdown()
	log.Info().Str("module", "wsroom").Msg("disconnected")
	return nil
}

func (r *Room) SetMicrophoneEnabled(ctx context.Context, on bool) (domain.TrackSID, error) {
	return r.setDevice(domain.TrackAudio, on)
}

func (r *Room) SetCameraEnabled(ctx context.Context, on bool) (domain.TrackSID, error) {
	return r.setDevice(domain.TrackVideo, on)
}

func (r *Room) SetScreenShareEnabled(ctx context.Context, on bool) (domain.TrackSID, error) {
	return r.setDevice(domain.TrackScreenShare, on)
}

// setDevice publishes on first enable. Later toggles mute the published
// track, except screen share which is unpublished when switched off.
func (r *Room) setDevice(kind domain.TrackKind, on bool) (domain.TrackSID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link == nil || r.pub == nil {
		return "", ErrNotConnected
	}
	cur := r.tracks[kind]
	switch {
	case on && cur == nil:
		lt, err := r.pub.Publish(kind)
		if err != nil {
			return "", err
		}
		r.tracks[kind] = &localTrack{sid: lt.SID}
		r.link.send(proto.Message{Type: proto.TypePublish, Kind: kind, SID: lt.SID})
		return lt.SID, nil
	case on:
		if cur.muted {
			cur.muted = false
			r.link.send(proto.Message{Type: proto.TypeUnmute, SID: cur.sid})
		}
		return cur.sid, nil
	case cur == nil:
		return "", nil
	case kind == domain.TrackScreenShare:
		delete(r.tracks, kind)
		if err := r.pub.Unpublish(cur.sid); err != nil {
			log.Warn().Err(err).Str("module", "wsroom").Msg("unpublish local track")
		}
		r.link.send(proto.Message{Type: proto.TypeUnpublish, SID: cur.sid})
		return "", nil
	default:
		if !cur.muted {
			cur.muted = true
			r.link.send(proto.Message{Type: proto.TypeMute, SID: cur.sid})
		}
		return cur.sid, nil
	}
}

// SetSpeaking announces local voice activity.
func (r *Room) SetSpeaking(ctx context.Context, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.link == nil {
		return ErrNotConnected
	}
	r.link.send(proto.Message{Type: proto.TypeSpeaking, Active: on})
	return nil
}

// Participants is the server's member list keyed by sid, local included.
func (r *Room) Participants() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[domain.ParticipantID]domain.ParticipantRef, len(r.members))
	for id, p := range r.members {
		out[id] = p
	}
	return out
}

func (r *Room) RemoteParticipants() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.ParticipantRef, 0, len(r.members))
	for id, p := range r.members {
		if id == r.local.ID || p.Identity == r.local.Identity {
			continue
		}
		out = append(out, p)
	}
	return out
}

// RawState is the loosely typed view, as a generic decoder would see it.
func (r *Room) RawState() any {
	r.mu.Lock()
	defer r.mu.Unlock()
	parts := make([]any, 0, len(r.members))
	for _, p := range r.members {
		parts = append(parts, map[string]any{"sid": string(p.ID), "identity": string(p.Identity)})
	}
	return map[string]any{
		"local_sid":    string(r.local.ID),
		"participants": parts,
	}
}

func (r *Room) AnalyzeAudio(p domain.ParticipantRef, sid domain.TrackSID) (core.Releaser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.leaving {
		return nil, ErrNotConnected
	}
	m := newMeter(p, sid)
	key := p.Key()
	if old, ok := r.meters[key]; ok {
		old.stop()
	}
	r.meters[key] = m
	return releaseFunc(func() {
		r.mu.Lock()
		if r.meters[key] == m {
			delete(r.meters, key)
		}
		r.mu.Unlock()
		m.stop()
	}), nil
}

// Meters is the number of live audio meters.
func (r *Room) Meters() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.meters)
}

func (r *Room) emit(fn func(app.Events)) {
	r.mu.Lock()
	ev := r.events
	r.mu.Unlock()
	if ev != nil {
		fn(ev)
	}
}

func encode(m proto.Message) []byte {
	b, err := json.Marshal(m)
	if err != nil {
		log.Error().Err(err).Str("module", "wsroom").Msg("encode")
		return nil
	}
	return b
}
