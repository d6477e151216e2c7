package wsroom

import (
	"context"
	"time"

	"github.com/dkeye/roomview/internal/app"
	"github.com/dkeye/roomview/internal/proto"
	"github.com/rs/zerolog/log"
)

// linkLost starts a reconnect unless the room is leaving or l is stale.
func (r *Room) linkLost(l *link, err error) {
	r.mu.Lock()
	if r.leaving || r.link != l {
		r.mu.Unlock()
		return
	}
	r.link = nil
	r.mu.Unlock()

	log.Warn().Err(err).Str("module", "wsroom").Msg("signal link lost")
	r.emit(func(ev app.Events) { ev.OnConnectionStateChanged(app.EventReconnecting) })
	go r.reconnect()
}

func (r *Room) reconnect() {
	r.mu.Lock()
	endpoint := r.endpoint
	r.mu.Unlock()

	delay := r.opts.Backoff
	for attempt := 1; attempt <= r.opts.ReconnectAttempts; attempt++ {
		select {
		case <-r.closing:
			return
		case <-time.After(delay):
		}
		delay *= 2

		ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
		l, joined, err := r.dial(ctx, endpoint)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("module", "wsroom").Int("attempt", attempt).Msg("reconnect failed")
			continue
		}

		r.mu.Lock()
		if r.leaving {
			r.mu.Unlock()
			l.shutdown()
			return
		}
		r.applyJoinedLocked(joined)
		r.link = l
		r.quality = ""
		for kind, t := range r.tracks {
			l.send(proto.Message{Type: proto.TypePublish, Kind: kind, SID: t.sid})
			if t.muted {
				l.send(proto.Message{Type: proto.TypeMute, SID: t.sid})
			}
		}
		r.mu.Unlock()

		log.Info().Str("module", "wsroom").Int("attempt", attempt).Msg("reconnected")
		r.emit(func(ev app.Events) { ev.OnConnectionStateChanged(app.EventConnected) })
		r.start(l, joined.Tracks)
		return
	}

	log.Error().Str("module", "wsroom").Int("attempts", r.opts.ReconnectAttempts).Msg("giving up")
	r.emit(func(ev app.Events) { ev.OnConnectionStateChanged(app.EventLost) })
}
