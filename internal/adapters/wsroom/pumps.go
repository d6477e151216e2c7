package wsroom

import (
	"encoding/json"
	"time"

	"github.com/dkeye/roomview/internal/app"
	"github.com/dkeye/roomview/internal/domain"
	"github.com/dkeye/roomview/internal/proto"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (r *Room) writeLoop(l *link) {
	defer close(l.writerDone)
	ping := time.NewTicker(r.opts.PingEvery)
	defer ping.Stop()
	list := time.NewTicker(r.opts.ListEvery)
	defer list.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-l.bye:
			_ = l.write(encode(proto.Message{Type: proto.TypeLeave}))
			_ = l.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
				time.Now().Add(writeTimeout))
			return
		case <-ping.C:
			l.markPing()
			if err := l.write(encode(proto.Message{Type: proto.TypePing})); err != nil {
				log.Warn().Err(err).Str("module", "wsroom").Msg("ping write")
				l.shutdown()
				return
			}
		case <-list.C:
			if err := l.write(encode(proto.Message{Type: proto.TypeList})); err != nil {
				l.shutdown()
				return
			}
		case data := <-l.out:
			if err := l.write(data); err != nil {
				log.Warn().Err(err).Str("module", "wsroom").Msg("write")
				l.shutdown()
				return
			}
		}
	}
}

func (r *Room) readLoop(l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			l.shutdown()
			r.linkLost(l, err)
			return
		}
		var m proto.Message
		if err := json.Unmarshal(data, &m); err != nil {
			log.Warn().Err(err).Str("module", "wsroom").Msg("bad frame")
			continue
		}
		r.handle(l, m)
	}
}

func (r *Room) handle(l *link, m proto.Message) {
	switch m.Type {
	case proto.TypeParticipantJoined:
		if m.Participant == nil {
			return
		}
		p := *m.Participant
		r.mu.Lock()
		r.members[p.ID] = p
		r.mu.Unlock()
		r.emit(func(ev app.Events) { ev.OnParticipantJoined(p) })
	case proto.TypeParticipantLeft:
		if m.Participant == nil {
			return
		}
		p := *m.Participant
		r.mu.Lock()
		delete(r.members, p.ID)
		r.mu.Unlock()
		r.emit(func(ev app.Events) { ev.OnParticipantLeft(p) })
	case proto.TypeTrackSubscribed, proto.TypeTrackUnsubscribed, proto.TypeTrackMuted, proto.TypeTrackUnmuted:
		if m.Track != nil {
			r.dispatchTrack(m.Type, *m.Track)
		}
	case proto.TypeActiveSpeakers:
		speakers := m.Participants
		r.mu.Lock()
		for _, mt := range r.meters {
			mt.setActive(false)
		}
		for _, p := range speakers {
			if mt, ok := r.meters[p.Key()]; ok {
				mt.setActive(true)
			}
		}
		r.mu.Unlock()
		r.emit(func(ev app.Events) { ev.OnActiveSpeakersChanged(speakers) })
	case proto.TypeConnQuality:
		if m.Participant == nil {
			return
		}
		p, q := *m.Participant, domain.ParseQuality(m.Quality)
		r.emit(func(ev app.Events) { ev.OnConnectionQualityChanged(p, q) })
	case proto.TypeRoster:
		r.mu.Lock()
		members := make(map[domain.ParticipantID]domain.ParticipantRef, len(m.Participants))
		for _, p := range m.Participants {
			members[p.ID] = p
		}
		r.members = members
		r.mu.Unlock()
	case proto.TypePong:
		if rtt, ok := l.rtt(); ok {
			r.reportQuality(l, QualityFromRTT(rtt))
		}
	case proto.TypeError:
		log.Warn().Str("module", "wsroom").Str("error", m.Error).Msg("server error")
	default:
		log.Debug().Str("module", "wsroom").Str("type", m.Type).Msg("ignored frame")
	}
}

func (r *Room) dispatchTrack(typ string, t proto.Track) {
	p, kind, sid := t.Participant, t.Kind, t.SID
	r.emit(func(ev app.Events) {
		switch typ {
		case proto.TypeTrackSubscribed:
			ev.OnTrackSubscribed(p, kind, sid)
		case proto.TypeTrackUnsubscribed:
			ev.OnTrackUnsubscribed(p, kind, sid)
		case proto.TypeTrackMuted:
			ev.OnTrackMuted(p, kind, sid)
		case proto.TypeTrackUnmuted:
			ev.OnTrackUnmuted(p, kind, sid)
		}
	})
}

// QualityFromRTT grades a signal round trip.
func QualityFromRTT(rtt time.Duration) domain.ConnectionQuality {
	switch {
	case rtt < 150*time.Millisecond:
		return domain.QualityExcellent
	case rtt < 400*time.Millisecond:
		return domain.QualityGood
	}
	return domain.QualityPoor
}

func (r *Room) reportQuality(l *link, q domain.ConnectionQuality) {
	r.mu.Lock()
	changed := r.quality != q
	r.quality = q
	r.mu.Unlock()
	if changed {
		l.send(proto.Message{Type: proto.TypeQuality, Quality: string(q)})
	}
}
