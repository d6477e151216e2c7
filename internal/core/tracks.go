package core

import (
	"sort"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

type TrackRecord struct {
	Kind       domain.TrackKind `json:"kind"`
	Subscribed bool             `json:"subscribed"`
	Muted      bool             `json:"muted"`
	Ref        domain.TrackSID  `json:"ref,omitempty"`
}

func (r TrackRecord) Presentable() bool {
	return r.Subscribed && !r.Muted && r.Ref != ""
}

// TrackPresenceTracker holds at most one record per kind per participant.
// Every mutator returns whether anything changed, so replays are no-ops.
type TrackPresenceTracker struct {
	records map[domain.ParticipantKey]map[domain.TrackKind]*TrackRecord
	owners  map[domain.ParticipantKey]domain.ParticipantRef
	onShare func(p domain.ParticipantRef, active bool)
}

func NewTrackPresenceTracker() *TrackPresenceTracker {
	return &TrackPresenceTracker{
		records: make(map[domain.ParticipantKey]map[domain.TrackKind]*TrackRecord),
		owners:  make(map[domain.ParticipantKey]domain.ParticipantRef),
	}
}

// OnScreenShareChange registers the listener told, synchronously, whenever a
// participant's screen share becomes presentable or stops being so.
func (t *TrackPresenceTracker) OnScreenShareChange(fn func(p domain.ParticipantRef, active bool)) {
	t.onShare = fn
}

func (t *TrackPresenceTracker) OnSubscribed(p domain.ParticipantRef, kind domain.TrackKind, ref domain.TrackSID) bool {
	return t.mutate(p, kind, func(rec *TrackRecord, exists bool) (*TrackRecord, bool) {
		if !exists {
			return &TrackRecord{Kind: kind, Subscribed: true, Ref: ref}, true
		}
		if rec.Subscribed && rec.Ref == ref {
			return rec, false
		}
		rec.Subscribed = true
		rec.Ref = ref
		return rec, true
	})
}

func (t *TrackPresenceTracker) OnUnsubscribed(p domain.ParticipantRef, kind domain.TrackKind) bool {
	return t.mutate(p, kind, func(rec *TrackRecord, exists bool) (*TrackRecord, bool) {
		if !exists {
			return nil, false
		}
		return nil, true
	})
}

// OnMuted may arrive before the subscription; the record is created muted.
func (t *TrackPresenceTracker) OnMuted(p domain.ParticipantRef, kind domain.TrackKind) bool {
	return t.mutate(p, kind, func(rec *TrackRecord, exists bool) (*TrackRecord, bool) {
		if !exists {
			return &TrackRecord{Kind: kind, Muted: true}, true
		}
		if rec.Muted {
			return rec, false
		}
		rec.Muted = true
		return rec, true
	})
}

func (t *TrackPresenceTracker) OnUnmuted(p domain.ParticipantRef, kind domain.TrackKind) bool {
	return t.mutate(p, kind, func(rec *TrackRecord, exists bool) (*TrackRecord, bool) {
		if !exists || !rec.Muted {
			return rec, false
		}
		rec.Muted = false
		return rec, true
	})
}

// RemoveParticipant drops every record for p.
func (t *TrackPresenceTracker) RemoveParticipant(p domain.ParticipantRef) bool {
	key := p.Key()
	kinds, ok := t.records[key]
	if !ok {
		return false
	}
	hadShare := presentable(kinds[domain.TrackScreenShare])
	owner := t.owners[key]
	delete(t.records, key)
	delete(t.owners, key)
	if hadShare {
		t.notify(owner, false)
	}
	return true
}

// Rekey moves old's records under updated. Records already held by updated
// win per kind. Share presence does not change, so nobody is notified.
func (t *TrackPresenceTracker) Rekey(old, updated domain.ParticipantRef) bool {
	from, to := old.Key(), updated.Key()
	kinds, ok := t.records[from]
	if !ok || from == to {
		return false
	}
	delete(t.records, from)
	delete(t.owners, from)
	dst := t.records[to]
	if dst == nil {
		dst = make(map[domain.TrackKind]*TrackRecord, len(kinds))
		t.records[to] = dst
	}
	for kind, rec := range kinds {
		if _, taken := dst[kind]; !taken {
			dst[kind] = rec
		}
	}
	t.owners[to] = updated
	log.Debug().Str("module", "core.tracks").Str("participant", updated.Label()).Str("sid", string(updated.ID)).Msg("records rekeyed")
	return true
}

// Clear drops everything without notifying.
func (t *TrackPresenceTracker) Clear() {
	t.records = make(map[domain.ParticipantKey]map[domain.TrackKind]*TrackRecord)
	t.owners = make(map[domain.ParticipantKey]domain.ParticipantRef)
}

func (t *TrackPresenceTracker) Record(p domain.ParticipantRef, kind domain.TrackKind) (TrackRecord, bool) {
	rec, ok := t.records[p.Key()][kind]
	if !ok {
		return TrackRecord{}, false
	}
	return *rec, true
}

// Records returns a copy of p's records ordered by kind.
func (t *TrackPresenceTracker) Records(p domain.ParticipantRef) []TrackRecord {
	kinds := t.records[p.Key()]
	out := make([]TrackRecord, 0, len(kinds))
	for _, rec := range kinds {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

func (t *TrackPresenceTracker) IsScreenPresentable(p domain.ParticipantRef) bool {
	return presentable(t.records[p.Key()][domain.TrackScreenShare])
}

func (t *TrackPresenceTracker) HasAnyScreenShare() bool {
	for _, kinds := range t.records {
		if presentable(kinds[domain.TrackScreenShare]) {
			return true
		}
	}
	return false
}

// ActiveScreenShares lists owners of presentable shares ordered by label.
func (t *TrackPresenceTracker) ActiveScreenShares() []domain.ParticipantRef {
	var out []domain.ParticipantRef
	for key, kinds := range t.records {
		if presentable(kinds[domain.TrackScreenShare]) {
			out = append(out, t.owners[key])
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Label() != out[j].Label() {
			return out[i].Label() < out[j].Label()
		}
		return out[i].Key() < out[j].Key()
	})
	return out
}

func (t *TrackPresenceTracker) mutate(
	p domain.ParticipantRef,
	kind domain.TrackKind,
	fn func(rec *TrackRecord, exists bool) (*TrackRecord, bool),
) bool {
	if p.IsZero() || !kind.Valid() {
		log.Warn().Str("module", "core.tracks").Str("participant", p.Label()).Str("kind", string(kind)).Msg("ignored track event")
		return false
	}
	key := p.Key()
	kinds := t.records[key]
	cur, exists := kinds[kind]
	before := presentable(cur)

	next, changed := fn(cur, exists)
	if !changed {
		return false
	}
	if next == nil {
		delete(kinds, kind)
		if len(kinds) == 0 {
			delete(t.records, key)
			delete(t.owners, key)
		}
	} else {
		if kinds == nil {
			kinds = make(map[domain.TrackKind]*TrackRecord)
			t.records[key] = kinds
		}
		kinds[kind] = next
		if owner, ok := t.owners[key]; !ok || owner.Identity == "" {
			t.owners[key] = p
		}
	}

	if kind == domain.TrackScreenShare {
		if after := presentable(next); after != before {
			t.notify(p, after)
		}
	}
	return true
}

func (t *TrackPresenceTracker) notify(p domain.ParticipantRef, active bool) {
	if t.onShare != nil {
		t.onShare(p, active)
	}
}

func presentable(rec *TrackRecord) bool {
	return rec != nil && rec.Presentable()
}
