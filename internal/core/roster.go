package core

import (
	"sort"

	"github.com/dkeye/roomview/internal/domain"
	"github.com/rs/zerolog/log"
)

// Admission records how a remote got into the store. Discovery-admitted
// entries may be dropped by a later rebuild; live ones only by a leave.
type Admission int

const (
	AdmittedByDiscovery Admission = iota
	AdmittedLive
)

type rosterEntry struct {
	ref       domain.ParticipantRef
	admission Admission
	speaking  bool
	quality   domain.ConnectionQuality
}

// RebuildResult describes one pass over the fallback providers.
type RebuildResult struct {
	Source  string
	Found   int
	Added   int
	Removed int
}

// RosterStore is the de-duplicated remote roster plus the local participant.
// Not safe for concurrent use.
type RosterStore struct {
	local     *rosterEntry
	remotes   map[domain.ParticipantKey]*rosterEntry
	providers []RosterProvider
	onRemove  func(domain.ParticipantRef)
	onRekey   func(old, updated domain.ParticipantRef)
}

// NewRosterStore queries providers in the given order on Rebuild.
func NewRosterStore(providers ...RosterProvider) *RosterStore {
	return &RosterStore{
		remotes:   make(map[domain.ParticipantKey]*rosterEntry),
		providers: providers,
	}
}

// OnRemove is called once for every remote leaving the store.
func (s *RosterStore) OnRemove(fn func(domain.ParticipantRef)) { s.onRemove = fn }

// OnRekey is called when an identity-only remote learns its sid. State kept
// under the old key must follow it.
func (s *RosterStore) OnRekey(fn func(old, updated domain.ParticipantRef)) { s.onRekey = fn }

func (s *RosterStore) SetLocal(ref domain.ParticipantRef) {
	s.local = &rosterEntry{ref: ref, admission: AdmittedLive, quality: domain.QualityUnknown}
	// the local participant may have been discovered as a remote before we knew it
	for key, e := range s.remotes {
		if s.isLocal(e.ref) {
			delete(s.remotes, key)
			s.fireRemove(e.ref)
		}
	}
}

func (s *RosterStore) Local() (domain.ParticipantRef, bool) {
	if s.local == nil {
		return domain.ParticipantRef{}, false
	}
	return s.local.ref, true
}

func (s *RosterStore) Len() int { return len(s.remotes) }

// IsLocal reports whether ref names the local participant by id or identity.
func (s *RosterStore) IsLocal(ref domain.ParticipantRef) bool { return s.isLocal(ref) }

func (s *RosterStore) isLocal(ref domain.ParticipantRef) bool {
	if s.local == nil {
		return false
	}
	l := s.local.ref
	if ref.ID != "" && ref.ID == l.ID {
		return true
	}
	return ref.Identity != "" && ref.Identity == l.Identity
}

// AddOrUpdate upserts a remote. Returns true when the store changed.
func (s *RosterStore) AddOrUpdate(ref domain.ParticipantRef, how Admission) bool {
	if ref.IsZero() || s.isLocal(ref) {
		return false
	}
	if ref.ID != "" {
		if e, ok := s.remotes[ref.Key()]; ok {
			changed := false
			if ref.Identity != "" && e.ref.Identity != ref.Identity {
				e.ref.Identity = ref.Identity
				changed = true
			}
			if how == AdmittedLive && e.admission != AdmittedLive {
				e.admission = AdmittedLive
			}
			return changed
		}
		// identity is unique per session: an identity-only entry gets upgraded,
		// an entry under an older sid is stale
		var upgraded *rosterEntry
		if key, old, ok := s.byIdentity(ref.Identity); ok {
			delete(s.remotes, key)
			if old.ref.ID != "" {
				s.fireRemove(old.ref)
			} else {
				upgraded = old
			}
			if old.admission == AdmittedLive {
				how = AdmittedLive
			}
		}
		entry := &rosterEntry{ref: ref, admission: how, quality: domain.QualityUnknown}
		if upgraded != nil {
			entry.speaking = upgraded.speaking
			entry.quality = upgraded.quality
		}
		s.remotes[ref.Key()] = entry
		if upgraded != nil && s.onRekey != nil {
			s.onRekey(upgraded.ref, ref)
		}
		log.Debug().Str("module", "core.roster").Str("sid", string(ref.ID)).Str("identity", string(ref.Identity)).Msg("participant added")
		return true
	}
	if _, e, ok := s.byIdentity(ref.Identity); ok {
		if how == AdmittedLive {
			e.admission = AdmittedLive
		}
		return false
	}
	s.remotes[ref.Key()] = &rosterEntry{ref: ref, admission: how, quality: domain.QualityUnknown}
	log.Debug().Str("module", "core.roster").Str("identity", string(ref.Identity)).Msg("participant added without sid")
	return true
}

// Remove deletes by sid and signals removal only if it was present.
func (s *RosterStore) Remove(id domain.ParticipantID) bool {
	if id == "" {
		return false
	}
	key := domain.ParticipantRef{ID: id}.Key()
	e, ok := s.remotes[key]
	if !ok {
		return false
	}
	delete(s.remotes, key)
	s.fireRemove(e.ref)
	log.Debug().Str("module", "core.roster").Str("sid", string(id)).Msg("participant removed")
	return true
}

// RemoveRef deletes by sid, falling back to identity for refs without one.
func (s *RosterStore) RemoveRef(ref domain.ParticipantRef) bool {
	if s.Remove(ref.ID) {
		return true
	}
	key, e, ok := s.byIdentity(ref.Identity)
	if !ok {
		return false
	}
	if ref.ID != "" && e.ref.ID != "" && e.ref.ID != ref.ID {
		return false
	}
	delete(s.remotes, key)
	s.fireRemove(e.ref)
	return true
}

// Resolve maps a possibly partial ref onto the stored one.
func (s *RosterStore) Resolve(ref domain.ParticipantRef) (domain.ParticipantRef, bool) {
	if s.local != nil && s.isLocal(ref) {
		return s.local.ref, true
	}
	if ref.ID != "" {
		if e, ok := s.remotes[ref.Key()]; ok {
			return e.ref, true
		}
	}
	if _, e, ok := s.byIdentity(ref.Identity); ok {
		return e.ref, true
	}
	return domain.ParticipantRef{}, false
}

// Missing reports whether any of the given identities is neither local nor stored.
func (s *RosterStore) Missing(identities []domain.Identity) bool {
	for _, id := range identities {
		if s.local != nil && s.local.ref.Identity == id {
			continue
		}
		if _, _, ok := s.byIdentity(id); !ok {
			return true
		}
	}
	return false
}

// Discover runs the providers without touching the store. Provider order is a
// heuristic: a populated loose source wins over an empty definitive one.
func (s *RosterStore) Discover(evidence bool) ([]domain.ParticipantRef, string) {
	for _, p := range s.providers {
		refs, definitive, err := p.Discover()
		if err != nil {
			log.Warn().Err(err).Str("module", "core.roster").Str("provider", p.Name()).Msg("discovery source skipped")
			continue
		}
		remote := s.filterRemote(refs)
		if len(remote) > 0 {
			return remote, p.Name()
		}
		if definitive && !evidence {
			return nil, p.Name()
		}
	}
	return nil, ""
}

// Rebuild merges the first non-empty discovery result into the store.
// Evidence means a rendered remote tile is unmatched, which keeps the search
// going past a definitive empty answer. An empty result never removes.
func (s *RosterStore) Rebuild(evidence bool) RebuildResult {
	refs, source := s.Discover(evidence)
	res := RebuildResult{Source: source, Found: len(refs)}
	if len(refs) == 0 {
		return res
	}
	ids := make(map[domain.ParticipantID]bool, len(refs))
	names := make(map[domain.Identity]bool, len(refs))
	for _, r := range refs {
		if r.ID != "" {
			ids[r.ID] = true
		}
		if r.Identity != "" {
			names[r.Identity] = true
		}
		if s.AddOrUpdate(r, AdmittedByDiscovery) {
			res.Added++
		}
	}
	for key, e := range s.remotes {
		if e.admission != AdmittedByDiscovery {
			continue
		}
		if (e.ref.ID != "" && ids[e.ref.ID]) || (e.ref.Identity != "" && names[e.ref.Identity]) {
			continue
		}
		delete(s.remotes, key)
		s.fireRemove(e.ref)
		res.Removed++
	}
	log.Debug().Str("module", "core.roster").Str("source", source).Int("found", res.Found).Int("added", res.Added).Int("removed", res.Removed).Msg("rebuild")
	return res
}

// SetSpeakers replaces the active speaker set. Returns true on change.
func (s *RosterStore) SetSpeakers(refs []domain.ParticipantRef) bool {
	active := make(map[domain.ParticipantKey]bool, len(refs))
	localActive := false
	for _, r := range refs {
		if s.isLocal(r) {
			localActive = true
			continue
		}
		if stored, ok := s.Resolve(r); ok {
			active[stored.Key()] = true
		}
	}
	changed := false
	if s.local != nil && s.local.speaking != localActive {
		s.local.speaking = localActive
		changed = true
	}
	for key, e := range s.remotes {
		if e.speaking != active[key] {
			e.speaking = active[key]
			changed = true
		}
	}
	return changed
}

func (s *RosterStore) SetQuality(ref domain.ParticipantRef, q domain.ConnectionQuality) bool {
	e := s.entry(ref)
	if e == nil || e.quality == q {
		return false
	}
	e.quality = q
	return true
}

// Clear drops the remotes, signalling each, and forgets the local participant.
func (s *RosterStore) Clear() {
	for key, e := range s.remotes {
		delete(s.remotes, key)
		s.fireRemove(e.ref)
	}
	s.local = nil
}

// Snapshot builds a fresh, sorted view. tracks may be nil.
func (s *RosterStore) Snapshot(tracks *TrackPresenceTracker) RosterSnapshot {
	snap := RosterSnapshot{Remotes: make([]ParticipantView, 0, len(s.remotes))}
	if s.local != nil {
		v := s.view(s.local, tracks)
		v.IsLocal = true
		snap.Local = &v
	}
	for _, e := range s.remotes {
		snap.Remotes = append(snap.Remotes, s.view(e, tracks))
	}
	sort.Slice(snap.Remotes, func(i, j int) bool {
		a, b := snap.Remotes[i].Ref, snap.Remotes[j].Ref
		if a.Label() != b.Label() {
			return a.Label() < b.Label()
		}
		return a.Key() < b.Key()
	})
	return snap
}

func (s *RosterStore) view(e *rosterEntry, tracks *TrackPresenceTracker) ParticipantView {
	v := ParticipantView{Ref: e.ref, Speaking: e.speaking, Quality: e.quality}
	if tracks != nil {
		v.Tracks = tracks.Records(e.ref)
	}
	return v
}

func (s *RosterStore) entry(ref domain.ParticipantRef) *rosterEntry {
	if s.isLocal(ref) {
		return s.local
	}
	if ref.ID != "" {
		if e, ok := s.remotes[ref.Key()]; ok {
			return e
		}
	}
	if _, e, ok := s.byIdentity(ref.Identity); ok {
		return e
	}
	return nil
}

func (s *RosterStore) byIdentity(id domain.Identity) (domain.ParticipantKey, *rosterEntry, bool) {
	if id == "" {
		return "", nil, false
	}
	for key, e := range s.remotes {
		if e.ref.Identity == id {
			return key, e, true
		}
	}
	return "", nil, false
}

func (s *RosterStore) filterRemote(refs []domain.ParticipantRef) []domain.ParticipantRef {
	out := make([]domain.ParticipantRef, 0, len(refs))
	seen := make(map[domain.ParticipantKey]bool, len(refs))
	for _, r := range refs {
		if r.IsZero() || s.isLocal(r) || seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		out = append(out, r)
	}
	return out
}

func (s *RosterStore) fireRemove(ref domain.ParticipantRef) {
	if s.onRemove == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "core.roster").Interface("panic", r).Msg("remove callback")
		}
	}()
	s.onRemove(ref)
}
