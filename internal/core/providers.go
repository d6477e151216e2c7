package core

import (
	"fmt"
	"sort"

	"github.com/dkeye/roomview/internal/domain"
)

// RosterProvider is one fallback membership source. Definitive marks a
// source whose empty answer can be trusted.
type RosterProvider interface {
	Name() string
	Discover() (refs []domain.ParticipantRef, definitive bool, err error)
}

// RefSource is implemented by collaborator participant objects that can
// describe themselves.
type RefSource interface {
	ParticipantRef() domain.ParticipantRef
}

type funcProvider struct {
	name       string
	definitive bool
	fetch      func() any
}

// NewProvider adapts an accessor of unknown shape into a RosterProvider.
func NewProvider(name string, definitive bool, fetch func() any) RosterProvider {
	return &funcProvider{name: name, definitive: definitive, fetch: fetch}
}

func (p *funcProvider) Name() string { return p.name }

func (p *funcProvider) Discover() ([]domain.ParticipantRef, bool, error) {
	refs, err := NormalizeRefs(p.fetch())
	if err != nil {
		return nil, false, fmt.Errorf("%s: %w", p.name, err)
	}
	return refs, p.definitive, nil
}

// NormalizeRefs turns whatever a discovery accessor hands back into a flat,
// ordered ref list. Accepted: nil, ref slices, maps keyed by sid, []any and
// map[string]any of ref-like values. A map carrying a "participants" key is
// treated as a state dump and unwrapped. Entries that cannot be read are
// skipped; if nothing could be read from a non-empty input the result is
// ErrDiscoveryInconsistent.
func NormalizeRefs(v any) ([]domain.ParticipantRef, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []domain.ParticipantRef:
		return keepValid(t), nil
	case map[domain.ParticipantID]domain.ParticipantRef:
		out := make([]domain.ParticipantRef, 0, len(t))
		for _, k := range sortedKeys(t) {
			ref := t[k]
			if ref.ID == "" {
				ref.ID = k
			}
			out = append(out, ref)
		}
		return keepValid(out), nil
	case map[string]domain.ParticipantRef:
		conv := make(map[domain.ParticipantID]domain.ParticipantRef, len(t))
		for k, ref := range t {
			conv[domain.ParticipantID(k)] = ref
		}
		return NormalizeRefs(conv)
	case []RefSource:
		out := make([]domain.ParticipantRef, 0, len(t))
		for _, s := range t {
			if s != nil {
				out = append(out, s.ParticipantRef())
			}
		}
		return keepValid(out), nil
	case []any:
		out := make([]domain.ParticipantRef, 0, len(t))
		for _, e := range t {
			if ref, ok := refOf(e, ""); ok {
				out = append(out, ref)
			}
		}
		return checkRead(len(t), out)
	case map[string]any:
		if inner, ok := t["participants"]; ok {
			return NormalizeRefs(inner)
		}
		out := make([]domain.ParticipantRef, 0, len(t))
		for _, k := range sortedKeys(t) {
			if ref, ok := refOf(t[k], domain.ParticipantID(k)); ok {
				out = append(out, ref)
			}
		}
		return checkRead(len(t), out)
	}
	return nil, fmt.Errorf("%w: unsupported shape %T", ErrDiscoveryInconsistent, v)
}

func refOf(v any, key domain.ParticipantID) (domain.ParticipantRef, bool) {
	var ref domain.ParticipantRef
	switch e := v.(type) {
	case domain.ParticipantRef:
		ref = e
	case *domain.ParticipantRef:
		if e == nil {
			return ref, false
		}
		ref = *e
	case RefSource:
		ref = e.ParticipantRef()
	case map[string]any:
		ref.ID = domain.ParticipantID(firstString(e, "sid", "id"))
		ref.Identity = domain.Identity(firstString(e, "identity", "name"))
	case string:
		ref.Identity = domain.Identity(e)
	default:
		return ref, false
	}
	if ref.ID == "" {
		ref.ID = key
	}
	return ref, !ref.IsZero()
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func checkRead(in int, out []domain.ParticipantRef) ([]domain.ParticipantRef, error) {
	if in > 0 && len(out) == 0 {
		return nil, fmt.Errorf("%w: %d unreadable entries", ErrDiscoveryInconsistent, in)
	}
	return out, nil
}

func keepValid(in []domain.ParticipantRef) []domain.ParticipantRef {
	out := in[:0:0]
	for _, r := range in {
		if !r.IsZero() {
			out = append(out, r)
		}
	}
	return out
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
