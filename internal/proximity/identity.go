package proximity

import (
	"fmt"
	"sort"

	"github.com/joeblew999/plat-survey/internal/kmz"
)

// PointKey is the coordinate part of a point identity, fixed at six decimals
// (about 11 cm at the equator).
func PointKey(p kmz.LatLng) string {
	return fmt.Sprintf("%.6f,%.6f", p.Lat, p.Lng)
}

// AssignPointIDs returns the identity of every Point geometry, keyed by its
// index in geoms. The first point at a coordinate gets the bare PointKey;
// later points at the same coordinate get "#2", "#3", ... in document order.
func AssignPointIDs(geoms []kmz.Geometry) map[int]string {
	ids := make(map[int]string)
	seen := make(map[string]int)
	for i, g := range geoms {
		if g.Kind != kmz.KindPoint {
			continue
		}
		key := PointKey(g.Points[0])
		seen[key]++
		if n := seen[key]; n > 1 {
			key = fmt.Sprintf("%s#%d", key, n)
		}
		ids[i] = key
	}
	return ids
}

// CompletionSet is an immutable set of completed point identities.
// The zero value is empty.
type CompletionSet struct {
	ids map[string]struct{}
}

// NewCompletionSet builds a set from ids.
func NewCompletionSet(ids ...string) CompletionSet {
	m := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return CompletionSet{ids: m}
}

// Has reports whether id is completed.
func (s CompletionSet) Has(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of completed points.
func (s CompletionSet) Len() int { return len(s.ids) }

// With returns a copy of s that also contains id.
func (s CompletionSet) With(id string) CompletionSet {
	m := make(map[string]struct{}, len(s.ids)+1)
	for k := range s.ids {
		m[k] = struct{}{}
	}
	m[id] = struct{}{}
	return CompletionSet{ids: m}
}

// IDs returns the identities in sorted order.
func (s CompletionSet) IDs() []string {
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsCompleted reports whether id is in set.
func IsCompleted(id string, set CompletionSet) bool {
	return set.Has(id)
}
