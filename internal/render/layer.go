package render

import (
	"context"
	"errors"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/proximity"
)

// ErrUnknownMarker is returned by Trigger for ids that are not on the surface.
var ErrUnknownMarker = errors.New("render: no marker with that id")

// Viewport is the area a map should fit after a render.
type Viewport struct {
	Bound     orb.Bound `json:"bound"`
	PaddingPx int       `json:"paddingPx"`
}

// LayerSurface records primitives as GeoJSON features for a browser map.
// Marker completion actions stay on the server and run through Trigger.
// It is safe for concurrent use.
type LayerSurface struct {
	mu       sync.RWMutex
	features []*geojson.Feature
	actions  map[string]CompleteAction
	viewport *Viewport
	version  uint64
}

// NewLayerSurface returns an empty surface.
func NewLayerSurface() *LayerSurface {
	return &LayerSurface{actions: make(map[string]CompleteAction)}
}

func (s *LayerSurface) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = nil
	s.actions = make(map[string]CompleteAction)
	s.viewport = nil
	s.version++
}

func (s *LayerSurface) AddMarker(m Marker) {
	f := geojson.NewFeature(m.Position.Orb())
	f.ID = m.ID
	f.Properties["primitive"] = "marker"
	f.Properties["pointId"] = m.ID
	f.Properties["name"] = m.Name
	f.Properties["state"] = string(m.State)
	f.Properties["label"] = m.Label
	f.Properties["style"] = m.Style
	f.Properties["popup"] = string(m.Popup)
	f.Properties["completable"] = m.OnComplete != nil

	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = append(s.features, f)
	if m.OnComplete != nil {
		s.actions[m.ID] = m.OnComplete
	} else {
		delete(s.actions, m.ID)
	}
	s.version++
}

func (s *LayerSurface) AddPolyline(l Polyline) {
	s.add(lineString(l.Points), "polyline", l.Name, l.Style, string(l.Popup))
}

func (s *LayerSurface) AddPolygon(p Polygon) {
	s.add(orb.Polygon{orb.Ring(lineString(p.Points))}, "polygon", p.Name, p.Style, string(p.Popup))
}

func (s *LayerSurface) add(g orb.Geometry, primitive, name string, style Style, popup string) {
	f := geojson.NewFeature(g)
	f.Properties["primitive"] = primitive
	f.Properties["name"] = name
	f.Properties["style"] = style
	f.Properties["popup"] = popup

	s.mu.Lock()
	defer s.mu.Unlock()
	s.features = append(s.features, f)
	s.version++
}

func (s *LayerSurface) FitBounds(b orb.Bound, paddingPx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewport = &Viewport{Bound: b, PaddingPx: paddingPx}
	s.version++
}

// Len returns the number of primitives on the surface.
func (s *LayerSurface) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.features)
}

// Version increases on every change; clients use it to skip stale pushes.
func (s *LayerSurface) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// FeatureCollection returns a snapshot of the drawn primitives.
func (s *LayerSurface) FeatureCollection() *geojson.FeatureCollection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fc := geojson.NewFeatureCollection()
	fc.Features = append(fc.Features, s.features...)
	if s.viewport != nil {
		fc.BBox = geojson.NewBBox(s.viewport.Bound)
	}
	return fc
}

// Viewport returns the fitted viewport, if any.
func (s *LayerSurface) Viewport() (Viewport, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.viewport == nil {
		return Viewport{}, false
	}
	return *s.viewport, true
}

// Trigger runs the completion action bound to a marker, as a click on its
// popup button would. Markers without an action are already done.
func (s *LayerSurface) Trigger(ctx context.Context, id string, confirm proximity.Confirmer) (proximity.Outcome, error) {
	s.mu.RLock()
	action, bound := s.actions[id]
	known := bound
	if !known {
		for _, f := range s.features {
			if f.Properties["pointId"] == id {
				known = true
				break
			}
		}
	}
	s.mu.RUnlock()

	switch {
	case bound:
		return action(ctx, confirm)
	case known:
		return proximity.OutcomeAlreadyCompleted, nil
	}
	return "", ErrUnknownMarker
}

func lineString(points []kmz.LatLng) orb.LineString {
	ls := make(orb.LineString, len(points))
	for i, p := range points {
		ls[i] = p.Orb()
	}
	return ls
}
