// Package render draws extracted survey geometry onto a map surface.
//
// A [Surface] is anything that can show markers, lines and areas: the
// GeoJSON [LayerSurface] shipped to browser maps, or the braille
// [TermSurface] used by the CLI preview. [Renderer.Render] always clears the
// surface before drawing, so rendering the same frame twice never leaves
// duplicate primitives behind.
package render

import (
	"context"
	"html/template"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/proximity"
)

// Surface receives drawing primitives.
type Surface interface {
	Clear()
	AddMarker(m Marker)
	AddPolyline(l Polyline)
	AddPolygon(p Polygon)
	FitBounds(b orb.Bound, paddingPx int)
}

// MarkerState is the visual state of a task point.
type MarkerState string

const (
	StateDone       MarkerState = "done"
	StateAtLocation MarkerState = "at-location"
	StateTask       MarkerState = "task"
)

// Style describes how a primitive is painted, in Leaflet path-option terms.
type Style struct {
	Color       string  `json:"color"`
	FillColor   string  `json:"fillColor,omitempty"`
	Weight      float64 `json:"weight,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	FillOpacity float64 `json:"fillOpacity,omitempty"`
	DashArray   string  `json:"dashArray,omitempty"`
	Radius      float64 `json:"radius,omitempty"`
}

// CompleteAction completes the point a marker belongs to. It is bound to the
// marker by whoever owns the completion state.
type CompleteAction func(ctx context.Context, confirm proximity.Confirmer) (proximity.Outcome, error)

// Marker is a task point.
type Marker struct {
	ID       string
	Name     string
	Position kmz.LatLng
	State    MarkerState
	Label    string
	Style    Style
	Popup    template.HTML

	// OnComplete is nil for points that are already done.
	OnComplete CompleteAction
}

// Polyline is a dashed line such as a cable run.
type Polyline struct {
	Name   string
	Points []kmz.LatLng
	Style  Style
	Popup  template.HTML
}

// Polygon is a translucent area with a dashed border.
type Polygon struct {
	Name   string
	Points []kmz.LatLng
	Style  Style
	Popup  template.HTML
}
