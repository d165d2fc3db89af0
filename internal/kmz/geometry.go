package kmz

import (
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// Kind classifies a geometry. It is derived from the points, never set by hand.
type Kind string

const (
	KindPoint    Kind = "Point"
	KindPolyline Kind = "Polyline"
	KindPolygon  Kind = "Polygon"
)

// LatLng is a position in degrees, latitude first.
type LatLng struct {
	Lat float64 `json:"lat" yaml:"lat" doc:"Latitude in degrees" example:"-6.2088"`
	Lng float64 `json:"lng" yaml:"lng" doc:"Longitude in degrees" example:"106.8456"`
}

// Orb returns the position as an orb.Point, which is longitude first.
func (p LatLng) Orb() orb.Point {
	return orb.Point{p.Lng, p.Lat}
}

// Geometry is a classified placemark.
type Geometry struct {
	Kind        Kind     `json:"kind" yaml:"kind"`
	Points      []LatLng `json:"points" yaml:"points"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Index       int      `json:"index" yaml:"index"` // placemark position in the document
}

// Orb converts the geometry into the matching orb type.
func (g Geometry) Orb() orb.Geometry {
	switch g.Kind {
	case KindPoint:
		return g.Points[0].Orb()
	case KindPolygon:
		ring := make(orb.Ring, len(g.Points))
		for i, p := range g.Points {
			ring[i] = p.Orb()
		}
		return orb.Polygon{ring}
	default:
		ls := make(orb.LineString, len(g.Points))
		for i, p := range g.Points {
			ls[i] = p.Orb()
		}
		return ls
	}
}

// ParseCoordinates reads a KML coordinate string ("lng,lat[,alt] ...").
// Tokens that do not hold two finite numbers are skipped.
func ParseCoordinates(raw string) []LatLng {
	fields := strings.Fields(raw)
	points := make([]LatLng, 0, len(fields))
	for _, tok := range fields {
		parts := strings.Split(tok, ",")
		if len(parts) < 2 {
			continue
		}
		lng, err := parseFinite(parts[0])
		if err != nil {
			continue
		}
		lat, err := parseFinite(parts[1])
		if err != nil {
			continue
		}
		points = append(points, LatLng{Lat: lat, Lng: lng})
	}
	return points
}

func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrSyntax
	}
	return v, nil
}

// Classify derives the geometry kind from a non-empty point list.
func Classify(points []LatLng) Kind {
	switch {
	case len(points) == 1:
		return KindPoint
	case len(points) >= 3 && points[0] == points[len(points)-1]:
		return KindPolygon
	default:
		return KindPolyline
	}
}

// ToGeometry converts a placemark. ok is false when no coordinate survived parsing.
func ToGeometry(p Placemark) (g Geometry, ok bool) {
	points := ParseCoordinates(p.Coordinates)
	if len(points) == 0 {
		return Geometry{}, false
	}
	return Geometry{
		Kind:        Classify(points),
		Points:      points,
		Name:        p.Name,
		Description: p.Description,
		Index:       p.Index,
	}, true
}

// BoundingBox accumulates the extent of a set of positions.
// The zero value is empty and reports Valid() == false.
type BoundingBox struct {
	bound orb.Bound
	valid bool
}

// Extend grows the box to include p.
func (b *BoundingBox) Extend(p LatLng) {
	if !b.valid {
		b.bound = orb.Bound{Min: p.Orb(), Max: p.Orb()}
		b.valid = true
		return
	}
	b.bound = b.bound.Extend(p.Orb())
}

// Valid reports whether at least one position was added.
func (b BoundingBox) Valid() bool { return b.valid }

// Bound returns the box as an orb.Bound (x = longitude, y = latitude).
func (b BoundingBox) Bound() orb.Bound { return b.bound }

func (b BoundingBox) MinLat() float64 { return b.bound.Min.Lat() }
func (b BoundingBox) MaxLat() float64 { return b.bound.Max.Lat() }
func (b BoundingBox) MinLng() float64 { return b.bound.Min.Lon() }
func (b BoundingBox) MaxLng() float64 { return b.bound.Max.Lon() }

// Center returns the middle of the box.
func (b BoundingBox) Center() LatLng {
	c := b.bound.Center()
	return LatLng{Lat: c.Lat(), Lng: c.Lon()}
}
