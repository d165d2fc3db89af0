package kmz

import (
	"context"
	"fmt"

	"github.com/paulmach/orb/geojson"
)

// Document is the geometry extracted from one survey file.
type Document struct {
	Source     string     // markup entry the geometry came from
	Format     Format     // container format of the input
	Geometries []Geometry // in placemark order
	Bounds     BoundingBox
	Placemarks int // placemarks seen, including dropped ones
	Dropped    int // placemarks without a usable coordinate
}

// Count returns the number of geometries of the given kind.
func (d *Document) Count(kind Kind) int {
	n := 0
	for _, g := range d.Geometries {
		if g.Kind == kind {
			n++
		}
	}
	return n
}

// Extract converts placemarks into geometries and accumulates the document bounds.
// It stops with ctx.Err() when ctx is cancelled between placemarks.
func Extract(ctx context.Context, placemarks []Placemark) (*Document, error) {
	doc := &Document{
		Geometries: make([]Geometry, 0, len(placemarks)),
		Placemarks: len(placemarks),
	}
	for _, p := range placemarks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		g, ok := ToGeometry(p)
		if !ok {
			doc.Dropped++
			continue
		}
		for _, pt := range g.Points {
			doc.Bounds.Extend(pt)
		}
		doc.Geometries = append(doc.Geometries, g)
	}
	return doc, nil
}

// Parse runs the full pipeline on a KMZ or KML buffer.
// A document without usable geometry fails with ErrNoGeometry.
func Parse(ctx context.Context, data []byte, filename string, opts ...Option) (*Document, error) {
	markup, err := ExtractMarkup(data, filename, opts...)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	placemarks, err := ParsePlacemarks(markup.Data)
	if err != nil {
		return nil, err
	}

	doc, err := Extract(ctx, placemarks)
	if err != nil {
		return nil, err
	}
	doc.Source = markup.Entry
	doc.Format = DetectFormat(data, filename)
	if len(doc.Geometries) == 0 {
		return nil, fmt.Errorf("%w (%d placemarks in %s)", ErrNoGeometry, len(placemarks), markup.Entry)
	}
	return doc, nil
}

// FeatureCollection exports the document as GeoJSON.
func (d *Document) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, g := range d.Geometries {
		f := geojson.NewFeature(g.Orb())
		f.Properties["name"] = g.Name
		f.Properties["kind"] = string(g.Kind)
		f.Properties["index"] = g.Index
		if g.Description != "" {
			f.Properties["description"] = g.Description
		}
		fc.Append(f)
	}
	if d.Bounds.Valid() {
		fc.BBox = geojson.NewBBox(d.Bounds.Bound())
	}
	return fc
}
