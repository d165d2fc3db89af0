package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/service"
)

type ParseInput struct {
	Filename string `query:"filename" doc:"Original file name; the extension picks KMZ or KML, content is sniffed otherwise" example:"tiang-jakarta.kmz"`
	RawBody  []byte `contentType:"application/octet-stream"`
}

type ParseBody struct {
	Format    kmz.Format                 `json:"format" doc:"Detected input format" enum:"kmz,kml"`
	Source    string                     `json:"source" doc:"Markup entry the geometry came from" example:"doc.kml"`
	Points    int                        `json:"points" doc:"Number of point geometries"`
	Polylines int                        `json:"polylines" doc:"Number of polyline geometries"`
	Polygons  int                        `json:"polygons" doc:"Number of polygon geometries"`
	Dropped   int                        `json:"dropped" doc:"Placemarks without a usable coordinate"`
	Bounds    *service.Bounds            `json:"bounds,omitempty" doc:"Bounding box of all geometry"`
	Features  *geojson.FeatureCollection `json:"features" doc:"Geometry as a GeoJSON FeatureCollection"`
}

func (h *APIHandler) Parse(ctx context.Context, input *ParseInput) (*struct{ Body ParseBody }, error) {
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("empty body")
	}
	var opts []kmz.Option
	if h.svc != nil {
		opts = h.svc.ParseOptions
	}
	doc, err := kmz.Parse(ctx, input.RawBody, input.Filename, opts...)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body ParseBody }{Body: ParseBody{
		Format:    doc.Format,
		Source:    doc.Source,
		Points:    doc.Count(kmz.KindPoint),
		Polylines: doc.Count(kmz.KindPolyline),
		Polygons:  doc.Count(kmz.KindPolygon),
		Dropped:   doc.Dropped,
		Bounds:    service.BoundsOf(doc),
		Features:  doc.FeatureCollection(),
	}}, nil
}
