// Package service contains business logic for the plat-survey platform.
package service

import (
	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/overlay"
	"github.com/joeblew999/plat-survey/internal/render"
)

// SourceFile represents a survey file in the source library.
type SourceFile struct {
	Name     string `json:"name" doc:"File name" example:"tiang-jakarta.kmz"`
	Size     string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	FileType string `json:"fileType" doc:"File type: KMZ or KML" example:"KMZ" enum:"KMZ,KML"`
}

// TaskView is a task overlay as returned by the API.
type TaskView struct {
	overlay.Snapshot
	Viewport *render.Viewport `json:"viewport,omitempty" doc:"Bounds the map should fit, with padding in pixels"`
	Bounds   *Bounds          `json:"bounds,omitempty" doc:"Bounding box of all geometry"`
}

// Bounds is a bounding box in degrees.
type Bounds struct {
	MinLat float64    `json:"minLat"`
	MinLng float64    `json:"minLng"`
	MaxLat float64    `json:"maxLat"`
	MaxLng float64    `json:"maxLng"`
	Center kmz.LatLng `json:"center"`
}

// BoundsOf returns the bounds of doc, or nil when it has none.
func BoundsOf(doc *kmz.Document) *Bounds {
	if doc == nil || !doc.Bounds.Valid() {
		return nil
	}
	b := doc.Bounds
	return &Bounds{
		MinLat: b.MinLat(), MinLng: b.MinLng(),
		MaxLat: b.MaxLat(), MaxLng: b.MaxLng(),
		Center: b.Center(),
	}
}
