// Package proximity decides which survey points a surveyor is standing at
// and tracks which of them have been completed.
//
// All distances are meters. Kilometers only appear at reporting boundaries
// through [Kilometers].
package proximity

import (
	"fmt"
	"math"
	"strings"

	"github.com/joeblew999/plat-survey/internal/kmz"
)

// EarthRadiusMeters is the mean Earth radius used by the haversine formula.
const EarthRadiusMeters = 6371000.0

// DefaultThresholdMeters is how close a surveyor must be to count as at a point.
const DefaultThresholdMeters = 100.0

// boundaryTolerance absorbs float noise so a point exactly on the threshold is nearby.
const boundaryTolerance = 1e-6

// DistanceMeters returns the great-circle distance between a and b.
func DistanceMeters(a, b kmz.LatLng) float64 {
	φ1 := a.Lat * math.Pi / 180
	φ2 := b.Lat * math.Pi / 180
	Δφ := (b.Lat - a.Lat) * math.Pi / 180
	Δλ := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(Δφ/2)*math.Sin(Δφ/2) +
		math.Cos(φ1)*math.Cos(φ2)*math.Sin(Δλ/2)*math.Sin(Δλ/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMeters * c
}

// Kilometers converts a distance for display.
func Kilometers(meters float64) float64 {
	return meters / 1000
}

// Mode selects how proximity is decided.
type Mode string

const (
	// ModeReal compares the live position against the threshold.
	ModeReal Mode = "real"
	// ModeAlwaysNearby treats every point as nearby, for demos and field tests
	// without a GPS fix.
	ModeAlwaysNearby Mode = "always-nearby"
)

// ParseMode validates a mode name. An empty string selects ModeReal.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeReal:
		return ModeReal, nil
	case ModeAlwaysNearby:
		return ModeAlwaysNearby, nil
	}
	return "", fmt.Errorf("unknown proximity mode %q (want %q or %q)", s, ModeReal, ModeAlwaysNearby)
}

// Proximity is the result of classifying a point.
type Proximity int

const (
	Far Proximity = iota
	Nearby
)

func (p Proximity) String() string {
	if p == Nearby {
		return "nearby"
	}
	return "far"
}

// Classifier decides whether a point is within reach of the current position.
type Classifier struct {
	ThresholdMeters float64
	Mode            Mode
}

// NewClassifier returns a classifier; threshold <= 0 selects DefaultThresholdMeters.
func NewClassifier(thresholdMeters float64, mode Mode) Classifier {
	if thresholdMeters <= 0 {
		thresholdMeters = DefaultThresholdMeters
	}
	if mode == "" {
		mode = ModeReal
	}
	return Classifier{ThresholdMeters: thresholdMeters, Mode: mode}
}

// Classify returns Nearby when current is within the threshold of point.
// A nil current position is Far unless the mode forces Nearby.
func (c Classifier) Classify(point kmz.LatLng, current *kmz.LatLng) Proximity {
	if c.Mode == ModeAlwaysNearby {
		return Nearby
	}
	if current == nil {
		return Far
	}
	threshold := c.ThresholdMeters
	if threshold <= 0 {
		threshold = DefaultThresholdMeters
	}
	if DistanceMeters(*current, point) <= threshold+boundaryTolerance {
		return Nearby
	}
	return Far
}
