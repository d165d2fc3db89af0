package overlay

import (
	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/render"
)

// Snapshot is a copy of the overlay state.
type Snapshot struct {
	TaskID    string       `json:"taskId"`
	State     State        `json:"state"`
	Error     string       `json:"error,omitempty"`
	ErrorKind string       `json:"errorKind,omitempty"`
	Source    string       `json:"source,omitempty"`
	Position  *kmz.LatLng  `json:"position,omitempty"`
	Completed []string     `json:"completed"`
	Stats     render.Stats `json:"stats"`

	err error
}

// Err returns the load error behind a failed snapshot.
func (s Snapshot) Err() error { return s.err }

// Snapshot returns the current state.
func (o *Overlay) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Overlay) snapshotLocked() Snapshot {
	s := Snapshot{
		TaskID:    o.cfg.TaskID,
		State:     o.state,
		Source:    o.source,
		Completed: o.completed.IDs(),
		Stats:     o.stats,
		err:       o.err,
	}
	if o.position != nil {
		p := *o.position
		s.Position = &p
	}
	if o.err != nil {
		s.Error = o.err.Error()
		s.ErrorKind = resultOf(o.err)
	}
	return s
}

// Point is a task point with its state relative to the current position.
type Point struct {
	ID             string             `json:"id" doc:"Point identity (lat,lng at six decimals, #n for duplicates)" example:"-6.208800,106.845600"`
	Name           string             `json:"name" doc:"Placemark name" example:"Tiang A"`
	Description    string             `json:"description,omitempty" doc:"Sanitized description as plain text"`
	Lat            float64            `json:"lat" doc:"Latitude" example:"-6.2088"`
	Lng            float64            `json:"lng" doc:"Longitude" example:"106.8456"`
	State          render.MarkerState `json:"state" doc:"done, at-location or task" enum:"done,at-location,task"`
	DistanceMeters *float64           `json:"distanceMeters,omitempty" doc:"Great-circle distance from the current position in meters"`
	DistanceKm     *float64           `json:"distanceKm,omitempty" doc:"Same distance in kilometers"`
}

// Points lists the task points of the current document in document order.
func (o *Overlay) Points() []Point {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := []Point{}
	if o.state != StateReady || o.doc == nil {
		return out
	}
	for i, g := range o.doc.Geometries {
		if g.Kind != kmz.KindPoint {
			continue
		}
		id := o.ids[i]
		at := g.Points[0]
		p := Point{
			ID:          id,
			Name:        g.Name,
			Description: render.PlainDescription(g.Description),
			Lat:         at.Lat,
			Lng:         at.Lng,
			State:       o.cfg.Renderer.MarkerState(id, at, o.completed, o.position),
		}
		if o.position != nil {
			m := proximity.DistanceMeters(*o.position, at)
			km := proximity.Kilometers(m)
			p.DistanceMeters, p.DistanceKm = &m, &km
		}
		out = append(out, p)
	}
	return out
}

// Document returns the loaded document, or nil unless the state is ready.
func (o *Overlay) Document() *kmz.Document {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateReady {
		return nil
	}
	return o.doc
}
