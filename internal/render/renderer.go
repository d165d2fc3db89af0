package render

import (
	"html/template"
	"log/slog"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/logger"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/templates"
)

// DefaultPaddingPx is the viewport padding used when fitting to the document bounds.
const DefaultPaddingPx = 20

// Palette holds the colours of each primitive.
type Palette struct {
	Done       string
	AtLocation string
	Task       string
	Line       string
	Area       string
}

// DefaultPalette matches the field app: green done, amber at location, teal task.
var DefaultPalette = Palette{
	Done:       "#16a34a",
	AtLocation: "#f59e0b",
	Task:       "#0d9488",
	Line:       "#2563eb",
	Area:       "#7c3aed",
}

// Labels shown next to marker states.
var stateLabels = map[MarkerState]string{
	StateDone:       "done",
	StateAtLocation: "at location",
	StateTask:       "task",
}

// Config configures a Renderer.
type Config struct {
	Classifier proximity.Classifier
	PaddingPx  int
	Palette    Palette
	Templates  *templates.Renderer
	Logger     *slog.Logger
}

// Renderer turns a Frame into surface primitives.
type Renderer struct {
	classifier proximity.Classifier
	padding    int
	palette    Palette
	tmpl       *templates.Renderer
	logger     *slog.Logger
}

// New creates a renderer. Zero-valued config fields fall back to defaults.
func New(cfg Config) *Renderer {
	r := &Renderer{
		classifier: cfg.Classifier,
		padding:    cfg.PaddingPx,
		palette:    cfg.Palette,
		tmpl:       cfg.Templates,
		logger:     cfg.Logger,
	}
	if r.classifier.ThresholdMeters <= 0 {
		r.classifier = proximity.NewClassifier(r.classifier.ThresholdMeters, r.classifier.Mode)
	}
	if r.padding <= 0 {
		r.padding = DefaultPaddingPx
	}
	if r.palette == (Palette{}) {
		r.palette = DefaultPalette
	}
	if r.tmpl == nil {
		r.tmpl = templates.Default()
	}
	r.logger = logger.Or(r.logger)
	return r
}

// Classifier returns the proximity classifier markers are styled with.
func (r *Renderer) Classifier() proximity.Classifier { return r.classifier }

// Frame is everything needed to draw one document.
type Frame struct {
	TaskID    string // target of the popup completion request
	Document  *kmz.Document
	PointIDs  map[int]string // nil assigns ids with proximity.AssignPointIDs
	Completed proximity.CompletionSet
	Position  *kmz.LatLng

	// Bind returns the completion action for a point marker. Nil leaves
	// every marker without an action.
	Bind func(pointID string, g kmz.Geometry) CompleteAction
}

// Stats counts what a render drew.
type Stats struct {
	Markers    int  `json:"markers"`
	Done       int  `json:"done"`
	AtLocation int  `json:"atLocation"`
	Polylines  int  `json:"polylines"`
	Polygons   int  `json:"polygons"`
	Fitted     bool `json:"fitted"`
}

// Primitives returns the number of primitives drawn.
func (s Stats) Primitives() int { return s.Markers + s.Polylines + s.Polygons }

// Render clears s and draws the frame. A nil document leaves s empty.
func (r *Renderer) Render(s Surface, f Frame) Stats {
	s.Clear()

	var st Stats
	if f.Document == nil {
		return st
	}

	ids := f.PointIDs
	if ids == nil {
		ids = proximity.AssignPointIDs(f.Document.Geometries)
	}

	for i, g := range f.Document.Geometries {
		switch g.Kind {
		case kmz.KindPoint:
			m := r.marker(ids[i], g, f)
			s.AddMarker(m)
			st.Markers++
			switch m.State {
			case StateDone:
				st.Done++
			case StateAtLocation:
				st.AtLocation++
			}
		case kmz.KindPolyline:
			s.AddPolyline(Polyline{
				Name:   g.Name,
				Points: g.Points,
				Style:  Style{Color: r.palette.Line, Weight: 3, Opacity: 0.8, DashArray: "8, 8"},
				Popup:  r.shapePopup(g),
			})
			st.Polylines++
		case kmz.KindPolygon:
			s.AddPolygon(Polygon{
				Name:   g.Name,
				Points: g.Points,
				Style: Style{
					Color: r.palette.Area, FillColor: r.palette.Area,
					Weight: 2, Opacity: 0.8, FillOpacity: 0.2, DashArray: "5, 5",
				},
				Popup: r.shapePopup(g),
			})
			st.Polygons++
		}
	}

	if f.Document.Bounds.Valid() {
		s.FitBounds(f.Document.Bounds.Bound(), r.padding)
		st.Fitted = true
	}
	return st
}

// MarkerState returns the state of a point: done beats at-location beats task.
func (r *Renderer) MarkerState(pointID string, at kmz.LatLng, completed proximity.CompletionSet, pos *kmz.LatLng) MarkerState {
	if completed.Has(pointID) {
		return StateDone
	}
	if r.classifier.Classify(at, pos) == proximity.Nearby {
		return StateAtLocation
	}
	return StateTask
}

func (r *Renderer) marker(id string, g kmz.Geometry, f Frame) Marker {
	at := g.Points[0]
	state := r.MarkerState(id, at, f.Completed, f.Position)
	color := r.palette.Task
	switch state {
	case StateDone:
		color = r.palette.Done
	case StateAtLocation:
		color = r.palette.AtLocation
	}

	m := Marker{
		ID:       id,
		Name:     g.Name,
		Position: at,
		State:    state,
		Label:    stateLabels[state],
		Style:    Style{Color: "#ffffff", FillColor: color, Weight: 2, Opacity: 1, FillOpacity: 0.9, Radius: 8},
	}
	if state != StateDone && f.Bind != nil {
		m.OnComplete = f.Bind(id, g)
	}
	m.Popup = r.pointPopup(m, g, f.TaskID)
	return m
}

func (r *Renderer) pointPopup(m Marker, g kmz.Geometry, taskID string) template.HTML {
	html, err := r.tmpl.Render("popup-point", map[string]any{
		"TaskID":      taskID,
		"PointID":     m.ID,
		"Name":        g.Name,
		"Description": SafeDescription(g.Description),
		"Lat":         m.Position.Lat,
		"Lng":         m.Position.Lng,
		"State":       string(m.State),
		"Label":       m.Label,
		"Completable": m.OnComplete != nil,
	})
	if err != nil {
		r.logger.Warn("popup render failed", "point", m.ID, "error", err)
		return template.HTML(template.HTMLEscapeString(g.Name))
	}
	return template.HTML(html)
}

func (r *Renderer) shapePopup(g kmz.Geometry) template.HTML {
	html, err := r.tmpl.Render("popup-shape", map[string]any{
		"Kind":        string(g.Kind),
		"Name":        g.Name,
		"Description": SafeDescription(g.Description),
	})
	if err != nil {
		r.logger.Warn("popup render failed", "name", g.Name, "error", err)
		return template.HTML(template.HTMLEscapeString(g.Name))
	}
	return template.HTML(html)
}
