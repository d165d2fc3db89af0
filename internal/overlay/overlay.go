// Package overlay owns one task's survey document, completion set and current
// position, and keeps its map surface in sync with them.
//
// Loads run outside the overlay lock so position updates never wait for a
// parse. A newer Load cancels the one in flight; the superseded load returns
// ErrSuperseded and never touches the surface.
package overlay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/logger"
	"github.com/joeblew999/plat-survey/internal/metrics"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/render"
)

// State is the lifecycle of the overlay's document.
type State string

const (
	StateEmpty   State = "empty"
	StateLoading State = "loading"
	StateReady   State = "ready"
	StateFailed  State = "failed"
)

var (
	// ErrSuperseded is returned by a Load that a newer Load replaced.
	ErrSuperseded = errors.New("overlay: load superseded")
	// ErrUnknownPoint is returned by Complete for ids not in the current document.
	ErrUnknownPoint = errors.New("overlay: unknown point")
	// ErrNoFetcher is returned when a URL source is loaded without a Fetcher.
	ErrNoFetcher = errors.New("overlay: no fetcher configured for URL sources")
)

// Source is a survey file to load: raw bytes with a filename, or a URL.
// The zero Source resets the overlay to empty.
type Source struct {
	Filename string
	Data     []byte
	URL      string
}

func (s Source) isZero() bool { return s.URL == "" && len(s.Data) == 0 && s.Filename == "" }

func (s Source) label() string {
	if s.URL != "" {
		return s.URL
	}
	return s.Filename
}

// Config wires an overlay.
type Config struct {
	TaskID       string
	Surface      render.Surface
	Renderer     *render.Renderer
	Engine       *proximity.Engine
	Fetcher      Fetcher
	ParseOptions []kmz.Option
	Logger       *slog.Logger

	// OnChange, if set, runs after every state change with the lock released.
	OnChange func(Snapshot)
}

// Overlay is safe for concurrent use.
type Overlay struct {
	cfg    Config
	logger *slog.Logger

	completeMu sync.Mutex // serializes completions so each persists the latest set

	mu        sync.Mutex
	state     State
	err       error
	source    string
	doc       *kmz.Document
	ids       map[int]string
	completed proximity.CompletionSet
	position  *kmz.LatLng
	stats     render.Stats
	gen       uint64
	cancel    context.CancelFunc
}

// New creates an empty overlay. Surface, Renderer and Engine are required.
func New(cfg Config) *Overlay {
	return &Overlay{
		cfg:    cfg,
		logger: logger.Or(cfg.Logger).With("task", cfg.TaskID),
		state:  StateEmpty,
	}
}

// Mount loads the persisted completion set and redraws.
func (o *Overlay) Mount(ctx context.Context) error {
	set, err := o.cfg.Engine.Load(ctx, o.cfg.TaskID)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.completed = set
	o.renderLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.changed(snap)
	return nil
}

// Load replaces the document. The surface is cleared before anything is
// fetched or parsed; on failure it stays clear and the state is failed.
func (o *Overlay) Load(ctx context.Context, src Source) error {
	o.mu.Lock()
	if o.cancel != nil {
		o.cancel()
		o.cancel = nil
	}
	o.gen++
	gen := o.gen
	o.doc, o.ids, o.err, o.stats = nil, nil, nil, render.Stats{}
	o.source = src.label()
	o.cfg.Surface.Clear()
	if src.isZero() {
		o.state = StateEmpty
		snap := o.snapshotLocked()
		o.mu.Unlock()
		o.changed(snap)
		return nil
	}
	o.state = StateLoading
	lctx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	snap := o.snapshotLocked()
	o.mu.Unlock()
	defer cancel()
	o.changed(snap)

	start := time.Now()
	format := kmz.FormatOf(src.Filename)
	data, name, err := o.read(lctx, src)
	if err == nil {
		format = kmz.DetectFormat(data, name)
	}
	var doc *kmz.Document
	if err == nil {
		doc, err = kmz.Parse(lctx, data, name, o.cfg.ParseOptions...)
	}
	formatLabel := string(format)
	if formatLabel == "" {
		formatLabel = "unknown"
	}

	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		metrics.LoadsTotal.WithLabelValues(formatLabel, "superseded").Inc()
		o.logger.Debug("load superseded", "source", src.label())
		return ErrSuperseded
	}
	o.cancel = nil
	metrics.LoadDuration.WithLabelValues(formatLabel).Observe(time.Since(start).Seconds())

	if err != nil {
		o.state, o.err = StateFailed, err
		o.cfg.Surface.Clear()
		snap := o.snapshotLocked()
		o.mu.Unlock()
		metrics.LoadsTotal.WithLabelValues(formatLabel, resultOf(err)).Inc()
		o.logger.Warn("survey load failed", "source", src.label(), "error", err)
		o.changed(snap)
		return err
	}

	o.doc = doc
	o.ids = proximity.AssignPointIDs(doc.Geometries)
	o.state = StateReady
	o.renderLocked()
	snap = o.snapshotLocked()
	o.mu.Unlock()

	metrics.LoadsTotal.WithLabelValues(formatLabel, "ok").Inc()
	for _, k := range []kmz.Kind{kmz.KindPoint, kmz.KindPolyline, kmz.KindPolygon} {
		metrics.GeometriesExtracted.WithLabelValues(string(k)).Add(float64(doc.Count(k)))
	}
	metrics.PlacemarksDropped.Add(float64(doc.Dropped))
	o.logger.Info("survey loaded", "source", src.label(), "format", formatLabel,
		"points", doc.Count(kmz.KindPoint), "polylines", doc.Count(kmz.KindPolyline),
		"polygons", doc.Count(kmz.KindPolygon), "dropped", doc.Dropped)
	o.changed(snap)
	return nil
}

func (o *Overlay) read(ctx context.Context, src Source) ([]byte, string, error) {
	if src.URL == "" {
		return src.Data, src.Filename, nil
	}
	if o.cfg.Fetcher == nil {
		return nil, "", ErrNoFetcher
	}
	data, name, err := o.cfg.Fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return nil, "", err
	}
	if src.Filename != "" {
		name = src.Filename
	}
	return data, name, nil
}

func resultOf(err error) string {
	var fe *FetchError
	switch {
	case errors.As(err, &fe), errors.Is(err, ErrNoFetcher):
		return "fetch_error"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	}
	if kind := kmz.ErrorKind(err); kind != "" {
		return kind
	}
	return "error"
}

// SetPosition replaces the current position (nil clears it) and redraws.
func (o *Overlay) SetPosition(pos *kmz.LatLng) {
	o.mu.Lock()
	if pos != nil {
		p := *pos
		o.position = &p
	} else {
		o.position = nil
	}
	o.renderLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()
	metrics.PositionUpdates.Inc()
	o.changed(snap)
}

// Complete marks a point of the current document complete once confirm agrees.
func (o *Overlay) Complete(ctx context.Context, pointID string, confirm proximity.Confirmer) (proximity.Outcome, error) {
	o.completeMu.Lock()
	defer o.completeMu.Unlock()

	o.mu.Lock()
	g, ok := o.pointLocked(pointID)
	set := o.completed
	o.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownPoint, pointID)
	}

	req := proximity.CompletionRequest{
		TaskID:  o.cfg.TaskID,
		PointID: pointID,
		Name:    g.Name,
		Lat:     g.Points[0].Lat,
		Lng:     g.Points[0].Lng,
	}
	next, outcome, err := o.cfg.Engine.CompletePoint(ctx, set, req, confirm)
	if err != nil {
		metrics.CompletionsTotal.WithLabelValues("error").Inc()
		return "", err
	}
	metrics.CompletionsTotal.WithLabelValues(string(outcome)).Inc()
	if outcome != proximity.OutcomeCompleted {
		return outcome, nil
	}

	o.mu.Lock()
	o.completed = next
	o.renderLocked()
	snap := o.snapshotLocked()
	o.mu.Unlock()
	o.changed(snap)
	return outcome, nil
}

func (o *Overlay) pointLocked(id string) (kmz.Geometry, bool) {
	if o.doc == nil {
		return kmz.Geometry{}, false
	}
	for i, pid := range o.ids {
		if pid == id {
			return o.doc.Geometries[i], true
		}
	}
	return kmz.Geometry{}, false
}

func (o *Overlay) renderLocked() {
	var doc *kmz.Document
	if o.state == StateReady {
		doc = o.doc
	}
	o.stats = o.cfg.Renderer.Render(o.cfg.Surface, render.Frame{
		TaskID:    o.cfg.TaskID,
		Document:  doc,
		PointIDs:  o.ids,
		Completed: o.completed,
		Position:  o.position,
		Bind:      o.bind,
	})
}

func (o *Overlay) bind(pointID string, _ kmz.Geometry) render.CompleteAction {
	return func(ctx context.Context, confirm proximity.Confirmer) (proximity.Outcome, error) {
		return o.Complete(ctx, pointID, confirm)
	}
}

func (o *Overlay) changed(s Snapshot) {
	if o.cfg.OnChange != nil {
		o.cfg.OnChange(s)
	}
}
