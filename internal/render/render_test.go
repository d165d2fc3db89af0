package render

import (
	"context"
	"strings"
	"testing"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/proximity"
)

func testDocument() *kmz.Document {
	return mustExtract([]kmz.Placemark{
		{Index: 0, Name: "Pole 1", Description: "<b>check</b><script>alert(1)</script>", Coordinates: "106.8271,-6.1754,0"},
		{Index: 1, Name: "Pole 2", Coordinates: "106.8280,-6.1760"},
		{Index: 2, Name: "Cable", Coordinates: "106.8271,-6.1754 106.8280,-6.1760"},
		{Index: 3, Name: "Plot", Coordinates: "106.826,-6.175 106.827,-6.175 106.827,-6.176 106.826,-6.175"},
	})
}

func mustExtract(placemarks []kmz.Placemark) *kmz.Document {
	doc, err := kmz.Extract(context.Background(), placemarks)
	if err != nil {
		panic(err)
	}
	return doc
}

func TestRenderIsIdempotent(t *testing.T) {
	r := New(Config{})
	s := NewLayerSurface()
	f := Frame{Document: testDocument()}

	first := r.Render(s, f)
	n := s.Len()
	second := r.Render(s, f)

	if s.Len() != n {
		t.Fatalf("second render left %d primitives, want %d", s.Len(), n)
	}
	if first != second {
		t.Errorf("stats differ: %+v vs %+v", first, second)
	}
	if first.Markers != 2 || first.Polylines != 1 || first.Polygons != 1 || !first.Fitted {
		t.Errorf("unexpected stats %+v", first)
	}
	if first.Primitives() != 4 {
		t.Errorf("Primitives = %d, want 4", first.Primitives())
	}
}

func TestMarkerStates(t *testing.T) {
	doc := testDocument()
	ids := proximity.AssignPointIDs(doc.Geometries)
	pole1 := ids[0]
	pole2 := ids[1]

	r := New(Config{})
	s := NewLayerSurface()
	pos := doc.Geometries[1].Points[0]
	st := r.Render(s, Frame{
		Document:  doc,
		Completed: proximity.NewCompletionSet(pole1),
		Position:  &pos,
	})
	if st.Done != 1 || st.AtLocation != 1 {
		t.Fatalf("stats = %+v, want one done and one at location", st)
	}

	props := map[string]map[string]any{}
	for _, f := range s.FeatureCollection().Features {
		if f.Properties["primitive"] == "marker" {
			props[f.Properties["pointId"].(string)] = f.Properties
		}
	}
	if got := props[pole1]["state"]; got != string(StateDone) {
		t.Errorf("pole 1 state = %v, want done", got)
	}
	if got := props[pole1]["label"]; got != "done" {
		t.Errorf("pole 1 label = %v", got)
	}
	if got := props[pole1]["style"].(Style).FillColor; got != DefaultPalette.Done {
		t.Errorf("pole 1 colour = %s", got)
	}
	if got := props[pole2]["state"]; got != string(StateAtLocation) {
		t.Errorf("pole 2 state = %v, want at-location", got)
	}
	if got := props[pole2]["style"].(Style).FillColor; got != DefaultPalette.AtLocation {
		t.Errorf("pole 2 colour = %s", got)
	}
}

func TestMarkerStatePrecedence(t *testing.T) {
	r := New(Config{})
	at := kmz.LatLng{Lat: -6.2, Lng: 106.8}
	done := proximity.NewCompletionSet("x")

	if got := r.MarkerState("x", at, done, &at); got != StateDone {
		t.Errorf("done and nearby = %s, want done", got)
	}
	if got := r.MarkerState("y", at, done, &at); got != StateAtLocation {
		t.Errorf("nearby = %s, want at-location", got)
	}
	if got := r.MarkerState("y", at, done, nil); got != StateTask {
		t.Errorf("no position = %s, want task", got)
	}

	always := New(Config{Classifier: proximity.NewClassifier(0, proximity.ModeAlwaysNearby)})
	if got := always.MarkerState("y", at, done, nil); got != StateAtLocation {
		t.Errorf("always-nearby = %s, want at-location", got)
	}
}

func TestShapesAreNotCompletable(t *testing.T) {
	r := New(Config{})
	s := NewLayerSurface()
	r.Render(s, Frame{
		Document: testDocument(),
		Bind: func(string, kmz.Geometry) CompleteAction {
			return func(context.Context, proximity.Confirmer) (proximity.Outcome, error) {
				return proximity.OutcomeCompleted, nil
			}
		},
	})
	for _, f := range s.FeatureCollection().Features {
		switch f.Properties["primitive"] {
		case "polyline", "polygon":
			if _, ok := f.Properties["completable"]; ok {
				t.Errorf("%v carries a completable property", f.Properties["name"])
			}
			if _, ok := f.Properties["pointId"]; ok {
				t.Errorf("%v carries a point id", f.Properties["name"])
			}
		case "marker":
			if f.Properties["completable"] != true {
				t.Errorf("marker %v not completable", f.Properties["name"])
			}
		}
	}
}

func TestFitSkippedWithoutGeometry(t *testing.T) {
	r := New(Config{})
	s := NewLayerSurface()

	st := r.Render(s, Frame{})
	if st.Fitted || s.Len() != 0 {
		t.Fatalf("nil document: stats %+v, len %d", st, s.Len())
	}
	if _, ok := s.Viewport(); ok {
		t.Error("viewport set for nil document")
	}

	st = r.Render(s, Frame{Document: mustExtract(nil)})
	if st.Fitted {
		t.Error("fitted an empty document")
	}
}

func TestRenderClearsPreviousDocument(t *testing.T) {
	r := New(Config{})
	s := NewLayerSurface()
	r.Render(s, Frame{Document: testDocument()})

	single := mustExtract([]kmz.Placemark{{Name: "Only", Coordinates: "110.1,-7.5"}})
	r.Render(s, Frame{Document: single})
	if s.Len() != 1 {
		t.Fatalf("len = %d, want 1", s.Len())
	}
	vp, ok := s.Viewport()
	if !ok || vp.PaddingPx != DefaultPaddingPx {
		t.Fatalf("viewport = %+v, %v", vp, ok)
	}
	if vp.Bound.Min.Lon() != 110.1 || vp.Bound.Max.Lat() != -7.5 {
		t.Errorf("viewport bound %+v", vp.Bound)
	}
}

func TestTrigger(t *testing.T) {
	doc := testDocument()
	ids := proximity.AssignPointIDs(doc.Geometries)
	var bound []string

	r := New(Config{})
	s := NewLayerSurface()
	r.Render(s, Frame{
		Document:  doc,
		Completed: proximity.NewCompletionSet(ids[0]),
		Bind: func(id string, g kmz.Geometry) CompleteAction {
			bound = append(bound, id)
			return func(ctx context.Context, c proximity.Confirmer) (proximity.Outcome, error) {
				return proximity.OutcomeCompleted, nil
			}
		},
	})

	if len(bound) != 1 || bound[0] != ids[1] {
		t.Fatalf("bound = %v, want only %s", bound, ids[1])
	}

	ctx := context.Background()
	if out, err := s.Trigger(ctx, ids[1], proximity.AlwaysConfirm); err != nil || out != proximity.OutcomeCompleted {
		t.Errorf("Trigger(open) = %s, %v", out, err)
	}
	if out, err := s.Trigger(ctx, ids[0], proximity.AlwaysConfirm); err != nil || out != proximity.OutcomeAlreadyCompleted {
		t.Errorf("Trigger(done) = %s, %v", out, err)
	}
	if _, err := s.Trigger(ctx, "0,0", proximity.AlwaysConfirm); err != ErrUnknownMarker {
		t.Errorf("Trigger(unknown) err = %v, want ErrUnknownMarker", err)
	}
}

func TestPopupSanitizesDescription(t *testing.T) {
	r := New(Config{})
	s := NewLayerSurface()
	r.Render(s, Frame{Document: testDocument()})

	f := s.FeatureCollection().Features[0]
	popup := f.Properties["popup"].(string)
	if strings.Contains(popup, "<script>") {
		t.Errorf("popup kept script: %s", popup)
	}
	if !strings.Contains(popup, "<b>check</b>") {
		t.Errorf("popup lost safe markup: %s", popup)
	}
	if !strings.Contains(popup, "-6.175400, 106.827100") {
		t.Errorf("popup missing coordinates: %s", popup)
	}
}

func TestPlainDescription(t *testing.T) {
	got := PlainDescription("<p>Check <strong>meter</strong></p><script>x()</script>")
	if strings.Contains(got, "script") || strings.Contains(got, "x()") {
		t.Errorf("script leaked: %q", got)
	}
	if !strings.Contains(got, "**meter**") {
		t.Errorf("PlainDescription = %q", got)
	}
	if PlainDescription("   ") != "" {
		t.Error("blank description not empty")
	}
}

func TestTermSurface(t *testing.T) {
	r := New(Config{})
	ts := NewTermSurface(40, 12)
	r.Render(ts, Frame{Document: testDocument()})

	if ts.Len() != 4 {
		t.Fatalf("len = %d, want 4", ts.Len())
	}
	out := ts.String()
	if !strings.Contains(out, "Pole 1") || !strings.Contains(out, "Pole 2") {
		t.Errorf("legend missing points:\n%s", out)
	}
	if !strings.Contains(out, "●") {
		t.Errorf("no marker glyph:\n%s", out)
	}

	ts.Clear()
	if ts.String() != "(nothing to draw)\n" {
		t.Errorf("cleared surface drew %q", ts.String())
	}
}

func TestTermSurfaceSinglePoint(t *testing.T) {
	r := New(Config{})
	ts := NewTermSurface(20, 6)
	doc := mustExtract([]kmz.Placemark{{Name: "Tiang A", Coordinates: "106.8,-6.2"}})
	st := r.Render(ts, Frame{Document: doc})
	if st.Markers != 1 {
		t.Fatalf("markers = %d", st.Markers)
	}
	if !strings.Contains(ts.String(), "Tiang A") {
		t.Error("single point not drawn")
	}
}

func TestPopupPostsCompletionForTask(t *testing.T) {
	bind := func(id string, g kmz.Geometry) CompleteAction {
		return func(ctx context.Context, c proximity.Confirmer) (proximity.Outcome, error) {
			return proximity.OutcomeCompleted, nil
		}
	}
	popups := func(f Frame) []string {
		s := NewLayerSurface()
		New(Config{}).Render(s, f)
		var out []string
		for _, feat := range s.FeatureCollection().Features {
			if p, ok := feat.Properties["popup"].(string); ok && strings.Contains(p, "survey-popup__complete") {
				out = append(out, p)
			}
		}
		return out
	}

	got := popups(Frame{TaskID: "site-1", Document: testDocument(), Bind: bind})
	if len(got) != 2 {
		t.Fatalf("%d completable popups, want 2", len(got))
	}
	for _, p := range got {
		if !strings.Contains(p, "data-on-click=") || !strings.Contains(p, "@post('/api/v1/map/site-1/complete')") {
			t.Errorf("popup button does not post the completion: %s", p)
		}
	}

	if got := popups(Frame{Document: testDocument(), Bind: bind}); len(got) != 0 {
		t.Errorf("popups without a task rendered %d buttons", len(got))
	}
}
