package overlay

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/render"
)

const twoPoleKML = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2"><Document>
  <Placemark><name>Tiang A</name><Point><coordinates>106.8456,-6.2088,0</coordinates></Point></Placemark>
  <Placemark><name>Tiang B</name><Point><coordinates>106.8500,-6.2100,0</coordinates></Point></Placemark>
  <Placemark><name>Kabel</name><LineString><coordinates>106.8456,-6.2088 106.8500,-6.2100</coordinates></LineString></Placemark>
</Document></kml>`

// --- fakes ---

type memStore struct {
	mu   sync.Mutex
	sets map[string]proximity.CompletionSet
}

func (s *memStore) Get(ctx context.Context, taskID string) (proximity.CompletionSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sets[taskID], nil
}

func (s *memStore) Put(ctx context.Context, taskID string, set proximity.CompletionSet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[taskID] = set
	return nil
}

type fetchFunc func(ctx context.Context, rawURL string) ([]byte, string, error)

func (f fetchFunc) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	return f(ctx, rawURL)
}

func newTestOverlay(t *testing.T, fetcher Fetcher) (*Overlay, *render.LayerSurface, *memStore) {
	t.Helper()
	store := &memStore{sets: map[string]proximity.CompletionSet{}}
	surface := render.NewLayerSurface()
	o := New(Config{
		TaskID:   "task-1",
		Surface:  surface,
		Renderer: render.New(render.Config{}),
		Engine:   proximity.NewEngine(store, nil, nil),
		Fetcher:  fetcher,
	})
	return o, surface, store
}

// --- tests ---

func TestLoadBytes(t *testing.T) {
	o, surface, _ := newTestOverlay(t, nil)
	if got := o.Snapshot().State; got != StateEmpty {
		t.Fatalf("initial state = %s", got)
	}

	if err := o.Load(context.Background(), Source{Filename: "tiang.kml", Data: []byte(twoPoleKML)}); err != nil {
		t.Fatal(err)
	}
	snap := o.Snapshot()
	if snap.State != StateReady || snap.Source != "tiang.kml" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if surface.Len() != 3 || snap.Stats.Markers != 2 || snap.Stats.Polylines != 1 {
		t.Errorf("surface len %d, stats %+v", surface.Len(), snap.Stats)
	}
	if pts := o.Points(); len(pts) != 2 || pts[0].Name != "Tiang A" || pts[0].ID != "-6.208800,106.845600" {
		t.Errorf("points = %+v", pts)
	}
}

func TestLoadFailureLeavesSurfaceClear(t *testing.T) {
	o, surface, _ := newTestOverlay(t, nil)
	if err := o.Load(context.Background(), Source{Filename: "a.kml", Data: []byte(twoPoleKML)}); err != nil {
		t.Fatal(err)
	}

	err := o.Load(context.Background(), Source{Filename: "broken.kmz", Data: []byte("not a zip")})
	if !errors.Is(err, kmz.ErrArchiveCorrupt) {
		t.Fatalf("err = %v, want ErrArchiveCorrupt", err)
	}
	snap := o.Snapshot()
	if snap.State != StateFailed || snap.ErrorKind != "archive_corrupt" || snap.Error == "" {
		t.Errorf("snapshot = %+v", snap)
	}
	if !errors.Is(snap.Err(), kmz.ErrArchiveCorrupt) {
		t.Errorf("snapshot err = %v", snap.Err())
	}
	if surface.Len() != 0 {
		t.Errorf("surface kept %d primitives after failure", surface.Len())
	}
	if len(o.Points()) != 0 {
		t.Error("failed overlay still lists points")
	}
}

func TestLoadZeroSourceResets(t *testing.T) {
	o, surface, _ := newTestOverlay(t, nil)
	o.Load(context.Background(), Source{Filename: "a.kml", Data: []byte(twoPoleKML)})

	if err := o.Load(context.Background(), Source{}); err != nil {
		t.Fatal(err)
	}
	if o.Snapshot().State != StateEmpty || surface.Len() != 0 {
		t.Errorf("state %s, len %d", o.Snapshot().State, surface.Len())
	}
}

func TestNewerLoadSupersedesOlder(t *testing.T) {
	started := make(chan struct{})
	fetcher := fetchFunc(func(ctx context.Context, rawURL string) ([]byte, string, error) {
		close(started)
		<-ctx.Done()
		return nil, "", &FetchError{URL: rawURL, Err: ctx.Err()}
	})
	o, surface, _ := newTestOverlay(t, fetcher)

	done := make(chan error, 1)
	go func() {
		done <- o.Load(context.Background(), Source{URL: "https://example.com/slow.kmz"})
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("slow load never started")
	}
	if o.Snapshot().State != StateLoading {
		t.Errorf("state = %s, want loading", o.Snapshot().State)
	}

	if err := o.Load(context.Background(), Source{Filename: "b.kml", Data: []byte(twoPoleKML)}); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("old load err = %v, want ErrSuperseded", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("old load never returned")
	}

	if snap := o.Snapshot(); snap.State != StateReady || snap.Source != "b.kml" {
		t.Errorf("snapshot = %+v", snap)
	}
	if surface.Len() != 3 {
		t.Errorf("surface len = %d, want 3", surface.Len())
	}
}

func TestURLWithoutFetcher(t *testing.T) {
	o, _, _ := newTestOverlay(t, nil)
	err := o.Load(context.Background(), Source{URL: "https://example.com/a.kmz"})
	if !errors.Is(err, ErrNoFetcher) {
		t.Fatalf("err = %v", err)
	}
	if o.Snapshot().ErrorKind != "fetch_error" {
		t.Errorf("kind = %s", o.Snapshot().ErrorKind)
	}
}

func TestSetPositionRestyles(t *testing.T) {
	o, _, _ := newTestOverlay(t, nil)
	o.Load(context.Background(), Source{Filename: "a.kml", Data: []byte(twoPoleKML)})

	pos := kmz.LatLng{Lat: -6.2088, Lng: 106.8456}
	o.SetPosition(&pos)
	pos.Lat = 0 // the overlay keeps its own copy

	pts := o.Points()
	if pts[0].State != render.StateAtLocation {
		t.Errorf("Tiang A state = %s", pts[0].State)
	}
	if pts[1].State != render.StateTask {
		t.Errorf("Tiang B state = %s", pts[1].State)
	}
	if pts[0].DistanceMeters == nil || *pts[0].DistanceMeters > 0.01 {
		t.Errorf("distance to Tiang A = %v", pts[0].DistanceMeters)
	}
	if d := *pts[1].DistanceMeters; d < 480 || d > 530 {
		t.Errorf("distance to Tiang B = %.1f m", d)
	}
	if km := *pts[1].DistanceKm; math.Abs(km*1000-*pts[1].DistanceMeters) > 1e-6 {
		t.Errorf("km %.4f does not match meters", km)
	}
	if o.Snapshot().Stats.AtLocation != 1 {
		t.Errorf("stats = %+v", o.Snapshot().Stats)
	}

	o.SetPosition(nil)
	if pts := o.Points(); pts[0].DistanceMeters != nil || pts[0].State != render.StateTask {
		t.Errorf("after clearing position: %+v", pts[0])
	}
}

func TestCompleteThroughMarker(t *testing.T) {
	var changes []Snapshot
	o, surface, store := newTestOverlay(t, nil)
	o.cfg.OnChange = func(s Snapshot) { changes = append(changes, s) }
	o.Load(context.Background(), Source{Filename: "a.kml", Data: []byte(twoPoleKML)})
	id := o.Points()[0].ID

	out, err := surface.Trigger(context.Background(), id, proximity.AlwaysConfirm)
	if err != nil || out != proximity.OutcomeCompleted {
		t.Fatalf("Trigger = %s, %v", out, err)
	}
	if !store.sets["task-1"].Has(id) {
		t.Error("completion not persisted")
	}
	if o.Points()[0].State != render.StateDone {
		t.Errorf("state = %s, want done", o.Points()[0].State)
	}
	if got := o.Snapshot().Completed; len(got) != 1 || got[0] != id {
		t.Errorf("completed = %v", got)
	}

	// The redraw dropped the marker's action.
	out, err = surface.Trigger(context.Background(), id, proximity.AlwaysConfirm)
	if err != nil || out != proximity.OutcomeAlreadyCompleted {
		t.Errorf("second Trigger = %s, %v", out, err)
	}
	out, err = o.Complete(context.Background(), id, proximity.AlwaysConfirm)
	if err != nil || out != proximity.OutcomeAlreadyCompleted {
		t.Errorf("second Complete = %s, %v", out, err)
	}

	last := changes[len(changes)-1]
	if last.Stats.Done != 1 {
		t.Errorf("last change = %+v", last)
	}
}

func TestCompleteDeclinedAndUnknown(t *testing.T) {
	o, _, store := newTestOverlay(t, nil)
	o.Load(context.Background(), Source{Filename: "a.kml", Data: []byte(twoPoleKML)})
	id := o.Points()[1].ID

	decline := proximity.ConfirmFunc(func(context.Context, proximity.CompletionRequest) (bool, error) { return false, nil })
	out, err := o.Complete(context.Background(), id, decline)
	if err != nil || out != proximity.OutcomeDeclined {
		t.Fatalf("Complete = %s, %v", out, err)
	}
	if store.sets["task-1"].Len() != 0 {
		t.Error("declined completion persisted")
	}

	if _, err := o.Complete(context.Background(), "1,2", proximity.AlwaysConfirm); !errors.Is(err, ErrUnknownPoint) {
		t.Errorf("err = %v, want ErrUnknownPoint", err)
	}
}

func TestMountLoadsCompletions(t *testing.T) {
	o, _, store := newTestOverlay(t, nil)
	store.sets["task-1"] = proximity.NewCompletionSet("-6.208800,106.845600")

	if err := o.Mount(context.Background()); err != nil {
		t.Fatal(err)
	}
	o.Load(context.Background(), Source{Filename: "a.kml", Data: []byte(twoPoleKML)})
	if st := o.Points()[0].State; st != render.StateDone {
		t.Errorf("state = %s, want done", st)
	}
}

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/tiang.kml":
			w.Write([]byte(twoPoleKML))
		case "/proxy/":
			if !strings.HasPrefix(r.URL.Query().Get("url"), "https://origin.example/") {
				http.Error(w, "bad target", http.StatusBadRequest)
				return
			}
			w.Write([]byte(twoPoleKML))
		case "/busy":
			http.Error(w, "busy", http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(5*time.Second, "")
	data, name, err := f.Fetch(context.Background(), srv.URL+"/files/tiang.kml")
	if err != nil || name != "tiang.kml" || !strings.Contains(string(data), "Tiang A") {
		t.Fatalf("Fetch = %d bytes, %q, %v", len(data), name, err)
	}

	proxied := NewHTTPFetcher(5*time.Second, srv.URL+"/proxy/?url={url}")
	if _, name, err := proxied.Fetch(context.Background(), "https://origin.example/x/site.kml"); err != nil || name != "site.kml" {
		t.Errorf("proxied Fetch = %q, %v", name, err)
	}

	tests := []struct {
		path      string
		status    int
		retryable bool
	}{
		{"/busy", http.StatusServiceUnavailable, true},
		{"/missing.kmz", http.StatusNotFound, false},
	}
	for _, tt := range tests {
		_, _, err := f.Fetch(context.Background(), srv.URL+tt.path)
		var fe *FetchError
		if !errors.As(err, &fe) {
			t.Fatalf("%s: err = %v", tt.path, err)
		}
		if fe.Status != tt.status || fe.Retryable() != tt.retryable {
			t.Errorf("%s: status %d retryable %v", tt.path, fe.Status, fe.Retryable())
		}
	}

	if _, _, err := f.Fetch(context.Background(), "ftp://nope"); err == nil {
		t.Error("accepted a non-http URL")
	}
}

func TestFetcherSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(time.Second, "")
	f.MaxBytes = 16
	_, _, err := f.Fetch(context.Background(), srv.URL+"/big.kml")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.Status != 0 {
		t.Errorf("err = %v", err)
	}
}
