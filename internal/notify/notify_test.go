package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/render"
	"github.com/joeblew999/plat-survey/internal/service"
	"github.com/joeblew999/plat-survey/internal/store"
)

var completed = proximity.PointCompleted{
	TaskID:      "task-1",
	PointID:     "-6.208800,106.845600",
	Name:        "Tiang A",
	Lat:         -6.2088,
	Lng:         106.8456,
	CompletedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
}

func TestBusPublishesEvent(t *testing.T) {
	bus := service.NewEventBus()
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)

	if err := NewBus(bus).PointCompleted(context.Background(), completed); err != nil {
		t.Fatal(err)
	}
	select {
	case e := <-ch:
		if e.Resource != "points" || e.Action != "completed" || e.TaskID != "task-1" || e.ID != completed.PointID {
			t.Errorf("event = %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}
}

type notifierFunc func(ctx context.Context, ev proximity.PointCompleted) error

func (f notifierFunc) PointCompleted(ctx context.Context, ev proximity.PointCompleted) error {
	return f(ctx, ev)
}

func TestMultiJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	m := Multi{
		notifierFunc(func(context.Context, proximity.PointCompleted) error { calls++; return boom }),
		nil,
		notifierFunc(func(context.Context, proximity.PointCompleted) error { calls++; return nil }),
	}
	err := m.PointCompleted(context.Background(), completed)
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want boom", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
	if err := (Multi{}).PointCompleted(context.Background(), completed); err != nil {
		t.Errorf("empty Multi err = %v", err)
	}
}

func TestSubject(t *testing.T) {
	tests := map[string]string{
		"task-1": "survey.points.completed.task-1",
		"site.a": "survey.points.completed.site_a",
		"x *>":   "survey.points.completed.x___",
		"":       "survey.points.completed._",
	}
	for in, want := range tests {
		if got := Subject(in); got != want {
			t.Errorf("Subject(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTaskCompletionPublishesOnce(t *testing.T) {
	bus := service.NewEventBus()
	tasks := service.NewTaskService(service.TaskConfig{
		Renderer: render.New(render.Config{}),
		Engine:   proximity.NewEngine(store.NewMemory(), Multi{NewBus(bus)}, nil),
		Bus:      bus,
	})
	ctx := context.Background()
	kml := `<kml><Document><Placemark><name>Tiang A</name><Point><coordinates>106.8456,-6.2088</coordinates></Point></Placemark></Document></kml>`
	if _, err := tasks.LoadBytes(ctx, "site-1", "tiang.kml", []byte(kml)); err != nil {
		t.Fatal(err)
	}
	events := bus.SubscribeTask("site-1")
	defer bus.Unsubscribe(events)

	pos := kmz.LatLng{Lat: -6.2088, Lng: 106.8456}
	if _, err := tasks.SetPosition(ctx, "site-1", &pos); err != nil {
		t.Fatal(err)
	}
	<-events // position

	pts, err := tasks.Points("site-1")
	if err != nil || len(pts) != 1 {
		t.Fatalf("Points = %v, %v", pts, err)
	}
	out, err := tasks.Complete(ctx, "site-1", pts[0].ID, true)
	if err != nil || out != proximity.OutcomeCompleted {
		t.Fatalf("Complete = %s, %v", out, err)
	}

	var got []service.Event
	for {
		select {
		case e := <-events:
			got = append(got, e)
			continue
		case <-time.After(100 * time.Millisecond):
		}
		break
	}
	if len(got) != 1 || got[0].Action != service.ActionCompleted || got[0].ID != pts[0].ID {
		t.Errorf("completion events = %+v, want exactly one", got)
	}
}
