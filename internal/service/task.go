package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/sync/singleflight"

	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/logger"
	"github.com/joeblew999/plat-survey/internal/metrics"
	"github.com/joeblew999/plat-survey/internal/overlay"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/render"
)

var (
	ErrInvalidTaskID = errors.New("invalid task id")
	ErrTaskNotFound  = errors.New("task not found")
	ErrPointNotFound = errors.New("point not found")
)

var taskIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// declineAll is the confirmer for requests that did not carry the user's acknowledgment.
var declineAll = proximity.ConfirmFunc(func(context.Context, proximity.CompletionRequest) (bool, error) {
	return false, nil
})

// TaskConfig wires a TaskService.
type TaskConfig struct {
	Renderer     *render.Renderer
	Engine       *proximity.Engine
	Fetcher      overlay.Fetcher
	Sources      *SourceService
	ParseOptions []kmz.Option
	Bus          *EventBus // nil uses DefaultBus
	Logger       *slog.Logger
}

// TaskService holds one overlay and layer surface per task.
type TaskService struct {
	cfg    TaskConfig
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]*task

	// mounting collapses concurrent first uses of one id; mounts run without mu held.
	mounting singleflight.Group
}

type task struct {
	overlay *overlay.Overlay
	surface *render.LayerSurface
}

// NewTaskService creates a task service.
func NewTaskService(cfg TaskConfig) *TaskService {
	if cfg.Bus == nil {
		cfg.Bus = DefaultBus
	}
	return &TaskService{
		cfg:    cfg,
		logger: logger.Or(cfg.Logger),
		tasks:  make(map[string]*task),
	}
}

// ensure returns the task, creating and mounting it on first use.
func (s *TaskService) ensure(ctx context.Context, id string) (*task, error) {
	if !taskIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTaskID, id)
	}

	if t, err := s.get(id); err == nil {
		return t, nil
	}

	v, err, _ := s.mounting.Do(id, func() (any, error) {
		if t, err := s.get(id); err == nil {
			return t, nil
		}
		return s.mount(ctx, id)
	})
	if err != nil {
		return nil, err
	}
	return v.(*task), nil
}

// mount builds a task and reads its stored completions. The store round
// trip happens outside mu so other tasks stay available meanwhile.
func (s *TaskService) mount(ctx context.Context, id string) (*task, error) {
	surface := render.NewLayerSurface()
	ov := overlay.New(overlay.Config{
		TaskID:       id,
		Surface:      surface,
		Renderer:     s.cfg.Renderer,
		Engine:       s.cfg.Engine,
		Fetcher:      s.cfg.Fetcher,
		ParseOptions: s.cfg.ParseOptions,
		Logger:       s.logger,
	})
	if err := ov.Mount(ctx); err != nil {
		return nil, err
	}
	t := &task{overlay: ov, surface: surface}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.tasks[id]; ok {
		return existing, nil
	}
	s.tasks[id] = t
	metrics.ActiveOverlays.Inc()
	return t, nil
}

func (s *TaskService) get(id string) (*task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return t, nil
}

// IDs returns the ids of the tasks held in memory.
func (s *TaskService) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.tasks))
	for id := range s.tasks {
		ids = append(ids, id)
	}
	return ids
}

// LoadSource loads a file from the source library into a task.
func (s *TaskService) LoadSource(ctx context.Context, id, name string) (TaskView, error) {
	if s.cfg.Sources == nil {
		return TaskView{}, fmt.Errorf("%w: no source library", ErrSourceNotFound)
	}
	data, err := s.cfg.Sources.Open(name)
	if err != nil {
		return TaskView{}, err
	}
	return s.load(ctx, id, overlay.Source{Filename: name, Data: data})
}

// LoadURL downloads a survey file into a task.
func (s *TaskService) LoadURL(ctx context.Context, id, rawURL string) (TaskView, error) {
	return s.load(ctx, id, overlay.Source{URL: rawURL})
}

// LoadBytes loads uploaded bytes into a task.
func (s *TaskService) LoadBytes(ctx context.Context, id, filename string, data []byte) (TaskView, error) {
	return s.load(ctx, id, overlay.Source{Filename: filename, Data: data})
}

func (s *TaskService) load(ctx context.Context, id string, src overlay.Source) (TaskView, error) {
	t, err := s.ensure(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	err = t.overlay.Load(ctx, src)
	switch {
	case errors.Is(err, overlay.ErrSuperseded):
		return s.view(t), err
	case err != nil:
		s.cfg.Bus.Publish(Event{Resource: ResourceTasks, Action: ActionFailed, TaskID: id})
		return s.view(t), err
	}
	s.cfg.Bus.Publish(Event{Resource: ResourceTasks, Action: ActionLoaded, TaskID: id})
	return s.view(t), nil
}

// Open returns a task's state, creating an empty task on first use.
func (s *TaskService) Open(ctx context.Context, id string) (TaskView, error) {
	t, err := s.ensure(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	return s.view(t), nil
}

// Get returns a task's state.
func (s *TaskService) Get(id string) (TaskView, error) {
	t, err := s.get(id)
	if err != nil {
		return TaskView{}, err
	}
	return s.view(t), nil
}

func (s *TaskService) view(t *task) TaskView {
	v := TaskView{
		Snapshot: t.overlay.Snapshot(),
		Bounds:   BoundsOf(t.overlay.Document()),
	}
	if vp, ok := t.surface.Viewport(); ok {
		v.Viewport = &vp
	}
	return v
}

// SetPosition replaces the current position of a task; nil clears it.
func (s *TaskService) SetPosition(ctx context.Context, id string, pos *kmz.LatLng) (TaskView, error) {
	t, err := s.ensure(ctx, id)
	if err != nil {
		return TaskView{}, err
	}
	t.overlay.SetPosition(pos)
	s.cfg.Bus.Publish(Event{Resource: ResourceTasks, Action: ActionPosition, TaskID: id})
	return s.view(t), nil
}

// Points lists the task points of a task.
func (s *TaskService) Points(id string) ([]overlay.Point, error) {
	t, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return t.overlay.Points(), nil
}

// Complete presses a marker's completion action. confirmed carries the
// user's acknowledgment; without it the completion is declined.
func (s *TaskService) Complete(ctx context.Context, id, pointID string, confirmed bool) (proximity.Outcome, error) {
	t, err := s.get(id)
	if err != nil {
		return "", err
	}
	var confirm proximity.Confirmer = declineAll
	if confirmed {
		confirm = proximity.AlwaysConfirm
	}
	outcome, err := t.surface.Trigger(ctx, pointID, confirm)
	if errors.Is(err, render.ErrUnknownMarker) || errors.Is(err, overlay.ErrUnknownPoint) {
		return "", fmt.Errorf("%w: %s", ErrPointNotFound, pointID)
	}
	if err != nil {
		return "", err
	}
	// The completion event comes from the engine's notifier once persisted.
	return outcome, nil
}

// Completions returns the persisted completion ids of a task, loaded or not.
func (s *TaskService) Completions(ctx context.Context, id string) ([]string, error) {
	if !taskIDPattern.MatchString(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTaskID, id)
	}
	set, err := s.cfg.Engine.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return set.IDs(), nil
}

// Layer returns the drawn primitives of a task and their version.
func (s *TaskService) Layer(id string) (*geojson.FeatureCollection, uint64, error) {
	t, err := s.get(id)
	if err != nil {
		return nil, 0, err
	}
	return t.surface.FeatureCollection(), t.surface.Version(), nil
}

// Bus returns the event bus task changes are published on.
func (s *TaskService) Bus() *EventBus { return s.cfg.Bus }
