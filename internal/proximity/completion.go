package proximity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeblew999/plat-survey/internal/logger"
)

// Store persists completion sets per task. Implementations live in internal/store.
// Put adds the ids in set; it never removes ids already recorded.
type Store interface {
	Get(ctx context.Context, taskID string) (CompletionSet, error)
	Put(ctx context.Context, taskID string, set CompletionSet) error
}

// PointCompleted is emitted once a point has been persisted as completed.
type PointCompleted struct {
	TaskID      string    `json:"taskId"`
	PointID     string    `json:"pointId"`
	Name        string    `json:"name"`
	Lat         float64   `json:"lat"`
	Lng         float64   `json:"lng"`
	CompletedAt time.Time `json:"completedAt"`
}

// Notifier is told about completed points.
type Notifier interface {
	PointCompleted(ctx context.Context, ev PointCompleted) error
}

// CompleteFunc is the host callback for completed points. It satisfies Notifier.
type CompleteFunc func(pointID, name string, lat, lng float64)

func (f CompleteFunc) PointCompleted(ctx context.Context, ev PointCompleted) error {
	f(ev.PointID, ev.Name, ev.Lat, ev.Lng)
	return nil
}

// CompletionRequest describes the point a user wants to mark complete.
type CompletionRequest struct {
	TaskID  string
	PointID string
	Name    string
	Lat     float64
	Lng     float64
}

// Confirmer asks the user to acknowledge a completion before it is recorded.
type Confirmer interface {
	Confirm(ctx context.Context, req CompletionRequest) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, req CompletionRequest) (bool, error)

func (f ConfirmFunc) Confirm(ctx context.Context, req CompletionRequest) (bool, error) {
	return f(ctx, req)
}

// AlwaysConfirm is for callers whose request already carries the user's acknowledgment.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, CompletionRequest) (bool, error) {
	return true, nil
})

// Outcome reports what CompletePoint did.
type Outcome string

const (
	OutcomeCompleted        Outcome = "completed"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeDeclined         Outcome = "declined"
)

// ErrNoConfirmer is returned when CompletePoint is called without a Confirmer.
var ErrNoConfirmer = errors.New("proximity: completion requires a confirmer")

// Engine records point completions through the injected store and notifier.
type Engine struct {
	store    Store
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewEngine creates an engine. notifier and logger may be nil.
func NewEngine(store Store, notifier Notifier, log *slog.Logger) *Engine {
	return &Engine{store: store, notifier: notifier, logger: logger.Or(log), now: time.Now}
}

// Load reads the persisted completion set for a task.
func (e *Engine) Load(ctx context.Context, taskID string) (CompletionSet, error) {
	set, err := e.store.Get(ctx, taskID)
	if err != nil {
		return CompletionSet{}, fmt.Errorf("load completions for %s: %w", taskID, err)
	}
	return set, nil
}

// CompletePoint adds req.PointID to set once the confirmer agrees.
//
// A point already in set is reported as OutcomeAlreadyCompleted without
// persisting anything. On success the new set is stored before the notifier
// runs; a store failure returns the original set.
func (e *Engine) CompletePoint(ctx context.Context, set CompletionSet, req CompletionRequest, confirm Confirmer) (CompletionSet, Outcome, error) {
	if set.Has(req.PointID) {
		return set, OutcomeAlreadyCompleted, nil
	}
	if confirm == nil {
		return set, "", ErrNoConfirmer
	}

	ok, err := confirm.Confirm(ctx, req)
	if err != nil {
		return set, "", fmt.Errorf("confirm %s: %w", req.PointID, err)
	}
	if !ok {
		return set, OutcomeDeclined, nil
	}

	next := set.With(req.PointID)
	if err := e.store.Put(ctx, req.TaskID, next); err != nil {
		return set, "", fmt.Errorf("persist completion of %s: %w", req.PointID, err)
	}

	if e.notifier != nil {
		ev := PointCompleted{
			TaskID:      req.TaskID,
			PointID:     req.PointID,
			Name:        req.Name,
			Lat:         req.Lat,
			Lng:         req.Lng,
			CompletedAt: e.now().UTC(),
		}
		if err := e.notifier.PointCompleted(ctx, ev); err != nil {
			e.logger.Warn("point completion notification failed",
				"task", req.TaskID, "point", req.PointID, "error", err)
		}
	}

	e.logger.Info("point completed", "task", req.TaskID, "point", req.PointID, "name", req.Name)
	return next, OutcomeCompleted, nil
}
