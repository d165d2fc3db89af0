// Package mapview streams a task's map layer to Datastar clients over SSE.
package mapview

import (
	"context"
	"errors"
	"fmt"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-survey/internal/humastar"
	"github.com/joeblew999/plat-survey/internal/logger"
	"github.com/joeblew999/plat-survey/internal/metrics"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/service"
	"github.com/joeblew999/plat-survey/internal/templates"
)

// Handler streams task changes and accepts completion clicks from popups.
type Handler struct {
	tasks    *service.TaskService
	renderer *templates.Renderer
}

// NewHandler creates a map view handler. A nil renderer uses the built-in fragments.
func NewHandler(tasks *service.TaskService, renderer *templates.Renderer) *Handler {
	if renderer == nil {
		renderer = templates.Default()
	}
	return &Handler{tasks: tasks, renderer: renderer}
}

func (h *Handler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/map/{taskId}/events", h.Events,
		huma.OperationTags("map"),
	)
	huma.Post(api, "/api/v1/map/{taskId}/complete", h.Complete,
		huma.OperationTags("map"),
	)
}

type TaskInput struct {
	TaskID string `path:"taskId" doc:"Task identifier" example:"site-42"`
}

// Events pushes the layer of a task on connect and after every change to it.
func (h *Handler) Events(ctx context.Context, input *TaskInput) (*huma.StreamResponse, error) {
	if _, err := h.tasks.Open(ctx, input.TaskID); err != nil {
		if errors.Is(err, service.ErrInvalidTaskID) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("open task", err)
	}
	return humastar.Stream(func(sse humastar.SSE) {
		bus := h.tasks.Bus()
		ch := bus.SubscribeTask(input.TaskID)
		defer bus.Unsubscribe(ch)
		metrics.MapStreams.Inc()
		defer metrics.MapStreams.Dec()

		var sent uint64
		h.push(sse, input.TaskID, &sent)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-ch:
				if !ok {
					return
				}
				h.push(sse, input.TaskID, &sent)
				sse.DispatchCustomEvent("task-changed", map[string]any{
					"task":   ev.TaskID,
					"action": ev.Action,
					"id":     ev.ID,
				})
			}
		}
	}), nil
}

// push sends the layer when its version moved past the last one sent.
func (h *Handler) push(sse humastar.SSE, taskID string, sent *uint64) {
	view, err := h.tasks.Get(taskID)
	if err != nil {
		sse.Error(err.Error())
		return
	}
	fc, version, err := h.tasks.Layer(taskID)
	if err != nil {
		sse.Error(err.Error())
		return
	}
	if version != 0 && version == *sent {
		return
	}
	*sent = version

	signals := map[string]any{
		"state":        string(view.State),
		"layer":        fc,
		"layerVersion": version,
		"error":        view.Error,
	}
	if view.Viewport != nil {
		signals["viewport"] = view.Viewport
	}
	sse.Signals(signals)

	html, err := h.renderer.Render("task-summary", map[string]any{
		"TaskID":     view.TaskID,
		"State":      string(view.State),
		"Source":     view.Source,
		"Error":      view.Error,
		"Markers":    view.Stats.Markers,
		"Done":       view.Stats.Done,
		"AtLocation": view.Stats.AtLocation,
	})
	if err != nil {
		logger.L().Warn("task summary render failed", "task", taskID, "error", err)
		return
	}
	sse.Patch(html, "#task-summary")
}

type CompleteInput struct {
	TaskID string `path:"taskId" doc:"Task identifier" example:"site-42"`
	humastar.SignalsInput
}

// Complete handles the popup button. Signals: pointId and confirm.
func (h *Handler) Complete(ctx context.Context, input *CompleteInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	pointID := signals.String("pointId")
	if pointID == "" {
		return nil, huma.Error400BadRequest("pointId is required")
	}

	return humastar.Stream(func(sse humastar.SSE) {
		outcome, err := h.tasks.Complete(ctx, input.TaskID, pointID, signals.Bool("confirm"))
		switch {
		case errors.Is(err, service.ErrTaskNotFound), errors.Is(err, service.ErrPointNotFound):
			sse.Error(err.Error())
		case err != nil:
			sse.Error(fmt.Sprintf("could not complete %s: %v", pointID, err))
		case outcome == proximity.OutcomeCompleted:
			sse.Success(pointID + " completed")
			sse.Signals(map[string]any{"outcome": string(outcome), "pointId": pointID})
		default:
			sse.Signals(map[string]any{"outcome": string(outcome), "pointId": pointID})
		}
	}), nil
}
