package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/paulmach/orb/geojson"

	"github.com/joeblew999/plat-survey/internal/humastar"
	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/overlay"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/service"
)

// Types

type TaskIDInput struct {
	TaskID string `path:"taskId" doc:"Task identifier" example:"site-42" pattern:"^[A-Za-z0-9_-]{1,64}$"`
}

type LoadBody struct {
	Source string `json:"source,omitempty" doc:"File name in the source library" example:"tiang-jakarta.kmz"`
	URL    string `json:"url,omitempty" doc:"URL to download the survey file from" format:"uri"`
}

type PositionBody struct {
	Lat float64 `json:"lat" minimum:"-90" maximum:"90" doc:"Latitude in degrees" example:"-6.2088"`
	Lng float64 `json:"lng" minimum:"-180" maximum:"180" doc:"Longitude in degrees" example:"106.8456"`
}

type CompleteBody struct {
	Confirm bool `json:"confirm" doc:"The user acknowledged the completion prompt"`
}

type CompleteResult struct {
	PointID string            `json:"pointId" doc:"Point identity"`
	Outcome proximity.Outcome `json:"outcome" doc:"What happened" enum:"completed,already_completed,declined"`
}

type CompletionsBody struct {
	TaskID    string   `json:"taskId"`
	Completed []string `json:"completed" doc:"Completed point identities, sorted"`
}

type LayerBody struct {
	Version  uint64                     `json:"version" doc:"Increases on every redraw"`
	Features *geojson.FeatureCollection `json:"features" doc:"Drawn primitives; style and popup are feature properties"`
}

// TaskBody is a task view with its hypermedia actions.
type TaskBody struct {
	service.TaskView
}

var taskActions = []humastar.ActionDef{
	{Rel: "load", Pattern: "/api/v1/tasks/%s/load", Method: http.MethodPost, Title: "Load a survey file"},
	{Rel: "position", Pattern: "/api/v1/tasks/%s/position", Method: http.MethodPut, Title: "Set the current position"},
	{Rel: "events", Pattern: "/api/v1/map/%s/events", Method: http.MethodGet, Title: "Stream map updates"},
}

var readyActions = []humastar.ActionDef{
	{Rel: "points", Pattern: "/api/v1/tasks/%s/points", Method: http.MethodGet, Title: "List task points"},
	{Rel: "layer", Pattern: "/api/v1/tasks/%s/layer", Method: http.MethodGet, Title: "Map layer"},
}

// Actions lists what the client can do with the task in its current state.
func (b TaskBody) Actions() []humastar.Action {
	actions := humastar.ActionsFor(b.TaskID, taskActions)
	if b.State == overlay.StateReady {
		actions = append(actions, humastar.ActionsFor(b.TaskID, readyActions)...)
	}
	return actions
}

type TaskOutput struct {
	Body TaskBody
}

// RegisterTasks registers task overlay routes.
func (h *APIHandler) RegisterTasks(api huma.API) {
	huma.Get(api, "/api/v1/tasks", h.ListTasks, huma.OperationTags("tasks"))
	huma.Post(api, "/api/v1/tasks/{taskId}/load", h.LoadTask, huma.OperationTags("tasks"))
	huma.Register(api, huma.Operation{
		OperationID:  "upload-task",
		Method:       http.MethodPost,
		Path:         "/api/v1/tasks/{taskId}/upload",
		Summary:      "Load an uploaded KMZ or KML file into a task",
		Tags:         []string{"tasks"},
		MaxBodyBytes: MaxUploadBytes,
	}, h.UploadTask)
	huma.Get(api, "/api/v1/tasks/{taskId}", h.GetTask, huma.OperationTags("tasks"))
	huma.Put(api, "/api/v1/tasks/{taskId}/position", h.PutPosition, huma.OperationTags("tasks"))
	huma.Delete(api, "/api/v1/tasks/{taskId}/position", h.DeletePosition, huma.OperationTags("tasks"))
	huma.Get(api, "/api/v1/tasks/{taskId}/points", h.GetPoints, huma.OperationTags("tasks"))
	huma.Post(api, "/api/v1/tasks/{taskId}/points/{pointId}/complete", h.CompletePoint, huma.OperationTags("tasks"))
	huma.Get(api, "/api/v1/tasks/{taskId}/completions", h.GetCompletions, huma.OperationTags("tasks"))
	huma.Get(api, "/api/v1/tasks/{taskId}/layer", h.GetLayer, huma.OperationTags("tasks"))
}

// Handlers

func (h *APIHandler) tasks() (*service.TaskService, error) {
	if h.svc == nil || h.svc.Tasks == nil {
		return nil, huma.Error503ServiceUnavailable("task service not available")
	}
	return h.svc.Tasks, nil
}

func (h *APIHandler) ListTasks(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body []string }, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	return &struct{ Body []string }{Body: ts.IDs()}, nil
}

func (h *APIHandler) LoadTask(ctx context.Context, input *struct {
	TaskIDInput
	Body LoadBody
}) (*TaskOutput, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	var view service.TaskView
	switch {
	case input.Body.Source != "" && input.Body.URL != "":
		return nil, huma.Error400BadRequest("give either source or url, not both")
	case input.Body.Source != "":
		view, err = ts.LoadSource(ctx, input.TaskID, input.Body.Source)
	case input.Body.URL != "":
		view, err = ts.LoadURL(ctx, input.TaskID, input.Body.URL)
	default:
		return nil, huma.Error400BadRequest("source or url is required")
	}
	if err != nil {
		return nil, toHumaError(err)
	}
	return &TaskOutput{Body: TaskBody{view}}, nil
}

type UploadTaskInput struct {
	TaskIDInput
	Filename string `query:"filename" doc:"Original file name" example:"tiang-jakarta.kmz"`
	RawBody  []byte `contentType:"application/octet-stream"`
}

func (h *APIHandler) UploadTask(ctx context.Context, input *UploadTaskInput) (*TaskOutput, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("empty upload")
	}
	view, err := ts.LoadBytes(ctx, input.TaskID, input.Filename, input.RawBody)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &TaskOutput{Body: TaskBody{view}}, nil
}

func (h *APIHandler) GetTask(ctx context.Context, input *TaskIDInput) (*TaskOutput, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	view, err := ts.Get(input.TaskID)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &TaskOutput{Body: TaskBody{view}}, nil
}

func (h *APIHandler) PutPosition(ctx context.Context, input *struct {
	TaskIDInput
	Body PositionBody
}) (*TaskOutput, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	pos := kmz.LatLng{Lat: input.Body.Lat, Lng: input.Body.Lng}
	view, err := ts.SetPosition(ctx, input.TaskID, &pos)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &TaskOutput{Body: TaskBody{view}}, nil
}

func (h *APIHandler) DeletePosition(ctx context.Context, input *TaskIDInput) (*TaskOutput, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	view, err := ts.SetPosition(ctx, input.TaskID, nil)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &TaskOutput{Body: TaskBody{view}}, nil
}

func (h *APIHandler) GetPoints(ctx context.Context, input *TaskIDInput) (*struct{ Body []overlay.Point }, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	points, err := ts.Points(input.TaskID)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body []overlay.Point }{Body: points}, nil
}

func (h *APIHandler) CompletePoint(ctx context.Context, input *struct {
	TaskIDInput
	PointID string `path:"pointId" doc:"Point identity from the points list" example:"-6.208800,106.845600"`
	Body    CompleteBody
}) (*struct{ Body CompleteResult }, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	outcome, err := ts.Complete(ctx, input.TaskID, input.PointID, input.Body.Confirm)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body CompleteResult }{Body: CompleteResult{PointID: input.PointID, Outcome: outcome}}, nil
}

func (h *APIHandler) GetCompletions(ctx context.Context, input *TaskIDInput) (*struct{ Body CompletionsBody }, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	ids, err := ts.Completions(ctx, input.TaskID)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body CompletionsBody }{Body: CompletionsBody{TaskID: input.TaskID, Completed: ids}}, nil
}

func (h *APIHandler) GetLayer(ctx context.Context, input *TaskIDInput) (*struct{ Body LayerBody }, error) {
	ts, err := h.tasks()
	if err != nil {
		return nil, err
	}
	fc, version, err := ts.Layer(input.TaskID)
	if err != nil {
		return nil, toHumaError(err)
	}
	return &struct{ Body LayerBody }{Body: LayerBody{Version: version, Features: fc}}, nil
}
