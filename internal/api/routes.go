// Package api defines the Huma API routes and handlers.
package api

import (
	"bytes"
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-survey/internal/humastar"
	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/service"
)

// Services holds the service dependencies for API handlers.
type Services struct {
	Source       *service.SourceService
	Tasks        *service.TaskService
	ParseOptions []kmz.Option
}

// MaxUploadBytes bounds raw survey file uploads.
const MaxUploadBytes = 128 << 20

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"API version" example:"1.0.0"`
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterRoutes registers every Register* method of the API handler.
func RegisterRoutes(api huma.API, svc *Services) {
	huma.AutoRegister(api, NewAPIHandler(svc))
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterSources registers source library routes.
func (h *APIHandler) RegisterSources(api huma.API) {
	huma.Get(api, "/api/v1/sources", h.GetSources, huma.OperationTags("sources"))
	huma.Register(api, huma.Operation{
		OperationID:   "upload-source",
		Method:        http.MethodPost,
		Path:          "/api/v1/sources/{filename}",
		Summary:       "Upload a KMZ or KML file to the source library",
		Tags:          []string{"sources"},
		MaxBodyBytes:  MaxUploadBytes,
		DefaultStatus: http.StatusCreated,
	}, h.UploadSource)
}

// RegisterParse registers the stateless parse route.
func (h *APIHandler) RegisterParse(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:  "parse",
		Method:       http.MethodPost,
		Path:         "/api/v1/parse",
		Summary:      "Extract the geometry of a KMZ or KML file",
		Tags:         []string{"parse"},
		MaxBodyBytes: MaxUploadBytes,
	}, h.Parse)
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: "1.0.0"}}, nil
}

func (h *APIHandler) GetSources(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body []service.SourceFile }, error) {
	if h.svc == nil || h.svc.Source == nil {
		return &struct{ Body []service.SourceFile }{Body: []service.SourceFile{}}, nil
	}
	sources, err := h.svc.Source.List()
	if err != nil {
		return nil, huma.Error500InternalServerError("list sources", err)
	}
	return &struct{ Body []service.SourceFile }{Body: sources}, nil
}

type UploadInput struct {
	Filename string `path:"filename" doc:"File name ending in .kmz or .kml" example:"tiang-jakarta.kmz"`
	RawBody  []byte `contentType:"application/octet-stream"`
}

func (h *APIHandler) UploadSource(ctx context.Context, input *UploadInput) (*struct{ Body service.SourceFile }, error) {
	if h.svc == nil || h.svc.Source == nil {
		return nil, huma.Error503ServiceUnavailable("source library not available")
	}
	if len(input.RawBody) == 0 {
		return nil, huma.Error400BadRequest("empty upload")
	}
	if kmz.DetectFormat(input.RawBody, "") == kmz.FormatUnknown {
		return nil, huma.Error422UnprocessableEntity("not a KMZ or KML file")
	}
	file, err := h.svc.Source.Save(input.Filename, bytes.NewReader(input.RawBody))
	if err != nil {
		return nil, toHumaError(err)
	}
	if h.svc.Tasks != nil {
		h.svc.Tasks.Bus().Publish(service.Event{Resource: service.ResourceSources, Action: service.ActionUploaded, ID: file.Name})
	}
	return &struct{ Body service.SourceFile }{Body: file}, nil
}
