package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-survey/internal/humastar"
)

type InfoHandler struct {
	dataDir string
	store   string
	mode    string
}

func NewInfoHandler(dataDir, store, mode string) *InfoHandler {
	return &InfoHandler{dataDir: dataDir, store: store, mode: mode}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name          string   `json:"name" doc:"Service name"`
	Version       string   `json:"version" doc:"Service version"`
	DataDir       string   `json:"data_dir" doc:"Data directory path"`
	Store         string   `json:"store" doc:"Completion store driver"`
	ProximityMode string   `json:"proximity_mode" doc:"real or always-nearby"`
	Features      []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *humastar.EmptyInput) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:          "plat-survey",
		Version:       "0.1.0",
		DataDir:       h.dataDir,
		Store:         h.store,
		ProximityMode: h.mode,
		Features:      []string{"kmz", "kml", "proximity", "completion", "datastar"},
	}}, nil
}
