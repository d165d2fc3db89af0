package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/joeblew999/plat-survey/internal/api"
	"github.com/joeblew999/plat-survey/internal/api/mapview"
	"github.com/joeblew999/plat-survey/internal/config"
	"github.com/joeblew999/plat-survey/internal/humastar"
	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/logger"
	"github.com/joeblew999/plat-survey/internal/metrics"
	"github.com/joeblew999/plat-survey/internal/notify"
	"github.com/joeblew999/plat-survey/internal/overlay"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/render"
	"github.com/joeblew999/plat-survey/internal/service"
	"github.com/joeblew999/plat-survey/internal/store"
	"github.com/joeblew999/plat-survey/internal/templates"
)

// Config holds the server configuration.
type Config struct {
	Host    string
	Port    string
	DataDir string

	// Settings are the domain settings; nil uses config defaults.
	Settings *config.Config
	Logger   *slog.Logger
}

// Server is the survey HTTP server.
type Server struct {
	config   Config
	mux      *http.ServeMux
	humaAPI  huma.API
	services *api.Services
	renderer *templates.Renderer
	store    store.Store
	nats     *notify.NATS
	logger   *slog.Logger
}

// New wires the completion store, notifiers and task service, then registers routes.
func New(ctx context.Context, cfg Config) (*Server, error) {
	if cfg.Settings == nil {
		settings, err := config.Load("")
		if err != nil {
			return nil, err
		}
		cfg.Settings = settings
	}
	settings := cfg.Settings
	log := logger.Or(cfg.Logger)

	mux := http.NewServeMux()

	// Create Huma API with humago (pure stdlib) adapter
	humaConfig := huma.DefaultConfig("plat-survey API", "1.0.0")
	humaConfig.Info.Description = "Field survey API: load KMZ/KML task files, track the surveyor's position and complete task points."
	humaConfig.Servers = []*huma.Server{
		{URL: fmt.Sprintf("http://%s:%s", cfg.Host, cfg.Port), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer())

	humaAPI := humago.New(mux, humaConfig)

	st, err := store.Open(ctx, store.Config{
		Driver:      settings.Store.Driver,
		DataDir:     cfg.DataDir,
		RedisURL:    settings.Store.RedisURL,
		KeyPrefix:   settings.Store.KeyPrefix,
		PostgresDSN: settings.Store.PostgresDSN,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", settings.Store.Driver, err)
	}

	s := &Server{
		config:  cfg,
		mux:     mux,
		humaAPI: humaAPI,
		store:   st,
		logger:  log,
	}

	bus := service.NewEventBus()
	notifiers := notify.Multi{notify.NewBus(bus)}
	if settings.Notify.NATSURL != "" {
		nc, err := notify.ConnectNATS(settings.Notify.NATSURL, settings.Notify.JetStream)
		if err != nil {
			st.Close()
			return nil, err
		}
		s.nats = nc
		notifiers = append(notifiers, nc)
		log.Info("publishing completions to nats", "url", settings.Notify.NATSURL, "jetstream", settings.Notify.JetStream)
	}

	// Fragment templates: embedded, optionally replaced from disk for dev.
	s.renderer = templates.Default()
	if dir := settings.Render.TemplatesDir; dir != "" {
		if err := s.renderer.Reload(dir); err != nil {
			log.Warn("keeping embedded templates", "dir", dir, "error", err)
		} else {
			log.Info("loaded fragment templates", "dir", dir)
		}
	}

	parseOpts := []kmz.Option{kmz.WithMaxMarkupBytes(settings.Archive.MaxMarkupBytes)}

	fetcher := overlay.NewHTTPFetcher(settings.Fetch.Timeout, settings.Fetch.ProxyTemplate)
	if settings.Fetch.MaxBytes > 0 {
		fetcher.MaxBytes = settings.Fetch.MaxBytes
	}

	sources := service.NewSourceService(cfg.DataDir)
	tasks := service.NewTaskService(service.TaskConfig{
		Renderer: render.New(render.Config{
			Classifier: proximity.NewClassifier(settings.Proximity.ThresholdMeters, settings.Mode()),
			PaddingPx:  settings.Render.PaddingPx,
			Templates:  s.renderer,
			Logger:     log,
		}),
		Engine:       proximity.NewEngine(st, notifiers, log),
		Fetcher:      fetcher,
		Sources:      sources,
		ParseOptions: parseOpts,
		Bus:          bus,
		Logger:       log,
	})

	s.services = &api.Services{
		Source:       sources,
		Tasks:        tasks,
		ParseOptions: parseOpts,
	}

	s.routes()
	return s, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Services returns the services behind the API handlers.
func (s *Server) Services() *api.Services {
	return s.services
}

// Close closes server resources.
func (s *Server) Close() error {
	var errs []error
	if s.nats != nil {
		errs = append(errs, s.nats.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

func (s *Server) routes() {
	// Register Huma REST API routes (OpenAPI-documented JSON endpoints)
	api.RegisterRoutes(s.humaAPI, s.services)
	api.NewInfoHandler(s.config.DataDir, s.config.Settings.Store.Driver, s.config.Settings.Proximity.Mode).
		RegisterRoutes(s.humaAPI)

	// Datastar map stream
	mapview.NewHandler(s.services.Tasks, s.renderer).RegisterRoutes(s.humaAPI)

	s.mux.Handle("/metrics", metrics.Handler())
	s.mux.HandleFunc("/", s.handleRoot)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "plat-survey",
		"status":  "running",
	})
}
