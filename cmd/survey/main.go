package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-survey/internal/config"
	"github.com/joeblew999/plat-survey/internal/kmz"
	"github.com/joeblew999/plat-survey/internal/logger"
	"github.com/joeblew999/plat-survey/internal/proximity"
	"github.com/joeblew999/plat-survey/internal/render"
	"github.com/joeblew999/plat-survey/internal/server"
	"github.com/joeblew999/plat-survey/internal/store"
)

// Options defines all CLI flags and env vars for the survey server.
// Flags: --host, --port, --data-dir, --config
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_DATA_DIR, SERVICE_CONFIG
type Options struct {
	Host    string `doc:"Host to bind to" default:"0.0.0.0"`
	Port    int    `doc:"Port to listen on" short:"p" default:"8087"`
	DataDir string `doc:"Directory for survey files and completions" default:".data"`
	Config  string `doc:"Path to survey.yaml (searched in . and ./configs when empty)"`
}

func loadSettings(opts *Options) (*config.Config, error) {
	return config.Load(opts.Config)
}

func newServer(ctx context.Context, opts *Options, settings *config.Config, log *slog.Logger) (*server.Server, error) {
	return server.New(ctx, server.Config{
		Host:     opts.Host,
		Port:     fmt.Sprintf("%d", opts.Port),
		DataDir:  opts.DataDir,
		Settings: settings,
		Logger:   log,
	})
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: .env: %v\n", err)
	}
	log := logger.Setup()

	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		hooks.OnStart(func() {
			defer close(done)

			settings, err := loadSettings(opts)
			if err != nil {
				fatal("Config error: %v", err)
			}
			srv, err := newServer(ctx, opts, settings, log)
			if err != nil {
				fatal("Startup error: %v", err)
			}
			defer srv.Close()

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Printf("plat-survey API server starting...\n")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Store:   %s\n", settings.Store.Driver)
			fmt.Printf("  Mode:    %s (%.0f m)\n", settings.Proximity.Mode, settings.Proximity.ThresholdMeters)
			fmt.Println()
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Printf("  Metrics: %s/metrics\n", baseURL)
			fmt.Println()

			httpServer := &http.Server{Addr: addr, Handler: srv, ReadHeaderTimeout: 10 * time.Second}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
				defer stop()
				return httpServer.Shutdown(shutdownCtx)
			})
			if err := g.Wait(); err != nil {
				log.Error("server stopped", "error", err)
			}
		})

		hooks.OnStop(func() {
			cancel()
			<-done
		})
	})

	cli.Root().Use = "survey"
	cli.Root().Short = "Field survey server for KMZ/KML task points"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			settings, err := loadSettings(opts)
			if err != nil {
				fatal("Config error: %v", err)
			}
			// The OpenAPI document never touches completions.
			settings.Store.Driver = store.DriverMemory
			settings.Notify.NATSURL = ""

			srv, err := newServer(cmd.Context(), opts, settings, log)
			if err != nil {
				fatal("Startup error: %v", err)
			}
			defer srv.Close()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			output, err := marshal(srv.OpenAPI(), useYAML)
			if err != nil {
				fatal("Error marshaling spec: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// parse subcommand: print the geometry of a survey file
	parseCmd := &cobra.Command{
		Use:   "parse FILE",
		Short: "Print the geometries extracted from a KMZ or KML file",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			settings, err := loadSettings(opts)
			if err != nil {
				fatal("Config error: %v", err)
			}
			doc, err := parseFile(cmd.Context(), args[0], settings)
			if err != nil {
				fatal("Parse error (%s): %v", kmz.ErrorKind(err), err)
			}

			useYAML, _ := cmd.Flags().GetBool("yaml")
			output, err := marshal(summarize(doc), useYAML)
			if err != nil {
				fatal("Error marshaling geometry: %v", err)
			}
			fmt.Println(string(output))
		}),
	}
	parseCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(parseCmd)

	// preview subcommand: braille map in the terminal
	previewCmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "Draw a survey file in the terminal with marker states",
		Args:  cobra.ExactArgs(1),
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			settings, err := loadSettings(opts)
			if err != nil {
				fatal("Config error: %v", err)
			}
			ctx := cmd.Context()
			doc, err := parseFile(ctx, args[0], settings)
			if err != nil {
				fatal("Parse error (%s): %v", kmz.ErrorKind(err), err)
			}

			flags := cmd.Flags()
			mode := settings.Mode()
			if s, _ := flags.GetString("mode"); s != "" {
				if mode, err = proximity.ParseMode(s); err != nil {
					fatal("%v", err)
				}
			}

			frame := render.Frame{Document: doc}
			if flags.Changed("lat") && flags.Changed("lng") {
				lat, _ := flags.GetFloat64("lat")
				lng, _ := flags.GetFloat64("lng")
				frame.Position = &kmz.LatLng{Lat: lat, Lng: lng}
			}
			if taskID, _ := flags.GetString("task"); taskID != "" {
				frame.Completed, err = loadCompletions(ctx, opts, settings, taskID)
				if err != nil {
					fatal("Completions error: %v", err)
				}
			}

			width, _ := flags.GetInt("width")
			height, _ := flags.GetInt("height")
			surface := render.NewTermSurface(width, height)
			r := render.New(render.Config{
				Classifier: proximity.NewClassifier(settings.Proximity.ThresholdMeters, mode),
				PaddingPx:  settings.Render.PaddingPx,
				Logger:     log,
			})
			stats := r.Render(surface, frame)

			fmt.Print(surface.String())
			fmt.Printf("\n%d points (%d done, %d at location), %d lines, %d areas", stats.Markers, stats.Done, stats.AtLocation, stats.Polylines, stats.Polygons)
			if doc.Dropped > 0 {
				fmt.Printf(", %d placemarks dropped", doc.Dropped)
			}
			fmt.Println()
		}),
	}
	previewCmd.Flags().Float64("lat", 0, "Current latitude")
	previewCmd.Flags().Float64("lng", 0, "Current longitude")
	previewCmd.Flags().Int("width", 72, "Map width in terminal cells")
	previewCmd.Flags().Int("height", 20, "Map height in terminal cells")
	previewCmd.Flags().String("mode", "", "Proximity mode: real or always-nearby (default from config)")
	previewCmd.Flags().String("task", "", "Show completions recorded for this task id")
	cli.Root().AddCommand(previewCmd)

	cli.Run()
}

func marshal(v any, useYAML bool) ([]byte, error) {
	if useYAML {
		return yaml.Marshal(v)
	}
	return json.MarshalIndent(v, "", "  ")
}

func parseFile(ctx context.Context, path string, settings *config.Config) (*kmz.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return kmz.Parse(ctx, data, filepath.Base(path), kmz.WithMaxMarkupBytes(settings.Archive.MaxMarkupBytes))
}

func loadCompletions(ctx context.Context, opts *Options, settings *config.Config, taskID string) (proximity.CompletionSet, error) {
	st, err := store.Open(ctx, store.Config{
		Driver:      settings.Store.Driver,
		DataDir:     opts.DataDir,
		RedisURL:    settings.Store.RedisURL,
		KeyPrefix:   settings.Store.KeyPrefix,
		PostgresDSN: settings.Store.PostgresDSN,
	})
	if err != nil {
		return proximity.CompletionSet{}, err
	}
	defer st.Close()
	return proximity.NewEngine(st, nil, nil).Load(ctx, taskID)
}

type summary struct {
	Format     kmz.Format     `json:"format" yaml:"format"`
	Source     string         `json:"source" yaml:"source"`
	Placemarks int            `json:"placemarks" yaml:"placemarks"`
	Dropped    int            `json:"dropped" yaml:"dropped"`
	Bounds     *bounds        `json:"bounds,omitempty" yaml:"bounds,omitempty"`
	Geometries []kmz.Geometry `json:"geometries" yaml:"geometries"`
}

type bounds struct {
	Min kmz.LatLng `json:"min" yaml:"min"`
	Max kmz.LatLng `json:"max" yaml:"max"`
}

func summarize(doc *kmz.Document) summary {
	s := summary{
		Format:     doc.Format,
		Source:     doc.Source,
		Placemarks: doc.Placemarks,
		Dropped:    doc.Dropped,
		Geometries: append([]kmz.Geometry(nil), doc.Geometries...),
	}
	if doc.Bounds.Valid() {
		s.Bounds = &bounds{
			Min: kmz.LatLng{Lat: doc.Bounds.MinLat(), Lng: doc.Bounds.MinLng()},
			Max: kmz.LatLng{Lat: doc.Bounds.MaxLat(), Lng: doc.Bounds.MaxLng()},
		}
	}
	for i := range s.Geometries {
		s.Geometries[i].Description = render.PlainDescription(s.Geometries[i].Description)
	}
	return s
}
