package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joeblew999/plat-survey/internal/config"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	settings, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	settings.Store.Driver = "memory"
	srv, err := New(context.Background(), Config{
		Host:     "localhost",
		Port:     "8087",
		DataDir:  t.TempDir(),
		Settings: settings,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		path string
		want string
	}{
		{"/", `"plat-survey"`},
		{"/health", `"ok"`},
		{"/api/v1/info", `"proximity_mode":"real"`},
		{"/api/v1/sources", `[]`},
		{"/openapi.json", `"plat-survey API"`},
		{"/metrics", "survey_overlay_active"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("body missing %s:\n%.400s", tt.want, rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d", rec.Code)
	}
}

func TestOpenAPIDocumentsTaskRoutes(t *testing.T) {
	srv := newTestServer(t)
	paths := srv.OpenAPI().Paths
	for _, p := range []string{
		"/api/v1/tasks/{taskId}/load",
		"/api/v1/tasks/{taskId}/points/{pointId}/complete",
		"/api/v1/map/{taskId}/events",
		"/api/v1/parse",
	} {
		if paths[p] == nil {
			t.Errorf("OpenAPI missing %s", p)
		}
	}
}

func TestNewRejectsUnreachableStore(t *testing.T) {
	settings, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	settings.Store.Driver = "bogus"
	if _, err := New(context.Background(), Config{DataDir: t.TempDir(), Settings: settings}); err == nil {
		t.Error("New accepted an unknown store driver")
	}
}
