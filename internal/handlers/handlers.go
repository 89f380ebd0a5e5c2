package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/VGachet/tapedit-server/internal/cleanup"
	"github.com/VGachet/tapedit-server/internal/config"
	"github.com/VGachet/tapedit-server/internal/jobs"
	"github.com/VGachet/tapedit-server/templates"

	"github.com/a-h/templ"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// multipartMemory is how much of an upload ParseMultipartForm keeps in RAM
// before spilling to disk.
const multipartMemory = 32 << 20

// EngineProbe reports whether the transcoding engine is installed.
type EngineProbe interface {
	Available() bool
}

type App struct {
	logger *slog.Logger

	router  *chi.Mux
	jobs    *jobs.Service
	engine  EngineProbe
	version string

	apiKey         string
	tempDir        string
	maxUploadBytes int64
	origins        originPolicy

	upgrader websocket.Upgrader

	inflight sync.WaitGroup
}

func NewApp(logger *slog.Logger, cfg *config.Config, svc *jobs.Service, engine EngineProbe, version string) *App {
	app := &App{
		logger:         logger,
		router:         chi.NewRouter(),
		jobs:           svc,
		engine:         engine,
		version:        version,
		apiKey:         cfg.APIKey,
		tempDir:        cfg.TempDir,
		maxUploadBytes: cfg.MaxUploadBytes(),
		origins:        newOriginPolicy(cfg.AllowedOrigins),
	}
	app.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || app.origins.allows(origin)
		},
	}

	app.registerRoutes()
	return app
}

func (a *App) Router() http.Handler {
	return a.router
}

// Drain waits until every conversion handler has returned, which includes
// releasing its temp files, or until ctx is done.
func (a *App) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *App) registerRoutes() {
	a.router.Use(middleware.RequestID)
	a.router.Use(middleware.RealIP)
	a.router.Use(a.requestLogger)
	a.router.Use(middleware.Recoverer)
	a.router.Use(a.corsMiddleware)

	a.router.Get("/", a.index)
	a.router.Get("/health", a.health)
	a.router.Handle("/metrics", promhttp.Handler())

	a.router.Group(func(r chi.Router) {
		r.Use(a.requireAPIKey(false))
		r.Post("/convert", a.convert)
		r.Get("/progress/{id}", a.progress)
	})
	a.router.Group(func(r chi.Router) {
		r.Use(a.requireAPIKey(true))
		r.Get("/ws/progress/{id}", a.progressWS)
	})
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
	FFmpeg    bool   `json:"ffmpeg"`
	DiskFree  uint64 `json:"temp_disk_free_bytes,omitempty"`
}

func (a *App) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   a.version,
		FFmpeg:    a.engine.Available(),
	}
	if free, err := cleanup.DiskFree(a.tempDir); err == nil {
		resp.DiskFree = free
	}
	a.respondJSON(w, http.StatusOK, resp)
}

func (a *App) index(w http.ResponseWriter, r *http.Request) {
	a.render(w, r, templates.IndexPage(a.maxUploadBytes/(1024*1024)))
}

func (a *App) render(w http.ResponseWriter, r *http.Request, component templ.Component) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := component.Render(r.Context(), w); err != nil {
		a.logger.Error("failed to render template", "error", err)
		http.Error(w, "failed to render page", http.StatusInternalServerError)
	}
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func (a *App) respondError(w http.ResponseWriter, code int, msg, details string) {
	a.respondJSON(w, code, errorResponse{Error: msg, Details: details})
}

func (a *App) respondJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("failed to encode json", "error", err)
	}
}
