// Package server serves the local web UI and a small JSON API over the
// session store.
package server

import (
	"context"
	"embed"
	"html/template"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/underwriter/internal/config"
	"github.com/hyperjump/underwriter/internal/highlight"
	"github.com/hyperjump/underwriter/internal/session"
	"github.com/hyperjump/underwriter/internal/workbench"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

// maxUploadBytes bounds a multipart policy upload.
const maxUploadBytes = 64 << 20

// WatchService is the inbox watcher as seen by the server.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the web UI.
type Server struct {
	store      *session.Store
	wb         *workbench.Workbench
	config     *config.ServerConfig
	extensions []string
	logger     *zap.Logger
	watch      WatchService
	tmpl       *template.Template
	server     *http.Server
	// scrollTo is the page the next render scrolls to in all-pages mode.
	scrollTo atomic.Int64
}

// NewServer creates a server over store. watch may be nil when the inbox
// watcher is disabled. wbOpts are applied to the page workbench after the
// server's own.
func NewServer(
	store *session.Store,
	cfg *config.ServerConfig,
	extensions []string,
	logger *zap.Logger,
	watch WatchService,
	wbOpts ...workbench.Option,
) *Server {
	s := &Server{
		store:      store,
		config:     cfg,
		extensions: extensions,
		logger:     logger,
		watch:      watch,
	}
	s.wb = workbench.New(store, append([]workbench.Option{
		workbench.WithLogger(logger),
		workbench.WithScroller(func(page int) { s.scrollTo.Store(int64(page)) }),
	}, wbOpts...)...)
	s.tmpl = template.Must(template.New("").Funcs(template.FuncMap{
		"join": strings.Join,
		"mark": highlight.HTML,
	}).ParseFS(templateFS, "templates/*.html"))
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/", s.handleIndex)
	r.Post("/claim", s.handleClaim)
	r.Post("/analyze", s.handleAnalyze)
	r.Post("/upload", s.handleUpload)
	r.Post("/citations/{index}/select", s.handleSelectCitation)
	r.Post("/policies/refresh", s.handleRefreshPolicies)
	r.Post("/viewer/prev", s.handleViewerPrev)
	r.Post("/viewer/next", s.handleViewerNext)
	r.Post("/viewer/mode", s.handleViewerMode)

	r.Get("/api/v1/state", s.handleState)
	r.Get("/api/v1/watch/directories", s.handleWatchDirectoriesList)
	r.Post("/api/v1/watch/directories", s.handleWatchDirectoriesAdd)
	r.Delete("/api/v1/watch/directories", s.handleWatchDirectoriesRemove)
	r.Get("/health", s.handleHealth)
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Addr()
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
