// Package web serves a browser view of a report editing session: the slide
// text and a live preview, one input per placeholder, and actions to reset,
// generate and download the report.
package web

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"time"

	"github.com/flosch/pongo2/v6"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/goliatone/go-reportbuilder/pkg/model"
	"github.com/goliatone/go-reportbuilder/pkg/preview"
	"github.com/goliatone/go-reportbuilder/pkg/state"
	"github.com/goliatone/go-reportbuilder/pkg/workflow"
)

//go:embed templates/*.html
var templateFiles embed.FS

// Session is the part of the workflow controller the browser view drives.
type Session interface {
	Snapshot() state.WorkingState
	LoadConfig(ctx context.Context) error
	SetReplacement(key, value string) error
	GenerateReport(ctx context.Context) (model.Artifact, error)
	Subscribe(fn workflow.Observer) (cancel func())
}

// Server renders the page and exposes the session over HTTP.
type Server struct {
	session   Session
	health    func(context.Context) error
	downloads *Downloads
	logger    *zap.Logger
	page      *pongo2.Template
	themes    *Themes
	themeName string
	variant   string
	preview   preview.Options
	title     string
	upgrader  websocket.Upgrader
}

// Option configures the Server.
type Option func(*Server)

// WithDownloads sets the store the session's sink parks artifacts in. It must
// be the same value passed to the workflow controller as its sink.
func WithDownloads(d *Downloads) Option {
	return func(s *Server) {
		if d != nil {
			s.downloads = d
		}
	}
}

// WithHealthCheck sets the backend check behind /healthz, typically the
// API client's Health method.
func WithHealthCheck(fn func(context.Context) error) Option {
	return func(s *Server) {
		s.health = fn
	}
}

// WithLogger sets the request and stream logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTheme selects the theme and variant used for the page palette.
func WithTheme(themes *Themes, name, variant string) Option {
	return func(s *Server) {
		if themes != nil {
			s.themes = themes
		}
		s.themeName = name
		s.variant = variant
	}
}

// WithPreviewOptions overrides the slide card layout.
func WithPreviewOptions(opts preview.Options) Option {
	return func(s *Server) {
		s.preview = opts
	}
}

// WithTitle sets the page heading.
func WithTitle(title string) Option {
	return func(s *Server) {
		if title != "" {
			s.title = title
		}
	}
}

// New builds a server for session.
func New(session Session, options ...Option) (*Server, error) {
	if session == nil {
		return nil, errors.New("web: session is required")
	}
	s := &Server{
		session: session,
		logger:  zap.NewNop(),
		preview: preview.DefaultOptions(),
		title:   "PowerPoint Report Builder",
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(s)
	}
	if s.downloads == nil {
		s.downloads = NewDownloads()
	}
	if s.themes == nil {
		themes, err := NewThemes()
		if err != nil {
			return nil, err
		}
		s.themes = themes
	}

	sub, err := fs.Sub(templateFiles, "templates")
	if err != nil {
		return nil, fmt.Errorf("web: templates: %w", err)
	}
	set := pongo2.NewSet("reportbuilder", pongo2.NewFSLoader(sub))
	page, err := set.FromFile("page.html")
	if err != nil {
		return nil, fmt.Errorf("web: parse page template: %w", err)
	}
	s.page = page
	return s, nil
}

// Downloads returns the artifact store.
func (s *Server) Downloads() *Downloads {
	return s.downloads
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))

	r.Get("/", s.handleIndex)
	r.Post("/replacements", s.handleReplacements)
	r.Post("/reset", s.handleReset)
	r.Post("/generate", s.handleGenerate)
	r.Get("/downloads/{token}", s.handleDownload)
	r.Get("/preview.svg", s.handlePreview)
	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Post("/replacements", s.handleAPIReplacement)
	})
	r.Get("/ws", s.handleWS)

	return r
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
