// Package api exposes a workspace over HTTP/JSON so that protocol adapters
// and scripts can drive it without linking Go code.
//
// Document queries take the document URI and a cursor, either as a byte
// offset or as a line and UTF-16 character position:
//
//	POST /v1/hover {"uri": "file:///pkgs/foo/1.0/package.py", "position": {"line": 3, "character": 14}}
//
// Errors are returned as {"error": {"code", "message", "retriable"}} with a
// status derived from the error code.
package api

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/rezls/internal/workspace"
)

// Options configures a Server.
type Options struct {
	Logger *log.Logger
	// MaxBodyBytes limits request bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64
}

// DefaultMaxBodyBytes bounds request bodies; manifests are small.
const DefaultMaxBodyBytes = 4 << 20

// Server serves a workspace.
type Server struct {
	ws      *workspace.Workspace
	logger  *log.Logger
	maxBody int64
	router  chi.Router
}

// New creates a server for ws.
func New(ws *workspace.Workspace, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = DefaultMaxBodyBytes
	}
	s := &Server{ws: ws, logger: opts.Logger, maxBody: opts.MaxBodyBytes}
	s.router = s.routes()
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)
		r.Get("/stats", s.handleStats)
		r.Get("/settings", s.handleGetSettings)
		r.Put("/settings", s.handleSetSettings)

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", s.handleListDocuments)
			r.Post("/", s.handleOpen)
			r.Patch("/", s.handleChange)
			r.Delete("/", s.handleClose)
		})
		r.Post("/diagnostics", s.handleDiagnostics)
		r.Post("/validate", s.handleValidate)

		r.Post("/completion", s.handleCompletion)
		r.Post("/hover", s.handleHover)
		r.Post("/definition", s.handleDefinition)
		r.Post("/references", s.handleReferences)
		r.Post("/symbols/document", s.handleDocumentSymbols)
		r.Get("/symbols/workspace", s.handleWorkspaceSymbols)

		r.Get("/packages", s.handleListPackages)
		r.Get("/packages/{name}", s.handlePackage)
		r.Get("/packages/{name}/references", s.handlePackageReferences)
		r.Get("/purl", s.handlePURL)

		r.Post("/resolve", s.handleResolve)
		r.Get("/tasks", s.handleTasks)
		r.Delete("/tasks/{id}", s.handleCancelTask)

		r.Get("/commands", s.handleCommands)
		r.Post("/commands/{name}", s.handleExecuteCommand)
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusNotFound, "NOT_FOUND", "no route for "+r.Method+" "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not allowed")
	})
	return r
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully.
// ready, when non-nil, receives the bound address once listening.
func (s *Server) ListenAndServe(ctx context.Context, addr string, ready func(net.Addr)) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	if ready != nil {
		ready(ln.Addr())
	}
	s.logger.Info("listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
