package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/observability"
)

// requestLogger logs each request and reports it to the HTTP hooks.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		observability.HTTP().OnRequest(r.Context(), r.Method, r.URL.Path)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		observability.HTTP().OnResponse(r.Context(), r.Method, routePattern(r), status, elapsed)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()),
		}
		if status >= http.StatusInternalServerError {
			s.logger.Warn("request failed", fields...)
		} else {
			s.logger.Debug("request", fields...)
		}
	})
}

// recoverer turns a handler panic into a 500 with an INTERNAL error body.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				if rec != nil {
					panic(rec)
				}
				return
			}
			err := rerrors.New(rerrors.ErrCodeInternal, "internal error: %v", rec)
			s.logger.Error("handler panic",
				"path", r.URL.Path,
				"panic", fmt.Sprint(rec),
				"request_id", middleware.GetReqID(r.Context()),
				"stack", string(debug.Stack()))
			observability.HTTP().OnError(r.Context(), r.Method, r.URL.Path, err)
			writeError(w, err)
		}()
		next.ServeHTTP(w, r)
	})
}

// routePattern returns the matched route, e.g. /v1/packages/{name}, so
// hooks see a bounded set of paths.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
