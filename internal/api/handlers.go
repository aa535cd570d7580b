package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/rezls/internal/workspace"
	"github.com/matzehuels/rezls/pkg/buildinfo"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/io"
	"github.com/matzehuels/rezls/pkg/pipeline"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, buildinfo.Get())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Stats())
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Settings())
}

// handleSetSettings replaces the runtime settings. A change of search
// paths rescans before the response.
func (s *Server) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	var settings workspace.Settings
	if err := s.decode(r, &settings); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ws.Configure(r.Context(), settings); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ws.Settings())
}

type resolveRequest struct {
	Roots   []string `json:"roots"`
	Refresh bool     `json:"refresh,omitempty"`
	// Formats requests rendered artifacts (rxt, dot, svg, png, pdf).
	Formats  []string `json:"formats,omitempty"`
	Detailed bool     `json:"detailed,omitempty"`
}

type resolveResponse struct {
	TaskID     string            `json:"task_id,omitempty"`
	Cached     bool              `json:"cached"`
	Generation uint64            `json:"generation"`
	Digest     string            `json:"digest"`
	Steps      int               `json:"steps"`
	Duration   string            `json:"duration"`
	Context    *io.Context       `json:"context"`
	Artifacts  map[string][]byte `json:"artifacts,omitempty"`
}

func newResolveResponse(result *workspace.ResolveResult) resolveResponse {
	res := result.Resolution
	return resolveResponse{
		TaskID:     result.TaskID,
		Cached:     result.Cached,
		Generation: res.Generation,
		Digest:     res.Digest,
		Steps:      res.Steps,
		Duration:   res.Duration.Round(time.Microsecond).String(),
		Context:    io.FromResolution(res),
	}
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := pipeline.ValidateFormats(req.Formats); err != nil {
		s.fail(w, r, rerrors.New(rerrors.ErrCodeInvalidInput, "%v", err))
		return
	}
	result, err := s.ws.Resolve(r.Context(), req.Roots, workspace.ResolveOptions{Refresh: req.Refresh})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := newResolveResponse(result)
	if len(req.Formats) > 0 {
		resp.Artifacts, err = pipeline.Render(r.Context(), resp.Context, result.Resolution, pipeline.Options{
			Formats:  req.Formats,
			Detailed: req.Detailed,
		})
		if err != nil {
			s.fail(w, r, rerrors.Wrap(rerrors.ErrCodeInternal, err, "render"))
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ws.Tasks())
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.ws.CancelTask(id) {
		s.fail(w, r, rerrors.New(rerrors.ErrCodeNotFound, "no running task %s", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, workspace.Commands())
}

type commandRequest struct {
	Args []string `json:"args"`
}

// handleExecuteCommand runs a workspace command. The body is optional.
func (s *Server) handleExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if r.ContentLength != 0 {
		if err := s.decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	out, err := s.ws.ExecuteCommand(r.Context(), chi.URLParam(r, "name"), req.Args)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if res, ok := out.(*workspace.ResolveResult); ok {
		out = newResolveResponse(res)
	}
	writeJSON(w, http.StatusOK, out)
}
