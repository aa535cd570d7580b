package api

import (
	"net/http"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/manifest"
	"github.com/matzehuels/rezls/pkg/query"
)

// cursorRequest names a place in an open document. Position wins over
// Offset when both are set.
type cursorRequest struct {
	URI      string             `json:"uri"`
	Position *manifest.Position `json:"position,omitempty"`
	Offset   *int               `json:"offset,omitempty"`
}

// cursor decodes a cursorRequest and returns its URI and byte offset.
func (s *Server) cursor(r *http.Request) (string, int, error) {
	var req cursorRequest
	if err := s.decode(r, &req); err != nil {
		return "", 0, err
	}
	switch {
	case req.Position != nil:
		off, err := s.ws.OffsetAt(req.URI, *req.Position)
		return req.URI, off, err
	case req.Offset != nil:
		return req.URI, *req.Offset, nil
	}
	return "", 0, rerrors.New(rerrors.ErrCodeInvalidInput, "position or offset is required")
}

func (s *Server) handleCompletion(w http.ResponseWriter, r *http.Request) {
	uri, off, err := s.cursor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items, err := s.ws.Completion(uri, off)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(items))
}

// handleHover answers null when there is nothing to show.
func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	uri, off, err := s.cursor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	h, err := s.ws.Hover(uri, off)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleDefinition(w http.ResponseWriter, r *http.Request) {
	uri, off, err := s.cursor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	locs, err := s.ws.Definition(uri, off)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(locs))
}

func (s *Server) handleReferences(w http.ResponseWriter, r *http.Request) {
	uri, off, err := s.cursor(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	locs, err := s.ws.References(uri, off)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(locs))
}

func (s *Server) handleDocumentSymbols(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	syms, err := s.ws.DocumentSymbols(req.URI)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(syms))
}

func (s *Server) handleWorkspaceSymbols(w http.ResponseWriter, r *http.Request) {
	syms, err := s.ws.WorkspaceSymbols(r.URL.Query().Get("query"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil[query.Symbol](syms))
}
