package api

import (
	"net/http"

	"github.com/matzehuels/rezls/internal/workspace"
	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/validate"
)

type openRequest struct {
	URI     string `json:"uri"`
	Version int    `json:"version"`
	Text    string `json:"text"`
}

type changeRequest struct {
	URI     string             `json:"uri"`
	Version int                `json:"version"`
	Changes []workspace.Change `json:"changes"`
}

type documentRequest struct {
	URI string `json:"uri"`
}

type validateRequest struct {
	URI  string `json:"uri"`
	Text string `json:"text"`
}

type diagnosticsResponse struct {
	URI         string                `json:"uri"`
	Version     int                   `json:"version,omitempty"`
	Kind        string                `json:"kind,omitempty"`
	Diagnostics []validate.Diagnostic `json:"diagnostics"`
	HasErrors   bool                  `json:"has_errors"`
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	uris := s.ws.Documents()
	docs := make([]workspace.Document, 0, len(uris))
	for _, uri := range uris {
		if d, ok := s.ws.Document(uri); ok {
			docs = append(docs, d)
		}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleOpen(w http.ResponseWriter, r *http.Request) {
	var req openRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ws.Open(req.URI, req.Version, []byte(req.Text)); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, workspace.Document{URI: req.URI, Version: req.Version})
}

func (s *Server) handleChange(w http.ResponseWriter, r *http.Request) {
	var req changeRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ws.Change(req.URI, req.Version, req.Changes); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, workspace.Document{URI: req.URI, Version: req.Version})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	uri := r.URL.Query().Get("uri")
	if uri == "" {
		s.fail(w, r, rerrors.New(rerrors.ErrCodeInvalidURI, "uri query parameter is required"))
		return
	}
	if _, ok := s.ws.Document(uri); !ok {
		s.fail(w, r, rerrors.New(rerrors.ErrCodeDocumentNotFound, "document %s is not open", uri))
		return
	}
	s.ws.CloseDocument(uri)
	w.WriteHeader(http.StatusNoContent)
}

// handleDiagnostics validates an open document now.
func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	diags, version, err := s.ws.Diagnostics(r.Context(), req.URI)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{
		URI:         req.URI,
		Version:     version,
		Kind:        validate.KindOf(req.URI).String(),
		Diagnostics: nonNil(diags),
		HasErrors:   validate.HasErrors(diags),
	})
}

// handleValidate validates text that need not be open.
func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := s.decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := rerrors.DocumentPath(req.URI); err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := s.ws.Validate(r.Context(), req.URI, []byte(req.Text))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, diagnosticsResponse{
		URI:         req.URI,
		Kind:        rep.Kind.String(),
		Diagnostics: nonNil(rep.Diagnostics),
		HasErrors:   validate.HasErrors(rep.Diagnostics),
	})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
