package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	rerrors "github.com/matzehuels/rezls/pkg/errors"
	"github.com/matzehuels/rezls/pkg/observability"
)

type errorBody struct {
	Error errorInfo `json:"error"`
}

type errorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retriable bool   `json:"retriable"`
}

// statusOf maps an error code to an HTTP status.
func statusOf(code rerrors.Code) int {
	switch code {
	case rerrors.ErrCodeInvalidInput, rerrors.ErrCodeInvalidPackage, rerrors.ErrCodeInvalidPath,
		rerrors.ErrCodeInvalidURI, rerrors.ErrCodeParse, rerrors.ErrCodeValidation,
		rerrors.ErrCodeConfig, rerrors.ErrCodeUnsupported:
		return http.StatusBadRequest
	case rerrors.ErrCodeNotFound, rerrors.ErrCodePackageNotFound, rerrors.ErrCodeDocumentNotFound:
		return http.StatusNotFound
	case rerrors.ErrCodeConflict, rerrors.ErrCodeCycle:
		return http.StatusUnprocessableEntity
	case rerrors.ErrCodeCanceled:
		return http.StatusConflict
	case rerrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeStatus(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: errorInfo{Code: code, Message: msg}})
}

func writeError(w http.ResponseWriter, err error) {
	code := rerrors.GetCode(err)
	if code == "" {
		code = rerrors.ErrCodeInternal
	}
	writeJSON(w, statusOf(code), errorBody{Error: errorInfo{
		Code:      string(code),
		Message:   rerrors.UserMessage(err),
		Retriable: rerrors.Retriable(err),
	}})
}

// fail reports err to the hooks and writes it.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	observability.HTTP().OnError(r.Context(), r.Method, routePattern(r), err)
	if statusOf(rerrors.GetCode(err)) >= http.StatusInternalServerError {
		s.logger.Error("request error", "path", r.URL.Path, "err", err)
	}
	writeError(w, err)
}

// decode reads a JSON body into v. Unknown fields are rejected.
func (s *Server) decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, s.maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return rerrors.New(rerrors.ErrCodeInvalidInput, "request body is empty")
		}
		return rerrors.New(rerrors.ErrCodeInvalidInput, "invalid JSON body: %v", err)
	}
	return nil
}
