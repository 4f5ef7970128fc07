package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/jury/internal/core"
)

// previewResponse is what an import would do, without doing it.
type previewResponse[T any] struct {
	Accepted []T      `json:"accepted"`
	Rejected []string `json:"rejected"`
	Summary  string   `json:"summary"`
}

func newPreviewResponse[T any](report *core.ImportReport[T]) previewResponse[T] {
	accepted := report.Accepted
	if accepted == nil {
		accepted = []T{}
	}
	rejected := report.Rejected
	if rejected == nil {
		rejected = []string{}
	}
	return previewResponse[T]{Accepted: accepted, Rejected: rejected, Summary: report.Summary()}
}

// csvBody returns the CSV text of an import request: the raw body, or the
// "file" part of a multipart form. The body is capped at the configured
// size either way and streamed, never buffered whole.
func (s *Server) csvBody(w http.ResponseWriter, r *http.Request) (io.Reader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxBodySize)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		return r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: no file provided", core.ErrInvalidRequest)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", core.ErrInvalidRequest, err)
		}
		if part.FormName() == "file" {
			return part, nil
		}
	}
}

// hasHeader reads the hasHeader query parameter. Roster files carry a header
// unless told otherwise.
func hasHeader(r *http.Request) (bool, error) {
	v := r.URL.Query().Get("hasHeader")
	if v == "" {
		return true, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%w: hasHeader must be true or false, got %q", core.ErrInvalidRequest, v)
	}
	return b, nil
}

func (s *Server) handleDevpostImport(w http.ResponseWriter, r *http.Request) {
	body, err := s.csvBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.ImportDevpost(r.Context(), body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleDevpostPreview(w http.ResponseWriter, r *http.Request) {
	body, err := s.csvBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	report, err := s.service.PreviewDevpost(r.Context(), body)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newPreviewResponse(report))
}

func (s *Server) handleRosterImport(w http.ResponseWriter, r *http.Request) {
	header, err := hasHeader(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	body, err := s.csvBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	result, err := s.service.ImportRoster(r.Context(), body, header)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleRosterPreview(w http.ResponseWriter, r *http.Request) {
	header, err := hasHeader(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	body, err := s.csvBody(w, r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	report, err := s.service.PreviewRoster(r.Context(), body, header)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, newPreviewResponse(report))
}
