package receipt

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zombor/nfce-ingest/internal/nfce"
	"github.com/zombor/nfce-ingest/internal/scanning"
)

const (
	maxJSONBody   = int64(8 << 20)  // 8MB
	maxUploadSize = int64(20 << 20) // 20MB
)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeError maps service errors onto HTTP status codes
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *ValidationError
		perr *nfce.ParseError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Invalid request",
			"fields": verr.Fields,
		})
	case errors.As(err, &perr):
		code := http.StatusBadRequest
		if errors.Is(err, nfce.ErrInputTooLarge) {
			code = http.StatusRequestEntityTooLarge
		}
		writeJSON(w, code, map[string]string{
			"error": perr.Message,
			"kind":  string(perr.Kind),
		})
	case errors.Is(err, scanning.ErrUnsupported):
		writeJSON(w, http.StatusUnsupportedMediaType, map[string]string{
			"error": "Only text and PDF receipts are supported. Paste the receipt text or the access key instead.",
		})
	case errors.Is(err, scanning.ErrNoText):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "The PDF has no readable text. Paste the receipt text or the access key instead.",
		})
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "Submission not found"})
	default:
		slog.Error("Request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
}

// decodeBody reads a JSON request body into v
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Request body is too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return false
	}
	return true
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	io.WriteString(w, "ok")
}

// handleParse parses receipt text without storing it
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	outcome, err := s.service.Parse(req)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := outcome.Err(); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// handleCreateSubmission stores a pasted or decoded receipt text
func (s *Server) handleCreateSubmission(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := s.service.Submit(req)
	if err != nil {
		writeError(w, err)
		return
	}

	code := http.StatusCreated
	if result.Duplicate {
		code = http.StatusOK
	}
	writeJSON(w, code, result)
}

// handleUploadSubmission handles a receipt file upload
func (s *Server) handleUploadSubmission(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize+1<<20)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = "File is too large. Maximum size is 20MB."
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errorMsg})
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": errorMsg})
		return
	}
	defer f.Close()

	if header.Size > maxUploadSize {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "File is too large. Maximum size is 20MB.",
		})
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "Error reading file. Please try again.",
		})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		switch strings.ToLower(filepath.Ext(header.Filename)) {
		case ".txt":
			contentType = "text/plain"
		case ".pdf":
			contentType = "application/pdf"
		default:
			contentType = "application/octet-stream"
		}
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))

	source := nfce.Source(r.FormValue("source"))
	if source != "" && !source.Valid() {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Invalid request",
			"fields": map[string]string{"source": "oneof"},
		})
		return
	}

	result, err := s.service.SubmitFile(header.Filename, data, contentType, source)
	if err != nil {
		slog.Error("Error processing upload", "filename", header.Filename, "error", err)
		writeError(w, err)
		return
	}

	code := http.StatusCreated
	if result.Duplicate {
		code = http.StatusOK
	}
	writeJSON(w, code, result)
}

// queryInt reads a non-negative integer query parameter
func queryInt(r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// handleListSubmissions returns a page of submissions
func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	page, okPage := queryInt(r, "page")
	limit, okLimit := queryInt(r, "limit")
	if !okPage || !okLimit {
		corsError(w, "page and limit must be non-negative integers", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	filter := ListFilter{
		Status:  TriageStatus(q.Get("status")),
		Outcome: nfce.Status(q.Get("outcome")),
		Search:  q.Get("search"),
		Page:    page,
		Limit:   limit,
	}

	submissions, total, err := s.service.List(filter)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	writeJSON(w, http.StatusOK, submissions)
}

// handleGetSubmission returns a single submission
func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	submission, err := s.service.Get(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// handleFindByAccessKey returns the submission stored under an access key
func (s *Server) handleFindByAccessKey(w http.ResponseWriter, r *http.Request) {
	submission, err := s.service.FindByAccessKey(r.PathValue("key"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// handleUpdateSubmission changes the triage status of a submission
func (s *Server) handleUpdateSubmission(w http.ResponseWriter, r *http.Request) {
	var req UpdateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	submission, err := s.service.UpdateStatus(r.PathValue("id"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// handleReparseSubmission parses a stored submission again
func (s *Server) handleReparseSubmission(w http.ResponseWriter, r *http.Request) {
	submission, err := s.service.Reparse(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// handleGetSubmissionFile returns the original upload of a submission
func (s *Server) handleGetSubmissionFile(w http.ResponseWriter, r *http.Request) {
	data, contentType, err := s.service.GetFile(r.PathValue("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			corsError(w, "File not found", http.StatusNotFound)
			return
		}
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleDeleteSubmission deletes a submission
func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Delete(r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
