package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/history"
	"github.com/spigell/mission-matcher/internal/importer"
	"github.com/spigell/mission-matcher/internal/matching"
	"github.com/spigell/mission-matcher/internal/store"
)

const defaultHistoryLimit = 20

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message, Code: http.StatusText(status)})
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case matching.IsInputError(err),
		errors.Is(err, store.ErrInvalidInput),
		errors.Is(err, importer.ErrEmptyFile),
		errors.Is(err, importer.ErrNoName):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, matching.ErrMissingCredentials):
		return http.StatusServiceUnavailable
	case errors.Is(err, matching.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusInternalServerError:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		message = "internal error"
	case http.StatusServiceUnavailable:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		message = "matching is not configured on this server"
	case http.StatusGatewayTimeout:
		message = "the search took too long, try again: progress so far is kept"
	}
	respondError(w, status, message)
}

type searchRequest struct {
	Mission    string                `json:"mission"`
	SessionID  string                `json:"session_id"`
	Attributes *candidate.Attributes `json:"attributes,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var body searchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxUpload)).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := matching.Request{
		Mission:           body.Mission,
		SessionID:         body.SessionID,
		UserID:            userID(r),
		ExtractAttributes: body.Attributes == nil,
	}
	if body.Attributes != nil {
		req.Attributes = *body.Attributes
	}

	resp, err := s.deps.Engine.Search(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)

	var src io.Reader = r.Body
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, _, err := r.FormFile("file")
		if err != nil {
			respondError(w, http.StatusBadRequest, "missing file field")
			return
		}
		defer file.Close()
		src = file
	}

	comma, err := parseDelimiter(r.URL.Query().Get("delimiter"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := s.deps.Importer.Import(r.Context(), userID(r), r.PathValue("session"), src, comma)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, res)
}

func parseDelimiter(v string) (rune, error) {
	switch strings.ToLower(v) {
	case "", ",", "comma":
		return ',', nil
	case "tab", "\\t", "\t":
		return '\t', nil
	case ";", "semicolon":
		return ';', nil
	default:
		return 0, errors.New("unsupported delimiter " + strconv.Quote(v))
	}
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	removed, err := s.deps.Sessions.DeleteSession(r.Context(), userID(r), r.PathValue("session"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		respondError(w, http.StatusNotFound, "search history is disabled")
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive number")
			return
		}
		limit = n
	}

	entries, err := s.deps.History.List(r.Context(), userID(r), limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []history.Entry{}
	}

	respondJSON(w, http.StatusOK, map[string]any{"searches": entries})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stages": s.deps.Engine.Describe(),
	})
}
