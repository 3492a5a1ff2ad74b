package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spigell/mission-matcher/internal/candidate"
	"github.com/spigell/mission-matcher/internal/history"
	"github.com/spigell/mission-matcher/internal/importer"
	"github.com/spigell/mission-matcher/internal/matching"
	"github.com/spigell/mission-matcher/internal/store"
)

type stubEngine struct {
	got  matching.Request
	resp *matching.Response
	err  error
}

func (s *stubEngine) Search(_ context.Context, req matching.Request) (*matching.Response, error) {
	s.got = req
	return s.resp, s.err
}

func (s *stubEngine) Describe() []matching.Status {
	return []matching.Status{{Name: matching.StagePrefilter, Enabled: true}}
}

func (s *stubEngine) Timeout() time.Duration { return time.Minute }

type stubImporter struct {
	user, session, body string
	comma               rune
}

func (s *stubImporter) Import(_ context.Context, userID, sessionID string, r io.Reader, comma rune) (importer.Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return importer.Result{}, err
	}
	s.user, s.session, s.body, s.comma = userID, sessionID, string(data), comma
	if sessionID == "" {
		sessionID = "generated"
	}
	return importer.Result{SessionID: sessionID, Rows: 1, Imported: 1}, nil
}

type stubSessions struct {
	removed int
	err     error
}

func (s *stubSessions) DeleteSession(context.Context, string, string) (int, error) {
	return s.removed, s.err
}

type stubHistory struct {
	limit int
}

func (s *stubHistory) List(_ context.Context, userID string, limit int) ([]history.Entry, error) {
	s.limit = limit
	return []history.Entry{{ID: "h1", UserID: userID}}, nil
}

func newTestServer(t *testing.T, deps Deps, cfg Config) http.Handler {
	t.Helper()
	if deps.Engine == nil {
		deps.Engine = &stubEngine{resp: &matching.Response{}}
	}
	if deps.Importer == nil {
		deps.Importer = &stubImporter{}
	}
	if deps.Sessions == nil {
		deps.Sessions = &stubSessions{}
	}
	srv, err := New(deps, cfg, nil)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return srv.Handler()
}

func do(h http.Handler, method, target, user string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSearchAsksForAttributesWhenMissing(t *testing.T) {
	engine := &stubEngine{resp: &matching.Response{
		SearchID: "s-1",
		Matches:  []candidate.Match{{ID: "c1", Name: "Ann", Similarity: 0.9}},
	}}
	h := newTestServer(t, Deps{Engine: engine}, Config{})

	rec := do(h, http.MethodPost, "/api/search", "u1",
		strings.NewReader(`{"mission":"construction contractors","session_id":"s1"}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if engine.got.UserID != "u1" || engine.got.SessionID != "s1" {
		t.Fatalf("unexpected request scope: %+v", engine.got)
	}
	if !engine.got.ExtractAttributes {
		t.Fatalf("expected the engine to extract attributes, got %+v", engine.got)
	}

	var resp matching.Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SearchID != "s-1" || len(resp.Matches) != 1 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestSearchKeepsGivenAttributes(t *testing.T) {
	engine := &stubEngine{resp: &matching.Response{}}
	h := newTestServer(t, Deps{Engine: engine}, Config{})

	rec := do(h, http.MethodPost, "/api/search", "u1",
		strings.NewReader(`{"mission":"m","session_id":"s1","attributes":{"location":"Texas"}}`), "application/json")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if engine.got.ExtractAttributes || engine.got.Attributes.Location != "Texas" {
		t.Fatalf("expected caller attributes to be used, got %+v", engine.got)
	}
}

func TestSearchErrorStatuses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    error
		status int
	}{
		{name: "input", err: &matching.InputError{Err: matching.ErrEmptyMission, Message: "empty"}, status: http.StatusBadRequest},
		{name: "credentials", err: matching.ErrMissingCredentials, status: http.StatusServiceUnavailable},
		{name: "timeout", err: fmt.Errorf("%w after 4m", matching.ErrTimeout), status: http.StatusGatewayTimeout},
		{name: "other", err: errors.New("boom"), status: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newTestServer(t, Deps{Engine: &stubEngine{err: tt.err}}, Config{})
			rec := do(h, http.MethodPost, "/api/search", "u1", strings.NewReader(`{"mission":"m","session_id":"s"}`), "")
			if rec.Code != tt.status {
				t.Fatalf("expected %d, got %d", tt.status, rec.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Fatalf("expected JSON error body, got %q", rec.Body.String())
			}
		})
	}
}

func TestAPIRequiresUser(t *testing.T) {
	h := newTestServer(t, Deps{}, Config{})
	rec := do(h, http.MethodPost, "/api/search", "", strings.NewReader(`{}`), "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestImportRawAndMultipart(t *testing.T) {
	imp := &stubImporter{}
	h := newTestServer(t, Deps{Importer: imp}, Config{})

	rec := do(h, http.MethodPost, "/api/sessions/s1/import?delimiter=tab", "u1", strings.NewReader("Name\tCompany\n"), "text/csv")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if imp.user != "u1" || imp.session != "s1" || imp.comma != '\t' {
		t.Fatalf("unexpected import call: %+v", imp)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "contacts.csv")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	part.Write([]byte("Name\nAnn\n"))
	mw.Close()

	rec = do(h, http.MethodPost, "/api/sessions/import", "u1", &buf, mw.FormDataContentType())
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if imp.session != "" || imp.body != "Name\nAnn\n" {
		t.Fatalf("unexpected multipart import: %+v", imp)
	}

	var res importer.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil || res.SessionID != "generated" {
		t.Fatalf("unexpected result %q: %v", rec.Body.String(), err)
	}
}

func TestImportRejectsUnknownDelimiter(t *testing.T) {
	h := newTestServer(t, Deps{}, Config{})
	rec := do(h, http.MethodPost, "/api/sessions/s1/import?delimiter=pipe", "u1", strings.NewReader("Name\n"), "text/csv")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDeleteSession(t *testing.T) {
	h := newTestServer(t, Deps{Sessions: &stubSessions{removed: 3}}, Config{})
	rec := do(h, http.MethodDelete, "/api/sessions/s1", "u1", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"removed":3`) {
		t.Fatalf("unexpected response %d: %s", rec.Code, rec.Body.String())
	}

	h = newTestServer(t, Deps{Sessions: &stubSessions{err: store.ErrNotFound}}, Config{})
	rec = do(h, http.MethodDelete, "/api/sessions/s1", "u1", nil, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHistory(t *testing.T) {
	h := newTestServer(t, Deps{}, Config{})
	if rec := do(h, http.MethodGet, "/api/history", "u1", nil, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without history, got %d", rec.Code)
	}

	hist := &stubHistory{}
	h = newTestServer(t, Deps{History: hist}, Config{})
	rec := do(h, http.MethodGet, "/api/history?limit=3", "u1", nil, "")
	if rec.Code != http.StatusOK || hist.limit != 3 {
		t.Fatalf("unexpected response %d with limit %d", rec.Code, hist.limit)
	}
	if !strings.Contains(rec.Body.String(), `"id":"h1"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}

	if rec := do(h, http.MethodGet, "/api/history?limit=x", "u1", nil, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	h := newTestServer(t, Deps{}, Config{RateLimit: 0.001, RateBurst: 1})

	first := do(h, http.MethodDelete, "/api/sessions/s1", "u1", nil, "")
	second := do(h, http.MethodDelete, "/api/sessions/s1", "u1", nil, "")
	if first.Code != http.StatusOK || second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 200 then 429, got %d then %d", first.Code, second.Code)
	}

	if rec := do(h, http.MethodGet, "/healthz", "", nil, ""); rec.Code != http.StatusOK {
		t.Fatalf("health must not be limited, got %d", rec.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestServer(t, Deps{}, Config{})

	rec := do(h, http.MethodGet, "/healthz", "", nil, "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"name":"prefilter"`) {
		t.Fatalf("unexpected health response %d: %s", rec.Code, rec.Body.String())
	}

	rec = do(h, http.MethodGet, "/metrics", "", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected metrics endpoint, got %d", rec.Code)
	}
}
