package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/graydot/potter/internal/buildinfo"
	"github.com/graydot/potter/internal/coordinator"
	"github.com/graydot/potter/internal/history"
	"github.com/graydot/potter/internal/identity"
)

type fakeQuerier struct {
	events []history.Event
	err    error
}

func (q fakeQuerier) Recent(_ context.Context, limit int) ([]history.Event, error) {
	if q.err != nil {
		return nil, q.err
	}
	if limit < len(q.events) {
		return q.events[:limit], nil
	}
	return q.events, nil
}

func claimedCoordinator(t *testing.T) *coordinator.Coordinator {
	t.Helper()
	c, err := coordinator.New(coordinator.Options{
		Store:  identity.NewStore(t.TempDir()),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := c.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Outcome != coordinator.Proceed {
		t.Fatalf("outcome = %s, want proceed", res.Outcome)
	}
	return c
}

func setupRouter(t *testing.T, opts RouterOptions) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if opts.Coordinator == nil {
		opts.Coordinator = claimedCoordinator(t)
	}
	return NewRouter(opts).Handler()
}

func doGet(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoint(t *testing.T) {
	h := setupRouter(t, RouterOptions{})
	rec := doGet(t, h, "/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var st statusResp
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.PID != os.Getpid() {
		t.Fatalf("pid = %d, want %d", st.PID, os.Getpid())
	}
	if !st.Claimed {
		t.Fatal("status does not report the claim")
	}
	if st.LaunchID == "" || st.BuildID != buildinfo.Get().ID() {
		t.Fatalf("identity fields = %+v", st)
	}
	if st.UptimeSeconds < 0 {
		t.Fatalf("uptime = %f", st.UptimeSeconds)
	}

	var raw map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &raw); err != nil {
		t.Fatalf("decode raw: %v", err)
	}
	if _, ok := raw["resources"]; ok {
		t.Fatal("resources present without a sampler")
	}
}

func TestStatusWithBasePath(t *testing.T) {
	h := setupRouter(t, RouterOptions{BasePath: "/potter"})
	if rec := doGet(t, h, "/potter/status"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec := doGet(t, h, "/status"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 outside base path, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	h := setupRouter(t, RouterOptions{})
	rec := doGet(t, h, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var ok okResp
	if err := json.Unmarshal(rec.Body.Bytes(), &ok); err != nil || !ok.OK {
		t.Fatalf("body = %s, err = %v", rec.Body.String(), err)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	events := []history.Event{
		{Type: history.EventLaunchStarted, OccurredAt: time.Now().UTC(), Record: history.Record{LaunchID: "l1", PID: 1}},
		{Type: history.EventOwnershipClaimed, OccurredAt: time.Now().UTC(), Record: history.Record{LaunchID: "l1", PID: 1}},
	}
	h := setupRouter(t, RouterOptions{History: fakeQuerier{events: events}})

	rec := doGet(t, h, "/history")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var got []history.Event
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].Type != history.EventLaunchStarted {
		t.Fatalf("events = %+v", got)
	}

	rec = doGet(t, h, "/history?limit=1")
	got = nil
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil || len(got) != 1 {
		t.Fatalf("limited events = %+v, err = %v", got, err)
	}
}

func TestHistoryRejectsBadLimit(t *testing.T) {
	h := setupRouter(t, RouterOptions{History: fakeQuerier{}})
	for _, q := range []string{"abc", "-1", "0"} {
		rec := doGet(t, h, "/history?limit="+q)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("limit=%s: expected 400, got %d", q, rec.Code)
		}
	}
}

func TestHistoryWithoutQuerier(t *testing.T) {
	h := setupRouter(t, RouterOptions{})
	rec := doGet(t, h, "/history")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestHistoryQuerierError(t *testing.T) {
	h := setupRouter(t, RouterOptions{History: fakeQuerier{err: errors.New("store gone")}})
	rec := doGet(t, h, "/history")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "store gone") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestMetricsMountedWhenEnabled(t *testing.T) {
	h := setupRouter(t, RouterOptions{Metrics: true})
	rec := doGet(t, h, "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Fatal("empty exposition body")
	}

	h = setupRouter(t, RouterOptions{Metrics: false})
	if rec := doGet(t, h, "/metrics"); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when disabled, got %d", rec.Code)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":         "",
		"/":        "",
		"potter":   "/potter",
		"/potter":  "/potter",
		"/potter/": "/potter",
		" /x ":     "/x",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q) = %q, want %q", in, got, want)
		}
	}
}
