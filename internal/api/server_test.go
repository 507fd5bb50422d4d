package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nerrad567/mqtt-voice/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-voice/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-voice/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-voice/internal/journal"
	"github.com/nerrad567/mqtt-voice/internal/notify"
	"github.com/nerrad567/mqtt-voice/internal/session"
	"github.com/nerrad567/mqtt-voice/internal/speech"
	"github.com/nerrad567/mqtt-voice/migrations"
)

// =============================================================================
// Test doubles
// =============================================================================

type fakeSession struct {
	mu       sync.Mutex
	started  []session.ConnectionConfig
	stops    int
	startErr error
	snap     session.Snapshot
}

func (f *fakeSession) Start(cfg session.ConnectionConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, cfg)
	f.snap.State = session.StateConnecting
	f.snap.BrokerURL = cfg.BrokerURL()
	return nil
}

func (f *fakeSession) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.snap.State = session.StateStopped
}

func (f *fakeSession) Status() session.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSession) set(snap session.Snapshot, startErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snap = snap
	f.startErr = startErr
}

func (f *fakeSession) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stops
}

func (f *fakeSession) lastStarted() (session.ConnectionConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.started) == 0 {
		return session.ConnectionConfig{}, false
	}
	return f.started[len(f.started)-1], true
}

type fakeSpeech struct{ stats speech.Stats }

func (f fakeSpeech) Stats() speech.Stats { return f.stats }

type fakeDrops int64

func (f fakeDrops) Dropped() int64 { return int64(f) }

type failingLister struct{}

func (failingLister) List(context.Context, journal.Filter) (*journal.ListResult, error) {
	return nil, errors.New("disk on fire")
}

// =============================================================================
// Helpers
// =============================================================================

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "discard"}, "test")
}

func testDeps(sess SessionController) Deps {
	return Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:  testLogger(),
		Session: sess,
		Version: "test",
	}
}

// testServer returns a server whose router is mounted on an httptest server.
func testServer(t *testing.T, mutate func(*Deps)) (*Server, *fakeSession, *httptest.Server) {
	t.Helper()

	sess := &fakeSession{snap: session.Snapshot{State: session.StateIdle}}
	deps := testDeps(sess)
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		cancel()
		ts.Close()
	})
	return srv, sess, ts
}

func testJournal(t *testing.T) *journal.SQLiteRepository {
	t.Helper()
	ctx := context.Background()

	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "api.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return journal.NewSQLiteRepository(db.DB, 0, nil)
}

func doRequest(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

// oversizedBody is valid JSON just over the request body limit.
func oversizedBody() []byte {
	body := []byte(`{"host":"`)
	body = append(body, bytes.Repeat([]byte("a"), maxRequestBodySize)...)
	return append(body, `"}`...)
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("status = %d, want %d", resp.StatusCode, want)
	}
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_RequiresDependencies(t *testing.T) {
	deps := testDeps(&fakeSession{})
	deps.Logger = nil
	if _, err := New(deps); err == nil {
		t.Error("New() without logger should fail")
	}

	deps = testDeps(nil)
	if _, err := New(deps); err == nil {
		t.Error("New() without session should fail")
	}
}

func TestServer_StartAndClose(t *testing.T) {
	srv, err := New(testDeps(&fakeSession{}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start should fail")
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := srv.Start(context.Background()); err == nil {
		t.Error("second Start() should fail")
	}
	if srv.Addr() == "" {
		t.Fatal("Addr() empty after Start")
	}

	resp := doRequest(t, http.MethodGet, "http://"+srv.Addr()+"/api/v1/health", nil)
	expectStatus(t, resp, http.StatusOK)

	if err := srv.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	first, err := New(testDeps(&fakeSession{}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := first.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer first.Close() //nolint:errcheck // Test cleanup

	deps := testDeps(&fakeSession{})
	_, port, _ := strings.Cut(first.Addr(), ":")
	fmt.Sscan(port, &deps.Config.Port) //nolint:errcheck // port comes from a live listener

	second, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Close() //nolint:errcheck // Test cleanup
		t.Fatal("Start() on a bound port should fail")
	}
}

func TestClose_NotStarted(t *testing.T) {
	srv, err := New(testDeps(&fakeSession{}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
}

// =============================================================================
// Health, status, metrics
// =============================================================================

func TestHealth(t *testing.T) {
	_, _, ts := testServer(t, nil)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/health", nil)
	expectStatus(t, resp, http.StatusOK)

	body := decode[HealthResponse](t, resp)
	if body.Status != "ok" || body.Version != "test" {
		t.Errorf("body = %+v", body)
	}
}

func TestStatus(t *testing.T) {
	t.Run("without speech", func(t *testing.T) {
		_, _, ts := testServer(t, nil)

		resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/status", nil)
		expectStatus(t, resp, http.StatusOK)

		body := decode[map[string]json.RawMessage](t, resp)
		if _, ok := body["speech"]; ok {
			t.Error("speech present without a speech engine")
		}
		var snap session.Snapshot
		if err := json.Unmarshal(body["session"], &snap); err != nil {
			t.Fatalf("session: %v", err)
		}
		if snap.State != session.StateIdle {
			t.Errorf("state = %q", snap.State)
		}
	})

	t.Run("with speech", func(t *testing.T) {
		_, _, ts := testServer(t, func(d *Deps) {
			d.Speech = fakeSpeech{stats: speech.Stats{Ready: true, Spoken: 3}}
		})

		resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/status", nil)
		body := decode[StatusResponse](t, resp)
		if body.Speech == nil || !body.Speech.Ready || body.Speech.Spoken != 3 {
			t.Errorf("speech = %+v", body.Speech)
		}
	})
}

func TestMetrics(t *testing.T) {
	_, sess, ts := testServer(t, func(d *Deps) { d.Events = fakeDrops(7) })
	sess.set(session.Snapshot{State: session.StateListening, Attempts: 2, DroppedMessages: 4}, nil)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/metrics", nil)
	expectStatus(t, resp, http.StatusOK)

	m := decode[SystemMetrics](t, resp)
	if m.Session.State != session.StateListening || !m.Session.Connected || m.Session.Attempts != 2 {
		t.Errorf("session = %+v", m.Session)
	}
	if m.Session.DroppedMessages != 4 {
		t.Errorf("dropped messages = %d, want 4", m.Session.DroppedMessages)
	}
	if m.Events.Dropped != 7 {
		t.Errorf("dropped = %d, want 7", m.Events.Dropped)
	}
	if m.Runtime.Goroutines == 0 {
		t.Error("goroutines = 0")
	}
}

// =============================================================================
// Connection control
// =============================================================================

func TestStartConnection(t *testing.T) {
	_, sess, ts := testServer(t, nil)

	resp := doRequest(t, http.MethodPut, ts.URL+"/api/v1/connection", ConnectionRequest{
		Host:     "broker.emqx.io",
		Port:     8883,
		Scheme:   "ssl",
		Topics:   "home/voice, , alerts/#",
		Username: "u",
		Password: "p",
	})
	expectStatus(t, resp, http.StatusAccepted)

	cfg, ok := sess.lastStarted()
	if !ok {
		t.Fatal("Start not called")
	}
	if cfg.Scheme != session.SchemeSecure || cfg.Port != 8883 || cfg.Host != "broker.emqx.io" {
		t.Errorf("cfg = %+v", cfg)
	}
	if len(cfg.Topics) != 2 || cfg.Topics[0] != "home/voice" || cfg.Topics[1] != "alerts/#" {
		t.Errorf("topics = %v", cfg.Topics)
	}
	if !strings.HasPrefix(cfg.ClientID, "mqttvoice-") {
		t.Errorf("client id = %q, want generated", cfg.ClientID)
	}
	if cfg.Username != "u" || cfg.Password != "p" {
		t.Errorf("credentials not passed through")
	}

	body := decode[StatusResponse](t, resp)
	if body.Session.State != session.StateConnecting {
		t.Errorf("state = %q", body.Session.State)
	}
}

func TestStartConnection_Errors(t *testing.T) {
	tests := []struct {
		name     string
		body     any
		startErr error
		want     int
		wantCode string
	}{
		{"invalid json", "{", nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"unknown field", `{"host":"h","bogus":1}`, nil, http.StatusBadRequest, ErrCodeBadRequest},
		{"bad scheme", ConnectionRequest{Host: "h", Port: 1883, Scheme: "ws", Topics: "t"}, nil, http.StatusBadRequest, ErrCodeValidation},
		{"validation", ConnectionRequest{Port: 1883, Topics: "t"}, errors.Join(session.ErrNoHost, session.ErrNoTopics), http.StatusBadRequest, ErrCodeValidation},
		{"closed", ConnectionRequest{Host: "h", Port: 1883, Topics: "t"}, session.ErrClosed, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"oversized body", oversizedBody(), nil, http.StatusBadRequest, ErrCodeBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, sess, ts := testServer(t, nil)
			sess.set(session.Snapshot{State: session.StateIdle}, tt.startErr)

			resp := doRequest(t, http.MethodPut, ts.URL+"/api/v1/connection", tt.body)
			expectStatus(t, resp, tt.want)

			e := decode[Error](t, resp)
			if e.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", e.Code, tt.wantCode)
			}
			if strings.Contains(e.Message, "\n") {
				t.Errorf("message contains a newline: %q", e.Message)
			}
		})
	}
}

func TestStopConnection(t *testing.T) {
	_, sess, ts := testServer(t, nil)

	resp := doRequest(t, http.MethodDelete, ts.URL+"/api/v1/connection", nil)
	expectStatus(t, resp, http.StatusAccepted)

	if n := sess.stopCount(); n != 1 {
		t.Errorf("stops = %d, want 1", n)
	}
	body := decode[StatusResponse](t, resp)
	if body.Session.State != session.StateStopped {
		t.Errorf("state = %q", body.Session.State)
	}
}

// =============================================================================
// Events
// =============================================================================

func TestListEvents_JournalDisabled(t *testing.T) {
	_, _, ts := testServer(t, nil)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/events", nil)
	expectStatus(t, resp, http.StatusServiceUnavailable)
}

func TestListEvents(t *testing.T) {
	repo := testJournal(t)
	ctx := context.Background()
	for _, e := range []notify.Event{
		notify.NewEvent(notify.KindStatus, "connecting to tcp://h:1883"),
		notify.NewEvent(notify.KindMessage, "hello"),
		notify.NewEvent(notify.KindCommand, "lights on"),
	} {
		if err := repo.Append(ctx, e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	_, _, ts := testServer(t, func(d *Deps) { d.Journal = repo })

	t.Run("all", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/events", nil)
		expectStatus(t, resp, http.StatusOK)
		body := decode[journal.ListResult](t, resp)
		if body.Total != 3 || len(body.Events) != 3 || body.Events[0].Text != "lights on" {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("limit and kind", func(t *testing.T) {
		resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/events?limit=1&kind=message", nil)
		expectStatus(t, resp, http.StatusOK)
		body := decode[journal.ListResult](t, resp)
		if body.Total != 1 || body.Events[0].Text != "hello" {
			t.Errorf("body = %+v", body)
		}
	})

	for _, q := range []string{"limit=abc", "offset=x", "kind=bogus"} {
		t.Run("bad "+q, func(t *testing.T) {
			resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/events?"+q, nil)
			expectStatus(t, resp, http.StatusBadRequest)
		})
	}
}

func TestListEvents_StoreError(t *testing.T) {
	_, _, ts := testServer(t, func(d *Deps) { d.Journal = failingLister{} })

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/events", nil)
	expectStatus(t, resp, http.StatusInternalServerError)
}

// =============================================================================
// Middleware and routing
// =============================================================================

func TestRequestID(t *testing.T) {
	_, _, ts := testServer(t, nil)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/health", nil)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID not generated")
	}

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	echoed, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer echoed.Body.Close()
	if got := echoed.Header.Get("X-Request-ID"); got != "abc-123" {
		t.Errorf("X-Request-ID = %q, want echoed", got)
	}
}

func TestErrorBody_CarriesRequestID(t *testing.T) {
	_, _, ts := testServer(t, nil)

	tests := []struct {
		path   string
		id     string
		status int
	}{
		{"/api/v1/events", "req-disabled", http.StatusServiceUnavailable},
		{"/api/v1/nope", "req-missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+tt.path, nil)
		req.Header.Set("X-Request-ID", tt.id)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request %s: %v", tt.path, err)
		}
		t.Cleanup(func() { resp.Body.Close() })
		expectStatus(t, resp, tt.status)
		if e := decode[Error](t, resp); e.RequestID != tt.id {
			t.Errorf("%s: request_id = %q, want %q", tt.path, e.RequestID, tt.id)
		}
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _, _ := testServer(t, nil)

	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestNotFoundAndMethodNotAllowed(t *testing.T) {
	_, _, ts := testServer(t, nil)

	resp := doRequest(t, http.MethodGet, ts.URL+"/api/v1/nope", nil)
	expectStatus(t, resp, http.StatusNotFound)
	if e := decode[Error](t, resp); e.Code != ErrCodeNotFound {
		t.Errorf("code = %q", e.Code)
	}

	resp = doRequest(t, http.MethodPost, ts.URL+"/api/v1/connection", nil)
	expectStatus(t, resp, http.StatusMethodNotAllowed)
}
