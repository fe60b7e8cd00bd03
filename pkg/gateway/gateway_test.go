package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"warden-hq/warden/pkg/config"
	"warden-hq/warden/pkg/moderation/store"
)

func testConfig(t *testing.T, upstreamURL string) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Upstream.BaseURL = upstreamURL
	cfg.Models.Dir = filepath.Join(dir, "models")
	cfg.Models.Watch = false
	cfg.Storage.SamplesPath = filepath.Join(dir, "samples.db")
	cfg.Storage.DecisionsPath = filepath.Join(dir, "decisions.db")
	cfg.Training.Enabled = false
	cfg.Telemetry.Metrics.Enabled = false
	return cfg
}

func sseUpstream(events ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, ev := range events {
			io.WriteString(w, ev+"\n\n")
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestGateway_StartTokenIsOneShot(t *testing.T) {
	g, err := New(testConfig(t, "http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Shutdown(context.Background())

	token := g.StartToken()
	if token == "" {
		t.Fatal("no start token issued")
	}

	if err := g.Start(context.Background(), "wrong"); !errors.Is(err, ErrInvalidStartToken) {
		t.Errorf("Start(wrong token) error = %v, want ErrInvalidStartToken", err)
	}
	if err := g.Start(context.Background(), token); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := g.Start(context.Background(), token); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	if g.StartToken() != "" {
		t.Error("start token not consumed")
	}
}

func TestGateway_StreamEndToEnd(t *testing.T) {
	srv := httptest.NewServer(sseUpstream(
		`data: {"choices":[{"delta":{"content":"hello"}}]}`,
		`data: {"choices":[{"delta":{"content":"world"}}]}`,
	))
	t.Cleanup(srv.Close)

	g, err := New(testConfig(t, srv.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Shutdown(context.Background())
	if err := g.Start(context.Background(), g.StartToken()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	rec := httptest.NewRecorder()
	g.StreamHandler().ServeHTTP(rec, httptest.NewRequest("POST", "/v1/stream", strings.NewReader("{}")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "hello") || !strings.Contains(body, "world") {
		t.Errorf("events not relayed: %q", body)
	}

	// Without a trained model both events pass as ModelAbsent and are
	// recorded asynchronously.
	ctx := context.Background()
	waitFor(t, func() bool {
		n, err := g.Decisions().Count(ctx, store.DecisionQuery{Profile: "default"})
		return err == nil && n == 2
	})

	rows, err := g.Decisions().Tail(ctx, store.DecisionQuery{Profile: "default"})
	if err != nil {
		t.Fatalf("Tail() error = %v", err)
	}
	for _, row := range rows {
		if !row.ModelAbsent {
			t.Errorf("decision %s not marked model absent", row.ID)
		}
		if row.Verdict != "pass" {
			t.Errorf("decision %s verdict = %q, want pass", row.ID, row.Verdict)
		}
	}
}

func TestGateway_ReleaseUnusedResources(t *testing.T) {
	srv := httptest.NewServer(sseUpstream(
		`data: {"choices":[{"delta":{"content":"one"}}]}`,
		`data: {"choices":[{"delta":{"content":"two"}}]}`,
		`data: {"choices":[{"delta":{"content":"three"}}]}`,
	))
	t.Cleanup(srv.Close)

	cfg := testConfig(t, srv.URL)
	cfg.Training.KeepPerLabel = 1
	g, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer g.Shutdown(context.Background())
	if err := g.Start(context.Background(), g.StartToken()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	g.StreamHandler().ServeHTTP(httptest.NewRecorder(),
		httptest.NewRequest("POST", "/v1/stream", strings.NewReader("{}")))

	ctx := context.Background()
	waitFor(t, func() bool {
		n, err := g.Decisions().Count(ctx, store.DecisionQuery{})
		return err == nil && n == 3
	})

	// Three model-absent samples against a retention of one: release prunes
	// the surplus once the recording worker has flushed them.
	var pruned int64
	waitFor(t, func() bool {
		report, err := g.ReleaseUnusedResources(ctx, 0)
		if err != nil {
			t.Fatalf("ReleaseUnusedResources() error = %v", err)
		}
		pruned += report.PrunedSamples
		return pruned == 2
	})
}

func TestGateway_ShutdownIsIdempotent(t *testing.T) {
	g, err := New(testConfig(t, "http://127.0.0.1:1"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := g.Start(context.Background(), g.StartToken()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := g.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if err := g.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestGateway_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Upstream.BaseURL = ""
	if _, err := New(cfg); err == nil {
		t.Fatal("New() accepted config without upstream base URL")
	}
}
