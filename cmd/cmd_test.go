package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"realtime_dashboard/core"
	"realtime_dashboard/dashboard"
	"realtime_dashboard/subscription"
)

// testEnv points every command at a scratch directory.
func testEnv(t *testing.T, backend string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_BACKEND", backend)
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "dashboard.db"))
	t.Setenv("LOG_FILE", filepath.Join(dir, "dashboard.log"))
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("ADMIN_PASSWORD", "")
	t.Setenv("ADMIN_PASSWORD_HASH", "")
	return dir
}

func execute(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append(args, "--env-file", filepath.Join(dir, "missing.env")))
	err := root.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := NewRootCmd()
	want := []string{"serve", "seed", "simulate", "watch", "migrate", "service"}
	for _, name := range want {
		found := false
		for _, c := range root.Commands() {
			if c.Name() == name {
				found = true
			}
		}
		if !found {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if root.RunE == nil {
		t.Error("root command does not default to serve")
	}
}

func TestSeedSimulateMigrate(t *testing.T) {
	dir := testEnv(t, core.StoreBackendSQLite)

	out, err := execute(t, dir, "seed")
	if err != nil {
		t.Fatalf("seed error = %v", err)
	}
	for _, c := range dashboard.Categories() {
		if !strings.Contains(out, c.String()) {
			t.Errorf("seed output %q does not list %s", out, c)
		}
	}

	out, err = execute(t, dir, "seed")
	if err != nil {
		t.Fatalf("second seed error = %v", err)
	}
	if !strings.Contains(out, "nothing to do") {
		t.Errorf("second seed output = %q", out)
	}

	out, err = execute(t, dir, "simulate", "kpi", "--show")
	if err != nil {
		t.Fatalf("simulate error = %v", err)
	}
	if !strings.Contains(out, dashboard.UpdateMessage(dashboard.CategoryKPI)) {
		t.Errorf("simulate output = %q", out)
	}
	if !strings.Contains(out, "taskCompletionRate") {
		t.Errorf("simulate --show did not print the snapshot: %q", out)
	}

	out, err = execute(t, dir, "migrate", "version")
	if err != nil {
		t.Fatalf("migrate version error = %v", err)
	}
	if strings.TrimSpace(out) == "0" || strings.Contains(out, "dirty") {
		t.Errorf("migrate version = %q, want an applied clean version", out)
	}
}

func TestSimulate_UnknownCategory(t *testing.T) {
	dir := testEnv(t, core.StoreBackendMemory)
	_, err := execute(t, dir, "simulate", "weather")
	if !errors.Is(err, dashboard.ErrUnknownCategory) {
		t.Errorf("error = %v, want ErrUnknownCategory", err)
	}
}

func TestMigrate_RejectsMemoryBackend(t *testing.T) {
	dir := testEnv(t, core.StoreBackendMemory)
	_, err := execute(t, dir, "migrate", "up")
	if code := core.ExitCodeForError(err); code != core.ExitCodeConfig {
		t.Errorf("exit code = %d (err %v), want %d", code, err, core.ExitCodeConfig)
	}
}

func TestInvalidConfigExitCode(t *testing.T) {
	dir := testEnv(t, core.StoreBackendMemory)
	t.Setenv("PORT", "70000")
	_, err := execute(t, dir, "seed")
	if code := core.ExitCodeForError(err); code != core.ExitCodeConfig {
		t.Errorf("exit code = %d (err %v), want %d", code, err, core.ExitCodeConfig)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRunServer_ServesUntilCancelled(t *testing.T) {
	testEnv(t, core.StoreBackendMemory)
	cfg, err := core.LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.ShutdownTimeout = 2 * time.Second

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, cfg, zaptest.NewLogger(t)) }()

	base := fmt.Sprintf("http://%s", cfg.Addr())
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(base + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("server did not come up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	// Seeded on start, so the data endpoint returns a timestamp.
	resp, err := http.Get(base + "/data?category=kpi")
	if err != nil {
		t.Fatalf("GET /data error = %v", err)
	}
	var body struct {
		LastUpdated *string `json:"lastUpdated"`
	}
	json.NewDecoder(resp.Body).Decode(&body)
	resp.Body.Close()
	if body.LastUpdated == nil {
		t.Error("lastUpdated is null after seeding on start")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("runServer() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("runServer() did not return after cancel")
	}
}

func TestServerConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	cfg.Port = 8080
	cfg.StreamPollInterval = 500 * time.Millisecond
	cfg.StreamStaticCategories = []string{"announcements"}
	cfg.SimulateRatePerMinute = 0

	sc := serverConfig(cfg)
	if sc.Port != 8080 || sc.Stream.PollInterval != 500*time.Millisecond {
		t.Errorf("server config = %+v", sc)
	}
	if len(sc.Stream.StaticChannels) != 1 || sc.SimulateRatePerMinute != 0 {
		t.Errorf("server config = %+v", sc)
	}
}

func TestServiceConfig(t *testing.T) {
	sc := serviceConfig()
	if sc.Name == "" || strings.Join(sc.Arguments, " ") != "service run" {
		t.Errorf("service config = %+v", sc)
	}
}

func TestStatePrinter(t *testing.T) {
	var out bytes.Buffer
	p := newStatePrinter(&out, dashboard.CategoryKPI)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }

	ts := "2024-05-01T10:00:00Z"
	states := []subscription.State[json.RawMessage]{
		{Phase: subscription.PhaseConnecting},
		{Phase: subscription.PhaseConnected, Connected: true},
		{Phase: subscription.PhaseConnected, Connected: true, Data: json.RawMessage(`{ "value": 1 }`)},
		{Phase: subscription.PhaseConnected, Connected: true, Data: json.RawMessage(`{ "value": 1 }`), LastUpdated: &ts},
		{Phase: subscription.PhaseReconnecting, Error: "Connection lost. Retrying in 2s...", Data: json.RawMessage(`{ "value": 1 }`), LastUpdated: &ts},
	}
	for _, s := range states {
		p.Print(s)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	want := []string{
		"10:00:00 connecting",
		"10:00:00 connected",
		`10:00:00 kpi {"value":1}`,
		"10:00:00 last updated " + ts,
		"10:00:00 reconnecting: Connection lost. Retrying in 2s...",
	}
	if len(lines) != len(want) {
		t.Fatalf("output:\n%s\nwant %d lines", out.String(), len(want))
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestCheck(t *testing.T) {
	dir := testEnv(t, core.StoreBackendSQLite)

	out, err := execute(t, dir, "check")
	if err != nil {
		t.Fatalf("check before seeding error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "does not exist yet") {
		t.Errorf("check output does not warn about the missing database:\n%s", out)
	}

	if _, err := execute(t, dir, "seed"); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	out, err = execute(t, dir, "check")
	if err != nil {
		t.Fatalf("check after seeding error = %v\n%s", err, out)
	}
	if !strings.Contains(out, "Schema version") {
		t.Errorf("check output does not report the schema:\n%s", out)
	}
}

func TestCheck_InvalidConfigFails(t *testing.T) {
	dir := testEnv(t, core.StoreBackendMemory)
	t.Setenv("SIMULATE_RATE_PER_MINUTE", "-1")

	out, err := execute(t, dir, "check")
	if code := core.ExitCodeForError(err); code != core.ExitCodeConfig {
		t.Errorf("exit code = %d (err %v), want %d", code, err, core.ExitCodeConfig)
	}
	if !strings.Contains(out, "Skipped due to earlier failures") {
		t.Errorf("dependent checks were not skipped:\n%s", out)
	}
}
