package app

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"meteostation/internal/config"
	"meteostation/internal/exposition"
	"meteostation/internal/metrics"
	"meteostation/internal/pipeline"
)

type recordingEngines struct {
	mu      sync.Mutex
	engines []*pipeline.Engine
}

// build constructs a real sensor engine and records it.
// Params: ctx runtime context; cfg config snapshot; logger runtime logger.
// Returns: engine or build error.
func (r *recordingEngines) build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (engineRunner, error) {
	engine, err := pipeline.NewFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.engines = append(r.engines, engine)
	r.mu.Unlock()
	return engine, nil
}

// latest waits until count engines exist and returns the newest one.
// Params: t test context; count expected build count.
// Returns: newest engine.
func (r *recordingEngines) latest(t *testing.T, count int) *pipeline.Engine {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		if len(r.engines) >= count {
			engine := r.engines[len(r.engines)-1]
			r.mu.Unlock()
			return engine
		}
		r.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for engine build %d", count)
	return nil
}

// waitServedReading polls the exporter until it reports a successful read.
// Params: t test context; addr exporter address.
// Returns: exported values.
func waitServedReading(t *testing.T, addr string) map[string]float64 {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	var lastErr error
	for time.Now().Before(deadline) {
		values, err := exposition.Fetch(context.Background(), "http://"+addr+"/metrics", time.Second)
		if err == nil && values[metrics.OKCountName] >= 1 {
			return values
		}
		lastErr = err
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("exporter at %s served no reading: %v", addr, lastErr)
	return nil
}

// TestRunWithDeps_ReloadKeepsExporterServing verifies the sensor exporter is rebuilt on the same address after SIGHUP.
// Params: t test context.
// Returns: none.
func TestRunWithDeps_ReloadKeepsExporterServing(t *testing.T) {
	reserved, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("reserve test address: %v", err)
	}
	addr := reserved.Addr().String()
	_ = reserved.Close()

	first := testConfig("station", 20*time.Millisecond)
	first.Exporter.Listen = addr
	second := testConfig("station", 30*time.Millisecond)
	second.Exporter.Listen = addr

	loader := &loaderSequence{responses: []loaderResponse{{cfg: first}, {cfg: second}}}
	engines := &recordingEngines{}
	deps := runDeps{
		loadConfig: loader.load,
		newLogger:  (&fakeLoggerFactory{}).create,
		startPprof: (&fakePprofFactory{}).start,
		newEngine:  engines.build,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reload := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() {
		done <- runWithDeps(ctx, Runtime{ConfigPath: "meteo.toml", Reload: reload}, deps)
	}()

	before := engines.latest(t, 1)
	if before.Addr() != addr {
		t.Fatalf("exporter bound %s, want %s", before.Addr(), addr)
	}
	waitServedReading(t, addr)

	reload <- struct{}{}
	after := engines.latest(t, 2)
	if after == before {
		t.Fatalf("reload did not rebuild the engine")
	}
	if after.Addr() != addr {
		t.Fatalf("reloaded exporter bound %s, want %s", after.Addr(), addr)
	}

	values := waitServedReading(t, addr)
	if values[metrics.ErrorCountName] != 0 {
		t.Fatalf("unexpected error streak after reload: %#v", values)
	}
	if after.Streak().OKCount() < 1 {
		t.Fatalf("reloaded engine has not sampled the sensor")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runWithDeps: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting runWithDeps stop")
	}
}
