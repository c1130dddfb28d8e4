package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"meteostation/internal/config"
)

// TestLoad_ExpandsEnvAndAppliesDefaults verifies env expansion and defaulting.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ExpandsEnvAndAppliesDefaults(t *testing.T) {
	t.Setenv("TEST_HOST", "balcony")

	path := writeConfig(t, "config.toml", `
[global]
host = "${TEST_HOST}"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Global.Host != "balcony" {
		t.Fatalf("unexpected host: %q", cfg.Global.Host)
	}
	if !cfg.Log.Console.Enabled {
		t.Fatalf("expected console logging to be enabled by default")
	}
	if cfg.Log.Console.Level != "info" {
		t.Fatalf("unexpected console level default: %q", cfg.Log.Console.Level)
	}
	if cfg.Sensor.Driver != config.DriverIIO {
		t.Fatalf("unexpected sensor.driver default: %q", cfg.Sensor.Driver)
	}
	if cfg.Sensor.Pin != 4 {
		t.Fatalf("unexpected sensor.pin default: %d", cfg.Sensor.Pin)
	}
	if got := cfg.Sensor.Interval.Duration; got != 10*time.Second {
		t.Fatalf("unexpected sensor.interval default: %v", got)
	}
	if cfg.Exporter.Listen != "127.0.0.1:9898" {
		t.Fatalf("unexpected exporter.listen default: %q", cfg.Exporter.Listen)
	}
	if cfg.Exporter.Path != "/metrics" {
		t.Fatalf("unexpected exporter.path default: %q", cfg.Exporter.Path)
	}
	if cfg.Events.NATS.Subject != "meteo.samples" {
		t.Fatalf("unexpected events.nats.subject default: %q", cfg.Events.NATS.Subject)
	}
	if cfg.Health.GRPCListen != "" {
		t.Fatalf("expected gRPC health disabled by default")
	}
}

// TestLoad_EmptyHostResolvesFromOS verifies host default lookup.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_EmptyHostResolvesFromOS(t *testing.T) {
	path := writeConfig(t, "config.toml", "[sensor]\ndriver = \"sim\"\n")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if strings.TrimSpace(cfg.Global.Host) == "" {
		t.Fatalf("expected host default")
	}
}

// TestLoad_ParsesSensorSection verifies explicit sensor settings.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ParsesSensorSection(t *testing.T) {
	path := writeConfig(t, "config.toml", `
[global]
host = "h"

[sensor]
driver = "SIM"
pin = 17
interval = "250ms"
fail_ratio = 0.25
seed = 7

[exporter]
listen = "0.0.0.0:9100"
path = "/sensor"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Sensor.Driver != config.DriverSim {
		t.Fatalf("driver not normalized: %q", cfg.Sensor.Driver)
	}
	if cfg.Sensor.Pin != 17 {
		t.Fatalf("unexpected pin: %d", cfg.Sensor.Pin)
	}
	if cfg.Sensor.Interval.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected interval: %v", cfg.Sensor.Interval.Duration)
	}
	if cfg.Sensor.FailRatio != 0.25 || cfg.Sensor.Seed != 7 {
		t.Fatalf("unexpected sim settings: %+v", cfg.Sensor)
	}
	if cfg.Exporter.Listen != "0.0.0.0:9100" || cfg.Exporter.Path != "/sensor" {
		t.Fatalf("unexpected exporter: %+v", cfg.Exporter)
	}
}

// TestLoad_YAML verifies YAML documents are decoded by extension.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_YAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
global:
  host: attic
sensor:
  driver: sim
  interval: 2s
events:
  log: true
  nats:
    enabled: true
    url: nats://broker:4222
    subject: attic.samples
health:
  grpc_listen: 127.0.0.1:9899
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Global.Host != "attic" {
		t.Fatalf("unexpected host: %q", cfg.Global.Host)
	}
	if cfg.Sensor.Interval.Duration != 2*time.Second {
		t.Fatalf("unexpected interval: %v", cfg.Sensor.Interval.Duration)
	}
	if !cfg.Events.Log || !cfg.Events.NATS.Enabled {
		t.Fatalf("unexpected events: %+v", cfg.Events)
	}
	if cfg.Events.NATS.URL != "nats://broker:4222" || cfg.Events.NATS.Subject != "attic.samples" {
		t.Fatalf("unexpected nats: %+v", cfg.Events.NATS)
	}
	if cfg.Health.GRPCListen != "127.0.0.1:9899" {
		t.Fatalf("unexpected health listen: %q", cfg.Health.GRPCListen)
	}
}

// TestLoad_ConfigDirMergesTomlFiles verifies config directory loading and file-order merge.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ConfigDirMergesTomlFiles(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{
		"00-global.toml": `
[global]
host = "porch"
`,
		"10-sensor.toml": `
[sensor]
driver = "sim"
interval = "1s"
`,
		"README.md": "ignored",
	})

	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load config dir: %v", err)
	}
	if cfg.Global.Host != "porch" {
		t.Fatalf("unexpected host: %q", cfg.Global.Host)
	}
	if cfg.Sensor.Driver != config.DriverSim || cfg.Sensor.Interval.Duration != time.Second {
		t.Fatalf("unexpected sensor: %+v", cfg.Sensor)
	}
}

// TestLoad_ConfigDirWithoutTomlFails verifies empty directory rejection.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ConfigDirWithoutTomlFails(t *testing.T) {
	dir := writeConfigDir(t, map[string]string{"notes.txt": "x"})

	_, err := config.Load(dir)
	if err == nil || !strings.Contains(err.Error(), "no *.toml files") {
		t.Fatalf("expected no toml files error, got %v", err)
	}
}

// TestLoad_ValidationErrors verifies field-path validation messages.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{name: "driver", body: "[sensor]\ndriver = \"gpio\"\n", want: "sensor.driver"},
		{name: "pin", body: "[sensor]\npin = -1\n", want: "sensor.pin must be >= 0"},
		{name: "interval", body: "[sensor]\ninterval = \"-1s\"\n", want: "sensor.interval must be > 0"},
		{name: "ratio", body: "[sensor]\ndriver = \"sim\"\nfail_ratio = 1.5\n", want: "sensor.fail_ratio"},
		{name: "listen", body: "[exporter]\nlisten = \"9898\"\n", want: "exporter.listen must be host:port"},
		{name: "path", body: "[exporter]\npath = \"metrics\"\n", want: "exporter.path must start with '/'"},
		{name: "reserved", body: "[exporter]\npath = \"/healthz\"\n", want: "is reserved"},
		{name: "level", body: "[log.console]\nenabled = true\nlevel = \"trace\"\n", want: "log.console.level"},
		{name: "file path", body: "[log.file]\nenabled = true\n", want: "log.file.path is required"},
		{name: "nats url", body: "[events.nats]\nenabled = true\nurl = \"broker\"\n", want: "events.nats.url"},
		{name: "health", body: "[health]\ngrpc_listen = \"nope\"\n", want: "health.grpc_listen"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, "config.toml", "[global]\nhost = \"h\"\n"+tc.body)
			_, err := config.Load(path)
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected %q in error, got %v", tc.want, err)
			}
		})
	}
}

// TestLoad_InvalidDuration verifies duration parse errors surface.
// Params: testing.T for assertions.
// Returns: none.
func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, "config.toml", "[sensor]\ninterval = \"soon\"\n")

	_, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "parse duration") {
		t.Fatalf("expected duration error, got %v", err)
	}
}

// TestDefault verifies defaults-only configuration is valid.
// Params: testing.T for assertions.
// Returns: none.
func TestDefault(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	if cfg.Sensor.Pin != 4 || cfg.Sensor.Interval.Duration != 10*time.Second {
		t.Fatalf("unexpected sensor defaults: %+v", cfg.Sensor)
	}
}

// writeConfig writes one config file into a temp directory.
// Params: t test handle; name file name; body file content.
// Returns: absolute file path.
func writeConfig(t *testing.T, name string, body string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, name)

	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	return path
}

// writeConfigDir creates a temp config directory populated with provided files.
// Params: t test handle; files map[name]body.
// Returns: absolute directory path.
func writeConfigDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatalf("write config file %q: %v", name, err)
		}
	}

	return dir
}
