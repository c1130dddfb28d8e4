package config

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/shirou/gopsutil/v4/host"
	"gopkg.in/yaml.v3"
)

const (
	defaultLogLevel       = "info"
	defaultLogFormat      = "line"
	defaultLogColor       = "auto"
	defaultSensorDriver   = DriverIIO
	defaultSensorPin      = 4
	defaultSensorInterval = 10 * time.Second
	defaultExporterListen = "127.0.0.1:9898"
	defaultExporterPath   = "/metrics"
	defaultNATSURL        = "nats://127.0.0.1:4222"
	defaultNATSSubject    = "meteo.samples"
	defaultPprofListen    = "127.0.0.1:6060"
)

// Supported sensor drivers.
const (
	DriverIIO = "iio"
	DriverSim = "sim"
)

// Duration wraps time.Duration for TOML and YAML parsing.
// Params: text duration string (e.g. "10s", "1m").
// Returns: parse error on invalid duration.
type Duration struct {
	time.Duration
}

// UnmarshalText parses duration values.
// Params: text is raw duration bytes.
// Returns: error when value is not a valid Go duration.
func (d *Duration) UnmarshalText(text []byte) error {
	value := strings.TrimSpace(string(text))
	if value == "" {
		d.Duration = 0
		return nil
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value, err)
	}

	d.Duration = parsed
	return nil
}

// MarshalText renders duration in Go notation.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config represents the root exporter configuration.
// Params: document sections.
// Returns: validated runtime configuration.
type Config struct {
	Global   GlobalConfig   `toml:"global" yaml:"global"`
	Log      LogConfig      `toml:"log" yaml:"log"`
	Pprof    PprofConfig    `toml:"pprof" yaml:"pprof"`
	Sensor   SensorConfig   `toml:"sensor" yaml:"sensor"`
	Exporter ExporterConfig `toml:"exporter" yaml:"exporter"`
	Health   HealthConfig   `toml:"health" yaml:"health"`
	Events   EventsConfig   `toml:"events" yaml:"events"`
}

// GlobalConfig contains process identity.
// Params: host name override.
// Returns: global settings.
type GlobalConfig struct {
	Host string `toml:"host" yaml:"host"`
}

// PprofConfig defines optional runtime pprof HTTP endpoint.
// Params: enabled flag and listen address in host:port format.
// Returns: pprof runtime settings.
type PprofConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Listen  string `toml:"listen" yaml:"listen"`
}

// LogConfig contains console/file logging configuration.
// Params: console and file sink options.
// Returns: logger sink settings.
type LogConfig struct {
	Console LogSinkConfig `toml:"console" yaml:"console"`
	File    LogSinkConfig `toml:"file" yaml:"file"`
}

// LogSinkConfig defines one logging sink.
// Params: sink options.
// Returns: sink setup.
type LogSinkConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Level   string `toml:"level" yaml:"level"`
	Format  string `toml:"format" yaml:"format"`
	Path    string `toml:"path" yaml:"path"`
	Color   string `toml:"color" yaml:"color"`
}

// SensorConfig selects the sensor driver and sampling interval.
// Params: driver name, data pin, interval and driver specific options.
// Returns: sensor settings.
type SensorConfig struct {
	Driver    string   `toml:"driver" yaml:"driver"`
	Pin       int      `toml:"pin" yaml:"pin"`
	Interval  Duration `toml:"interval" yaml:"interval"`
	Device    string   `toml:"device" yaml:"device"`
	IIORoot   string   `toml:"iio_root" yaml:"iio_root"`
	FailRatio float64  `toml:"fail_ratio" yaml:"fail_ratio"`
	Seed      uint64   `toml:"seed" yaml:"seed"`
}

// ExporterConfig defines the metrics HTTP listener.
// Params: listen address and metrics path.
// Returns: exporter settings.
type ExporterConfig struct {
	Listen string `toml:"listen" yaml:"listen"`
	Path   string `toml:"path" yaml:"path"`
}

// HealthConfig defines the optional gRPC health endpoint.
// Params: listen address (empty disables).
// Returns: health settings.
type HealthConfig struct {
	GRPCListen string `toml:"grpc_listen" yaml:"grpc_listen"`
}

// EventsConfig defines sample event sinks.
// Params: debug log sink flag and NATS publisher options.
// Returns: event sink settings.
type EventsConfig struct {
	Log  bool       `toml:"log" yaml:"log"`
	NATS NATSConfig `toml:"nats" yaml:"nats"`
}

// NATSConfig defines the NATS sample publisher.
// Params: enabled flag, server URL and subject.
// Returns: publisher settings.
type NATSConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	URL     string `toml:"url" yaml:"url"`
	Subject string `toml:"subject" yaml:"subject"`
}

// Load reads, expands, validates, and returns config from path.
// Params: path to TOML/YAML config file or directory with *.toml files.
// Returns: validated config pointer or error.
func Load(path string) (*Config, error) {
	raw, err := readConfigSource(path)
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(raw))

	var cfg Config
	if isYAMLPath(path) {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("decode YAML %q: %w", path, err)
		}
	} else if err := toml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("decode TOML %q: %w", path, err)
	}

	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns a validated configuration built only from defaults.
// Params: none.
// Returns: config pointer or host lookup error.
func Default() (*Config, error) {
	var cfg Config
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// isYAMLPath reports whether path names a YAML document.
func isYAMLPath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// readConfigSource reads one config file or concatenates *.toml files from directory.
// Params: path to config file or directory.
// Returns: raw bytes or error.
func readConfigSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config %q: %w", path, err)
	}

	if !info.IsDir() {
		raw, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", path, readErr)
		}
		return raw, nil
	}

	return readConfigDir(path)
}

// readConfigDir concatenates config snippets from one directory in name order.
// Params: path to directory that contains *.toml files.
// Returns: concatenated TOML content or error.
func readConfigDir(path string) ([]byte, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read config dir %q: %w", path, err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(entry.Name()), ".toml") {
			files = append(files, entry.Name())
		}
	}

	sort.Strings(files)
	if len(files) == 0 {
		return nil, fmt.Errorf("read config dir %q: no *.toml files", path)
	}

	var builder strings.Builder
	for _, name := range files {
		filePath := filepath.Join(path, name)
		raw, readErr := os.ReadFile(filePath)
		if readErr != nil {
			return nil, fmt.Errorf("read config %q: %w", filePath, readErr)
		}
		builder.Write(raw)
		if len(raw) == 0 || raw[len(raw)-1] != '\n' {
			builder.WriteByte('\n')
		}
		builder.WriteByte('\n')
	}

	return []byte(builder.String()), nil
}

// applyDefaults fills defaults for optional configuration fields.
// Params: receiver config pointer.
// Returns: error if host lookup fails.
func (c *Config) applyDefaults() error {
	c.Log.Console.Level = lowerOrDefault(c.Log.Console.Level, defaultLogLevel)
	c.Log.Console.Format = lowerOrDefault(c.Log.Console.Format, defaultLogFormat)
	c.Log.Console.Color = lowerOrDefault(c.Log.Console.Color, defaultLogColor)
	c.Log.File.Level = lowerOrDefault(c.Log.File.Level, defaultLogLevel)
	c.Log.File.Format = lowerOrDefault(c.Log.File.Format, "json")
	c.Log.File.Color = "never"

	if !c.Log.Console.Enabled && !c.Log.File.Enabled {
		c.Log.Console.Enabled = true
	}

	if strings.TrimSpace(c.Global.Host) == "" {
		hostname, err := resolveHostname()
		if err != nil {
			return err
		}
		c.Global.Host = hostname
	}

	c.Sensor.Driver = lowerOrDefault(c.Sensor.Driver, defaultSensorDriver)
	if c.Sensor.Pin == 0 && c.Sensor.Driver != DriverSim {
		c.Sensor.Pin = defaultSensorPin
	}
	if c.Sensor.Interval.Duration == 0 {
		c.Sensor.Interval.Duration = defaultSensorInterval
	}

	if strings.TrimSpace(c.Exporter.Listen) == "" {
		c.Exporter.Listen = defaultExporterListen
	}
	if strings.TrimSpace(c.Exporter.Path) == "" {
		c.Exporter.Path = defaultExporterPath
	}

	if strings.TrimSpace(c.Events.NATS.URL) == "" {
		c.Events.NATS.URL = defaultNATSURL
	}
	if strings.TrimSpace(c.Events.NATS.Subject) == "" {
		c.Events.NATS.Subject = defaultNATSSubject
	}

	if c.Pprof.Enabled && strings.TrimSpace(c.Pprof.Listen) == "" {
		c.Pprof.Listen = defaultPprofListen
	}

	return nil
}

// resolveHostname returns host name reported by the OS.
// Params: none.
// Returns: host name or lookup error.
func resolveHostname() (string, error) {
	info, err := host.InfoWithContext(context.Background())
	if err == nil && strings.TrimSpace(info.Hostname) != "" {
		return info.Hostname, nil
	}

	hostname, osErr := os.Hostname()
	if osErr != nil {
		return "", fmt.Errorf("resolve hostname: %w", osErr)
	}
	return hostname, nil
}

// validate checks config consistency and required fields.
// Params: receiver config pointer.
// Returns: validation error for invalid or incomplete config.
func (c *Config) validate() error {
	if strings.TrimSpace(c.Global.Host) == "" {
		return fmt.Errorf("global.host resolved to empty value")
	}

	if err := validateSink("log.console", c.Log.Console, false); err != nil {
		return err
	}
	if err := validateSink("log.file", c.Log.File, true); err != nil {
		return err
	}
	if err := validatePprofConfig("pprof", c.Pprof); err != nil {
		return err
	}
	if err := validateSensorConfig("sensor", c.Sensor); err != nil {
		return err
	}
	if err := validateExporterConfig("exporter", c.Exporter); err != nil {
		return err
	}
	if listen := strings.TrimSpace(c.Health.GRPCListen); listen != "" {
		if err := validateListenAddress("health.grpc_listen", listen); err != nil {
			return err
		}
	}
	if c.Events.NATS.Enabled {
		if !strings.Contains(c.Events.NATS.URL, "://") {
			return fmt.Errorf("events.nats.url must be a URL, got %q", c.Events.NATS.URL)
		}
		if strings.ContainsAny(c.Events.NATS.Subject, " \t\r\n") {
			return fmt.Errorf("events.nats.subject cannot contain whitespace")
		}
	}

	return nil
}

// validateSensorConfig validates driver selection and sampling parameters.
// Params: fieldPath config path prefix; sensor sensor section.
// Returns: validation error or nil.
func validateSensorConfig(fieldPath string, sensor SensorConfig) error {
	switch sensor.Driver {
	case DriverIIO, DriverSim:
	default:
		return fmt.Errorf("%s.driver: unsupported value %q", fieldPath, sensor.Driver)
	}
	if sensor.Pin < 0 {
		return fmt.Errorf("%s.pin must be >= 0", fieldPath)
	}
	if sensor.Interval.Duration <= 0 {
		return fmt.Errorf("%s.interval must be > 0", fieldPath)
	}
	if sensor.FailRatio < 0 || sensor.FailRatio > 1 {
		return fmt.Errorf("%s.fail_ratio must be in range 0..1", fieldPath)
	}
	return nil
}

// validateExporterConfig validates metrics listener settings.
// Params: fieldPath config path prefix; exporter exporter section.
// Returns: validation error or nil.
func validateExporterConfig(fieldPath string, exporter ExporterConfig) error {
	if err := validateListenAddress(fieldPath+".listen", exporter.Listen); err != nil {
		return err
	}
	path := strings.TrimSpace(exporter.Path)
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("%s.path must start with '/'", fieldPath)
	}
	switch path {
	case "/healthz", "/observation":
		return fmt.Errorf("%s.path %q is reserved", fieldPath, path)
	}
	return nil
}

// validatePprofConfig validates optional pprof listener settings.
// Params: fieldPath config path prefix; cfg pprof section.
// Returns: validation error or nil.
func validatePprofConfig(fieldPath string, cfg PprofConfig) error {
	if !cfg.Enabled {
		return nil
	}
	return validateListenAddress(fieldPath+".listen", cfg.Listen)
}

// validateListenAddress validates host:port listen address.
// Params: fieldPath config field; value address.
// Returns: validation error or nil.
func validateListenAddress(fieldPath string, value string) error {
	listen := strings.TrimSpace(value)
	if listen == "" {
		return fmt.Errorf("%s is required", fieldPath)
	}
	if _, _, err := net.SplitHostPort(listen); err != nil {
		return fmt.Errorf("%s must be host:port: %w", fieldPath, err)
	}
	return nil
}

// validateSink validates one logging sink configuration.
// Params: name is sink path for errors; sink is sink config; requirePath means path required when enabled.
// Returns: validation error or nil.
func validateSink(name string, sink LogSinkConfig, requirePath bool) error {
	if sink.Enabled && requirePath && strings.TrimSpace(sink.Path) == "" {
		return fmt.Errorf("%s.path is required when sink is enabled", name)
	}

	if err := validateLogLevel(sink.Level); err != nil {
		return fmt.Errorf("%s.level: %w", name, err)
	}
	if err := validateLogFormat(sink.Format); err != nil {
		return fmt.Errorf("%s.format: %w", name, err)
	}
	switch sink.Color {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("%s.color: unsupported value %q", name, sink.Color)
	}

	return nil
}

// validateLogLevel validates known log levels.
// Params: level is lower-case level name.
// Returns: error when level is unsupported.
func validateLogLevel(level string) error {
	switch strings.TrimSpace(strings.ToLower(level)) {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", level)
	}
}

// validateLogFormat validates supported sink formats.
// Params: format is lower-case format name.
// Returns: error when format is unsupported.
func validateLogFormat(format string) error {
	switch strings.TrimSpace(strings.ToLower(format)) {
	case "line", "json":
		return nil
	default:
		return fmt.Errorf("unsupported value %q", format)
	}
}

// lowerOrDefault returns a trimmed lower-case value or default fallback.
// Params: value to normalize; fallback value when empty.
// Returns: normalized value.
func lowerOrDefault(value, fallback string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return fallback
	}
	return normalized
}
