package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"meteostation/internal/config"
	"meteostation/internal/exposition"
	"meteostation/internal/health"
	"meteostation/internal/metrics"
	"meteostation/internal/pipeline"
	"meteostation/internal/sensor"
)

const (
	exitCodeFailure = 1
	exitCodeUsage   = 2
	remoteTimeout   = 5 * time.Second
)

// options holds parsed command line flags.
type options struct {
	configPath string
	driver     string
	pin        int
	device     string
	iioRoot    string
	url        string
	healthAddr string
}

// run reads the sensor once and prints the result.
// Params: args command line arguments without program name; stdout/stderr output streams.
// Returns: process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return exitCodeUsage
	}

	switch {
	case opts.healthAddr != "":
		return probeHealth(opts.healthAddr, stdout, stderr)
	case opts.url != "":
		return readRemote(opts.url, stdout, stderr)
	default:
		return readLocal(opts, stdout, stderr)
	}
}

// parseFlags parses arguments into options.
// Params: args raw arguments; stderr usage output.
// Returns: options or flag error.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("meteo-read", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "read [sensor] settings from TOML/YAML config")
	fs.StringVar(&opts.driver, "driver", config.DriverIIO, "sensor driver: iio or sim")
	fs.IntVar(&opts.pin, "pin", 4, "sensor data pin")
	fs.StringVar(&opts.device, "device", "", "explicit IIO device directory")
	fs.StringVar(&opts.iioRoot, "iio-root", sensor.DefaultIIORoot, "IIO devices root")
	fs.StringVar(&opts.url, "url", "", "read gauges from a running exporter metrics URL instead of the sensor")
	fs.StringVar(&opts.healthAddr, "health", "", "query gRPC health of a running exporter at host:port")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	return opts, nil
}

// readLocal samples the configured sensor once.
// Params: opts parsed flags; stdout/stderr output streams.
// Returns: exit code.
func readLocal(opts options, stdout, stderr io.Writer) int {
	sensorCfg := config.SensorConfig{
		Driver:  strings.ToLower(opts.driver),
		Pin:     opts.pin,
		Device:  opts.device,
		IIORoot: opts.iioRoot,
	}
	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitCodeFailure
		}
		sensorCfg = cfg.Sensor
	}

	driver, err := pipeline.NewDriver(sensorCfg)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCodeUsage
	}

	reading, err := sensor.NewPinSensor(driver, sensorCfg.Pin).Read()
	if err != nil {
		fmt.Fprintf(stdout, "Error: %s\n", sensor.KindOf(err))
		return exitCodeFailure
	}
	printReading(stdout, reading.Temperature, reading.Humidity)
	return 0
}

// readRemote prints gauges served by a running exporter.
// Params: metricsURL metrics endpoint; stdout/stderr output streams.
// Returns: exit code.
func readRemote(metricsURL string, stdout, stderr io.Writer) int {
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()

	values, err := exposition.Fetch(ctx, metricsURL, remoteTimeout)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCodeFailure
	}

	temperature, okT := values[metrics.TemperatureName]
	humidity, okH := values[metrics.HumidityName]
	if !okT || !okH {
		fmt.Fprintln(stderr, "error: exporter does not serve sensor gauges")
		return exitCodeFailure
	}

	okCount := values[metrics.OKCountName]
	failures := values[metrics.ErrorCountName]
	hasValue, known := cachedValuePresent(ctx, metricsURL)
	if !known {
		// Exporters without /observation: zero gauges mean no value was kept.
		hasValue = temperature != 0 || humidity != 0
	}
	switch {
	case okCount == 0 && failures == 0:
		fmt.Fprintln(stdout, "Error: no reading yet")
		return exitCodeFailure
	case okCount == 0 && !hasValue:
		fmt.Fprintf(stdout, "Error: last %s reads failed\n", formatValue(failures))
		return exitCodeFailure
	}

	printReading(stdout, temperature, humidity)
	if failures > 0 {
		fmt.Fprintf(stdout, "Failures:\t%s\n", formatValue(failures))
	}
	return 0
}

// cachedValuePresent asks the exporter's /observation route whether a value is cached.
// Params: ctx request context; metricsURL metrics endpoint on the same server.
// Returns: value presence and whether the route answered with an observation.
func cachedValuePresent(ctx context.Context, metricsURL string) (bool, bool) {
	target, err := url.Parse(metricsURL)
	if err != nil {
		return false, false
	}
	target.Path = "/observation"
	target.RawQuery = ""

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return false, false
	}
	resp, err := (&http.Client{Timeout: remoteTimeout}).Do(req)
	if err != nil {
		return false, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, false
	}

	var body struct {
		State *string         `json:"state"`
		Value *sensor.Reading `json:"value"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&body); err != nil || body.State == nil {
		return false, false
	}
	return body.Value != nil, true
}

// probeHealth prints gRPC health status.
// Params: addr host:port; stdout/stderr output streams.
// Returns: 0 when serving.
func probeHealth(addr string, stdout, stderr io.Writer) int {
	status, err := health.Probe(context.Background(), addr, remoteTimeout)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitCodeFailure
	}
	fmt.Fprintf(stdout, "Health:\t%s\n", status)
	if status != healthpb.HealthCheckResponse_SERVING {
		return exitCodeFailure
	}
	return 0
}

// printReading writes the two-line reading block.
func printReading(w io.Writer, temperature, humidity float64) {
	fmt.Fprintf(w, "Temperature:\t%s\nHumidity:\t%s\n", formatValue(temperature), formatValue(humidity))
}

// formatValue renders the shortest exact decimal.
func formatValue(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}
