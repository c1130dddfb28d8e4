package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"meteostation/internal/config"
	"meteostation/internal/exposition"
	"meteostation/internal/health"
	"meteostation/internal/metrics"
	"meteostation/internal/observation"
	"meteostation/internal/poller"
	"meteostation/internal/sensor"
)

// Engine owns the sensor poller and exporter servers lifecycle.
// Params: runner list, shared state handles and logger.
// Returns: pipeline runtime engine.
type Engine struct {
	runners  []runner
	closers  []func()
	cache    *observation.Cache
	streak   *metrics.Streak
	registry *exposition.Registry
	server   *metricsServer
	logger   *slog.Logger
}

type runner interface {
	run(context.Context) error
}

// runnerFunc adapts a Run-style function to runner.
type runnerFunc func(context.Context) error

func (f runnerFunc) run(ctx context.Context) error {
	return f(ctx)
}

// NewFromConfig builds the poller, exporter and optional sinks for configured sensor.
// Params: ctx lifecycle context; cfg validated runtime config; logger initialized logger.
// Returns: engine with bound listeners or error.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	driver, err := NewDriver(cfg.Sensor)
	if err != nil {
		return nil, err
	}
	return newEngine(ctx, cfg, sensor.NewPinSensor(driver, cfg.Sensor.Pin), logger)
}

// NewDriver selects the sensor driver named in config.
// Params: cfg sensor section.
// Returns: driver or error for unknown names.
func NewDriver(cfg config.SensorConfig) (sensor.Driver, error) {
	switch cfg.Driver {
	case config.DriverIIO:
		return sensor.NewIIODriver(cfg.IIORoot, cfg.Device), nil
	case config.DriverSim:
		return sensor.NewSimDriver(cfg.FailRatio, cfg.Seed), nil
	default:
		return nil, fmt.Errorf("unsupported sensor driver %q", cfg.Driver)
	}
}

// newEngine wires one sensor into cache, metrics, sinks and servers.
// Params: ctx lifecycle context; cfg runtime config; src sensor; logger runtime logger.
// Returns: engine or startup error with partial resources released.
func newEngine(ctx context.Context, cfg *config.Config, src sensor.Sensor, logger *slog.Logger) (*Engine, error) {
	if ctx.Err() != nil {
		return nil, fmt.Errorf("engine context canceled: %w", ctx.Err())
	}

	sensorName := cfg.Sensor.Driver + ":" + strconv.Itoa(cfg.Sensor.Pin)
	engine := &Engine{
		cache:  observation.New(),
		streak: metrics.NewStreak(),
		logger: logger.With(slog.String("sensor", sensorName)),
	}

	registry, err := exposition.NewRegistry(engine.streak)
	if err != nil {
		return nil, fmt.Errorf("init registry: %w", err)
	}
	engine.registry = registry

	sinks := make([]Sink, 0, 2)
	if cfg.Events.Log {
		sinks = append(sinks, NewLogSink(logger))
	}
	if cfg.Events.NATS.Enabled {
		natsSink, natsErr := NewNATSSink(cfg.Events.NATS.URL, cfg.Events.NATS.Subject, "meteostation-"+cfg.Global.Host, logger)
		if natsErr != nil {
			return nil, fmt.Errorf("init nats sink: %w", natsErr)
		}
		sinks = append(sinks, natsSink)
		engine.closers = append(engine.closers, natsSink.Close)
	}

	var sink Sink
	if len(sinks) > 0 {
		sink = NewMultiSink(sinks...)
	}

	var targets []Updater
	if listen := cfg.Health.GRPCListen; listen != "" {
		reporter, healthErr := health.NewReporter(listen, engine.cache, logger)
		if healthErr != nil {
			engine.close()
			return nil, fmt.Errorf("init grpc health: %w", healthErr)
		}
		targets = append(targets, reporter)
		engine.closers = append(engine.closers, reporter.Close)
		engine.runners = append(engine.runners, runnerFunc(reporter.Run))
	}

	action, err := NewUpdateAction(UpdateConfig{
		Host:       cfg.Global.Host,
		SensorName: sensorName,
		Sensor:     src,
		Cache:      engine.cache,
		Metrics:    engine.streak,
		Targets:    targets,
		Sink:       sink,
	}, logger)
	if err != nil {
		engine.close()
		return nil, err
	}

	server, err := newMetricsServer(
		cfg.Exporter.Listen,
		newExporterMux(cfg.Exporter.Path, registry.Handler(), engine.cache),
		logger,
	)
	if err != nil {
		engine.close()
		return nil, fmt.Errorf("init metrics server: %w", err)
	}
	engine.server = server

	interval := cfg.Sensor.Interval.Duration
	engine.runners = append(engine.runners,
		server,
		runnerFunc(func(runCtx context.Context) error {
			return poller.Start(interval, action, engine.logger).Run(runCtx)
		}),
	)

	return engine, nil
}

// Run starts all runners and waits for context cancellation.
// Params: ctx lifecycle context.
// Returns: nil on graceful stop.
func (e *Engine) Run(ctx context.Context) error {
	defer e.close()

	var wg sync.WaitGroup
	wg.Add(len(e.runners))

	for _, r := range e.runners {
		go func(activeRunner runner) {
			defer wg.Done()
			if err := activeRunner.run(ctx); err != nil {
				e.logger.Error("runner stopped with error", slog.String("error", err.Error()))
			}
		}(r)
	}

	<-ctx.Done()
	wg.Wait()
	return nil
}

// Cache returns the shared observation cache.
func (e *Engine) Cache() *observation.Cache {
	return e.cache
}

// Streak returns the shared streak metrics.
func (e *Engine) Streak() *metrics.Streak {
	return e.streak
}

// Registry returns the exposition registry.
func (e *Engine) Registry() *exposition.Registry {
	return e.registry
}

// Addr returns the bound exporter address.
func (e *Engine) Addr() string {
	if e.server == nil {
		return ""
	}
	return e.server.addr()
}

// close releases sink connections.
func (e *Engine) close() {
	for _, closeFn := range e.closers {
		closeFn()
	}
	e.closers = nil
}
