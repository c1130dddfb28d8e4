package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"meteostation/internal/metrics"
	"meteostation/internal/observation"
	"meteostation/internal/sensor"
)

const sinkConsumeTimeout = 2 * time.Second

// Updater receives every read outcome produced by the update action.
// Params: reading sampled value; err nil on success.
// Returns: none.
type Updater interface {
	Update(reading sensor.Reading, err error)
}

// UpdateConfig holds update action dependencies.
// Params: sensor source, shared cache/metrics handles, extra targets and event sink.
// Returns: configuration for NewUpdateAction.
type UpdateConfig struct {
	Host       string
	SensorName string
	Sensor     sensor.Sensor
	Cache      *observation.Cache
	Metrics    *metrics.Streak
	Targets    []Updater
	Sink       Sink
	Now        func() time.Time
}

// UpdateAction samples the sensor once per invocation and fans the outcome out.
// Params: validated update config.
// Returns: poller action.
type UpdateAction struct {
	host       string
	sensorName string
	sensor     sensor.Sensor
	cache      *observation.Cache
	targets    []Updater
	sink       Sink
	now        func() time.Time
	logger     *slog.Logger
}

// NewUpdateAction validates dependencies and builds the action.
// Params: cfg dependencies; logger runtime logger.
// Returns: action or configuration error.
func NewUpdateAction(cfg UpdateConfig, logger *slog.Logger) (*UpdateAction, error) {
	if cfg.Sensor == nil {
		return nil, fmt.Errorf("update action: sensor is nil")
	}
	if cfg.Cache == nil {
		return nil, fmt.Errorf("update action: observation cache is nil")
	}
	if cfg.Metrics == nil {
		return nil, fmt.Errorf("update action: streak metrics are nil")
	}

	targets := make([]Updater, 0, 2+len(cfg.Targets))
	targets = append(targets, cfg.Cache, cfg.Metrics)
	for _, target := range cfg.Targets {
		if target != nil {
			targets = append(targets, target)
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &UpdateAction{
		host:       cfg.Host,
		sensorName: cfg.SensorName,
		sensor:     cfg.Sensor,
		cache:      cfg.Cache,
		targets:    targets,
		sink:       cfg.Sink,
		now:        now,
		logger:     logger,
	}, nil
}

// Invoke reads the sensor exactly once and applies the outcome to every target.
// Params: none.
// Returns: none; read failures are recorded, never returned.
func (a *UpdateAction) Invoke() {
	at := a.now()
	reading, err := a.sensor.Read()
	if err != nil {
		a.logger.Warn(
			"sensor read failed",
			slog.String("sensor", a.sensorName),
			slog.String("kind", sensor.KindOf(err).String()),
			slog.String("error", err.Error()),
		)
	} else {
		a.logger.Info(
			"sensor reading",
			slog.String("sensor", a.sensorName),
			slog.Float64("temperature", reading.Temperature),
			slog.Float64("humidity", reading.Humidity),
		)
	}

	for _, target := range a.targets {
		target.Update(reading, err)
	}

	if a.sink == nil {
		return
	}

	state, stateErr := a.cache.State()
	event := newEvent(a.host, a.sensorName, at, reading, err).withState(state, stateErr)

	ctx, cancel := context.WithTimeout(context.Background(), sinkConsumeTimeout)
	defer cancel()
	if sinkErr := a.sink.Consume(ctx, event); sinkErr != nil {
		a.logger.Warn("sample event dropped", slog.String("id", event.ID), slog.String("error", sinkErr.Error()))
	}
}
