package pipeline

import (
	"time"

	"github.com/google/uuid"

	"meteostation/internal/observation"
	"meteostation/internal/sensor"
)

// Event is one sampled sensor outcome published to downstream sinks.
// Params: read result plus host identity and derived cache state.
// Returns: one sample event payload.
type Event struct {
	ID          string   `json:"id"`
	DT          uint64   `json:"dt"`
	Host        string   `json:"host"`
	Sensor      string   `json:"sensor"`
	OK          bool     `json:"ok"`
	Temperature *float64 `json:"temperature,omitempty"`
	Humidity    *float64 `json:"humidity,omitempty"`
	Error       string   `json:"error,omitempty"`
	State       string   `json:"state,omitempty"`
}

// newEvent builds an event for one read outcome.
// Params: host/sensor identity; at sample time; reading and err read outcome.
// Returns: event with fresh ID.
func newEvent(host, sensorName string, at time.Time, reading sensor.Reading, err error) Event {
	event := Event{
		ID:     uuid.NewString(),
		DT:     uint64(at.UnixMilli()),
		Host:   host,
		Sensor: sensorName,
		OK:     err == nil,
	}
	if err != nil {
		event.Error = sensor.KindOf(err).String()
		return event
	}

	temperature := reading.Temperature
	humidity := reading.Humidity
	event.Temperature = &temperature
	event.Humidity = &humidity
	return event
}

// withState attaches observation state name.
func (e Event) withState(state observation.State, err error) Event {
	if err != nil {
		e.State = "poisoned"
		return e
	}
	e.State = state.String()
	return e
}
