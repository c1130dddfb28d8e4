package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"meteostation/internal/sensor"
)

// Gauge names exposed by Streak.
const (
	TemperatureName = "temperature"
	HumidityName    = "humidity"
	OKCountName     = "ok_count"
	ErrorCountName  = "error_count"
)

var (
	temperatureDesc = prometheus.NewDesc(TemperatureName, "Current temperature (Celsius)", nil, nil)
	humidityDesc    = prometheus.NewDesc(HumidityName, "Current humidity (percent)", nil, nil)
	okCountDesc     = prometheus.NewDesc(OKCountName, "Number of successful sensor reads", nil, nil)
	errorCountDesc  = prometheus.NewDesc(ErrorCountName, "Number of unsuccessful sensor reads", nil, nil)
)

// StreakSnapshot is a consistent copy of streak registers.
// Params: last known values and current streak lengths.
// Returns: snapshot value.
type StreakSnapshot struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	OKCount     float64 `json:"ok_count"`
	ErrorCount  float64 `json:"error_count"`
}

// Streak keeps last known values and success/failure run lengths.
// Params: none.
// Returns: prometheus.Collector with four gauges.
type Streak struct {
	mu    sync.RWMutex
	state StreakSnapshot
}

// NewStreak creates zeroed streak metrics.
// Params: none.
// Returns: streak registers.
func NewStreak() *Streak {
	return &Streak{}
}

// RecordSuccess stores reading values and extends the success run.
// Params: temperature and humidity from the reading.
// Returns: none.
func (s *Streak) RecordSuccess(temperature, humidity float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Temperature = temperature
	s.state.Humidity = humidity
	s.state.OKCount++
	s.state.ErrorCount = 0
}

// RecordFailure extends the failure run; last known values are kept.
// Params: none.
// Returns: none.
func (s *Streak) RecordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.ErrorCount++
	s.state.OKCount = 0
}

// Update applies one read outcome.
// Params: reading sampled value; err nil on success.
// Returns: none.
func (s *Streak) Update(reading sensor.Reading, err error) {
	if err != nil {
		s.RecordFailure()
		return
	}
	s.RecordSuccess(reading.Temperature, reading.Humidity)
}

// Snapshot returns all registers from one locked view.
func (s *Streak) Snapshot() StreakSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Temperature returns last known temperature.
func (s *Streak) Temperature() float64 {
	return s.Snapshot().Temperature
}

// Humidity returns last known humidity.
func (s *Streak) Humidity() float64 {
	return s.Snapshot().Humidity
}

// OKCount returns current success run length.
func (s *Streak) OKCount() float64 {
	return s.Snapshot().OKCount
}

// ErrorCount returns current failure run length.
func (s *Streak) ErrorCount() float64 {
	return s.Snapshot().ErrorCount
}

// Describe implements prometheus.Collector.
func (s *Streak) Describe(ch chan<- *prometheus.Desc) {
	ch <- temperatureDesc
	ch <- humidityDesc
	ch <- okCountDesc
	ch <- errorCountDesc
}

// Collect implements prometheus.Collector using one snapshot per scrape.
func (s *Streak) Collect(ch chan<- prometheus.Metric) {
	snapshot := s.Snapshot()
	ch <- prometheus.MustNewConstMetric(temperatureDesc, prometheus.GaugeValue, snapshot.Temperature)
	ch <- prometheus.MustNewConstMetric(humidityDesc, prometheus.GaugeValue, snapshot.Humidity)
	ch <- prometheus.MustNewConstMetric(okCountDesc, prometheus.GaugeValue, snapshot.OKCount)
	ch <- prometheus.MustNewConstMetric(errorCountDesc, prometheus.GaugeValue, snapshot.ErrorCount)
}
