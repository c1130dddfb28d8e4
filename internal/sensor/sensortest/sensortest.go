// Package sensortest provides deterministic sensors for tests.
package sensortest

import (
	"sync"

	"meteostation/internal/sensor"
)

// Static always returns the same reading.
type Static struct {
	Reading sensor.Reading
}

// NewStatic creates a sensor that always succeeds.
func NewStatic(temperature, humidity float64) *Static {
	return &Static{Reading: sensor.Reading{Temperature: temperature, Humidity: humidity}}
}

// Read returns configured reading.
func (s *Static) Read() (sensor.Reading, error) {
	return s.Reading, nil
}

// Failing always fails with one kind.
type Failing struct {
	Kind sensor.ErrorKind
}

// NewFailing creates a sensor that always fails with kind.
func NewFailing(kind sensor.ErrorKind) *Failing {
	return &Failing{Kind: kind}
}

// Read returns configured failure.
func (s *Failing) Read() (sensor.Reading, error) {
	return sensor.Reading{}, &sensor.Error{Kind: s.Kind}
}

// Result is one predefined outcome of a Sequence sensor.
type Result struct {
	Reading sensor.Reading
	Kind    sensor.ErrorKind
	Failed  bool
}

// OK builds a successful result.
func OK(temperature, humidity float64) Result {
	return Result{Reading: sensor.Reading{Temperature: temperature, Humidity: humidity}}
}

// Err builds a failed result.
func Err(kind sensor.ErrorKind) Result {
	return Result{Kind: kind, Failed: true}
}

// Sequence replays results in order and repeats the last one when exhausted.
type Sequence struct {
	mu      sync.Mutex
	results []Result
	next    int
	calls   int
}

// NewSequence creates a replaying sensor.
func NewSequence(results ...Result) *Sequence {
	return &Sequence{results: results}
}

// Read returns the next predefined result.
func (s *Sequence) Read() (sensor.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	if len(s.results) == 0 {
		return sensor.Reading{}, &sensor.Error{Kind: sensor.KindRuntime}
	}

	idx := s.next
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	} else {
		s.next++
	}

	result := s.results[idx]
	if result.Failed {
		return sensor.Reading{}, &sensor.Error{Kind: result.Kind}
	}
	return result.Reading, nil
}

// Calls returns number of Read invocations.
func (s *Sequence) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// DriverFunc adapts a function to sensor.Driver.
type DriverFunc func(pin int) (sensor.Reading, error)

// Read calls f.
func (f DriverFunc) Read(pin int) (sensor.Reading, error) {
	return f(pin)
}

// Panicking panics on every read, like a misbehaving driver binding.
type Panicking struct {
	Message string
}

// Read panics with Message.
func (s *Panicking) Read() (sensor.Reading, error) {
	panic(s.Message)
}
