package observation

import "meteostation/internal/sensor"

// EvictionThreshold is the number of consecutive errors a cached value survives.
const EvictionThreshold = 10

// ErrorStreak describes a run of consecutive failed reads.
// Params: LastError most recent failure kind; Count run length.
// Returns: streak value.
type ErrorStreak struct {
	LastError sensor.ErrorKind `json:"last_error"`
	Count     uint             `json:"count"`
}

// Observation is the cached sensor state.
// Params: Value last usable reading; Error current failure streak.
// Returns: cache entry value.
type Observation struct {
	Value *sensor.Reading `json:"value"`
	Error *ErrorStreak    `json:"error"`
}

// State is the health phase derived from an observation.
// Params: none.
// Returns: enum value.
type State uint8

const (
	// StateIdle means nothing was recorded yet.
	StateIdle State = iota
	// StateHealthy means the last read succeeded.
	StateHealthy
	// StateDegraded means a value is still served despite recent failures.
	StateDegraded
	// StateEvicted means the failure run exceeded EvictionThreshold.
	StateEvicted
)

// String returns state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// MarshalText encodes state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AddValue records a successful reading.
// Params: value new reading.
// Returns: none.
func (o *Observation) AddValue(value sensor.Reading) {
	o.Value = &value
	o.Error = nil
}

// AddError records a failed read and evicts value past the threshold.
// Params: kind failure kind.
// Returns: none.
func (o *Observation) AddError(kind sensor.ErrorKind) {
	streak := o.Error
	if streak == nil {
		streak = &ErrorStreak{}
	}
	streak.LastError = kind
	streak.Count++

	if streak.Count > EvictionThreshold {
		o.Value = nil
	}
	o.Error = streak
}

// State derives the health phase.
// Params: none.
// Returns: current state.
func (o Observation) State() State {
	switch {
	case o.Error == nil && o.Value == nil:
		return StateIdle
	case o.Error == nil:
		return StateHealthy
	case o.Error.Count > EvictionThreshold:
		return StateEvicted
	default:
		return StateDegraded
	}
}

// Serving reports whether the observation carries a value for consumers.
// Params: none.
// Returns: true when a cached reading is present.
func (o Observation) Serving() bool {
	return o.Value != nil
}

// clone returns a deep copy so callers never share pointers with the cache.
func (o Observation) clone() Observation {
	out := Observation{}
	if o.Value != nil {
		value := *o.Value
		out.Value = &value
	}
	if o.Error != nil {
		streak := *o.Error
		out.Error = &streak
	}
	return out
}
