package observation

import (
	"errors"
	"sync"

	"meteostation/internal/sensor"
)

// ErrPoisoned reports that a writer panicked while holding the cache lock.
var ErrPoisoned = errors.New("sensor is poisoned")

// Cache holds the latest observation for many concurrent readers and one writer.
// Params: none.
// Returns: shared observation handle.
type Cache struct {
	mu       sync.RWMutex
	current  Observation
	poisoned bool
}

// New creates an empty cache.
// Params: none.
// Returns: cache in idle state.
func New() *Cache {
	return &Cache{}
}

// Read returns a snapshot copy of the current observation.
// Params: none.
// Returns: observation snapshot or ErrPoisoned.
func (c *Cache) Read() (Observation, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.poisoned {
		return Observation{}, ErrPoisoned
	}
	return c.current.clone(), nil
}

// State returns the health phase of the current observation.
// Params: none.
// Returns: state or ErrPoisoned.
func (c *Cache) State() (State, error) {
	obs, err := c.Read()
	if err != nil {
		return StateIdle, err
	}
	return obs.State(), nil
}

// Update applies one read outcome.
// Params: reading sampled value; err nil on success, read error otherwise.
// Returns: none.
func (c *Cache) Update(reading sensor.Reading, err error) {
	if err != nil {
		kind := sensor.KindOf(err)
		c.mutate(func(o *Observation) { o.AddError(kind) })
		return
	}
	c.mutate(func(o *Observation) { o.AddValue(reading) })
}

// mutate runs fn under the write lock and poisons the cache if fn panics.
// Params: fn mutation applied to current observation.
// Returns: none; re-panics after poisoning.
func (c *Cache) mutate(fn func(*Observation)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.poisoned {
		return
	}

	completed := false
	defer func() {
		if !completed {
			c.poisoned = true
		}
	}()

	fn(&c.current)
	completed = true
}
