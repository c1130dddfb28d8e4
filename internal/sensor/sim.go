package sensor

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// SimDriver emulates a DHT22 for hosts without the sensor attached.
// Params: failure ratio and random source.
// Returns: Driver implementation.
type SimDriver struct {
	mu        sync.Mutex
	rng       *rand.Rand
	failRatio float64
	now       func() time.Time
}

// NewSimDriver creates a simulated driver.
// Params: failRatio probability in [0,1] that one read fails; seed random seed.
// Returns: simulated driver.
func NewSimDriver(failRatio float64, seed uint64) *SimDriver {
	return &SimDriver{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		failRatio: math.Max(0, math.Min(1, failRatio)),
		now:       time.Now,
	}
}

// Read produces a slowly varying sample or a random driver error.
// Params: pin is ignored beyond being part of the driver contract.
// Returns: simulated reading or driver error.
func (d *SimDriver) Read(pin int) (Reading, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.failRatio > 0 && d.rng.Float64() < d.failRatio {
		switch d.rng.IntN(3) {
		case 0:
			return Reading{}, ErrTimeout
		case 1:
			return Reading{}, ErrChecksum
		default:
			return Reading{}, &GPIOError{}
		}
	}

	// One-hour cycle keeps values in a plausible indoor range.
	phase := float64(d.now().Unix()%3600) / 3600 * 2 * math.Pi
	temperature := 22 + 3*math.Sin(phase) + d.rng.NormFloat64()*0.1
	humidity := 50 + 10*math.Cos(phase) + d.rng.NormFloat64()*0.5
	return Reading{
		Temperature: math.Round(temperature*10) / 10,
		Humidity:    math.Round(humidity*10) / 10,
	}, nil
}
