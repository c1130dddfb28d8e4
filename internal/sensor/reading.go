package sensor

import "fmt"

// Reading is one successful temperature/humidity sample.
// Params: Temperature in degrees Celsius; Humidity in percent RH.
// Returns: immutable sample value.
type Reading struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
}

// String renders reading in log-friendly form.
// Params: none.
// Returns: formatted reading.
func (r Reading) String() string {
	return fmt.Sprintf("t=%g humidity=%g", r.Temperature, r.Humidity)
}

// Sensor reads one sample from a bound physical channel.
// Params: none.
// Returns: reading or *Error describing failure kind.
type Sensor interface {
	Read() (Reading, error)
}

// Driver reads raw samples from a device addressed by pin.
// Params: pin is the GPIO line the sensor data wire is attached to.
// Returns: reading or driver error (ErrTimeout, ErrChecksum, *GPIOError).
type Driver interface {
	Read(pin int) (Reading, error)
}
