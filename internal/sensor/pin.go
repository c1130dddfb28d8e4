package sensor

import "fmt"

// PinSensor binds a driver to one data pin.
// Params: driver implementation and pin number.
// Returns: Sensor implementation.
type PinSensor struct {
	driver Driver
	pin    int
}

// NewPinSensor creates a sensor reading pin through driver.
// Params: driver device driver; pin GPIO line number.
// Returns: bound sensor.
func NewPinSensor(driver Driver, pin int) *PinSensor {
	return &PinSensor{driver: driver, pin: pin}
}

// Read performs one synchronous driver read.
// Params: none.
// Returns: reading or *Error; driver panics are reported as KindRuntime.
func (s *PinSensor) Read() (reading Reading, err error) {
	defer func() {
		if r := recover(); r != nil {
			reading = Reading{}
			err = &Error{Kind: KindRuntime, Err: fmt.Errorf("driver panic on pin %d: %v", s.pin, r)}
		}
	}()

	reading, err = s.driver.Read(s.pin)
	if err != nil {
		return Reading{}, &Error{Kind: Classify(err), Err: err}
	}
	return reading, nil
}
