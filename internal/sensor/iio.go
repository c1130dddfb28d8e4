package sensor

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
	"periph.io/x/periph/conn/physic"
)

const (
	// DefaultIIORoot is the sysfs directory with industrial I/O devices.
	DefaultIIORoot = "/sys/bus/iio/devices"

	iioTempFile     = "in_temp_input"
	iioHumidityFile = "in_humidityrelative_input"
	iioNameFile     = "name"
)

// IIODriver reads DHT11/DHT22 sensors exposed by the Linux dht11 IIO driver.
// Params: sysfs root and optional fixed device directory.
// Returns: Driver implementation.
type IIODriver struct {
	root   string
	device string

	mu       sync.Mutex
	resolved map[int]string
}

// NewIIODriver creates an IIO driver.
// Params: root sysfs IIO directory (empty means DefaultIIORoot); device fixed device dir (empty means lookup by pin).
// Returns: configured driver.
func NewIIODriver(root string, device string) *IIODriver {
	root = strings.TrimSpace(root)
	if root == "" {
		root = DefaultIIORoot
	}
	return &IIODriver{
		root:     root,
		device:   strings.TrimSpace(device),
		resolved: make(map[int]string),
	}
}

// Read samples temperature and humidity channels of the device bound to pin.
// Params: pin GPIO line configured in the dht11 overlay.
// Returns: reading or ErrTimeout/ErrChecksum/*GPIOError.
func (d *IIODriver) Read(pin int) (Reading, error) {
	dir, err := d.deviceDir(pin)
	if err != nil {
		return Reading{}, &GPIOError{Err: err}
	}

	milliC, err := readIIOChannel(filepath.Join(dir, iioTempFile))
	if err != nil {
		d.forgetOnFault(pin, err)
		return Reading{}, err
	}
	milliRH, err := readIIOChannel(filepath.Join(dir, iioHumidityFile))
	if err != nil {
		d.forgetOnFault(pin, err)
		return Reading{}, err
	}

	temperature := physic.ZeroCelsius + physic.Temperature(milliC)*physic.MilliKelvin
	humidity := physic.RelativeHumidity(milliRH) * (physic.PercentRH / 1000)
	return readingFromPhysic(temperature, humidity), nil
}

// deviceDir resolves and memoizes device directory for pin.
// Params: pin GPIO line.
// Returns: device directory or lookup error.
func (d *IIODriver) deviceDir(pin int) (string, error) {
	if d.device != "" {
		return d.device, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if dir, ok := d.resolved[pin]; ok {
		return dir, nil
	}

	dir, err := findIIODevice(d.root, pin)
	if err != nil {
		return "", err
	}
	d.resolved[pin] = dir
	return dir, nil
}

// forgetOnFault drops the memoized device of pin after a GPIO fault so the
// next read scans again (devices re-enumerate on driver reload).
func (d *IIODriver) forgetOnFault(pin int, err error) {
	var gpioErr *GPIOError
	if d.device != "" || !errors.As(err, &gpioErr) {
		return
	}
	d.mu.Lock()
	delete(d.resolved, pin)
	d.mu.Unlock()
}

// findIIODevice scans IIO devices for the dht11 node attached to pin.
// Params: root sysfs IIO directory; pin GPIO line (node unit address is hex).
// Returns: matching device directory or error.
func findIIODevice(root string, pin int) (string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return "", fmt.Errorf("read iio root %q: %w", root, err)
	}

	want := "dht11@" + strconv.FormatInt(int64(pin), 16)
	for _, entry := range entries {
		dir := filepath.Join(root, entry.Name())
		raw, readErr := os.ReadFile(filepath.Join(dir, iioNameFile))
		if readErr != nil {
			continue
		}
		if strings.TrimSpace(string(raw)) == want {
			return dir, nil
		}
	}
	return "", fmt.Errorf("no iio device %q under %q", want, root)
}

// readIIOChannel reads one integer channel and maps kernel errno values.
// Params: path channel file.
// Returns: raw channel value or driver error.
func readIIOChannel(path string) (int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		switch {
		case errors.Is(err, unix.ETIMEDOUT):
			return 0, fmt.Errorf("%w: %s", ErrTimeout, filepath.Base(path))
		case errors.Is(err, unix.EIO):
			return 0, fmt.Errorf("%w: %s", ErrChecksum, filepath.Base(path))
		default:
			return 0, &GPIOError{Err: err}
		}
	}

	value, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: parse %s: %v", ErrChecksum, filepath.Base(path), err)
	}
	return value, nil
}

// readingFromPhysic converts periph physical units into Reading.
// Params: t absolute temperature; h relative humidity.
// Returns: reading in Celsius and percent RH.
func readingFromPhysic(t physic.Temperature, h physic.RelativeHumidity) Reading {
	return Reading{
		Temperature: float64(t-physic.ZeroCelsius) / float64(physic.Kelvin),
		Humidity:    float64(h) / float64(physic.PercentRH),
	}
}
