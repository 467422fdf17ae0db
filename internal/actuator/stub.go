//go:build !linux

package actuator

import "errors"

// Pins maps each channel to a BCM line offset
type Pins struct {
	Heater     int
	Cooler     int
	Humidifier int
}

// GPIOBank is not available on non-Linux platforms.
type GPIOBank struct{}

// NewGPIOBank returns an error on non-Linux platforms.
func NewGPIOBank(chipName string, pins Pins, activeLow bool) (*GPIOBank, error) {
	return nil, errors.New("actuator: gpio not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (b *GPIOBank) Set(ch Channel, on bool) error {
	return errors.New("actuator: gpio not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *GPIOBank) Close() error {
	return nil
}
