// Package actuator drives the heater, cooler and humidifier outputs.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package actuator

import (
	"errors"
	"fmt"

	"github.com/afroash/climate-agent/internal/models"
)

// Channel names one actuator output
type Channel string

const (
	Heater     Channel = "heater"
	Cooler     Channel = "cooler"
	Humidifier Channel = "humidifier"
)

// Channels lists every channel in command order
var Channels = []Channel{Heater, Cooler, Humidifier}

// ErrUnknownChannel is returned for a channel name outside Channels
var ErrUnknownChannel = errors.New("unknown actuator channel")

// Port accepts on/off commands for individual channels.
type Port interface {
	Set(ch Channel, on bool) error
}

// Value returns the channel's commanded value within s
func (c Channel) Value(s models.ActuatorState) bool {
	switch c {
	case Heater:
		return s.Heater
	case Cooler:
		return s.Cooler
	case Humidifier:
		return s.Humidifier
	default:
		return false
	}
}

// ParseChannel converts a channel name
func ParseChannel(name string) (Channel, error) {
	for _, ch := range Channels {
		if string(ch) == name {
			return ch, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, name)
}

// Apply commands every channel to its value in s. A failing channel does not
// stop the remaining ones; all failures are joined into the returned error.
func Apply(p Port, s models.ActuatorState) error {
	var errs []error
	for _, ch := range Channels {
		if err := p.Set(ch, ch.Value(s)); err != nil {
			errs = append(errs, fmt.Errorf("set %s: %w", ch, err))
		}
	}
	return errors.Join(errs...)
}

// AllOff commands every channel off
func AllOff(p Port) error {
	return Apply(p, models.AllOff)
}
