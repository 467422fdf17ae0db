//go:build linux

package actuator

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Pins maps each channel to a BCM line offset
type Pins struct {
	Heater     int
	Cooler     int
	Humidifier int
}

// outputLine is the part of *gpiocdev.Line the bank drives
type outputLine interface {
	SetValue(value int) error
	Close() error
}

// GPIOBank drives relay outputs using the Linux GPIO character device.
type GPIOBank struct {
	chip      *gpiocdev.Chip
	lines     map[Channel]outputLine
	activeLow bool
}

// NewGPIOBank requests one output line per channel, all initially off.
func NewGPIOBank(chipName string, pins Pins, activeLow bool) (*GPIOBank, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	b := &GPIOBank{
		chip:      chip,
		lines:     make(map[Channel]outputLine, len(Channels)),
		activeLow: activeLow,
	}

	offsets := map[Channel]int{
		Heater:     pins.Heater,
		Cooler:     pins.Cooler,
		Humidifier: pins.Humidifier,
	}
	for _, ch := range Channels {
		opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
		if activeLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}
		line, err := chip.RequestLine(offsets[ch], opts...)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", ch, offsets[ch], err)
		}
		b.lines[ch] = line
	}

	return b, nil
}

// Set drives the line for ch. Active-low wiring is handled by the line config.
func (b *GPIOBank) Set(ch Channel, on bool) error {
	line, ok := b.lines[ch]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownChannel, ch)
	}
	v := 0
	if on {
		v = 1
	}
	if err := line.SetValue(v); err != nil {
		return fmt.Errorf("write %s pin: %w", ch, err)
	}
	return nil
}

// Close drives every line off and releases the chip.
func (b *GPIOBank) Close() error {
	var errs []error

	for _, ch := range Channels {
		line, ok := b.lines[ch]
		if !ok {
			continue
		}
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("reset %s pin: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", ch, err))
		}
	}
	if b.chip != nil {
		if err := b.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	return errors.Join(errs...)
}
