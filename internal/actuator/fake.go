package actuator

import (
	"sync"

	"github.com/afroash/climate-agent/internal/models"
)

// Command is one recorded Set call
type Command struct {
	Channel Channel
	On      bool
}

// FakeBank is a test double that records every command.
type FakeBank struct {
	mu sync.Mutex

	// Commands holds every Set call in order
	Commands []Command

	// Errors, if set for a channel, is returned by Set for that channel.
	// The command is still recorded.
	Errors map[Channel]error

	// Closed tracks if Close was called
	Closed bool

	state models.ActuatorState
}

// NewFakeBank creates an empty FakeBank
func NewFakeBank() *FakeBank {
	return &FakeBank{Errors: make(map[Channel]error)}
}

// Set records the command and updates the simulated output state.
func (f *FakeBank) Set(ch Channel, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Commands = append(f.Commands, Command{Channel: ch, On: on})
	if err := f.Errors[ch]; err != nil {
		return err
	}

	switch ch {
	case Heater:
		f.state.Heater = on
	case Cooler:
		f.state.Cooler = on
	case Humidifier:
		f.state.Humidifier = on
	default:
		return ErrUnknownChannel
	}
	return nil
}

// SetError makes Set fail for ch
func (f *FakeBank) SetError(ch Channel, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[ch] = err
}

// State returns the simulated output levels
func (f *FakeBank) State() models.ActuatorState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// History returns a copy of the recorded commands
func (f *FakeBank) History() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Command, len(f.Commands))
	copy(out, f.Commands)
	return out
}

// Close marks the bank as closed.
func (f *FakeBank) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears recorded commands and state
func (f *FakeBank) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Commands = nil
	f.Errors = make(map[Channel]error)
	f.Closed = false
	f.state = models.ActuatorState{}
}
