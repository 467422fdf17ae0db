package control

import (
	"sync"

	"github.com/afroash/climate-agent/internal/models"
	"github.com/rs/zerolog"
)

// State is the actuator command set shared with the models package
type State = models.ActuatorState

// OverrideStore holds the remote manual command, if any.
// Writes come from the control channel at arbitrary moments; reads come from
// the cycle. The whole command is swapped under the lock, so a reader sees
// either the old or the new value, never a mix.
type OverrideStore struct {
	mu      sync.RWMutex
	command *State
	logger  zerolog.Logger
}

// NewOverrideStore creates an empty store (autonomous control)
func NewOverrideStore(logger zerolog.Logger) *OverrideStore {
	return &OverrideStore{logger: logger}
}

// Apply handles an inbound control message. A manual message with a state
// replaces the command; anything else clears it.
func (s *OverrideStore) Apply(msg models.ControlMessage) {
	state, ok := msg.Override()

	s.mu.Lock()
	if ok {
		s.command = &state
	} else {
		s.command = nil
	}
	s.mu.Unlock()

	if ok {
		s.logger.Info().
			Bool("heater", state.Heater).
			Bool("cooler", state.Cooler).
			Bool("humidifier", state.Humidifier).
			Msg("Manual control engaged")
		return
	}
	s.logger.Info().Msg("Manual control released")
}

// ClearOnDisconnect drops any manual command. Called whenever the control
// channel goes away.
func (s *OverrideStore) ClearOnDisconnect() {
	s.mu.Lock()
	had := s.command != nil
	s.command = nil
	s.mu.Unlock()

	if had {
		s.logger.Warn().Msg("Control channel lost, manual control released")
	}
}

// Current returns the active manual command and true, or false when absent.
func (s *OverrideStore) Current() (State, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.command == nil {
		return State{}, false
	}
	return *s.command, true
}
