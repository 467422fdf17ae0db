package control

import (
	"errors"
	"sync"
	"time"

	"github.com/afroash/climate-agent/internal/actuator"
	"github.com/afroash/climate-agent/internal/metrics"
	"github.com/afroash/climate-agent/internal/models"
	"github.com/rs/zerolog"
)

// ErrShutdown is returned by cycle methods once Shutdown has run
var ErrShutdown = errors.New("arbiter shut down")

// OverrideSource yields the active manual command, if any
type OverrideSource interface {
	Current() (State, bool)
}

// Broadcaster announces autonomous decisions on the control channel
type Broadcaster interface {
	BroadcastAuto(state State) error
}

// Snapshot is the arbiter's view for status reporting
type Snapshot struct {
	State       State              `json:"state"`
	Mode        models.ControlMode `json:"mode"`
	Applied     bool               `json:"applied"`
	Daytime     bool               `json:"daytime"`
	LastReading *models.Reading    `json:"last_reading,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at,omitempty"`
	ShutDown    bool               `json:"shut_down"`
}

// Arbiter chooses between the rule engine and the manual override each cycle
// and drives the actuators. It is the single owner of the applied state.
type Arbiter struct {
	overrides   OverrideSource
	port        actuator.Port
	broadcaster Broadcaster
	location    *time.Location
	logger      zerolog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	// cycleMu serialises actuation so Shutdown always issues the last commands.
	cycleMu sync.Mutex

	mu       sync.RWMutex
	snapshot Snapshot

	// outbox holds the latest undelivered autonomous decision
	outbox chan State
	done   chan struct{}

	shutdownOnce sync.Once
	shutdownErr  error
}

// NewArbiter creates an arbiter. broadcaster may be nil when no control
// channel is configured; location defaults to time.Local.
// Broadcasts are delivered from a separate goroutine that stops on Shutdown.
func NewArbiter(overrides OverrideSource, port actuator.Port, broadcaster Broadcaster, location *time.Location, logger zerolog.Logger) *Arbiter {
	if location == nil {
		location = time.Local
	}
	a := &Arbiter{
		overrides:   overrides,
		port:        port,
		broadcaster: broadcaster,
		location:    location,
		logger:      logger,
		now:         time.Now,
		snapshot:    Snapshot{Mode: models.ModeAuto},
		outbox:      make(chan State, 1),
		done:        make(chan struct{}),
	}
	if broadcaster != nil {
		go a.broadcastLoop()
	}
	return a
}

// SetMetrics attaches instruments
func (a *Arbiter) SetMetrics(m *metrics.Metrics) {
	a.metrics = m
}

// RunCycle decides and applies the actuator state for a fresh reading.
// The returned error only reports actuator faults; every channel is still
// attempted and the target is recorded as the applied state.
func (a *Arbiter) RunCycle(r models.Reading) (State, error) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	if a.isShutDown() {
		return State{}, ErrShutdown
	}

	daytime := IsDaytime(r.Timestamp(a.location))

	target, manual := a.overrides.Current()
	mode := models.ModeManual
	if !manual {
		mode = models.ModeAuto
		target = Decide(r.Temperature, r.Humidity, daytime)
	}

	err := a.apply(target, mode)
	if !manual {
		a.broadcast(target)
	}

	reading := r
	a.mu.Lock()
	a.snapshot.State = target
	a.snapshot.Mode = mode
	a.snapshot.Applied = true
	a.snapshot.Daytime = daytime
	a.snapshot.LastReading = &reading
	a.snapshot.UpdatedAt = a.now()
	a.mu.Unlock()

	a.logger.Info().
		Str("mode", string(mode)).
		Bool("daytime", daytime).
		Bool("heater", target.Heater).
		Bool("cooler", target.Cooler).
		Bool("humidifier", target.Humidifier).
		Msg("Cycle applied")

	return target, err
}

// HoldOverride runs when the sensor failed this cycle. An active override is
// re-applied; otherwise nothing is commanded and the applied state is left
// as it was. The bool reports whether anything was applied.
func (a *Arbiter) HoldOverride() (State, bool, error) {
	a.cycleMu.Lock()
	defer a.cycleMu.Unlock()

	if a.isShutDown() {
		return State{}, false, ErrShutdown
	}

	target, manual := a.overrides.Current()
	if !manual {
		a.logger.Debug().Msg("No reading and no override, keeping previous state")
		return a.State().State, false, nil
	}

	err := a.apply(target, models.ModeManual)

	a.mu.Lock()
	a.snapshot.State = target
	a.snapshot.Mode = models.ModeManual
	a.snapshot.Applied = true
	a.snapshot.UpdatedAt = a.now()
	a.mu.Unlock()

	a.logger.Info().
		Bool("heater", target.Heater).
		Bool("cooler", target.Cooler).
		Bool("humidifier", target.Humidifier).
		Msg("Override re-applied without fresh reading")

	return target, true, err
}

// Shutdown commands every channel off exactly once. Later calls return the
// first result; cycles after Shutdown do nothing.
func (a *Arbiter) Shutdown() error {
	a.shutdownOnce.Do(func() {
		a.cycleMu.Lock()
		defer a.cycleMu.Unlock()
		close(a.done)

		a.mu.Lock()
		a.snapshot.ShutDown = true
		a.mu.Unlock()

		a.shutdownErr = a.apply(models.AllOff, models.ModeAuto)
		a.mu.Lock()
		a.snapshot.State = models.AllOff
		a.snapshot.UpdatedAt = a.now()
		a.mu.Unlock()

		if a.shutdownErr != nil {
			a.logger.Error().Err(a.shutdownErr).Msg("Fail-safe shutdown incomplete")
		} else {
			a.logger.Info().Msg("All actuators commanded off")
		}
	})
	return a.shutdownErr
}

// State returns a copy of the current snapshot
func (a *Arbiter) State() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s := a.snapshot
	if s.LastReading != nil {
		r := *s.LastReading
		s.LastReading = &r
	}
	return s
}

func (a *Arbiter) isShutDown() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snapshot.ShutDown
}

func (a *Arbiter) apply(target State, mode models.ControlMode) error {
	err := actuator.Apply(a.port, target)
	if err != nil {
		a.logger.Warn().Err(err).Msg("Actuator command failed")
	}
	a.metrics.ObserveState(target, mode)
	return err
}

// broadcast queues target without blocking. An older decision still waiting
// in the outbox is replaced.
func (a *Arbiter) broadcast(target State) {
	if a.broadcaster == nil {
		return
	}
	for {
		select {
		case a.outbox <- target:
			return
		default:
		}
		select {
		case stale := <-a.outbox:
			a.logger.Debug().Interface("state", stale).Msg("Dropping undelivered autonomous decision")
		default:
		}
	}
}

func (a *Arbiter) broadcastLoop() {
	for {
		select {
		case <-a.done:
			return
		case target := <-a.outbox:
			if err := a.broadcaster.BroadcastAuto(target); err != nil {
				a.logger.Debug().Err(err).Msg("Autonomous decision not broadcast")
			}
		}
	}
}
