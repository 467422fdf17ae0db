// Package scheduler runs the fixed-period sample, arbitrate, actuate and
// report cycle.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/afroash/climate-agent/internal/control"
	"github.com/afroash/climate-agent/internal/metrics"
	"github.com/afroash/climate-agent/internal/models"
	"github.com/rs/zerolog"
)

// State is the scheduler's position in the cycle state machine
type State int32

const (
	Idle State = iota
	InCycle
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InCycle:
		return "in_cycle"
	default:
		return "unknown"
	}
}

// Sampler produces one reading per call
type Sampler interface {
	Sample(ctx context.Context) (models.Reading, error)
}

// CycleRunner applies a decision for a reading, or holds the override when
// no reading is available.
type CycleRunner interface {
	RunCycle(r models.Reading) (control.State, error)
	HoldOverride() (control.State, bool, error)
}

// Reporter delivers a reading upstream
type Reporter interface {
	Send(ctx context.Context, r models.Reading) error
}

// Scheduler never overlaps cycles. Ticks that arrive while a cycle is
// running are dropped and counted.
type Scheduler struct {
	sampler  Sampler
	runner   CycleRunner
	reporter Reporter
	interval time.Duration
	logger   zerolog.Logger
	metrics  *metrics.Metrics

	state   atomic.Int32
	cycles  atomic.Int64
	skipped atomic.Int64

	reports sync.WaitGroup
}

// New creates a scheduler. reporter may be nil to disable telemetry.
func New(sampler Sampler, runner CycleRunner, reporter Reporter, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		sampler:  sampler,
		runner:   runner,
		reporter: reporter,
		interval: interval,
		logger:   logger,
	}
}

// SetMetrics attaches instruments
func (s *Scheduler) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// Start runs cycles on a ticker until ctx is cancelled
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", s.interval).Msg("Scheduler started")
	return s.Run(ctx, ticker.C)
}

// Run executes one cycle per tick until ctx is cancelled or tick is closed.
func (s *Scheduler) Run(ctx context.Context, tick <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().
				Int64("cycles", s.cycles.Load()).
				Int64("skipped", s.skipped.Load()).
				Msg("Scheduler stopped")
			return ctx.Err()
		case _, ok := <-tick:
			if !ok {
				return nil
			}
			s.RunCycle(ctx)
			s.drain(tick)
		}
	}
}

// drain discards ticks that queued up during an overrunning cycle
func (s *Scheduler) drain(tick <-chan time.Time) {
	n := 0
	for {
		select {
		case _, ok := <-tick:
			if !ok {
				s.recordSkipped(n)
				return
			}
			n++
		default:
			s.recordSkipped(n)
			return
		}
	}
}

func (s *Scheduler) recordSkipped(n int) {
	if n == 0 {
		return
	}
	s.skipped.Add(int64(n))
	s.metrics.CyclesSkipped(n)
	s.logger.Warn().Int("ticks", n).Msg("Cycle overran period, ticks skipped")
}

// RunCycle performs a single cycle synchronously. Telemetry is dispatched in
// the background and never awaited.
func (s *Scheduler) RunCycle(ctx context.Context) {
	s.state.Store(int32(InCycle))
	defer s.state.Store(int32(Idle))

	start := time.Now()
	s.cycles.Add(1)

	reading, err := s.sampler.Sample(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn().Err(err).Msg("Sensor read failed")
		if _, held, herr := s.runner.HoldOverride(); herr != nil {
			s.logger.Warn().Err(herr).Msg("Override hold incomplete")
		} else if held {
			s.logger.Debug().Msg("Override held through sensor failure")
		}
		s.metrics.CycleCompleted(metrics.OutcomeSensorError, time.Since(start).Seconds())
		return
	}
	s.metrics.ObserveReading(reading)

	if _, err := s.runner.RunCycle(reading); err != nil {
		s.logger.Warn().Err(err).Msg("Cycle actuation incomplete")
	}

	s.report(ctx, reading)
	s.metrics.CycleCompleted(metrics.OutcomeOK, time.Since(start).Seconds())
}

func (s *Scheduler) report(ctx context.Context, reading models.Reading) {
	if s.reporter == nil {
		return
	}
	rctx := context.WithoutCancel(ctx)
	s.reports.Add(1)
	go func() {
		defer s.reports.Done()
		if err := s.reporter.Send(rctx, reading); err != nil {
			s.logger.Warn().Err(err).Msg("Telemetry report failed")
			return
		}
		s.logger.Debug().Int64("time", reading.Time).Msg("Telemetry report sent")
	}()
}

// State reports whether a cycle is in progress
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Cycles returns how many cycles have started
func (s *Scheduler) Cycles() int64 {
	return s.cycles.Load()
}

// Skipped returns how many ticks were dropped because a cycle overran
func (s *Scheduler) Skipped() int64 {
	return s.skipped.Load()
}

// Wait blocks until in-flight telemetry reports finish
func (s *Scheduler) Wait() {
	s.reports.Wait()
}
