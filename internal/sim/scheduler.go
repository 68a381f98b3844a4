package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// System is one stage of the per-tick pipeline. Systems run strictly
// sequentially in registration order; a system that fans work out per agent
// must not return until all of that work has settled. A returned error is a
// scheduler fault and stops the simulation.
type System interface {
	Name() string
	Tick(ctx context.Context, now time.Time) error
}

// FaultHandler is notified when a system fault stops the scheduler.
type FaultHandler func(system string, err error)

// Scheduler drives the fixed-order system pipeline on a single tick loop.
type Scheduler struct {
	interval time.Duration
	systems  []System
	bus      *Bus
	onFault  FaultHandler

	tick    uint64
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	logger  *zap.Logger
}

// NewScheduler creates a scheduler over the given systems, in execution
// order.
func NewScheduler(interval time.Duration, systems []System, bus *Bus, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		interval: interval,
		systems:  systems,
		bus:      bus,
		logger:   logger,
	}
}

// OnFault registers a handler called when the scheduler stops on a fault.
func (s *Scheduler) OnFault(h FaultHandler) { s.onFault = h }

// Running reports whether the tick loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// TickCount returns the number of completed ticks.
func (s *Scheduler) TickCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// Start begins the tick loop. It is a no-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.loop(ctx)
	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))
}

// Stop clears the pending tick timer and halts the loop. In-flight oracle
// calls inside the current tick are not force-cancelled; their results are
// still applied when they resolve, so a stop is not an instantaneous halt.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("scheduler stopped")
}

// Reset stops the loop and zeroes the tick counter.
func (s *Scheduler) Reset() {
	s.Stop()
	s.mu.Lock()
	s.tick = 0
	s.mu.Unlock()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if err := s.runTick(ctx, now); err != nil {
				s.mu.Lock()
				s.running = false
				s.mu.Unlock()
				return
			}
		}
	}
}

// runTick executes every system in order. It measures wall-clock duration
// and warns when a tick consumes more than half the interval, a
// backpressure signal rather than a failure.
func (s *Scheduler) runTick(ctx context.Context, now time.Time) error {
	start := time.Now()

	for _, sys := range s.systems {
		if err := s.runSystem(ctx, sys, now); err != nil {
			s.logger.Error("system fault, stopping scheduler",
				zap.String("system", sys.Name()),
				zap.Error(err))
			s.bus.Publish(Event{
				Type:      EventSchedulerFault,
				Channel:   RoomWildcard,
				Data:      map[string]string{"system": sys.Name(), "error": err.Error()},
				Timestamp: time.Now(),
			})
			if s.onFault != nil {
				s.onFault(sys.Name(), err)
			}
			return err
		}
	}

	s.mu.Lock()
	s.tick++
	tick := s.tick
	s.mu.Unlock()

	elapsed := time.Since(start)
	if elapsed > s.interval/2 {
		s.logger.Warn("tick is consuming over half the interval",
			zap.Uint64("tick", tick),
			zap.Duration("elapsed", elapsed),
			zap.Duration("interval", s.interval))
	}

	s.bus.Publish(Event{
		Type:      EventTick,
		Channel:   RoomWildcard,
		Data:      map[string]any{"tick": tick, "elapsed_ms": elapsed.Milliseconds()},
		Timestamp: time.Now(),
	})
	return nil
}

// runSystem guards one system invocation. Per-agent mutations inside a
// system are applied serially at its fan-in barrier in ascending entity-id
// order, so same-tick writes to a shared exclusive relation resolve
// deterministically.
func (s *Scheduler) runSystem(ctx context.Context, sys System, now time.Time) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in system %s: %v", sys.Name(), r)
		}
	}()
	return sys.Tick(ctx, now)
}

// StepOnce runs a single tick synchronously. Used by tests and the RESET
// control path to advance a stopped world.
func (s *Scheduler) StepOnce(ctx context.Context) error {
	return s.runTick(ctx, time.Now())
}
