package sim

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

type countingSystem struct {
	name  string
	mu    sync.Mutex
	ticks int
	fail  error
	panic bool
}

func (c *countingSystem) Name() string { return c.name }

func (c *countingSystem) Tick(context.Context, time.Time) error {
	c.mu.Lock()
	c.ticks++
	c.mu.Unlock()
	if c.panic {
		panic("boom")
	}
	return c.fail
}

func (c *countingSystem) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

func TestSystemsRunInRegistrationOrder(t *testing.T) {
	var order []string
	var mu sync.Mutex
	mk := func(name string) System {
		return systemFunc{name: name, fn: func(context.Context, time.Time) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}}
	}
	bus := NewBus(8, zap.NewNop())
	s := NewScheduler(time.Second, []System{mk("a"), mk("b"), mk("c")}, bus, zap.NewNop())

	if err := s.StepOnce(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	if len(order) != 3 || order[0] != "a" || order[1] != "b" || order[2] != "c" {
		t.Errorf("execution order = %v", order)
	}
	if s.TickCount() != 1 {
		t.Errorf("tick count = %d, want 1", s.TickCount())
	}
}

type systemFunc struct {
	name string
	fn   func(context.Context, time.Time) error
}

func (s systemFunc) Name() string { return s.name }

func (s systemFunc) Tick(ctx context.Context, now time.Time) error {
	return s.fn(ctx, now)
}

func TestSystemErrorStopsPipelineAndReportsFault(t *testing.T) {
	broken := &countingSystem{name: "broken", fail: errors.New("bad state")}
	after := &countingSystem{name: "after"}
	bus := NewBus(8, zap.NewNop())
	sub := bus.Subscribe(RoomWildcard)

	s := NewScheduler(time.Second, []System{broken, after}, bus, zap.NewNop())
	var faulted string
	s.OnFault(func(system string, err error) { faulted = system })

	if err := s.StepOnce(context.Background()); err == nil {
		t.Fatal("fault not returned")
	}
	if after.count() != 0 {
		t.Error("system after the fault still ran")
	}
	if faulted != "broken" {
		t.Errorf("fault handler got %q", faulted)
	}

	found := false
	for _, evt := range drain(sub) {
		if evt.Type == EventSchedulerFault {
			found = true
		}
	}
	if !found {
		t.Error("no scheduler_fault event published")
	}
}

func TestSystemPanicBecomesFault(t *testing.T) {
	bus := NewBus(8, zap.NewNop())
	s := NewScheduler(time.Second, []System{&countingSystem{name: "panicky", panic: true}}, bus, zap.NewNop())

	if err := s.StepOnce(context.Background()); err == nil {
		t.Fatal("panic did not surface as a fault")
	}
}

func TestStartStopAndReset(t *testing.T) {
	sys := &countingSystem{name: "noop"}
	bus := NewBus(8, zap.NewNop())
	s := NewScheduler(5*time.Millisecond, []System{sys}, bus, zap.NewNop())

	s.Start()
	if !s.Running() {
		t.Fatal("not running after start")
	}
	s.Start() // second start is a no-op

	deadline := time.After(2 * time.Second)
	for s.TickCount() < 3 {
		select {
		case <-deadline:
			t.Fatal("scheduler never ticked")
		case <-time.After(time.Millisecond):
		}
	}

	s.Stop()
	if s.Running() {
		t.Fatal("still running after stop")
	}
	stopped := sys.count()
	time.Sleep(20 * time.Millisecond)
	if sys.count() != stopped {
		t.Error("systems still ticking after stop")
	}

	s.Reset()
	if s.TickCount() != 0 {
		t.Errorf("tick count = %d after reset", s.TickCount())
	}
}

func TestFaultStopsRunningLoop(t *testing.T) {
	bus := NewBus(8, zap.NewNop())
	s := NewScheduler(time.Millisecond, []System{&countingSystem{name: "broken", fail: errors.New("bad")}}, bus, zap.NewNop())

	s.Start()
	deadline := time.After(2 * time.Second)
	for s.Running() {
		select {
		case <-deadline:
			t.Fatal("scheduler kept running past a fault")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestPoolIsolatesFailures(t *testing.T) {
	pool := NewPool(2, zap.NewNop())
	var mu sync.Mutex
	completed := make(map[world.EntityID]bool)

	failed := pool.Each(context.Background(), []world.EntityID{1, 2, 3, 4}, func(_ context.Context, id world.EntityID) error {
		if id == 2 {
			return errors.New("agent stuck")
		}
		if id == 3 {
			panic("agent exploded")
		}
		mu.Lock()
		completed[id] = true
		mu.Unlock()
		return nil
	})

	if failed != 2 {
		t.Errorf("failed = %d, want 2", failed)
	}
	if !completed[1] || !completed[4] {
		t.Errorf("healthy agents did not complete: %v", completed)
	}
}
