//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"time"

	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/vault-city/internal/action"
	"github.com/nidhogg/vault-city/internal/api"
	"github.com/nidhogg/vault-city/internal/attention"
	"github.com/nidhogg/vault-city/internal/oracle"
	"github.com/nidhogg/vault-city/internal/perception"
	"github.com/nidhogg/vault-city/internal/reasoning"
	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
)

// startNeo4j starts a Neo4j testcontainer, returns URI + cleanup func.
func startNeo4j(ctx context.Context) (string, func(), error) {
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start neo4j: %w", err)
	}
	uri, err := container.BoltUrl(ctx)
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("neo4j bolt url: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return uri, cleanup, nil
}

// startPostgres starts a PostgreSQL testcontainer, returns DSN + cleanup func.
func startPostgres(ctx context.Context) (string, func(), error) {
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("vault_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	if err != nil {
		return "", nil, fmt.Errorf("start postgres: %w", err)
	}
	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("pg connection string: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return dsn, cleanup, nil
}

// startRedis starts a Redis testcontainer, returns URL + cleanup func.
func startRedis(ctx context.Context) (string, func(), error) {
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		return "", nil, fmt.Errorf("start redis: %w", err)
	}
	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		container.Terminate(ctx)
		return "", nil, fmt.Errorf("redis endpoint: %w", err)
	}
	cleanup := func() { container.Terminate(ctx) }
	return "redis://" + endpoint, cleanup, nil
}

// testWorld is a fully wired in-process server with a scripted oracle.
type testWorld struct {
	store  *world.Store
	stim   *stimulus.Manager
	bus    *sim.Bus
	sched  *sim.Scheduler
	mock   *oracle.Mock
	server *httptest.Server
}

// systemFactory builds an extra pipeline system (recorder, archiver)
// against the freshly wired world.
type systemFactory func(ws *world.Store, stim *stimulus.Manager) sim.System

// newTestWorld wires the complete pipeline behind an httptest server.
// The scheduler is left stopped; tests drive ticks via the REST API or
// StepOnce for determinism. Extra systems are appended after the
// standard pipeline.
func newTestWorld(logger *zap.Logger, extra ...systemFactory) *testWorld {
	ws := world.NewStore(world.NewRegistry(), logger)
	bus := sim.NewBus(64, logger)
	stim := stimulus.NewManager(ws, logger)
	stim.Notify(bus)
	pool := sim.NewPool(4, logger)

	mock := oracle.NewMock()
	filter := perception.NewFilter(ws, stim, pool, logger)
	attn := attention.NewSystem(ws, filter, pool, bus, attention.Config{}, logger)
	engine := reasoning.NewEngine(ws, filter, attn, mock, pool, bus, reasoning.Config{}, logger)

	registry := action.NewRegistry()
	action.RegisterBuiltins(registry, ws, stim)
	dispatcher := action.NewDispatcher(ws, registry, bus, logger)

	systems := []sim.System{
		stimulus.NewRoomSystem(ws, stim, 5, logger),
		filter,
		attn,
		engine,
		dispatcher,
		stimulus.NewCleanupSystem(ws, stim, bus, logger),
	}
	for _, f := range extra {
		systems = append(systems, f(ws, stim))
	}

	sched := sim.NewScheduler(100*time.Millisecond, systems, bus, logger)
	handler := api.NewHandler(ws, stim, sched, bus, registry, logger)

	return &testWorld{
		store:  ws,
		stim:   stim,
		bus:    bus,
		sched:  sched,
		mock:   mock,
		server: httptest.NewServer(handler.Router()),
	}
}

func (tw *testWorld) close() {
	tw.sched.Stop()
	tw.server.Close()
}

// step runs n synchronous ticks.
func (tw *testWorld) step(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := tw.sched.StepOnce(ctx); err != nil {
			return err
		}
	}
	return nil
}
