package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/vault-city/internal/action"
	"github.com/nidhogg/vault-city/internal/api"
	"github.com/nidhogg/vault-city/internal/attention"
	"github.com/nidhogg/vault-city/internal/config"
	"github.com/nidhogg/vault-city/internal/gateway"
	"github.com/nidhogg/vault-city/internal/memory"
	"github.com/nidhogg/vault-city/internal/oracle"
	"github.com/nidhogg/vault-city/internal/perception"
	"github.com/nidhogg/vault-city/internal/provider"
	"github.com/nidhogg/vault-city/internal/reasoning"
	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/sink"
	pgstore "github.com/nidhogg/vault-city/internal/store"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting Vault City...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/vault.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger = buildLogger(cfg.Server.LogLevel, logger)
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// World state and event plumbing
	ws := world.NewStore(world.NewRegistry(), logger)
	bus := sim.NewBus(cfg.Simulation.EventBuffer, logger)
	stim := stimulus.NewManager(ws, logger)
	stim.Notify(bus)
	pool := sim.NewPool(cfg.Simulation.PoolSize, logger)

	// Oracle providers
	router := provider.NewRouter(logger)
	for _, pc := range cfg.Providers {
		p, perr := provider.NewFromConfig(provider.Config{
			ID: pc.ID, Type: pc.Type, Name: pc.Name,
			Endpoint: pc.Endpoint, APIKey: pc.APIKey, Model: pc.Model,
		}, logger)
		if perr != nil {
			logger.Warn("skipping provider", zap.String("id", pc.ID), zap.Error(perr))
			continue
		}
		router.Register(p)
	}
	for _, b := range cfg.Bindings {
		if berr := router.Bind(b.Agent, b.Provider); berr != nil {
			logger.Warn("binding rejected", zap.String("agent", b.Agent), zap.Error(berr))
			continue
		}
		if len(b.Fallbacks) > 0 {
			router.SetFallbacks(b.Provider, b.Fallbacks)
		}
	}

	var orc oracle.Oracle
	if len(router.Providers()) == 0 {
		logger.Warn("no providers configured, agents will reason with canned responses")
		orc = oracle.NewMock()
	} else {
		orc = oracle.NewLLM(router, logger,
			oracle.WithRetry(cfg.Simulation.OracleRetries, 500*time.Millisecond))
	}

	// Cognitive pipeline
	filter := perception.NewFilter(ws, stim, pool, logger)
	attn := attention.NewSystem(ws, filter, pool, bus, attention.Config{}, logger)
	engine := reasoning.NewEngine(ws, filter, attn, orc, pool, bus, reasoning.Config{}, logger)

	registry := action.NewRegistry()
	action.RegisterBuiltins(registry, ws, stim)
	dispatcher := action.NewDispatcher(ws, registry, bus, logger)

	roomSys := stimulus.NewRoomSystem(ws, stim, cfg.Simulation.AmbientEvery, logger)
	cleanup := stimulus.NewCleanupSystem(ws, stim, bus, logger)

	seedWorld(ws, cfg, logger)

	systems := []sim.System{roomSys, filter, attn, engine, dispatcher, cleanup}

	// PostgreSQL tick recorder
	var pg *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without persistence", zap.Error(pgErr))
		} else if initErr := ps.Init(context.Background()); initErr != nil {
			logger.Warn("PostgreSQL schema init failed, running without persistence", zap.Error(initErr))
			ps.Close()
		} else {
			pg = ps
			systems = append(systems, pgstore.NewRecorder(pg, ws, stim, 1))
		}
	}

	// Redis event mirror
	var events *sink.RedisSink
	if cfg.Database.Redis.URL != "" {
		es, sErr := sink.New(cfg.Database.Redis.URL, cfg.Database.Redis.Stream, logger)
		if sErr != nil {
			logger.Warn("Redis unavailable, running without event stream", zap.Error(sErr))
		} else {
			events = es
			events.Attach(bus)
		}
	}

	// Neo4j long-term memory
	var archive *memory.Archive
	if cfg.Database.Neo4j.URI != "" {
		ar, aErr := memory.NewArchive(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if aErr != nil {
			logger.Warn("Neo4j unavailable, running without memory archive", zap.Error(aErr))
		} else {
			archive = ar
			systems = append(systems, memory.NewArchiver(archive, ws, 0, logger))
		}
	}

	sched := sim.NewScheduler(time.Duration(cfg.Simulation.TickInterval), systems, bus, logger)

	// Chat platform bridges
	gw := gateway.NewGateway(ws, stim, bus, logger)
	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		gw.Register(
			gateway.NewDiscordBridge(cfg.Gateway.Discord.BotToken, cfg.Gateway.Discord.Channel, logger),
			cfg.Gateway.Discord.Room)
	}
	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		gw.Register(
			gateway.NewSlackBridge(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken, cfg.Gateway.Slack.Channel, logger),
			cfg.Gateway.Slack.Room)
	}
	if gwErr := gw.Start(context.Background()); gwErr != nil {
		logger.Warn("gateway start failed, running without bridges", zap.Error(gwErr))
	}

	if cfg.Simulation.AutoStart {
		sched.Start()
		logger.Info("Simulation started", zap.Duration("tick", time.Duration(cfg.Simulation.TickInterval)))
	}

	handler := api.NewHandler(ws, stim, sched, bus, registry, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("Vault City listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Vault City...")
	sched.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	gw.Close()
	if events != nil {
		events.Close(bus)
	}
	if archive != nil {
		archive.Close(ctx)
	}
	if pg != nil {
		pg.Close()
	}
}

// buildLogger rebuilds the development logger at the configured level,
// falling back to the bootstrap logger on a bad level string.
func buildLogger(level string, fallback *zap.Logger) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		fallback.Warn("unknown log level", zap.String("level", level))
		return fallback
	}
	zcfg := zap.NewDevelopmentConfig()
	zcfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := zcfg.Build()
	if err != nil {
		return fallback
	}
	return logger
}

// seedWorld creates the configured rooms and residents. Seed failures are
// logged and skipped so one bad entry does not block startup.
func seedWorld(ws *world.Store, cfg *config.Config, logger *zap.Logger) {
	rooms := make(map[string]world.EntityID, len(cfg.World.Rooms))
	for _, r := range cfg.World.Rooms {
		id, err := world.CreateRoom(ws, r.Name, r.Ambience)
		if err != nil {
			logger.Warn("room seed failed", zap.String("name", r.Name), zap.Error(err))
			continue
		}
		rooms[r.Name] = id
	}
	for _, a := range cfg.World.Agents {
		roomID, ok := rooms[a.Room]
		if !ok {
			logger.Warn("agent seed references unknown room",
				zap.String("agent", a.Name), zap.String("room", a.Room))
			continue
		}
		goals := make([]world.GoalItem, 0, len(a.Goals))
		for _, g := range a.Goals {
			goals = append(goals, world.GoalItem{Description: g.Description, Priority: g.Priority, Active: true})
		}
		if _, err := world.SpawnAgent(ws, world.AgentSeed{
			Name: a.Name, Bio: a.Bio, Goals: goals, Room: roomID,
		}); err != nil {
			logger.Warn("agent seed failed", zap.String("name", a.Name), zap.Error(err))
		}
	}
}
