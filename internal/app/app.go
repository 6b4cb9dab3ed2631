package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/nexus/internal/admission"
	"github.com/MrSnakeDoc/nexus/internal/backend/memory"
	"github.com/MrSnakeDoc/nexus/internal/cache"
	"github.com/MrSnakeDoc/nexus/internal/config"
	"github.com/MrSnakeDoc/nexus/internal/httpserver"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/index"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/loop"
	"github.com/MrSnakeDoc/nexus/internal/migration"
	"github.com/MrSnakeDoc/nexus/internal/orchestrator"
	"github.com/MrSnakeDoc/nexus/internal/peer"
	"github.com/MrSnakeDoc/nexus/internal/redis"
	"github.com/MrSnakeDoc/nexus/internal/replication"
	repmem "github.com/MrSnakeDoc/nexus/internal/replication/memory"
	repredis "github.com/MrSnakeDoc/nexus/internal/replication/redis"
	"github.com/MrSnakeDoc/nexus/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/nexus/internal/store/redis"
	"github.com/MrSnakeDoc/nexus/internal/utils"
	"github.com/MrSnakeDoc/nexus/internal/version"
	"github.com/MrSnakeDoc/nexus/internal/world"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	loop        *loop.Loop
	peer        *peer.Peer
	redisClient *goredis.Client
	migration   config.MigrationSource
	reloader    *scheduler.PresetReloader
	banSyncer   *scheduler.BanSyncer
	collector   *scheduler.BanCollector
}

// New wires a peer from the environment. It exits the process when a
// required dependency cannot be set up.
func New() *App {
	cfg := config.Load()
	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog, logger.String("peer", cfg.PeerID))

	mode, err := world.ParseNetMode(cfg.NetMode)
	if err != nil {
		loggerClient.Error("invalid net mode", logger.String("value", cfg.NetMode), logger.Error(err))
		os.Exit(1)
	}

	// Redis is optional: without it bans, the search cache and registry
	// replication stay in this process.
	var (
		redisClient *goredis.Client
		store       *redisstore.Store
	)
	if cfg.RedisEnabled() {
		redisClient, err = redis.Connect(context.Background(), redis.OptionsFromConfig(cfg), loggerClient)
		if err != nil {
			loggerClient.Error("failed to connect to redis", logger.Error(err))
			os.Exit(1)
		}
		store = redisstore.NewStore(redisClient, cfg.RedisPrefix)
	} else {
		loggerClient.Info("redis not configured, running with in-memory state only")
	}

	l := loop.New(cfg.LoopCapacity, logger.Component(loggerClient, "loop"))

	network := memory.NewNetwork()
	be := memory.NewBackend(network, cfg.PeerID, cfg.LocalPlayerID, l)
	w := world.New(be, mode)

	var searchCache cache.SearchCache = cache.NewMemory(cfg.SearchCacheTTL, time.Now)
	if cfg.SearchCacheShared {
		searchCache = redisstore.NewSearchCache(store, cfg.SearchCacheTTL, loggerClient)
	}
	orch := orchestrator.New(w, l, searchCache, nil, loggerClient)

	var source config.MigrationSource = config.NewStaticMigration(config.DefaultMigration())
	if cfg.MigrationFile != "" {
		mf, err := config.NewMigrationFile(cfg.MigrationFile, loggerClient)
		if err != nil {
			loggerClient.Error("failed to load migration config",
				logger.String("file", cfg.MigrationFile), logger.Error(err))
			os.Exit(1)
		}
		source = mf
	}
	ctl := migration.New(orch, l, orch.Bus(), source, loggerClient)

	memIndex := index.NewMemoryIndex()

	// A nil *Store must not end up inside the BanStore interface.
	var banStore admission.BanStore
	var channel replication.Channel = repmem.New()
	if store != nil {
		banStore = store
		channel = repredis.New(repredis.Config{Store: store, Logger: loggerClient})
	}
	gate := admission.NewGate(memIndex, banStore, orch, loggerClient, admission.Options{
		Protected: append(cfg.ProtectedPlayers, cfg.LocalPlayerID),
	})

	p := peer.New(w, orch, ctl, channel, l, loggerClient)

	var (
		reloader      *scheduler.PresetReloader
		reloadTrigger chan struct{}
	)
	if cfg.PresetFile != "" {
		reloadTrigger = make(chan struct{}, 1)
		reloader = scheduler.NewPresetReloader(cfg.PresetFile, memIndex, loggerClient, cfg.PresetReloadInterval, reloadTrigger)
	} else {
		loggerClient.Info("presets file not configured, presets disabled")
	}

	var banSyncer *scheduler.BanSyncer
	if store != nil {
		banSyncer = scheduler.NewBanSyncer(store, memIndex, loggerClient)
	}
	collector := scheduler.NewBanCollector(store, memIndex, loggerClient, cfg.BanGCInterval)

	d := deps.Deps{
		Logger:             loggerClient,
		StartTime:          time.Now(),
		Version:            version.Version,
		Commit:             version.Commit,
		BuildDate:          version.BuildDate,
		GoVersion:          version.GoVersion,
		TimeNow:            time.Now,
		PeerID:             cfg.PeerID,
		AllowedCIDRS:       cfg.AllowedCIDRS,
		TrustProxy:         cfg.TrustProxy,
		SearchBurst:        cfg.SearchBurst,
		SearchRefillPerMin: cfg.SearchRefillPerMin,
		Loop:               l,
		Peer:               p,
		Gate:               gate,
		MemoryIndex:        memIndex,
		Migration:          source,
		MigrationFile:      cfg.MigrationFile,
		PresetFile:         cfg.PresetFile,
		RedisClient:        redisClient,
		ReloadTrigger:      reloadTrigger,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		loop:        l,
		peer:        p,
		redisClient: redisClient,
		migration:   source,
		reloader:    reloader,
		banSyncer:   banSyncer,
		collector:   collector,
	}
}

func (a *App) Run() error {
	a.logger.Infof("🚀 Starting %s on %s", version.String(), a.cfg.ListenPort)
	a.logger.Info("peer identity",
		logger.String("local_player", a.cfg.LocalPlayerID),
		logger.String("net_mode", a.cfg.NetMode))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The loop outlives ctx so shutdown can still run on it.
	a.loop.Start(context.Background())
	if err := a.loop.Do(ctx, func() { a.peer.Start(ctx) }); err != nil {
		return fmt.Errorf("failed to start peer: %w", err)
	}

	if mf, ok := a.migration.(*config.MigrationFile); ok {
		go func() {
			if err := mf.Watch(ctx); err != nil {
				a.logger.Warn("migration config will not be hot reloaded", logger.Error(err))
			}
		}()
	}

	if a.banSyncer != nil {
		if err := a.banSyncer.Sync(ctx); err != nil {
			a.logger.Warn("failed to sync bans from redis on startup, starting with local bans",
				logger.Error(err))
		}
	}

	if a.reloader != nil {
		if err := a.reloader.Start(ctx); err != nil {
			return fmt.Errorf("failed to start preset reloader: %w", err)
		}
		a.logger.Info("preset reloader started",
			logger.Duration("interval", a.cfg.PresetReloadInterval))
	}

	a.collector.Start(ctx)
	a.logger.Info("ban collector started",
		logger.Duration("interval", a.cfg.BanGCInterval))

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	a.shutdown()
	return runErr
}

func (a *App) shutdown() {
	if a.reloader != nil {
		a.reloader.Stop()
	}
	a.collector.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil {
		a.logger.Warn("failed to stop http server", logger.Error(err))
	}

	// Registry and event subscriptions are owned by the control thread.
	if err := a.loop.Do(shutdownCtx, a.peer.Stop); err != nil {
		a.logger.Warn("failed to stop peer", logger.Error(err))
	}
	a.loop.Stop()

	if a.redisClient != nil {
		utils.CloseLogged(a.redisClient, "redis", a.logger)
	}

	a.logger.Info("✅ nexusd stopped cleanly")
}
