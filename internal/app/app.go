// Package app is the composition root: it loads config, opens the backing
// services, wires every watcher and poller, and supervises them under one
// errgroup until the process is told to stop.
package app

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nestlogic/floorwatch/internal/autopac"
	"github.com/nestlogic/floorwatch/internal/data/db"
	jobsrepo "github.com/nestlogic/floorwatch/internal/data/repos/jobs"
	machinesrepo "github.com/nestlogic/floorwatch/internal/data/repos/machines"
	stockrepo "github.com/nestlogic/floorwatch/internal/data/repos/grundner"
	messagesrepo "github.com/nestlogic/floorwatch/internal/data/repos/messages"
	types "github.com/nestlogic/floorwatch/internal/domain"
	"github.com/nestlogic/floorwatch/internal/grundner"
	"github.com/nestlogic/floorwatch/internal/ingest"
	"github.com/nestlogic/floorwatch/internal/lifecycle"
	"github.com/nestlogic/floorwatch/internal/nestpick"
	"github.com/nestlogic/floorwatch/internal/observability"
	"github.com/nestlogic/floorwatch/internal/pgnotify"
	"github.com/nestlogic/floorwatch/internal/pkg/dbctx"
	"github.com/nestlogic/floorwatch/internal/platform/envutil"
	"github.com/nestlogic/floorwatch/internal/platform/logger"
	"github.com/nestlogic/floorwatch/internal/realtime"
	"github.com/nestlogic/floorwatch/internal/realtime/bus"
	"github.com/nestlogic/floorwatch/internal/sanity"
	"github.com/nestlogic/floorwatch/internal/server"
	"github.com/nestlogic/floorwatch/internal/telemetry"
	"github.com/nestlogic/floorwatch/internal/watcher"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	PG       *db.PostgresService
	Bus      bus.Bus
	Notify   realtime.Notifier
	Registry *watcher.Registry
	Engine   *lifecycle.Engine

	runners      []func(ctx context.Context) error
	release      *lifecycle.ReleaseSet
	hashes       *autopac.HashCache
	otelShutdown func(context.Context) error
}

func New() (*App, error) {
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	cfg, err := LoadConfig(log)
	if err != nil {
		log.Sync()
		return nil, err
	}

	startCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	otelShutdown := observability.InitOTel(startCtx, log, observability.OtelConfig{
		ServiceName: "floorwatch",
		Environment: cfg.Mode,
	})

	pg, err := db.NewPostgresService(cfg.PostgresDSN, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.WaitReady(startCtx, 10); err != nil {
		log.Sync()
		return nil, err
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	gdb := pg.DB()

	messageRepo := messagesrepo.NewMessageRepo(gdb, log)

	var uiBus bus.Bus
	if cfg.RedisAddr != "" {
		uiBus, err = bus.NewRedisBus(cfg.RedisAddr, cfg.RedisChannel, log)
		if err != nil {
			log.Warn("redis UI bus unavailable, messages drop to the feed only", "error", err)
			uiBus = nil
		}
	} else {
		log.Warn("redis address not configured, UI bus disabled")
	}
	var pub realtime.Publisher
	if uiBus != nil {
		pub = uiBus
	}
	notify := realtime.NewNotifier(pub, messageRepo, log)
	registry := watcher.NewRegistry(notify, log)

	jobRepo := jobsrepo.NewJobRepo(gdb, log)
	eventRepo := jobsrepo.NewJobEventRepo(gdb, log)
	machineRepo := machinesrepo.NewMachineRepo(gdb, log)
	healthRepo := machinesrepo.NewMachineHealthRepo(gdb, log)
	statRepo := machinesrepo.NewCncStatRepo(gdb, log)
	stockRepo := stockrepo.NewStockRepo(gdb, log)

	if err := seedMachines(startCtx, machineRepo, cfg.Machines); err != nil {
		log.Sync()
		return nil, fmt.Errorf("seed machines: %w", err)
	}
	machines, err := machineRepo.List(dbctx.Context{Ctx: startCtx})
	if err != nil {
		log.Sync()
		return nil, err
	}

	engine := lifecycle.NewEngine(gdb, jobRepo, eventRepo, log)
	release := lifecycle.NewReleaseSet(60 * time.Second)
	hashes := autopac.NewHashCache(autopac.DefaultHashEntries)
	prodlist := autopac.NewProductionListPublisher(cfg.AutoPacCsvDir, log)

	a := &App{
		Log:          log,
		Cfg:          cfg,
		PG:           pg,
		Bus:          uiBus,
		Notify:       notify,
		Registry:     registry,
		Engine:       engine,
		release:      release,
		hashes:       hashes,
		otelShutdown: otelShutdown,
	}

	if cfg.ProcessedJobsRoot != "" {
		scanner := &ingest.Scanner{Root: cfg.ProcessedJobsRoot, IncludeTestData: cfg.UseTestDataMode}
		pruner := ingest.NewPruner(gdb, jobRepo, eventRepo, stockRepo, notify, prodlist, log)
		a.addRunner(ingest.NewPoller(scanner, pruner, jobRepo, notify, registry, log).Run)
		a.addRunner(sanity.NewSourcePoller(scanner, pruner, registry, log).Run)
	} else {
		log.Warn("processed_jobs_root not configured, job ingest disabled")
		registry.Register("ingest", "Processed jobs ingest")
		registry.Disable("ingest", "processed_jobs_root not configured")
		registry.Register("source-sanity", "Processed jobs reconciler")
		registry.Disable("source-sanity", "processed_jobs_root not configured")
	}
	a.addRunner(sanity.NewStagePoller(jobRepo, machineRepo, engine, release, prodlist, notify, registry, log).Run)

	if cfg.AutoPacCsvDir != "" {
		forwarder := nestpick.NewForwarder(healthRepo, engine, notify, log)
		a.addRunner(autopac.NewWatcher(cfg.AutoPacCsvDir, cfg.WatcherDebounce,
			jobRepo, machineRepo, healthRepo, engine, forwarder, hashes, notify, registry, log).Run)
	} else {
		log.Warn("autopac_csv_dir not configured, machine evidence disabled")
		registry.Register("autopac", "AutoPAC status CSVs")
		registry.Disable("autopac", "autopac_csv_dir not configured")
	}

	for _, m := range machines {
		if !m.NestpickEnabled || m.NestpickFolder == "" {
			continue
		}
		a.addRunner(nestpick.NewUnstackWatcher(m, cfg.WatcherDebounce, jobRepo, engine, notify, registry, log).Run)
	}

	if cfg.GrundnerDir != "" {
		a.addRunner(grundner.NewPoller(cfg.GrundnerDir, stockRepo, release, notify, registry, log).Run)
	} else {
		log.Warn("grundner_dir not configured, stock reconciliation disabled")
		registry.Register("grundner", "Grundner stock poller")
		registry.Disable("grundner", "grundner_dir not configured")
	}

	if cfg.UseTestDataMode {
		log.Info("test-data mode: telemetry clients not started")
	} else {
		for _, m := range machines {
			if m.PcIP == "" || m.PcPort <= 0 {
				continue
			}
			a.addRunner(telemetry.NewClient(m, statRepo, healthRepo, notify, registry, log).Run)
		}
	}

	a.addRunner(pgnotify.NewRelay(pg.DSN(), notify, registry, log).Run)

	var redisPing server.Pinger
	if uiBus != nil {
		redisPing = uiBus
	}
	a.addRunner(server.NewServer(cfg.HTTPAddr, server.RouterConfig{
		AllowedOrigins: cfg.AllowedOrigins,
		HealthHandler:  server.NewHealthHandler(pg, redisPing, log),
		StatusHandler:  server.NewStatusHandler(registry, log),
		MachineHandler: server.NewMachineHandler(machineRepo, healthRepo, statRepo, log),
		JobHandler:     server.NewJobHandler(jobRepo, eventRepo, log),
		StockHandler:   server.NewStockHandler(stockRepo, log),
		FeedHandler:    server.NewFeedHandler(messageRepo, log),
	}, log).Run)

	return a, nil
}

func (a *App) addRunner(run func(ctx context.Context) error) {
	a.runners = append(a.runners, run)
}

// Run supervises every component until ctx is canceled or one of them
// fails. Watchers treat their own errors as health conditions, so an error
// reaching the group is a wiring or startup defect.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, run := range a.runners {
		run := run
		g.Go(func() error { return run(ctx) })
	}
	a.Log.Info("floorwatch running", "components", len(a.runners))
	return g.Wait()
}

func (a *App) Close() {
	if a == nil {
		return
	}
	a.release.Drain()
	a.hashes.Drain()
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			a.Log.Warn("redis close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if err := a.PG.Close(); err != nil {
		a.Log.Warn("postgres close failed", "error", err)
	}
	a.Log.Sync()
}

func seedMachines(ctx context.Context, repo machinesrepo.MachineRepo, entries []MachineConfig) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]*types.Machine, 0, len(entries))
	for _, m := range entries {
		rows = append(rows, &types.Machine{
			ID:              m.ID,
			Name:            m.Name,
			PcIP:            m.PcIP,
			PcPort:          m.PcPort,
			APJobfolder:     m.APJobfolder,
			NestpickFolder:  m.NestpickFolder,
			NestpickEnabled: m.NestpickEnabled,
		})
	}
	return repo.UpsertAll(dbctx.Context{Ctx: ctx}, rows)
}
