package app

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/coursebuilder-backend/internal/credits"
	"github.com/yungbote/coursebuilder-backend/internal/db"
	"github.com/yungbote/coursebuilder-backend/internal/generation"
	httpserver "github.com/yungbote/coursebuilder-backend/internal/http"
	"github.com/yungbote/coursebuilder-backend/internal/jobs/worker"
	"github.com/yungbote/coursebuilder-backend/internal/observability"
	"github.com/yungbote/coursebuilder-backend/internal/platform/logger"
	"github.com/yungbote/coursebuilder-backend/internal/realtime"
	"github.com/yungbote/coursebuilder-backend/internal/realtime/bus"
	"github.com/yungbote/coursebuilder-backend/internal/services"
	"github.com/yungbote/coursebuilder-backend/internal/streaming"
)

type App struct {
	Log     *logger.Logger
	Mode    Mode
	Cfg     Config
	DB      *gorm.DB
	Redis   goredis.UniversalClient
	Metrics *observability.Metrics

	Repos      Repos
	Services   Services
	Dispatcher *generation.Dispatcher
	Bridge     *generation.Bridge
	SSEHub     *realtime.SSEHub
	Bus        bus.Bus
	Worker     *worker.Worker
	Server     *httpserver.Server

	pg           *db.PostgresService
	broker       streaming.Broker
	otelShutdown func(context.Context) error
}

// New connects the stores and wires every component mode needs. Nothing runs until Run.
func New(ctx context.Context, log *logger.Logger, mode Mode, cfg Config) (*App, error) {
	a := &App{Log: log, Mode: mode, Cfg: cfg}
	a.otelShutdown = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.OtelEnabled,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
		Version:     cfg.Version,
		Endpoint:    cfg.OtelEndpoint,
		Headers:     cfg.OtelHeaders,
		Insecure:    cfg.OtelInsecure,
		SampleRatio: cfg.OtelSampleRatio,
	})
	a.Metrics = observability.NewMetrics()

	pg, err := db.NewPostgresService(log, db.PostgresConfig{
		DSN:          cfg.DatabaseURL,
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	a.pg = pg
	a.DB = pg.DB()
	if err := pg.AutoMigrateAll(); err != nil {
		a.Close()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}

	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	a.Redis = goredis.NewClient(opts)
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		a.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	if err := a.wire(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) wire() error {
	log, cfg := a.Log, a.Cfg
	a.Repos = wireRepos(a.DB, log)

	// a single process relays streams in memory; split processes go through redis
	if a.Mode == ModeAll {
		a.broker = streaming.NewLocalBroker(256)
	} else {
		a.broker = streaming.NewRedisBroker(log, a.Redis)
	}

	var emit services.SSEEmitter
	if a.Mode.RunsHTTP() {
		a.SSEHub = realtime.NewSSEHub(log)
		emit = &services.HubEmitter{Hub: a.SSEHub}
	}
	if a.Mode != ModeAll {
		b, err := bus.NewRedisBus(log, a.Redis, bus.DefaultChannel)
		if err != nil {
			return fmt.Errorf("init sse bus: %w", err)
		}
		a.Bus = b
		if a.Mode == ModeWorker {
			emit = &services.BusEmitter{Bus: b, Log: log}
		}
	}
	notifier := services.NewJobNotifier(emit)

	deps := generation.Deps{
		Users:        a.Repos.Users,
		Courses:      a.Repos.Courses,
		Modules:      a.Repos.Modules,
		Lessons:      a.Repos.Lessons,
		Roadmaps:     a.Repos.Roadmaps,
		RoadmapNodes: a.Repos.RoadmapNodes,
		Jobs:         a.Repos.JobRuns,
		Mailbox:      generation.NewMailbox(a.Redis),
		Broker:       a.broker,
	}
	tasks, err := generation.NewDefaultRegistry(deps)
	if err != nil {
		return fmt.Errorf("register generation tasks: %w", err)
	}
	ledger := credits.NewLedger(a.DB, a.Repos.Users, log, a.Metrics)

	if a.Mode.RunsHTTP() {
		a.Dispatcher = generation.NewDispatcher(a.DB, log, tasks, ledger, a.Repos.JobRuns, notifier, a.Metrics, generation.DispatcherConfig{
			NotifyChannel: worker.EnqueueChannel,
		})
		a.Bridge = generation.NewBridge(log, tasks, a.Dispatcher, a.broker, a.Metrics, cfg.StreamIdleTimeout)
		a.Services = wireServices(a.DB, log, cfg, a.Repos, ledger)
		a.Server = wireServer(a)
	}

	if a.Mode.RunsWorker() {
		w, err := wireWorker(a.DB, log, cfg, deps, tasks, notifier, a.Metrics)
		if err != nil {
			return err
		}
		a.Worker = w
		if a.Dispatcher != nil {
			a.Dispatcher.SetWaker(w.Wake)
		}
	}
	return nil
}

// Run blocks until ctx ends or a component fails, then stops the rest.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	a.Metrics.StartJobQueueCollector(ctx, a.Log, a.DB, a.Cfg.MetricsInterval)

	if a.Server != nil {
		if a.Bus != nil {
			if err := a.Bus.StartForwarder(ctx, a.SSEHub.Broadcast); err != nil {
				return fmt.Errorf("start sse forwarder: %w", err)
			}
		}
		g.Go(func() error {
			a.Log.Info("HTTP server listening", "address", a.Cfg.HTTPAddress, "mode", string(a.Mode))
			return a.Server.Run(ctx, a.Cfg.ShutdownTimeout)
		})
	}

	if a.Worker != nil {
		g.Go(func() error { return a.Worker.Run(ctx) })
		if a.Mode == ModeWorker {
			g.Go(func() error { return a.Worker.Listen(ctx, a.Cfg.DatabaseURL) })
		}
	}

	err := g.Wait()
	a.Log.Info("Shutting down", "mode", string(a.Mode))
	return err
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.broker != nil {
		_ = a.broker.Close()
	}
	if a.Bus != nil {
		_ = a.Bus.Close()
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.pg != nil {
		_ = a.pg.Close()
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
