package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"myblog/internal/adapter/httpapi"
	"myblog/internal/adapter/scheduler"
	"myblog/internal/blog"
	"myblog/internal/config"
	"myblog/internal/dbsession"
	"myblog/internal/orm"
	"myblog/internal/platform/httpserver"
	"myblog/internal/platform/logger"
	"myblog/internal/platform/pg"
	"myblog/internal/platform/sqlite"
	"myblog/pkg/retry"
)

const stopTimeout = 10 * time.Second

// App wires application components.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	closeLog func() error
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, closeLog := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "myblog",
	})
	return &App{cfg: cfg, log: log, closeLog: closeLog}, nil
}

// Run starts the HTTP server and the scheduler and blocks until SIGINT or SIGTERM.
func (a *App) Run() (err error) {
	defer func() { err = errors.Join(err, a.closeLog()) }()
	a.log.Info("starting", slog.String("db_driver", a.cfg.DB.Driver))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer store.close()
	connector := store.connector

	sessionOpts := []dbsession.Option{
		dbsession.WithLogger(a.log),
		dbsession.WithTracer(otel.Tracer("myblog/dbsession")),
	}
	newSession := func() *dbsession.Session { return dbsession.New(connector, sessionOpts...) }

	if a.cfg.DB.AutoSchema {
		if err := a.createSchema(ctx, newSession(), store.dialect); err != nil {
			return err
		}
	}

	svc := blog.NewService(blog.WithLogger(a.log))
	router := httpapi.NewRouter(httpapi.Config{
		Service:        svc,
		Connector:      connector,
		Logger:         a.log,
		SessionOptions: sessionOpts,
		WriteRate:      a.cfg.HTTP.WriteRate,
		PoolStats:      store.poolStats,
	})

	sched := scheduler.New(ctx, scheduler.Config{Logger: a.log, Sessions: newSession})
	if a.cfg.Stats.Schedule != "" {
		if _, err := sched.AddCron(a.cfg.Stats.Schedule, svc.StatsJob(), scheduler.JobOptions{
			Name:          "blog-stats",
			Timeout:       time.Minute,
			OverlapPolicy: scheduler.SkipIfRunning,
		}); err != nil {
			return err
		}
	}

	httpCfg := httpserver.DefaultConfig()
	httpCfg.Addr = a.cfg.HTTP.Addr
	srv := httpserver.New(httpCfg, router, a.log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error {
		sched.Start()
		<-gctx.Done()
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), stopTimeout)
		defer cancel()
		return sched.Stop(stopCtx)
	})

	err = g.Wait()
	a.log.Info("stopped", slog.Any("err", err))
	return err
}

// database is an opened pool together with the connector sessions draw
// their connections from.
type database struct {
	connector dbsession.Connector
	dialect   orm.Dialect
	close     func()
	// poolStats is nil when the driver reports no pool statistics.
	poolStats func() (any, bool)
}

func (a *App) openDB(ctx context.Context) (*database, error) {
	rc := retry.DefaultConfig()
	rc.MaxAttempts = a.cfg.DB.ConnectAttempts

	switch a.cfg.DB.Driver {
	case config.DriverPostgres:
		dc := pg.DefaultDSNConfig()
		dc.Host = a.cfg.DB.Host
		dc.Port = a.cfg.DB.Port
		dc.User = a.cfg.DB.User
		dc.Password = a.cfg.DB.Password
		dc.Database = a.cfg.DB.Name
		dc.SSLMode = a.cfg.DB.SSLMode
		dc.ApplicationName = "myblog"
		if err := pg.ValidateConfig(dc); err != nil {
			return nil, fmt.Errorf("postgres config: %w", err)
		}
		dsn := pg.BuildDSN(dc)

		opts := pg.DefaultPoolOptions()
		opts.MaxConns = int32(a.cfg.DB.MaxConns)
		pool, err := pg.NewPoolWithOptions(ctx, dsn, opts)
		if err != nil {
			return nil, fmt.Errorf("open postgres %s: %w", pg.RedactDSN(dsn), err)
		}
		if err := pg.WaitForDB(ctx, pool, rc); err != nil {
			pool.Close()
			return nil, err
		}
		a.log.Info("postgres connected", slog.String("target", pg.RedactDSN(dsn)))
		return &database{
			connector: dbsession.NewRetryConnector(pg.NewConnector(pool), rc, a.log),
			dialect:   orm.Postgres,
			close:     pool.Close,
			poolStats: func() (any, bool) {
				stats := pg.GetPoolStats(pool)
				return stats, pg.IsHealthy(stats)
			},
		}, nil

	default:
		opts := sqlite.DefaultDBOptions()
		opts.MaxOpenConns = a.cfg.DB.MaxConns
		db, err := sqlite.NewDBWithOptions(ctx, a.cfg.DB.Path, opts)
		if err != nil {
			return nil, err
		}
		a.log.Info("sqlite opened", slog.String("path", a.cfg.DB.Path))
		connector := sqlite.NewConnector(db, sqlite.WithWriteLock(opts.TxLockMode))
		return &database{
			connector: dbsession.NewRetryConnector(connector, rc, a.log),
			dialect:   orm.SQLite,
			close: func() {
				if err := db.Close(); err != nil {
					a.log.Warn("close sqlite", slog.Any("err", err))
				}
			},
		}, nil
	}
}

func (a *App) createSchema(ctx context.Context, db *dbsession.Session, d orm.Dialect) error {
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := db.Release(relCtx); err != nil {
			a.log.Warn("release bootstrap session", slog.Any("err", err))
		}
	}()
	return blog.NewRegistry(a.log).CreateAll(dbsession.NewContext(ctx, db), db, d)
}
