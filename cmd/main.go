package main

import (
	"context"
	"database/sql"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"biofilter_monitor/internal/config"
	"biofilter_monitor/internal/engine"
	"biofilter_monitor/internal/handlers"
	"biofilter_monitor/internal/logger"
	"biofilter_monitor/internal/metrics"
	"biofilter_monitor/internal/repository"
	"biofilter_monitor/internal/repository/db"
	"biofilter_monitor/internal/server"
	"biofilter_monitor/internal/service"
	"biofilter_monitor/internal/source"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yml")
	flag.Parse()

	// load config.yml, .env and BIOFILTER_* overrides
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}

	// init logger
	log := logger.Get(cfg.LogLevel)

	// open DB
	conn, err := openDB(cfg, log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	// wire dependencies
	repos := repository.NewRepository(conn)
	obs := metrics.NewPromObs(nil)
	visibility, viewers := newVisibility(cfg, obs)

	eng := engine.New(cfg.EngineOptions(), engine.Deps{
		Source:     newSource(cfg, log),
		Visibility: visibility,
		Logger:     log.Named("engine"),
		Observer:   obs,
		Events:     repos.EventRepo,
	})

	services := service.NewService(repos, eng, viewers, service.AuthSettings{
		SigningKey: cfg.Auth.SigningKey,
		TokenTTL:   cfg.Auth.TokenTTL,
	})
	apiHandler := handlers.NewHandler(services, log).WithStreamInterval(cfg.Stream.Interval)

	// context for the engine session, cancelled on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng.Start(ctx)
	log.Infow("engine_ready",
		"source", cfg.Source.Kind,
		"visibility", cfg.Engine.Visibility,
		"auto_refresh", cfg.Engine.AutoRefresh,
	)

	// run HTTP server until a signal arrives, then shut down gracefully
	srv := server.New(cfg.Port, apiHandler.InitRoutes())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infow("http server listening", "addr", srv.Addr())
		return srv.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		return shutdown(eng, srv, log)
	})
	if err := g.Wait(); err != nil {
		log.Errorw("server stopped with error", "err", err)
	}
	_ = log.Sync()
}

// openDB initializes the SQLite database using configuration.
func openDB(cfg *config.Config, log *logger.Logger) (*sql.DB, error) {
	log.Infow("opening sqlite", "path", cfg.DB.Path)
	return db.InitDB(cfg.DB.Path)
}

// newSource selects the upstream metrics backend.
func newSource(cfg *config.Config, log *logger.Logger) engine.Source {
	switch cfg.Source.Kind {
	case config.SourceHTTP:
		log.Infow("metrics source", "kind", cfg.Source.Kind, "url", cfg.Source.URL)
		return source.NewHTTPSource(&http.Client{Timeout: cfg.Source.Timeout}, cfg.Source.URL, cfg.BreakerSettings())
	default:
		log.Infow("metrics source", "kind", config.SourceSimulated, "failure_rate", cfg.Source.FailureRate)
		return source.NewSimulatedSource(nil, cfg.Source.FailureRate, cfg.Source.Jitter)
	}
}

// newVisibility returns the engine visibility signal and the sink for viewer reports.
// In headless mode the dashboard is always visible and reports are ignored.
func newVisibility(cfg *config.Config, obs *metrics.PromObs) (engine.Visibility, service.Viewers) {
	if cfg.Engine.Visibility == config.VisibilityAlways {
		return engine.AlwaysVisible{}, nil
	}
	presence := engine.NewPresence()
	obs.WatchViewers(presence.Viewers)
	return presence, presence
}

// shutdown stops the engine session, then lets in-flight requests complete.
func shutdown(eng *engine.Engine, srv *server.Server, log *logger.Logger) error {
	log.Infow("shutting down server...")

	// stop timers, the in-flight fetch and any simulation run
	eng.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
