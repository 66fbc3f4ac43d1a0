package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"driftsync/internal/config"
	"driftsync/internal/handler"
	"driftsync/internal/hub"
	"driftsync/internal/reconcile"
	"driftsync/internal/repository/sqlite"
	"driftsync/internal/runner"
	"driftsync/internal/scanner"
	"driftsync/internal/service"
	"driftsync/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "config file path (overrides search)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	var cfg *config.Config
	var cfgFile string
	var err error
	if *configPath != "" {
		cfg, cfgFile, err = config.LoadFromPath(*configPath)
	} else {
		cfg, cfgFile, err = config.Load()
	}
	if err != nil {
		log.Fatal().Err(err).Str("path", cfgFile).Msg("load config")
	}
	if cfgFile != "" {
		log.Info().Str("path", cfgFile).Msg("config loaded")
	}
	if *addr != "" {
		cfg.Listen = *addr
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	log.Info().Msg("starting driftsync server")

	// Pick up log level edits without a restart.
	if cfgFile != "" {
		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		w := watcher.New(cfgFile, func() {
			reloaded, _, err := config.LoadFromPath(cfgFile)
			if err != nil {
				log.Error().Err(err).Msg("reload config")
				return
			}
			if level, err := zerolog.ParseLevel(reloaded.LogLevel); err == nil {
				zerolog.SetGlobalLevel(level)
				log.Info().Str("level", reloaded.LogLevel).Msg("log level updated")
			}
		}, log)
		go func() {
			if err := w.Watch(watchCtx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("config watcher stopped")
			}
		}()
	}

	repo, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer repo.Close()
	log.Info().Str("path", cfg.Database.Path).Msg("database opened")

	eventBus := service.NewEventBus()

	sseHub := hub.New(eventBus, log)
	go sseHub.Run()

	scan := scanner.New(nil, log)
	reconciler := reconcile.NewReconciler(repo, repo, log)
	applier := reconcile.NewApplier(repo, repo, log)
	review := service.NewReview(repo, applier, eventBus, log)

	jobs := runner.New(scan, reconciler, repo, eventBus, log, runner.Options{
		MaxRuntime: cfg.Runner.MaxRuntime.Duration(),
	})

	// Jobs left running by a previous process can never finish.
	if err := jobs.ReapOrphaned(context.Background()); err != nil {
		log.Error().Err(err).Msg("reap orphaned jobs")
	}

	scheduler := cron.New()
	if err := jobs.Schedule(scheduler,
		cfg.Runner.SweepInterval.Duration(),
		cfg.Runner.TickInterval.Duration()); err != nil {
		log.Fatal().Err(err).Msg("schedule background jobs")
	}
	scheduler.Start()

	api := handler.NewDiscoveryHandler(repo, review, log)
	api.SetScanEnqueuer(jobs)
	api.SetConnectionTester(scan)
	api.SetEventBus(eventBus)

	mux := http.NewServeMux()
	api.Routes(mux)
	mux.Handle("GET /events", sseHub)

	finalHandler := handler.Chain(mux,
		handler.Recover(log),
		handler.CORS,
		handler.Logger(log),
	)

	server := &http.Server{
		Addr:         cfg.Listen,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0, // SSE connections stay open
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Listen).Msg("server listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	cronCtx := scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	// Let in-flight scans and cron entries finish before closing the DB.
	<-cronCtx.Done()
	jobs.Wait()

	log.Info().Msg("server stopped")
}
