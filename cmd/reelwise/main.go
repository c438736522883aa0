package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/reelwise/reelwise/internal/api"
	"github.com/reelwise/reelwise/internal/auth"
	"github.com/reelwise/reelwise/internal/backend"
	"github.com/reelwise/reelwise/internal/config"
	"github.com/reelwise/reelwise/internal/database"
	"github.com/reelwise/reelwise/internal/explore"
	"github.com/reelwise/reelwise/internal/logger"
	"github.com/reelwise/reelwise/internal/preferences"
	"github.com/reelwise/reelwise/internal/rebuild"
	"github.com/reelwise/reelwise/internal/scheduler"
	"github.com/reelwise/reelwise/internal/scheduler/tasks"
	"github.com/reelwise/reelwise/internal/telemetry"
	"github.com/reelwise/reelwise/internal/watchlist"
	"github.com/reelwise/reelwise/internal/websocket"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(logger.Config{
		Level:           cfg.Logging.Level,
		Format:          cfg.Logging.Format,
		Path:            cfg.Logging.Path,
		MaxSizeMB:       cfg.Logging.MaxSizeMB,
		MaxBackups:      cfg.Logging.MaxBackups,
		MaxAgeDays:      cfg.Logging.MaxAgeDays,
		Compress:        cfg.Logging.Compress,
		EnableStreaming: true,
		BufferSize:      cfg.Logging.BufferSize,
	})
	defer log.Close()

	log.Info().
		Str("logLevel", cfg.Logging.Level).
		Str("backend", cfg.Backend.BaseURL).
		Msg("starting reelwise agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.Database.Path, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	log.Info().Str("path", db.Path()).Msg("running database migrations")
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	hub := websocket.NewHub(log.Logger)
	go hub.Run(ctx)

	// Diagnostics entries reach the view once the hub is available.
	log.SetBroadcastHub(hub)

	tokens := auth.NewTokenSource(cfg.Auth.Token)
	client := backend.NewClient(cfg.Backend, tokens, log.Logger)
	push := api.NewPushNotifier(hub, log.Logger)

	prefs := preferences.NewService(db)
	rebuilds := rebuild.NewScheduler(prefs, client, cfg.Rebuild, log.Logger)

	wl := watchlist.NewController(client, watchlist.Options{
		BatchSize:      cfg.Watchlist.BatchSize,
		Debounce:       cfg.Watchlist.Debounce(),
		FlushThreshold: cfg.Watchlist.FlushThreshold,
		MediaType:      cfg.Backend.MediaType,
	}, log.Logger)
	wl.SetListener(push)
	wl.SetRatingRecorder(rebuilds)
	defer wl.Close()

	page := explore.NewPage(client, wl, log.Logger)
	page.SetNotifier(push)
	shown := telemetry.NewLogger(client, cfg.Telemetry, log.Logger)
	page.SetShownLogger(shown)
	defer page.Close()

	hub.SetCancelHandler(func() { page.Cancel() })

	sched, err := scheduler.New(log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create scheduler")
	}
	if err := tasks.RegisterRebuildTickTask(sched, rebuilds, cfg.Rebuild.CheckCron); err != nil {
		log.Fatal().Err(err).Msg("failed to register rebuild task")
	}
	if err := tasks.RegisterLogRotateTask(sched, log); err != nil {
		log.Fatal().Err(err).Msg("failed to register log rotation task")
	}
	sched.Start()

	server := api.NewServer(api.Services{
		Page:        page,
		Watchlist:   wl,
		Tokens:      tokens,
		Preferences: prefs,
		Logs:        log,
		Scheduler:   sched,
		Rebuild:     rebuilds,
	}, hub, log.Logger)

	go func() {
		if err := server.Start(cfg.Server.Address()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	if err := sched.Stop(); err != nil {
		log.Error().Err(err).Msg("scheduler shutdown error")
	}
	rebuilds.Wait()
	shown.Wait()

	log.Info().Msg("agent stopped")
}
