package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	router "github.com/dkeye/Meet/internal/adapters/http"
	"github.com/dkeye/Meet/internal/adapters/persistence/gormstore"
	"github.com/dkeye/Meet/internal/adapters/persistence/memory"
	wsignal "github.com/dkeye/Meet/internal/adapters/signal"
	"github.com/dkeye/Meet/internal/app"
	"github.com/dkeye/Meet/internal/app/directory"
	"github.com/dkeye/Meet/internal/app/orch"
	"github.com/dkeye/Meet/internal/config"
	"github.com/dkeye/Meet/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if !cfg.LogPretty {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	dir, err := directory.Open(ctx, cfg.Directory)
	if err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	defer func() { _ = dir.Close() }()

	rooms, messages, closeDB, err := openStores(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeDB()

	o := &orch.Orchestrator{
		Registry:      app.NewRegistry(),
		Rooms:         app.NewRoomManager(),
		Directory:     dir,
		RoomStore:     rooms,
		Messages:      messages,
		Policy:        app.SimplePolicy{},
		HistoryLimit:  cfg.Chat.HistoryLimit,
		MaxMessageLen: cfg.Chat.MaxLength,
	}

	joinLimiter := wsignal.NewRoomRateLimiter(cfg.Limits.JoinPerInterval, cfg.Limits.Interval)
	chatLimiter := wsignal.NewRoomRateLimiter(cfg.Limits.ChatPerInterval, cfg.Limits.Interval)
	ctrl := wsignal.NewSignalWSController(o, wsignal.OptionsFromConfig(cfg), joinLimiter, chatLimiter)

	r := router.SetupRouter(ctx, cfg, o, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("directory", dir.Backend()).Msg("Meet server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sweepLimiters(gctx, cfg.Limits.Interval, joinLimiter, chatLimiter)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}

// openStores picks the persistence backend. "memory" keeps everything in
// process and is meant for development.
func openStores(cfg config.DatabaseConfig) (core.RoomStore, core.MessageStore, func(), error) {
	if cfg.Driver == "memory" {
		log.Warn().Str("module", "database").Msg("using in-memory stores, data is lost on restart")
		return memory.NewRoomStore(), memory.NewMessageStore(), func() {}, nil
	}
	db, err := gormstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, nil, nil, err
	}
	log.Info().Str("module", "database").Str("driver", cfg.Driver).Msg("database ready")
	return gormstore.NewRoomStore(db), gormstore.NewMessageStore(db), func() { closeGorm(db) }, nil
}

func closeGorm(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Str("module", "database").Msg("close")
	}
}

func sweepLimiters(ctx context.Context, every time.Duration, limiters ...*wsignal.RoomRateLimiter) {
	if every <= 0 {
		every = 10 * time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range limiters {
				l.Sweep()
			}
		}
	}
}
