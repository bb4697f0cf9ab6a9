package main

import (
	"context"
	"errors"
	"fmt"
	"hearcheck-go/internal/config"
	"hearcheck-go/internal/database"
	logger "hearcheck-go/internal/logging"
	"hearcheck-go/internal/repository"
	"hearcheck-go/internal/router"
	"hearcheck-go/internal/services"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(projectRoot *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the abandonment sweeper",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *projectRoot)
		},
	}
}

func runServe(parent context.Context, projectRoot string) error {
	if err := config.Init(projectRoot); err != nil {
		return err
	}
	conf := config.Get()

	// Initialize Logger
	log, err := logger.Init(projectRoot, conf.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()
	config.Watch(log)

	gin.SetMode(conf.Server.Mode)

	protocol, err := loadProtocol(projectRoot, conf.Screening.ProtocolFile)
	if err != nil {
		log.Error("Failed to load screening protocol", zap.Error(err))
		return err
	}

	store, closeStore, err := openStore(projectRoot, conf.Database, log)
	if err != nil {
		log.Error("Failed to open database", zap.Error(err))
		return err
	}
	defer closeStore()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	service := services.NewScreeningService(store, protocol, log)
	abandonAfter := func() time.Duration { return config.Get().Screening.AbandonAfter }
	services.NewSweeper(log, service, conf.Screening.SweepInterval, abandonAfter).Start(ctx)

	r, err := router.Setup(log, conf, service)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + conf.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		log.Info("Server listening on http://localhost:" + conf.Server.Port)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to run Gin server", zap.Error(err))
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore connects the configured database driver.
func openStore(projectRoot string, conf config.DatabaseConfig, log *zap.Logger) (services.Store, func(), error) {
	switch conf.Driver {
	case "postgres":
		db, err := database.Open(conf, log)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if sqlDB, err := db.DB(); err == nil {
				sqlDB.Close()
			}
		}
		return repository.NewGormRepository(db), closeFn, nil
	case "sqlite":
		path := conf.Path
		if path != ":memory:" && !filepath.IsAbs(path) {
			path = filepath.Join(projectRoot, path)
		}
		db, err := database.OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		log.Info("SQLite database opened", zap.String("path", path))
		return repository.NewSQLiteRepository(db), func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver %q", conf.Driver)
	}
}
