package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felo/mailtext/internal/charset"
	"github.com/felo/mailtext/internal/config"
	"github.com/felo/mailtext/internal/db"
	"github.com/felo/mailtext/internal/handlers"
	"github.com/felo/mailtext/internal/indexer"
	"github.com/felo/mailtext/internal/log"
	"github.com/felo/mailtext/internal/parser"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		log.Def.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := log.New(cfg.Dev)

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer database.Close()

	logger.Info("database opened", "path", cfg.DBPath, "emails", cfg.EmailsPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := os.Stat(cfg.EmailsPath); os.IsNotExist(err) {
		if err := os.MkdirAll(cfg.EmailsPath, 0755); err != nil {
			logger.Error("failed to create emails directory", "path", cfg.EmailsPath, "error", err)
			os.Exit(1)
		}
		logger.Info("created emails directory; place .eml files there and POST /api/scan", "path", cfg.EmailsPath)
	} else {
		p := parser.NewParser(charset.Default()).WithLogger(logger).WithSampleSize(cfg.SampleSize)
		idx := indexer.NewIndexer(database, cfg.EmailsPath, p).
			WithConcurrency(cfg.Workers).
			WithLogger(logger)
		if _, err := idx.IndexAll(ctx); err != nil {
			logger.Warn("indexing failed", "error", err)
		}
	}

	h := handlers.New(database, cfg, logger)
	defer h.Close()

	srv := &http.Server{
		Addr:         cfg.Address(),
		Handler:      h.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "url", cfg.URL())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	logger.Info("server stopped")
}
