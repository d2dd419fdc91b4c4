package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Wass76/Uqar-sub002/internal/app"
	"github.com/Wass76/Uqar-sub002/internal/config"
	httpapi "github.com/Wass76/Uqar-sub002/internal/http"
	"github.com/Wass76/Uqar-sub002/internal/metrics"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := app.NewLogger(cfg, "settlement-api", version)
	m := metrics.New()

	ctx := context.Background()
	svc, closeApp, err := app.Open(ctx, cfg, logger, m)
	if err != nil {
		logger.WithError(err).Error("startup failed")
		closeApp()
		os.Exit(1)
	}
	defer closeApp()

	handler := httpapi.NewHandler(svc, logger)
	router := httpapi.NewRouter(handler, m, cfg.CORSAllowedOrigins)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      90 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("settlement api listening", "addr", server.Addr, "storage", cfg.Storage, "baseCurrency", cfg.BaseCurrency)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server error")
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("graceful shutdown failed")
		if closeErr := server.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("force close failed")
		}
	}
	logger.Info("settlement api stopped")
}
