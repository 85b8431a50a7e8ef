package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/retroview/retroview/internal/browser"
	"github.com/retroview/retroview/internal/config"
	"github.com/retroview/retroview/internal/logging"
	"github.com/retroview/retroview/internal/monitoring"
	"github.com/retroview/retroview/internal/server"
	"github.com/retroview/retroview/internal/session"
)

func main() {
	addrFlag := flag.String("addr", "", "Listen address (overrides HOST/PORT)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		OutputPaths: []string{"stdout"},
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics := monitoring.NewMetrics(prometheus.DefaultRegisterer)

	manager := session.NewManager(
		logger,
		metrics,
		session.Config{
			StartPage:         cfg.Viewer.StartPage,
			InactivityTimeout: cfg.Viewer.InactivityTimeout,
			CloseGracePeriod:  cfg.Viewer.CloseGracePeriod,
			DownloadTTL:       cfg.Viewer.DownloadTTL,
			SendTimeout:       cfg.Image.SendTimeout,
			Quality:           cfg.Image.Quality,
			AllowPNG:          cfg.Image.AllowPNG,
		},
		cfg.Viewer.MaxSessions,
		browser.NopFactory{},
		browser.NewNopWidgetTree,
	)
	manager.Start()

	srv := server.NewServer(cfg, logger, metrics, manager, prometheus.DefaultGatherer)

	addr := *addrFlag
	if addr == "" {
		addr = cfg.Server.Host + ":" + cfg.Server.Port
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", addr))
		if err := srv.Run(addr); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("shutdown error", zap.Error(err))
		}
	case err := <-errChan:
		logger.Fatal("server error", zap.Error(err))
	}
}
