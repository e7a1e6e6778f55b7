package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harunnryd/sabda/pkg/logging"
	"github.com/harunnryd/sabda/pkg/redact"
	"github.com/harunnryd/sabda/pkg/runner"
	"github.com/harunnryd/sabda/pkg/sabda"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := sabda.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	logger := logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	redact.SetEnabled(cfg.Privacy.RedactPII)

	obs, closeObs, err := sabda.BuildObserver(cfg.Observability, logger)
	if err != nil {
		logger.Error("observer_init_failed", "error", err)
		os.Exit(1)
	}

	providers := sabda.DefaultProviders()
	switch strings.ToLower(cfg.Environment) {
	case "local", "test":
		sabda.RegisterMockProviders(providers)
	}

	gateway, err := sabda.NewServer(sabda.Options{
		Config:    cfg,
		Providers: providers,
		Observer:  obs,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("gateway_init_failed", "error", err)
		_ = closeObs()
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           gateway.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app := runner.NewLifecycleRunner(gateway, runner.Hooks{
		OnStart: func() error {
			ln, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return err
			}
			logger.Info("http_listening", "addr", ln.Addr().String(), "environment", cfg.Environment)
			go func() {
				if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serveErr <- err
				}
			}()
			return nil
		},
		OnStop: func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("http_shutdown_failed", "error", err)
			}
			if err := closeObs(); err != nil {
				logger.Warn("observer_close_failed", "error", err)
			}
		},
	}, cfg.Server.ShutdownTimeout)

	go func() {
		if err := <-serveErr; err != nil {
			logger.Error("http_serve_failed", "error", err)
			stop()
		}
	}()

	if err := app.Run(ctx); err != nil {
		slog.Error("gateway_stopped_with_error", "error", err)
		os.Exit(1)
	}
	logger.Info("gateway_stopped")
}
