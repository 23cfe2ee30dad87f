package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/railstate-go/internal/config"
	"github.com/yndnr/railstate-go/internal/infra/buildinfo"
	"github.com/yndnr/railstate-go/internal/infra/confloader"
	"github.com/yndnr/railstate-go/internal/infra/shutdown"
	"github.com/yndnr/railstate-go/internal/state"
	"github.com/yndnr/railstate-go/internal/telemetry/logger"
	"github.com/yndnr/railstate-go/internal/telemetry/metric"
)

const (
	shutdownTimeout   = 30 * time.Second
	readHeaderTimeout = 5 * time.Second
)

func newLogger(cfg *config.Config) *slog.Logger {
	lc := logger.FromSection(cfg.Log)
	lc.Output = os.Stdout
	return logger.New(lc)
}

func serveAction(c *cli.Context) error {
	cfg, err := confloader.LoadConfig(loaderOptions(c)...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := newLogger(cfg)
	slog.SetDefault(log)

	bi := buildinfo.Get()
	log.Info("starting railstate-server",
		"version", bi.Version,
		"commit", bi.Commit,
		"config", c.String("config"))

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	return serve(ctx, cfg, c.String("config"), log)
}

// serve runs the daemon until ctx is done or a termination signal arrives.
func serve(ctx context.Context, cfg *config.Config, configPath string, log *slog.Logger) error {
	reg := metric.NewRegistry()
	st, err := state.New(cfg, state.WithLogger(log), state.WithObserver(reg))
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	reg.MustRegister(metric.NewCollector(st))

	sh := shutdown.NewHandler(shutdownTimeout, log)
	// hooks run in reverse order, so the store closes last
	sh.OnShutdown("store", func(context.Context) error { return st.Close() })
	st.Start(ctx)

	if configPath != "" {
		w, err := watchLogLevel(configPath, log)
		if err != nil {
			log.Warn("configuration watcher disabled", "error", err)
		} else {
			sh.OnShutdown("config watcher", func(context.Context) error { return w.Stop() })
		}
	}

	if cfg.Metrics.Enabled {
		ln, err := net.Listen("tcp", cfg.Metrics.Addr)
		if err != nil {
			_ = sh.Shutdown()
			return fmt.Errorf("listen %s: %w", cfg.Metrics.Addr, err)
		}
		srv := &http.Server{
			Handler:           newMux(st, reg.Handler(), log),
			ReadHeaderTimeout: readHeaderTimeout,
		}
		go func() {
			log.Info("HTTP server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("HTTP server error", "error", err)
			}
		}()
		sh.OnShutdown("http", srv.Shutdown)
	}

	log.Info("server started", "backend", st.Stats(ctx).Backend)
	if err := sh.Wait(ctx); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}
	log.Info("server stopped gracefully")
	return nil
}

// watchLogLevel applies log.level from path whenever the file changes.
// Every other value keeps its startup setting.
func watchLogLevel(path string, log *slog.Logger) (*confloader.Watcher, error) {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return nil, err
	}
	if err := w.Watch(path); err != nil {
		_ = w.Stop()
		return nil, err
	}
	w.OnChange(func(string) {
		cfg, err := confloader.LoadConfig(confloader.WithConfigFile(path))
		if err != nil {
			log.Warn("configuration reload rejected", "error", err)
			return
		}
		if prev := logger.GetLevel(); prev != cfg.Log.Level {
			logger.SetLevel(cfg.Log.Level)
			log.Info("log level changed", "from", prev, "to", logger.GetLevel())
		}
	})
	w.StartAsync()
	return w, nil
}
