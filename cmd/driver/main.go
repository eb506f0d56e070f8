package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/use-agent/autodriver/adminserver"
	"github.com/use-agent/autodriver/config"
	"github.com/use-agent/autodriver/driver"
	"github.com/use-agent/autodriver/metrics"
	"github.com/use-agent/autodriver/shepherd"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger()
	slog.Info("autodriver starting",
		"auto_id", cfg.AutoID,
		"req_id", cfg.ReqID,
		"tab_type", cfg.TabType,
		"num_tabs", cfg.NumTabs,
		"single_browser", cfg.IsSingleBrowser(),
	)

	// ── 3. Connect Redis ──────────────────────────────────────────────
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	// ── 4. Build the driver ───────────────────────────────────────────
	sh := shepherd.New(cfg.ShepherdHost, nil)
	drv := driver.New(cfg, rdb, sh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErrCh := make(chan error, 1)
	go func() {
		runErrCh <- drv.Run(ctx)
	}()

	// ── 5. Admin server ──────────────────────────────────────────────
	var admin *adminserver.Server
	if cfg.AdminAddr != "" {
		admin = adminserver.New(cfg.AdminAddr, rdb, drv, time.Now())
		go func() {
			slog.Info("admin server listening", "addr", cfg.AdminAddr)
			if err := admin.Run(); err != nil {
				slog.Error("admin server error", "error", err)
			}
		}()
	}

	// ── 6. Graceful shutdown ──────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("shutdown signal received", "signal", sig.String())
		drv.Shutdown().Initiate(true)
	case err := <-runErrCh:
		if err != nil {
			slog.Error("driver exited with error", "error", err)
		}
	}

	<-drv.Shutdown().Wait()

	if admin != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := admin.Shutdown(shutdownCtx); err != nil {
			slog.Error("admin server forced shutdown", "error", err)
		}
	}

	exitCode := drv.ExitCode()
	metrics.ExitCode.Set(float64(exitCode))
	slog.Info("autodriver stopped", "exit_code", exitCode)
	os.Exit(exitCode)
}

// initLogger configures slog as a JSON handler on stdout, matching the
// teacher's default (no LOG_FORMAT/LOG_LEVEL knobs are part of this spec's
// configuration surface, so only the JSON default is wired).
func initLogger() {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handler))
}
