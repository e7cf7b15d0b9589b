// Command arenasim runs the Loot Arena economy simulation.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/talgya/loot-arena/config"
	"github.com/talgya/loot-arena/internal/api"
	"github.com/talgya/loot-arena/internal/arena"
	"github.com/talgya/loot-arena/internal/engine"
	"github.com/talgya/loot-arena/internal/persistence"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	setupLogger(cfg.Log)

	slog.Info("Loot Arena: persistent gladiator economy")

	// ── Database ──────────────────────────────────────────────────────
	var db *persistence.DB
	if cfg.Storage.DSN != "" {
		db, err = persistence.Open(cfg.Storage.DSN)
		if err != nil {
			slog.Warn("database unavailable, running local-only", "dsn", cfg.Storage.DSN, "error", err)
			db = nil
		} else {
			defer db.Close()
			slog.Info("database opened", "dsn", cfg.Storage.DSN)
		}
	} else {
		slog.Info("no DSN configured, running local-only")
	}

	// ── Core ──────────────────────────────────────────────────────────
	coreCfg := engine.Config{
		Seed:             cfg.Sim.Seed,
		HouseAgents:      cfg.Sim.HouseAgents,
		SkirmishInterval: cfg.SkirmishInterval(),
		ReportInterval:   cfg.ReportInterval(),
		Arena: arena.SchedulerConfig{
			MaxSeats:       cfg.Arena.Seats,
			WaitDuration:   time.Duration(cfg.Arena.WaitSecs) * time.Second,
			RevealDuration: time.Duration(cfg.Arena.RevealSecs) * time.Second,
			LoadDuration:   time.Duration(cfg.Arena.LoadingSecs) * time.Second,
			FightDuration:  time.Duration(cfg.Arena.FightSecs) * time.Second,
			SettleHold:     time.Duration(cfg.Arena.SettleSecs) * time.Second,
			SelectBackoff:  time.Duration(cfg.Arena.BackoffSecs) * time.Second,
		},
	}
	core := engine.New(coreCfg, db)

	if err := core.Start(); err != nil {
		slog.Error("core start failed", "error", err)
		os.Exit(1)
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.Server.Token == "" {
		slog.Warn("server token not set, user POST endpoints disabled")
	}
	srv := &api.Server{
		Core:  core,
		Addr:  cfg.Server.Addr,
		Token: cfg.Server.Token,
	}
	srv.Start(cfg.Server.RateLimit, cfg.Server.RateBurst)

	fmt.Printf("\nThe arena is open: %d house gladiators await challengers.\n", cfg.Sim.HouseAgents)
	fmt.Printf("API: http://localhost%s/api/v1/status\n", cfg.Server.Addr)
	fmt.Println("Running... (Ctrl+C to stop)")

	// ── Shutdown ──────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	slog.Info("received signal, shutting down", "signal", sig)

	core.Stop()
	fmt.Println("Arena closed. State saved.")
}

// setupLogger configures the default slog handler from config.
func setupLogger(lc config.LogConfig) {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
