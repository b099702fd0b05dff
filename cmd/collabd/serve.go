package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/collabtext/collabd/internal/config"
	"github.com/collabtext/collabd/internal/httpapi"
	"github.com/collabtext/collabd/internal/logx"
	"github.com/collabtext/collabd/internal/persistence"
	"github.com/collabtext/collabd/internal/registry"
	"github.com/collabtext/collabd/internal/room"
	"github.com/collabtext/collabd/internal/wire"
)

func newServeCmd() *cobra.Command {
	var configPath string
	var flagListen string
	var flagPersistDir string
	var flagLogLevel string
	var flagLogFile string
	var flagGreeting string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "run the collabd server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFile(config.Default(), configPath)
			if err != nil {
				return err
			}
			if flagListen != "" {
				cfg.ListenAddress = flagListen
			}
			if flagPersistDir != "" {
				cfg.PersistDir = flagPersistDir
			}
			if flagLogLevel != "" {
				cfg.LogLevel = flagLogLevel
			}
			if flagLogFile != "" {
				cfg.LogFile = flagLogFile
			}
			if flagGreeting != "" {
				cfg.Greeting = flagGreeting
			}

			return runServe(cfg)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	cmd.Flags().StringVar(&flagListen, "listen", "", "listen address (overrides config)")
	cmd.Flags().StringVar(&flagPersistDir, "persist-dir", "", "snapshot directory (overrides config)")
	cmd.Flags().StringVar(&flagLogLevel, "log-level", "", "debug|info|warn|error (overrides config)")
	cmd.Flags().StringVar(&flagLogFile, "log-file", "", "additional log file path (overrides config)")
	cmd.Flags().StringVar(&flagGreeting, "greeting", "", "eviction/retention notice shown to sessions (overrides config)")

	return cmd
}

func runServe(cfg config.Config) error {
	logger, err := logx.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		return fmt.Errorf("collabd: %w", err)
	}

	if _, err := os.Stat(cfg.PersistDir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("collabd: persist dir %s inaccessible: %w", cfg.PersistDir, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	roomCfg := room.Config{
		HeartbitInterval:  cfg.HeartbitInterval,
		DocumentLimit:     cfg.DocumentLimit,
		LogBytesThreshold: cfg.LogBytesThreshold,
		LogOpsThreshold:   cfg.LogOpsThreshold,
		Persist: func(name string, ops []wire.Op, created time.Time) error {
			return persistence.Save(cfg.PersistDir, name, persistence.Snapshot{
				Events:  ops,
				Created: created,
			})
		},
	}
	reg := registry.New(ctx, roomCfg, logger, cfg.Greeting)

	if err := restoreRooms(reg, cfg.PersistDir, logger); err != nil {
		logger.Warn("restore snapshots", "error", err)
	}

	go reg.RunSweeper(ctx, cfg.SweepInterval, cfg.RoomIdleTTL, cfg.RoomMaxAge)

	introText := cfg.Greeting
	if introText == "" {
		introText = "// start typing to collaborate\n"
	}
	srv := httpapi.New(reg, logger, introText, cfg.RateLimitPerSec, cfg.RateLimitBurst)
	srv.StartLimiterEviction(ctx)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddress,
		Handler: srv,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collabd listening", "addr", cfg.ListenAddress)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("collabd: listen: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	snapshotRooms(reg, cfg.PersistDir, logger)
	return nil
}

// restoreRooms reconstructs the Registry from any snapshots present in
// dir, replaying each room's persisted log. Best-effort: a room whose
// snapshot fails to load is skipped with a logged warning rather than
// aborting startup.
func restoreRooms(reg *registry.Registry, dir string, logger *slog.Logger) error {
	ids, err := persistence.ListRoomIDs(dir)
	if err != nil {
		return err
	}
	for _, id := range ids {
		snap, err := persistence.Load(dir, id)
		if err != nil {
			logger.Warn("restore room snapshot", "room", id, "error", err)
			continue
		}
		r := reg.Restore(id, snap.Created)
		if err := r.Log.Reset(snap.Events); err != nil {
			logger.Warn("replay room snapshot", "room", id, "error", err)
			continue
		}
		logger.Info("room restored", "room", id, "ops", len(snap.Events))
	}
	return nil
}

// snapshotRooms writes every live room's current log to dir. Called on
// graceful shutdown; best-effort — a failure to persist one room is
// logged and does not block the others.
func snapshotRooms(reg *registry.Registry, dir string, logger *slog.Logger) {
	for name, entry := range reg.Snapshot() {
		snap := persistence.Snapshot{
			Events:  entry.Room.Log.Since(0),
			Created: entry.Created,
		}
		if err := persistence.Save(dir, name, snap); err != nil {
			logger.Error("snapshot room", "room", name, "error", err)
			continue
		}
		logger.Info("room snapshotted", "room", name, "ops", len(snap.Events))
	}
}
