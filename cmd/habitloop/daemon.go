package main

import (
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/habitloop/habitloop/internal/config"
	"github.com/habitloop/habitloop/internal/daemon"
	"github.com/habitloop/habitloop/internal/dashboard"
	"github.com/habitloop/habitloop/internal/events"
	"github.com/habitloop/habitloop/internal/habits"
	"github.com/habitloop/habitloop/internal/reconcile"
)

var daemonNoDashboard bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Run the sync engine in the foreground: periodic push/pull cycles,
immediate sync on connectivity regain, and a local dashboard with a
live WebSocket event stream. Stop with Ctrl-C.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		if e.store == nil {
			fatalf("the daemon requires local storage")
		}

		cfg, v, err := config.Load(configPath)
		if err != nil {
			fatalf("%v", err)
		}

		logger := newDaemonLogger(cfg)
		logger.Printf("habitloop daemon %s starting (db=%s)", version, e.store.Path())

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bus := events.NewBus()

		monitor := daemon.NewMonitor(e.cloud, logger, cfg.ProbeInterval)
		go monitor.Run(ctx)

		pusher := reconcile.NewPusher(e.store, e.cloud, bus, logger, cfg.BatchSize, cfg.MaxAttempts)
		puller := reconcile.NewPuller(e.store, e.cloud, logger, cfg.UserID, cfg.PullWindowDays)
		orch := daemon.NewOrchestrator(e.store, pusher, puller, monitor, bus, logger, cfg.SyncInterval)

		projection := habits.NewProjection(e.store, bus, logger, cfg.UserID, cfg.MaxAttempts)
		go projection.Run(ctx)

		var dash *dashboard.Server
		if !daemonNoDashboard {
			dash = dashboard.NewServer(cfg.DashboardPort, bus, projection, logger)
			if err := dash.Start(); err != nil {
				fatalf("start dashboard: %v", err)
			}
			defer func() {
				if err := dash.Stop(); err != nil {
					logger.Printf("stop dashboard: %v", err)
				}
			}()
		}

		config.Watch(v,
			func(fresh *config.Config) {
				logger.Printf("config reloaded, syncing")
				orch.TriggerSync()
			},
			func(err error) {
				logger.Printf("config reload failed: %v", err)
			},
		)

		orch.Run(ctx)
		logger.Printf("daemon stopped")
	},
}

// newDaemonLogger logs to stderr, and additionally to a size-rotated
// file when log_file is configured.
func newDaemonLogger(cfg *config.Config) *log.Logger {
	var w io.Writer = os.Stderr
	if cfg.LogFile != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10, // megabytes
			MaxBackups: 3,
			MaxAge:     28, // days
		}
		w = io.MultiWriter(os.Stderr, rotator)
	}
	return log.New(w, "[daemon] ", log.LstdFlags)
}

func init() {
	daemonCmd.Flags().BoolVar(&daemonNoDashboard, "no-dashboard", false, "disable the local dashboard server")
}
