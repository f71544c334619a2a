package main

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/habitloop/habitloop/internal/reconcile"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	Long: `Push pending local changes to the cloud, then pull remote changes
down. Use this for a manual sync when the daemon is not running.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		if e.store == nil {
			fatalf("sync requires local storage")
		}

		logger := log.New(os.Stderr, "[sync] ", log.LstdFlags)
		ctx := cmd.Context()
		start := time.Now()

		pusher := reconcile.NewPusher(e.store, e.cloud, nil, logger, e.cfg.BatchSize, e.cfg.MaxAttempts)
		push, err := pusher.Drain(ctx)
		if err != nil {
			fatalf("push: %v", err)
		}

		puller := reconcile.NewPuller(e.store, e.cloud, logger, e.cfg.UserID, e.cfg.PullWindowDays)
		pull, err := puller.Run(ctx)
		if err != nil {
			fatalf("pull: %v", err)
		}

		fmt.Printf("Sync complete in %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("   Pushed:  %d (%d failed, %d parked)\n", push.Pushed, push.Failed, push.Parked)
		fmt.Printf("   Pulled:  %d habits, %d completions\n",
			pull.HabitsApplied+pull.HabitsDeleted, pull.CompletionsApplied)
	},
}
