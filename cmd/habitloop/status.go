package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and outbox status",
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		if e.store == nil {
			fmt.Println("Local storage: unavailable (cloud-only mode)")
			return
		}

		ctx := cmd.Context()
		version, err := e.store.Version(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		depth, err := e.store.OutboxDepth(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		parked, err := e.store.ParkedOutbox(ctx, e.cfg.MaxAttempts)
		if err != nil {
			fatalf("%v", err)
		}
		habits, err := e.store.ListHabits(ctx, e.cfg.UserID, false)
		if err != nil {
			fatalf("%v", err)
		}

		fmt.Printf("Database:       %s (schema v%d)\n", e.store.Path(), version)
		fmt.Printf("Habits:         %d\n", len(habits))
		fmt.Printf("Outbox pending: %d\n", depth)
		fmt.Printf("Outbox parked:  %d\n", len(parked))
		for _, entry := range parked {
			fmt.Printf("   seq %d: %s %s %s (%d attempts)\n",
				entry.Seq, entry.Op, entry.Table, entry.RecordID, entry.Attempts)
		}
	},
}
