// Command habitloop is the habit tracker's offline-first sync engine:
// a local SQLite store with an outbox, a background sync daemon, and a
// small CLI for managing habits and completions.
package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/habitloop/habitloop/internal/cloud"
	"github.com/habitloop/habitloop/internal/config"
	"github.com/habitloop/habitloop/internal/store"
)

// version is stamped at build time via -ldflags.
var version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "habitloop",
	Short: "Offline-first habit tracking with cloud sync",
	Long: `habitloop keeps your habits in a local SQLite database and syncs
them to the cloud in the background. Every change works offline; the
sync engine reconciles devices with last-writer-wins semantics.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the habitloop version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("habitloop %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.habitloop/config.yaml)")

	rootCmd.AddCommand(
		initCmd,
		daemonCmd,
		syncCmd,
		statusCmd,
		habitCmd,
		exportCmd,
		importCmd,
		versionCmd,
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env bundles what most commands need to run.
type env struct {
	cfg   *config.Config
	store *store.Store
	cloud cloud.Client
}

// openEnv loads config and opens the local store. When the store cannot
// be opened the engine degrades to cloud-only mode: env.store is nil
// and a warning goes to stderr.
func openEnv() (*env, error) {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w (run 'habitloop init' first)", err)
	}

	client := cloud.NewHTTPClient(cfg.CloudURL, cfg.CloudToken, cfg.RequestTimeout)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	st, err := store.Open(cfg.DatabasePath())
	if err != nil {
		if errors.Is(err, store.ErrStorageUnavailable) {
			fmt.Fprintf(os.Stderr, "Warning: local storage unavailable (%v), running cloud-only\n", err)
			return &env{cfg: cfg, cloud: client}, nil
		}
		return nil, err
	}
	return &env{cfg: cfg, store: st, cloud: client}, nil
}

func (e *env) close() {
	if e.store != nil {
		if err := e.store.Close(); err != nil {
			log.Printf("close store: %v", err)
		}
	}
}

// quietLogger discards engine chatter for one-shot commands; the
// daemon wires a real logger instead.
func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
