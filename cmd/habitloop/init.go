package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/habitloop/habitloop/internal/config"
)

var initUserID string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter config file",
	Long: `Write a starter config to ~/.habitloop/config.yaml (or the path
given with --config) with a fresh device id. Edit the file afterwards
to fill in your cloud URL and token.`,
	Run: func(cmd *cobra.Command, args []string) {
		if initUserID == "" {
			fatalf("--user is required")
		}

		path := configPath
		if path == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				fatalf("cannot determine home directory: %v", err)
			}
			path = filepath.Join(home, ".habitloop", "config.yaml")
		}

		if err := config.WriteDefault(path, initUserID); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Wrote %s\n", path)
		fmt.Println("Edit it to set cloud_url and cloud_token, then run 'habitloop daemon'.")
	},
}

func init() {
	initCmd.Flags().StringVar(&initUserID, "user", "", "user id to initialize the config with")
}
