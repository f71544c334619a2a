package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/habitloop/habitloop/internal/migrate"
)

var exportOut string
var importIn string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export habits and completions as JSON Lines",
	Long: `Write the user's live habits and completions to a JSONL file, one
record per line. Deleted records are not exported.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		if e.store == nil {
			fatalf("export requires local storage")
		}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				fatalf("%v", err)
			}
			defer f.Close()
			out = f
		}

		report, err := migrate.Export(cmd.Context(), e.store, e.cfg.UserID, out)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d habits, %d completions\n", report.Habits, report.Completions)
	},
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import habits and completions from JSON Lines",
	Long: `Read a JSONL export and write its records into the local store.
Existing records are skipped, so importing the same file twice is safe.
Imported data syncs to the cloud on the next cycle.`,
	Run: func(cmd *cobra.Command, args []string) {
		e, err := openEnv()
		if err != nil {
			fatalf("%v", err)
		}
		defer e.close()

		if e.store == nil {
			fatalf("import requires local storage")
		}

		in := os.Stdin
		if importIn != "" {
			f, err := os.Open(importIn)
			if err != nil {
				fatalf("%v", err)
			}
			defer f.Close()
			in = f
		}

		report, err := migrate.Import(cmd.Context(), e.store, e.cfg.UserID, in)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("Imported %d habits, %d completions (%d skipped)\n",
			report.Habits, report.Completions, report.Skipped)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output file (default stdout)")
	importCmd.Flags().StringVarP(&importIn, "in", "i", "", "input file (default stdin)")
}
