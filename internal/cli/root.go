// Package cli implements the thyra CLI commands.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/rcliao/thyra/internal/bufstore"
	"github.com/spf13/cobra"
)

var (
	dbPath       string
	backendsPath string
	verbose      bool
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "thyra",
	Short: "LLM reasoning strategies for thyroid case classification",
	Long:  "Classifies hospital patient cases as thyroid-disease positive or negative using one of five reasoning strategies. Lab sessions in, JSONL verdicts out.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Template database path (default: $THYRA_DB or ~/.thyra/buffers.db)")
	RootCmd.PersistentFlags().StringVar(&backendsPath, "backends", "", "Backend registry YAML (default: built-in local backends)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("THYRA_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".thyra", "buffers.db")
}

func openStore() (*bufstore.SQLiteStore, error) {
	return bufstore.NewSQLiteStore(getDBPath())
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
