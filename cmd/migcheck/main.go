// Command migcheck verifies that the down migrations of a project revert their
// up migrations exactly.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stokaro/migcheck/cmd/check"
	"github.com/stokaro/migcheck/cmd/detect"
	"github.com/stokaro/migcheck/cmd/dump"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "migcheck",
		Short: "Check that database migrations roll back cleanly",
		Long: `migcheck applies each migration of a project to an empty scratch database,
rolls it back and compares schema dumps taken before and after. Supported
databases: MySQL, MariaDB, PostgreSQL and SQLite.`,
	}

	rootCmd.AddCommand(check.NewCheckCommand())
	rootCmd.AddCommand(dump.NewDumpCommand())
	rootCmd.AddCommand(detect.NewDetectCommand())
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
