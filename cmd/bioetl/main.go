package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ajitpratap0/bioetl/pkg/errors"

	// Register the entity descriptors
	_ "github.com/ajitpratap0/bioetl/pkg/entities/assay"
	_ "github.com/ajitpratap0/bioetl/pkg/entities/document"
	_ "github.com/ajitpratap0/bioetl/pkg/entities/target"
	_ "github.com/ajitpratap0/bioetl/pkg/entities/testitem"
)

var version = "0.1.0"

const (
	exitError       = 1
	exitConfigError = 2
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdout)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		if errors.IsType(err, errors.ErrorTypeConfig) {
			os.Exit(exitConfigError)
		}
		os.Exit(exitError)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "bioetl",
		Short: "bioetl - deterministic extraction from the ChEMBL REST API",
		Long: `bioetl extracts ChEMBL entities (assays, documents, targets, test items)
through the paginated REST API and writes byte-stable CSV or Parquet files
with a meta.yaml describing the run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "bioetl v%s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "Go version: %s\n", runtime.Version())
			fmt.Fprintf(cmd.OutOrStdout(), "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	})
	root.AddCommand(newListCmd())
	root.AddCommand(newValidateCmd())
	root.AddCommand(newExtractCmd())
	return root
}
