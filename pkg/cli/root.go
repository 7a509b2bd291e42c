// Package cli implements the crosscopy command-line interface.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"crosscopy/internal/config"
	"crosscopy/internal/drivers"
	"crosscopy/internal/s3client"
)

var (
	version = "dev"
	commit  = "none"
)

// Execute runs the CLI.
func Execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "crosscopy",
		Short:         "Copy tabular data between CSV files, object storage and warehouses",
		Long:          "crosscopy moves a table's data and schema between storage systems through capability-negotiated locators like csv:dir/, s3://bucket/prefix/ or duckdb:db#table.",
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Accept underscores in flag names, so --if_exists works like --if-exists.
	rootCmd.SetGlobalNormalizationFunc(normalizeFlagName)

	rootCmd.AddCommand(newCpCmd())
	rootCmd.AddCommand(newConvCmd())
	rootCmd.AddCommand(newFeaturesCmd())
	return rootCmd
}

func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// runtime bundles the pieces every command needs: configuration, a logger,
// and a locator registry wired with the configured collaborators.
type runtime struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *drivers.Registry
}

func newRuntime() (*runtime, error) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))

	opts := drivers.RegistryOptions{}
	if cfg.S3Configured() {
		opts.Store = s3client.New(s3client.Options{
			Region:   cfg.S3Region,
			KeyID:    *cfg.S3KeyID,
			Secret:   *cfg.S3Secret,
			Endpoint: cfg.S3Endpoint,
		})
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		registry: drivers.NewRegistry(opts),
	}, nil
}
