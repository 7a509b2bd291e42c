package cli

import (
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"crosscopy/internal/drivers"
	"crosscopy/internal/engine"
	"crosscopy/internal/supervise"
)

func newConvCmd() *cobra.Command {
	var ifExistsFlag string

	cmd := &cobra.Command{
		Use:   "conv SOURCE_LOCATOR DEST_LOCATOR",
		Short: "Convert a table schema from one format to another",
		Long: `Read the table schema from SOURCE_LOCATOR and write it to DEST_LOCATOR.

No data moves; this converts between schema representations, for example from
a CSV header to a BigQuery JSON schema file:

  crosscopy conv csv:data.csv bigquery-schema:schema.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}
			src, err := rt.registry.Parse(args[0])
			if err != nil {
				return err
			}
			dest, err := rt.registry.Parse(args[1])
			if err != nil {
				return err
			}
			ifExists, err := drivers.ParseIfExists(ifExistsFlag)
			if err != nil {
				return err
			}

			sctx, monitor := supervise.New(cmd.Context(), rt.logger)
			var g errgroup.Group
			g.Go(func() error {
				defer sctx.Finish()
				return engine.ConvertSchema(sctx, src, dest, ifExists)
			})
			g.Go(monitor.Wait)
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&ifExistsFlag, "if-exists", "error", "What to do when the destination already exists: error or overwrite")

	return cmd
}
