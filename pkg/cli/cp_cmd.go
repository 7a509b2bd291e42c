package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"crosscopy/internal/drivers"
	"crosscopy/internal/engine"
	"crosscopy/internal/schema"
	"crosscopy/internal/supervise"
)

func newCpCmd() *cobra.Command {
	var (
		ifExistsFlag string
		schemaFlag   string
		writeSchema  bool
		whereFlag    string
		fromArgs     []string
		toArgs       []string
		temporaries  []string
		maxStreams   int
	)

	cmd := &cobra.Command{
		Use:   "cp SOURCE_LOCATOR DEST_LOCATOR",
		Short: "Copy a table's data from one locator to another",
		Long: `Copy a table's data from SOURCE_LOCATOR to DEST_LOCATOR.

When the destination supports a direct transfer from this source (for example
a DuckDB table bulk-loading an s3:// prefix), the data never passes through
this machine; otherwise it is streamed partition by partition.`,
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
			srcArgs, err := drivers.ParseArgs(fromArgs)
			if err != nil {
				return err
			}
			dstArgs, err := drivers.ParseArgs(toArgs)
			if err != nil {
				return err
			}
			if maxStreams < 1 {
				maxStreams = rt.cfg.MaxStreams
			}
			temp := drivers.TempStorage{Locations: temporaries}
			if len(temp.Locations) == 0 {
				temp.Locations = []string{rt.cfg.TempDir}
			}

			opts := engine.Options{
				WriteSchema: writeSchema,
				IfExists:    ifExists,
				Query:       drivers.Query{Where: whereFlag},
				SourceArgs:  srcArgs,
				DestArgs:    dstArgs,
				Temp:        temp,
				MaxStreams:  maxStreams,
			}

			sctx, monitor := supervise.New(cmd.Context(), rt.logger)
			var g errgroup.Group
			g.Go(func() error {
				defer sctx.Finish()
				if schemaFlag != "" {
					table, err := readSchemaLocator(sctx, rt.registry, schemaFlag)
					if err != nil {
						return err
					}
					opts.Schema = table
				}
				return engine.Copy(sctx, src, dest, opts)
			})
			g.Go(monitor.Wait)
			return g.Wait()
		},
	}

	cmd.Flags().StringVar(&ifExistsFlag, "if-exists", "error", "What to do when the destination already exists: error, overwrite, append or overwrite-or-create")
	cmd.Flags().StringVar(&schemaFlag, "schema", "", "Locator to read the table schema from, overriding the source's own schema")
	cmd.Flags().BoolVar(&writeSchema, "write-schema", false, "Also propagate the schema to the destination before copying data")
	cmd.Flags().StringVar(&whereFlag, "where", "", "Source-side row filter, passed through to sources that support queries")
	cmd.Flags().StringArrayVar(&fromArgs, "from-arg", nil, "Driver-specific source argument as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&toArgs, "to-arg", nil, "Driver-specific destination argument as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&temporaries, "temporary", nil, "Temporary staging location (repeatable)")
	cmd.Flags().IntVar(&maxStreams, "max-streams", 0, "Maximum partitions moved concurrently (default from CROSSCOPY_MAX_STREAMS)")

	return cmd
}

// readSchemaLocator reads a table schema from an explicit schema locator.
func readSchemaLocator(sctx *supervise.Context, registry *drivers.Registry, locatorString string) (*schema.Table, error) {
	loc, err := registry.Parse(locatorString)
	if err != nil {
		return nil, err
	}
	reader, ok := loc.(drivers.SchemaReader)
	if !ok || !loc.Features().Locator.Has(drivers.FeatureSchema) {
		return nil, fmt.Errorf("%s locators do not support reading schemas", loc.Scheme())
	}
	table, err := reader.Schema(sctx)
	if err != nil {
		return nil, fmt.Errorf("error reading schema from %s: %w", loc, err)
	}
	if table == nil {
		return nil, fmt.Errorf("no schema found at %s", loc)
	}
	return table, nil
}
