package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List locator schemes and the operations each supports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "SCHEME\tOPERATIONS\tDATA IF-EXISTS\tSCHEMA IF-EXISTS\tEXAMPLE")
			for _, info := range rt.registry.Schemes() {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					info.Scheme,
					info.Features.Locator,
					orDash(info.Features.DestIfExists.String()),
					orDash(info.Features.WriteSchemaIfExists.String()),
					info.Example,
				)
			}
			return w.Flush()
		},
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
