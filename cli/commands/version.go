package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cauldron/cli/internal/version"
)

func newVersionCommand() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skip config loading.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			info := version.Get()
			if short {
				fmt.Fprintln(cmd.OutOrStdout(), info.String())
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), info.FullString())
		},
	}

	cmd.Flags().BoolVar(&short, "short", false, "Print a single line")
	return cmd
}
