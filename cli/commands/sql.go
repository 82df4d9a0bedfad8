package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/cauldron/cli/internal/config"
	"github.com/satishbabariya/cauldron/cli/internal/ui"
	"github.com/satishbabariya/cauldron/cli/internal/watch"
	"github.com/satishbabariya/cauldron/runtime/client"
)

func (a *app) newSQLCommand() *cobra.Command {
	var (
		file    string
		args    []string
		watchIt bool
		mogrify bool
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "sql [STATEMENT]",
		Short: "Run a raw SQL statement",
		Long: `Run a raw SQL statement given inline or with --file. Placeholders
are passed to the driver unchanged, so use the provider's own style
($1 for postgres, ? otherwise). With --watch the file is re-run every
time it is saved.`,
		Example: `  cauldron sql "select * from users where id = ?" --arg 42
  cauldron sql --file report.sql --watch`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, positional []string) error {
			if (file == "") == (len(positional) == 0) {
				return fmt.Errorf("give either a statement or --file")
			}
			if watchIt && file == "" {
				return fmt.Errorf("--watch requires --file")
			}

			params := argValues(args)
			return a.withStore(func(s *client.Store) error {
				run := func() error {
					query := ""
					if file != "" {
						data, err := afero.ReadFile(config.AppFs, file)
						if err != nil {
							return err
						}
						query = string(data)
					} else {
						query = positional[0]
					}
					query = strings.TrimSpace(query)

					if mogrify {
						text, err := s.Mogrify(query, params...)
						if err != nil {
							return err
						}
						fmt.Fprintln(cmd.OutOrStdout(), text)
						return nil
					}

					records, err := s.Raw(ctxOf(cmd), query, params...)
					if err != nil {
						return err
					}
					return output(cmd.OutOrStdout(), records, asJSON)
				}

				if !watchIt {
					return run()
				}

				w, err := watch.NewWatcher(file, 0, func() error {
					ui.PrintInfo("Running %s", file)
					if err := run(); err != nil {
						ui.PrintError("%v", err)
					}
					return nil
				})
				if err != nil {
					return err
				}
				if err := w.Start(); err != nil {
					return err
				}
				defer w.Stop()

				ui.PrintInfo("Watching %s, press Ctrl+C to stop", w.File())
				<-ctxOf(cmd).Done()
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the statement from a file")
	cmd.Flags().StringArrayVarP(&args, "arg", "a", nil, "Statement argument (repeatable, NULL for null)")
	cmd.Flags().BoolVar(&watchIt, "watch", false, "Re-run the file whenever it changes")
	cmd.Flags().BoolVar(&mogrify, "mogrify", false, "Print the statement with arguments inlined instead of running it")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	return cmd
}
