package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/cauldron/cli/internal/ui"
	"github.com/satishbabariya/cauldron/query/filter"
	"github.com/satishbabariya/cauldron/runtime/client"
)

// confirm asks a yes/no question. It is a variable so tests can answer.
var confirm = func(message string) (bool, error) {
	ok := false
	err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok)
	return ok, err
}

func (a *app) newPingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check the database is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := ctxOf(cmd)
			return a.withStore(func(s *client.Store) error {
				spinner, _ := ui.PrintSpinner(fmt.Sprintf("Connecting to %s...", s.Config().Provider))
				start := time.Now()
				err := s.Connect(ctx)
				if spinner != nil {
					_ = spinner.Stop()
				}
				if err != nil {
					return err
				}

				v, err := s.ServerVersion(ctx)
				if err != nil {
					return err
				}
				stats := s.Pool().Stats()
				ui.PrintSuccess("Connected in %s", time.Since(start).Round(time.Millisecond))
				ui.PrintKeyValues([][2]string{
					{"Provider", s.Config().Provider},
					{"Server version", v.String()},
					{"Pool state", stats.State.String()},
					{"Open connections", strconv.Itoa(stats.OpenConnections)},
					{"Idle connections", strconv.Itoa(stats.Idle)},
				})
				return nil
			})
		},
	}
}

func (a *app) newCountCommand() *cobra.Command {
	var where string

	cmd := &cobra.Command{
		Use:   "count TABLE",
		Short: "Count the rows of a table",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseWhere(where)
			if err != nil {
				return err
			}
			return a.withStore(func(s *client.Store) error {
				n, err := s.Count(ctxOf(cmd), args[0], f)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}

	whereFlag(cmd, &where)
	return cmd
}

func (a *app) newSelectCommand() *cobra.Command {
	var (
		where   string
		columns []string
		orderBy string
		groupBy string
		limit   int
		offset  int
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "select TABLE",
		Short: "Read rows from a table",
		Long: `Read rows from a table. At most 100 rows are returned unless --limit
is given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseWhere(where)
			if err != nil {
				return err
			}

			opts := []client.SelectOption{client.Where(f), client.Offset(offset)}
			if len(columns) > 0 {
				opts = append(opts, client.Columns(columns...))
			}
			if orderBy != "" {
				opts = append(opts, client.OrderBy(orderBy))
			}
			if groupBy != "" {
				opts = append(opts, client.GroupBy(groupBy))
			}
			if limit > 0 {
				opts = append(opts, client.Limit(limit))
			}

			return a.withStore(func(s *client.Store) error {
				records, err := s.Select(ctxOf(cmd), args[0], opts...)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), records, asJSON)
			})
		},
	}

	whereFlag(cmd, &where)
	cmd.Flags().StringSliceVarP(&columns, "columns", "c", nil, "Columns to return (default all)")
	cmd.Flags().StringVar(&orderBy, "order-by", "", "ORDER BY expression")
	cmd.Flags().StringVar(&groupBy, "group-by", "", "GROUP BY expression")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum rows to return (default 100)")
	cmd.Flags().IntVar(&offset, "offset", 0, "Rows to skip")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	return cmd
}

func (a *app) newInsertCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "insert TABLE COLUMN=VALUE...",
		Short: "Insert a row and print it as stored",
		Example: `  cauldron insert users name='ann' age=30
  cauldron insert users email="ann@example.com" manager=null`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := filter.ParseAssignments(args[1:])
			if err != nil {
				return err
			}
			return a.withStore(func(s *client.Store) error {
				rec, err := s.Insert(ctxOf(cmd), args[0], values)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), []client.Record{rec}, asJSON)
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the row as JSON")
	return cmd
}

func (a *app) newUpdateCommand() *cobra.Command {
	var (
		where  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:     "update TABLE COLUMN=VALUE... --where FILTER",
		Short:   "Update matching rows and print them",
		Example: `  cauldron update users status='inactive' --where "last_login < '2020-01-01'"`,
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			values, err := filter.ParseAssignments(args[1:])
			if err != nil {
				return err
			}
			f, err := parseWhere(where)
			if err != nil {
				return err
			}
			return a.withStore(func(s *client.Store) error {
				records, err := s.Update(ctxOf(cmd), args[0], values, f)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), records, asJSON)
			})
		},
	}

	whereFlag(cmd, &where)
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	return cmd
}

func (a *app) newDeleteCommand() *cobra.Command {
	var (
		where string
		yes   bool
	)

	cmd := &cobra.Command{
		Use:   "delete TABLE --where FILTER",
		Short: "Delete matching rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseWhere(where)
			if err != nil {
				return err
			}
			if f.IsEmpty() {
				return fmt.Errorf("delete requires --where")
			}

			return a.withStore(func(s *client.Store) error {
				ctx := ctxOf(cmd)
				if !yes {
					n, err := s.Count(ctx, args[0], f)
					if err != nil {
						return err
					}
					ok, err := confirm(fmt.Sprintf("Delete %d rows from %s?", n, args[0]))
					if err != nil {
						return err
					}
					if !ok {
						ui.PrintWarning("Aborted")
						return nil
					}
				}

				n, err := s.Delete(ctx, args[0], f)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), n)
				return nil
			})
		},
	}

	whereFlag(cmd, &where)
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func (a *app) newCallCommand() *cobra.Command {
	var (
		timeout time.Duration
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "call PROCEDURE [PARAM...]",
		Short: "Call a stored procedure",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(func(s *client.Store) error {
				records, err := s.CallProc(ctxOf(cmd), args[0], argValues(args[1:]), timeout)
				if err != nil {
					return err
				}
				return output(cmd.OutOrStdout(), records, asJSON)
			})
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the call after this long")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print rows as JSON")
	return cmd
}
