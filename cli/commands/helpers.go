package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cauldron/adapters/rediscache"
	"github.com/satishbabariya/cauldron/adapters/search"
	"github.com/satishbabariya/cauldron/cli/internal/ui"
	"github.com/satishbabariya/cauldron/query/filter"
	"github.com/satishbabariya/cauldron/runtime/client"
)

// withStore opens a store for the loaded configuration and closes it after fn.
func (a *app) withStore(fn func(s *client.Store) error) error {
	s, err := client.New(a.cfg.Database, client.WithMiddleware(a.stats.Middleware()))
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(s)
}

func (a *app) withCache(fn func(c *rediscache.Cache) error) error {
	c := rediscache.New(a.cfg.Cache)
	defer c.Close()
	return fn(c)
}

func (a *app) searchClient() *search.Client {
	return search.New(a.cfg.Search)
}

// whereFlag registers the --where flag shared by the row commands.
func whereFlag(cmd *cobra.Command, where *string) {
	cmd.Flags().StringVarP(where, "where", "w", "", `Row filter, e.g. "status = 'active' and age > 18 or vip = true"`)
}

func parseWhere(where string) (client.Filter, error) {
	f, err := filter.Parse(where)
	if err != nil {
		return nil, fmt.Errorf("invalid --where: %w", err)
	}
	return f, nil
}

// output prints records as a table, or as JSON when asJSON is set.
func output(w io.Writer, records []client.Record, asJSON bool) error {
	if asJSON {
		return ui.PrintJSON(w, recordsJSON(records))
	}
	ui.PrintRecords(records)
	return nil
}

// recordsJSON converts records to JSON-friendly values. Byte slices from
// text columns become strings.
func recordsJSON(records []client.Record) []any {
	out := make([]any, 0, len(records))
	for _, r := range records {
		values := make([]any, r.Len())
		for i, v := range r.Values() {
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			values[i] = v
		}
		cols := r.Columns()
		if cols == nil {
			out = append(out, values)
			continue
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out
}

// argValues converts positional procedure or statement arguments. The
// literal NULL becomes nil.
func argValues(args []string) []any {
	values := make([]any, len(args))
	for i, arg := range args {
		if strings.EqualFold(arg, "null") {
			values[i] = nil
			continue
		}
		values[i] = arg
	}
	return values
}

func ctxOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(cmd *cobra.Command, v any) error {
	return ui.PrintJSON(cmd.OutOrStdout(), v)
}
