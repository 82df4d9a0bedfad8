package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) newSearchCommand() *cobra.Command {
	var docType string

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Query the search index",
	}
	cmd.PersistentFlags().StringVar(&docType, "type", "", "Document type for servers that still use them")

	exists := &cobra.Command{
		Use:   "exists INDEX",
		Short: "Report whether an index exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ok, err := a.searchClient().IndexExists(ctxOf(cmd), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), ok)
			return nil
		},
	}

	get := &cobra.Command{
		Use:   "get INDEX ID",
		Short: "Print a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := a.searchClient().Get(ctxOf(cmd), args[0], docType, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}

	query := &cobra.Command{
		Use:     "query INDEX [BODY]",
		Short:   "Run a search request",
		Example: `  cauldron search query users '{"query":{"match":{"name":"ann"}}}'`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := map[string]any{"query": map[string]any{"match_all": map[string]any{}}}
			if len(args) == 2 {
				body = nil
				if err := json.Unmarshal([]byte(args[1]), &body); err != nil {
					return fmt.Errorf("invalid search body: %w", err)
				}
			}
			doc, err := a.searchClient().Search(ctxOf(cmd), args[0], docType, body)
			if err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}

	cmd.AddCommand(exists, get, query)
	return cmd
}
