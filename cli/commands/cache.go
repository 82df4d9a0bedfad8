package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cauldron/adapters/rediscache"
	"github.com/satishbabariya/cauldron/cli/internal/ui"
)

func (a *app) newCacheCommand() *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Read and write the key-value cache",
	}
	cmd.PersistentFlags().StringVarP(&namespace, "namespace", "N", "", "Key namespace")

	get := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *rediscache.Cache) error {
				v, err := c.Get(ctxOf(cmd), args[0], namespace)
				if errors.Is(err, rediscache.ErrMiss) {
					return fmt.Errorf("%s: not found", rediscache.Key(namespace, args[0]))
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), v)
				return nil
			})
		},
	}

	var ttl time.Duration
	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *rediscache.Cache) error {
				if err := c.Set(ctxOf(cmd), args[0], args[1], namespace, ttl); err != nil {
					return err
				}
				ui.PrintSuccess("Stored %s", rediscache.Key(namespace, args[0]))
				return nil
			})
		},
	}
	set.Flags().DurationVar(&ttl, "ttl", 0, "Expire the key after this long")

	del := &cobra.Command{
		Use:   "del KEY",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *rediscache.Cache) error {
				return c.Delete(ctxOf(cmd), args[0], namespace)
			})
		},
	}

	clearNS := &cobra.Command{
		Use:   "clear NAMESPACE",
		Short: "Delete a namespace and every key in it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withCache(func(c *rediscache.Cache) error {
				n, err := c.ClearNamespace(ctxOf(cmd), args[0])
				if err != nil {
					return err
				}
				ui.PrintSuccess("Removed %d keys", n)
				return nil
			})
		},
	}

	cmd.AddCommand(get, set, del, clearNS)
	return cmd
}
