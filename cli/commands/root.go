// Package commands implements the cauldron CLI.
package commands

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/satishbabariya/cauldron/cli/internal/config"
	"github.com/satishbabariya/cauldron/cli/internal/ui"
	"github.com/satishbabariya/cauldron/cli/internal/version"
	"github.com/satishbabariya/cauldron/internal/debug"
	"github.com/satishbabariya/cauldron/telemetry"
)

// globalFlags override the loaded configuration.
type globalFlags struct {
	debug    bool
	echo     bool
	provider string
	database string
	host     string
	port     int
	user     string
	password string
	noPool   bool
	stats    bool
}

type app struct {
	flags globalFlags
	cfg   *config.Config
	stats *telemetry.Collector
}

// NewRootCommand creates the cauldron command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "cauldron",
		Short: "Query databases, caches and search indexes",
		Long: `cauldron runs statements against a relational database, a key-value
cache and a search index using the settings in .cauldron.yaml,
CAULDRON_* environment variables and command-line flags.`,
		Version:       version.Get().Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.flags.stats && a.stats != nil {
				printStats(a.stats)
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.BoolVar(&a.flags.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&a.flags.echo, "echo", false, "Log every statement")
	pf.StringVar(&a.flags.provider, "provider", "", "Database provider: postgres, mysql or sqlite3")
	pf.StringVarP(&a.flags.database, "database", "d", "", "Database name, or file path for sqlite3")
	pf.StringVar(&a.flags.host, "host", "", "Database host")
	pf.IntVar(&a.flags.port, "port", 0, "Database port")
	pf.StringVarP(&a.flags.user, "user", "U", "", "Database user")
	pf.StringVar(&a.flags.password, "password", "", "Database password")
	pf.BoolVar(&a.flags.noPool, "no-pool", false, "Use a dedicated connection instead of a pool")
	pf.BoolVar(&a.flags.stats, "stats", false, "Print statement statistics when done")

	cmd.AddCommand(a.newPingCommand())
	cmd.AddCommand(a.newCountCommand())
	cmd.AddCommand(a.newSelectCommand())
	cmd.AddCommand(a.newInsertCommand())
	cmd.AddCommand(a.newUpdateCommand())
	cmd.AddCommand(a.newDeleteCommand())
	cmd.AddCommand(a.newSQLCommand())
	cmd.AddCommand(a.newCallCommand())
	cmd.AddCommand(a.newCacheCommand())
	cmd.AddCommand(a.newSearchCommand())
	cmd.AddCommand(a.newConfigCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// Execute is the main entry point for the CLI
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		ui.PrintError("%v", err)
		return err
	}
	return nil
}

func (a *app) load() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	f := a.flags
	if f.provider != "" {
		cfg.Database.Provider = f.provider
	}
	if f.database != "" {
		cfg.Database.Database = f.database
	}
	if f.host != "" {
		cfg.Database.Host = f.host
	}
	if f.port != 0 {
		cfg.Database.Port = f.port
	}
	if f.user != "" {
		cfg.Database.User = f.user
	}
	if f.password != "" {
		cfg.Database.Password = f.password
	}
	if f.noPool {
		cfg.Database.NoPool = true
	}
	if f.echo {
		cfg.Database.Echo = true
	}
	if f.debug {
		cfg.Debug = true
	}

	debug.Init(cfg.Debug || cfg.Database.Echo)
	a.stats = telemetry.NewCollector()
	debug.Debug("Loaded configuration", "file", cfg.File, "provider", cfg.Database.Provider)
	a.cfg = cfg
	return nil
}

func printStats(c *telemetry.Collector) {
	snap := c.Snapshot()
	if len(snap) == 0 {
		return
	}
	rows := make([][]string, 0, len(snap))
	for _, s := range snap {
		rows = append(rows, []string{
			s.Operation,
			strconv.FormatInt(s.Calls, 10),
			strconv.FormatInt(s.Errors, 10),
			strconv.FormatInt(s.Rows, 10),
			s.Mean().Round(time.Microsecond).String(),
			s.Max.Round(time.Microsecond).String(),
		})
	}
	ui.PrintTable([]string{"Operation", "Calls", "Errors", "Rows", "Mean", "Max"}, rows)
}
