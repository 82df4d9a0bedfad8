package commands

import (
	"fmt"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/satishbabariya/cauldron/cli/internal/config"
	"github.com/satishbabariya/cauldron/cli/internal/ui"
)

type configAnswers struct {
	Provider string
	Database string
	Host     string
	Port     string
	User     string
	Redis    string `survey:"redis"`
	Search   string `survey:"search"`
}

// askConfig prompts for connection settings, starting from cfg.
var askConfig = func(cfg *config.Config) error {
	answers := configAnswers{}
	questions := []*survey.Question{
		{
			Name: "provider",
			Prompt: &survey.Select{
				Message: "Database provider:",
				Options: []string{"postgres", "mysql", "sqlite3"},
				Default: cfg.Database.Provider,
			},
		},
		{
			Name:     "database",
			Prompt:   &survey.Input{Message: "Database name or sqlite3 file:", Default: cfg.Database.Database},
			Validate: survey.Required,
		},
		{
			Name:   "host",
			Prompt: &survey.Input{Message: "Database host:", Default: cfg.Database.Host},
		},
		{
			Name:   "port",
			Prompt: &survey.Input{Message: "Database port:", Default: strconv.Itoa(cfg.Database.Port)},
			Validate: func(ans any) error {
				if _, err := strconv.Atoi(ans.(string)); err != nil {
					return fmt.Errorf("port must be a number")
				}
				return nil
			},
		},
		{
			Name:   "user",
			Prompt: &survey.Input{Message: "Database user:", Default: cfg.Database.User},
		},
		{
			Name:   "redis",
			Prompt: &survey.Input{Message: "Cache host:", Default: cfg.Cache.Host},
		},
		{
			Name:   "search",
			Prompt: &survey.Input{Message: "Search host:", Default: cfg.Search.Host},
		},
	}
	if err := survey.Ask(questions, &answers); err != nil {
		return err
	}

	port, _ := strconv.Atoi(answers.Port)
	cfg.Database.Provider = answers.Provider
	cfg.Database.Database = answers.Database
	cfg.Database.Host = answers.Host
	cfg.Database.Port = port
	cfg.Database.User = answers.User
	cfg.Cache.Host = answers.Redis
	cfg.Search.Host = answers.Search
	return nil
}

func (a *app) newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration file",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := *a.cfg
			if err := askConfig(&cfg); err != nil {
				return err
			}
			if err := cfg.Database.Validate(); err != nil {
				return err
			}
			file, err := config.SaveConfig(&cfg)
			if err != nil {
				return err
			}
			ui.PrintSuccess("Wrote %s", file)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := a.cfg
			file := c.File
			if file == "" {
				file = "(none)"
			}
			password := ""
			if c.Database.Password != "" {
				password = "********"
			}
			ui.PrintKeyValues([][2]string{
				{"Config file", file},
				{"Provider", c.Database.Provider},
				{"Database", c.Database.Database},
				{"Host", c.Database.Host},
				{"Port", strconv.Itoa(c.Database.Port)},
				{"User", c.Database.User},
				{"Password", password},
				{"Pool", fmt.Sprintf("%t (min %d, max %d)", !c.Database.NoPool, c.Database.MinSize, c.Database.MaxSize)},
				{"Cache", fmt.Sprintf("%s:%d", c.Cache.Host, c.Cache.Port)},
				{"Search", fmt.Sprintf("%s://%s:%d", c.Search.Scheme, c.Search.Host, c.Search.Port)},
			})
			return nil
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}
