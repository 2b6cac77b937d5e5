/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"os"
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pginsights/internal/check"
	"github.com/jacobarthurs/pginsights/internal/check/postgres"
	"github.com/jacobarthurs/pginsights/internal/config"
	"github.com/jacobarthurs/pginsights/internal/logger"
	"github.com/jacobarthurs/pginsights/internal/output"
	"github.com/jacobarthurs/pginsights/internal/profile"
)

var Version = "dev"

// app holds what PersistentPreRunE loads for every command.
var app struct {
	settings *config.Settings
	log      zerolog.Logger
	profiles *profile.Store
}

var (
	registryOnce sync.Once
	registry     *check.Registry
)

// checkRegistry returns the process-wide registry, registering every
// backend on first use.
func checkRegistry() *check.Registry {
	registryOnce.Do(func() {
		registry = check.NewRegistry()
		postgres.Register(registry, postgres.Options{
			TotalMemoryMB: app.settings.System.TotalMemoryMB,
		})
	})
	return registry
}

func init() {
	if Version == "dev" {
		if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
			Version = info.Main.Version
		}
	}
	rootCmd.Version = Version

	rootCmd.PersistentFlags().String("config", "", "Config directory (default is the user config dir /pginsights)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
}

var rootCmd = &cobra.Command{
	Use:          "pginsights",
	SilenceUsage: true,
	Short:        "Health insights for PostgreSQL databases",
	Long: `pginsights runs a set of health checks against a database and reports
prioritized, actionable insights: unused or redundant indexes, memory settings
below their targets, slow statements, table bloat and stale statistics.

It also analyzes single query plans without executing the query.`,
	Example: `  # Run every check against a saved profile
  pginsights insights --profile prod

  # Analyze a query plan
  pginsights query query.sql --profile prod

  # Create the config file
  pginsights init`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("config")
		settings, err := config.Load(dir)
		if err != nil {
			return err
		}
		if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
			settings.Log.Level = lvl
		}

		noColor, _ := cmd.Flags().GetBool("no-color")
		color := !noColor && output.ColorEnabled(os.Stdout)
		output.SetNoColor(!color)

		app.settings = settings
		app.profiles = profile.NewStore(settings.Dir)
		app.log = logger.New(logger.Options{
			Level:   settings.Log.Level,
			Format:  settings.Log.Format,
			NoColor: noColor || !output.ColorEnabled(os.Stderr),
		})
		return nil
	},
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
