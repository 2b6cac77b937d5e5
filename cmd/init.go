/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pginsights/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with example template",
	Long: `Create config.yaml in the config directory with a commented template.

The file holds logging, cache and metrics settings. Connection profiles are
kept next to it in profiles.yaml and managed with 'pginsights profile'. If a
config file already exists, it will not be overwritten.`,
	Example: `  # Create default config
  pginsights init

  # Overwrite existing config
  pginsights init --force`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		path, err := config.WriteTemplate(app.settings.Dir, force)
		if err != nil {
			return err
		}
		fmt.Printf("Created config at %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing config file")
}
