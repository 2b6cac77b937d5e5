/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/output"
)

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List the checks registered for a database kind",
	Example: `  pginsights checks
  pginsights checks --kind postgres --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, _ := cmd.Flags().GetString("kind")
		format, _ := cmd.Flags().GetString("format")
		if err := checkFormat(format); err != nil {
			return err
		}

		kind = db.NormalizeKind(kind)
		descs := checkRegistry().Resolve(kind)
		if len(descs) == 0 {
			app.log.Debug().Strs("kinds", checkRegistry().Kinds()).Msg("known database kinds")
		}
		if format == "json" {
			return output.RenderJSON(os.Stdout, descs)
		}
		return output.RenderChecksText(os.Stdout, kind, descs)
	},
}

func init() {
	rootCmd.AddCommand(checksCmd)
	checksCmd.Flags().StringP("kind", "k", db.KindPostgreSQL, "Database kind")
	checksCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
}
