/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pginsights/internal/analyzer"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/output"
	"github.com/jacobarthurs/pginsights/internal/plan"
)

var queryCmd = &cobra.Command{
	Use:   "query [file]",
	Short: "Analyze a single query plan",
	Long: `Analyze a single query plan and recommend optimizations.

Input can be a SQL file or a JSON file holding EXPLAIN (FORMAT JSON) output.
Use "-" to read from stdin. If no file is provided, enters interactive mode.

SQL input needs a connection. It is explained with costs only, inside a
transaction that is rolled back, so the statement itself never runs.`,
	Example: `  # Explain and analyze a query
  pginsights query query.sql --profile prod

  # Analyze saved EXPLAIN output offline
  pginsights query plan.json

  # Read from stdin
  cat query.sql | pginsights query - --db "postgres://localhost/app"`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, _ := cmd.Flags().GetString("db")
		kind, _ := cmd.Flags().GetString("kind")
		profileName, _ := cmd.Flags().GetString("profile")
		format, _ := cmd.Flags().GetString("format")

		if err := checkFormat(format); err != nil {
			return err
		}

		var file string
		if len(args) > 0 {
			file = args[0]
		}

		in, err := plan.ReadInput(file, os.Stdin, os.Stderr)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		var result analyzer.QueryAnalysis
		if in.NeedsConnection() {
			p, ok, err := app.profiles.ResolveTarget(connStr, kind, profileName)
			if err != nil {
				return err
			}
			if !ok {
				return errNoConnection
			}

			sess, err := db.Open(ctx, p.Kind, p.ConnStr)
			if err != nil {
				return err
			}
			defer func() {
				if err := sess.Close(context.WithoutCancel(ctx)); err != nil {
					app.log.Warn().Err(err).Msg("closing session")
				}
			}()

			result, err = analyzer.AnalyzeQuery(ctx, sess, string(in.Data))
			if err != nil {
				return err
			}
		} else {
			planOutput, err := plan.Resolve(ctx, in, nil)
			if err != nil {
				return err
			}
			result = analyzer.Analyze(planOutput)
		}

		if format == "json" {
			return output.RenderJSON(os.Stdout, result)
		}
		return output.RenderAnalysisText(os.Stdout, result)
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringP("db", "d", "", "Database connection string")
	queryCmd.Flags().StringP("kind", "k", db.KindPostgreSQL, "Database kind for --db")
	queryCmd.Flags().StringP("profile", "p", "", "Use named profile from config")
	queryCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	queryCmd.MarkFlagsMutuallyExclusive("db", "profile")
}
