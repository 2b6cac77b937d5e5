/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jacobarthurs/pginsights/internal/cache"
	"github.com/jacobarthurs/pginsights/internal/db"
	"github.com/jacobarthurs/pginsights/internal/insights"
	"github.com/jacobarthurs/pginsights/internal/metrics"
	"github.com/jacobarthurs/pginsights/internal/output"
	"github.com/jacobarthurs/pginsights/internal/profile"
	"github.com/jacobarthurs/pginsights/internal/sysinfo"
)

var errNoConnection = errors.New("no connection: pass --db or --profile, or set a default profile")

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Run health checks and report insights",
	Long: `Run every registered check for the connection's database kind and report
the insights they find, most severe first.

Results are cached per profile for the configured TTL. Use --refresh to
ignore the cache. Ad-hoc --db connections are never cached.`,
	Example: `  # Use the default profile
  pginsights insights

  # Use a saved profile, bypassing the cache
  pginsights insights --profile prod --refresh

  # Every saved profile, as JSON
  pginsights insights --all --format json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		connStr, _ := cmd.Flags().GetString("db")
		kind, _ := cmd.Flags().GetString("kind")
		profileName, _ := cmd.Flags().GetString("profile")
		all, _ := cmd.Flags().GetBool("all")
		refresh, _ := cmd.Flags().GetBool("refresh")
		format, _ := cmd.Flags().GetString("format")

		if err := checkFormat(format); err != nil {
			return err
		}

		targets, err := insightTargets(connStr, kind, profileName, all)
		if err != nil {
			return err
		}

		if host, err := sysinfo.Detect(); err == nil {
			app.log.Debug().
				Int64("total_memory_mb", host.TotalMemoryMB).
				Int64("override_mb", app.settings.System.TotalMemoryMB).
				Int("cpus", host.CPUs).
				Msg("host detected")
		}

		recorder := metrics.NewRecorder()
		manager := insights.NewManager(checkRegistry(),
			insights.WithLogger(app.log),
			insights.WithObserver(recorder),
		)

		var store *cache.Store
		if app.settings.CacheEnabled() {
			store, err = cache.Open(app.settings.Cache.Path, cache.WithTTL(app.settings.Cache.TTL))
			if err != nil {
				return err
			}
			defer store.Close()
		}

		cached := newService(manager, recorder, store)
		uncached := newService(manager, recorder, nil)

		results := make([]insights.Result, len(targets))
		g, ctx := errgroup.WithContext(cmd.Context())
		for i, p := range targets {
			svc := cached
			if p.AdHoc() || store == nil {
				svc = uncached
			}
			g.Go(func() error {
				res, err := svc.Run(ctx, insights.Target{Name: p.Name, Kind: p.Kind, ConnStr: p.ConnStr}, refresh)
				if err != nil {
					return fmt.Errorf("%s: %w", p.Name, err)
				}
				results[i] = res
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		if path := app.settings.Metrics.Textfile; path != "" {
			if err := recorder.WriteTextfile(path); err != nil {
				app.log.Warn().Err(err).Str("path", path).Msg("writing metrics textfile")
			}
		}

		if format == "json" {
			return output.RenderJSON(os.Stdout, results)
		}
		return output.RenderInsightsText(os.Stdout, results)
	},
}

func newService(m *insights.Manager, r *metrics.Recorder, store *cache.Store) *insights.Service {
	opts := []insights.ServiceOption{
		insights.WithServiceLogger(app.log),
		insights.WithServiceObserver(r),
	}
	if store != nil {
		opts = append(opts, insights.WithCache(store))
	}
	return insights.NewService(m, db.Open, opts...)
}

func insightTargets(connStr, kind, profileName string, all bool) ([]profile.Profile, error) {
	if all {
		profiles, err := app.profiles.List()
		if err != nil {
			return nil, err
		}
		if len(profiles) == 0 {
			return nil, profile.ErrNoProfiles
		}
		return profiles, nil
	}

	p, ok, err := app.profiles.ResolveTarget(connStr, kind, profileName)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNoConnection
	}
	return []profile.Profile{p}, nil
}

func checkFormat(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid output format %q: must be \"text\" or \"json\"", format)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(insightsCmd)
	insightsCmd.Flags().StringP("db", "d", "", "Database connection string")
	insightsCmd.Flags().StringP("kind", "k", db.KindPostgreSQL, "Database kind for --db")
	insightsCmd.Flags().StringP("profile", "p", "", "Use named profile from config")
	insightsCmd.Flags().BoolP("all", "a", false, "Run against every saved profile")
	insightsCmd.Flags().BoolP("refresh", "r", false, "Ignore cached insights")
	insightsCmd.Flags().StringP("format", "f", "text", "Output format: text, json")
	insightsCmd.MarkFlagsMutuallyExclusive("db", "profile", "all")
}
