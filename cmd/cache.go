/*
Copyright © 2026 JACOB ARTHURS
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacobarthurs/pginsights/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cached insights",
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear [name]",
	Short: "Drop cached insights for a profile, or for every profile",
	Example: `  pginsights cache clear prod
  pginsights cache clear --all`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all == (len(args) == 1) {
			return errors.New("pass a profile name or --all")
		}

		store, err := cache.Open(app.settings.Cache.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		if all {
			n, err := store.ClearAll(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("Cleared %d cached entries.\n", n)
			return nil
		}

		removed, err := store.Clear(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("No cached insights for %q.\n", args[0])
			return nil
		}
		fmt.Printf("Cleared cached insights for %q.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	cacheClearCmd.Flags().BoolP("all", "a", false, "Clear every cached entry")
}
