package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/zalando/scriptroute"
	"github.com/zalando/scriptroute/routecache"
	"github.com/zalando/scriptroute/routing"
)

type cacheFlags struct {
	dir string
	ttl time.Duration
}

func (f *cacheFlags) open() (*routecache.Cache, error) {
	return routecache.New(routecache.Options{Root: f.dir, TTL: f.ttl})
}

func cacheCmd() *cobra.Command {
	f := &cacheFlags{}
	cmd := &cobra.Command{
		Use:   "cache <command>",
		Short: "Inspect and maintain the route cache",
		Long: `Inspect and maintain the route cache.

The keys accepted by view and remove are path templates, e.g. /greet/{name},
or handler names: not_found, wildcard, internal_err, status_<code>.`,
	}

	cmd.PersistentFlags().StringVar(&f.dir, "cache-dir", scriptroute.DefaultCacheDir, "root directory of the route cache")
	cmd.PersistentFlags().DurationVar(&f.ttl, "cache-ttl", routecache.DefaultTTL, "time after which unchanged routes are rewritten")
	cmd.AddCommand(
		cacheListCmd(f),
		cacheViewCmd(f),
		cacheRemoveCmd(f),
		cacheCleanCmd(f),
		cacheBuildCmd(f),
	)

	return cmd
}

func cacheListCmd(f *cacheFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the cached routes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.open()
			if err != nil {
				return err
			}

			routes, err := c.List()
			if err != nil {
				return err
			}

			now := time.Now()
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATTERN\tFUNCTION\tHASH\tEXPIRES")
			for _, r := range routes {
				expires := r.Expires.Format(time.RFC3339)
				if r.Expired(now) {
					expires += " (expired)"
				}

				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.Pattern, r.FnName, r.Hash, expires)
			}

			return w.Flush()
		},
	}
}

func cacheViewCmd(f *cacheFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "view <key>",
		Short: "Print a cache record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.open()
			if err != nil {
				return err
			}

			r, err := c.Get(args[0])
			if err != nil {
				return err
			}

			b, err := os.ReadFile(r.CachePath)
			if err != nil {
				return err
			}

			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
}

func cacheRemoveCmd(f *cacheFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <key>...",
		Short: "Delete cache records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.open()
			if err != nil {
				return err
			}

			for _, key := range args {
				if err := c.Remove(key); err != nil {
					return err
				}
			}

			return nil
		},
	}
}

func cacheCleanCmd(f *cacheFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Delete every cache record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := f.open()
			if err != nil {
				return err
			}

			return c.Purge()
		},
	}
}

func cacheBuildCmd(f *cacheFlags) *cobra.Command {
	var inline string
	cmd := &cobra.Command{
		Use:   "build [file...]",
		Short: "Store the routes of routing documents in the cache",
		Long: `Store the routes of routing documents in the cache, and delete the
records of the routes not defined by them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(cmd, args, inline)
			if err != nil {
				return err
			}

			c, err := f.open()
			if err != nil {
				return err
			}

			rt, err := routing.New(routing.Options{Cache: c})
			if err != nil {
				return err
			}

			defer rt.Close()
			if err := rt.Reload(defs); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d routes cached\n", rt.Snapshot().Len())
			return nil
		},
	}

	cmd.Flags().StringVarP(&inline, "inline", "i", "", "routing document passed in as a string")
	return cmd
}
