package main

import (
	"errors"
	"flag"

	"github.com/spf13/cobra"

	"github.com/zalando/scriptroute"
	"github.com/zalando/scriptroute/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [flags]",
		Short: "Run the server",
		Long: `Run the server. The flags are the ones of the config package, e.g.

  scriptroute serve -routes-file routes.sr -cache-dir /var/cache/scriptroute

Use -config-file to read them from a yaml file.`,

		// the config package has its own flag set
		DisableFlagParsing: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.NewConfig()
			cfg.Flags.SetOutput(cmd.ErrOrStderr())
			if err := cfg.ParseArgs("scriptroute serve", args); err != nil {
				if errors.Is(err, flag.ErrHelp) {
					return nil
				}

				return err
			}

			if cfg.PrintVersion {
				printVersion(cmd)
				return nil
			}

			return scriptroute.Run(cfg.ToOptions())
		},
	}
}
