// scriptroute program main
//
// Subcommands:
//
//	serve     run the server, accepts the flags of the config package
//	check     parse routing documents
//	print     parse routing documents and print them in canonical form
//	cache     inspect and maintain the route cache
//	version   print the version
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// set at build time
var (
	version = "dev"
	commit  = "none"
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scriptroute",
		Short: "Serve HTTP routes defined as script functions",
		Long: `scriptroute serves HTTP requests by functions defined in routing
documents. The routes are stored in a content addressed cache on disk,
and looked up by their path templates.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(
		serveCmd(),
		checkCmd(),
		printCmd(),
		cacheCmd(),
		versionCmd(),
	)

	return cmd
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
