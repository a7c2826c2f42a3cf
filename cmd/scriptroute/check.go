package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/zalando/scriptroute/dsl"
	"github.com/zalando/scriptroute/routesfile"
)

const stdinArg = "-"

func loadReader(r io.Reader) ([]*dsl.Definition, error) {
	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	return dsl.Parse(string(doc))
}

func loadFile(path string) ([]*dsl.Definition, error) {
	client, err := routesfile.Open(path)
	if err != nil {
		return nil, err
	}

	return client.LoadAll()
}

// loads every document listed in args, "-" reading from stdin, or the
// inline document
func loadDefinitions(cmd *cobra.Command, args []string, inline string) ([]*dsl.Definition, error) {
	if inline != "" {
		if len(args) > 0 {
			return nil, fmt.Errorf("both inline routes and files given")
		}

		return dsl.Parse(inline)
	}

	if len(args) == 0 {
		args = []string{stdinArg}
	}

	var defs []*dsl.Definition
	for _, a := range args {
		var (
			d   []*dsl.Definition
			err error
		)

		if a == stdinArg {
			d, err = loadReader(cmd.InOrStdin())
		} else {
			d, err = loadFile(a)
		}

		if err != nil {
			return nil, fmt.Errorf("%s: %w", a, err)
		}

		defs = append(defs, d...)
	}

	return defs, nil
}

func checkCmd() *cobra.Command {
	var inline string
	cmd := &cobra.Command{
		Use:   "check [file...]",
		Short: "Parse routing documents",
		Long: `Parse routing documents, and report the first error of each. Without
arguments, or with "-", the document is read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(cmd, args, inline)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%d routes\n", len(defs))
			return nil
		},
	}

	cmd.Flags().StringVarP(&inline, "inline", "i", "", "routing document passed in as a string")
	return cmd
}

func printCmd() *cobra.Command {
	var inline string
	cmd := &cobra.Command{
		Use:   "print [file...]",
		Short: "Print routing documents in canonical form",
		RunE: func(cmd *cobra.Command, args []string) error {
			defs, err := loadDefinitions(cmd, args, inline)
			if err != nil {
				return err
			}

			dsl.Fprint(cmd.OutOrStdout(), defs...)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inline, "inline", "i", "", "routing document passed in as a string")
	return cmd
}
