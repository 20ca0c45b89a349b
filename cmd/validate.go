package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/eisenhauerIO/impact-engine/internal/runconfig"
)

var validateCmd = &cobra.Command{
	Use:   "validate <config.yaml>",
	Short: "Validate a run configuration",
	Long:  "Merges the configuration over the bundled defaults and validates it. Prints the fully merged document on success, every violation on failure.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := runconfig.Load(args[0])
		if err != nil {
			var verr *runconfig.ValidationError
			if errors.As(err, &verr) {
				fmt.Fprintf(os.Stderr, "Configuration %s errors in %s:\n", verr.Kind, args[0])
				for _, v := range verr.Violations {
					fmt.Fprintf(os.Stderr, "  %s: %s\n", v.Path, v.Message)
				}
			}
			return err
		}

		rendered, err := doc.Render()
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stdout, string(rendered))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
