package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/eisenhauerIO/impact-engine/internal/metrics"
	"github.com/eisenhauerIO/impact-engine/internal/models"
	"github.com/eisenhauerIO/impact-engine/internal/transform"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List registered models, sources, and transforms",
	RunE: func(cmd *cobra.Command, _ []string) error {
		formatRegistries(os.Stdout)
		return nil
	},
}

// formatRegistries writes every pluggable registry and its keys to w.
// Registry keys come back sorted, so the output is stable.
func formatRegistries(out io.Writer) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "REGISTRY\tKEYS")
	_, _ = fmt.Fprintln(w, "--------\t----")
	_, _ = fmt.Fprintf(w, "models\t%s\n", strings.Join(models.Models.Keys(), ", "))
	_, _ = fmt.Fprintf(w, "metrics sources\t%s\n", strings.Join(metrics.Sources.Keys(), ", "))
	_, _ = fmt.Fprintf(w, "transforms\t%s\n", strings.Join(transform.Transforms.Keys(), ", "))
	_, _ = fmt.Fprintf(w, "response functions\t%s\n", strings.Join(models.Responses.Keys(), ", "))
	_ = w.Flush()
}

func init() {
	rootCmd.AddCommand(modelsCmd)
}
