package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/pipeline"
)

var resultsStorage string

var resultsCmd = &cobra.Command{
	Use:   "results <job-id>",
	Short: "Load and display the results of a completed run",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		storageURL := resultsStorage
		if storageURL == "" {
			storageURL = cfg.Storage.URL
		}

		result, err := pipeline.LoadResults(storageURL, args[0])
		if err != nil {
			return eris.Wrap(err, "load results")
		}

		formatResultSummary(os.Stdout, result)

		fmt.Fprintln(os.Stdout)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result.ImpactResults)
	},
}

func init() {
	resultsCmd.Flags().StringVar(&resultsStorage, "storage", "", "storage URL the job was written to (default from config)")
	rootCmd.AddCommand(resultsCmd)
}

// formatResultSummary writes a tabular overview of the loaded artifacts.
func formatResultSummary(out io.Writer, result *pipeline.JobResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Job:\t%s\n", result.JobID)
	_, _ = fmt.Fprintf(w, "Model:\t%s\n", result.ModelType)
	_, _ = fmt.Fprintf(w, "Created:\t%s\n", result.CreatedAt)
	_, _ = fmt.Fprintf(w, "Products:\t%s\n", frameShape(result.Products))
	_, _ = fmt.Fprintf(w, "Business metrics:\t%s\n", frameShape(result.BusinessMetrics))
	_, _ = fmt.Fprintf(w, "Transformed metrics:\t%s\n", frameShape(result.TransformedMetrics))

	names := make([]string, 0, len(result.ModelArtifacts))
	for name := range result.ModelArtifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(w, "Artifact %s:\t%s\n", name, frameShape(result.ModelArtifacts[name]))
	}
	_ = w.Flush()
}

func frameShape(f *frame.Frame) string {
	if f == nil {
		return "absent"
	}
	return fmt.Sprintf("%d rows x %d cols", f.NumRows(), f.NumCols())
}
