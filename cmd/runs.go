package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/eisenhauerIO/impact-engine/internal/model"
	"github.com/eisenhauerIO/impact-engine/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run catalog",
	Long:  "Commands for listing, viewing, summarizing, and exporting evaluation runs.",
}

// -- runs list --

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List evaluation runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, runsFilterFromFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "runs list")
		}

		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRunsList(os.Stdout, runs)
		return nil
	},
}

// -- runs show --

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show full details of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		run, err := st.GetRun(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "runs show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(run)
	},
}

// -- runs stats --

var runsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate run statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		// High limit so the window covers the whole catalog.
		runs, err := st.ListRuns(ctx, store.RunFilter{Limit: 10000})
		if err != nil {
			return eris.Wrap(err, "runs stats")
		}

		formatRunStats(os.Stdout, computeRunStats(runs))
		return nil
	},
}

// -- runs export --

var runsExportOutput string

var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export runs as CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		runs, err := st.ListRuns(ctx, runsFilterFromFlags(cmd))
		if err != nil {
			return eris.Wrap(err, "runs export")
		}

		data, err := csvutil.Marshal(exportRows(runs))
		if err != nil {
			return eris.Wrap(err, "marshal runs csv")
		}

		if runsExportOutput == "" || runsExportOutput == "-" {
			_, err = os.Stdout.Write(data)
			return err
		}
		if err := os.WriteFile(runsExportOutput, data, 0o644); err != nil {
			return eris.Wrap(err, "write runs csv")
		}
		fmt.Fprintf(os.Stderr, "Wrote %d runs to %s\n", len(runs), runsExportOutput)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{runsListCmd, runsExportCmd} {
		c.Flags().String("status", "", "filter by run status (queued, retrieving, transforming, fitting, complete, failed)")
		c.Flags().String("model", "", "filter by model type")
		c.Flags().Int("limit", 50, "max number of runs")
		c.Flags().Int("offset", 0, "rows to skip, newest first")
	}
	runsExportCmd.Flags().StringVar(&runsExportOutput, "output", "", "destination file (stdout when empty or -)")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
	runsCmd.AddCommand(runsStatsCmd)
	runsCmd.AddCommand(runsExportCmd)
	rootCmd.AddCommand(runsCmd)
}

func runsFilterFromFlags(cmd *cobra.Command) store.RunFilter {
	status, _ := cmd.Flags().GetString("status")
	modelType, _ := cmd.Flags().GetString("model")
	limit, _ := cmd.Flags().GetInt("limit")
	offset, _ := cmd.Flags().GetInt("offset")
	return store.RunFilter{
		Status: model.RunStatus(status),
		Model:  modelType,
		Limit:  limit,
		Offset: offset,
	}
}

// runStats holds aggregate statistics computed from a set of runs.
type runStats struct {
	Total      int
	Complete   int
	Failed     int
	InFlight   int
	ByModel    map[string]int
	AvgDurSecs float64
}

// computeRunStats aggregates run outcomes. Duration is averaged over
// completed runs only; failed runs stop at arbitrary stages.
func computeRunStats(runs []model.Run) runStats {
	s := runStats{ByModel: map[string]int{}}
	s.Total = len(runs)

	var totalDur time.Duration
	var durCount int

	for _, r := range runs {
		s.ByModel[r.Model]++
		if !r.Status.Terminal() {
			s.InFlight++
			continue
		}
		switch r.Status {
		case model.StatusComplete:
			s.Complete++
			totalDur += r.UpdatedAt.Sub(r.CreatedAt)
			durCount++
		case model.StatusFailed:
			s.Failed++
		}
	}

	if durCount > 0 {
		s.AvgDurSecs = totalDur.Seconds() / float64(durCount)
	}
	return s
}

// formatRunsList writes a tabular list of runs to w.
func formatRunsList(out io.Writer, runs []model.Run) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tMODEL\tSOURCE\tSTATUS\tCREATED\tDURATION")
	_, _ = fmt.Fprintln(w, "--\t-----\t------\t------\t-------\t--------")

	for _, r := range runs {
		dur := r.UpdatedAt.Sub(r.CreatedAt).Round(time.Second).String()
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.Model,
			r.Source,
			r.Status,
			r.CreatedAt.Format("2006-01-02 15:04"),
			dur,
		)
	}
	_ = w.Flush()
}

// formatRunStats writes aggregate stats to w.
func formatRunStats(out io.Writer, s runStats) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Total runs:\t%d\n", s.Total)
	_, _ = fmt.Fprintf(w, "Complete:\t%d\n", s.Complete)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", s.Failed)
	_, _ = fmt.Fprintf(w, "In flight:\t%d\n", s.InFlight)
	if s.AvgDurSecs > 0 {
		_, _ = fmt.Fprintf(w, "Avg duration:\t%.1fs\n", s.AvgDurSecs)
	}

	modelTypes := make([]string, 0, len(s.ByModel))
	for m := range s.ByModel {
		modelTypes = append(modelTypes, m)
	}
	sort.Strings(modelTypes)
	for _, m := range modelTypes {
		_, _ = fmt.Fprintf(w, "  %s:\t%d\n", m, s.ByModel[m])
	}
	_ = w.Flush()
}

// runExportRow flattens a catalog run for CSV export.
type runExportRow struct {
	ID          string `csv:"id"`
	Model       string `csv:"model"`
	Source      string `csv:"source"`
	Status      string `csv:"status"`
	ConfigPath  string `csv:"config_path"`
	StorageURL  string `csv:"storage_url"`
	ResultsPath string `csv:"results_path"`
	Error       string `csv:"error"`
	CreatedAt   string `csv:"created_at"`
	UpdatedAt   string `csv:"updated_at"`
}

func exportRows(runs []model.Run) []runExportRow {
	rows := make([]runExportRow, len(runs))
	for i, r := range runs {
		rows[i] = runExportRow{
			ID:          r.ID,
			Model:       r.Model,
			Source:      r.Source,
			Status:      string(r.Status),
			ConfigPath:  r.ConfigPath,
			StorageURL:  r.StorageURL,
			ResultsPath: r.ResultsPath,
			Error:       r.Error,
			CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
			UpdatedAt:   r.UpdatedAt.UTC().Format(time.RFC3339),
		}
	}
	return rows
}
