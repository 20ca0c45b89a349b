package main

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/pipeline"
	"github.com/eisenhauerIO/impact-engine/internal/runconfig"
)

var (
	runStorage string
	runJobID   string
	runSet     []string
)

var runCmd = &cobra.Command{
	Use:   "run <config.yaml>",
	Short: "Run one impact evaluation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		doc, err := runconfig.Load(args[0])
		if err != nil {
			return err
		}

		overrides, err := parseSetOverrides(runSet)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		storageURL := runStorage
		if storageURL == "" {
			storageURL = cfg.Storage.URL
		}

		p := pipeline.New(pipeline.Options{Catalog: st})
		job, err := p.Run(ctx, pipeline.Request{
			Doc:        doc,
			ConfigPath: args[0],
			StorageURL: storageURL,
			JobID:      runJobID,
			Overrides:  overrides,
		})
		if err != nil {
			return eris.Wrap(err, "evaluate impact")
		}

		zap.L().Info("evaluation complete",
			zap.String("job_id", job.ID),
			zap.String("model", job.ModelType),
			zap.String("manifest", job.ManifestPath),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

// parseSetOverrides turns --set key=value pairs into fit parameter
// overrides. Values decode as JSON when possible so numbers and booleans
// keep their type; anything else stays a string.
func parseSetOverrides(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	overrides := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, eris.Errorf("invalid --set %q (want key=value)", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(value), &decoded); err != nil {
			decoded = value
		}
		overrides[key] = decoded
	}
	return overrides, nil
}

func init() {
	runCmd.Flags().StringVar(&runStorage, "storage", "", "storage URL for artifacts (default from config)")
	runCmd.Flags().StringVar(&runJobID, "job-id", "", "job identifier (minted when empty)")
	runCmd.Flags().StringArrayVar(&runSet, "set", nil, "override a measurement parameter, key=value (repeatable)")
	rootCmd.AddCommand(runCmd)
}
