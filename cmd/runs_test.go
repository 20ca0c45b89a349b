//go:build !integration

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eisenhauerIO/impact-engine/internal/model"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 30, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:        "job-impact-engine-aaaa0000",
			Model:     "interrupted_time_series",
			Source:    "file",
			Status:    model.StatusComplete,
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "job-impact-engine-bbbb1111",
			Model:     "subclassification",
			Source:    "simulator",
			Status:    model.StatusFitting,
			CreatedAt: now.Add(-1 * time.Hour),
			UpdatedAt: now.Add(-30 * time.Minute),
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs)

	output := buf.String()
	assert.Contains(t, output, "ID")
	assert.Contains(t, output, "MODEL")
	assert.Contains(t, output, "STATUS")
	assert.Contains(t, output, "job-impact-engine-aaaa0000")
	assert.Contains(t, output, "interrupted_time_series")
	assert.Contains(t, output, "complete")
	assert.Contains(t, output, "subclassification")
	assert.Contains(t, output, "fitting")
	assert.Contains(t, output, "2025-06-15 10:30")
	assert.Contains(t, output, "2m0s")
}

func TestComputeRunStats(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

	runs := []model.Run{
		{
			ID:        "1",
			Model:     "interrupted_time_series",
			Status:    model.StatusComplete,
			CreatedAt: now,
			UpdatedAt: now.Add(2 * time.Minute),
		},
		{
			ID:        "2",
			Model:     "interrupted_time_series",
			Status:    model.StatusComplete,
			CreatedAt: now.Add(5 * time.Minute),
			UpdatedAt: now.Add(8 * time.Minute),
		},
		{
			ID:        "3",
			Model:     "subclassification",
			Status:    model.StatusFailed,
			Error:     "fit model: not enough strata",
			CreatedAt: now.Add(10 * time.Minute),
			UpdatedAt: now.Add(10*time.Minute + 30*time.Second),
		},
		{
			ID:        "4",
			Model:     "metrics_approximation",
			Status:    model.StatusRetrieving,
			CreatedAt: now.Add(15 * time.Minute),
			UpdatedAt: now.Add(15 * time.Minute),
		},
	}

	stats := computeRunStats(runs)
	assert.Equal(t, 4, stats.Total)
	assert.Equal(t, 2, stats.Complete)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.InFlight)
	assert.Equal(t, 2, stats.ByModel["interrupted_time_series"])
	assert.Equal(t, 1, stats.ByModel["subclassification"])
	// Average duration of the 2 complete runs: (120s + 180s) / 2 = 150s.
	assert.InDelta(t, 150.0, stats.AvgDurSecs, 0.1)

	var buf bytes.Buffer
	formatRunStats(&buf, stats)

	output := buf.String()
	assert.Contains(t, output, "Total runs:")
	assert.Contains(t, output, "Complete:")
	assert.Contains(t, output, "Failed:")
	assert.Contains(t, output, "In flight:")
	assert.Contains(t, output, "150.0s")
	assert.Contains(t, output, "interrupted_time_series:")
}

func TestComputeRunStats_Empty(t *testing.T) {
	stats := computeRunStats(nil)
	assert.Equal(t, 0, stats.Total)
	assert.Zero(t, stats.AvgDurSecs)
}

func TestExportRows(t *testing.T) {
	now := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	runs := []model.Run{
		{
			ID:          "job-impact-engine-aaaa0000",
			ConfigPath:  "configs/campaign.yaml",
			Model:       "interrupted_time_series",
			Source:      "file",
			Status:      model.StatusComplete,
			StorageURL:  "./data",
			ResultsPath: "./data/job-impact-engine-aaaa0000/manifest.json",
			CreatedAt:   now,
			UpdatedAt:   now.Add(time.Minute),
		},
	}

	rows := exportRows(runs)
	require.Len(t, rows, 1)
	assert.Equal(t, "job-impact-engine-aaaa0000", rows[0].ID)
	assert.Equal(t, "complete", rows[0].Status)
	assert.Equal(t, "2025-06-15T10:00:00Z", rows[0].CreatedAt)
	assert.Equal(t, "2025-06-15T10:01:00Z", rows[0].UpdatedAt)

	data, err := csvutil.Marshal(rows)
	require.NoError(t, err)

	csv := string(data)
	assert.Contains(t, csv, "id,model,source,status,config_path,storage_url,results_path,error,created_at,updated_at")
	assert.Contains(t, csv, "job-impact-engine-aaaa0000,interrupted_time_series,file,complete")
}

func TestRunsFilterFromFlags_Defaults(t *testing.T) {
	filter := runsFilterFromFlags(runsListCmd)
	assert.Equal(t, 50, filter.Limit)
	assert.Equal(t, 0, filter.Offset)
	assert.Empty(t, filter.Model)
}
