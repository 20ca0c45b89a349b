package pipeline

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eisenhauerIO/impact-engine/internal/model"
	"github.com/eisenhauerIO/impact-engine/internal/runconfig"
	"github.com/eisenhauerIO/impact-engine/internal/store"
)

// writeProductsCSV drops a small date,revenue series on disk and returns
// its path. The same file serves as products and as the metrics panel for
// file-source runs.
func writeProductsCSV(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "products.csv")
	data := "date,revenue\n" +
		"2024-01-01,100.5\n" +
		"2024-01-02,150.25\n" +
		"2024-01-03,210.0\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
	return path
}

func fileSourceDoc(t *testing.T, productsPath, interventionDate string) runconfig.Document {
	t.Helper()
	doc, err := runconfig.FromMap(map[string]any{
		"DATA": map[string]any{
			"SOURCE": map[string]any{
				"type":   "file",
				"CONFIG": map[string]any{"path": productsPath},
			},
		},
		"MEASUREMENT": map[string]any{
			"MODEL":  "interrupted_time_series",
			"PARAMS": map[string]any{"intervention_date": interventionDate},
		},
	})
	require.NoError(t, err)
	return doc
}

// catalogRecorder is an in-memory store.Store that captures the calls the
// pipeline makes against the runs catalog.
type catalogRecorder struct {
	created     []model.Run
	statuses    []model.RunStatus
	completed   map[string]string
	failed      map[string]string
	createErr   error
	statusErr   error
	completeErr error
	failErr     error
}

func newCatalogRecorder() *catalogRecorder {
	return &catalogRecorder{
		completed: map[string]string{},
		failed:    map[string]string{},
	}
}

func (c *catalogRecorder) CreateRun(_ context.Context, run model.Run) (*model.Run, error) {
	if c.createErr != nil {
		return nil, c.createErr
	}
	c.created = append(c.created, run)
	return &run, nil
}

func (c *catalogRecorder) UpdateRunStatus(_ context.Context, _ string, status model.RunStatus) error {
	if c.statusErr != nil {
		return c.statusErr
	}
	c.statuses = append(c.statuses, status)
	return nil
}

func (c *catalogRecorder) CompleteRun(_ context.Context, runID, resultsPath string) error {
	if c.completeErr != nil {
		return c.completeErr
	}
	c.completed[runID] = resultsPath
	return nil
}

func (c *catalogRecorder) FailRun(_ context.Context, runID, errMsg string) error {
	if c.failErr != nil {
		return c.failErr
	}
	c.failed[runID] = errMsg
	return nil
}

func (c *catalogRecorder) GetRun(context.Context, string) (*model.Run, error) { return nil, nil }

func (c *catalogRecorder) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return nil, nil
}

func (c *catalogRecorder) CountRuns(context.Context, store.RunFilter) (int, error) { return 0, nil }

func (c *catalogRecorder) Ping(context.Context) error { return nil }

func (c *catalogRecorder) Migrate(context.Context) error { return nil }

func (c *catalogRecorder) Close() error { return nil }

func TestRun_FileSourceEndToEnd(t *testing.T) {
	tmp := t.TempDir()
	products := writeProductsCSV(t, tmp)
	doc := fileSourceDoc(t, products, "2024-01-02")

	p := New(Options{})
	job, err := p.Run(context.Background(), Request{
		Doc:        doc,
		StorageURL: tmp,
		JobID:      "job-impact-engine-e2e",
	})
	require.NoError(t, err)

	assert.Equal(t, "job-impact-engine-e2e", job.ID)
	assert.Equal(t, "interrupted_time_series", job.ModelType)
	assert.Empty(t, job.ArtifactPaths)

	jobDir := filepath.Join(tmp, job.ID)
	assert.Equal(t, filepath.Join(jobDir, "manifest.json"), job.ManifestPath)

	raw, err := os.ReadFile(job.ManifestPath)
	require.NoError(t, err)
	var manifest Manifest
	require.NoError(t, json.Unmarshal(raw, &manifest))

	assert.Equal(t, "2.0", manifest.SchemaVersion)
	assert.Equal(t, "interrupted_time_series", manifest.ModelType)
	assert.Len(t, manifest.Files, 5, "a run without model artifacts has exactly the five pipeline entries")
	for key := range pipelineKeys {
		assert.Contains(t, manifest.Files, key)
	}
	for _, entry := range manifest.Files {
		assert.FileExists(t, filepath.Join(jobDir, entry.Path))
	}

	envelope := readJSONFile(t, filepath.Join(jobDir, "impact_results.json"))
	data, ok := envelope["data"].(map[string]any)
	require.True(t, ok)
	summary, ok := data["model_summary"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 3, summary["n_observations"])
}

func readJSONFile(t *testing.T, path string) map[string]any {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc
}

func TestRun_GoldenManifest(t *testing.T) {
	tmp := t.TempDir()
	products := writeProductsCSV(t, tmp)
	doc := fileSourceDoc(t, products, "2024-01-02")

	p := New(Options{
		Now:      func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) },
		NewJobID: func() string { return "job-impact-engine-golden" },
	})
	job, err := p.Run(context.Background(), Request{Doc: doc, StorageURL: tmp})
	require.NoError(t, err)
	assert.Equal(t, "job-impact-engine-golden", job.ID)

	raw, err := os.ReadFile(job.ManifestPath)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "manifest", raw)
}

func TestRun_FitFailureLeavesPartialArtifactsAndNoManifest(t *testing.T) {
	tmp := t.TempDir()
	products := writeProductsCSV(t, tmp)
	// Intervention after the whole series: no post period, the fit fails.
	doc := fileSourceDoc(t, products, "2025-01-01")

	catalog := newCatalogRecorder()
	p := New(Options{Catalog: catalog})
	_, err := p.Run(context.Background(), Request{
		Doc:        doc,
		StorageURL: tmp,
		JobID:      "job-impact-engine-fitfail",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: fit model")

	jobDir := filepath.Join(tmp, "job-impact-engine-fitfail")
	assert.NoFileExists(t, filepath.Join(jobDir, "manifest.json"))
	assert.FileExists(t, filepath.Join(jobDir, "config.yaml"))
	assert.FileExists(t, filepath.Join(jobDir, "products.parquet"))
	assert.FileExists(t, filepath.Join(jobDir, "business_metrics.parquet"))
	assert.FileExists(t, filepath.Join(jobDir, "transformed_metrics.parquet"))

	assert.Contains(t, catalog.failed["job-impact-engine-fitfail"], "pipeline: fit model")
	assert.Empty(t, catalog.completed)
}

func TestRun_MissingProductsFile(t *testing.T) {
	tmp := t.TempDir()
	missing := filepath.Join(tmp, "nope.csv")
	doc, err := runconfig.FromMap(map[string]any{
		"DATA": map[string]any{
			"SOURCE": map[string]any{
				"type":   "file",
				"CONFIG": map[string]any{"path": missing},
			},
		},
		"MEASUREMENT": map[string]any{
			"MODEL":  "interrupted_time_series",
			"PARAMS": map[string]any{"intervention_date": "2024-01-02"},
		},
	})
	require.NoError(t, err)

	p := New(Options{})
	_, err = p.Run(context.Background(), Request{Doc: doc, StorageURL: tmp})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: read products")
}

func TestRun_UnsupportedProductsFormat(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "products.txt")
	require.NoError(t, os.WriteFile(path, []byte("date,revenue\n2024-01-01,1\n"), 0o644))
	doc := fileSourceDoc(t, path, "2024-01-02")

	p := New(Options{})
	_, err := p.Run(context.Background(), Request{Doc: doc, StorageURL: tmp})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unsupported products format ".txt"`)
}

func TestRun_MintsJobIDWhenEmpty(t *testing.T) {
	tmp := t.TempDir()
	products := writeProductsCSV(t, tmp)
	doc := fileSourceDoc(t, products, "2024-01-02")

	p := New(Options{})
	job, err := p.Run(context.Background(), Request{Doc: doc, StorageURL: tmp})
	require.NoError(t, err)
	assert.Regexp(t, `^job-impact-engine-`, job.ID)
}

func TestRun_RecordsCatalogLifecycle(t *testing.T) {
	tmp := t.TempDir()
	products := writeProductsCSV(t, tmp)
	doc := fileSourceDoc(t, products, "2024-01-02")

	catalog := newCatalogRecorder()
	p := New(Options{Catalog: catalog})
	job, err := p.Run(context.Background(), Request{
		Doc:        doc,
		StorageURL: tmp,
		JobID:      "job-impact-engine-catalog",
		ConfigPath: "configs/campaign.yaml",
	})
	require.NoError(t, err)

	require.Len(t, catalog.created, 1)
	created := catalog.created[0]
	assert.Equal(t, "job-impact-engine-catalog", created.ID)
	assert.Equal(t, "configs/campaign.yaml", created.ConfigPath)
	assert.Equal(t, "interrupted_time_series", created.Model)
	assert.Equal(t, "file", created.Source)
	assert.Equal(t, tmp, created.StorageURL)

	assert.Equal(t, []model.RunStatus{
		model.StatusRetrieving,
		model.StatusTransforming,
		model.StatusFitting,
	}, catalog.statuses)
	assert.Equal(t, job.ManifestPath, catalog.completed["job-impact-engine-catalog"])
	assert.Empty(t, catalog.failed)
}

func TestRun_CatalogBookkeepingFailuresDoNotAbort(t *testing.T) {
	tmp := t.TempDir()
	products := writeProductsCSV(t, tmp)
	doc := fileSourceDoc(t, products, "2024-01-02")

	catalog := newCatalogRecorder()
	catalog.statusErr = assert.AnError
	catalog.completeErr = assert.AnError

	p := New(Options{Catalog: catalog})
	job, err := p.Run(context.Background(), Request{Doc: doc, StorageURL: tmp})
	require.NoError(t, err)
	assert.FileExists(t, job.ManifestPath)
}

func TestRun_CreateCatalogRunFailureAborts(t *testing.T) {
	tmp := t.TempDir()
	products := writeProductsCSV(t, tmp)
	doc := fileSourceDoc(t, products, "2024-01-02")

	catalog := newCatalogRecorder()
	catalog.createErr = assert.AnError

	p := New(Options{Catalog: catalog})
	_, err := p.Run(context.Background(), Request{Doc: doc, StorageURL: tmp, JobID: "job-impact-engine-doomed"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pipeline: create catalog run")
	assert.NoFileExists(t, filepath.Join(tmp, "job-impact-engine-doomed", "config.yaml"))
}

func TestRun_SQLiteCatalog(t *testing.T) {
	tmp := t.TempDir()
	catalog, err := store.NewSQLite(filepath.Join(tmp, "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = catalog.Close() })
	require.NoError(t, catalog.Migrate(context.Background()))

	products := writeProductsCSV(t, tmp)
	p := New(Options{Catalog: catalog})

	okJob, err := p.Run(context.Background(), Request{
		Doc:        fileSourceDoc(t, products, "2024-01-02"),
		StorageURL: tmp,
		JobID:      "job-impact-engine-ok",
	})
	require.NoError(t, err)

	run, err := catalog.GetRun(context.Background(), "job-impact-engine-ok")
	require.NoError(t, err)
	assert.Equal(t, model.StatusComplete, run.Status)
	assert.Equal(t, okJob.ManifestPath, run.ResultsPath)
	assert.Empty(t, run.Error)

	_, err = p.Run(context.Background(), Request{
		Doc:        fileSourceDoc(t, products, "2025-01-01"),
		StorageURL: tmp,
		JobID:      "job-impact-engine-bad",
	})
	require.Error(t, err)

	run, err = catalog.GetRun(context.Background(), "job-impact-engine-bad")
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, run.Status)
	assert.Contains(t, run.Error, "pipeline: fit model")
	assert.Empty(t, run.ResultsPath)
}
