// Package pipeline runs one impact evaluation end to end: products in,
// metrics retrieved, transform applied, model fitted, manifest written.
// Every stage persists its artifact before the next stage starts, and the
// manifest is written last so its presence alone marks a completed run.
package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/metrics"
	"github.com/eisenhauerIO/impact-engine/internal/model"
	"github.com/eisenhauerIO/impact-engine/internal/models"
	"github.com/eisenhauerIO/impact-engine/internal/runconfig"
	"github.com/eisenhauerIO/impact-engine/internal/storage"
	"github.com/eisenhauerIO/impact-engine/internal/store"
	"github.com/eisenhauerIO/impact-engine/internal/transform"
)

// DefaultStorageURL is where artifacts land when a request names no
// storage location.
const DefaultStorageURL = "./data"

// Options configures a Pipeline. Catalog may be nil, in which case runs
// execute without being recorded. Now and NewJobID default to the real
// clock and random job ids; tests override them for stable output.
type Options struct {
	Catalog  store.Store
	Now      func() time.Time
	NewJobID func() string
}

// Pipeline evaluates impact run configurations. It is stateless between
// runs; every Run call works against its own job directory.
type Pipeline struct {
	catalog  store.Store
	now      func() time.Time
	newJobID func() string
}

// New creates a Pipeline from opts.
func New(opts Options) *Pipeline {
	p := &Pipeline{
		catalog:  opts.Catalog,
		now:      opts.Now,
		newJobID: opts.NewJobID,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.newJobID == nil {
		p.newJobID = storage.NewJobID
	}
	return p
}

// Request is one evaluation to run. Doc must already be validated;
// ConfigPath is recorded in the catalog for traceability only. JobID is
// optional and minted when empty. Overrides are merged over the
// measurement parameters at fit time, nil values ignored.
type Request struct {
	Doc        runconfig.Document
	ConfigPath string
	StorageURL string
	JobID      string
	Overrides  map[string]any
}

// Job reports where a completed run left its artifacts.
type Job struct {
	ID            string            `json:"job_id"`
	StorageURL    string            `json:"storage_url"`
	ModelType     string            `json:"model_type"`
	ResultsPath   string            `json:"results_path"`
	ArtifactPaths map[string]string `json:"artifact_paths,omitempty"`
	ManifestPath  string            `json:"manifest_path"`
}

// Run executes the evaluation described by req. Stages run synchronously
// in order; the first failure stops the run, marks the catalog entry
// failed, and leaves whatever artifacts were already written in place
// with no manifest. Catalog bookkeeping failures after the run record
// exists never abort an otherwise healthy run.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Job, error) {
	jobID := req.JobID
	if jobID == "" {
		jobID = p.newJobID()
	}
	storageURL := req.StorageURL
	if storageURL == "" {
		storageURL = DefaultStorageURL
	}

	source := req.Doc.Source()
	measurement := req.Doc.Measurement()

	log := zap.L().With(
		zap.String("job_id", jobID),
		zap.String("model", measurement.Model),
		zap.String("source", source.Type),
	)
	log.Info("pipeline: starting evaluation")

	if p.catalog != nil {
		_, err := p.catalog.CreateRun(ctx, model.Run{
			ID:         jobID,
			ConfigPath: req.ConfigPath,
			Model:      measurement.Model,
			Source:     source.Type,
			StorageURL: storageURL,
		})
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: create catalog run")
		}
	}

	current := model.StatusQueued
	advance := func(next model.RunStatus) {
		if !current.CanTransition(next) {
			log.Warn("pipeline: unexpected status transition",
				zap.String("from", string(current)),
				zap.String("to", string(next)))
		}
		if p.catalog != nil {
			if err := p.catalog.UpdateRunStatus(ctx, jobID, next); err != nil {
				log.Warn("pipeline: update catalog status", zap.Error(err))
			}
		}
		current = next
	}
	fail := func(stage string, cause error) error {
		wrapped := eris.Wrapf(cause, "pipeline: %s", stage)
		if p.catalog != nil {
			if err := p.catalog.FailRun(ctx, jobID, wrapped.Error()); err != nil {
				log.Warn("pipeline: mark catalog run failed", zap.Error(err))
			}
		}
		log.Error("pipeline: run failed", zap.String("stage", stage), zap.Error(cause))
		return wrapped
	}

	mgr, err := storage.NewManager(storageURL, jobID)
	if err != nil {
		return nil, fail("prepare storage", err)
	}
	if err := mgr.WriteYAML("config.yaml", map[string]any(req.Doc)); err != nil {
		return nil, fail("write config", err)
	}

	advance(model.StatusRetrieving)
	products, err := readProducts(source.Path())
	if err != nil {
		return nil, fail("read products", err)
	}
	if err := mgr.WriteParquet("products.parquet", products); err != nil {
		return nil, fail("write products", err)
	}

	mm, err := metrics.NewManager(source.Type, sourceConfigWithEnrichment(req.Doc))
	if err != nil {
		return nil, fail("configure metrics source", err)
	}
	businessMetrics, err := mm.Retrieve(products)
	if err != nil {
		return nil, fail("retrieve metrics", err)
	}
	if err := mgr.WriteParquet("business_metrics.parquet", businessMetrics); err != nil {
		return nil, fail("write business metrics", err)
	}

	advance(model.StatusTransforming)
	tf := req.Doc.Transform()
	transformed, err := transform.Apply(businessMetrics, tf.Function, tf.Params)
	if err != nil {
		return nil, fail("transform metrics", err)
	}
	if err := mgr.WriteParquet("transformed_metrics.parquet", transformed); err != nil {
		return nil, fail("write transformed metrics", err)
	}

	advance(model.StatusFitting)
	fit, err := models.NewManager(mgr).Fit(measurement.Model, transformed, measurement.Params, req.Overrides)
	if err != nil {
		return nil, fail("fit model", err)
	}

	manifest := buildManifest(fit, p.now().UTC())
	for _, entry := range manifest.Files {
		if !mgr.Exists(entry.Path) {
			return nil, fail("assemble manifest", eris.Errorf("artifact %s missing from job directory", entry.Path))
		}
	}
	if err := mgr.WriteJSON("manifest.json", manifest); err != nil {
		return nil, fail("write manifest", err)
	}

	if !current.CanTransition(model.StatusComplete) {
		log.Warn("pipeline: unexpected status transition",
			zap.String("from", string(current)),
			zap.String("to", string(model.StatusComplete)))
	}
	manifestPath := mgr.FullPath("manifest.json")
	if p.catalog != nil {
		if err := p.catalog.CompleteRun(ctx, jobID, manifestPath); err != nil {
			log.Warn("pipeline: complete catalog run", zap.Error(err))
		}
	}
	current = model.StatusComplete

	log.Info("pipeline: evaluation complete",
		zap.String("results", fit.ResultsPath),
		zap.Int("artifacts", len(fit.ArtifactPaths)),
		zap.String("manifest", manifestPath))

	return &Job{
		ID:            jobID,
		StorageURL:    storageURL,
		ModelType:     fit.ModelType,
		ResultsPath:   fit.ResultsPath,
		ArtifactPaths: fit.ArtifactPaths,
		ManifestPath:  manifestPath,
	}, nil
}

// sourceConfigWithEnrichment copies DATA.SOURCE.CONFIG and folds the
// DATA.ENRICHMENT section in under the ENRICHMENT key, which is how
// sources expect to receive it.
func sourceConfigWithEnrichment(doc runconfig.Document) map[string]any {
	source := doc.Source()
	cfg := make(map[string]any, len(source.Config)+1)
	for k, v := range source.Config {
		cfg[k] = v
	}
	if enrichment, ok := doc.Enrichment(); ok {
		cfg["ENRICHMENT"] = map[string]any{
			"FUNCTION": enrichment.Function,
			"PARAMS":   enrichment.Params,
		}
	}
	return cfg
}

// readProducts loads the products frame from DATA.SOURCE.CONFIG.path,
// dispatching on the file extension.
func readProducts(path string) (*frame.Frame, error) {
	if path == "" {
		return nil, eris.New("pipeline: DATA.SOURCE.CONFIG.path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read products %s", path)
	}

	var f *frame.Frame
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		f, err = frame.ReadCSV(bytes.NewReader(data))
	case ".parquet":
		f, err = frame.ReadParquet(data)
	case ".json":
		f, err = frame.ReadJSONRecords(bytes.NewReader(data))
	case ".xlsx":
		f, err = frame.ReadXLSX(data)
	default:
		return nil, eris.Errorf("pipeline: unsupported products format %q (want .csv, .parquet, .json, or .xlsx)", ext)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: decode products %s", path)
	}
	return f, nil
}
