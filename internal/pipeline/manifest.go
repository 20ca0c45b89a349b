package pipeline

import (
	"time"

	"github.com/eisenhauerIO/impact-engine/internal/models"
)

// ManifestEntry locates one artifact inside the job directory. Path is
// relative to the job directory; Format is one of json, yaml, parquet, or
// csv.
type ManifestEntry struct {
	Path   string `json:"path"`
	Format string `json:"format"`
}

// Manifest is the manifest.json document. It is written only after every
// file it references exists, always as the last artifact of a run, so
// readers can treat its presence as the sole marker of completeness.
type Manifest struct {
	SchemaVersion string                   `json:"schema_version"`
	ModelType     string                   `json:"model_type"`
	CreatedAt     string                   `json:"created_at"`
	Files         map[string]ManifestEntry `json:"files"`
}

// pipelineKeys are the file entries every run writes. Any other key in
// Files is a model artifact named "<model_type>__<artifact>".
var pipelineKeys = map[string]struct{}{
	"config":              {},
	"products":            {},
	"business_metrics":    {},
	"transformed_metrics": {},
	"impact_results":      {},
}

func buildManifest(fit *models.FitOutput, createdAt time.Time) Manifest {
	files := map[string]ManifestEntry{
		"config":              {Path: "config.yaml", Format: "yaml"},
		"products":            {Path: "products.parquet", Format: "parquet"},
		"business_metrics":    {Path: "business_metrics.parquet", Format: "parquet"},
		"transformed_metrics": {Path: "transformed_metrics.parquet", Format: "parquet"},
		"impact_results":      {Path: "impact_results.json", Format: "json"},
	}
	for name := range fit.ArtifactPaths {
		key := fit.ModelType + "__" + name
		files[key] = ManifestEntry{Path: key + ".parquet", Format: "parquet"}
	}
	return Manifest{
		SchemaVersion: models.SchemaVersion,
		ModelType:     fit.ModelType,
		CreatedAt:     createdAt.Format(time.RFC3339),
		Files:         files,
	}
}
