package pipeline

import (
	"strings"

	"github.com/rotisserie/eris"

	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/storage"
)

// JobResult is a completed run loaded back from storage. ModelArtifacts
// is keyed by the bare artifact name, with the "<model_type>__" manifest
// prefix stripped.
type JobResult struct {
	JobID              string
	ModelType          string
	CreatedAt          string
	Config             map[string]any
	ImpactResults      map[string]any
	Products           *frame.Frame
	BusinessMetrics    *frame.Frame
	TransformedMetrics *frame.Frame
	ModelArtifacts     map[string]*frame.Frame
}

// LoadResults reads every artifact of a completed run. The manifest is
// the sole index of completeness: a job directory without one is not a
// completed run, no matter what partial artifacts it holds.
func LoadResults(storageURL, jobID string) (*JobResult, error) {
	mgr, err := storage.NewManager(storageURL, jobID)
	if err != nil {
		return nil, err
	}
	if !mgr.Exists("manifest.json") {
		return nil, eris.Errorf("pipeline: manifest.json not found in job directory: %s", mgr.FullPath("manifest.json"))
	}
	var manifest Manifest
	if err := mgr.ReadJSON("manifest.json", &manifest); err != nil {
		return nil, eris.Wrap(err, "pipeline: read manifest")
	}

	result := &JobResult{
		JobID:          jobID,
		ModelType:      manifest.ModelType,
		CreatedAt:      manifest.CreatedAt,
		ModelArtifacts: map[string]*frame.Frame{},
	}
	for key, entry := range manifest.Files {
		if _, fixed := pipelineKeys[key]; !fixed {
			f, ferr := readFrameArtifact(mgr, entry)
			if ferr != nil {
				return nil, ferr
			}
			name := strings.TrimPrefix(key, manifest.ModelType+"__")
			result.ModelArtifacts[name] = f
			continue
		}
		switch key {
		case "config":
			if result.Config, err = readDocArtifact(mgr, entry); err != nil {
				return nil, err
			}
		case "impact_results":
			if result.ImpactResults, err = readDocArtifact(mgr, entry); err != nil {
				return nil, err
			}
		case "products":
			if result.Products, err = readFrameArtifact(mgr, entry); err != nil {
				return nil, err
			}
		case "business_metrics":
			if result.BusinessMetrics, err = readFrameArtifact(mgr, entry); err != nil {
				return nil, err
			}
		case "transformed_metrics":
			if result.TransformedMetrics, err = readFrameArtifact(mgr, entry); err != nil {
				return nil, err
			}
		}
	}
	return result, nil
}

// readDocArtifact loads a document entry (json or yaml) as a map.
func readDocArtifact(mgr *storage.Manager, entry ManifestEntry) (map[string]any, error) {
	var doc map[string]any
	switch entry.Format {
	case "json":
		if err := mgr.ReadJSON(entry.Path, &doc); err != nil {
			return nil, eris.Wrapf(err, "pipeline: read %s", entry.Path)
		}
	case "yaml":
		if err := mgr.ReadYAML(entry.Path, &doc); err != nil {
			return nil, eris.Wrapf(err, "pipeline: read %s", entry.Path)
		}
	default:
		return nil, eris.Errorf("pipeline: unsupported format %q for file %q", entry.Format, entry.Path)
	}
	return doc, nil
}

// readFrameArtifact loads a tabular entry (parquet or csv) as a frame.
func readFrameArtifact(mgr *storage.Manager, entry ManifestEntry) (*frame.Frame, error) {
	var (
		f   *frame.Frame
		err error
	)
	switch entry.Format {
	case "parquet":
		f, err = mgr.ReadParquet(entry.Path)
	case "csv":
		f, err = mgr.ReadCSV(entry.Path)
	default:
		return nil, eris.Errorf("pipeline: unsupported format %q for file %q", entry.Format, entry.Path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read %s", entry.Path)
	}
	return f, nil
}
