// Package models fits causal impact models over transformed metrics
// panels. Adapters register themselves under the MEASUREMENT.MODEL name of
// a run configuration; the Manager owns parameter merging, artifact
// persistence, and the result envelope written to storage.
package models

import (
	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/registry"
)

// SchemaVersion tags every persisted result envelope and manifest.
const SchemaVersion = "2.0"

// Model is a causal impact estimator. Connect validates and stores the fit
// parameters; RequiredColumns names the frame columns Fit will read.
type Model interface {
	Connect(params map[string]any) error
	RequiredColumns() []string
	Fit(f *frame.Frame) (*Result, error)
}

// Models holds every registered model factory.
var Models = registry.New[Model]("model")

// Result is what an adapter hands back from Fit. Artifacts are named
// frames the Manager persists next to the envelope; the maps always
// marshal, empty rather than null.
type Result struct {
	ModelParams     map[string]any
	ImpactEstimates map[string]any
	ModelSummary    map[string]any
	Artifacts       map[string]*frame.Frame
	Metadata        Metadata
}

// Metadata carries execution bookkeeping into the envelope.
type Metadata struct {
	ExecutedAt string `json:"executed_at"`
}

// Envelope is the impact_results.json document.
type Envelope struct {
	SchemaVersion string       `json:"schema_version"`
	ModelType     string       `json:"model_type"`
	Data          EnvelopeData `json:"data"`
	Metadata      Metadata     `json:"metadata"`
}

// EnvelopeData groups the three result sections. All three are always
// present so readers never branch on missing keys.
type EnvelopeData struct {
	ModelParams     map[string]any `json:"model_params"`
	ImpactEstimates map[string]any `json:"impact_estimates"`
	ModelSummary    map[string]any `json:"model_summary"`
}

// Envelope renders the result for persistence under the given model type.
func (r *Result) Envelope(modelType string) Envelope {
	return Envelope{
		SchemaVersion: SchemaVersion,
		ModelType:     modelType,
		Data: EnvelopeData{
			ModelParams:     orEmpty(r.ModelParams),
			ImpactEstimates: orEmpty(r.ImpactEstimates),
			ModelSummary:    orEmpty(r.ModelSummary),
		},
		Metadata: r.Metadata,
	}
}

func orEmpty(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// FitOutput reports where the Manager persisted a fit.
type FitOutput struct {
	ModelType     string
	ResultsPath   string
	ArtifactPaths map[string]string
}
