package models

import (
	"errors"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/adapter"
	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/storage"
)

// Manager runs model fits end to end: parameter merging, the fit itself,
// and persistence of the envelope plus any artifacts.
type Manager struct {
	store *storage.Manager
	now   func() time.Time
}

// NewManager binds the manager to a job's storage. The storage handle may
// be nil, in which case Fit refuses to run.
func NewManager(store *storage.Manager) *Manager {
	return &Manager{store: store, now: time.Now}
}

// Fit merges configParams with overrides (nil override values are
// ignored), fits the named model over f, and persists the results. The
// envelope lands in impact_results.json; each artifact frame lands in
// "<modelType>__<name>.parquet".
func (m *Manager) Fit(modelType string, f *frame.Frame, configParams, overrides map[string]any) (*FitOutput, error) {
	params := make(map[string]any, len(configParams)+len(overrides))
	for k, v := range configParams {
		params[k] = v
	}
	for k, v := range overrides {
		if v != nil {
			params[k] = v
		}
	}

	model, err := Models.Get(modelType)
	if err != nil {
		return nil, err
	}
	if err := model.Connect(params); err != nil {
		return nil, eris.Wrapf(err, "models: configure %q model", modelType)
	}
	if m.store == nil {
		return nil, eris.Wrap(adapter.ErrMissingDependency, "models: storage backend is required but not provided")
	}
	if f == nil {
		return nil, eris.Wrap(adapter.ErrInvalidArgument, "models: metrics frame is required")
	}
	if cols := model.RequiredColumns(); len(cols) > 0 {
		if err := f.RequireColumns(cols...); err != nil {
			return nil, eris.Wrapf(adapter.ErrInvalidArgument, "models: %q model input: %s", modelType, err)
		}
	}

	zap.L().Info("fitting model",
		zap.String("model", modelType),
		zap.Int("rows", f.NumRows()))
	result, err := model.Fit(f)
	if err != nil {
		if errors.Is(err, adapter.ErrEstimationFailure) {
			return nil, eris.Wrapf(err, "models: fit %q model", modelType)
		}
		return nil, eris.Wrapf(adapter.ErrEstimationFailure, "models: fit %q model: %s", modelType, err)
	}
	result.Metadata.ExecutedAt = m.now().UTC().Format(time.RFC3339)

	artifactPaths := make(map[string]string, len(result.Artifacts))
	names := make([]string, 0, len(result.Artifacts))
	for name := range result.Artifacts {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		filename := modelType + "__" + name + ".parquet"
		if err := m.store.WriteParquet(filename, result.Artifacts[name]); err != nil {
			return nil, eris.Wrapf(err, "models: persist artifact %q", name)
		}
		artifactPaths[name] = m.store.FullPath(filename)
		zap.L().Info("model artifact persisted",
			zap.String("model", modelType),
			zap.String("artifact", filename))
	}

	if err := m.store.WriteJSON("impact_results.json", result.Envelope(modelType)); err != nil {
		return nil, eris.Wrap(err, "models: persist results envelope")
	}

	return &FitOutput{
		ModelType:     modelType,
		ResultsPath:   m.store.FullPath("impact_results.json"),
		ArtifactPaths: artifactPaths,
	}, nil
}
