// Package metrics retrieves business metrics panels from pluggable
// sources. A Manager owns exactly one source, connects it once at
// construction, and stamps provenance columns onto everything it returns.
package metrics

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/adapter"
	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/registry"
)

// Source is a metrics backend. Connect is called exactly once, before any
// retrieval; Retrieve returns a panel for the given products and date range.
type Source interface {
	Connect(config map[string]any) error
	Retrieve(products *frame.Frame, startDate, endDate string) (*frame.Frame, error)
	ValidateConnection() bool
}

// Sources holds every registered metrics source factory, keyed by the
// DATA.SOURCE.type value of a run configuration.
var Sources = registry.New[Source]("metrics source")

// Manager wires a run configuration's DATA.SOURCE section to a connected
// Source and decorates retrieved panels with provenance columns.
type Manager struct {
	sourceType string
	config     map[string]any
	source     Source
	now        func() time.Time
}

// NewManager builds the source named by sourceType and connects it with
// config. A connect failure is final; no retry is attempted.
func NewManager(sourceType string, config map[string]any) (*Manager, error) {
	if config == nil {
		config = map[string]any{}
	}
	src, err := Sources.Get(sourceType)
	if err != nil {
		return nil, err
	}
	if err := src.Connect(config); err != nil {
		return nil, eris.Wrapf(adapter.ErrConnectionFailure, "metrics: connect %q source: %s", sourceType, err)
	}
	zap.L().Info("metrics source connected", zap.String("source", sourceType))
	return &Manager{sourceType: sourceType, config: config, source: src, now: time.Now}, nil
}

// Retrieve fetches metrics for the products frame over the date range in
// the source config and appends metrics_source and retrieval_timestamp
// columns. An empty products frame is rejected before the source is asked.
func (m *Manager) Retrieve(products *frame.Frame) (*frame.Frame, error) {
	if products == nil || products.NumRows() == 0 {
		return nil, eris.Wrap(adapter.ErrInvalidArgument, "metrics: products frame is empty")
	}

	start := stringOpt(m.config, "start_date")
	end := stringOpt(m.config, "end_date")
	panel, err := m.source.Retrieve(products, start, end)
	if err != nil {
		return nil, eris.Wrapf(err, "metrics: retrieve from %q source", m.sourceType)
	}
	if panel == nil || panel.NumRows() == 0 {
		return nil, eris.Errorf("metrics: source %q returned no rows for %d products", m.sourceType, products.NumRows())
	}

	stamped, err := withConstantColumn(panel, "metrics_source", m.sourceType)
	if err != nil {
		return nil, err
	}
	stamped, err = withConstantColumn(stamped, "retrieval_timestamp", m.now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}

	zap.L().Info("metrics retrieved",
		zap.String("source", m.sourceType),
		zap.Int("rows", stamped.NumRows()),
		zap.Int("products", products.NumRows()))
	return stamped, nil
}

// ValidateConnection reports whether the underlying source still considers
// itself usable.
func (m *Manager) ValidateConnection() bool {
	return m.source.ValidateConnection()
}

// SourceType returns the registry key the manager was built with.
func (m *Manager) SourceType() string {
	return m.sourceType
}

func withConstantColumn(f *frame.Frame, name, value string) (*frame.Frame, error) {
	values := make([]any, f.NumRows())
	for i := range values {
		values[i] = value
	}
	return f.WithColumn(name, values)
}

func stringOpt(config map[string]any, key string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
