package models

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/adapter"
	"github.com/eisenhauerIO/impact-engine/internal/frame"
	"github.com/eisenhauerIO/impact-engine/internal/registry"
)

func init() {
	Models.MustRegister("metrics_approximation", func() any { return &metricsApproximation{} })
	Responses.Register("linear", linearResponse)
}

// ResponseFunc turns a product's metric change and baseline outcome into
// an approximated impact.
type ResponseFunc func(delta, baseline float64, params map[string]any) float64

// Responses holds every registered response function.
var Responses = registry.NewFuncs[ResponseFunc]("response function")

// linearResponse scales the metric change by the baseline outcome:
// impact = coefficient * delta * baseline.
func linearResponse(delta, baseline float64, params map[string]any) float64 {
	return paramFloat(params, "coefficient", 1.0) * delta * baseline
}

// metricsApproximation approximates impact per product from the change in
// a leading metric, without a control group. Each product's metric delta
// runs through a response function against its baseline outcome.
type metricsApproximation struct {
	beforeColumn   string
	afterColumn    string
	baselineColumn string
	responseName   string
	response       ResponseFunc
	responseParams map[string]any
}

func (m *metricsApproximation) Connect(params map[string]any) error {
	m.beforeColumn = paramString(params, "metric_before_column", "quality_before")
	m.afterColumn = paramString(params, "metric_after_column", "quality_after")
	m.baselineColumn = paramString(params, "baseline_column", "baseline_sales")
	m.responseName = paramString(params, "response_function", "linear")
	m.responseParams = paramMap(params, "response_params")

	fn, err := Responses.Get(m.responseName)
	if err != nil {
		return eris.Wrapf(adapter.ErrInvalidParameter, "models: response_function %q is not registered", m.responseName)
	}
	m.response = fn
	return nil
}

func (m *metricsApproximation) RequiredColumns() []string {
	return []string{"product_id", m.beforeColumn, m.afterColumn, m.baselineColumn}
}

func (m *metricsApproximation) Fit(f *frame.Frame) (*Result, error) {
	ids, err := f.Strings("product_id")
	if err != nil {
		return nil, err
	}
	before, err := f.Column(m.beforeColumn)
	if err != nil {
		return nil, err
	}
	after, err := f.Column(m.afterColumn)
	if err != nil {
		return nil, err
	}
	baseline, err := f.Column(m.baselineColumn)
	if err != nil {
		return nil, err
	}

	var (
		records     [][]any
		totalImpact float64
		totalDelta  float64
	)
	for i := range ids {
		b, okB := frame.AsFloat(before[i])
		a, okA := frame.AsFloat(after[i])
		base, okBase := frame.AsFloat(baseline[i])
		if !okB || !okA || !okBase {
			zap.L().Warn("skipping product with incomplete metrics",
				zap.String("product_id", ids[i]))
			continue
		}
		delta := a - b
		impact := m.response(delta, base, m.responseParams)
		totalImpact += impact
		totalDelta += delta
		records = append(records, []any{ids[i], roundTo(delta, 4), roundTo(base, 2), roundTo(impact, 2)})
	}
	if len(records) == 0 {
		return nil, eris.Wrap(adapter.ErrEstimationFailure, "models: no products with usable metric and baseline values")
	}

	n := float64(len(records))
	perProduct, err := frame.FromRecords(
		[]string{"product_id", "delta_metric", "baseline_outcome", "approximated_impact"},
		records)
	if err != nil {
		return nil, err
	}

	zap.L().Info("metrics approximation fitted",
		zap.Int("products", len(records)),
		zap.String("response_function", m.responseName),
		zap.Float64("total_impact", totalImpact))

	return &Result{
		ModelParams: map[string]any{
			"metric_before_column": m.beforeColumn,
			"metric_after_column":  m.afterColumn,
			"baseline_column":      m.baselineColumn,
			"response_function":    m.responseName,
			"response_params":      m.responseParams,
		},
		ImpactEstimates: map[string]any{
			"total_approximated_impact": roundTo(totalImpact, 2),
			"mean_approximated_impact":  roundTo(totalImpact/n, 2),
			"mean_metric_change":        roundTo(totalDelta/n, 4),
			"n_products":                len(records),
		},
		ModelSummary: map[string]any{
			"n_products":        len(records),
			"response_function": m.responseName,
		},
		Artifacts: map[string]*frame.Frame{"product_impacts": perProduct},
	}, nil
}
