package models

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/adapter"
	"github.com/eisenhauerIO/impact-engine/internal/frame"
)

func init() {
	Models.MustRegister("interrupted_time_series", func() any { return &interruptedTimeSeries{} })
}

// interruptedTimeSeries estimates the intervention effect of a single time
// series. A linear trend fitted on the pre-intervention observations is
// projected over the post period as the counterfactual; the effect is the
// mean gap between the observed series and that projection.
type interruptedTimeSeries struct {
	interventionDate string
	dependent        string
}

func (m *interruptedTimeSeries) Connect(params map[string]any) error {
	date, err := requireParamString(params, "intervention_date")
	if err != nil {
		return err
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return eris.Wrapf(adapter.ErrInvalidParameter, "models: intervention_date %q is not a YYYY-MM-DD date", date)
	}
	m.interventionDate = date
	m.dependent = paramString(params, "dependent_variable", "revenue")
	return nil
}

func (m *interruptedTimeSeries) RequiredColumns() []string {
	return []string{"date", m.dependent}
}

func (m *interruptedTimeSeries) Fit(f *frame.Frame) (*Result, error) {
	ordered, err := f.SortBy("date")
	if err != nil {
		return nil, err
	}
	dates, err := ordered.Strings("date")
	if err != nil {
		return nil, err
	}
	values, err := ordered.Floats(m.dependent)
	if err != nil {
		return nil, err
	}

	var pre, post []float64
	for i, d := range dates {
		if d < m.interventionDate {
			pre = append(pre, values[i])
		} else {
			post = append(post, values[i])
		}
	}
	if len(pre) == 0 {
		return nil, eris.Wrapf(adapter.ErrEstimationFailure, "models: no observations before intervention %s", m.interventionDate)
	}
	if len(post) == 0 {
		return nil, eris.Wrapf(adapter.ErrEstimationFailure, "models: no observations after intervention %s", m.interventionDate)
	}

	slope, intercept := linearTrend(pre)
	var gaps []float64
	for j, actual := range post {
		predicted := intercept + slope*float64(len(pre)+j)
		gaps = append(gaps, actual-predicted)
	}

	preMean := mean(pre)
	postMean := mean(post)
	absoluteChange := postMean - preMean
	percentChange := 0.0
	if preMean != 0 {
		percentChange = absoluteChange / preMean * 100
	}

	zap.L().Info("interrupted time series fitted",
		zap.Int("pre_observations", len(pre)),
		zap.Int("post_observations", len(post)),
		zap.Float64("intervention_effect", mean(gaps)))

	return &Result{
		ModelParams: map[string]any{
			"intervention_date":  m.interventionDate,
			"dependent_variable": m.dependent,
		},
		ImpactEstimates: map[string]any{
			"intervention_effect":    roundTo(mean(gaps), 4),
			"pre_intervention_mean":  roundTo(preMean, 4),
			"post_intervention_mean": roundTo(postMean, 4),
			"absolute_change":        roundTo(absoluteChange, 4),
			"percent_change":         roundTo(percentChange, 4),
		},
		ModelSummary: map[string]any{
			"n_observations":     len(dates),
			"pre_period_length":  len(pre),
			"post_period_length": len(post),
			"trend_slope":        roundTo(slope, 6),
			"trend_intercept":    roundTo(intercept, 6),
		},
	}, nil
}

// linearTrend fits y = intercept + slope*t over t = 0..len(y)-1 by least
// squares. Fewer than two points give a flat trend at the series mean.
func linearTrend(y []float64) (slope, intercept float64) {
	n := float64(len(y))
	if len(y) < 2 {
		return 0, mean(y)
	}
	var sumT, sumY, sumTY, sumTT float64
	for i, v := range y {
		t := float64(i)
		sumT += t
		sumY += v
		sumTY += t * v
		sumTT += t * t
	}
	denom := n*sumTT - sumT*sumT
	if denom == 0 {
		return 0, mean(y)
	}
	slope = (n*sumTY - sumT*sumY) / denom
	intercept = (sumY - slope*sumT) / n
	return slope, intercept
}
