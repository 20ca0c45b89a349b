package models

import (
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eisenhauerIO/impact-engine/internal/adapter"
	"github.com/eisenhauerIO/impact-engine/internal/frame"
)

func init() {
	Models.MustRegister("subclassification", func() any { return &subclassification{} })
}

// subclassification estimates a treatment effect by stratifying on
// covariate quantiles. Units fall into a composite stratum per covariate
// bin; strata lacking either treated or control units are dropped and the
// remaining within-stratum effects are averaged with estimand weights.
type subclassification struct {
	nStrata    int
	estimand   string
	treatment  string
	covariates []string
	dependent  string
}

func (m *subclassification) Connect(params map[string]any) error {
	n, err := paramInt(params, "n_strata", 5)
	if err != nil {
		return err
	}
	if n <= 0 {
		return eris.Wrapf(adapter.ErrInvalidParameter, "models: n_strata must be a positive integer (got %d)", n)
	}
	estimand := strings.ToLower(paramString(params, "estimand", "att"))
	if estimand != "att" && estimand != "ate" {
		return eris.Wrapf(adapter.ErrInvalidParameter, "models: estimand must be \"att\" or \"ate\" (got %q)", estimand)
	}
	treatment, err := requireParamString(params, "treatment_column")
	if err != nil {
		return err
	}
	covariates, err := paramStringSlice(params, "covariate_columns")
	if err != nil {
		return err
	}

	m.nStrata = n
	m.estimand = estimand
	m.treatment = treatment
	m.covariates = covariates
	m.dependent = paramString(params, "dependent_variable", "revenue")
	return nil
}

func (m *subclassification) RequiredColumns() []string {
	cols := []string{m.treatment, m.dependent}
	return append(cols, m.covariates...)
}

func (m *subclassification) Fit(f *frame.Frame) (*Result, error) {
	treatment, err := f.Floats(m.treatment)
	if err != nil {
		return nil, err
	}
	outcome, err := f.Floats(m.dependent)
	if err != nil {
		return nil, err
	}

	labels, err := m.stratify(f)
	if err != nil {
		return nil, err
	}
	distinct := make(map[string]bool, len(labels))
	for _, l := range labels {
		distinct[l] = true
	}

	effects := computeStratumEffects(labels, treatment, outcome)

	var nTreated, nControl int
	for _, t := range treatment {
		switch t {
		case 1:
			nTreated++
		case 0:
			nControl++
		}
	}

	params := map[string]any{
		"treatment_column":   m.treatment,
		"covariate_columns":  m.covariates,
		"dependent_variable": m.dependent,
		"n_strata":           m.nStrata,
		"estimand":           m.estimand,
	}

	if len(effects) == 0 {
		zap.L().Warn("every stratum lacked treated or control units, reporting a zero effect")
		return &Result{
			ModelParams:     params,
			ImpactEstimates: map[string]any{"treatment_effect": 0.0},
			ModelSummary: map[string]any{
				"n_strata":         0,
				"n_strata_dropped": 0,
				"n_observations":   0,
				"n_treated":        0,
				"n_control":        0,
			},
		}, nil
	}

	estimate := aggregateEffects(effects, m.estimand)
	details, err := stratumDetails(effects)
	if err != nil {
		return nil, err
	}

	zap.L().Info("subclassification fitted",
		zap.String("estimand", m.estimand),
		zap.Int("strata_kept", len(effects)),
		zap.Int("strata_dropped", len(distinct)-len(effects)),
		zap.Float64("treatment_effect", estimate))

	return &Result{
		ModelParams: params,
		ImpactEstimates: map[string]any{
			"treatment_effect": roundTo(estimate, 4),
		},
		ModelSummary: map[string]any{
			"n_strata":         len(effects),
			"n_strata_dropped": len(distinct) - len(effects),
			"n_observations":   f.NumRows(),
			"n_treated":        nTreated,
			"n_control":        nControl,
		},
		Artifacts: map[string]*frame.Frame{"stratum_details": details},
	}, nil
}

// stratify assigns each row a composite stratum label built from the
// quantile bin of every covariate. Covariates are binned independently and
// concurrently.
func (m *subclassification) stratify(f *frame.Frame) ([]string, error) {
	bins := make([][]int, len(m.covariates))
	var g errgroup.Group
	for i, name := range m.covariates {
		g.Go(func() error {
			values, err := f.Floats(name)
			if err != nil {
				return err
			}
			bins[i] = quantileBins(values, m.nStrata)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	labels := make([]string, f.NumRows())
	parts := make([]string, len(m.covariates))
	for row := range labels {
		for i := range bins {
			parts[i] = strconv.Itoa(bins[i][row])
		}
		labels[row] = strings.Join(parts, "_")
	}
	return labels, nil
}

// quantileBins buckets values into at most n quantile bins. Duplicate
// quantile edges collapse, so heavily tied data yields fewer bins; a
// constant column yields a single bin.
func quantileBins(values []float64, n int) []int {
	bins := make([]int, len(values))
	if len(values) == 0 {
		return bins
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if sorted[0] == sorted[len(sorted)-1] {
		return bins
	}

	edges := make([]float64, 0, n+1)
	for i := 0; i <= n; i++ {
		q := quantile(sorted, float64(i)/float64(n))
		if len(edges) == 0 || q > edges[len(edges)-1] {
			edges = append(edges, q)
		}
	}

	for i, v := range values {
		// First interval is closed on the left, the rest on the right.
		j := sort.Search(len(edges)-1, func(k int) bool { return v <= edges[k+1] })
		if j == len(edges)-1 {
			j = len(edges) - 2
		}
		bins[i] = j
	}
	return bins
}

// quantile interpolates linearly between order statistics, matching the
// convention of the usual statistical libraries.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lower := int(pos)
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

type stratumEffect struct {
	stratum     string
	nTreated    int
	nControl    int
	meanTreated float64
	meanControl float64
	effect      float64
}

// computeStratumEffects keeps only strata with both treated and control
// units; the rest are dropped with a warning.
func computeStratumEffects(labels []string, treatment, outcome []float64) []stratumEffect {
	groups := make(map[string][]int)
	var order []string
	for i, l := range labels {
		if _, seen := groups[l]; !seen {
			order = append(order, l)
		}
		groups[l] = append(groups[l], i)
	}
	sort.Strings(order)

	var effects []stratumEffect
	for _, label := range order {
		var treated, control []float64
		for _, i := range groups[label] {
			switch treatment[i] {
			case 1:
				treated = append(treated, outcome[i])
			case 0:
				control = append(control, outcome[i])
			}
		}
		if len(treated) == 0 || len(control) == 0 {
			zap.L().Warn("dropping stratum without both treated and control units",
				zap.String("stratum", label),
				zap.Int("n_treated", len(treated)),
				zap.Int("n_control", len(control)))
			continue
		}
		effects = append(effects, stratumEffect{
			stratum:     label,
			nTreated:    len(treated),
			nControl:    len(control),
			meanTreated: mean(treated),
			meanControl: mean(control),
			effect:      mean(treated) - mean(control),
		})
	}
	return effects
}

// aggregateEffects averages stratum effects with estimand weights: ATT
// weights by treated units, ATE by all units in the stratum.
func aggregateEffects(effects []stratumEffect, estimand string) float64 {
	var weighted, total float64
	for _, e := range effects {
		w := float64(e.nTreated)
		if estimand == "ate" {
			w = float64(e.nTreated + e.nControl)
		}
		weighted += w * e.effect
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

func stratumDetails(effects []stratumEffect) (*frame.Frame, error) {
	records := make([][]any, len(effects))
	for i, e := range effects {
		records[i] = []any{e.stratum, e.nTreated, e.nControl, e.meanTreated, e.meanControl, e.effect}
	}
	return frame.FromRecords(
		[]string{"stratum", "n_treated", "n_control", "mean_treated", "mean_control", "effect"},
		records)
}
