package transform

import (
	"sort"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/frame"
)

func init() {
	Transforms.Register("passthrough", passthrough)
	Transforms.Register("aggregate_by_date", aggregateByDate)
	Transforms.Register("prepare_for_approximation", prepareForApproximation)
}

// passthrough hands the metrics to the model untouched.
func passthrough(f *frame.Frame, _ map[string]any) (*frame.Frame, error) {
	return f, nil
}

// aggregateByDate collapses the panel to one row per date, summing the
// metric named by PARAMS.metric (default "revenue"). Nil cells contribute
// nothing to the sum. Output rows are sorted by date.
func aggregateByDate(f *frame.Frame, params map[string]any) (*frame.Frame, error) {
	metric := stringParam(params, "metric", "revenue")
	if err := f.RequireColumns("date", metric); err != nil {
		return nil, err
	}
	dates, err := f.Strings("date")
	if err != nil {
		return nil, err
	}
	cells, err := f.Column(metric)
	if err != nil {
		return nil, err
	}

	totals := make(map[string]float64)
	for i := range cells {
		if cells[i] == nil {
			continue
		}
		v, ok := frame.AsFloat(cells[i])
		if !ok {
			return nil, eris.Errorf("transform: column %q row %d is not numeric (%v)", metric, i, cells[i])
		}
		totals[dates[i]] += v
	}

	keys := make([]string, 0, len(totals))
	for d := range totals {
		keys = append(keys, d)
	}
	sort.Strings(keys)

	records := make([][]any, 0, len(keys))
	for _, d := range keys {
		records = append(records, []any{d, totals[d]})
	}
	out, err := frame.FromRecords([]string{"date", metric}, records)
	if err != nil {
		return nil, err
	}
	zap.L().Info("aggregated metrics by date",
		zap.Int("input_rows", f.NumRows()),
		zap.Int("dates", out.NumRows()),
		zap.String("metric", metric))
	return out, nil
}

// prepareForApproximation collapses a product×date panel into one row per
// product with the quality level before and after the enrichment date and
// the pre-enrichment baseline outcome. Columns outside the core set ride
// along with their first observed value per product.
//
// When no rows precede the enrichment date the whole panel serves as the
// before period; when no rows follow it the before period also serves as
// the after period, so quality_before equals quality_after.
func prepareForApproximation(f *frame.Frame, params map[string]any) (*frame.Frame, error) {
	start := stringParam(params, "enrichment_start", "")
	if start == "" {
		return nil, eris.New("transform: prepare_for_approximation requires an enrichment_start parameter")
	}
	baseline := stringParam(params, "baseline_metric", "revenue")
	if err := f.RequireColumns("product_id", "date", "quality_score", baseline); err != nil {
		return nil, err
	}

	dates, err := f.Strings("date")
	if err != nil {
		return nil, err
	}
	before := f.Filter(func(row int) bool { return dates[row] < start })
	after := f.Filter(func(row int) bool { return dates[row] >= start })
	if before.NumRows() == 0 {
		before = f
	}
	if after.NumRows() == 0 {
		after = before
	}

	core := map[string]bool{"product_id": true, "date": true, "quality_score": true, baseline: true}
	var attrs []string
	for _, name := range f.Columns() {
		if !core[name] {
			attrs = append(attrs, name)
		}
	}

	beforeStats, ids, err := collectProductStats(before, baseline, attrs)
	if err != nil {
		return nil, err
	}
	afterStats, _, err := collectProductStats(after, baseline, attrs)
	if err != nil {
		return nil, err
	}
	sort.Strings(ids)

	columns := append([]string{"product_id", "quality_before", "quality_after", "baseline_sales"}, attrs...)
	records := make([][]any, 0, len(ids))
	for _, id := range ids {
		b := beforeStats[id]
		qualityAfter := b.quality
		if a, ok := afterStats[id]; ok && a.quality != nil {
			qualityAfter = a.quality
		}
		rec := []any{id, b.quality, qualityAfter, b.baselineSum}
		for _, name := range attrs {
			rec = append(rec, b.attrs[name])
		}
		records = append(records, rec)
	}
	out, err := frame.FromRecords(columns, records)
	if err != nil {
		return nil, err
	}
	zap.L().Info("prepared metrics for approximation",
		zap.Int("products", out.NumRows()),
		zap.Int("before_rows", before.NumRows()),
		zap.Int("after_rows", after.NumRows()),
		zap.String("enrichment_start", start))
	return out, nil
}

type productStats struct {
	quality     any
	baselineSum float64
	attrs       map[string]any
}

// collectProductStats aggregates one period of the panel per product:
// first non-nil quality_score and attribute values, summed baseline. The
// returned ids preserve first appearance order.
func collectProductStats(f *frame.Frame, baseline string, attrs []string) (map[string]*productStats, []string, error) {
	ids, err := f.Strings("product_id")
	if err != nil {
		return nil, nil, err
	}
	quality, err := f.Column("quality_score")
	if err != nil {
		return nil, nil, err
	}
	base, err := f.Column(baseline)
	if err != nil {
		return nil, nil, err
	}
	attrCols := make(map[string][]any, len(attrs))
	for _, name := range attrs {
		col, err := f.Column(name)
		if err != nil {
			return nil, nil, err
		}
		attrCols[name] = col
	}

	stats := make(map[string]*productStats)
	var order []string
	for i := 0; i < f.NumRows(); i++ {
		st, ok := stats[ids[i]]
		if !ok {
			st = &productStats{attrs: make(map[string]any, len(attrs))}
			stats[ids[i]] = st
			order = append(order, ids[i])
		}
		if st.quality == nil && quality[i] != nil {
			st.quality = quality[i]
		}
		if base[i] != nil {
			v, ok := frame.AsFloat(base[i])
			if !ok {
				return nil, nil, eris.Errorf("transform: column %q row %d is not numeric (%v)", baseline, i, base[i])
			}
			st.baselineSum += v
		}
		for _, name := range attrs {
			if st.attrs[name] == nil && attrCols[name][i] != nil {
				st.attrs[name] = attrCols[name][i]
			}
		}
	}
	return stats, order, nil
}
