package metrics

import (
	"math"
	"math/rand"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/frame"
)

func init() {
	Sources.MustRegister("simulator", func() any { return &simulatorSource{} })
}

// simulatorSource synthesizes a product×date sales panel from a seed, so
// runs are reproducible without any external data. When the source config
// carries an ENRICHMENT section the panel gains a quality_score column and
// sales lift from the enrichment start date onward.
type simulatorSource struct {
	mode       string
	seed       int64
	enrichment enrichmentPlan
	connected  bool
}

type enrichmentPlan struct {
	active bool
	start  string
	uplift float64
}

func (s *simulatorSource) Connect(config map[string]any) error {
	mode := stringOpt(config, "mode")
	if mode == "" {
		mode = "rule"
	}
	if mode != "rule" {
		return eris.Errorf("metrics: simulator mode %q not supported (only \"rule\")", mode)
	}
	s.mode = mode
	s.seed = intOpt(config, "seed", 42)

	if enrichment, ok := config["ENRICHMENT"].(map[string]any); ok {
		params, _ := enrichment["PARAMS"].(map[string]any)
		start := stringOpt(params, "enrichment_start")
		if start != "" {
			s.enrichment = enrichmentPlan{
				active: true,
				start:  start,
				uplift: floatOpt(params, "quality_uplift", 0.3),
			}
		}
	}
	s.connected = true
	return nil
}

func (s *simulatorSource) Retrieve(products *frame.Frame, startDate, endDate string) (*frame.Frame, error) {
	if !s.connected {
		return nil, eris.New("metrics: simulator is not connected")
	}
	if products == nil || !products.HasColumn("product_id") {
		return nil, eris.New("metrics: simulator requires a product_id column in the products frame")
	}
	ids, err := products.Strings("product_id")
	if err != nil {
		return nil, err
	}

	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, eris.Wrapf(err, "metrics: simulator start_date %q", startDate)
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, eris.Wrapf(err, "metrics: simulator end_date %q", endDate)
	}
	if end.Before(start) {
		return nil, eris.Errorf("metrics: simulator date range %s..%s is inverted", startDate, endDate)
	}

	columns := []string{"product_id", "date", "sales_volume", "price", "revenue"}
	if s.enrichment.active {
		columns = append(columns, "quality_score")
	}

	rng := rand.New(rand.NewSource(s.seed))
	var records [][]any
	for _, id := range ids {
		basePrice := round2(10 + rng.Float64()*90)
		baseVolume := float64(20 + rng.Intn(80))
		baseQuality := round2(0.3 + rng.Float64()*0.4)

		for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
			date := day.Format("2006-01-02")
			quality := baseQuality
			enriched := s.enrichment.active && date >= s.enrichment.start
			if enriched {
				quality = round2(math.Min(1.0, baseQuality+s.enrichment.uplift))
			}

			volume := baseVolume * (0.85 + 0.3*rng.Float64())
			if enriched {
				volume *= 1 + (quality - baseQuality)
			}
			volume = math.Round(volume)
			revenue := round2(volume * basePrice)

			rec := []any{id, date, volume, basePrice, revenue}
			if s.enrichment.active {
				rec = append(rec, quality)
			}
			records = append(records, rec)
		}
	}

	panel, err := frame.FromRecords(columns, records)
	if err != nil {
		return nil, err
	}
	zap.L().Info("simulated metrics panel",
		zap.Int("products", len(ids)),
		zap.Int("rows", panel.NumRows()),
		zap.Int64("seed", s.seed),
		zap.Bool("enrichment", s.enrichment.active))
	return panel, nil
}

func (s *simulatorSource) ValidateConnection() bool {
	return s.connected
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}

func intOpt(config map[string]any, key string, fallback int64) int64 {
	switch v := config[key].(type) {
	case int:
		return int64(v)
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return fallback
}

func floatOpt(config map[string]any, key string, fallback float64) float64 {
	switch v := config[key].(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case float64:
		return v
	}
	return fallback
}
