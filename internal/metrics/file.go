package metrics

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/eisenhauerIO/impact-engine/internal/frame"
)

func init() {
	Sources.MustRegister("file", func() any { return &fileSource{} })
}

// fileSource serves metrics from a local file, loaded whole at connect
// time. CSV, parquet, JSON record arrays, and xlsx workbooks are accepted,
// keyed off the file extension.
type fileSource struct {
	data            *frame.Frame
	dateColumn      string
	productIDColumn string
}

func (s *fileSource) Connect(config map[string]any) error {
	path := stringOpt(config, "path")
	if path == "" {
		return eris.New("metrics: file source requires a path")
	}
	if _, err := os.Stat(path); err != nil {
		return eris.Wrapf(err, "metrics: metrics file not found: %s", path)
	}

	data, err := loadMetricsFile(path)
	if err != nil {
		return err
	}
	s.data = data
	s.dateColumn = stringOpt(config, "date_column")
	s.productIDColumn = stringOpt(config, "product_id_column")
	zap.L().Info("metrics file loaded",
		zap.String("path", path),
		zap.Int("rows", data.NumRows()),
		zap.Strings("columns", data.Columns()))
	return nil
}

// Retrieve filters the preloaded panel. The date filter applies only when a
// date_column was configured and exists in the data; both bounds are
// inclusive and an empty bound is open. The product filter applies only when
// both the panel and the products frame carry a product_id column.
func (s *fileSource) Retrieve(products *frame.Frame, startDate, endDate string) (*frame.Frame, error) {
	if s.data == nil {
		return nil, eris.New("metrics: file source is not connected")
	}

	panel := s.data
	if s.productIDColumn != "" && s.productIDColumn != "product_id" && panel.HasColumn(s.productIDColumn) {
		ids, err := panel.Strings(s.productIDColumn)
		if err != nil {
			return nil, err
		}
		values := make([]any, len(ids))
		for i, id := range ids {
			values[i] = id
		}
		panel, err = panel.WithColumn("product_id", values)
		if err != nil {
			return nil, err
		}
	}

	if s.dateColumn != "" && panel.HasColumn(s.dateColumn) && (startDate != "" || endDate != "") {
		dates, err := panel.Strings(s.dateColumn)
		if err != nil {
			return nil, err
		}
		panel = panel.Filter(func(row int) bool {
			if startDate != "" && dates[row] < startDate {
				return false
			}
			if endDate != "" && dates[row] > endDate {
				return false
			}
			return true
		})
	}

	if products != nil && products.HasColumn("product_id") && panel.HasColumn("product_id") {
		wanted, err := products.Strings("product_id")
		if err != nil {
			return nil, err
		}
		keep := make(map[string]bool, len(wanted))
		for _, id := range wanted {
			keep[id] = true
		}
		ids, err := panel.Strings("product_id")
		if err != nil {
			return nil, err
		}
		panel = panel.Filter(func(row int) bool { return keep[ids[row]] })
	}

	return panel, nil
}

func (s *fileSource) ValidateConnection() bool {
	return s.data != nil
}

func loadMetricsFile(path string) (*frame.Frame, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "metrics: read %s", path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return frame.ReadCSV(bytes.NewReader(raw))
	case ".parquet":
		return frame.ReadParquet(raw)
	case ".json":
		return frame.ReadJSONRecords(bytes.NewReader(raw))
	case ".xlsx":
		return frame.ReadXLSX(raw)
	default:
		return nil, eris.Errorf("metrics: unsupported metrics file format %q (want .csv, .parquet, .json, or .xlsx)", filepath.Ext(path))
	}
}
