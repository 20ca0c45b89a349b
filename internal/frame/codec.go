package frame

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"sort"
	"strconv"

	"github.com/parquet-go/parquet-go"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadCSV parses CSV with a header row. Empty cells become nil, cells that
// parse as numbers become float64, everything else stays string.
func ReadCSV(r io.Reader) (*Frame, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "frame: read csv")
	}
	if len(records) == 0 {
		return nil, eris.New("frame: csv has no header row")
	}
	f := New(records[0]...)
	for _, rec := range records[1:] {
		for j, cell := range rec {
			f.cols[j] = append(f.cols[j], parseCell(cell))
		}
	}
	return f, nil
}

func parseCell(s string) any {
	if s == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return s
}

// WriteCSV renders the frame as CSV with a header row.
func WriteCSV(w io.Writer, f *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(f.names); err != nil {
		return eris.Wrap(err, "frame: write csv header")
	}
	rec := make([]string, len(f.names))
	for r := 0; r < f.NumRows(); r++ {
		for j := range f.names {
			rec[j] = FormatCell(f.cols[j][r])
		}
		if err := cw.Write(rec); err != nil {
			return eris.Wrap(err, "frame: write csv row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "frame: flush csv")
}

// ReadJSONRecords parses an array of objects. Column order is the sorted
// union of keys; objects missing a key get nil cells.
func ReadJSONRecords(r io.Reader) (*Frame, error) {
	var rows []map[string]any
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, eris.Wrap(err, "frame: read json records")
	}
	return fromRowMaps(rows), nil
}

// WriteJSONRecords renders the frame as an array of objects.
func WriteJSONRecords(w io.Writer, f *Frame) error {
	rows := make([]map[string]any, f.NumRows())
	for r := range rows {
		rows[r] = f.Row(r)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return eris.Wrap(enc.Encode(rows), "frame: write json records")
}

func fromRowMaps(rows []map[string]any) *Frame {
	keySet := map[string]bool{}
	for _, row := range rows {
		for k := range row {
			keySet[k] = true
		}
	}
	names := make([]string, 0, len(keySet))
	for k := range keySet {
		names = append(names, k)
	}
	sort.Strings(names)

	f := New(names...)
	for _, row := range rows {
		for j, name := range names {
			v, ok := row[name]
			if !ok {
				f.cols[j] = append(f.cols[j], nil)
				continue
			}
			f.cols[j] = append(f.cols[j], normalizeCell(v))
		}
	}
	return f
}

// WriteParquet encodes the frame with one optional parquet column per frame
// column: DOUBLE for numeric columns, UTF8 for everything else. Cells are
// coerced to the column type so mixed columns stay encodable.
func WriteParquet(w io.Writer, f *Frame) error {
	numeric := make([]bool, len(f.names))
	for i := range f.names {
		numeric[i] = columnNumeric(f.cols[i])
	}

	rows := make([]map[string]any, f.NumRows())
	for r := range rows {
		row := make(map[string]any, len(f.names))
		for j, name := range f.names {
			v := f.cols[j][r]
			if v == nil {
				continue
			}
			if numeric[j] {
				fv, ok := AsFloat(v)
				if !ok {
					return eris.Errorf("frame: parquet column %q row %d is not numeric (%v)", name, r, v)
				}
				row[name] = fv
			} else {
				row[name] = FormatCell(v)
			}
		}
		rows[r] = row
	}

	group := parquet.Group{}
	for i, name := range f.names {
		if numeric[i] {
			group[name] = parquet.Optional(parquet.Leaf(parquet.DoubleType))
		} else {
			group[name] = parquet.Optional(parquet.String())
		}
	}
	schema := parquet.NewSchema("frame", group)

	if err := parquet.Write[map[string]any](w, rows, schema); err != nil {
		return eris.Wrap(err, "frame: write parquet")
	}
	return nil
}

// columnNumeric reports whether the first non-nil cell is a float64. The
// first cell decides for the whole column.
func columnNumeric(col []any) bool {
	for _, v := range col {
		if v == nil {
			continue
		}
		_, ok := v.(float64)
		return ok
	}
	return false
}

// ReadParquet decodes parquet bytes produced by WriteParquet (or any file
// whose leaves are doubles and strings). Column order is name-sorted, which
// matches how parquet groups are laid out.
func ReadParquet(data []byte) (*Frame, error) {
	rows, err := parquet.Read[map[string]any](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, eris.Wrap(err, "frame: read parquet")
	}
	return fromRowMaps(rows), nil
}

// ReadXLSX parses the first sheet of a workbook: first row is the header,
// remaining rows are data with the same cell coercion as CSV.
func ReadXLSX(data []byte) (*Frame, error) {
	wb, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "frame: open xlsx")
	}
	if len(wb.Sheets) == 0 {
		return nil, eris.New("frame: xlsx has no sheets")
	}
	sheet := wb.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.New("frame: xlsx sheet has no header row")
	}

	header := make([]string, len(sheet.Rows[0].Cells))
	for j, cell := range sheet.Rows[0].Cells {
		header[j] = cell.String()
	}
	f := New(header...)
	for _, row := range sheet.Rows[1:] {
		for j := range header {
			var raw string
			if j < len(row.Cells) {
				raw = row.Cells[j].String()
			}
			f.cols[j] = append(f.cols[j], parseCell(raw))
		}
	}
	return f, nil
}
