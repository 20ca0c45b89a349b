// Package frame implements the rectangular, column-ordered dataset passed
// between the retrieval, transform, and model stages. Cells are float64,
// string, or nil; dates travel as "YYYY-MM-DD" strings, whose lexicographic
// order matches chronological order.
package frame

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
)

// Frame is a column-major table. All columns have equal length. Accessors
// return copies, so a Frame handed to another stage cannot be mutated
// behind its back.
type Frame struct {
	names []string
	cols  [][]any
}

// New creates an empty frame with the given column order.
func New(columns ...string) *Frame {
	f := &Frame{names: append([]string(nil), columns...)}
	f.cols = make([][]any, len(f.names))
	return f
}

// FromRecords builds a frame from a header and row-major records. Every
// record must have exactly len(columns) cells.
func FromRecords(columns []string, records [][]any) (*Frame, error) {
	f := New(columns...)
	for i, rec := range records {
		if len(rec) != len(columns) {
			return nil, eris.Errorf("frame: record %d has %d cells, want %d", i, len(rec), len(columns))
		}
		for j, v := range rec {
			f.cols[j] = append(f.cols[j], normalizeCell(v))
		}
	}
	return f, nil
}

// normalizeCell maps every supported input type onto the three cell types.
func normalizeCell(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case float64:
		return x
	case float32:
		return float64(x)
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case bool:
		if x {
			return 1.0
		}
		return 0.0
	case []byte:
		return string(x)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// NumRows returns the row count.
func (f *Frame) NumRows() int {
	if len(f.cols) == 0 {
		return 0
	}
	return len(f.cols[0])
}

// NumCols returns the column count.
func (f *Frame) NumCols() int { return len(f.names) }

// Columns returns the column names in order.
func (f *Frame) Columns() []string { return append([]string(nil), f.names...) }

// HasColumn reports whether name is a column.
func (f *Frame) HasColumn(name string) bool { return f.index(name) >= 0 }

func (f *Frame) index(name string) int {
	for i, n := range f.names {
		if n == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's cells.
func (f *Frame) Column(name string) ([]any, error) {
	i := f.index(name)
	if i < 0 {
		return nil, eris.Errorf("frame: no column %q", name)
	}
	return append([]any(nil), f.cols[i]...), nil
}

// Floats returns the named column as float64s. Numeric strings are parsed;
// nil or non-numeric cells are an error naming the column.
func (f *Frame) Floats(name string) ([]float64, error) {
	i := f.index(name)
	if i < 0 {
		return nil, eris.Errorf("frame: no column %q", name)
	}
	out := make([]float64, len(f.cols[i]))
	for r, v := range f.cols[i] {
		fv, ok := AsFloat(v)
		if !ok {
			return nil, eris.Errorf("frame: column %q row %d is not numeric (%v)", name, r, v)
		}
		out[r] = fv
	}
	return out, nil
}

// Strings returns the named column rendered as strings; nil cells become "".
func (f *Frame) Strings(name string) ([]string, error) {
	i := f.index(name)
	if i < 0 {
		return nil, eris.Errorf("frame: no column %q", name)
	}
	out := make([]string, len(f.cols[i]))
	for r, v := range f.cols[i] {
		out[r] = FormatCell(v)
	}
	return out, nil
}

// AsFloat coerces a cell to float64.
func AsFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case string:
		fv, err := strconv.ParseFloat(x, 64)
		return fv, err == nil
	default:
		return 0, false
	}
}

// FormatCell renders a cell for CSV and display. Floats print without
// exponent so re-reading round-trips.
func FormatCell(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case string:
		return x
	default:
		return fmt.Sprintf("%v", x)
	}
}

// AppendRow adds one row given as column → value. Columns absent from the
// map get nil; keys that are not columns are an error.
func (f *Frame) AppendRow(row map[string]any) error {
	for k := range row {
		if f.index(k) < 0 {
			return eris.Errorf("frame: row has unknown column %q", k)
		}
	}
	for i, name := range f.names {
		v, ok := row[name]
		if !ok {
			f.cols[i] = append(f.cols[i], nil)
			continue
		}
		f.cols[i] = append(f.cols[i], normalizeCell(v))
	}
	return nil
}

// Row returns row i as column → value.
func (f *Frame) Row(i int) map[string]any {
	row := make(map[string]any, len(f.names))
	for j, name := range f.names {
		row[name] = f.cols[j][i]
	}
	return row
}

// Value returns the cell at (row, column).
func (f *Frame) Value(row int, column string) (any, error) {
	i := f.index(column)
	if i < 0 {
		return nil, eris.Errorf("frame: no column %q", column)
	}
	if row < 0 || row >= len(f.cols[i]) {
		return nil, eris.Errorf("frame: row %d out of range", row)
	}
	return f.cols[i][row], nil
}

// Select returns a new frame with only the named columns, in the given order.
func (f *Frame) Select(columns ...string) (*Frame, error) {
	out := New(columns...)
	for j, name := range columns {
		i := f.index(name)
		if i < 0 {
			return nil, eris.Errorf("frame: no column %q", name)
		}
		out.cols[j] = append([]any(nil), f.cols[i]...)
	}
	return out, nil
}

// Filter returns a new frame keeping the rows for which keep returns true.
func (f *Frame) Filter(keep func(row int) bool) *Frame {
	out := New(f.names...)
	for r := 0; r < f.NumRows(); r++ {
		if !keep(r) {
			continue
		}
		for j := range f.names {
			out.cols[j] = append(out.cols[j], f.cols[j][r])
		}
	}
	return out
}

// SortBy returns a new frame with rows ordered by the named column.
// Numeric columns sort numerically, everything else lexicographically;
// the sort is stable.
func (f *Frame) SortBy(column string) (*Frame, error) {
	i := f.index(column)
	if i < 0 {
		return nil, eris.Errorf("frame: no column %q", column)
	}
	order := make([]int, f.NumRows())
	for r := range order {
		order[r] = r
	}
	col := f.cols[i]
	sort.SliceStable(order, func(a, b int) bool {
		return cellLess(col[order[a]], col[order[b]])
	})

	out := New(f.names...)
	for j := range f.names {
		out.cols[j] = make([]any, len(order))
		for r, src := range order {
			out.cols[j][r] = f.cols[j][src]
		}
	}
	return out, nil
}

func cellLess(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	return FormatCell(a) < FormatCell(b)
}

// WithColumn returns a new frame with the named column set to values,
// replacing it if it already exists. values must match the row count,
// except on an empty frame where it defines it.
func (f *Frame) WithColumn(name string, values []any) (*Frame, error) {
	if f.NumRows() > 0 && len(values) != f.NumRows() {
		return nil, eris.Errorf("frame: column %q has %d values, want %d", name, len(values), f.NumRows())
	}
	out := f.Copy()
	normalized := make([]any, len(values))
	for r, v := range values {
		normalized[r] = normalizeCell(v)
	}
	if i := out.index(name); i >= 0 {
		out.cols[i] = normalized
		return out, nil
	}
	out.names = append(out.names, name)
	out.cols = append(out.cols, normalized)
	return out, nil
}

// Copy returns a deep copy.
func (f *Frame) Copy() *Frame {
	out := New(f.names...)
	for j := range f.cols {
		out.cols[j] = append([]any(nil), f.cols[j]...)
	}
	return out
}

// ValidateKey checks that (unitColumn, timeColumn) pairs are unique, the
// panel-data invariant models rely on.
func (f *Frame) ValidateKey(unitColumn, timeColumn string) error {
	units, err := f.Strings(unitColumn)
	if err != nil {
		return err
	}
	times, err := f.Strings(timeColumn)
	if err != nil {
		return err
	}
	seen := make(map[string]int, len(units))
	for r := range units {
		key := units[r] + "\x00" + times[r]
		if prev, dup := seen[key]; dup {
			return eris.Errorf("frame: duplicate (%s=%s, %s=%s) at rows %d and %d",
				unitColumn, units[r], timeColumn, times[r], prev, r)
		}
		seen[key] = r
	}
	return nil
}

// RequireColumns returns an error naming every missing column.
func (f *Frame) RequireColumns(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !f.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return eris.Errorf("frame: missing required columns %v (have %v)", missing, f.names)
	}
	return nil
}
