// Package table provides the in-memory tabular dataset the scoring pipeline
// operates on. Values come straight off the BigQuery iterator, so cells are
// dynamically typed; the As* helpers coerce them at the point of use.
package table

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// ErrSchemaMismatch reports that a required column is absent from a table.
// The pipeline treats this as fatal: the data contract with the warehouse is
// violated and producing NULLs instead would silently corrupt features.
var ErrSchemaMismatch = errors.New("schema mismatch")

// Row is a single record keyed by column name.
type Row map[string]any

// Table is an ordered set of columns plus rows. Operations return new tables
// and never mutate their receivers' rows, so a loaded snapshot can be reused
// across pipeline stages.
type Table struct {
	columns []string
	index   map[string]struct{}
	rows    []Row
}

// New creates an empty table with the given column set.
func New(columns ...string) *Table {
	t := &Table{
		columns: append([]string(nil), columns...),
		index:   make(map[string]struct{}, len(columns)),
	}
	for _, c := range columns {
		t.index[c] = struct{}{}
	}
	return t
}

// Columns returns the column names in order.
func (t *Table) Columns() []string {
	return append([]string(nil), t.columns...)
}

// Len returns the number of rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Append adds a row. Cells for unknown columns are ignored; missing cells
// stay absent and read back as nil.
func (t *Table) Append(r Row) {
	row := make(Row, len(t.columns))
	for _, c := range t.columns {
		if v, ok := r[c]; ok {
			row[c] = v
		}
	}
	t.rows = append(t.rows, row)
}

// Row returns the i-th row. The returned map is shared; callers must not
// modify it.
func (t *Table) Row(i int) Row {
	return t.rows[i]
}

// HasColumn reports whether the table carries the named column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// RequireColumns fails with ErrSchemaMismatch if any of the named columns is
// absent. The error names every missing column so one run surfaces the whole
// drift, not just the first column.
func (t *Table) RequireColumns(names ...string) error {
	var missing []string
	for _, n := range names {
		if !t.HasColumn(n) {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing column(s) %s", ErrSchemaMismatch, strings.Join(missing, ", "))
	}
	return nil
}

// Rename returns a copy of the table with column from renamed to to. A
// missing source column is a schema mismatch.
func (t *Table) Rename(from, to string) (*Table, error) {
	if err := t.RequireColumns(from); err != nil {
		return nil, fmt.Errorf("rename %s -> %s: %w", from, to, err)
	}
	if t.HasColumn(to) {
		return nil, fmt.Errorf("rename %s -> %s: column %s already exists", from, to, to)
	}

	cols := make([]string, len(t.columns))
	for i, c := range t.columns {
		if c == from {
			cols[i] = to
		} else {
			cols[i] = c
		}
	}
	out := New(cols...)
	for _, r := range t.rows {
		nr := make(Row, len(cols))
		for k, v := range r {
			if k == from {
				nr[to] = v
			} else {
				nr[k] = v
			}
		}
		out.rows = append(out.rows, nr)
	}
	return out, nil
}

// InnerJoin joins t with right on the given key columns. Output columns are
// t's columns followed by right's non-key columns. Rows whose key cells are
// nil never match, and a non-key column present on both sides is an error
// rather than a silent overwrite.
func (t *Table) InnerJoin(right *Table, keys ...string) (*Table, error) {
	if len(keys) == 0 {
		return nil, errors.New("inner join: no key columns")
	}
	if err := t.RequireColumns(keys...); err != nil {
		return nil, fmt.Errorf("inner join left side: %w", err)
	}
	if err := right.RequireColumns(keys...); err != nil {
		return nil, fmt.Errorf("inner join right side: %w", err)
	}

	keySet := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		keySet[k] = struct{}{}
	}
	var rightCols []string
	for _, c := range right.columns {
		if _, isKey := keySet[c]; isKey {
			continue
		}
		if t.HasColumn(c) {
			return nil, fmt.Errorf("inner join: column %s present on both sides", c)
		}
		rightCols = append(rightCols, c)
	}

	// Hash join: bucket the right side by key tuple.
	buckets := make(map[string][]Row, right.Len())
	for _, r := range right.rows {
		k, ok := joinKey(r, keys)
		if !ok {
			continue
		}
		buckets[k] = append(buckets[k], r)
	}

	out := New(append(t.Columns(), rightCols...)...)
	for _, lr := range t.rows {
		k, ok := joinKey(lr, keys)
		if !ok {
			continue
		}
		for _, rr := range buckets[k] {
			nr := make(Row, len(out.columns))
			for col, v := range lr {
				nr[col] = v
			}
			for _, col := range rightCols {
				nr[col] = rr[col]
			}
			out.rows = append(out.rows, nr)
		}
	}
	return out, nil
}

// Filter returns the rows for which keep is true, preserving order.
func (t *Table) Filter(keep func(Row) bool) *Table {
	out := New(t.columns...)
	for _, r := range t.rows {
		if keep(r) {
			out.rows = append(out.rows, r)
		}
	}
	return out
}

func joinKey(r Row, keys []string) (string, bool) {
	var b strings.Builder
	for i, k := range keys {
		v := r[k]
		if v == nil {
			return "", false
		}
		if i > 0 {
			b.WriteByte(0x1f)
		}
		fmt.Fprintf(&b, "%v", v)
	}
	return b.String(), true
}

// AsFloat coerces a cell to float64. BigQuery surfaces FLOAT64 as float64,
// INT64 as int64 and NUMERIC as *big.Rat.
func AsFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int:
		return float64(x), nil
	case *big.Rat:
		f, _ := x.Float64()
		return f, nil
	default:
		return 0, fmt.Errorf("value %v (%T) is not numeric", v, v)
	}
}

// AsBool coerces a cell to bool.
func AsBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("value %v (%T) is not a bool", v, v)
	}
	return b, nil
}

// AsString coerces a cell to string.
func AsString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("value %v (%T) is not a string", v, v)
	}
	return s, nil
}

// AsTime coerces a cell to time.Time.
func AsTime(v any) (time.Time, error) {
	ts, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("value %v (%T) is not a timestamp", v, v)
	}
	return ts, nil
}
