package ingest

import (
	"strings"

	"TalkToDataLoanPro/internal/normalize"
)

// ColumnRef names a source column by its sheet number and raw position in
// that sheet, before any subsetting.
type ColumnRef struct {
	Sheet int
	Index int
}

// Table is a sheet (or several joined sheets) after projection. Each row
// carries the extra fields pulled from its source rows.
type Table struct {
	Columns []string
	Rows    []Row
	Sources map[ColumnRef]string
}

// Row is one table row.
type Row struct {
	Cells []any
	Extra map[string]any
}

// Index returns the position of a column, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value reads a cell by column name.
func (t *Table) Value(r Row, name string) any {
	i := t.Index(name)
	if i < 0 || i >= len(r.Cells) {
		return nil
	}
	return r.Cells[i]
}

// HasSheet reports whether any column of sheet is part of the table.
func (t *Table) HasSheet(sheet int) bool {
	for ref := range t.Sources {
		if ref.Sheet == sheet {
			return true
		}
	}
	return false
}

// cellValue turns a raw grid cell into a table value; blank cells and NaN
// markers become nil.
func cellValue(raw string) any {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") {
		return nil
	}
	return raw
}

func rawCell(row []string, idx int) any {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return cellValue(row[idx])
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func clean(v any, typ CleanType) any {
	if v == nil {
		return nil
	}
	switch typ {
	case CleanDate:
		if t, ok := normalize.NormalizeDate(v); ok {
			return t
		}
	case CleanInt:
		if n, ok := normalize.ToInt(v); ok {
			return n
		}
	case CleanFloat:
		if d, ok := normalize.CleanNumeric(v); ok {
			return d
		}
	case CleanString:
		if s, ok := normalize.ToString(v); ok {
			return s
		}
	}
	return nil
}

func mergeExtra(a, b map[string]any) map[string]any {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]any, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}
