package ingest

import (
	"fmt"

	"TalkToDataLoanPro/internal/normalize"
)

// DefaultMaxEmptyRun is how many consecutive blank rows end a sheet.
const DefaultMaxEmptyRun = 20

type sourceRow struct {
	cells  []string
	origin int
}

// ReadSheet projects the raw grid of one sheet into a Table using cfg.
//
// Blank rows are skipped until maxEmptyRun of them appear in a row, which
// ends the sheet. The header row (if any) is then taken, columns are
// subset, rows with no values in the subset are dropped and skip_rows rows
// are discarded. Headerless sheets name their columns _{alias}_col_{i}
// after the raw column index. Extra fields are read from the raw row each
// table row came from.
func ReadSheet(sheet int, alias string, raw [][]string, cfg *SheetConfig, maxEmptyRun int) (*Table, error) {
	if maxEmptyRun <= 0 {
		maxEmptyRun = DefaultMaxEmptyRun
	}

	rows := make([]sourceRow, 0, len(raw))
	empty := 0
	for i, r := range raw {
		if blankRow(r) {
			empty++
			if empty >= maxEmptyRun {
				break
			}
			continue
		}
		empty = 0
		rows = append(rows, sourceRow{cells: r, origin: i})
	}

	var header []string
	if h := cfg.Header(); h >= 0 {
		if h >= len(rows) {
			return nil, fmt.Errorf("%w: sheet %d has no header row %d", ErrFormat, sheet, h)
		}
		header = rows[h].cells
		rows = rows[h+1:]
	}

	width := len(header)
	for _, r := range rows {
		if len(r.cells) > width {
			width = len(r.cells)
		}
	}
	selected := cfg.ColsToRead.Indices
	if cfg.ColsToRead.IsAll() {
		selected = make([]int, width)
		for i := range selected {
			selected[i] = i
		}
	}

	t := &Table{Sources: make(map[ColumnRef]string, len(selected))}
	seen := map[string]int{}
	for _, idx := range selected {
		name := columnName(alias, idx, header)
		if n := seen[name]; n > 0 {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n)
		} else {
			seen[name] = 1
		}
		t.Columns = append(t.Columns, name)
		t.Sources[ColumnRef{Sheet: sheet, Index: idx}] = name
	}

	projected := make([]sourceRow, 0, len(rows))
	cells := make([][]any, 0, len(rows))
	for _, r := range rows {
		vals := make([]any, len(selected))
		filled := false
		for i, idx := range selected {
			vals[i] = rawCell(r.cells, idx)
			if vals[i] != nil {
				filled = true
			}
		}
		if !filled {
			continue
		}
		projected = append(projected, r)
		cells = append(cells, vals)
	}

	if cfg.SkipRows >= len(projected) {
		projected, cells = nil, nil
	} else if cfg.SkipRows > 0 {
		projected, cells = projected[cfg.SkipRows:], cells[cfg.SkipRows:]
	}

	keys := make([]int, 0, len(cfg.KeyColumns))
	for _, k := range cfg.KeyColumns {
		pos, ok := cfg.ColsToRead.Position(k)
		if !ok || pos >= len(selected) {
			return nil, fmt.Errorf("%w: sheet %d key column %d is not read", ErrMapping, sheet, k)
		}
		keys = append(keys, pos)
	}
	type cleanAt struct {
		pos int
		typ CleanType
	}
	cleaners := make([]cleanAt, 0, len(cfg.Clean))
	for _, rule := range cfg.Clean {
		pos, ok := cfg.ColsToRead.Position(rule.Col)
		if !ok || pos >= len(selected) {
			return nil, fmt.Errorf("%w: sheet %d cleanup column %d is not read", ErrMapping, sheet, rule.Col)
		}
		cleaners = append(cleaners, cleanAt{pos, rule.Type})
	}
	extras := cfg.Extras()

rows:
	for i, vals := range cells {
		for _, k := range keys {
			if vals[k] == nil {
				continue rows
			}
		}
		for _, c := range cleaners {
			vals[c.pos] = clean(vals[c.pos], c.typ)
		}
		row := Row{Cells: vals}
		if len(extras) > 0 {
			src := raw[projected[i].origin]
			row.Extra = make(map[string]any, len(extras))
			for _, e := range extras {
				row.Extra[e.TargetName] = rawCell(src, e.SourceCol)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func columnName(alias string, idx int, header []string) string {
	if header == nil {
		return fmt.Sprintf("_%s_col_%d", alias, idx)
	}
	if idx < len(header) {
		if name := normalize.HeaderName(header[idx]); name != "" {
			return name
		}
	}
	return normalize.HeaderName(fmt.Sprintf("Unnamed: %d", idx))
}
