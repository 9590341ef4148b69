package ingest

import (
	"fmt"
	"strings"

	"TalkToDataLoanPro/internal/normalize"
)

// JoinAll applies relations in declaration order. The first relation starts
// from its left sheet; every later one joins onto the running result. With
// no relations the table of the lowest numbered sheet is returned.
func JoinAll(tables map[int]*Table, order []int, relations []Relation) (*Table, error) {
	if len(relations) == 0 {
		if len(order) == 0 {
			return nil, fmt.Errorf("%w: no sheets to read", ErrMapping)
		}
		return tables[order[0]], nil
	}

	var combined *Table
	for i, rel := range relations {
		left := combined
		if left == nil {
			left = tables[rel.Left]
		}
		if left == nil || !left.HasSheet(rel.Left) {
			return nil, fmt.Errorf("%w: relation %d joins sheet %d before it is loaded", ErrMapping, i, rel.Left)
		}
		right := tables[rel.Right]
		if right == nil {
			return nil, fmt.Errorf("%w: relation %d refers to unread sheet %d", ErrMapping, i, rel.Right)
		}
		out, err := Join(left, right, rel)
		if err != nil {
			return nil, fmt.Errorf("relation %d: %w", i, err)
		}
		combined = out
	}
	return combined, nil
}

// Join combines two tables on one column each. Null keys never match.
// Right columns whose names are already taken get a _y suffix, except a
// right key that shares the left key's name, which is folded into it.
func Join(left, right *Table, rel Relation) (*Table, error) {
	leftName, ok := left.Sources[ColumnRef{Sheet: rel.Left, Index: int(rel.LeftCol)}]
	if !ok {
		return nil, fmt.Errorf("%w: sheet %d column %d is not read", ErrMapping, rel.Left, rel.LeftCol)
	}
	rightName, ok := right.Sources[ColumnRef{Sheet: rel.Right, Index: int(rel.RightCol)}]
	if !ok {
		return nil, fmt.Errorf("%w: sheet %d column %d is not read", ErrMapping, rel.Right, rel.RightCol)
	}
	li, ri := left.Index(leftName), right.Index(rightName)
	sharedKey := leftName == rightName

	out := &Table{
		Columns: append([]string(nil), left.Columns...),
		Sources: make(map[ColumnRef]string, len(left.Sources)+len(right.Sources)),
	}
	for ref, name := range left.Sources {
		out.Sources[ref] = name
	}
	taken := make(map[string]bool, len(out.Columns))
	for _, c := range out.Columns {
		taken[c] = true
	}
	renamed := make(map[string]string, len(right.Columns))
	keep := make([]int, 0, len(right.Columns))
	for j, c := range right.Columns {
		if sharedKey && j == ri {
			renamed[c] = leftName
			continue
		}
		name := c
		for taken[name] {
			name += "_y"
		}
		taken[name] = true
		renamed[c] = name
		keep = append(keep, j)
		out.Columns = append(out.Columns, name)
	}
	for ref, name := range right.Sources {
		out.Sources[ref] = renamed[name]
	}

	emit := func(l, r *Row) {
		cells := make([]any, 0, len(out.Columns))
		var lx, rx map[string]any
		if l != nil {
			cells = append(cells, l.Cells...)
			lx = l.Extra
		} else {
			cells = append(cells, make([]any, len(left.Columns))...)
			if sharedKey && r != nil {
				cells[li] = r.Cells[ri]
			}
		}
		for _, j := range keep {
			if r != nil {
				cells = append(cells, r.Cells[j])
			} else {
				cells = append(cells, nil)
			}
		}
		if r != nil {
			rx = r.Extra
		}
		out.Rows = append(out.Rows, Row{Cells: cells, Extra: mergeExtra(lx, rx)})
	}

	switch rel.Kind() {
	case JoinLeft, JoinInner, JoinOuter:
		index := indexRows(right, ri)
		matched := make([]bool, len(right.Rows))
		for i := range left.Rows {
			l := &left.Rows[i]
			key, ok := joinKey(l.Cells[li])
			hits := index[key]
			if !ok || len(hits) == 0 {
				if rel.Kind() != JoinInner {
					emit(l, nil)
				}
				continue
			}
			for _, j := range hits {
				matched[j] = true
				emit(l, &right.Rows[j])
			}
		}
		if rel.Kind() == JoinOuter {
			for j := range right.Rows {
				if !matched[j] {
					emit(nil, &right.Rows[j])
				}
			}
		}
	case JoinRight:
		index := indexRows(left, li)
		for j := range right.Rows {
			r := &right.Rows[j]
			key, ok := joinKey(r.Cells[ri])
			hits := index[key]
			if !ok || len(hits) == 0 {
				emit(nil, r)
				continue
			}
			for _, i := range hits {
				emit(&left.Rows[i], r)
			}
		}
	default:
		return nil, fmt.Errorf("%w: unsupported join %q", ErrMapping, rel.How)
	}
	return out, nil
}

func indexRows(t *Table, col int) map[string][]int {
	index := make(map[string][]int, len(t.Rows))
	for i, r := range t.Rows {
		if key, ok := joinKey(r.Cells[col]); ok {
			index[key] = append(index[key], i)
		}
	}
	return index
}

// joinKey compares keys by their text form so 1748.0 and "1748" match.
func joinKey(v any) (string, bool) {
	if v == nil {
		return "", false
	}
	s, ok := normalize.ToString(v)
	if !ok || s == "" {
		return "", false
	}
	if i := strings.IndexByte(s, '.'); i > 0 && strings.Trim(s[i+1:], "0") == "" && digitsOnly(s[:i]) {
		s = s[:i]
	}
	return s, true
}

func digitsOnly(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
