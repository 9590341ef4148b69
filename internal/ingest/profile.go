package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"TalkToDataLoanPro/internal/loan"
)

// DatasetSource is the pseudo source column that always feeds dataset_id.
const DatasetSource = "data_id"

// JoinKind is how a relation combines two sheets.
type JoinKind string

const (
	JoinLeft  JoinKind = "left"
	JoinInner JoinKind = "inner"
	JoinRight JoinKind = "right"
	JoinOuter JoinKind = "outer"
)

// CleanType is the coercion a cleanup rule applies to a column.
type CleanType string

const (
	CleanDate   CleanType = "dt"
	CleanInt    CleanType = "int"
	CleanFloat  CleanType = "float"
	CleanString CleanType = "string"
)

// MappingProfile is a reusable ingestion recipe. Sheets are keyed by their
// 1-based position in the workbook.
type MappingProfile struct {
	ID            string               `json:"id,omitempty" yaml:"id,omitempty"`
	Name          string               `json:"name,omitempty" yaml:"name,omitempty"`
	FileType      string               `json:"file_type,omitempty" yaml:"file_type,omitempty"`
	Sheets        map[int]*SheetConfig `json:"sheets" yaml:"sheets"`
	Relations     []Relation           `json:"relations,omitempty" yaml:"relations,omitempty"`
	ColumnMapping ColumnMapping        `json:"column_mapping" yaml:"column_mapping"`
}

// SheetConfig describes how one sheet is read.
type SheetConfig struct {
	Alias      string        `json:"alias" yaml:"alias"`
	HeaderRow  *int          `json:"header_row,omitempty" yaml:"header_row,omitempty"`
	SkipRows   int           `json:"skip_rows,omitempty" yaml:"skip_rows,omitempty"`
	ColsToRead ColumnSet     `json:"cols_to_read" yaml:"cols_to_read"`
	KeyColumns []int         `json:"key_columns,omitempty" yaml:"key_columns,omitempty"`
	Extra      []ExtraColumn `json:"extra,omitempty" yaml:"extra,omitempty"`
	Timeseries []ExtraColumn `json:"timeseries,omitempty" yaml:"timeseries,omitempty"`
	Clean      []CleanupRule `json:"clean_columns,omitempty" yaml:"clean_columns,omitempty"`
}

// Header returns the header row index, -1 for headerless sheets.
func (c *SheetConfig) Header() int {
	if c.HeaderRow == nil || *c.HeaderRow < 0 {
		return -1
	}
	return *c.HeaderRow
}

// Headerless reports whether column names are synthesized from positions.
func (c *SheetConfig) Headerless() bool { return c.Header() < 0 }

// Extras is the extra and timeseries rules together.
func (c *SheetConfig) Extras() []ExtraColumn {
	out := make([]ExtraColumn, 0, len(c.Extra)+len(c.Timeseries))
	out = append(out, c.Extra...)
	return append(out, c.Timeseries...)
}

// Relation joins two sheets on raw column indices.
type Relation struct {
	Left     int      `json:"left" yaml:"left"`
	Right    int      `json:"right" yaml:"right"`
	LeftCol  FlexInt  `json:"left_col" yaml:"left_col"`
	RightCol FlexInt  `json:"right_col" yaml:"right_col"`
	How      JoinKind `json:"how,omitempty" yaml:"how,omitempty"`
}

// Kind defaults to a left join.
func (r Relation) Kind() JoinKind {
	if r.How == "" {
		return JoinLeft
	}
	return JoinKind(strings.ToLower(string(r.How)))
}

// ColumnMapping maps a source column to one or more canonical columns.
type ColumnMapping map[string]Targets

// Targets accepts either a single column name or a list.
type Targets []string

// ColumnSet is the cols_to_read setting: "all", "0,2,5" or [0, 2, 5].
type ColumnSet struct {
	All     bool
	Indices []int
}

// AllColumns is the default column set.
func AllColumns() ColumnSet { return ColumnSet{All: true} }

// Columns builds an explicit column set.
func Columns(idx ...int) ColumnSet { return ColumnSet{Indices: idx} }

// IsAll reports whether every column is read. An unset column set reads
// everything.
func (s ColumnSet) IsAll() bool { return s.All || len(s.Indices) == 0 }

// Position returns where raw index idx sits within the subset.
func (s ColumnSet) Position(idx int) (int, bool) {
	if s.IsAll() {
		return idx, idx >= 0
	}
	for i, v := range s.Indices {
		if v == idx {
			return i, true
		}
	}
	return 0, false
}

// ExtraColumn copies one raw cell into the row's additional fields.
type ExtraColumn struct {
	SourceCol  int    `json:"source_col" yaml:"source_col"`
	TargetName string `json:"target_name" yaml:"target_name"`
}

// CleanupRule coerces the column at raw index Col.
type CleanupRule struct {
	Col  int       `json:"col" yaml:"col"`
	Type CleanType `json:"type" yaml:"type"`
}

// FlexInt reads an int written either as a number or as a numeric string.
type FlexInt int

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// ParseProfileJSON decodes a profile stored as JSON.
func ParseProfileJSON(data []byte) (*MappingProfile, error) {
	var p MappingProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode profile: %v", ErrMapping, err)
	}
	return &p, p.Prepare()
}

// LoadProfileYAML reads a profile file.
func LoadProfileYAML(path string) (*MappingProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p MappingProfile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: decode profile %s: %v", ErrMapping, path, err)
	}
	return &p, p.Prepare()
}

// SheetNumbers returns configured sheet numbers in ascending order.
func (p *MappingProfile) SheetNumbers() []int {
	out := make([]int, 0, len(p.Sheets))
	for n := range p.Sheets {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

// AliasOf returns the sheet's alias, defaulting to "Sheet{n}".
func (p *MappingProfile) AliasOf(sheet int) string {
	if cfg, ok := p.Sheets[sheet]; ok && cfg.Alias != "" {
		return cfg.Alias
	}
	return fmt.Sprintf("Sheet%d", sheet)
}

// Prepare validates the profile and injects the dataset identifier mapping.
func (p *MappingProfile) Prepare() error {
	if len(p.Sheets) == 0 {
		return fmt.Errorf("%w: profile has no sheets", ErrMapping)
	}
	for n, cfg := range p.Sheets {
		if n < 1 {
			return fmt.Errorf("%w: sheet numbers start at 1, got %d", ErrMapping, n)
		}
		if cfg == nil {
			return fmt.Errorf("%w: sheet %d has no configuration", ErrMapping, n)
		}
		if cfg.SkipRows < 0 {
			return fmt.Errorf("%w: sheet %d skip_rows is negative", ErrMapping, n)
		}
		for _, rule := range cfg.Clean {
			switch rule.Type {
			case CleanDate, CleanInt, CleanFloat, CleanString:
			default:
				return fmt.Errorf("%w: sheet %d cleanup type %q", ErrMapping, n, rule.Type)
			}
		}
	}
	for i, rel := range p.Relations {
		if _, ok := p.Sheets[rel.Left]; !ok {
			return fmt.Errorf("%w: relation %d refers to unknown sheet %d", ErrMapping, i, rel.Left)
		}
		if _, ok := p.Sheets[rel.Right]; !ok {
			return fmt.Errorf("%w: relation %d refers to unknown sheet %d", ErrMapping, i, rel.Right)
		}
		switch rel.Kind() {
		case JoinLeft, JoinInner, JoinRight, JoinOuter:
		default:
			return fmt.Errorf("%w: relation %d has unsupported join %q", ErrMapping, i, rel.How)
		}
	}

	if len(p.ColumnMapping) == 0 {
		return fmt.Errorf("%w: profile has no column mapping", ErrMapping)
	}
	targetsSeen := map[string]string{}
	for src, targets := range p.ColumnMapping {
		if len(targets) == 0 {
			return fmt.Errorf("%w: source %q has no target column", ErrMapping, src)
		}
		for _, t := range targets {
			if !loan.IsCanonical(t) {
				return fmt.Errorf("%w: source %q maps to unknown column %q", ErrMapping, src, t)
			}
			if t == loan.ColDatasetID && src != DatasetSource {
				return fmt.Errorf("%w: only %s may target %s", ErrMapping, DatasetSource, loan.ColDatasetID)
			}
			if isDerived(t) {
				return fmt.Errorf("%w: %s is computed during ingestion and cannot be mapped", ErrMapping, t)
			}
			if prev, dup := targetsSeen[t]; dup && prev != src {
				return fmt.Errorf("%w: column %s is fed by both %q and %q", ErrMapping, t, prev, src)
			}
			targetsSeen[t] = src
		}
	}
	p.ColumnMapping[DatasetSource] = Targets{loan.ColDatasetID}
	return nil
}

func isDerived(col string) bool {
	for _, d := range loan.DerivedColumns {
		if d == col {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Flexible decoding: the same shapes are accepted from JSON and YAML.
// ---------------------------------------------------------------------------

func (t *Targets) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return t.fromGeneric(v)
}

func (t *Targets) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	return t.fromGeneric(v)
}

func (t *Targets) fromGeneric(v any) error {
	switch x := v.(type) {
	case string:
		*t = Targets{strings.TrimSpace(x)}
	case []any:
		out := make(Targets, 0, len(x))
		for _, e := range x {
			s, ok := e.(string)
			if !ok {
				return fmt.Errorf("target column must be a string, got %T", e)
			}
			out = append(out, strings.TrimSpace(s))
		}
		*t = out
	default:
		return fmt.Errorf("targets must be a string or list, got %T", v)
	}
	return nil
}

func (s *ColumnSet) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return s.fromGeneric(v)
}

func (s *ColumnSet) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	return s.fromGeneric(v)
}

func (s ColumnSet) MarshalJSON() ([]byte, error) {
	if s.All {
		return json.Marshal("all")
	}
	return json.Marshal(s.Indices)
}

func (s *ColumnSet) fromGeneric(v any) error {
	switch x := v.(type) {
	case nil:
		*s = AllColumns()
	case string:
		x = strings.TrimSpace(x)
		if x == "" || strings.EqualFold(x, "all") {
			*s = AllColumns()
			return nil
		}
		var idx []int
		for _, part := range strings.Split(x, ",") {
			part = strings.TrimSpace(part)
			n, err := strconv.Atoi(part)
			if err != nil {
				continue
			}
			idx = append(idx, n)
		}
		*s = ColumnSet{Indices: idx}
	case []any:
		idx := make([]int, 0, len(x))
		for _, e := range x {
			n, err := asInt(e)
			if err != nil {
				return fmt.Errorf("cols_to_read: %w", err)
			}
			idx = append(idx, n)
		}
		*s = ColumnSet{Indices: idx}
	default:
		n, err := asInt(v)
		if err != nil {
			return fmt.Errorf("cols_to_read: %w", err)
		}
		*s = ColumnSet{Indices: []int{n}}
	}
	return nil
}

func (e *ExtraColumn) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return e.fromGeneric(v)
}

func (e *ExtraColumn) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	return e.fromGeneric(v)
}

// fromGeneric accepts {"source_col": 4, "target_name": "x"} and the compact
// {"4": "x"} form.
func (e *ExtraColumn) fromGeneric(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("extra column must be an object, got %T", v)
	}
	if src, ok := m["source_col"]; ok {
		n, err := asInt(src)
		if err != nil {
			return fmt.Errorf("extra source_col: %w", err)
		}
		name, _ := m["target_name"].(string)
		if name == "" {
			return fmt.Errorf("extra column %d has no target_name", n)
		}
		*e = ExtraColumn{SourceCol: n, TargetName: name}
		return nil
	}
	if len(m) != 1 {
		return fmt.Errorf("compact extra column must have exactly one entry")
	}
	for k, val := range m {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return fmt.Errorf("extra column index %q: %w", k, err)
		}
		name, _ := val.(string)
		if name == "" {
			return fmt.Errorf("extra column %d has no target name", n)
		}
		*e = ExtraColumn{SourceCol: n, TargetName: name}
	}
	return nil
}

func (r *CleanupRule) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return r.fromGeneric(v)
}

func (r *CleanupRule) UnmarshalYAML(n *yaml.Node) error {
	var v any
	if err := n.Decode(&v); err != nil {
		return err
	}
	return r.fromGeneric(v)
}

// fromGeneric accepts {"col": 7, "type": "dt"} and the compact {"7": "dt"}.
func (r *CleanupRule) fromGeneric(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("cleanup rule must be an object, got %T", v)
	}
	if col, ok := m["col"]; ok {
		n, err := asInt(col)
		if err != nil {
			return fmt.Errorf("cleanup col: %w", err)
		}
		typ, _ := m["type"].(string)
		*r = CleanupRule{Col: n, Type: CleanType(typ)}
		return nil
	}
	if len(m) != 1 {
		return fmt.Errorf("compact cleanup rule must have exactly one entry")
	}
	for k, val := range m {
		n, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return fmt.Errorf("cleanup column %q: %w", k, err)
		}
		typ, _ := val.(string)
		*r = CleanupRule{Col: n, Type: CleanType(typ)}
	}
	return nil
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	n, err := asInt(v)
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

func (f *FlexInt) UnmarshalYAML(node *yaml.Node) error {
	var v any
	if err := node.Decode(&v); err != nil {
		return err
	}
	n, err := asInt(v)
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

func asInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != float64(int(x)) {
			return 0, fmt.Errorf("%v is not a whole number", x)
		}
		return int(x), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, fmt.Errorf("invalid index %q", x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("invalid index %v (%T)", v, v)
}
