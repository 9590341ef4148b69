package bucket

import (
	"context"
	"sort"
)

// Source loads stored configurations.
type Source interface {
	// DatasetConfigs returns every configuration scoped to the dataset.
	DatasetConfigs(ctx context.Context, datasetID string) ([]Config, error)
	// GlobalDefaults returns default configurations without a dataset whose
	// summary type is one of summaryTypes.
	GlobalDefaults(ctx context.Context, summaryTypes []string) ([]Config, error)
	// ConfigsByIDs returns the listed configurations the user owns or that
	// are marked default.
	ConfigsByIDs(ctx context.Context, ids []string, userID string) ([]Config, error)
}

// Request selects the configurations that apply to a summary.
type Request struct {
	DatasetID string
	UserID    string
	// FileType is the dataset's summary type, empty for none.
	FileType     string
	TargetFields []string
	SummaryTypes []string
}

// Resolve returns at most one configuration per target field. For each
// field the first non-empty tier wins:
//
//	A  dataset configs owned by the user
//	B  dataset configs marked default
//	C  the global default for the summary type
//
// The summary type is the dataset file type unless SummaryTypes are given,
// which then also restrict tiers A and B. Within a tier the lowest
// sort_order wins. The result is ordered by sort_order (unset last), then
// name, then id.
func Resolve(ctx context.Context, src Source, req Request) ([]Config, error) {
	types := req.SummaryTypes
	if len(types) == 0 {
		ft := req.FileType
		if ft == "" {
			ft = BlankSummaryType
		}
		types = []string{ft}
	}
	typeOK := func(c Config) bool {
		if len(req.SummaryTypes) == 0 {
			return true
		}
		for _, t := range req.SummaryTypes {
			if c.SummaryType == t {
				return true
			}
		}
		return false
	}

	dataset, err := src.DatasetConfigs(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}
	globals, err := src.GlobalDefaults(ctx, types)
	if err != nil {
		return nil, err
	}

	grouped := map[string][]Config{}
	for _, c := range dataset {
		if typeOK(c) {
			grouped[c.TargetField] = append(grouped[c.TargetField], c)
		}
	}
	globalByField := map[string][]Config{}
	for _, c := range globals {
		if c.DatasetID == nil && c.IsDefault {
			globalByField[c.TargetField] = append(globalByField[c.TargetField], c)
		}
	}

	var out []Config
	for field, cfgs := range grouped {
		if c, ok := first(cfgs, func(c Config) bool { return c.UserID == req.UserID }); ok {
			out = append(out, c)
			continue
		}
		if c, ok := first(cfgs, func(c Config) bool { return c.IsDefault }); ok {
			out = append(out, c)
			continue
		}
		if c, ok := first(globalByField[field], nil); ok {
			out = append(out, c)
		}
	}
	for field, cfgs := range globalByField {
		if _, seen := grouped[field]; seen {
			continue
		}
		if c, ok := first(cfgs, nil); ok {
			out = append(out, c)
		}
	}

	if len(req.TargetFields) > 0 {
		want := make(map[string]bool, len(req.TargetFields))
		for _, f := range req.TargetFields {
			want[f] = true
		}
		filtered := out[:0]
		for _, c := range out {
			if want[c.TargetField] {
				filtered = append(filtered, c)
			}
		}
		out = filtered
	}
	SortConfigs(out)
	return out, nil
}

// ResolveByIDs loads explicitly chosen configurations in display order.
func ResolveByIDs(ctx context.Context, src Source, ids []string, userID string) ([]Config, error) {
	out, err := src.ConfigsByIDs(ctx, ids, userID)
	if err != nil {
		return nil, err
	}
	SortConfigs(out)
	return out, nil
}

// first returns the best-ordered config matching keep (any when nil).
func first(cfgs []Config, keep func(Config) bool) (Config, bool) {
	var match []Config
	for _, c := range cfgs {
		if keep == nil || keep(c) {
			match = append(match, c)
		}
	}
	if len(match) == 0 {
		return Config{}, false
	}
	SortConfigs(match)
	return match[0], true
}

// SortConfigs orders by sort_order with unset last, then name, then id.
func SortConfigs(cfgs []Config) {
	sort.SliceStable(cfgs, func(i, j int) bool {
		a, b := cfgs[i], cfgs[j]
		switch {
		case a.SortOrder == nil && b.SortOrder != nil:
			return false
		case a.SortOrder != nil && b.SortOrder == nil:
			return true
		case a.SortOrder != nil && *a.SortOrder != *b.SortOrder:
			return *a.SortOrder < *b.SortOrder
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}
