package ingest

import (
	"strings"

	"TalkToDataLoanPro/internal/normalize"
	"TalkToDataLoanPro/internal/timeseries"
)

// Extra target names with one of these prefixes land in a month-keyed
// namespace: "dpd__apr_25" becomes additional_fields.dpd36m.apr_25.
var namespacePrefixes = []struct {
	prefix    string
	namespace string
}{
	{"dpd__", timeseries.NamespaceDPD},
	{timeseries.NamespaceDPD + ".", timeseries.NamespaceDPD},
	{"collection__", timeseries.NamespaceCollection},
	{timeseries.NamespaceCollection + ".", timeseries.NamespaceCollection},
}

// NestExtras builds the additional_fields document from a row's flat extra
// map. Namespaced values are read as numbers (null when unreadable); all
// other extras are kept as read.
func NestExtras(flat map[string]any) map[string]any {
	out := make(map[string]any, len(flat))
	for name, v := range flat {
		ns, key, ok := splitNamespace(name)
		if !ok {
			out[name] = v
			continue
		}
		m, _ := out[ns].(map[string]any)
		if m == nil {
			m = map[string]any{}
			out[ns] = m
		}
		if d, ok := normalize.CleanNumeric(v); ok {
			m[key] = d.InexactFloat64()
		} else {
			m[key] = nil
		}
	}
	return out
}

func splitNamespace(name string) (ns, key string, ok bool) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for _, p := range namespacePrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			key = strings.TrimPrefix(lower, p.prefix)
			if timeseries.MonthKeyPattern.MatchString(key) {
				return p.namespace, key, true
			}
		}
	}
	return "", "", false
}
