package loanbook

import (
	"time"

	"TalkToDataLoanPro/api/buckets"
	"TalkToDataLoanPro/api/datasets"
	"TalkToDataLoanPro/internal/bucket"
	"TalkToDataLoanPro/internal/ingest"
	"TalkToDataLoanPro/internal/store"
)

// Settings are the request-path knobs taken from configuration.
type Settings struct {
	MaxUploadMB    int
	MaxEmptyRows   int
	ConfigCacheTTL time.Duration
	Buckets        bucket.Options
}

// NewDeps wires the handler groups to one store. profiles overrides
// st.Profiles when set, so file-based profiles can be chained in front of
// the database.
func NewDeps(st *store.Store, profiles store.Profiles, s Settings, health func() map[string]string) Deps {
	if profiles == nil {
		profiles = st.Profiles
	}
	var src bucket.Source = st.Configs
	var cached *bucket.CachedSource
	if s.ConfigCacheTTL > 0 {
		cached = bucket.NewCachedSource(st.Configs, s.ConfigCacheTTL)
		src = cached
	}

	ds := &datasets.Deps{
		Datasets: st.Datasets,
		Records:  st.Records,
		Profiles: profiles,
		Pipeline: &ingest.Pipeline{
			Loader:      st.Loader,
			Datasets:    st.Datasets,
			MaxEmptyRun: s.MaxEmptyRows,
		},
		MaxUploadMB: s.MaxUploadMB,
	}
	if w, ok := st.Profiles.(datasets.ProfileWriter); ok {
		ds.ProfileWriter = w
	}
	if s.ConfigCacheTTL > 0 {
		ds.Fields = datasets.NewFieldsCache(s.ConfigCacheTTL)
	}

	return Deps{
		Datasets: ds,
		Buckets: &buckets.Deps{
			Service: &bucket.Service{
				Datasets: st.Datasets,
				Configs:  src,
				Aggregator: &bucket.Aggregator{
					DB:      st.DB,
					Dialect: st.Dialect,
					Table:   st.Table,
					Filters: bucket.LenientFilters,
					Options: s.Buckets,
				},
			},
			Configs: st.Configs,
			Cache:   cached,
		},
		Health: health,
	}
}
