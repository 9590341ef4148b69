package bucket

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
)

// CachedSource keeps dataset and global-default lookups in memory. Writers
// must call Invalidate after changing a configuration.
type CachedSource struct {
	Source
	c *cache.Cache
}

// NewCachedSource wraps src with a ttl cache.
func NewCachedSource(src Source, ttl time.Duration) *CachedSource {
	return &CachedSource{Source: src, c: cache.New(ttl, 2*ttl)}
}

func (s *CachedSource) DatasetConfigs(ctx context.Context, datasetID string) ([]Config, error) {
	key := "ds:" + datasetID
	if v, ok := s.c.Get(key); ok {
		return clone(v.([]Config)), nil
	}
	cfgs, err := s.Source.DatasetConfigs(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	s.c.SetDefault(key, clone(cfgs))
	return cfgs, nil
}

func (s *CachedSource) GlobalDefaults(ctx context.Context, summaryTypes []string) ([]Config, error) {
	types := append([]string(nil), summaryTypes...)
	sort.Strings(types)
	key := "gd:" + strings.Join(types, "\x00")
	if v, ok := s.c.Get(key); ok {
		return clone(v.([]Config)), nil
	}
	cfgs, err := s.Source.GlobalDefaults(ctx, summaryTypes)
	if err != nil {
		return nil, err
	}
	s.c.SetDefault(key, clone(cfgs))
	return cfgs, nil
}

// Invalidate drops cached lookups affected by a write to a configuration
// scoped to datasetID, or everything for a global configuration.
func (s *CachedSource) Invalidate(datasetID *string) {
	if datasetID == nil {
		s.c.Flush()
		return
	}
	s.c.Delete("ds:" + *datasetID)
}

func clone(cfgs []Config) []Config {
	return append([]Config(nil), cfgs...)
}
