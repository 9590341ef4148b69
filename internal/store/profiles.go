package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"TalkToDataLoanPro/internal/ingest"
)

// DirProfiles reads mapping profiles from <Dir>/<id>.yaml (or .yml).
type DirProfiles struct {
	Dir string
}

func (d DirProfiles) Get(_ context.Context, id string) (*ingest.MappingProfile, error) {
	if d.Dir == "" || id == "" || id != filepath.Base(id) {
		return nil, ErrProfileNotFound
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(d.Dir, id+ext)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		p, err := ingest.LoadProfileYAML(path)
		if err != nil {
			return nil, err
		}
		if p.ID == "" {
			p.ID = id
		}
		return p, nil
	}
	return nil, ErrProfileNotFound
}

// ProfileChain asks each source in turn and returns the first profile found.
type ProfileChain []Profiles

func (c ProfileChain) Get(ctx context.Context, id string) (*ingest.MappingProfile, error) {
	for _, src := range c {
		p, err := src.Get(ctx, id)
		if errors.Is(err, ErrProfileNotFound) {
			continue
		}
		return p, err
	}
	return nil, ErrProfileNotFound
}
