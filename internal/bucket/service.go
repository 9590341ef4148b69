package bucket

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"TalkToDataLoanPro/internal/dataset"
)

// summaryWorkers bounds how many configurations aggregate at once.
const summaryWorkers = 4

// DatasetLookup finds the dataset a summary runs over.
type DatasetLookup interface {
	Get(ctx context.Context, id string) (*dataset.Dataset, error)
}

// Service produces bucket summaries.
type Service struct {
	Datasets   DatasetLookup
	Configs    Source
	Aggregator *Aggregator
}

// SummaryRequest selects configurations either by id or by summary type.
type SummaryRequest struct {
	DatasetID        string   `json:"-"`
	UserID           string   `json:"user_id"`
	ConfigIDs        []string `json:"config_ids"`
	ConfigTypes      []string `json:"config_types"`
	Filters          []Filter `json:"filters"`
	ShowEmptyBuckets bool     `json:"show_empty_buckets"`
}

// Summary is the report for one configuration.
type Summary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	SummaryType string   `json:"summary_type"`
	Buckets     []Bucket `json:"buckets"`
}

// Dataset validates the id and loads the dataset.
func (s *Service) Dataset(ctx context.Context, id string) (*dataset.Dataset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDataset, id)
	}
	ds, err := s.Datasets.Get(ctx, id)
	if errors.Is(err, dataset.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrDatasetNotFound, id)
	}
	return ds, err
}

// Effective lists the configurations that apply to a dataset for a user.
func (s *Service) Effective(ctx context.Context, datasetID, userID string) ([]Config, error) {
	ds, err := s.Dataset(ctx, datasetID)
	if err != nil {
		return nil, err
	}
	return Resolve(ctx, s.Configs, Request{DatasetID: ds.ID, UserID: userID, FileType: ds.FileType})
}

// MultipleSummaries runs every selected configuration. Explicit config ids
// take priority over summary types. Summaries keep the resolved order.
func (s *Service) MultipleSummaries(ctx context.Context, req SummaryRequest) ([]Summary, error) {
	ds, err := s.Dataset(ctx, req.DatasetID)
	if err != nil {
		return nil, err
	}

	var cfgs []Config
	switch {
	case len(req.ConfigIDs) > 0:
		cfgs, err = ResolveByIDs(ctx, s.Configs, req.ConfigIDs, req.UserID)
	case len(req.ConfigTypes) > 0:
		cfgs, err = Resolve(ctx, s.Configs, Request{
			DatasetID:    ds.ID,
			UserID:       req.UserID,
			FileType:     ds.FileType,
			SummaryTypes: req.ConfigTypes,
		})
	default:
		return nil, ErrNoConfigSelector
	}
	if err != nil {
		return nil, err
	}

	out := make([]Summary, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(summaryWorkers)
	for i := range cfgs {
		g.Go(func() error {
			sum, err := s.Summary(gctx, ds.ID, &cfgs[i], req.Filters, req.ShowEmptyBuckets)
			if err != nil {
				return err
			}
			out[i] = sum
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Summary aggregates one configuration and reconciles the result.
func (s *Service) Summary(ctx context.Context, datasetID string, cfg *Config, filters []Filter, showEmpty bool) (Summary, error) {
	rows, err := s.Aggregator.Aggregate(ctx, datasetID, cfg, filters)
	if err != nil {
		return Summary{}, err
	}
	buckets := Reconcile(rows, cfg.Rules, showEmpty)
	slog.Info("bucket summary", "dataset", datasetID, "config", cfg.ID, "field", cfg.TargetField, "groups", len(rows), "buckets", len(buckets))
	return Summary{
		ID:          cfg.ID,
		Name:        cfg.Name,
		SummaryType: cfg.SummaryType,
		Buckets:     buckets,
	}, nil
}
