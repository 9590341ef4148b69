// Package ingest turns an uploaded loan book workbook into canonical loan
// records following a mapping profile: sheets are read and joined, extra
// fields are collected, columns are mapped, collection metrics derived and
// the batch validated before it is bulk loaded.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Loader bulk-inserts rows for a dataset and reports how many rows the
// dataset gained.
type Loader interface {
	Load(ctx context.Context, datasetID string, columns []string, rows [][]any, truncate bool) (int64, error)
}

// DatasetTracker records the outcome of an upload on the dataset.
type DatasetTracker interface {
	MarkUploaded(ctx context.Context, datasetID string, rows int64) error
	MarkError(ctx context.Context, datasetID string, reason string) error
}

// Pipeline runs uploads end to end.
type Pipeline struct {
	Loader      Loader
	Datasets    DatasetTracker
	MaxEmptyRun int
}

// Request is one upload.
type Request struct {
	DatasetID string
	FileName  string
	Data      []byte
	Profile   *MappingProfile
	Truncate  bool
}

// LoadResult is what an upload reports back.
type LoadResult struct {
	Status   bool     `json:"status"`
	Inserted int64    `json:"inserted_count"`
	Total    int      `json:"total_count"`
	Message  string   `json:"message"`
	Missing  []string `json:"missing_sources,omitempty"`
}

// Run reads, maps, validates and loads one upload. Any failure marks the
// dataset errored and is returned wrapped in one of the package sentinels.
func (p *Pipeline) Run(ctx context.Context, req Request) (LoadResult, error) {
	start := time.Now()
	log.Printf("[INGEST] Start dataset=%s file=%s", req.DatasetID, req.FileName)

	res, err := p.run(ctx, req)
	if err != nil {
		res.Status = false
		res.Message = err.Error()
		log.Printf("[INGEST] Failed dataset=%s after %v: %v", req.DatasetID, time.Since(start), err)
		slog.Error("ingest failed", "dataset", req.DatasetID, "file", req.FileName, "error", err)
		if p.Datasets != nil {
			if markErr := p.Datasets.MarkError(context.WithoutCancel(ctx), req.DatasetID, err.Error()); markErr != nil {
				log.Printf("[INGEST] Could not mark dataset %s errored: %v", req.DatasetID, markErr)
			}
		}
		return res, err
	}

	if p.Datasets != nil {
		if err := p.Datasets.MarkUploaded(ctx, req.DatasetID, res.Inserted); err != nil {
			return res, fmt.Errorf("mark dataset uploaded: %w", err)
		}
	}
	log.Printf("[INGEST] Done dataset=%s inserted=%d in %v", req.DatasetID, res.Inserted, time.Since(start))
	slog.Info("ingest complete", "dataset", req.DatasetID, "inserted", res.Inserted, "total", res.Total, "elapsed_ms", time.Since(start).Milliseconds())
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req Request) (LoadResult, error) {
	if req.Profile == nil {
		return LoadResult{}, fmt.Errorf("%w: no mapping profile", ErrMapping)
	}
	wb, err := OpenWorkbook(req.FileName, req.Data)
	if err != nil {
		return LoadResult{}, err
	}
	defer wb.Close()

	combined, err := p.readTables(ctx, wb, req.Profile)
	if err != nil {
		return LoadResult{}, err
	}

	batch, err := MapTable(combined, req.Profile.ColumnMapping, req.DatasetID)
	if err != nil {
		return LoadResult{}, err
	}
	res := LoadResult{Total: len(batch.Records), Missing: batch.Missing}
	if len(batch.Missing) > 0 {
		log.Printf("[INGEST] dataset=%s mapped sources not found: %v", req.DatasetID, batch.Missing)
	}

	if err := Validate(batch); err != nil {
		return res, err
	}

	if p.Loader == nil {
		return res, fmt.Errorf("%w: no loader configured", ErrLoad)
	}
	inserted, err := p.Loader.Load(ctx, req.DatasetID, batch.Columns, batch.Rows(), req.Truncate)
	if err != nil {
		if errors.Is(err, ErrLoad) {
			return res, err
		}
		return res, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	res.Inserted = inserted
	if inserted != int64(res.Total) {
		return res, fmt.Errorf("%w: inserted %d of %d rows", ErrLoad, inserted, res.Total)
	}
	res.Status = true
	res.Message = fmt.Sprintf("Inserted %d rows", inserted)
	return res, nil
}

// readTables reads every configured sheet and joins them. Sheet grids are
// pulled from the workbook in order; projection runs concurrently.
func (p *Pipeline) readTables(ctx context.Context, wb Workbook, profile *MappingProfile) (*Table, error) {
	order := profile.SheetNumbers()
	grids := make(map[int][][]string, len(order))
	for _, n := range order {
		rows, err := wb.Rows(n)
		if err != nil {
			return nil, err
		}
		grids[n] = rows
	}

	tables := make([]*Table, len(order))
	g, _ := errgroup.WithContext(ctx)
	for i, n := range order {
		g.Go(func() error {
			t, err := ReadSheet(n, profile.AliasOf(n), grids[n], profile.Sheets[n], p.MaxEmptyRun)
			if err != nil {
				return err
			}
			tables[i] = t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byNumber := make(map[int]*Table, len(order))
	for i, n := range order {
		byNumber[n] = tables[i]
	}
	return JoinAll(byNumber, order, profile.Relations)
}
