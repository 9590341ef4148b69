package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"TalkToDataLoanPro/internal/bucket"
	"TalkToDataLoanPro/internal/dataset"
)

// Datasets stores dataset rows.
type Datasets struct {
	DB      DB
	Dialect bucket.Dialect
	Schema  string
}

const datasetColumns = `id, user_id, name, COALESCE(description, ''), COALESCE(file_type, ''), status, COALESCE(total_records, 0), COALESCE(file_checksum, ''), created_at`

func (r *Datasets) table() string { return Qualify(r.Schema, "datasets") }

func (r *Datasets) q(query string) string { return Rebind(r.Dialect, query) }

func scanDataset(row interface{ Scan(...any) error }) (*dataset.Dataset, error) {
	var (
		ds      dataset.Dataset
		created Timestamp
	)
	if err := row.Scan(&ds.ID, &ds.UserID, &ds.Name, &ds.Description, &ds.FileType, &ds.Status, &ds.TotalRecords, &ds.FileChecksum, &created); err != nil {
		return nil, err
	}
	ds.CreatedAt = created.Time
	return &ds, nil
}

// Create inserts ds, assigning an id and creation time when missing.
func (r *Datasets) Create(ctx context.Context, ds *dataset.Dataset) error {
	if ds.ID == "" {
		ds.ID = uuid.NewString()
	}
	if ds.CreatedAt.IsZero() {
		ds.CreatedAt = time.Now().UTC()
	}
	if ds.Status == "" {
		ds.Status = dataset.StatusProcessing
	}
	query := r.q(`INSERT INTO ` + r.table() + ` (id, user_id, name, description, file_type, status, total_records, file_checksum, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.DB.ExecContext(ctx, query, ds.ID, ds.UserID, ds.Name, ds.Description, nullString(ds.FileType), ds.Status, ds.TotalRecords, nullString(ds.FileChecksum), ds.CreatedAt)
	if err != nil {
		return fmt.Errorf("create dataset: %w", err)
	}
	return nil
}

// Get loads one dataset.
func (r *Datasets) Get(ctx context.Context, id string) (*dataset.Dataset, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+datasetColumns+` FROM `+r.table()+` WHERE id = ?`), id)
	ds, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dataset.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset %s: %w", id, err)
	}
	return ds, nil
}

// List returns one page of a user's datasets, newest first, plus the total.
func (r *Datasets) List(ctx context.Context, userID string, limit, offset int) ([]dataset.Dataset, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM `+r.table()+` WHERE user_id = ?`), userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count datasets: %w", err)
	}
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+datasetColumns+` FROM `+r.table()+`
		WHERE user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`), userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list datasets: %w", err)
	}
	defer rows.Close()

	out := []dataset.Dataset{}
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *ds)
	}
	return out, total, rows.Err()
}

// ListByStatus returns every dataset in a status.
func (r *Datasets) ListByStatus(ctx context.Context, status string) ([]dataset.Dataset, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+datasetColumns+` FROM `+r.table()+` WHERE status = ? ORDER BY created_at`), status)
	if err != nil {
		return nil, fmt.Errorf("list datasets by status: %w", err)
	}
	defer rows.Close()

	var out []dataset.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ds)
	}
	return out, rows.Err()
}

// FindUploaded returns the user's uploaded dataset with this checksum, or
// nil when there is none.
func (r *Datasets) FindUploaded(ctx context.Context, userID, checksum string) (*dataset.Dataset, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+datasetColumns+` FROM `+r.table()+`
		WHERE user_id = ? AND file_checksum = ? AND status IN (?, ?) ORDER BY created_at DESC LIMIT 1`),
		userID, checksum, dataset.StatusUploaded, dataset.StatusCollectionFields)
	ds, err := scanDataset(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find dataset by checksum: %w", err)
	}
	return ds, nil
}

func (r *Datasets) update(ctx context.Context, id, set string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, r.q(`UPDATE `+r.table()+` SET `+set+` WHERE id = ?`), append(args, id)...)
	if err != nil {
		return fmt.Errorf("update dataset %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return dataset.ErrNotFound
	}
	return nil
}

// SetFileType sets the summary type used for global default configs.
func (r *Datasets) SetFileType(ctx context.Context, id, fileType string) error {
	return r.update(ctx, id, `file_type = ?`, fileType)
}

// SetStatus moves the dataset to status.
func (r *Datasets) SetStatus(ctx context.Context, id, status string) error {
	return r.update(ctx, id, `status = ?`, status)
}

// MarkUploaded records a successful load.
func (r *Datasets) MarkUploaded(ctx context.Context, id string, rows int64) error {
	return r.update(ctx, id, `status = ?, total_records = ?`, dataset.StatusUploaded, rows)
}

// MarkError records a failed load and appends the reason to the description.
func (r *Datasets) MarkError(ctx context.Context, id, reason string) error {
	ds, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	return r.update(ctx, id, `status = ?, description = ?`, dataset.StatusError, dataset.ErrorDescription(ds.Description, reason))
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
