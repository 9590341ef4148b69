package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/ingest"
	"TalkToDataLoanPro/internal/loan"
	"TalkToDataLoanPro/internal/normalize"
	"TalkToDataLoanPro/internal/store"
)

// Loader inserts mapped rows inside one transaction with a prepared INSERT.
type Loader struct {
	DB *sql.DB
}

var _ ingest.Loader = (*Loader)(nil)

// Load writes rows for a dataset and returns how many rows were added. With
// truncate the dataset's existing rows are deleted first.
func (l *Loader) Load(ctx context.Context, datasetID string, columns []string, rows [][]any, truncate bool) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: load: columns must not be empty")
	}
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	if truncate {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+recordsTable+` WHERE dataset_id = ?`, datasetID); err != nil {
			return 0, fmt.Errorf("sqlite: truncate dataset: %w", err)
		}
	}
	before, err := countRows(ctx, tx, datasetID)
	if err != nil {
		return 0, err
	}

	cols := append([]string{"id"}, columns...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", recordsTable, strings.Join(cols, ", "), placeholders))
	if err != nil {
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("sqlite: row %d has %d values for %d columns", i, len(row), len(columns))
		}
		args[0] = uuid.NewString()
		for j, v := range row {
			if args[j+1], err = loan.TextValue(v); err != nil {
				return 0, fmt.Errorf("sqlite: row %d column %s: %w", i, columns[j], err)
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
	}

	after, err := countRows(ctx, tx, datasetID)
	if err != nil {
		return 0, err
	}
	if n := after - before; n != int64(len(rows)) {
		return n, fmt.Errorf("sqlite: %w: inserted %d of %d rows", ingest.ErrLoad, n, len(rows))
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return after - before, nil
}

func countRows(ctx context.Context, tx *sql.Tx, datasetID string) (int64, error) {
	var n int64
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+recordsTable+` WHERE dataset_id = ?`, datasetID).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqlite: count rows: %w", err)
	}
	return n, nil
}

// Records reads and patches loan_records.
type Records struct {
	DB *sql.DB
}

var _ store.Records = (*Records)(nil)

// ForDataset streams every record of the dataset to fn.
func (r *Records) ForDataset(ctx context.Context, datasetID string, fn func(*loan.Record) error) error {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+strings.Join(store.RecordColumns, ", ")+` FROM `+recordsTable+` WHERE dataset_id = ? ORDER BY id`, datasetID)
	if err != nil {
		return fmt.Errorf("sqlite: read records: %w", err)
	}
	// collected first so fn may write through the single connection
	var records []*loan.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			rows.Close()
			return err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()
	for _, rec := range records {
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

func scanRecord(rows *sql.Rows) (*loan.Record, error) {
	var (
		rec        loan.Record
		agreement  sql.NullString
		npa, woff  any
		additional sql.NullString
	)
	err := rows.Scan(&rec.ID, &rec.DatasetID, &agreement, &rec.PrincipalOS, &npa, &woff,
		&rec.M3Collection, &rec.M6Collection, &rec.M12Collection, &rec.TotalCollection,
		&rec.PostNPACollection, &rec.PostWOffCollection, &additional)
	if err != nil {
		return nil, fmt.Errorf("sqlite: scan record: %w", err)
	}
	rec.AgreementNo = agreement.String
	if t, ok := normalize.NormalizeDate(npa); ok {
		rec.DateOfNPA = &t
	}
	if t, ok := normalize.NormalizeDate(woff); ok {
		rec.DateOfWOff = &t
	}
	if additional.Valid && additional.String != "" {
		if err := json.Unmarshal([]byte(additional.String), &rec.Additional); err != nil {
			return nil, fmt.Errorf("sqlite: record %s additional fields: %w", rec.ID, err)
		}
	}
	return &rec, nil
}

// ApplyCollections writes the updates in one transaction and returns how
// many records changed.
func (r *Records) ApplyCollections(ctx context.Context, updates []loan.CollectionUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	defer tx.Rollback()

	n := 0
	for _, u := range updates {
		set, args := store.CollectionSet(u, func(int) string { return "?" }, func(d decimal.NullDecimal) any {
			if !d.Valid {
				return nil
			}
			return d.Decimal.String()
		})
		if set == "" {
			continue
		}
		res, err := tx.ExecContext(ctx, `UPDATE `+recordsTable+` SET `+set+` WHERE id = ?`, append(args, u.RecordID)...)
		if err != nil {
			return 0, fmt.Errorf("sqlite: update record %s: %w", u.RecordID, err)
		}
		if c, err := res.RowsAffected(); err == nil && c > 0 {
			n++
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return n, nil
}

// FirstAdditionalFields returns the additional fields of the dataset's
// first record that has any.
func (r *Records) FirstAdditionalFields(ctx context.Context, datasetID string) (map[string]any, error) {
	var raw sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT additional_fields FROM `+recordsTable+`
		WHERE dataset_id = ? AND additional_fields IS NOT NULL ORDER BY rowid LIMIT 1`, datasetID).Scan(&raw)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: additional fields: %w", err)
	}
	if !raw.Valid {
		return map[string]any{}, nil
	}
	out := map[string]any{}
	if err := json.Unmarshal([]byte(raw.String), &out); err != nil {
		return nil, fmt.Errorf("sqlite: additional fields: %w", err)
	}
	return out, nil
}
