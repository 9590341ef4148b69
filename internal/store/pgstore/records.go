package pgstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/ingest"
	"TalkToDataLoanPro/internal/loan"
	"TalkToDataLoanPro/internal/store"
	"TalkToDataLoanPro/internal/store/sqlrepo"
)

// Loader bulk loads mapped rows with COPY.
type Loader struct {
	Pool   *pgxpool.Pool
	Schema string
}

var _ ingest.Loader = (*Loader)(nil)

// Load copies rows into loan_records inside one transaction and returns the
// growth of the dataset's row count. With truncate the dataset's existing
// rows are deleted first.
func (l *Loader) Load(ctx context.Context, datasetID string, columns []string, rows [][]any, truncate bool) (int64, error) {
	table := sqlrepo.Qualify(l.Schema, recordsTable)
	tx, err := l.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if truncate {
		if _, err := tx.Exec(ctx, `DELETE FROM `+table+` WHERE dataset_id = $1`, datasetID); err != nil {
			return 0, fmt.Errorf("truncate dataset: %w", err)
		}
	}
	var before, after int64
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE dataset_id = $1`, datasetID).Scan(&before); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}

	copied, err := tx.CopyFrom(ctx, l.identifier(), columns, pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		out := make([]any, len(rows[i]))
		for j, v := range rows[i] {
			out[j] = pgValue(v)
		}
		return out, nil
	}))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Detail != "" {
			return 0, fmt.Errorf("copy into %s: %s (%s)", table, pgErr.Detail, pgErr.SQLState())
		}
		return 0, fmt.Errorf("copy into %s: %w", table, err)
	}
	log.Printf("[LOADER] copied %d rows into %s for dataset %s", copied, table, datasetID)

	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM `+table+` WHERE dataset_id = $1`, datasetID).Scan(&after); err != nil {
		return 0, fmt.Errorf("count rows: %w", err)
	}
	// A short count rolls the whole batch back.
	if n := after - before; n != int64(len(rows)) {
		return n, fmt.Errorf("%w: inserted %d of %d rows", ingest.ErrLoad, n, len(rows))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return after - before, nil
}

func (l *Loader) identifier() pgx.Identifier {
	if l.Schema == "" {
		return pgx.Identifier{recordsTable}
	}
	return pgx.Identifier{l.Schema, recordsTable}
}

// pgValue hands decimals to pgx as numerics; other coerced values encode
// natively.
func pgValue(v any) any {
	switch t := v.(type) {
	case decimal.Decimal:
		return toNumeric(t)
	case decimal.NullDecimal:
		if !t.Valid {
			return nil
		}
		return toNumeric(t.Decimal)
	}
	return v
}

func toNumeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

func fromNumeric(n pgtype.Numeric) decimal.NullDecimal {
	if !n.Valid || n.NaN || n.InfinityModifier != pgtype.Finite || n.Int == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromBigInt(new(big.Int).Set(n.Int), n.Exp))
}

// Records reads and patches loan_records through the pool.
type Records struct {
	Pool   *pgxpool.Pool
	Schema string
}

var _ store.Records = (*Records)(nil)

func (r *Records) table() string { return sqlrepo.Qualify(r.Schema, recordsTable) }

// ForDataset streams every record of the dataset to fn.
func (r *Records) ForDataset(ctx context.Context, datasetID string, fn func(*loan.Record) error) error {
	cols := make([]string, len(store.RecordColumns))
	copy(cols, store.RecordColumns)
	cols[0], cols[1] = "id::text", loan.ColDatasetID+"::text"

	rows, err := r.Pool.Query(ctx, `SELECT `+strings.Join(cols, ", ")+` FROM `+r.table()+` WHERE dataset_id = $1 ORDER BY id`, datasetID)
	if err != nil {
		return fmt.Errorf("read records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec                               loan.Record
			agreement                         *string
			pos, m3, m6, m12, total, npa, wof pgtype.Numeric
		)
		err := rows.Scan(&rec.ID, &rec.DatasetID, &agreement, &pos, &rec.DateOfNPA, &rec.DateOfWOff,
			&m3, &m6, &m12, &total, &npa, &wof, &rec.Additional)
		if err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		if agreement != nil {
			rec.AgreementNo = *agreement
		}
		rec.PrincipalOS = fromNumeric(pos)
		rec.M3Collection = fromNumeric(m3)
		rec.M6Collection = fromNumeric(m6)
		rec.M12Collection = fromNumeric(m12)
		rec.TotalCollection = fromNumeric(total)
		rec.PostNPACollection = fromNumeric(npa)
		rec.PostWOffCollection = fromNumeric(wof)
		if err := fn(&rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// ApplyCollections sends every update in one batch inside a transaction.
func (r *Records) ApplyCollections(ctx context.Context, updates []loan.CollectionUpdate) (int, error) {
	if len(updates) == 0 {
		return 0, nil
	}
	start := time.Now()
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	queued := 0
	for _, u := range updates {
		set, args := store.CollectionSet(u, func(n int) string { return "$" + strconv.Itoa(n) }, func(d decimal.NullDecimal) any {
			return pgValue(d)
		})
		if set == "" {
			continue
		}
		args = append(args, u.RecordID)
		batch.Queue(`UPDATE `+r.table()+` SET `+set+` WHERE id = $`+strconv.Itoa(len(args)), args...)
		queued++
	}

	br := tx.SendBatch(ctx, batch)
	n := 0
	for i := 0; i < queued; i++ {
		tag, err := br.Exec()
		if err != nil {
			br.Close()
			return 0, fmt.Errorf("update collections: %w", err)
		}
		if tag.RowsAffected() > 0 {
			n++
		}
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("update collections: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	log.Printf("[COLLECTIONS] batch of %d updates applied in %v", queued, time.Since(start))
	return n, nil
}

// FirstAdditionalFields returns the additional fields of the dataset's
// first record that has any.
func (r *Records) FirstAdditionalFields(ctx context.Context, datasetID string) (map[string]any, error) {
	var out map[string]any
	err := r.Pool.QueryRow(ctx, `SELECT additional_fields FROM `+r.table()+`
		WHERE dataset_id = $1 AND additional_fields IS NOT NULL LIMIT 1`, datasetID).Scan(&out)
	if errors.Is(err, pgx.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("additional fields: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}
