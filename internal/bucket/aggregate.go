package bucket

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
)

// Querier is the part of *sql.DB the aggregator needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// GroupRow is one grouped result. Label is nil for the group of values that
// got no label (nulls in passthrough mode, unmatched values otherwise).
type GroupRow struct {
	Label    *string
	Count    int64
	POS      decimal.Decimal
	PostNPA  decimal.Decimal
	PostWOff decimal.Decimal
	M6       decimal.Decimal
	M12      decimal.Decimal
	Total    decimal.Decimal
}

// Aggregator groups a dataset's loan records by a compiled bucket case.
type Aggregator struct {
	DB      Querier
	Dialect Dialect
	// Table defaults to loan_records; set a schema-qualified name if needed.
	Table   string
	Filters FilterPolicy
	Options Options
}

// Aggregate runs one configuration over the filtered records of a dataset.
func (a *Aggregator) Aggregate(ctx context.Context, datasetID string, cfg *Config, filters []Filter) ([]GroupRow, error) {
	start := time.Now()
	stmt, args, err := a.Statement(datasetID, cfg, filters)
	if err != nil {
		return nil, err
	}

	rows, err := a.DB.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("bucket summary %s: %w", cfg.Name, err)
	}
	defer rows.Close()

	var out []GroupRow
	for rows.Next() {
		var (
			label                          sql.NullString
			count                          int64
			pos, npa, woff, m6, m12, total decimal.NullDecimal
		)
		if err := rows.Scan(&label, &count, &pos, &npa, &woff, &m6, &m12, &total); err != nil {
			return nil, fmt.Errorf("bucket summary %s: %w", cfg.Name, err)
		}
		g := GroupRow{
			Count:    count,
			POS:      pos.Decimal,
			PostNPA:  npa.Decimal,
			PostWOff: woff.Decimal,
			M6:       m6.Decimal,
			M12:      m12.Decimal,
			Total:    total.Decimal,
		}
		if label.Valid {
			s := label.String
			g.Label = &s
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	log.Printf("[BUCKET] %s over %s: %d groups in %v", cfg.Name, datasetID, len(out), time.Since(start))
	return out, nil
}

// Statement renders the grouped query for cfg.
func (a *Aggregator) Statement(datasetID string, cfg *Config, filters []Filter) (string, []any, error) {
	if len(cfg.Rules) == 0 {
		return "", nil, fmt.Errorf("%w: config %s has no rules", ErrInvalidRules, cfg.Name)
	}
	c := Compile(cfg.Rules, a.Options)
	col, err := columnExpr(a.Dialect, cfg.TargetField, cfg.TargetFieldIsJSON, c.Numeric)
	if err != nil {
		return "", nil, err
	}

	q := &query{d: a.Dialect}
	where := "dataset_id = " + q.arg(datasetID)
	extra, err := renderFilters(q, filters, a.Filters)
	if err != nil {
		return "", nil, err
	}
	if extra != "" {
		where += " AND " + extra
	}

	table := a.Table
	if table == "" {
		table = "loan_records"
	}
	stmt := fmt.Sprintf(`WITH filtered AS (SELECT * FROM %s WHERE %s)
SELECT %s AS bucket,
       COUNT(*),
       SUM(principal_os_amt),
       SUM(post_npa_collection),
       SUM(post_woff_collection),
       SUM(m6_collection),
       SUM(m12_collection),
       SUM(total_collection)
FROM filtered
GROUP BY 1
ORDER BY 1`, table, where, renderCase(c, col))
	return stmt, q.args, nil
}
