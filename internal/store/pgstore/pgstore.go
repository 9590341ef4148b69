// Package pgstore is the Postgres backend. Bulk loads and record patches go
// through a pgx pool; the config, dataset and profile repositories and the
// summary aggregation use database/sql with lib/pq.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"TalkToDataLoanPro/internal/bucket"
	"TalkToDataLoanPro/internal/loan"
	"TalkToDataLoanPro/internal/store"
	"TalkToDataLoanPro/internal/store/sqlrepo"
)

const recordsTable = "loan_records"

// New wires every repository. db is a lib/pq handle and pool a pgx pool on
// the same database.
func New(db *sql.DB, pool *pgxpool.Pool, schema string) *store.Store {
	return &store.Store{
		DB:       db,
		Dialect:  bucket.Postgres,
		Table:    sqlrepo.Qualify(schema, recordsTable),
		Datasets: &sqlrepo.Datasets{DB: db, Dialect: bucket.Postgres, Schema: schema},
		Configs:  &Configs{Configs: sqlrepo.Configs{DB: db, Dialect: bucket.Postgres, Schema: schema}},
		Profiles: &sqlrepo.Profiles{DB: db, Dialect: bucket.Postgres, Schema: schema},
		Records:  &Records{Pool: pool, Schema: schema},
		Loader:   &Loader{Pool: pool, Schema: schema},
	}
}

// Configs adds Postgres array binding and unique-violation mapping to the
// shared repository.
type Configs struct {
	sqlrepo.Configs
}

// ConfigsByIDs binds the id list as one array parameter.
func (r *Configs) ConfigsByIDs(ctx context.Context, ids []string, userID string) ([]bucket.Config, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.Select(ctx, `id::text = ANY(?) AND (user_id = ? OR is_default)`, pq.Array(ids), userID)
}

// Create maps a unique violation on (dataset_id, user_id, target_field) to
// bucket.ErrConfigExists.
func (r *Configs) Create(ctx context.Context, c *bucket.Config) error {
	err := r.Configs.Create(ctx, c)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return bucket.ErrConfigExists
	}
	return err
}

// Migrate creates the schema objects when they do not exist.
func Migrate(ctx context.Context, db *sql.DB, schema string) error {
	q := func(table string) string { return sqlrepo.Qualify(schema, table) }
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		`CREATE TABLE IF NOT EXISTS ` + q("datasets") + ` (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			file_type TEXT,
			status TEXT NOT NULL,
			total_records BIGINT DEFAULT 0,
			file_checksum TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_datasets_user_checksum ON ` + q("datasets") + ` (user_id, file_checksum)`,
		`CREATE TABLE IF NOT EXISTS ` + q("bucket_configs") + ` (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			user_id TEXT,
			dataset_id UUID,
			name TEXT NOT NULL,
			summary_type TEXT NOT NULL,
			target_field TEXT NOT NULL,
			target_field_is_json BOOLEAN NOT NULL DEFAULT FALSE,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			description TEXT,
			sort_order INTEGER,
			bucket_config JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uq_bucket_configs_owner ON ` + q("bucket_configs") + ` (dataset_id, user_id, target_field)`,
		`CREATE TABLE IF NOT EXISTS ` + q("mapping_profiles") + ` (
			id TEXT PRIMARY KEY,
			name TEXT,
			file_type TEXT,
			definition JSONB NOT NULL
		)`,
		RecordsDDL(schema),
		`CREATE INDEX IF NOT EXISTS idx_loan_records_dataset ON ` + q(recordsTable) + ` (dataset_id)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("postgres: migrate: %w", err)
		}
	}
	return nil
}

// RecordsDDL renders loan_records from the column catalog.
func RecordsDDL(schema string) string {
	cols := []string{"id UUID PRIMARY KEY DEFAULT gen_random_uuid()"}
	for _, c := range loan.Columns() {
		kind, _ := loan.KindOf(c.Name)
		def := c.Name + " " + columnType(kind)
		if c.Name == loan.ColDatasetID {
			def += " NOT NULL"
		}
		cols = append(cols, def)
	}
	return "CREATE TABLE IF NOT EXISTS " + sqlrepo.Qualify(schema, recordsTable) + " (\n\t" + strings.Join(cols, ",\n\t") + "\n)"
}

func columnType(k loan.Kind) string {
	switch k {
	case loan.Integer:
		return "BIGINT"
	case loan.Numeric:
		return "NUMERIC"
	case loan.Date:
		return "DATE"
	case loan.Boolean:
		return "BOOLEAN"
	case loan.JSON:
		return "JSONB"
	case loan.UUID:
		return "UUID"
	}
	return "TEXT"
}
