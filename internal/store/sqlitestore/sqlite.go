// Package sqlitestore runs the loan book on a single SQLite file. It backs
// local mode and the SQL-executing tests.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"TalkToDataLoanPro/internal/bucket"
	"TalkToDataLoanPro/internal/loan"
	"TalkToDataLoanPro/internal/store"
	"TalkToDataLoanPro/internal/store/sqlrepo"
)

const recordsTable = "loan_records"

// Open connects to path (":memory:" for a throwaway database) and creates
// the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: path must not be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// one connection keeps :memory: databases and write transactions coherent
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := Bootstrap(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Bootstrap creates the tables when they do not exist.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS datasets (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT,
			file_type TEXT,
			status TEXT NOT NULL,
			total_records INTEGER DEFAULT 0,
			file_checksum TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_datasets_user ON datasets (user_id, file_checksum)`,
		`CREATE TABLE IF NOT EXISTS bucket_configs (
			id TEXT PRIMARY KEY,
			user_id TEXT,
			dataset_id TEXT,
			name TEXT NOT NULL,
			summary_type TEXT NOT NULL,
			target_field TEXT NOT NULL,
			target_field_is_json BOOLEAN NOT NULL DEFAULT FALSE,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			description TEXT,
			sort_order INTEGER,
			bucket_config TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_bucket_configs_dataset ON bucket_configs (dataset_id, target_field)`,
		`CREATE TABLE IF NOT EXISTS mapping_profiles (
			id TEXT PRIMARY KEY,
			name TEXT,
			file_type TEXT,
			definition TEXT NOT NULL
		)`,
		RecordsDDL(),
		`CREATE INDEX IF NOT EXISTS idx_loan_records_dataset ON loan_records (dataset_id)`,
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlite: bootstrap: %w", err)
		}
	}
	return nil
}

// RecordsDDL renders loan_records from the column catalog. Amounts use
// NUMERIC affinity so text decimals are stored as numbers.
func RecordsDDL() string {
	cols := []string{"id TEXT PRIMARY KEY"}
	for _, c := range loan.Columns() {
		kind, _ := loan.KindOf(c.Name)
		cols = append(cols, c.Name+" "+columnType(kind))
	}
	return "CREATE TABLE IF NOT EXISTS " + recordsTable + " (\n\t" + strings.Join(cols, ",\n\t") + "\n)"
}

func columnType(k loan.Kind) string {
	switch k {
	case loan.Integer, loan.Boolean:
		return "INTEGER"
	case loan.Numeric:
		return "NUMERIC"
	}
	return "TEXT"
}

// New wires every repository onto db.
func New(db *sql.DB) *store.Store {
	return &store.Store{
		DB:       db,
		Dialect:  bucket.SQLite,
		Table:    recordsTable,
		Datasets: &sqlrepo.Datasets{DB: db, Dialect: bucket.SQLite},
		Configs:  &sqlrepo.Configs{DB: db, Dialect: bucket.SQLite},
		Profiles: &sqlrepo.Profiles{DB: db, Dialect: bucket.SQLite},
		Records:  &Records{DB: db},
		Loader:   &Loader{DB: db},
	}
}
