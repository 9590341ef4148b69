// Package store defines the persistence contracts shared by the Postgres
// and SQLite backends.
package store

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"TalkToDataLoanPro/internal/bucket"
	"TalkToDataLoanPro/internal/dataset"
	"TalkToDataLoanPro/internal/ingest"
	"TalkToDataLoanPro/internal/loan"
)

var ErrProfileNotFound = errors.New("mapping profile not found")

// Datasets persists dataset rows.
type Datasets interface {
	Create(ctx context.Context, ds *dataset.Dataset) error
	Get(ctx context.Context, id string) (*dataset.Dataset, error)
	List(ctx context.Context, userID string, limit, offset int) ([]dataset.Dataset, int, error)
	ListByStatus(ctx context.Context, status string) ([]dataset.Dataset, error)
	// FindUploaded returns the user's uploaded dataset with this checksum.
	FindUploaded(ctx context.Context, userID, checksum string) (*dataset.Dataset, error)
	SetFileType(ctx context.Context, id, fileType string) error
	SetStatus(ctx context.Context, id, status string) error
	ingest.DatasetTracker
}

// Configs persists bucket configurations.
type Configs interface {
	bucket.Source
	Create(ctx context.Context, c *bucket.Config) error
	Update(ctx context.Context, c *bucket.Config) error
	Delete(ctx context.Context, id, userID string) (*bucket.Config, error)
	Get(ctx context.Context, id string) (*bucket.Config, error)
	List(ctx context.Context, userID string, limit, offset int) ([]bucket.Config, int, error)
	// Find returns the configuration a user has for a dataset target field.
	Find(ctx context.Context, datasetID, userID, targetField string) (*bucket.Config, error)
}

// Profiles loads mapping profiles.
type Profiles interface {
	Get(ctx context.Context, id string) (*ingest.MappingProfile, error)
}

// Records reads and patches loan records.
type Records interface {
	ForDataset(ctx context.Context, datasetID string, fn func(*loan.Record) error) error
	ApplyCollections(ctx context.Context, updates []loan.CollectionUpdate) (int, error)
	FirstAdditionalFields(ctx context.Context, datasetID string) (map[string]any, error)
}

// Store bundles one backend.
type Store struct {
	DB       *sql.DB
	Dialect  bucket.Dialect
	Table    string
	Datasets Datasets
	Configs  Configs
	Profiles Profiles
	Records  Records
	Loader   ingest.Loader
}

// RecordColumns is the select list the Records implementations read, in
// the order they scan it.
var RecordColumns = []string{
	"id",
	loan.ColDatasetID,
	loan.ColAgreementNo,
	loan.ColPrincipalOS,
	loan.ColDateOfNPA,
	loan.ColDateOfWOff,
	loan.ColM3Collection,
	loan.ColM6Collection,
	loan.ColM12Collection,
	loan.ColTotalCollection,
	loan.ColPostNPACollection,
	loan.ColPostWOffCollection,
	loan.ColAdditionalFields,
}

// CollectionSet renders "col = <ph>, ..." for an update in column order,
// converting each value with val.
func CollectionSet(u loan.CollectionUpdate, ph func(n int) string, val func(decimal.NullDecimal) any) (string, []any) {
	cols := make([]string, 0, len(u.Values))
	for c := range u.Values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	parts := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		parts[i] = c + " = " + ph(i+1)
		args[i] = val(u.Values[c])
	}
	return strings.Join(parts, ", "), args
}
