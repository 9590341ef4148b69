package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"TalkToDataLoanPro/internal/bucket"
	"TalkToDataLoanPro/internal/ingest"
	"TalkToDataLoanPro/internal/store"
)

// Profiles loads mapping profiles whose definition is stored as JSON.
type Profiles struct {
	DB      DB
	Dialect bucket.Dialect
	Schema  string
}

func (r *Profiles) table() string { return Qualify(r.Schema, "mapping_profiles") }

// Get loads and prepares a profile.
func (r *Profiles) Get(ctx context.Context, id string) (*ingest.MappingProfile, error) {
	var (
		name, fileType sql.NullString
		definition     string
	)
	row := r.DB.QueryRowContext(ctx, Rebind(r.Dialect, `SELECT name, file_type, definition FROM `+r.table()+` WHERE id = ?`), id)
	if err := row.Scan(&name, &fileType, &definition); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrProfileNotFound
		}
		return nil, fmt.Errorf("get mapping profile %s: %w", id, err)
	}
	p, err := ingest.ParseProfileJSON([]byte(definition))
	if err != nil {
		return nil, err
	}
	p.ID = id
	if p.Name == "" {
		p.Name = name.String
	}
	if p.FileType == "" {
		p.FileType = fileType.String
	}
	return p, nil
}

// Save stores a profile definition under id, assigning one when empty.
func (r *Profiles) Save(ctx context.Context, id, name, fileType string, definition []byte) (string, error) {
	if _, err := ingest.ParseProfileJSON(definition); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	query := Rebind(r.Dialect, `INSERT INTO `+r.table()+` (id, name, file_type, definition) VALUES (?, ?, ?, ?)`)
	if _, err := r.DB.ExecContext(ctx, query, id, name, nullString(fileType), string(definition)); err != nil {
		return "", fmt.Errorf("save mapping profile: %w", err)
	}
	return id, nil
}
