package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"TalkToDataLoanPro/internal/bucket"
)

// Configs stores bucket configurations.
type Configs struct {
	DB      DB
	Dialect bucket.Dialect
	Schema  string
}

const configColumns = `id, COALESCE(user_id, ''), dataset_id, name, summary_type, target_field,
	target_field_is_json, is_default, COALESCE(description, ''), sort_order, bucket_config, created_at, updated_at`

func (r *Configs) table() string { return Qualify(r.Schema, "bucket_configs") }

func (r *Configs) q(query string) string { return Rebind(r.Dialect, query) }

func scanConfig(row interface{ Scan(...any) error }) (*bucket.Config, error) {
	var (
		c                bucket.Config
		datasetID        sql.NullString
		sortOrder        sql.NullInt64
		created, updated Timestamp
	)
	err := row.Scan(&c.ID, &c.UserID, &datasetID, &c.Name, &c.SummaryType, &c.TargetField,
		&c.TargetFieldIsJSON, &c.IsDefault, &c.Description, &sortOrder, &c.Rules, &created, &updated)
	if err != nil {
		return nil, err
	}
	if datasetID.Valid {
		id := datasetID.String
		c.DatasetID = &id
	}
	if sortOrder.Valid {
		n := int(sortOrder.Int64)
		c.SortOrder = &n
	}
	c.CreatedAt, c.UpdatedAt = created.Time, updated.Time
	return &c, nil
}

// Select runs a config query and scans every row.
func (r *Configs) Select(ctx context.Context, where string, args ...any) ([]bucket.Config, error) {
	rows, err := r.DB.QueryContext(ctx, r.q(`SELECT `+configColumns+` FROM `+r.table()+` WHERE `+where), args...)
	if err != nil {
		return nil, fmt.Errorf("query bucket configs: %w", err)
	}
	defer rows.Close()

	out := []bucket.Config{}
	for rows.Next() {
		c, err := scanConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bucket config: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// DatasetConfigs returns every configuration scoped to the dataset.
func (r *Configs) DatasetConfigs(ctx context.Context, datasetID string) ([]bucket.Config, error) {
	return r.Select(ctx, `dataset_id = ?`, datasetID)
}

// GlobalDefaults returns dataset-less defaults for the summary types.
func (r *Configs) GlobalDefaults(ctx context.Context, summaryTypes []string) ([]bucket.Config, error) {
	if len(summaryTypes) == 0 {
		return nil, nil
	}
	args := make([]any, len(summaryTypes))
	for i, t := range summaryTypes {
		args[i] = t
	}
	return r.Select(ctx, `dataset_id IS NULL AND is_default = `+r.boolean(true)+` AND summary_type IN (`+In(len(args))+`)`, args...)
}

// ConfigsByIDs returns the listed configurations owned by the user or
// marked default.
func (r *Configs) ConfigsByIDs(ctx context.Context, ids []string, userID string) ([]bucket.Config, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, userID)
	return r.Select(ctx, `id IN (`+In(len(ids))+`) AND (user_id = ? OR is_default = `+r.boolean(true)+`)`, args...)
}

// Get loads one configuration.
func (r *Configs) Get(ctx context.Context, id string) (*bucket.Config, error) {
	row := r.DB.QueryRowContext(ctx, r.q(`SELECT `+configColumns+` FROM `+r.table()+` WHERE id = ?`), id)
	c, err := scanConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, bucket.ErrConfigNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bucket config %s: %w", id, err)
	}
	return c, nil
}

// Find returns the user's configuration for a dataset field.
func (r *Configs) Find(ctx context.Context, datasetID, userID, targetField string) (*bucket.Config, error) {
	cfgs, err := r.Select(ctx, `dataset_id = ? AND user_id = ? AND target_field = ? ORDER BY updated_at DESC LIMIT 1`,
		datasetID, userID, targetField)
	if err != nil {
		return nil, err
	}
	if len(cfgs) == 0 {
		return nil, bucket.ErrConfigNotFound
	}
	return &cfgs[0], nil
}

// List returns one page of the user's configurations plus the total.
func (r *Configs) List(ctx context.Context, userID string, limit, offset int) ([]bucket.Config, int, error) {
	var total int
	if err := r.DB.QueryRowContext(ctx, r.q(`SELECT COUNT(*) FROM `+r.table()+` WHERE user_id = ?`), userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count bucket configs: %w", err)
	}
	cfgs, err := r.Select(ctx, `user_id = ? ORDER BY created_at DESC, id LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return cfgs, total, nil
}

// Create validates and inserts c. A user holds at most one configuration
// per dataset and target field.
func (r *Configs) Create(ctx context.Context, c *bucket.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.DatasetID != nil {
		_, err := r.Find(ctx, *c.DatasetID, c.UserID, c.TargetField)
		if err == nil {
			return bucket.ErrConfigExists
		}
		if !errors.Is(err, bucket.ErrConfigNotFound) {
			return err
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now

	query := r.q(`INSERT INTO ` + r.table() + ` (id, user_id, dataset_id, name, summary_type, target_field,
		target_field_is_json, is_default, description, sort_order, bucket_config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := r.DB.ExecContext(ctx, query, c.ID, nullString(c.UserID), c.DatasetID, c.Name, c.SummaryType, c.TargetField,
		c.TargetFieldIsJSON, c.IsDefault, nullString(c.Description), c.SortOrder, c.Rules, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create bucket config: %w", err)
	}
	return nil
}

// Update rewrites a configuration the user owns.
func (r *Configs) Update(ctx context.Context, c *bucket.Config) error {
	if err := c.Validate(); err != nil {
		return err
	}
	existing, err := r.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	if existing.UserID != c.UserID {
		return bucket.ErrConfigForbidden
	}
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = time.Now().UTC()

	query := r.q(`UPDATE ` + r.table() + ` SET dataset_id = ?, name = ?, summary_type = ?, target_field = ?,
		target_field_is_json = ?, is_default = ?, description = ?, sort_order = ?, bucket_config = ?, updated_at = ?
		WHERE id = ?`)
	_, err = r.DB.ExecContext(ctx, query, c.DatasetID, c.Name, c.SummaryType, c.TargetField,
		c.TargetFieldIsJSON, c.IsDefault, nullString(c.Description), c.SortOrder, c.Rules, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update bucket config %s: %w", c.ID, err)
	}
	return nil
}

// Delete removes a configuration the user owns and returns it.
func (r *Configs) Delete(ctx context.Context, id, userID string) (*bucket.Config, error) {
	existing, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.UserID != userID {
		return nil, bucket.ErrConfigForbidden
	}
	if _, err := r.DB.ExecContext(ctx, r.q(`DELETE FROM `+r.table()+` WHERE id = ?`), id); err != nil {
		return nil, fmt.Errorf("delete bucket config %s: %w", id, err)
	}
	return existing, nil
}

func (r *Configs) boolean(v bool) string {
	if r.Dialect != nil && r.Dialect.Name() == "sqlite" {
		if v {
			return "1"
		}
		return "0"
	}
	if v {
		return "TRUE"
	}
	return "FALSE"
}
