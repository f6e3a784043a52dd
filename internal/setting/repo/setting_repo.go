package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/setting/entity"
)

var ErrNotFound = errors.New("setting not found")

// Repo is the repository implementation for settings backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

// NewRepo constructs a new Repo with an existing connection.
func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

const settingColumns = `id, parent_id, root_id, record_meta, category, metadata`

func (r *Repo) GetByID(ctx context.Context, id string) (*entity.Setting, error) {
	var s entity.Setting
	if err := r.db.GetContext(ctx, &s, `SELECT `+settingColumns+` FROM settings WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get setting: %w", err)
	}
	return &s, nil
}

// ListByCategory returns the rows of one category ordered by id.
func (r *Repo) ListByCategory(ctx context.Context, category string) ([]*entity.Setting, error) {
	out := []*entity.Setting{}
	if err := r.db.SelectContext(ctx, &out, `SELECT `+settingColumns+` FROM settings WHERE category = $1 ORDER BY id`, category); err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return out, nil
}

// InsertIfAbsent inserts s unless a row with the same id exists. It reports
// whether a row was written.
func (r *Repo) InsertIfAbsent(ctx context.Context, s *entity.Setting) (bool, error) {
	const q = `INSERT INTO settings (id, parent_id, root_id, record_meta, category, metadata)
		VALUES (:id, :parent_id, :root_id, :record_meta, :category, :metadata)
		ON CONFLICT (id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, q, s)
	if err != nil {
		return false, fmt.Errorf("insert setting: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert setting: %w", err)
	}
	return n > 0, nil
}

// Upsert writes s, replacing metadata and record_meta of an existing row.
func (r *Repo) Upsert(ctx context.Context, s *entity.Setting) error {
	const q = `INSERT INTO settings (id, parent_id, root_id, record_meta, category, metadata)
		VALUES (:id, :parent_id, :root_id, :record_meta, :category, :metadata)
		ON CONFLICT (id) DO UPDATE SET record_meta = EXCLUDED.record_meta, metadata = EXCLUDED.metadata`
	if _, err := r.db.NamedExecContext(ctx, q, s); err != nil {
		return fmt.Errorf("upsert setting: %w", err)
	}
	return nil
}
