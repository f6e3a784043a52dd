package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/entity"
	"github.com/ovaphlow/pitchfork/service-qrclaim/pkg/database"
)

var (
	ErrNotFound       = errors.New("qr code not found")
	ErrAlreadyClaimed = errors.New("qr code already claimed")
	ErrDuplicate      = errors.New("qr code value already exists")
)

// insertChunk bounds the rows of one multi-row INSERT.
const insertChunk = 50

// QRCodeRepo provides data access for the qr_codes table using sqlx.
type QRCodeRepo struct {
	db *sqlx.DB
}

func NewQRCodeRepo(db *sqlx.DB) *QRCodeRepo { return &QRCodeRepo{db: db} }

const qrColumns = `id, value, status, claimed_by, purpose, claimed_at, created_at`

// InsertBatch inserts every code or none of them.
func (r *QRCodeRepo) InsertBatch(ctx context.Context, codes []*entity.QRCode) error {
	if len(codes) == 0 {
		return nil
	}
	const q = `INSERT INTO qr_codes (id, value, status, created_at) VALUES (:id, :value, :status, :created_at)`
	err := database.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sqlx.Tx) error {
		for start := 0; start < len(codes); start += insertChunk {
			end := min(start+insertChunk, len(codes))
			if _, err := tx.NamedExecContext(ctx, q, codes[start:end]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert qr codes: %w", err)
	}
	return nil
}

// ExistingValues returns the subset of values already stored.
func (r *QRCodeRepo) ExistingValues(ctx context.Context, values []string) ([]string, error) {
	out := []string{}
	if len(values) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT value FROM qr_codes WHERE value IN (?)`, values)
	if err != nil {
		return nil, fmt.Errorf("build existing values query: %w", err)
	}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("existing values: %w", err)
	}
	return out, nil
}

func (r *QRCodeRepo) GetByValue(ctx context.Context, value string) (*entity.QRCode, error) {
	var c entity.QRCode
	if err := r.db.GetContext(ctx, &c, `SELECT `+qrColumns+` FROM qr_codes WHERE value = $1`, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get qr code: %w", err)
	}
	return &c, nil
}

// ListAll returns every code, oldest first.
func (r *QRCodeRepo) ListAll(ctx context.Context) ([]*entity.QRCode, error) {
	out := []*entity.QRCode{}
	if err := r.db.SelectContext(ctx, &out, `SELECT `+qrColumns+` FROM qr_codes ORDER BY created_at, id`); err != nil {
		return nil, fmt.Errorf("list qr codes: %w", err)
	}
	return out, nil
}

func (r *QRCodeRepo) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM qr_codes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete qr code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete qr code: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Claim moves an unclaimed code to claimed in a single conditional UPDATE.
// When no row matches, a follow-up read tells a missing code from one that
// is already claimed.
func (r *QRCodeRepo) Claim(ctx context.Context, value string, accountID int64, purpose string, at time.Time) (*entity.QRCode, error) {
	const q = `UPDATE qr_codes SET status='claimed', claimed_by=$2, purpose=$3, claimed_at=$4
		WHERE value=$1 AND status='unclaimed' AND claimed_by IS NULL
		RETURNING ` + qrColumns
	var c entity.QRCode
	err := r.db.GetContext(ctx, &c, q, value, accountID, purpose, at)
	if err == nil {
		return &c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("claim qr code: %w", err)
	}
	if _, err := r.GetByValue(ctx, value); err != nil {
		return nil, err
	}
	return nil, ErrAlreadyClaimed
}
