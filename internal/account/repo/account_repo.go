package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-qrclaim/pkg/database"
)

var (
	ErrNotFound  = errors.New("account not found")
	ErrDuplicate = errors.New("account email already exists")
)

// AccountRepo provides data access for the accounts table using sqlx.
type AccountRepo struct {
	db *sqlx.DB
}

func NewAccountRepo(db *sqlx.DB) *AccountRepo { return &AccountRepo{db: db} }

const accountColumns = `id, name, email, password_hash, role, created_at, updated_at, password_updated_at`

// Create inserts a new account. a.ID must already be assigned.
func (r *AccountRepo) Create(ctx context.Context, a *entity.Account) error {
	const q = `INSERT INTO accounts (id, name, email, password_hash, role, created_at, updated_at)
		VALUES (:id, :name, :email, :password_hash, :role, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, q, a); err != nil {
		if database.IsUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

// GetByEmail matches case-insensitively (citext).
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE email=$1`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, email); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account by email: %w", err)
	}
	return &a, nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*entity.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	var a entity.Account
	if err := r.db.GetContext(ctx, &a, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// UpdatePassword replaces the credential hash.
func (r *AccountRepo) UpdatePassword(ctx context.Context, id int64, hash string, at time.Time) error {
	const q = `UPDATE accounts SET password_hash=$2, password_updated_at=$3, updated_at=$3 WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, hash, at)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns summaries ordered by creation time. An empty role lists everyone.
func (r *AccountRepo) List(ctx context.Context, role access.Role) ([]entity.Summary, error) {
	out := []entity.Summary{}
	var err error
	if role == "" {
		err = r.db.SelectContext(ctx, &out, `SELECT id, name, email, role, created_at FROM accounts ORDER BY created_at, id`)
	} else {
		err = r.db.SelectContext(ctx, &out, `SELECT id, name, email, role, created_at FROM accounts WHERE role=$1 ORDER BY created_at, id`, role)
	}
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}

// SummariesByIDs resolves the given ids; ids without an account are omitted.
func (r *AccountRepo) SummariesByIDs(ctx context.Context, ids []int64) ([]entity.Summary, error) {
	out := []entity.Summary{}
	if len(ids) == 0 {
		return out, nil
	}
	q, args, err := sqlx.In(`SELECT id, name, email, role, created_at FROM accounts WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build summaries query: %w", err)
	}
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("account summaries: %w", err)
	}
	return out, nil
}
