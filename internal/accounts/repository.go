package accounts

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ListFilter narrows account listings.
type ListFilter struct {
	Type      AccountType
	Lifecycle Lifecycle
	Postable  *bool
}

// Repository encapsulates DB operations for the chart of accounts.
type Repository interface {
	List(ctx context.Context, companyID int64, filter ListFilter) ([]Account, error)
	Get(ctx context.Context, companyID, id int64) (Account, error)
	GetByCode(ctx context.Context, companyID int64, code string) (Account, error)
	Insert(ctx context.Context, in CreateInput, normal NormalBalance, level int) (Account, error)
	Update(ctx context.Context, a Account) error
	SetParent(ctx context.Context, companyID, id int64, parentID *int64, level int) error
	ShiftSubtreeLevels(ctx context.Context, companyID, rootID int64, delta int) error
	SetLifecycle(ctx context.Context, companyID, id int64, lc Lifecycle) error
	Delete(ctx context.Context, companyID, id int64) error
	HasChildren(ctx context.Context, companyID, id int64) (bool, error)
	HasPostings(ctx context.Context, companyID, id int64) (bool, error)
	ListByCategory(ctx context.Context, companyID int64, cat Category) ([]Account, error)
	SearchByName(ctx context.Context, companyID int64, pattern string) ([]Account, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed account repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const accountColumns = `id, company_id, code, name, level, parent_id, type, normal_balance, category, is_postable, lifecycle, opening_balance, current_balance, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.CompanyID, &a.Code, &a.Name, &a.Level, &a.ParentID, &a.Type, &a.NormalBalance,
		&a.Category, &a.IsPostable, &a.Lifecycle, &a.OpeningBalance, &a.CurrentBalance, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func collectAccounts(rows pgx.Rows) ([]Account, error) {
	defer rows.Close()
	var out []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) List(ctx context.Context, companyID int64, filter ListFilter) ([]Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE company_id=$1`
	args := []any{companyID}
	if filter.Type != "" {
		args = append(args, filter.Type)
		query += ` AND type=$` + strconv.Itoa(len(args))
	}
	if filter.Lifecycle != "" {
		args = append(args, filter.Lifecycle)
		query += ` AND lifecycle=$` + strconv.Itoa(len(args))
	}
	if filter.Postable != nil {
		args = append(args, *filter.Postable)
		query += ` AND is_postable=$` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY code`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND id=$2`, companyID, id)
	return scanAccount(row)
}

func (r *repository) GetByCode(ctx context.Context, companyID int64, code string) (Account, error) {
	row := r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE company_id=$1 AND code=$2`, companyID, code)
	return scanAccount(row)
}

func (r *repository) Insert(ctx context.Context, in CreateInput, normal NormalBalance, level int) (Account, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO accounts
(company_id, code, name, level, parent_id, type, normal_balance, category, is_postable, lifecycle, opening_balance, current_balance)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,'ACTIVE',$10,$10)
RETURNING `+accountColumns,
		in.CompanyID, in.Code, in.Name, level, in.ParentID, in.Type, normal, in.Category, in.IsPostable, in.OpeningBalance)
	a, err := scanAccount(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_accounts_company_code" {
			return Account{}, ErrDuplicateCode
		}
		return Account{}, err
	}
	return a, nil
}

func (r *repository) Update(ctx context.Context, a Account) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET code=$3, name=$4, category=$5, is_postable=$6, updated_at=NOW()
WHERE company_id=$1 AND id=$2`, a.CompanyID, a.ID, a.Code, a.Name, a.Category, a.IsPostable)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_accounts_company_code" {
			return ErrDuplicateCode
		}
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SetParent(ctx context.Context, companyID, id int64, parentID *int64, level int) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET parent_id=$3, level=$4, updated_at=NOW() WHERE company_id=$1 AND id=$2`,
		companyID, id, parentID, level)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ShiftSubtreeLevels(ctx context.Context, companyID, rootID int64, delta int) error {
	_, err := r.db.Exec(ctx, `WITH RECURSIVE subtree AS (
  SELECT id FROM accounts WHERE company_id=$1 AND parent_id=$2
  UNION ALL
  SELECT a.id FROM accounts a JOIN subtree s ON a.parent_id=s.id WHERE a.company_id=$1
)
UPDATE accounts SET level = level + $3, updated_at=NOW() WHERE id IN (SELECT id FROM subtree)`,
		companyID, rootID, delta)
	return err
}

func (r *repository) SetLifecycle(ctx context.Context, companyID, id int64, lc Lifecycle) error {
	cmd, err := r.db.Exec(ctx, `UPDATE accounts SET lifecycle=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`, companyID, id, lc)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, companyID, id int64) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE company_id=$1 AND id=$2`, companyID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) HasChildren(ctx context.Context, companyID, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE company_id=$1 AND parent_id=$2)`, companyID, id).Scan(&exists)
	return exists, err
}

func (r *repository) HasPostings(ctx context.Context, companyID, id int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
  SELECT 1 FROM journal_lines l JOIN journal_entries e ON e.id=l.entry_id
  WHERE e.company_id=$1 AND l.account_id=$2)`, companyID, id).Scan(&exists)
	return exists, err
}

func (r *repository) ListByCategory(ctx context.Context, companyID int64, cat Category) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE company_id=$1 AND category=$2 AND lifecycle='ACTIVE' ORDER BY code`, companyID, cat)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}

func (r *repository) SearchByName(ctx context.Context, companyID int64, pattern string) ([]Account, error) {
	rows, err := r.db.Query(ctx, `SELECT `+accountColumns+` FROM accounts
WHERE company_id=$1 AND name ILIKE $2 AND lifecycle='ACTIVE' ORDER BY code`, companyID, pattern)
	if err != nil {
		return nil, err
	}
	return collectAccounts(rows)
}
