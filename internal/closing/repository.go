package closing

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists year-end closing runs. Execute runs through WithTx so
// the closing entries and the state flip commit together.
type Repository interface {
	List(ctx context.Context, companyID int64) ([]YearEndClosing, error)
	Get(ctx context.Context, companyID, id int64) (YearEndClosing, error)
	GetByFiscalYear(ctx context.Context, companyID int64, fiscalYear string) (YearEndClosing, error)
	Insert(ctx context.Context, c YearEndClosing) (YearEndClosing, error)
	SetPeriodLocked(ctx context.Context, companyID, id int64) error
	WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
	UpdateExecutedTx(ctx context.Context, tx pgx.Tx, c YearEndClosing) error
	DeactivateBudgetsTx(ctx context.Context, tx pgx.Tx, companyID int64, fiscalYear string) (int64, error)
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const closingColumns = `id, company_id, fiscal_year, start_date, end_date, revenue_closings, expense_closings,
total_revenue, total_expenses, net_income, retained_earnings_account_id, income_summary_account_id,
closing_entry_ids, snapshot, status, period_locked, initiated_by, initiated_at, executed_by, executed_at,
created_at, updated_at`

func scanClosing(row pgx.Row) (YearEndClosing, error) {
	var c YearEndClosing
	var revenue, expense, entryIDs, snapshot []byte
	err := row.Scan(&c.ID, &c.CompanyID, &c.FiscalYear, &c.StartDate, &c.EndDate, &revenue, &expense,
		&c.TotalRevenue, &c.TotalExpenses, &c.NetIncome, &c.RetainedEarningsAccountID, &c.IncomeSummaryAccountID,
		&entryIDs, &snapshot, &c.Status, &c.PeriodLocked, &c.InitiatedBy, &c.InitiatedAt, &c.ExecutedBy, &c.ExecutedAt,
		&c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return YearEndClosing{}, ErrNotFound
	}
	if err != nil {
		return YearEndClosing{}, err
	}
	if len(revenue) > 0 {
		_ = json.Unmarshal(revenue, &c.RevenueClosings)
	}
	if len(expense) > 0 {
		_ = json.Unmarshal(expense, &c.ExpenseClosings)
	}
	if len(entryIDs) > 0 {
		_ = json.Unmarshal(entryIDs, &c.ClosingJournalEntryIDs)
	}
	if len(snapshot) > 0 {
		_ = json.Unmarshal(snapshot, &c.Snapshot)
	}
	return c, nil
}

func (r *repository) List(ctx context.Context, companyID int64) ([]YearEndClosing, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+closingColumns+` FROM year_end_closings WHERE company_id = $1 ORDER BY fiscal_year DESC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []YearEndClosing
	for rows.Next() {
		c, err := scanClosing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (YearEndClosing, error) {
	return scanClosing(r.db.QueryRow(ctx,
		`SELECT `+closingColumns+` FROM year_end_closings WHERE company_id = $1 AND id = $2`, companyID, id))
}

func (r *repository) GetByFiscalYear(ctx context.Context, companyID int64, fiscalYear string) (YearEndClosing, error) {
	return scanClosing(r.db.QueryRow(ctx,
		`SELECT `+closingColumns+` FROM year_end_closings WHERE company_id = $1 AND fiscal_year = $2`, companyID, fiscalYear))
}

func (r *repository) Insert(ctx context.Context, c YearEndClosing) (YearEndClosing, error) {
	revenue, _ := json.Marshal(c.RevenueClosings)
	expense, _ := json.Marshal(c.ExpenseClosings)
	snapshot, _ := json.Marshal(c.Snapshot)
	row := r.db.QueryRow(ctx, `
INSERT INTO year_end_closings (company_id, fiscal_year, start_date, end_date, revenue_closings, expense_closings,
  total_revenue, total_expenses, net_income, retained_earnings_account_id, income_summary_account_id,
  closing_entry_ids, snapshot, status, period_locked, initiated_by, initiated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,'[]',$12,$13,false,$14,$15)
RETURNING id, created_at, updated_at`,
		c.CompanyID, c.FiscalYear, c.StartDate, c.EndDate, revenue, expense,
		c.TotalRevenue, c.TotalExpenses, c.NetIncome, c.RetainedEarningsAccountID, c.IncomeSummaryAccountID,
		snapshot, c.Status, c.InitiatedBy, c.InitiatedAt)
	if err := row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_year_end_closings_company_fy" {
			return YearEndClosing{}, ErrAlreadyExists
		}
		return YearEndClosing{}, err
	}
	return c, nil
}

func (r *repository) SetPeriodLocked(ctx context.Context, companyID, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE year_end_closings SET period_locked = true, updated_at = now() WHERE company_id = $1 AND id = $2`,
		companyID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, tx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

func (r *repository) UpdateExecutedTx(ctx context.Context, tx pgx.Tx, c YearEndClosing) error {
	entryIDs, _ := json.Marshal(c.ClosingJournalEntryIDs)
	var executedAt time.Time
	if c.ExecutedAt != nil {
		executedAt = *c.ExecutedAt
	}
	// The DRAFT predicate makes the flip to COMPLETED first-writer-wins:
	// a concurrent execute that lost the race matches zero rows.
	tag, err := tx.Exec(ctx, `
UPDATE year_end_closings
SET status = $3, closing_entry_ids = $4, income_summary_account_id = $5, executed_by = $6, executed_at = $7, updated_at = now()
WHERE company_id = $1 AND id = $2 AND status = 'DRAFT'`,
		c.CompanyID, c.ID, c.Status, entryIDs, c.IncomeSummaryAccountID, c.ExecutedBy, executedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrWrongStatus
	}
	return nil
}

func (r *repository) DeactivateBudgetsTx(ctx context.Context, tx pgx.Tx, companyID int64, fiscalYear string) (int64, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE budgets SET is_active = false, updated_at = now() WHERE company_id = $1 AND fiscal_year = $2 AND is_active`,
		companyID, fiscalYear)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
