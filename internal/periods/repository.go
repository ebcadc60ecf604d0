package periods

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for accounting periods.
type Repository interface {
	List(ctx context.Context, companyID int64, fiscalYear string) ([]Period, error)
	Get(ctx context.Context, companyID, id int64) (Period, error)
	FindByDate(ctx context.Context, companyID int64, date time.Time) (Period, error)
	// Upsert inserts the period if absent and leaves an existing row
	// untouched, so initialize stays idempotent.
	Upsert(ctx context.Context, p Period) (Period, error)
	UpdateStatus(ctx context.Context, p Period) error
	UpdateChecklist(ctx context.Context, companyID, id int64, c Checklist) error
	UpdateReconciliation(ctx context.Context, companyID, id int64, results []ReconciliationResult) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the pgx-backed period repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const periodColumns = `id, company_id, fiscal_year, month, year, period_start, period_end, status, checklist, closing_balances, reconciliation_results,
soft_closed_by, soft_closed_at, hard_closed_by, hard_closed_at, locked_by, locked_at, created_at, updated_at`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	var checklist, balances, recon []byte
	err := row.Scan(&p.ID, &p.CompanyID, &p.FiscalYear, &p.Month, &p.Year, &p.PeriodStart, &p.PeriodEnd, &p.Status,
		&checklist, &balances, &recon,
		&p.SoftClosedBy, &p.SoftClosedAt, &p.HardClosedBy, &p.HardClosedAt, &p.LockedBy, &p.LockedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNotFound
		}
		return Period{}, err
	}
	if len(checklist) > 0 {
		_ = json.Unmarshal(checklist, &p.Checklist)
	}
	if len(balances) > 0 {
		_ = json.Unmarshal(balances, &p.ClosingBalances)
	}
	if len(recon) > 0 {
		_ = json.Unmarshal(recon, &p.ReconciliationResults)
	}
	return p, nil
}

func (r *repository) List(ctx context.Context, companyID int64, fiscalYear string) ([]Period, error) {
	query := `SELECT ` + periodColumns + ` FROM accounting_periods WHERE company_id=$1`
	args := []any{companyID}
	if fiscalYear != "" {
		args = append(args, fiscalYear)
		query += ` AND fiscal_year=$2`
	}
	query += ` ORDER BY period_start`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods WHERE company_id=$1 AND id=$2`, companyID, id)
	return scanPeriod(row)
}

func (r *repository) FindByDate(ctx context.Context, companyID int64, date time.Time) (Period, error) {
	row := r.db.QueryRow(ctx, `SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id=$1 AND period_start<=$2 AND period_end>=$2`, companyID, date)
	return scanPeriod(row)
}

func (r *repository) Upsert(ctx context.Context, p Period) (Period, error) {
	checklist, err := json.Marshal(p.Checklist)
	if err != nil {
		return Period{}, err
	}
	row := r.db.QueryRow(ctx, `INSERT INTO accounting_periods
(company_id, fiscal_year, month, year, period_start, period_end, status, checklist)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (company_id, year, month) DO UPDATE SET updated_at = accounting_periods.updated_at
RETURNING `+periodColumns,
		p.CompanyID, p.FiscalYear, p.Month, p.Year, p.PeriodStart, p.PeriodEnd, p.Status, checklist)
	return scanPeriod(row)
}

func (r *repository) UpdateStatus(ctx context.Context, p Period) error {
	balances, err := json.Marshal(p.ClosingBalances)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE accounting_periods SET status=$3, closing_balances=$4,
soft_closed_by=$5, soft_closed_at=$6, hard_closed_by=$7, hard_closed_at=$8, locked_by=$9, locked_at=$10, updated_at=NOW()
WHERE company_id=$1 AND id=$2`,
		p.CompanyID, p.ID, p.Status, balances,
		p.SoftClosedBy, p.SoftClosedAt, p.HardClosedBy, p.HardClosedAt, p.LockedBy, p.LockedAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateChecklist(ctx context.Context, companyID, id int64, c Checklist) error {
	checklist, err := json.Marshal(c)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE accounting_periods SET checklist=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`,
		companyID, id, checklist)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) UpdateReconciliation(ctx context.Context, companyID, id int64, results []ReconciliationResult) error {
	recon, err := json.Marshal(results)
	if err != nil {
		return err
	}
	cmd, err := r.db.Exec(ctx, `UPDATE accounting_periods SET reconciliation_results=$3, updated_at=NOW() WHERE company_id=$1 AND id=$2`,
		companyID, id, recon)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
