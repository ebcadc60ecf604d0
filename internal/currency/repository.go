package currency

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists exchange rates and foreign-currency positions. Rates
// are append-only; positions are updated inside revaluation and settlement
// transactions.
type Repository interface {
	InsertRate(ctx context.Context, r ExchangeRate) (ExchangeRate, error)
	ListRates(ctx context.Context, companyID int64, currency string) ([]ExchangeRate, error)
	LatestRate(ctx context.Context, companyID int64, currency string, asOf time.Time) (ExchangeRate, error)
	ListBalances(ctx context.Context, companyID int64, currencies []string) ([]FCYBalance, error)
	GetBalance(ctx context.Context, companyID, accountID int64, currency string) (FCYBalance, error)
	UpsertBalance(ctx context.Context, b FCYBalance) (FCYBalance, error)
	WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error
	UpdateBalanceTx(ctx context.Context, tx pgx.Tx, b FCYBalance) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) InsertRate(ctx context.Context, rate ExchangeRate) (ExchangeRate, error) {
	row := r.db.QueryRow(ctx, `
INSERT INTO exchange_rates (company_id, currency, rate, effective_date, created_by)
VALUES ($1,$2,$3,$4,$5) RETURNING id, created_at`,
		rate.CompanyID, rate.Currency, rate.Rate, rate.EffectiveDate, rate.CreatedBy)
	if err := row.Scan(&rate.ID, &rate.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_exchange_rates_company_ccy_date" {
			return ExchangeRate{}, ErrDuplicateRate
		}
		return ExchangeRate{}, err
	}
	return rate, nil
}

func (r *repository) ListRates(ctx context.Context, companyID int64, currency string) ([]ExchangeRate, error) {
	query := `SELECT id, company_id, currency, rate, effective_date, created_by, created_at
FROM exchange_rates WHERE company_id = $1`
	args := []any{companyID}
	if currency != "" {
		args = append(args, currency)
		query += ` AND currency = $2`
	}
	query += ` ORDER BY currency, effective_date DESC`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ExchangeRate
	for rows.Next() {
		var e ExchangeRate
		if err := rows.Scan(&e.ID, &e.CompanyID, &e.Currency, &e.Rate, &e.EffectiveDate, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repository) LatestRate(ctx context.Context, companyID int64, currency string, asOf time.Time) (ExchangeRate, error) {
	var e ExchangeRate
	err := r.db.QueryRow(ctx, `
SELECT id, company_id, currency, rate, effective_date, created_by, created_at
FROM exchange_rates
WHERE company_id = $1 AND currency = $2 AND effective_date <= $3
ORDER BY effective_date DESC LIMIT 1`, companyID, currency, asOf).
		Scan(&e.ID, &e.CompanyID, &e.Currency, &e.Rate, &e.EffectiveDate, &e.CreatedBy, &e.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ExchangeRate{}, ErrRateNotFound
	}
	return e, err
}

const balanceColumns = `id, company_id, account_id, currency, fcy_balance, base_balance, last_revaluation_rate, last_revaluation_at, updated_at`

func scanBalance(row pgx.Row) (FCYBalance, error) {
	var b FCYBalance
	err := row.Scan(&b.ID, &b.CompanyID, &b.AccountID, &b.Currency, &b.FCYBalance, &b.BaseBalance,
		&b.LastRevaluationRate, &b.LastRevaluationAt, &b.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return FCYBalance{}, ErrNoPosition
	}
	return b, err
}

func (r *repository) ListBalances(ctx context.Context, companyID int64, currencies []string) ([]FCYBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM fcy_balances WHERE company_id = $1`
	args := []any{companyID}
	if len(currencies) > 0 {
		args = append(args, currencies)
		query += ` AND currency = ANY($2)`
	}
	query += ` ORDER BY currency, account_id`
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FCYBalance
	for rows.Next() {
		b, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *repository) GetBalance(ctx context.Context, companyID, accountID int64, currency string) (FCYBalance, error) {
	return scanBalance(r.db.QueryRow(ctx,
		`SELECT `+balanceColumns+` FROM fcy_balances WHERE company_id = $1 AND account_id = $2 AND currency = $3`,
		companyID, accountID, currency))
}

func (r *repository) UpsertBalance(ctx context.Context, b FCYBalance) (FCYBalance, error) {
	row := r.db.QueryRow(ctx, `
INSERT INTO fcy_balances (company_id, account_id, currency, fcy_balance, base_balance)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (company_id, account_id, currency)
DO UPDATE SET fcy_balance = $4, base_balance = $5, updated_at = now()
RETURNING `+balanceColumns,
		b.CompanyID, b.AccountID, b.Currency, b.FCYBalance, b.BaseBalance)
	return scanBalance(row)
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

func (r *repository) UpdateBalanceTx(ctx context.Context, tx pgx.Tx, b FCYBalance) error {
	tag, err := tx.Exec(ctx, `
UPDATE fcy_balances
SET fcy_balance = $4, base_balance = $5, last_revaluation_rate = $6, last_revaluation_at = $7, updated_at = now()
WHERE company_id = $1 AND account_id = $2 AND currency = $3`,
		b.CompanyID, b.AccountID, b.Currency, b.FCYBalance, b.BaseBalance, b.LastRevaluationRate, b.LastRevaluationAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNoPosition
	}
	return nil
}
