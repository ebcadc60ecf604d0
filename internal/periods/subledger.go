package periods

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubledgerBalances reads the aggregate balances that external bank and
// vendor subledger systems feed into subledger_balances. It implements
// SubledgerPort; a missing feed reads as zero so reconciliation still runs
// and surfaces the full GL balance as variance.
type SubledgerBalances struct {
	db *pgxpool.Pool
}

func NewSubledgerBalances(db *pgxpool.Pool) *SubledgerBalances {
	return &SubledgerBalances{db: db}
}

func (s *SubledgerBalances) BankBalance(ctx context.Context, companyID int64, asOf time.Time) (float64, error) {
	return s.latest(ctx, companyID, "BANK", asOf)
}

func (s *SubledgerBalances) APBalance(ctx context.Context, companyID int64, asOf time.Time) (float64, error) {
	return s.latest(ctx, companyID, "AP", asOf)
}

func (s *SubledgerBalances) latest(ctx context.Context, companyID int64, kind string, asOf time.Time) (float64, error) {
	var balance float64
	err := s.db.QueryRow(ctx, `
SELECT balance FROM subledger_balances
WHERE company_id = $1 AND kind = $2 AND as_of <= $3
ORDER BY as_of DESC LIMIT 1`, companyID, kind, asOf).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}
