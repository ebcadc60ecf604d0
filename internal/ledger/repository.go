package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for journal entries. Posting and
// reversal run through WithTx so entry, lines, and balance mutations commit
// or roll back together.
type Repository interface {
	Get(ctx context.Context, companyID, id int64) (JournalEntry, error)
	List(ctx context.Context, f ListFilter) ([]JournalEntry, error)
	BalanceAsOf(ctx context.Context, companyID, accountID int64, asOf time.Time) (float64, error)
	EntriesWithLines(ctx context.Context, companyID int64, from, to time.Time) ([]JournalEntry, error)
	PeriodActivity(ctx context.Context, companyID int64, from, to time.Time) ([]AccountActivity, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes the operations available inside a posting transaction.
type TxRepository interface {
	GetEntryForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error)
	GetLines(ctx context.Context, entryID int64) ([]JournalLine, error)
	GetPostingAccounts(ctx context.Context, companyID int64, ids []int64) (map[int64]postingAccount, error)
	InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error)
	InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error
	AdjustAccountBalance(ctx context.Context, companyID, accountID int64, delta float64) error
	MarkReversed(ctx context.Context, companyID, entryID, reversedBy int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const entryColumns = `id, company_id, entry_number, entry_date, memo, status, total_debit, total_credit, reversal_of, reversed_by, posted_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var e JournalEntry
	err := row.Scan(&e.ID, &e.CompanyID, &e.EntryNumber, &e.EntryDate, &e.Memo, &e.Status,
		&e.TotalDebit, &e.TotalCredit, &e.ReversalOf, &e.ReversedBy, &e.PostedBy, &e.PostedAt,
		&e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return JournalEntry{}, ErrNotFound
	}
	return e, err
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	e, err := scanEntry(r.db.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE company_id = $1 AND id = $2`, companyID, id))
	if err != nil {
		return JournalEntry{}, err
	}
	rows, err := r.db.Query(ctx,
		`SELECT id, entry_id, account_id, debit, credit, description FROM journal_lines WHERE entry_id = $1 ORDER BY id`, id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Debit, &l.Credit, &l.Description); err != nil {
			return JournalEntry{}, err
		}
		e.Lines = append(e.Lines, l)
	}
	return e, rows.Err()
}

func (r *repository) List(ctx context.Context, f ListFilter) ([]JournalEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE company_id = $1`
	args := []any{f.CompanyID}
	if f.Status != "" {
		args = append(args, f.Status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if !f.From.IsZero() {
		args = append(args, f.From)
		query += ` AND entry_date >= $` + strconv.Itoa(len(args))
	}
	if !f.To.IsZero() {
		args = append(args, f.To)
		query += ` AND entry_date <= $` + strconv.Itoa(len(args))
	}
	if f.AccountID != 0 {
		args = append(args, f.AccountID)
		query += ` AND id IN (SELECT entry_id FROM journal_lines WHERE account_id = $` + strconv.Itoa(len(args)) + `)`
	}
	query += ` ORDER BY entry_date DESC, id DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// BalanceAsOf sums booked lines through asOf, signed by the account's normal
// balance, so it reflects what the running balance was at that date. Reversed
// originals stay in the sum; their compensating entries net them out, the
// same way AdjustAccountBalance maintained current_balance.
func (r *repository) BalanceAsOf(ctx context.Context, companyID, accountID int64, asOf time.Time) (float64, error) {
	var balance float64
	err := r.db.QueryRow(ctx, `
SELECT COALESCE(SUM(CASE WHEN a.normal_balance = 'DEBIT' THEN l.debit - l.credit ELSE l.credit - l.debit END), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.company_id = $1 AND l.account_id = $2 AND e.status IN ('POSTED', 'REVERSED') AND e.entry_date <= $3`,
		companyID, accountID, asOf).Scan(&balance)
	return balance, err
}

// EntriesWithLines loads all booked entries in a window together with their
// lines, oldest first. The report deriver walks these to classify cash
// movements. Reversed originals are included alongside their compensating
// entries so the window nets to the truth.
func (r *repository) EntriesWithLines(ctx context.Context, companyID int64, from, to time.Time) ([]JournalEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+entryColumns+` FROM journal_entries
WHERE company_id = $1 AND status IN ('POSTED', 'REVERSED') AND entry_date >= $2 AND entry_date <= $3
ORDER BY entry_date, id`, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []JournalEntry
	index := map[int64]int{}
	var ids []int64
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		index[e.ID] = len(entries)
		ids = append(ids, e.ID)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return entries, nil
	}
	lineRows, err := r.db.Query(ctx,
		`SELECT id, entry_id, account_id, debit, credit, description FROM journal_lines WHERE entry_id = ANY($1) ORDER BY entry_id, id`, ids)
	if err != nil {
		return nil, err
	}
	defer lineRows.Close()
	for lineRows.Next() {
		var l JournalLine
		if err := lineRows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Debit, &l.Credit, &l.Description); err != nil {
			return nil, err
		}
		i := index[l.EntryID]
		entries[i].Lines = append(entries[i].Lines, l)
	}
	return entries, lineRows.Err()
}

func (r *repository) PeriodActivity(ctx context.Context, companyID int64, from, to time.Time) ([]AccountActivity, error) {
	rows, err := r.db.Query(ctx, `
SELECT a.id, a.code, a.name, a.type, a.normal_balance,
       COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM journal_lines l
JOIN journal_entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.company_id = $1 AND e.status IN ('POSTED', 'REVERSED') AND e.entry_date >= $2 AND e.entry_date <= $3
GROUP BY a.id, a.code, a.name, a.type, a.normal_balance
ORDER BY a.code`, companyID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []AccountActivity
	for rows.Next() {
		var a AccountActivity
		if err := rows.Scan(&a.AccountID, &a.Code, &a.Name, &a.Type, &a.NormalBalance, &a.Debit, &a.Credit); err != nil {
			return nil, err
		}
		if a.NormalBalance == "DEBIT" {
			a.Signed = a.Debit - a.Credit
		} else {
			a.Signed = a.Credit - a.Debit
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps a caller-owned transaction so other modules can post
// entries atomically with their own writes. The caller owns commit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

func (r *txRepository) GetEntryForUpdate(ctx context.Context, companyID, id int64) (JournalEntry, error) {
	return scanEntry(r.tx.QueryRow(ctx,
		`SELECT `+entryColumns+` FROM journal_entries WHERE company_id = $1 AND id = $2 FOR UPDATE`, companyID, id))
}

func (r *txRepository) GetLines(ctx context.Context, entryID int64) ([]JournalLine, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT id, entry_id, account_id, debit, credit, description FROM journal_lines WHERE entry_id = $1 ORDER BY id`, entryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []JournalLine
	for rows.Next() {
		var l JournalLine
		if err := rows.Scan(&l.ID, &l.EntryID, &l.AccountID, &l.Debit, &l.Credit, &l.Description); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (r *txRepository) GetPostingAccounts(ctx context.Context, companyID int64, ids []int64) (map[int64]postingAccount, error) {
	rows, err := r.tx.Query(ctx,
		`SELECT id, code, normal_balance, is_postable, lifecycle FROM accounts WHERE company_id = $1 AND id = ANY($2)`,
		companyID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64]postingAccount, len(ids))
	for rows.Next() {
		var a postingAccount
		if err := rows.Scan(&a.ID, &a.Code, &a.NormalBalance, &a.IsPostable, &a.Lifecycle); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}

func (r *txRepository) InsertEntry(ctx context.Context, e JournalEntry) (JournalEntry, error) {
	row := r.tx.QueryRow(ctx, `
INSERT INTO journal_entries (company_id, entry_number, entry_date, memo, status, total_debit, total_credit, reversal_of, posted_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
RETURNING id, created_at, updated_at`,
		e.CompanyID, e.EntryNumber, e.EntryDate, e.Memo, e.Status, e.TotalDebit, e.TotalCredit, e.ReversalOf, e.PostedBy, e.PostedAt)
	if err := row.Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	return e, nil
}

func (r *txRepository) InsertLines(ctx context.Context, entryID int64, lines []PostingLineInput) error {
	for _, l := range lines {
		_, err := r.tx.Exec(ctx,
			`INSERT INTO journal_lines (entry_id, account_id, debit, credit, description) VALUES ($1,$2,$3,$4,$5)`,
			entryID, l.AccountID, l.Debit, l.Credit, l.Description)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) AdjustAccountBalance(ctx context.Context, companyID, accountID int64, delta float64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE accounts SET current_balance = current_balance + $3, updated_at = now() WHERE company_id = $1 AND id = $2`,
		companyID, accountID, delta)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotPostable
	}
	return nil
}

func (r *txRepository) MarkReversed(ctx context.Context, companyID, entryID, reversedBy int64) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE journal_entries SET status = 'REVERSED', reversed_by = $3, updated_at = now() WHERE company_id = $1 AND id = $2 AND status = 'POSTED'`,
		companyID, entryID, reversedBy)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotReversible
	}
	return nil
}
