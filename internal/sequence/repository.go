package sequence

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository encapsulates DB operations for document sequences.
type Repository interface {
	// WithTx runs fn against a transaction-bound repository; the counter
	// increment and its usage-log rows commit or roll back together.
	WithTx(ctx context.Context, fn func(Repository) error) error
	List(ctx context.Context, companyID int64) ([]DocumentSequence, error)
	Get(ctx context.Context, companyID int64, docType, fiscalYear string) (DocumentSequence, error)
	Create(ctx context.Context, in CreateInput) (DocumentSequence, error)
	UpdateFormat(ctx context.Context, in UpdateInput) (DocumentSequence, error)
	// IncrementAndGet performs the atomic find-and-increment, creating the
	// sequence row on first use with the supplied defaults. The returned
	// sequence reflects the post-increment state; its CurrentNumber is the
	// last number in the claimed block.
	IncrementAndGet(ctx context.Context, companyID int64, docType, fiscalYear string, by int64, defaults CreateInput) (DocumentSequence, error)
	RecordAllocation(ctx context.Context, a Allocation) error
	GetAllocation(ctx context.Context, sequenceID, number int64) (Allocation, error)
	MarkVoided(ctx context.Context, sequenceID, number int64, reason string, actorID int64) error
	ListAllocations(ctx context.Context, sequenceID int64) ([]Allocation, error)
}

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type repository struct {
	db   querier
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed sequence repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		// already transaction-bound
		return fn(r)
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if err := fn(&repository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const sequenceColumns = `id, company_id, document_type, fiscal_year, prefix, suffix, padding_length, separator, starting_number, current_number, created_at, updated_at`

func scanSequence(row pgx.Row) (DocumentSequence, error) {
	var s DocumentSequence
	err := row.Scan(&s.ID, &s.CompanyID, &s.DocumentType, &s.FiscalYear, &s.Prefix, &s.Suffix,
		&s.PaddingLength, &s.Separator, &s.StartingNumber, &s.CurrentNumber, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DocumentSequence{}, ErrNotFound
		}
		return DocumentSequence{}, err
	}
	return s, nil
}

func (r *repository) List(ctx context.Context, companyID int64) ([]DocumentSequence, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sequenceColumns+` FROM document_sequences
WHERE company_id=$1 ORDER BY document_type, fiscal_year`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []DocumentSequence
	for rows.Next() {
		s, err := scanSequence(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *repository) Get(ctx context.Context, companyID int64, docType, fiscalYear string) (DocumentSequence, error) {
	row := r.db.QueryRow(ctx, `SELECT `+sequenceColumns+` FROM document_sequences
WHERE company_id=$1 AND document_type=$2 AND fiscal_year=$3`, companyID, docType, fiscalYear)
	return scanSequence(row)
}

func (r *repository) Create(ctx context.Context, in CreateInput) (DocumentSequence, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO document_sequences
(company_id, document_type, fiscal_year, prefix, suffix, padding_length, separator, starting_number, current_number)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$8)
RETURNING `+sequenceColumns,
		in.CompanyID, in.DocumentType, in.FiscalYear, in.Prefix, in.Suffix, in.PaddingLength, in.Separator, in.StartingNumber)
	s, err := scanSequence(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_sequences_company_doc_fy" {
			return DocumentSequence{}, ErrDuplicate
		}
		return DocumentSequence{}, err
	}
	return s, nil
}

func (r *repository) UpdateFormat(ctx context.Context, in UpdateInput) (DocumentSequence, error) {
	row := r.db.QueryRow(ctx, `UPDATE document_sequences SET
prefix=COALESCE($4, prefix),
suffix=COALESCE($5, suffix),
padding_length=COALESCE($6, padding_length),
separator=COALESCE($7, separator),
updated_at=NOW()
WHERE company_id=$1 AND document_type=$2 AND fiscal_year=$3
RETURNING `+sequenceColumns,
		in.CompanyID, in.DocumentType, in.FiscalYear, in.Prefix, in.Suffix, in.PaddingLength, in.Separator)
	return scanSequence(row)
}

// IncrementAndGet is a single upsert statement: the row lock taken by the
// UPDATE arm serialises concurrent callers, so no two callers ever observe
// the same post-increment value.
func (r *repository) IncrementAndGet(ctx context.Context, companyID int64, docType, fiscalYear string, by int64, defaults CreateInput) (DocumentSequence, error) {
	row := r.db.QueryRow(ctx, `INSERT INTO document_sequences
(company_id, document_type, fiscal_year, prefix, suffix, padding_length, separator, starting_number, current_number)
VALUES ($1,$2,$3,$5,$6,$7,$8,$9,$9+$4)
ON CONFLICT (company_id, document_type, fiscal_year)
DO UPDATE SET current_number = document_sequences.current_number + $4, updated_at = NOW()
RETURNING `+sequenceColumns,
		companyID, docType, fiscalYear, by,
		defaults.Prefix, defaults.Suffix, defaults.PaddingLength, defaults.Separator, defaults.StartingNumber)
	return scanSequence(row)
}

func (r *repository) RecordAllocation(ctx context.Context, a Allocation) error {
	_, err := r.db.Exec(ctx, `INSERT INTO sequence_allocations (sequence_id, number, status, formatted, reason, actor_id)
VALUES ($1,$2,$3,$4,$5,$6)`, a.SequenceID, a.Number, a.Status, a.Formatted, a.Reason, a.ActorID)
	return err
}

func (r *repository) GetAllocation(ctx context.Context, sequenceID, number int64) (Allocation, error) {
	var a Allocation
	err := r.db.QueryRow(ctx, `SELECT id, sequence_id, number, status, formatted, reason, actor_id, created_at, updated_at
FROM sequence_allocations WHERE sequence_id=$1 AND number=$2`, sequenceID, number).
		Scan(&a.ID, &a.SequenceID, &a.Number, &a.Status, &a.Formatted, &a.Reason, &a.ActorID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Allocation{}, ErrAllocationMissing
		}
		return Allocation{}, err
	}
	return a, nil
}

func (r *repository) MarkVoided(ctx context.Context, sequenceID, number int64, reason string, actorID int64) error {
	cmd, err := r.db.Exec(ctx, `UPDATE sequence_allocations SET status='VOIDED', reason=$3, actor_id=$4, updated_at=NOW()
WHERE sequence_id=$1 AND number=$2 AND status='ALLOCATED'`, sequenceID, number, reason, actorID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotVoidable
	}
	return nil
}

func (r *repository) ListAllocations(ctx context.Context, sequenceID int64) ([]Allocation, error) {
	rows, err := r.db.Query(ctx, `SELECT id, sequence_id, number, status, formatted, reason, actor_id, created_at, updated_at
FROM sequence_allocations WHERE sequence_id=$1 ORDER BY number`, sequenceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.SequenceID, &a.Number, &a.Status, &a.Formatted, &a.Reason, &a.ActorID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
