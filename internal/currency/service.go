package currency

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helios-erp/helios-gl/internal/accounts"
	"github.com/helios-erp/helios-gl/internal/ledger"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// AccountsPort locates the forex gain and loss accounts.
type AccountsPort interface {
	FindByCategory(ctx context.Context, companyID int64, cat accounts.Category, namePattern string) (accounts.Account, error)
}

// LedgerPort posts adjustment entries on the caller's transaction.
type LedgerPort interface {
	PostTx(ctx context.Context, tx ledger.TxRepository, in ledger.PostingInput, number string) (ledger.JournalEntry, error)
}

// Service owns exchange rates, foreign positions, revaluation, and
// settlement. Rates quote base-currency units per one foreign unit.
type Service struct {
	repo         Repository
	audit        shared.AuditPort
	cache        *RateCache
	accounts     AccountsPort
	ledger       LedgerPort
	numbers      ledger.EntryNumberPort
	baseCurrency string
	now          func() time.Time
}

func NewService(repo Repository, audit shared.AuditPort, cache *RateCache, acc AccountsPort, led LedgerPort, numbers ledger.EntryNumberPort, baseCurrency string) *Service {
	return &Service{
		repo: repo, audit: audit, cache: cache, accounts: acc, ledger: led, numbers: numbers,
		baseCurrency: baseCurrency, now: time.Now,
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// BaseCurrency returns the pivot currency all conversions route through.
func (s *Service) BaseCurrency() string {
	return s.baseCurrency
}

// CreateRate records an immutable rate row and drops stale cache entries.
func (s *Service) CreateRate(ctx context.Context, in CreateRateInput) (ExchangeRate, error) {
	if err := in.Validate(); err != nil {
		return ExchangeRate{}, err
	}
	rate, err := s.repo.InsertRate(ctx, ExchangeRate{
		CompanyID:     in.CompanyID,
		Currency:      in.Currency,
		Rate:          in.Rate,
		EffectiveDate: in.EffectiveDate,
		CreatedBy:     in.ActorID,
	})
	if err != nil {
		return ExchangeRate{}, err
	}
	s.cache.Invalidate(ctx, in.CompanyID, in.Currency)
	s.record(ctx, in.ActorID, in.CompanyID, "currency.rate_created", rate.ID, shared.AuditSeverityInfo, map[string]any{
		"currency": in.Currency, "rate": in.Rate, "effective": in.EffectiveDate.Format(time.DateOnly),
	})
	return rate, nil
}

func (s *Service) ListRates(ctx context.Context, companyID int64, currency string) ([]ExchangeRate, error) {
	return s.repo.ListRates(ctx, companyID, currency)
}

// CurrentRate resolves the latest rate on or before asOf, cache first. The
// base currency is always 1.
func (s *Service) CurrentRate(ctx context.Context, companyID int64, currency string, asOf time.Time) (ExchangeRate, error) {
	if currency == s.baseCurrency {
		return ExchangeRate{CompanyID: companyID, Currency: currency, Rate: 1, EffectiveDate: asOf}, nil
	}
	if rate, ok := s.cache.Get(ctx, companyID, currency, asOf); ok {
		return rate, nil
	}
	rate, err := s.repo.LatestRate(ctx, companyID, currency, asOf)
	if err != nil {
		return ExchangeRate{}, err
	}
	s.cache.Set(ctx, asOf, rate)
	return rate, nil
}

// Convert moves an amount between currencies, pivoting through base for
// cross-currency pairs. A missing rate on either leg fails the conversion.
func (s *Service) Convert(ctx context.Context, in ConvertInput) (float64, error) {
	if in.From == in.To {
		return shared.Round2(in.Amount), nil
	}
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	base := in.Amount
	if in.From != s.baseCurrency {
		from, err := s.CurrentRate(ctx, in.CompanyID, in.From, asOf)
		if err != nil {
			return 0, err
		}
		base = in.Amount * from.Rate
	}
	if in.To == s.baseCurrency {
		return shared.Round2(base), nil
	}
	to, err := s.CurrentRate(ctx, in.CompanyID, in.To, asOf)
	if err != nil {
		return 0, err
	}
	return shared.Round2(base / to.Rate), nil
}

func (s *Service) ListBalances(ctx context.Context, companyID int64, currencies []string) ([]FCYBalance, error) {
	return s.repo.ListBalances(ctx, companyID, currencies)
}

// UpsertBalance records a foreign position, typically fed by integrations.
func (s *Service) UpsertBalance(ctx context.Context, in UpsertBalanceInput) (FCYBalance, error) {
	b, err := s.repo.UpsertBalance(ctx, FCYBalance{
		CompanyID:   in.CompanyID,
		AccountID:   in.AccountID,
		Currency:    in.Currency,
		FCYBalance:  shared.Round2(in.FCYBalance),
		BaseBalance: shared.Round2(in.BaseBalance),
	})
	if err != nil {
		return FCYBalance{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "currency.balance_upserted", b.ID, shared.AuditSeverityInfo, map[string]any{
		"account_id": in.AccountID, "currency": in.Currency,
	})
	return b, nil
}

// Revalue recomputes every non-zero foreign position at the latest rate. The
// difference against the carried base amount is the unrealized gain or loss.
// With PostAdjustment set, one consolidated balanced entry books the net
// against the forex gain or loss account, and the position snapshots update
// in the same transaction.
func (s *Service) Revalue(ctx context.Context, in RevalueInput) (RevaluationResult, error) {
	asOf := in.AsOf
	if asOf.IsZero() {
		asOf = s.now()
	}
	balances, err := s.repo.ListBalances(ctx, in.CompanyID, in.Currencies)
	if err != nil {
		return RevaluationResult{}, err
	}

	result := RevaluationResult{AsOf: asOf}
	rates := map[string]ExchangeRate{}
	updated := make([]FCYBalance, 0, len(balances))
	for _, b := range balances {
		if math.Abs(b.FCYBalance) <= shared.CentEpsilon {
			continue
		}
		rate, ok := rates[b.Currency]
		if !ok {
			rate, err = s.CurrentRate(ctx, in.CompanyID, b.Currency, asOf)
			if err != nil {
				return RevaluationResult{}, err
			}
			rates[b.Currency] = rate
		}
		newBase := shared.Round2(b.FCYBalance * rate.Rate)
		delta := shared.Round2(newBase - b.BaseBalance)
		result.Lines = append(result.Lines, RevaluationLine{
			AccountID:  b.AccountID,
			Currency:   b.Currency,
			Rate:       rate.Rate,
			FCYBalance: b.FCYBalance,
			OldBase:    b.BaseBalance,
			NewBase:    newBase,
			Delta:      delta,
		})
		result.TotalGainLoss += delta

		b.BaseBalance = newBase
		r := rate.Rate
		now := s.now()
		b.LastRevaluationRate = &r
		b.LastRevaluationAt = &now
		updated = append(updated, b)
	}
	result.TotalGainLoss = shared.Round2(result.TotalGainLoss)
	if len(updated) == 0 {
		return result, nil
	}

	var entryInput *ledger.PostingInput
	var number string
	if in.PostAdjustment && math.Abs(result.TotalGainLoss) > shared.CentEpsilon {
		entryInput, err = s.buildAdjustment(ctx, in, asOf, result)
		if err != nil {
			return RevaluationResult{}, err
		}
		if entryInput != nil {
			number, err = s.numbers.NextEntryNumber(ctx, in.CompanyID, asOf, in.ActorID)
			if err != nil {
				return RevaluationResult{}, err
			}
		}
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		for _, b := range updated {
			if err := s.repo.UpdateBalanceTx(ctx, tx, b); err != nil {
				return err
			}
		}
		if entryInput != nil {
			entry, err := s.ledger.PostTx(ctx, ledger.NewTxRepository(tx), *entryInput, number)
			if err != nil {
				return err
			}
			result.JournalEntryID = &entry.ID
		}
		return nil
	})
	if err != nil {
		return RevaluationResult{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "currency.revalued", 0, shared.AuditSeverityInfo, map[string]any{
		"total_gain_loss": result.TotalGainLoss, "positions": len(result.Lines),
	})
	return result, nil
}

// buildAdjustment writes each position's delta onto its GL account and the
// net of those booked deltas onto the forex gain or loss account. Returns
// nil when every delta falls under a cent and there is nothing to book.
func (s *Service) buildAdjustment(ctx context.Context, in RevalueInput, asOf time.Time, result RevaluationResult) (*ledger.PostingInput, error) {
	input := ledger.PostingInput{
		CompanyID: in.CompanyID,
		EntryDate: asOf,
		Memo:      "FX revaluation " + asOf.Format(time.DateOnly),
		ActorID:   in.ActorID,
		ActorRole: in.ActorRole,
	}
	var booked float64
	for _, line := range result.Lines {
		if math.Abs(line.Delta) <= shared.CentEpsilon {
			continue
		}
		l := ledger.PostingLineInput{AccountID: line.AccountID, Description: "Revalue " + line.Currency}
		if line.Delta > 0 {
			l.Debit = line.Delta
		} else {
			l.Credit = -line.Delta
		}
		input.Lines = append(input.Lines, l)
		booked += line.Delta
	}
	// The offset must mirror the lines actually written, not the raw total:
	// sub-cent deltas are withheld above, so booking TotalGainLoss would
	// leave the entry out of balance by the withheld cents.
	booked = shared.Round2(booked)
	if len(input.Lines) == 0 || math.Abs(booked) <= shared.CentEpsilon {
		return nil, nil
	}
	counter, err := s.gainLossAccount(ctx, in.CompanyID, booked)
	if err != nil {
		return nil, err
	}
	net := ledger.PostingLineInput{AccountID: counter.ID, Description: "Unrealized FX " + asOf.Format(time.DateOnly)}
	if booked > 0 {
		net.Credit = booked
	} else {
		net.Debit = -booked
	}
	input.Lines = append(input.Lines, net)
	return &input, nil
}

// Settle converts part of a foreign position at the settlement rate. The
// weighted-average historical rate prices the portion released; the spread
// against the settlement rate is the realized gain or loss, booked as a
// two-line entry against the bank account when it reaches a cent.
func (s *Service) Settle(ctx context.Context, in SettleInput) (SettlementResult, error) {
	if err := in.Validate(); err != nil {
		return SettlementResult{}, err
	}
	date := in.SettlementDate
	if date.IsZero() {
		date = s.now()
	}
	b, err := s.repo.GetBalance(ctx, in.CompanyID, in.AccountID, in.Currency)
	if err != nil {
		return SettlementResult{}, err
	}
	if math.Abs(b.FCYBalance) <= shared.CentEpsilon {
		return SettlementResult{}, ErrNoPosition
	}
	if in.FCYAmount > b.FCYBalance+shared.CentEpsilon {
		return SettlementResult{}, ErrInsufficientFCY
	}

	settlementRate := in.SettlementRate
	if settlementRate == 0 {
		rate, err := s.CurrentRate(ctx, in.CompanyID, in.Currency, date)
		if err != nil {
			return SettlementResult{}, err
		}
		settlementRate = rate.Rate
	}
	weighted := b.BaseBalance / b.FCYBalance
	historicalBase := shared.Round2(in.FCYAmount * weighted)
	settlementBase := shared.Round2(in.FCYAmount * settlementRate)
	realized := shared.Round2(settlementBase - historicalBase)

	result := SettlementResult{
		AccountID:        in.AccountID,
		Currency:         in.Currency,
		FCYAmount:        in.FCYAmount,
		WeightedRate:     weighted,
		SettlementRate:   settlementRate,
		HistoricalBase:   historicalBase,
		SettlementBase:   settlementBase,
		RealizedGainLoss: realized,
	}

	var entryInput *ledger.PostingInput
	var number string
	if math.Abs(realized) >= shared.CentEpsilon {
		counter, err := s.gainLossAccount(ctx, in.CompanyID, realized)
		if err != nil {
			return SettlementResult{}, err
		}
		input := ledger.PostingInput{
			CompanyID: in.CompanyID,
			EntryDate: date,
			Memo:      "FX settlement " + in.Currency + " " + date.Format(time.DateOnly),
			ActorID:   in.ActorID,
			ActorRole: in.ActorRole,
		}
		if realized > 0 {
			input.Lines = []ledger.PostingLineInput{
				{AccountID: in.BankAccountID, Debit: realized, Description: "Realized FX gain"},
				{AccountID: counter.ID, Credit: realized, Description: "Realized FX gain"},
			}
		} else {
			input.Lines = []ledger.PostingLineInput{
				{AccountID: counter.ID, Debit: -realized, Description: "Realized FX loss"},
				{AccountID: in.BankAccountID, Credit: -realized, Description: "Realized FX loss"},
			}
		}
		entryInput = &input
		number, err = s.numbers.NextEntryNumber(ctx, in.CompanyID, date, in.ActorID)
		if err != nil {
			return SettlementResult{}, err
		}
	}

	b.FCYBalance = shared.Round2(b.FCYBalance - in.FCYAmount)
	b.BaseBalance = shared.Round2(b.BaseBalance - historicalBase)
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		if err := s.repo.UpdateBalanceTx(ctx, tx, b); err != nil {
			return err
		}
		if entryInput != nil {
			entry, err := s.ledger.PostTx(ctx, ledger.NewTxRepository(tx), *entryInput, number)
			if err != nil {
				return err
			}
			result.JournalEntryID = &entry.ID
		}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}
	s.record(ctx, in.ActorID, in.CompanyID, "currency.settled", in.AccountID, shared.AuditSeverityInfo, map[string]any{
		"currency": in.Currency, "fcy_amount": in.FCYAmount, "realized": realized,
	})
	return result, nil
}

func (s *Service) gainLossAccount(ctx context.Context, companyID int64, amount float64) (accounts.Account, error) {
	if amount > 0 {
		return s.accounts.FindByCategory(ctx, companyID, accounts.CategoryForexGain, "Forex Gain")
	}
	return s.accounts.FindByCategory(ctx, companyID, accounts.CategoryForexLoss, "Forex Loss")
}

func (s *Service) record(ctx context.Context, actorID, companyID int64, action string, entityID int64, sev shared.AuditSeverity, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   actorID,
		CompanyID: companyID,
		Action:    action,
		Entity:    "currency",
		EntityID:  strconv.FormatInt(entityID, 10),
		Severity:  sev,
		Meta:      meta,
		At:        s.now(),
	})
}
