package cashflow

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/helios-erp/helios-gl/internal/accounts"
	"github.com/helios-erp/helios-gl/internal/ledger"
	"github.com/helios-erp/helios-gl/internal/shared"
)

// LedgerPort is the slice of the ledger the report deriver reads. Statements
// are pure derivations; nothing here writes.
type LedgerPort interface {
	PeriodActivity(ctx context.Context, companyID int64, from, to time.Time) ([]ledger.AccountActivity, error)
	BalanceAsOf(ctx context.Context, companyID, accountID int64, asOf time.Time) (float64, error)
	EntriesWithLines(ctx context.Context, companyID int64, from, to time.Time) ([]ledger.JournalEntry, error)
}

// AccountsPort exposes the chart lookups the classifier needs.
type AccountsPort interface {
	List(ctx context.Context, companyID int64, filter accounts.ListFilter) ([]accounts.Account, error)
}

// Service derives cash-flow statements from posted ledger activity. Derivation
// is read-only and moderately expensive, so concurrent identical requests are
// collapsed through a singleflight group.
type Service struct {
	ledger   LedgerPort
	accounts AccountsPort
	scheme   CodeScheme
	currency string
	group    singleflight.Group
	printer  *message.Printer
	now      func() time.Time
}

func NewService(lg LedgerPort, acc AccountsPort, scheme CodeScheme, currency string) *Service {
	return &Service{
		ledger:   lg,
		accounts: acc,
		scheme:   scheme,
		currency: currency,
		printer:  message.NewPrinter(language.English),
		now:      time.Now,
	}
}

func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Service) formatMoney(v float64) string {
	return s.printer.Sprintf("%s %v", s.currency,
		number.Decimal(v, number.MinFractionDigits(2), number.MaxFractionDigits(2)))
}

// chart loads the full chart once and returns it keyed by account ID along
// with the set of cash accounts. Cash is identified by category, not by code.
func (s *Service) chart(ctx context.Context, companyID int64) (map[int64]accounts.Account, map[int64]bool, error) {
	all, err := s.accounts.List(ctx, companyID, accounts.ListFilter{})
	if err != nil {
		return nil, nil, err
	}
	byID := make(map[int64]accounts.Account, len(all))
	cash := make(map[int64]bool)
	for _, a := range all {
		byID[a.ID] = a
		if a.Category == accounts.CategoryCash || a.Category == accounts.CategoryBank {
			cash[a.ID] = true
		}
	}
	return byID, cash, nil
}

func (s *Service) cashBalance(ctx context.Context, companyID int64, cash map[int64]bool, asOf time.Time) (float64, error) {
	ids := make([]int64, 0, len(cash))
	for id := range cash {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var total float64
	for _, id := range ids {
		bal, err := s.ledger.BalanceAsOf(ctx, companyID, id, asOf)
		if err != nil {
			return 0, err
		}
		total += bal
	}
	return shared.Round2(total), nil
}

// Indirect derives the indirect-method statement: net income adjusted for
// depreciation and working-capital movement, with investing and financing
// sections classified by account code. The statement reconciles its net
// change against the movement of the cash accounts themselves; a variance of
// one currency unit or more flags the statement unreconciled rather than
// failing the request.
func (s *Service) Indirect(ctx context.Context, companyID int64, from, to time.Time) (IndirectStatement, error) {
	key := fmt.Sprintf("indirect:%d:%s:%s", companyID, from.Format(time.DateOnly), to.Format(time.DateOnly))
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.indirect(ctx, companyID, from, to)
	})
	if err != nil {
		return IndirectStatement{}, err
	}
	return v.(IndirectStatement), nil
}

func (s *Service) indirect(ctx context.Context, companyID int64, from, to time.Time) (IndirectStatement, error) {
	_, cash, err := s.chart(ctx, companyID)
	if err != nil {
		return IndirectStatement{}, err
	}
	activity, err := s.ledger.PeriodActivity(ctx, companyID, from, to)
	if err != nil {
		return IndirectStatement{}, err
	}

	st := IndirectStatement{From: from, To: to}
	for _, a := range activity {
		switch a.Type {
		case "REVENUE":
			st.NetIncome += a.Signed
		case "EXPENSE":
			st.NetIncome -= a.Signed
			if matchesPrefix(a.Code, s.scheme.Depreciation) {
				st.DepreciationAddBack += a.Signed
			}
		case "ASSET":
			if cash[a.AccountID] {
				continue
			}
			switch {
			case matchesPrefix(a.Code, s.scheme.CurrentAssets):
				// Asset build-up consumes cash.
				st.WorkingCapitalDeltas = append(st.WorkingCapitalDeltas, WorkingCapitalDelta{
					AccountID: a.AccountID, Code: a.Code, Name: a.Name,
					Delta: shared.Round2(a.Signed), Effect: shared.Round2(-a.Signed),
				})
			case matchesPrefix(a.Code, s.scheme.Investing):
				st.NetCashFromInvesting -= a.Signed
			}
		case "LIABILITY":
			switch {
			case matchesPrefix(a.Code, s.scheme.CurrentLiabilities):
				st.WorkingCapitalDeltas = append(st.WorkingCapitalDeltas, WorkingCapitalDelta{
					AccountID: a.AccountID, Code: a.Code, Name: a.Name,
					Delta: shared.Round2(a.Signed), Effect: shared.Round2(a.Signed),
				})
			case matchesPrefix(a.Code, s.scheme.Financing):
				st.NetCashFromFinancing += a.Signed
			}
		case "EQUITY":
			if matchesPrefix(a.Code, s.scheme.Financing) {
				st.NetCashFromFinancing += a.Signed
			}
		}
	}

	st.NetIncome = shared.Round2(st.NetIncome)
	st.DepreciationAddBack = shared.Round2(st.DepreciationAddBack)
	st.NetCashFromOperating = st.NetIncome + st.DepreciationAddBack
	for _, d := range st.WorkingCapitalDeltas {
		st.NetCashFromOperating += d.Effect
	}
	st.NetCashFromOperating = shared.Round2(st.NetCashFromOperating)
	st.NetCashFromInvesting = shared.Round2(st.NetCashFromInvesting)
	st.NetCashFromFinancing = shared.Round2(st.NetCashFromFinancing)
	st.NetChangeInCash = shared.Round2(st.NetCashFromOperating + st.NetCashFromInvesting + st.NetCashFromFinancing)

	st.OpeningCash, err = s.cashBalance(ctx, companyID, cash, from.AddDate(0, 0, -1))
	if err != nil {
		return IndirectStatement{}, err
	}
	st.ClosingCash, err = s.cashBalance(ctx, companyID, cash, to)
	if err != nil {
		return IndirectStatement{}, err
	}
	st.Variance = shared.Round2(st.ClosingCash - st.OpeningCash - st.NetChangeInCash)
	st.IsReconciled = math.Abs(st.Variance) < 1
	st.FormattedNetChange = s.formatMoney(st.NetChangeInCash)
	return st, nil
}

// Direct derives the direct-method statement by walking posted entries that
// touch a cash account and classifying each cash movement by the entry's
// dominant contra line.
func (s *Service) Direct(ctx context.Context, companyID int64, from, to time.Time) (DirectStatement, error) {
	key := fmt.Sprintf("direct:%d:%s:%s", companyID, from.Format(time.DateOnly), to.Format(time.DateOnly))
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.direct(ctx, companyID, from, to)
	})
	if err != nil {
		return DirectStatement{}, err
	}
	return v.(DirectStatement), nil
}

func (s *Service) direct(ctx context.Context, companyID int64, from, to time.Time) (DirectStatement, error) {
	byID, cash, err := s.chart(ctx, companyID)
	if err != nil {
		return DirectStatement{}, err
	}
	entries, err := s.ledger.EntriesWithLines(ctx, companyID, from, to)
	if err != nil {
		return DirectStatement{}, err
	}

	sections := map[Category]*DirectSection{
		CategoryOperating: {Category: CategoryOperating},
		CategoryInvesting: {Category: CategoryInvesting},
		CategoryFinancing: {Category: CategoryFinancing},
	}
	for _, e := range entries {
		contraCode, ok := dominantContra(e.Lines, cash, byID)
		if !ok {
			continue // pure cash transfer or no cash movement
		}
		cat := s.scheme.Classify(contraCode)
		for _, l := range e.Lines {
			if !cash[l.AccountID] {
				continue
			}
			item := DirectItem{
				EntryID:     e.ID,
				EntryNumber: e.EntryNumber,
				Date:        e.EntryDate,
				Memo:        e.Memo,
				ContraCode:  contraCode,
				Category:    cat,
				Inflow:      l.Debit,
				Outflow:     l.Credit,
			}
			sec := sections[cat]
			sec.Items = append(sec.Items, item)
			sec.Inflow = shared.Round2(sec.Inflow + item.Inflow)
			sec.Outflow = shared.Round2(sec.Outflow + item.Outflow)
		}
	}

	st := DirectStatement{From: from, To: to}
	for _, cat := range []Category{CategoryOperating, CategoryInvesting, CategoryFinancing} {
		sec := sections[cat]
		sec.Net = shared.Round2(sec.Inflow - sec.Outflow)
		st.Sections = append(st.Sections, *sec)
		st.TotalInflow = shared.Round2(st.TotalInflow + sec.Inflow)
		st.TotalOutflow = shared.Round2(st.TotalOutflow + sec.Outflow)
	}
	st.NetCashFlow = shared.Round2(st.TotalInflow - st.TotalOutflow)
	st.FormattedNet = s.formatMoney(st.NetCashFlow)
	return st, nil
}

// dominantContra picks the largest non-cash line of an entry. Entries moving
// money only between cash accounts have no contra and are skipped.
func dominantContra(lines []ledger.JournalLine, cash map[int64]bool, byID map[int64]accounts.Account) (string, bool) {
	var best float64
	var code string
	for _, l := range lines {
		if cash[l.AccountID] {
			continue
		}
		amt := l.Debit + l.Credit
		if amt > best {
			best = amt
			if a, ok := byID[l.AccountID]; ok {
				code = a.Code
			}
		}
	}
	return code, code != ""
}

const forecastHistoryMonths = 6

// ForecastMonths projects cash movement for the coming months by fitting a
// linear trend to the trailing six months of net cash movement. Months with
// no activity count as zero, which keeps a sparse ledger from inflating the
// trend.
func (s *Service) ForecastMonths(ctx context.Context, companyID int64, months int) (Forecast, error) {
	if months < 1 {
		months = 3
	}
	if months > 12 {
		months = 12
	}
	_, cash, err := s.chart(ctx, companyID)
	if err != nil {
		return Forecast{}, err
	}

	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	var nets, inflows, outflows []float64
	for i := forecastHistoryMonths; i >= 1; i-- {
		from := monthStart.AddDate(0, -i, 0)
		to := monthStart.AddDate(0, -i+1, -1)
		activity, err := s.ledger.PeriodActivity(ctx, companyID, from, to)
		if err != nil {
			return Forecast{}, err
		}
		var in, out float64
		for _, a := range activity {
			if cash[a.AccountID] {
				in += a.Debit
				out += a.Credit
			}
		}
		inflows = append(inflows, in)
		outflows = append(outflows, out)
		nets = append(nets, shared.Round2(in-out))
	}

	slope, intercept := linearFit(nets)
	var avgIn, avgOut float64
	for i := range inflows {
		avgIn += inflows[i]
		avgOut += outflows[i]
	}
	avgIn /= float64(len(inflows))
	avgOut /= float64(len(outflows))

	f := Forecast{BasedOnMonths: forecastHistoryMonths, Trend: shared.Round2(slope)}
	for i := 1; i <= months; i++ {
		projected := shared.Round2(intercept + slope*float64(forecastHistoryMonths-1+i))
		m := monthStart.AddDate(0, i, 0).Format("2006-01")
		// Keep the in/out split at its historical shape, shifted by the trend.
		half := shared.Round2((projected - shared.Round2(avgIn-avgOut)) / 2)
		f.Months = append(f.Months, ForecastMonth{
			Month:            m,
			ProjectedInflow:  shared.Round2(avgIn + half),
			ProjectedOutflow: shared.Round2(avgOut - half),
			ProjectedNet:     projected,
		})
	}
	return f, nil
}

// linearFit returns the least-squares slope and intercept of ys over the
// index axis 0..n-1.
func linearFit(ys []float64) (slope, intercept float64) {
	n := float64(len(ys))
	if n == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}
