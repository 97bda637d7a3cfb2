// Package amortization implements fixed-rate loan amortization.
//
// The monthly payment follows the standard annuity formula:
//
//	payment = P * r * (1+r)^n / ((1+r)^n - 1),  r = annualRate/100/12
//
// A zero rate degenerates to P/n. Payments and every schedule component are
// rounded half-even to cents. The final row absorbs the accumulated rounding
// drift so the remaining balance closes at exactly zero.
//
// Compounding uses decimal multiplication rather than float64 pow; the
// engine is stateless and safe for concurrent use.
package amortization

import (
	"fmt"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

var (
	// ErrInvalidTerm is returned when the term is not in the allowed set.
	ErrInvalidTerm = fmt.Errorf("amortization: %w: term not allowed", model.ErrInvalidInput)

	// ErrInvalidPrincipal is returned for a non-positive principal.
	ErrInvalidPrincipal = fmt.Errorf("amortization: %w: principal must be positive", model.ErrInvalidInput)

	// ErrInvalidRate is returned for a negative annual rate.
	ErrInvalidRate = fmt.Errorf("amortization: %w: rate cannot be negative", model.ErrInvalidInput)
)

// growthScale bounds the precision of intermediate compounding factors.
const growthScale int32 = 24

var (
	hundred = decimal.NewFromInt(100)
	twelve  = decimal.NewFromInt(12)
	one     = decimal.NewFromInt(1)
)

// Config restricts the loan terms accepted by Quote.
type Config struct {
	AllowedTerms []int // months
}

// DefaultConfig returns the platform's standard terms.
func DefaultConfig() Config {
	return Config{AllowedTerms: []int{12, 24, 36, 48, 60}}
}

// Engine computes payments and schedules.
type Engine struct {
	cfg Config
}

// NewEngine creates an engine. An empty term list falls back to the defaults.
func NewEngine(cfg Config) *Engine {
	if len(cfg.AllowedTerms) == 0 {
		cfg = DefaultConfig()
	}
	return &Engine{cfg: cfg}
}

// AllowedTerms returns a copy of the accepted terms in months.
func (e *Engine) AllowedTerms() []int {
	return slices.Clone(e.cfg.AllowedTerms)
}

// ValidateTerm reports ErrInvalidTerm when months is not an allowed term.
func (e *Engine) ValidateTerm(months int) error {
	if !slices.Contains(e.cfg.AllowedTerms, months) {
		return fmt.Errorf("%w: %d months (allowed %v)", ErrInvalidTerm, months, e.cfg.AllowedTerms)
	}
	return nil
}

func monthlyRate(annualRatePct decimal.Decimal) decimal.Decimal {
	return annualRatePct.Div(hundred).Div(twelve)
}

// growth computes (1+r)^n by repeated multiplication at growthScale places.
func growth(r decimal.Decimal, n int) decimal.Decimal {
	base := one.Add(r)
	f := one
	for i := 0; i < n; i++ {
		f = f.Mul(base).Round(growthScale)
	}
	return f
}

// MonthlyPayment returns the fixed monthly installment, rounded to cents.
// termMonths must be positive; it is not checked against the allowed set.
func (e *Engine) MonthlyPayment(principal, annualRatePct decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	if err := checkInputs(principal, annualRatePct, termMonths); err != nil {
		return decimal.Zero, err
	}
	return payment(principal, annualRatePct, termMonths), nil
}

func checkInputs(principal, annualRatePct decimal.Decimal, termMonths int) error {
	if termMonths <= 0 {
		return fmt.Errorf("%w: %d months", ErrInvalidTerm, termMonths)
	}
	if !principal.IsPositive() {
		return ErrInvalidPrincipal
	}
	if annualRatePct.IsNegative() {
		return ErrInvalidRate
	}
	return nil
}

func payment(principal, annualRatePct decimal.Decimal, n int) decimal.Decimal {
	if annualRatePct.IsZero() {
		return model.RoundMoney(principal.Div(decimal.NewFromInt(int64(n))))
	}
	r := monthlyRate(annualRatePct)
	f := growth(r, n)
	return model.RoundMoney(principal.Mul(r).Mul(f).Div(f.Sub(one)))
}

// Schedule returns exactly termMonths rows. Each row's interest is the
// remaining balance times the monthly rate; the last row pays off whatever
// balance is left.
func (e *Engine) Schedule(principal, annualRatePct decimal.Decimal, termMonths int) ([]model.AmortizationRow, error) {
	if err := checkInputs(principal, annualRatePct, termMonths); err != nil {
		return nil, err
	}

	pay := payment(principal, annualRatePct, termMonths)
	r := monthlyRate(annualRatePct)
	balance := principal
	rows := make([]model.AmortizationRow, 0, termMonths)

	for period := 1; period <= termMonths; period++ {
		interest := model.RoundMoney(balance.Mul(r))
		princ := pay.Sub(interest)
		rowPayment := pay

		if period == termMonths || princ.GreaterThan(balance) {
			princ = balance
			rowPayment = princ.Add(interest)
		}

		balance = balance.Sub(princ)
		if balance.IsNegative() {
			balance = decimal.Zero
		}

		rows = append(rows, model.AmortizationRow{
			Period:           period,
			Payment:          rowPayment,
			Principal:        princ,
			Interest:         interest,
			RemainingBalance: balance,
		})
	}
	return rows, nil
}

// TotalInterest sums the interest column of the schedule.
func (e *Engine) TotalInterest(principal, annualRatePct decimal.Decimal, termMonths int) (decimal.Decimal, error) {
	rows, err := e.Schedule(principal, annualRatePct, termMonths)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Interest)
	}
	return total, nil
}

// Quote validates the term against the allowed set and returns the loan's
// repayment economics. Totals are taken from the schedule so they match
// what the borrower actually pays.
func (e *Engine) Quote(principal, annualRatePct decimal.Decimal, termMonths int) (model.LoanTerms, error) {
	if err := e.ValidateTerm(termMonths); err != nil {
		return model.LoanTerms{}, err
	}
	rows, err := e.Schedule(principal, annualRatePct, termMonths)
	if err != nil {
		return model.LoanTerms{}, err
	}

	totalInterest := decimal.Zero
	totalPaid := decimal.Zero
	for _, row := range rows {
		totalInterest = totalInterest.Add(row.Interest)
		totalPaid = totalPaid.Add(row.Payment)
	}

	return model.LoanTerms{
		Principal:      principal,
		InterestRate:   annualRatePct,
		TermMonths:     termMonths,
		MonthlyPayment: payment(principal, annualRatePct, termMonths),
		TotalPayment:   totalPaid,
		TotalInterest:  totalInterest,
	}, nil
}
