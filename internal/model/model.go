// Package model defines the core domain types shared across the lending platform.
// All monetary values use shopspring/decimal, never float64.
package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places kept for currency amounts and
// percentages. Rounding is always half-even (banker's rounding).
const MoneyScale int32 = 2

// ErrInvalidInput marks malformed or out-of-range input supplied by a caller.
var ErrInvalidInput = errors.New("invalid input")

var hundred = decimal.NewFromInt(100)

// RoundMoney applies the platform rounding rule: half-even to MoneyScale places.
func RoundMoney(v decimal.Decimal) decimal.Decimal {
	return v.RoundBank(MoneyScale)
}

// Percent returns part/whole*100 rounded with RoundMoney. A non-positive
// whole yields zero.
func Percent(part, whole decimal.Decimal) decimal.Decimal {
	if !whole.IsPositive() {
		return decimal.Zero
	}
	return RoundMoney(part.Div(whole).Mul(hundred))
}

// HomeOwnership is the borrower's housing situation.
type HomeOwnership string

const (
	HomeRent     HomeOwnership = "rent"
	HomeOwn      HomeOwnership = "own"
	HomeMortgage HomeOwnership = "mortgage"
)

// IsValid reports whether h is one of the known housing situations.
func (h HomeOwnership) IsValid() bool {
	switch h {
	case HomeRent, HomeOwn, HomeMortgage:
		return true
	}
	return false
}

// Grade is a discrete credit risk bucket, A (best) through E (worst).
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeE Grade = "E"
)

// Grades lists every grade from best to worst.
var Grades = []Grade{GradeA, GradeB, GradeC, GradeD, GradeE}

// Ordinal maps A..E to 1..5. Unknown grades return 0.
func (g Grade) Ordinal() int {
	for i, known := range Grades {
		if g == known {
			return i + 1
		}
	}
	return 0
}

// IsValid reports whether g is one of A..E.
func (g Grade) IsValid() bool {
	return g.Ordinal() != 0
}

// FinancialProfile is the borrower information a credit score is derived from.
type FinancialProfile struct {
	AnnualIncome        decimal.Decimal `json:"annual_income"`
	CurrentMonthlyDebt  decimal.Decimal `json:"current_monthly_debt"`
	EmploymentYears     int             `json:"employment_years"`
	CreditHistoryYears  int             `json:"credit_history_years"`
	PreviousLoansRepaid int             `json:"previous_loans_repaid"`
	HomeOwnership       HomeOwnership   `json:"home_ownership"`
	HasBankAccount      bool            `json:"has_bank_account"`
}

// Validate checks the profile fields. The returned error wraps ErrInvalidInput.
func (p FinancialProfile) Validate() error {
	switch {
	case p.AnnualIncome.IsNegative():
		return fmt.Errorf("%w: annual_income cannot be negative", ErrInvalidInput)
	case p.CurrentMonthlyDebt.IsNegative():
		return fmt.Errorf("%w: current_monthly_debt cannot be negative", ErrInvalidInput)
	case p.EmploymentYears < 0:
		return fmt.Errorf("%w: employment_years cannot be negative", ErrInvalidInput)
	case p.CreditHistoryYears < 0:
		return fmt.Errorf("%w: credit_history_years cannot be negative", ErrInvalidInput)
	case p.PreviousLoansRepaid < 0:
		return fmt.Errorf("%w: previous_loans_repaid cannot be negative", ErrInvalidInput)
	case !p.HomeOwnership.IsValid():
		return fmt.Errorf("%w: home_ownership must be rent, own or mortgage", ErrInvalidInput)
	}
	return nil
}

// ScoreResult is the outcome of scoring a profile. Grade and rate are always
// derived from the score.
type ScoreResult struct {
	CreditScore  int             `json:"credit_score"`
	CreditGrade  Grade           `json:"credit_grade"`
	InterestRate decimal.Decimal `json:"interest_rate"` // annual, percent
}

// LoanTerms are the repayment economics of a loan.
type LoanTerms struct {
	Principal      decimal.Decimal `json:"principal"`
	InterestRate   decimal.Decimal `json:"interest_rate"`
	TermMonths     int             `json:"term_months"`
	MonthlyPayment decimal.Decimal `json:"monthly_payment"`
	TotalPayment   decimal.Decimal `json:"total_payment"`
	TotalInterest  decimal.Decimal `json:"total_interest"`
}

// AmortizationRow is one period of a repayment schedule.
type AmortizationRow struct {
	Period           int             `json:"period"`
	Payment          decimal.Decimal `json:"payment"`
	Principal        decimal.Decimal `json:"principal"`
	Interest         decimal.Decimal `json:"interest"`
	RemainingBalance decimal.Decimal `json:"remaining_balance"`
}

// FundingState tracks how much of a loan's requested amount is covered.
// TotalFunded never exceeds RequestedAmount.
type FundingState struct {
	RequestedAmount   decimal.Decimal `json:"requested_amount"`
	TotalFunded       decimal.Decimal `json:"total_funded"`
	FundingPercentage decimal.Decimal `json:"funding_percentage"`
}

// maxOpenPercent is the highest percentage shown for a loan that still has
// money outstanding.
var maxOpenPercent = decimal.RequireFromString("99.99")

// NewFundingState builds a state with a derived funding percentage. Only a
// fully covered loan reports 100.
func NewFundingState(requested, funded decimal.Decimal) FundingState {
	pct := Percent(funded, requested)
	if funded.LessThan(requested) && pct.GreaterThan(maxOpenPercent) {
		pct = maxOpenPercent
	}
	return FundingState{
		RequestedAmount:   requested,
		TotalFunded:       funded,
		FundingPercentage: pct,
	}
}

// Remaining is the amount still open for investment.
func (s FundingState) Remaining() decimal.Decimal {
	return s.RequestedAmount.Sub(s.TotalFunded)
}

// IsFullyFunded reports whether the whole requested amount is covered.
func (s FundingState) IsFullyFunded() bool {
	return s.TotalFunded.GreaterThanOrEqual(s.RequestedAmount)
}

// PortfolioPosition is a single investor holding used for risk aggregation.
type PortfolioPosition struct {
	Amount         decimal.Decimal `json:"amount"`
	Grade          Grade           `json:"grade"`
	RealizedReturn decimal.Decimal `json:"realized_return"`
}

// RiskSummary aggregates exposure of a set of positions across grades.
type RiskSummary struct {
	DiversificationScore decimal.Decimal           `json:"diversification_score"`
	AverageGrade         Grade                     `json:"average_grade"`
	RiskDistribution     map[Grade]decimal.Decimal `json:"risk_distribution"` // grade → % of invested amount
}

// LoanStatus is the lifecycle state of a loan request.
type LoanStatus string

const (
	LoanSubmitted LoanStatus = "submitted"
	LoanApproved  LoanStatus = "approved"
	LoanRejected  LoanStatus = "rejected"
	LoanFunded    LoanStatus = "funded"
	LoanActive    LoanStatus = "active"
	LoanCompleted LoanStatus = "completed"
	LoanDefaulted LoanStatus = "defaulted"
)

// loanTransitions lists the allowed manual status changes.
var loanTransitions = map[LoanStatus][]LoanStatus{
	LoanSubmitted: {LoanApproved, LoanRejected},
	LoanFunded:    {LoanActive},
	LoanActive:    {LoanCompleted, LoanDefaulted},
}

// CanTransition reports whether a loan may move from s to next.
func (s LoanStatus) CanTransition(next LoanStatus) bool {
	for _, allowed := range loanTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Loan is a borrower's request together with its scoring outcome and
// funding progress.
type Loan struct {
	ID                string           `json:"id" db:"id"`
	BorrowerID        string           `json:"borrower_id" db:"borrower_id"`
	Amount            decimal.Decimal  `json:"amount" db:"amount"`
	Purpose           string           `json:"purpose" db:"purpose"`
	TermMonths        int              `json:"term_months" db:"term_months"`
	Profile           FinancialProfile `json:"profile"`
	CreditScore       int              `json:"credit_score" db:"credit_score"`
	CreditGrade       Grade            `json:"credit_grade" db:"credit_grade"`
	InterestRate      decimal.Decimal  `json:"interest_rate" db:"interest_rate"`
	MonthlyPayment    decimal.Decimal  `json:"monthly_payment" db:"monthly_payment"`
	Status            LoanStatus       `json:"status" db:"status"`
	TotalFunded       decimal.Decimal  `json:"total_funded" db:"total_funded"`
	FundingPercentage decimal.Decimal  `json:"funding_percentage" db:"funding_percentage"`
	CreatedAt         time.Time        `json:"created_at" db:"created_at"`
	FundedAt          *time.Time       `json:"funded_at,omitempty" db:"funded_at"`
}

// FundingState returns the loan's current funding snapshot.
func (l *Loan) FundingState() FundingState {
	return NewFundingState(l.Amount, l.TotalFunded)
}

// ApplyFunding copies a funding state back onto the loan.
func (l *Loan) ApplyFunding(s FundingState) {
	l.TotalFunded = s.TotalFunded
	l.FundingPercentage = s.FundingPercentage
}

// InvestmentStatus is the lifecycle state of an investment.
type InvestmentStatus string

const (
	InvestmentConfirmed InvestmentStatus = "confirmed"
	InvestmentActive    InvestmentStatus = "active"
	InvestmentCompleted InvestmentStatus = "completed"
	InvestmentCancelled InvestmentStatus = "cancelled"
)

// Investment is an immutable record of capital committed to a loan.
type Investment struct {
	ID             string           `json:"id" db:"id"`
	InvestorID     string           `json:"investor_id" db:"investor_id"`
	LoanID         string           `json:"loan_id" db:"loan_id"`
	Amount         decimal.Decimal  `json:"amount" db:"amount"`
	CreditGrade    Grade            `json:"credit_grade" db:"credit_grade"`
	InterestRate   decimal.Decimal  `json:"interest_rate" db:"interest_rate"`
	ExpectedReturn decimal.Decimal  `json:"expected_return" db:"expected_return"`
	ActualReturn   decimal.Decimal  `json:"actual_return" db:"actual_return"`
	Status         InvestmentStatus `json:"status" db:"status"`
	CreatedAt      time.Time        `json:"created_at" db:"created_at"`
}

// Position converts the investment into a risk aggregation input.
func (i *Investment) Position() PortfolioPosition {
	return PortfolioPosition{
		Amount:         i.Amount,
		Grade:          i.CreditGrade,
		RealizedReturn: i.ActualReturn,
	}
}
