// Package funding decides whether an investor contribution can be accepted
// against a loan's current funding state.
//
// TryFund is a pure function of (state, contribution). It never mutates the
// state it is given; an accepted contribution yields a new FundingState. The
// caller is responsible for applying it atomically per loan (row lock,
// serializable transaction or compare-and-swap) and for retrying from a
// fresh read when that fails.
package funding

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

var (
	// ErrAmountTooSmall matches every *AmountTooSmallError.
	ErrAmountTooSmall = errors.New("funding: contribution below minimum investment")

	// ErrExceedsRemaining matches every *ExceedsRemainingError.
	ErrExceedsRemaining = errors.New("funding: contribution exceeds remaining amount")

	// ErrInvalidContribution is returned for a non-positive contribution.
	ErrInvalidContribution = fmt.Errorf("funding: %w: contribution must be positive", model.ErrInvalidInput)

	// ErrInvalidPrecision is returned for a contribution with fractions of a cent.
	ErrInvalidPrecision = fmt.Errorf("funding: %w: contribution has more than %d decimal places", model.ErrInvalidInput, model.MoneyScale)

	// ErrInvalidState is returned when the funding state itself is
	// inconsistent (non-positive request, negative or excess funding).
	ErrInvalidState = fmt.Errorf("funding: %w: inconsistent funding state", model.ErrInvalidInput)
)

// DefaultMinimum is the smallest contribution accepted, in currency units.
var DefaultMinimum = decimal.NewFromInt(100)

// AmountTooSmallError rejects a contribution under the minimum investment.
type AmountTooSmallError struct {
	Minimum decimal.Decimal
	Amount  decimal.Decimal
}

func (e *AmountTooSmallError) Error() string {
	return fmt.Sprintf("%v: %s < %s", ErrAmountTooSmall, e.Amount, e.Minimum)
}

// Is lets errors.Is match against ErrAmountTooSmall.
func (e *AmountTooSmallError) Is(target error) bool {
	return target == ErrAmountTooSmall
}

// ExceedsRemainingError rejects a contribution larger than what the loan
// still needs. Remaining is the most that could be accepted right now.
type ExceedsRemainingError struct {
	Remaining decimal.Decimal
	Amount    decimal.Decimal
}

func (e *ExceedsRemainingError) Error() string {
	return fmt.Sprintf("%v: %s > %s", ErrExceedsRemaining, e.Amount, e.Remaining)
}

// Is lets errors.Is match against ErrExceedsRemaining.
func (e *ExceedsRemainingError) Is(target error) bool {
	return target == ErrExceedsRemaining
}

// Allocator applies the contribution rules.
type Allocator struct {
	// Minimum is the smallest accepted contribution.
	Minimum decimal.Decimal
}

// NewAllocator creates an allocator with the given minimum contribution.
// A non-positive minimum falls back to DefaultMinimum.
func NewAllocator(minimum decimal.Decimal) *Allocator {
	if !minimum.IsPositive() {
		minimum = DefaultMinimum
	}
	return &Allocator{Minimum: minimum}
}

// TryFund checks contribution against state and returns the state after
// accepting it. Rules are applied in order:
//  1. contribution < Minimum: *AmountTooSmallError
//  2. contribution > requested - funded: *ExceedsRemainingError
//  3. otherwise the contribution is added and the percentage recomputed.
func (a *Allocator) TryFund(state model.FundingState, contribution decimal.Decimal) (model.FundingState, error) {
	if err := validateState(state); err != nil {
		return state, err
	}
	if !contribution.IsPositive() {
		return state, ErrInvalidContribution
	}
	if !contribution.Equal(model.RoundMoney(contribution)) {
		return state, ErrInvalidPrecision
	}

	if contribution.LessThan(a.Minimum) {
		return state, &AmountTooSmallError{Minimum: a.Minimum, Amount: contribution}
	}

	remaining := state.Remaining()
	if contribution.GreaterThan(remaining) {
		return state, &ExceedsRemainingError{Remaining: remaining, Amount: contribution}
	}

	return model.NewFundingState(state.RequestedAmount, state.TotalFunded.Add(contribution)), nil
}

func validateState(s model.FundingState) error {
	switch {
	case !s.RequestedAmount.IsPositive():
		return fmt.Errorf("%w: requested amount %s", ErrInvalidState, s.RequestedAmount)
	case s.TotalFunded.IsNegative():
		return fmt.Errorf("%w: total funded %s", ErrInvalidState, s.TotalFunded)
	case s.TotalFunded.GreaterThan(s.RequestedAmount):
		return fmt.Errorf("%w: funded %s exceeds requested %s", ErrInvalidState, s.TotalFunded, s.RequestedAmount)
	}
	return nil
}

// StateFromContributions rebuilds a loan's funding state from the amounts of
// its recorded investments.
func StateFromContributions(requested decimal.Decimal, amounts []decimal.Decimal) (model.FundingState, error) {
	state := model.NewFundingState(requested, decimal.Sum(decimal.Zero, amounts...))
	if err := validateState(state); err != nil {
		return state, err
	}
	return state, nil
}

// ExpectedReturn is the simple interest an investor earns on amount at the
// loan's annual rate (percent) over durationMonths, rounded to cents.
func ExpectedReturn(amount, annualRatePct decimal.Decimal, durationMonths int) decimal.Decimal {
	return model.RoundMoney(amount.
		Mul(annualRatePct).Div(decimal.NewFromInt(100)).
		Mul(decimal.NewFromInt(int64(durationMonths))).Div(decimal.NewFromInt(12)))
}
