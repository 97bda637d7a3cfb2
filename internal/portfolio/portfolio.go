// Package portfolio aggregates risk exposure and returns across a set of
// investment positions.
package portfolio

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

var (
	// ErrEmptyPortfolio is returned when there is nothing to aggregate: no
	// positions, or positions whose amounts sum to zero.
	ErrEmptyPortfolio = errors.New("portfolio: no positions to aggregate")

	// ErrInvalidPosition is returned for a negative amount or unknown grade.
	ErrInvalidPosition = fmt.Errorf("portfolio: %w: invalid position", model.ErrInvalidInput)

	// ErrInvalidROIInput is returned when invested or months is not positive.
	ErrInvalidROIInput = fmt.Errorf("portfolio: %w: invested amount and months must be positive", model.ErrInvalidInput)
)

var (
	hundred        = decimal.NewFromInt(100)
	pointsPerGrade = decimal.NewFromInt(20)
	half           = decimal.RequireFromString("0.5")
)

// Aggregate computes the risk distribution, amount-weighted average grade
// and diversification score of positions. Percentages and the score are
// rounded with model.RoundMoney, so a distribution over thirds sums to 99.99.
//
// The weighted mean grade ordinal (A=1 .. E=5) snaps to the nearest grade;
// a mean exactly halfway between two grades resolves to the worse one.
func Aggregate(positions []model.PortfolioPosition) (model.RiskSummary, error) {
	if len(positions) == 0 {
		return model.RiskSummary{}, ErrEmptyPortfolio
	}

	byGrade := make(map[model.Grade]decimal.Decimal)
	total := decimal.Zero
	weighted := decimal.Zero
	for i, p := range positions {
		if p.Amount.IsNegative() || !p.Grade.IsValid() {
			return model.RiskSummary{}, fmt.Errorf("%w: position %d (grade %q, amount %s)",
				ErrInvalidPosition, i, p.Grade, p.Amount)
		}
		if p.Amount.IsZero() {
			continue
		}
		byGrade[p.Grade] = byGrade[p.Grade].Add(p.Amount)
		total = total.Add(p.Amount)
		weighted = weighted.Add(p.Amount.Mul(decimal.NewFromInt(int64(p.Grade.Ordinal()))))
	}
	if total.IsZero() {
		return model.RiskSummary{}, ErrEmptyPortfolio
	}

	dist := make(map[model.Grade]decimal.Decimal, len(byGrade))
	maxPct := decimal.Zero
	for g, amt := range byGrade {
		pct := hundred
		if !amt.Equal(total) {
			pct = amt.Div(total).Mul(hundred)
		}
		dist[g] = model.RoundMoney(pct)
		if pct.GreaterThan(maxPct) {
			maxPct = pct
		}
	}

	score := decimal.NewFromInt(int64(len(byGrade))).Mul(pointsPerGrade).
		Add(hundred.Sub(maxPct))
	score = model.RoundMoney(decimal.Min(score, hundred))

	return model.RiskSummary{
		DiversificationScore: score,
		AverageGrade:         snapGrade(weighted.Div(total)),
		RiskDistribution:     dist,
	}, nil
}

// snapGrade maps a mean ordinal in [1, 5] to the nearest grade. Exact
// half-way values round toward the higher ordinal (worse grade).
func snapGrade(mean decimal.Decimal) model.Grade {
	ord := int(mean.Add(half).Floor().IntPart())
	if ord < 1 {
		ord = 1
	}
	if ord > len(model.Grades) {
		ord = len(model.Grades)
	}
	return model.Grades[ord-1]
}

// ROI summarizes the return on an investment held for a number of months.
type ROI struct {
	TotalReturn         decimal.Decimal `json:"total_return"`
	TotalReturnPct      decimal.Decimal `json:"total_return_pct"`
	AnnualizedReturnPct decimal.Decimal `json:"annualized_return_pct"`
}

// ComputeROI returns the absolute, percentage and annualized return of
// moving from invested to currentValue over months. The annualized figure
// compounds: ((current/invested)^(12/months) - 1) * 100.
func ComputeROI(invested, currentValue decimal.Decimal, months int) (ROI, error) {
	if !invested.IsPositive() || months <= 0 || currentValue.IsNegative() {
		return ROI{}, ErrInvalidROIInput
	}

	gain := currentValue.Sub(invested)

	// Fractional exponent: computed in float64, converted straight back.
	ratio := currentValue.Div(invested).InexactFloat64()
	annualized := (math.Pow(ratio, 12/float64(months)) - 1) * 100

	return ROI{
		TotalReturn:         model.RoundMoney(gain),
		TotalReturnPct:      model.RoundMoney(gain.Div(invested).Mul(hundred)),
		AnnualizedReturnPct: model.RoundMoney(decimal.NewFromFloat(annualized)),
	}, nil
}
