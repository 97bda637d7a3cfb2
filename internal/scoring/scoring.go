// Package scoring computes borrower credit scores from a financial profile.
//
// The score starts at a base of 300 and adds five weighted sub-scores
// (income, debt-to-income, credit history, employment, housing) plus a bank
// account bonus. Each sub-score is capped before weighting. The result is
// rounded to the nearest integer and clamped to [300, 850].
//
// This is the only scoring formula on the platform: live quotes and
// persisted loans are both scored here.
package scoring

import (
	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/grade"
	"github.com/straightothepoint12/FinscoreX/internal/model"
)

// AmountTier awards Points when a value is >= Min.
type AmountTier struct {
	Min    decimal.Decimal
	Points int
}

// RatioTier awards Points when a ratio is <= Max.
type RatioTier struct {
	Max    decimal.Decimal
	Points int
}

// CountTier awards Points when a count (years, loans) is >= Min.
type CountTier struct {
	Min    int
	Points int
}

// Weights are the multipliers applied to each capped sub-score.
type Weights struct {
	Income      decimal.Decimal
	DTI         decimal.Decimal
	History     decimal.Decimal
	Employment  decimal.Decimal
	Housing     decimal.Decimal
	BankAccount decimal.Decimal
}

// Config groups every threshold used by Model. Tier slices are checked in
// order and the first match wins.
type Config struct {
	BaseScore int
	MinScore  int
	MaxScore  int

	Weights Weights

	IncomeTiers []AmountTier
	IncomeFloor int

	DTITiers []RatioTier
	DTIFloor int

	HistoryTiers       []CountTier
	PreviousLoansTiers []CountTier
	HistoryCap         int

	EmploymentTiers []CountTier
	EmploymentFloor int

	HousingPoints     map[model.HomeOwnership]int
	BankAccountPoints int
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// DefaultConfig returns the production scoring table.
func DefaultConfig() Config {
	return Config{
		BaseScore: 300,
		MinScore:  300,
		MaxScore:  850,
		Weights: Weights{
			Income:      d("0.35"),
			DTI:         d("0.20"),
			History:     d("0.25"),
			Employment:  d("0.10"),
			Housing:     d("0.05"),
			BankAccount: d("0.05"),
		},
		IncomeTiers: []AmountTier{
			{Min: d("100000"), Points: 315},
			{Min: d("75000"), Points: 280},
			{Min: d("50000"), Points: 240},
			{Min: d("35000"), Points: 200},
			{Min: d("25000"), Points: 160},
			{Min: d("15000"), Points: 120},
		},
		IncomeFloor: 80,
		DTITiers: []RatioTier{
			{Max: d("0.15"), Points: 180},
			{Max: d("0.25"), Points: 150},
			{Max: d("0.35"), Points: 120},
			{Max: d("0.45"), Points: 90},
			{Max: d("0.55"), Points: 60},
		},
		DTIFloor: 30,
		HistoryTiers: []CountTier{
			{Min: 10, Points: 150},
			{Min: 7, Points: 120},
			{Min: 5, Points: 90},
			{Min: 3, Points: 60},
			{Min: 1, Points: 30},
		},
		PreviousLoansTiers: []CountTier{
			{Min: 3, Points: 75},
			{Min: 2, Points: 50},
			{Min: 1, Points: 25},
		},
		HistoryCap: 225,
		EmploymentTiers: []CountTier{
			{Min: 5, Points: 90},
			{Min: 3, Points: 70},
			{Min: 2, Points: 50},
			{Min: 1, Points: 30},
		},
		EmploymentFloor: 10,
		HousingPoints: map[model.HomeOwnership]int{
			model.HomeOwn:      45,
			model.HomeMortgage: 35,
			model.HomeRent:     20,
		},
		BankAccountPoints: 90,
	}
}

// Breakdown holds the capped, unweighted sub-scores of a profile.
type Breakdown struct {
	Income      int `json:"income"`
	DTI         int `json:"dti"`
	History     int `json:"history"`
	Employment  int `json:"employment"`
	Housing     int `json:"housing"`
	BankAccount int `json:"bank_account"`
}

// Model computes credit scores. It holds no mutable state and is safe for
// concurrent use.
type Model struct {
	cfg Config
}

// NewModel creates a scoring model over cfg.
func NewModel(cfg Config) *Model {
	return &Model{cfg: cfg}
}

// Score returns the credit score for p, in [MinScore, MaxScore].
// Callers validate p beforehand; see FinancialProfile.Validate.
func (m *Model) Score(p model.FinancialProfile) int {
	b := m.Breakdown(p)
	w := m.cfg.Weights

	total := decimal.NewFromInt(int64(m.cfg.BaseScore)).
		Add(points(b.Income).Mul(w.Income)).
		Add(points(b.DTI).Mul(w.DTI)).
		Add(points(b.History).Mul(w.History)).
		Add(points(b.Employment).Mul(w.Employment)).
		Add(points(b.Housing).Mul(w.Housing)).
		Add(points(b.BankAccount).Mul(w.BankAccount))

	score := int(total.Round(0).IntPart())
	if score < m.cfg.MinScore {
		return m.cfg.MinScore
	}
	if score > m.cfg.MaxScore {
		return m.cfg.MaxScore
	}
	return score
}

// Breakdown returns the individual sub-scores before weighting.
func (m *Model) Breakdown(p model.FinancialProfile) Breakdown {
	bank := 0
	if p.HasBankAccount {
		bank = m.cfg.BankAccountPoints
	}
	return Breakdown{
		Income:      m.incomeScore(p.AnnualIncome),
		DTI:         m.dtiScore(p.AnnualIncome, p.CurrentMonthlyDebt),
		History:     m.historyScore(p.CreditHistoryYears, p.PreviousLoansRepaid),
		Employment:  countTier(m.cfg.EmploymentTiers, p.EmploymentYears, m.cfg.EmploymentFloor),
		Housing:     m.cfg.HousingPoints[p.HomeOwnership],
		BankAccount: bank,
	}
}

func (m *Model) incomeScore(income decimal.Decimal) int {
	for _, t := range m.cfg.IncomeTiers {
		if income.GreaterThanOrEqual(t.Min) {
			return t.Points
		}
	}
	return m.cfg.IncomeFloor
}

// dtiScore awards nothing when there is no income to compare debt against.
func (m *Model) dtiScore(income, monthlyDebt decimal.Decimal) int {
	if !income.IsPositive() {
		return 0
	}
	ratio := DebtToIncome(income, monthlyDebt)
	for _, t := range m.cfg.DTITiers {
		if ratio.LessThanOrEqual(t.Max) {
			return t.Points
		}
	}
	return m.cfg.DTIFloor
}

func (m *Model) historyScore(years, previousLoans int) int {
	s := countTier(m.cfg.HistoryTiers, years, 0) +
		countTier(m.cfg.PreviousLoansTiers, previousLoans, 0)
	if s > m.cfg.HistoryCap {
		return m.cfg.HistoryCap
	}
	return s
}

func countTier(tiers []CountTier, v, floor int) int {
	for _, t := range tiers {
		if v >= t.Min {
			return t.Points
		}
	}
	return floor
}

func points(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}

// DebtToIncome returns annualized monthly debt over annual income, or zero
// when income is not positive.
func DebtToIncome(income, monthlyDebt decimal.Decimal) decimal.Decimal {
	if !income.IsPositive() {
		return decimal.Zero
	}
	return monthlyDebt.Mul(decimal.NewFromInt(12)).Div(income)
}

// Scorer combines a Model and a grade.Mapper into complete score results.
type Scorer struct {
	model  *Model
	grades *grade.Mapper
}

// NewScorer creates a scorer from both configurations.
func NewScorer(cfg Config, gradeCfg grade.Config) *Scorer {
	return &Scorer{
		model:  NewModel(cfg),
		grades: grade.NewMapper(gradeCfg),
	}
}

// NewDefaultScorer creates a scorer with the production tables.
func NewDefaultScorer() *Scorer {
	return NewScorer(DefaultConfig(), grade.DefaultConfig())
}

// Evaluate validates p and returns its score, grade and base rate.
func (s *Scorer) Evaluate(p model.FinancialProfile) (model.ScoreResult, error) {
	if err := p.Validate(); err != nil {
		return model.ScoreResult{}, err
	}
	return s.grades.Result(s.model.Score(p)), nil
}

// Model exposes the underlying score model.
func (s *Scorer) Model() *Model {
	return s.model
}
