package scoring

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

func sampleProfile() model.FinancialProfile {
	return model.FinancialProfile{
		AnnualIncome:        d("85000"),
		CurrentMonthlyDebt:  d("1250"),
		EmploymentYears:     5,
		CreditHistoryYears:  7,
		PreviousLoansRepaid: 2,
		HomeOwnership:       model.HomeMortgage,
		HasBankAccount:      true,
	}
}

func TestScore_SampleProfile(t *testing.T) {
	m := NewModel(DefaultConfig())

	// 300 + 98 + 30 + 42.5 + 9 + 1.75 + 4.5 = 485.75
	assert.Equal(t, 486, m.Score(sampleProfile()))
}

func TestBreakdown_SampleProfile(t *testing.T) {
	m := NewModel(DefaultConfig())

	b := m.Breakdown(sampleProfile())
	assert.Equal(t, Breakdown{
		Income:      280,
		DTI:         150,
		History:     170,
		Employment:  90,
		Housing:     35,
		BankAccount: 90,
	}, b)
}

func TestEvaluate_SampleProfile(t *testing.T) {
	s := NewDefaultScorer()

	r, err := s.Evaluate(sampleProfile())
	require.NoError(t, err)
	assert.Equal(t, 486, r.CreditScore)
	assert.Equal(t, model.GradeD, r.CreditGrade)
	assert.True(t, r.InterestRate.Equal(d("22.8")), "rate %s", r.InterestRate)
}

func TestEvaluate_RejectsInvalidProfile(t *testing.T) {
	s := NewDefaultScorer()

	p := sampleProfile()
	p.AnnualIncome = d("-1")
	_, err := s.Evaluate(p)
	assert.ErrorIs(t, err, model.ErrInvalidInput)

	p = sampleProfile()
	p.HomeOwnership = "boat"
	_, err = s.Evaluate(p)
	assert.ErrorIs(t, err, model.ErrInvalidInput)
}

func TestScore_Deterministic(t *testing.T) {
	m := NewModel(DefaultConfig())
	p := sampleProfile()

	first := m.Score(p)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, m.Score(p))
	}
}

func TestScore_ZeroIncome(t *testing.T) {
	m := NewModel(DefaultConfig())

	p := model.FinancialProfile{
		AnnualIncome:       decimal.Zero,
		CurrentMonthlyDebt: d("500"),
		HomeOwnership:      model.HomeRent,
	}
	// Debt-to-income contributes nothing without income: 300 + 28 + 1 + 1.
	assert.Equal(t, 0, m.Breakdown(p).DTI)
	assert.Equal(t, 330, m.Score(p))
}

func TestScore_RoundsHalfUp(t *testing.T) {
	m := NewModel(DefaultConfig())

	p := model.FinancialProfile{
		AnnualIncome:       d("50000"),
		CurrentMonthlyDebt: decimal.Zero,
		EmploymentYears:    1,
		CreditHistoryYears: 1,
		HomeOwnership:      model.HomeRent,
	}
	// 300 + 84 + 36 + 7.5 + 3 + 1 = 431.5
	assert.Equal(t, 432, m.Score(p))
}

func TestScore_StrongestProfile(t *testing.T) {
	m := NewModel(DefaultConfig())

	p := model.FinancialProfile{
		AnnualIncome:        d("250000"),
		CurrentMonthlyDebt:  decimal.Zero,
		EmploymentYears:     20,
		CreditHistoryYears:  25,
		PreviousLoansRepaid: 10,
		HomeOwnership:       model.HomeOwn,
		HasBankAccount:      true,
	}
	b := m.Breakdown(p)
	assert.Equal(t, 225, b.History, "history is capped")
	// 300 + 110.25 + 36 + 56.25 + 9 + 2.25 + 4.5 = 518.25
	assert.Equal(t, 518, m.Score(p))
}

func TestScore_AlwaysInRange(t *testing.T) {
	m := NewModel(DefaultConfig())

	incomes := []string{"0", "10000", "30000", "60000", "90000", "500000"}
	debts := []string{"0", "200", "1500", "8000"}
	homes := []model.HomeOwnership{model.HomeRent, model.HomeOwn, model.HomeMortgage}

	for _, inc := range incomes {
		for _, debt := range debts {
			for _, home := range homes {
				for years := 0; years <= 12; years += 3 {
					p := model.FinancialProfile{
						AnnualIncome:        d(inc),
						CurrentMonthlyDebt:  d(debt),
						EmploymentYears:     years,
						CreditHistoryYears:  years,
						PreviousLoansRepaid: years / 3,
						HomeOwnership:       home,
						HasBankAccount:      years%2 == 0,
					}
					s := m.Score(p)
					assert.GreaterOrEqual(t, s, 300)
					assert.LessOrEqual(t, s, 850)
				}
			}
		}
	}
}

func TestScore_HigherIncomeNeverLowers(t *testing.T) {
	m := NewModel(DefaultConfig())

	low := sampleProfile()
	low.AnnualIncome = d("40000")
	low.CurrentMonthlyDebt = decimal.Zero
	high := low
	high.AnnualIncome = d("120000")

	assert.Greater(t, m.Score(high), m.Score(low))
}

func TestScore_ClampsToConfiguredRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxScore = 400
	m := NewModel(cfg)

	assert.Equal(t, 400, m.Score(sampleProfile()))
}

func TestDebtToIncome(t *testing.T) {
	assert.True(t, DebtToIncome(d("60000"), d("1000")).Equal(d("0.2")))
	assert.True(t, DebtToIncome(decimal.Zero, d("1000")).IsZero())
}

func TestRiskFactors_StrongProfileHasNone(t *testing.T) {
	assert.Empty(t, RiskFactors(sampleProfile()))
}

func TestRiskFactors_WeakProfile(t *testing.T) {
	p := model.FinancialProfile{
		AnnualIncome:       d("20000"),
		CurrentMonthlyDebt: d("1000"),
		EmploymentYears:    0,
		CreditHistoryYears: 1,
		HomeOwnership:      model.HomeRent,
	}

	factors := RiskFactors(p)
	require.Len(t, factors, 4)

	assert.Equal(t, "Low income", factors[0].Factor)
	assert.Equal(t, RiskHigh, factors[0].Level)
	assert.Equal(t, "High debt-to-income ratio", factors[1].Factor)
	assert.Equal(t, "Debt-to-income ratio of 60.0%", factors[1].Description)
	assert.Equal(t, RiskHigh, factors[2].Level)
	assert.Equal(t, "Recent employment", factors[3].Factor)
	assert.Equal(t, RiskMedium, factors[3].Level)
}

func TestRiskFactors_ModerateProfile(t *testing.T) {
	p := model.FinancialProfile{
		AnnualIncome:       d("40000"),
		CurrentMonthlyDebt: d("1000"), // 0.30
		EmploymentYears:    3,
		CreditHistoryYears: 4,
		HomeOwnership:      model.HomeOwn,
	}

	factors := RiskFactors(p)
	require.Len(t, factors, 3)
	for _, f := range factors {
		assert.Equal(t, RiskMedium, f.Level, f.Factor)
	}
}
