package scoring

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

// RiskLevel classifies how strongly a factor weighs against a borrower.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// RiskFactor is a human-readable weakness found in a profile.
type RiskFactor struct {
	Factor      string    `json:"factor"`
	Level       RiskLevel `json:"level"`
	Description string    `json:"description"`
}

var (
	lowIncome      = decimal.NewFromInt(25000)
	moderateIncome = decimal.NewFromInt(50000)
	highDTI        = decimal.RequireFromString("0.45")
	moderateDTI    = decimal.RequireFromString("0.25")
)

// RiskFactors lists the weaknesses of p, most significant categories first.
// A profile with none returns an empty slice.
func RiskFactors(p model.FinancialProfile) []RiskFactor {
	factors := []RiskFactor{}

	switch {
	case p.AnnualIncome.LessThan(lowIncome):
		factors = append(factors, RiskFactor{
			Factor:      "Low income",
			Level:       RiskHigh,
			Description: "Annual income below 25,000",
		})
	case p.AnnualIncome.LessThan(moderateIncome):
		factors = append(factors, RiskFactor{
			Factor:      "Moderate income",
			Level:       RiskMedium,
			Description: "Annual income between 25,000 and 50,000",
		})
	}

	dti := DebtToIncome(p.AnnualIncome, p.CurrentMonthlyDebt)
	dtiPct := dti.Mul(decimal.NewFromInt(100)).StringFixed(1)
	switch {
	case dti.GreaterThan(highDTI):
		factors = append(factors, RiskFactor{
			Factor:      "High debt-to-income ratio",
			Level:       RiskHigh,
			Description: fmt.Sprintf("Debt-to-income ratio of %s%%", dtiPct),
		})
	case dti.GreaterThan(moderateDTI):
		factors = append(factors, RiskFactor{
			Factor:      "Moderate debt-to-income ratio",
			Level:       RiskMedium,
			Description: fmt.Sprintf("Debt-to-income ratio of %s%%", dtiPct),
		})
	}

	switch {
	case p.CreditHistoryYears < 3:
		factors = append(factors, RiskFactor{
			Factor:      "Limited credit history",
			Level:       RiskHigh,
			Description: "Less than 3 years of credit history",
		})
	case p.CreditHistoryYears < 7:
		factors = append(factors, RiskFactor{
			Factor:      "Average credit history",
			Level:       RiskMedium,
			Description: fmt.Sprintf("%d years of credit history", p.CreditHistoryYears),
		})
	}

	if p.EmploymentYears < 2 {
		factors = append(factors, RiskFactor{
			Factor:      "Recent employment",
			Level:       RiskMedium,
			Description: "Less than 2 years in current employment",
		})
	}

	return factors
}
