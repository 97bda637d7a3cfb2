// Package grade maps numeric credit scores to risk grades and base interest
// rates.
//
// Two step functions are applied to the same score: coarse grade bands
// (A..E) and finer rate bands. Two loans in the same grade may therefore
// carry different rates. Rate selection never goes through the grade.
package grade

import (
	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

// GradeBand assigns Grade to every score >= MinScore not claimed by a
// higher band.
type GradeBand struct {
	MinScore int
	Grade    model.Grade
}

// RateBand assigns an annual rate (percent) to every score >= MinScore not
// claimed by a higher band.
type RateBand struct {
	MinScore int
	Rate     decimal.Decimal
}

// Config holds the band tables. Bands are ordered by descending MinScore;
// the final band's MinScore is ignored and acts as the floor.
type Config struct {
	GradeBands []GradeBand
	RateBands  []RateBand
}

// DefaultConfig returns the platform's grade and rate tables.
func DefaultConfig() Config {
	return Config{
		GradeBands: []GradeBand{
			{MinScore: 750, Grade: model.GradeA},
			{MinScore: 650, Grade: model.GradeB},
			{MinScore: 550, Grade: model.GradeC},
			{MinScore: 450, Grade: model.GradeD},
			{MinScore: 0, Grade: model.GradeE},
		},
		RateBands: []RateBand{
			{MinScore: 750, Rate: decimal.RequireFromString("6.5")},
			{MinScore: 700, Rate: decimal.RequireFromString("8.2")},
			{MinScore: 650, Rate: decimal.RequireFromString("10.8")},
			{MinScore: 600, Rate: decimal.RequireFromString("13.5")},
			{MinScore: 550, Rate: decimal.RequireFromString("16.2")},
			{MinScore: 500, Rate: decimal.RequireFromString("19.5")},
			{MinScore: 450, Rate: decimal.RequireFromString("22.8")},
			{MinScore: 0, Rate: decimal.RequireFromString("26.5")},
		},
	}
}

// Mapper is stateless apart from its immutable band tables.
type Mapper struct {
	cfg Config
}

// NewMapper creates a mapper over cfg. Empty tables fall back to the defaults.
func NewMapper(cfg Config) *Mapper {
	def := DefaultConfig()
	if len(cfg.GradeBands) == 0 {
		cfg.GradeBands = def.GradeBands
	}
	if len(cfg.RateBands) == 0 {
		cfg.RateBands = def.RateBands
	}
	return &Mapper{cfg: cfg}
}

// GradeOf returns the risk grade for a score.
func (m *Mapper) GradeOf(score int) model.Grade {
	bands := m.cfg.GradeBands
	for _, b := range bands[:len(bands)-1] {
		if score >= b.MinScore {
			return b.Grade
		}
	}
	return bands[len(bands)-1].Grade
}

// RateOf returns the base annual interest rate (percent) for a score.
func (m *Mapper) RateOf(score int) decimal.Decimal {
	bands := m.cfg.RateBands
	for _, b := range bands[:len(bands)-1] {
		if score >= b.MinScore {
			return b.Rate
		}
	}
	return bands[len(bands)-1].Rate
}

// Result builds a complete ScoreResult for an already computed score.
func (m *Mapper) Result(score int) model.ScoreResult {
	return model.ScoreResult{
		CreditScore:  score,
		CreditGrade:  m.GradeOf(score),
		InterestRate: m.RateOf(score),
	}
}

// Describe returns a short human description of a grade's risk level.
func Describe(g model.Grade) string {
	switch g {
	case model.GradeA:
		return "Excellent - very low risk"
	case model.GradeB:
		return "Good - moderate risk"
	case model.GradeC:
		return "Fair - elevated risk"
	case model.GradeD:
		return "Weak - high risk"
	case model.GradeE:
		return "Poor - critical risk"
	default:
		return "Not rated"
	}
}
