// Package lending provides the business logic and HTTP handlers for loan
// applications, the investment marketplace, and investor dashboards.
//
// All monetary values use shopspring/decimal, never float64.
package lending

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/amortization"
	"github.com/straightothepoint12/FinscoreX/internal/funding"
	"github.com/straightothepoint12/FinscoreX/internal/grade"
	"github.com/straightothepoint12/FinscoreX/internal/metrics"
	"github.com/straightothepoint12/FinscoreX/internal/model"
	"github.com/straightothepoint12/FinscoreX/internal/portfolio"
	"github.com/straightothepoint12/FinscoreX/internal/scoring"
	"github.com/straightothepoint12/FinscoreX/internal/store"
)

var (
	// ErrLoanNotOpen is returned when investing in a loan that is not
	// approved for funding.
	ErrLoanNotOpen = errors.New("lending: loan is not open for investment")

	// ErrInvalidTransition is returned for a disallowed status change.
	ErrInvalidTransition = errors.New("lending: status transition not allowed")

	// ErrForbidden is returned when a caller acts on another user's loan.
	ErrForbidden = errors.New("lending: not the owner of this loan")
)

// Loan request bounds.
var (
	MinLoanAmount = decimal.NewFromInt(1000)
	MaxLoanAmount = decimal.NewFromInt(100000)
)

// MinPurposeLength is the shortest accepted loan purpose description.
const MinPurposeLength = 10

// Options tunes the service. Zero values fall back to defaults.
type Options struct {
	MinInvestment    decimal.Decimal
	MarketplaceLimit int
	FundingRetries   int
}

// Service handles loan and investment operations. Funding atomicity is
// delegated to store.ApplyInvestment, which serializes per loan.
type Service struct {
	store       store.Store
	scorer      *scoring.Scorer
	engine      *amortization.Engine
	allocator   *funding.Allocator
	hub         *Hub // optional WebSocket hub for real-time broadcasts
	marketLimit int
	retries     int
	now         func() time.Time
}

// NewService creates a new lending service.
// Pass nil for hub if WebSocket broadcasting is not needed.
func NewService(st store.Store, hub *Hub, opts Options) *Service {
	if opts.MarketplaceLimit <= 0 {
		opts.MarketplaceLimit = 20
	}
	if opts.FundingRetries <= 0 {
		opts.FundingRetries = 3
	}
	return &Service{
		store:       st,
		scorer:      scoring.NewDefaultScorer(),
		engine:      amortization.NewEngine(amortization.DefaultConfig()),
		allocator:   funding.NewAllocator(opts.MinInvestment),
		hub:         hub,
		marketLimit: opts.MarketplaceLimit,
		retries:     opts.FundingRetries,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// --- Request/Response types ---

// QuoteRequest is the JSON body for POST /quotes.
type QuoteRequest struct {
	Amount     decimal.Decimal        `json:"amount"`
	TermMonths int                    `json:"term_months"`
	Profile    model.FinancialProfile `json:"profile"`
}

// Quote is a non-binding credit decision with repayment terms.
type Quote struct {
	model.ScoreResult
	GradeDescription string                  `json:"grade_description"`
	Breakdown        scoring.Breakdown       `json:"score_breakdown"`
	RiskFactors      []scoring.RiskFactor    `json:"risk_factors"`
	Terms            model.LoanTerms         `json:"terms"`
	Schedule         []model.AmortizationRow `json:"schedule"`
}

// CreateLoanRequest is the JSON body for POST /loans.
type CreateLoanRequest struct {
	BorrowerID string                 `json:"borrower_id"`
	Amount     decimal.Decimal        `json:"amount"`
	TermMonths int                    `json:"term_months"`
	Purpose    string                 `json:"purpose"`
	Profile    model.FinancialProfile `json:"profile"`
}

// InvestRequest is the JSON body for POST /investments.
type InvestRequest struct {
	InvestorID string          `json:"investor_id"`
	LoanID     string          `json:"loan_id"`
	Amount     decimal.Decimal `json:"amount"`
}

// InvestResult is returned from a successful investment.
type InvestResult struct {
	Investment  model.Investment   `json:"investment"`
	Funding     model.FundingState `json:"funding"`
	LoanStatus  model.LoanStatus   `json:"loan_status"`
	FullyFunded bool               `json:"fully_funded"`
}

// InvestorDashboard summarizes an investor's holdings.
type InvestorDashboard struct {
	InvestorID        string             `json:"investor_id"`
	TotalInvested     decimal.Decimal    `json:"total_invested"`
	ExpectedReturns   decimal.Decimal    `json:"expected_returns"`
	ActualReturns     decimal.Decimal    `json:"actual_returns"`
	ActiveInvestments int                `json:"active_investments"`
	Risk              *model.RiskSummary `json:"risk,omitempty"`
	ROI               *portfolio.ROI     `json:"roi,omitempty"`
	Investments       []model.Investment `json:"investments"`
}

// PlatformMetrics is the admin overview of the whole platform.
type PlatformMetrics struct {
	TotalLoans         int                      `json:"total_loans"`
	LoansByStatus      map[model.LoanStatus]int `json:"loans_by_status"`
	LoansByGrade       map[model.Grade]int      `json:"loans_by_grade"`
	TotalRequested     decimal.Decimal          `json:"total_requested"`
	TotalFunded        decimal.Decimal          `json:"total_funded"`
	AverageCreditScore int                      `json:"average_credit_score"`
	TotalInvestments   int                      `json:"total_investments"`
	ActiveInvestors    int                      `json:"active_investors"`
	Risk               *model.RiskSummary       `json:"risk,omitempty"`
}

// --- Operations ---

// Quote scores a profile and prices a prospective loan without storing it.
func (s *Service) Quote(req QuoteRequest) (*Quote, error) {
	if err := s.validateAmountAndTerm(req.Amount, req.TermMonths); err != nil {
		return nil, err
	}
	result, err := s.scorer.Evaluate(req.Profile)
	if err != nil {
		return nil, err
	}
	terms, err := s.engine.Quote(req.Amount, result.InterestRate, req.TermMonths)
	if err != nil {
		return nil, err
	}
	schedule, err := s.engine.Schedule(req.Amount, result.InterestRate, req.TermMonths)
	if err != nil {
		return nil, err
	}

	return &Quote{
		ScoreResult:      result,
		GradeDescription: grade.Describe(result.CreditGrade),
		Breakdown:        s.scorer.Model().Breakdown(req.Profile),
		RiskFactors:      scoring.RiskFactors(req.Profile),
		Terms:            terms,
		Schedule:         schedule,
	}, nil
}

// CreateLoan scores the application and persists it as submitted.
func (s *Service) CreateLoan(ctx context.Context, req CreateLoanRequest) (*model.Loan, error) {
	if strings.TrimSpace(req.BorrowerID) == "" {
		return nil, fmt.Errorf("%w: borrower_id is required", model.ErrInvalidInput)
	}
	if len(strings.TrimSpace(req.Purpose)) < MinPurposeLength {
		return nil, fmt.Errorf("%w: purpose must be at least %d characters", model.ErrInvalidInput, MinPurposeLength)
	}
	if err := s.validateAmountAndTerm(req.Amount, req.TermMonths); err != nil {
		return nil, err
	}

	result, err := s.scorer.Evaluate(req.Profile)
	if err != nil {
		return nil, err
	}
	payment, err := s.engine.MonthlyPayment(req.Amount, result.InterestRate, req.TermMonths)
	if err != nil {
		return nil, err
	}

	loan := &model.Loan{
		ID:                uuid.New().String(),
		BorrowerID:        req.BorrowerID,
		Amount:            req.Amount,
		Purpose:           strings.TrimSpace(req.Purpose),
		TermMonths:        req.TermMonths,
		Profile:           req.Profile,
		CreditScore:       result.CreditScore,
		CreditGrade:       result.CreditGrade,
		InterestRate:      result.InterestRate,
		MonthlyPayment:    payment,
		Status:            model.LoanSubmitted,
		TotalFunded:       decimal.Zero,
		FundingPercentage: decimal.Zero,
		CreatedAt:         s.now(),
	}

	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, err
	}

	metrics.LoansCreated.WithLabelValues(string(loan.CreditGrade)).Inc()
	metrics.CreditScores.Observe(float64(loan.CreditScore))

	slog.Info("loan created",
		"id", loan.ID,
		"borrower", loan.BorrowerID,
		"amount", loan.Amount.String(),
		"term_months", loan.TermMonths,
		"score", loan.CreditScore,
		"grade", loan.CreditGrade,
		"rate", loan.InterestRate.String(),
	)
	return loan, nil
}

func (s *Service) validateAmountAndTerm(amount decimal.Decimal, termMonths int) error {
	if amount.LessThan(MinLoanAmount) || amount.GreaterThan(MaxLoanAmount) {
		return fmt.Errorf("%w: amount must be between %s and %s", model.ErrInvalidInput, MinLoanAmount, MaxLoanAmount)
	}
	if !amount.Equal(model.RoundMoney(amount)) {
		return fmt.Errorf("%w: amount has more than %d decimal places", model.ErrInvalidInput, model.MoneyScale)
	}
	return s.engine.ValidateTerm(termMonths)
}

// GetLoan returns a loan by ID.
func (s *Service) GetLoan(ctx context.Context, id string) (*model.Loan, error) {
	return s.store.GetLoan(ctx, id)
}

// LoanSchedule recomputes the amortization schedule of a stored loan.
func (s *Service) LoanSchedule(ctx context.Context, id string) ([]model.AmortizationRow, error) {
	loan, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.engine.Schedule(loan.Amount, loan.InterestRate, loan.TermMonths)
}

// LoansByBorrower lists a borrower's loans.
func (s *Service) LoansByBorrower(ctx context.Context, borrowerID string) ([]model.Loan, error) {
	return s.store.ListLoansByBorrower(ctx, borrowerID)
}

// Marketplace lists approved loans that still need funding. A non-positive
// or oversized limit is replaced by the configured maximum.
func (s *Service) Marketplace(ctx context.Context, limit int) ([]model.Loan, error) {
	if limit <= 0 || limit > s.marketLimit {
		limit = s.marketLimit
	}
	return s.store.ListMarketplaceLoans(ctx, limit)
}

// UpdateStatus applies an admin lifecycle transition. The write only lands
// if the status is still the one the transition was checked against; on
// store.ErrConflict the check is repeated from a fresh read.
func (s *Service) UpdateStatus(ctx context.Context, id string, next model.LoanStatus) (*model.Loan, error) {
	var (
		loan *model.Loan
		err  error
	)
	for attempt := 1; attempt <= s.retries; attempt++ {
		loan, err = s.store.GetLoan(ctx, id)
		if err != nil {
			return nil, err
		}
		if !loan.Status.CanTransition(next) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, loan.Status, next)
		}
		err = s.store.UpdateLoanStatus(ctx, id, loan.Status, next)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		slog.Warn("status conflict, retrying", "loan", id, "status", next, "attempt", attempt)
	}
	if err != nil {
		return nil, err
	}
	loan.Status = next

	slog.Info("loan status changed", "id", id, "status", next)
	return loan, nil
}

// DeleteLoan removes a borrower's own loan while it has no investments.
func (s *Service) DeleteLoan(ctx context.Context, id, borrowerID string) error {
	loan, err := s.store.GetLoan(ctx, id)
	if err != nil {
		return err
	}
	if loan.BorrowerID != borrowerID {
		return ErrForbidden
	}
	if err := s.store.DeleteLoan(ctx, id); err != nil {
		return err
	}
	slog.Info("loan deleted", "id", id, "borrower", borrowerID)
	return nil
}

// Invest commits capital to a loan. The funding decision runs inside
// store.ApplyInvestment; on store.ErrConflict the whole cycle is retried
// from a fresh read.
func (s *Service) Invest(ctx context.Context, req InvestRequest) (*InvestResult, error) {
	if strings.TrimSpace(req.InvestorID) == "" {
		return nil, fmt.Errorf("%w: investor_id is required", model.ErrInvalidInput)
	}
	if req.LoanID == "" {
		return nil, fmt.Errorf("%w: loan_id is required", model.ErrInvalidInput)
	}

	var (
		loan *model.Loan
		inv  model.Investment
		err  error
	)
	for attempt := 1; attempt <= s.retries; attempt++ {
		inv = model.Investment{
			ID:         uuid.New().String(),
			InvestorID: req.InvestorID,
			Amount:     req.Amount,
			CreatedAt:  s.now(),
		}
		loan, err = s.store.ApplyInvestment(ctx, req.LoanID, &inv, s.fund)
		if !errors.Is(err, store.ErrConflict) {
			break
		}
		metrics.FundingRetries.Inc()
		slog.Warn("funding conflict, retrying", "loan", req.LoanID, "attempt", attempt)
	}
	if err != nil {
		metrics.Investments.WithLabelValues(outcomeOf(err)).Inc()
		slog.Info("investment rejected",
			"loan", req.LoanID,
			"investor", req.InvestorID,
			"amount", req.Amount.String(),
			"reason", err.Error(),
		)
		return nil, err
	}

	state := loan.FundingState()
	fullyFunded := loan.Status == model.LoanFunded

	metrics.Investments.WithLabelValues(metrics.OutcomeAccepted).Inc()
	metrics.FundedVolume.WithLabelValues(string(loan.CreditGrade)).Add(inv.Amount.InexactFloat64())
	if fullyFunded {
		metrics.LoansFullyFunded.Inc()
	}

	slog.Info("investment accepted",
		"id", inv.ID,
		"loan", loan.ID,
		"investor", inv.InvestorID,
		"amount", inv.Amount.String(),
		"total_funded", state.TotalFunded.String(),
		"funding_pct", state.FundingPercentage.String(),
	)

	if s.hub != nil {
		s.hub.Broadcast(Event{
			Type:              EventInvestmentAccepted,
			LoanID:            loan.ID,
			InvestmentID:      inv.ID,
			Amount:            inv.Amount.String(),
			TotalFunded:       state.TotalFunded.String(),
			FundingPercentage: state.FundingPercentage.String(),
			Grade:             string(loan.CreditGrade),
		})
		if fullyFunded {
			s.hub.Broadcast(Event{
				Type:              EventLoanFunded,
				LoanID:            loan.ID,
				TotalFunded:       state.TotalFunded.String(),
				FundingPercentage: state.FundingPercentage.String(),
				Grade:             string(loan.CreditGrade),
			})
		}
	}

	return &InvestResult{
		Investment:  inv,
		Funding:     state,
		LoanStatus:  loan.Status,
		FullyFunded: fullyFunded,
	}, nil
}

// fund is the store.FundFunc applied under the loan's lock.
func (s *Service) fund(loan *model.Loan, inv *model.Investment) error {
	if loan.Status != model.LoanApproved {
		return fmt.Errorf("%w: status %s", ErrLoanNotOpen, loan.Status)
	}

	next, err := s.allocator.TryFund(loan.FundingState(), inv.Amount)
	if err != nil {
		return err
	}

	loan.ApplyFunding(next)
	if next.IsFullyFunded() {
		fundedAt := s.now()
		loan.Status = model.LoanFunded
		loan.FundedAt = &fundedAt
	}

	inv.CreditGrade = loan.CreditGrade
	inv.InterestRate = loan.InterestRate
	inv.ExpectedReturn = funding.ExpectedReturn(inv.Amount, loan.InterestRate, loan.TermMonths)
	inv.ActualReturn = decimal.Zero
	inv.Status = model.InvestmentConfirmed
	return nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, funding.ErrAmountTooSmall):
		return metrics.OutcomeTooSmall
	case errors.Is(err, funding.ErrExceedsRemaining):
		return metrics.OutcomeExceedsRemaining
	case errors.Is(err, store.ErrConflict):
		return metrics.OutcomeConflict
	case errors.Is(err, model.ErrInvalidInput), errors.Is(err, store.ErrNotFound):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeNotOpen
	}
}

// InvestmentsByInvestor lists an investor's investments.
func (s *Service) InvestmentsByInvestor(ctx context.Context, investorID string) ([]model.Investment, error) {
	return s.store.ListInvestmentsByInvestor(ctx, investorID)
}

// Dashboard aggregates an investor's totals, grade exposure and return.
func (s *Service) Dashboard(ctx context.Context, investorID string) (*InvestorDashboard, error) {
	investments, err := s.store.ListInvestmentsByInvestor(ctx, investorID)
	if err != nil {
		return nil, err
	}
	if investments == nil {
		investments = []model.Investment{}
	}

	dash := &InvestorDashboard{
		InvestorID:      investorID,
		TotalInvested:   decimal.Zero,
		ExpectedReturns: decimal.Zero,
		ActualReturns:   decimal.Zero,
		Investments:     investments,
	}

	positions := make([]model.PortfolioPosition, 0, len(investments))
	var earliest time.Time
	for _, inv := range investments {
		dash.TotalInvested = dash.TotalInvested.Add(inv.Amount)
		dash.ExpectedReturns = dash.ExpectedReturns.Add(inv.ExpectedReturn)
		dash.ActualReturns = dash.ActualReturns.Add(inv.ActualReturn)
		if inv.Status == model.InvestmentConfirmed || inv.Status == model.InvestmentActive {
			dash.ActiveInvestments++
		}
		if earliest.IsZero() || inv.CreatedAt.Before(earliest) {
			earliest = inv.CreatedAt
		}
		positions = append(positions, inv.Position())
	}

	risk, err := portfolio.Aggregate(positions)
	switch {
	case err == nil:
		dash.Risk = &risk
	case !errors.Is(err, portfolio.ErrEmptyPortfolio):
		return nil, err
	}

	if dash.TotalInvested.IsPositive() {
		roi, err := portfolio.ComputeROI(dash.TotalInvested, dash.TotalInvested.Add(dash.ActualReturns), monthsSince(earliest, s.now()))
		if err != nil {
			return nil, err
		}
		dash.ROI = &roi
	}

	return dash, nil
}

// monthsSince counts whole elapsed months, with a minimum of one.
func monthsSince(start, now time.Time) int {
	months := (now.Year()-start.Year())*12 + int(now.Month()-start.Month())
	if now.Day() < start.Day() {
		months--
	}
	if months < 1 {
		return 1
	}
	return months
}

// PlatformMetrics computes the admin overview.
func (s *Service) PlatformMetrics(ctx context.Context) (*PlatformMetrics, error) {
	loans, err := s.store.ListLoans(ctx)
	if err != nil {
		return nil, err
	}
	investments, err := s.store.ListInvestments(ctx)
	if err != nil {
		return nil, err
	}

	m := &PlatformMetrics{
		TotalLoans:       len(loans),
		LoansByStatus:    make(map[model.LoanStatus]int),
		LoansByGrade:     make(map[model.Grade]int),
		TotalRequested:   decimal.Zero,
		TotalFunded:      decimal.Zero,
		TotalInvestments: len(investments),
	}

	scoreSum := 0
	for _, l := range loans {
		m.LoansByStatus[l.Status]++
		m.LoansByGrade[l.CreditGrade]++
		m.TotalRequested = m.TotalRequested.Add(l.Amount)
		m.TotalFunded = m.TotalFunded.Add(l.TotalFunded)
		scoreSum += l.CreditScore
	}
	if len(loans) > 0 {
		m.AverageCreditScore = int(decimal.NewFromInt(int64(scoreSum)).
			Div(decimal.NewFromInt(int64(len(loans)))).Round(0).IntPart())
	}

	investors := make(map[string]struct{})
	positions := make([]model.PortfolioPosition, 0, len(investments))
	for _, inv := range investments {
		investors[inv.InvestorID] = struct{}{}
		positions = append(positions, inv.Position())
	}
	m.ActiveInvestors = len(investors)

	risk, err := portfolio.Aggregate(positions)
	switch {
	case err == nil:
		m.Risk = &risk
	case !errors.Is(err, portfolio.ErrEmptyPortfolio):
		return nil, err
	}

	return m, nil
}
