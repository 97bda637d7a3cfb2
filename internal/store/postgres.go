package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision
// and read back through ::TEXT.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const loanColumns = `l.id, l.borrower_id, l.amount::TEXT, l.purpose, l.term_months,
		l.annual_income::TEXT, l.current_monthly_debt::TEXT,
		l.employment_years, l.credit_history_years, l.previous_loans_repaid,
		l.home_ownership, l.has_bank_account,
		l.credit_score, l.credit_grade, l.interest_rate::TEXT, l.monthly_payment::TEXT,
		l.status, l.total_funded::TEXT, l.funding_percentage::TEXT,
		l.created_at, l.funded_at`

const investmentColumns = `id, investor_id, loan_id, amount::TEXT, credit_grade,
		interest_rate::TEXT, expected_return::TEXT, actual_return::TEXT,
		status, created_at`

func (s *PostgresStore) CreateLoan(ctx context.Context, l *model.Loan) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO loans (id, borrower_id, amount, purpose, term_months,
		        annual_income, current_monthly_debt,
		        employment_years, credit_history_years, previous_loans_repaid,
		        home_ownership, has_bank_account,
		        credit_score, credit_grade, interest_rate, monthly_payment,
		        status, total_funded, funding_percentage, created_at, funded_at)
		 VALUES ($1, $2, $3::NUMERIC, $4, $5,
		         $6::NUMERIC, $7::NUMERIC,
		         $8, $9, $10,
		         $11, $12,
		         $13, $14, $15::NUMERIC, $16::NUMERIC,
		         $17, $18::NUMERIC, $19::NUMERIC, $20, $21)`,
		l.ID, l.BorrowerID, l.Amount.String(), l.Purpose, l.TermMonths,
		l.Profile.AnnualIncome.String(), l.Profile.CurrentMonthlyDebt.String(),
		l.Profile.EmploymentYears, l.Profile.CreditHistoryYears, l.Profile.PreviousLoansRepaid,
		string(l.Profile.HomeOwnership), l.Profile.HasBankAccount,
		l.CreditScore, string(l.CreditGrade), l.InterestRate.String(), l.MonthlyPayment.String(),
		string(l.Status), l.TotalFunded.String(), l.FundingPercentage.String(), l.CreatedAt, l.FundedAt,
	)
	if err != nil {
		return fmt.Errorf("create loan %s: %w", l.ID, mapPgError(err))
	}
	return nil
}

func (s *PostgresStore) GetLoan(ctx context.Context, id string) (*model.Loan, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans l WHERE l.id = $1`, id)
	l, err := scanLoan(row)
	if err != nil {
		return nil, fmt.Errorf("get loan %s: %w", id, mapPgError(err))
	}
	return l, nil
}

func (s *PostgresStore) ListLoans(ctx context.Context) ([]model.Loan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+loanColumns+` FROM loans l ORDER BY l.created_at DESC, l.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLoans(rows)
}

func (s *PostgresStore) ListLoansByBorrower(ctx context.Context, borrowerID string) ([]model.Loan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+loanColumns+` FROM loans l
		 WHERE l.borrower_id = $1 ORDER BY l.created_at DESC, l.id`, borrowerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLoans(rows)
}

// ListMarketplaceLoans derives the funded total from the investments table
// instead of the denormalized loans.total_funded column.
func (s *PostgresStore) ListMarketplaceLoans(ctx context.Context, limit int) ([]model.Loan, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+loanColumns+`, COALESCE(SUM(i.amount), 0)::TEXT AS invested
		 FROM loans l
		 LEFT JOIN investments i ON i.loan_id = l.id
		 WHERE l.status = $1
		 GROUP BY l.id
		 HAVING COALESCE(SUM(i.amount), 0) < l.amount
		 ORDER BY l.created_at DESC, l.id
		 LIMIT $2`, string(model.LoanApproved), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []model.Loan
	for rows.Next() {
		var invested string
		l, err := scanLoan(rows, &invested)
		if err != nil {
			return nil, err
		}
		total, err := decimal.NewFromString(invested)
		if err != nil {
			return nil, fmt.Errorf("loan %s invested total %q: %w", l.ID, invested, err)
		}
		l.ApplyFunding(model.NewFundingState(l.Amount, total))
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func (s *PostgresStore) UpdateLoanStatus(ctx context.Context, id string, from, to model.LoanStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE loans SET status = $3 WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("update loan %s status: %w", id, mapPgError(err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM loans WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("update loan %s status: %w", id, err)
	}
	if exists {
		return fmt.Errorf("loan %s is no longer %s: %w", id, from, ErrConflict)
	}
	return fmt.Errorf("loan %s: %w", id, ErrNotFound)
}

func (s *PostgresStore) DeleteLoan(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM loans
		 WHERE id = $1
		   AND NOT EXISTS (SELECT 1 FROM investments WHERE loan_id = $1)`, id)
	if err != nil {
		return fmt.Errorf("delete loan %s: %w", id, mapPgError(err))
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM loans WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("delete loan %s: %w", id, err)
	}
	if exists {
		return fmt.Errorf("loan %s: %w", id, ErrHasInvestments)
	}
	return fmt.Errorf("loan %s: %w", id, ErrNotFound)
}

// ApplyInvestment runs fund inside a transaction holding a row lock on the
// loan (SELECT ... FOR UPDATE). Concurrent investments in the same loan
// queue on the lock and each sees the previous one's committed total.
func (s *PostgresStore) ApplyInvestment(ctx context.Context, loanID string, inv *model.Investment, fund FundFunc) (*model.Loan, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin funding tx: %w", mapPgError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	l, err := scanLoan(tx.QueryRow(ctx,
		`SELECT `+loanColumns+` FROM loans l WHERE l.id = $1 FOR UPDATE`, loanID))
	if err != nil {
		return nil, fmt.Errorf("lock loan %s: %w", loanID, mapPgError(err))
	}

	i := *inv
	i.LoanID = loanID
	if err := fund(l, &i); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO investments (id, investor_id, loan_id, amount, credit_grade,
		        interest_rate, expected_return, actual_return, status, created_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9, $10)`,
		i.ID, i.InvestorID, i.LoanID, i.Amount.String(), string(i.CreditGrade),
		i.InterestRate.String(), i.ExpectedReturn.String(), i.ActualReturn.String(),
		string(i.Status), i.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("insert investment: %w", mapPgError(err))
	}

	if _, err := tx.Exec(ctx,
		`UPDATE loans
		 SET total_funded = $2::NUMERIC, funding_percentage = $3::NUMERIC,
		     status = $4, funded_at = $5
		 WHERE id = $1`,
		l.ID, l.TotalFunded.String(), l.FundingPercentage.String(), string(l.Status), l.FundedAt,
	); err != nil {
		return nil, fmt.Errorf("update loan funding: %w", mapPgError(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit funding tx: %w", mapPgError(err))
	}

	*inv = i
	return l, nil
}

func (s *PostgresStore) ListInvestmentsByLoan(ctx context.Context, loanID string) ([]model.Investment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+investmentColumns+` FROM investments
		 WHERE loan_id = $1 ORDER BY created_at, id`, loanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInvestments(rows)
}

func (s *PostgresStore) ListInvestmentsByInvestor(ctx context.Context, investorID string) ([]model.Investment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+investmentColumns+` FROM investments
		 WHERE investor_id = $1 ORDER BY created_at DESC, id`, investorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInvestments(rows)
}

func (s *PostgresStore) ListInvestments(ctx context.Context) ([]model.Investment, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+investmentColumns+` FROM investments ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanInvestments(rows)
}

// mapPgError translates driver errors into store sentinels.
func mapPgError(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.Message)
		case "23505": // unique_violation
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Message)
		}
	}
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

// scanLoan reads one loanColumns row. extra receives any trailing columns.
func scanLoan(row rowScanner, extra ...any) (*model.Loan, error) {
	var (
		l                                   model.Loan
		amount, income, debt, rate, payment string
		funded, pct                         string
		home, grade, status                 string
		fundedAt                            *time.Time
	)

	dest := []any{
		&l.ID, &l.BorrowerID, &amount, &l.Purpose, &l.TermMonths,
		&income, &debt,
		&l.Profile.EmploymentYears, &l.Profile.CreditHistoryYears, &l.Profile.PreviousLoansRepaid,
		&home, &l.Profile.HasBankAccount,
		&l.CreditScore, &grade, &rate, &payment,
		&status, &funded, &pct,
		&l.CreatedAt, &fundedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	l.Profile.HomeOwnership = model.HomeOwnership(home)
	l.CreditGrade = model.Grade(grade)
	l.Status = model.LoanStatus(status)
	l.FundedAt = fundedAt

	err := parseDecimals(
		decimalField{&l.Amount, amount},
		decimalField{&l.Profile.AnnualIncome, income},
		decimalField{&l.Profile.CurrentMonthlyDebt, debt},
		decimalField{&l.InterestRate, rate},
		decimalField{&l.MonthlyPayment, payment},
		decimalField{&l.TotalFunded, funded},
		decimalField{&l.FundingPercentage, pct},
	)
	if err != nil {
		return nil, fmt.Errorf("loan %s: %w", l.ID, err)
	}
	return &l, nil
}

func scanLoans(rows pgx.Rows) ([]model.Loan, error) {
	var loans []model.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

func scanInvestments(rows pgx.Rows) ([]model.Investment, error) {
	var investments []model.Investment
	for rows.Next() {
		var (
			i                              model.Investment
			amount, rate, expected, actual string
			grade, status                  string
		)
		if err := rows.Scan(&i.ID, &i.InvestorID, &i.LoanID, &amount, &grade,
			&rate, &expected, &actual, &status, &i.CreatedAt); err != nil {
			return nil, err
		}
		i.CreditGrade = model.Grade(grade)
		i.Status = model.InvestmentStatus(status)

		err := parseDecimals(
			decimalField{&i.Amount, amount},
			decimalField{&i.InterestRate, rate},
			decimalField{&i.ExpectedReturn, expected},
			decimalField{&i.ActualReturn, actual},
		)
		if err != nil {
			return nil, fmt.Errorf("investment %s: %w", i.ID, err)
		}
		investments = append(investments, i)
	}
	return investments, rows.Err()
}

type decimalField struct {
	dst *decimal.Decimal
	raw string
}

func parseDecimals(fields ...decimalField) error {
	for _, f := range fields {
		v, err := decimal.NewFromString(f.raw)
		if err != nil {
			return fmt.Errorf("parse numeric %q: %w", f.raw, err)
		}
		*f.dst = v
	}
	return nil
}
