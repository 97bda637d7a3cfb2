// Package store defines the persistence interface for loans and investments.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing and local development).
package store

import (
	"context"
	"errors"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

var (
	// ErrNotFound is returned when a loan does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a write lost a race with a concurrent
	// writer. The whole read/apply/persist cycle may be retried.
	ErrConflict = errors.New("store: concurrent update conflict")

	// ErrHasInvestments is returned when deleting a loan that already
	// received investments.
	ErrHasInvestments = errors.New("store: loan has investments")

	// ErrDuplicate is returned when creating a record whose ID exists.
	ErrDuplicate = errors.New("store: duplicate id")
)

// FundFunc inspects the locked loan and fills in the investment. It may
// modify the loan's funding fields, status and funded time; those changes and
// the investment are persisted together. Returning an error aborts without
// writing anything.
type FundFunc func(loan *model.Loan, inv *model.Investment) error

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Loans ---

	// CreateLoan persists a new loan.
	CreateLoan(ctx context.Context, loan *model.Loan) error

	// GetLoan retrieves a loan by ID.
	GetLoan(ctx context.Context, id string) (*model.Loan, error)

	// ListLoans returns all loans, newest first.
	ListLoans(ctx context.Context) ([]model.Loan, error)

	// ListLoansByBorrower returns a borrower's loans, newest first.
	ListLoansByBorrower(ctx context.Context, borrowerID string) ([]model.Loan, error)

	// ListMarketplaceLoans returns up to limit approved loans whose funding,
	// summed from their investments, is still below the requested amount.
	ListMarketplaceLoans(ctx context.Context, limit int) ([]model.Loan, error)

	// UpdateLoanStatus moves a loan from status from to status to. It returns
	// ErrConflict when the stored status is no longer from.
	UpdateLoanStatus(ctx context.Context, id string, from, to model.LoanStatus) error

	// DeleteLoan removes a loan without investments.
	DeleteLoan(ctx context.Context, id string) error

	// --- Investments ---

	// ApplyInvestment locks the loan, runs fund and persists the investment
	// together with the loan's new funding state. Concurrent calls for the
	// same loan are serialized.
	ApplyInvestment(ctx context.Context, loanID string, inv *model.Investment, fund FundFunc) (*model.Loan, error)

	// ListInvestmentsByLoan returns the investments in a loan, oldest first.
	ListInvestmentsByLoan(ctx context.Context, loanID string) ([]model.Investment, error)

	// ListInvestmentsByInvestor returns an investor's investments, newest first.
	ListInvestmentsByInvestor(ctx context.Context, investorID string) ([]model.Investment, error)

	// ListInvestments returns every investment on the platform.
	ListInvestments(ctx context.Context) ([]model.Investment, error)
}
