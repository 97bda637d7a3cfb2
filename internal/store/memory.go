package store

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/funding"
	"github.com/straightothepoint12/FinscoreX/internal/model"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	loans       map[string]*model.Loan
	investments []model.Investment
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans: make(map[string]*model.Loan),
	}
}

func (s *MemoryStore) CreateLoan(_ context.Context, l *model.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loans[l.ID]; ok {
		return fmt.Errorf("loan %s: %w", l.ID, ErrDuplicate)
	}

	// Store a copy to avoid external mutation.
	c := *l
	s.loans[l.ID] = &c
	return nil
}

func (s *MemoryStore) GetLoan(_ context.Context, id string) (*model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	c := *l
	return &c, nil
}

func (s *MemoryStore) ListLoans(_ context.Context) ([]model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterLoans(func(*model.Loan) bool { return true }), nil
}

func (s *MemoryStore) ListLoansByBorrower(_ context.Context, borrowerID string) ([]model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filterLoans(func(l *model.Loan) bool { return l.BorrowerID == borrowerID }), nil
}

// ListMarketplaceLoans recomputes each candidate's funding from the
// investment ledger rather than trusting the stored total.
func (s *MemoryStore) ListMarketplaceLoans(_ context.Context, limit int) ([]model.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	amounts := make(map[string][]decimal.Decimal)
	for _, inv := range s.investments {
		amounts[inv.LoanID] = append(amounts[inv.LoanID], inv.Amount)
	}

	var result []model.Loan
	for _, l := range s.filterLoans(func(l *model.Loan) bool { return l.Status == model.LoanApproved }) {
		state, err := funding.StateFromContributions(l.Amount, amounts[l.ID])
		if err != nil {
			return nil, fmt.Errorf("loan %s: %w", l.ID, err)
		}
		if state.IsFullyFunded() {
			continue
		}
		l.ApplyFunding(state)
		result = append(result, l)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) UpdateLoanStatus(_ context.Context, id string, from, to model.LoanStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.loans[id]
	if !ok {
		return fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	if l.Status != from {
		return fmt.Errorf("loan %s is %s, not %s: %w", id, l.Status, from, ErrConflict)
	}
	l.Status = to
	return nil
}

func (s *MemoryStore) DeleteLoan(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.loans[id]; !ok {
		return fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	for _, inv := range s.investments {
		if inv.LoanID == id {
			return fmt.Errorf("loan %s: %w", id, ErrHasInvestments)
		}
	}
	delete(s.loans, id)
	return nil
}

// ApplyInvestment holds the write lock across read, fund and persist, so no
// other investment can observe the loan in between.
func (s *MemoryStore) ApplyInvestment(_ context.Context, loanID string, inv *model.Investment, fund FundFunc) (*model.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.loans[loanID]
	if !ok {
		return nil, fmt.Errorf("loan %s: %w", loanID, ErrNotFound)
	}

	// Work on copies; nothing is written unless fund succeeds.
	l := *stored
	i := *inv
	i.LoanID = loanID
	if err := fund(&l, &i); err != nil {
		return nil, err
	}

	*stored = l
	s.investments = append(s.investments, i)
	*inv = i

	out := l
	return &out, nil
}

func (s *MemoryStore) ListInvestmentsByLoan(_ context.Context, loanID string) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Investment
	for _, inv := range s.investments {
		if inv.LoanID == loanID {
			result = append(result, inv)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListInvestmentsByInvestor(_ context.Context, investorID string) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Investment
	for i := len(s.investments) - 1; i >= 0; i-- {
		if s.investments[i].InvestorID == investorID {
			result = append(result, s.investments[i])
		}
	}
	return result, nil
}

func (s *MemoryStore) ListInvestments(_ context.Context) ([]model.Investment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.investments), nil
}

// filterLoans returns matching loans newest first. Callers hold the lock.
func (s *MemoryStore) filterLoans(keep func(*model.Loan) bool) []model.Loan {
	var loans []model.Loan
	for _, l := range s.loans {
		if keep(l) {
			loans = append(loans, *l)
		}
	}
	slices.SortFunc(loans, func(a, b model.Loan) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return loans
}
