package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

var _ Store = (*CachedStore)(nil)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary. Funding always runs
// against the primary so the row lock is never bypassed.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) CreateLoan(ctx context.Context, l *model.Loan) error {
	if err := s.primary.CreateLoan(ctx, l); err != nil {
		return err
	}
	s.cacheJSON(ctx, loanKey(l.ID), l)
	s.invalidate(ctx, borrowerLoansKey(l.BorrowerID))
	return nil
}

func (s *CachedStore) UpdateLoanStatus(ctx context.Context, id string, from, to model.LoanStatus) error {
	l, err := s.primary.GetLoan(ctx, id)
	if err != nil {
		return err
	}
	if err := s.primary.UpdateLoanStatus(ctx, id, from, to); err != nil {
		return err
	}
	s.invalidate(ctx, loanKey(id), borrowerLoansKey(l.BorrowerID))
	return nil
}

func (s *CachedStore) DeleteLoan(ctx context.Context, id string) error {
	l, err := s.primary.GetLoan(ctx, id)
	if err != nil {
		return err
	}
	if err := s.primary.DeleteLoan(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, loanKey(id), borrowerLoansKey(l.BorrowerID))
	return nil
}

func (s *CachedStore) ApplyInvestment(ctx context.Context, loanID string, inv *model.Investment, fund FundFunc) (*model.Loan, error) {
	l, err := s.primary.ApplyInvestment(ctx, loanID, inv, fund)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, loanKey(loanID), borrowerLoansKey(l.BorrowerID), investorKey(inv.InvestorID))
	return l, nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetLoan(ctx context.Context, id string) (*model.Loan, error) {
	var l model.Loan
	if s.readJSON(ctx, loanKey(id), &l) {
		return &l, nil
	}

	// Cache miss: read from primary.
	loan, err := s.primary.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, loanKey(id), loan)
	return loan, nil
}

func (s *CachedStore) ListLoansByBorrower(ctx context.Context, borrowerID string) ([]model.Loan, error) {
	var loans []model.Loan
	if s.readJSON(ctx, borrowerLoansKey(borrowerID), &loans) {
		return loans, nil
	}

	loans, err := s.primary.ListLoansByBorrower(ctx, borrowerID)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, borrowerLoansKey(borrowerID), loans)
	return loans, nil
}

func (s *CachedStore) ListInvestmentsByInvestor(ctx context.Context, investorID string) ([]model.Investment, error) {
	var investments []model.Investment
	if s.readJSON(ctx, investorKey(investorID), &investments) {
		return investments, nil
	}

	investments, err := s.primary.ListInvestmentsByInvestor(ctx, investorID)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, investorKey(investorID), investments)
	return investments, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListLoans(ctx context.Context) ([]model.Loan, error) {
	return s.primary.ListLoans(ctx)
}

func (s *CachedStore) ListMarketplaceLoans(ctx context.Context, limit int) ([]model.Loan, error) {
	return s.primary.ListMarketplaceLoans(ctx, limit)
}

func (s *CachedStore) ListInvestmentsByLoan(ctx context.Context, loanID string) ([]model.Investment, error) {
	return s.primary.ListInvestmentsByLoan(ctx, loanID)
}

func (s *CachedStore) ListInvestments(ctx context.Context) ([]model.Investment, error) {
	return s.primary.ListInvestments(ctx)
}

// --- Cache helpers ---

func (s *CachedStore) readJSON(ctx context.Context, key string, dst any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("cache read failed", "key", key, "error", err)
		}
		return false
	}
	return json.Unmarshal(data, dst) == nil
}

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, key, data, s.ttl).Err(); err != nil {
		slog.Warn("cache write failed", "key", key, "error", err)
	}
}

func (s *CachedStore) invalidate(ctx context.Context, keys ...string) {
	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		slog.Warn("cache invalidation failed", "keys", keys, "error", err)
	}
}

func loanKey(id string) string          { return fmt.Sprintf("loan:%s", id) }
func borrowerLoansKey(id string) string { return fmt.Sprintf("borrower-loans:%s", id) }
func investorKey(id string) string      { return fmt.Sprintf("investor-investments:%s", id) }
