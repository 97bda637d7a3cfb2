//go:build integration

package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/straightothepoint12/FinscoreX/internal/model"
)

// setupTestDB starts a PostgreSQL container and applies migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*pgxpool.Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:15-alpine",
		postgres.WithDatabase("finscorex"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	runMigrations(t, ctx, pool)

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

// runMigrations applies all SQL files from sql/postgres/ in name order.
func runMigrations(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()

	migrationsDir := filepath.Join(findProjectRoot(t), "sql", "postgres")
	entries, err := os.ReadDir(migrationsDir)
	require.NoError(t, err, "failed to read migrations directory")

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && filepath.Ext(entry.Name()) == ".sql" {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	for _, file := range files {
		sql, err := os.ReadFile(filepath.Join(migrationsDir, file))
		require.NoError(t, err, "failed to read migration file: %s", file)

		_, err = pool.Exec(ctx, string(sql))
		require.NoError(t, err, "failed to execute migration: %s", file)
	}
}

// findProjectRoot walks up from the working directory to find go.mod.
func findProjectRoot(t *testing.T) string {
	t.Helper()

	dir, err := os.Getwd()
	require.NoError(t, err, "failed to get working directory")

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatal("could not find project root (go.mod)")
		}
		dir = parent
	}
}

func TestPostgresStore_LoanRoundTrip(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewPostgresStore(pool)
	ctx := context.Background()

	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	l := newLoan("loan-1", "b1", "10000", model.LoanSubmitted, created)
	l.MonthlyPayment = d("386.06")
	l.Profile.CurrentMonthlyDebt = d("1250")
	l.Profile.EmploymentYears = 5
	l.Profile.HasBankAccount = true
	require.NoError(t, s.CreateLoan(ctx, l))

	got, err := s.GetLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, "b1", got.BorrowerID)
	assert.True(t, got.Amount.Equal(d("10000")))
	assert.True(t, got.InterestRate.Equal(d("22.8")))
	assert.True(t, got.MonthlyPayment.Equal(d("386.06")))
	assert.True(t, got.Profile.CurrentMonthlyDebt.Equal(d("1250")))
	assert.Equal(t, model.HomeMortgage, got.Profile.HomeOwnership)
	assert.True(t, got.Profile.HasBankAccount)
	assert.Equal(t, model.GradeD, got.CreditGrade)
	assert.Equal(t, model.LoanSubmitted, got.Status)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Nil(t, got.FundedAt)

	assert.ErrorIs(t, s.CreateLoan(ctx, l), ErrDuplicate)

	_, err = s.GetLoan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.UpdateLoanStatus(ctx, "loan-1", model.LoanSubmitted, model.LoanApproved))
	got, err = s.GetLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.Equal(t, model.LoanApproved, got.Status)
	assert.ErrorIs(t, s.UpdateLoanStatus(ctx, "loan-1", model.LoanSubmitted, model.LoanRejected), ErrConflict)
	assert.ErrorIs(t, s.UpdateLoanStatus(ctx, "missing", model.LoanSubmitted, model.LoanApproved), ErrNotFound)
}

func TestPostgresStore_ApplyInvestmentAndMarketplace(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewPostgresStore(pool)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	require.NoError(t, s.CreateLoan(ctx, newLoan("open", "b1", "10000", model.LoanApproved, now)))
	require.NoError(t, s.CreateLoan(ctx, newLoan("full", "b2", "1000", model.LoanApproved, now.Add(time.Second))))

	inv := &model.Investment{
		ID: "i1", InvestorID: "alice", Amount: d("2500"),
		Status: model.InvestmentConfirmed, CreatedAt: now,
	}
	loan, err := s.ApplyInvestment(ctx, "open", inv, addFunds)
	require.NoError(t, err)
	assert.True(t, loan.TotalFunded.Equal(d("2500")))
	assert.Equal(t, "open", inv.LoanID)

	_, err = s.ApplyInvestment(ctx, "full", &model.Investment{
		ID: "i2", InvestorID: "bob", Amount: d("1000"),
		Status: model.InvestmentConfirmed, CreatedAt: now,
	}, addFunds)
	require.NoError(t, err)

	market, err := s.ListMarketplaceLoans(ctx, 10)
	require.NoError(t, err)
	require.Len(t, market, 1)
	assert.Equal(t, "open", market[0].ID)
	assert.True(t, market[0].FundingPercentage.Equal(d("25")), "got %s", market[0].FundingPercentage)

	invs, err := s.ListInvestmentsByInvestor(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.True(t, invs[0].Amount.Equal(d("2500")))
	assert.Equal(t, model.GradeD, invs[0].CreditGrade)

	all, err := s.ListInvestments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	assert.ErrorIs(t, s.DeleteLoan(ctx, "open"), ErrHasInvestments)
	assert.ErrorIs(t, s.DeleteLoan(ctx, "missing"), ErrNotFound)
}

func TestPostgresStore_ApplyInvestmentRollsBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewPostgresStore(pool)
	ctx := context.Background()
	require.NoError(t, s.CreateLoan(ctx, newLoan("loan-1", "b1", "10000", model.LoanApproved, time.Now().UTC())))

	_, err := s.ApplyInvestment(ctx, "loan-1", &model.Investment{ID: "i1", Amount: d("100")},
		func(*model.Loan, *model.Investment) error { return fmt.Errorf("rejected") })
	require.Error(t, err)

	invs, err := s.ListInvestmentsByLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.Empty(t, invs)

	got, err := s.GetLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.True(t, got.TotalFunded.IsZero())
}

func TestPostgresStore_ConcurrentFundingSerializes(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewPostgresStore(pool)
	ctx := context.Background()
	require.NoError(t, s.CreateLoan(ctx, newLoan("loan-1", "b1", "1000", model.LoanApproved, time.Now().UTC())))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.ApplyInvestment(ctx, "loan-1", &model.Investment{
				ID: fmt.Sprintf("i%d", i), InvestorID: "inv", Amount: d("50"),
				Status: model.InvestmentConfirmed, CreatedAt: time.Now().UTC(),
			}, addFunds)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := s.GetLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.True(t, got.TotalFunded.Equal(d("1000")), "got %s", got.TotalFunded)

	invs, err := s.ListInvestmentsByLoan(ctx, "loan-1")
	require.NoError(t, err)
	assert.Len(t, invs, 20)
}
