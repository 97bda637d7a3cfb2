package lending

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/straightothepoint12/FinscoreX/internal/funding"
	"github.com/straightothepoint12/FinscoreX/internal/model"
	"github.com/straightothepoint12/FinscoreX/internal/store"
)

// StatusRequest is the JSON body for PATCH /loans/{loanID}/status.
type StatusRequest struct {
	Status model.LoanStatus `json:"status"`
}

// errorResponse is the JSON body of every non-2xx response. Minimum and
// Remaining are set on funding rejections so clients can retry.
type errorResponse struct {
	Error     string           `json:"error"`
	Minimum   *decimal.Decimal `json:"minimum,omitempty"`
	Remaining *decimal.Decimal `json:"remaining,omitempty"`
}

// RegisterRoutes mounts the lending API on r. The caller picks the prefix.
func (s *Service) RegisterRoutes(r chi.Router) {
	r.Post("/quotes", s.handleQuote)

	r.Route("/loans", func(r chi.Router) {
		r.Post("/", s.handleCreateLoan)
		r.Get("/marketplace", s.handleMarketplace)
		r.Get("/{loanID}", s.handleGetLoan)
		r.Get("/{loanID}/schedule", s.handleSchedule)
		r.Patch("/{loanID}/status", s.handleUpdateStatus)
		r.Delete("/{loanID}", s.handleDeleteLoan)
	})

	r.Get("/borrowers/{borrowerID}/loans", s.handleBorrowerLoans)

	r.Post("/investments", s.handleInvest)
	r.Get("/investors/{investorID}/investments", s.handleInvestorInvestments)
	r.Get("/investors/{investorID}/dashboard", s.handleDashboard)

	r.Get("/admin/metrics", s.handleAdminMetrics)

	if s.hub != nil {
		r.Get("/ws", s.hub.HandleWS)
	}
}

// handleQuote handles POST /api/v1/quotes
func (s *Service) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	q, err := s.Quote(req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// handleCreateLoan handles POST /api/v1/loans
func (s *Service) handleCreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	loan, err := s.CreateLoan(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, loan)
}

// handleGetLoan handles GET /api/v1/loans/{loanID}
func (s *Service) handleGetLoan(w http.ResponseWriter, r *http.Request) {
	loan, err := s.GetLoan(r.Context(), chi.URLParam(r, "loanID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// handleSchedule handles GET /api/v1/loans/{loanID}/schedule
func (s *Service) handleSchedule(w http.ResponseWriter, r *http.Request) {
	rows, err := s.LoanSchedule(r.Context(), chi.URLParam(r, "loanID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// handleUpdateStatus handles PATCH /api/v1/loans/{loanID}/status
func (s *Service) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	loan, err := s.UpdateStatus(r.Context(), chi.URLParam(r, "loanID"), req.Status)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, loan)
}

// handleDeleteLoan handles DELETE /api/v1/loans/{loanID}?borrower_id=...
func (s *Service) handleDeleteLoan(w http.ResponseWriter, r *http.Request) {
	borrowerID := r.URL.Query().Get("borrower_id")
	if borrowerID == "" {
		writeError(w, "borrower_id is required", http.StatusBadRequest)
		return
	}
	if err := s.DeleteLoan(r.Context(), chi.URLParam(r, "loanID"), borrowerID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMarketplace handles GET /api/v1/loans/marketplace?limit=N
func (s *Service) handleMarketplace(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, "limit must be a non-negative integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	loans, err := s.Marketplace(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if loans == nil {
		loans = []model.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

// handleBorrowerLoans handles GET /api/v1/borrowers/{borrowerID}/loans
func (s *Service) handleBorrowerLoans(w http.ResponseWriter, r *http.Request) {
	loans, err := s.LoansByBorrower(r.Context(), chi.URLParam(r, "borrowerID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if loans == nil {
		loans = []model.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

// handleInvest handles POST /api/v1/investments
func (s *Service) handleInvest(w http.ResponseWriter, r *http.Request) {
	var req InvestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	res, err := s.Invest(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// handleInvestorInvestments handles GET /api/v1/investors/{investorID}/investments
func (s *Service) handleInvestorInvestments(w http.ResponseWriter, r *http.Request) {
	investments, err := s.InvestmentsByInvestor(r.Context(), chi.URLParam(r, "investorID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if investments == nil {
		investments = []model.Investment{}
	}
	writeJSON(w, http.StatusOK, investments)
}

// handleDashboard handles GET /api/v1/investors/{investorID}/dashboard
func (s *Service) handleDashboard(w http.ResponseWriter, r *http.Request) {
	dash, err := s.Dashboard(r.Context(), chi.URLParam(r, "investorID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

// handleAdminMetrics handles GET /api/v1/admin/metrics
func (s *Service) handleAdminMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.PlatformMetrics(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// writeServiceError maps domain errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		tooSmall *funding.AmountTooSmallError
		exceeds  *funding.ExceedsRemainingError
	)
	switch {
	case errors.As(err, &tooSmall):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Minimum: &tooSmall.Minimum})
	case errors.As(err, &exceeds):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Remaining: &exceeds.Remaining})
	case errors.Is(err, model.ErrInvalidInput):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, "not found", http.StatusNotFound)
	case errors.Is(err, ErrForbidden):
		writeError(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrLoanNotOpen),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, store.ErrHasInvestments),
		errors.Is(err, store.ErrConflict),
		errors.Is(err, store.ErrDuplicate):
		writeError(w, err.Error(), http.StatusConflict)
	default:
		slog.Error("request failed", "error", err)
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, errorResponse{Error: message})
}
