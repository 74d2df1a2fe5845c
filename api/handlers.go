/*
handlers.go - HTTP API handlers for the loan ledger

PURPOSE:
  Exposes the ledger via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the ledger package.

ENDPOINTS:
  Loans:
    GET    /api/loans                        List loans with balances
    POST   /api/loans                        Create loan from factory.LoanJSON
    GET    /api/loans/{id}                   Terms and balances

  Projections (all accept ?as_of=<date>):
    GET    /api/loans/{id}/schedule          Rebuilt amortization schedule
    GET    /api/loans/{id}/schedule/original Baseline schedule
    GET    /api/loans/{id}/installments      Per-installment view
    GET    /api/loans/{id}/settlements       Settlement history
    GET    /api/loans/{id}/fines             Applied late fines
    GET    /api/loans/{id}/anticipation      Quote (?installments=2,3)
    GET    /api/loans/{id}/cost              Tax, net disbursement, IRR

  Payments:
    GET    /api/loans/{id}/payments          Payment journal
    POST   /api/loans/{id}/payments          Record/installment/anticipation

  Scenarios:
    GET    /api/scenarios                    List demo scenarios
    POST   /api/scenarios/load               Create a scenario's loans

POINT-IN-TIME READS:
  ?as_of runs the read inside a TimeMachine warp. Each request gets its own
  TimeMachine; the stored loan is never touched.

REQUEST FLOW:
  1. Parse HTTP request
  2. ledger.Load: terms + journal replay
  3. Call ledger operation
  4. Append the new journal event (payments only)
  5. Serialize response

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Loan or due date not found
  - 409: Conflict (duplicate loan or payment ID, nested warp)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/warp/loan-ledger/factory"
	"github.com/warp/loan-ledger/finance"
	"github.com/warp/loan-ledger/ledger"
	"go.uber.org/zap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store       ledger.Store
	LoanFactory *factory.LoanFactory

	logger *zap.Logger
	now    func() time.Time

	// Payments are load-apply-append; one writer at a time keeps Seq dense.
	writeMu sync.Mutex
}

// NewHandler creates a new handler with the given store.
func NewHandler(store ledger.Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:       store,
		LoanFactory: factory.NewLoanFactory(),
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the source of "now" (tests, replays).
func (h *Handler) SetClock(now func() time.Time) {
	h.now = now
}

// load rebuilds a loan evaluated at the given instant.
func (h *Handler) load(ctx context.Context, id string, at time.Time) (*ledger.Loan, error) {
	loan, err := ledger.Load(ctx, h.Store, id,
		ledger.WithClock(finance.FixedClock(at)),
		ledger.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}
	loan.CalculateLateFines(at)
	return loan, nil
}

// view runs fn on the loan, inside a warp when ?as_of is given.
func (h *Handler) view(w http.ResponseWriter, r *http.Request, fn func(*ledger.Loan) error) {
	id := chi.URLParam(r, "id")
	loan, err := h.load(r.Context(), id, h.now())
	if err != nil {
		h.fail(w, r, "Failed to load loan", err)
		return
	}

	asOf := r.URL.Query().Get("as_of")
	if asOf == "" {
		err = fn(loan)
	} else {
		err = ledger.NewTimeMachine().Warp(loan, asOf, fn)
	}
	if err != nil {
		h.fail(w, r, "Failed to read loan", err)
	}
}

// =============================================================================
// HEALTH
// =============================================================================

type pinger interface {
	Ping(ctx context.Context) error
}

// Health reports whether the store is reachable.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if p, ok := h.Store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "Store unavailable", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// LOAN HANDLERS
// =============================================================================

// ListLoans returns every loan with balances as of now.
// GET /api/loans
func (h *Handler) ListLoans(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	terms, err := h.Store.ListLoans(ctx)
	if err != nil {
		h.fail(w, r, "Failed to list loans", err)
		return
	}

	now := h.now()
	dtos := make([]LoanDTO, 0, len(terms))
	for _, t := range terms {
		loan, err := h.load(ctx, t.ID, now)
		if err != nil {
			h.fail(w, r, "Failed to load loan", err)
			return
		}
		dtos = append(dtos, toLoanDTO(loan))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateLoan creates a loan from a factory.LoanJSON body.
// POST /api/loans
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req factory.LoanJSON
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	loan, err := h.createLoan(r.Context(), req)
	if err != nil {
		h.fail(w, r, "Failed to create loan", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLoanDTO(loan))
}

// createLoan validates terms by constructing the loan, then persists them.
func (h *Handler) createLoan(ctx context.Context, lj factory.LoanJSON) (*ledger.Loan, error) {
	terms, err := h.LoanFactory.FromJSON(lj)
	if err != nil {
		return nil, err
	}

	now := h.now()
	if terms.ID == "" {
		terms.ID = uuid.NewString()
	}
	if terms.Disbursement.IsZero() {
		terms.Disbursement = now
	}

	loan, err := ledger.NewFromTerms(terms, ledger.WithClock(finance.FixedClock(now)), ledger.WithLogger(h.logger))
	if err != nil {
		return nil, err
	}

	persisted := loan.Terms()
	persisted.CreatedAt = now
	if err := h.Store.CreateLoan(ctx, persisted); err != nil {
		return nil, err
	}

	h.logger.Info("loan created",
		zap.String("loan_id", loan.ID()),
		zap.String("principal", loan.Principal().String()),
		zap.Int("installments", loan.NumInstallments()))
	return loan, nil
}

// GetLoan returns terms and balances.
// GET /api/loans/{id}
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(l *ledger.Loan) error {
		writeJSON(w, http.StatusOK, toLoanDTO(l))
		return nil
	})
}

// =============================================================================
// PROJECTIONS
// =============================================================================

// GetSchedule returns the amortization schedule rebuilt from settlements.
// GET /api/loans/{id}/schedule
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(l *ledger.Loan) error {
		writeJSON(w, http.StatusOK, toScheduleDTO(l.AmortizationSchedule()))
		return nil
	})
}

// GetOriginalSchedule returns the baseline schedule.
// GET /api/loans/{id}/schedule/original
func (h *Handler) GetOriginalSchedule(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(l *ledger.Loan) error {
		writeJSON(w, http.StatusOK, toScheduleDTO(l.OriginalSchedule()))
		return nil
	})
}

// GetInstallments returns the per-installment view.
// GET /api/loans/{id}/installments
func (h *Handler) GetInstallments(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(l *ledger.Loan) error {
		insts := l.Installments()
		dtos := make([]InstallmentDTO, len(insts))
		for i, inst := range insts {
			dtos[i] = toInstallmentDTO(inst)
		}
		writeJSON(w, http.StatusOK, dtos)
		return nil
	})
}

// GetSettlements returns the settlement history.
// GET /api/loans/{id}/settlements
func (h *Handler) GetSettlements(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(l *ledger.Loan) error {
		ss := l.Settlements()
		dtos := make([]SettlementDTO, len(ss))
		for i, s := range ss {
			dtos[i] = toSettlementDTO(s)
		}
		writeJSON(w, http.StatusOK, dtos)
		return nil
	})
}

// GetFines returns late fines applied so far.
// GET /api/loans/{id}/fines
func (h *Handler) GetFines(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(l *ledger.Loan) error {
		fines := l.Fines()
		dtos := make([]FineDTO, len(fines))
		for i, f := range fines {
			dtos[i] = toFineDTO(f)
		}
		writeJSON(w, http.StatusOK, dtos)
		return nil
	})
}

// GetAnticipation quotes the amount that settles installments now.
// GET /api/loans/{id}/anticipation?installments=2,3
func (h *Handler) GetAnticipation(w http.ResponseWriter, r *http.Request) {
	numbers, err := parseInstallments(r.URL.Query().Get("installments"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid installments", err)
		return
	}
	h.view(w, r, func(l *ledger.Loan) error {
		res, err := l.CalculateAnticipation(numbers...)
		if err != nil {
			return err
		}
		writeJSON(w, http.StatusOK, toAnticipationDTO(l.Now(), res))
		return nil
	})
}

// GetCost returns taxes withheld, net disbursement and the effective annual
// cost of the loan.
// GET /api/loans/{id}/cost
func (h *Handler) GetCost(w http.ResponseWriter, r *http.Request) {
	h.view(w, r, func(l *ledger.Loan) error {
		irr, err := l.IRR()
		if err != nil {
			return fmt.Errorf("effective annual rate: %w", err)
		}
		dto := CostDTO{
			AsOf:            formatTime(l.Now()),
			NetDisbursement: l.NetDisbursement(),
			EffectiveAnnual: irr.EffectiveAnnual().StringFixed(6),
		}
		if res, ok := l.TaxResult(); ok {
			dto.Tax = toTaxDTO(res)
		}
		writeJSON(w, http.StatusOK, dto)
		return nil
	})
}

// =============================================================================
// PAYMENTS
// =============================================================================

// ListPayments returns the payment journal.
// GET /api/loans/{id}/payments
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	events, err := h.Store.LoadPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "Failed to load payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(events))
	for i, ev := range events {
		dtos[i] = toPaymentDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePayment applies a payment and journals it.
// POST /api/loans/{id}/payments
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	settlement, loan, err := h.applyPayment(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.fail(w, r, "Payment rejected", err)
		return
	}

	writeJSON(w, http.StatusCreated, PaymentResponse{
		Settlement: toSettlementDTO(settlement),
		Loan:       toLoanDTO(loan),
	})
}

// applyPayment loads the loan at the payment instant, applies req and
// appends the resulting journal event.
func (h *Handler) applyPayment(ctx context.Context, id string, req PaymentRequest) (ledger.Settlement, *ledger.Loan, error) {
	paidAt := h.now()
	if req.PaidAt != "" {
		t, err := finance.ParseDate(req.PaidAt)
		if err != nil {
			return ledger.Settlement{}, nil, fmt.Errorf("paid_at: %w", err)
		}
		paidAt = t
	}

	var opts []ledger.PaymentOption
	if req.ID != "" {
		opts = append(opts, ledger.WithPaymentID(req.ID))
	}
	if req.Description != "" {
		opts = append(opts, ledger.WithDescription(req.Description))
	}
	if req.InterestDate != "" {
		t, err := finance.ParseDate(req.InterestDate)
		if err != nil {
			return ledger.Settlement{}, nil, fmt.Errorf("interest_date: %w", err)
		}
		opts = append(opts, ledger.WithInterestDate(t))
	}

	h.writeMu.Lock()
	defer h.writeMu.Unlock()

	loan, err := h.load(ctx, id, paidAt)
	if err != nil {
		return ledger.Settlement{}, nil, err
	}

	var settlement ledger.Settlement
	switch ledger.PaymentKind(req.Kind) {
	case ledger.PaymentRecorded, "":
		settlement, err = loan.RecordPayment(req.Amount, paidAt, opts...)
	case ledger.PaymentInstallment:
		settlement, err = loan.PayInstallment(req.Amount, opts...)
	case ledger.PaymentAnticipation:
		if len(opts) > 0 {
			return ledger.Settlement{}, nil, fmt.Errorf("%w: anticipation takes only amount, paid_at and installments", ledger.ErrInvalidPayment)
		}
		settlement, err = loan.AnticipatePayment(req.Amount, req.Installments...)
	default:
		return ledger.Settlement{}, nil, fmt.Errorf("%w: unknown payment kind %q", ledger.ErrInvalidPayment, req.Kind)
	}
	if err != nil {
		return ledger.Settlement{}, nil, err
	}

	ev, _ := loan.LastPayment()
	if err := h.Store.AppendPayment(ctx, id, ev); err != nil {
		return ledger.Settlement{}, nil, err
	}

	h.logger.Info("payment applied",
		zap.String("loan_id", id),
		zap.String("payment_id", ev.ID),
		zap.String("kind", string(ev.Kind)),
		zap.String("amount", ev.Amount.String()),
		zap.String("principal_balance", loan.PrincipalBalance().String()))
	return settlement, loan, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseInstallments(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("installment %q is not a number", part)
		}
		out = append(out, n)
	}
	return out, nil
}

// fail maps ledger errors to HTTP statuses and logs the unexpected ones.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case errors.Is(err, ledger.ErrDuplicateLoan),
		errors.Is(err, ledger.ErrDuplicatePayment),
		errors.Is(err, ledger.ErrNestedWarp):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.logger.Error(message,
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
