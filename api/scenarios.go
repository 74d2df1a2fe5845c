/*
scenarios.go - Demo scenario loaders

PURPOSE:

	Provides pre-built loans with payment histories for demos and manual
	testing. Each scenario creates loans through the same code paths as the
	API (createLoan, applyPayment), so what a scenario shows is exactly what
	a client would get.

AVAILABLE SCENARIOS:

	on-time:      Price loan, first two installments paid on their due dates
	late-payer:   Payment nine days late: fine, mora, carried interest
	anticipation: Installment paid early, tail schedule rebuilt
	sac-iof:      Constant amortization with IOF withheld at disbursement

HOW SCENARIOS WORK:
 1. Create each loan from its factory.LoanJSON
 2. Apply its payments in order, each journaled like a POST would be

	Loan IDs are prefixed with the scenario ID. The journal is append-only,
	so loading a scenario twice fails with 409 Conflict.

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "late-payer"}

ADDING NEW SCENARIOS:
 1. Add an entry to 'scenarios' with loans and payments

SEE ALSO:
  - handlers.go: createLoan, applyPayment
  - factory/loan.go: Loan JSON definitions
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/warp/loan-ledger/factory"
	"github.com/warp/loan-ledger/finance"
	"go.uber.org/zap"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type scenarioLoan struct {
	loan     factory.LoanJSON
	payments []PaymentRequest
}

type scenario struct {
	ScenarioDTO
	loans []scenarioLoan
}

func strPtr(s string) *string {
	return &s
}

// threeMonths is 10000.00 at 5% a year repaid Feb 1, Mar 1 and Apr 1 2024.
func threeMonths(id string) factory.LoanJSON {
	return factory.LoanJSON{
		ID:               id,
		Principal:        "10000.00",
		Rate:             "5% a",
		DisbursementDate: "2024-01-01",
		DueDates:         []string{"2024-02-01", "2024-03-01", "2024-04-01"},
	}
}

var scenarios = []scenario{
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "on-time",
			Name:        "On-Time Borrower",
			Description: "Price loan, first two installments paid on their due dates",
		},
		loans: []scenarioLoan{{
			loan: threeMonths("on-time-1"),
			payments: []PaymentRequest{
				{Kind: "installment", Amount: finance.MustMoney("3360.46"), PaidAt: "2024-02-01"},
				{Kind: "installment", Amount: finance.MustMoney("3360.46"), PaidAt: "2024-03-01"},
			},
		}},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "late-payer",
			Name:        "Late Payer",
			Description: "Partial payment nine days late, then the rest of the installment",
		},
		loans: []scenarioLoan{{
			loan: func() factory.LoanJSON {
				lj := threeMonths("late-payer-1")
				lj.FineRate = strPtr("0.02")
				lj.GracePeriodDays = 3
				return lj
			}(),
			payments: []PaymentRequest{
				{Amount: finance.MustMoney("100.00"), PaidAt: "2024-02-10", Description: "partial"},
				{Amount: finance.MustMoney("3400.00"), PaidAt: "2024-02-20", Description: "catch-up"},
			},
		}},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "anticipation",
			Name:        "Early Payment",
			Description: "First installment anticipated mid-January",
		},
		loans: []scenarioLoan{{
			loan: threeMonths("anticipation-1"),
			payments: []PaymentRequest{
				{Kind: "anticipation", Amount: finance.MustMoney("3360.16"), PaidAt: "2024-01-15T12:00:00Z"},
			},
		}},
	},
	{
		ScenarioDTO: ScenarioDTO{
			ID:          "sac-iof",
			Name:        "SAC with IOF",
			Description: "Twelve constant-amortization installments, IOF withheld",
		},
		loans: []scenarioLoan{{
			loan: factory.LoanJSON{
				ID:               "sac-iof-1",
				Principal:        "24000.00",
				Rate:             "1.5% m",
				DisbursementDate: "2024-01-10",
				FirstDueDate:     "2024-02-10",
				Installments:     12,
				Scheduler:        "sac",
				Tax:              "iof",
			},
		}},
	},
}

func findScenario(id string) (scenario, bool) {
	for _, s := range scenarios {
		if s.ID == id {
			return s, true
		}
	}
	return scenario{}, false
}

// =============================================================================
// HANDLERS
// =============================================================================

// ListScenarios returns available scenarios.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	dtos := make([]ScenarioDTO, len(scenarios))
	for i, s := range scenarios {
		dtos[i] = s.ScenarioDTO
		for _, l := range s.loans {
			dtos[i].LoanIDs = append(dtos[i].LoanIDs, l.loan.ID)
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// LoadScenario creates a scenario's loans and payments.
// POST /api/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	s, ok := findScenario(req.ScenarioID)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Unknown scenario: %s", req.ScenarioID), nil)
		return
	}

	loans, err := h.loadScenario(r.Context(), s)
	if err != nil {
		h.fail(w, r, "Failed to load scenario", err)
		return
	}

	h.logger.Info("scenario loaded", zap.String("scenario", s.ID), zap.Int("loans", len(loans)))
	writeJSON(w, http.StatusCreated, loans)
}

func (h *Handler) loadScenario(ctx context.Context, s scenario) ([]LoanDTO, error) {
	var out []LoanDTO
	for _, sl := range s.loans {
		loan, err := h.createLoan(ctx, sl.loan)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", sl.loan.ID, err)
		}
		for i, p := range sl.payments {
			if _, loan, err = h.applyPayment(ctx, loan.ID(), p); err != nil {
				return nil, fmt.Errorf("%s payment %d: %w", sl.loan.ID, i+1, err)
			}
		}
		out = append(out, toLoanDTO(loan))
	}
	return out, nil
}
