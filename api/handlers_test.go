/*
handlers_test.go - HTTP tests for the loan API

Exercises the router end to end over the in-memory store:
- Loan creation, validation and lookups
- Payments of every kind, idempotent payment IDs
- as_of reads through the TimeMachine
*/
package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loan-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var midJanuary = time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC)

const loanBody = `{
	"id": "loan-1",
	"principal": "10000.00",
	"rate": "5% a",
	"disbursement_date": "2024-01-01",
	"due_dates": ["2024-02-01", "2024-03-01", "2024-04-01"]
}`

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	h := NewHandler(store.NewMemory(), nil)
	h.SetClock(func() time.Time { return midJanuary })
	return NewRouter(h, nil)
}

func do(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createLoan(t *testing.T, router http.Handler) LoanDTO {
	t.Helper()
	rec := do(t, router, http.MethodPost, "/api/loans", loanBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[LoanDTO](t, rec)
}

// =============================================================================
// LOANS
// =============================================================================

func TestCreateLoan_ThenRead(t *testing.T) {
	router := newTestRouter(t)

	created := createLoan(t, router)
	assert.Equal(t, "loan-1", created.ID)
	assert.Equal(t, "10000.00", created.PrincipalBalance.String())
	assert.Equal(t, "price", created.Scheduler)
	assert.Equal(t, "0.02", created.FineRate)
	require.Len(t, created.DueDates, 3)
	assert.Equal(t, "2024-02-01T00:00:00Z", created.NextDueDate)

	rec := do(t, router, http.MethodGet, "/api/loans/loan-1/schedule/original", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sched := decode[ScheduleDTO](t, rec)
	require.Len(t, sched.Entries, 3)
	assert.Equal(t, "3360.46", sched.Entries[0].Payment.String())
	assert.Equal(t, "41.52", sched.Entries[0].Interest.String())
	assert.Equal(t, "10000.00", sched.TotalPrincipal.String())

	rec = do(t, router, http.MethodGet, "/api/loans", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]LoanDTO](t, rec), 1)
}

func TestCreateLoan_Rejections(t *testing.T) {
	router := newTestRouter(t)
	createLoan(t, router)

	tests := map[string]struct {
		body string
		code int
	}{
		"malformed json":  {`{"principal":`, http.StatusBadRequest},
		"bad principal":   {`{"principal": "ten", "rate": "5%", "due_dates": ["2024-02-01"]}`, http.StatusBadRequest},
		"due before loan": {`{"principal": "10", "rate": "5%", "disbursement_date": "2024-03-01", "due_dates": ["2024-02-01"]}`, http.StatusBadRequest},
		"duplicate id":    {loanBody, http.StatusConflict},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/loans", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decode[ErrorResponse](t, rec).Error)
		})
	}
}

func TestGetLoan_NotFound(t *testing.T) {
	router := newTestRouter(t)

	for _, path := range []string{"/api/loans/nope", "/api/loans/nope/schedule", "/api/loans/nope/payments"} {
		rec := do(t, router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

// =============================================================================
// PAYMENTS
// =============================================================================

func TestAnticipation_QuoteThenPay(t *testing.T) {
	// GIVEN: a fresh loan, clock at Jan 15 noon
	// WHEN: installment 1 is quoted, then 3360.16 is anticipated
	// THEN: interest runs only 14 days and principal covers installment 1

	router := newTestRouter(t)
	createLoan(t, router)

	rec := do(t, router, http.MethodGet, "/api/loans/loan-1/anticipation?installments=1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[AnticipationDTO](t, rec)
	assert.Equal(t, []int{1}, quote.Installments)
	assert.Equal(t, "3337.67", quote.Amount.String())
	assert.Equal(t, "22.79", quote.Discount.String())

	rec = do(t, router, http.MethodPost, "/api/loans/loan-1/payments", `{"kind": "anticipation", "amount": "3360.16"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[PaymentResponse](t, rec)
	assert.Equal(t, "18.73", resp.Settlement.InterestPaid.String())
	assert.Equal(t, "3341.43", resp.Settlement.PrincipalPaid.String())
	assert.Equal(t, "6658.57", resp.Loan.PrincipalBalance.String())
	assert.Equal(t, 1, resp.Loan.PaymentCount)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/payments", "")
	payments := decode[[]PaymentDTO](t, rec)
	require.Len(t, payments, 1)
	assert.Equal(t, "anticipation", payments[0].Kind)
	assert.Equal(t, 1, payments[0].Seq)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/installments", "")
	insts := decode[[]InstallmentDTO](t, rec)
	require.Len(t, insts, 3)
	assert.True(t, insts[0].IsFullyPaid)
	assert.False(t, insts[1].IsFullyPaid)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/schedule", "")
	sched := decode[ScheduleDTO](t, rec)
	assert.True(t, sched.Entries[0].Settled)
	assert.Equal(t, "3356.31", sched.Entries[1].Payment.String())
}

func TestRecordPayment_LateWithFine(t *testing.T) {
	// GIVEN: installment 1 nine days overdue on Feb 10
	// WHEN: 100.00 is recorded
	// THEN: fine first, then mora, then regular interest

	router := newTestRouter(t)
	createLoan(t, router)

	rec := do(t, router, http.MethodPost, "/api/loans/loan-1/payments",
		`{"amount": "100", "paid_at": "2024-02-10", "description": "partial"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	s := decode[PaymentResponse](t, rec).Settlement
	assert.Equal(t, "67.21", s.FinePaid.String())
	assert.Equal(t, "12.09", s.MoraPaid.String())
	assert.Equal(t, "20.70", s.InterestPaid.String())
	assert.Equal(t, "partial", s.Description)

	// The settlement is re-derived on every read with the same ID
	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/settlements", "")
	settlements := decode[[]SettlementDTO](t, rec)
	require.Len(t, settlements, 1)
	assert.Equal(t, s.ID, settlements[0].ID)
	assert.Equal(t, s.PaymentID, settlements[0].PaymentID)
}

func TestPayInstallment_OnDueDate(t *testing.T) {
	router := newTestRouter(t)
	createLoan(t, router)

	rec := do(t, router, http.MethodPost, "/api/loans/loan-1/payments",
		`{"kind": "installment", "amount": "3360.46", "paid_at": "2024-02-01"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	s := decode[PaymentResponse](t, rec).Settlement
	assert.Equal(t, "41.52", s.InterestPaid.String())
	assert.Equal(t, "3318.94", s.PrincipalPaid.String())
}

func TestCreatePayment_Rejections(t *testing.T) {
	router := newTestRouter(t)
	createLoan(t, router)

	first := do(t, router, http.MethodPost, "/api/loans/loan-1/payments", `{"id": "p-1", "amount": "10"}`)
	require.Equal(t, http.StatusCreated, first.Code, first.Body.String())

	tests := map[string]struct {
		path string
		body string
		code int
	}{
		"duplicate payment id": {"/api/loans/loan-1/payments", `{"id": "p-1", "amount": "10"}`, http.StatusConflict},
		"zero amount":          {"/api/loans/loan-1/payments", `{"amount": "0"}`, http.StatusBadRequest},
		"unknown kind":         {"/api/loans/loan-1/payments", `{"kind": "barter", "amount": "10"}`, http.StatusBadRequest},
		"bad paid_at":          {"/api/loans/loan-1/payments", `{"amount": "10", "paid_at": "someday"}`, http.StatusBadRequest},
		"target out of range":  {"/api/loans/loan-1/payments", `{"kind": "anticipation", "amount": "10", "installments": [9]}`, http.StatusBadRequest},
		"unknown loan":         {"/api/loans/nope/payments", `{"amount": "10"}`, http.StatusNotFound},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}

	rec := do(t, router, http.MethodGet, "/api/loans/loan-1/payments", "")
	assert.Len(t, decode[[]PaymentDTO](t, rec), 1, "rejected payments are not journaled")
}

// =============================================================================
// POINT-IN-TIME READS
// =============================================================================

func TestAsOf_ExcludesLaterPayments(t *testing.T) {
	router := newTestRouter(t)
	createLoan(t, router)

	rec := do(t, router, http.MethodPost, "/api/loans/loan-1/payments", `{"kind": "anticipation", "amount": "3360.16"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1?as_of=2024-01-10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	before := decode[LoanDTO](t, rec)
	assert.Equal(t, 0, before.PaymentCount)
	assert.Equal(t, "10000.00", before.PrincipalBalance.String())
	assert.Equal(t, "2024-01-10T00:00:00Z", before.AsOf)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/settlements?as_of=2024-01-20", "")
	assert.Len(t, decode[[]SettlementDTO](t, rec), 1)

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1", "")
	assert.Equal(t, "6658.57", decode[LoanDTO](t, rec).PrincipalBalance.String())
}

func TestAsOf_FinesDerivedAtTarget(t *testing.T) {
	router := newTestRouter(t)
	createLoan(t, router)

	rec := do(t, router, http.MethodGet, "/api/loans/loan-1/fines?as_of=2024-02-10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	fines := decode[[]FineDTO](t, rec)
	require.Len(t, fines, 1)
	assert.Equal(t, 1, fines[0].Installment)
	assert.Equal(t, "67.21", fines[0].Amount.String())

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1/fines", "")
	assert.Empty(t, decode[[]FineDTO](t, rec))

	rec = do(t, router, http.MethodGet, "/api/loans/loan-1?as_of=yesterday-ish", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCost_WithIOF(t *testing.T) {
	router := newTestRouter(t)
	body := `{"id": "taxed", "principal": "10000.00", "rate": "5% a", "disbursement_date": "2024-01-01",
		"due_dates": ["2024-02-01", "2024-03-01", "2024-04-01"], "tax": "iof"}`
	rec := do(t, router, http.MethodPost, "/api/loans", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(t, router, http.MethodGet, "/api/loans/taxed/cost", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cost := decode[CostDTO](t, rec)
	require.NotNil(t, cost.Tax)
	assert.Equal(t, "87.82", cost.Tax.Total.String())
	assert.Equal(t, "38.00", cost.Tax.Additional.String())
	assert.Equal(t, "9912.18", cost.NetDisbursement.String())
	assert.NotEmpty(t, cost.EffectiveAnnual)
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t)
	rec := do(t, router, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
