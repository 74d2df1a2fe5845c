/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Amounts are encoded as
  strings with two decimals (finance.Money's JSON form) so clients never see
  binary floating point.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Loan:         LoanDTO (terms + balances), factory.LoanJSON for creation
  Schedule:     ScheduleDTO, EntryDTO
  Installments: InstallmentDTO
  Payments:     PaymentRequest, PaymentResponse, PaymentDTO
  Settlements:  SettlementDTO, AllocationDTO
  Fines:        FineDTO
  Quotes:       AnticipationDTO, CostDTO

DATES:
  Due dates and disbursement are written as RFC 3339 timestamps in UTC.
  Request dates accept anything finance.ParseDate does.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/loan.go: LoanJSON type
*/
package api

import (
	"time"

	"github.com/warp/loan-ledger/finance"
	"github.com/warp/loan-ledger/ledger"
	"github.com/warp/loan-ledger/schedule"
	"github.com/warp/loan-ledger/tax"
)

// =============================================================================
// LOANS
// =============================================================================

// LoanDTO is a loan's terms and its balances as of AsOf.
type LoanDTO struct {
	ID               string        `json:"id"`
	Principal        finance.Money `json:"principal"`
	Rate             string        `json:"rate"`
	DayCount         int           `json:"day_count"`
	Scheduler        string        `json:"scheduler"`
	DisbursementDate string        `json:"disbursement_date"`
	DueDates         []string      `json:"due_dates"`
	FineRate         string        `json:"fine_rate,omitempty"`
	GracePeriodDays  int           `json:"grace_period_days"`
	Tax              string        `json:"tax,omitempty"`

	AsOf             string        `json:"as_of"`
	PrincipalBalance finance.Money `json:"principal_balance"`
	AccruedInterest  finance.Money `json:"accrued_interest"`
	AccruedMora      finance.Money `json:"accrued_mora"`
	OutstandingFines finance.Money `json:"outstanding_fines"`
	CurrentBalance   finance.Money `json:"current_balance"`
	IsPaidOff        bool          `json:"is_paid_off"`
	PaymentCount     int           `json:"payment_count"`
	NextDueDate      string        `json:"next_due_date,omitempty"`
}

func toLoanDTO(l *ledger.Loan) LoanDTO {
	dto := LoanDTO{
		ID:               l.ID(),
		Principal:        l.Principal(),
		Rate:             l.Rate().String(),
		DayCount:         int(l.Rate().DayCount()),
		Scheduler:        l.Scheduler().Name(),
		DisbursementDate: formatTime(l.Disbursement()),
		GracePeriodDays:  l.GracePeriod(),
		AsOf:             formatTime(l.Now()),
		PrincipalBalance: l.PrincipalBalance(),
		AccruedInterest:  l.AccruedInterest(),
		AccruedMora:      l.AccruedMora(),
		OutstandingFines: l.OutstandingFines(),
		CurrentBalance:   l.CurrentBalance(),
		IsPaidOff:        l.IsPaidOff(),
		PaymentCount:     len(l.Payments()),
	}
	for _, d := range l.DueDates() {
		dto.DueDates = append(dto.DueDates, formatTime(d))
	}
	if rate, ok := l.FineRate(); ok {
		dto.FineRate = rate.String()
	}
	if t := l.Terms().Tax; t != "" {
		dto.Tax = t
	}
	if remaining := l.RemainingDueDates(); len(remaining) > 0 {
		dto.NextDueDate = formatTime(remaining[0])
	}
	return dto
}

// =============================================================================
// SCHEDULES
// =============================================================================

type EntryDTO struct {
	Number           int           `json:"number"`
	DueDate          string        `json:"due_date"`
	Days             int           `json:"days"`
	BeginningBalance finance.Money `json:"beginning_balance"`
	Payment          finance.Money `json:"payment"`
	Interest         finance.Money `json:"interest"`
	Principal        finance.Money `json:"principal"`
	EndingBalance    finance.Money `json:"ending_balance"`
	Settled          bool          `json:"settled"`
}

type ScheduleDTO struct {
	Entries        []EntryDTO    `json:"entries"`
	TotalPayment   finance.Money `json:"total_payment"`
	TotalInterest  finance.Money `json:"total_interest"`
	TotalPrincipal finance.Money `json:"total_principal"`
}

func toScheduleDTO(s schedule.PaymentSchedule) ScheduleDTO {
	dto := ScheduleDTO{
		Entries:        make([]EntryDTO, len(s.Entries)),
		TotalPayment:   s.TotalPayment,
		TotalInterest:  s.TotalInterest,
		TotalPrincipal: s.TotalPrincipal,
	}
	for i, e := range s.Entries {
		dto.Entries[i] = EntryDTO{
			Number:           e.Number,
			DueDate:          formatTime(e.DueDate),
			Days:             e.Days,
			BeginningBalance: e.BeginningBalance,
			Payment:          e.Payment,
			Interest:         e.Interest,
			Principal:        e.Principal,
			EndingBalance:    e.EndingBalance,
			Settled:          e.Settled,
		}
	}
	return dto
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

type InstallmentDTO struct {
	Number            int             `json:"number"`
	DueDate           string          `json:"due_date"`
	Days              int             `json:"days"`
	ExpectedPayment   finance.Money   `json:"expected_payment"`
	ExpectedPrincipal finance.Money   `json:"expected_principal"`
	ExpectedInterest  finance.Money   `json:"expected_interest"`
	ExpectedMora      finance.Money   `json:"expected_mora"`
	ExpectedFine      finance.Money   `json:"expected_fine"`
	PaidPrincipal     finance.Money   `json:"paid_principal"`
	PaidInterest      finance.Money   `json:"paid_interest"`
	PaidMora          finance.Money   `json:"paid_mora"`
	PaidFine          finance.Money   `json:"paid_fine"`
	Balance           finance.Money   `json:"balance"`
	IsFullyPaid       bool            `json:"is_fully_paid"`
	IsOverdue         bool            `json:"is_overdue"`
	Allocations       []AllocationDTO `json:"allocations"`
}

func toInstallmentDTO(i ledger.Installment) InstallmentDTO {
	return InstallmentDTO{
		Number:            i.Number,
		DueDate:           formatTime(i.DueDate),
		Days:              i.Days,
		ExpectedPayment:   i.ExpectedPayment,
		ExpectedPrincipal: i.ExpectedPrincipal,
		ExpectedInterest:  i.ExpectedInterest,
		ExpectedMora:      i.ExpectedMora,
		ExpectedFine:      i.ExpectedFine,
		PaidPrincipal:     i.PaidPrincipal,
		PaidInterest:      i.PaidInterest,
		PaidMora:          i.PaidMora,
		PaidFine:          i.PaidFine,
		Balance:           i.Balance,
		IsFullyPaid:       i.IsFullyPaid,
		IsOverdue:         i.IsOverdue,
		Allocations:       toAllocationDTOs(i.Allocations),
	}
}

// =============================================================================
// PAYMENTS / SETTLEMENTS
// =============================================================================

// PaymentRequest is the body of POST /api/loans/{id}/payments.
//
// Kind selects the entry point:
//   - "record" (default): amount paid at paid_at, interest to interest_date
//   - "installment":      pays the next uncovered installment
//   - "anticipation":     pays now, principal to installments first
//
// paid_at defaults to the server's now and is also the "now" the loan is
// evaluated at for installment and anticipation payments.
type PaymentRequest struct {
	ID           string        `json:"id,omitempty"`
	Kind         string        `json:"kind,omitempty"`
	Amount       finance.Money `json:"amount"`
	PaidAt       string        `json:"paid_at,omitempty"`
	InterestDate string        `json:"interest_date,omitempty"`
	Description  string        `json:"description,omitempty"`
	Installments []int         `json:"installments,omitempty"`
}

type PaymentResponse struct {
	Settlement SettlementDTO `json:"settlement"`
	Loan       LoanDTO       `json:"loan"`
}

// PaymentDTO is a journal entry.
type PaymentDTO struct {
	ID           string        `json:"id"`
	Seq          int           `json:"seq"`
	Kind         string        `json:"kind"`
	Amount       finance.Money `json:"amount"`
	PaidAt       string        `json:"paid_at"`
	InterestDate string        `json:"interest_date"`
	Description  string        `json:"description,omitempty"`
	Installments []int         `json:"installments,omitempty"`
}

func toPaymentDTO(ev ledger.PaymentEvent) PaymentDTO {
	return PaymentDTO{
		ID:           ev.ID,
		Seq:          ev.Seq,
		Kind:         string(ev.Kind),
		Amount:       ev.Amount,
		PaidAt:       formatTime(ev.PaidAt),
		InterestDate: formatTime(ev.InterestDate),
		Description:  ev.Description,
		Installments: ev.Targets,
	}
}

type AllocationDTO struct {
	Installment      int           `json:"installment"`
	Principal        finance.Money `json:"principal"`
	Interest         finance.Money `json:"interest"`
	Mora             finance.Money `json:"mora"`
	Fine             finance.Money `json:"fine"`
	BeginningBalance finance.Money `json:"beginning_balance"`
	EndingBalance    finance.Money `json:"ending_balance"`
	FullyCovered     bool          `json:"fully_covered"`
}

func toAllocationDTOs(as []ledger.SettlementAllocation) []AllocationDTO {
	dtos := make([]AllocationDTO, len(as))
	for i, a := range as {
		dtos[i] = AllocationDTO{
			Installment:      a.Installment,
			Principal:        a.Principal,
			Interest:         a.Interest,
			Mora:             a.Mora,
			Fine:             a.Fine,
			BeginningBalance: a.BeginningBalance,
			EndingBalance:    a.EndingBalance,
			FullyCovered:     a.FullyCovered,
		}
	}
	return dtos
}

type SettlementDTO struct {
	ID               string          `json:"id"`
	PaymentID        string          `json:"payment_id"`
	Amount           finance.Money   `json:"amount"`
	PaidAt           string          `json:"paid_at"`
	InterestDate     string          `json:"interest_date"`
	Description      string          `json:"description,omitempty"`
	FinePaid         finance.Money   `json:"fine_paid"`
	MoraPaid         finance.Money   `json:"mora_paid"`
	InterestPaid     finance.Money   `json:"interest_paid"`
	PrincipalPaid    finance.Money   `json:"principal_paid"`
	RemainingBalance finance.Money   `json:"remaining_balance"`
	Allocations      []AllocationDTO `json:"allocations"`
}

func toSettlementDTO(s ledger.Settlement) SettlementDTO {
	return SettlementDTO{
		ID:               s.ID,
		PaymentID:        s.PaymentID,
		Amount:           s.Amount,
		PaidAt:           formatTime(s.PaidAt),
		InterestDate:     formatTime(s.InterestDate),
		Description:      s.Description,
		FinePaid:         s.FinePaid,
		MoraPaid:         s.MoraPaid,
		InterestPaid:     s.InterestPaid,
		PrincipalPaid:    s.PrincipalPaid,
		RemainingBalance: s.RemainingBalance,
		Allocations:      toAllocationDTOs(s.Allocations),
	}
}

type FineDTO struct {
	Installment int           `json:"installment"`
	DueDate     string        `json:"due_date"`
	Rate        string        `json:"rate"`
	Amount      finance.Money `json:"amount"`
	AppliedAt   string        `json:"applied_at"`
}

func toFineDTO(f ledger.Fine) FineDTO {
	return FineDTO{
		Installment: f.Installment,
		DueDate:     formatTime(f.DueDate),
		Rate:        f.Rate.String(),
		Amount:      f.Amount,
		AppliedAt:   formatTime(f.AppliedAt),
	}
}

// =============================================================================
// QUOTES
// =============================================================================

type AnticipationDTO struct {
	AsOf            string        `json:"as_of"`
	Installments    []int         `json:"installments"`
	Fines           finance.Money `json:"fines"`
	Mora            finance.Money `json:"mora"`
	Interest        finance.Money `json:"interest"`
	Principal       finance.Money `json:"principal"`
	Amount          finance.Money `json:"amount"`
	ScheduledAmount finance.Money `json:"scheduled_amount"`
	Discount        finance.Money `json:"discount"`
}

func toAnticipationDTO(asOf time.Time, r ledger.AnticipationResult) AnticipationDTO {
	return AnticipationDTO{
		AsOf:            formatTime(asOf),
		Installments:    r.Installments,
		Fines:           r.Fines,
		Mora:            r.Mora,
		Interest:        r.Interest,
		Principal:       r.Principal,
		Amount:          r.Amount,
		ScheduledAmount: r.ScheduledAmount,
		Discount:        r.Discount,
	}
}

type TaxComponentDTO struct {
	Installment int           `json:"installment"`
	Days        int           `json:"days"`
	Base        finance.Money `json:"base"`
	Amount      finance.Money `json:"amount"`
}

type TaxDTO struct {
	Name       string            `json:"name"`
	Daily      finance.Money     `json:"daily"`
	Additional finance.Money     `json:"additional"`
	Total      finance.Money     `json:"total"`
	Components []TaxComponentDTO `json:"components"`
}

func toTaxDTO(r tax.Result) *TaxDTO {
	dto := &TaxDTO{
		Name:       r.Name,
		Daily:      r.Daily,
		Additional: r.Additional,
		Total:      r.Total,
		Components: make([]TaxComponentDTO, len(r.Components)),
	}
	for i, c := range r.Components {
		dto.Components[i] = TaxComponentDTO{Installment: c.Installment, Days: c.Days, Base: c.Base, Amount: c.Amount}
	}
	return dto
}

// CostDTO is the cost of credit: taxes withheld and the effective annual rate.
type CostDTO struct {
	AsOf            string        `json:"as_of"`
	Tax             *TaxDTO       `json:"tax,omitempty"`
	NetDisbursement finance.Money `json:"net_disbursement"`
	EffectiveAnnual string        `json:"effective_annual_rate"`
}

// ErrorResponse is returned on errors.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// =============================================================================
// SCENARIOS
// =============================================================================

type ScenarioDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	LoanIDs     []string `json:"loan_ids,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}
