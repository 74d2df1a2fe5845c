package ledger

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/finance"
)

// =============================================================================
// PAYMENT EVENTS - The journal a loan is replayed from
// =============================================================================

// PaymentKind records which entry point produced a payment event.
type PaymentKind string

const (
	PaymentRecorded     PaymentKind = "record"
	PaymentInstallment  PaymentKind = "installment"
	PaymentAnticipation PaymentKind = "anticipation"
)

// PaymentEvent is one entry of a loan's append-only payment journal.
//
// Everything the settlement engine needs is on the event itself (the interest
// date is resolved when the payment is made), so replaying the journal on a
// fresh loan reproduces the same settlements bit for bit.
type PaymentEvent struct {
	ID           string
	Seq          int
	Kind         PaymentKind
	Amount       finance.Money
	PaidAt       time.Time
	InterestDate time.Time
	Description  string

	// Targets lists installments that receive principal first (anticipation).
	Targets []int
}

// PaymentOption customizes RecordPayment.
type PaymentOption func(*PaymentEvent)

// WithDescription attaches a free-text description to the payment.
func WithDescription(desc string) PaymentOption {
	return func(ev *PaymentEvent) { ev.Description = desc }
}

// WithInterestDate charges interest up to t instead of the payment date.
func WithInterestDate(t time.Time) PaymentOption {
	return func(ev *PaymentEvent) { ev.InterestDate = finance.Normalize(t) }
}

// WithPaymentID sets the journal ID instead of generating one.
func WithPaymentID(id string) PaymentOption {
	return func(ev *PaymentEvent) { ev.ID = id }
}

// =============================================================================
// FINES
// =============================================================================

// Fine is a late fee applied once to an overdue due date.
type Fine struct {
	Installment int
	DueDate     time.Time
	Rate        decimal.Decimal
	Amount      finance.Money
	AppliedAt   time.Time
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

// SettlementAllocation is one payment's contribution to one installment.
// BeginningBalance and EndingBalance bracket the principal part.
type SettlementAllocation struct {
	Installment      int
	Principal        finance.Money
	Interest         finance.Money
	Mora             finance.Money
	Fine             finance.Money
	BeginningBalance finance.Money
	EndingBalance    finance.Money
	FullyCovered     bool
}

// Total is the sum of every component.
func (a SettlementAllocation) Total() finance.Money {
	return finance.Sum(a.Principal, a.Interest, a.Mora, a.Fine)
}

// Settlement is the immutable result of applying one payment. Its ID is
// derived from the payment event, so replay reproduces it.
//
// INVARIANT: FinePaid + MoraPaid + InterestPaid + PrincipalPaid == Amount
type Settlement struct {
	ID               string
	PaymentID        string
	Amount           finance.Money
	PaidAt           time.Time
	InterestDate     time.Time
	Description      string
	FinePaid         finance.Money
	MoraPaid         finance.Money
	InterestPaid     finance.Money
	PrincipalPaid    finance.Money
	RemainingBalance finance.Money
	Allocations      []SettlementAllocation
}

// Allocation returns the allocation for installment n, if any.
func (s Settlement) Allocation(n int) (SettlementAllocation, bool) {
	for _, a := range s.Allocations {
		if a.Installment == n {
			return a, true
		}
	}
	return SettlementAllocation{}, false
}

func (s Settlement) clone() Settlement {
	s.Allocations = append([]SettlementAllocation(nil), s.Allocations...)
	return s
}

func (ev PaymentEvent) clone() PaymentEvent {
	ev.Targets = append([]int(nil), ev.Targets...)
	return ev
}
