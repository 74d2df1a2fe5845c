/*
store.go - Persistence interface for loans

PURPOSE:
  Defines what the ledger needs from a database. A loan is persisted as its
  Terms plus its payment journal; fines, settlements and balances are never
  stored because Replay re-derives them deterministically.

APPEND-ONLY CONTRACT:
  - CreateLoan(): terms are written once
  - AppendPayment(): the only write after creation
  - NO Update() or Delete() methods exist

IDEMPOTENCY:
  Payment events carry an ID. Appending an ID that is already journaled
  returns ErrDuplicatePayment, so a retried request cannot pay twice.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for testing/dev
  - store/sqlite/sqlite.go: SQLite

SEE ALSO:
  - settlement.go: Replay
*/
package ledger

import (
	"context"
	"fmt"
)

// =============================================================================
// STORE - Interface for loan persistence (append-only)
// =============================================================================

type Store interface {
	// CreateLoan persists new terms. Returns ErrDuplicateLoan if the ID exists.
	CreateLoan(ctx context.Context, terms Terms) error

	// GetLoan returns the terms of a loan or ErrLoanNotFound.
	GetLoan(ctx context.Context, id string) (Terms, error)

	// ListLoans returns every loan's terms, oldest first.
	ListLoans(ctx context.Context) ([]Terms, error)

	// AppendPayment journals a payment event for a loan.
	AppendPayment(ctx context.Context, loanID string, ev PaymentEvent) error

	// LoadPayments returns a loan's journal ordered by Seq.
	LoadPayments(ctx context.Context, loanID string) ([]PaymentEvent, error)
}

// Load rebuilds a loan from its persisted terms and journal.
func Load(ctx context.Context, store Store, id string, opts ...Option) (*Loan, error) {
	terms, err := store.GetLoan(ctx, id)
	if err != nil {
		return nil, err
	}
	events, err := store.LoadPayments(ctx, id)
	if err != nil {
		return nil, err
	}

	loan, err := NewFromTerms(terms, opts...)
	if err != nil {
		return nil, fmt.Errorf("loan %s: %w", id, err)
	}
	if err := loan.Replay(events); err != nil {
		return nil, fmt.Errorf("loan %s: %w", id, err)
	}
	return loan, nil
}

// LastPayment returns the most recent journal entry, if any.
func (l *Loan) LastPayment() (PaymentEvent, bool) {
	if len(l.payments) == 0 {
		return PaymentEvent{}, false
	}
	return l.payments[len(l.payments)-1].clone(), true
}
