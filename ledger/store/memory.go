// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/loan-ledger/finance"
	"github.com/warp/loan-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	loans    map[string]ledger.Terms
	order    []string
	journals map[string][]ledger.PaymentEvent
	payments map[string]bool
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		loans:    make(map[string]ledger.Terms),
		journals: make(map[string][]ledger.PaymentEvent),
		payments: make(map[string]bool),
		now:      time.Now,
	}
}

func (m *Memory) CreateLoan(_ context.Context, terms ledger.Terms) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[terms.ID]; ok {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicateLoan, terms.ID)
	}
	if terms.CreatedAt.IsZero() {
		terms.CreatedAt = m.now().UTC()
	}
	m.loans[terms.ID] = copyTerms(terms)
	m.order = append(m.order, terms.ID)
	return nil
}

func (m *Memory) GetLoan(_ context.Context, id string) (ledger.Terms, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	terms, ok := m.loans[id]
	if !ok {
		return ledger.Terms{}, fmt.Errorf("%w: %s", ledger.ErrLoanNotFound, id)
	}
	return copyTerms(terms), nil
}

func (m *Memory) ListLoans(_ context.Context) ([]ledger.Terms, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Terms, 0, len(m.order))
	for _, id := range m.order {
		result = append(result, copyTerms(m.loans[id]))
	}
	return result, nil
}

// copyTerms detaches the slices so callers never share them with the store.
func copyTerms(t ledger.Terms) ledger.Terms {
	t.DueDates = append([]time.Time(nil), t.DueDates...)
	t.FineRateChanges = append([]finance.TemporalEntry[decimal.Decimal](nil), t.FineRateChanges...)
	t.GracePeriodChanges = append([]finance.TemporalEntry[int](nil), t.GracePeriodChanges...)
	return t
}

// AppendPayment adds a payment event to a loan's journal. Append-only.
func (m *Memory) AppendPayment(_ context.Context, loanID string, ev ledger.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[loanID]; !ok {
		return fmt.Errorf("%w: %s", ledger.ErrLoanNotFound, loanID)
	}
	if ev.ID != "" && m.payments[ev.ID] {
		return fmt.Errorf("%w: %s", ledger.ErrDuplicatePayment, ev.ID)
	}

	evs := m.journals[loanID]

	// Keep the journal ordered by Seq; equal Seq keeps arrival order
	i := sort.Search(len(evs), func(i int) bool {
		return evs[i].Seq > ev.Seq
	})
	evs = append(evs, ledger.PaymentEvent{})
	copy(evs[i+1:], evs[i:])
	evs[i] = ev
	m.journals[loanID] = evs

	if ev.ID != "" {
		m.payments[ev.ID] = true
	}
	return nil
}

func (m *Memory) LoadPayments(_ context.Context, loanID string) ([]ledger.PaymentEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.loans[loanID]; !ok {
		return nil, fmt.Errorf("%w: %s", ledger.ErrLoanNotFound, loanID)
	}
	result := make([]ledger.PaymentEvent, len(m.journals[loanID]))
	copy(result, m.journals[loanID])
	return result, nil
}
