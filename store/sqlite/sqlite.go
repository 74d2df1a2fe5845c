/*
Package sqlite provides a SQLite-backed ledger.Store.

PURPOSE:
  Persists loan terms and payment journals. Nothing derived (fines,
  settlements, schedules) is stored: ledger.Load replays the journal.

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statements on payment_events
  - No DELETE statements on payment_events
  - Corrections are new payments, never edits

KEY TABLES:
  loans:          Terms, stored as factory.LoanJSON in config_json
  payment_events: One row per journaled payment

INDEXES:
  - idx_payment_events_loan_seq: journal load (hot path), also rejects a
    second event with the same Seq on a loan

CONCURRENCY:
  Uses sync.RWMutex for thread-safety; SQLite allows a single writer.

WAL MODE:
  Opened with WAL so readers don't block the writer.

USAGE:
  store, err := sqlite.New("./data/loans.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  loan, err := ledger.Load(ctx, store, "loan-123")

SEE ALSO:
  - ledger/store.go: Interface definition
  - ledger/store/memory.go: In-memory implementation for testing
  - factory/loan.go: config_json schema
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/loan-ledger/factory"
	"github.com/warp/loan-ledger/finance"
	"github.com/warp/loan-ledger/ledger"
)

// Store implements ledger.Store using SQLite.
type Store struct {
	db      *sql.DB
	mu      sync.RWMutex
	factory *factory.LoanFactory
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, factory: factory.NewLoanFactory()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection; used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loans_created_at
		ON loans(created_at);

	-- Payment journal (append-only)
	CREATE TABLE IF NOT EXISTS payment_events (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		seq INTEGER NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		paid_at TEXT NOT NULL,
		interest_date TEXT NOT NULL,
		description TEXT,
		targets_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_payment_events_loan_seq
		ON payment_events(loan_id, seq);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOANS
// =============================================================================

func (s *Store) CreateLoan(ctx context.Context, terms ledger.Terms) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if terms.CreatedAt.IsZero() {
		terms.CreatedAt = time.Now().UTC()
	}
	configJSON, err := json.Marshal(s.factory.ToJSON(terms))
	if err != nil {
		return fmt.Errorf("failed to encode loan: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO loans (id, config_json, created_at) VALUES (?, ?, ?)`,
		terms.ID, string(configJSON), terms.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicateLoan, terms.ID)
		}
		return fmt.Errorf("failed to save loan: %w", err)
	}
	return nil
}

func (s *Store) GetLoan(ctx context.Context, id string) (ledger.Terms, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT config_json, created_at FROM loans WHERE id = ?`, id)
	terms, err := s.scanLoan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Terms{}, fmt.Errorf("%w: %s", ledger.ErrLoanNotFound, id)
	}
	return terms, err
}

func (s *Store) ListLoans(ctx context.Context) ([]ledger.Terms, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT config_json, created_at FROM loans ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []ledger.Terms
	for rows.Next() {
		terms, err := s.scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, terms)
	}
	return loans, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanLoan(row scanner) (ledger.Terms, error) {
	var configJSON, createdAt string
	if err := row.Scan(&configJSON, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ledger.Terms{}, err
		}
		return ledger.Terms{}, fmt.Errorf("failed to scan loan: %w", err)
	}

	var lj factory.LoanJSON
	if err := json.Unmarshal([]byte(configJSON), &lj); err != nil {
		return ledger.Terms{}, fmt.Errorf("failed to decode loan: %w", err)
	}
	terms, err := s.factory.FromJSON(lj)
	if err != nil {
		return ledger.Terms{}, fmt.Errorf("loan %s: %w", lj.ID, err)
	}
	terms.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return terms, nil
}

// =============================================================================
// PAYMENT JOURNAL
// =============================================================================

// AppendPayment adds a payment event to a loan's journal.
func (s *Store) AppendPayment(ctx context.Context, loanID string, ev ledger.PaymentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans WHERE id = ?`, loanID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check loan: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrLoanNotFound, loanID)
	}

	targetsJSON, _ := json.Marshal(ev.Targets)

	query := `
		INSERT INTO payment_events
		(id, loan_id, seq, kind, amount, paid_at, interest_date, description, targets_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		ev.ID,
		loanID,
		ev.Seq,
		string(ev.Kind),
		ev.Amount.String(),
		ev.PaidAt.UTC().Format(time.RFC3339Nano),
		ev.InterestDate.UTC().Format(time.RFC3339Nano),
		nullString(ev.Description),
		string(targetsJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("%w: %s", ledger.ErrDuplicatePayment, ev.ID)
		}
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

// LoadPayments returns a loan's journal ordered by Seq.
func (s *Store) LoadPayments(ctx context.Context, loanID string) ([]ledger.PaymentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM loans WHERE id = ?`, loanID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check loan: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ledger.ErrLoanNotFound, loanID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, kind, amount, paid_at, interest_date, description, targets_json
		FROM payment_events
		WHERE loan_id = ?
		ORDER BY seq ASC
	`, loanID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var events []ledger.PaymentEvent
	for rows.Next() {
		ev, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func scanPayment(rows *sql.Rows) (ledger.PaymentEvent, error) {
	var (
		ev           ledger.PaymentEvent
		kind         string
		amount       string
		paidAt       string
		interestDate string
		description  sql.NullString
		targetsJSON  sql.NullString
	)

	err := rows.Scan(&ev.ID, &ev.Seq, &kind, &amount, &paidAt, &interestDate, &description, &targetsJSON)
	if err != nil {
		return ev, fmt.Errorf("failed to scan payment: %w", err)
	}

	ev.Kind = ledger.PaymentKind(kind)
	if ev.Amount, err = finance.NewMoney(amount); err != nil {
		return ev, fmt.Errorf("payment %s: bad amount %q: %w", ev.ID, amount, err)
	}
	if ev.PaidAt, err = time.Parse(time.RFC3339Nano, paidAt); err != nil {
		return ev, fmt.Errorf("payment %s: bad paid_at: %w", ev.ID, err)
	}
	if ev.InterestDate, err = time.Parse(time.RFC3339Nano, interestDate); err != nil {
		return ev, fmt.Errorf("payment %s: bad interest_date: %w", ev.ID, err)
	}
	ev.Description = description.String

	if targetsJSON.Valid && targetsJSON.String != "" && targetsJSON.String != "null" {
		if err := json.Unmarshal([]byte(targetsJSON.String), &ev.Targets); err != nil {
			return ev, fmt.Errorf("payment %s: bad targets: %w", ev.ID, err)
		}
	}
	return ev, nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
