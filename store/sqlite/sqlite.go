/*
Package sqlite provides the SQLite-backed implementation of the engine's
storage contract.

PURPOSE:
  Implements engine.StudentStore plus the supporting reads and writes the
  HTTP layer needs (institutions, students, fee items, penalty rules,
  payment history). In production the same patterns apply to PostgreSQL,
  only minor SQL dialect differences.

KEY TABLES:
  institutions:        Tenant records; code scopes receipt numbers
  students:            Student records, one institution each
  fee_items:           Charge lines; paid_amount/status mutate via the engine
  penalty_rules:       Late-fee policies per institution
  payments:            Immutable tender records
  payment_allocations: How each payment split across fee items
  receipt_sequences:   Per-institution-per-year receipt counters

MONEY REPRESENTATION:
  Amounts are stored as TEXT in canonical two-decimal form
  (decimal.StringFixed). The optimistic-concurrency guard compares the
  stored paid_amount textually, which is exact because every write path
  normalizes through the same formatting.

ATOMIC PAYMENT WRITE:
  WritePaymentAtomic runs one SQL transaction: each fee-item UPDATE is
  guarded by the paid amount the engine observed at validation time
  (rows-affected check), then the payment and its allocations are
  inserted. Any guard miss rolls the whole transaction back and surfaces
  engine.ErrConcurrentModification, so a payment can never exist without
  its allocations.

RECEIPT SEQUENCES:
  NextReceiptSequence uses an UPSERT on receipt_sequences with RETURNING,
  which SQLite serializes on the row; two concurrent payments can never
  observe the same value.

WAL MODE:
  The database is opened with WAL and foreign keys on, matching the usual
  single-writer SQLite deployment.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/meridian/fee-engine/engine"
	"github.com/shopspring/decimal"
)

// Store implements engine.StudentStore and the API-facing queries.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS institutions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		code TEXT NOT NULL UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		institution_id TEXT NOT NULL REFERENCES institutions(id),
		name TEXT NOT NULL,
		admission_no TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_students_institution
		ON students(institution_id);

	CREATE TABLE IF NOT EXISTS fee_items (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		institution_id TEXT NOT NULL REFERENCES institutions(id),
		label TEXT NOT NULL,
		owed_amount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		due_date TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fee_items_student
		ON fee_items(student_id);

	-- Hot path: outstanding-items read during payment validation
	CREATE INDEX IF NOT EXISTS idx_fee_items_student_status
		ON fee_items(student_id, status);

	CREATE TABLE IF NOT EXISTS penalty_rules (
		id TEXT PRIMARY KEY,
		institution_id TEXT NOT NULL REFERENCES institutions(id),
		name TEXT NOT NULL,
		penalty_type TEXT NOT NULL,
		penalty_amount TEXT,
		penalty_percentage TEXT,
		grace_period_days INTEGER NOT NULL DEFAULT 0,
		is_compound BOOLEAN NOT NULL DEFAULT FALSE,
		max_penalty_amount TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_penalty_rules_institution
		ON penalty_rules(institution_id);

	-- Payments are immutable once written (status transitions excepted)
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		institution_id TEXT NOT NULL REFERENCES institutions(id),
		total_outstanding TEXT NOT NULL,
		tendered_amount TEXT NOT NULL,
		method TEXT NOT NULL,
		status TEXT NOT NULL,
		receipt_number TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_student
		ON payments(student_id);

	-- Receipt numbers are unique within an institution (the number
	-- already embeds the year)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_receipt
		ON payments(institution_id, receipt_number);

	CREATE TABLE IF NOT EXISTS payment_allocations (
		payment_id TEXT NOT NULL REFERENCES payments(id),
		fee_item_id TEXT NOT NULL REFERENCES fee_items(id),
		allocated_amount TEXT NOT NULL,
		status_after TEXT NOT NULL,
		PRIMARY KEY (payment_id, fee_item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_allocations_fee_item
		ON payment_allocations(fee_item_id);

	CREATE TABLE IF NOT EXISTS receipt_sequences (
		institution_code TEXT NOT NULL,
		year INTEGER NOT NULL,
		last_value INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (institution_code, year)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// INSTITUTIONS
// =============================================================================

type Institution struct {
	ID        string
	Name      string
	Code      string
	CreatedAt time.Time
}

func (s *Store) SaveInstitution(ctx context.Context, inst Institution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO institutions (id, name, code, created_at) VALUES (?, ?, ?, ?)`,
		inst.ID, inst.Name, strings.ToUpper(inst.Code), now())
	if err != nil {
		return fmt.Errorf("failed to save institution: %w", err)
	}
	return nil
}

func (s *Store) GetInstitution(ctx context.Context, id string) (*Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var inst Institution
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, code, created_at FROM institutions WHERE id = ?`, id).
		Scan(&inst.ID, &inst.Name, &inst.Code, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	inst.CreatedAt = parseTime(createdAt)
	return &inst, nil
}

func (s *Store) ListInstitutions(ctx context.Context) ([]Institution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, code, created_at FROM institutions ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list institutions: %w", err)
	}
	defer rows.Close()

	var insts []Institution
	for rows.Next() {
		var inst Institution
		var createdAt string
		if err := rows.Scan(&inst.ID, &inst.Name, &inst.Code, &createdAt); err != nil {
			return nil, err
		}
		inst.CreatedAt = parseTime(createdAt)
		insts = append(insts, inst)
	}
	return insts, rows.Err()
}

// =============================================================================
// STUDENTS
// =============================================================================

type Student struct {
	ID            string
	InstitutionID string
	Name          string
	AdmissionNo   string
	CreatedAt     time.Time
}

func (s *Store) SaveStudent(ctx context.Context, st Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO students (id, institution_id, name, admission_no, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.InstitutionID, st.Name, nullString(st.AdmissionNo), now())
	if err != nil {
		return fmt.Errorf("failed to save student: %w", err)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id string) (*Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var st Student
	var admissionNo sql.NullString
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, institution_id, name, admission_no, created_at
		 FROM students WHERE id = ?`, id).
		Scan(&st.ID, &st.InstitutionID, &st.Name, &admissionNo, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	st.AdmissionNo = admissionNo.String
	st.CreatedAt = parseTime(createdAt)
	return &st, nil
}

func (s *Store) ListStudents(ctx context.Context, institutionID string) ([]Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, institution_id, name, admission_no, created_at FROM students`
	args := []any{}
	if institutionID != "" {
		query += ` WHERE institution_id = ?`
		args = append(args, institutionID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var st Student
		var admissionNo sql.NullString
		var createdAt string
		if err := rows.Scan(&st.ID, &st.InstitutionID, &st.Name, &admissionNo, &createdAt); err != nil {
			return nil, err
		}
		st.AdmissionNo = admissionNo.String
		st.CreatedAt = parseTime(createdAt)
		students = append(students, st)
	}
	return students, rows.Err()
}

// StudentInstitution resolves a student to institution ID and code.
// Part of engine.StudentStore.
func (s *Store) StudentInstitution(ctx context.Context, studentID engine.StudentID) (engine.InstitutionID, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var instID, code string
	err := s.db.QueryRowContext(ctx,
		`SELECT i.id, i.code FROM students s JOIN institutions i ON i.id = s.institution_id
		 WHERE s.id = ?`, string(studentID)).
		Scan(&instID, &code)
	if err == sql.ErrNoRows {
		return "", "", engine.ErrStudentNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", engine.ErrStorageFailure, err)
	}
	return engine.InstitutionID(instID), code, nil
}

// =============================================================================
// FEE ITEMS
// =============================================================================

func (s *Store) SaveFeeItem(ctx context.Context, item engine.FeeItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fee_items
		 (id, student_id, institution_id, label, owed_amount, paid_amount, due_date, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.StudentID, item.InstitutionID, item.Label,
		item.OwedAmount.String(), item.PaidAmount.String(),
		item.DueDate.UTC().Format(time.RFC3339), item.Status, now(), now())
	if err != nil {
		return fmt.Errorf("failed to save fee item: %w", err)
	}
	return nil
}

func (s *Store) GetFeeItem(ctx context.Context, id engine.FeeItemID) (*engine.FeeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.queryFeeItems(ctx,
		feeItemColumns+` FROM fee_items WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

// ListFeeItemsByStudent returns every fee item for a student, settled
// ones included.
func (s *Store) ListFeeItemsByStudent(ctx context.Context, studentID engine.StudentID) ([]engine.FeeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryFeeItems(ctx,
		feeItemColumns+` FROM fee_items WHERE student_id = ? ORDER BY due_date ASC, id ASC`,
		string(studentID))
}

// OutstandingFeeItems implements engine.Store. The status invariant
// (paid iff outstanding is zero) makes status the outstanding filter.
func (s *Store) OutstandingFeeItems(ctx context.Context, studentID engine.StudentID, itemIDs []engine.FeeItemID) ([]engine.FeeItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := feeItemColumns + ` FROM fee_items WHERE student_id = ? AND status != 'paid'`
	args := []any{string(studentID)}

	if len(itemIDs) > 0 {
		query += ` AND id IN (?` + strings.Repeat(",?", len(itemIDs)-1) + `)`
		for _, id := range itemIDs {
			args = append(args, string(id))
		}
	}
	query += ` ORDER BY due_date ASC, id ASC`

	items, err := s.queryFeeItems(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	// Preserve the caller's selection order; allocation order matters
	// for residual assignment.
	if len(itemIDs) > 0 {
		byID := make(map[engine.FeeItemID]engine.FeeItem, len(items))
		for _, it := range items {
			byID[it.ID] = it
		}
		ordered := make([]engine.FeeItem, 0, len(items))
		for _, id := range itemIDs {
			if it, ok := byID[id]; ok {
				ordered = append(ordered, it)
			}
		}
		return ordered, nil
	}
	return items, nil
}

const feeItemColumns = `SELECT id, student_id, institution_id, label, owed_amount, paid_amount, due_date, status`

func (s *Store) queryFeeItems(ctx context.Context, query string, args ...any) ([]engine.FeeItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query fee items: %w", err)
	}
	defer rows.Close()

	var items []engine.FeeItem
	for rows.Next() {
		var (
			item    engine.FeeItem
			owed    string
			paid    string
			dueDate string
		)
		if err := rows.Scan(&item.ID, &item.StudentID, &item.InstitutionID, &item.Label,
			&owed, &paid, &dueDate, &item.Status); err != nil {
			return nil, err
		}
		item.OwedAmount = mustMoney(owed)
		item.PaidAmount = mustMoney(paid)
		item.DueDate = parseTime(dueDate)
		items = append(items, item)
	}
	return items, rows.Err()
}

// =============================================================================
// PENALTY RULES
// =============================================================================

func (s *Store) SavePenaltyRule(ctx context.Context, rule engine.PenaltyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var amount, percentage, maxPenalty any
	if rule.Amount != nil {
		amount = rule.Amount.String()
	}
	if rule.Percentage != nil {
		percentage = rule.Percentage.String()
	}
	if rule.MaxPenalty != nil {
		maxPenalty = rule.MaxPenalty.String()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO penalty_rules
		 (id, institution_id, name, penalty_type, penalty_amount, penalty_percentage,
		  grace_period_days, is_compound, max_penalty_amount, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.InstitutionID, rule.Name, rule.Type, amount, percentage,
		rule.GracePeriodDays, rule.IsCompound, maxPenalty, now())
	if err != nil {
		return fmt.Errorf("failed to save penalty rule: %w", err)
	}
	return nil
}

// PenaltyRules implements engine.Store.
func (s *Store) PenaltyRules(ctx context.Context, institutionID engine.InstitutionID) ([]engine.PenaltyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, institution_id, name, penalty_type, penalty_amount, penalty_percentage,
		        grace_period_days, is_compound, max_penalty_amount, created_at
		 FROM penalty_rules WHERE institution_id = ? ORDER BY created_at ASC, id ASC`,
		string(institutionID))
	if err != nil {
		return nil, fmt.Errorf("failed to query penalty rules: %w", err)
	}
	defer rows.Close()

	var rules []engine.PenaltyRule
	for rows.Next() {
		var (
			rule       engine.PenaltyRule
			amount     sql.NullString
			percentage sql.NullString
			maxPenalty sql.NullString
			createdAt  string
		)
		if err := rows.Scan(&rule.ID, &rule.InstitutionID, &rule.Name, &rule.Type,
			&amount, &percentage, &rule.GracePeriodDays, &rule.IsCompound,
			&maxPenalty, &createdAt); err != nil {
			return nil, err
		}
		if amount.Valid {
			m := mustMoney(amount.String)
			rule.Amount = &m
		}
		if percentage.Valid {
			d, err := decimal.NewFromString(percentage.String)
			if err != nil {
				return nil, fmt.Errorf("corrupt percentage on rule %s: %w", rule.ID, err)
			}
			rule.Percentage = &d
		}
		if maxPenalty.Valid {
			m := mustMoney(maxPenalty.String)
			rule.MaxPenalty = &m
		}
		rule.CreatedAt = parseTime(createdAt)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// =============================================================================
// PAYMENTS (engine write path + history reads)
// =============================================================================

// NextReceiptSequence implements engine.Store. The UPSERT serializes on
// the (institution_code, year) row, so concurrent callers always see
// distinct values.
func (s *Store) NextReceiptSequence(ctx context.Context, institutionCode string, year int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq int
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO receipt_sequences (institution_code, year, last_value)
		 VALUES (?, ?, 1)
		 ON CONFLICT(institution_code, year) DO UPDATE SET last_value = last_value + 1
		 RETURNING last_value`,
		institutionCode, year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to advance receipt sequence: %w", err)
	}
	return seq, nil
}

// WritePaymentAtomic implements engine.Store.
func (s *Store) WritePaymentAtomic(ctx context.Context, payment engine.Payment, allocations []engine.PaymentAllocation, updates []engine.FeeItemUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	// Guarded item updates first. A paid_amount that moved since the
	// validation read means another payment raced us.
	for _, u := range updates {
		res, err := tx.ExecContext(ctx,
			`UPDATE fee_items SET paid_amount = ?, status = ?, updated_at = ?
			 WHERE id = ? AND paid_amount = ?`,
			u.NewPaidAmount.String(), u.NewStatus, now(),
			string(u.ID), u.PrevPaidAmount.String())
		if err != nil {
			return fmt.Errorf("%w: %v", engine.ErrStorageFailure, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("%w: %v", engine.ErrStorageFailure, err)
		}
		if affected != 1 {
			return engine.ErrConcurrentModification
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO payments
		 (id, student_id, institution_id, total_outstanding, tendered_amount,
		  method, status, receipt_number, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		payment.ID, payment.StudentID, payment.InstitutionID,
		payment.TotalOutstanding.String(), payment.TenderedAmount.String(),
		payment.Method, payment.Status, payment.ReceiptNumber,
		nullString(payment.Notes), payment.CreatedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("%w: failed to insert payment: %v", engine.ErrStorageFailure, err)
	}

	for _, a := range allocations {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO payment_allocations (payment_id, fee_item_id, allocated_amount, status_after)
			 VALUES (?, ?, ?, ?)`,
			a.PaymentID, a.FeeItemID, a.AllocatedAmount.String(), a.StatusAfter)
		if err != nil {
			return fmt.Errorf("%w: failed to insert allocation: %v", engine.ErrStorageFailure, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrStorageFailure, err)
	}
	return nil
}

// GetPayment returns a payment and its allocations.
func (s *Store) GetPayment(ctx context.Context, id engine.PaymentID) (*engine.Payment, []engine.PaymentAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	payments, err := s.queryPayments(ctx, paymentColumns+` FROM payments WHERE id = ?`, string(id))
	if err != nil {
		return nil, nil, err
	}
	if len(payments) == 0 {
		return nil, nil, engine.ErrPaymentNotFound
	}

	allocs, err := s.allocationsLocked(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return &payments[0], allocs, nil
}

// ListPaymentsByStudent returns payment history, newest first.
func (s *Store) ListPaymentsByStudent(ctx context.Context, studentID engine.StudentID) ([]engine.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryPayments(ctx,
		paymentColumns+` FROM payments WHERE student_id = ? ORDER BY created_at DESC, id DESC`,
		string(studentID))
}

// AllocationsForPayment returns the allocation rows of one payment.
func (s *Store) AllocationsForPayment(ctx context.Context, paymentID engine.PaymentID) ([]engine.PaymentAllocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allocationsLocked(ctx, paymentID)
}

func (s *Store) allocationsLocked(ctx context.Context, paymentID engine.PaymentID) ([]engine.PaymentAllocation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT payment_id, fee_item_id, allocated_amount, status_after
		 FROM payment_allocations WHERE payment_id = ? ORDER BY fee_item_id ASC`,
		string(paymentID))
	if err != nil {
		return nil, fmt.Errorf("failed to query allocations: %w", err)
	}
	defer rows.Close()

	var allocs []engine.PaymentAllocation
	for rows.Next() {
		var a engine.PaymentAllocation
		var amount string
		if err := rows.Scan(&a.PaymentID, &a.FeeItemID, &amount, &a.StatusAfter); err != nil {
			return nil, err
		}
		a.AllocatedAmount = mustMoney(amount)
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

const paymentColumns = `SELECT id, student_id, institution_id, total_outstanding, tendered_amount, method, status, receipt_number, notes, created_at`

func (s *Store) queryPayments(ctx context.Context, query string, args ...any) ([]engine.Payment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []engine.Payment
	for rows.Next() {
		var (
			p        engine.Payment
			total    string
			tendered string
			notes    sql.NullString
			created  string
		)
		if err := rows.Scan(&p.ID, &p.StudentID, &p.InstitutionID, &total, &tendered,
			&p.Method, &p.Status, &p.ReceiptNumber, &notes, &created); err != nil {
			return nil, err
		}
		p.TotalOutstanding = mustMoney(total)
		p.TenderedAmount = mustMoney(tendered)
		p.Notes = notes.String
		p.CreatedAt = parseTime(created)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func mustMoney(s string) engine.Money {
	m, err := engine.ParseMoney(s)
	if err != nil {
		// Amounts only enter via Money.String(); a parse failure means
		// the row was corrupted outside the application.
		panic(fmt.Sprintf("corrupt money value %q: %v", s, err))
	}
	return m
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// IsUniqueConstraintError reports whether err is a SQLite unique
// constraint violation, such as a duplicate receipt number.
func IsUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

var _ engine.StudentStore = (*Store)(nil)
