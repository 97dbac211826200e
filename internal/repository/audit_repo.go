package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/trailhut/settlement/internal/domain"
)

type AuditRepo struct {
	db *sql.DB
}

func NewAuditRepo(db *sql.DB) *AuditRepo {
	return &AuditRepo{db: db}
}

// Insert appends one audit entry. Entries are never updated or deleted.
func (r *AuditRepo) Insert(e *domain.AuditEntry) error {
	return insertAuditEntry(r.db, e)
}

// InsertTx is Insert inside a caller-owned transaction.
func (r *AuditRepo) InsertTx(tx *sql.Tx, e *domain.AuditEntry) error {
	return insertAuditEntry(tx, e)
}

func insertAuditEntry(ex execer, e *domain.AuditEntry) error {
	_, err := ex.Exec(
		`INSERT INTO audit_entries
		(id, booking_id, kind, refund_type, amount_minor, reason, processor_ref,
		 status, actor, before_net_fee, after_net_fee, before_earnings,
		 after_earnings, note, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.BookingID, string(e.Kind), string(e.RefundType), e.AmountMinor,
		e.Reason, e.ProcessorRef, string(e.Status), e.Actor,
		nullableFloat(e.BeforeNetFee), nullableFloat(e.AfterNetFee),
		nullableFloat(e.BeforeEarnings), nullableFloat(e.AfterEarnings),
		e.Note, e.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// FindSucceededRefund looks for a prior successful refund with the same
// booking, type, and amount. The orchestrator short-circuits on a hit so a
// double-submitted operator action never reaches the processor twice.
func (r *AuditRepo) FindSucceededRefund(bookingID string, refundType domain.RefundType, amountMinor int64) (*domain.AuditEntry, error) {
	row := r.db.QueryRow(
		`SELECT * FROM audit_entries
		 WHERE booking_id = ? AND kind = ? AND refund_type = ?
		   AND amount_minor = ? AND status = ?
		 ORDER BY created_at DESC LIMIT 1`,
		bookingID, string(domain.AuditRefund), string(refundType),
		amountMinor, string(domain.AuditSucceeded),
	)

	e, err := scanAuditEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return e, err
}

type AuditFilter struct {
	BookingID string
	Kind      string
	Status    string
	Page      int
	Limit     int
}

func (r *AuditRepo) List(f AuditFilter) ([]domain.AuditEntry, int, error) {
	where, args := buildAuditWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM audit_entries"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT * FROM audit_entries" + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, total, rows.Err()
}

func scanAuditEntry(row rowScanner) (*domain.AuditEntry, error) {
	var e domain.AuditEntry
	var beforeNet, afterNet, beforeEarn, afterEarn sql.NullFloat64
	var createdAt string

	err := row.Scan(
		&e.ID, &e.BookingID, &e.Kind, &e.RefundType, &e.AmountMinor,
		&e.Reason, &e.ProcessorRef, &e.Status, &e.Actor,
		&beforeNet, &afterNet, &beforeEarn, &afterEarn,
		&e.Note, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if beforeNet.Valid {
		v := beforeNet.Float64
		e.BeforeNetFee = &v
	}
	if afterNet.Valid {
		v := afterNet.Float64
		e.AfterNetFee = &v
	}
	if beforeEarn.Valid {
		v := beforeEarn.Float64
		e.BeforeEarnings = &v
	}
	if afterEarn.Valid {
		v := afterEarn.Float64
		e.AfterEarnings = &v
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &e, nil
}

func buildAuditWhere(f AuditFilter) (string, []any) {
	var conds []string
	var args []any

	if f.BookingID != "" {
		conds = append(conds, "booking_id = ?")
		args = append(args, f.BookingID)
	}
	if f.Kind != "" {
		conds = append(conds, "kind = ?")
		args = append(args, f.Kind)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}

	if len(conds) == 0 {
		return "", nil
	}
	where := " WHERE " + conds[0]
	for _, c := range conds[1:] {
		where += " AND " + c
	}
	return where, args
}
