package repository

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/trailhut/settlement/internal/domain"
)

type BookingRepo struct {
	db *sql.DB
}

func NewBookingRepo(db *sql.DB) *BookingRepo {
	return &BookingRepo{db: db}
}

func (r *BookingRepo) Insert(b *domain.Booking) error {
	_, err := r.db.Exec(
		`INSERT OR IGNORE INTO bookings
		(id, partner_id, base_amount, service_fee, payment_processing_fee,
		 commission_partner, platform_earnings, net_application_fee,
		 payment_status, payment_reference_id, currency, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		b.ID, b.PartnerID, b.BaseAmount, b.ServiceFee, b.PaymentProcessingFee,
		b.CommissionPartner, nullableFloat(b.PlatformEarnings), nullableFloat(b.NetApplicationFee),
		string(b.PaymentStatus), b.PaymentReferenceID, b.Currency,
		b.CreatedAt.Format(time.RFC3339Nano), b.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (r *BookingRepo) BulkInsert(bookings []domain.Booking) (int, error) {
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR IGNORE INTO bookings
		(id, partner_id, base_amount, service_fee, payment_processing_fee,
		 commission_partner, platform_earnings, net_application_fee,
		 payment_status, payment_reference_id, currency, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range bookings {
		b := &bookings[i]
		res, err := stmt.Exec(
			b.ID, b.PartnerID, b.BaseAmount, b.ServiceFee, b.PaymentProcessingFee,
			b.CommissionPartner, nullableFloat(b.PlatformEarnings), nullableFloat(b.NetApplicationFee),
			string(b.PaymentStatus), b.PaymentReferenceID, b.Currency,
			b.CreatedAt.Format(time.RFC3339Nano), b.UpdatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func (r *BookingRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM bookings").Scan(&count)
	return count, err
}

func (r *BookingRepo) GetByID(id string) (*domain.Booking, error) {
	row := r.db.QueryRow("SELECT * FROM bookings WHERE id = ?", id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError{Resource: "booking", ID: id}
	}
	return b, err
}

// ListReconcilable returns bookings eligible for fee reconciliation: a
// payment reference exists, the platform earns commission, and the payment
// has settled.
func (r *BookingRepo) ListReconcilable() ([]domain.Booking, error) {
	rows, err := r.db.Query(
		`SELECT * FROM bookings
		 WHERE payment_reference_id != ''
		   AND commission_partner > 0
		   AND payment_status = ?
		 ORDER BY created_at`,
		string(domain.StatusPaid),
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	return scanBookings(rows)
}

type BookingFilter struct {
	Status    string
	PartnerID string
	Page      int
	Limit     int
}

func (r *BookingRepo) List(f BookingFilter) ([]domain.Booking, int, error) {
	where, args := buildBookingWhere(f)

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM bookings"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.Limit

	q := "SELECT * FROM bookings" + where + " ORDER BY created_at DESC LIMIT ? OFFSET ?"
	args = append(args, f.Limit, offset)

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	bookings, err := scanBookings(rows)
	return bookings, total, err
}

// UpdateDerivedFees overwrites the ledger-derived fee fields. Reconciliation
// writes converge to one correct value, so last-writer-wins is acceptable and
// no compare-and-set is needed here.
func (r *BookingRepo) UpdateDerivedFees(id string, netApplicationFee, platformEarnings float64, now time.Time) error {
	return updateDerivedFees(r.db, id, netApplicationFee, platformEarnings, now)
}

// UpdateDerivedFeesTx is UpdateDerivedFees inside a caller-owned transaction,
// so the correction and its audit entry commit together.
func (r *BookingRepo) UpdateDerivedFeesTx(tx *sql.Tx, id string, netApplicationFee, platformEarnings float64, now time.Time) error {
	return updateDerivedFees(tx, id, netApplicationFee, platformEarnings, now)
}

func updateDerivedFees(ex execer, id string, netApplicationFee, platformEarnings float64, now time.Time) error {
	res, err := ex.Exec(
		`UPDATE bookings
		 SET net_application_fee = ?, platform_earnings = ?, updated_at = ?
		 WHERE id = ?`,
		netApplicationFee, platformEarnings, now.Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("update derived fees: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return domain.NotFoundError{Resource: "booking", ID: id}
	}
	return nil
}

// UpdateGuarded writes the booking's mutable money fields only if the row's
// updated_at still matches expectedUpdatedAt, surfacing a ConcurrencyError on
// a lost race. Refund orchestration uses this to guard concurrent operator
// actions on the same booking. updated_at is stored at nanosecond resolution
// so two writes inside the same second remain distinguishable.
func (r *BookingRepo) UpdateGuarded(b *domain.Booking, expectedUpdatedAt time.Time) error {
	res, err := r.db.Exec(
		`UPDATE bookings
		 SET platform_earnings = ?, net_application_fee = ?, payment_status = ?, updated_at = ?
		 WHERE id = ? AND updated_at = ?`,
		nullableFloat(b.PlatformEarnings), nullableFloat(b.NetApplicationFee),
		string(b.PaymentStatus), b.UpdatedAt.Format(time.RFC3339Nano),
		b.ID, expectedUpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("guarded update: %w", err)
	}
	if ra, _ := res.RowsAffected(); ra == 0 {
		return domain.ConcurrencyError{Resource: "booking", ID: b.ID}
	}
	return nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var b domain.Booking
	var earnings, netFee sql.NullFloat64
	var createdAt, updatedAt string

	err := row.Scan(
		&b.ID, &b.PartnerID, &b.BaseAmount, &b.ServiceFee, &b.PaymentProcessingFee,
		&b.CommissionPartner, &earnings, &netFee,
		&b.PaymentStatus, &b.PaymentReferenceID, &b.Currency, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if earnings.Valid {
		v := earnings.Float64
		b.PlatformEarnings = &v
	}
	if netFee.Valid {
		v := netFee.Float64
		b.NetApplicationFee = &v
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	b.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &b, nil
}

func scanBookings(rows *sql.Rows) ([]domain.Booking, error) {
	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

func buildBookingWhere(f BookingFilter) (string, []any) {
	var conds []string
	var args []any

	if f.Status != "" {
		conds = append(conds, "payment_status = ?")
		args = append(args, f.Status)
	}
	if f.PartnerID != "" {
		conds = append(conds, "partner_id = ?")
		args = append(args, f.PartnerID)
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

func nullableFloat(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
