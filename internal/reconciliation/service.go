// Package reconciliation corrects stored derived fee fields against ground
// truth from the external payment ledger. Runs are idempotent: every write is
// tolerance-gated and converges to the ledger's value, so overlapping or
// repeated runs are safe.
package reconciliation

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trailhut/settlement/internal/domain"
	"github.com/trailhut/settlement/internal/fees"
	"github.com/trailhut/settlement/internal/metrics"
	"github.com/trailhut/settlement/internal/repository"
)

// SettlementFetcher is the slice of the ledger client this service needs.
type SettlementFetcher interface {
	FetchSettlement(ctx context.Context, paymentRef string) (*domain.PaymentRecord, error)
}

// Report summarises one reconciliation run. Failures never abort the batch;
// they are counted here and the run continues.
type Report struct {
	Eligible   int       `json:"eligible"`
	Corrected  int       `json:"corrected"`
	Clean      int       `json:"clean"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type Service struct {
	db        *sql.DB
	bookings  *repository.BookingRepo
	audit     *repository.AuditRepo
	ledger    SettlementFetcher
	tolerance float64
	delay     time.Duration

	mu         sync.Mutex
	lastReport *Report
}

// NewService creates a reconciliation service. db is the handle corrections
// and their audit entries are committed on, in one transaction per booking.
// tolerance is the write gate in major units (1 cent by default); delay is
// advisory pacing between ledger calls to stay under the processor's rate
// limits.
func NewService(
	db *sql.DB,
	bookings *repository.BookingRepo,
	audit *repository.AuditRepo,
	ledger SettlementFetcher,
	tolerance float64,
	delay time.Duration,
) *Service {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	return &Service{
		db:        db,
		bookings:  bookings,
		audit:     audit,
		ledger:    ledger,
		tolerance: tolerance,
		delay:     delay,
	}
}

// Run reconciles every eligible booking sequentially, one ledger call at a
// time. A per-booking failure is logged, counted, and the batch continues;
// re-running later picks up whatever this run missed.
func (s *Service) Run(ctx context.Context) (*Report, error) {
	eligible, err := s.bookings.ListReconcilable()
	if err != nil {
		return nil, fmt.Errorf("list reconcilable bookings: %w", err)
	}

	report := &Report{
		Eligible:  len(eligible),
		StartedAt: time.Now().UTC(),
	}

	for i := range eligible {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := &eligible[i]

		result, err := s.reconcileOne(ctx, b)
		switch {
		case err != nil:
			report.Failed++
			metrics.ReconciliationOutcomes.WithLabelValues("failed").Inc()
			slog.Warn("reconciliation failed, continuing batch",
				"booking_id", b.ID, "payment_ref", b.PaymentReferenceID,
				"reason", domain.Reason(err), "error", err)
		case result == outcomeCorrected:
			report.Corrected++
			metrics.ReconciliationOutcomes.WithLabelValues("corrected").Inc()
		case result == outcomeClean:
			report.Clean++
			metrics.ReconciliationOutcomes.WithLabelValues("clean").Inc()
		default:
			report.Skipped++
			metrics.ReconciliationOutcomes.WithLabelValues("skipped").Inc()
		}

		if s.delay > 0 && i < len(eligible)-1 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	report.FinishedAt = time.Now().UTC()
	slog.Info("reconciliation run complete",
		"eligible", report.Eligible, "corrected", report.Corrected,
		"clean", report.Clean, "skipped", report.Skipped, "failed", report.Failed)

	s.mu.Lock()
	s.lastReport = report
	s.mu.Unlock()

	return report, nil
}

// LastReport returns the most recent run's report, or nil before any run.
func (s *Service) LastReport() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReport
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeClean
	outcomeCorrected
)

// reconcileOne fetches ledger truth for one booking and corrects the stored
// derived fields when they disagree beyond the tolerance.
func (s *Service) reconcileOne(ctx context.Context, b *domain.Booking) (outcome, error) {
	rec, err := s.ledger.FetchSettlement(ctx, b.PaymentReferenceID)
	if err != nil {
		return outcomeSkipped, err
	}

	// No settled balance transaction yet: nothing authoritative to correct
	// against, leave the estimates alone.
	if rec.BalanceTransaction == nil {
		slog.Debug("no balance transaction yet", "booking_id", b.ID, "payment_ref", b.PaymentReferenceID)
		return outcomeSkipped, nil
	}

	// Ledger values arrive in minor units; everything stored on the booking
	// is major units. Convert exactly once, here.
	netFee := domain.MajorFromMinor(rec.BalanceTransaction.NetMinor)
	grossFee := domain.MajorFromMinor(rec.ApplicationFeeAmountMinor)

	// The processor's cut of the platform's share, pro-rated onto the
	// partner commission: earnings are the commission net of its slice of
	// the processing cost.
	earnings := b.CommissionPartner
	if grossFee > 0 {
		allocated := fees.AllocateProcessorFee(grossFee, b.CommissionPartner, grossFee-netFee)
		earnings = fees.NetApplicationFee(b.CommissionPartner, allocated)
	}

	// Unit-sanity guard: stored earnings an order of magnitude above the
	// commission means cents were persisted where dollars belong. Never diff
	// against a corrupted value; force recomputation from the ledger.
	forced := false
	if b.PlatformEarnings != nil && *b.PlatformEarnings > b.CommissionPartner*10 {
		intErr := domain.DataIntegrityError{
			BookingID: b.ID,
			Msg: fmt.Sprintf("stored earnings %.2f exceed commission %.2f x10, likely minor-unit corruption",
				*b.PlatformEarnings, b.CommissionPartner),
		}
		slog.Warn("forcing recomputation", "booking_id", b.ID, "error", intErr)
		forced = true
	}

	if !forced && withinTolerance(b.NetApplicationFee, netFee, s.tolerance) &&
		withinTolerance(b.PlatformEarnings, earnings, s.tolerance) {
		return outcomeClean, nil
	}

	now := time.Now().UTC()
	entry := &domain.AuditEntry{
		ID:             uuid.NewString(),
		BookingID:      b.ID,
		Kind:           domain.AuditReconciliation,
		Status:         domain.AuditSucceeded,
		Actor:          "reconciler",
		BeforeNetFee:   b.NetApplicationFee,
		AfterNetFee:    &netFee,
		BeforeEarnings: b.PlatformEarnings,
		AfterEarnings:  &earnings,
		CreatedAt:      now,
	}
	if forced {
		entry.Note = "unit-sanity guard tripped; recomputed from ledger"
	}

	// The correction and its audit entry commit together: a correction
	// without a trail (or vice versa) must not be observable.
	tx, err := s.db.Begin()
	if err != nil {
		return outcomeSkipped, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()
	if err := s.bookings.UpdateDerivedFeesTx(tx, b.ID, netFee, earnings, now); err != nil {
		return outcomeSkipped, err
	}
	if err := s.audit.InsertTx(tx, entry); err != nil {
		return outcomeSkipped, err
	}
	if err := tx.Commit(); err != nil {
		return outcomeSkipped, fmt.Errorf("commit correction: %w", err)
	}

	slog.Info("corrected derived fees",
		"booking_id", b.ID, "net_application_fee", netFee,
		"platform_earnings", earnings, "forced", forced)
	return outcomeCorrected, nil
}

func withinTolerance(stored *float64, computed, tolerance float64) bool {
	if stored == nil {
		return false
	}
	return math.Abs(*stored-computed) <= tolerance
}
