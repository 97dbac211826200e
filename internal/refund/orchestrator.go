// Package refund executes refunds against the external processor, unwinding
// the customer / partner / platform three-way split. The refund and the
// partner transfer reversal are separate, non-atomic processor calls: a
// reversal failure never rolls back a refund that already went through.
package refund

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trailhut/settlement/internal/domain"
	"github.com/trailhut/settlement/internal/fees"
	"github.com/trailhut/settlement/internal/ledger"
	"github.com/trailhut/settlement/internal/metrics"
	"github.com/trailhut/settlement/internal/repository"
)

// Processor is the slice of the ledger client the orchestrator needs.
type Processor interface {
	FetchSettlement(ctx context.Context, paymentRef string) (*domain.PaymentRecord, error)
	CreateRefund(ctx context.Context, req ledger.RefundRequest) (*domain.Refund, error)
	ReverseTransfer(ctx context.Context, transferID string, amountMinor int64, metadata map[string]string) (*domain.TransferReversal, error)
}

// Request is one operator-initiated refund.
type Request struct {
	BookingID  string            `json:"booking_id"`
	RefundType domain.RefundType `json:"refund_type"`

	// AmountMinor is the customer refund amount in minor units; nil means a
	// full refund of the remaining charge.
	AmountMinor *int64 `json:"amount_minor,omitempty"`

	// PartnerRefundAmountMinor is the partner's share to claw back on a
	// split_50_50 refund. Required for that type, ignored otherwise.
	PartnerRefundAmountMinor int64 `json:"partner_refund_amount_minor,omitempty"`

	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// Result reports what actually happened, including the partner-side reversal
// outcome, which can fail independently of a successful customer refund.
type Result struct {
	Refund           *domain.Refund           `json:"refund,omitempty"`
	TransferReversal *domain.TransferReversal `json:"transfer_reversal,omitempty"`

	// Idempotent is set when an equivalent successful refund already existed
	// and no processor call was made.
	Idempotent bool `json:"idempotent,omitempty"`

	// ReversalRequiresManual is set when the customer refund succeeded but
	// the partner transfer reversal did not; someone has to finish the job.
	ReversalRequiresManual bool   `json:"reversal_requires_manual,omitempty"`
	ReversalError          string `json:"reversal_error,omitempty"`
}

type Orchestrator struct {
	bookings  *repository.BookingRepo
	audit     *repository.AuditRepo
	processor Processor
	preset    fees.Preset
}

func NewOrchestrator(
	bookings *repository.BookingRepo,
	audit *repository.AuditRepo,
	processor Processor,
	preset fees.Preset,
) *Orchestrator {
	return &Orchestrator{
		bookings:  bookings,
		audit:     audit,
		processor: processor,
		preset:    preset,
	}
}

// Execute runs one refund end to end: validate, idempotency check, processor
// call(s), booking update, audit trail. An audit entry is written on every
// path that reaches the processor, success or not.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*Result, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	b, err := o.bookings.GetByID(req.BookingID)
	if err != nil {
		return nil, err
	}
	if b.PaymentReferenceID == "" {
		return nil, domain.ValidationError{Field: "payment_reference_id", Msg: "booking has no payment reference"}
	}
	readAt := b.UpdatedAt

	amountMinor := o.effectiveAmount(req, b)

	// Idempotency guard: an equivalent successful refund means this is a
	// double submit; never hit the processor again for it.
	if prior, err := o.audit.FindSucceededRefund(b.ID, req.RefundType, amountMinor); err != nil {
		return nil, fmt.Errorf("idempotency check: %w", err)
	} else if prior != nil {
		slog.Info("refund already executed, short-circuiting",
			"booking_id", b.ID, "refund_type", req.RefundType, "prior_ref", prior.ProcessorRef)
		metrics.RefundOutcomes.WithLabelValues(string(req.RefundType), "idempotent").Inc()
		return &Result{
			Idempotent: true,
			Refund: &domain.Refund{
				ID:          prior.ProcessorRef,
				AmountMinor: prior.AmountMinor,
				Status:      domain.RefundStatusSucceeded,
			},
		}, nil
	}

	rec, err := o.processor.FetchSettlement(ctx, b.PaymentReferenceID)
	if err != nil {
		metrics.RefundOutcomes.WithLabelValues(string(req.RefundType), "failed").Inc()
		return nil, fmt.Errorf("fetch settlement for refund: %w", err)
	}

	chargeRef := rec.ID
	transferID := ""
	if rec.Charge != nil {
		chargeRef = rec.Charge.ID
		transferID = rec.Charge.TransferID
	}

	// The core split decision. On a destination charge a plain refund claws
	// back the partner's share and the platform fee proportionally in one
	// call. A 50-50 split keeps the platform fee, leaves the auto-transfer
	// alone, and reverses the partner's share explicitly afterwards.
	refundReq := ledger.RefundRequest{
		ChargeRef: chargeRef,
		Reason:    req.Reason,
		Metadata: map[string]string{
			"booking_id":  b.ID,
			"refund_type": string(req.RefundType),
			"actor":       req.Actor,
		},
	}
	if req.AmountMinor != nil {
		v := *req.AmountMinor
		refundReq.AmountMinor = &v
	}
	if req.RefundType != domain.RefundSplit {
		refundReq.ReverseTransfer = rec.DestinationCharge()
		refundReq.RefundApplicationFee = rec.DestinationCharge()
	}

	refund, callErr := o.processor.CreateRefund(ctx, refundReq)
	if callErr == nil && refund.Status == domain.RefundStatusFailed {
		callErr = domain.ProcessorError{
			Op:     "create_refund",
			Reason: domain.ReasonBusinessRule,
			Err:    fmt.Errorf("processor returned refund status %q", refund.Status),
		}
	}

	now := time.Now().UTC()
	if callErr != nil {
		// Never fail silently: persist a placeholder so the booking shows an
		// attempted refund awaiting manual reconciliation instead of staying
		// falsely paid.
		placeholder := "pending-" + uuid.NewString()
		o.appendAudit(&domain.AuditEntry{
			ID:           uuid.NewString(),
			BookingID:    b.ID,
			Kind:         domain.AuditRefund,
			RefundType:   req.RefundType,
			AmountMinor:  amountMinor,
			Reason:       req.Reason,
			ProcessorRef: placeholder,
			Status:       domain.AuditPending,
			Actor:        req.Actor,
			Note:         callErr.Error(),
			CreatedAt:    now,
		})

		// The backfill happens on every path that reached the processor,
		// success or not.
		o.backfillDerivedFees(b)
		b.PaymentStatus = domain.StatusRefundPending
		b.UpdatedAt = now
		if err := o.bookings.UpdateGuarded(b, readAt); err != nil {
			slog.Error("booking update after failed refund call", "booking_id", b.ID, "error", err)
		}

		metrics.RefundOutcomes.WithLabelValues(string(req.RefundType), "failed").Inc()
		return nil, callErr
	}

	result := &Result{Refund: refund}
	auditStatus := domain.AuditSucceeded
	if refund.Status == domain.RefundStatusPending {
		auditStatus = domain.AuditPending
	}

	// The audit entry records the same amount the idempotency guard keys on,
	// so a replay of this exact submit matches the entry even when the
	// processor settled on a slightly different figure.
	o.appendAudit(&domain.AuditEntry{
		ID:           uuid.NewString(),
		BookingID:    b.ID,
		Kind:         domain.AuditRefund,
		RefundType:   req.RefundType,
		AmountMinor:  amountMinor,
		Reason:       req.Reason,
		ProcessorRef: refund.ID,
		Status:       auditStatus,
		Actor:        req.Actor,
		CreatedAt:    now,
	})

	// Partner-side clawback for the 50-50 split. Independent of the refund
	// above: a failure here is recorded for manual handling, not rolled back.
	if req.RefundType == domain.RefundSplit {
		o.reversePartnerTransfer(ctx, b, req, transferID, result, now)
	}

	o.applyBookingOutcome(b, req, refund, now)
	if err := o.bookings.UpdateGuarded(b, readAt); err != nil {
		// The refund already happened; the audit trail has it. Surface the
		// conflict so the operator reloads instead of retrying blind.
		return result, err
	}

	metrics.RefundOutcomes.WithLabelValues(string(req.RefundType), string(auditStatus)).Inc()
	slog.Info("refund executed",
		"booking_id", b.ID, "refund_type", req.RefundType,
		"amount_minor", amountMinor, "processor_ref", refund.ID,
		"reversal_manual", result.ReversalRequiresManual)
	return result, nil
}

func validate(req Request) error {
	if req.BookingID == "" {
		return domain.ValidationError{Field: "booking_id", Msg: "required"}
	}
	switch req.RefundType {
	case domain.RefundFull:
	case domain.RefundPartial:
		if req.AmountMinor == nil || *req.AmountMinor <= 0 {
			return domain.ValidationError{Field: "amount_minor", Msg: "partial refund requires a positive amount"}
		}
	case domain.RefundSplit:
		if req.PartnerRefundAmountMinor <= 0 {
			return domain.ValidationError{Field: "partner_refund_amount_minor", Msg: "split refund requires a positive partner amount"}
		}
	default:
		return domain.ValidationError{Field: "refund_type", Msg: fmt.Sprintf("unknown refund type %q", req.RefundType)}
	}
	if req.Actor == "" {
		return domain.ValidationError{Field: "actor", Msg: "required"}
	}
	return nil
}

// effectiveAmount resolves the amount used for the idempotency key: the
// requested amount, or the booking's full transaction for a full refund.
func (o *Orchestrator) effectiveAmount(req Request, b *domain.Booking) int64 {
	if req.AmountMinor != nil {
		return *req.AmountMinor
	}
	return domain.MinorFromMajor(b.TotalTransaction())
}

func (o *Orchestrator) reversePartnerTransfer(ctx context.Context, b *domain.Booking, req Request, transferID string, result *Result, now time.Time) {
	meta := map[string]string{"booking_id": b.ID, "actor": req.Actor}

	rev, err := o.processor.ReverseTransfer(ctx, transferID, req.PartnerRefundAmountMinor, meta)
	if err != nil {
		result.ReversalRequiresManual = true
		result.ReversalError = err.Error()
		metrics.TransferReversalFailures.Inc()
		slog.Warn("partner transfer reversal failed, refund stands",
			"booking_id", b.ID, "transfer_id", transferID, "error", err)

		o.appendAudit(&domain.AuditEntry{
			ID:          uuid.NewString(),
			BookingID:   b.ID,
			Kind:        domain.AuditTransferReversal,
			RefundType:  req.RefundType,
			AmountMinor: req.PartnerRefundAmountMinor,
			Status:      domain.AuditManualReview,
			Actor:       req.Actor,
			Note:        err.Error(),
			CreatedAt:   now,
		})
		return
	}

	result.TransferReversal = rev
	o.appendAudit(&domain.AuditEntry{
		ID:           uuid.NewString(),
		BookingID:    b.ID,
		Kind:         domain.AuditTransferReversal,
		RefundType:   req.RefundType,
		AmountMinor:  rev.AmountMinor,
		ProcessorRef: rev.ID,
		Status:       domain.AuditSucceeded,
		Actor:        req.Actor,
		CreatedAt:    now,
	})
}

// applyBookingOutcome moves the payment status and backfills derived fee
// fields that checkout never populated.
func (o *Orchestrator) applyBookingOutcome(b *domain.Booking, req Request, refund *domain.Refund, now time.Time) {
	switch {
	case refund.Status == domain.RefundStatusPending:
		b.PaymentStatus = domain.StatusRefundPending
	case req.RefundType == domain.RefundFull:
		b.PaymentStatus = domain.StatusRefunded
	default:
		b.PaymentStatus = domain.StatusPartiallyRefunded
	}

	o.backfillDerivedFees(b)
	b.UpdatedAt = now
}

// backfillDerivedFees fills null derived fee fields, estimating the
// processor's fee on the commission portion alone. Populated fields are never
// overwritten; reconciliation owns corrections.
func (o *Orchestrator) backfillDerivedFees(b *domain.Booking) {
	if b.PlatformEarnings != nil && b.NetApplicationFee != nil {
		return
	}
	feeOnCommission := fees.EstimateProcessorFee(b.CommissionPartner, o.preset, false)
	if b.PlatformEarnings == nil {
		earnings := fees.NetApplicationFee(b.CommissionPartner, feeOnCommission)
		b.PlatformEarnings = &earnings
	}
	if b.NetApplicationFee == nil {
		netFee := fees.NetApplicationFee(b.ApplicationFeeGross(), feeOnCommission)
		b.NetApplicationFee = &netFee
	}
}

func (o *Orchestrator) appendAudit(e *domain.AuditEntry) {
	if err := o.audit.Insert(e); err != nil {
		slog.Error("audit append failed", "booking_id", e.BookingID, "kind", e.Kind, "error", err)
	}
}
