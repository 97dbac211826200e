package domain

import "time"

type AuditKind string

const (
	AuditRefund           AuditKind = "refund"
	AuditTransferReversal AuditKind = "transfer_reversal"
	AuditReconciliation   AuditKind = "reconciliation"
)

type AuditStatus string

const (
	AuditSucceeded    AuditStatus = "succeeded"
	AuditPending      AuditStatus = "pending"
	AuditFailed       AuditStatus = "failed"
	AuditManualReview AuditStatus = "requires_manual_processing"
)

// AuditEntry is one append-only record of a money-affecting action: a refund
// attempt, a partner transfer reversal, or a reconciliation write. The
// history UI consumes these; the refund idempotency guard reads them back.
type AuditEntry struct {
	ID           string      `json:"id"`
	BookingID    string      `json:"booking_id"`
	Kind         AuditKind   `json:"kind"`
	RefundType   RefundType  `json:"refund_type,omitempty"`
	AmountMinor  int64       `json:"amount_minor"`
	Reason       string      `json:"reason,omitempty"`
	ProcessorRef string      `json:"processor_ref,omitempty"`
	Status       AuditStatus `json:"status"`
	Actor        string      `json:"actor"`

	// Before/after stored values for reconciliation writes, major units.
	BeforeNetFee   *float64 `json:"before_net_fee,omitempty"`
	AfterNetFee    *float64 `json:"after_net_fee,omitempty"`
	BeforeEarnings *float64 `json:"before_earnings,omitempty"`
	AfterEarnings  *float64 `json:"after_earnings,omitempty"`

	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
