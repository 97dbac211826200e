package domain

import "time"

type PaymentStatus string

const (
	StatusPending           PaymentStatus = "pending"
	StatusPaid              PaymentStatus = "paid"
	StatusRefundPending     PaymentStatus = "refund_pending"
	StatusPartiallyRefunded PaymentStatus = "partially_refunded"
	StatusRefunded          PaymentStatus = "refunded"
)

type RefundType string

const (
	RefundFull    RefundType = "full"
	RefundPartial RefundType = "partial"
	RefundSplit   RefundType = "split_50_50"
)

// Booking carries the money fields of a marketplace booking. All amounts are
// major units (decimal currency); anything sourced from the ledger's minor
// units is converted before it lands here.
type Booking struct {
	ID                   string        `json:"id"`
	PartnerID            string        `json:"partner_id"`
	BaseAmount           float64       `json:"base_amount"`
	ServiceFee           float64       `json:"service_fee"`
	PaymentProcessingFee float64       `json:"payment_processing_fee"`
	CommissionPartner    float64       `json:"commission_partner"`
	PlatformEarnings     *float64      `json:"platform_earnings,omitempty"`
	NetApplicationFee    *float64      `json:"net_application_fee,omitempty"`
	PaymentStatus        PaymentStatus `json:"payment_status"`
	PaymentReferenceID   string        `json:"payment_reference_id,omitempty"`
	Currency             string        `json:"currency"`
	CreatedAt            time.Time     `json:"created_at"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// ApplicationFeeGross is the platform's total retained share: service fee +
// processing-fee pass-through + partner commission.
func (b *Booking) ApplicationFeeGross() float64 {
	return b.ServiceFee + b.PaymentProcessingFee + b.CommissionPartner
}

// TotalTransaction is the full amount charged to the guest.
func (b *Booking) TotalTransaction() float64 {
	return b.BaseAmount + b.ServiceFee + b.PaymentProcessingFee
}

// Reconcilable reports whether the booking qualifies for fee
// reconciliation: a payment reference exists, the platform actually earns a
// commission, and the payment has settled.
func (b *Booking) Reconcilable() bool {
	return b.PaymentReferenceID != "" && b.CommissionPartner > 0 && b.PaymentStatus == StatusPaid
}

// MajorFromMinor converts the ledger's integer minor units (cents) to the
// major-unit decimals stored on Booking. Mixing the two representations is
// the bug class the unit-sanity guard exists for.
func MajorFromMinor(minor int64) float64 {
	return float64(minor) / 100
}

// MinorFromMajor converts a major-unit amount to ledger minor units,
// rounding to the nearest cent.
func MinorFromMajor(major float64) int64 {
	if major >= 0 {
		return int64(major*100 + 0.5)
	}
	return int64(major*100 - 0.5)
}
