package domain

import "time"

// Ledger read shapes. These mirror the external processor's responses and are
// fetched on demand; they are never the system of record. All amounts are
// integer minor units exactly as the ledger reports them.

type PaymentRecord struct {
	ID                        string              `json:"id"`
	AmountMinor               int64               `json:"amount_minor"`
	Currency                  string              `json:"currency"`
	Status                    string              `json:"status"`
	ApplicationFeeAmountMinor int64               `json:"application_fee_amount_minor"`
	OnBehalfOf                string              `json:"on_behalf_of,omitempty"`
	TransferDestination       string              `json:"transfer_destination,omitempty"`
	Charge                    *Charge             `json:"charge,omitempty"`
	BalanceTransaction        *BalanceTransaction `json:"balance_transaction,omitempty"`
}

// DestinationCharge reports whether settlement auto-split the funds between
// the platform and a connected partner account.
func (p *PaymentRecord) DestinationCharge() bool {
	return p.OnBehalfOf != "" || p.TransferDestination != ""
}

type Charge struct {
	ID                  string `json:"id"`
	AmountMinor         int64  `json:"amount_minor"`
	AmountCapturedMinor int64  `json:"amount_captured_minor"`
	FeeMinor            int64  `json:"fee_minor"`
	NetMinor            int64  `json:"net_minor"`
	TransferID          string `json:"transfer_id,omitempty"`
}

type BalanceTransaction struct {
	ID          string      `json:"id"`
	AmountMinor int64       `json:"amount_minor"`
	FeeMinor    int64       `json:"fee_minor"`
	NetMinor    int64       `json:"net_minor"`
	FeeDetails  []FeeDetail `json:"fee_details,omitempty"`
}

type FeeDetail struct {
	Type        string `json:"type"`
	AmountMinor int64  `json:"amount_minor"`
	Description string `json:"description,omitempty"`
}

type Transfer struct {
	ID          string `json:"id"`
	Destination string `json:"destination"`
	AmountMinor int64  `json:"amount_minor"`
}

type Refund struct {
	ID          string            `json:"id"`
	AmountMinor int64             `json:"amount_minor"`
	Status      string            `json:"status"`
	Reason      string            `json:"reason,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

type TransferReversal struct {
	ID          string `json:"id"`
	AmountMinor int64  `json:"amount_minor"`
	Status      string `json:"status"`
}

// Processor-side refund statuses the orchestrator checks against. A transport
// level success with a non-succeeded status is still a failed refund.
const (
	RefundStatusSucceeded = "succeeded"
	RefundStatusPending   = "pending"
	RefundStatusFailed    = "failed"
)
