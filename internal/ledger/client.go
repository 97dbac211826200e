// Package ledger talks to the external payment processor's API: settlement
// reads, refund creation, transfer reversals. Responses are decoded into the
// read mirrors in internal/domain; failures are classified onto the
// ProcessorError taxonomy so callers never branch on HTTP status codes.
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/trailhut/settlement/internal/domain"
	"github.com/trailhut/settlement/internal/metrics"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewClient builds a processor client. The timeout bounds every individual
// call; callers may tighten it further per request via context.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// RefundRequest describes a refund to create against a charge. A nil
// AmountMinor refunds the full remaining amount. ReverseTransfer and
// RefundApplicationFee control how a destination charge's split is unwound.
type RefundRequest struct {
	ChargeRef            string            `json:"charge_ref"`
	AmountMinor          *int64            `json:"amount_minor,omitempty"`
	Reason               string            `json:"reason,omitempty"`
	ReverseTransfer      bool              `json:"reverse_transfer"`
	RefundApplicationFee bool              `json:"refund_application_fee"`
	Metadata             map[string]string `json:"metadata,omitempty"`
}

type reversalRequest struct {
	AmountMinor int64             `json:"amount_minor"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// FetchSettlement retrieves a payment with its charge and balance transaction
// expanded. This is the ground truth the reconciler corrects against.
func (c *Client) FetchSettlement(ctx context.Context, paymentRef string) (*domain.PaymentRecord, error) {
	if paymentRef == "" {
		return nil, domain.ValidationError{Field: "payment_reference_id", Msg: "required"}
	}

	var rec domain.PaymentRecord
	path := fmt.Sprintf("/v1/payments/%s?expand=charge,balance_transaction", url.PathEscape(paymentRef))
	if err := c.do(ctx, http.MethodGet, path, nil, &rec, "fetch_settlement"); err != nil {
		return nil, err
	}
	return &rec, nil
}

// CreateRefund issues a refund. A non-error return still requires the caller
// to inspect Refund.Status; the processor reports asynchronous failures there.
func (c *Client) CreateRefund(ctx context.Context, req RefundRequest) (*domain.Refund, error) {
	if req.ChargeRef == "" {
		return nil, domain.ValidationError{Field: "charge_ref", Msg: "required"}
	}

	var refund domain.Refund
	if err := c.do(ctx, http.MethodPost, "/v1/refunds", req, &refund, "create_refund"); err != nil {
		return nil, err
	}
	return &refund, nil
}

// ReverseTransfer claws back part of a prior transfer to a connected account.
func (c *Client) ReverseTransfer(ctx context.Context, transferID string, amountMinor int64, metadata map[string]string) (*domain.TransferReversal, error) {
	if transferID == "" {
		return nil, domain.ProcessorError{Op: "reverse_transfer", Reason: domain.ReasonTransferNotFound}
	}

	var rev domain.TransferReversal
	path := fmt.Sprintf("/v1/transfers/%s/reversals", url.PathEscape(transferID))
	req := reversalRequest{AmountMinor: amountMinor, Metadata: metadata}
	if err := c.do(ctx, http.MethodPost, path, req, &rev, "reverse_transfer"); err != nil {
		return nil, err
	}
	return &rev, nil
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, op string) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return domain.ProcessorError{Op: op, Reason: domain.ReasonUnknown, Err: err}
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domain.ProcessorError{Op: op, Reason: domain.ReasonUnknown, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		metrics.LedgerCalls.WithLabelValues(op, "transport_error").Inc()
		reason := domain.ReasonUnknown
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			reason = domain.ReasonTimeout
		}
		return domain.ProcessorError{Op: op, Reason: reason, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		metrics.LedgerCalls.WithLabelValues(op, "error").Inc()
		return c.classify(resp, op)
	}
	metrics.LedgerCalls.WithLabelValues(op, "ok").Inc()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return domain.ProcessorError{Op: op, Reason: domain.ReasonUnknown, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func (c *Client) classify(resp *http.Response, op string) error {
	var apiErr apiError
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = json.Unmarshal(raw, &apiErr)

	msg := apiErr.Error.Message
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	wrapped := fmt.Errorf("%s: %s", apiErr.Error.Code, msg)

	var reason domain.ProcessorReason
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		reason = domain.ReasonUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		reason = domain.ReasonRateLimited
	case resp.StatusCode == http.StatusNotFound && op == "reverse_transfer":
		reason = domain.ReasonTransferNotFound
	case resp.StatusCode == http.StatusNotFound:
		reason = domain.ReasonNotFound
	case apiErr.Error.Code == "insufficient_funds":
		reason = domain.ReasonInsufficientFunds
	case resp.StatusCode < 500:
		reason = domain.ReasonBusinessRule
	default:
		reason = domain.ReasonUnknown
	}
	return domain.ProcessorError{Op: op, Reason: reason, Err: wrapped}
}

func isTimeout(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
