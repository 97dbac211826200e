package ledger_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trailhut/settlement/internal/domain"
	"github.com/trailhut/settlement/internal/ledger"
)

func TestFetchSettlement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payments/pi_123", r.URL.Path)
		assert.Equal(t, "charge,balance_transaction", r.URL.Query().Get("expand"))
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))

		json.NewEncoder(w).Encode(domain.PaymentRecord{
			ID:                        "pi_123",
			AmountMinor:               11426,
			Currency:                  "usd",
			Status:                    "succeeded",
			ApplicationFeeAmountMinor: 1826,
			TransferDestination:       "acct_partner",
			Charge: &domain.Charge{
				ID:          "ch_123",
				AmountMinor: 11426,
				FeeMinor:    361,
				NetMinor:    11065,
				TransferID:  "tr_123",
			},
			BalanceTransaction: &domain.BalanceTransaction{
				ID:       "txn_123",
				FeeMinor: 58,
				NetMinor: 1768,
			},
		})
	}))
	defer srv.Close()

	c := ledger.NewClient(srv.URL, "sk_test", time.Second)
	rec, err := c.FetchSettlement(context.Background(), "pi_123")
	require.NoError(t, err)
	assert.Equal(t, int64(11426), rec.AmountMinor)
	assert.True(t, rec.DestinationCharge())
	require.NotNil(t, rec.BalanceTransaction)
	assert.Equal(t, int64(1768), rec.BalanceTransaction.NetMinor)
}

func TestFetchSettlementErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   domain.ProcessorReason
	}{
		{"not found", http.StatusNotFound, `{"error":{"code":"resource_missing","message":"no such payment"}}`, domain.ReasonNotFound},
		{"unauthorized", http.StatusUnauthorized, `{"error":{"code":"invalid_api_key"}}`, domain.ReasonUnauthorized},
		{"rate limited", http.StatusTooManyRequests, `{}`, domain.ReasonRateLimited},
		{"server error", http.StatusInternalServerError, ``, domain.ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := ledger.NewClient(srv.URL, "sk_test", time.Second)
			_, err := c.FetchSettlement(context.Background(), "pi_err")
			require.Error(t, err)
			assert.True(t, domain.IsProcessor(err))
			assert.Equal(t, tt.want, domain.Reason(err))
		})
	}
}

func TestFetchSettlementEmptyRef(t *testing.T) {
	c := ledger.NewClient("http://unused", "k", time.Second)
	_, err := c.FetchSettlement(context.Background(), "")
	assert.True(t, domain.IsValidation(err))
}

func TestCreateRefund(t *testing.T) {
	var got ledger.RefundRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/refunds", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(domain.Refund{ID: "re_1", AmountMinor: 5000, Status: domain.RefundStatusSucceeded})
	}))
	defer srv.Close()

	amount := int64(5000)
	c := ledger.NewClient(srv.URL, "sk_test", time.Second)
	refund, err := c.CreateRefund(context.Background(), ledger.RefundRequest{
		ChargeRef:            "ch_123",
		AmountMinor:          &amount,
		Reason:               "requested_by_customer",
		ReverseTransfer:      true,
		RefundApplicationFee: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", refund.ID)
	assert.Equal(t, domain.RefundStatusSucceeded, refund.Status)

	require.NotNil(t, got.AmountMinor)
	assert.Equal(t, int64(5000), *got.AmountMinor)
	assert.True(t, got.ReverseTransfer)
	assert.True(t, got.RefundApplicationFee)
}

func TestCreateRefundOmitsAmountForFullRefund(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, present := body["amount_minor"]
		assert.False(t, present, "full refund must omit amount")
		json.NewEncoder(w).Encode(domain.Refund{ID: "re_full", Status: domain.RefundStatusSucceeded})
	}))
	defer srv.Close()

	c := ledger.NewClient(srv.URL, "sk_test", time.Second)
	_, err := c.CreateRefund(context.Background(), ledger.RefundRequest{ChargeRef: "ch_123"})
	require.NoError(t, err)
}

func TestReverseTransfer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/transfers/tr_123/reversals", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.EqualValues(t, 1000, body["amount_minor"])
		json.NewEncoder(w).Encode(domain.TransferReversal{ID: "trr_1", AmountMinor: 1000, Status: "succeeded"})
	}))
	defer srv.Close()

	c := ledger.NewClient(srv.URL, "sk_test", time.Second)
	rev, err := c.ReverseTransfer(context.Background(), "tr_123", 1000, map[string]string{"booking_id": "b1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), rev.AmountMinor)
}

func TestReverseTransferErrors(t *testing.T) {
	t.Run("transfer not found", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"code":"resource_missing","message":"no such transfer"}}`))
		}))
		defer srv.Close()

		c := ledger.NewClient(srv.URL, "sk_test", time.Second)
		_, err := c.ReverseTransfer(context.Background(), "tr_gone", 1000, nil)
		assert.Equal(t, domain.ReasonTransferNotFound, domain.Reason(err))
	})

	t.Run("insufficient funds", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"code":"insufficient_funds","message":"balance too low"}}`))
		}))
		defer srv.Close()

		c := ledger.NewClient(srv.URL, "sk_test", time.Second)
		_, err := c.ReverseTransfer(context.Background(), "tr_123", 1000, nil)
		assert.Equal(t, domain.ReasonInsufficientFunds, domain.Reason(err))
	})

	t.Run("empty transfer id", func(t *testing.T) {
		c := ledger.NewClient("http://unused", "k", time.Second)
		_, err := c.ReverseTransfer(context.Background(), "", 1000, nil)
		assert.Equal(t, domain.ReasonTransferNotFound, domain.Reason(err))
	})
}
