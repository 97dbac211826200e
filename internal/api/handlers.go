package api

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/trailhut/settlement/internal/domain"
	"github.com/trailhut/settlement/internal/reconciliation"
	"github.com/trailhut/settlement/internal/refund"
	"github.com/trailhut/settlement/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	bookingRepo  *repository.BookingRepo
	auditRepo    *repository.AuditRepo
	reconSvc     *reconciliation.Service
	orchestrator *refund.Orchestrator
	ledger       reconciliation.SettlementFetcher

	// tolerance is the same write gate reconciliation uses, so the in_sync
	// view and the reconciler can never disagree.
	tolerance float64
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the error taxonomy onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case domain.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case domain.IsConcurrency(err):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsDataIntegrity(err):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case domain.IsProcessor(err):
		status := http.StatusBadGateway
		if domain.Reason(err) == domain.ReasonBusinessRule {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- Health ---

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- Bookings ---

func (h *Handlers) ListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.BookingFilter{
		Status:    q.Get("status"),
		PartnerID: q.Get("partner_id"),
		Page:      parseIntDefault(q.Get("page"), 1),
		Limit:     parseIntDefault(q.Get("limit"), 50),
	}

	bookings, total, err := h.bookingRepo.List(filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if bookings == nil {
		bookings = []domain.Booking{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bookings": bookings,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookingRepo.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GetSettlementStatus compares the booking's stored derived fields against a
// live ledger read, without writing anything.
func (h *Handlers) GetSettlementStatus(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookingRepo.GetByID(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if b.PaymentReferenceID == "" {
		writeError(w, http.StatusUnprocessableEntity, "booking has no payment reference")
		return
	}

	rec, err := h.ledger.FetchSettlement(r.Context(), b.PaymentReferenceID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"booking_id":        b.ID,
		"payment_reference": b.PaymentReferenceID,
		"ledger_status":     rec.Status,
		"settled":           rec.BalanceTransaction != nil,
	}
	if rec.BalanceTransaction != nil {
		ledgerNet := domain.MajorFromMinor(rec.BalanceTransaction.NetMinor)
		resp["ledger_net_application_fee"] = ledgerNet
		if b.NetApplicationFee != nil {
			resp["stored_net_application_fee"] = *b.NetApplicationFee
			resp["in_sync"] = math.Abs(*b.NetApplicationFee-ledgerNet) <= h.tolerance
		} else {
			resp["in_sync"] = false
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Refunds ---

type refundPayload struct {
	RefundType               domain.RefundType `json:"refund_type"`
	AmountMinor              *int64            `json:"amount_minor,omitempty"`
	PartnerRefundAmountMinor int64             `json:"partner_refund_amount_minor,omitempty"`
	Reason                   string            `json:"reason"`
}

func (h *Handlers) CreateRefund(w http.ResponseWriter, r *http.Request) {
	var payload refundPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	// Operator identity arrives from the admin gateway, which owns auth.
	actor := r.Header.Get("X-Actor")

	result, err := h.orchestrator.Execute(r.Context(), refund.Request{
		BookingID:                chi.URLParam(r, "id"),
		RefundType:               payload.RefundType,
		AmountMinor:              payload.AmountMinor,
		PartnerRefundAmountMinor: payload.PartnerRefundAmountMinor,
		Reason:                   payload.Reason,
		Actor:                    actor,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if result.Idempotent {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// --- Reconciliation ---

func (h *Handlers) RunReconciliation(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconSvc.Run(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handlers) GetReconciliationReport(w http.ResponseWriter, r *http.Request) {
	report := h.reconSvc.LastReport()
	if report == nil {
		writeError(w, http.StatusNotFound, "no reconciliation run yet")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Audit ---

func (h *Handlers) ListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.AuditFilter{
		BookingID: q.Get("booking_id"),
		Kind:      q.Get("kind"),
		Status:    q.Get("status"),
		Page:      parseIntDefault(q.Get("page"), 1),
		Limit:     parseIntDefault(q.Get("limit"), 50),
	}

	entries, total, err := h.auditRepo.List(filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"total":   total,
		"page":    filter.Page,
		"limit":   filter.Limit,
	})
}
