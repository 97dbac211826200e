package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/trailhut/settlement/internal/reconciliation"
	"github.com/trailhut/settlement/internal/refund"
	"github.com/trailhut/settlement/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	bookingRepo *repository.BookingRepo,
	auditRepo *repository.AuditRepo,
	reconSvc *reconciliation.Service,
	orchestrator *refund.Orchestrator,
	ledger reconciliation.SettlementFetcher,
	tolerance float64,
) http.Handler {
	if tolerance <= 0 {
		tolerance = 0.01
	}
	h := &Handlers{
		bookingRepo:  bookingRepo,
		auditRepo:    auditRepo,
		reconSvc:     reconSvc,
		orchestrator: orchestrator,
		ledger:       ledger,
		tolerance:    tolerance,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Bookings.
		r.Get("/bookings", h.ListBookings)
		r.Get("/bookings/{id}", h.GetBooking)
		r.Get("/bookings/{id}/settlement-status", h.GetSettlementStatus)
		r.Post("/bookings/{id}/refunds", h.CreateRefund)

		// Reconciliation.
		r.Post("/reconciliation/run", h.RunReconciliation)
		r.Get("/reconciliation/report", h.GetReconciliationReport)

		// Audit trail.
		r.Get("/audit", h.ListAudit)
	})

	return r
}
