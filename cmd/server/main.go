package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/trailhut/settlement/internal/api"
	"github.com/trailhut/settlement/internal/config"
	"github.com/trailhut/settlement/internal/domain"
	"github.com/trailhut/settlement/internal/ledger"
	"github.com/trailhut/settlement/internal/reconciliation"
	"github.com/trailhut/settlement/internal/refund"
	"github.com/trailhut/settlement/internal/repository"
	"github.com/trailhut/settlement/pkg/logging"
)

func main() {
	logging.Setup()
	cfg := config.Load()

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		slog.Error("init db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Repositories.
	bookingRepo := repository.NewBookingRepo(db)
	auditRepo := repository.NewAuditRepo(db)

	// External processor client.
	ledgerClient := ledger.NewClient(cfg.LedgerBaseURL, cfg.LedgerAPIKey, cfg.LedgerTimeout)
	if cfg.LedgerAPIKey == "" {
		slog.Warn("LEDGER_API_KEY is not set; processor calls will be rejected upstream")
	}

	// Services.
	reconSvc := reconciliation.NewService(db, bookingRepo, auditRepo, ledgerClient, cfg.ReconcileTolerance, cfg.ReconcileDelay)
	orchestrator := refund.NewOrchestrator(bookingRepo, auditRepo, ledgerClient, cfg.FeePreset)

	// Seed bookings if the DB is empty.
	count, err := bookingRepo.Count()
	if err != nil {
		slog.Error("count bookings", "error", err)
		os.Exit(1)
	}
	if count == 0 {
		if err := seedBookings(bookingRepo); err != nil {
			slog.Warn("seed bookings", "error", err)
		}
	} else {
		slog.Info("database already populated, skipping seed", "bookings", count)
	}

	router := api.NewRouter(bookingRepo, auditRepo, reconSvc, orchestrator, ledgerClient, cfg.ReconcileTolerance)

	slog.Info("trailhut settlement service",
		"port", cfg.Port, "fee_preset", cfg.FeePreset.Name,
		"reconcile_delay", cfg.ReconcileDelay, "tolerance", cfg.ReconcileTolerance)
	slog.Info("endpoints",
		"refund", "POST /api/v1/bookings/{id}/refunds",
		"reconcile", "POST /api/v1/reconciliation/run",
		"settlement_status", "GET /api/v1/bookings/{id}/settlement-status",
		"audit", "GET /api/v1/audit")

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func seedBookings(repo *repository.BookingRepo) error {
	// Try multiple possible locations for testdata.
	candidates := []string{
		"testdata/bookings.json",
		filepath.Join(".", "testdata", "bookings.json"),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", "bookings.json"),
			filepath.Join(dir, "..", "..", "testdata", "bookings.json"),
		)
	}

	var data []byte
	var loadErr error
	for _, path := range candidates {
		data, loadErr = os.ReadFile(path)
		if loadErr == nil {
			slog.Info("loaded seed bookings", "path", path)
			break
		}
	}
	if loadErr != nil {
		return loadErr
	}

	var bookings []domain.Booking
	if err := json.Unmarshal(data, &bookings); err != nil {
		return err
	}

	inserted, err := repo.BulkInsert(bookings)
	if err != nil {
		return err
	}
	slog.Info("seeded bookings", "inserted", inserted, "in_file", len(bookings))
	return nil
}
