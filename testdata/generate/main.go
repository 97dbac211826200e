// Command generate emits a realistic bookings.json seed file: paid bookings
// with checkout-time fee estimates, a share of null derived fields, and a few
// rows exhibiting the historical minor-unit corruption so reconciliation has
// something to fix.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/trailhut/settlement/internal/domain"
	"github.com/trailhut/settlement/internal/fees"
)

func main() {
	count := flag.Int("count", 50, "number of bookings to generate")
	out := flag.String("out", "testdata/bookings.json", "output path")
	seed := flag.Int64("seed", 42, "rng seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	bookings := make([]domain.Booking, 0, *count)

	for i := 0; i < *count; i++ {
		bookings = append(bookings, newBooking(rng, i))
	}

	data, err := json.MarshalIndent(bookings, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, "marshal:", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, "write:", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d bookings to %s\n", len(bookings), *out)
}

func newBooking(rng *rand.Rand, i int) domain.Booking {
	base := 40 + rng.Float64()*460 // $40 - $500
	serviceFee := fees.EstimateServiceFee(base, fees.DefaultServiceFeeRate)
	processingFee := fees.EstimateProcessingFee(base, serviceFee, fees.DefaultProcessingFeeRate, fees.DefaultProcessingFeeFixed)
	commission := fees.EstimateServiceFee(base, 0.03+rng.Float64()*0.05) // 3-8% partner commission

	created := time.Now().UTC().Add(-time.Duration(rng.Intn(90*24)) * time.Hour).Truncate(time.Second)
	b := domain.Booking{
		ID:                   uuid.NewString(),
		PartnerID:            fmt.Sprintf("acct_%03d", rng.Intn(20)),
		BaseAmount:           round2(base),
		ServiceFee:           serviceFee,
		PaymentProcessingFee: processingFee,
		CommissionPartner:    commission,
		PaymentStatus:        domain.StatusPaid,
		PaymentReferenceID:   fmt.Sprintf("pi_%s", uuid.NewString()[:8]),
		Currency:             "usd",
		CreatedAt:            created,
		UpdatedAt:            created,
	}

	switch {
	case i%7 == 0:
		// Checkout never filled the derived fields.
	case i%11 == 0:
		// Historical corruption: cents persisted as dollars.
		corrupted := commission * 100
		b.PlatformEarnings = &corrupted
	default:
		procFee := fees.EstimateProcessorFee(b.TotalTransaction(), fees.PresetStandard2024, false)
		allocated := fees.AllocateProcessorFee(b.TotalTransaction(), b.ApplicationFeeGross(), procFee)
		net := fees.NetApplicationFee(b.ApplicationFeeGross(), allocated)
		earnings := fees.NetApplicationFee(commission, fees.AllocateProcessorFee(b.TotalTransaction(), commission, procFee))
		b.NetApplicationFee = &net
		b.PlatformEarnings = &earnings
	}

	// Some bookings have no payment reference (offline/manual) and are
	// never reconciled.
	if i%13 == 0 {
		b.PaymentReferenceID = ""
	}

	return b
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}
