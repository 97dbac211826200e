// Package fees estimates and allocates platform fees when authoritative
// ledger data is unavailable. Everything here is pure: no I/O, no errors,
// negative or NaN inputs clamp to zero. Ledger-sourced values always win over
// these estimates.
package fees

import "github.com/shopspring/decimal"

// Default marketplace rates applied at checkout.
const (
	DefaultServiceFeeRate     = 0.12
	DefaultProcessingFeeRate  = 0.0175
	DefaultProcessingFeeFixed = 0.30
)

// Preset is a named, versioned processor-fee configuration. Several presets
// circulated historically with no migration marker between them, so the
// active one is always an explicit parameter, never a constant baked into a
// formula.
type Preset struct {
	Name                   string  `json:"name"`
	Percentage             float64 `json:"percentage"`
	Fixed                  float64 `json:"fixed"`
	InternationalSurcharge float64 `json:"international_surcharge"`
}

var (
	// PresetStandard2024 matches the processor's published domestic card rate.
	PresetStandard2024 = Preset{
		Name:                   "standard-2024",
		Percentage:             0.029,
		Fixed:                  0.30,
		InternationalSurcharge: 0.011,
	}

	// PresetLegacyFlat is the flat rate older bookings were estimated with.
	PresetLegacyFlat = Preset{
		Name:       "legacy-flat",
		Percentage: 0.0396,
	}
)

// PresetByName resolves a configured preset name, falling back to
// PresetStandard2024 for unknown names.
func PresetByName(name string) Preset {
	switch name {
	case PresetLegacyFlat.Name:
		return PresetLegacyFlat
	default:
		return PresetStandard2024
	}
}

// EstimateServiceFee returns baseAmount * rate.
func EstimateServiceFee(baseAmount, rate float64) float64 {
	base := dec(baseAmount)
	return round2(base.Mul(dec(rate)))
}

// EstimateProcessingFee returns (baseAmount + serviceFee) * rate + fixed, the
// processing-fee pass-through charged to the guest.
func EstimateProcessingFee(baseAmount, serviceFee, rate, fixed float64) float64 {
	sum := dec(baseAmount).Add(dec(serviceFee))
	return round2(sum.Mul(dec(rate)).Add(dec(fixed)))
}

// EstimateProcessorFee returns the processor's own fee on the full
// transaction under the given preset. International cards carry the preset's
// surcharge on top of the base percentage.
func EstimateProcessorFee(totalTransaction float64, preset Preset, international bool) float64 {
	total := dec(totalTransaction)
	pct := dec(preset.Percentage)
	if international {
		pct = pct.Add(dec(preset.InternationalSurcharge))
	}
	return round2(total.Mul(pct).Add(dec(preset.Fixed)))
}

// AllocateProcessorFee pro-rates the processor's fee onto the platform's
// share: the processor charges on the entire transaction, so the platform's
// net take only bears the fraction of the fee matching the fraction of the
// transaction it owns.
func AllocateProcessorFee(totalTransaction, applicationFeeGross, processorFee float64) float64 {
	total := dec(totalTransaction)
	if total.IsZero() {
		return 0
	}
	share := dec(applicationFeeGross).Div(total)
	return round2(dec(processorFee).Mul(share))
}

// NetApplicationFee returns the platform take net of its allocated processor
// fee, floored at zero.
func NetApplicationFee(applicationFeeGross, allocatedProcessorFee float64) float64 {
	net := dec(applicationFeeGross).Sub(dec(allocatedProcessorFee))
	if net.IsNegative() {
		return 0
	}
	return round2(net)
}

// dec converts a float input to decimal, clamping negative and NaN values to
// zero so no formula can produce a negative money amount from bad input.
func dec(v float64) decimal.Decimal {
	if v != v || v < 0 {
		return decimal.Zero
	}
	return decimal.NewFromFloat(v)
}

func round2(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}
