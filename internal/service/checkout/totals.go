package checkout

import "math"

const (
	// IVA 16%.
	TaxRate = 0.16
	// Shipping is free from this subtotal up, otherwise a flat fee applies.
	FreeShippingThreshold = 500.0
	ShippingFee           = 99.0

	Currency = "mxn"
)

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Totals derives tax, shipping and grand total from a subtotal.
func Totals(subtotal float64) (tax, shipping, total float64) {
	tax = round2(subtotal * TaxRate)
	if subtotal >= FreeShippingThreshold {
		shipping = 0
	} else {
		shipping = ShippingFee
	}
	total = round2(subtotal + tax + shipping)
	return tax, shipping, total
}
