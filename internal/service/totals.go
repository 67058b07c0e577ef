package service

import "storefront-client/internal/models"

// TotalsConfig carries the pricing constants used to derive a cart summary.
// The tax rate is a single canonical value; call sites never hard-code it.
type TotalsConfig struct {
	TaxRate               float64
	FreeShippingThreshold float64
	FlatShippingFee       float64
}

// LineTotal recomputes a line's total from its unit price and quantity.
// Always derived locally after a mutation, never trusted from a stale
// payload.
func LineTotal(item *models.CartItem) float64 {
	return item.UnitPrice * float64(item.Quantity)
}

// CalculateSummary derives the cart summary and grand total from the item
// collection. Pure: same items in, same summary out.
func CalculateSummary(items []models.CartItem, cfg TotalsConfig) (models.CartSummary, float64) {
	var subtotal float64
	var totalQuantity int
	for i := range items {
		subtotal += items[i].LineTotal
		totalQuantity += items[i].Quantity
	}

	tax := subtotal * cfg.TaxRate
	shipping := cfg.FlatShippingFee
	if subtotal > cfg.FreeShippingThreshold {
		shipping = 0
	}

	summary := models.CartSummary{
		Subtotal:      subtotal,
		ItemsCount:    len(items),
		EstimatedTax:  tax,
		ShippingCost:  shipping,
		TotalQuantity: totalQuantity,
	}
	return summary, subtotal + tax + shipping
}

// AmountToFreeShipping returns how much more subtotal is needed before
// shipping becomes free; zero when the threshold is already met.
func AmountToFreeShipping(subtotal float64, cfg TotalsConfig) float64 {
	if subtotal > cfg.FreeShippingThreshold {
		return 0
	}
	return cfg.FreeShippingThreshold - subtotal
}
