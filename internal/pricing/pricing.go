// Package pricing holds the pure price arithmetic shared by the catalog,
// cart and order flows.
package pricing

import "storefront/internal/domain"

// AppliedPrice computes a product's price after its discount descriptor is
// applied. Unknown discount types pass the base price through unchanged.
// Results are not clamped: the catalog admin flow validates that percentage
// discounts stay within [0, 100] and fixed discounts do not exceed the base
// price before a descriptor reaches this function.
func AppliedPrice(basePrice float64, discount domain.Discount) float64 {
	switch discount.Type {
	case domain.DiscountPercentage:
		return basePrice - basePrice*discount.Amount/100
	case domain.DiscountFixed:
		return basePrice - discount.Amount
	default:
		return basePrice
	}
}

// Subtotal sums quantity times snapshot price over the cart's line items.
func Subtotal(items []domain.CartItem) float64 {
	var subTotal float64
	for _, item := range items {
		subTotal += float64(item.Quantity) * item.Price
	}
	return subTotal
}

// Total computes the order total without a coupon.
func Total(subTotal, shippingFee, vat float64) float64 {
	return subTotal + shippingFee + vat
}

// ApplyCoupon computes the order total with a coupon applied to the subtotal.
// An amount-type coupon larger than the subtotal is void: the discount is
// skipped entirely rather than producing a negative subtotal. Shipping and
// VAT are added after the discount in both cases, so a coupon never reduces
// the fees.
func ApplyCoupon(subTotal float64, coupon *domain.Coupon, shippingFee, vat float64) float64 {
	total := subTotal

	switch coupon.Type {
	case domain.CouponPercentage:
		total = subTotal - subTotal*coupon.Amount/100
	case domain.CouponAmount:
		if coupon.Amount <= subTotal {
			total = subTotal - coupon.Amount
		}
	}

	return total + shippingFee + vat
}
