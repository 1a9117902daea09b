package menu

import (
	"strings"
)

// Discount is a promo code with an eligibility/amount rule. Apply returns
// the discount amount and a spoken note, or false when the order does not
// qualify.
type Discount struct {
	Code        string
	Description string
	Apply       func(Order) (float64, string, bool)
}

var Discounts = map[string]Discount{
	"SAVE10": {
		Code:        "SAVE10",
		Description: "10% off orders of $20 or more",
		Apply: func(o Order) (float64, string, bool) {
			subtotal := o.Subtotal()
			if subtotal < 20 {
				return 0, "", false
			}
			return round2(subtotal * 0.1), "SAVE10 applied (10% off)", true
		},
	},
	"FREEDRINK": {
		Code:        "FREEDRINK",
		Description: "Free Coke when you order a Pizza",
		Apply: func(o Order) (float64, string, bool) {
			hasPizza := false
			for _, i := range o.Items {
				if strings.Contains(norm(i.Name), "pizza") {
					hasPizza = true
					break
				}
			}
			if !hasPizza {
				return 0, "", false
			}
			cokePrice, ok := ItemPrice("Drinks", "Coke")
			if !ok {
				cokePrice = 1
			}
			return cokePrice, "FREEDRINK applied (free Coke)", true
		},
	},
}

// Totals is the priced-out order: subtotal, applied discount amount (clamped
// to the subtotal) and the final total.
type Totals struct {
	Subtotal float64
	Discount float64
	Total    float64
	Notes    []string
}

// ComputeTotals applies the given discount codes to the order. Unknown and
// ineligible codes are skipped; the discount never exceeds the subtotal.
func ComputeTotals(o Order, codes []string) Totals {
	subtotal := o.Subtotal()
	var amount float64
	var notes []string
	for _, code := range codes {
		def, ok := Discounts[strings.ToUpper(code)]
		if !ok {
			continue
		}
		a, note, eligible := def.Apply(o)
		if !eligible {
			continue
		}
		amount += a
		notes = append(notes, note)
	}
	if amount > subtotal {
		amount = subtotal
	}
	total := round2(subtotal - amount)
	if total < 0 {
		total = 0
	}
	return Totals{Subtotal: round2(subtotal), Discount: round2(amount), Total: total, Notes: notes}
}
