package menu

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// ChosenModifiers maps a modifier group name to the selected choices.
type ChosenModifiers map[string][]ModifierChoice

// OrderItem is one line of an order. UnitPrice includes modifier deltas.
type OrderItem struct {
	Category  string          `json:"category"`
	Name      string          `json:"name"`
	BasePrice float64         `json:"basePrice"`
	Quantity  int             `json:"quantity"`
	Modifiers ChosenModifiers `json:"modifiers,omitempty"`
	UnitPrice float64         `json:"price"`
}

type Order struct {
	Items []OrderItem `json:"items"`
}

// PriceWithModifiers computes the per-unit price of an item with the chosen
// modifier deltas added to the base price.
func PriceWithModifiers(item *Item, chosen ChosenModifiers) float64 {
	price := item.Price
	for _, choices := range chosen {
		for _, c := range choices {
			price += c.PriceDelta
		}
	}
	return price
}

// Subtotal sums unit price times quantity across the order.
func (o Order) Subtotal() float64 {
	var sum float64
	for _, i := range o.Items {
		unit := i.UnitPrice
		if unit == 0 {
			unit = i.BasePrice
		}
		qty := i.Quantity
		if qty < 1 {
			qty = 1
		}
		sum += unit * float64(qty)
	}
	return sum
}

// Find returns the order line with the given item name.
func (o *Order) Find(name string) *OrderItem {
	for i := range o.Items {
		if norm(o.Items[i].Name) == norm(name) {
			return &o.Items[i]
		}
	}
	return nil
}

// Summary renders the order as a single spoken sentence fragment.
func (o Order) Summary() string {
	if len(o.Items) == 0 {
		return "no items yet"
	}
	parts := make([]string, 0, len(o.Items))
	for _, i := range o.Items {
		name := i.Name
		if i.Quantity > 1 {
			name = fmt.Sprintf("%d %s", i.Quantity, i.Name)
		}
		if len(i.Modifiers) > 0 {
			name += " (" + i.Modifiers.Spoken() + ")"
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, ", ")
}

// Spoken renders chosen modifiers as "Group: A, B; Group2: C" with groups in
// a stable order.
func (m ChosenModifiers) Spoken() string {
	groups := make([]string, 0, len(m))
	for g := range m {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	parts := make([]string, 0, len(groups))
	for _, g := range groups {
		names := make([]string, 0, len(m[g]))
		for _, c := range m[g] {
			names = append(names, c.Name)
		}
		parts = append(parts, g+": "+strings.Join(names, ", "))
	}
	return strings.Join(parts, "; ")
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
