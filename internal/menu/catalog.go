package menu

import (
	"strings"
)

type ModifierChoice struct {
	Name       string
	PriceDelta float64
}

type ModifierGroup struct {
	Name     string
	Required bool
	Choices  []ModifierChoice
}

type Item struct {
	Name      string
	Price     float64
	Modifiers []ModifierGroup
}

type Category struct {
	Name  string
	Items []Item
}

// Catalog is the live menu: categories, items and their modifier groups.
var Catalog = []Category{
	{
		Name: "Burgers",
		Items: []Item{
			{
				Name:  "Cheese burger",
				Price: 5,
				Modifiers: []ModifierGroup{
					{Name: "Patty Size", Choices: []ModifierChoice{{Name: "Single"}, {Name: "Double", PriceDelta: 2}}},
					{Name: "Extras", Choices: []ModifierChoice{{Name: "Pickle", PriceDelta: 1}, {Name: "Bacon", PriceDelta: 2}}},
				},
			},
			{
				Name:  "Chicken burger",
				Price: 5,
				Modifiers: []ModifierGroup{
					{Name: "Patty Size", Choices: []ModifierChoice{{Name: "Single"}, {Name: "Double", PriceDelta: 2}}},
					{Name: "Extras", Choices: []ModifierChoice{{Name: "Pickle", PriceDelta: 1}, {Name: "Bacon", PriceDelta: 2}}},
				},
			},
		},
	},
	{
		Name: "Briyani",
		Items: []Item{
			{
				Name:  "Veg",
				Price: 2,
				Modifiers: []ModifierGroup{
					{Name: "Briyani", Choices: []ModifierChoice{{Name: "Paneer", PriceDelta: 2}, {Name: "Mushroom", PriceDelta: 2}}},
				},
			},
			{
				Name:  "Non Veg",
				Price: 4,
				Modifiers: []ModifierGroup{
					{Name: "Briyani", Choices: []ModifierChoice{{Name: "Chicken", PriceDelta: 4}, {Name: "Mutton", PriceDelta: 5}}},
				},
			},
		},
	},
	{
		Name: "Drinks",
		Items: []Item{
			{Name: "Coke", Price: 1},
			{Name: "Fanta", Price: 1},
		},
	},
	{
		Name: "Pizzas",
		Items: []Item{
			{
				Name:  "Paneer Pizza",
				Price: 9,
				Modifiers: []ModifierGroup{
					{Name: "Crust", Choices: []ModifierChoice{{Name: "Thin"}, {Name: "Regular"}}},
					{Name: "Toppings", Choices: []ModifierChoice{{Name: "Pepperoni", PriceDelta: 1.5}, {Name: "Mushrooms", PriceDelta: 1}, {Name: "Olives", PriceDelta: 1}}},
				},
			},
			{
				Name:  "Chicken Pizza",
				Price: 9,
				Modifiers: []ModifierGroup{
					{Name: "Crust", Choices: []ModifierChoice{{Name: "Thin"}, {Name: "Regular"}}},
					{Name: "Toppings", Choices: []ModifierChoice{{Name: "Pepperoni", PriceDelta: 1.5}, {Name: "Mushrooms", PriceDelta: 1}, {Name: "Olives", PriceDelta: 1}}},
				},
			},
		},
	},
}

// Popular items for the "most selling" and recommendation flows.
var PopularItems = []string{"Cheeseburger", "Pizza", "Fries", "Coke"}

// SuggestedPairings maps an ordered item to upsell suggestions.
var SuggestedPairings = map[string][]string{
	"Cheeseburger": {"Fries", "Coke"},
	"Pizza":        {"Coke", "Salad"},
	"Fries":        {"Coke"},
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Categories lists category names in menu order.
func Categories() []string {
	out := make([]string, 0, len(Catalog))
	for _, c := range Catalog {
		out = append(out, c.Name)
	}
	return out
}

// FindCategory matches a spoken category name, tolerating the name being
// embedded in a longer utterance.
func FindCategory(name string) (*Category, bool) {
	n := norm(name)
	for i := range Catalog {
		cn := norm(Catalog[i].Name)
		if cn == n || strings.Contains(n, cn) {
			return &Catalog[i], true
		}
	}
	return nil, false
}

// ItemsOf lists item names for a category, or nil when unknown.
func ItemsOf(category string) []string {
	cat, ok := FindCategory(category)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(cat.Items))
	for _, i := range cat.Items {
		out = append(out, i.Name)
	}
	return out
}

// FindItem matches a spoken item name within a category.
func FindItem(category, itemName string) (*Item, bool) {
	cat, ok := FindCategory(category)
	if !ok {
		return nil, false
	}
	n := norm(itemName)
	for i := range cat.Items {
		in := norm(cat.Items[i].Name)
		if in == n || strings.Contains(n, in) || strings.Contains(in, n) {
			return &cat.Items[i], true
		}
	}
	return nil, false
}

// ItemPrice returns the base price of an item, or 0 when not found.
func ItemPrice(category, itemName string) (float64, bool) {
	item, ok := FindItem(category, itemName)
	if !ok {
		return 0, false
	}
	return item.Price, true
}

// ModifierGroups lists the modifier group names of an item.
func ModifierGroups(item *Item) []string {
	out := make([]string, 0, len(item.Modifiers))
	for _, g := range item.Modifiers {
		out = append(out, g.Name)
	}
	return out
}

// ModifierChoices returns the choices of a named group on an item.
func ModifierChoices(item *Item, group string) []ModifierChoice {
	for _, g := range item.Modifiers {
		if norm(g.Name) == norm(group) {
			return g.Choices
		}
	}
	return nil
}

// MatchModifierChoices finds the choice names mentioned in an utterance for
// the given group, falling back to singular forms ("mushroom" matches
// "Mushrooms").
func MatchModifierChoices(item *Item, group, utterance string) []string {
	u := norm(utterance)
	choices := ModifierChoices(item, group)
	var hits []string
	for _, c := range choices {
		if strings.Contains(u, norm(c.Name)) {
			hits = append(hits, c.Name)
		}
	}
	if len(hits) == 0 {
		for _, c := range choices {
			if strings.Contains(u, strings.TrimSuffix(norm(c.Name), "s")) {
				hits = append(hits, c.Name)
			}
		}
	}
	seen := make(map[string]bool, len(hits))
	uniq := hits[:0]
	for _, h := range hits {
		if !seen[h] {
			seen[h] = true
			uniq = append(uniq, h)
		}
	}
	return uniq
}

// SpeakableList joins names for a prompt with an "and" before the last one.
func SpeakableList(prefix string, names []string) string {
	if len(names) == 0 {
		return prefix
	}
	joined := strings.Join(names, ", ")
	if idx := strings.LastIndex(joined, ", "); idx >= 0 {
		joined = joined[:idx] + ", and " + joined[idx+2:]
	}
	return prefix + " " + joined + "."
}
