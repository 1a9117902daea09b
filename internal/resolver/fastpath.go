package resolver

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/demobites/voice-order/internal/menu"
)

var applyCodeRe = regexp.MustCompile(`(?i)(apply|use)\s+(save10|free\s*drink|freedrink)`)
var codeRe = regexp.MustCompile(`(?i)(save10|free\s*drink|freedrink)`)

// FastPath answers the common queries without touching the model. It returns
// nil when the utterance needs the resolver.
func FastPath(userText string, order menu.Order, appliedDiscounts []string) *Result {
	lower := strings.ToLower(userText)

	for _, k := range []string{"menu", "categories", "what do you have", "options", "available"} {
		if strings.Contains(lower, k) {
			return &Result{
				Action:     "choose_category",
				Prompt:     "Sure, happy to help. Please choose a category to get started: Burgers, Briyani, Drinks, or Pizzas.",
				Confidence: 1.0,
			}
		}
	}

	if applyCodeRe.MatchString(lower) {
		code := strings.ToUpper(strings.ReplaceAll(codeRe.FindString(lower), " ", ""))
		return &Result{Action: "apply_discount", DiscountCode: code, Confidence: 1.0}
	}

	for _, k := range []string{"discount", "offer", "promo", "coupon", "code"} {
		if strings.Contains(lower, k) {
			return &Result{Action: "discounts", Confidence: 1.0}
		}
	}

	for _, k := range []string{"most selling", "bestseller", "best seller", "popular", "top seller"} {
		if strings.Contains(lower, k) {
			return &Result{Action: "most_selling", Confidence: 1.0}
		}
	}

	for _, k := range []string{"suggest", "recommend with", "what goes with", "pair"} {
		if strings.Contains(lower, k) {
			return &Result{Action: "suggest", Confidence: 1.0}
		}
	}

	if strings.Contains(lower, "total") || (strings.Contains(lower, "how much") && !strings.Contains(lower, "cost")) {
		totals := menu.ComputeTotals(order, appliedDiscounts)
		return &Result{
			Action:      "info",
			ItemQueried: "total",
			Prompt:      fmt.Sprintf("Your current total is %.2f dollars. Would you like to add more or go ahead and confirm?", totals.Total),
			Confidence:  1.0,
		}
	}

	if strings.Contains(lower, "thank") {
		return &Result{Action: "acknowledge", Prompt: "You're very welcome! Shall we continue?", Confidence: 1.0}
	}

	// Direct category mention.
	for _, c := range menu.Catalog {
		if strings.Contains(lower, strings.ToLower(c.Name)) {
			return &Result{Action: "choose_category", Category: c.Name, Confidence: 0.9}
		}
	}

	// Direct item mention.
	for _, c := range menu.Catalog {
		for i := range c.Items {
			item := &c.Items[i]
			if !strings.Contains(lower, strings.ToLower(item.Name)) {
				continue
			}
			if len(item.Modifiers) == 0 {
				return &Result{
					Action: "collecting",
					Order: &OrderPatch{Items: []PatchItem{{
						Category: c.Name, Name: item.Name, Price: item.Price, BasePrice: item.Price, Quantity: 1,
					}}},
					Confidence: 0.9,
				}
			}
			return &Result{Action: "choose_item", Category: c.Name, Item: item.Name, Confidence: 0.9, UserText: userText}
		}
	}

	return nil
}
