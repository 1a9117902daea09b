package dialog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"

	"github.com/demobites/voice-order/internal/menu"
	"github.com/demobites/voice-order/internal/resolver"
)

// IntentResolver classifies a user utterance against the current order.
type IntentResolver interface {
	Resolve(ctx context.Context, userText, orderJSON string, history []resolver.Message) resolver.Result
}

// OrderSubmitter forwards a placed order to the commerce partner.
type OrderSubmitter interface {
	Submit(ctx context.Context, order menu.Order, totals menu.Totals) error
}

// Archiver persists finalized order records.
type Archiver interface {
	Upload(key, contentType string, data []byte) error
}

// Engine drives the ordering conversation: deterministic phase routing
// first, then fast-path shortcuts, then the resolver.
type Engine struct {
	Resolver  IntentResolver
	Submitter OrderSubmitter
	Archive   Archiver
}

func NewEngine(r IntentResolver, s OrderSubmitter, a Archiver) *Engine {
	return &Engine{Resolver: r, Submitter: s, Archive: a}
}

func promptForCategory() string {
	return menu.SpeakableList("Please choose a category to get started:", menu.Categories()) + " Which would you like?"
}

func promptForItem(category string) string {
	items := menu.ItemsOf(category)
	if len(items) == 0 {
		return fmt.Sprintf("Hmm, I couldn't find items under %s. Let's try a different category.", category)
	}
	return fmt.Sprintf("Great choice, %s! %s Which one sounds good to you?", category, menu.SpeakableList("Here are the options:", items))
}

func promptForModifiers(item *menu.Item, groupsLeft []string) string {
	if len(groupsLeft) == 0 {
		return ""
	}
	g := groupsLeft[0]
	choices := menu.ModifierChoices(item, g)
	if len(choices) == 0 {
		return fmt.Sprintf("No options for %s.", g)
	}
	parts := make([]string, 0, len(choices))
	for _, c := range choices {
		if c.PriceDelta > 0 {
			parts = append(parts, fmt.Sprintf("%s (adds %g dollars)", c.Name, c.PriceDelta))
		} else {
			parts = append(parts, c.Name)
		}
	}
	return fmt.Sprintf("For your %s, what would you like for %s? Available choices are %s.", item.Name, g, strings.Join(parts, ", "))
}

// Respond handles one finished user utterance and returns the reply to
// speak, plus whether the call should end after it is played.
func (e *Engine) Respond(ctx context.Context, st *State, userText string) (reply string, hangup bool) {
	defer func() {
		if reply != "" {
			st.recordTurn(userText, reply)
		}
	}()

	// Confirmation gate runs before anything else.
	if st.Phase == PhaseConfirm {
		return e.handleConfirmPhase(ctx, st, userText)
	}

	// Phase-first deterministic routing.
	if res, ok := e.routeByPhase(st, userText); ok {
		return e.dispatch(ctx, st, res)
	}

	res := resolver.FastPath(userText, st.Order, st.AppliedDiscounts)
	if res == nil {
		orderJSON, _ := json.Marshal(st.Order)
		r := e.Resolver.Resolve(ctx, userText, string(orderJSON), e.recentHistory(st))
		res = &r
	}
	if res.UserText == "" {
		res.UserText = userText
	}

	// Selection hints survive even when the action handler bails out.
	if res.Category != "" {
		st.SelectedCategory = res.Category
	}
	if res.Item != "" {
		st.SelectedItem = res.Item
	}
	st.LastAction = res.Action

	return e.dispatch(ctx, st, res)
}

func (e *Engine) recentHistory(st *State) []resolver.Message {
	if len(st.History) == 0 {
		return nil
	}
	last := st.History[len(st.History)-1]
	return []resolver.Message{{Role: last.Role, Content: last.Content}}
}

// routeByPhase handles the guided flow without consulting the resolver.
func (e *Engine) routeByPhase(st *State, userText string) (*resolver.Result, bool) {
	switch st.Phase {
	case PhaseChooseCategory:
		if cat, ok := menu.FindCategory(userText); ok {
			return &resolver.Result{Action: "choose_category", Category: cat.Name, UserText: userText}, true
		}
	case PhaseChooseItem:
		if st.SelectedCategory == "" {
			return &resolver.Result{Action: "choose_category", UserText: userText}, true
		}
		if item, ok := menu.FindItem(st.SelectedCategory, userText); ok {
			return &resolver.Result{Action: "choose_item", Category: st.SelectedCategory, Item: item.Name, UserText: userText}, true
		}
	case PhaseChooseModifiers:
		if st.Pending != nil && len(st.Pending.GroupsLeft) > 0 {
			return &resolver.Result{Action: "choose_modifiers", UserText: userText}, true
		}
	}
	return nil, false
}

func (e *Engine) dispatch(ctx context.Context, st *State, res *resolver.Result) (string, bool) {
	switch res.Action {
	case "cancel":
		return e.handleCancel(st, res)
	case "confirm":
		return e.handleConfirm(st)
	case "info":
		return e.handleInfo(st, res), false
	case "update_quantity":
		return e.handleUpdateQuantity(st, res), false
	case "reset":
		st.reset()
		return "No problem, let's start fresh. " + promptForCategory(), false
	case "repeat_last":
		if last := st.lastAssistant(); last != "" {
			return last, false
		}
		return "I didn't say anything just yet. What would you like to order?", false
	case "help":
		return "I can walk you through it, no rush. First, pick a category like Burgers or Pizzas. Then choose an item and any extras you want. You can always ask for your total or say confirm when you're ready.", false
	case "greeting":
		return "Hi there, welcome to Demo Bites! I'm here to help you place an order. " + promptForCategory(), false
	case "acknowledge":
		return orPrompt(res, "You're very welcome! Would you like to add anything else, or should I read your total?"), false
	case "smalltalk":
		return orPrompt(res, "I'm doing great, thanks for asking! Ready to choose a category?"), false
	case "apologize":
		return orPrompt(res, "I'm sorry about that experience. Would you like to continue with your order?"), false
	case "clarify":
		return orPrompt(res, "Got it. Tell me a category like Burgers or Pizzas, then the item, and any extras you'd like."), false
	case "unrecognized_item":
		name := res.ItemQueried
		if name == "" {
			name = "that item"
		}
		return fmt.Sprintf("I don't think we have %s today. No worries, let's pick something we do have. %s", name, promptForCategory()), false
	case "discounts":
		return e.handleDiscounts(st), false
	case "apply_discount":
		return e.handleApplyDiscount(st, res), false
	case "most_selling":
		return fmt.Sprintf("Our most popular picks are %s. Would you like to try one of these?", strings.Join(menu.PopularItems, ", ")), false
	case "suggest":
		return e.handleSuggest(st), false
	case "recommend":
		return orPrompt(res, "Popular picks right now are Chicken burger with Pickle, and Pizza with Mushrooms. Fancy one of these, or would you like to browse by category?"), false
	case "choose_category":
		return e.handleChooseCategory(st, res), false
	case "choose_item":
		return e.handleChooseItem(st, res), false
	case "choose_modifiers":
		return e.handleChooseModifiers(st, res), false
	case "collecting":
		return e.handleCollecting(st, res), false
	default:
		return orPrompt(res, "Sorry, I didn't quite get that. Could you say it one more time?"), false
	}
}

func orPrompt(res *resolver.Result, fallback string) string {
	if res.Prompt != "" {
		return res.Prompt
	}
	return fallback
}

func (e *Engine) handleCancel(st *State, res *resolver.Result) (string, bool) {
	st.reset()
	return orPrompt(res, "Okay, I've cancelled that for you. Thanks for calling and have a lovely day!"), true
}

func (e *Engine) handleConfirm(st *State) (string, bool) {
	if len(st.Order.Items) == 0 {
		return "You don't have anything in your order yet. " + promptForCategory(), false
	}
	st.Phase = PhaseConfirm
	totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
	discountLine := "."
	if totals.Discount > 0 {
		discountLine = fmt.Sprintf(" after %.2f dollars in discounts (%s).", totals.Discount, strings.Join(totals.Notes, "; "))
	}
	return fmt.Sprintf("Here's your order: %s. Subtotal is %.2f dollars%s Your total is %.2f dollars. Would you like me to place it now? Say confirm or cancel.",
		st.Order.Summary(), totals.Subtotal, discountLine, totals.Total), false
}

func (e *Engine) handleConfirmPhase(ctx context.Context, st *State, userText string) (string, bool) {
	lower := strings.ToLower(userText)
	for _, k := range []string{"yes", "confirm", "place order", "go ahead", "that's it", "done", "looks good"} {
		if strings.Contains(lower, k) {
			return e.finalize(ctx, st), true
		}
	}
	for _, k := range []string{"no", "cancel", "stop"} {
		if strings.Contains(lower, k) {
			st.reset()
			return "No problem, I've cancelled that. If you change your mind later, I'm here to help.", true
		}
	}
	totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
	return fmt.Sprintf("To place your order of %s for %.2f dollars, just say confirm. If you'd like to stop, say cancel.", st.Order.Summary(), totals.Total), false
}

// finalize places the order: partner submission and archival are best
// effort, the caller still gets their goodbye if either fails.
func (e *Engine) finalize(ctx context.Context, st *State) string {
	totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
	summary := st.Order.Summary()

	if e.Submitter != nil {
		if err := e.Submitter.Submit(ctx, st.Order, totals); err != nil {
			log.Printf("dialog: partner submission failed: %v", err)
		}
	}
	if e.Archive != nil {
		record := struct {
			Order     menu.Order  `json:"order"`
			Totals    menu.Totals `json:"totals"`
			Discounts []string    `json:"discounts,omitempty"`
		}{st.Order, totals, st.AppliedDiscounts}
		if data, err := json.Marshal(record); err == nil {
			key := "orders/" + uuid.NewString() + ".json"
			if err := e.Archive.Upload(key, "application/json", data); err != nil {
				log.Printf("dialog: order archive failed: %v", err)
			}
		}
	}

	return fmt.Sprintf("Done! Your order for %s, total %.2f dollars, is placed. Thanks so much for ordering with us, enjoy your meal!", summary, totals.Total)
}

func (e *Engine) handleInfo(st *State, res *resolver.Result) string {
	switch res.ItemQueried {
	case "categories", "menu":
		return "Happy to help. " + promptForCategory()
	case "total":
		totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
		discStr := ""
		if totals.Discount > 0 {
			discStr = fmt.Sprintf(", with %.2f dollars off (%s),", totals.Discount, strings.Join(totals.Notes, "; "))
		}
		return fmt.Sprintf("So far your subtotal is %.2f dollars%s and your total is %.2f dollars. Would you like to add anything else?", totals.Subtotal, discStr, totals.Total)
	case "order_summary":
		return fmt.Sprintf("Right now you have %s. Want to add something or make a change?", st.Order.Summary())
	case "payment_methods":
		return "We accept credit cards, debit cards, and cash on delivery. What would you like to do next?"
	case "delivery_time":
		return "Estimated delivery time is about 30 minutes. Shall we continue with your order?"
	case "store_info":
		return "We're at 123 Main Street and open 10 AM to 10 PM every day. What would you like to order?"
	default:
		return orPrompt(res, "I'm here, could you share that once more?")
	}
}

func (e *Engine) handleUpdateQuantity(st *State, res *resolver.Result) string {
	item := st.Order.Find(res.ItemQueried)
	if item == nil || res.NewQuantity < 1 {
		return fmt.Sprintf("I couldn't find %s in your order. Right now you have %s.", res.ItemQueried, st.Order.Summary())
	}
	item.Quantity = res.NewQuantity
	return fmt.Sprintf("All set, %s is now %d. Would you like anything else?", res.ItemQueried, res.NewQuantity)
}

func (e *Engine) handleDiscounts(st *State) string {
	totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
	lines := "We have a couple of offers right now: SAVE10, 10% off orders of 20 dollars or more. FREEDRINK, a free Coke when you order a Pizza."
	if totals.Subtotal < 20 {
		gap := 20 - totals.Subtotal
		return fmt.Sprintf("%s You're about %.2f dollars away from SAVE10. Would you like to apply a code now? You can say, apply SAVE10 or apply FreeDrink.", lines, gap)
	}
	return lines + " You're eligible for SAVE10. Would you like me to apply it?"
}

func (e *Engine) handleApplyDiscount(st *State, res *resolver.Result) string {
	code := strings.ToUpper(res.DiscountCode)
	code = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return -1
	}, code)

	def, ok := menu.Discounts[code]
	if !ok {
		return "I couldn't find that promo code. Available ones are SAVE10 and FREEDRINK. Which one would you like to apply?"
	}
	for _, c := range st.AppliedDiscounts {
		if c == code {
			totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
			return fmt.Sprintf("%s is already applied. Your total is %.2f dollars. Would you like anything else?", code, totals.Total)
		}
	}
	if _, _, eligible := def.Apply(st.Order); !eligible {
		switch code {
		case "SAVE10":
			gap := 20 - st.Order.Subtotal()
			if gap < 0 {
				gap = 0
			}
			return fmt.Sprintf("SAVE10 needs a subtotal of at least 20 dollars. You're about %.2f dollars away. Want a suggestion to reach it?", gap)
		case "FREEDRINK":
			return "FREEDRINK works when you have a Pizza in your order. Would you like to add a Pizza?"
		}
		return "That code isn't eligible just yet. Would you like a recommendation to qualify?"
	}

	st.AppliedDiscounts = append(st.AppliedDiscounts, code)
	totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
	return fmt.Sprintf("%s applied, %s. Your new total is %.2f dollars with %.2f dollars in savings. Anything else?",
		code, strings.Join(totals.Notes, "; "), totals.Total, totals.Discount)
}

func (e *Engine) handleSuggest(st *State) string {
	var suggestions []string
	seen := make(map[string]bool)
	for _, i := range st.Order.Items {
		for _, s := range menu.SuggestedPairings[i.Name] {
			if !seen[s] {
				seen[s] = true
				suggestions = append(suggestions, s)
			}
		}
	}
	if len(suggestions) > 3 {
		suggestions = suggestions[:3]
	}
	if len(suggestions) == 0 {
		suggestions = menu.PopularItems[:3]
	}
	return fmt.Sprintf("May I suggest %s? You can say, for example, add Fries or add a Coke.", strings.Join(suggestions, ", "))
}

func (e *Engine) handleChooseCategory(st *State, res *resolver.Result) string {
	name := res.Category
	if name == "" {
		name = st.SelectedCategory
	}
	if name == "" {
		st.Phase = PhaseChooseCategory
		return "No rush, let's begin. " + promptForCategory()
	}
	cat, ok := menu.FindCategory(name)
	if !ok {
		st.Phase = PhaseChooseCategory
		return fmt.Sprintf("I couldn't find %s. That happens! %s", name, promptForCategory())
	}
	st.Phase = PhaseChooseItem
	st.SelectedCategory = cat.Name
	return promptForItem(cat.Name)
}

func (e *Engine) handleChooseItem(st *State, res *resolver.Result) string {
	category := st.SelectedCategory
	if category == "" {
		category = res.Category
	}
	if _, ok := menu.FindCategory(category); !ok {
		st.Phase = PhaseChooseCategory
		return "Let's pick a category first. " + promptForCategory()
	}
	itemName := res.Item
	if itemName == "" {
		itemName = st.SelectedItem
	}
	if itemName == "" {
		return promptForItem(category)
	}
	item, ok := menu.FindItem(category, itemName)
	if !ok {
		return fmt.Sprintf("I didn't find %s in %s. %s", itemName, category, promptForItem(category))
	}

	// The item goes on the order at its base price right away; modifier
	// questions refine the line afterwards, so the running total is always
	// announceable.
	st.Order.Items = append(st.Order.Items, menu.OrderItem{
		Category: category, Name: item.Name, BasePrice: item.Price, Quantity: 1, UnitPrice: item.Price,
	})
	st.SelectedCategory = category
	st.SelectedItem = item.Name
	totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
	added := fmt.Sprintf("Nice choice, %s added. Your total is %.2f dollars.", item.Name, totals.Total)

	groups := menu.ModifierGroups(item)
	if len(groups) == 0 {
		st.Phase = PhaseCollecting
		return added + " Would you like to add something else or say confirm?"
	}
	st.Phase = PhaseChooseModifiers
	st.Pending = &PendingModifiers{Item: item.Name, GroupsLeft: groups, Chosen: menu.ChosenModifiers{}}
	return added + " " + promptForModifiers(item, groups) + " You can also say skip."
}

var skipWords = []string{"skip", "no thanks", "nothing", "none", "that's all", "plain", "no extras"}

func wantsSkip(userText string) bool {
	lower := strings.ToLower(userText)
	for _, k := range skipWords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return lower == "no"
}

func (e *Engine) handleChooseModifiers(st *State, res *resolver.Result) string {
	if st.SelectedCategory == "" || st.SelectedItem == "" || st.Pending == nil || len(st.Pending.GroupsLeft) == 0 {
		st.Phase = PhaseChooseCategory
		st.Pending = nil
		return "Let's start from the top. " + promptForCategory()
	}
	item, ok := menu.FindItem(st.SelectedCategory, st.SelectedItem)
	if !ok {
		st.Phase = PhaseChooseCategory
		st.Pending = nil
		return "Let's start from the top. " + promptForCategory()
	}
	group := st.Pending.GroupsLeft[0]

	if wantsSkip(res.UserText) {
		st.Pending.GroupsLeft = st.Pending.GroupsLeft[1:]
		if len(st.Pending.GroupsLeft) > 0 {
			return promptForModifiers(item, st.Pending.GroupsLeft) + " You can also say skip."
		}
		return e.finishModifiers(st, item)
	}

	names := res.Modifiers[group]
	if len(names) == 0 {
		names = menu.MatchModifierChoices(item, group, res.UserText)
	}
	if len(names) == 0 {
		return "No worries, let's try that again. " + promptForModifiers(item, st.Pending.GroupsLeft) + " You can also say skip."
	}

	valid := menu.ModifierChoices(item, group)
	var selected []menu.ModifierChoice
	for _, n := range names {
		for _, c := range valid {
			if strings.EqualFold(strings.TrimSpace(c.Name), strings.TrimSpace(n)) {
				selected = append(selected, c)
			}
		}
	}
	if len(selected) == 0 {
		return "Those options aren't available. " + promptForModifiers(item, st.Pending.GroupsLeft) + " You can also say skip."
	}

	st.Pending.Chosen[group] = selected
	st.Pending.GroupsLeft = st.Pending.GroupsLeft[1:]
	applyPendingToLine(st, item)
	if len(st.Pending.GroupsLeft) > 0 {
		return promptForModifiers(item, st.Pending.GroupsLeft) + " You can also say skip."
	}
	return e.finishModifiers(st, item)
}

// applyPendingToLine prices the in-progress choices onto the already-added
// order line.
func applyPendingToLine(st *State, item *menu.Item) {
	line := st.Order.Find(item.Name)
	if line == nil {
		return
	}
	if len(st.Pending.Chosen) > 0 {
		line.Modifiers = st.Pending.Chosen
	}
	line.UnitPrice = menu.PriceWithModifiers(item, st.Pending.Chosen)
}

func (e *Engine) finishModifiers(st *State, item *menu.Item) string {
	applyPendingToLine(st, item)
	chosen := st.Pending.Chosen
	st.Pending = nil
	st.Phase = PhaseCollecting
	totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
	if len(chosen) == 0 {
		return fmt.Sprintf("All set. Your total is %.2f dollars. Would you like to add more or say confirm?", totals.Total)
	}
	return fmt.Sprintf("Perfect, %s with %s. Your total is %.2f dollars. Would you like to add more or say confirm?",
		item.Name, chosen.Spoken(), totals.Total)
}

func (e *Engine) handleCollecting(st *State, res *resolver.Result) string {
	var message strings.Builder
	if res.Order != nil {
		for _, patch := range res.Order.Items {
			qty := patch.Quantity
			if qty < 1 {
				qty = 1
			}
			if existing := st.Order.Find(patch.Name); existing != nil {
				existing.Quantity += qty
				fmt.Fprintf(&message, "Updated %s to %d. ", existing.Name, existing.Quantity)
				continue
			}
			basePrice := patch.BasePrice
			if basePrice == 0 {
				basePrice = patch.Price
			}
			unit := patch.Price
			if unit == 0 {
				unit = basePrice
			}
			category := patch.Category
			if category == "" {
				category = "Uncategorized"
			}
			st.Order.Items = append(st.Order.Items, menu.OrderItem{
				Category: category, Name: patch.Name, BasePrice: basePrice,
				Quantity: qty, UnitPrice: unit, Modifiers: patchModifiers(patch),
			})
			fmt.Fprintf(&message, "Added %d %s. ", qty, patch.Name)
		}
	}
	st.Phase = PhaseCollecting
	if res.Prompt != "" {
		return res.Prompt
	}
	totals := menu.ComputeTotals(st.Order, st.AppliedDiscounts)
	return fmt.Sprintf("%sYou now have %s. Your total is %.2f dollars. Would you like to add anything else, make a change, or say confirm?",
		message.String(), st.Order.Summary(), totals.Total)
}

// patchModifiers maps resolver modifier names onto priced menu choices where
// the item is known; unknown names are kept with a zero delta.
func patchModifiers(patch resolver.PatchItem) menu.ChosenModifiers {
	if len(patch.Modifiers) == 0 {
		return nil
	}
	item, found := findItemAnywhere(patch.Name)
	out := menu.ChosenModifiers{}
	for group, names := range patch.Modifiers {
		for _, n := range names {
			choice := menu.ModifierChoice{Name: n}
			if found {
				for _, c := range menu.ModifierChoices(item, group) {
					if strings.EqualFold(c.Name, n) {
						choice = c
						break
					}
				}
			}
			out[group] = append(out[group], choice)
		}
	}
	return out
}

func findItemAnywhere(name string) (*menu.Item, bool) {
	for _, c := range menu.Catalog {
		if item, ok := menu.FindItem(c.Name, name); ok {
			return item, true
		}
	}
	return nil, false
}
