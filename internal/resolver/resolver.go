package resolver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/demobites/voice-order/internal/menu"
)

// Result is the resolver's verdict on one user utterance: the action to
// take plus whatever slots the action needs.
type Result struct {
	Action       string              `json:"action"`
	Order        *OrderPatch         `json:"order,omitempty"`
	Prompt       string              `json:"prompt,omitempty"`
	Confidence   float64             `json:"confidence,omitempty"`
	ItemQueried  string              `json:"itemQueried,omitempty"`
	NewQuantity  int                 `json:"newQuantity,omitempty"`
	Modifiers    map[string][]string `json:"modifiers,omitempty"`
	Category     string              `json:"category,omitempty"`
	Item         string              `json:"item,omitempty"`
	DiscountCode string              `json:"discountCode,omitempty"`
	UserText     string              `json:"-"`
}

// OrderPatch carries item additions proposed by the model in free-form
// collecting mode.
type OrderPatch struct {
	Items []PatchItem `json:"items"`
}

type PatchItem struct {
	Category  string              `json:"category,omitempty"`
	Name      string              `json:"name"`
	Price     float64             `json:"price,omitempty"`
	BasePrice float64             `json:"basePrice,omitempty"`
	Quantity  int                 `json:"quantity,omitempty"`
	Modifiers map[string][]string `json:"modifiers,omitempty"`
}

// Message is one prior conversation turn sent along for context.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Fallback is the canned low-confidence result used whenever the model is
// slow, unreachable, or returns something unparseable.
func Fallback() Result {
	return Result{
		Action:     "unknown",
		Prompt:     "Sorry, my mistake there. Could you say that one more time?",
		Confidence: 0.1,
	}
}

// Client resolves user utterances into order actions with a JSON-mode chat
// completion. Zero value is not usable; construct with NewClient.
type Client struct {
	HTTPClient *http.Client
	APIKey     string
	Model      string
	BaseURL    string
	Timeout    time.Duration

	cache *ttlCache
}

func NewClient(apiKey, model string, timeout time.Duration) *Client {
	if model == "" {
		model = "gpt-4o-mini"
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    "https://api.openai.com",
		Timeout:    timeout,
		cache:      newTTLCache(60 * time.Second),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionsRequest struct {
	Model          string          `json:"model"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Messages       []chatMessage   `json:"messages"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      chatMessage `json:"message"`
}

type chatCompletionsResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
}

func systemPrompt() string {
	var menuLines strings.Builder
	for _, c := range menu.Catalog {
		parts := make([]string, 0, len(c.Items))
		for _, i := range c.Items {
			parts = append(parts, fmt.Sprintf("%s ($%g)", i.Name, i.Price))
		}
		menuLines.WriteString("- " + c.Name + ": " + strings.Join(parts, "; ") + "\n")
	}
	return `You are a warm, patient food-ordering assistant on a phone call.

OUTPUT FORMAT (IMPORTANT):
Return ONLY a valid JSON object. No markdown, no code fences, no commentary.
Return JSON with: action, order, prompt, confidence, itemQueried?, newQuantity?, modifiers?(group->choices), category?, item?, discountCode?.

ACTIONS:
- collecting, confirm, info, cancel, update_quantity, reset, help, recommend, acknowledge, smalltalk, apologize, unrecognized_item, clarify, discounts, apply_discount, most_selling, suggest, greeting, repeat_last, unknown

RULES:
- Default quantity = 1
- "yes", "that's correct", "confirm", "please confirm", "looks good", "go ahead" -> action = confirm
- If user only chose a category or item, use "clarify" with a helpful next-step prompt.
- For "discounts" inquiries: explain available codes and ask if you'd like to apply one.
- For "apply_discount": extract code (e.g., SAVE10), include "discountCode".
- For "most_selling" or "recommend": suggest 2-3 items.
- Keep tone friendly and concise.

MENU:
` + menuLines.String() + `DISCOUNTS:
- SAVE10: 10% off orders of $20 or more
- FREEDRINK: Free Coke when you order a Pizza
`
}

// Resolve classifies a user utterance against the current order. It never
// returns an error: any model failure, timeout, or malformed reply yields
// the canned fallback. Generic informational queries are served from a
// short-lived cache.
func (c *Client) Resolve(ctx context.Context, userText, orderJSON string, history []Message) Result {
	key := strings.ToLower(strings.TrimSpace(userText))
	cacheable := isGenericQuery(key)
	if cacheable {
		if res, ok := c.cache.get(key); ok {
			return res
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	res, err := c.resolveOnce(ctx, userText, orderJSON, history)
	if err != nil {
		log.Printf("resolver: falling back: %v", err)
		return Fallback()
	}
	if cacheable {
		c.cache.set(key, res)
	}
	return res
}

func (c *Client) resolveOnce(ctx context.Context, userText, orderJSON string, history []Message) (Result, error) {
	if c.APIKey == "" {
		return Result{}, fmt.Errorf("openai api key missing")
	}
	endpoint := c.BaseURL + "/v1/chat/completions"

	messages := []chatMessage{{Role: "system", Content: systemPrompt()}}
	for _, m := range history {
		messages = append(messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	messages = append(messages,
		chatMessage{Role: "user", Content: fmt.Sprintf("User said: %q", userText)},
		chatMessage{Role: "assistant", Content: "Current order: " + orderJSON},
	)

	reqBody, _ := json.Marshal(chatCompletionsRequest{
		Model:          c.Model,
		Temperature:    0,
		MaxTokens:      350,
		ResponseFormat: &responseFormat{Type: "json_object"},
		Messages:       messages,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Result{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return Result{}, fmt.Errorf("openai error: status=%d body=%s", resp.StatusCode, string(b))
	}
	var cr chatCompletionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return Result{}, err
	}
	if len(cr.Choices) == 0 {
		return Result{}, fmt.Errorf("openai: empty choices")
	}
	var out Result
	if err := json.Unmarshal([]byte(cr.Choices[0].Message.Content), &out); err != nil {
		return Result{}, fmt.Errorf("unparseable model reply: %w", err)
	}
	if out.Action == "" {
		return Result{}, fmt.Errorf("model reply missing action")
	}
	out.UserText = userText
	return out, nil
}

var genericMarkers = []string{
	"menu", "categories", "total", "what do you have", "how much",
	"thank you", "thanks", "discount", "offer", "promo", "coupon",
	"bestseller", "most selling", "popular",
}

// isGenericQuery reports whether the utterance is informational and safe to
// cache: nothing order-specific ever matches these markers alone.
func isGenericQuery(key string) bool {
	for _, m := range genericMarkers {
		if strings.Contains(key, m) {
			return true
		}
	}
	return false
}
